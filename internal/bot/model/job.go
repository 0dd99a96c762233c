package model

import "time"

// InboundJob is one unit of work for the dispatch queue: a single customer
// message received on a tenant's session. Jobs are immutable once created and
// are claimed by exactly one worker.
type InboundJob struct {
	ID              string
	TenantID        string
	SessionIdentity string
	CustomerID      string
	CustomerName    string
	ChatTarget      string
	Message         string
	EnqueuedAt      time.Time
}

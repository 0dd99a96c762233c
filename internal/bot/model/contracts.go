package model

import (
	"context"
	"errors"

	"github.com/souqbot/server/internal/bot/negotiation"
)

// ErrUnauthorized is returned by Transport.Connect when the credentials are
// rejected by the messaging platform.
var ErrUnauthorized = errors.New("session credentials unauthorized")

// ================ Session transport contract ================

// Credentials authenticate one tenant's account against a transport.
type Credentials struct {
	AccountID string
	Token     string
}

// IncomingEvent is a normalized inbound event delivered by a session.
// Non-private and non-text events are dropped by the manager.
type IncomingEvent struct {
	SenderID   string
	SenderName string
	ChatTarget string
	Text       string
	Private    bool
}

// EventHandler receives inbound events from a connected session. A session
// delivers its events sequentially, so a handler that blocks (e.g. on a full
// queue) exerts backpressure on that session only.
type EventHandler func(ctx context.Context, ev IncomingEvent)

// Session is a live, authenticated connection to a messaging transport.
type Session interface {
	// Identity returns the opaque platform identity of the connected
	// account, used for feedback-loop detection.
	Identity() string
	OnMessage(handler EventHandler)
	Send(ctx context.Context, chatTarget, text string) error
	IsConnected() bool
	Disconnect(ctx context.Context) error
}

// Transport creates sessions for tenant accounts. One implementation exists
// per messaging platform; the orchestrator is transport-agnostic.
type Transport interface {
	Connect(ctx context.Context, creds Credentials) (Session, error)
}

// ================ Message-processing contract ================

// ProcessRequest carries everything the processing engine needs for one
// customer message. Negotiation and CurrentProductID are the caller's
// conversation metadata; the engine returns their successor values in the
// result and never retains them.
type ProcessRequest struct {
	Tenant           TenantConfig
	History          []ChatMessage
	Message          string
	CustomerName     string
	Negotiation      *negotiation.State
	CurrentProductID string
}

// ProcessResult is the structured outcome of processing one message.
type ProcessResult struct {
	ReplyText        string
	Confidence       float64
	SuggestedActions []string
	Flags            map[string]string
	Negotiation      *negotiation.State
	CurrentProductID string
}

// Processor turns a customer message plus conversation context into a reply.
// Implementations may call external model backends and must be safe for
// concurrent use across conversations.
type Processor interface {
	Process(ctx context.Context, req ProcessRequest) (ProcessResult, error)
}

// ================ Catalog lookup contract ================

// Catalog is the read-only product lookup consulted during processing.
type Catalog interface {
	Get(ctx context.Context, productID string) (Product, bool)
	Search(ctx context.Context, query string, maxResults int) []Product
}

package conversation

import (
	"sync"

	"github.com/souqbot/server/internal/bot/model"
	"github.com/souqbot/server/internal/bot/negotiation"
)

// Conversation is the in-memory state for one (tenant, customer) pair:
// ordered message history plus negotiation metadata. It is created lazily on
// first message and mutated only while the store's per-key lock is held.
type Conversation struct {
	TenantID         string
	CustomerID       string
	History          []model.ChatMessage
	Negotiation      *negotiation.State
	CurrentProductID string
	Meta             map[string]string
}

type convKey struct {
	tenantID   string
	customerID string
}

type convEntry struct {
	mu   sync.Mutex
	conv *Conversation
}

// Store owns all conversation state in the process. Access to a single
// conversation is serialized structurally: With holds that key's lock for the
// duration of the callback, so at most one worker ever mutates a given
// (tenant, customer) state.
type Store struct {
	mu      sync.Mutex
	entries map[convKey]*convEntry
}

func NewStore() *Store {
	return &Store{entries: make(map[convKey]*convEntry)}
}

func (s *Store) entry(tenantID, customerID string) *convEntry {
	k := convKey{tenantID: tenantID, customerID: customerID}

	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[k]
	if !ok {
		e = &convEntry{conv: &Conversation{
			TenantID:   tenantID,
			CustomerID: customerID,
			Meta:       make(map[string]string),
		}}
		s.entries[k] = e
	}
	return e
}

// With runs fn with exclusive access to the conversation for the given key,
// creating the conversation if it does not exist yet. fn must not retain the
// *Conversation beyond its return.
func (s *Store) With(tenantID, customerID string, fn func(c *Conversation) error) error {
	e := s.entry(tenantID, customerID)
	e.mu.Lock()
	defer e.mu.Unlock()
	return fn(e.conv)
}

// Snapshot returns a copy of the conversation, or false if none exists.
func (s *Store) Snapshot(tenantID, customerID string) (Conversation, bool) {
	k := convKey{tenantID: tenantID, customerID: customerID}

	s.mu.Lock()
	e, ok := s.entries[k]
	s.mu.Unlock()
	if !ok {
		return Conversation{}, false
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	c := *e.conv
	c.History = append([]model.ChatMessage(nil), e.conv.History...)
	if e.conv.Negotiation != nil {
		st := *e.conv.Negotiation
		c.Negotiation = &st
	}
	meta := make(map[string]string, len(e.conv.Meta))
	for k, v := range e.conv.Meta {
		meta[k] = v
	}
	c.Meta = meta
	return c, true
}

// Clear drops the conversation for the given key. A worker still processing
// under the old entry finishes against the orphaned state, which is then
// garbage collected.
func (s *Store) Clear(tenantID, customerID string) {
	k := convKey{tenantID: tenantID, customerID: customerID}

	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, k)
}

// Len reports how many conversations currently exist.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

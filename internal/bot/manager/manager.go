package manager

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/souqbot/server/internal/bot/conversation"
	"github.com/souqbot/server/internal/bot/model"
	"github.com/souqbot/server/internal/bot/queue"
	errx "github.com/souqbot/server/internal/core/error"
	logx "github.com/souqbot/server/pkg/logger"
)

// ErrSessionNotFound indicates the tenant has no registered session.
var ErrSessionNotFound = errors.New("session not found")

// tenantSession is the manager-owned record of one running tenant session.
// It is created on Start, destroyed on Stop, and mutated only by the manager.
type tenantSession struct {
	tenantID string
	identity string
	session  model.Session
	running  bool
	config   model.TenantConfig
}

// Manager owns the set of active tenant sessions. It wires each session's
// inbound events into the shared dispatch queue, prevents feedback loops
// between bot-controlled accounts, and routes worker replies back out through
// the owning session.
type Manager struct {
	mu       sync.RWMutex
	sessions map[string]*tenantSession

	transport model.Transport
	dispatch  *queue.Dispatch
	store     *conversation.Store
	history   *conversation.HistoryRepo
}

// NewManager builds a manager. history may be nil when no transcript mirror
// is configured.
func NewManager(transport model.Transport, dispatch *queue.Dispatch, store *conversation.Store, history *conversation.HistoryRepo) *Manager {
	return &Manager{
		sessions:  make(map[string]*tenantSession),
		transport: transport,
		dispatch:  dispatch,
		store:     store,
		history:   history,
	}
}

// Start connects a session for the tenant and begins feeding its inbound
// messages into the dispatch queue. Starting an already-running healthy
// session is an idempotent success. Unauthorized credentials surface as
// model.ErrUnauthorized and are never retried here.
func (m *Manager) Start(ctx context.Context, tenantID string, creds model.Credentials, cfg model.TenantConfig) error {
	m.mu.RLock()
	existing, ok := m.sessions[tenantID]
	m.mu.RUnlock()
	if ok && existing.running && existing.session.IsConnected() {
		logx.Info().Str("tenant_id", tenantID).Msg("session already running")
		return nil
	}

	sess, err := m.transport.Connect(ctx, creds)
	if err != nil {
		if errors.Is(err, model.ErrUnauthorized) {
			logx.Warn().Str("tenant_id", tenantID).Msg("session credentials rejected")
			return fmt.Errorf("start session for tenant %s: %w", tenantID, err)
		}
		logx.Error().Err(err).Str("tenant_id", tenantID).Msg("transport connect failed")
		return fmt.Errorf("start session for tenant %s: %w", tenantID, errx.WrapTransport(err))
	}

	ts := &tenantSession{
		tenantID: tenantID,
		identity: sess.Identity(),
		session:  sess,
		running:  true,
		config:   cfg,
	}
	sess.OnMessage(m.eventHandler(ts))

	m.mu.Lock()
	if cur, ok := m.sessions[tenantID]; ok && cur.running && cur.session.IsConnected() {
		// Lost a concurrent start race; keep the session that won.
		m.mu.Unlock()
		_ = sess.Disconnect(ctx)
		return nil
	}
	m.sessions[tenantID] = ts
	m.mu.Unlock()

	logx.Info().
		Str("tenant_id", tenantID).
		Str("identity", ts.identity).
		Msg("session started")
	return nil
}

// Stop disconnects and removes the tenant's session. Jobs already dequeued
// for this tenant run to completion; their sends then fail into the fallback
// path. No-op when the tenant has no session.
func (m *Manager) Stop(ctx context.Context, tenantID string) {
	m.mu.Lock()
	ts, ok := m.sessions[tenantID]
	if ok {
		ts.running = false
		delete(m.sessions, tenantID)
	}
	m.mu.Unlock()
	if !ok {
		return
	}

	if err := ts.session.Disconnect(ctx); err != nil {
		logx.Warn().Err(err).Str("tenant_id", tenantID).Msg("disconnect failed")
	}
	logx.Info().Str("tenant_id", tenantID).Msg("session stopped")
}

// UpdateConfig merges the patch into the running session's config without
// interrupting in-flight jobs: workers snapshot the config when they pick a
// job up, so the merge applies from the next job onward.
func (m *Manager) UpdateConfig(tenantID string, patch model.TenantConfigPatch) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	ts, ok := m.sessions[tenantID]
	if !ok {
		return fmt.Errorf("update config for tenant %s: %w", tenantID, ErrSessionNotFound)
	}
	ts.config = patch.Apply(ts.config)
	logx.Info().Str("tenant_id", tenantID).Msg("tenant config updated")
	return nil
}

// Status reports the lifecycle state of the tenant's session. Unknown tenants
// report not running and not connected; the call never mutates state.
func (m *Manager) Status(tenantID string) model.SessionStatus {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ts, ok := m.sessions[tenantID]
	if !ok {
		return model.SessionStatus{}
	}
	return model.SessionStatus{
		Running:   ts.running,
		Connected: ts.session.IsConnected(),
	}
}

// ClearConversation drops the in-memory conversation state and the mirrored
// transcript for one customer.
func (m *Manager) ClearConversation(ctx context.Context, tenantID, customerID string) error {
	m.store.Clear(tenantID, customerID)
	if m.history != nil {
		if err := m.history.Clear(ctx, tenantID, customerID); err != nil {
			return fmt.Errorf("clear transcript for tenant %s customer %s: %w", tenantID, customerID, err)
		}
	}
	return nil
}

// Close stops every session. Used on shutdown.
func (m *Manager) Close(ctx context.Context) {
	m.mu.Lock()
	ids := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	m.mu.Unlock()

	for _, id := range ids {
		m.Stop(ctx, id)
	}
}

// eventHandler converts inbound session events into dispatch jobs. The
// handler is deliberately thin: normalize, filter, enqueue. Everything else
// happens in the workers.
func (m *Manager) eventHandler(ts *tenantSession) model.EventHandler {
	return func(ctx context.Context, ev model.IncomingEvent) {
		// Only private text messages are processed.
		if !ev.Private || strings.TrimSpace(ev.Text) == "" {
			return
		}

		// Feedback-loop prevention: a sender that is another tenant's bot
		// account is dropped, or two bots would answer each other forever.
		if m.isOtherTenantIdentity(ts.tenantID, ev.SenderID) {
			logx.Warn().
				Str("tenant_id", ts.tenantID).
				Str("sender_id", ev.SenderID).
				Msg("dropping message from another tenant's bot account")
			return
		}

		job := model.InboundJob{
			ID:              uuid.NewString(),
			TenantID:        ts.tenantID,
			SessionIdentity: ts.identity,
			CustomerID:      ev.SenderID,
			CustomerName:    ev.SenderName,
			ChatTarget:      ev.ChatTarget,
			Message:         ev.Text,
			EnqueuedAt:      time.Now(),
		}

		// A full queue blocks this session's event handling; that is the
		// backpressure contract rather than silent dropping.
		if err := m.dispatch.Enqueue(ctx, job); err != nil {
			logx.Warn().Err(err).
				Str("tenant_id", ts.tenantID).
				Str("job_id", job.ID).
				Msg("enqueue aborted")
		}
	}
}

func (m *Manager) isOtherTenantIdentity(tenantID, senderID string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for id, other := range m.sessions {
		if id != tenantID && other.running && other.identity == senderID {
			return true
		}
	}
	return false
}

// ================ worker.SessionHub ================

// TenantConfig returns the tenant's current config snapshot.
func (m *Manager) TenantConfig(tenantID string) (model.TenantConfig, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ts, ok := m.sessions[tenantID]
	if !ok {
		return model.TenantConfig{}, false
	}
	return ts.config, true
}

// Reply sends a worker's reply through the session the job arrived on. If the
// tenant's session is gone or has been replaced since the job was enqueued,
// the send fails and the worker's fallback path takes over.
func (m *Manager) Reply(ctx context.Context, job model.InboundJob, text string) error {
	m.mu.RLock()
	ts, ok := m.sessions[job.TenantID]
	m.mu.RUnlock()

	if !ok {
		return fmt.Errorf("reply for tenant %s: %w", job.TenantID, ErrSessionNotFound)
	}
	if ts.identity != job.SessionIdentity {
		return fmt.Errorf("reply for tenant %s: session identity changed since enqueue", job.TenantID)
	}
	if err := ts.session.Send(ctx, job.ChatTarget, text); err != nil {
		return errx.WrapTransport(err)
	}
	return nil
}

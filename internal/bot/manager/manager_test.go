package manager

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/souqbot/server/internal/bot/conversation"
	"github.com/souqbot/server/internal/bot/model"
	"github.com/souqbot/server/internal/bot/queue"
	"github.com/souqbot/server/internal/bot/transport"
)

type fixture struct {
	net      *transport.Local
	dispatch *queue.Dispatch
	store    *conversation.Store
	mgr      *Manager
}

func newFixture(t *testing.T, queueCap int) *fixture {
	t.Helper()
	net := transport.NewLocal()
	d := queue.NewDispatch(queueCap)
	store := conversation.NewStore()
	return &fixture{
		net:      net,
		dispatch: d,
		store:    store,
		mgr:      NewManager(net, d, store, nil),
	}
}

func (f *fixture) startTenant(t *testing.T, tenantID, accountID string) {
	t.Helper()
	f.net.RegisterAccount(accountID, "tok-"+accountID)
	err := f.mgr.Start(context.Background(), tenantID,
		model.Credentials{AccountID: accountID, Token: "tok-" + accountID},
		model.TenantConfig{TenantName: tenantID},
	)
	require.NoError(t, err)
}

func customerEvent(text string) model.IncomingEvent {
	return model.IncomingEvent{
		SenderID:   "cust-1",
		SenderName: "Ali",
		ChatTarget: "chat-1",
		Text:       text,
		Private:    true,
	}
}

func TestStartAndStatus(t *testing.T) {
	f := newFixture(t, 10)
	f.startTenant(t, "t1", "acct-1")

	st := f.mgr.Status("t1")
	assert.True(t, st.Running)
	assert.True(t, st.Connected)
}

func TestStartIsIdempotentWhileHealthy(t *testing.T) {
	f := newFixture(t, 10)
	f.startTenant(t, "t1", "acct-1")

	err := f.mgr.Start(context.Background(), "t1",
		model.Credentials{AccountID: "acct-1", Token: "tok-acct-1"},
		model.TenantConfig{})
	require.NoError(t, err)
	assert.True(t, f.mgr.Status("t1").Running)
}

func TestStartRejectsBadCredentials(t *testing.T) {
	f := newFixture(t, 10)
	f.net.RegisterAccount("acct-1", "good")

	err := f.mgr.Start(context.Background(), "t1",
		model.Credentials{AccountID: "acct-1", Token: "bad"},
		model.TenantConfig{})

	require.ErrorIs(t, err, model.ErrUnauthorized)
	assert.False(t, f.mgr.Status("t1").Running)
}

func TestStopRemovesSession(t *testing.T) {
	f := newFixture(t, 10)
	f.startTenant(t, "t1", "acct-1")

	f.mgr.Stop(context.Background(), "t1")

	st := f.mgr.Status("t1")
	assert.False(t, st.Running)
	assert.False(t, st.Connected)

	// Stopping again is a no-op.
	f.mgr.Stop(context.Background(), "t1")
}

func TestStatusOnUnknownTenantDoesNotMutate(t *testing.T) {
	f := newFixture(t, 10)

	st := f.mgr.Status("ghost")
	assert.Equal(t, model.SessionStatus{}, st)
	// A second call sees the exact same nothing.
	assert.Equal(t, st, f.mgr.Status("ghost"))
}

func TestUpdateConfigMergesFieldByField(t *testing.T) {
	f := newFixture(t, 10)
	f.net.RegisterAccount("acct-1", "tok-acct-1")
	require.NoError(t, f.mgr.Start(context.Background(), "t1",
		model.Credentials{AccountID: "acct-1", Token: "tok-acct-1"},
		model.TenantConfig{
			TenantName:         "Baghdad Lighting",
			City:               "Baghdad",
			MaxDiscountPercent: 10,
			ShippingByRegion:   map[string]int{"baghdad": 5000},
		}))

	city := "Basra"
	discount := 15.0
	require.NoError(t, f.mgr.UpdateConfig("t1", model.TenantConfigPatch{
		City:               &city,
		MaxDiscountPercent: &discount,
		ShippingByRegion:   map[string]int{"basra": 8000},
	}))

	cfg, ok := f.mgr.TenantConfig("t1")
	require.True(t, ok)
	assert.Equal(t, "Baghdad Lighting", cfg.TenantName, "untouched field must survive")
	assert.Equal(t, "Basra", cfg.City)
	assert.Equal(t, 15.0, cfg.MaxDiscountPercent)
	assert.Equal(t, map[string]int{"baghdad": 5000, "basra": 8000}, cfg.ShippingByRegion)
}

func TestUpdateConfigUnknownTenant(t *testing.T) {
	f := newFixture(t, 10)
	err := f.mgr.UpdateConfig("ghost", model.TenantConfigPatch{})
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestInboundEventBecomesJob(t *testing.T) {
	f := newFixture(t, 10)
	f.startTenant(t, "t1", "acct-1")

	require.NoError(t, f.net.Inject(context.Background(), "acct-1", customerEvent("how much is the lamp?")))

	job, err := f.dispatch.Dequeue(context.Background())
	require.NoError(t, err)
	assert.NotEmpty(t, job.ID)
	assert.Equal(t, "t1", job.TenantID)
	assert.Equal(t, "acct-1", job.SessionIdentity)
	assert.Equal(t, "cust-1", job.CustomerID)
	assert.Equal(t, "Ali", job.CustomerName)
	assert.Equal(t, "chat-1", job.ChatTarget)
	assert.Equal(t, "how much is the lamp?", job.Message)
	assert.False(t, job.EnqueuedAt.IsZero())
}

func TestNonTextAndNonPrivateEventsAreDropped(t *testing.T) {
	f := newFixture(t, 10)
	f.startTenant(t, "t1", "acct-1")
	ctx := context.Background()

	ev := customerEvent("   ")
	require.NoError(t, f.net.Inject(ctx, "acct-1", ev))

	ev = customerEvent("group chatter")
	ev.Private = false
	require.NoError(t, f.net.Inject(ctx, "acct-1", ev))

	assert.Equal(t, 0, f.dispatch.Len())
}

func TestFeedbackLoopPrevention(t *testing.T) {
	f := newFixture(t, 10)
	f.startTenant(t, "t1", "acct-1")
	f.startTenant(t, "t2", "acct-2")

	// A message arriving on t1's session whose sender is t2's bot account
	// must never become a job.
	ev := model.IncomingEvent{
		SenderID:   "acct-2",
		SenderName: "acct-2",
		ChatTarget: "acct-2",
		Text:       "hello there",
		Private:    true,
	}
	require.NoError(t, f.net.Inject(context.Background(), "acct-1", ev))

	assert.Equal(t, 0, f.dispatch.Len())

	// A genuine customer message still goes through.
	require.NoError(t, f.net.Inject(context.Background(), "acct-1", customerEvent("hi")))
	assert.Equal(t, 1, f.dispatch.Len())
}

func TestFullQueueBlocksEventHandling(t *testing.T) {
	f := newFixture(t, 1)
	f.startTenant(t, "t1", "acct-1")
	ctx := context.Background()

	require.NoError(t, f.net.Inject(ctx, "acct-1", customerEvent("one")))

	done := make(chan struct{})
	go func() {
		_ = f.net.Inject(ctx, "acct-1", customerEvent("two"))
		close(done)
	}()

	select {
	case <-done:
		t.Fatal("event handling returned while the queue was full")
	case <-time.After(50 * time.Millisecond):
	}

	_, err := f.dispatch.Dequeue(ctx)
	require.NoError(t, err)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("event handling did not resume after a slot freed")
	}
}

func TestReplyRoutesThroughOwningSession(t *testing.T) {
	f := newFixture(t, 10)
	f.startTenant(t, "t1", "acct-1")

	job := model.InboundJob{
		TenantID:        "t1",
		SessionIdentity: "acct-1",
		ChatTarget:      "chat-1",
	}
	require.NoError(t, f.mgr.Reply(context.Background(), job, "your price is 23750"))

	deliveries := f.net.Deliveries("acct-1")
	require.Len(t, deliveries, 1)
	assert.Equal(t, "chat-1", deliveries[0].ChatTarget)
	assert.Equal(t, "your price is 23750", deliveries[0].Text)
}

func TestReplyFailsWhenSessionGoneOrReplaced(t *testing.T) {
	f := newFixture(t, 10)
	f.startTenant(t, "t1", "acct-1")
	ctx := context.Background()

	job := model.InboundJob{TenantID: "t1", SessionIdentity: "acct-1", ChatTarget: "chat-1"}

	f.mgr.Stop(ctx, "t1")
	assert.ErrorIs(t, f.mgr.Reply(ctx, job, "text"), ErrSessionNotFound)

	// Restart under a different account: the stale job must not be delivered
	// through the new identity.
	f.startTenant(t, "t1", "acct-9")
	assert.Error(t, f.mgr.Reply(ctx, job, "text"))
	assert.Empty(t, f.net.Deliveries("acct-9"))
}

func TestClearConversationDropsStateAndTranscript(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	history := conversation.NewHistoryRepo(rdb, 0)

	net := transport.NewLocal()
	store := conversation.NewStore()
	mgr := NewManager(net, queue.NewDispatch(10), store, history)
	ctx := context.Background()

	_ = store.With("t1", "c1", func(c *conversation.Conversation) error {
		c.History = append(c.History, model.CustomerMessage("hi"))
		return nil
	})
	require.NoError(t, history.Append(ctx, "t1", "c1", model.CustomerMessage("hi")))

	require.NoError(t, mgr.ClearConversation(ctx, "t1", "c1"))

	_, ok := store.Snapshot("t1", "c1")
	assert.False(t, ok)
	n, err := history.Count(ctx, "t1", "c1")
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

package conversation

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/souqbot/server/internal/bot/model"
	"github.com/souqbot/server/internal/bot/negotiation"
)

func TestWithCreatesConversationLazily(t *testing.T) {
	s := NewStore()
	assert.Equal(t, 0, s.Len())

	err := s.With("t1", "c1", func(c *Conversation) error {
		assert.Equal(t, "t1", c.TenantID)
		assert.Equal(t, "c1", c.CustomerID)
		assert.Empty(t, c.History)
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 1, s.Len())
}

func TestConcurrentMutationStaysSerialized(t *testing.T) {
	s := NewStore()
	const n = 50

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = s.With("t1", "c1", func(c *Conversation) error {
				// Append the customer/agent pair non-atomically on purpose;
				// the per-key lock must keep the pairs adjacent.
				c.History = append(c.History, model.CustomerMessage("hi"))
				c.History = append(c.History, model.AgentMessage("hello"))
				return nil
			})
		}()
	}
	wg.Wait()

	snap, ok := s.Snapshot("t1", "c1")
	require.True(t, ok)
	require.Len(t, snap.History, 2*n)
	for i := 0; i < len(snap.History); i += 2 {
		assert.Equal(t, model.RoleCustomer, snap.History[i].Role)
		assert.Equal(t, model.RoleAgent, snap.History[i+1].Role)
	}
}

func TestConversationsAreIsolatedPerKey(t *testing.T) {
	s := NewStore()

	_ = s.With("t1", "c1", func(c *Conversation) error {
		c.History = append(c.History, model.CustomerMessage("one"))
		return nil
	})
	_ = s.With("t1", "c2", func(c *Conversation) error {
		c.History = append(c.History, model.CustomerMessage("two"))
		return nil
	})
	_ = s.With("t2", "c1", func(c *Conversation) error {
		c.History = append(c.History, model.CustomerMessage("three"))
		return nil
	})

	assert.Equal(t, 3, s.Len())
	snap, ok := s.Snapshot("t1", "c2")
	require.True(t, ok)
	require.Len(t, snap.History, 1)
	assert.Equal(t, "two", snap.History[0].Text)
}

func TestSnapshotIsACopy(t *testing.T) {
	s := NewStore()
	_ = s.With("t1", "c1", func(c *Conversation) error {
		c.History = append(c.History, model.CustomerMessage("hi"))
		c.Negotiation = &negotiation.State{ProductID: "p1", CurrentOffer: 100}
		c.Meta["k"] = "v"
		return nil
	})

	snap, ok := s.Snapshot("t1", "c1")
	require.True(t, ok)

	snap.History[0].Text = "mutated"
	snap.Negotiation.CurrentOffer = 1
	snap.Meta["k"] = "mutated"

	fresh, _ := s.Snapshot("t1", "c1")
	assert.Equal(t, "hi", fresh.History[0].Text)
	assert.Equal(t, 100.0, fresh.Negotiation.CurrentOffer)
	assert.Equal(t, "v", fresh.Meta["k"])
}

func TestClearDropsState(t *testing.T) {
	s := NewStore()
	_ = s.With("t1", "c1", func(c *Conversation) error {
		c.History = append(c.History, model.CustomerMessage("hi"))
		return nil
	})

	s.Clear("t1", "c1")

	_, ok := s.Snapshot("t1", "c1")
	assert.False(t, ok)
	assert.Equal(t, 0, s.Len())

	// Clearing a missing key is a no-op.
	s.Clear("t1", "nope")
}

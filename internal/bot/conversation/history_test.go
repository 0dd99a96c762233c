package conversation

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/souqbot/server/internal/bot/model"
)

func newTestHistoryRepo(t *testing.T, ttl time.Duration) (*HistoryRepo, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	return NewHistoryRepo(rdb, ttl), mr
}

func TestHistoryAppendAndLoadPreservesOrder(t *testing.T) {
	repo, _ := newTestHistoryRepo(t, time.Hour)
	ctx := context.Background()

	require.NoError(t, repo.Append(ctx, "t1", "c1",
		model.CustomerMessage("how much is the lamp?"),
		model.AgentMessage("25000"),
	))
	require.NoError(t, repo.Append(ctx, "t1", "c1", model.CustomerMessage("too much")))

	msgs, err := repo.Load(ctx, "t1", "c1")
	require.NoError(t, err)
	require.Len(t, msgs, 3)
	assert.Equal(t, model.RoleCustomer, msgs[0].Role)
	assert.Equal(t, "25000", msgs[1].Text)
	assert.Equal(t, "too much", msgs[2].Text)
}

func TestHistoryLoadMissingKeyReturnsEmpty(t *testing.T) {
	repo, _ := newTestHistoryRepo(t, time.Hour)

	msgs, err := repo.Load(context.Background(), "t1", "nobody")
	require.NoError(t, err)
	assert.Empty(t, msgs)
}

func TestHistoryAppendRefreshesTTL(t *testing.T) {
	repo, mr := newTestHistoryRepo(t, time.Minute)
	ctx := context.Background()

	require.NoError(t, repo.Append(ctx, "t1", "c1", model.CustomerMessage("hi")))
	assert.Equal(t, time.Minute, mr.TTL("tenant:t1:customer:c1:messages"))
}

func TestHistoryCountAndClear(t *testing.T) {
	repo, _ := newTestHistoryRepo(t, 0)
	ctx := context.Background()

	require.NoError(t, repo.Append(ctx, "t1", "c1",
		model.CustomerMessage("a"), model.AgentMessage("b")))

	n, err := repo.Count(ctx, "t1", "c1")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	require.NoError(t, repo.Clear(ctx, "t1", "c1"))

	n, err = repo.Count(ctx, "t1", "c1")
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestHistoryIsKeyedPerTenantAndCustomer(t *testing.T) {
	repo, _ := newTestHistoryRepo(t, 0)
	ctx := context.Background()

	require.NoError(t, repo.Append(ctx, "t1", "c1", model.CustomerMessage("one")))
	require.NoError(t, repo.Append(ctx, "t2", "c1", model.CustomerMessage("two")))

	msgs, err := repo.Load(ctx, "t1", "c1")
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "one", msgs[0].Text)
}

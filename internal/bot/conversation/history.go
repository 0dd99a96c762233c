package conversation

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/souqbot/server/internal/bot/model"
	errx "github.com/souqbot/server/internal/core/error"
	logx "github.com/souqbot/server/pkg/logger"
)

// HistoryRepo mirrors conversation history into Redis so transcripts survive
// process restarts and can be inspected by the management layer. The live
// store remains the in-memory Store; workers write here best-effort.
type HistoryRepo struct {
	rdb redis.Cmdable
	ttl time.Duration
}

func NewHistoryRepo(rdb redis.Cmdable, ttl time.Duration) *HistoryRepo {
	return &HistoryRepo{rdb: rdb, ttl: ttl}
}

func (r *HistoryRepo) historyKey(tenantID, customerID string) string {
	return fmt.Sprintf("tenant:%s:customer:%s:messages", tenantID, customerID)
}

// Append pushes messages onto the transcript and refreshes its TTL.
func (r *HistoryRepo) Append(ctx context.Context, tenantID, customerID string, msgs ...model.ChatMessage) error {
	if len(msgs) == 0 {
		return nil
	}
	key := r.historyKey(tenantID, customerID)

	vals := make([]interface{}, 0, len(msgs))
	for _, m := range msgs {
		b, err := json.Marshal(m)
		if err != nil {
			logx.Error().Err(err).Str("key", key).Msg("failed to marshal chat message")
			return fmt.Errorf("marshal chat message: %w", err)
		}
		vals = append(vals, b)
	}

	if err := r.rdb.RPush(ctx, key, vals...).Err(); err != nil {
		logx.Error().Err(err).Str("key", key).Msg("failed to push messages to redis")
		return errx.WrapRedis(err)
	}
	// extend TTL on touch
	if r.ttl > 0 {
		if ok, err := r.rdb.Expire(ctx, key, r.ttl).Result(); err != nil {
			logx.Error().Err(err).Str("key", key).Msg("failed to set expire")
			return errx.WrapRedis(err)
		} else if !ok {
			logx.Warn().Str("key", key).Dur("ttl", r.ttl).Msg("failed to set TTL on transcript key")
		}
	}
	return nil
}

// Load returns the full mirrored transcript, oldest first. A missing key
// yields an empty slice.
func (r *HistoryRepo) Load(ctx context.Context, tenantID, customerID string) ([]model.ChatMessage, error) {
	key := r.historyKey(tenantID, customerID)

	rows, err := r.rdb.LRange(ctx, key, 0, -1).Result()
	if err != nil {
		if err == redis.Nil {
			return []model.ChatMessage{}, nil
		}
		logx.Error().Err(err).Str("key", key).Msg("failed to load transcript from redis")
		return nil, errx.WrapRedis(err)
	}

	msgs := make([]model.ChatMessage, 0, len(rows))
	for i, s := range rows {
		var m model.ChatMessage
		if err := json.Unmarshal([]byte(s), &m); err != nil {
			logx.Error().Err(err).Str("key", key).Int("index", i).Msg("failed to unmarshal chat message")
			return nil, fmt.Errorf("unmarshal chat message at index %d: %w", i, err)
		}
		msgs = append(msgs, m)
	}
	return msgs, nil
}

// Clear removes the mirrored transcript.
func (r *HistoryRepo) Clear(ctx context.Context, tenantID, customerID string) error {
	key := r.historyKey(tenantID, customerID)
	if err := r.rdb.Del(ctx, key).Err(); err != nil {
		logx.Error().Err(err).Str("key", key).Msg("failed to delete transcript from redis")
		return errx.WrapRedis(err)
	}
	return nil
}

// Count returns the number of mirrored messages.
func (r *HistoryRepo) Count(ctx context.Context, tenantID, customerID string) (int, error) {
	key := r.historyKey(tenantID, customerID)
	n, err := r.rdb.LLen(ctx, key).Result()
	if err != nil {
		if err == redis.Nil {
			return 0, nil
		}
		logx.Error().Err(err).Str("key", key).Msg("failed to count transcript messages")
		return 0, errx.WrapRedis(err)
	}
	return int(n), nil
}

// internal/recorder/redis.go
package recorder

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/user/stickersmith/internal/types"
)

// counters expire two days after creation so abandoned users do not
// accumulate keys; the day boundary itself comes from the key name.
const counterTTL = 48 * time.Hour

// eventLogCap bounds the per-user event list kept in Redis.
const eventLogCap = 512

// RedisRecorder keeps usage counters and event logs in Redis, for
// deployments running more than one bot instance against shared state.
type RedisRecorder struct {
	client     *redis.Client
	dailyLimit int
}

// NewRedisRecorder connects a recorder to the given Redis instance.
// A dailyLimit of 0 disables the limit.
func NewRedisRecorder(addr, password string, db, dailyLimit int) *RedisRecorder {
	return &RedisRecorder{
		client: redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: password,
			DB:       db,
		}),
		dailyLimit: dailyLimit,
	}
}

// Ping verifies the connection is usable.
func (r *RedisRecorder) Ping(ctx context.Context) error {
	if err := r.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}
	return nil
}

// Close releases the underlying connection pool.
func (r *RedisRecorder) Close() error {
	return r.client.Close()
}

// usageKey identifies one user's counter for one UTC day.
func usageKey(userID int64, now time.Time) string {
	return fmt.Sprintf("usage:%d:%s", userID, now.UTC().Format("20060102"))
}

// eventsKey identifies one user's event list.
func eventsKey(userID int64) string {
	return fmt.Sprintf("events:%d", userID)
}

// CheckDailyLimit reports whether the user may start another generation today.
func (r *RedisRecorder) CheckDailyLimit(ctx context.Context, userID int64) (types.Decision, error) {
	if r.dailyLimit <= 0 {
		return types.Decision{Allowed: true}, nil
	}

	used, err := r.client.Get(ctx, usageKey(userID, time.Now())).Int()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return types.Decision{Allowed: true}, nil
		}
		return types.Decision{}, fmt.Errorf("read usage counter: %w", err)
	}

	if used >= r.dailyLimit {
		return types.Decision{
			Allowed: false,
			Reason:  fmt.Sprintf("daily limit of %d packs reached", r.dailyLimit),
		}, nil
	}
	return types.Decision{Allowed: true}, nil
}

// RecordGeneration increments the user's counter for the current UTC day.
func (r *RedisRecorder) RecordGeneration(ctx context.Context, userID int64) error {
	key := usageKey(userID, time.Now())

	used, err := r.client.Incr(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("increment usage counter: %w", err)
	}
	if used == 1 {
		if err := r.client.Expire(ctx, key, counterTTL).Err(); err != nil {
			return fmt.Errorf("set counter expiry: %w", err)
		}
	}
	return nil
}

// LogEvent pushes a usage event onto the user's capped event list.
func (r *RedisRecorder) LogEvent(ctx context.Context, userID int64, stage string, metadata map[string]any) error {
	event := &types.UsageEvent{
		ID:       types.NewEventID(),
		UserID:   userID,
		Stage:    stage,
		At:       time.Now().UTC(),
		Metadata: metadata,
	}

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	key := eventsKey(userID)
	pipe := r.client.TxPipeline()
	pipe.LPush(ctx, key, data)
	pipe.LTrim(ctx, key, 0, eventLogCap-1)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("append event: %w", err)
	}
	return nil
}

// Tail returns the last N usage events for the given user, oldest first.
func (r *RedisRecorder) Tail(ctx context.Context, userID int64, limit int) ([]*types.UsageEvent, error) {
	raw, err := r.client.LRange(ctx, eventsKey(userID), 0, int64(limit)-1).Result()
	if err != nil {
		return nil, fmt.Errorf("read events: %w", err)
	}

	// LPush stores newest first; reverse to oldest-first for display.
	events := make([]*types.UsageEvent, 0, len(raw))
	for i := len(raw) - 1; i >= 0; i-- {
		var event types.UsageEvent
		if err := json.Unmarshal([]byte(raw[i]), &event); err != nil {
			return nil, fmt.Errorf("unmarshal event: %w", err)
		}
		events = append(events, &event)
	}
	return events, nil
}

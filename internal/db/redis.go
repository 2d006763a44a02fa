package db

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/redis/go-redis/extra/redisotel/v9"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// ErrNoPayload is returned when no payload is stored for a slot.
var ErrNoPayload = errors.New("no payload stored")

// ErrNilRedisStore is returned when a RedisStore pointer is nil or uninitialized.
var ErrNilRedisStore = errors.New("redis store is nil")

// RedisStore keeps per-slot edit payloads in Redis under a page session.
type RedisStore struct {
	Client  *redis.Client
	Session string
	TTL     time.Duration
}

// InitRedis initializes a Redis client and returns a RedisStore scoped to session.
func InitRedis(ctx context.Context, addr, session string, ttl time.Duration) (*RedisStore, error) {
	rs := NewRedisStore(redis.NewClient(&redis.Options{Addr: addr}), session, ttl)

	// Add OpenTelemetry instrumentation to Redis client
	if err := redisotel.InstrumentTracing(rs.Client); err != nil {
		return nil, fmt.Errorf("failed to instrument redis tracing: %w", err)
	}

	if err := rs.Client.Ping(ctx).Err(); err != nil {
		rs.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	zap.L().Info("Connected to Redis", zap.String("addr", addr), zap.String("session", session))
	return rs, nil
}

// NewRedisStore wraps an existing client.
func NewRedisStore(client *redis.Client, session string, ttl time.Duration) *RedisStore {
	return &RedisStore{Client: client, Session: session, TTL: ttl}
}

func (r *RedisStore) check() error {
	if r == nil || r.Client == nil {
		return ErrNilRedisStore
	}
	return nil
}

func (r *RedisStore) payloadKey(slot string) string {
	return fmt.Sprintf("embedpool:payload:%s:%s", r.Session, slot)
}

// SavePayload stores the payload for slot, refreshing its TTL.
func (r *RedisStore) SavePayload(ctx context.Context, slot, payload string) error {
	if err := r.check(); err != nil {
		return err
	}
	if err := r.Client.Set(ctx, r.payloadKey(slot), payload, r.TTL).Err(); err != nil {
		return fmt.Errorf("save payload %s: %w", slot, err)
	}
	return nil
}

// LoadPayload returns the payload for slot or ErrNoPayload.
func (r *RedisStore) LoadPayload(ctx context.Context, slot string) (string, error) {
	if err := r.check(); err != nil {
		return "", err
	}
	val, err := r.Client.Get(ctx, r.payloadKey(slot)).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrNoPayload
	}
	if err != nil {
		return "", fmt.Errorf("load payload %s: %w", slot, err)
	}
	return val, nil
}

// ClearPayload deletes the payload for slot.
func (r *RedisStore) ClearPayload(ctx context.Context, slot string) error {
	if err := r.check(); err != nil {
		return err
	}
	if err := r.Client.Del(ctx, r.payloadKey(slot)).Err(); err != nil {
		return fmt.Errorf("clear payload %s: %w", slot, err)
	}
	return nil
}

// SessionSlots lists the slots with a stored payload in this session.
func (r *RedisStore) SessionSlots(ctx context.Context) ([]string, error) {
	if err := r.check(); err != nil {
		return nil, err
	}
	prefix := r.payloadKey("")
	var slots []string
	iter := r.Client.Scan(ctx, 0, prefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		slots = append(slots, strings.TrimPrefix(iter.Val(), prefix))
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("scan session %s: %w", r.Session, err)
	}
	sort.Strings(slots)
	return slots, nil
}

// FlushSession deletes every payload of this session and returns how many
// were removed.
func (r *RedisStore) FlushSession(ctx context.Context) (int, error) {
	slots, err := r.SessionSlots(ctx)
	if err != nil {
		return 0, err
	}
	if len(slots) == 0 {
		return 0, nil
	}
	keys := make([]string, len(slots))
	for i, slot := range slots {
		keys[i] = r.payloadKey(slot)
	}
	n, err := r.Client.Del(ctx, keys...).Result()
	if err != nil {
		return 0, fmt.Errorf("flush session %s: %w", r.Session, err)
	}
	return int(n), nil
}

// Close shuts down the Redis client.
func (r *RedisStore) Close() {
	if r != nil && r.Client != nil {
		if err := r.Client.Close(); err != nil {
			zap.L().Error("redis close", zap.Error(err))
		}
	}
}

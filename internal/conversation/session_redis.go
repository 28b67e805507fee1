package conversation

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

const sessionKeyPrefix = "session:"

// RedisSessionStore keeps each session as a Redis list of JSON turns. Every
// touch refreshes the key's TTL, so idle sessions expire on their own.
type RedisSessionStore struct {
	redis  *redis.Client
	ttl    time.Duration
	tracer trace.Tracer
}

func NewRedisSessionStore(client *redis.Client, ttl time.Duration) *RedisSessionStore {
	if client == nil {
		panic("conversation: redis client cannot be nil")
	}
	if ttl <= 0 {
		ttl = defaultSessionIdleTTL
	}
	return &RedisSessionStore{
		redis:  client,
		ttl:    ttl,
		tracer: otel.Tracer("clinicagent.internal.conversation.sessions"),
	}
}

func (s *RedisSessionStore) key(sessionKey string) string {
	return sessionKeyPrefix + sessionKey
}

// Get implements SessionStore.
func (s *RedisSessionStore) Get(ctx context.Context, sessionKey string) ([]Turn, error) {
	ctx, span := s.tracer.Start(ctx, "conversation.session_get")
	defer span.End()

	key := s.key(sessionKey)
	raw, err := s.redis.LRange(ctx, key, 0, -1).Result()
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("conversation: load session: %w", err)
	}
	turns := make([]Turn, 0, len(raw))
	for _, item := range raw {
		var t Turn
		if err := json.Unmarshal([]byte(item), &t); err != nil {
			span.RecordError(err)
			return nil, fmt.Errorf("conversation: decode turn: %w", err)
		}
		turns = append(turns, t)
	}
	if len(raw) > 0 {
		if err := s.redis.Expire(ctx, key, s.ttl).Err(); err != nil {
			span.RecordError(err)
		}
	}
	return turns, nil
}

// Append implements SessionStore; RPUSH keeps appends atomic per session.
func (s *RedisSessionStore) Append(ctx context.Context, sessionKey string, turn Turn) error {
	ctx, span := s.tracer.Start(ctx, "conversation.session_append")
	defer span.End()

	if turn.At.IsZero() {
		turn.At = time.Now().UTC()
	}
	data, err := json.Marshal(turn)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("conversation: encode turn: %w", err)
	}
	key := s.key(sessionKey)
	_, err = s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.RPush(ctx, key, data)
		pipe.Expire(ctx, key, s.ttl)
		return nil
	})
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("conversation: append turn: %w", err)
	}
	return nil
}

// Clear implements SessionStore.
func (s *RedisSessionStore) Clear(ctx context.Context, sessionKey string) error {
	if err := s.redis.Del(ctx, s.key(sessionKey)).Err(); err != nil {
		return fmt.Errorf("conversation: clear session: %w", err)
	}
	return nil
}

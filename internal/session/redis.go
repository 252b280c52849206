// ABOUTME: Redis backend for the credential store, shared by every client process on a host
// ABOUTME: Keeps token and role in one hash and writes both fields in a single transaction

package session

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// DefaultRedisPrefix namespaces the session hash.
const DefaultRedisPrefix = "gatekeeper"

// RedisBackend persists the session as a Redis hash.
type RedisBackend struct {
	client *redis.Client
	key    string
}

// NewRedisBackend wraps an existing client. The hash lives at <prefix>:session.
func NewRedisBackend(client *redis.Client, prefix string) *RedisBackend {
	if prefix == "" {
		prefix = DefaultRedisPrefix
	}
	return &RedisBackend{client: client, key: prefix + ":session"}
}

// DialRedis parses a redis:// URL and returns a backend with its own client.
func DialRedis(url, prefix string) (*RedisBackend, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parsing redis url: %w", err)
	}
	return NewRedisBackend(redis.NewClient(opts), prefix), nil
}

// Load reads both fields. A missing hash is the anonymous session.
func (b *RedisBackend) Load(ctx context.Context) (Session, error) {
	values, err := b.client.HMGet(ctx, b.key, KeyToken, KeyRole).Result()
	if err != nil {
		return Session{}, fmt.Errorf("reading session hash: %w", err)
	}

	var sess Session
	if token, ok := values[0].(string); ok {
		sess.Token = token
	}
	if role, ok := values[1].(string); ok {
		sess.Role = Role(role)
	}
	return sess, nil
}

// Save replaces the hash in one MULTI/EXEC so readers never see half a pair.
func (b *RedisBackend) Save(ctx context.Context, s Session) error {
	fields := map[string]any{}
	if s.Token != "" {
		fields[KeyToken] = s.Token
	}
	if s.Role != "" {
		fields[KeyRole] = string(s.Role)
	}

	_, err := b.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, b.key)
		if len(fields) > 0 {
			pipe.HSet(ctx, b.key, fields)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("writing session hash: %w", err)
	}
	return nil
}

// Delete removes the hash.
func (b *RedisBackend) Delete(ctx context.Context) error {
	if err := b.client.Del(ctx, b.key).Err(); err != nil {
		return fmt.Errorf("deleting session hash: %w", err)
	}
	return nil
}

// Close closes the underlying client.
func (b *RedisBackend) Close() error {
	return b.client.Close()
}

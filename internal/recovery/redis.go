package recovery

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	redisKeyPrefix = "recovery:"
	// Entries outlive their expiry briefly so an expired token reads as Expired
	// rather than unknown.
	expiredRetention = 10 * time.Minute
)

// NewRedisClient connects to Redis and verifies the connection.
func NewRedisClient(ctx context.Context, redisURL string) (*redis.Client, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	opt.PoolSize = 10
	opt.MinIdleConns = 2
	opt.MaxRetries = 3
	opt.DialTimeout = 5 * time.Second
	opt.ReadTimeout = 3 * time.Second
	opt.WriteTimeout = 3 * time.Second

	client := redis.NewClient(opt)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

// RedisStore keeps tokens in Redis so they are shared between instances.
type RedisStore struct {
	client *redis.Client
	now    func() time.Time
}

// NewRedisStore wraps a connected client.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client, now: time.Now}
}

// Put stores entry with a key TTL derived from its expiry.
func (s *RedisStore) Put(ctx context.Context, token string, entry Entry) error {
	payload, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	ttl := entry.ExpiresAt.Sub(s.now()) + expiredRetention
	if ttl <= 0 {
		ttl = expiredRetention
	}
	return s.client.Set(ctx, redisKey(token), payload, ttl).Err()
}

func (s *RedisStore) Get(ctx context.Context, token string) (Entry, error) {
	payload, err := s.client.Get(ctx, redisKey(token)).Bytes()
	return decodeEntry(payload, err)
}

// Take reads and deletes the entry in one GETDEL.
func (s *RedisStore) Take(ctx context.Context, token string) (Entry, error) {
	payload, err := s.client.GetDel(ctx, redisKey(token)).Bytes()
	return decodeEntry(payload, err)
}

func (s *RedisStore) Delete(ctx context.Context, token string) error {
	return s.client.Del(ctx, redisKey(token)).Err()
}

func decodeEntry(payload []byte, err error) (Entry, error) {
	if errors.Is(err, redis.Nil) {
		return Entry{}, ErrTokenNotFound
	}
	if err != nil {
		return Entry{}, err
	}
	var entry Entry
	if err := json.Unmarshal(payload, &entry); err != nil {
		return Entry{}, fmt.Errorf("decode recovery entry: %w", err)
	}
	return entry, nil
}

func redisKey(token string) string {
	return redisKeyPrefix + token
}

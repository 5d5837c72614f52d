package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore persists clients and pending codes in redis, namespaced
// under prefix. GETDEL makes code consumption atomic across broker
// instances sharing the same redis.
type RedisStore struct {
	client *redis.Client
	prefix string
}

var _ ClientStore = (*RedisStore)(nil)
var _ CodeStore = (*RedisStore)(nil)

func NewRedisStore(url, prefix string) (*RedisStore, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	if prefix == "" {
		prefix = "caisse-mcp:oauth"
	}
	return &RedisStore{client: client, prefix: prefix}, nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}

func (s *RedisStore) clientKey(clientID string) string {
	return s.prefix + ":clients:" + clientID
}

func (s *RedisStore) codeKey(code string) string {
	return s.prefix + ":codes:" + code
}

func (s *RedisStore) SaveClient(ctx context.Context, client *Client) error {
	data, err := json.Marshal(client)
	if err != nil {
		return fmt.Errorf("marshal client: %w", err)
	}
	if err := s.client.Set(ctx, s.clientKey(client.ID), data, 0).Err(); err != nil {
		return fmt.Errorf("save client: %w", err)
	}
	return nil
}

func (s *RedisStore) GetClient(ctx context.Context, clientID string) (*Client, error) {
	data, err := s.client.Get(ctx, s.clientKey(clientID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get client: %w", err)
	}
	var client Client
	if err := json.Unmarshal(data, &client); err != nil {
		return nil, fmt.Errorf("unmarshal client: %w", err)
	}
	return &client, nil
}

func (s *RedisStore) DeleteClient(ctx context.Context, clientID string) error {
	if err := s.client.Del(ctx, s.clientKey(clientID)).Err(); err != nil {
		return fmt.Errorf("delete client: %w", err)
	}
	return nil
}

func (s *RedisStore) SaveCode(ctx context.Context, code string, record *PendingCode, ttl time.Duration) error {
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshal pending code: %w", err)
	}
	if err := s.client.Set(ctx, s.codeKey(code), data, ttl).Err(); err != nil {
		return fmt.Errorf("save pending code: %w", err)
	}
	return nil
}

func (s *RedisStore) ConsumeCode(ctx context.Context, code string) (*PendingCode, error) {
	data, err := s.client.GetDel(ctx, s.codeKey(code)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("consume pending code: %w", err)
	}
	var record PendingCode
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("unmarshal pending code: %w", err)
	}
	return &record, nil
}

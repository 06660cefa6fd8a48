// Package redis stores credentials in Redis so several processes can share
// one login. Entries expire with the token they hold.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/aussiebroadwan/graphconnect/internal/store"
	"github.com/aussiebroadwan/graphconnect/pkg/graphsdk"
)

const DefaultPrefix = "graphctl:credentials:"

type Config struct {
	URL    string
	Prefix string
}

type Store struct {
	client *redis.Client
	prefix string
	now    func() time.Time
}

var (
	_ store.Credentials = (*Store)(nil)
	_ store.Pinger      = (*Store)(nil)
)

type entry struct {
	AccessToken string    `json:"access_token"`
	ExpiresAt   time.Time `json:"expires_at,omitzero"`
	Permissions []string  `json:"permissions,omitempty"`
}

// NewStore connects to cfg.URL and pings it before returning.
func NewStore(ctx context.Context, cfg Config) (*Store, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse redis URL: %w", err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	prefix := cfg.Prefix
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &Store{client: client, prefix: prefix, now: time.Now}, nil
}

func (s *Store) Load(ctx context.Context, key string) (graphsdk.Credentials, error) {
	raw, err := s.client.Get(ctx, s.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return graphsdk.Credentials{}, store.ErrNotFound
	}
	if err != nil {
		return graphsdk.Credentials{}, err
	}

	var e entry
	if err := json.Unmarshal(raw, &e); err != nil {
		return graphsdk.Credentials{}, fmt.Errorf("redis: decode %q: %w", key, err)
	}
	return graphsdk.Credentials{
		AccessToken: e.AccessToken,
		ExpiresAt:   e.ExpiresAt,
		Permissions: e.Permissions,
	}, nil
}

// Save writes c with a TTL matching the token lifetime. Tokens without an
// expiry are kept until deleted; already expired tokens are removed.
func (s *Store) Save(ctx context.Context, key string, c graphsdk.Credentials) error {
	if c.AccessToken == "" {
		return s.Delete(ctx, key)
	}

	var ttl time.Duration
	if !c.ExpiresAt.IsZero() {
		ttl = c.ExpiresAt.Sub(s.now())
		if ttl <= 0 {
			return s.Delete(ctx, key)
		}
	}

	data, err := json.Marshal(entry{
		AccessToken: c.AccessToken,
		ExpiresAt:   c.ExpiresAt,
		Permissions: c.Permissions,
	})
	if err != nil {
		return err
	}
	return s.client.Set(ctx, s.prefix+key, data, ttl).Err()
}

func (s *Store) Delete(ctx context.Context, key string) error {
	return s.client.Del(ctx, s.prefix+key).Err()
}

// Ping checks that the Redis connection is healthy.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *Store) Close() error {
	return s.client.Close()
}

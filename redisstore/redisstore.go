// SPDX-License-Identifier: GPL-3.0-or-later

// Package redisstore implements an ipquery cache store backed by Redis.
package redisstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bassosimone/ipquery"
	"github.com/redis/go-redis/v9"
)

// DefaultPrefix is the key prefix used when [New] receives an empty prefix.
const DefaultPrefix = "ipquery:"

// Store is a [ipquery.CacheStore] backed by Redis.
//
// Construct using [New].
type Store struct {
	client redis.UniversalClient
	prefix string
}

var _ ipquery.CacheStore = &Store{}

// New returns a new [*Store] using client and prefixing every key with prefix.
func New(client redis.UniversalClient, prefix string) *Store {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &Store{client: client, prefix: prefix}
}

// Get implements [ipquery.CacheStore].
func (s *Store) Get(ctx context.Context, key string) ([]byte, bool, error) {
	data, err := s.client.Get(ctx, s.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redisstore: get %q: %w", key, err)
	}
	return data, true, nil
}

// Set implements [ipquery.CacheStore]. A non-positive ttl never expires.
func (s *Store) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl < 0 {
		ttl = 0
	}
	if err := s.client.Set(ctx, s.prefix+key, value, ttl).Err(); err != nil {
		return fmt.Errorf("redisstore: set %q: %w", key, err)
	}
	return nil
}

// Delete implements [ipquery.CacheStore].
func (s *Store) Delete(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, s.prefix+key).Err(); err != nil {
		return fmt.Errorf("redisstore: delete %q: %w", key, err)
	}
	return nil
}

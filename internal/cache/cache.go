// Package cache provides TTL caches backed by memory or Redis, plus typed
// JSON stores layered over them.
package cache

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"
)

// NewBackend returns a Redis backend when redisURL is set and reachable,
// otherwise an in-memory cache.
func NewBackend(ctx context.Context, redisURL, prefix string) CacheBackend {
	if redisURL != "" {
		slog.Info("initializing Redis cache")
		rc, err := NewRedisCache(ctx, redisURL, prefix)
		if err == nil {
			slog.Info("Redis cache initialized")
			return rc
		}
		slog.Warn("Redis connection failed, using memory cache", "error", err)
	}
	slog.Info("initializing in-memory cache")
	return NewMemoryCache(10000, 2*time.Minute)
}

// Store is a JSON-encoded view of a backend under a key namespace.
type Store[T any] struct {
	backend   CacheBackend
	namespace string
}

// NewStore creates a typed store. Keys are namespaced as "<namespace>:<key>".
func NewStore[T any](backend CacheBackend, namespace string) *Store[T] {
	return &Store[T]{backend: backend, namespace: namespace}
}

// Get returns the cached value. Undecodable entries are treated as misses.
func (s *Store[T]) Get(ctx context.Context, key string) (*T, bool, error) {
	data, found, err := s.backend.Get(ctx, s.namespace+":"+key)
	if err != nil || !found {
		return nil, false, err
	}
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		slog.Debug("cache: dropping undecodable entry", "namespace", s.namespace, "error", err)
		return nil, false, nil
	}
	return &v, true, nil
}

// Set stores v for ttl.
func (s *Store[T]) Set(ctx context.Context, key string, v *T, ttl time.Duration) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return s.backend.Set(ctx, s.namespace+":"+key, data, ttl)
}

// Delete removes key.
func (s *Store[T]) Delete(ctx context.Context, key string) error {
	return s.backend.Delete(ctx, s.namespace+":"+key)
}

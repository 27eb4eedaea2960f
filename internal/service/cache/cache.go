// Package cache adapts the shared cache backends to the byte-oriented
// surface the API read paths use for response caching.
package cache

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"

	pkgcache "WhalePulse/pkg/cache"
)

// BytesCache is a minimal cache API storing raw bytes with TTL.
type BytesCache interface {
	GetBytes(key string) (b []byte, ok bool, err error)
	SetBytes(key string, value []byte, ttl time.Duration) error
}

// StoreCache wraps any shared cache backend behind BytesCache. Values are
// stored as strings so every backend round-trips them unchanged.
type StoreCache struct {
	svc pkgcache.Service
}

func NewStoreCache(svc pkgcache.Service) *StoreCache {
	return &StoreCache{svc: svc}
}

func (s *StoreCache) GetBytes(key string) ([]byte, bool, error) {
	var v string
	if err := s.svc.Get(context.Background(), key, &v); err != nil {
		if errors.Is(err, pkgcache.ErrCacheMiss) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return []byte(v), true, nil
}

func (s *StoreCache) SetBytes(key string, value []byte, ttl time.Duration) error {
	return s.svc.Set(context.Background(), key, string(value), ttl)
}

// RedisConfig carries the connection settings for a Redis-backed cache.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

const memoryEntries = 2048

// NewMemoryBacked builds an in-process cache. Used when Redis is disabled.
func NewMemoryBacked() *StoreCache {
	return NewStoreCache(pkgcache.NewMemoryCache(
		pkgcache.WithMemoryMaxSize(memoryEntries),
		pkgcache.WithMemoryCleanup(time.Minute),
	))
}

// NewRedisBacked builds a layered cache with an in-process L1 in front of
// Redis, so repeated reads of hot keys skip the network.
func NewRedisBacked(cfg RedisConfig) (*StoreCache, error) {
	host, port := splitAddr(cfg.Addr)
	redisCache, err := pkgcache.NewRedisCache(
		pkgcache.WithRedisHost(host),
		pkgcache.WithRedisPort(port),
		pkgcache.WithRedisPassword(cfg.Password),
		pkgcache.WithRedisDB(cfg.DB),
	)
	if err != nil {
		return nil, fmt.Errorf("redis cache: %w", err)
	}
	layered := pkgcache.NewLayeredCache(redisCache, pkgcache.WithLayeredMemorySize(memoryEntries))
	return NewStoreCache(layered), nil
}

func splitAddr(addr string) (string, int) {
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return addr, 6379
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return host, 6379
	}
	return host, port
}

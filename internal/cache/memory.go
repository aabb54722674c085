package cache

import (
	"context"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// memoryClient implementa Client sobre go-cache.
// Útil para desarrollo y testing; no sobrevive reinicios ni réplicas.
type memoryClient struct {
	prefix string
	c      *gocache.Cache
}

// NewMemory crea un cliente de cache en memoria.
func NewMemory(prefix string) *memoryClient {
	return &memoryClient{
		prefix: prefix,
		c:      gocache.New(gocache.NoExpiration, time.Minute),
	}
}

func (m *memoryClient) key(k string) string {
	if m.prefix == "" {
		return k
	}
	return m.prefix + ":" + k
}

func (m *memoryClient) Get(_ context.Context, key string) (string, error) {
	v, ok := m.c.Get(m.key(key))
	if !ok {
		return "", ErrNotFound
	}
	s, _ := v.(string)
	return s, nil
}

func (m *memoryClient) Set(_ context.Context, key, value string, ttl time.Duration) error {
	if ttl == 0 {
		ttl = gocache.NoExpiration
	}
	m.c.Set(m.key(key), value, ttl)
	return nil
}

func (m *memoryClient) Add(_ context.Context, key, value string, ttl time.Duration) (bool, error) {
	if ttl == 0 {
		ttl = gocache.NoExpiration
	}
	// go-cache.Add falla si la key ya existe; es exactamente SETNX.
	if err := m.c.Add(m.key(key), value, ttl); err != nil {
		return false, nil
	}
	return true, nil
}

func (m *memoryClient) Increment(_ context.Context, key string, ttl time.Duration) (int64, error) {
	if ttl == 0 {
		ttl = gocache.NoExpiration
	}
	k := m.key(key)
	// Add falla si existe: el primer hit fija el TTL, los siguientes suman.
	if err := m.c.Add(k, int64(1), ttl); err == nil {
		return 1, nil
	}
	n, err := m.c.IncrementInt64(k, 1)
	if err != nil {
		// Expiró entre Add e Increment; arrancar ventana nueva.
		m.c.Set(k, int64(1), ttl)
		return 1, nil
	}
	return n, nil
}

func (m *memoryClient) Delete(_ context.Context, key string) error {
	m.c.Delete(m.key(key))
	return nil
}

func (m *memoryClient) Ping(_ context.Context) error { return nil }

func (m *memoryClient) Close() error {
	m.c.Flush()
	return nil
}

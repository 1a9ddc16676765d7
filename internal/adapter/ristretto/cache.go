// Package ristretto keeps session snapshots in process memory as the L1 tier.
package ristretto

import (
	"context"
	"fmt"
	"time"

	"github.com/dgraph-io/ristretto/v2"
)

// averageSnapshotBytes sizes the admission counters for typical snapshots.
const averageSnapshotBytes = 2 << 10

// Cache is a bounded in-process cache. Values are charged by their length.
type Cache struct {
	c *ristretto.Cache[string, []byte]
}

// New creates a cache holding at most maxMB megabytes of values.
func New(maxMB int64) (*Cache, error) {
	maxCost := maxMB << 20
	counters := maxCost / averageSnapshotBytes * 10
	if counters < 1000 {
		counters = 1000
	}
	c, err := ristretto.NewCache(&ristretto.Config[string, []byte]{
		NumCounters: counters,
		MaxCost:     maxCost,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("ristretto: %w", err)
	}
	return &Cache{c: c}, nil
}

func (c *Cache) Get(_ context.Context, key string) ([]byte, bool, error) {
	val, found := c.c.Get(key)
	if !found {
		return nil, false, nil
	}
	return val, true, nil
}

// Set stores value and waits until it is visible to Get. A zero ttl keeps
// the value until it is evicted.
func (c *Cache) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	c.c.SetWithTTL(key, value, int64(len(value)), ttl)
	c.c.Wait()
	return nil
}

func (c *Cache) Delete(_ context.Context, key string) error {
	c.c.Del(key)
	return nil
}

// Close releases the cache's goroutines.
func (c *Cache) Close() {
	c.c.Close()
}

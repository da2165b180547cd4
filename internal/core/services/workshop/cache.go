package workshop

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/surveylab/coding-service/internal/core/domain"
)

// ErrCacheMiss is returned for absent and expired entries alike; callers
// cannot tell the two apart
var ErrCacheMiss = errors.New("classified data not found")

// CacheMeta describes where a cached classified-data payload came from
type CacheMeta struct {
	ColumnName string            `json:"column_name"`
	FileName   string            `json:"file_name"`
	Engine     domain.EngineName `json:"engine"`
	SampleSize int               `json:"sample_size"`
	CreatedAt  time.Time         `json:"created_at"`
}

// CachedClassifiedData is one cached detail payload
type CachedClassifiedData struct {
	Data domain.ClassifiedData `json:"classified_data"`
	Meta CacheMeta             `json:"meta"`
}

// ResultCache stores large classified-data payloads under opaque ids
// with a fixed lifetime. Put never reuses an id, so entries are
// write-once. Implemented by the Redis classified-data store.
type ResultCache interface {
	Put(ctx context.Context, data domain.ClassifiedData, meta CacheMeta) (string, error)
	Get(ctx context.Context, cacheID string) (*CachedClassifiedData, error)

	// StoreRun and GetRun address a cluster test run's payload by its
	// persistent run id instead of an ad-hoc token
	StoreRun(ctx context.Context, runID uint, data domain.ClassifiedData, meta CacheMeta) error
	GetRun(ctx context.Context, runID uint) (*CachedClassifiedData, error)
}

type memoryEntry struct {
	payload   CachedClassifiedData
	expiresAt time.Time
}

// MemoryCache is an in-process ResultCache used when Redis is not
// configured and in tests. now is swappable so expiry is testable.
type MemoryCache struct {
	mu      sync.RWMutex
	ttl     time.Duration
	entries map[string]memoryEntry
	now     func() time.Time
}

// NewMemoryCache creates an in-memory cache with the given TTL
func NewMemoryCache(ttl time.Duration) *MemoryCache {
	return &MemoryCache{
		ttl:     ttl,
		entries: make(map[string]memoryEntry),
		now:     time.Now,
	}
}

// SetClock overrides the cache's clock, for expiry tests
func (c *MemoryCache) SetClock(now func() time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = now
}

func (c *MemoryCache) Put(ctx context.Context, data domain.ClassifiedData, meta CacheMeta) (string, error) {
	id := uuid.NewString()
	c.store(id, data, meta)
	return id, nil
}

func (c *MemoryCache) Get(ctx context.Context, cacheID string) (*CachedClassifiedData, error) {
	return c.load(cacheID)
}

func (c *MemoryCache) StoreRun(ctx context.Context, runID uint, data domain.ClassifiedData, meta CacheMeta) error {
	c.store(runKey(runID), data, meta)
	return nil
}

func (c *MemoryCache) GetRun(ctx context.Context, runID uint) (*CachedClassifiedData, error) {
	return c.load(runKey(runID))
}

func (c *MemoryCache) store(key string, data domain.ClassifiedData, meta CacheMeta) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if meta.CreatedAt.IsZero() {
		meta.CreatedAt = c.now()
	}
	c.entries[key] = memoryEntry{
		payload:   CachedClassifiedData{Data: data, Meta: meta},
		expiresAt: c.now().Add(c.ttl),
	}
}

func (c *MemoryCache) load(key string) (*CachedClassifiedData, error) {
	c.mu.RLock()
	entry, ok := c.entries[key]
	now := c.now()
	c.mu.RUnlock()

	if !ok || !entry.expiresAt.After(now) {
		return nil, ErrCacheMiss
	}
	payload := entry.payload
	return &payload, nil
}

func runKey(runID uint) string {
	return fmt.Sprintf("run:%d", runID)
}

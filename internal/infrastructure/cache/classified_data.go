package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/surveylab/coding-service/internal/core/domain"
	"github.com/surveylab/coding-service/internal/core/services/workshop"
)

const (
	classifiedRunPrefix  = "classified_data:"
	classifiedTempPrefix = "classified_temp:"
)

// ClassifiedDataStore keeps classified-data detail payloads in Redis
// with a bounded lifetime. Run payloads are keyed by their cluster test
// run id; ad-hoc payloads get a random token. Either way an expired
// entry reads the same as one that never existed.
type ClassifiedDataStore struct {
	redis  *RedisCache
	ttl    time.Duration
	logger *slog.Logger
}

// NewClassifiedDataStore creates the Redis-backed result cache
func NewClassifiedDataStore(redis *RedisCache, ttlDays int, logger *slog.Logger) *ClassifiedDataStore {
	if ttlDays <= 0 {
		ttlDays = 30
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ClassifiedDataStore{
		redis:  redis,
		ttl:    time.Duration(ttlDays) * 24 * time.Hour,
		logger: logger,
	}
}

// Put stores an ad-hoc payload under a fresh opaque token
func (s *ClassifiedDataStore) Put(ctx context.Context, data domain.ClassifiedData, meta workshop.CacheMeta) (string, error) {
	id := uuid.NewString()
	if err := s.write(ctx, classifiedTempPrefix+id, data, meta); err != nil {
		return "", err
	}
	return id, nil
}

// Get retrieves an ad-hoc payload by its token
func (s *ClassifiedDataStore) Get(ctx context.Context, cacheID string) (*workshop.CachedClassifiedData, error) {
	return s.read(ctx, classifiedTempPrefix+cacheID)
}

// StoreRun stores a cluster test run's payload under its run id
func (s *ClassifiedDataStore) StoreRun(ctx context.Context, runID uint, data domain.ClassifiedData, meta workshop.CacheMeta) error {
	return s.write(ctx, fmt.Sprintf("%s%d", classifiedRunPrefix, runID), data, meta)
}

// GetRun retrieves a cluster test run's payload
func (s *ClassifiedDataStore) GetRun(ctx context.Context, runID uint) (*workshop.CachedClassifiedData, error) {
	return s.read(ctx, fmt.Sprintf("%s%d", classifiedRunPrefix, runID))
}

func (s *ClassifiedDataStore) write(ctx context.Context, key string, data domain.ClassifiedData, meta workshop.CacheMeta) error {
	if meta.CreatedAt.IsZero() {
		meta.CreatedAt = time.Now().UTC()
	}

	payload, err := json.Marshal(workshop.CachedClassifiedData{Data: data, Meta: meta})
	if err != nil {
		return fmt.Errorf("failed to encode classified data: %w", err)
	}

	if err := s.redis.Set(ctx, key, payload, s.ttl); err != nil {
		return fmt.Errorf("failed to cache classified data: %w", err)
	}

	s.logger.Debug("classified data cached",
		slog.String("key", key),
		slog.Int("codes", len(data)))
	return nil
}

func (s *ClassifiedDataStore) read(ctx context.Context, key string) (*workshop.CachedClassifiedData, error) {
	raw, err := s.redis.GetBytes(ctx, key)
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, workshop.ErrCacheMiss
		}
		return nil, fmt.Errorf("failed to read classified data: %w", err)
	}

	var payload workshop.CachedClassifiedData
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, fmt.Errorf("failed to decode classified data: %w", err)
	}
	return &payload, nil
}

package storage

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"vitalwatch/internal/logger"
	"vitalwatch/internal/metrics"
	"vitalwatch/internal/models"
	"vitalwatch/internal/state"
)

const cacheKeyPrefix = "vitalwatch:patient:"

// CachedStore is a read-through cache in front of another PatientStore.
// Cache failures are logged and fall through to the backing store.
type CachedStore struct {
	backing PatientStore
	cache   state.StateStore
	ttl     time.Duration
}

// NewCachedStore wraps backing with cache; ttl <= 0 means no expiry
func NewCachedStore(backing PatientStore, cache state.StateStore, ttl time.Duration) *CachedStore {
	return &CachedStore{backing: backing, cache: cache, ttl: ttl}
}

func (s *CachedStore) GetByID(ctx context.Context, id string) (*models.PatientInfo, error) {
	log := logger.WithPatient("patient_cache", id)
	key := cacheKeyPrefix + id

	raw, err := s.cache.Get(ctx, key)
	switch {
	case err == nil:
		var p models.PatientInfo
		jerr := json.Unmarshal(raw, &p)
		if jerr == nil {
			metrics.CacheRequests.WithLabelValues("hit").Inc()
			return &p, nil
		}
		log.Warn().Err(jerr).Msg("discarding undecodable cache entry")
		metrics.CacheRequests.WithLabelValues("error").Inc()
	case errors.Is(err, state.ErrMiss):
		metrics.CacheRequests.WithLabelValues("miss").Inc()
	default:
		log.Warn().Err(err).Msg("patient cache read failed")
		metrics.CacheRequests.WithLabelValues("error").Inc()
	}

	p, err := s.backing.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(p); err == nil {
		if err := s.cache.Set(ctx, key, data, s.ttl); err != nil {
			log.Warn().Err(err).Msg("patient cache write failed")
		}
	}

	return p, nil
}

// Close closes the backing store and the cache
func (s *CachedStore) Close() error {
	return errors.Join(s.backing.Close(), s.cache.Close())
}

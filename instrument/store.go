// Package instrument looks up venue order-size limits, keeping them in a
// cache in front of the venue.
package instrument

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/evdnx/spotbot/logger"
	"github.com/evdnx/spotbot/types"
	"github.com/redis/go-redis/v9"
)

// ErrMiss is returned by a Cache that holds no entry for the key.
var ErrMiss = errors.New("instrument: cache miss")

// Source answers lookups the cache cannot.
type Source interface {
	GetInstrument(ctx context.Context, category, symbol string) (types.InstrumentConstraint, error)
}

// Cache stores raw JSON values with a TTL.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, val []byte, ttl time.Duration) error
}

// Store resolves instrument constraints cache-first. Cache failures are
// logged and fall through to the source; they never fail a lookup.
type Store struct {
	cache Cache
	src   Source
	ttl   time.Duration
	log   logger.Logger
}

// NewStore builds a store. cache may be nil, in which case every lookup goes
// to the source.
func NewStore(cache Cache, src Source, ttl time.Duration, log logger.Logger) *Store {
	return &Store{cache: cache, src: src, ttl: ttl, log: log}
}

// Key is the cache key of one instrument.
func Key(category, symbol string) string {
	return "instrument:" + category + ":" + symbol
}

func (s *Store) Constraint(ctx context.Context, category, symbol string) (types.InstrumentConstraint, error) {
	key := Key(category, symbol)
	if s.cache != nil {
		raw, err := s.cache.Get(ctx, key)
		switch {
		case err == nil:
			var ic types.InstrumentConstraint
			if err := json.Unmarshal(raw, &ic); err == nil {
				return ic, nil
			}
			s.log.Warn("instrument_cache_corrupt", logger.String("key", key))
		case !errors.Is(err, ErrMiss):
			s.log.Warn("instrument_cache_get_failed", logger.String("key", key), logger.Err(err))
		}
	}

	ic, err := s.src.GetInstrument(ctx, category, symbol)
	if err != nil {
		return types.InstrumentConstraint{}, fmt.Errorf("instrument %s: %w", symbol, err)
	}
	if s.cache != nil {
		raw, err := json.Marshal(ic)
		if err == nil {
			err = s.cache.Set(ctx, key, raw, s.ttl)
		}
		if err != nil {
			s.log.Warn("instrument_cache_set_failed", logger.String("key", key), logger.Err(err))
		}
	}
	s.log.Info("instrument_loaded",
		logger.String("symbol", ic.Symbol),
		logger.Stringer("min_order_qty", ic.MinOrderQty),
	)
	return ic, nil
}

// RedisCache adapts a go-redis client to Cache.
type RedisCache struct {
	rdb redis.Cmdable
}

func NewRedisCache(rdb redis.Cmdable) *RedisCache { return &RedisCache{rdb: rdb} }

func (c *RedisCache) Get(ctx context.Context, key string) ([]byte, error) {
	b, err := c.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrMiss
	}
	return b, err
}

func (c *RedisCache) Set(ctx context.Context, key string, val []byte, ttl time.Duration) error {
	return c.rdb.Set(ctx, key, val, ttl).Err()
}

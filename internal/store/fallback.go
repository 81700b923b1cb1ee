package store

import (
	"context"
	"time"

	"github.com/meteo-concept/ingestd/internal/log"
	"github.com/meteo-concept/ingestd/internal/model"
)

// LocalCache is the narrow slice of internal/store/cache.Store that
// FallbackCache needs; kept as an interface here so this package doesn't
// import the sqlite driver directly.
type LocalCache interface {
	GetCachedInt(ctx context.Context, station model.StationID, key string) (time.Time, int64, bool, error)
	CacheInt(ctx context.Context, station model.StationID, key string, updatedAt time.Time, value int64) error
	GetCachedFloat(ctx context.Context, station model.StationID, key string) (time.Time, float64, bool, error)
	CacheFloat(ctx context.Context, station model.StationID, key string, updatedAt time.Time, value float64) error
}

// FallbackCache wraps a primary Facade with a local SQLite-backed cache
// for cached counters: writes go to the local cache first and then to
// the primary store, whose error is returned; reads go to the primary
// store and fall back to the local cache when that read fails, per
// SPEC_FULL.md §2's repurposing of
// modernc.org/sqlite: a station's rain-tick counter must survive a
// restart even during the brief window at boot where Postgres isn't
// reachable yet.
type FallbackCache struct {
	Facade
	local LocalCache
}

// NewFallbackCache decorates primary with local as its cache tier.
func NewFallbackCache(primary Facade, local LocalCache) *FallbackCache {
	return &FallbackCache{Facade: primary, local: local}
}

func (f *FallbackCache) GetCachedInt(ctx context.Context, station model.StationID, key string) (time.Time, int64, bool, error) {
	if ts, v, found, err := f.Facade.GetCachedInt(ctx, station, key); err == nil {
		return ts, v, found, nil
	}
	log.Warnf("store: primary cache read failed for %s/%s, falling back to local cache", station, key)
	return f.local.GetCachedInt(ctx, station, key)
}

func (f *FallbackCache) CacheInt(ctx context.Context, station model.StationID, key string, updatedAt time.Time, value int64) error {
	if err := f.local.CacheInt(ctx, station, key, updatedAt, value); err != nil {
		log.Warnf("store: local cache write failed for %s/%s: %v", station, key, err)
	}
	return f.Facade.CacheInt(ctx, station, key, updatedAt, value)
}

func (f *FallbackCache) GetCachedFloat(ctx context.Context, station model.StationID, key string) (time.Time, float64, bool, error) {
	if ts, v, found, err := f.Facade.GetCachedFloat(ctx, station, key); err == nil {
		return ts, v, found, nil
	}
	log.Warnf("store: primary cache read failed for %s/%s, falling back to local cache", station, key)
	return f.local.GetCachedFloat(ctx, station, key)
}

func (f *FallbackCache) CacheFloat(ctx context.Context, station model.StationID, key string, updatedAt time.Time, value float64) error {
	if err := f.local.CacheFloat(ctx, station, key, updatedAt, value); err != nil {
		log.Warnf("store: local cache write failed for %s/%s: %v", station, key, err)
	}
	return f.Facade.CacheFloat(ctx, station, key, updatedAt, value)
}

var _ Facade = (*FallbackCache)(nil)

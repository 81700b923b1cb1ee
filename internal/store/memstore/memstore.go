// Package memstore is an in-memory store.Facade for component tests that
// need C4 without a database, the way the teacher's weatherlinklive tests
// use an injected fake transport instead of a live network socket. No test
// in this tree imports it; the decoder tests use small local CounterStore
// fakes.
package memstore

import (
	"context"
	"sync"
	"time"

	"github.com/meteo-concept/ingestd/internal/model"
	"github.com/meteo-concept/ingestd/internal/store"
)

type counter struct {
	updatedAt time.Time
	intVal    int64
	floatVal  float64
	isFloat   bool
}

// Store is a mutex-guarded in-memory Facade.
type Store struct {
	mu sync.Mutex

	points    map[string]model.Observation // key: station|time
	counters  map[string]counter           // key: station|key
	stations  map[model.StationID]store.StationRegistration
	lastArch  map[model.StationID]time.Time
	configs   map[model.StationID]store.ModemConfig
	deletions int
}

// New returns an empty store.
func New() *Store {
	return &Store{
		points:   make(map[string]model.Observation),
		counters: make(map[string]counter),
		stations: make(map[model.StationID]store.StationRegistration),
		lastArch: make(map[model.StationID]time.Time),
		configs:  make(map[model.StationID]store.ModemConfig),
	}
}

func pointKey(station model.StationID, ts time.Time) string {
	return string(station) + "|" + ts.UTC().Format(time.RFC3339Nano)
}

func counterKey(station model.StationID, key string) string { return string(station) + "|" + key }

func (s *Store) InsertPoint(_ context.Context, obs model.Observation) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.points[pointKey(obs.Station, obs.Timestamp)] = obs
	return true, nil
}

func (s *Store) InsertPointTSDB(ctx context.Context, obs model.Observation) (bool, error) {
	return s.InsertPoint(ctx, obs)
}

func (s *Store) InsertPointsBatch(ctx context.Context, obs []model.Observation) (bool, error) {
	for _, o := range obs {
		if _, err := s.InsertPoint(ctx, o); err != nil {
			return false, err
		}
	}
	return true, nil
}

// Points returns every observation currently stored, for test assertions.
func (s *Store) Points() []model.Observation {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.Observation, 0, len(s.points))
	for _, o := range s.points {
		out = append(out, o)
	}
	return out
}

func (s *Store) DeletePointsInRange(_ context.Context, station model.StationID, _ time.Time, begin, end time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, o := range s.points {
		if o.Station == station && !o.Timestamp.Before(begin) && o.Timestamp.Before(end) {
			delete(s.points, k)
			s.deletions++
		}
	}
	return true, nil
}

func (s *Store) UpdateLastArchiveTime(_ context.Context, station model.StationID, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastArch[station] = at
	return true, nil
}

func (s *Store) GetLastArchiveTime(_ context.Context, station model.StationID) (time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastArch[station], nil
}

func (s *Store) GetCachedInt(_ context.Context, station model.StationID, key string) (time.Time, int64, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.counters[counterKey(station, key)]
	if !ok || c.isFloat {
		return time.Time{}, 0, false, nil
	}
	return c.updatedAt, c.intVal, true, nil
}

func (s *Store) CacheInt(_ context.Context, station model.StationID, key string, updatedAt time.Time, value int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counters[counterKey(station, key)] = counter{updatedAt: updatedAt, intVal: value}
	return nil
}

func (s *Store) GetCachedFloat(_ context.Context, station model.StationID, key string) (time.Time, float64, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.counters[counterKey(station, key)]
	if !ok || !c.isFloat {
		return time.Time{}, 0, false, nil
	}
	return c.updatedAt, c.floatVal, true, nil
}

func (s *Store) CacheFloat(_ context.Context, station model.StationID, key string, updatedAt time.Time, value float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counters[counterKey(station, key)] = counter{updatedAt: updatedAt, floatVal: value, isFloat: true}
	return nil
}

// PutStation seeds a station registry row, for tests that drive C7/C9.
func (s *Store) PutStation(reg store.StationRegistration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stations[reg.Station] = reg
}

func (s *Store) GetStationsByKind(_ context.Context, kind store.StationKind) ([]store.StationRegistration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []store.StationRegistration
	for _, r := range s.stations {
		if r.Kind == kind {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *Store) GetStation(_ context.Context, station model.StationID) (*store.StationRegistration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.stations[station]
	if !ok {
		return nil, nil
	}
	return &r, nil
}

func (s *Store) GetLastDataBefore(_ context.Context, station model.StationID, before time.Time) (model.Observation, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var best model.Observation
	found := false
	for _, o := range s.points {
		if o.Station != station || !o.Timestamp.Before(before) {
			continue
		}
		if !found || o.Timestamp.After(best.Timestamp) {
			best = o
			found = true
		}
	}
	return best, found, nil
}

func (s *Store) GetLastConfiguration(_ context.Context, station model.StationID) (*store.ModemConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.configs[station]
	if !ok || !c.Pending {
		return nil, nil
	}
	return &c, nil
}

// PutConfiguration seeds a pending downlink for a station, for push
// receiver tests.
func (s *Store) PutConfiguration(station model.StationID, cfg store.ModemConfig) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.configs[station] = cfg
}

func (s *Store) UpdateConfigurationStatus(_ context.Context, station model.StationID, id string, pending bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.configs[station]
	if c.ID == id {
		c.Pending = pending
		s.configs[station] = c
	}
	return nil
}

var _ store.Facade = (*Store)(nil)

package jobs

import (
	"context"
	"sync"

	"github.com/meteo-concept/ingestd/internal/model"
)

// Enqueued records one call into a FakeFacade, for test assertions.
type Enqueued struct {
	Station model.StationID
	Begin   int64
	End     int64
	Kind    Kind
}

// FakeFacade is an in-memory, channel-free stand-in for NATSFacade that
// records enqueue calls, so C5's debouncer can be exercised without a
// live NATS broker.
type FakeFacade struct {
	mu    sync.Mutex
	calls []Enqueued
	err   error
}

// NewFakeFacade returns an empty fake. SetErr makes subsequent enqueue
// calls fail, for testing C5's "re-arm on enqueue failure" behavior.
func NewFakeFacade() *FakeFacade { return &FakeFacade{} }

func (f *FakeFacade) SetErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

func (f *FakeFacade) Calls() []Enqueued {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Enqueued, len(f.calls))
	copy(out, f.calls)
	return out
}

func (f *FakeFacade) record(station model.StationID, begin, end int64, kind Kind) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.calls = append(f.calls, Enqueued{Station: station, Begin: begin, End: end, Kind: kind})
	return nil
}

func (f *FakeFacade) EnqueueMinmax(_ context.Context, station model.StationID, begin, end int64) error {
	return f.record(station, begin, end, KindMinmax)
}

func (f *FakeFacade) EnqueueAnomalyMonitoring(_ context.Context, station model.StationID, begin, end int64) error {
	return f.record(station, begin, end, KindAnomalyMonitoring)
}

func (f *FakeFacade) EnqueueMonthMinmax(_ context.Context, station model.StationID, begin, end int64) error {
	return f.record(station, begin, end, KindMonthMinmax)
}

var _ Facade = (*FakeFacade)(nil)

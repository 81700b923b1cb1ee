package barani

import (
	"context"
	"testing"
	"time"

	"github.com/meteo-concept/ingestd/internal/model"
)

// fakeCounterStore is a minimal in-memory CounterStore for exercising the
// stateful decoders in this package without the real store facade.
type fakeCounterStore struct {
	updatedAt time.Time
	value     int64
	found     bool
}

func (s *fakeCounterStore) GetCachedInt(_ context.Context, _ model.StationID, _ string) (time.Time, int64, bool, error) {
	return s.updatedAt, s.value, s.found, nil
}

func (s *fakeCounterStore) CacheInt(_ context.Context, _ model.StationID, _ string, updatedAt time.Time, value int64) error {
	s.updatedAt = updatedAt
	s.value = value
	s.found = true
	return nil
}

func TestRainGaugeAccumulatesSinceCache(t *testing.T) {
	now := time.Now().UTC()
	store := &fakeCounterStore{updatedAt: now.Add(-10 * time.Minute), value: 100, found: true}

	d := NewRainGauge()
	payload := "000000" + "000096" + "00000000" // ignored index, clicks = 150 (0x96), unused trailing bytes
	if err := d.IngestWithStore(context.Background(), "rg", payload, now, store); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !d.ValidAfterParse() {
		t.Fatal("expected valid decode")
	}
	obs := d.ToObservation("rg")
	rainfall, ok := obs.RainfallSinceLast.Get()
	if !ok || rainfall != 10.0 {
		t.Fatalf("rainfall = %v, want 10.0", rainfall)
	}
}

func TestRainGaugeNoRainfallWithoutCache(t *testing.T) {
	d := NewRainGauge()
	payload := "000000" + "000096" + "00000000"
	if err := d.Ingest(context.Background(), "rg", payload, time.Now()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	obs := d.ToObservation("rg")
	if _, ok := obs.RainfallSinceLast.Get(); ok {
		t.Fatal("expected rainfall absent with no cached baseline")
	}
}

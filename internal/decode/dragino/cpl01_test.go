package dragino

import (
	"context"
	"testing"
	"time"

	"github.com/meteo-concept/ingestd/internal/model"
)

// fakeCounterStore is a minimal in-memory CounterStore for exercising the
// stateful decoders without pulling in the real store facade.
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

func TestCpl01RainCounterWrap(t *testing.T) {
	now := time.Now().UTC()
	store := &fakeCounterStore{
		updatedAt: now.Add(-1 * time.Hour),
		value:     0xFFFF00,
		found:     true,
	}

	d := NewCpl01Pluviometer()
	// flag/alarm byte 00, counter 000010, 6 ignored nibbles, 8-nibble
	// embedded timestamp (kept 0 so the synced-clock check never fires).
	payload := "00" + "000010" + "000000" + "00000000"
	if err := d.IngestWithStore(context.Background(), "S4", payload, now, store); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !d.ValidAfterParse() {
		t.Fatal("expected valid decode")
	}

	obs := d.ToObservation("S4")
	rainfall, ok := obs.RainfallSinceLast.Get()
	if !ok {
		t.Fatal("expected rainfall present")
	}
	if want := 54.4; rainfall < want-1e-9 || rainfall > want+1e-9 {
		t.Fatalf("rainfall = %v, want %v", rainfall, want)
	}
}

func TestCpl01RainCounterStaleCache(t *testing.T) {
	now := time.Now().UTC()
	store := &fakeCounterStore{
		updatedAt: now.Add(-25 * time.Hour),
		value:     0xFFFF00,
		found:     true,
	}

	d := NewCpl01Pluviometer()
	payload := "00" + "000010" + "000000" + "00000000"
	if err := d.IngestWithStore(context.Background(), "S4", payload, now, store); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	obs := d.ToObservation("S4")
	if _, ok := obs.RainfallSinceLast.Get(); ok {
		t.Fatal("expected rainfall absent when the cached counter is stale")
	}
}

package pessl

import (
	"context"
	"testing"
	"time"

	"github.com/meteo-concept/ingestd/internal/model"
)

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

const lorainTestFrame = "0000000000000000000000000000e40c00006400c409d007b80b5802f401bc022c016400f401dc05e8033200140050"

func TestLorainDecode(t *testing.T) {
	d := NewLorain()
	ts := time.Now().UTC()
	if err := d.Ingest(context.Background(), "lorain", lorainTestFrame, ts); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !d.ValidAfterParse() {
		t.Fatal("expected valid decode")
	}
	obs := d.ToObservation("lorain")

	temp, ok := obs.Temperature.Get()
	if !ok || temp != 25.0 {
		t.Fatalf("temperature = %v, want 25.0", temp)
	}
	minTemp, ok := obs.MinTemperature.Get()
	if !ok || minTemp != 20.0 {
		t.Fatalf("min temperature = %v, want 20.0", minTemp)
	}
	maxTemp, ok := obs.MaxTemperature.Get()
	if !ok || maxTemp != 30.0 {
		t.Fatalf("max temperature = %v, want 30.0", maxTemp)
	}
	hum, ok := obs.Humidity.Get()
	if !ok || hum != 60.0 {
		t.Fatalf("humidity = %v, want 60.0", hum)
	}
	deltaT, ok := obs.DeltaT.Get()
	if !ok || deltaT != 3.0 {
		t.Fatalf("delta-T = %v, want 3.0", deltaT)
	}
	dewPoint, ok := obs.DewPoint.Get()
	if !ok || dewPoint != 15.0 {
		t.Fatalf("dew point = %v, want 15.0", dewPoint)
	}
	vpd, ok := obs.VaporPressureDeficit.Get()
	if !ok || vpd != 0.5 {
		t.Fatalf("vapor pressure deficit = %v, want 0.5", vpd)
	}
	leafRatio, ok := obs.LeafWetnessRatio.Get()
	if !ok || leafRatio != 80 {
		t.Fatalf("leaf wetness ratio = %v, want 80", leafRatio)
	}
}

func TestLorainRainfallAccumulatesSinceCache(t *testing.T) {
	now := time.Now().UTC()
	store := &fakeCounterStore{updatedAt: now.Add(-30 * time.Minute), value: 40, found: true}

	d := NewLorain()
	if err := d.IngestWithStore(context.Background(), "lorain", lorainTestFrame, now, store); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	obs := d.ToObservation("lorain")
	rainfall, ok := obs.RainfallSinceLast.Get()
	// rainfallClicks in the frame is 100; 100-40 = 60 clicks * 0.2mm.
	if !ok || rainfall != 12.0 {
		t.Fatalf("rainfall = %v, want 12.0", rainfall)
	}

	if err := d.CacheAfterInsert(context.Background(), "lorain", store); err != nil {
		t.Fatalf("unexpected error caching: %v", err)
	}
	if store.value != 100 {
		t.Fatalf("cached counter = %d, want 100", store.value)
	}
}

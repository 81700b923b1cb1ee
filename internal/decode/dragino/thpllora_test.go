package dragino

import (
	"context"
	"testing"
	"time"
)

func TestThplloraDecodeAndRainAccumulation(t *testing.T) {
	now := time.Now().UTC()
	store := &fakeCounterStore{
		updatedAt: now.Add(-30 * time.Minute),
		value:     50,
		found:     true,
	}

	d := NewThpllora()
	payload := "0ce4" + "0000" + "00000064" + "00fa" + "019a"
	if err := d.IngestWithStore(context.Background(), "thpl", payload, now, store); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !d.ValidAfterParse() {
		t.Fatal("expected valid decode")
	}
	obs := d.ToObservation("thpl")

	rainfall, ok := obs.RainfallSinceLast.Get()
	if !ok || rainfall != 10.0 {
		t.Fatalf("rainfall = %v, want 10.0", rainfall)
	}
	temp, ok := obs.Temperature.Get()
	if !ok || temp != 25.0 {
		t.Fatalf("temperature = %v, want 25.0", temp)
	}
	hum, ok := obs.Humidity.Get()
	if !ok || hum != 41.0 {
		t.Fatalf("humidity = %v, want 41.0", hum)
	}

	if err := d.CacheAfterInsert(context.Background(), "thpl", store); err != nil {
		t.Fatalf("unexpected error caching: %v", err)
	}
	if store.value != 100 {
		t.Fatalf("cached counter = %d, want 100", store.value)
	}
}

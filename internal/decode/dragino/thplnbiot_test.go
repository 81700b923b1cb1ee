package dragino

import (
	"context"
	"testing"
	"time"
)

func TestThplNbiotDecodeAndRainAccumulation(t *testing.T) {
	now := time.Now().UTC()
	store := &fakeCounterStore{
		updatedAt: now.Add(-30 * time.Minute),
		value:     50,
		found:     true,
	}

	d := NewThplNbiot()
	// offsetSeconds(8) battery(4) rainrate(4) totalPulses(8) temp(4) hum(4)
	payload := "00000000" + "0e74" + "0064" + "00000064" + "00fa" + "019a"
	if err := d.IngestWithStore(context.Background(), "thplnbiot", payload, now, store); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !d.ValidAfterParse() {
		t.Fatal("expected valid decode")
	}
	obs := d.ToObservation("thplnbiot")

	if obs.Timestamp != now {
		t.Fatalf("timestamp = %v, want %v (zero offset)", obs.Timestamp, now)
	}
	battery, ok := obs.BatteryVoltage.Get()
	if !ok || battery != 3.7 {
		t.Fatalf("battery = %v, want 3.7", battery)
	}
	temp, ok := obs.Temperature.Get()
	if !ok || temp != 25.0 {
		t.Fatalf("temperature = %v, want 25.0", temp)
	}
	hum, ok := obs.Humidity.Get()
	if !ok || hum != 41.0 {
		t.Fatalf("humidity = %v, want 41.0", hum)
	}
	rainfall, ok := obs.RainfallSinceLast.Get()
	if !ok || rainfall != 10.0 {
		t.Fatalf("rainfall = %v, want 10.0", rainfall)
	}

	if err := d.CacheAfterInsert(context.Background(), "thplnbiot", store); err != nil {
		t.Fatalf("unexpected error caching: %v", err)
	}
	if store.value != 100 {
		t.Fatalf("cached counter = %d, want 100", store.value)
	}
}

func TestThplNbiotSentinelFieldsAbsent(t *testing.T) {
	now := time.Now().UTC()
	d := NewThplNbiot()
	payload := "00000000" + "0e74" + "7fff" + "00000064" + "ffff" + "019a"
	if err := d.Ingest(context.Background(), "thplnbiot", payload, now); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	obs := d.ToObservation("thplnbiot")
	if _, ok := obs.Temperature.Get(); ok {
		t.Fatal("expected temperature absent on sentinel frame")
	}
	if _, ok := obs.Humidity.Get(); ok {
		t.Fatal("expected humidity absent when temperature sentinel is set")
	}
	if _, ok := obs.RainfallSinceLast.Get(); ok {
		t.Fatal("expected rainfall absent with no cached counter")
	}
}

func TestThplNbiotRejectsWrongLength(t *testing.T) {
	d := NewThplNbiot()
	err := d.Ingest(context.Background(), "thplnbiot", "00", time.Now())
	if err == nil || d.ValidAfterParse() {
		t.Fatal("expected decode validation failure on short frame")
	}
}

package barani

import (
	"context"
	"math"
	"testing"
	"time"
)

func TestAnemometerV2023Decode(t *testing.T) {
	d := NewAnemometerV2023()
	ts := time.Now().UTC()
	payload := "0703205028640ab4640f3c85"
	if err := d.Ingest(context.Background(), "anemo2023", payload, ts); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !d.ValidAfterParse() {
		t.Fatal("expected valid decode")
	}
	obs := d.ToObservation("anemo2023")

	speed, ok := obs.WindSpeed.Get()
	if !ok {
		t.Fatal("expected wind speed present")
	}
	if want := 1.6252; math.Abs(speed-want) > 1e-4 {
		t.Fatalf("wind speed = %v, want %v", speed, want)
	}

	gust, ok := obs.WindGust.Get()
	if !ok {
		t.Fatal("expected wind gust present")
	}
	if want := 2.8922; math.Abs(gust-want) > 1e-4 {
		t.Fatalf("wind gust = %v, want %v", gust, want)
	}

	dir, ok := obs.WindDirection.Get()
	if !ok || dir != 180 {
		t.Fatalf("wind direction = %v, want 180", dir)
	}

	batt, ok := obs.BatteryVoltage.Get()
	if !ok || batt != 3.8 {
		t.Fatalf("battery voltage = %v, want 3.8 (no cached value, so first-reading estimate)", batt)
	}
}

func TestAnemometerV2023BatterySmoothsTowardCachedValue(t *testing.T) {
	d := NewAnemometerV2023()
	ts := time.Now().UTC()
	payload := "0703205028640ab4640f3c85"
	store := &fakeCounterStore{value: 42, found: true, updatedAt: ts.Add(-time.Minute)}
	if err := d.IngestWithStore(context.Background(), "anemo2023", payload, ts, store); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// newBattery estimate (37) is below the cached value (42), so the
	// smoothed reading steps down by one rather than jumping straight
	// to the raw estimate.
	obs := d.ToObservation("anemo2023")
	batt, ok := obs.BatteryVoltage.Get()
	if !ok || batt != 4.1 {
		t.Fatalf("battery voltage = %v, want 4.1", batt)
	}
	if store.value != 41 {
		t.Fatalf("cached battery index = %d, want 41", store.value)
	}
}

package barani

import (
	"context"
	"testing"
	"time"
)

func TestAnemometerV1Decode(t *testing.T) {
	d := NewAnemometerV1()
	ts := time.Date(2022, 4, 29, 0, 0, 0, 0, time.UTC)
	if err := d.Ingest(context.Background(), "S1", "c582a1087050904b3114", ts); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !d.ValidAfterParse() {
		t.Fatal("expected valid decode")
	}
	obs := d.ToObservation("S1")

	speed, ok := obs.WindSpeed.Get()
	if !ok {
		t.Fatal("expected wind speed present")
	}
	if want := 42 * 0.36; speed != want {
		t.Fatalf("wind speed = %v, want %v", speed, want)
	}

	dir, ok := obs.WindDirection.Get()
	if !ok {
		t.Fatal("expected wind direction present")
	}
	if dir < 0 || dir > 359 {
		t.Fatalf("wind direction %v out of [0,359]", dir)
	}

	if obs.Timestamp.Format("2006-01-02") != "2022-04-29" {
		t.Fatalf("day = %s, want 2022-04-29", obs.Timestamp.Format("2006-01-02"))
	}
}

func TestAnemometerV1RejectsWrongLength(t *testing.T) {
	d := NewAnemometerV1()
	if err := d.Ingest(context.Background(), "S1", "c582a1", time.Now()); err == nil {
		t.Fatal("expected error for truncated frame")
	}
	if d.ValidAfterParse() {
		t.Fatal("expected invalid decode after rejection")
	}
	obs := d.ToObservation("S1")
	if _, ok := obs.WindSpeed.Get(); ok {
		t.Fatal("expected no wind speed for an invalid decode")
	}
}

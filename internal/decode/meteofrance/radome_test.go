package meteofrance

import (
	"context"
	"testing"
	"time"
)

func TestRadomeDecodesEngineeringUnits(t *testing.T) {
	ts := time.Date(2023, 1, 27, 6, 0, 0, 0, time.UTC)
	payload := `{"t":293.15,"u":41,"pres":101325,"ff":3.6,"dd":180}`

	d := NewRadome()
	if err := d.Ingest(context.Background(), "radome", payload, ts); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !d.ValidAfterParse() {
		t.Fatal("expected valid decode")
	}

	obs := d.ToObservation("radome")
	if obs.Timestamp != ts {
		t.Fatalf("timestamp = %v, want %v", obs.Timestamp, ts)
	}
	temp, ok := obs.Temperature.Get()
	if !ok || temp != 20.0 {
		t.Fatalf("temperature = %v, want 20.0", temp)
	}
	hum, ok := obs.Humidity.Get()
	if !ok || hum != 41.0 {
		t.Fatalf("humidity = %v, want 41.0", hum)
	}
	pres, ok := obs.Pressure.Get()
	if !ok || pres != 1013.25 {
		t.Fatalf("pressure = %v, want 1013.25", pres)
	}
	speed, ok := obs.WindSpeed.Get()
	if !ok || speed != 3.6 {
		t.Fatalf("wind speed = %v, want 3.6", speed)
	}
	dir, ok := obs.WindDirection.Get()
	if !ok || dir != 180.0 {
		t.Fatalf("wind direction = %v, want 180.0", dir)
	}
}

func TestRadomeMissingFieldsAreAbsent(t *testing.T) {
	d := NewRadome()
	if err := d.Ingest(context.Background(), "radome", `{"t":290.0}`, time.Now()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	obs := d.ToObservation("radome")
	if _, ok := obs.Humidity.Get(); ok {
		t.Fatal("expected humidity absent when field missing from payload")
	}
	if _, ok := obs.Pressure.Get(); ok {
		t.Fatal("expected pressure absent when field missing from payload")
	}
}

func TestRadomeRejectsMalformedJSON(t *testing.T) {
	d := NewRadome()
	err := d.Ingest(context.Background(), "radome", "not json", time.Now())
	if err == nil || d.ValidAfterParse() {
		t.Fatal("expected decode validation failure on malformed JSON")
	}
}

func TestRadomeDescribeIsStable(t *testing.T) {
	d := NewRadome()
	_ = d.Ingest(context.Background(), "radome", `{"t":290.0,"u":50}`, time.Now())
	a := d.Describe()
	b := d.Describe()
	if a["payload"] != b["payload"] {
		t.Fatal("expected Describe to be stable across successive calls")
	}
}

package barani

import (
	"context"
	"math"
	"testing"
	"time"
)

func TestMeteoHelixDecode(t *testing.T) {
	d := NewMeteoHelix()
	ts := time.Now().UTC()
	// message type 1, battery index 10 (3.5V), temperature raw 1000 (0.0C),
	// min/max offsets 5 (-0.5/+0.5C), humidity raw 300 (60.0%), pressure
	// raw 10000 (1000.0hPa), radiation raw 500 (100.0), max-radiation
	// offset 50 (30.0), rainfall clicks 42; two trailing unused nibbles.
	payload := "54fa0516593883e8322a00"
	if err := d.Ingest(context.Background(), "mh", payload, ts); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !d.ValidAfterParse() {
		t.Fatal("expected valid decode")
	}
	obs := d.ToObservation("mh")

	temp, ok := obs.Temperature.Get()
	if !ok || math.Abs(temp-0.0) > 1e-9 {
		t.Fatalf("temperature = %v, want 0.0", temp)
	}
	minTemp, ok := obs.MinTemperature.Get()
	if !ok || math.Abs(minTemp-(-0.5)) > 1e-9 {
		t.Fatalf("min temperature = %v, want -0.5", minTemp)
	}
	maxTemp, ok := obs.MaxTemperature.Get()
	if !ok || math.Abs(maxTemp-0.5) > 1e-9 {
		t.Fatalf("max temperature = %v, want 0.5", maxTemp)
	}
	hum, ok := obs.Humidity.Get()
	if !ok || hum != 60.0 {
		t.Fatalf("humidity = %v, want 60.0", hum)
	}
	pressure, ok := obs.Pressure.Get()
	if !ok || pressure != 1000.0 {
		t.Fatalf("pressure = %v, want 1000.0", pressure)
	}
	batt, ok := obs.BatteryVoltage.Get()
	if !ok || batt != 3.5 {
		t.Fatalf("battery voltage = %v, want 3.5", batt)
	}
}

func TestMeteoHelixRejectsWrongMessageType(t *testing.T) {
	d := NewMeteoHelix()
	// message type 0 in the top two bits: unsupported.
	payload := "14fa0516593883e8322a00"
	if err := d.Ingest(context.Background(), "mh", payload, time.Now()); err == nil {
		t.Fatal("expected error for unsupported message type")
	}
	if d.ValidAfterParse() {
		t.Fatal("expected invalid decode")
	}
}

package dragino

import (
	"context"
	"testing"
	"time"
)

func TestLlms01LeafSensorDecode(t *testing.T) {
	d := NewLlms01LeafSensor()
	ts := time.Now().UTC()
	payload := "0e10" + "0000" + "0064" + "00fa" + "000000"
	if err := d.Ingest(context.Background(), "leaf", payload, ts); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !d.ValidAfterParse() {
		t.Fatal("expected valid decode")
	}
	obs := d.ToObservation("leaf")

	temp, ok := obs.LeafTemperature.Get()
	if !ok || temp != 25.0 {
		t.Fatalf("leaf temperature = %v, want 25.0", temp)
	}
	wet, ok := obs.LeafWetness.Get()
	if !ok || wet != 10.0 {
		t.Fatalf("leaf wetness = %v, want 10.0", wet)
	}
}

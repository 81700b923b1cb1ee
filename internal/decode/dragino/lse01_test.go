package dragino

import (
	"context"
	"testing"
	"time"
)

func TestLse01SoilSensorDecode(t *testing.T) {
	d := NewLse01SoilSensor()
	ts := time.Now().UTC()
	payload := "0e10" + "0000" + "1388" + "09c4" + "04d2" + "00"
	if err := d.Ingest(context.Background(), "soil", payload, ts); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !d.ValidAfterParse() {
		t.Fatal("expected valid decode")
	}
	obs := d.ToObservation("soil")

	temp, ok := obs.SoilTemperature.Get()
	if !ok || temp != 25.0 {
		t.Fatalf("soil temperature = %v, want 25.0", temp)
	}
	moisture, ok := obs.SoilMoisture.Get()
	if !ok || moisture != 50.0 {
		t.Fatalf("soil moisture = %v, want 50.0", moisture)
	}
	conductivity, ok := obs.SoilConductivity.Get()
	if !ok || conductivity != 1234 {
		t.Fatalf("soil conductivity = %v, want 1234", conductivity)
	}
}

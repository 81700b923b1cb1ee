package dragino

import (
	"context"
	"testing"
	"time"
)

func TestLsn50v2ThermohygrometerDecode(t *testing.T) {
	d := NewLsn50v2Thermohygrometer()
	ts := time.Date(2023, 1, 27, 0, 0, 0, 0, time.UTC)
	if err := d.Ingest(context.Background(), "S2", "0cf70000010900010c0197", ts); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !d.ValidAfterParse() {
		t.Fatal("expected valid decode")
	}
	obs := d.ToObservation("S2")

	temp, ok := obs.Temperature.Get()
	if !ok {
		t.Fatal("expected temperature present")
	}
	if want := 26.8; temp != want {
		t.Fatalf("temperature = %v, want %v", temp, want)
	}

	hum, ok := obs.Humidity.Get()
	if !ok {
		t.Fatal("expected humidity present")
	}
	if want := 41.0; hum != want {
		t.Fatalf("humidity = %v, want %v", hum, want)
	}
}

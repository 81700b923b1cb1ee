package thlora

import (
	"context"
	"math"
	"testing"
	"time"
)

func TestThermohygrometerDecode(t *testing.T) {
	d := NewThermohygrometer()
	ts := time.Now().UTC()
	payload := "013075c864000af464"
	if err := d.Ingest(context.Background(), "th", payload, ts); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !d.ValidAfterParse() {
		t.Fatal("expected valid decode")
	}
	obs := d.ToObservation("th")

	temp, ok := obs.Temperature.Get()
	if !ok {
		t.Fatal("expected temperature present")
	}
	if want := 33.588232421875; math.Abs(temp-want) > 1e-9 {
		t.Fatalf("temperature = %v, want %v", temp, want)
	}

	hum, ok := obs.Humidity.Get()
	if !ok {
		t.Fatal("expected humidity present")
	}
	if want := 91.0; hum != want {
		t.Fatalf("humidity = %v, want %v (truncated like the original's int cast)", hum, want)
	}
}

func TestThermohygrometerRejectsWrongLength(t *testing.T) {
	d := NewThermohygrometer()
	if err := d.Ingest(context.Background(), "th", "0130", time.Now()); err == nil {
		t.Fatal("expected error for truncated frame")
	}
	if d.ValidAfterParse() {
		t.Fatal("expected invalid decode")
	}
}

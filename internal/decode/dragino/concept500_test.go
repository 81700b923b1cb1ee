package dragino

import (
	"context"
	"math"
	"testing"
	"time"
)

func TestConcept500Decode(t *testing.T) {
	d := NewConcept500(10)
	ts := time.Now().UTC()
	// battery=3300 (0x0ce4), temp=25.0C (0x00fa), hum=41.0% (0x019a),
	// wind pulses=100 (0x0064), gust pulses=10 (0x0a), min pulses=5 (0x05),
	// direction=180 (0x00b4).
	payload := "0ce4" + "00fa" + "019a" + "0064" + "0a" + "05" + "00b4"
	if err := d.Ingest(context.Background(), "c500", payload, ts); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !d.ValidAfterParse() {
		t.Fatal("expected valid decode")
	}
	obs := d.ToObservation("c500")

	temp, ok := obs.Temperature.Get()
	if !ok || temp != 25.0 {
		t.Fatalf("temperature = %v, want 25.0", temp)
	}
	dir, ok := obs.WindDirection.Get()
	if !ok || dir != 180 {
		t.Fatalf("wind direction = %v, want 180", dir)
	}
	gust, ok := obs.WindGust.Get()
	if !ok {
		t.Fatal("expected wind gust present")
	}
	wantGust := 10 * 1.60934 / 3.6
	if math.Abs(gust-wantGust) > 1e-6 {
		t.Fatalf("wind gust = %v, want %v", gust, wantGust)
	}
}

package talkpool

import (
	"context"
	"testing"
	"time"
)

func TestOy1110SingleRecordDecode(t *testing.T) {
	d := NewOy1110Thermohygrometer()
	ts := time.Date(2023, 1, 27, 0, 0, 0, 0, time.UTC)
	if err := d.Ingest(context.Background(), "S3", "3e441d", ts); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !d.ValidAfterParse() {
		t.Fatal("expected valid decode")
	}
	obs := d.ToObservation("S3")

	temp, ok := obs.Temperature.Get()
	if !ok {
		t.Fatal("expected temperature present")
	}
	if want := 19.3; temp != want {
		t.Fatalf("temperature = %v, want %v", temp, want)
	}

	hum, ok := obs.Humidity.Get()
	if !ok {
		t.Fatal("expected humidity present")
	}
	if want := 85.1; hum != want {
		t.Fatalf("humidity = %v, want %v", hum, want)
	}

	if !obs.Timestamp.Equal(ts) {
		t.Fatalf("timestamp = %v, want %v", obs.Timestamp, ts)
	}
}

func TestOy1110MultiRecordStepsTimestampsBackward(t *testing.T) {
	d := NewOy1110Thermohygrometer()
	ts := time.Date(2023, 1, 27, 0, 0, 0, 0, time.UTC)
	// one-byte header (0x02: minutes flag clear, value 2 => 2-minute step)
	// followed by two 3-byte records.
	payload := "023e441d304039"
	if err := d.Ingest(context.Background(), "S3", payload, ts); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !d.ValidAfterParse() {
		t.Fatal("expected valid decode")
	}

	records := d.Records("S3")
	if len(records) != 2 {
		t.Fatalf("got %d records, want 2", len(records))
	}
	if !records[0].Timestamp.Equal(ts) {
		t.Fatalf("first record timestamp = %v, want %v", records[0].Timestamp, ts)
	}
	wantSecond := ts.Add(-2 * time.Minute)
	if !records[1].Timestamp.Equal(wantSecond) {
		t.Fatalf("second record timestamp = %v, want %v", records[1].Timestamp, wantSecond)
	}
}

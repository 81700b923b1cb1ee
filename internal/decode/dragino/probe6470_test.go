package dragino

import (
	"context"
	"math"
	"testing"
	"time"
)

func TestProbe6470Decode(t *testing.T) {
	d := NewProbe6470()
	ts := time.Now().UTC()
	// battery=3300 (0x0ce4), resistance=10000 (0x2710), adc=2000 (0x07d0),
	// 10 ignored trailing nibbles.
	if err := d.Ingest(context.Background(), "probe", "0ce4271007d00000000000", ts); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !d.ValidAfterParse() {
		t.Fatal("expected valid decode")
	}
	obs := d.ToObservation("probe")
	temp, ok := obs.Temperature.Get()
	if !ok {
		t.Fatal("expected temperature present")
	}
	// adc*resistance/(battery-adc) truncates as integer division before
	// the logarithm, per lsn50v2_probe6470_message.cpp: 2000*10000/1300 =
	// 15384 (not 15384.615...).
	want := 15.442704356100649
	if math.Abs(temp-want) > 1e-6 {
		t.Fatalf("temperature = %v, want %v", temp, want)
	}
	batt, ok := obs.BatteryVoltage.Get()
	if !ok || batt != 3.3 {
		t.Fatalf("battery voltage = %v, want 3.3", batt)
	}
}

func TestProbe6470RejectsAdcAboveBattery(t *testing.T) {
	d := NewProbe6470()
	// adc (0xffff) >= battery (0x0ce4): physically impossible reading.
	if err := d.Ingest(context.Background(), "probe", "0ce42710ffff0000000000", time.Now()); err == nil {
		t.Fatal("expected error for adc reading not below battery")
	}
	if d.ValidAfterParse() {
		t.Fatal("expected invalid decode")
	}
}

package dragino

import (
	"context"
	"testing"
	"time"
)

func TestDS18B20TripletDecode(t *testing.T) {
	d := NewDS18B20Triplet()
	ts := time.Now().UTC()
	payload := "0e10" + "00fa" + "0000" + "01" + "ff9c" + "ffff"
	if err := d.Ingest(context.Background(), "triplet", payload, ts); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !d.ValidAfterParse() {
		t.Fatal("expected valid decode")
	}
	obs := d.ToObservation("triplet")

	temp, ok := obs.Temperature.Get()
	if !ok || temp != 25.0 {
		t.Fatalf("probe 1 temperature = %v, want 25.0", temp)
	}
	extra0, ok := obs.ExtraTemperature[0].Get()
	if !ok || extra0 != -10.0 {
		t.Fatalf("probe 2 temperature = %v, want -10.0", extra0)
	}
	if _, ok := obs.ExtraTemperature[1].Get(); ok {
		t.Fatal("expected probe 3 absent for sentinel reading")
	}
	batt, ok := obs.BatteryVoltage.Get()
	if !ok || batt != 3.6 {
		t.Fatalf("battery voltage = %v, want 3.6", batt)
	}
}

// Probe6470 ports lsn50v2_probe6470_message.cpp: an LSN50v2 wired to a
// single NTC thermistor probe, reporting a raw ADC ratio that must be
// converted to resistance and then to temperature through the
// manufacturer's Steinhart-like polynomial — spec.md §4.3 rule 6's
// parseNTC, copied verbatim as required.
package dragino

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/meteo-concept/ingestd/internal/hexframe"
	"github.com/meteo-concept/ingestd/internal/model"
)

const probe6470FrameNibbles = 22

// parseNTC converts a battery voltage, a reference resistance and a raw
// ADC reading into a Celsius temperature via the Steinhart-like
// polynomial the manufacturer's tables specify; copied verbatim from
// lsn50v2_probe6470_message.cpp, including its integer division of
// adc*resistance/(battery-adc) — the original computes that ratio in
// uint16_t/int arithmetic and only widens to a floating-point type for
// the logarithm, so the truncation has to happen before the float64
// conversion here too, not after.
func parseNTC(battery, resistance, adc uint64) (float64, bool) {
	if battery <= adc {
		return 0, false
	}
	ratio := adc * resistance / (battery - adc)
	lr0 := math.Log(float64(ratio))
	return -273.15 + 1/(1.140e-3+2.320e-4*lr0+9.860e-8*math.Pow(lr0, 3)), true
}

// Probe6470 decodes the "dragino_6470_20240319" frame.
type Probe6470 struct {
	valid       bool
	time        time.Time
	battery     uint16
	temperature float64
}

func NewProbe6470() *Probe6470 { return &Probe6470{} }

func (d *Probe6470) Ingest(_ context.Context, _ model.StationID, payload string, datetime time.Time) error {
	cur := hexframe.NewCursor(payload)
	if cur.Len() != probe6470FrameNibbles {
		d.valid = false
		return fmt.Errorf("dragino 6470 probe: expected %d hex nibbles, got %d", probe6470FrameNibbles, cur.Len())
	}
	battery, err := cur.ParseBigEndian(4)
	if err != nil {
		d.valid = false
		return err
	}
	resistance, err := cur.ParseBigEndian(4)
	if err != nil {
		d.valid = false
		return err
	}
	adc0, err := cur.ParseBigEndian(4)
	if err != nil {
		d.valid = false
		return err
	}
	if err := cur.Ignore(10); err != nil {
		d.valid = false
		return err
	}

	d.time = datetime
	d.battery = uint16(battery)

	temp, ok := parseNTC(battery, resistance, adc0)
	if !ok {
		d.valid = false
		return fmt.Errorf("dragino 6470 probe: ADC reading %d not below battery reading %d", adc0, battery)
	}
	d.temperature = temp

	d.valid = true
	return nil
}

func (d *Probe6470) ValidAfterParse() bool { return d.valid }

func (d *Probe6470) ToObservation(station model.StationID) model.Observation {
	obs := model.Observation{Station: station, SensorModel: "dragino_6470_20240319"}
	if !d.valid {
		return obs
	}
	obs.Timestamp = d.time
	if !math.IsNaN(d.temperature) {
		obs.Temperature = model.Some(d.temperature)
	}
	obs.BatteryVoltage = model.Some(float64(d.battery) / 1000)
	return obs
}

func (d *Probe6470) Describe() map[string]any {
	return map[string]any{"model": "dragino_6470_20240319", "battery": d.battery, "temperature": d.temperature}
}

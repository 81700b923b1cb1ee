// DS18B20Triplet ports lsn50v2_d2x_message.cpp: an LSN50v2 wired to three
// DS18B20 digital temperature probes, each decoded as a 16-bit two's
// complement reading in tenths of a degree with 0xFFFF meaning "not
// measured" (unlike dragino.Lsn50v2Thermohygrometer's
// distance-below-0xFFFF rule).
package dragino

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/meteo-concept/ingestd/internal/hexframe"
	"github.com/meteo-concept/ingestd/internal/model"
)

const ds18b20TripletFrameNibbles = 22

func decodeDS18B20(raw uint64) float64 {
	switch {
	case raw == 0xFFFF:
		return math.NaN()
	case raw&0x8000 == 0:
		return float64(raw) / 10
	default:
		return (float64(raw) - 65536) / 10
	}
}

// DS18B20Triplet decodes the "dragino_d2x_20250826" frame.
type DS18B20Triplet struct {
	valid       bool
	time        time.Time
	battery     uint16
	temperature [3]float64
	alarm       uint8
}

func NewDS18B20Triplet() *DS18B20Triplet { return &DS18B20Triplet{} }

func (d *DS18B20Triplet) Ingest(_ context.Context, _ model.StationID, payload string, datetime time.Time) error {
	cur := hexframe.NewCursor(payload)
	if cur.Len() != ds18b20TripletFrameNibbles {
		d.valid = false
		return fmt.Errorf("dragino ds18b20 triplet: expected %d hex nibbles, got %d", ds18b20TripletFrameNibbles, cur.Len())
	}
	battery, err := cur.ParseBigEndian(4)
	if err != nil {
		d.valid = false
		return err
	}
	t0, err := cur.ParseBigEndian(4)
	if err != nil {
		d.valid = false
		return err
	}
	if err := cur.Ignore(4); err != nil {
		d.valid = false
		return err
	}
	alarm, err := cur.ParseBigEndian(2)
	if err != nil {
		d.valid = false
		return err
	}
	t1, err := cur.ParseBigEndian(4)
	if err != nil {
		d.valid = false
		return err
	}
	t2, err := cur.ParseBigEndian(4)
	if err != nil {
		d.valid = false
		return err
	}

	d.time = datetime
	d.battery = uint16(battery)
	d.alarm = uint8(alarm)
	d.temperature[0] = decodeDS18B20(t0)
	d.temperature[1] = decodeDS18B20(t1)
	d.temperature[2] = decodeDS18B20(t2)

	d.valid = true
	return nil
}

func (d *DS18B20Triplet) ValidAfterParse() bool { return d.valid }

func (d *DS18B20Triplet) ToObservation(station model.StationID) model.Observation {
	obs := model.Observation{Station: station, SensorModel: "dragino_d2x_20250826"}
	if !d.valid {
		return obs
	}
	obs.Timestamp = d.time
	if !math.IsNaN(d.temperature[0]) {
		obs.Temperature = model.Some(d.temperature[0])
	}
	if !math.IsNaN(d.temperature[1]) {
		obs.ExtraTemperature[0] = model.Some(d.temperature[1])
	}
	if !math.IsNaN(d.temperature[2]) {
		obs.ExtraTemperature[1] = model.Some(d.temperature[2])
	}
	obs.BatteryVoltage = model.Some(float64(d.battery) / 1000)
	return obs
}

func (d *DS18B20Triplet) Describe() map[string]any {
	return map[string]any{
		"model":        "dragino_d2x_20250826",
		"battery":      d.battery,
		"temperature1": d.temperature[0],
		"temperature2": d.temperature[1],
		"temperature3": d.temperature[2],
		"alarm":        d.alarm,
	}
}

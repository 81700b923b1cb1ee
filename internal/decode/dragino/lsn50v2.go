// Package dragino implements decoders for Dragino LoRaWAN sensor models.
// Lsn50v2Thermohygrometer ports lsn50v2_thermohygrometer_message.cpp: a
// 22-nibble frame where the first 14 nibbles are device/battery status
// this platform doesn't use, followed by a 4-nibble temperature register
// and a 4-nibble humidity register.
package dragino

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/meteo-concept/ingestd/internal/hexframe"
	"github.com/meteo-concept/ingestd/internal/model"
)

const lsn50v2FrameNibbles = 22

// Lsn50v2Thermohygrometer decodes the "dragino_lsn50v2_20230410" frame.
type Lsn50v2Thermohygrometer struct {
	valid       bool
	time        time.Time
	temperature float64
	humidity    float64
}

func NewLsn50v2Thermohygrometer() *Lsn50v2Thermohygrometer { return &Lsn50v2Thermohygrometer{} }

func (d *Lsn50v2Thermohygrometer) Ingest(_ context.Context, _ model.StationID, payload string, datetime time.Time) error {
	cur := hexframe.NewCursor(payload)
	if cur.Len() != lsn50v2FrameNibbles {
		d.valid = false
		return fmt.Errorf("dragino lsn50v2: expected %d hex nibbles, got %d", lsn50v2FrameNibbles, cur.Len())
	}
	if err := cur.Ignore(14); err != nil {
		d.valid = false
		return err
	}
	temp, err := cur.ParseBigEndian(4)
	if err != nil {
		d.valid = false
		return err
	}
	hum, err := cur.ParseBigEndian(4)
	if err != nil {
		d.valid = false
		return err
	}

	d.time = datetime
	d.humidity = float64(hum) / 10

	switch {
	case temp == 0xFFFF:
		d.temperature = math.NaN()
		d.humidity = math.NaN()
	case temp&0xFC00 == 0:
		// high bits clear: positive temperature in tenths of a degree
		d.temperature = float64(temp) / 10
	default:
		// the device encodes negative temperatures as the distance
		// below 0xFFFF rather than a plain two's complement sign bit
		d.temperature = (float64(temp) - 65535) / 10
	}

	d.valid = true
	return nil
}

func (d *Lsn50v2Thermohygrometer) ValidAfterParse() bool { return d.valid }

func (d *Lsn50v2Thermohygrometer) ToObservation(station model.StationID) model.Observation {
	obs := model.Observation{Station: station, SensorModel: "dragino_lsn50v2_20230410"}
	if !d.valid {
		return obs
	}
	obs.Timestamp = d.time
	if !math.IsNaN(d.temperature) {
		obs.Temperature = model.Some(d.temperature)
	}
	if !math.IsNaN(d.humidity) {
		obs.Humidity = model.Some(math.Round(d.humidity))
	}
	return obs
}

func (d *Lsn50v2Thermohygrometer) Describe() map[string]any {
	return map[string]any{
		"model":       "dragino_lsn50v2_20230410",
		"temperature": d.temperature,
		"humidity":    d.humidity,
	}
}

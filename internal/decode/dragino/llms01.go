// Llms01LeafSensor ports llms01_leaf_sensor_message.cpp: a Dragino leaf
// wetness sensor reporting a leaf-surface temperature (same sign
// convention as the thermo-hygro models) and a wetness reading on a 0-15
// scale.
package dragino

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/meteo-concept/ingestd/internal/hexframe"
	"github.com/meteo-concept/ingestd/internal/model"
)

const llms01FrameNibbles = 22

// Llms01LeafSensor decodes the "dragino_llms01_20231204" frame.
type Llms01LeafSensor struct {
	valid          bool
	time           time.Time
	battery        uint16
	leafTemperature float64
	leafWetness    float64
}

func NewLlms01LeafSensor() *Llms01LeafSensor { return &Llms01LeafSensor{} }

func (d *Llms01LeafSensor) Ingest(_ context.Context, _ model.StationID, payload string, datetime time.Time) error {
	cur := hexframe.NewCursor(payload)
	if cur.Len() != llms01FrameNibbles {
		d.valid = false
		return fmt.Errorf("dragino llms01: expected %d hex nibbles, got %d", llms01FrameNibbles, cur.Len())
	}
	battery, err := cur.ParseBigEndian(4)
	if err != nil {
		d.valid = false
		return err
	}
	if err := cur.Ignore(4); err != nil {
		d.valid = false
		return err
	}
	wet, err := cur.ParseBigEndian(4)
	if err != nil {
		d.valid = false
		return err
	}
	temp, err := cur.ParseBigEndian(4)
	if err != nil {
		d.valid = false
		return err
	}
	if err := cur.Ignore(6); err != nil {
		d.valid = false
		return err
	}

	d.time = datetime
	d.battery = uint16(battery)
	d.leafTemperature = decodeDS18B20(temp)
	if wet == 0xFFFF {
		d.leafWetness = math.NaN()
	} else {
		d.leafWetness = float64(wet) / 10
	}

	d.valid = true
	return nil
}

func (d *Llms01LeafSensor) ValidAfterParse() bool { return d.valid }

func (d *Llms01LeafSensor) ToObservation(station model.StationID) model.Observation {
	obs := model.Observation{Station: station, SensorModel: "dragino_llms01_20231204"}
	if !d.valid {
		return obs
	}
	obs.Timestamp = d.time
	if !math.IsNaN(d.leafTemperature) {
		obs.LeafTemperature = model.Some(d.leafTemperature)
	}
	if !math.IsNaN(d.leafWetness) {
		obs.LeafWetness = model.Some(d.leafWetness)
	}
	obs.BatteryVoltage = model.Some(float64(d.battery) / 1000)
	return obs
}

func (d *Llms01LeafSensor) Describe() map[string]any {
	return map[string]any{
		"model":           "dragino_llms01_20231204",
		"battery":         d.battery,
		"leaf_temperature": d.leafTemperature,
		"leaf_wetness":    d.leafWetness,
	}
}

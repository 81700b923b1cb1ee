// Lse01SoilSensor ports lse01_soil_sensor_message.cpp: a Dragino
// capacitive soil-moisture/temperature/conductivity probe. Resolution
// here is hundredths of a degree and a percent, finer than the
// thermo-hygro models' tenths, and conductivity has no sentinel scaling
// beyond the usual 0xFFFF "not measured" marker.
package dragino

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/meteo-concept/ingestd/internal/hexframe"
	"github.com/meteo-concept/ingestd/internal/model"
)

const lse01FrameNibbles = 22

// Lse01SoilSensor decodes the "dragino_lse01_20241217" frame.
type Lse01SoilSensor struct {
	valid            bool
	time             time.Time
	battery          uint16
	soilTemperature  float64
	soilMoisture     float64
	soilConductivity float64
}

func NewLse01SoilSensor() *Lse01SoilSensor { return &Lse01SoilSensor{} }

func (d *Lse01SoilSensor) Ingest(_ context.Context, _ model.StationID, payload string, datetime time.Time) error {
	cur := hexframe.NewCursor(payload)
	if cur.Len() != lse01FrameNibbles {
		d.valid = false
		return fmt.Errorf("dragino lse01: expected %d hex nibbles, got %d", lse01FrameNibbles, cur.Len())
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
	moisture, err := cur.ParseBigEndian(4)
	if err != nil {
		d.valid = false
		return err
	}
	temp, err := cur.ParseBigEndian(4)
	if err != nil {
		d.valid = false
		return err
	}
	conductivity, err := cur.ParseBigEndian(4)
	if err != nil {
		d.valid = false
		return err
	}
	if err := cur.Ignore(2); err != nil {
		d.valid = false
		return err
	}

	d.time = datetime
	d.battery = uint16(battery)

	switch {
	case temp == 0xFFFF:
		d.soilTemperature = math.NaN()
	case temp&0x8000 == 0:
		d.soilTemperature = float64(temp) / 100
	default:
		d.soilTemperature = (float64(temp) - 65536) / 100
	}

	if moisture == 0xFFFF {
		d.soilMoisture = math.NaN()
	} else {
		d.soilMoisture = float64(moisture) / 100
	}

	if conductivity == 0xFFFF {
		d.soilConductivity = math.NaN()
	} else {
		d.soilConductivity = float64(conductivity)
	}

	d.valid = true
	return nil
}

func (d *Lse01SoilSensor) ValidAfterParse() bool { return d.valid }

func (d *Lse01SoilSensor) ToObservation(station model.StationID) model.Observation {
	obs := model.Observation{Station: station, SensorModel: "dragino_lse01_20241217"}
	if !d.valid {
		return obs
	}
	obs.Timestamp = d.time
	if !math.IsNaN(d.soilTemperature) {
		obs.SoilTemperature = model.Some(d.soilTemperature)
	}
	if !math.IsNaN(d.soilMoisture) {
		obs.SoilMoisture = model.Some(d.soilMoisture)
	}
	if !math.IsNaN(d.soilConductivity) {
		obs.SoilConductivity = model.Some(d.soilConductivity)
	}
	obs.BatteryVoltage = model.Some(float64(d.battery) / 1000)
	return obs
}

func (d *Lse01SoilSensor) Describe() map[string]any {
	return map[string]any{
		"model":             "dragino_lse01_20241217",
		"battery":           d.battery,
		"soil_temperature":  d.soilTemperature,
		"soil_moisture":     d.soilMoisture,
		"soil_conductivity": d.soilConductivity,
	}
}

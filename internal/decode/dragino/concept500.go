// Concept500 ports concept500_message.cpp: a Dragino-radio thermo-hygro
// anemometer that reports wind as a raw pulse count accumulated over the
// station's own polling period rather than a pre-scaled speed, so the
// decoder needs to know that period to turn pulses into km/h. Online
// callers pass the station's configured polling period; offline replay
// tools may leave it at the original's documented fallback of 10 minutes.
package dragino

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/meteo-concept/ingestd/internal/hexframe"
	"github.com/meteo-concept/ingestd/internal/model"
)

const concept500FrameNibbles = 24

// Concept500 decodes the "CONCEPT_500-20250430" frame.
type Concept500 struct {
	valid             bool
	time              time.Time
	pollingPeriodMins int

	battery     float64
	temperature float64
	humidity    float64
	windSpeed   float64
	gustSpeed   float64
	minSpeed    float64
	windDir     float64
}

// NewConcept500 returns a decoder that scales wind pulses assuming a
// pollingPeriodMinutes polling period; pass 0 to use the original's
// 10-minute fallback for stations whose polling period is unknown.
func NewConcept500(pollingPeriodMinutes int) *Concept500 {
	if pollingPeriodMinutes <= 0 {
		pollingPeriodMinutes = 10
	}
	return &Concept500{pollingPeriodMins: pollingPeriodMinutes}
}

func (d *Concept500) Ingest(_ context.Context, _ model.StationID, payload string, datetime time.Time) error {
	cur := hexframe.NewCursor(payload)
	if cur.Len() != concept500FrameNibbles {
		d.valid = false
		return fmt.Errorf("dragino concept500: expected %d hex nibbles, got %d", concept500FrameNibbles, cur.Len())
	}
	battery, err := cur.ParseBigEndian(4)
	if err != nil {
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
	windPulses, err := cur.ParseBigEndian(4)
	if err != nil {
		d.valid = false
		return err
	}
	gustPulses, err := cur.ParseBigEndian(2)
	if err != nil {
		d.valid = false
		return err
	}
	minPulses, err := cur.ParseBigEndian(2)
	if err != nil {
		d.valid = false
		return err
	}
	windDir, err := cur.ParseBigEndian(4)
	if err != nil {
		d.valid = false
		return err
	}

	d.time = datetime
	d.battery = float64(battery) / 1000

	d.humidity = float64(hum) / 10
	switch {
	case temp == 0xFFFF && hum == 0xFFFF:
		d.temperature = math.NaN()
		d.humidity = math.NaN()
	case temp&0x8000 == 0:
		d.temperature = float64(temp) / 10
	default:
		d.temperature = (float64(temp) - 65536) / 10
	}

	const mphToKph = 1.60934
	d.windSpeed = float64(windPulses) * 2.25 / (float64(d.pollingPeriodMins) * 60) * mphToKph
	d.gustSpeed = float64(gustPulses) * mphToKph
	d.minSpeed = float64(minPulses) * mphToKph
	if windDir == 0xFFFF {
		d.windDir = math.NaN()
	} else {
		d.windDir = float64(windDir % 360)
	}

	d.valid = true
	return nil
}

func (d *Concept500) ValidAfterParse() bool { return d.valid }

func (d *Concept500) ToObservation(station model.StationID) model.Observation {
	obs := model.Observation{Station: station, SensorModel: "CONCEPT_500-20250430"}
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
	if !math.IsNaN(d.temperature) && !math.IsNaN(d.humidity) {
		obs.DewPoint = model.Some(dewPoint(d.temperature, d.humidity))
		obs.HeatIndex = model.Some(heatIndex(d.temperature, d.humidity))
	}
	obs.WindSpeed = model.Some(d.windSpeed / 3.6)
	obs.WindGust = model.Some(d.gustSpeed / 3.6)
	obs.MinWindSpeed = model.Some(d.minSpeed / 3.6)
	if !math.IsNaN(d.windDir) {
		obs.WindDirection = model.Some(math.Round(d.windDir))
	}
	obs.BatteryVoltage = model.Some(d.battery)
	return obs
}

func (d *Concept500) Describe() map[string]any {
	return map[string]any{
		"model":          "CONCEPT_500-20250430",
		"battery":        d.battery,
		"temperature":    d.temperature,
		"humidity":       d.humidity,
		"wind_speed":     d.windSpeed,
		"wind_gust":      d.gustSpeed,
		"wind_min":       d.minSpeed,
		"wind_direction": d.windDir,
	}
}

// dewPoint is the Magnus-formula approximation used throughout this
// package's decoders that need it.
func dewPoint(tempC, relHumidity float64) float64 {
	const a, b = 17.27, 237.7
	gamma := (a*tempC)/(b+tempC) + math.Log(relHumidity/100)
	return (b * gamma) / (a - gamma)
}

// heatIndex is the NWS Rothfusz regression, valid above ~27°C / 40% RH;
// below 80°F (~27°C) it returns the input temperature unchanged.
func heatIndex(tempC, relHumidity float64) float64 {
	tempF := tempC*9/5 + 32
	hi := -42.379 + 2.04901523*tempF + 10.14333127*relHumidity -
		0.22475541*tempF*relHumidity - 0.00683783*tempF*tempF -
		0.05481717*relHumidity*relHumidity + 0.00122874*tempF*tempF*relHumidity +
		0.00085282*tempF*relHumidity*relHumidity - 0.00000199*tempF*tempF*relHumidity*relHumidity
	if tempF < 80 {
		return tempC
	}
	return (hi - 32) * 5 / 9
}

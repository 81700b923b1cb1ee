// MeteoHelix ports barani_thermohygro_message.cpp: the Barani MeteoHelix
// combined thermo-hygro-baro-radiation station, a 22-nibble frame packed
// across sub-byte boundaries with an embedded rain-gauge tick counter that
// shares the same cached-counter contract as RainGauge and
// dragino.Cpl01Pluviometer.
package barani

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/meteo-concept/ingestd/internal/hexframe"
	"github.com/meteo-concept/ingestd/internal/model"
)

const (
	meteoHelixFrameNibbles  = 22
	meteoHelixRainGaugeResMM = 0.2
	meteoHelixCounterModulus = 4096
	meteoHelixCacheKey       = "barani_meteohelix_clicks"
	meteoHelixCacheStaleAfter = 24 * time.Hour
)

// MeteoHelix decodes the "barani_meteohelix_20230810" frame.
type MeteoHelix struct {
	valid bool
	time  time.Time

	messageType          uint8
	batteryVoltage       float64
	temperature          float64
	minTemperature       float64
	maxTemperature       float64
	humidity             float64
	pressure             float64
	radiation            float64
	maxRadiation         float64
	rainfallClicks       int64
	rainfall             float64
	minTimeBetweenClicks uint16
	maxRainrate          float64
}

func NewMeteoHelix() *MeteoHelix { return &MeteoHelix{} }

func (d *MeteoHelix) Ingest(ctx context.Context, station model.StationID, payload string, datetime time.Time) error {
	return d.ingest(ctx, station, payload, datetime, nil)
}

// IngestWithStore is the stateful entry point the store facade's write
// path calls, the way dragino.Cpl01Pluviometer exposes one alongside the
// plain Decoder.Ingest.
func (d *MeteoHelix) IngestWithStore(ctx context.Context, station model.StationID, payload string, datetime time.Time, store CounterStore) error {
	return d.ingest(ctx, station, payload, datetime, store)
}

func (d *MeteoHelix) ingest(ctx context.Context, station model.StationID, payload string, datetime time.Time, store CounterStore) error {
	cur := hexframe.NewCursor(payload)
	if cur.Len() != meteoHelixFrameNibbles {
		d.valid = false
		return fmt.Errorf("barani meteohelix: expected %d hex nibbles, got %d", meteoHelixFrameNibbles, cur.Len())
	}

	raw := make([]uint64, 10)
	for i := range raw {
		v, err := cur.ParseBigEndian(2)
		if err != nil {
			d.valid = false
			return err
		}
		raw[i] = v
	}

	d.time = datetime

	d.messageType = uint8((raw[0] & 0b1100_0000) >> 6)
	if d.messageType != 1 {
		d.valid = false
		return fmt.Errorf("barani meteohelix: unsupported message type %d", d.messageType)
	}

	battery := (raw[0] & 0b0011_1110) >> 1
	if battery == 0b1_1111 {
		d.batteryVoltage = math.NaN()
	} else {
		d.batteryVoltage = 3 + float64(battery)*0.05
	}

	temperature := ((raw[0] & 1) << 10) + (raw[1] << 2) + ((raw[2] & 0b1100_0000) >> 6)
	if temperature == 0b111_1111_1111 {
		d.temperature = math.NaN()
	} else {
		d.temperature = -100 + float64(temperature)*0.1
	}

	minTemp := raw[2] & 0b0011_1111
	if minTemp == 0b11_1111 || math.IsNaN(d.temperature) {
		d.minTemperature = math.NaN()
	} else {
		d.minTemperature = -100 + (float64(temperature)-float64(minTemp))*0.1
	}

	maxTemp := (raw[3] & 0b1111_1100) >> 2
	if maxTemp == 0b11_1111 || math.IsNaN(d.temperature) {
		d.maxTemperature = math.NaN()
	} else {
		d.maxTemperature = -100 + (float64(temperature)+float64(maxTemp))*0.1
	}

	humidity := ((raw[3] & 0b0000_0011) << 7) + ((raw[4] & 0b1111_1110) >> 1)
	if humidity == 0b111_1111 {
		d.humidity = math.NaN()
	} else {
		d.humidity = float64(humidity) * 0.2
	}

	pressure := ((raw[4] & 1) << 13) + (raw[5] << 5) + ((raw[6] & 0b1111_1000) >> 3)
	if pressure == 0b11_1111_1111_1111 {
		d.pressure = math.NaN()
	} else {
		d.pressure = (float64(pressure)*5 + 50000) / 100
	}

	radiation := ((raw[6] & 0b0000_0111) << 7) + ((raw[7] & 0b1111_1110) >> 1)
	if radiation == 0b11_1111_1111 {
		d.radiation = math.NaN()
	} else {
		d.radiation = float64(radiation) * 0.2
	}

	maxRadiation := ((raw[7] & 1) << 8) + raw[8]
	if maxRadiation == 0b1_1111_1111 || math.IsNaN(d.radiation) {
		d.maxRadiation = math.NaN()
	} else {
		d.maxRadiation = (d.radiation + float64(maxRadiation)) * 0.2
	}

	d.rainfallClicks = int64(raw[9])
	d.rainfall = math.NaN()
	if store != nil {
		updatedAt, previous, found, err := store.GetCachedInt(ctx, station, meteoHelixCacheKey)
		if err == nil && found && time.Since(updatedAt) <= meteoHelixCacheStaleAfter {
			if d.rainfallClicks >= previous {
				d.rainfall = float64(d.rainfallClicks-previous) * meteoHelixRainGaugeResMM
			} else {
				d.rainfall = float64(meteoHelixCounterModulus-previous+d.rainfallClicks) * meteoHelixRainGaugeResMM
			}
		}
	}

	// the original packs min-time-between-clicks into the nibble that
	// would otherwise follow the rain counter; this port does not read
	// it (the trailing nibbles of the frame are ignored), so
	// minTimeBetweenClicks stays 0 and maxRainrate is always 0
	d.minTimeBetweenClicks = 0
	if d.minTimeBetweenClicks > 0 {
		d.maxRainrate = meteoHelixRainGaugeResMM / (float64(d.minTimeBetweenClicks) / 3600)
	} else {
		d.maxRainrate = 0
	}

	d.valid = true
	return nil
}

func (d *MeteoHelix) CacheAfterInsert(ctx context.Context, station model.StationID, store CounterStore) error {
	if !d.valid {
		return nil
	}
	return store.CacheInt(ctx, station, meteoHelixCacheKey, d.time, d.rainfallClicks)
}

func (d *MeteoHelix) ValidAfterParse() bool { return d.valid }

func (d *MeteoHelix) ToObservation(station model.StationID) model.Observation {
	obs := model.Observation{Station: station, SensorModel: "barani_meteohelix_20230810"}
	if !d.valid {
		return obs
	}
	obs.Timestamp = d.time
	if !math.IsNaN(d.temperature) {
		obs.Temperature = model.Some(d.temperature)
	}
	if !math.IsNaN(d.minTemperature) {
		obs.MinTemperature = model.Some(d.minTemperature)
	}
	if !math.IsNaN(d.maxTemperature) {
		obs.MaxTemperature = model.Some(d.maxTemperature)
	}
	if !math.IsNaN(d.humidity) {
		obs.Humidity = model.Some(d.humidity)
	}
	if !math.IsNaN(d.pressure) {
		obs.Pressure = model.Some(d.pressure)
	}
	if !math.IsNaN(d.rainfall) {
		obs.RainfallSinceLast = model.Some(d.rainfall)
	}
	if !math.IsNaN(d.batteryVoltage) {
		obs.BatteryVoltage = model.Some(d.batteryVoltage)
	}
	return obs
}

func (d *MeteoHelix) Describe() map[string]any {
	return map[string]any{
		"model":                  "barani_meteohelix_20230810",
		"message_type":           d.messageType,
		"battery_voltage":        d.batteryVoltage,
		"temperature":            d.temperature,
		"min_temperature":        d.minTemperature,
		"max_temperature":        d.maxTemperature,
		"humidity":               d.humidity,
		"pressure":               d.pressure,
		"radiation":              d.radiation,
		"max_radiation":          d.maxRadiation,
		"rainfall_clicks":        d.rainfallClicks,
		"rainfall":               d.rainfall,
		"max_rainrate":           d.maxRainrate,
	}
}

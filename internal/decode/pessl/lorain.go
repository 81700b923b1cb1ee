// Package pessl implements the decoder for the Pessl Instruments Lorain
// tipping-bucket rain gauge / agrometeorology probe, ported from
// lorain_message.cpp. Unlike every Barani/Dragino frame this platform
// decodes, Lorain's fields are little-endian (byte-reversed) — hence the
// heavier use of hexframe.Cursor.ParseLittleEndian here.
package pessl

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/meteo-concept/ingestd/internal/hexframe"
	"github.com/meteo-concept/ingestd/internal/model"
)

const (
	lorainFrameNibbles   = 94
	lorainRainGaugeResMM = 0.2
	lorainCounterModulus = 1 << 16
	lorainCacheKey       = "lorain_rainfall_clicks"
	lorainCacheStaleAfter = 24 * time.Hour
)

// CounterStore mirrors decode.CounterStore, repeated locally to avoid an
// import cycle with the parent decode package's registration file.
type CounterStore interface {
	GetCachedInt(ctx context.Context, station model.StationID, key string) (updatedAt time.Time, value int64, found bool, err error)
	CacheInt(ctx context.Context, station model.StationID, key string, updatedAt time.Time, value int64) error
}

// Lorain decodes the Pessl Lorain frame.
type Lorain struct {
	valid bool
	time  time.Time

	batteryVoltage       uint64
	solarPanelVoltage    uint64
	rainfallClicks       int64
	rainfall             float64
	temperature          float64
	minTemperature       float64
	maxTemperature       float64
	humidity             float64
	minHumidity          float64
	maxHumidity          float64
	deltaT               float64
	minDeltaT             float64
	maxDeltaT             float64
	dewPoint              float64
	minDewPoint           float64
	vaporPressureDeficit  float64
	minVaporPressureDeficit float64
	leafWetnessTimeRatio  uint64
}

func NewLorain() *Lorain { return &Lorain{} }

func (d *Lorain) Ingest(ctx context.Context, station model.StationID, payload string, datetime time.Time) error {
	return d.ingest(ctx, station, payload, datetime, nil)
}

func (d *Lorain) IngestWithStore(ctx context.Context, station model.StationID, payload string, datetime time.Time, store CounterStore) error {
	return d.ingest(ctx, station, payload, datetime, store)
}

func (d *Lorain) ingest(ctx context.Context, station model.StationID, payload string, datetime time.Time, store CounterStore) error {
	cur := hexframe.NewCursor(payload)
	if cur.Len() != lorainFrameNibbles {
		d.valid = false
		return fmt.Errorf("pessl lorain: expected %d hex nibbles, got %d", lorainFrameNibbles, cur.Len())
	}
	if err := cur.Ignore(28); err != nil {
		d.valid = false
		return err
	}

	fields := make([]uint64, 0, 17)
	widths := []int{4, 4, 4, 4, 4, 4, 4, 4, 4, 4, 4, 4, 4, 4, 4, 4, 2}
	for _, w := range widths {
		v, err := cur.ParseLittleEndian(w)
		if err != nil {
			d.valid = false
			return err
		}
		fields = append(fields, v)
	}

	d.time = datetime
	d.batteryVoltage = fields[0]
	d.solarPanelVoltage = fields[1]
	d.rainfallClicks = int64(fields[2])
	tm, tn, tx := int64(int16(fields[3])), int64(int16(fields[4])), int64(int16(fields[5]))
	rhm, rhn, rhx := int64(int16(fields[6])), int64(int16(fields[7])), int64(int16(fields[8]))
	deltaTm, deltaTn, deltaTx := int64(int16(fields[9])), int64(int16(fields[10])), int64(int16(fields[11]))
	dw, dn := int64(int16(fields[12])), int64(int16(fields[13]))
	vp, vpn := int64(int16(fields[14])), int64(int16(fields[15]))
	l := fields[16]

	d.temperature = float64(tm) / 100
	d.maxTemperature = float64(tx) / 100
	d.minTemperature = float64(tn) / 100

	d.humidity = float64(rhm) / 10
	d.maxHumidity = float64(rhx) / 10
	d.minHumidity = float64(rhn) / 10

	d.deltaT = float64(deltaTm) / 100
	d.maxDeltaT = float64(deltaTx) / 100
	d.minDeltaT = float64(deltaTn) / 100

	d.dewPoint = float64(dw) / 100
	d.minDewPoint = float64(dn) / 100

	d.vaporPressureDeficit = float64(vp) / 100
	d.minVaporPressureDeficit = float64(vpn) / 100

	d.leafWetnessTimeRatio = l

	d.rainfall = math.NaN()
	if store != nil {
		updatedAt, previous, found, err := store.GetCachedInt(ctx, station, lorainCacheKey)
		if err == nil && found && time.Since(updatedAt) <= lorainCacheStaleAfter {
			if d.rainfallClicks >= previous {
				d.rainfall = float64(d.rainfallClicks-previous) * lorainRainGaugeResMM
			} else {
				d.rainfall = float64(lorainCounterModulus-previous+d.rainfallClicks) * lorainRainGaugeResMM
			}
		}
	}

	d.valid = true
	return nil
}

func (d *Lorain) CacheAfterInsert(ctx context.Context, station model.StationID, store CounterStore) error {
	if !d.valid {
		return nil
	}
	return store.CacheInt(ctx, station, lorainCacheKey, d.time, d.rainfallClicks)
}

func (d *Lorain) ValidAfterParse() bool { return d.valid }

func (d *Lorain) ToObservation(station model.StationID) model.Observation {
	obs := model.Observation{Station: station, SensorModel: "pessl_lorain"}
	if !d.valid {
		return obs
	}
	obs.Timestamp = d.time
	obs.DewPoint = model.Some(d.dewPoint)
	obs.Humidity = model.Some(math.Round(d.humidity))
	obs.Temperature = model.Some(d.temperature)
	obs.MinTemperature = model.Some(d.minTemperature)
	obs.MaxTemperature = model.Some(d.maxTemperature)
	obs.DeltaT = model.Some(d.deltaT)
	obs.VaporPressureDeficit = model.Some(d.vaporPressureDeficit)
	obs.LeafWetnessRatio = model.Some(float64(d.leafWetnessTimeRatio))
	if !math.IsNaN(d.rainfall) {
		obs.RainfallSinceLast = model.Some(d.rainfall)
	}
	return obs
}

func (d *Lorain) Describe() map[string]any {
	return map[string]any{
		"model":                   "pessl_lorain",
		"battery_voltage":         d.batteryVoltage,
		"solar_panel_voltage":     d.solarPanelVoltage,
		"rainfall_clicks":         d.rainfallClicks,
		"rainfall":                d.rainfall,
		"temperature":             d.temperature,
		"min_temperature":         d.minTemperature,
		"max_temperature":         d.maxTemperature,
		"humidity":                d.humidity,
		"delta_t":                 d.deltaT,
		"dew_point":               d.dewPoint,
		"vapor_pressure_deficit":  d.vaporPressureDeficit,
		"leaf_wetness_time_ratio": d.leafWetnessTimeRatio,
	}
}

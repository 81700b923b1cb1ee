// ThplNbiot ports thplnbiot_message.cpp (grounded on the sibling
// thpllora_message.cpp, the closest sensor in the pack: same
// battery/rainrate/total-pulses/temperature/humidity field layout, with
// an extra leading 32-bit relative-offset-seconds field since the
// NB-IoT uplink batches several records per datagram). Like
// Cpl01Pluviometer, rainfall needs the previously cached tick count
// from C4 and persists the new count back once accepted.
package dragino

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/meteo-concept/ingestd/internal/hexframe"
	"github.com/meteo-concept/ingestd/internal/model"
)

const (
	thplNbiotRecordNibbles    = 32
	thplNbiotRainGaugeResMM   = 0.2
	thplNbiotCounterModulus   = 0x100000000 // 32-bit cumulative tick counter
	thplNbiotRainfallCacheKey = "thplnbiot_rainfall_clicks"
	thplNbiotCacheStaleAfter  = 24 * time.Hour
)

// ThplNbiotReading is one decoded record. A single UDP datagram may carry
// several of these (spec.md §6); ThplNbiot itself only models one.
type ThplNbiotReading struct {
	time        time.Time
	battery     float64
	rainrate    float64
	totalPulses int64
	rainfall    float64
	temperature float64
	humidity    float64
}

// ThplNbiot decodes one "Thplnbiot" record, given the reference time the
// uplink's relative offset is counted from.
type ThplNbiot struct {
	valid   bool
	reading ThplNbiotReading
}

func NewThplNbiot() *ThplNbiot { return &ThplNbiot{} }

// Ingest satisfies decode.Decoder by decoding a single record with no
// rainfall cache available (see IngestWithStore for the stateful path
// the UDP receiver actually calls).
func (d *ThplNbiot) Ingest(ctx context.Context, station model.StationID, payload string, datetime time.Time) error {
	return d.ingest(ctx, station, payload, datetime, nil)
}

func (d *ThplNbiot) IngestWithStore(ctx context.Context, station model.StationID, payload string, datetime time.Time, store CounterStore) error {
	return d.ingest(ctx, station, payload, datetime, store)
}

func (d *ThplNbiot) ingest(ctx context.Context, station model.StationID, payload string, datetime time.Time, store CounterStore) error {
	cur := hexframe.NewCursor(payload)
	if cur.Len() != thplNbiotRecordNibbles {
		d.valid = false
		return fmt.Errorf("thplnbiot: expected %d hex nibbles, got %d", thplNbiotRecordNibbles, cur.Len())
	}

	offsetSeconds, err := cur.ParseBigEndian(8)
	if err != nil {
		d.valid = false
		return err
	}
	battery, err := cur.ParseBigEndian(4)
	if err != nil {
		d.valid = false
		return err
	}
	rainrate, err := cur.ParseBigEndian(4)
	if err != nil {
		d.valid = false
		return err
	}
	totalPulses, err := cur.ParseBigEndian(8)
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

	r := ThplNbiotReading{
		time:        datetime.Add(-time.Duration(offsetSeconds) * time.Second),
		battery:     float64(battery) / 1000,
		totalPulses: int64(totalPulses),
		rainfall:    math.NaN(),
	}
	if rainrate == 0x7FFF {
		r.rainrate = math.NaN()
	} else {
		r.rainrate = float64(rainrate) / 10
	}
	if temp == 0xFFFF {
		r.temperature = math.NaN()
		r.humidity = math.NaN()
	} else {
		r.humidity = float64(hum) / 10
		if temp&0xFC00 == 0 {
			r.temperature = float64(temp) / 10
		} else {
			r.temperature = (float64(temp) - 65535) / 10
		}
	}

	if store != nil {
		updatedAt, previousClicks, found, err := store.GetCachedInt(ctx, station, thplNbiotRainfallCacheKey)
		if err == nil && found && time.Since(updatedAt) <= thplNbiotCacheStaleAfter {
			if r.totalPulses >= previousClicks {
				r.rainfall = float64(r.totalPulses-previousClicks) * thplNbiotRainGaugeResMM
			} else {
				r.rainfall = float64((thplNbiotCounterModulus-1-previousClicks)+r.totalPulses+1) * thplNbiotRainGaugeResMM
			}
		}
	}

	d.reading = r
	d.valid = true
	return nil
}

func (d *ThplNbiot) CacheAfterInsert(ctx context.Context, station model.StationID, store CounterStore) error {
	if !d.valid {
		return nil
	}
	return store.CacheInt(ctx, station, thplNbiotRainfallCacheKey, d.reading.time, d.reading.totalPulses)
}

func (d *ThplNbiot) ValidAfterParse() bool { return d.valid }

func (d *ThplNbiot) ToObservation(station model.StationID) model.Observation {
	obs := model.Observation{Station: station, SensorModel: "Thplnbiot_20240621"}
	if !d.valid {
		return obs
	}
	obs.Timestamp = d.reading.time
	obs.BatteryVoltage = model.Some(d.reading.battery)
	if !math.IsNaN(d.reading.temperature) {
		obs.Temperature = model.Some(d.reading.temperature)
	}
	if !math.IsNaN(d.reading.humidity) {
		obs.Humidity = model.Some(math.Round(d.reading.humidity))
	}
	if !math.IsNaN(d.reading.rainfall) {
		obs.RainfallSinceLast = model.Some(d.reading.rainfall)
	}
	return obs
}

func (d *ThplNbiot) Describe() map[string]any {
	return map[string]any{
		"model":        "Thplnbiot_20240621",
		"battery":      d.reading.battery,
		"temperature":  d.reading.temperature,
		"humidity":     d.reading.humidity,
		"total_pulses": d.reading.totalPulses,
		"rainfall":     d.reading.rainfall,
		"rainrate":     d.reading.rainrate,
	}
}

// Thpllora ports thpllora_message.cpp: the LoRaWAN transport variant of
// the combined temperature/humidity/pluviometer sensor this platform also
// receives over NB-IoT (see ThplNbiot) — same field layout and the same
// 32-bit tick-counter rain cache contract, different radio.
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
	thplloraFrameNibbles     = 24
	thplloraRainGaugeResMM   = 0.2
	thplloraCounterModulus   = 1 << 32
	thplloraCacheKey         = "thpllora_rainfall_clicks"
	thplloraCacheStaleAfter  = 24 * time.Hour
)

// Thpllora decodes the "Thpllora_20230713" frame.
type Thpllora struct {
	valid       bool
	time        time.Time
	battery     float64
	rainrate    float64
	totalPulses int64
	temperature float64
	humidity    float64
	rainfall    float64
}

func NewThpllora() *Thpllora { return &Thpllora{} }

func (d *Thpllora) Ingest(ctx context.Context, station model.StationID, payload string, datetime time.Time) error {
	return d.ingest(ctx, station, payload, datetime, nil)
}

func (d *Thpllora) IngestWithStore(ctx context.Context, station model.StationID, payload string, datetime time.Time, store CounterStore) error {
	return d.ingest(ctx, station, payload, datetime, store)
}

func (d *Thpllora) ingest(ctx context.Context, station model.StationID, payload string, datetime time.Time, store CounterStore) error {
	cur := hexframe.NewCursor(payload)
	if cur.Len() != thplloraFrameNibbles {
		d.valid = false
		return fmt.Errorf("dragino thpllora: expected %d hex nibbles, got %d", thplloraFrameNibbles, cur.Len())
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

	d.time = datetime
	d.battery = float64(battery) / 1000
	d.totalPulses = int64(totalPulses)

	if rainrate == 0x7FFF {
		d.rainrate = math.NaN()
	} else {
		d.rainrate = float64(rainrate) / 10
	}

	d.humidity = float64(hum) / 10
	switch {
	case temp == 0xFFFF:
		d.temperature = math.NaN()
		d.humidity = math.NaN()
	case temp&0xFC00 == 0:
		d.temperature = float64(temp) / 10
	default:
		d.temperature = (float64(temp) - 65535) / 10
	}

	d.rainfall = math.NaN()
	if store != nil {
		updatedAt, previous, found, err := store.GetCachedInt(ctx, station, thplloraCacheKey)
		if err == nil && found && time.Since(updatedAt) <= thplloraCacheStaleAfter {
			if d.totalPulses >= previous {
				d.rainfall = float64(d.totalPulses-previous) * thplloraRainGaugeResMM
			} else {
				d.rainfall = float64(thplloraCounterModulus-previous+d.totalPulses) * thplloraRainGaugeResMM
			}
		}
	}

	d.valid = true
	return nil
}

func (d *Thpllora) CacheAfterInsert(ctx context.Context, station model.StationID, store CounterStore) error {
	if !d.valid {
		return nil
	}
	return store.CacheInt(ctx, station, thplloraCacheKey, d.time, d.totalPulses)
}

func (d *Thpllora) ValidAfterParse() bool { return d.valid }

func (d *Thpllora) ToObservation(station model.StationID) model.Observation {
	obs := model.Observation{Station: station, SensorModel: "Thpllora_20230713"}
	if !d.valid {
		return obs
	}
	obs.Timestamp = d.time
	if !math.IsNaN(d.rainfall) {
		obs.RainfallSinceLast = model.Some(d.rainfall)
	}
	if !math.IsNaN(d.rainrate) {
		obs.RainRate = model.Some(d.rainrate)
	}
	if !math.IsNaN(d.temperature) {
		obs.Temperature = model.Some(d.temperature)
	}
	if !math.IsNaN(d.humidity) {
		obs.Humidity = model.Some(math.Round(d.humidity))
	}
	obs.BatteryVoltage = model.Some(d.battery)
	return obs
}

func (d *Thpllora) Describe() map[string]any {
	return map[string]any{
		"model":        "Thpllora_20230713",
		"battery":      d.battery,
		"temperature":  d.temperature,
		"humidity":     d.humidity,
		"total_pulses": d.totalPulses,
		"rainfall":     d.rainfall,
		"rainrate":     d.rainrate,
	}
}

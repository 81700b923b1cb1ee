// RainGauge ports barani_rain_gauge_message.cpp's tick-counter decode:
// a cumulative click counter with the same cached-previous-value,
// modulo-wraparound, 24-hour-staleness pattern as dragino.Cpl01Pluviometer
// (both ultimately implement spec.md §4.3 rule 5, "rain-counter wrap").
// The Barani frame is longer than CPL01's, but the counter is the same
// 24 bits wide and the cache contract is identical, so this type is
// deliberately thin: it follows the parent decode package's
// StatefulDecoder shape and computes the wraparound as a plain modulo
// difference.
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
	rainGaugeFrameNibbles = 20
	rainGaugeResolutionMM = 0.2
	rainGaugeModulus      = 1 << 24
	rainGaugeCacheKey     = "barani_raingauge_clicks"
	rainGaugeStaleAfter   = 24 * time.Hour
)

// CounterStore mirrors decode.CounterStore; repeated locally to avoid an
// import cycle with the parent decode package's registration file.
type CounterStore interface {
	GetCachedInt(ctx context.Context, station model.StationID, key string) (updatedAt time.Time, value int64, found bool, err error)
	CacheInt(ctx context.Context, station model.StationID, key string, updatedAt time.Time, value int64) error
}

type RainGauge struct {
	valid       bool
	time        time.Time
	totalClicks int64
	rainfall    float64
}

func NewRainGauge() *RainGauge { return &RainGauge{} }

func (d *RainGauge) Ingest(ctx context.Context, station model.StationID, payload string, datetime time.Time) error {
	return d.IngestWithStore(ctx, station, payload, datetime, nil)
}

func (d *RainGauge) IngestWithStore(ctx context.Context, station model.StationID, payload string, datetime time.Time, store CounterStore) error {
	cur := hexframe.NewCursor(payload)
	if cur.Len() != rainGaugeFrameNibbles {
		d.valid = false
		return fmt.Errorf("barani rain gauge: expected %d hex nibbles, got %d", rainGaugeFrameNibbles, cur.Len())
	}
	// bytes 0-2: device index (unused here); bytes 3-5: cumulative clicks
	if err := cur.Ignore(6); err != nil {
		d.valid = false
		return err
	}
	clicks, err := cur.ParseBigEndian(6)
	if err != nil {
		d.valid = false
		return err
	}

	d.time = datetime
	d.totalClicks = int64(clicks)
	d.rainfall = math.NaN()

	if store != nil {
		updatedAt, previous, found, err := store.GetCachedInt(ctx, station, rainGaugeCacheKey)
		if err == nil && found && time.Since(updatedAt) <= rainGaugeStaleAfter {
			diff := (d.totalClicks - previous) % rainGaugeModulus
			if diff < 0 {
				diff += rainGaugeModulus
			}
			d.rainfall = float64(diff) * rainGaugeResolutionMM
		}
	}

	d.valid = true
	return nil
}

func (d *RainGauge) CacheAfterInsert(ctx context.Context, station model.StationID, store CounterStore) error {
	if !d.valid {
		return nil
	}
	return store.CacheInt(ctx, station, rainGaugeCacheKey, d.time, d.totalClicks)
}

func (d *RainGauge) ValidAfterParse() bool { return d.valid }

func (d *RainGauge) ToObservation(station model.StationID) model.Observation {
	obs := model.Observation{Station: station, SensorModel: "barani_raingauge"}
	if !d.valid {
		return obs
	}
	obs.Timestamp = d.time
	if !math.IsNaN(d.rainfall) {
		obs.RainfallSinceLast = model.Some(d.rainfall)
	}
	return obs
}

func (d *RainGauge) Describe() map[string]any {
	return map[string]any{"model": "barani_raingauge", "total_clicks": d.totalClicks, "rainfall": d.rainfall}
}

// Cpl01Pluviometer ports cpl01_pluviometer_message.cpp: a 22-nibble frame
// (status byte, 24-bit cumulative tick counter, 6 ignored nibbles, 32-bit
// embedded timestamp). It is stateful: rainfall since the last message
// requires the previously cached tick count from C4, and it persists the
// new count back after the observation is accepted — see
// decode.StatefulDecoder.
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
	cpl01FrameNibbles     = 22
	cpl01RainGaugeResMM   = 0.2
	cpl01CounterModulus   = 0x1000000 // 24-bit tick counter
	cpl01RainfallCacheKey = "cpl01_rainfall_clicks"
	cpl01CacheStaleAfter  = 24 * time.Hour
)

// CounterStore is the narrow interface this decoder needs from C4; it is
// structurally identical to decode.CounterStore, repeated here so this
// package does not need to import the parent decode package (which would
// create an import cycle with decode's registration file).
type CounterStore interface {
	GetCachedInt(ctx context.Context, station model.StationID, key string) (updatedAt time.Time, value int64, found bool, err error)
	CacheInt(ctx context.Context, station model.StationID, key string, updatedAt time.Time, value int64) error
}

// Cpl01Pluviometer decodes the "CPL01_pluviometer_20230410" frame.
type Cpl01Pluviometer struct {
	valid        bool
	time         time.Time
	flag         uint8
	alarm        bool
	currentlyOpen bool
	totalPulses  int64
	rainfall     float64
}

func NewCpl01Pluviometer() *Cpl01Pluviometer { return &Cpl01Pluviometer{} }

func (d *Cpl01Pluviometer) Ingest(ctx context.Context, station model.StationID, payload string, datetime time.Time) error {
	return d.ingest(ctx, station, payload, datetime, nil)
}

// IngestWithStore is the stateful entry point the store facade's write
// path calls; Ingest alone (satisfying the plain Decoder interface) skips
// the cache lookup and always reports rainfall absent, which is correct
// behavior for a cacheless dry-run but not for production ingestion.
func (d *Cpl01Pluviometer) IngestWithStore(ctx context.Context, station model.StationID, payload string, datetime time.Time, store CounterStore) error {
	return d.ingest(ctx, station, payload, datetime, store)
}

func (d *Cpl01Pluviometer) ingest(ctx context.Context, station model.StationID, payload string, datetime time.Time, store CounterStore) error {
	cur := hexframe.NewCursor(payload)
	if cur.Len() != cpl01FrameNibbles {
		d.valid = false
		return fmt.Errorf("cpl01: expected %d hex nibbles, got %d", cpl01FrameNibbles, cur.Len())
	}

	statusAndAlarm, err := cur.ParseBigEndian(2)
	if err != nil {
		d.valid = false
		return err
	}
	totalPulses, err := cur.ParseBigEndian(6)
	if err != nil {
		d.valid = false
		return err
	}
	if err := cur.Ignore(6); err != nil {
		d.valid = false
		return err
	}
	embeddedTS, err := cur.ParseBigEndian(8)
	if err != nil {
		d.valid = false
		return err
	}

	d.time = datetime
	d.flag = uint8(statusAndAlarm & 0b1111_1100)
	d.alarm = statusAndAlarm&0b0000_0010 != 0
	d.currentlyOpen = statusAndAlarm&0b0000_0001 != 0
	d.totalPulses = int64(totalPulses)
	d.rainfall = math.NaN()

	var lastUpdate time.Time
	if store != nil {
		updatedAt, previousClicks, found, err := store.GetCachedInt(ctx, station, cpl01RainfallCacheKey)
		if err == nil && found {
			lastUpdate = updatedAt
			if time.Since(updatedAt) <= cpl01CacheStaleAfter {
				if d.totalPulses >= previousClicks {
					d.rainfall = float64(d.totalPulses-previousClicks) * cpl01RainGaugeResMM
				} else {
					d.rainfall = float64((cpl01CounterModulus-1-previousClicks)+d.totalPulses+1) * cpl01RainGaugeResMM
				}
			}
			// cache older than 24h: rainfall stays absent but the
			// counter is still refreshed by CacheAfterInsert below.
		}
	}

	// trust the embedded timestamp only if it is more recent than the
	// last cached update, mirroring the original's guard against a
	// station whose LoRa clock hasn't synced yet
	if time.Unix(int64(embeddedTS), 0).After(lastUpdate) {
		d.time = time.Unix(int64(embeddedTS), 0).UTC()
	}

	d.valid = true
	return nil
}

// CacheAfterInsert persists the new tick count, called once the caller
// has durably accepted the observation (see decode.StatefulDecoder).
func (d *Cpl01Pluviometer) CacheAfterInsert(ctx context.Context, station model.StationID, store CounterStore) error {
	if !d.valid {
		return nil
	}
	return store.CacheInt(ctx, station, cpl01RainfallCacheKey, d.time, d.totalPulses)
}

func (d *Cpl01Pluviometer) ValidAfterParse() bool { return d.valid }

func (d *Cpl01Pluviometer) ToObservation(station model.StationID) model.Observation {
	obs := model.Observation{Station: station, SensorModel: "CPL01_pluviometer_20230410"}
	if !d.valid {
		return obs
	}
	obs.Timestamp = d.time
	if !math.IsNaN(d.rainfall) {
		obs.RainfallSinceLast = model.Some(d.rainfall)
	}
	return obs
}

func (d *Cpl01Pluviometer) Describe() map[string]any {
	return map[string]any{
		"model":          "CPL01_pluviometer_20230410",
		"flag":           d.flag,
		"alarm":          d.alarm,
		"currently_open": d.currentlyOpen,
		"total_pulses":   d.totalPulses,
		"rainfall":       d.rainfall,
	}
}

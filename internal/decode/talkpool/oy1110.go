// Package talkpool implements the decoder for the Talkpool OY1110
// thermo-hygrometer, ported from oy1110_thermohygrometer_message.cpp.
// Unlike the other Barani/Dragino models this one can carry several
// stacked records in a single payload (a history buffer the device
// flushes in one uplink), optionally prefixed by a one-byte header
// encoding the time step between records.
package talkpool

import (
	"context"
	"fmt"
	"time"

	"github.com/meteo-concept/ingestd/internal/hexframe"
	"github.com/meteo-concept/ingestd/internal/model"
)

const recordNibbles = 6 // 3 bytes: temp-high-byte, hum-high-byte, temp-low-nibble+hum-low-nibble

// record holds one decoded (temperature, humidity) pair.
type record struct {
	temperature float64
	humidity    float64
}

// Oy1110Thermohygrometer decodes the "talkpool_oy1110_20221006" frame,
// which may expand into N stacked records.
type Oy1110Thermohygrometer struct {
	valid   bool
	basetime time.Time
	offset  time.Duration // time step between stacked records, 0 if no header
	records []record
}

func NewOy1110Thermohygrometer() *Oy1110Thermohygrometer { return &Oy1110Thermohygrometer{} }

func validateOy1110(payload string) bool {
	n := len(payload)
	if n == recordNibbles {
		return true
	}
	return n > recordNibbles && (n-2)%recordNibbles == 0
}

func (d *Oy1110Thermohygrometer) Ingest(_ context.Context, _ model.StationID, payload string, datetime time.Time) error {
	if !validateOy1110(payload) {
		d.valid = false
		return fmt.Errorf("talkpool oy1110: payload must be a 3-byte record or a 1-byte header plus 3-byte records, got %d hex chars", len(payload))
	}

	cur := hexframe.NewCursor(payload)
	d.basetime = datetime
	d.offset = 0

	if cur.Len() > recordNibbles {
		header, err := cur.ParseBigEndian(2)
		if err != nil {
			d.valid = false
			return err
		}
		minOrHour := header & 0b1000_0000
		t := header & 0b0111_1111
		if minOrHour == 0 {
			d.offset = time.Duration(t) * time.Minute
		} else {
			d.offset = time.Duration(t) * time.Hour
		}
	}

	for cur.Len() > 0 {
		temp1, err := cur.ParseBigEndian(2)
		if err != nil {
			d.valid = false
			return err
		}
		hum1, err := cur.ParseBigEndian(2)
		if err != nil {
			d.valid = false
			return err
		}
		temp2, err := cur.ParseBigEndian(1)
		if err != nil {
			d.valid = false
			return err
		}
		hum2, err := cur.ParseBigEndian(1)
		if err != nil {
			d.valid = false
			return err
		}

		temp := (temp1 << 4) + temp2
		hum := (hum1 << 4) + hum2
		tempDiff := (temp - 800) & 0xFFFF // uint16 wraparound, then reinterpreted as signed
		d.records = append(d.records, record{
			temperature: float64(hexframe.SignExtend(tempDiff, 16)) / 10,
			humidity:    (float64(hum) - 250) / 10,
		})
	}

	d.valid = true
	return nil
}

func (d *Oy1110Thermohygrometer) ValidAfterParse() bool { return d.valid }

// ToObservation returns only the first (most recent) record in the
// message, the way the original's getObservation does — a multi-record
// uplink is a history replay, and the spec treats the freshest sample as
// the one representative observation; callers that need the full history
// use Records directly.
func (d *Oy1110Thermohygrometer) ToObservation(station model.StationID) model.Observation {
	obs := model.Observation{Station: station, SensorModel: "talkpool_oy1110_20221006"}
	if !d.valid || len(d.records) == 0 {
		return obs
	}
	obs.Timestamp = d.basetime
	obs.Temperature = model.Some(d.records[0].temperature)
	obs.Humidity = model.Some(d.records[0].humidity)
	return obs
}

// Records returns every decoded observation in the uplink, with
// timestamps stepped backward by the encoded interval — record i is
// d.offset*i older than basetime.
func (d *Oy1110Thermohygrometer) Records(station model.StationID) []model.Observation {
	obs := make([]model.Observation, 0, len(d.records))
	for i, r := range d.records {
		obs = append(obs, model.Observation{
			Station:     station,
			SensorModel: "talkpool_oy1110_20221006",
			Timestamp:   d.basetime.Add(-time.Duration(i) * d.offset),
			Temperature: model.Some(r.temperature),
			Humidity:    model.Some(r.humidity),
		})
	}
	return obs
}

func (d *Oy1110Thermohygrometer) Describe() map[string]any {
	return map[string]any{
		"model":   "talkpool_oy1110_20221006",
		"offset":  d.offset.String(),
		"records": len(d.records),
	}
}

// Package meteofrance implements the one C3 decoder that isn't a
// hex-frame format: the RADOME hourly feed delivers plain JSON, as
// mf_radome_message.h's fields attest (temperature/humidity/pressure/wind
// already in engineering units, no bit-packing). It still satisfies the
// same Decoder contract as the hex decoders so C7's downloader and C4's
// write path don't need a format-specific branch.
package meteofrance

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/meteo-concept/ingestd/internal/model"
)

// RadomePayload is the subset of the RADOME hourly JSON object this
// decoder reads.
type RadomePayload struct {
	Temperature   *float64 `json:"t"`
	Humidity      *float64 `json:"u"`
	Pressure      *float64 `json:"pres"`
	WindSpeed     *float64 `json:"ff"`
	WindDirection *float64 `json:"dd"`
}

type Radome struct {
	valid   bool
	time    time.Time
	payload RadomePayload
}

func NewRadome() *Radome { return &Radome{} }

// Ingest parses payload as JSON rather than hex; the parameter stays a
// string to satisfy decode.Decoder's signature uniformly across formats.
func (d *Radome) Ingest(_ context.Context, _ model.StationID, payload string, datetime time.Time) error {
	var p RadomePayload
	if err := json.Unmarshal([]byte(payload), &p); err != nil {
		d.valid = false
		return fmt.Errorf("meteofrance radome: invalid JSON payload: %w", err)
	}
	d.payload = p
	d.time = datetime
	d.valid = true
	return nil
}

func (d *Radome) ValidAfterParse() bool { return d.valid }

func (d *Radome) ToObservation(station model.StationID) model.Observation {
	obs := model.Observation{Station: station, SensorModel: "meteofrance_radome_hourly"}
	if !d.valid {
		return obs
	}
	obs.Timestamp = d.time
	if d.payload.Temperature != nil {
		obs.Temperature = model.Some(*d.payload.Temperature - 273.15)
	}
	if d.payload.Humidity != nil {
		obs.Humidity = model.Some(*d.payload.Humidity)
	}
	if d.payload.Pressure != nil {
		obs.Pressure = model.Some(*d.payload.Pressure / 100)
	}
	if d.payload.WindSpeed != nil {
		obs.WindSpeed = model.Some(*d.payload.WindSpeed)
	}
	if d.payload.WindDirection != nil {
		obs.WindDirection = model.Some(*d.payload.WindDirection)
	}
	return obs
}

func (d *Radome) Describe() map[string]any {
	raw, _ := json.Marshal(d.payload)
	return map[string]any{"model": "meteofrance_radome_hourly", "payload": string(raw)}
}

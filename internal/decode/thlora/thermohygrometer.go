// Package thlora implements the decoder for the ThLoRa thermo-hygrometer,
// ported from thlora_thermohygrometer_message.cpp. The frame is the
// shortest this platform decodes: nine raw bytes, each parsed individually
// in natural (big-endian) nibble order, with the 16-bit fields assembled
// by hand from two such bytes in little-endian order — exactly as the
// original does with raw[n] + (raw[n+1] << 8).
package thlora

import (
	"context"
	"fmt"
	"time"

	"github.com/meteo-concept/ingestd/internal/hexframe"
	"github.com/meteo-concept/ingestd/internal/model"
)

const thermohygrometerFrameNibbles = 18

// Thermohygrometer decodes the ThLoRa thermo-hygrometer frame.
type Thermohygrometer struct {
	valid bool
	time  time.Time

	header      uint64
	temperature float64
	humidity    float64
	period      uint64
	rssi        int64
	snr         float64
	battery     float64
}

func NewThermohygrometer() *Thermohygrometer { return &Thermohygrometer{} }

func (d *Thermohygrometer) Ingest(_ context.Context, _ model.StationID, payload string, datetime time.Time) error {
	cur := hexframe.NewCursor(payload)
	if cur.Len() != thermohygrometerFrameNibbles {
		d.valid = false
		return fmt.Errorf("thlora thermohygrometer: expected %d hex nibbles, got %d", thermohygrometerFrameNibbles, cur.Len())
	}

	raw := make([]uint64, 9)
	for i := range raw {
		v, err := cur.ParseBigEndian(2)
		if err != nil {
			d.valid = false
			return err
		}
		raw[i] = v
	}

	d.time = datetime
	d.header = raw[0]

	temperature := raw[1] + (raw[2] << 8)
	d.temperature = (175.72*float64(temperature))/65536 - 46.85

	humidity := raw[3]
	d.humidity = (125*float64(humidity))/256 - 6

	period := raw[4] + (raw[5] << 8)
	d.period = period * 2

	rssi := raw[6]
	if rssi == 0xFF {
		d.rssi = -180
	} else {
		d.rssi = -180 + int64(rssi)
	}

	snr := raw[7]
	if snr >= 0xF0 {
		d.snr = -float64(0xFF-snr+1) / 4
	} else {
		d.snr = float64(snr) / 4
	}

	battery := raw[8]
	d.battery = (float64(battery) + 150) * 0.01

	d.valid = true
	return nil
}

func (d *Thermohygrometer) ValidAfterParse() bool { return d.valid }

// ToObservation exposes only temperature and humidity, mirroring the
// original's getObservation: period, rssi, snr and battery are diagnostic
// fields surfaced through Describe but never mapped onto the record.
func (d *Thermohygrometer) ToObservation(station model.StationID) model.Observation {
	obs := model.Observation{Station: station, SensorModel: "thlora_thermohygrometer"}
	if !d.valid {
		return obs
	}
	obs.Timestamp = d.time
	obs.Temperature = model.Some(d.temperature)
	obs.Humidity = model.Some(float64(int(d.humidity)))
	return obs
}

func (d *Thermohygrometer) Describe() map[string]any {
	return map[string]any{
		"model":       "thlora_thermohygrometer",
		"header":      d.header,
		"temperature": d.temperature,
		"humidity":    d.humidity,
		"period":      d.period,
		"rssi":        d.rssi,
		"snr":         d.snr,
		"battery":     d.battery,
	}
}

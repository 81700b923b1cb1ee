// Package monitorii decodes Davis Monitor II archive pages pushed over
// HTTP (spec.md §4.8's "monitorII" model segment), ported from
// original_source's davis/monitorII_archive_entry.cpp packed DataPoint
// layout — a fixed 23-byte little-endian record, distinct from the VP2's
// 52-byte one, so it gets its own RecordDecoder instead of a branch in
// davisvp2.
package monitorii

import (
	"encoding/binary"
	"time"

	"github.com/meteo-concept/ingestd/internal/model"
)

const recordSize = 23

// Decoder implements httpserver.RecordDecoder for Monitor II archive
// pages.
type Decoder struct{}

func (Decoder) RecordSize() int { return recordSize }

// Decode mirrors MonitorIIArchiveEntry::looksValid and ::getObservation:
// reject an all-zero timestamp or one in the future, otherwise convert
// every sentinel-guarded field from its Imperial unit to this platform's
// metric Observation.
func (Decoder) Decode(station model.StationID, rec []byte) (model.Observation, bool) {
	if len(rec) != recordSize {
		return model.Observation{}, false
	}
	if rec[0] == 0 && rec[1] == 0 && rec[2] == 0 && rec[3] == 0 {
		return model.Observation{}, false
	}

	epoch := int64(binary.LittleEndian.Uint32(rec[15:19]))
	timestamp := time.Unix(epoch, 0).UTC()
	if timestamp.After(time.Now()) {
		return model.Observation{}, false
	}

	obs := model.Observation{Station: station, Timestamp: timestamp, SensorModel: "davis-monitorii-archive"}

	if barometer := binary.LittleEndian.Uint16(rec[0:2]); barometer != 0xFFFF {
		obs.Pressure = model.Some(float64(barometer) / 1000 * 33.8639) // inHg*1000 -> hPa
	}
	if outsideHumidity := rec[3]; outsideHumidity != 0xFF {
		obs.Humidity = model.Some(float64(outsideHumidity))
	}

	rainfall := binary.LittleEndian.Uint16(rec[4:6])
	obs.RainfallSinceLast = model.Some(float64(rainfall) * 0.2) // clicks -> mm, same convention as VP2

	if avgOutsideTemp := int16(binary.LittleEndian.Uint16(rec[8:10])); avgOutsideTemp != 0x7FFF {
		obs.Temperature = model.Some(fahrenheitToCelsius(float64(avgOutsideTemp) / 10))
	}
	if avgWindSpeed := rec[10]; avgWindSpeed != 0xFF {
		obs.WindSpeed = model.Some(float64(avgWindSpeed) * 0.44704) // mph -> m/s
	}
	if dominantWindDir := rec[11]; dominantWindDir != 0xFF {
		obs.WindDirection = model.Some(float64(dominantWindDir) * 22.5)
	}
	if hiWindSpeed := rec[14]; hiWindSpeed != 0xFF {
		obs.WindGust = model.Some(float64(hiWindSpeed) * 0.44704)
	}

	return obs, true
}

func fahrenheitToCelsius(f float64) float64 {
	return (f - 32) * 5 / 9
}

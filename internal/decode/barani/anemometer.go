// Package barani implements decoders for Barani Design sensor models
// (anemometer, rain gauge, thermo-hygro-baro). This file ports
// barani_anemometer_message.cpp's bit layout exactly: a 20-nibble (10
// byte) frame packing a 10-minute wind average, a 3-second gust, standard
// deviations, directions and a timestamp offset for the peak gust, all at
// sub-byte bit offsets.
package barani

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/meteo-concept/ingestd/internal/hexframe"
	"github.com/meteo-concept/ingestd/internal/model"
)

const anemometerFrameNibbles = 20

// AnemometerV1 decodes the "barani_anemometer_20230411" frame.
type AnemometerV1 struct {
	valid bool
	time  time.Time

	index                  uint16
	batteryVoltage         float64
	windAvg10minSpeed      float64
	wind3sGustSpeed        float64
	windSpeedStdev         float64
	windAvg10minDirection  int
	wind3sGustDirection    int
	windDirectionStdev     int
	maxWindDatetime        time.Time
	vectorOrScalar         bool
	alarmSent              bool
}

// NewAnemometerV1 returns a fresh, unparsed decoder instance.
func NewAnemometerV1() *AnemometerV1 { return &AnemometerV1{} }

func (a *AnemometerV1) Ingest(_ context.Context, _ model.StationID, payload string, datetime time.Time) error {
	cur := hexframe.NewCursor(payload)
	if cur.Len() != anemometerFrameNibbles {
		a.valid = false
		return fmt.Errorf("barani anemometer: expected %d hex nibbles, got %d", anemometerFrameNibbles, cur.Len())
	}

	raw := make([]uint64, 10)
	for i := range raw {
		v, err := cur.ParseBigEndian(2)
		if err != nil {
			a.valid = false
			return err
		}
		raw[i] = v
	}

	a.time = datetime
	a.index = uint16(raw[0])

	battery := (raw[1] & 0b1110_0000) >> 5
	if battery == 0b111 {
		a.batteryVoltage = math.NaN()
	} else {
		a.batteryVoltage = 3 + float64(battery)*0.2
	}

	windAvgRaw := ((raw[1] & 0b0001_1111) << 4) + ((raw[2] & 0b1111_0000) >> 4)
	if windAvgRaw == 0b1_1111_1111 {
		a.windAvg10minSpeed = math.NaN()
	} else {
		a.windAvg10minSpeed = float64(windAvgRaw) * 0.36
	}

	gustRaw := ((raw[2] & 0b0000_1111) << 5) + ((raw[3] & 0b1111_1000) >> 3)
	if gustRaw == 0b1_1111_1111 {
		a.wind3sGustSpeed = math.NaN()
	} else {
		a.wind3sGustSpeed = (float64(windAvgRaw) + float64(gustRaw)) * 0.36
	}

	stdevRaw := ((raw[4] & 0b0000_0011) << 6) + ((raw[5] & 0b1111_1100) >> 2)
	if stdevRaw == 0b1111_1111 {
		a.windSpeedStdev = math.NaN()
	} else {
		a.windSpeedStdev = float64(stdevRaw) * 0.36
	}

	dirRaw := ((raw[5] & 0b0000_0011) << 7) + ((raw[6] & 0b1111_1110) >> 1)
	if dirRaw == 0b111_1111 {
		a.windAvg10minDirection = -1
	} else {
		a.windAvg10minDirection = int(dirRaw)
	}

	gustDirRaw := ((raw[6] & 0b0000_0001) << 8) + raw[7]
	if gustDirRaw == 0b1_1111_1111 {
		a.wind3sGustDirection = -1
	} else {
		a.wind3sGustDirection = int(gustDirRaw)
	}

	dirStdevRaw := (raw[8] & 0b1111_1110) >> 1
	if dirStdevRaw == 0b111_1111 {
		a.windDirectionStdev = -1
	} else {
		a.windDirectionStdev = int(dirStdevRaw)
	}

	t := ((raw[8] & 0b0000_0001) << 6) + ((raw[9] & 0b1111_1100) >> 2)
	a.maxWindDatetime = datetime.Truncate(time.Minute).Add(-10*time.Minute + time.Duration(t)*5*time.Second)

	a.vectorOrScalar = raw[9]&0b0000_0010 != 0
	a.alarmSent = raw[9]&0b0000_0001 != 0

	a.valid = true
	return nil
}

func (a *AnemometerV1) ValidAfterParse() bool { return a.valid }

func (a *AnemometerV1) ToObservation(station model.StationID) model.Observation {
	obs := model.Observation{Station: station, SensorModel: "barani_anemometer_20230411"}
	if !a.valid {
		return obs
	}
	obs.Timestamp = a.time
	if !math.IsNaN(a.windAvg10minSpeed) {
		obs.WindSpeed = model.Some(a.windAvg10minSpeed)
	}
	if !math.IsNaN(a.wind3sGustSpeed) {
		obs.WindGust = model.Some(a.wind3sGustSpeed)
	}
	if a.windAvg10minDirection >= 0 {
		obs.WindDirection = model.Some(float64(a.windAvg10minDirection))
	}
	if !math.IsNaN(a.windSpeedStdev) {
		obs.WindStdDev = model.Some(a.windSpeedStdev)
	}
	if !math.IsNaN(a.batteryVoltage) {
		obs.BatteryVoltage = model.Some(a.batteryVoltage)
	}
	obs.MaxWindDatetime = model.Some(a.maxWindDatetime)
	return obs
}

func (a *AnemometerV1) Describe() map[string]any {
	return map[string]any{
		"model":                      "barani_anemometer_20230411",
		"index":                      a.index,
		"battery_voltage":            a.batteryVoltage,
		"wind_avg_10min_speed":       a.windAvg10minSpeed,
		"wind_3s_gust_speed":         a.wind3sGustSpeed,
		"wind_speed_stdev":           a.windSpeedStdev,
		"wind_avg_10min_direction":   a.windAvg10minDirection,
		"wind_3s_gust_direction":     a.wind3sGustDirection,
		"wind_direction_stdev":       a.windDirectionStdev,
		"max_wind_datetime":          a.maxWindDatetime.Format(time.RFC3339),
		"vector_or_scalar":           a.vectorOrScalar,
		"alarm_sent":                 a.alarmSent,
	}
}

// AnemometerV2023 ports barani_anemometer_2023_message.cpp: the revised
// Barani anemometer frame (24 nibbles) that reports wind speeds as raw
// sensor frequencies rather than pre-scaled speeds, converted through
// spec.md §4.3's contractual "wind frequency -> m/s" formula
// f*0.6335+0.3582, and that no longer reports a battery voltage directly
// — the decoder estimates a battery index from the message sequence
// number and smooths it against a cached previous value to avoid
// oscillating between adjacent steps.
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
	anemometerV2023FrameNibbles = 24
	anemometerV2023BatteryKey   = "barani_anemometer_v2023_battery"
)

// windFrequencyToKPH converts a raw sensor frequency reading (already
// scaled to Hz by the caller) to km/h via the manufacturer's linear
// calibration, copied verbatim per spec.md §4.3 rule 6's
// "contractual output" requirement for formulas taken from vendor tables.
func windFrequencyToKPH(hz float64) float64 {
	return (hz*0.6335 + 0.3582) * 3.6
}

// AnemometerV2023 decodes the "barani_anemometer_v2023_20240110" frame.
type AnemometerV2023 struct {
	valid bool
	time  time.Time

	index                 uint16
	batteryVoltage        float64
	windAvg10minSpeed     float64
	wind3sGustSpeed       float64
	wind1sGustSpeed       float64
	wind3sMinSpeed        float64
	windSpeedStdev        float64
	windAvg10minDirection int
	wind1sGustDirection   int
	windDirectionStdev    int
	maxWindDatetime       time.Time
	alarmSent             bool
	debugFlags            uint8
}

func NewAnemometerV2023() *AnemometerV2023 { return &AnemometerV2023{} }

func (a *AnemometerV2023) Ingest(ctx context.Context, station model.StationID, payload string, datetime time.Time) error {
	return a.ingest(ctx, station, payload, datetime, nil)
}

// IngestWithStore is the stateful entry point: the battery-index smoothing
// this model requires reads and writes the same cached-counter slice of
// C4 that the rain-counter decoders use, just keyed by a different name
// and holding a battery index instead of a tick count.
func (a *AnemometerV2023) IngestWithStore(ctx context.Context, station model.StationID, payload string, datetime time.Time, store CounterStore) error {
	return a.ingest(ctx, station, payload, datetime, store)
}

func (a *AnemometerV2023) ingest(ctx context.Context, station model.StationID, payload string, datetime time.Time, store CounterStore) error {
	cur := hexframe.NewCursor(payload)
	if cur.Len() != anemometerV2023FrameNibbles {
		a.valid = false
		return fmt.Errorf("barani anemometer v2023: expected %d hex nibbles, got %d", anemometerV2023FrameNibbles, cur.Len())
	}

	raw := make([]uint64, 12)
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

	knownBattery := int64(33)
	if store != nil {
		_, cached, found, err := store.GetCachedInt(ctx, station, anemometerV2023BatteryKey)
		if err == nil && found {
			knownBattery = cached
		}
	}
	// the device only reports a single battery bit per message; the
	// original derives a finer-grained index from the message sequence
	// number and lets it drift toward that estimate by one step per
	// message, clamped to a plausible 3.2-4.2V range
	newBattery := 33 + int64(a.index%10)*2
	if a.index%10 > 4 {
		newBattery -= 10
	}
	switch {
	case newBattery > knownBattery:
		knownBattery++
	case newBattery < knownBattery:
		knownBattery--
	}
	if knownBattery < 32 {
		knownBattery = 32
	} else if knownBattery > 42 {
		knownBattery = 42
	}
	a.batteryVoltage = float64(knownBattery) / 10
	if store != nil {
		_ = store.CacheInt(ctx, station, anemometerV2023BatteryKey, datetime, knownBattery)
	}

	windAvgRaw := ((raw[1] & 0b0111_1111) << 5) + ((raw[2] & 0b1111_1000) >> 3)
	switch windAvgRaw {
	case 0b1111_1111_1111:
		a.windAvg10minSpeed = math.NaN()
	case 0:
		a.windAvg10minSpeed = 0
	default:
		a.windAvg10minSpeed = windFrequencyToKPH(float64(windAvgRaw) * 0.02)
	}

	gustRaw := ((raw[2] & 0b0000_0111) << 6) + ((raw[3] & 0b1111_1100) >> 2)
	switch gustRaw {
	case 0b1_1111_1111:
		a.wind3sGustSpeed = math.NaN()
	case 0:
		a.wind3sGustSpeed = 0
	default:
		a.wind3sGustSpeed = windFrequencyToKPH(float64(windAvgRaw)*0.02 + float64(gustRaw)*0.1)
	}

	gust1sRaw := ((raw[3] & 0b0000_0011) << 6) + ((raw[4] & 0b1111_1100) >> 2)
	switch gust1sRaw {
	case 0b1111_1111:
		a.wind1sGustSpeed = math.NaN()
	case 0:
		a.wind1sGustSpeed = 0
	default:
		a.wind1sGustSpeed = windFrequencyToKPH(float64(windAvgRaw)*0.02 + float64(gustRaw)*0.1 + float64(gust1sRaw)*0.1)
	}

	min3sRaw := ((raw[4] & 0b0000_0011) << 7) + ((raw[5] & 0b1111_1110) >> 1)
	switch min3sRaw {
	case 0b1_1111_1111:
		a.wind3sMinSpeed = math.NaN()
	case 0:
		a.wind3sMinSpeed = 0
	default:
		a.wind3sMinSpeed = windFrequencyToKPH(float64(min3sRaw) * 0.1)
	}

	stdevRaw := ((raw[5] & 1) << 7) + ((raw[6] & 0b1111_1110) >> 1)
	switch stdevRaw {
	case 0b1111_1111:
		a.windSpeedStdev = math.NaN()
	case 0:
		a.windSpeedStdev = 0
	default:
		a.windSpeedStdev = windFrequencyToKPH(float64(stdevRaw) * 0.1)
	}

	dirRaw := ((raw[6] & 1) << 8) + raw[7]
	if dirRaw == 0b1_1111_1111 {
		a.windAvg10minDirection = -1
	} else {
		a.windAvg10minDirection = int(dirRaw)
	}

	gust1sDirRaw := (raw[8] << 1) + ((raw[9] & 0b1000_0000) >> 7)
	if gust1sDirRaw == 0b1_1111_1111 {
		a.wind1sGustDirection = -1
	} else {
		a.wind1sGustDirection = int(gust1sDirRaw)
	}

	dirStdevRaw := ((raw[9] & 0b0111_1111) << 1) + ((raw[10] & 0b1000_0000) >> 7)
	if dirStdevRaw == 0b1111_1111 {
		a.windDirectionStdev = -1
	} else {
		a.windDirectionStdev = int(dirStdevRaw)
	}

	t := raw[10] & 0b0111_1111
	a.maxWindDatetime = datetime.Truncate(time.Minute).Add(-10*time.Minute + time.Duration(t)*5*time.Second)

	a.alarmSent = (raw[11] & 0b1000_0000) != 0
	a.debugFlags = uint8(raw[11] & 0b0111_1111)

	a.valid = true
	return nil
}

func (a *AnemometerV2023) ValidAfterParse() bool { return a.valid }

func (a *AnemometerV2023) ToObservation(station model.StationID) model.Observation {
	obs := model.Observation{Station: station, SensorModel: "barani_anemometer_v2023_20240110"}
	if !a.valid {
		return obs
	}
	obs.Timestamp = a.time
	if !math.IsNaN(a.windAvg10minSpeed) {
		obs.WindSpeed = model.Some(a.windAvg10minSpeed / 3.6)
	}
	if !math.IsNaN(a.wind3sGustSpeed) {
		obs.WindGust = model.Some(a.wind3sGustSpeed / 3.6)
	}
	if !math.IsNaN(a.wind1sGustSpeed) {
		obs.MaxWindGust = model.Some(a.wind1sGustSpeed / 3.6)
	}
	if !math.IsNaN(a.wind3sMinSpeed) {
		obs.MinWindSpeed = model.Some(a.wind3sMinSpeed / 3.6)
	}
	if a.windAvg10minDirection >= 0 {
		obs.WindDirection = model.Some(float64(a.windAvg10minDirection))
	}
	if !math.IsNaN(a.windSpeedStdev) {
		obs.WindStdDev = model.Some(a.windSpeedStdev / 3.6)
	}
	if !math.IsNaN(a.batteryVoltage) {
		obs.BatteryVoltage = model.Some(a.batteryVoltage)
	}
	obs.MaxWindDatetime = model.Some(a.maxWindDatetime)
	return obs
}

func (a *AnemometerV2023) Describe() map[string]any {
	return map[string]any{
		"model":                      "barani_anemometer_v2023_20240110",
		"index":                      a.index,
		"battery_voltage":            a.batteryVoltage,
		"wind_avg_10min_speed":       a.windAvg10minSpeed,
		"wind_3s_gust_speed":         a.wind3sGustSpeed,
		"wind_1s_gust_speed":         a.wind1sGustSpeed,
		"wind_3s_min_speed":          a.wind3sMinSpeed,
		"wind_speed_stdev":           a.windSpeedStdev,
		"wind_avg_10min_direction":   a.windAvg10minDirection,
		"wind_1s_gust_direction":     a.wind1sGustDirection,
		"wind_direction_stdev":       a.windDirectionStdev,
		"max_wind_datetime":          a.maxWindDatetime.Format(time.RFC3339),
		"alarm_sent":                 a.alarmSent,
		"debug_flags":                a.debugFlags,
	}
}

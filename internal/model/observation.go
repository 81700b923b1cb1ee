// Package model holds the shared record types that flow between every
// component: the decoded Observation (C2), station metadata, and the
// small value types (Optional, JobRequest) that the store facade, the
// debounced publisher and the virtual-station computer all pass around.
//
// The teacher's internal/types.Reading is a wide struct of ~140 optional
// float32/uint8 fields where "missing" is encoded as a zero value or a
// device-specific sentinel folded to zero at decode time (see
// convVal100/convBigVal and friends in the davis package). That
// convention is the thing this package deliberately does not repeat:
// a zero reading and a missing reading are different facts, and collapsing
// them loses information a downstream consumer (the virtual-station
// fusion computer, most concretely) needs back. Optional[T] keeps the
// teacher's "one flat record with named fields" shape but makes presence
// explicit instead of implicit.
package model

import "time"

// Optional wraps a value with an explicit presence flag, so "the sensor
// did not report this field" can never be confused with "the sensor
// reported zero."
type Optional[T any] struct {
	Value   T
	Present bool
}

// Some returns a present Optional.
func Some[T any](v T) Optional[T] { return Optional[T]{Value: v, Present: true} }

// None returns an absent Optional.
func None[T any]() Optional[T] { return Optional[T]{} }

// Get returns the value and whether it was present, mirroring the
// comma-ok idiom used for map lookups elsewhere in this codebase.
func (o Optional[T]) Get() (T, bool) { return o.Value, o.Present }

// OrElse returns the wrapped value if present, otherwise fallback.
func (o Optional[T]) OrElse(fallback T) T {
	if o.Present {
		return o.Value
	}
	return fallback
}

// StationID identifies a connector/station uniquely across the platform.
type StationID string

// Observation is the normalized record every decoder (C3) produces and
// every store/publisher/virtual-station consumer (C4/C5/C9) reads. Only
// the fields a given sensor model actually reports are Present; every
// other field zero-values to an absent Optional.
type Observation struct {
	Station   StationID
	Timestamp time.Time

	Temperature       Optional[float64] // degrees Celsius
	MinTemperature    Optional[float64] // degrees Celsius
	MaxTemperature    Optional[float64] // degrees Celsius
	Humidity          Optional[float64] // percent relative humidity
	Pressure          Optional[float64] // hPa
	WindSpeed         Optional[float64] // m/s
	MinWindSpeed      Optional[float64] // m/s
	WindDirection     Optional[float64] // degrees, 0-359
	WindGust          Optional[float64] // m/s
	MaxWindGust       Optional[float64] // m/s, 1s gust within the 10-min window
	WindStdDev        Optional[float64] // m/s, direction variance proxy
	MaxWindDatetime   Optional[time.Time]
	RainfallSinceLast Optional[float64] // mm, resolved from tick count
	RainRate          Optional[float64] // mm/h
	DewPoint          Optional[float64] // degrees Celsius
	HeatIndex         Optional[float64] // degrees Celsius
	SoilMoisture      Optional[float64] // percent
	SoilTemperature   Optional[float64] // degrees Celsius, probe 1 / shallowest depth
	SoilConductivity  Optional[float64] // µS/cm
	LeafWetness       Optional[float64] // 0-15 scale, or percent depending on sensor
	LeafTemperature   Optional[float64] // degrees Celsius
	LeafWetnessRatio  Optional[float64] // share of the interval spent wet, raw sensor value (not scaled to 0-1)
	DeltaT            Optional[float64] // wet-bulb depression, degrees Celsius
	VaporPressureDeficit Optional[float64] // kPa
	BatteryVoltage    Optional[float64] // volts
	BatteryLow        Optional[bool]

	// ExtraTemperature holds additional probe readings beyond the primary
	// Temperature field, for sensors that expose more than one thermal
	// probe on a single uplink (e.g. the Dragino DS18B20 triplet).
	ExtraTemperature [2]Optional[float64]

	// Raw decode metadata, useful for debugging and for the store
	// facade's idempotency key.
	SensorModel string
	RawPayload  []byte
}

// StationMetadata describes a station's fixed properties, independent of
// any single observation — the same role config.StationData plays for
// configuration, but carried alongside decoded data so the store facade
// and virtual-station computer don't have to re-resolve configuration for
// every observation.
type StationMetadata struct {
	Station   StationID
	Name      string
	Latitude  float64
	Longitude float64
	Altitude  float64
}

// JobRequest is what the debounced publisher (C5) hands to the jobs
// facade: "recompute everything derived from this station between these
// two timestamps." It intentionally carries a range, not a single
// timestamp, since C5's whole job is to widen that range as more
// observations land inside the debounce window.
type JobRequest struct {
	Station StationID `msgpack:"station"`
	Begin   time.Time `msgpack:"begin"`
	End     time.Time `msgpack:"end"`
}

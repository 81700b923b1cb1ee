// Package decode defines the polymorphic sensor-payload decoder contract
// (C3) and a registry that dispatches a liveobjects-style envelope to the
// right concrete decoder, the way the teacher's weatherstations package
// dispatches a device.Type string to a station constructor
// (internal/managers/weatherstation.go's createStationFromConfig) — the
// same "one switch, one factory" shape, just over sensor models instead
// of station types.
package decode

import (
	"context"
	"fmt"
	"time"

	"github.com/meteo-concept/ingestd/internal/model"
)

// CounterStore is the slice of the C4 facade a stateful decoder needs:
// read/write access to a per-station, per-key cached counter. It is
// satisfied by internal/store.Facade; kept narrow here so decoders don't
// import the whole facade interface.
type CounterStore interface {
	GetCachedInt(ctx context.Context, station model.StationID, key string) (updatedAt time.Time, value int64, found bool, err error)
	CacheInt(ctx context.Context, station model.StationID, key string, updatedAt time.Time, value int64) error
}

// Decoder is the contract every sensor model implements. A decoder
// instance is single-shot: Fresh until Ingest is called, then
// Ingested(valid) or Ingested(invalid); only ToObservation and Describe
// are legal afterward. Constructing a decoder is meant to be cheap —
// callers build one per message, never reuse an instance across messages.
type Decoder interface {
	// Ingest parses payload (an ASCII hex string) and moves the decoder
	// out of its Fresh state. It never panics on malformed input; it
	// marks itself invalid instead.
	Ingest(ctx context.Context, station model.StationID, payload string, timestamp time.Time) error

	// ValidAfterParse reports whether Ingest produced a usable
	// observation. False after a length/character-class rejection.
	ValidAfterParse() bool

	// ToObservation returns the normalized record. Only meaningful once
	// ValidAfterParse() is true.
	ToObservation(station model.StationID) model.Observation

	// Describe returns a loss-tolerant, stable JSON-able map of the
	// decoded fields, for logging/debugging.
	Describe() map[string]any
}

// StatefulDecoder is additionally implemented by decoders that need a
// cached counter from C4 (rain gauges, battery-hysteresis sensors). The
// store is read at the start of Ingest and written by CacheAfterInsert
// once the caller has durably accepted the observation — never before,
// so a failed write doesn't desynchronize the cache from the store.
type StatefulDecoder interface {
	Decoder
	CacheAfterInsert(ctx context.Context, station model.StationID, store CounterStore) error
}

// Factory builds a fresh decoder instance for one message.
type Factory func() Decoder

// Registry maps sensor-model names to decoder factories, mirroring
// spec.md §4.3's dispatch-by-model-name contract.
type Registry struct {
	factories map[string]Factory
}

// NewRegistry builds a registry pre-populated with every decoder this
// repository implements.
func NewRegistry() *Registry {
	r := &Registry{factories: make(map[string]Factory)}
	RegisterDefaults(r)
	return r
}

// Register adds or replaces the factory for a sensor-model name.
func (r *Registry) Register(model string, f Factory) {
	r.factories[model] = f
}

// New builds a fresh decoder for the named sensor model. Returns an error
// if the model is unmapped — the enclosing receiver logs and drops the
// message, per spec.md §4.3.
func (r *Registry) New(sensorModel string) (Decoder, error) {
	f, ok := r.factories[sensorModel]
	if !ok {
		return nil, fmt.Errorf("decode: no decoder registered for sensor model %q", sensorModel)
	}
	return f(), nil
}

// LiveObjectsEnvelope is the JSON shape pushed by the MQTT/HTTP liveobjects
// feeds: the sensor model and LoRa port identify which decoder to use, and
// Value.Payload is the hex frame to feed it.
type LiveObjectsEnvelope struct {
	StreamID string `json:"streamId"`
	Value    struct {
		Payload string `json:"payload"`
	} `json:"value"`
	Timestamp time.Time `json:"timestamp"`
	Extra     struct {
		Sensors string `json:"sensors"`
	} `json:"extra"`
	Metadata struct {
		Network struct {
			Lora struct {
				Port int `json:"port"`
			} `json:"lora"`
		} `json:"network"`
	} `json:"metadata"`
}

// portModelMap resolves a LoRa port number to a sensor-model name when the
// envelope's extra.sensors field is absent or ambiguous, the way the
// original's parseLiveObjectsEnvelope consults both fields.
var portModelMap = map[int]string{
	2: "barani_anemometer",
	4: "dragino_lsn50v2_thermohygrometer",
	6: "dragino_cpl01_pluviometer",
	8: "talkpool_oy1110_thermohygrometer",
}

// ResolveModel picks the sensor-model name for an envelope, preferring the
// explicit extra.sensors field and falling back to the port mapping.
func ResolveModel(env *LiveObjectsEnvelope) (string, bool) {
	if env.Extra.Sensors != "" {
		return env.Extra.Sensors, true
	}
	if m, ok := portModelMap[env.Metadata.Network.Lora.Port]; ok {
		return m, true
	}
	return "", false
}

// RegisterDefaults wires every decoder this repo ships into r. Kept as a
// free function (rather than inlined into NewRegistry) so tests can build
// a registry with only the decoders they need.
func RegisterDefaults(r *Registry) {
	registerBarani(r)
	registerDragino(r)
	registerTalkpool(r)
	registerMeteoFrance(r)
	registerPessl(r)
	registerThLora(r)
}

package decode

import (
	"context"
	"time"

	"github.com/meteo-concept/ingestd/internal/decode/barani"
	"github.com/meteo-concept/ingestd/internal/decode/dragino"
	"github.com/meteo-concept/ingestd/internal/decode/meteofrance"
	"github.com/meteo-concept/ingestd/internal/decode/pessl"
	"github.com/meteo-concept/ingestd/internal/decode/talkpool"
	"github.com/meteo-concept/ingestd/internal/decode/thlora"
	"github.com/meteo-concept/ingestd/internal/model"
)

// Each sensor model is registered under two names: the short name used
// by portModelMap's LoRa-port fallback, and the versioned name a
// decoder stamps into Observation.SensorModel/Describe (what an
// envelope's explicit extra.sensors field is expected to carry). Both
// must resolve to the same factory so ResolveModel's two lookup paths
// agree regardless of which convention the upstream feed uses.
func registerBarani(r *Registry) {
	r.Register("barani_anemometer", func() Decoder { return barani.NewAnemometerV1() })
	r.Register("barani_anemometer_20230411", func() Decoder { return barani.NewAnemometerV1() })
	r.Register("barani_raingauge", func() Decoder { return &rainGaugeAdapter{inner: barani.NewRainGauge()} })
	r.Register("barani_meteohelix", func() Decoder { return &meteoHelixAdapter{inner: barani.NewMeteoHelix()} })
	r.Register("barani_meteohelix_20230810", func() Decoder { return &meteoHelixAdapter{inner: barani.NewMeteoHelix()} })
	r.Register("barani_anemometer_v2023", func() Decoder { return &anemometerV2023Adapter{inner: barani.NewAnemometerV2023()} })
	r.Register("barani_anemometer_v2023_20240110", func() Decoder { return &anemometerV2023Adapter{inner: barani.NewAnemometerV2023()} })
}

func registerDragino(r *Registry) {
	r.Register("dragino_lsn50v2_thermohygrometer", func() Decoder { return dragino.NewLsn50v2Thermohygrometer() })
	r.Register("dragino_lsn50v2_20230410", func() Decoder { return dragino.NewLsn50v2Thermohygrometer() })
	r.Register("dragino_cpl01_pluviometer", func() Decoder { return &cpl01Adapter{inner: dragino.NewCpl01Pluviometer()} })
	r.Register("CPL01_pluviometer_20230410", func() Decoder { return &cpl01Adapter{inner: dragino.NewCpl01Pluviometer()} })
	r.Register("dragino_thplnbiot", func() Decoder { return &thplNbiotAdapter{inner: dragino.NewThplNbiot()} })
	r.Register("Thplnbiot_20240621", func() Decoder { return &thplNbiotAdapter{inner: dragino.NewThplNbiot()} })
	r.Register("dragino_thpllora", func() Decoder { return &thplloraAdapter{inner: dragino.NewThpllora()} })
	r.Register("Thpllora_20230713", func() Decoder { return &thplloraAdapter{inner: dragino.NewThpllora()} })
	r.Register("dragino_6470", func() Decoder { return dragino.NewProbe6470() })
	r.Register("dragino_6470_20240319", func() Decoder { return dragino.NewProbe6470() })
	r.Register("dragino_d2x", func() Decoder { return dragino.NewDS18B20Triplet() })
	r.Register("dragino_d2x_20250826", func() Decoder { return dragino.NewDS18B20Triplet() })
	r.Register("dragino_llms01", func() Decoder { return dragino.NewLlms01LeafSensor() })
	r.Register("dragino_llms01_20231204", func() Decoder { return dragino.NewLlms01LeafSensor() })
	r.Register("dragino_lse01", func() Decoder { return dragino.NewLse01SoilSensor() })
	r.Register("dragino_lse01_20241217", func() Decoder { return dragino.NewLse01SoilSensor() })
	r.Register("dragino_concept500", func() Decoder { return dragino.NewConcept500(0) })
	r.Register("CONCEPT_500-20250430", func() Decoder { return dragino.NewConcept500(0) })
}

func registerTalkpool(r *Registry) {
	r.Register("talkpool_oy1110_thermohygrometer", func() Decoder { return talkpool.NewOy1110Thermohygrometer() })
	r.Register("talkpool_oy1110_20221006", func() Decoder { return talkpool.NewOy1110Thermohygrometer() })
}

func registerMeteoFrance(r *Registry) {
	r.Register("meteofrance_radome_hourly", func() Decoder { return meteofrance.NewRadome() })
}

func registerPessl(r *Registry) {
	r.Register("pessl_lorain", func() Decoder { return &lorainAdapter{inner: pessl.NewLorain()} })
}

func registerThLora(r *Registry) {
	r.Register("thlora_thermohygrometer", func() Decoder { return thlora.NewThermohygrometer() })
}

// rainGaugeAdapter and cpl01Adapter lift the two rain-counter decoders up
// to this package's StatefulDecoder shape. Each subpackage declares its
// own CounterStore interface (to stay free of a decode import and avoid
// an import cycle with this file); the method bodies below rely on plain
// Go assignability — a decode.CounterStore value is assignable anywhere
// a structurally-identical subpackage CounterStore is expected — so no
// further conversion is needed at the call boundary.
type rainGaugeAdapter struct {
	inner *barani.RainGauge
}

func (a *rainGaugeAdapter) Ingest(ctx context.Context, station model.StationID, payload string, timestamp time.Time) error {
	return a.inner.IngestWithStore(ctx, station, payload, timestamp, nil)
}

func (a *rainGaugeAdapter) ValidAfterParse() bool { return a.inner.ValidAfterParse() }

func (a *rainGaugeAdapter) ToObservation(station model.StationID) model.Observation {
	return a.inner.ToObservation(station)
}

func (a *rainGaugeAdapter) Describe() map[string]any { return a.inner.Describe() }

func (a *rainGaugeAdapter) CacheAfterInsert(ctx context.Context, station model.StationID, store CounterStore) error {
	return a.inner.CacheAfterInsert(ctx, station, store)
}

// IngestWithStore exposes the underlying stateful entry point directly
// for callers (C4's write path) that hold a real counter store and want
// rainfall computed in the same pass, rather than calling Ingest (which
// always passes a nil store and so never yields a rainfall figure).
func (a *rainGaugeAdapter) IngestWithStore(ctx context.Context, station model.StationID, payload string, timestamp time.Time, store CounterStore) error {
	return a.inner.IngestWithStore(ctx, station, payload, timestamp, store)
}

type cpl01Adapter struct {
	inner *dragino.Cpl01Pluviometer
}

func (a *cpl01Adapter) Ingest(ctx context.Context, station model.StationID, payload string, timestamp time.Time) error {
	return a.inner.IngestWithStore(ctx, station, payload, timestamp, nil)
}

func (a *cpl01Adapter) ValidAfterParse() bool { return a.inner.ValidAfterParse() }

func (a *cpl01Adapter) ToObservation(station model.StationID) model.Observation {
	return a.inner.ToObservation(station)
}

func (a *cpl01Adapter) Describe() map[string]any { return a.inner.Describe() }

func (a *cpl01Adapter) CacheAfterInsert(ctx context.Context, station model.StationID, store CounterStore) error {
	return a.inner.CacheAfterInsert(ctx, station, store)
}

func (a *cpl01Adapter) IngestWithStore(ctx context.Context, station model.StationID, payload string, timestamp time.Time, store CounterStore) error {
	return a.inner.IngestWithStore(ctx, station, payload, timestamp, store)
}

type thplNbiotAdapter struct {
	inner *dragino.ThplNbiot
}

func (a *thplNbiotAdapter) Ingest(ctx context.Context, station model.StationID, payload string, timestamp time.Time) error {
	return a.inner.IngestWithStore(ctx, station, payload, timestamp, nil)
}

func (a *thplNbiotAdapter) ValidAfterParse() bool { return a.inner.ValidAfterParse() }

func (a *thplNbiotAdapter) ToObservation(station model.StationID) model.Observation {
	return a.inner.ToObservation(station)
}

func (a *thplNbiotAdapter) Describe() map[string]any { return a.inner.Describe() }

func (a *thplNbiotAdapter) CacheAfterInsert(ctx context.Context, station model.StationID, store CounterStore) error {
	return a.inner.CacheAfterInsert(ctx, station, store)
}

func (a *thplNbiotAdapter) IngestWithStore(ctx context.Context, station model.StationID, payload string, timestamp time.Time, store CounterStore) error {
	return a.inner.IngestWithStore(ctx, station, payload, timestamp, store)
}

type meteoHelixAdapter struct {
	inner *barani.MeteoHelix
}

func (a *meteoHelixAdapter) Ingest(ctx context.Context, station model.StationID, payload string, timestamp time.Time) error {
	return a.inner.IngestWithStore(ctx, station, payload, timestamp, nil)
}

func (a *meteoHelixAdapter) ValidAfterParse() bool { return a.inner.ValidAfterParse() }

func (a *meteoHelixAdapter) ToObservation(station model.StationID) model.Observation {
	return a.inner.ToObservation(station)
}

func (a *meteoHelixAdapter) Describe() map[string]any { return a.inner.Describe() }

func (a *meteoHelixAdapter) CacheAfterInsert(ctx context.Context, station model.StationID, store CounterStore) error {
	return a.inner.CacheAfterInsert(ctx, station, store)
}

func (a *meteoHelixAdapter) IngestWithStore(ctx context.Context, station model.StationID, payload string, timestamp time.Time, store CounterStore) error {
	return a.inner.IngestWithStore(ctx, station, payload, timestamp, store)
}

type anemometerV2023Adapter struct {
	inner *barani.AnemometerV2023
}

func (a *anemometerV2023Adapter) Ingest(ctx context.Context, station model.StationID, payload string, timestamp time.Time) error {
	return a.inner.IngestWithStore(ctx, station, payload, timestamp, nil)
}

func (a *anemometerV2023Adapter) ValidAfterParse() bool { return a.inner.ValidAfterParse() }

func (a *anemometerV2023Adapter) ToObservation(station model.StationID) model.Observation {
	return a.inner.ToObservation(station)
}

func (a *anemometerV2023Adapter) Describe() map[string]any { return a.inner.Describe() }

// CacheAfterInsert is a no-op: AnemometerV2023's battery-index smoothing
// writes its cache entry inline during Ingest (it needs the smoothed
// value immediately to compute the reported voltage), unlike the
// rain-counter decoders which defer the write until after a durable
// insert.
func (a *anemometerV2023Adapter) CacheAfterInsert(context.Context, model.StationID, CounterStore) error {
	return nil
}

func (a *anemometerV2023Adapter) IngestWithStore(ctx context.Context, station model.StationID, payload string, timestamp time.Time, store CounterStore) error {
	return a.inner.IngestWithStore(ctx, station, payload, timestamp, store)
}

type thplloraAdapter struct {
	inner *dragino.Thpllora
}

func (a *thplloraAdapter) Ingest(ctx context.Context, station model.StationID, payload string, timestamp time.Time) error {
	return a.inner.IngestWithStore(ctx, station, payload, timestamp, nil)
}

func (a *thplloraAdapter) ValidAfterParse() bool { return a.inner.ValidAfterParse() }

func (a *thplloraAdapter) ToObservation(station model.StationID) model.Observation {
	return a.inner.ToObservation(station)
}

func (a *thplloraAdapter) Describe() map[string]any { return a.inner.Describe() }

func (a *thplloraAdapter) CacheAfterInsert(ctx context.Context, station model.StationID, store CounterStore) error {
	return a.inner.CacheAfterInsert(ctx, station, store)
}

func (a *thplloraAdapter) IngestWithStore(ctx context.Context, station model.StationID, payload string, timestamp time.Time, store CounterStore) error {
	return a.inner.IngestWithStore(ctx, station, payload, timestamp, store)
}

type lorainAdapter struct {
	inner *pessl.Lorain
}

func (a *lorainAdapter) Ingest(ctx context.Context, station model.StationID, payload string, timestamp time.Time) error {
	return a.inner.IngestWithStore(ctx, station, payload, timestamp, nil)
}

func (a *lorainAdapter) ValidAfterParse() bool { return a.inner.ValidAfterParse() }

func (a *lorainAdapter) ToObservation(station model.StationID) model.Observation {
	return a.inner.ToObservation(station)
}

func (a *lorainAdapter) Describe() map[string]any { return a.inner.Describe() }

func (a *lorainAdapter) CacheAfterInsert(ctx context.Context, station model.StationID, store CounterStore) error {
	return a.inner.CacheAfterInsert(ctx, station, store)
}

func (a *lorainAdapter) IngestWithStore(ctx context.Context, station model.StationID, payload string, timestamp time.Time, store CounterStore) error {
	return a.inner.IngestWithStore(ctx, station, payload, timestamp, store)
}

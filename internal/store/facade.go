// Package store defines the observation store facade (C4): the one
// abstraction every decoder, scheduler and push receiver writes through.
// It hides the two backing stores (a wide-column history table and a
// relational time-series table, per spec.md §1) behind idempotent
// operations, the same way the teacher's storage.StorageEngineInterface
// hides InfluxDB/TimescaleDB/APRS behind one reading-channel contract —
// except this facade is synchronous and request/response shaped, since
// C7/C8 callers need to know whether a write actually landed before they
// advance a watermark.
package store

import (
	"context"
	"time"

	"github.com/meteo-concept/ingestd/internal/model"
)

// StationKind enumerates the station registry partitions spec.md §4.4
// asks C4 to expose getters for.
type StationKind string

const (
	KindWeatherlinkV1 StationKind = "weatherlink-v1"
	KindWeatherlinkV2 StationKind = "weatherlink-v2"
	KindLiveObjects   StationKind = "liveobjects"
	KindMQTT          StationKind = "mqtt"
	KindFieldClimate  StationKind = "field-climate"
	KindMFRadome      StationKind = "mf-radome"
	KindNBIoT         StationKind = "nbiot"
	KindDavisVP2      StationKind = "davis-vp2"
	KindMonitorII     StationKind = "monitor-ii"
	KindVirtual       StationKind = "virtual"
)

// StationRegistration is one row of the station registry: enough to
// instantiate a connector for the station without a second round trip.
type StationRegistration struct {
	Station       model.StationID
	Kind          StationKind
	Name          string
	AuthToken     string // hex-encoded auth token or HMAC key, per §6
	Timezone      string
	SensorMap     map[string]string // sensor model -> decoder registry key
	PollInterval  time.Duration
	PollOffset    time.Duration
	Hostname      string
	Port          string
	MQTTTopic     string // populated for KindMQTT, per spec.md §4.8
	SourceStations []model.StationID // populated for KindVirtual
	SourceVariables map[model.StationID][]string
	StrictHMAC    bool
}

// ModemConfig is a pending downlink command for a push-polled or NB-IoT
// station (§4.4's getLastConfiguration / §4.8's downlink delivery).
type ModemConfig struct {
	ID      string
	Payload string // ASCII hex, decoded by the receiving sensor
	Pending bool
}

// Facade is the C4 contract. Every method is synchronous; callers may
// invoke it from any goroutine — concrete implementations serialize their
// own access as needed (spec.md §4.4's thread-safety guarantee).
type Facade interface {
	// InsertPoint upserts into the wide-column store. Idempotent on
	// (station, time): re-insertion never doubles totals.
	InsertPoint(ctx context.Context, obs model.Observation) (bool, error)

	// InsertPointTSDB upserts the same observation into the relational
	// time-series store. Callers typically invoke both (§4.4).
	InsertPointTSDB(ctx context.Context, obs model.Observation) (bool, error)

	// InsertPointsBatch upserts a batch into the time-series store as an
	// optimization; spec.md §9's open question treats this purely as an
	// optimization, so a failed batch never blocks the per-record writes
	// that already landed via InsertPoint/InsertPointTSDB.
	InsertPointsBatch(ctx context.Context, obs []model.Observation) (bool, error)

	// DeletePointsInRange clears rows for a station/day in [begin,end),
	// used by archive imports to replace real-time samples (§4.7).
	DeletePointsInRange(ctx context.Context, station model.StationID, day time.Time, begin, end time.Time) (bool, error)

	// UpdateLastArchiveTime advances a station's watermark. Spec.md's
	// invariant: never called with a time older than the current value.
	UpdateLastArchiveTime(ctx context.Context, station model.StationID, at time.Time) (bool, error)

	// GetLastArchiveTime reads the watermark back, used by C7 downloaders
	// and C9's virtual-station computer.
	GetLastArchiveTime(ctx context.Context, station model.StationID) (time.Time, error)

	GetCachedInt(ctx context.Context, station model.StationID, key string) (updatedAt time.Time, value int64, found bool, err error)
	CacheInt(ctx context.Context, station model.StationID, key string, updatedAt time.Time, value int64) error
	GetCachedFloat(ctx context.Context, station model.StationID, key string) (updatedAt time.Time, value float64, found bool, err error)
	CacheFloat(ctx context.Context, station model.StationID, key string, updatedAt time.Time, value float64) error

	// GetStationsByKind returns the station registry rows for one kind
	// (§4.4's "list all stations of each kind").
	GetStationsByKind(ctx context.Context, kind StationKind) ([]StationRegistration, error)
	GetStation(ctx context.Context, station model.StationID) (*StationRegistration, error)

	// GetLastDataBefore supports C9: the most recent observation for a
	// source station strictly before an instant.
	GetLastDataBefore(ctx context.Context, station model.StationID, before time.Time) (model.Observation, bool, error)

	GetLastConfiguration(ctx context.Context, station model.StationID) (*ModemConfig, error)
	UpdateConfigurationStatus(ctx context.Context, station model.StationID, id string, pending bool) error
}

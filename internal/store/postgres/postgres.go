// Package postgres implements the C4 observation store facade on top of
// TimescaleDB/Postgres, the way the teacher's internal/storage/timescaledb
// package wraps gorm.io/gorm over a lib/pq-backed *sql.DB. The teacher
// writes one wide Reading row per storage tick; this facade instead
// upserts on the (station, time) primary key so repeated archive imports
// stay idempotent (spec.md §3's invariant and §8's round-trip property).
package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/meteo-concept/ingestd/internal/log"
	"github.com/meteo-concept/ingestd/internal/model"
	"github.com/meteo-concept/ingestd/internal/store"
	"github.com/meteo-concept/ingestd/pkg/config"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// observationRow is the gorm model for the wide-column history table.
// Field names mirror model.Observation; gorm's upsert-on-conflict clause
// (see onConflictUpdateAll in conflict.go) is what gives InsertPoint its
// idempotence.
type observationRow struct {
	Station   string    `gorm:"column:station;primaryKey"`
	Timestamp time.Time `gorm:"column:time;primaryKey"`
	Day       time.Time `gorm:"column:day"`

	Temperature       *float64 `gorm:"column:temperature"`
	Humidity          *float64 `gorm:"column:humidity"`
	Pressure          *float64 `gorm:"column:pressure"`
	WindSpeed         *float64 `gorm:"column:wind_speed"`
	WindDirection     *float64 `gorm:"column:wind_direction"`
	WindGust          *float64 `gorm:"column:wind_gust"`
	WindStdDev        *float64 `gorm:"column:wind_stddev"`
	RainfallSinceLast *float64 `gorm:"column:rainfall"`
	SoilMoisture      *float64 `gorm:"column:soil_moisture"`
	LeafWetness       *float64 `gorm:"column:leaf_wetness"`
	BatteryVoltage    *float64 `gorm:"column:battery_voltage"`

	SensorModel string `gorm:"column:sensor_model"`
}

func (observationRow) TableName() string { return "observations" }

// tsdbRow is the analytics-oriented relational mirror (§1's "relational
// time-series store for analytics"). Kept as a distinct table/model
// rather than a view so InsertPointsBatch can target it independently,
// matching spec.md §9's "batch is a pure optimization" resolution.
type tsdbRow struct {
	Station   string    `gorm:"column:station;primaryKey"`
	Timestamp time.Time `gorm:"column:time;primaryKey"`

	Temperature       *float64 `gorm:"column:temperature"`
	Humidity          *float64 `gorm:"column:humidity"`
	Pressure          *float64 `gorm:"column:pressure"`
	WindSpeed         *float64 `gorm:"column:wind_speed"`
	WindDirection     *float64 `gorm:"column:wind_direction"`
	RainfallSinceLast *float64 `gorm:"column:rainfall"`
}

func (tsdbRow) TableName() string { return "observations_tsdb" }

type stationRow struct {
	Station      string `gorm:"column:station;primaryKey"`
	Kind         string `gorm:"column:kind"`
	Name         string `gorm:"column:name"`
	AuthToken    string `gorm:"column:auth_token"`
	Timezone     string `gorm:"column:timezone"`
	PollInterval int64  `gorm:"column:poll_interval_seconds"`
	PollOffset   int64  `gorm:"column:poll_offset_seconds"`
	Hostname     string `gorm:"column:hostname"`
	Port         string `gorm:"column:port"`
	MQTTTopic    string `gorm:"column:mqtt_topic"`
	StrictHMAC   bool   `gorm:"column:strict_hmac;default:true"`

	LastArchiveTime time.Time `gorm:"column:last_archive_time"`
}

func (stationRow) TableName() string { return "stations" }

type cachedCounterRow struct {
	Station   string    `gorm:"column:station;primaryKey"`
	Key       string    `gorm:"column:key;primaryKey"`
	UpdatedAt time.Time `gorm:"column:updated_at"`
	IntValue  *int64    `gorm:"column:int_value"`
	FloatVal  *float64  `gorm:"column:float_value"`
}

func (cachedCounterRow) TableName() string { return "cached_counters" }

type configRow struct {
	Station string `gorm:"column:station;primaryKey"`
	ID      string `gorm:"column:id"`
	Payload string `gorm:"column:payload"`
	Pending bool   `gorm:"column:pending"`
}

func (configRow) TableName() string { return "pending_configurations" }

// stationSourceRow is one (virtual station, contributing source,
// allowed variable) tuple — C9's "sources: map<source-id,
// set<variable-name>>" (spec.md §4.9) normalized into rows instead of a
// JSON column, the way the teacher keeps its own many-to-many
// configuration joins (e.g. website_stations) as plain rows.
type stationSourceRow struct {
	Station       string `gorm:"column:station;primaryKey"`
	SourceStation string `gorm:"column:source_station;primaryKey"`
	Variable      string `gorm:"column:variable;primaryKey"`
}

func (stationSourceRow) TableName() string { return "station_sources" }

// Store is the gorm-backed Facade implementation.
type Store struct {
	db *gorm.DB
}

// New opens the Postgres/TimescaleDB connection and runs the DDL the
// teacher's timescaledb.go runs at startup (AutoMigrate, plus the
// create_hypertable call TimescaleDB needs for the observations table).
func New(ctx context.Context, cfg *config.PostgresData) (*Store, error) {
	dsn := cfg.GetConnectionString()
	if dsn == "" {
		return nil, fmt.Errorf("postgres: empty connection string")
	}

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("postgres: connect: %w", err)
	}

	if err := db.AutoMigrate(&observationRow{}, &tsdbRow{}, &stationRow{}, &cachedCounterRow{}, &configRow{}, &stationSourceRow{}); err != nil {
		return nil, fmt.Errorf("postgres: automigrate: %w", err)
	}

	if err := db.Exec(`SELECT create_hypertable('observations', 'time', if_not_exists => TRUE, migrate_data => TRUE)`).Error; err != nil {
		log.Warnf("postgres: could not create hypertable for observations (non-Timescale Postgres?): %v", err)
	}
	if err := db.Exec(`SELECT create_hypertable('observations_tsdb', 'time', if_not_exists => TRUE, migrate_data => TRUE)`).Error; err != nil {
		log.Warnf("postgres: could not create hypertable for observations_tsdb: %v", err)
	}

	return &Store{db: db}, nil
}

func ptrOrNil(o model.Optional[float64]) *float64 {
	if !o.Present {
		return nil
	}
	v := o.Value
	return &v
}

func toObservationRow(obs model.Observation) observationRow {
	return observationRow{
		Station:           string(obs.Station),
		Timestamp:         obs.Timestamp,
		Day:               floorToUTCDay(obs.Timestamp),
		Temperature:       ptrOrNil(obs.Temperature),
		Humidity:          ptrOrNil(obs.Humidity),
		Pressure:          ptrOrNil(obs.Pressure),
		WindSpeed:         ptrOrNil(obs.WindSpeed),
		WindDirection:     ptrOrNil(obs.WindDirection),
		WindGust:          ptrOrNil(obs.WindGust),
		WindStdDev:        ptrOrNil(obs.WindStdDev),
		RainfallSinceLast: ptrOrNil(obs.RainfallSinceLast),
		SoilMoisture:      ptrOrNil(obs.SoilMoisture),
		LeafWetness:       ptrOrNil(obs.LeafWetness),
		BatteryVoltage:    ptrOrNil(obs.BatteryVoltage),
		SensorModel:       obs.SensorModel,
	}
}

func floorToUTCDay(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}

// InsertPoint upserts the wide-column row, conflicting on the
// (station, time) primary key — the idempotence spec.md §3 and §8
// require of every decoder/receiver write path.
func (s *Store) InsertPoint(ctx context.Context, obs model.Observation) (bool, error) {
	row := toObservationRow(obs)
	err := s.db.WithContext(ctx).Clauses(onConflictUpdateAll("station", "time")).Create(&row).Error
	if err != nil {
		return false, fmt.Errorf("postgres: insert point: %w", err)
	}
	return true, nil
}

func (s *Store) InsertPointTSDB(ctx context.Context, obs model.Observation) (bool, error) {
	row := tsdbRow{
		Station:           string(obs.Station),
		Timestamp:         obs.Timestamp,
		Temperature:       ptrOrNil(obs.Temperature),
		Humidity:          ptrOrNil(obs.Humidity),
		Pressure:          ptrOrNil(obs.Pressure),
		WindSpeed:         ptrOrNil(obs.WindSpeed),
		WindDirection:     ptrOrNil(obs.WindDirection),
		RainfallSinceLast: ptrOrNil(obs.RainfallSinceLast),
	}
	err := s.db.WithContext(ctx).Clauses(onConflictUpdateAll("station", "time")).Create(&row).Error
	if err != nil {
		return false, fmt.Errorf("postgres: insert point tsdb: %w", err)
	}
	return true, nil
}

// InsertPointsBatch is a pure optimization over InsertPointTSDB per-record
// calls (spec.md §9's resolution of the open question): a failed batch
// never rolls back or blocks rows already written per-record, and callers
// must not gate watermark advancement on this call alone.
func (s *Store) InsertPointsBatch(ctx context.Context, obs []model.Observation) (bool, error) {
	if len(obs) == 0 {
		return true, nil
	}
	rows := make([]tsdbRow, len(obs))
	for i, o := range obs {
		rows[i] = tsdbRow{
			Station:           string(o.Station),
			Timestamp:         o.Timestamp,
			Temperature:       ptrOrNil(o.Temperature),
			Humidity:          ptrOrNil(o.Humidity),
			Pressure:          ptrOrNil(o.Pressure),
			WindSpeed:         ptrOrNil(o.WindSpeed),
			WindDirection:     ptrOrNil(o.WindDirection),
			RainfallSinceLast: ptrOrNil(o.RainfallSinceLast),
		}
	}
	err := s.db.WithContext(ctx).Clauses(onConflictUpdateAll("station", "time")).CreateInBatches(rows, 200).Error
	if err != nil {
		log.Warnf("postgres: batch insert of %d rows failed, per-record writes remain authoritative: %v", len(rows), err)
		return false, err
	}
	return true, nil
}

func (s *Store) DeletePointsInRange(ctx context.Context, station model.StationID, day time.Time, begin, end time.Time) (bool, error) {
	err := s.db.WithContext(ctx).
		Where("station = ? AND day = ? AND time >= ? AND time < ?", string(station), floorToUTCDay(day), begin, end).
		Delete(&observationRow{}).Error
	if err != nil {
		return false, fmt.Errorf("postgres: delete points in range: %w", err)
	}
	return true, nil
}

func (s *Store) UpdateLastArchiveTime(ctx context.Context, station model.StationID, at time.Time) (bool, error) {
	err := s.db.WithContext(ctx).Model(&stationRow{}).
		Where("station = ?", string(station)).
		Update("last_archive_time", at).Error
	if err != nil {
		return false, fmt.Errorf("postgres: update last archive time: %w", err)
	}
	return true, nil
}

func (s *Store) GetLastArchiveTime(ctx context.Context, station model.StationID) (time.Time, error) {
	var row stationRow
	err := s.db.WithContext(ctx).Where("station = ?", string(station)).First(&row).Error
	if err != nil {
		return time.Time{}, err
	}
	return row.LastArchiveTime, nil
}

func (s *Store) GetCachedInt(ctx context.Context, station model.StationID, key string) (time.Time, int64, bool, error) {
	var row cachedCounterRow
	err := s.db.WithContext(ctx).Where("station = ? AND key = ?", string(station), key).First(&row).Error
	if err == gorm.ErrRecordNotFound {
		return time.Time{}, 0, false, nil
	}
	if err != nil {
		return time.Time{}, 0, false, err
	}
	if row.IntValue == nil {
		return time.Time{}, 0, false, nil
	}
	return row.UpdatedAt, *row.IntValue, true, nil
}

func (s *Store) CacheInt(ctx context.Context, station model.StationID, key string, updatedAt time.Time, value int64) error {
	row := cachedCounterRow{Station: string(station), Key: key, UpdatedAt: updatedAt, IntValue: &value}
	return s.db.WithContext(ctx).Clauses(onConflictUpdateAll("station", "key")).Create(&row).Error
}

func (s *Store) GetCachedFloat(ctx context.Context, station model.StationID, key string) (time.Time, float64, bool, error) {
	var row cachedCounterRow
	err := s.db.WithContext(ctx).Where("station = ? AND key = ?", string(station), key).First(&row).Error
	if err == gorm.ErrRecordNotFound {
		return time.Time{}, 0, false, nil
	}
	if err != nil {
		return time.Time{}, 0, false, err
	}
	if row.FloatVal == nil {
		return time.Time{}, 0, false, nil
	}
	return row.UpdatedAt, *row.FloatVal, true, nil
}

func (s *Store) CacheFloat(ctx context.Context, station model.StationID, key string, updatedAt time.Time, value float64) error {
	row := cachedCounterRow{Station: string(station), Key: key, UpdatedAt: updatedAt, FloatVal: &value}
	return s.db.WithContext(ctx).Clauses(onConflictUpdateAll("station", "key")).Create(&row).Error
}

func (s *Store) GetStationsByKind(ctx context.Context, kind store.StationKind) ([]store.StationRegistration, error) {
	var rows []stationRow
	if err := s.db.WithContext(ctx).Where("kind = ?", string(kind)).Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]store.StationRegistration, 0, len(rows))
	for _, r := range rows {
		reg := stationRowToRegistration(r)
		if reg.Kind == store.KindVirtual {
			if err := s.loadSources(ctx, &reg); err != nil {
				return nil, err
			}
		}
		out = append(out, reg)
	}
	return out, nil
}

func (s *Store) GetStation(ctx context.Context, station model.StationID) (*store.StationRegistration, error) {
	var row stationRow
	if err := s.db.WithContext(ctx).Where("station = ?", string(station)).First(&row).Error; err != nil {
		return nil, err
	}
	reg := stationRowToRegistration(row)
	if reg.Kind == store.KindVirtual {
		if err := s.loadSources(ctx, &reg); err != nil {
			return nil, err
		}
	}
	return &reg, nil
}

// loadSources fills in reg.SourceStations/SourceVariables from the
// station_sources join table for a virtual station.
func (s *Store) loadSources(ctx context.Context, reg *store.StationRegistration) error {
	var rows []stationSourceRow
	if err := s.db.WithContext(ctx).Where("station = ?", string(reg.Station)).Find(&rows).Error; err != nil {
		return fmt.Errorf("postgres: load station sources for %s: %w", reg.Station, err)
	}
	seen := make(map[model.StationID]bool)
	reg.SourceVariables = make(map[model.StationID][]string)
	for _, r := range rows {
		source := model.StationID(r.SourceStation)
		if !seen[source] {
			seen[source] = true
			reg.SourceStations = append(reg.SourceStations, source)
		}
		reg.SourceVariables[source] = append(reg.SourceVariables[source], r.Variable)
	}
	return nil
}

func stationRowToRegistration(r stationRow) store.StationRegistration {
	return store.StationRegistration{
		Station:      model.StationID(r.Station),
		Kind:         store.StationKind(r.Kind),
		Name:         r.Name,
		AuthToken:    r.AuthToken,
		Timezone:     r.Timezone,
		PollInterval: time.Duration(r.PollInterval) * time.Second,
		PollOffset:   time.Duration(r.PollOffset) * time.Second,
		Hostname:     r.Hostname,
		Port:         r.Port,
		MQTTTopic:    r.MQTTTopic,
		StrictHMAC:   r.StrictHMAC,
	}
}

func (s *Store) GetLastDataBefore(ctx context.Context, station model.StationID, before time.Time) (model.Observation, bool, error) {
	var row observationRow
	err := s.db.WithContext(ctx).
		Where("station = ? AND time < ?", string(station), before).
		Order("time DESC").
		Limit(1).
		First(&row).Error
	if err == gorm.ErrRecordNotFound {
		return model.Observation{}, false, nil
	}
	if err != nil {
		return model.Observation{}, false, err
	}
	return rowToObservation(row), true, nil
}

func rowToObservation(row observationRow) model.Observation {
	obs := model.Observation{Station: model.StationID(row.Station), Timestamp: row.Timestamp, SensorModel: row.SensorModel}
	assign := func(dst *model.Optional[float64], src *float64) {
		if src != nil {
			*dst = model.Some(*src)
		}
	}
	assign(&obs.Temperature, row.Temperature)
	assign(&obs.Humidity, row.Humidity)
	assign(&obs.Pressure, row.Pressure)
	assign(&obs.WindSpeed, row.WindSpeed)
	assign(&obs.WindDirection, row.WindDirection)
	assign(&obs.WindGust, row.WindGust)
	assign(&obs.WindStdDev, row.WindStdDev)
	assign(&obs.RainfallSinceLast, row.RainfallSinceLast)
	assign(&obs.SoilMoisture, row.SoilMoisture)
	assign(&obs.LeafWetness, row.LeafWetness)
	assign(&obs.BatteryVoltage, row.BatteryVoltage)
	return obs
}

func (s *Store) GetLastConfiguration(ctx context.Context, station model.StationID) (*store.ModemConfig, error) {
	var row configRow
	err := s.db.WithContext(ctx).Where("station = ? AND pending = ?", string(station), true).First(&row).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &store.ModemConfig{ID: row.ID, Payload: row.Payload, Pending: row.Pending}, nil
}

func (s *Store) UpdateConfigurationStatus(ctx context.Context, station model.StationID, id string, pending bool) error {
	return s.db.WithContext(ctx).Model(&configRow{}).
		Where("station = ? AND id = ?", string(station), id).
		Update("pending", pending).Error
}

var _ store.Facade = (*Store)(nil)

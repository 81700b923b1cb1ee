// Package config provides configuration management for stations, connectors
// and the storage backend, following the same cached-provider-over-an-
// interface shape the rest of this codebase uses for its other
// abstractions (compare internal/store.Facade).
package config

import (
	"fmt"
	"strings"
	"sync"
	"time"
)

// Provider is implemented by anything that can hand back the platform's
// configuration. YAML is the only concrete implementation shipped here
// (see provider_yaml.go); a database-backed provider with live CRUD would
// implement the same interface without touching any caller.
type Provider interface {
	LoadConfig() (*ConfigData, error)
	GetStations() ([]StationData, error)
	GetStation(name string) (*StationData, error)
	GetStorageConfig() (*StorageData, error)
	GetJobsConfig() (*JobsData, error)
	GetManagementAPIConfig() (*ManagementAPIData, error)
	IsReadOnly() bool
	// Reload re-reads the underlying configuration source, for the
	// SIGHUP-driven reload path internal/app.App.ReloadConfiguration
	// drives.
	Reload() error
	Close() error
}

// ConfigData is the complete, validated configuration tree.
type ConfigData struct {
	Stations      []StationData     `yaml:"stations" json:"stations"`
	Storage       StorageData       `yaml:"storage" json:"storage"`
	Jobs          JobsData          `yaml:"jobs" json:"jobs"`
	ManagementAPI ManagementAPIData `yaml:"management_api" json:"management_api"`
	PushReceivers PushReceiversData `yaml:"push_receivers" json:"push_receivers"`
	LocalCachePath string           `yaml:"local_cache_path" json:"local_cache_path"`
}

// PushReceiversData configures the three C8 shared listeners: one HTTP
// server, one UDP server, one MQTT client, each fanning incoming records
// out to whichever station the payload identifies (spec.md §6's fixed
// ports per transport).
type PushReceiversData struct {
	HTTPAddr      string `yaml:"http_addr" json:"http_addr"`             // default ":5887"
	UDPAddr       string `yaml:"udp_addr" json:"udp_addr"`               // default "udp://0.0.0.0:5888"
	MQTTBrokerURL string `yaml:"mqtt_broker_url" json:"mqtt_broker_url"` // empty disables the MQTT receiver
	MQTTClientID  string `yaml:"mqtt_client_id" json:"mqtt_client_id"`
}

// StationData configures one connector: what kind it is, how to reach it,
// and the metadata (C2's StationMetadata) attached to every observation it
// produces.
type StationData struct {
	Name    string `yaml:"name" json:"name"`
	Type    string `yaml:"type" json:"type"` // "davis-vp2", "weatherlink-live", "nbiot-udp", "mqtt", "http-push", "virtual"
	Enabled bool   `yaml:"enabled" json:"enabled"`

	// Direct-connect transports (davis-vp2)
	SerialDevice string `yaml:"serial_device,omitempty" json:"serial_device,omitempty"`
	Baud         int    `yaml:"baud,omitempty" json:"baud,omitempty"`
	Hostname     string `yaml:"hostname,omitempty" json:"hostname,omitempty"`
	Port         string `yaml:"port,omitempty" json:"port,omitempty"`

	// Push-receiver transports share one listener per kind, so these are
	// routing keys rather than connection parameters.
	IMEI      string `yaml:"imei,omitempty" json:"imei,omitempty"`           // nbiot-udp
	HMACKey   string `yaml:"hmac_key,omitempty" json:"hmac_key,omitempty"`   // nbiot-udp
	StrictHMAC *bool `yaml:"strict_hmac,omitempty" json:"strict_hmac,omitempty"`
	MQTTTopic string `yaml:"mqtt_topic,omitempty" json:"mqtt_topic,omitempty"`
	PushToken string `yaml:"push_token,omitempty" json:"push_token,omitempty"` // http-push

	// Polling-style downloader parameters (C7)
	PollInterval    time.Duration `yaml:"poll_interval,omitempty" json:"poll_interval,omitempty"`
	PollOffset      time.Duration `yaml:"poll_offset,omitempty" json:"poll_offset,omitempty"`
	APIKey          string        `yaml:"api_key,omitempty" json:"api_key,omitempty"`
	APISecret       string        `yaml:"api_secret,omitempty" json:"api_secret,omitempty"`

	// Virtual-station fusion (C9)
	SourceStations []string `yaml:"source_stations,omitempty" json:"source_stations,omitempty"`
	FusionMethod   string   `yaml:"fusion_method,omitempty" json:"fusion_method,omitempty"` // "mean", "nearest", "median"

	Latitude  float64 `yaml:"latitude,omitempty" json:"latitude,omitempty"`
	Longitude float64 `yaml:"longitude,omitempty" json:"longitude,omitempty"`
	Altitude  float64 `yaml:"altitude,omitempty" json:"altitude,omitempty"`
}

// StrictHMACOrDefault returns the configured strict-HMAC policy for an
// NB-IoT station, defaulting to true (spec.md §9 explicitly rejects
// silently replicating the original's soft-fail-on-mismatch behavior).
func (s *StationData) StrictHMACOrDefault() bool {
	if s.StrictHMAC == nil {
		return true
	}
	return *s.StrictHMAC
}

// StorageData configures the observation store (C4).
type StorageData struct {
	Postgres PostgresData `yaml:"postgres" json:"postgres"`
}

type PostgresData struct {
	Host     string `yaml:"host" json:"host"`
	Port     int    `yaml:"port" json:"port"`
	Database string `yaml:"database" json:"database"`
	User     string `yaml:"user" json:"user"`
	Password string `yaml:"password" json:"password"`
	SSLMode  string `yaml:"ssl_mode" json:"ssl_mode"`
}

// GetConnectionString forms a libpq-style DSN from the individual fields,
// the way the teacher's TimescaleDBData does.
func (p *PostgresData) GetConnectionString() string {
	var parts []string
	if p.Host != "" {
		parts = append(parts, fmt.Sprintf("host=%s", p.Host))
	}
	if p.Port > 0 {
		parts = append(parts, fmt.Sprintf("port=%d", p.Port))
	}
	if p.Database != "" {
		parts = append(parts, fmt.Sprintf("dbname=%s", p.Database))
	}
	if p.User != "" {
		parts = append(parts, fmt.Sprintf("user=%s", p.User))
	}
	if p.Password != "" {
		parts = append(parts, fmt.Sprintf("password=%s", p.Password))
	}
	if p.SSLMode != "" {
		parts = append(parts, fmt.Sprintf("sslmode=%s", p.SSLMode))
	}
	return strings.Join(parts, " ")
}

// JobsData configures the downstream job publisher's transport (C5).
type JobsData struct {
	NATSURL     string        `yaml:"nats_url" json:"nats_url"`
	Subject     string        `yaml:"subject" json:"subject"`
	DebounceFor time.Duration `yaml:"debounce_for" json:"debounce_for"`
}

type ManagementAPIData struct {
	ListenAddr string `yaml:"listen_addr" json:"listen_addr"`
	Port       int    `yaml:"port" json:"port"`
	AuthToken  string `yaml:"auth_token" json:"auth_token"`
}

// ValidationError mirrors the teacher's validation-error shape.
type ValidationError struct {
	Field   string
	Value   string
	Message string
}

func (ve ValidationError) Error() string {
	return fmt.Sprintf("%s: %s (value: %s)", ve.Field, ve.Message, ve.Value)
}

var validStationTypes = []string{
	"davis-vp2", "weatherlink-live", "nbiot-udp", "mqtt", "http-push", "virtual",
}

// ValidateConfig performs the same kind of structural validation the
// teacher's ValidateConfig does, scoped to the station/storage/jobs shape.
func ValidateConfig(cfg *ConfigData) []ValidationError {
	var errs []ValidationError
	seen := make(map[string]bool)

	for i, st := range cfg.Stations {
		if st.Name == "" {
			errs = append(errs, ValidationError{fmt.Sprintf("stations[%d].name", i), "", "station name is required"})
		}
		if seen[st.Name] {
			errs = append(errs, ValidationError{fmt.Sprintf("stations[%d].name", i), st.Name, "duplicate station name"})
		}
		seen[st.Name] = true

		if !contains(validStationTypes, st.Type) {
			errs = append(errs, ValidationError{fmt.Sprintf("stations[%d].type", i), st.Type,
				fmt.Sprintf("invalid station type, must be one of: %v", validStationTypes)})
		}

		switch st.Type {
		case "davis-vp2":
			if st.SerialDevice == "" && (st.Hostname == "" || st.Port == "") {
				errs = append(errs, ValidationError{fmt.Sprintf("stations[%d]", i), st.Name,
					"davis-vp2 requires serial_device or hostname+port"})
			}
		case "nbiot-udp":
			if st.IMEI == "" {
				errs = append(errs, ValidationError{fmt.Sprintf("stations[%d].imei", i), "", "nbiot-udp requires imei"})
			}
		case "virtual":
			if len(st.SourceStations) == 0 {
				errs = append(errs, ValidationError{fmt.Sprintf("stations[%d].source_stations", i), "", "virtual station requires at least one source station"})
			}
		}

		if st.Latitude != 0 || st.Longitude != 0 {
			if st.Latitude < -90 || st.Latitude > 90 {
				errs = append(errs, ValidationError{fmt.Sprintf("stations[%d].latitude", i), fmt.Sprintf("%.6f", st.Latitude), "latitude must be between -90 and 90 degrees"})
			}
			if st.Longitude < -180 || st.Longitude > 180 {
				errs = append(errs, ValidationError{fmt.Sprintf("stations[%d].longitude", i), fmt.Sprintf("%.6f", st.Longitude), "longitude must be between -180 and 180 degrees"})
			}
		}
	}

	return errs
}

func contains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}

// CachedProvider wraps any Provider with a short-lived cache, exactly the
// pattern the teacher's CachedConfigProvider uses.
type CachedProvider struct {
	provider    Provider
	cache       *ConfigData
	cacheMutex  sync.RWMutex
	lastLoaded  time.Time
	cacheExpiry time.Duration
}

func NewCachedProvider(provider Provider, cacheExpiry time.Duration) *CachedProvider {
	if cacheExpiry == 0 {
		cacheExpiry = 30 * time.Second
	}
	return &CachedProvider{provider: provider, cacheExpiry: cacheExpiry}
}

func (c *CachedProvider) LoadConfig() (*ConfigData, error) {
	c.cacheMutex.RLock()
	if c.cache != nil && time.Since(c.lastLoaded) < c.cacheExpiry {
		defer c.cacheMutex.RUnlock()
		return c.cache, nil
	}
	c.cacheMutex.RUnlock()

	c.cacheMutex.Lock()
	defer c.cacheMutex.Unlock()
	if c.cache != nil && time.Since(c.lastLoaded) < c.cacheExpiry {
		return c.cache, nil
	}

	cfg, err := c.provider.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	if verrs := ValidateConfig(cfg); len(verrs) > 0 {
		var msgs []string
		for _, ve := range verrs {
			msgs = append(msgs, ve.Error())
		}
		return nil, fmt.Errorf("configuration validation failed:\n  - %s", strings.Join(msgs, "\n  - "))
	}

	c.cache = cfg
	c.lastLoaded = time.Now()
	return cfg, nil
}

func (c *CachedProvider) GetStations() ([]StationData, error) {
	cfg, err := c.LoadConfig()
	if err != nil {
		return nil, err
	}
	return cfg.Stations, nil
}

func (c *CachedProvider) GetStation(name string) (*StationData, error) {
	cfg, err := c.LoadConfig()
	if err != nil {
		return nil, err
	}
	for i := range cfg.Stations {
		if cfg.Stations[i].Name == name {
			return &cfg.Stations[i], nil
		}
	}
	return nil, fmt.Errorf("station %q not found", name)
}

func (c *CachedProvider) GetStorageConfig() (*StorageData, error) {
	cfg, err := c.LoadConfig()
	if err != nil {
		return nil, err
	}
	return &cfg.Storage, nil
}

func (c *CachedProvider) GetJobsConfig() (*JobsData, error) {
	cfg, err := c.LoadConfig()
	if err != nil {
		return nil, err
	}
	return &cfg.Jobs, nil
}

func (c *CachedProvider) GetManagementAPIConfig() (*ManagementAPIData, error) {
	cfg, err := c.LoadConfig()
	if err != nil {
		return nil, err
	}
	return &cfg.ManagementAPI, nil
}

func (c *CachedProvider) IsReadOnly() bool { return c.provider.IsReadOnly() }

func (c *CachedProvider) Reload() error {
	if err := c.provider.Reload(); err != nil {
		return err
	}
	c.InvalidateCache()
	return nil
}

func (c *CachedProvider) Close() error {
	c.cacheMutex.Lock()
	c.cache = nil
	c.cacheMutex.Unlock()
	return c.provider.Close()
}

// InvalidateCache forces the next LoadConfig to re-read the underlying
// provider, used by the reload path in internal/app.
func (c *CachedProvider) InvalidateCache() {
	c.cacheMutex.Lock()
	c.cache = nil
	c.cacheMutex.Unlock()
}

// Package app is the top-level orchestrator, in the teacher's own idiom:
// a context.WithCancel rooted at main, every subsystem constructed in
// dependency order, and a signal-driven
// graceful shutdown (see the teacher's internal/app.App.Run, which this
// replaces wholesale — the storage/weather-station/controller manager
// trio it wired has no equivalent here, since C4/C6/C7/C8/C9 each now
// own their own lifecycle as connector.Connector implementations fanned
// out through one connector.Group instead of three bespoke managers).
package app

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/meteo-concept/ingestd/internal/connector"
	"github.com/meteo-concept/ingestd/internal/jobs"
	"github.com/meteo-concept/ingestd/internal/log"
	"github.com/meteo-concept/ingestd/internal/model"
	"github.com/meteo-concept/ingestd/internal/observability"
	"github.com/meteo-concept/ingestd/internal/pushreceiver/httpserver"
	"github.com/meteo-concept/ingestd/internal/pushreceiver/mqttclient"
	"github.com/meteo-concept/ingestd/internal/pushreceiver/udpserver"
	"github.com/meteo-concept/ingestd/internal/scheduler"
	"github.com/meteo-concept/ingestd/internal/scheduler/davisvp2"
	"github.com/meteo-concept/ingestd/internal/scheduler/monitorii"
	"github.com/meteo-concept/ingestd/internal/scheduler/weatherlinkv2"
	"github.com/meteo-concept/ingestd/internal/store"
	"github.com/meteo-concept/ingestd/internal/store/cache"
	"github.com/meteo-concept/ingestd/internal/store/postgres"
	"github.com/meteo-concept/ingestd/internal/virtualstation"
	"github.com/meteo-concept/ingestd/pkg/config"
)

// App wires every component this spec names into one running process.
type App struct {
	configProvider config.Provider

	facade      store.Facade
	natsFacade  *jobs.NATSFacade
	debouncer   *jobs.Debouncer
	group       *connector.Group
	obsServer   *observability.Server
	localCache  *cache.Store
}

// New builds an App around a configuration provider. Every subsystem is
// actually constructed in Run, the way the teacher's App.Run defers
// manager construction past New so configuration errors surface from
// Run's error return rather than from a constructor nobody checks.
func New(configProvider config.Provider) *App {
	return &App{configProvider: configProvider}
}

// Run constructs every subsystem in dependency order (store facade ->
// jobs facade -> debouncer -> connector group -> observability API),
// starts them, and blocks until SIGINT/SIGTERM or ctx is cancelled.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	cfg, err := a.configProvider.LoadConfig()
	if err != nil {
		return fmt.Errorf("app: load configuration: %w", err)
	}

	if err := a.buildStore(ctx, cfg); err != nil {
		return fmt.Errorf("app: build store: %w", err)
	}

	a.natsFacade, err = jobs.NewNATSFacade(cfg.Jobs.NATSURL, cfg.Jobs.Subject)
	if err != nil {
		return fmt.Errorf("app: connect jobs facade: %w", err)
	}
	a.debouncer = jobs.NewDebouncer(a.natsFacade, cfg.Jobs.DebounceFor)

	a.group = connector.NewGroup()
	if err := a.buildConnectors(ctx, cfg); err != nil {
		return fmt.Errorf("app: build connectors: %w", err)
	}

	a.obsServer = observability.New(cfg.ManagementAPI, a.group)

	if err := a.group.Start(ctx); err != nil {
		log.Errorf("app: one or more connectors failed to start: %v", err)
	}
	if err := a.obsServer.Start(ctx); err != nil {
		return fmt.Errorf("app: start observability server: %w", err)
	}

	log.Info("ingestd started successfully")

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)

	for {
		select {
		case sig := <-sigs:
			if sig == syscall.SIGHUP {
				if err := a.ReloadConfiguration(ctx); err != nil {
					log.Errorf("app: reload failed: %v", err)
				}
				continue
			}
			log.Info("shutdown signal received, initiating graceful shutdown...")
			cancel()
		case <-ctx.Done():
			log.Info("context cancelled, shutting down...")
		}
		break
	}

	return a.shutdown()
}

func (a *App) shutdown() error {
	var firstErr error
	if err := a.group.Stop(); err != nil {
		firstErr = err
	}
	if a.obsServer != nil {
		if err := a.obsServer.Stop(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	a.debouncer.Close()
	a.natsFacade.Close()
	if a.localCache != nil {
		a.localCache.Close()
	}
	log.Info("shutdown complete")
	return firstErr
}

// buildStore opens the Postgres facade and, per SPEC_FULL.md §2's
// repurposing of modernc.org/sqlite, wraps it with a local cache tier so
// a decoder's rain-counter state survives a restart during the brief
// window at boot where Postgres isn't reachable yet.
func (a *App) buildStore(ctx context.Context, cfg *config.ConfigData) error {
	primary, err := postgres.New(ctx, &cfg.Storage.Postgres)
	if err != nil {
		return err
	}
	cachePath := cfg.LocalCachePath
	if cachePath == "" {
		cachePath = "ingestd-cache.db"
	}
	localCache, err := cache.Open(cachePath)
	if err != nil {
		log.Warnf("app: could not open local fallback cache at %s, running without it: %v", cachePath, err)
		a.facade = primary
		return nil
	}
	a.localCache = localCache
	a.facade = store.NewFallbackCache(primary, localCache)
	return nil
}

// buildConnectors instantiates one connector per registered station of
// each pull/direct-connect kind (C7/C9), plus the C8 push receivers: HTTP
// and UDP always (on default addresses when none is configured), MQTT
// only when a broker URL is configured.
func (a *App) buildConnectors(ctx context.Context, cfg *config.ConfigData) error {
	if err := a.buildDavisVP2(ctx); err != nil {
		return err
	}
	if err := a.buildWeatherlinkV2(ctx); err != nil {
		return err
	}
	if err := a.buildVirtualStations(ctx); err != nil {
		return err
	}
	a.buildPushReceivers(cfg)
	return nil
}

func (a *App) buildDavisVP2(ctx context.Context) error {
	stations, err := a.facade.GetStationsByKind(ctx, store.KindDavisVP2)
	if err != nil {
		return fmt.Errorf("list davis-vp2 stations: %w", err)
	}
	for _, reg := range stations {
		a.group.Add(davisvp2.New(reg, a.facade, a.debouncer))
	}
	return nil
}

func (a *App) buildWeatherlinkV2(ctx context.Context) error {
	stations, err := a.facade.GetStationsByKind(ctx, store.KindWeatherlinkV2)
	if err != nil {
		return fmt.Errorf("list weatherlink-v2 stations: %w", err)
	}
	if len(stations) == 0 {
		return nil
	}
	src := weatherlinkv2.New("")
	for _, reg := range stations {
		downloader := scheduler.NewStationDownloader(a.facade, src, reg, a.debouncer)
		period, phase := weatherlinkv2.Period, weatherlinkv2.Phase
		if reg.PollInterval > 0 {
			period = reg.PollInterval
		}
		sched := scheduler.New("weatherlinkv2:"+string(reg.Station), period, phase, downloader)
		a.group.Add(sched)
	}
	return nil
}

func (a *App) buildVirtualStations(ctx context.Context) error {
	stations, err := a.facade.GetStationsByKind(ctx, store.KindVirtual)
	if err != nil {
		return fmt.Errorf("list virtual stations: %w", err)
	}
	for _, reg := range stations {
		sources := make(map[model.StationID]map[string]bool, len(reg.SourceStations))
		for _, source := range reg.SourceStations {
			allowed := make(map[string]bool)
			for _, variable := range reg.SourceVariables[source] {
				allowed[variable] = true
			}
			sources[source] = allowed
		}
		period := reg.PollInterval
		if period <= 0 {
			period = time.Minute
		}
		a.group.Add(virtualstation.New(reg.Station, period, sources, a.facade, a.debouncer))
	}
	return nil
}

// buildPushReceivers adds the shared C8 listeners to the connector group
// (MQTT only when a broker URL is configured); group.Start starts them.
// Unlike the
// pull/direct-connect connectors above, these don't enumerate stations
// at startup — each looks the reporting station up in the registry per
// request/message, per spec.md §6.
func (a *App) buildPushReceivers(cfg *config.ConfigData) {
	httpAddr := cfg.PushReceivers.HTTPAddr
	if httpAddr == "" {
		httpAddr = ":5887"
	}
	decoders := map[string]httpserver.RecordDecoder{
		"vp2":       davisvp2.ArchiveRecordDecoder{},
		"monitorII": monitorii.Decoder{},
	}
	a.group.Add(httpserver.New(httpAddr, a.facade, a.debouncer, decoders))

	udpAddr := cfg.PushReceivers.UDPAddr
	if udpAddr == "" {
		udpAddr = "udp://0.0.0.0:5888"
	}
	a.group.Add(udpserver.New(udpAddr, a.facade, a.debouncer))

	if cfg.PushReceivers.MQTTBrokerURL != "" {
		clientID := cfg.PushReceivers.MQTTClientID
		if clientID == "" {
			clientID = "ingestd"
		}
		a.group.Add(mqttclient.New(cfg.PushReceivers.MQTTBrokerURL, clientID, a.facade, a.debouncer))
	}
}

// ReloadConfiguration re-reads the configuration provider and fans a
// reload out to every connector, the way the teacher's
// App.ReloadConfiguration re-diffs each manager. Adding or removing a
// station requires a restart; a live reload only reaches what each
// running connector's own Reload re-reads (mqttclient re-subscribes
// against the current MQTT station list; davisvp2 only records the
// reload time).
func (a *App) ReloadConfiguration(ctx context.Context) error {
	log.Info("reloading configuration...")
	if err := a.configProvider.Reload(); err != nil {
		return fmt.Errorf("app: reload configuration: %w", err)
	}
	return a.group.Reload(ctx)
}

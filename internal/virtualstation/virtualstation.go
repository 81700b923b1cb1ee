// Package virtualstation implements C9 (spec.md §4.9): a periodic merger
// that builds a composite observation for a virtual station out of
// chosen variables from several source stations, the way the teacher's
// own periodic pollers (internal/weatherstations/*) are each a
// self-contained goroutine driven by a ticker against C4 — except this
// one reads instead of writing to its sources.
package virtualstation

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/meteo-concept/ingestd/internal/connector"
	"github.com/meteo-concept/ingestd/internal/jobs"
	"github.com/meteo-concept/ingestd/internal/log"
	"github.com/meteo-concept/ingestd/internal/model"
	"github.com/meteo-concept/ingestd/internal/store"
	"gonum.org/v1/gonum/stat"
)

// staleSourceTolerance is how long a source may go without data before
// its absence is logged rather than blocking the virtual station
// forever (spec.md §4.9 rule 1).
const staleSourceTolerance = 4 * time.Hour

// perSourceStaleness is how far before the target tick a source's last
// reading may lag and still be used (spec.md §4.9 rule 2).
const perSourceStaleness = 10 * time.Minute

// Computer is the C9 connector for one virtual station.
type Computer struct {
	target   model.StationID
	period   time.Duration
	sources  map[model.StationID]map[string]bool
	facade   store.Facade
	debounce *jobs.Debouncer

	mu          sync.Mutex
	timer       *time.Timer
	cancel      context.CancelFunc
	activeSince time.Time
	lastReload  time.Time
	lastTick    time.Time
	ticks       int64
	stopped     bool
}

// New builds a Computer. sources maps each contributing station to the
// set of variable names it is allowed to supply (spec.md §4.9's
// "sources: map<source-id, set<variable-name>>").
func New(target model.StationID, period time.Duration, sources map[model.StationID]map[string]bool, facade store.Facade, debounce *jobs.Debouncer) *Computer {
	return &Computer{target: target, period: period, sources: sources, facade: facade, debounce: debounce}
}

func (c *Computer) Name() string { return "virtualstation:" + string(c.target) }

func (c *Computer) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.cancel != nil {
		c.mu.Unlock()
		return nil
	}
	ctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.activeSince = time.Now()
	c.stopped = false
	c.mu.Unlock()

	go c.loop(ctx)
	return nil
}

func (c *Computer) loop(ctx context.Context) {
	delay := c.period
	if delay <= 0 {
		delay = time.Minute
	}
	for {
		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}
		if err := c.runOnce(ctx); err != nil {
			log.Errorf("[virtualstation %s] computation: tick failed: %v", c.target, err)
		}
	}
}

// runOnce implements spec.md §4.9's per-tick algorithm: find the lagging
// watermark, walk every aligned tick up to it, merge and insert, then
// notify C5 once for the whole span.
func (c *Computer) runOnce(ctx context.Context) error {
	targetLast, err := c.facade.GetLastArchiveTime(ctx, c.target)
	if err != nil {
		return fmt.Errorf("reading target watermark: %w", err)
	}

	var floor time.Time
	for source := range c.sources {
		last, err := c.facade.GetLastArchiveTime(ctx, source)
		if err != nil {
			return fmt.Errorf("reading source %s watermark: %w", source, err)
		}
		if time.Since(last) > staleSourceTolerance {
			log.Warnf("[virtualstation %s] management: source %s has had no data for over %s, advancing anyway", c.target, source, staleSourceTolerance)
			continue
		}
		if floor.IsZero() || last.Before(floor) {
			floor = last
		}
	}
	if floor.IsZero() || !floor.After(targetLast) {
		return nil
	}

	period := c.period
	if period <= 0 {
		period = time.Minute
	}

	var oldest, newest time.Time
	for tau := ceilToPeriod(targetLast.Add(time.Nanosecond), period); !tau.After(floor); tau = tau.Add(period) {
		obs, built := c.mergeAt(ctx, tau)
		if !built {
			continue
		}
		if _, err := c.facade.InsertPoint(ctx, obs); err != nil {
			return fmt.Errorf("insert at %s: %w", tau, err)
		}
		if _, err := c.facade.UpdateLastArchiveTime(ctx, c.target, tau); err != nil {
			return fmt.Errorf("advancing watermark to %s: %w", tau, err)
		}
		if oldest.IsZero() {
			oldest = tau
		}
		newest = tau

		c.mu.Lock()
		c.lastTick = time.Now()
		c.ticks++
		c.mu.Unlock()
	}

	if !newest.IsZero() && c.debounce != nil {
		c.debounce.Notify(c.target, oldest, newest)
	}
	return nil
}

// mergeAt builds one composite observation for instant tau: each source
// contributes its allow-listed variables from its own last reading
// before tau, discarded if that reading is more than perSourceStaleness
// old. When more than one source is allow-listed for the same variable,
// the contributing values are combined with gonum's sample mean rather
// than a plain last-write-wins pick, so a redundant pair of sensors
// smooths out independent noise instead of one silently shadowing the
// other.
func (c *Computer) mergeAt(ctx context.Context, tau time.Time) (model.Observation, bool) {
	merged := model.Observation{Station: c.target, Timestamp: tau, SensorModel: "virtual"}
	contributed := false

	collect := make(map[string][]float64)
	var boolVotes []bool

	for source, variables := range c.sources {
		obs, found, err := c.facade.GetLastDataBefore(ctx, source, tau)
		if err != nil {
			log.Warnf("[virtualstation %s] computation: could not read source %s at %s: %v", c.target, source, tau, err)
			continue
		}
		if !found || obs.Timestamp.Before(tau.Add(-perSourceStaleness)) {
			continue
		}
		for variable := range variables {
			if v, ok := fieldValue(obs, variable); ok {
				collect[variable] = append(collect[variable], v)
				contributed = true
			}
		}
		if variables["battery_low"] {
			if v, ok := obs.BatteryLow.Get(); ok {
				boolVotes = append(boolVotes, v)
			}
		}
	}

	for variable, values := range collect {
		setFieldValue(&merged, variable, stat.Mean(values, nil))
	}
	if len(boolVotes) > 0 {
		trueCount := 0
		for _, v := range boolVotes {
			if v {
				trueCount++
			}
		}
		merged.BatteryLow = model.Some(trueCount*2 >= len(boolVotes))
	}

	return merged, contributed
}

func fieldValue(obs model.Observation, variable string) (float64, bool) {
	switch variable {
	case "temperature":
		return obs.Temperature.Get()
	case "humidity":
		return obs.Humidity.Get()
	case "pressure":
		return obs.Pressure.Get()
	case "wind_speed":
		return obs.WindSpeed.Get()
	case "wind_direction":
		return obs.WindDirection.Get()
	case "wind_gust":
		return obs.WindGust.Get()
	case "rainfall":
		return obs.RainfallSinceLast.Get()
	case "soil_moisture":
		return obs.SoilMoisture.Get()
	case "leaf_wetness":
		return obs.LeafWetness.Get()
	case "battery_voltage":
		return obs.BatteryVoltage.Get()
	default:
		return 0, false
	}
}

func setFieldValue(obs *model.Observation, variable string, v float64) {
	switch variable {
	case "temperature":
		obs.Temperature = model.Some(v)
	case "humidity":
		obs.Humidity = model.Some(v)
	case "pressure":
		obs.Pressure = model.Some(v)
	case "wind_speed":
		obs.WindSpeed = model.Some(v)
	case "wind_direction":
		obs.WindDirection = model.Some(v)
	case "wind_gust":
		obs.WindGust = model.Some(v)
	case "rainfall":
		obs.RainfallSinceLast = model.Some(v)
	case "soil_moisture":
		obs.SoilMoisture = model.Some(v)
	case "leaf_wetness":
		obs.LeafWetness = model.Some(v)
	case "battery_voltage":
		obs.BatteryVoltage = model.Some(v)
	}
}

func ceilToPeriod(t time.Time, period time.Duration) time.Time {
	u := t.UTC()
	rem := u.UnixNano() % period.Nanoseconds()
	if rem == 0 {
		return u
	}
	return u.Add(period - time.Duration(rem))
}

func (c *Computer) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stopped {
		return nil
	}
	c.stopped = true
	if c.cancel != nil {
		c.cancel()
	}
	return nil
}

func (c *Computer) Reload(ctx context.Context) error {
	c.mu.Lock()
	c.lastReload = time.Now()
	c.mu.Unlock()
	return nil
}

func (c *Computer) Status() connector.Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	short := connector.StatusOK
	if c.stopped {
		short = connector.StatusStopped
	} else if c.ticks == 0 {
		short = connector.StatusIdle
	}
	return connector.Status{
		ActiveSince:          c.activeSince,
		LastReload:           c.lastReload,
		LastDownload:         c.lastTick,
		DownloadsSinceReload: c.ticks,
		ShortStatus:          short,
	}
}

var _ connector.Connector = (*Computer)(nil)

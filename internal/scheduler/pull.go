package scheduler

import (
	"context"
	"time"

	"github.com/meteo-concept/ingestd/internal/jobs"
	"github.com/meteo-concept/ingestd/internal/log"
	"github.com/meteo-concept/ingestd/internal/model"
	"github.com/meteo-concept/ingestd/internal/store"
)

// WindowSize is the 24-hour archive window spec.md §4.7 iterates in.
const WindowSize = 24 * time.Hour

// VendorSource is implemented by one vendor's HTTP client: "what's your
// latest available instant" and "fetch+decode this window into
// observations." A Source never writes to the store itself — PullStation
// owns the idempotent write/delete/watermark sequence so every vendor
// gets the same archive-vs-real-time reconciliation and watermark
// discipline for free.
type VendorSource interface {
	// LatestAvailable hits the source's lightweight latest-instant
	// endpoint.
	LatestAvailable(ctx context.Context, reg store.StationRegistration) (time.Time, error)
	// FetchWindow downloads and decodes one window's records.
	FetchWindow(ctx context.Context, reg store.StationRegistration, begin, end time.Time) ([]model.Observation, error)
	// HasRealtimeStream reports whether archive-vs-real-time
	// reconciliation (DeletePointsInRange before insert) applies to this
	// vendor (spec.md §4.7: "skipped when no real-time stream exists").
	HasRealtimeStream() bool
}

// PullStation runs spec.md §4.7's per-station downloader state machine
// for one station: check the lightweight latest-available endpoint, skip
// if it doesn't exceed the watermark, else iterate 24h windows, decode,
// write, and advance last-archive only on full success.
func PullStation(ctx context.Context, facade store.Facade, src VendorSource, reg store.StationRegistration, debouncer *jobs.Debouncer) error {
	lastArchive, err := facade.GetLastArchiveTime(ctx, reg.Station)
	if err != nil {
		return err
	}
	if lastArchive.IsZero() {
		lastArchive = time.Now().Add(-WindowSize)
	}

	lastAvailable, err := src.LatestAvailable(ctx, reg)
	if err != nil {
		return err
	}
	if !lastAvailable.After(lastArchive) {
		return nil // nothing new; skip per spec.md §4.7
	}

	cursor := lastArchive.Add(time.Second)
	var oldestInserted, newestInserted time.Time

	for cursor.Before(lastAvailable) || cursor.Equal(lastAvailable) {
		windowEnd := cursor.Add(WindowSize)
		if windowEnd.After(lastAvailable) {
			windowEnd = lastAvailable
		}

		obs, err := src.FetchWindow(ctx, reg, cursor, windowEnd)
		if err != nil {
			log.Errorf("[scheduler %s] connection: fetch window [%s,%s] failed: %v", reg.Station, cursor, windowEnd, err)
			return err // watermark not advanced; next tick retries from cursor
		}

		if src.HasRealtimeStream() && len(obs) > 0 {
			day := obs[0].Timestamp
			if _, err := facade.DeletePointsInRange(ctx, reg.Station, day, cursor, windowEnd); err != nil {
				log.Errorf("[scheduler %s] measurement: could not clear real-time rows before archive import: %v", reg.Station, err)
			}
		}

		var batch []model.Observation
		var insertErr error
		for _, o := range obs {
			if _, err := facade.InsertPoint(ctx, o); err != nil {
				log.Errorf("[scheduler %s] measurement: insert failed for %s, stopping window early: %v", reg.Station, o.Timestamp, err)
				insertErr = err
				break
			}
			batch = append(batch, o)
			if oldestInserted.IsZero() || o.Timestamp.Before(oldestInserted) {
				oldestInserted = o.Timestamp
			}
			if o.Timestamp.After(newestInserted) {
				newestInserted = o.Timestamp
			}
		}
		if _, err := facade.InsertPointsBatch(ctx, batch); err != nil {
			log.Warnf("[scheduler %s] measurement: batch tsdb insert failed (per-record writes remain authoritative): %v", reg.Station, err)
		}
		if insertErr != nil {
			return insertErr // watermark not advanced; next tick retries from cursor
		}

		if ok, err := facade.UpdateLastArchiveTime(ctx, reg.Station, windowEnd); !ok || err != nil {
			log.Errorf("[scheduler %s] management: could not advance watermark to %s: %v", reg.Station, windowEnd, err)
			return err
		}

		cursor = windowEnd.Add(time.Second)
		if windowEnd.Equal(lastAvailable) {
			break
		}
	}

	if debouncer != nil && !oldestInserted.IsZero() {
		debouncer.Notify(reg.Station, oldestInserted, newestInserted)
	}
	return nil
}

// stationDownloader adapts one VendorSource bound to one station into the
// Downloader hook Scheduler ticks, so every HTTP-polled vendor reuses
// PullStation's watermark/reconciliation discipline instead of each
// wiring it up by hand in internal/app.
type stationDownloader struct {
	facade    store.Facade
	src       VendorSource
	reg       store.StationRegistration
	debouncer *jobs.Debouncer
}

// NewStationDownloader builds the Downloader for one station against one
// VendorSource.
func NewStationDownloader(facade store.Facade, src VendorSource, reg store.StationRegistration, debouncer *jobs.Debouncer) Downloader {
	return &stationDownloader{facade: facade, src: src, reg: reg, debouncer: debouncer}
}

func (d *stationDownloader) Download(ctx context.Context) error {
	return PullStation(ctx, d.facade, d.src, d.reg, d.debouncer)
}

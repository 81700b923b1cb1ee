// Package scheduler implements C7, spec.md §4.7: a periodic-download
// scheduler parameterized by a period and a phase offset, firing a
// polymorphic Download hook on a tick grid aligned to period boundaries.
// Grounded on the teacher's weatherlinklive station (its periodic
// "discovery"/polling goroutine pattern) generalized to an explicit,
// reusable scheduler type instead of one-off goroutine loops per vendor,
// and on cenkalti/backoff/v4 for the per-station retry policy spec.md's
// TransientNetwork recovery rule calls for.
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/meteo-concept/ingestd/internal/connector"
	"github.com/meteo-concept/ingestd/internal/log"
)

// Downloader is the polymorphic hook a concrete vendor integration
// implements — the subclass "download()" of spec.md §4.7.
type Downloader interface {
	// Download runs one tick. Any error is logged and swallowed by the
	// scheduler; the next tick is armed normally (spec.md §4.7's failure
	// semantics). Implementations must localize per-station errors
	// internally so one station's failure doesn't abort the others.
	Download(ctx context.Context) error
}

// retryBudget is spec.md §7's TransientNetwork recovery policy: "per-
// request retry budget (typ. 5), then give up for this tick; no
// watermark advance."
const retryBudget = 5

// Scheduler is the C7 component: one instance per vendor/source, each
// parameterized by its own period and phase offset.
type Scheduler struct {
	name       string
	period     time.Duration
	phase      time.Duration
	downloader Downloader

	mu                   sync.Mutex
	timer                *time.Timer
	stopped              bool
	activeSince          time.Time
	lastReload           time.Time
	lastDownload         time.Time
	downloadsSinceReload int64
	nextTick             time.Time
	running              bool

	cancel context.CancelFunc
	done   chan struct{}
}

// New builds a Scheduler. period/phase correspond to spec.md §4.7's P/φ
// (e.g. 5 min / 2 min for Weatherlink v2, 60 min / 2 min for MF hourly).
func New(name string, period, phase time.Duration, downloader Downloader) *Scheduler {
	return &Scheduler{
		name:       name,
		period:     period,
		phase:      phase,
		downloader: downloader,
		done:       make(chan struct{}),
	}
}

func ceilToPeriod(t time.Time, period time.Duration) time.Time {
	rem := t.UnixNano() % period.Nanoseconds()
	if rem == 0 {
		return t
	}
	return t.Add(time.Duration(period.Nanoseconds() - rem))
}

// Start computes next_tick = ceil_to_period(now) + φ and arms a
// monotonic-clock timer for it, per spec.md §4.7's scheduling contract.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return nil
	}
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.running = true
	s.stopped = false
	s.activeSince = time.Now()
	now := time.Now()
	s.nextTick = ceilToPeriod(now, s.period).Add(s.phase)
	s.timer = time.AfterFunc(time.Until(s.nextTick), func() { s.onTick(ctx) })
	s.mu.Unlock()
	return nil
}

// onTick runs the subclass hook then arms the next tick. A single
// outstanding timer exists at any time: the scheduler never re-enters
// Download while a previous invocation is in flight (spec.md §5's
// ordering guarantee) because the next timer is only armed after
// Download returns, right here.
func (s *Scheduler) onTick(ctx context.Context) {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()

	func() {
		defer func() {
			if r := recover(); r != nil {
				log.Errorf("scheduler[%s]: download panicked, swallowing: %v", s.name, r)
			}
		}()
		// spec.md §7 TransientNetwork: a fresh retry budget every tick,
		// since an ExponentialBackOff remembers its elapsed time and must
		// not carry over between ticks.
		policy := backoff.WithMaxRetries(backoff.NewExponentialBackOff(), retryBudget)
		err := backoff.Retry(func() error { return s.downloader.Download(ctx) }, backoff.WithContext(policy, ctx))
		if err != nil {
			log.Errorf("[%s] recovery: download failed after retries, watermark not advanced: %v", s.name, err)
		} else {
			s.mu.Lock()
			s.lastDownload = time.Now()
			s.downloadsSinceReload++
			s.mu.Unlock()
		}
	}()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return
	}
	s.nextTick = s.nextTick.Add(s.period)
	delay := time.Until(s.nextTick)
	if delay < 0 {
		// Spurious/late wake-up: re-arm for the next boundary without
		// skipping ticks silently backward in time.
		delay = 0
	}
	s.timer = time.AfterFunc(delay, func() { s.onTick(ctx) })
}

// Stop cancels the pending timer and guarantees Download fires no more.
// Idempotent; does not wait on an in-flight Download.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return nil
	}
	s.stopped = true
	s.running = false
	if s.timer != nil {
		s.timer.Stop()
	}
	if s.cancel != nil {
		s.cancel()
	}
	return nil
}

// Reload resets the downloads-since-reload counter; the vendor-specific
// downloader is responsible for re-reading its station registry rows
// on its own next Download call.
func (s *Scheduler) Reload(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastReload = time.Now()
	s.downloadsSinceReload = 0
	return nil
}

func (s *Scheduler) Status() connector.Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	short := connector.StatusStopped
	switch {
	case s.stopped:
		short = connector.StatusStopped
	case s.downloadsSinceReload == 0:
		short = connector.StatusIdle
	default:
		short = connector.StatusOK
	}
	return connector.Status{
		ActiveSince:          s.activeSince,
		LastReload:           s.lastReload,
		LastDownload:         s.lastDownload,
		DownloadsSinceReload: s.downloadsSinceReload,
		NextDownload:         s.nextTick,
		ShortStatus:          short,
	}
}

func (s *Scheduler) Name() string { return s.name }

var _ connector.Connector = (*Scheduler)(nil)

package refresh

import (
	"context"
	"sync"
	"time"

	"github.com/frostlux/frostlux/internal/device"
)

// Default values for Config.
const (
	DefaultInterval   = 5 * time.Second
	DefaultStaleAfter = 3
)

// Logger interface for optional logging.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Fetcher lists every light on the gateway. It must return either the
// complete list or an error. *tradfri.Client implements it.
type Fetcher interface {
	FetchLights(ctx context.Context) ([]device.Observed, error)
}

// Config holds the refresh schedule.
type Config struct {
	// Interval between cycles. Default: 5 seconds.
	Interval time.Duration

	// CycleTimeout bounds one cycle, including waiting for a session.
	// Default: Interval.
	CycleTimeout time.Duration

	// StaleAfter is the number of consecutive failed cycles after which
	// the store is flagged stale. Default: 3.
	StaleAfter int
}

// Stats counts refresh activity since start.
type Stats struct {
	Cycles              uint64
	Failures            uint64
	ConsecutiveFailures int
	LastSuccess         time.Time
}

// Refresher runs the background refresh loop.
type Refresher struct {
	store   *device.Store
	fetcher Fetcher
	cfg     Config
	trigger chan struct{}

	mu    sync.Mutex
	stats Stats

	logger Logger
	now    func() time.Time
}

// New creates a refresher.
func New(store *device.Store, fetcher Fetcher, cfg Config) *Refresher {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.CycleTimeout <= 0 {
		cfg.CycleTimeout = cfg.Interval
	}
	if cfg.StaleAfter <= 0 {
		cfg.StaleAfter = DefaultStaleAfter
	}
	return &Refresher{
		store:   store,
		fetcher: fetcher,
		cfg:     cfg,
		trigger: make(chan struct{}, 1),
		logger:  noopLogger{},
		now:     time.Now,
	}
}

// SetLogger sets the logger for the refresher.
func (r *Refresher) SetLogger(logger Logger) {
	r.logger = logger
}

// Run refreshes immediately and then every Config.Interval until ctx ends.
// It always returns nil; failures are handled per cycle.
func (r *Refresher) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.cfg.Interval)
	defer ticker.Stop()

	for {
		_ = r.RefreshOnce(ctx)

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		case <-r.trigger:
			ticker.Reset(r.cfg.Interval)
		}
	}
}

// Trigger asks Run for an immediate cycle. Requests made while one is
// already queued are merged.
func (r *Refresher) Trigger() {
	select {
	case r.trigger <- struct{}{}:
	default:
	}
}

// RefreshOnce runs one cycle.
//
// Returns:
//   - error: The fetch error, after it has been counted
func (r *Refresher) RefreshOnce(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, r.cfg.CycleTimeout)
	defer cancel()

	gens := r.store.BeginRefresh()
	lights, err := r.fetcher.FetchLights(ctx)
	if err != nil {
		r.failed(err)
		return err
	}

	ids := make([]int, 0, len(lights))
	rejected := 0
	for _, o := range lights {
		ids = append(ids, o.ID)
		if !r.store.MergeRefresh(o.ID, o, gens[o.ID]) {
			rejected++
		}
	}
	removed := r.store.Retain(ids)

	r.mu.Lock()
	r.stats.Cycles++
	r.stats.ConsecutiveFailures = 0
	r.stats.LastSuccess = r.now()
	r.mu.Unlock()
	r.store.SetStale(false)

	r.logger.Debug("refresh complete",
		"lights", len(lights),
		"rejected", rejected,
		"removed", removed,
	)
	return nil
}

func (r *Refresher) failed(err error) {
	r.mu.Lock()
	r.stats.Cycles++
	r.stats.Failures++
	r.stats.ConsecutiveFailures++
	n := r.stats.ConsecutiveFailures
	r.mu.Unlock()

	if n >= r.cfg.StaleAfter {
		if !r.store.Stale() {
			r.logger.Warn("light state is stale", "consecutive_failures", n, "error", err)
		}
		r.store.SetStale(true)
		return
	}
	r.logger.Debug("refresh failed", "consecutive_failures", n, "error", err)
}

// Stats returns a copy of the refresh counters.
func (r *Refresher) Stats() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stats
}

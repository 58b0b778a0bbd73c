package command

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/frostlux/frostlux/internal/automation"
	"github.com/frostlux/frostlux/internal/bridges/tradfri"
	"github.com/frostlux/frostlux/internal/device"
)

// Default values for Config.
const (
	DefaultTimeout    = 2 * time.Second
	DefaultMaxRetries = 3
)

// sceneConcurrency bounds the requests one scene has in flight at once.
const sceneConcurrency = 4

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

// Sender writes a delta to one light on the gateway.
// *tradfri.Client implements it.
type Sender interface {
	ApplyDelta(ctx context.Context, id int, delta device.Delta) error
}

// Config holds the retry policy.
type Config struct {
	// Timeout bounds one attempt, including waiting for a session.
	// Default: 2 seconds.
	Timeout time.Duration

	// MaxRetries is the total number of attempts before a light is marked
	// unreachable. Default: 3.
	MaxRetries int
}

// Dispatcher executes commands against the store and the gateway.
//
// Thread Safety: all methods are safe for concurrent use. Operations block
// until the command resolves; the UI runs them off its event loop.
type Dispatcher struct {
	store  *device.Store
	sender Sender
	scenes *automation.Engine
	cfg    Config

	// mu orders ApplyOptimistic calls with supersession and with the
	// resolution of a command, so a cancelled command never re-applies
	// over a newer one and a resolved delta is never coalesced.
	mu       sync.Mutex
	inflight map[int]*PendingCommand

	obsMu     sync.RWMutex
	observers []func(Result)

	logger Logger
	now    func() time.Time
}

// NewDispatcher creates a dispatcher. scenes may be nil when scene
// application is not needed.
func NewDispatcher(store *device.Store, sender Sender, scenes *automation.Engine, cfg Config) *Dispatcher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = DefaultMaxRetries
	}
	return &Dispatcher{
		store:    store,
		sender:   sender,
		scenes:   scenes,
		cfg:      cfg,
		inflight: make(map[int]*PendingCommand),
		logger:   noopLogger{},
		now:      time.Now,
	}
}

// SetLogger sets the logger for the dispatcher.
func (d *Dispatcher) SetLogger(logger Logger) {
	d.logger = logger
}

// Subscribe registers fn to receive every resolved command.
// Observers run on the command's goroutine and must not block.
func (d *Dispatcher) Subscribe(fn func(Result)) {
	d.obsMu.Lock()
	d.observers = append(d.observers, fn)
	d.obsMu.Unlock()
}

// Toggle flips a light on or off.
func (d *Dispatcher) Toggle(ctx context.Context, id int) (Result, error) {
	return d.submit(ctx, id, "toggle", func(l device.Light) device.Delta {
		return device.Delta{On: device.Bool(!l.On)}
	})
}

// SetOn switches a light on or off.
func (d *Dispatcher) SetOn(ctx context.Context, id int, on bool) (Result, error) {
	return d.submit(ctx, id, "power", func(device.Light) device.Delta {
		return device.Delta{On: device.Bool(on)}
	})
}

// SetBrightness sets a light to pct percent. Zero switches it off; any
// other value switches it on.
func (d *Dispatcher) SetBrightness(ctx context.Context, id int, pct int) (Result, error) {
	return d.submit(ctx, id, "brightness", func(device.Light) device.Delta {
		return brightnessDelta(pct)
	})
}

// StepBrightness changes a light's brightness by step percentage points,
// starting from zero when the light is off.
func (d *Dispatcher) StepBrightness(ctx context.Context, id int, step int) (Result, error) {
	return d.submit(ctx, id, "brightness", func(l device.Light) device.Delta {
		current := l.Brightness
		if !l.On {
			current = 0
		}
		return brightnessDelta(current + step)
	})
}

// SetColorTemp sets a light's colour temperature in mireds.
func (d *Dispatcher) SetColorTemp(ctx context.Context, id int, mireds int) (Result, error) {
	return d.submit(ctx, id, "color_temp", func(device.Light) device.Delta {
		return device.Delta{ColorTemp: device.Int(device.ClampColorTemp(mireds))}
	})
}

// StepColorTemp moves a light to the next warmer or colder preset.
func (d *Dispatcher) StepColorTemp(ctx context.Context, id int, warmer bool) (Result, error) {
	return d.submit(ctx, id, "color_temp", func(l device.Light) device.Delta {
		return device.Delta{ColorTemp: device.Int(device.StepColorTemp(l.ColorTemp, warmer))}
	})
}

// Apply writes an arbitrary delta, as received from a remote command.
func (d *Dispatcher) Apply(ctx context.Context, id int, delta device.Delta) (Result, error) {
	if delta.Brightness != nil && delta.On == nil {
		delta = delta.Clone()
		delta.On = device.Bool(*delta.Brightness > 0)
	}
	return d.submit(ctx, id, "set", func(device.Light) device.Delta {
		return delta
	})
}

// ApplyScene resolves name and commands every planned light.
//
// Lights are commanded independently; the scene is not atomic and a
// partial application is a normal result. The returned error is only set
// when nothing was sent (unknown scene, no engine).
func (d *Dispatcher) ApplyScene(ctx context.Context, name string) (SceneResult, error) {
	if d.scenes == nil {
		return SceneResult{}, fmt.Errorf("%w: %q", automation.ErrUnknownScene, name)
	}
	plan, err := d.scenes.Plan(name, d.store.Snapshot())
	if err != nil {
		return SceneResult{}, err
	}

	d.logger.Info("applying scene", "scene", plan.Scene.Key, "lights", len(plan.Targets), "excluded", len(plan.Excluded))

	results := make([]Result, len(plan.Targets))
	var g errgroup.Group
	g.SetLimit(sceneConcurrency)
	for i, t := range plan.Targets {
		g.Go(func() error {
			res, err := d.submit(ctx, t.LightID, "scene:"+plan.Scene.Key, func(device.Light) device.Delta {
				return t.Delta
			})
			if err != nil {
				// The light vanished between planning and sending.
				res = Result{Kind: "scene:" + plan.Scene.Key, LightID: t.LightID, LightName: t.Name, Delta: t.Delta, Outcome: OutcomeRejected, Err: err}
			}
			results[i] = res
			return nil
		})
	}
	_ = g.Wait()

	return SceneResult{Plan: plan, Results: results}, nil
}

// Pending returns the commands awaiting a response, ordered by light id.
func (d *Dispatcher) Pending() []PendingCommand {
	d.mu.Lock()
	pending := make([]PendingCommand, 0, len(d.inflight))
	for _, pc := range d.inflight {
		c := *pc
		c.cancel = nil
		pending = append(pending, c)
	}
	d.mu.Unlock()

	sort.Slice(pending, func(i, j int) bool { return pending[i].LightID < pending[j].LightID })
	return pending
}

func brightnessDelta(pct int) device.Delta {
	pct = device.ClampBrightness(pct)
	if pct == 0 {
		return device.Delta{On: device.Bool(false)}
	}
	return device.Delta{On: device.Bool(true), Brightness: device.Int(pct)}
}

// submit applies the delta computed from the light's current state and
// runs the command to resolution.
func (d *Dispatcher) submit(ctx context.Context, id int, kind string, compute func(device.Light) device.Delta) (Result, error) {
	d.mu.Lock()
	light, ok := d.store.Get(id)
	if !ok {
		d.mu.Unlock()
		return Result{}, fmt.Errorf("%w: %d", device.ErrLightNotFound, id)
	}

	delta := compute(light)
	prev := d.inflight[id]
	if prev != nil {
		delta = coalesce(prev.Delta, delta)
	}

	cctx, cancel := context.WithCancel(ctx)
	gen, confirmed, err := d.store.ApplyOptimistic(id, delta)
	if err != nil {
		d.mu.Unlock()
		cancel()
		return Result{}, err
	}
	if prev != nil {
		prev.cancel()
		d.logger.Debug("command superseded", "light_id", id, "command_id", prev.ID)
	}

	pc := &PendingCommand{
		ID:         uuid.NewString(),
		Kind:       kind,
		LightID:    id,
		Delta:      delta,
		Generation: gen,
		StartedAt:  d.now(),
		cancel:     cancel,
	}
	d.inflight[id] = pc
	d.mu.Unlock()

	res := d.run(cctx, pc, confirmed)
	res.LightName = light.Name
	cancel()

	d.logResult(res)
	d.emit(res)
	return res, nil
}

// run sends pc until it resolves. previous is the last confirmed value,
// restored on every failure.
func (d *Dispatcher) run(ctx context.Context, pc *PendingCommand, previous device.Attributes) Result {
	res := Result{
		ID:        pc.ID,
		Kind:      pc.Kind,
		LightID:   pc.LightID,
		Delta:     pc.Delta,
		StartedAt: pc.StartedAt,
	}
	finish := func(o Outcome, err error) Result {
		res.Outcome = o
		res.Err = err
		res.Latency = d.now().Sub(pc.StartedAt)
		return res
	}

	for {
		res.Attempts++
		attemptCtx, cancel := context.WithTimeout(ctx, d.cfg.Timeout)
		err := d.sender.ApplyDelta(attemptCtx, pc.LightID, pc.Delta)
		cancel()

		switch {
		case err == nil:
			if !d.settle(pc, func(gen uint64) bool { return d.store.Confirm(pc.LightID, gen) }) {
				return finish(OutcomeSuperseded, ErrSuperseded)
			}
			return finish(OutcomeConfirmed, nil)

		case ctx.Err() != nil:
			// Superseded or shutting down. A superseded command must not
			// revert over the newer command's value.
			reverted := d.settle(pc, func(gen uint64) bool {
				return d.inflight[pc.LightID] == pc && d.store.Revert(pc.LightID, gen, previous)
			})
			if !reverted {
				return finish(OutcomeSuperseded, ErrSuperseded)
			}
			return finish(OutcomeReverted, fmt.Errorf("command cancelled: %w", ctx.Err()))

		case errors.Is(err, tradfri.ErrRejected):
			if !d.settle(pc, func(gen uint64) bool { return d.store.Revert(pc.LightID, gen, previous) }) {
				return finish(OutcomeSuperseded, ErrSuperseded)
			}
			return finish(OutcomeRejected, fmt.Errorf("%w: %w", ErrRejected, err))
		}

		d.mu.Lock()
		pc.Retries++
		d.mu.Unlock()
		cause := err
		if isTimeout(err) {
			cause = fmt.Errorf("%w: %w", ErrTimeout, err)
		}

		if pc.Retries >= d.cfg.MaxRetries {
			if !d.settle(pc, func(gen uint64) bool { return d.store.MarkUnreachable(pc.LightID, gen, previous) }) {
				return finish(OutcomeSuperseded, ErrSuperseded)
			}
			return finish(OutcomeUnreachable, fmt.Errorf("%w after %d attempts: %w", ErrUnreachable, res.Attempts, cause))
		}

		d.logger.Debug("command attempt failed, retrying",
			"light_id", pc.LightID,
			"attempt", res.Attempts,
			"error", err,
		)
		if !d.reapply(ctx, pc, previous) {
			return finish(OutcomeSuperseded, ErrSuperseded)
		}
	}
}

// reapply reverts the failed attempt and writes the delta again under a
// new generation. It returns false if a newer command owns the light.
func (d *Dispatcher) reapply(ctx context.Context, pc *PendingCommand, previous device.Attributes) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if ctx.Err() != nil || d.inflight[pc.LightID] != pc {
		return false
	}
	if !d.store.Revert(pc.LightID, pc.Generation, previous) {
		return false
	}
	gen, _, err := d.store.ApplyOptimistic(pc.LightID, pc.Delta)
	if err != nil {
		return false
	}
	pc.Generation = gen
	return true
}

// settle runs the store operation that resolves pc and retires pc from
// inflight under one hold of mu. A command submitted afterwards therefore
// never coalesces a delta that has already been confirmed or rolled back.
// resolve gets pc's current generation and must not call back into d.
func (d *Dispatcher) settle(pc *PendingCommand, resolve func(gen uint64) bool) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	ok := resolve(pc.Generation)
	if d.inflight[pc.LightID] == pc {
		delete(d.inflight, pc.LightID)
	}
	return ok
}

// coalesce folds the unresolved fields of an older delta into a newer one.
// Fields set by next win.
func coalesce(older, next device.Delta) device.Delta {
	merged := older.Clone()
	if next.On != nil {
		merged.On = next.On
	}
	if next.Brightness != nil {
		merged.Brightness = next.Brightness
	}
	if next.ColorTemp != nil {
		merged.ColorTemp = next.ColorTemp
	}
	return merged
}

func isTimeout(err error) bool {
	return errors.Is(err, tradfri.ErrTimeout) ||
		errors.Is(err, tradfri.ErrNoSession) ||
		errors.Is(err, context.DeadlineExceeded)
}

func (d *Dispatcher) logResult(res Result) {
	args := []any{
		"command_id", res.ID,
		"light_id", res.LightID,
		"delta", res.Delta.String(),
		"outcome", res.Outcome.String(),
		"attempts", res.Attempts,
		"latency_ms", res.Latency.Milliseconds(),
	}
	switch res.Outcome {
	case OutcomeConfirmed, OutcomeSuperseded:
		d.logger.Debug("command resolved", args...)
	default:
		d.logger.Warn("command failed", append(args, "error", res.Err)...)
	}
}

func (d *Dispatcher) emit(res Result) {
	d.obsMu.RLock()
	observers := d.observers
	d.obsMu.RUnlock()

	for _, fn := range observers {
		fn(res)
	}
}

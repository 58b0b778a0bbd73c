package tradfri

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// Default reconnect policy.
const (
	defaultInitialBackoff   = time.Second
	defaultMaxBackoff       = 60 * time.Second
	defaultTimeoutThreshold = 3
)

// Logger interface for optional logging.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// closeOnce wraps a channel with sync.Once to prevent double-close panics.
type closeOnce struct {
	ch   chan struct{}
	once sync.Once
}

func newCloseOnce() *closeOnce {
	return &closeOnce{ch: make(chan struct{})}
}

func (c *closeOnce) Close() {
	c.once.Do(func() { close(c.ch) })
}

func (c *closeOnce) Done() <-chan struct{} {
	return c.ch
}

// Phase is the coarse connection state.
type Phase int

// Connection phases.
const (
	PhaseDisconnected Phase = iota
	PhaseConnecting
	PhaseConnected
	PhaseBackoff
)

// String returns the phase name.
func (p Phase) String() string {
	switch p {
	case PhaseDisconnected:
		return "disconnected"
	case PhaseConnecting:
		return "connecting"
	case PhaseConnected:
		return "connected"
	case PhaseBackoff:
		return "backoff"
	default:
		return fmt.Sprintf("Phase(%d)", int(p))
	}
}

// ConnectionState is the supervisor's published state.
type ConnectionState struct {
	Phase Phase

	// Attempt counts consecutive failed connects (Backoff, Connecting).
	Attempt int

	// Deadline is when Backoff ends.
	Deadline time.Time

	// Err is the failure that caused Backoff.
	Err error
}

// String renders the state for logs and the status bar.
func (s ConnectionState) String() string {
	if s.Phase == PhaseBackoff {
		return fmt.Sprintf("backoff(attempt=%d, retry at %s)", s.Attempt, s.Deadline.Format("15:04:05"))
	}
	return s.Phase.String()
}

// SupervisorConfig holds the reconnect policy.
type SupervisorConfig struct {
	// InitialBackoff is the delay after the first failure. Default: 1s.
	InitialBackoff time.Duration

	// MaxBackoff caps the exponential delay. Default: 60s.
	MaxBackoff time.Duration

	// TimeoutThreshold is the number of consecutive request timeouts that
	// tear the session down. Default: 3.
	TimeoutThreshold int
}

// BackoffDelay returns initial·2^(attempt-1) capped at ceiling.
// Attempts below 1 have no delay.
func BackoffDelay(initial, ceiling time.Duration, attempt int) time.Duration {
	if attempt < 1 {
		return 0
	}
	d := initial
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= ceiling {
			return ceiling
		}
	}
	return min(d, ceiling)
}

// Supervisor keeps exactly one gateway session alive.
//
// Run drives the state machine; it is the only goroutine that dials, so
// there is never more than one handshake in flight. Other goroutines
// borrow the session through Acquire and report outcomes through the
// returned Lease.
type Supervisor struct {
	dialer Dialer
	cfg    SupervisorConfig

	mu       sync.Mutex
	state    ConnectionState
	session  Session
	epoch    uint64     // Incremented for every installed session
	lost     *closeOnce // Closed when the current session is torn down
	lostErr  error      // Why the current session was torn down
	timeouts int        // Consecutive timeouts on the current session
	changed  chan struct{}
	closed   bool

	running atomic.Bool

	connectsTotal atomic.Uint64
	resetsTotal   atomic.Uint64

	cbMu          sync.RWMutex
	onStateChange func(ConnectionState)
	logger        Logger
}

// NewSupervisor creates a supervisor. Nothing is dialled until Run.
func NewSupervisor(dialer Dialer, cfg SupervisorConfig) *Supervisor {
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = defaultInitialBackoff
	}
	if cfg.MaxBackoff < cfg.InitialBackoff {
		cfg.MaxBackoff = max(defaultMaxBackoff, cfg.InitialBackoff)
	}
	if cfg.TimeoutThreshold < 1 {
		cfg.TimeoutThreshold = defaultTimeoutThreshold
	}
	return &Supervisor{
		dialer:  dialer,
		cfg:     cfg,
		changed: make(chan struct{}),
		logger:  noopLogger{},
	}
}

// SetLogger sets the logger for the supervisor.
func (s *Supervisor) SetLogger(logger Logger) {
	s.cbMu.Lock()
	s.logger = logger
	s.cbMu.Unlock()
}

// SetOnStateChange registers a callback for every transition.
// Callbacks are invoked from the Run goroutine, in transition order.
func (s *Supervisor) SetOnStateChange(fn func(ConnectionState)) {
	s.cbMu.Lock()
	s.onStateChange = fn
	s.cbMu.Unlock()
}

// State returns the current connection state.
func (s *Supervisor) State() ConnectionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Run connects and reconnects until ctx is cancelled.
//
// Returns:
//   - error: nil on shutdown, ErrAlreadyRunning if Run is already active
func (s *Supervisor) Run(ctx context.Context) error {
	if !s.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	defer s.shutdown()

	attempt := 0
	for {
		s.transition(ConnectionState{Phase: PhaseConnecting, Attempt: attempt})

		sess, err := s.dialer.Dial(ctx)
		if ctx.Err() != nil {
			if sess != nil {
				_ = sess.Close()
			}
			return nil
		}
		if err != nil {
			attempt++
			s.log().Warn("gateway connect failed", "attempt", attempt, "error", err)
			if !s.backoff(ctx, attempt, err) {
				return nil
			}
			continue
		}

		attempt = 0
		s.connectsTotal.Add(1)
		epoch, lost := s.install(sess)
		s.log().Info("gateway session established", "epoch", epoch)

		var reason error
		select {
		case <-ctx.Done():
			return nil
		case <-lost.Done():
			reason = s.lostReason()
		case <-sess.Done():
			reason = fmt.Errorf("%w: session closed by peer", ErrSessionReset)
			s.teardown(epoch, reason)
		}

		s.resetsTotal.Add(1)
		s.log().Warn("gateway session lost", "epoch", epoch, "error", reason)
		attempt = 1
		if !s.backoff(ctx, attempt, reason) {
			return nil
		}
	}
}

// backoff publishes the Backoff state and waits out its delay.
// Returns false if ctx ended first.
func (s *Supervisor) backoff(ctx context.Context, attempt int, cause error) bool {
	delay := BackoffDelay(s.cfg.InitialBackoff, s.cfg.MaxBackoff, attempt)
	s.transition(ConnectionState{
		Phase:    PhaseBackoff,
		Attempt:  attempt,
		Deadline: time.Now().Add(delay),
		Err:      cause,
	})

	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

// install makes sess the current session and publishes Connected.
func (s *Supervisor) install(sess Session) (uint64, *closeOnce) {
	s.mu.Lock()
	s.epoch++
	s.session = sess
	s.timeouts = 0
	s.lost = newCloseOnce()
	s.lostErr = nil
	epoch, lost := s.epoch, s.lost
	st := s.setStateLocked(ConnectionState{Phase: PhaseConnected})
	s.mu.Unlock()

	s.publish(st)
	return epoch, lost
}

// transition moves to st and wakes every Acquire waiter.
func (s *Supervisor) transition(st ConnectionState) {
	s.mu.Lock()
	st = s.setStateLocked(st)
	s.mu.Unlock()

	s.publish(st)
}

// setStateLocked stores st and replaces the change channel.
// Caller must hold s.mu.
func (s *Supervisor) setStateLocked(st ConnectionState) ConnectionState {
	s.state = st
	close(s.changed)
	s.changed = make(chan struct{})
	return st
}

func (s *Supervisor) publish(st ConnectionState) {
	s.cbMu.RLock()
	fn := s.onStateChange
	s.cbMu.RUnlock()

	if fn != nil {
		fn(st)
	}
}

// teardown closes the session of epoch, if it is still current.
// Run notices through the lost channel and moves to Backoff.
func (s *Supervisor) teardown(epoch uint64, cause error) {
	s.mu.Lock()
	if epoch != s.epoch || s.session == nil {
		s.mu.Unlock()
		return
	}
	sess, lost := s.session, s.lost
	s.session = nil
	s.lostErr = cause
	s.mu.Unlock()

	_ = sess.Close()
	lost.Close()
}

func (s *Supervisor) lostReason() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lostErr
}

// shutdown closes the session and publishes Disconnected. Called when Run returns.
func (s *Supervisor) shutdown() {
	s.mu.Lock()
	sess := s.session
	s.session = nil
	s.closed = true
	st := s.setStateLocked(ConnectionState{Phase: PhaseDisconnected})
	s.mu.Unlock()

	if sess != nil {
		_ = sess.Close()
	}
	s.publish(st)
	s.log().Info("gateway supervisor stopped")
}

// Acquire lends out the current session.
//
// While Connecting or in Backoff, Acquire waits for the next transition
// instead of dialling; only Run dials.
//
// Returns:
//   - *Lease: Session handle for one or more requests
//   - error: ErrNoSession (wrapping ctx.Err()) or ErrClosed
func (s *Supervisor) Acquire(ctx context.Context) (*Lease, error) {
	for {
		s.mu.Lock()
		if s.session != nil {
			lease := &Lease{sup: s, session: s.session, epoch: s.epoch}
			s.mu.Unlock()
			return lease, nil
		}
		if s.closed {
			s.mu.Unlock()
			return nil, ErrClosed
		}
		changed := s.changed
		s.mu.Unlock()

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %w", ErrNoSession, ctx.Err())
		case <-changed:
		}
	}
}

// Report records the outcome of a request sent on the session of epoch.
//
// ErrSessionReset tears the session down at once; ErrTimeout does so after
// TimeoutThreshold in a row. Any success clears the timeout count. Other
// errors, including caller cancellation, are ignored, as are reports for a
// session that has already been replaced.
func (s *Supervisor) Report(epoch uint64, err error) {
	switch {
	case err == nil:
		s.mu.Lock()
		if epoch == s.epoch {
			s.timeouts = 0
		}
		s.mu.Unlock()

	case errors.Is(err, ErrSessionReset):
		s.teardown(epoch, err)

	case errors.Is(err, ErrTimeout):
		s.mu.Lock()
		if epoch != s.epoch || s.session == nil {
			s.mu.Unlock()
			return
		}
		s.timeouts++
		n := s.timeouts
		s.mu.Unlock()

		if n >= s.cfg.TimeoutThreshold {
			s.teardown(epoch, fmt.Errorf("%w: %d consecutive timeouts", ErrTimeout, n))
		}
	}
}

// HealthCheck returns nil while a session is installed.
func (s *Supervisor) HealthCheck(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.session == nil {
		return ErrNoSession
	}
	return nil
}

// SupervisorStats holds operational counters.
type SupervisorStats struct {
	ConnectsTotal uint64
	ResetsTotal   uint64
	Epoch         uint64
}

// Stats returns operational counters.
func (s *Supervisor) Stats() SupervisorStats {
	s.mu.Lock()
	epoch := s.epoch
	s.mu.Unlock()

	return SupervisorStats{
		ConnectsTotal: s.connectsTotal.Load(),
		ResetsTotal:   s.resetsTotal.Load(),
		Epoch:         epoch,
	}
}

func (s *Supervisor) log() Logger {
	s.cbMu.RLock()
	defer s.cbMu.RUnlock()
	return s.logger
}

// Lease is a session lent out by the supervisor.
// Outcomes of Send are reported back automatically.
type Lease struct {
	sup     *Supervisor
	session Session
	epoch   uint64
}

// Send performs one request on the leased session.
func (l *Lease) Send(ctx context.Context, req Request) (Response, error) {
	resp, err := l.session.Send(ctx, req)
	l.sup.Report(l.epoch, err)
	return resp, err
}

// Epoch identifies the session the lease was taken from.
func (l *Lease) Epoch() uint64 {
	return l.epoch
}

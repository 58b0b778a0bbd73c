package tradfri

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/plgd-dev/go-coap/v3/message/codes"
)

// fakeSession is an in-memory Session driven by a handler.
type fakeSession struct {
	mu       sync.Mutex
	handler  func(ctx context.Context, req Request) (Response, error)
	requests []Request
	done     *closeOnce
	closed   atomic.Bool
}

func newFakeSession(handler func(ctx context.Context, req Request) (Response, error)) *fakeSession {
	return &fakeSession{handler: handler, done: newCloseOnce()}
}

func (f *fakeSession) Send(ctx context.Context, req Request) (Response, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	handler := f.handler
	f.mu.Unlock()

	if f.closed.Load() {
		return Response{}, ErrSessionReset
	}
	if handler == nil {
		return Response{Code: codes.Content}, nil
	}
	return handler(ctx, req)
}

func (f *fakeSession) setHandler(h func(ctx context.Context, req Request) (Response, error)) {
	f.mu.Lock()
	f.handler = h
	f.mu.Unlock()
}

func (f *fakeSession) sent() []Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Request(nil), f.requests...)
}

func (f *fakeSession) Done() <-chan struct{} { return f.done.Done() }

func (f *fakeSession) Close() error {
	f.closed.Store(true)
	f.done.Close()
	return nil
}

// fakeDialer hands out scripted results, then falls back to fresh sessions.
type fakeDialer struct {
	mu       sync.Mutex
	script   []dialResult
	sessions []*fakeSession
	gate     chan struct{} // when non-nil, Dial blocks until it is closed

	dials       atomic.Int32
	inFlight    atomic.Int32
	maxInFlight atomic.Int32
}

type dialResult struct {
	session *fakeSession
	err     error
}

func (d *fakeDialer) Dial(ctx context.Context) (Session, error) {
	d.dials.Add(1)
	n := d.inFlight.Add(1)
	defer d.inFlight.Add(-1)
	for {
		m := d.maxInFlight.Load()
		if n <= m || d.maxInFlight.CompareAndSwap(m, n) {
			break
		}
	}

	d.mu.Lock()
	gate := d.gate
	d.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	var r dialResult
	if len(d.script) > 0 {
		r, d.script = d.script[0], d.script[1:]
	} else {
		r = dialResult{session: newFakeSession(nil)}
	}
	if r.err != nil {
		return nil, r.err
	}
	d.sessions = append(d.sessions, r.session)
	return r.session, nil
}

func (d *fakeDialer) session(i int) *fakeSession {
	d.mu.Lock()
	defer d.mu.Unlock()
	if i >= len(d.sessions) {
		return nil
	}
	return d.sessions[i]
}

// stateRecorder collects published transitions.
type stateRecorder struct {
	mu     sync.Mutex
	states []ConnectionState
}

func (r *stateRecorder) record(st ConnectionState) {
	r.mu.Lock()
	r.states = append(r.states, st)
	r.mu.Unlock()
}

func (r *stateRecorder) snapshot() []ConnectionState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]ConnectionState(nil), r.states...)
}

// startSupervisor runs sup until the test ends.
func startSupervisor(t *testing.T, sup *Supervisor) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- sup.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		select {
		case err := <-done:
			if err != nil {
				t.Errorf("Run() error = %v", err)
			}
		case <-time.After(2 * time.Second):
			t.Error("Run() did not return after cancel")
		}
	})
}

func acquire(t *testing.T, sup *Supervisor) *Lease {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	lease, err := sup.Acquire(ctx)
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	return lease
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(time.Millisecond)
	}
}

func fastPolicy() SupervisorConfig {
	return SupervisorConfig{
		InitialBackoff:   time.Millisecond,
		MaxBackoff:       4 * time.Millisecond,
		TimeoutThreshold: 3,
	}
}

func codesFromUint(v uint16) codes.Code { return codes.Code(v) }

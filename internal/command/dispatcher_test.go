package command

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/frostlux/frostlux/internal/automation"
	"github.com/frostlux/frostlux/internal/bridges/tradfri"
	"github.com/frostlux/frostlux/internal/device"
)

type sentCall struct {
	lightID int
	delta   device.Delta
}

// fakeSender records writes and answers with handler. handler gets the
// zero-based index of the call.
type fakeSender struct {
	mu      sync.Mutex
	calls   []sentCall
	handler func(ctx context.Context, n int, id int) error
	started chan int
}

func (f *fakeSender) ApplyDelta(ctx context.Context, id int, delta device.Delta) error {
	f.mu.Lock()
	n := len(f.calls)
	f.calls = append(f.calls, sentCall{lightID: id, delta: delta.Clone()})
	h := f.handler
	f.mu.Unlock()

	if f.started != nil {
		f.started <- n
	}
	if h == nil {
		return nil
	}
	return h(ctx, n, id)
}

func (f *fakeSender) sent() []sentCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sentCall(nil), f.calls...)
}

const (
	lampA = 65537
	lampB = 65538
)

func newTestStore(t *testing.T) *device.Store {
	t.Helper()
	store := device.NewStore(device.StoreOptions{})
	store.MergeRefresh(lampA, device.Observed{
		ID: lampA, Name: "Vardagsrum", Reachable: true,
		Attributes: device.Attributes{On: false, Brightness: 50, ColorTemp: device.ColorTempNeutral},
	}, 0)
	store.MergeRefresh(lampB, device.Observed{
		ID: lampB, Name: "Köket", Reachable: true,
		Attributes: device.Attributes{On: true, Brightness: 80, ColorTemp: device.ColorTempCold},
	}, 0)
	return store
}

func timeoutErr(context.Context, int, int) error {
	return fmt.Errorf("%w: PUT 15001/65537", tradfri.ErrTimeout)
}

func TestDispatcher_ToggleConfirmed(t *testing.T) {
	store := newTestStore(t)
	sender := &fakeSender{}
	d := NewDispatcher(store, sender, nil, Config{})

	before, _ := store.Get(lampA)
	res, err := d.Toggle(context.Background(), lampA)
	if err != nil {
		t.Fatalf("Toggle() error = %v", err)
	}
	if res.Outcome != OutcomeConfirmed || res.Err != nil || res.Attempts != 1 {
		t.Errorf("result = %+v", res)
	}
	if res.LightName != "Vardagsrum" || res.ID == "" {
		t.Errorf("result identity = %q %q", res.LightName, res.ID)
	}

	after, _ := store.Get(lampA)
	if !after.On || after.Pending || after.Brightness != 50 {
		t.Errorf("light after toggle = %+v", after)
	}
	if after.Generation <= before.Generation {
		t.Errorf("generation %d did not advance from %d", after.Generation, before.Generation)
	}

	calls := sender.sent()
	if len(calls) != 1 || calls[0].delta.On == nil || !*calls[0].delta.On || calls[0].delta.Brightness != nil {
		t.Errorf("sent %+v, want on=true only", calls)
	}
	if len(d.Pending()) != 0 {
		t.Errorf("Pending() = %v after resolution", d.Pending())
	}
}

func TestDispatcher_RetryExhaustion(t *testing.T) {
	for _, budget := range []int{1, 3, 5} {
		t.Run(fmt.Sprintf("budget %d", budget), func(t *testing.T) {
			store := newTestStore(t)
			sender := &fakeSender{handler: timeoutErr}
			d := NewDispatcher(store, sender, nil, Config{Timeout: 50 * time.Millisecond, MaxRetries: budget})

			res, err := d.SetBrightness(context.Background(), lampA, 30)
			if err != nil {
				t.Fatalf("SetBrightness() error = %v", err)
			}

			if got := len(sender.sent()); got != budget {
				t.Errorf("sends = %d, want exactly %d", got, budget)
			}
			if res.Outcome != OutcomeUnreachable || res.Attempts != budget {
				t.Errorf("result = %v after %d attempts", res.Outcome, res.Attempts)
			}
			if !errors.Is(res.Err, ErrUnreachable) || !errors.Is(res.Err, ErrTimeout) {
				t.Errorf("result error = %v, want ErrUnreachable wrapping ErrTimeout", res.Err)
			}

			light, _ := store.Get(lampA)
			if light.Reachable || light.Pending {
				t.Errorf("light = %+v, want unreachable and not pending", light)
			}
			if light.On || light.Brightness != 50 {
				t.Errorf("light attributes = %+v, want reverted to off/50", light.Attributes)
			}
		})
	}
}

func TestDispatcher_RetryRecovers(t *testing.T) {
	store := newTestStore(t)
	sender := &fakeSender{handler: func(ctx context.Context, n, id int) error {
		if n == 0 {
			return fmt.Errorf("%w: alert", tradfri.ErrSessionReset)
		}
		return nil
	}}
	d := NewDispatcher(store, sender, nil, Config{MaxRetries: 3})

	res, _ := d.SetColorTemp(context.Background(), lampB, device.ColorTempWarm)
	if res.Outcome != OutcomeConfirmed || res.Attempts != 2 {
		t.Errorf("result = %v after %d attempts, want confirmed after 2", res.Outcome, res.Attempts)
	}
	light, _ := store.Get(lampB)
	if light.ColorTemp != device.ColorTempWarm || light.Pending || !light.Reachable {
		t.Errorf("light = %+v", light)
	}
}

func TestDispatcher_Rejected(t *testing.T) {
	store := newTestStore(t)
	sender := &fakeSender{handler: func(context.Context, int, int) error {
		return fmt.Errorf("%w: PUT 15001/65538 returned 4.00", tradfri.ErrRejected)
	}}
	d := NewDispatcher(store, sender, nil, Config{MaxRetries: 3})

	res, _ := d.SetBrightness(context.Background(), lampB, 10)
	if res.Outcome != OutcomeRejected || !errors.Is(res.Err, ErrRejected) {
		t.Errorf("result = %v (%v), want rejected", res.Outcome, res.Err)
	}
	if got := len(sender.sent()); got != 1 {
		t.Errorf("sends = %d, rejection must not be retried", got)
	}
	light, _ := store.Get(lampB)
	if light.Brightness != 80 || light.Pending || !light.Reachable {
		t.Errorf("light = %+v, want reverted and reachable", light)
	}
}

func TestDispatcher_CommandAfterRejectionSendsOnlyItsOwnDelta(t *testing.T) {
	store := newTestStore(t)
	rejected := make(chan struct{}, 1)
	sender := &fakeSender{handler: func(_ context.Context, n int, _ int) error {
		if n == 0 {
			rejected <- struct{}{}
			return fmt.Errorf("%w: PUT 15001/65537 returned 4.00", tradfri.ErrRejected)
		}
		return nil
	}}
	d := NewDispatcher(store, sender, nil, Config{})

	// Issue the next command the moment the rejected write is rolled back.
	next := make(chan Result, 1)
	store.SetOnChange(func() {
		select {
		case <-rejected:
			go func() {
				res, err := d.SetColorTemp(context.Background(), lampA, device.ColorTempWarm)
				if err != nil {
					t.Errorf("SetColorTemp() error = %v", err)
				}
				next <- res
			}()
		default:
		}
	})

	res, err := d.Toggle(context.Background(), lampA)
	if err != nil {
		t.Fatalf("Toggle() error = %v", err)
	}
	if res.Outcome != OutcomeRejected {
		t.Fatalf("toggle outcome = %v, want rejected", res.Outcome)
	}

	select {
	case res = <-next:
	case <-time.After(time.Second):
		t.Fatal("follow-up command did not finish")
	}
	if res.Outcome != OutcomeConfirmed {
		t.Errorf("follow-up outcome = %v", res.Outcome)
	}

	calls := sender.sent()
	if len(calls) != 2 {
		t.Fatalf("sent %d writes, want 2", len(calls))
	}
	if calls[1].delta.On != nil || calls[1].delta.ColorTemp == nil {
		t.Errorf("follow-up sent %s, want color_temp only", calls[1].delta)
	}
	if l, _ := store.Get(lampA); l.On || l.ColorTemp != device.ColorTempWarm || l.Pending {
		t.Errorf("light = %+v, want off and warm", l)
	}
}

func TestDispatcher_NewerCommandSupersedes(t *testing.T) {
	store := newTestStore(t)
	sender := &fakeSender{
		started: make(chan int, 4),
		handler: func(ctx context.Context, n, id int) error {
			if n == 0 {
				<-ctx.Done()
				return ctx.Err()
			}
			return nil
		},
	}
	d := NewDispatcher(store, sender, nil, Config{Timeout: 5 * time.Second})

	first := make(chan Result, 1)
	go func() {
		res, _ := d.SetColorTemp(context.Background(), lampA, device.ColorTempWarm)
		first <- res
	}()
	<-sender.started

	if p := d.Pending(); len(p) != 1 || p[0].LightID != lampA {
		t.Fatalf("Pending() = %+v, want one command for lamp A", p)
	}

	second, err := d.SetBrightness(context.Background(), lampA, 80)
	if err != nil {
		t.Fatalf("SetBrightness() error = %v", err)
	}
	<-sender.started
	old := <-first

	if old.Outcome != OutcomeSuperseded || !errors.Is(old.Err, ErrSuperseded) {
		t.Errorf("first command = %v (%v), want superseded", old.Outcome, old.Err)
	}
	if second.Outcome != OutcomeConfirmed {
		t.Errorf("second command = %v, want confirmed", second.Outcome)
	}

	// The newer write carries the older one's unresolved field.
	calls := sender.sent()
	last := calls[len(calls)-1].delta
	if last.ColorTemp == nil || *last.ColorTemp != device.ColorTempWarm || last.Brightness == nil || *last.Brightness != 80 {
		t.Errorf("coalesced delta = %v", last)
	}

	light, _ := store.Get(lampA)
	want := device.Attributes{On: true, Brightness: 80, ColorTemp: device.ColorTempWarm}
	if light.Attributes != want || light.Pending {
		t.Errorf("light = %+v, want %+v confirmed", light, want)
	}
}

func TestDispatcher_LateResponseOfSupersededCommandIgnored(t *testing.T) {
	store := newTestStore(t)
	release := make(chan struct{})
	sender := &fakeSender{
		started: make(chan int, 4),
		handler: func(ctx context.Context, n, id int) error {
			if n == 0 {
				<-release // ignores cancellation, answers late
			}
			return nil
		},
	}
	d := NewDispatcher(store, sender, nil, Config{Timeout: 5 * time.Second})

	first := make(chan Result, 1)
	go func() {
		res, _ := d.SetBrightness(context.Background(), lampA, 20)
		first <- res
	}()
	<-sender.started

	if _, err := d.SetBrightness(context.Background(), lampA, 90); err != nil {
		t.Fatalf("SetBrightness() error = %v", err)
	}
	<-sender.started
	settled, _ := store.Get(lampA)

	close(release)
	if res := <-first; res.Outcome != OutcomeSuperseded {
		t.Errorf("late command = %v, want superseded", res.Outcome)
	}

	light, _ := store.Get(lampA)
	if light.Brightness != 90 || light.Generation != settled.Generation {
		t.Errorf("late response changed the light: %+v (was %+v)", light, settled)
	}
}

func TestDispatcher_ShutdownReverts(t *testing.T) {
	store := newTestStore(t)
	sender := &fakeSender{
		started: make(chan int, 1),
		handler: func(ctx context.Context, n, id int) error {
			<-ctx.Done()
			return ctx.Err()
		},
	}
	d := NewDispatcher(store, sender, nil, Config{Timeout: 5 * time.Second})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan Result, 1)
	go func() {
		res, _ := d.Toggle(ctx, lampB)
		done <- res
	}()
	<-sender.started
	cancel()

	res := <-done
	if res.Outcome != OutcomeReverted || !errors.Is(res.Err, context.Canceled) {
		t.Errorf("result = %v (%v), want reverted", res.Outcome, res.Err)
	}
	light, _ := store.Get(lampB)
	if !light.On || light.Pending {
		t.Errorf("light = %+v, want restored to on", light)
	}
}

func TestDispatcher_BrightnessImpliesPower(t *testing.T) {
	tests := []struct {
		name   string
		run    func(*Dispatcher) (Result, error)
		wantOn bool
		wantBr *int
	}{
		{
			name:   "zero switches off",
			run:    func(d *Dispatcher) (Result, error) { return d.SetBrightness(context.Background(), lampB, 0) },
			wantOn: false,
		},
		{
			name:   "positive switches on",
			run:    func(d *Dispatcher) (Result, error) { return d.SetBrightness(context.Background(), lampA, 40) },
			wantOn: true,
			wantBr: device.Int(40),
		},
		{
			name:   "step up from off starts at zero",
			run:    func(d *Dispatcher) (Result, error) { return d.StepBrightness(context.Background(), lampA, 10) },
			wantOn: true,
			wantBr: device.Int(10),
		},
		{
			name:   "step down past zero switches off",
			run:    func(d *Dispatcher) (Result, error) { return d.StepBrightness(context.Background(), lampB, -100) },
			wantOn: false,
		},
		{
			name:   "step is clamped at 100",
			run:    func(d *Dispatcher) (Result, error) { return d.StepBrightness(context.Background(), lampB, 25) },
			wantOn: true,
			wantBr: device.Int(100),
		},
		{
			name:   "remote brightness without power",
			run:    func(d *Dispatcher) (Result, error) { return d.Apply(context.Background(), lampA, device.Delta{Brightness: device.Int(60)}) },
			wantOn: true,
			wantBr: device.Int(60),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sender := &fakeSender{}
			d := NewDispatcher(newTestStore(t), sender, nil, Config{})
			if _, err := tt.run(d); err != nil {
				t.Fatalf("error = %v", err)
			}
			got := sender.sent()[0].delta
			if got.On == nil || *got.On != tt.wantOn {
				t.Errorf("on = %v, want %v", got.On, tt.wantOn)
			}
			switch {
			case tt.wantBr == nil && got.Brightness != nil:
				t.Errorf("brightness = %d, want unset", *got.Brightness)
			case tt.wantBr != nil && (got.Brightness == nil || *got.Brightness != *tt.wantBr):
				t.Errorf("brightness = %v, want %d", got.Brightness, *tt.wantBr)
			}
		})
	}
}

func TestDispatcher_StepColorTemp(t *testing.T) {
	sender := &fakeSender{}
	store := newTestStore(t)
	d := NewDispatcher(store, sender, nil, Config{})

	_, _ = d.StepColorTemp(context.Background(), lampB, true)
	_, _ = d.StepColorTemp(context.Background(), lampB, true)
	_, _ = d.StepColorTemp(context.Background(), lampB, true)

	light, _ := store.Get(lampB)
	if light.ColorTemp != device.ColorTempWarm {
		t.Errorf("color temperature = %d, want warm preset", light.ColorTemp)
	}
}

func TestDispatcher_UnknownLight(t *testing.T) {
	store := newTestStore(t)
	sender := &fakeSender{}
	d := NewDispatcher(store, sender, nil, Config{})
	version := store.Version()

	if _, err := d.Toggle(context.Background(), 1); !errors.Is(err, device.ErrLightNotFound) {
		t.Errorf("Toggle() error = %v, want ErrLightNotFound", err)
	}
	if len(sender.sent()) != 0 || store.Version() != version {
		t.Error("unknown light caused a write")
	}
}

func fiveLightStore() *device.Store {
	store := device.NewStore(device.StoreOptions{})
	for i, name := range []string{"Sovrummet", "TV-lampan", "Vardagsrum", "Köket", "Hallen"} {
		id := 65537 + i
		store.MergeRefresh(id, device.Observed{ID: id, Name: name, Reachable: true}, 0)
	}
	return store
}

func TestDispatcher_ApplyScene_Exclusions(t *testing.T) {
	store := fiveLightStore()
	sender := &fakeSender{}
	engine := automation.NewEngine(automation.NewBuiltinRegistry(), automation.Exclusions{
		Global:  []string{"Sovrummet"},
		ByScene: map[string][]string{"movie": {"TV-lampan"}},
	}, nil)
	d := NewDispatcher(store, sender, engine, Config{})

	res, err := d.ApplyScene(context.Background(), "Film")
	if err != nil {
		t.Fatalf("ApplyScene() error = %v", err)
	}

	calls := sender.sent()
	if len(calls) != 3 {
		t.Fatalf("commands sent = %d, want 3", len(calls))
	}
	for _, c := range calls {
		if c.lightID == 65537 || c.lightID == 65538 {
			t.Errorf("excluded light %d was commanded", c.lightID)
		}
	}
	if res.Count(OutcomeConfirmed) != 3 || res.Failed() != 0 {
		t.Errorf("scene result = %s", res)
	}
	for _, l := range store.Snapshot() {
		excluded := l.Name == "Sovrummet" || l.Name == "TV-lampan"
		if excluded == l.On {
			t.Errorf("%s on = %v", l.Name, l.On)
		}
	}
}

func TestDispatcher_ApplyScene_PartialFailure(t *testing.T) {
	store := fiveLightStore()
	sender := &fakeSender{handler: func(ctx context.Context, n, id int) error {
		if id == 65539 {
			return timeoutErr(ctx, n, id)
		}
		return nil
	}}
	engine := automation.NewEngine(automation.NewBuiltinRegistry(), automation.Exclusions{}, nil)
	d := NewDispatcher(store, sender, engine, Config{Timeout: 20 * time.Millisecond, MaxRetries: 2})

	res, err := d.ApplyScene(context.Background(), "kväll")
	if err != nil {
		t.Fatalf("ApplyScene() error = %v", err)
	}
	if res.Count(OutcomeConfirmed) != 4 || res.Count(OutcomeUnreachable) != 1 {
		t.Errorf("scene result = %s", res)
	}
	if light, _ := store.Get(65539); light.Reachable || light.On {
		t.Errorf("failed light = %+v", light)
	}
}

func TestDispatcher_ApplyScene_Unknown(t *testing.T) {
	store := fiveLightStore()
	sender := &fakeSender{}
	engine := automation.NewEngine(automation.NewBuiltinRegistry(), automation.Exclusions{}, nil)
	d := NewDispatcher(store, sender, engine, Config{})
	version := store.Version()

	if _, err := d.ApplyScene(context.Background(), "disco"); !errors.Is(err, automation.ErrUnknownScene) {
		t.Errorf("ApplyScene() error = %v, want ErrUnknownScene", err)
	}
	if len(sender.sent()) != 0 || store.Version() != version {
		t.Error("unknown scene changed light state")
	}
}

func TestDispatcher_RefreshDuringCommand(t *testing.T) {
	store := newTestStore(t)
	release := make(chan struct{})
	sender := &fakeSender{
		started: make(chan int, 1),
		handler: func(context.Context, int, int) error {
			<-release
			return nil
		},
	}
	d := NewDispatcher(store, sender, nil, Config{Timeout: 5 * time.Second})

	before := store.Generations()
	done := make(chan Result, 1)
	go func() {
		res, _ := d.SetBrightness(context.Background(), lampA, 70)
		done <- res
	}()
	<-sender.started

	// A refresh fetched before the command, and one fetched during it,
	// both lose to the pending write.
	stale := device.Observed{ID: lampA, Name: "Vardagsrum", Reachable: true, Attributes: device.Attributes{Brightness: 50}}
	if store.MergeRefresh(lampA, stale, before[lampA]) {
		t.Error("refresh from before the command was accepted")
	}
	if store.MergeRefresh(lampA, stale, store.Generations()[lampA]) {
		t.Error("refresh during the command was accepted")
	}

	close(release)
	if res := <-done; res.Outcome != OutcomeConfirmed {
		t.Fatalf("command = %v", res.Outcome)
	}
	light, _ := store.Get(lampA)
	if !light.On || light.Brightness != 70 {
		t.Errorf("light = %+v, want the command's value", light)
	}

	// A refresh started after the confirm carries the higher generation.
	fresh := device.Observed{ID: lampA, Name: "Vardagsrum", Reachable: true, Attributes: device.Attributes{On: true, Brightness: 65, ColorTemp: device.ColorTempNeutral}}
	if !store.MergeRefresh(lampA, fresh, store.Generations()[lampA]) {
		t.Error("refresh after the command was rejected")
	}
	if light, _ := store.Get(lampA); light.Brightness != 65 {
		t.Errorf("light = %+v, want the refresh's value", light)
	}
}

func TestDispatcher_Subscribe(t *testing.T) {
	sender := &fakeSender{}
	d := NewDispatcher(newTestStore(t), sender, nil, Config{})

	var mu sync.Mutex
	var got []Result
	d.Subscribe(func(r Result) {
		mu.Lock()
		got = append(got, r)
		mu.Unlock()
	})

	_, _ = d.Toggle(context.Background(), lampA)
	_, _ = d.Toggle(context.Background(), lampB)

	mu.Lock()
	defer mu.Unlock()
	if len(got) != 2 || got[0].LightID != lampA || got[1].LightID != lampB {
		t.Errorf("observed %+v", got)
	}
}

func TestNewDispatcher_Defaults(t *testing.T) {
	d := NewDispatcher(device.NewStore(device.StoreOptions{}), &fakeSender{}, nil, Config{})
	if d.cfg.Timeout != DefaultTimeout || d.cfg.MaxRetries != DefaultMaxRetries {
		t.Errorf("defaults = %+v", d.cfg)
	}
}

package mirror

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/frostlux/frostlux/internal/bridges/tradfri"
	"github.com/frostlux/frostlux/internal/command"
	"github.com/frostlux/frostlux/internal/device"
	"github.com/frostlux/frostlux/internal/infrastructure/mqtt"
)

type message struct {
	topic    string
	payload  []byte
	retained bool
}

type fakeBroker struct {
	mu       sync.Mutex
	messages []message
	handlers map[string]mqtt.MessageHandler
	fail     bool
}

func newFakeBroker() *fakeBroker {
	return &fakeBroker{handlers: make(map[string]mqtt.MessageHandler)}
}

func (b *fakeBroker) Topics() mqtt.Topics { return mqtt.NewTopics("lux") }

func (b *fakeBroker) Publish(topic string, payload []byte, _ byte, retained bool) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.fail {
		return mqtt.ErrNotConnected
	}
	b.messages = append(b.messages, message{topic: topic, payload: payload, retained: retained})
	return nil
}

func (b *fakeBroker) PublishJSON(topic string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return b.Publish(topic, data, 1, true)
}

func (b *fakeBroker) Subscribe(topic string, _ byte, handler mqtt.MessageHandler) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[topic] = handler
	return nil
}

func (b *fakeBroker) sent() []message {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]message(nil), b.messages...)
}

func (b *fakeBroker) reset() {
	b.mu.Lock()
	b.messages = nil
	b.mu.Unlock()
}

func (b *fakeBroker) deliver(t *testing.T, pattern, topic, payload string) error {
	t.Helper()
	b.mu.Lock()
	h := b.handlers[pattern]
	b.mu.Unlock()
	if h == nil {
		t.Fatalf("no handler for %s", pattern)
	}
	return h(topic, []byte(payload))
}

type fakeCommander struct {
	calls chan string
}

func (c *fakeCommander) Toggle(_ context.Context, id int) (command.Result, error) {
	c.calls <- fmt.Sprintf("toggle %d", id)
	return command.Result{LightID: id, Outcome: command.OutcomeConfirmed}, nil
}

func (c *fakeCommander) Apply(_ context.Context, id int, delta device.Delta) (command.Result, error) {
	c.calls <- fmt.Sprintf("apply %d %s", id, delta)
	return command.Result{LightID: id, Outcome: command.OutcomeConfirmed}, nil
}

func (c *fakeCommander) ApplyScene(_ context.Context, name string) (command.SceneResult, error) {
	c.calls <- "scene " + name
	return command.SceneResult{}, nil
}

func (c *fakeCommander) next(t *testing.T) string {
	t.Helper()
	select {
	case call := <-c.calls:
		return call
	case <-time.After(2 * time.Second):
		t.Fatal("command not executed")
		return ""
	}
}

func testStore() *device.Store {
	store := device.NewStore(device.StoreOptions{})
	store.MergeRefresh(65537, device.Observed{
		ID: 65537, Name: "Vardagsrum", Reachable: true,
		Attributes: device.Attributes{On: true, Brightness: 80, ColorTemp: device.ColorTempWarm},
	}, 0)
	store.MergeRefresh(65538, device.Observed{ID: 65538, Name: "Köket", Reachable: true}, 0)
	return store
}

func TestPublishOnceOnlyChanges(t *testing.T) {
	store := testStore()
	broker := newFakeBroker()
	m := New(broker, store, nil, 1)

	if n := m.PublishOnce(); n != 2 {
		t.Fatalf("first pass sent %d, want 2", n)
	}

	var state LightState
	for _, msg := range broker.sent() {
		if msg.topic == "lux/light/65537/state" {
			if !msg.retained {
				t.Error("light state not retained")
			}
			if err := json.Unmarshal(msg.payload, &state); err != nil {
				t.Fatal(err)
			}
		}
	}
	if state.Name != "Vardagsrum" || !state.On || state.Brightness != 80 || state.Tone != "warm" {
		t.Errorf("state = %+v", state)
	}

	broker.reset()
	if n := m.PublishOnce(); n != 0 {
		t.Errorf("unchanged pass sent %d", n)
	}

	if _, _, err := store.ApplyOptimistic(65538, device.Delta{On: device.Bool(true)}); err != nil {
		t.Fatal(err)
	}
	m.PublishOnce()
	sent := broker.sent()
	if len(sent) != 1 || sent[0].topic != "lux/light/65538/state" {
		t.Errorf("sent = %+v", sent)
	}
}

func TestPublishOnceClearsRemovedLights(t *testing.T) {
	store := testStore()
	broker := newFakeBroker()
	m := New(broker, store, nil, 1)
	m.PublishOnce()
	broker.reset()

	store.Retain([]int{65537})
	m.PublishOnce()

	sent := broker.sent()
	if len(sent) != 1 || sent[0].topic != "lux/light/65538/state" || len(sent[0].payload) != 0 || !sent[0].retained {
		t.Errorf("sent = %+v, want one empty retained clear", sent)
	}
}

func TestPublishFailureRetried(t *testing.T) {
	broker := newFakeBroker()
	broker.fail = true
	m := New(broker, testStore(), nil, 1)

	if n := m.PublishOnce(); n != 0 {
		t.Fatalf("sent %d while broker down", n)
	}
	broker.fail = false
	if n := m.PublishOnce(); n != 2 {
		t.Errorf("retry pass sent %d, want 2", n)
	}
}

func TestResyncRepublishes(t *testing.T) {
	broker := newFakeBroker()
	m := New(broker, testStore(), nil, 1)
	m.SetConnection(tradfri.ConnectionState{Phase: tradfri.PhaseConnected})
	if n := m.PublishOnce(); n != 3 {
		t.Fatalf("first pass sent %d, want 3", n)
	}

	m.Resync()
	if n := m.PublishOnce(); n != 3 {
		t.Errorf("resync pass sent %d, want 3", n)
	}
}

func TestGatewayState(t *testing.T) {
	broker := newFakeBroker()
	m := New(broker, device.NewStore(device.StoreOptions{}), nil, 1)

	deadline := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	m.SetConnection(tradfri.ConnectionState{
		Phase: tradfri.PhaseBackoff, Attempt: 3, Deadline: deadline, Err: errors.New("handshake failed"),
	})
	m.PublishOnce()

	sent := broker.sent()
	if len(sent) != 1 || sent[0].topic != "lux/status/gateway" {
		t.Fatalf("sent = %+v", sent)
	}
	var gs GatewayState
	if err := json.Unmarshal(sent[0].payload, &gs); err != nil {
		t.Fatal(err)
	}
	want := GatewayState{State: "backoff", Attempt: 3, RetryAt: "2026-01-02T03:04:05Z", Error: "handshake failed"}
	if gs != want {
		t.Errorf("gateway = %+v, want %+v", gs, want)
	}

	broker.reset()
	if n := m.PublishOnce(); n != 0 {
		t.Errorf("gateway republished without change (%d)", n)
	}
}

func TestParseSet(t *testing.T) {
	tests := []struct {
		payload string
		toggle  bool
		want    string
		wantErr bool
	}{
		{"ON", false, "on=true", false},
		{" off ", false, "on=false", false},
		{"toggle", true, "", false},
		{`{"brightness":40}`, false, "brightness=40%", false},
		{`{"on":true,"color_temp":370}`, false, "on=true color_temp=370", false},
		{`{"brightness":101}`, false, "", true},
		{`{"color_temp":100}`, false, "", true},
		{`{}`, false, "", true},
		{`dim`, false, "", true},
	}
	for _, tt := range tests {
		t.Run(tt.payload, func(t *testing.T) {
			req, err := parseSet([]byte(tt.payload))
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidPayload) {
					t.Errorf("error = %v, want ErrInvalidPayload", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if req.toggle != tt.toggle {
				t.Errorf("toggle = %v", req.toggle)
			}
			if !tt.toggle && req.delta.String() != tt.want {
				t.Errorf("delta = %q, want %q", req.delta.String(), tt.want)
			}
		})
	}
}

func TestParseScene(t *testing.T) {
	tests := []struct {
		payload string
		want    string
		wantErr bool
	}{
		{"movie", "movie", false},
		{" alla av ", "alla av", false},
		{`{"scene":"Film"}`, "Film", false},
		{"", "", true},
		{`{"scene":""}`, "", true},
		{`{"scene":`, "", true},
	}
	for _, tt := range tests {
		got, err := parseScene([]byte(tt.payload))
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("parseScene(%q) = %q, %v", tt.payload, got, err)
		}
	}
}

func TestRunRoutesRemoteCommands(t *testing.T) {
	broker := newFakeBroker()
	cmds := &fakeCommander{calls: make(chan string, 4)}
	m := New(broker, testStore(), cmds, 1)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.Run(ctx) }()

	deadline := time.Now().Add(2 * time.Second)
	for {
		broker.mu.Lock()
		n := len(broker.handlers)
		broker.mu.Unlock()
		if n == 2 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("subscriptions not registered")
		}
		time.Sleep(5 * time.Millisecond)
	}

	if err := broker.deliver(t, "lux/light/+/set", "lux/light/65537/set", `{"brightness":30}`); err != nil {
		t.Fatal(err)
	}
	if got := cmds.next(t); got != "apply 65537 brightness=30%" {
		t.Errorf("call = %q", got)
	}

	if err := broker.deliver(t, "lux/light/+/set", "lux/light/65538/set", "TOGGLE"); err != nil {
		t.Fatal(err)
	}
	if got := cmds.next(t); got != "toggle 65538" {
		t.Errorf("call = %q", got)
	}

	if err := broker.deliver(t, "lux/scene/set", "lux/scene/set", "film"); err != nil {
		t.Fatal(err)
	}
	if got := cmds.next(t); got != "scene film" {
		t.Errorf("call = %q", got)
	}

	if err := broker.deliver(t, "lux/light/+/set", "lux/light/65537/set", "blink"); !errors.Is(err, ErrInvalidPayload) {
		t.Errorf("bad payload error = %v", err)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run() = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop")
	}
}

func TestCommandsRefusedAfterRun(t *testing.T) {
	broker := newFakeBroker()
	cmds := &fakeCommander{calls: make(chan string, 4)}
	m := New(broker, testStore(), cmds, 1)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := m.Run(ctx); err != nil {
		t.Fatal(err)
	}

	if err := broker.deliver(t, "lux/light/+/set", "lux/light/65537/set", "ON"); !errors.Is(err, ErrStopped) {
		t.Errorf("light command after Run error = %v, want ErrStopped", err)
	}
	if err := broker.deliver(t, "lux/scene/set", "lux/scene/set", "film"); !errors.Is(err, ErrStopped) {
		t.Errorf("scene command after Run error = %v, want ErrStopped", err)
	}
	select {
	case call := <-cmds.calls:
		t.Errorf("stopped mirror executed %q", call)
	default:
	}
}

func TestRunWaitsForRunningCommands(t *testing.T) {
	broker := newFakeBroker()
	cmds := &fakeCommander{calls: make(chan string)} // unbuffered: Apply blocks until read
	m := New(broker, testStore(), cmds, 1)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.Run(ctx) }()

	deadline := time.Now().Add(2 * time.Second)
	for {
		broker.mu.Lock()
		n := len(broker.handlers)
		broker.mu.Unlock()
		if n == 2 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("subscriptions not registered")
		}
		time.Sleep(5 * time.Millisecond)
	}

	if err := broker.deliver(t, "lux/light/+/set", "lux/light/65537/set", "TOGGLE"); err != nil {
		t.Fatal(err)
	}
	cancel()

	select {
	case <-done:
		t.Fatal("Run returned while a command was still running")
	case <-time.After(50 * time.Millisecond):
	}

	if got := cmds.next(t); got != "toggle 65537" {
		t.Errorf("call = %q", got)
	}
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run() = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop after the command finished")
	}
}

func TestReadOnlyMirrorDoesNotSubscribe(t *testing.T) {
	broker := newFakeBroker()
	m := New(broker, testStore(), nil, 1)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := m.Run(ctx); err != nil {
		t.Fatal(err)
	}
	if len(broker.handlers) != 0 {
		t.Errorf("read-only mirror subscribed to %d topics", len(broker.handlers))
	}
}

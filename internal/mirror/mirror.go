package mirror

import (
	"context"
	"fmt"
	"sync"

	"github.com/frostlux/frostlux/internal/bridges/tradfri"
	"github.com/frostlux/frostlux/internal/command"
	"github.com/frostlux/frostlux/internal/device"
	"github.com/frostlux/frostlux/internal/infrastructure/mqtt"
)

// Logger is the logging interface used by the mirror.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Broker is the part of the MQTT client the mirror needs.
type Broker interface {
	Topics() mqtt.Topics
	Publish(topic string, payload []byte, qos byte, retained bool) error
	PublishJSON(topic string, v any) error
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
}

// LightSource provides the lights to publish.
type LightSource interface {
	Snapshot() []device.Light
}

// Commander executes remote commands.
type Commander interface {
	Toggle(ctx context.Context, id int) (command.Result, error)
	Apply(ctx context.Context, id int, delta device.Delta) (command.Result, error)
	ApplyScene(ctx context.Context, name string) (command.SceneResult, error)
}

// Mirror publishes store changes and, when it has a Commander, accepts
// remote commands.
type Mirror struct {
	broker   Broker
	lights   LightSource
	commands Commander
	topics   mqtt.Topics
	qos      byte
	logger   Logger

	kick chan struct{}

	mu        sync.Mutex
	published map[int]LightState
	gateway   *GatewayState
	gwDirty   bool
	runCtx    context.Context
	stopping  bool           // Set once Run returns; no new commands start
	inflight  sync.WaitGroup // Add only under mu while !stopping
}

// New creates a mirror. commands may be nil for a read-only mirror.
func New(broker Broker, lights LightSource, commands Commander, qos byte) *Mirror {
	return &Mirror{
		broker:    broker,
		lights:    lights,
		commands:  commands,
		topics:    broker.Topics(),
		qos:       qos,
		logger:    noopLogger{},
		kick:      make(chan struct{}, 1),
		published: make(map[int]LightState),
	}
}

// SetLogger sets the logger.
func (m *Mirror) SetLogger(logger Logger) {
	if logger != nil {
		m.logger = logger
	}
}

// Notify schedules a publish pass. It never blocks, so it is safe as a
// store change callback.
func (m *Mirror) Notify() {
	select {
	case m.kick <- struct{}{}:
	default:
	}
}

// Resync forgets what was published so the next pass republishes every
// light. Use it after a broker reconnect.
func (m *Mirror) Resync() {
	m.mu.Lock()
	clear(m.published)
	m.gwDirty = m.gateway != nil
	m.mu.Unlock()
	m.Notify()
}

// SetConnection records the gateway connection state for publishing.
func (m *Mirror) SetConnection(st tradfri.ConnectionState) {
	gs := gatewayState(st)
	m.mu.Lock()
	m.gateway = &gs
	m.gwDirty = true
	m.mu.Unlock()
	m.Notify()
}

// Run subscribes to the command topics (when enabled) and publishes
// changes until ctx is cancelled. It waits for in-flight remote commands
// before returning.
func (m *Mirror) Run(ctx context.Context) error {
	m.mu.Lock()
	m.runCtx = ctx
	m.mu.Unlock()
	defer m.drain()

	if m.commands != nil {
		if err := m.broker.Subscribe(m.topics.AllLightSets(), m.qos, m.handleLightSet); err != nil {
			return fmt.Errorf("subscribing to light commands: %w", err)
		}
		if err := m.broker.Subscribe(m.topics.SceneSet(), m.qos, m.handleSceneSet); err != nil {
			return fmt.Errorf("subscribing to scene commands: %w", err)
		}
		m.logger.Info("mqtt remote commands enabled", "lights", m.topics.AllLightSets(), "scenes", m.topics.SceneSet())
	}

	m.PublishOnce()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-m.kick:
			m.PublishOnce()
		}
	}
}

// PublishOnce publishes every light whose state changed since the last
// successful publish, clears lights that are gone, and publishes a
// pending gateway state. It returns the number of messages sent.
func (m *Mirror) PublishOnce() int {
	sent := 0
	seen := make(map[int]struct{})

	for _, l := range m.lights.Snapshot() {
		seen[l.ID] = struct{}{}
		state := lightState(l)

		m.mu.Lock()
		last, ok := m.published[l.ID]
		m.mu.Unlock()
		if ok && last == state {
			continue
		}

		if err := m.broker.PublishJSON(m.topics.LightState(l.ID), state); err != nil {
			// Left unrecorded so the next pass retries.
			m.logger.Warn("mqtt light publish failed", "light_id", l.ID, "error", err)
			continue
		}
		m.mu.Lock()
		m.published[l.ID] = state
		m.mu.Unlock()
		sent++
	}

	m.mu.Lock()
	var gone []int
	for id := range m.published {
		if _, ok := seen[id]; !ok {
			gone = append(gone, id)
		}
	}
	m.mu.Unlock()

	for _, id := range gone {
		// An empty retained message removes the broker's copy.
		if err := m.broker.Publish(m.topics.LightState(id), nil, m.qos, true); err != nil {
			m.logger.Warn("mqtt light clear failed", "light_id", id, "error", err)
			continue
		}
		m.mu.Lock()
		delete(m.published, id)
		m.mu.Unlock()
		sent++
	}

	m.mu.Lock()
	var gs GatewayState
	dirty := m.gwDirty && m.gateway != nil
	if dirty {
		gs = *m.gateway
	}
	m.mu.Unlock()

	if dirty {
		if err := m.broker.PublishJSON(m.topics.Gateway(), gs); err != nil {
			m.logger.Warn("mqtt gateway publish failed", "error", err)
		} else {
			m.mu.Lock()
			if m.gateway != nil && *m.gateway == gs {
				m.gwDirty = false
			}
			m.mu.Unlock()
			sent++
		}
	}
	return sent
}

// drain refuses new commands and waits for the running ones.
func (m *Mirror) drain() {
	m.mu.Lock()
	m.stopping = true
	m.mu.Unlock()
	m.inflight.Wait()
}

// startCommand registers one remote command with inflight and returns the
// context it runs under. Callers must call inflight.Done when it ends.
func (m *Mirror) startCommand() (context.Context, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ctx := m.runCtx
	if ctx == nil {
		ctx = context.Background()
	}
	if m.stopping || ctx.Err() != nil {
		return nil, ErrStopped
	}
	m.inflight.Add(1)
	return ctx, nil
}

// handleLightSet validates synchronously and executes in the background
// so a slow gateway never stalls the MQTT router.
func (m *Mirror) handleLightSet(topic string, payload []byte) error {
	id, ok := m.topics.LightIDFromTopic(topic)
	if !ok {
		return fmt.Errorf("%w: topic %q", ErrInvalidPayload, topic)
	}
	req, err := parseSet(payload)
	if err != nil {
		return fmt.Errorf("light %d: %w", id, err)
	}

	ctx, err := m.startCommand()
	if err != nil {
		return fmt.Errorf("light %d: %w", id, err)
	}
	go func() {
		defer m.inflight.Done()

		var res command.Result
		var err error
		if req.toggle {
			res, err = m.commands.Toggle(ctx, id)
		} else {
			res, err = m.commands.Apply(ctx, id, req.delta)
		}
		if err != nil {
			m.logger.Warn("remote light command failed", "light_id", id, "error", err)
			return
		}
		m.logger.Info("remote light command", "light_id", id, "outcome", res.Outcome.String())
	}()
	return nil
}

func (m *Mirror) handleSceneSet(_ string, payload []byte) error {
	name, err := parseScene(payload)
	if err != nil {
		return err
	}

	ctx, err := m.startCommand()
	if err != nil {
		return fmt.Errorf("scene %q: %w", name, err)
	}
	go func() {
		defer m.inflight.Done()

		res, err := m.commands.ApplyScene(ctx, name)
		if err != nil {
			m.logger.Warn("remote scene failed", "scene", name, "error", err)
			return
		}
		m.logger.Info("remote scene applied", "scene", name, "result", res.String())
	}()
	return nil
}

package main

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/frostlux/frostlux/internal/audit"
	"github.com/frostlux/frostlux/internal/automation"
	"github.com/frostlux/frostlux/internal/bridges/tradfri"
	"github.com/frostlux/frostlux/internal/command"
	"github.com/frostlux/frostlux/internal/device"
	"github.com/frostlux/frostlux/internal/infrastructure/config"
	"github.com/frostlux/frostlux/internal/infrastructure/database"
	"github.com/frostlux/frostlux/internal/infrastructure/influxdb"
	"github.com/frostlux/frostlux/internal/infrastructure/logging"
	"github.com/frostlux/frostlux/internal/infrastructure/mqtt"
	"github.com/frostlux/frostlux/internal/mirror"
	"github.com/frostlux/frostlux/internal/refresh"
	"github.com/frostlux/frostlux/internal/telemetry"
	"github.com/frostlux/frostlux/migrations"
)

// app holds every long-lived component of one FrostLux run.
type app struct {
	cfg *config.Config
	log *logging.Logger

	store      *device.Store
	supervisor *tradfri.Supervisor
	gateway    *tradfri.Client
	registry   *automation.Registry
	dispatcher *command.Dispatcher
	refresher  *refresh.Refresher

	// Optional integrations; nil when disabled or unavailable.
	mqtt     *mqtt.Client
	mirror   *mirror.Mirror
	influx   *influxdb.Client
	recorder *telemetry.Recorder
	db       *database.DB
	journal  *audit.Journal

	closers []func()
}

// newApp assembles the core pipeline and connects the optional
// integrations. A failing integration is logged and skipped; the light
// controls never depend on it.
func newApp(cfg *config.Config, log *logging.Logger, dialer tradfri.Dialer) (*app, error) {
	registry, exclusions, err := automation.FromConfig(cfg.Scenes)
	if err != nil {
		return nil, fmt.Errorf("loading scenes: %w", err)
	}
	registry.SetLogger(log)

	a := &app{cfg: cfg, log: log, registry: registry}

	a.store = device.NewStore(device.StoreOptions{Margin: cfg.Refresh.Margin})
	a.store.SetLogger(log)

	a.supervisor = tradfri.NewSupervisor(dialer, tradfri.SupervisorConfig{
		InitialBackoff:   cfg.Connection.InitialBackoff,
		MaxBackoff:       cfg.Connection.MaxBackoff,
		TimeoutThreshold: cfg.Connection.TimeoutThreshold,
	})
	a.supervisor.SetLogger(log)

	a.gateway = tradfri.NewClient(a.supervisor, cfg.Gateway.RequestTimeout)
	a.gateway.SetLogger(log)

	a.dispatcher = command.NewDispatcher(a.store, a.gateway, automation.NewEngine(registry, exclusions, log), command.Config{
		Timeout:    cfg.Commands.Timeout,
		MaxRetries: cfg.Commands.MaxRetries,
	})
	a.dispatcher.SetLogger(log)

	a.refresher = refresh.New(a.store, a.gateway, refresh.Config{
		Interval:   cfg.RefreshInterval(),
		StaleAfter: cfg.Refresh.StaleAfter,
	})
	a.refresher.SetLogger(log)

	a.connectInfluxDB()
	a.openJournal()
	a.connectMQTT()

	a.supervisor.SetOnStateChange(a.onConnectionChange)
	return a, nil
}

func (a *app) onConnectionChange(st tradfri.ConnectionState) {
	a.log.Debug("gateway connection", "state", st.String())
	if a.recorder != nil {
		a.recorder.RecordConnection(st)
	}
	if a.mirror != nil {
		a.mirror.SetConnection(st)
	}
	if st.Phase == tradfri.PhaseConnected {
		// Catch up on whatever changed while we were away.
		a.refresher.Trigger()
	}
}

func (a *app) connectInfluxDB() {
	if !a.cfg.InfluxDB.Enabled {
		return
	}
	client, err := influxdb.Connect(a.cfg.InfluxDB)
	if err != nil {
		a.log.Warn("influxdb unavailable, telemetry disabled", "url", a.cfg.InfluxDB.URL, "error", err)
		return
	}
	client.SetOnError(func(err error) {
		a.log.Warn("influxdb write error", "error", err)
	})

	a.influx = client
	a.recorder = telemetry.NewRecorder(client)
	a.dispatcher.Subscribe(a.recorder.RecordCommand)
	a.closers = append(a.closers, func() {
		if err := client.Close(); err != nil {
			a.log.Error("error closing influxdb", "error", err)
		}
	})
	a.log.Info("influxdb connected", "url", a.cfg.InfluxDB.URL, "bucket", a.cfg.InfluxDB.Bucket)
}

func (a *app) openJournal() {
	if !a.cfg.Journal.Enabled {
		return
	}
	db, err := openJournalDB(context.Background(), a.cfg)
	if err != nil {
		a.log.Warn("command journal unavailable", "error", err)
		return
	}

	a.db = db
	a.journal = audit.NewJournal(audit.NewSQLiteRepository(db.DB))
	a.journal.SetLogger(a.log)
	a.dispatcher.Subscribe(a.journal.Record)
	a.closers = append(a.closers, func() {
		a.journal.Close() //nolint:errcheck // always nil; flushes queued entries
		if err := db.Close(); err != nil {
			a.log.Error("error closing journal", "error", err)
		}
	})
}

// openJournalDB opens and migrates the journal database.
func openJournalDB(ctx context.Context, cfg *config.Config) (*database.DB, error) {
	path, err := cfg.JournalPath()
	if err != nil {
		return nil, err
	}
	db, err := database.Open(database.Config{Path: path, WALMode: true, BusyTimeout: journalBusyTimeout})
	if err != nil {
		return nil, err
	}
	if err := db.Migrate(ctx, migrations.FS, "."); err != nil {
		db.Close() //nolint:errcheck // already failing
		return nil, fmt.Errorf("migrating journal: %w", err)
	}
	return db, nil
}

func (a *app) connectMQTT() {
	if !a.cfg.MQTT.Enabled {
		return
	}
	client, err := mqtt.Connect(a.cfg.MQTT)
	if err != nil {
		a.log.Warn("mqtt broker unavailable, mirror disabled",
			"broker", fmt.Sprintf("%s:%d", a.cfg.MQTT.Broker.Host, a.cfg.MQTT.Broker.Port), "error", err)
		return
	}
	client.SetLogger(a.log)

	var commands mirror.Commander
	if a.cfg.MQTT.Commands {
		commands = a.dispatcher
	}
	a.mqtt = client
	a.mirror = mirror.New(client, a.store, commands, byte(a.cfg.MQTT.QoS)) //nolint:gosec // validated to 0..2
	a.mirror.SetLogger(a.log)

	a.store.SetOnChange(a.mirror.Notify)
	client.SetOnConnect(a.mirror.Resync)
	client.SetOnDisconnect(func(err error) {
		a.log.Warn("mqtt disconnected", "error", err)
	})
	a.closers = append(a.closers, func() {
		if err := client.Close(); err != nil {
			a.log.Error("error closing mqtt", "error", err)
		}
	})
	a.log.Info("mqtt connected", "broker", a.cfg.MQTT.Broker.Host, "prefix", client.Topics().Prefix)
}

// start launches the background loops on g. The refresher is optional so
// headless runs can refresh on demand instead.
func (a *app) start(ctx context.Context, g *errgroup.Group, withRefresher bool) {
	g.Go(func() error {
		if err := a.supervisor.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("gateway supervisor: %w", err)
		}
		return nil
	})
	if withRefresher {
		g.Go(func() error { return a.refresher.Run(ctx) })
	}
	if a.mirror != nil {
		g.Go(func() error {
			if err := a.mirror.Run(ctx); err != nil {
				// The mirror is a side channel; never take the UI down with it.
				a.log.Warn("mqtt mirror stopped", "error", err)
			}
			return nil
		})
	}
}

// Close releases integrations in reverse order of connection.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

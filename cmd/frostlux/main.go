// Package main is the entry point for FrostLux, a terminal client for an
// IKEA Trådfri gateway.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"github.com/frostlux/frostlux/internal/audit"
	"github.com/frostlux/frostlux/internal/automation"
	"github.com/frostlux/frostlux/internal/bridges/tradfri"
	"github.com/frostlux/frostlux/internal/command"
	"github.com/frostlux/frostlux/internal/infrastructure/config"
	"github.com/frostlux/frostlux/internal/infrastructure/logging"
	"github.com/frostlux/frostlux/internal/tui"
)

// Version information, set at build time via ldflags.
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// Exit codes.
const (
	exitOK      = 0
	exitFailure = 1
	exitUsage   = 2
)

const (
	journalBusyTimeout = 5 // seconds

	// shutdownTimeout bounds the wait for background loops after the UI exits.
	shutdownTimeout = 5 * time.Second
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	code := newCLI(os.Stdout, os.Stderr).run(ctx, os.Args[1:])
	stop()
	os.Exit(code)
}

// cli carries the process streams and the gateway dialer so tests can
// drive whole runs without a terminal or a gateway.
type cli struct {
	stdout io.Writer
	stderr io.Writer
	dialer func(*config.Config) tradfri.Dialer
}

func newCLI(stdout, stderr io.Writer) *cli {
	return &cli{stdout: stdout, stderr: stderr, dialer: dtlsDialer}
}

func dtlsDialer(cfg *config.Config) tradfri.Dialer {
	return tradfri.NewDTLSDialer(tradfri.DTLSConfig{
		Address:        cfg.GatewayAddress(),
		Identity:       cfg.Gateway.Identity,
		PSK:            cfg.Gateway.PSK,
		ConnectTimeout: cfg.Gateway.ConnectTimeout,
	})
}

type options struct {
	configPath string
	scene      string
	listScenes bool
	history    int
	version    bool
}

func (c *cli) parseFlags(args []string) (options, error) {
	var opts options
	fs := pflag.NewFlagSet("frostlux", pflag.ContinueOnError)
	fs.SetOutput(c.stderr)
	fs.StringVar(&opts.configPath, "config", "", "path to the configuration file (default: user config dir, or $FROSTLUX_CONFIG)")
	fs.StringVarP(&opts.scene, "scene", "s", "", "apply a scene and exit")
	fs.BoolVar(&opts.listScenes, "list-scenes", false, "list available scenes and exit")
	fs.IntVar(&opts.history, "history", 0, "print the last `N` journalled commands and exit")
	fs.BoolVar(&opts.version, "version", false, "print version information and exit")
	fs.Usage = func() {
		fmt.Fprintf(c.stderr, "Usage: frostlux [flags]\n\nWithout flags, FrostLux starts the interactive terminal UI.\n\nFlags:\n%s", fs.FlagUsages())
	}

	if err := fs.Parse(args); err != nil {
		return opts, err
	}
	if fs.NArg() > 0 {
		return opts, fmt.Errorf("unexpected argument %q", fs.Arg(0))
	}
	if opts.history < 0 {
		return opts, fmt.Errorf("--history must be positive, got %d", opts.history)
	}
	return opts, nil
}

// run executes one invocation and returns the process exit code.
func (c *cli) run(ctx context.Context, args []string) int {
	opts, err := c.parseFlags(args)
	if errors.Is(err, pflag.ErrHelp) {
		return exitOK
	}
	if err != nil {
		fmt.Fprintf(c.stderr, "frostlux: %v\n", err)
		return exitUsage
	}

	if opts.version {
		fmt.Fprintf(c.stdout, "frostlux %s (commit %s, built %s)\n", version, commit, date)
		return exitOK
	}

	cfg, err := c.loadConfig(opts.configPath)
	if err != nil {
		fmt.Fprintf(c.stderr, "frostlux: %v\n", err)
		return exitFailure
	}

	switch {
	case opts.listScenes:
		err = c.listScenes(cfg)
	case opts.history > 0:
		err = c.printHistory(ctx, cfg, opts.history)
	case opts.scene != "":
		return c.runScene(ctx, cfg, opts.scene)
	default:
		err = c.runInteractive(ctx, cfg)
	}
	if err != nil {
		fmt.Fprintf(c.stderr, "frostlux: %v\n", err)
		return exitFailure
	}
	return exitOK
}

// loadConfig resolves the config path, writes a default file on first run
// and loads it.
func (c *cli) loadConfig(path string) (*config.Config, error) {
	if path == "" {
		var err error
		if path, err = config.DefaultPath(); err != nil {
			return nil, err
		}
	}

	created, err := config.EnsureDefault(path)
	if err != nil {
		return nil, err
	}
	if created {
		fmt.Fprintf(c.stderr, "Wrote a default configuration to %s\nAdd the gateway identity and PSK, then run frostlux again.\n", path)
	}

	cfg, err := config.Load(path)
	if err != nil {
		if errors.Is(err, config.ErrMissingCredential) {
			return nil, fmt.Errorf("%w (edit %s or set FROSTLUX_GATEWAY_IDENTITY and FROSTLUX_GATEWAY_PSK)", err, path)
		}
		return nil, err
	}
	return cfg, nil
}

// logger opens the logger for a run. The interactive UI owns the terminal,
// so it always logs to a file.
func (c *cli) logger(cfg config.LoggingConfig, interactive bool) (*logging.Logger, io.Closer, error) {
	if interactive {
		cfg.Output = "file"
	}
	switch strings.ToLower(cfg.Output) {
	case "stdout":
		return logging.NewWithWriter(cfg, version, c.stdout), nopCloser{}, nil
	case "stderr":
		return logging.NewWithWriter(cfg, version, c.stderr), nopCloser{}, nil
	default:
		return logging.Open(cfg, version)
	}
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

func (c *cli) listScenes(cfg *config.Config) error {
	registry, _, err := automation.FromConfig(cfg.Scenes)
	if err != nil {
		return err
	}

	t := table.New().
		Border(lipgloss.HiddenBorder()).
		Headers("KEY", "SCENE", "NAME", "ALIASES")
	for _, s := range registry.List() {
		hotkey := s.Hotkey
		if hotkey == "" {
			hotkey = "-"
		}
		t.Row(hotkey, s.Key, s.Name, strings.Join(s.Aliases, ", "))
	}
	fmt.Fprintln(c.stdout, t.Render())
	return nil
}

func (c *cli) printHistory(ctx context.Context, cfg *config.Config, n int) error {
	db, err := openJournalDB(ctx, cfg)
	if err != nil {
		return fmt.Errorf("opening journal: %w", err)
	}
	defer db.Close() //nolint:errcheck // read-only use

	entries, err := audit.NewSQLiteRepository(db.DB).Latest(ctx, n)
	if err != nil {
		return fmt.Errorf("reading journal: %w", err)
	}
	fmt.Fprint(c.stdout, audit.RenderHistory(entries))
	return nil
}

// runScene applies one scene without the UI. Partial application still
// succeeds; an unknown scene, no session, or no light taking the scene
// fails.
func (c *cli) runScene(ctx context.Context, cfg *config.Config, name string) int {
	log, closer, err := c.logger(cfg.Logging, false)
	if err != nil {
		fmt.Fprintf(c.stderr, "frostlux: %v\n", err)
		return exitFailure
	}
	defer closer.Close() //nolint:errcheck // log file

	a, err := newApp(cfg, log, c.dialer(cfg))
	if err != nil {
		fmt.Fprintf(c.stderr, "frostlux: %v\n", err)
		return exitFailure
	}
	defer a.Close()

	scene, err := a.registry.Resolve(name)
	if err != nil {
		fmt.Fprintf(c.stderr, "frostlux: %v (try --list-scenes)\n", err)
		return exitFailure
	}

	ctx, cancel := context.WithCancel(ctx)
	g, gctx := errgroup.WithContext(ctx)
	a.start(gctx, g, false)
	defer func() {
		cancel()
		_ = g.Wait()
	}()

	wait, cancelWait := context.WithTimeout(gctx, connectWait(cfg))
	_, err = a.supervisor.Acquire(wait)
	cancelWait()
	if err != nil {
		fmt.Fprintf(c.stderr, "frostlux: gateway %s unreachable: %v\n", cfg.GatewayAddress(), a.supervisor.State())
		log.Error("no gateway session", "error", err)
		return exitFailure
	}

	if err := a.refresher.RefreshOnce(gctx); err != nil {
		fmt.Fprintf(c.stderr, "frostlux: reading lights: %v\n", err)
		return exitFailure
	}

	res, err := a.dispatcher.ApplyScene(gctx, scene.Key)
	if err != nil {
		fmt.Fprintf(c.stderr, "frostlux: %v\n", err)
		return exitFailure
	}

	fmt.Fprintln(c.stdout, res.String())
	for _, r := range res.Results {
		if r.Outcome.Failed() {
			fmt.Fprintf(c.stdout, "  %s\n", r)
		}
	}

	if len(res.Results) > 0 && res.Count(command.OutcomeConfirmed) == 0 {
		return exitFailure
	}
	return exitOK
}

// connectWait is how long a headless run waits for the first session:
// two handshake attempts plus the first backoff.
func connectWait(cfg *config.Config) time.Duration {
	return 2*cfg.Gateway.ConnectTimeout + cfg.Connection.InitialBackoff
}

func (c *cli) runInteractive(ctx context.Context, cfg *config.Config) error {
	log, closer, err := c.logger(cfg.Logging, true)
	if err != nil {
		return err
	}
	defer closer.Close() //nolint:errcheck // log file

	log.Info("frostlux starting", "version", version, "commit", commit, "gateway", cfg.GatewayAddress())

	a, err := newApp(cfg, log, c.dialer(cfg))
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)
	a.start(gctx, g, true)

	model := tui.NewModel(tui.Options{
		Context:    gctx,
		Lights:     a.store,
		Commands:   a.dispatcher,
		Scenes:     a.registry,
		Refresh:    a.refresher.Trigger,
		Connection: a.supervisor.State,
		Theme:      tui.ResolveTheme(cfg.UI.Theme),
	})
	program := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(gctx))

	_, uiErr := program.Run()
	cancel()

	done := make(chan error, 1)
	go func() { done <- g.Wait() }()
	var loopErr error
	select {
	case loopErr = <-done:
	case <-time.After(shutdownTimeout):
		log.Warn("background loops did not stop in time")
	}

	log.Info("frostlux stopped")
	if uiErr != nil && !errors.Is(uiErr, tea.ErrProgramKilled) && !errors.Is(uiErr, context.Canceled) {
		return fmt.Errorf("terminal UI: %w", uiErr)
	}
	return loopErr
}

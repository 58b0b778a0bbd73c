package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/frostlux/frostlux/internal/automation"
	"github.com/frostlux/frostlux/internal/bridges/tradfri"
	"github.com/frostlux/frostlux/internal/command"
	"github.com/frostlux/frostlux/internal/device"
)

const (
	// statusFadeDelay is how long a status message stays visible.
	statusFadeDelay = 3 * time.Second

	// defaultTickInterval is how often the view polls the store.
	defaultTickInterval = 100 * time.Millisecond

	// chromeLines is the number of lines around the light list.
	chromeLines = 7

	barWidth = 10
)

// Controller runs light commands. *command.Dispatcher implements it.
type Controller interface {
	Toggle(ctx context.Context, id int) (command.Result, error)
	StepBrightness(ctx context.Context, id int, step int) (command.Result, error)
	StepColorTemp(ctx context.Context, id int, warmer bool) (command.Result, error)
	ApplyScene(ctx context.Context, name string) (command.SceneResult, error)
}

// LightSource is the read side of the light store.
type LightSource interface {
	Snapshot() []device.Light
	Version() uint64
	Stale() bool
}

// SceneSource lists scenes and maps hot-keys. *automation.Registry
// implements it.
type SceneSource interface {
	ByHotkey(k string) (automation.SceneDefinition, bool)
	List() []automation.SceneDefinition
}

// Options wires the model to the rest of the client.
type Options struct {
	// Context is passed to every command; cancel it on shutdown.
	Context context.Context

	Lights   LightSource
	Commands Controller
	Scenes   SceneSource

	// Refresh triggers an immediate background refresh. Optional.
	Refresh func()

	// Connection reports the supervisor state. Optional.
	Connection func() tradfri.ConnectionState

	Theme        Theme
	TickInterval time.Duration
}

// tickMsg drives the store poll.
type tickMsg time.Time

// commandDoneMsg reports a resolved light command.
type commandDoneMsg struct {
	result command.Result
	err    error
}

// sceneDoneMsg reports a finished scene application.
type sceneDoneMsg struct {
	name   string
	result command.SceneResult
	err    error
}

// statusFadeMsg clears the status line if no newer message replaced it.
type statusFadeMsg struct {
	seq int
}

// Model is the bubbletea model of the light list.
type Model struct {
	opts   Options
	keys   KeyMap
	styles styles

	help    help.Model
	spinner spinner.Model

	lights     []device.Light
	version    uint64
	stale      bool
	conn       tradfri.ConnectionState
	cursor     int
	selectedID int

	status    string
	statusErr bool
	statusSeq int
	showHelp  bool

	width  int
	height int
}

// NewModel creates the model and takes a first snapshot.
func NewModel(opts Options) Model {
	if opts.Context == nil {
		opts.Context = context.Background()
	}
	if opts.TickInterval <= 0 {
		opts.TickInterval = defaultTickInterval
	}
	if opts.Theme.Name == "" {
		opts.Theme = DarkTheme
	}

	sp := spinner.New(spinner.WithSpinner(spinner.MiniDot))
	sp.Style = lipgloss.NewStyle().Foreground(opts.Theme.Pending)

	h := help.New()
	h.Styles.ShortKey = lipgloss.NewStyle().Foreground(opts.Theme.HeaderForeground)
	h.Styles.ShortDesc = lipgloss.NewStyle().Foreground(opts.Theme.FaintText)
	h.Styles.FullKey = h.Styles.ShortKey
	h.Styles.FullDesc = h.Styles.ShortDesc

	m := Model{
		opts:    opts,
		keys:    DefaultKeyMap,
		styles:  newStyles(opts.Theme),
		help:    h,
		spinner: sp,
		height:  24,
		width:   80,
	}
	m.reload()
	return m
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return tea.Batch(m.tick(), m.spinner.Tick)
}

func (m Model) tick() tea.Cmd {
	return tea.Tick(m.opts.TickInterval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// reload takes a new snapshot and keeps the cursor on the same light.
func (m *Model) reload() {
	if m.opts.Connection != nil {
		m.conn = m.opts.Connection()
	}
	if m.opts.Lights == nil {
		return
	}
	v := m.opts.Lights.Version()
	if v == m.version && m.lights != nil {
		return
	}
	m.version = v
	m.lights = m.opts.Lights.Snapshot()
	m.stale = m.opts.Lights.Stale()

	for i, l := range m.lights {
		if l.ID == m.selectedID {
			m.cursor = i
			return
		}
	}
	m.cursor = min(m.cursor, max(len(m.lights)-1, 0))
	if len(m.lights) > 0 {
		m.selectedID = m.lights[m.cursor].ID
	}
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.help.Width = msg.Width
		return m, nil

	case tickMsg:
		m.reload()
		return m, m.tick()

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case commandDoneMsg:
		m.reload()
		if msg.err != nil {
			return m.setStatus(msg.err.Error(), true)
		}
		return m.setStatus(msg.result.String(), msg.result.Outcome.Failed())

	case sceneDoneMsg:
		m.reload()
		if msg.err != nil {
			if errors.Is(msg.err, automation.ErrUnknownScene) {
				return m.setStatus(fmt.Sprintf("unknown scene %q", msg.name), true)
			}
			return m.setStatus(msg.err.Error(), true)
		}
		return m.setStatus(msg.result.String(), msg.result.Failed() > 0)

	case statusFadeMsg:
		if msg.seq == m.statusSeq {
			m.status = ""
			m.statusErr = false
		}
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)
	}
	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.Help):
		m.showHelp = !m.showHelp
		m.help.ShowAll = m.showHelp
		return m, nil
	case key.Matches(msg, m.keys.Up):
		m.moveCursor(-1)
		return m, nil
	case key.Matches(msg, m.keys.Down):
		m.moveCursor(1)
		return m, nil
	case key.Matches(msg, m.keys.Refresh):
		if m.opts.Refresh != nil {
			m.opts.Refresh()
		}
		return m.setStatus("refreshing…", false)
	}

	if id, ok := m.selected(); ok {
		switch {
		case key.Matches(msg, m.keys.Toggle):
			return m, m.run(func(ctx context.Context) (command.Result, error) {
				return m.opts.Commands.Toggle(ctx, id)
			})
		case key.Matches(msg, m.keys.BrighterStep):
			return m, m.step(id, brightnessStep)
		case key.Matches(msg, m.keys.DimmerStep):
			return m, m.step(id, -brightnessStep)
		case key.Matches(msg, m.keys.BrighterJump):
			return m, m.step(id, brightnessJump)
		case key.Matches(msg, m.keys.DimmerJump):
			return m, m.step(id, -brightnessJump)
		case key.Matches(msg, m.keys.Warmer):
			return m, m.run(func(ctx context.Context) (command.Result, error) {
				return m.opts.Commands.StepColorTemp(ctx, id, true)
			})
		case key.Matches(msg, m.keys.Colder):
			return m, m.run(func(ctx context.Context) (command.Result, error) {
				return m.opts.Commands.StepColorTemp(ctx, id, false)
			})
		}
	}

	if msg.Type == tea.KeyRunes && len(msg.Runes) == 1 && m.opts.Scenes != nil {
		if scene, ok := m.opts.Scenes.ByHotkey(string(msg.Runes)); ok {
			// No fade: the scene's result replaces this message.
			m.statusSeq++
			m.status, m.statusErr = "applying "+scene.Name+"…", false
			return m, m.applyScene(scene.Key)
		}
	}
	return m, nil
}

func (m *Model) moveCursor(delta int) {
	if len(m.lights) == 0 {
		return
	}
	m.cursor = min(max(m.cursor+delta, 0), len(m.lights)-1)
	m.selectedID = m.lights[m.cursor].ID
}

func (m Model) selected() (int, bool) {
	if m.opts.Commands == nil || len(m.lights) == 0 {
		return 0, false
	}
	return m.lights[m.cursor].ID, true
}

func (m Model) step(id, pct int) tea.Cmd {
	return m.run(func(ctx context.Context) (command.Result, error) {
		return m.opts.Commands.StepBrightness(ctx, id, pct)
	})
}

func (m Model) run(fn func(context.Context) (command.Result, error)) tea.Cmd {
	ctx := m.opts.Context
	return func() tea.Msg {
		res, err := fn(ctx)
		return commandDoneMsg{result: res, err: err}
	}
}

func (m Model) applyScene(name string) tea.Cmd {
	ctx, commands := m.opts.Context, m.opts.Commands
	if commands == nil {
		return nil
	}
	return func() tea.Msg {
		res, err := commands.ApplyScene(ctx, name)
		return sceneDoneMsg{name: name, result: res, err: err}
	}
}

func (m Model) setStatus(text string, isErr bool) (tea.Model, tea.Cmd) {
	m.statusSeq++
	m.status = text
	m.statusErr = isErr
	seq := m.statusSeq
	return m, tea.Tick(statusFadeDelay, func(time.Time) tea.Msg {
		return statusFadeMsg{seq: seq}
	})
}

// View implements tea.Model.
func (m Model) View() string {
	var sections []string
	sections = append(sections, m.renderHeader())
	sections = append(sections, m.styles.border.Render(strings.Repeat("─", max(m.width, 1))))

	if m.showHelp {
		sections = append(sections, m.renderHelp())
	} else {
		sections = append(sections, m.renderLights())
	}

	sections = append(sections, m.styles.border.Render(strings.Repeat("─", max(m.width, 1))))
	sections = append(sections, m.renderScenes())
	sections = append(sections, m.renderStatus())
	if !m.showHelp {
		sections = append(sections, m.help.View(m.keys))
	}
	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

func (m Model) renderHeader() string {
	on, off, unreachable := 0, 0, 0
	for _, l := range m.lights {
		switch {
		case !l.Reachable:
			unreachable++
		case l.On:
			on++
		default:
			off++
		}
	}

	parts := []string{
		m.styles.title.Render("FrostLux"),
		m.renderConnection(),
		m.styles.faint.Render(fmt.Sprintf("%d on · %d off", on, off)),
	}
	if unreachable > 0 {
		parts = append(parts, m.styles.unreachable.Render(fmt.Sprintf("%d unreachable", unreachable)))
	}
	if m.stale {
		parts = append(parts, m.styles.stale.Render("STALE"))
	}
	return strings.Join(parts, "   ")
}

func (m Model) renderConnection() string {
	switch m.conn.Phase {
	case tradfri.PhaseConnected:
		return m.styles.connected.Render("● connected")
	case tradfri.PhaseConnecting:
		return m.spinner.View() + m.styles.faint.Render(" connecting")
	case tradfri.PhaseBackoff:
		wait := max(time.Until(m.conn.Deadline).Round(time.Second), 0)
		return m.styles.disconnected.Render(fmt.Sprintf("○ retry in %s (attempt %d)", wait, m.conn.Attempt))
	default:
		return m.styles.disconnected.Render("○ disconnected")
	}
}

func (m Model) renderLights() string {
	if len(m.lights) == 0 {
		return m.styles.faint.Render("  Waiting for the gateway…")
	}

	nameWidth := 8
	for _, l := range m.lights {
		nameWidth = max(nameWidth, lipgloss.Width(l.Name))
	}

	from, to := m.visibleRange()
	rows := make([]string, 0, to-from)
	for i := from; i < to; i++ {
		rows = append(rows, m.renderLight(m.lights[i], nameWidth, i == m.cursor))
	}
	return strings.Join(rows, "\n")
}

// visibleRange returns the window of lights that fits the terminal,
// keeping the cursor in view.
func (m Model) visibleRange() (int, int) {
	rows := max(m.height-chromeLines, 1)
	if len(m.lights) <= rows {
		return 0, len(m.lights)
	}
	from := min(max(m.cursor-rows/2, 0), len(m.lights)-rows)
	return from, from + rows
}

func (m Model) renderLight(l device.Light, nameWidth int, selected bool) string {
	cursor := "  "
	if selected {
		cursor = "> "
	}
	name := l.Name + strings.Repeat(" ", nameWidth-lipgloss.Width(l.Name))

	var state string
	switch {
	case !l.Reachable:
		state = m.styles.unreachable.Render("unreachable")
	case l.On:
		state = m.styles.on.Render(fmt.Sprintf("on   %s %3d%%  %-7s", bar(l.Brightness), l.Brightness, device.ColorTempLabel(l.ColorTemp)))
	default:
		state = m.styles.off.Render(fmt.Sprintf("off  %s %3d%%  %-7s", bar(0), l.Brightness, device.ColorTempLabel(l.ColorTemp)))
	}

	row := cursor + name + "  " + state
	if l.Pending {
		row += " " + m.spinner.View()
	}
	if selected {
		return m.styles.selected.Render(row)
	}
	return m.styles.normal.Render(row)
}

func bar(pct int) string {
	filled := (device.ClampBrightness(pct)*barWidth + 50) / 100
	return strings.Repeat("█", filled) + strings.Repeat("░", barWidth-filled)
}

func (m Model) renderScenes() string {
	if m.opts.Scenes == nil {
		return ""
	}
	var parts []string
	for _, s := range m.opts.Scenes.List() {
		if s.Hotkey == "" {
			continue
		}
		parts = append(parts, m.styles.key.Render(s.Hotkey)+" "+m.styles.faint.Render(s.Name))
	}
	return "Scenes: " + strings.Join(parts, "  ")
}

func (m Model) renderHelp() string {
	lines := []string{m.help.View(m.keys), ""}
	if m.opts.Scenes != nil {
		for _, s := range m.opts.Scenes.List() {
			names := append([]string{s.Key}, s.Aliases...)
			hot := " "
			if s.Hotkey != "" {
				hot = s.Hotkey
			}
			lines = append(lines, fmt.Sprintf("  %s  %-14s %s",
				m.styles.key.Render(hot), s.Name, m.styles.faint.Render(strings.Join(names, ", "))))
		}
	}
	return strings.Join(lines, "\n")
}

func (m Model) renderStatus() string {
	if m.status == "" {
		return ""
	}
	if m.statusErr {
		return m.styles.statusErr.Render(m.status)
	}
	return m.styles.status.Render(m.status)
}

type styles struct {
	title        lipgloss.Style
	normal       lipgloss.Style
	faint        lipgloss.Style
	selected     lipgloss.Style
	on           lipgloss.Style
	off          lipgloss.Style
	unreachable  lipgloss.Style
	connected    lipgloss.Style
	disconnected lipgloss.Style
	stale        lipgloss.Style
	status       lipgloss.Style
	statusErr    lipgloss.Style
	border       lipgloss.Style
	key          lipgloss.Style
}

func newStyles(t Theme) styles {
	return styles{
		title:        lipgloss.NewStyle().Bold(true).Foreground(t.HeaderForeground),
		normal:       lipgloss.NewStyle().Foreground(t.NormalText),
		faint:        lipgloss.NewStyle().Foreground(t.FaintText),
		selected:     lipgloss.NewStyle().Background(t.SelectedBackground).Foreground(t.SelectedForeground),
		on:           lipgloss.NewStyle().Foreground(t.LightOn),
		off:          lipgloss.NewStyle().Foreground(t.LightOff),
		unreachable:  lipgloss.NewStyle().Foreground(t.Unreachable),
		connected:    lipgloss.NewStyle().Foreground(t.Connected),
		disconnected: lipgloss.NewStyle().Foreground(t.Disconnected),
		stale:        lipgloss.NewStyle().Bold(true).Foreground(t.Stale),
		status:       lipgloss.NewStyle().Foreground(t.StatusText),
		statusErr:    lipgloss.NewStyle().Foreground(t.StatusError),
		border:       lipgloss.NewStyle().Foreground(t.BorderColor),
		key:          lipgloss.NewStyle().Bold(true).Foreground(t.HeaderForeground),
	}
}

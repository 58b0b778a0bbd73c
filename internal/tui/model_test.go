package tui

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/frostlux/frostlux/internal/automation"
	"github.com/frostlux/frostlux/internal/bridges/tradfri"
	"github.com/frostlux/frostlux/internal/command"
	"github.com/frostlux/frostlux/internal/device"
)

// fakeController records calls and resolves every command as confirmed.
type fakeController struct {
	mu    sync.Mutex
	calls []string
	scene command.SceneResult
	err   error
}

func (f *fakeController) record(parts ...any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, strings.TrimSpace(fmt.Sprintln(parts...)))
}

func (f *fakeController) Toggle(_ context.Context, id int) (command.Result, error) {
	f.record("toggle", id)
	return command.Result{LightID: id, LightName: "Vardagsrum", Outcome: command.OutcomeConfirmed, Delta: device.Delta{On: device.Bool(true)}}, f.err
}

func (f *fakeController) StepBrightness(_ context.Context, id int, step int) (command.Result, error) {
	f.record("brightness", id, step)
	return command.Result{LightID: id, Outcome: command.OutcomeConfirmed}, f.err
}

func (f *fakeController) StepColorTemp(_ context.Context, id int, warmer bool) (command.Result, error) {
	f.record("color_temp", id, warmer)
	return command.Result{LightID: id, Outcome: command.OutcomeConfirmed}, f.err
}

func (f *fakeController) ApplyScene(_ context.Context, name string) (command.SceneResult, error) {
	f.record("scene", name)
	return f.scene, f.err
}

func (f *fakeController) recorded() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func testStore() *device.Store {
	store := device.NewStore(device.StoreOptions{})
	store.MergeRefresh(65537, device.Observed{
		ID: 65537, Name: "Vardagsrum", Reachable: true,
		Attributes: device.Attributes{On: true, Brightness: 80, ColorTemp: device.ColorTempWarm},
	}, 0)
	store.MergeRefresh(65538, device.Observed{
		ID: 65538, Name: "Köket", Reachable: true,
		Attributes: device.Attributes{Brightness: 40, ColorTemp: device.ColorTempCold},
	}, 0)
	store.MergeRefresh(65539, device.Observed{ID: 65539, Name: "Hallen", Reachable: false}, 0)
	return store
}

func newTestModel(store *device.Store, ctrl *fakeController) Model {
	return NewModel(Options{
		Lights:   store,
		Commands: ctrl,
		Scenes:   automation.NewBuiltinRegistry(),
		Theme:    DarkTheme,
	})
}

func runes(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func update(t *testing.T, m Model, msg tea.Msg) (Model, tea.Cmd) {
	t.Helper()
	next, cmd := m.Update(msg)
	model, ok := next.(Model)
	if !ok {
		t.Fatalf("Update returned %T", next)
	}
	return model, cmd
}

func TestModelView(t *testing.T) {
	m := newTestModel(testStore(), &fakeController{})
	view := m.View()

	for _, want := range []string{"FrostLux", "Hallen", "Köket", "Vardagsrum", "1 on · 1 off", "1 unreachable", "warm", "disconnected", "Scenes:"} {
		if !strings.Contains(view, want) {
			t.Errorf("view missing %q:\n%s", want, view)
		}
	}
	if strings.Contains(view, "STALE") {
		t.Error("fresh store shown as stale")
	}
}

func TestModelQuit(t *testing.T) {
	m := newTestModel(testStore(), &fakeController{})

	_, cmd := m.Update(runes("q"))
	if cmd == nil {
		t.Fatal("q key should return a command")
	}
	if _, isQuit := cmd().(tea.QuitMsg); !isQuit {
		t.Error("expected QuitMsg")
	}
}

func TestModelNavigationAndCommands(t *testing.T) {
	ctrl := &fakeController{}
	m := newTestModel(testStore(), ctrl)

	// Sorted by name: Hallen, Köket, Vardagsrum.
	m, _ = update(t, m, runes("j"))
	m, _ = update(t, m, runes("j"))
	m, _ = update(t, m, runes("j")) // stays on the last row

	keys := []tea.KeyMsg{
		{Type: tea.KeyEnter},
		runes("l"),
		runes("h"),
		{Type: tea.KeyPgUp},
		{Type: tea.KeyPgDown},
		runes("+"),
		runes("-"),
	}
	for _, k := range keys {
		_, cmd := update(t, m, k)
		if cmd == nil {
			t.Fatalf("%v returned no command", k)
		}
		if _, ok := cmd().(commandDoneMsg); !ok {
			t.Fatalf("%v command did not report back", k)
		}
	}

	want := []string{
		"toggle 65537",
		"brightness 65537 10",
		"brightness 65537 -10",
		"brightness 65537 25",
		"brightness 65537 -25",
		"color_temp 65537 true",
		"color_temp 65537 false",
	}
	got := ctrl.recorded()
	if len(got) != len(want) {
		t.Fatalf("calls = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("call[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestModelCursorFollowsLight(t *testing.T) {
	store := testStore()
	m := newTestModel(store, &fakeController{})
	m, _ = update(t, m, runes("j")) // Köket

	// A new light sorts before the selection.
	store.MergeRefresh(65540, device.Observed{ID: 65540, Name: "Entré", Reachable: true}, 0)
	m, _ = update(t, m, tickMsg(time.Now()))

	if id, _ := m.selected(); id != 65538 {
		t.Errorf("selected %d after reload, want 65538", id)
	}
}

func TestModelStatusFades(t *testing.T) {
	m := newTestModel(testStore(), &fakeController{})

	m, cmd := update(t, m, commandDoneMsg{result: command.Result{LightName: "Köket", Outcome: command.OutcomeUnreachable, Attempts: 3}})
	if cmd == nil {
		t.Fatal("status did not schedule a fade")
	}
	if !strings.Contains(m.View(), "Köket unreachable after 3 attempts") {
		t.Errorf("status not shown:\n%s", m.View())
	}
	first := m.statusSeq

	m, _ = update(t, m, commandDoneMsg{result: command.Result{LightName: "Hallen", Outcome: command.OutcomeRejected}})

	// The first message's fade must not clear the second one.
	m, _ = update(t, m, statusFadeMsg{seq: first})
	if m.status == "" {
		t.Error("stale fade cleared a newer status")
	}
	m, _ = update(t, m, statusFadeMsg{seq: m.statusSeq})
	if m.status != "" {
		t.Errorf("status = %q after its fade", m.status)
	}
}

func TestModelSceneHotkey(t *testing.T) {
	ctrl := &fakeController{scene: command.SceneResult{
		Plan:    automation.Plan{Scene: automation.SceneDefinition{Name: "Movie"}},
		Results: []command.Result{{Outcome: command.OutcomeConfirmed}, {Outcome: command.OutcomeConfirmed}},
	}}
	m := newTestModel(testStore(), ctrl)

	m, cmd := update(t, m, runes("m"))
	if !strings.Contains(m.status, "applying Movie") {
		t.Errorf("status = %q", m.status)
	}
	msg := cmd()
	if got := ctrl.recorded(); len(got) != 1 || got[0] != "scene movie" {
		t.Fatalf("calls = %v", got)
	}

	m, _ = update(t, m, msg)
	if m.status != "Movie: 2/2 lights" || m.statusErr {
		t.Errorf("status = %q (error %v)", m.status, m.statusErr)
	}
}

func TestModelSceneUnknownError(t *testing.T) {
	m := newTestModel(testStore(), &fakeController{})
	m, _ = update(t, m, sceneDoneMsg{name: "disco", err: automation.ErrUnknownScene})
	if !m.statusErr || !strings.Contains(m.status, `unknown scene "disco"`) {
		t.Errorf("status = %q (error %v)", m.status, m.statusErr)
	}
}

func TestModelHelpOverlay(t *testing.T) {
	m := newTestModel(testStore(), &fakeController{})
	m, _ = update(t, m, runes("?"))

	view := m.View()
	for _, want := range []string{"film", "kväll", "warmer", "refresh"} {
		if !strings.Contains(view, want) {
			t.Errorf("help missing %q", want)
		}
	}
	m, _ = update(t, m, runes("?"))
	if strings.Contains(m.View(), "kväll") {
		t.Error("help still shown after second ?")
	}
}

func TestModelRefreshKey(t *testing.T) {
	triggered := 0
	m := NewModel(Options{Lights: testStore(), Refresh: func() { triggered++ }})
	update(t, m, runes("R"))
	if triggered != 1 {
		t.Errorf("refresh triggered %d times", triggered)
	}
}

func TestModelHeaderIndicators(t *testing.T) {
	store := testStore()
	state := tradfri.ConnectionState{Phase: tradfri.PhaseBackoff, Attempt: 2, Deadline: time.Now().Add(4 * time.Second)}
	m := NewModel(Options{
		Lights:     store,
		Connection: func() tradfri.ConnectionState { return state },
	})

	if view := m.View(); !strings.Contains(view, "attempt 2") {
		t.Errorf("backoff not shown:\n%s", view)
	}

	store.SetStale(true)
	state = tradfri.ConnectionState{Phase: tradfri.PhaseConnected}
	m, _ = update(t, m, tickMsg(time.Now()))
	view := m.View()
	if !strings.Contains(view, "STALE") || !strings.Contains(view, "connected") {
		t.Errorf("header = %q", strings.SplitN(view, "\n", 2)[0])
	}
}

func TestModelEmpty(t *testing.T) {
	m := NewModel(Options{Lights: device.NewStore(device.StoreOptions{})})
	if !strings.Contains(m.View(), "Waiting for the gateway") {
		t.Error("empty view missing placeholder")
	}
	if _, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter}); cmd != nil {
		t.Error("enter on an empty list issued a command")
	}
}

func TestResolveTheme(t *testing.T) {
	dark := func() bool { return true }
	light := func() bool { return false }

	tests := []struct {
		selector string
		detect   func() bool
		want     string
	}{
		{"dark", light, "dark"},
		{"LIGHT", dark, "light"},
		{"auto", dark, "dark"},
		{"auto", light, "light"},
		{"", light, "light"},
	}
	for _, tt := range tests {
		if got := resolveTheme(tt.selector, tt.detect); got.Name != tt.want {
			t.Errorf("resolveTheme(%q) = %s, want %s", tt.selector, got.Name, tt.want)
		}
	}
}

package automation

import (
	"fmt"
	"strings"

	"github.com/frostlux/frostlux/internal/device"
)

// Exclusions are the two independent layers of lights a scene skips.
// Light names are compared case-insensitively.
type Exclusions struct {
	// Global lights are skipped by every scene.
	Global []string

	// ByScene lights are skipped by one scene, keyed by scene key, name
	// or alias.
	ByScene map[string][]string
}

// Engine turns a scene name into per-light targets.
//
// Thread Safety: Plan is safe for concurrent use.
type Engine struct {
	registry *Registry
	global   map[string]struct{}
	byScene  map[string]map[string]struct{} // by scene key
	logger   Logger
}

// NewEngine creates a scene engine.
//
// ByScene entries are resolved through the registry so that an exclusion
// written against an alias ("film") applies to the canonical scene
// ("movie"). Entries naming no scene are kept under their own lowercase
// name and logged.
func NewEngine(registry *Registry, exclusions Exclusions, logger Logger) *Engine {
	if logger == nil {
		logger = noopLogger{}
	}
	e := &Engine{
		registry: registry,
		global:   nameSet(exclusions.Global),
		byScene:  make(map[string]map[string]struct{}, len(exclusions.ByScene)),
		logger:   logger,
	}
	for name, lights := range exclusions.ByScene {
		key := strings.ToLower(strings.TrimSpace(name))
		if s, err := registry.Resolve(name); err == nil {
			key = s.Key
		} else {
			logger.Warn("exclusion names an unknown scene", "scene", name)
		}
		set := e.byScene[key]
		if set == nil {
			set = make(map[string]struct{}, len(lights))
			e.byScene[key] = set
		}
		for n := range nameSet(lights) {
			set[n] = struct{}{}
		}
	}
	return e
}

// Registry returns the scene vocabulary the engine resolves against.
func (e *Engine) Registry() *Registry {
	return e.registry
}

// Plan resolves name and builds one target per light that neither
// exclusion layer skips. It never touches light state.
//
// Returns:
//   - Plan: Targets in the order of lights
//   - error: ErrUnknownScene when name matches nothing
func (e *Engine) Plan(name string, lights []device.Light) (Plan, error) {
	scene, err := e.registry.Resolve(name)
	if err != nil {
		return Plan{}, err
	}

	perScene := e.byScene[scene.Key]
	plan := Plan{Scene: scene, Targets: make([]Target, 0, len(lights))}

	for _, l := range lights {
		n := strings.ToLower(l.Name)
		_, global := e.global[n]
		_, local := perScene[n]
		if global || local {
			plan.Excluded = append(plan.Excluded, l.Name)
			continue
		}

		d := scene.DeltaFor(l.Name)
		if d.IsEmpty() {
			continue
		}
		plan.Targets = append(plan.Targets, Target{LightID: l.ID, Name: l.Name, Delta: d})
	}

	e.logger.Debug("scene planned",
		"scene", scene.Key,
		"targets", len(plan.Targets),
		"excluded", len(plan.Excluded),
	)
	return plan, nil
}

// String describes the plan for logs and the status line.
func (p Plan) String() string {
	s := fmt.Sprintf("%s: %d lights", p.Scene.Name, len(p.Targets))
	if len(p.Excluded) > 0 {
		s += fmt.Sprintf(", %d excluded", len(p.Excluded))
	}
	return s
}

func nameSet(names []string) map[string]struct{} {
	set := make(map[string]struct{}, len(names))
	for _, n := range names {
		n = strings.ToLower(strings.TrimSpace(n))
		if n != "" {
			set[n] = struct{}{}
		}
	}
	return set
}

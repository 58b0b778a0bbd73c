// Package automation provides the scene engine for FrostLux.
//
// A scene is a named template of light attributes applied in one action.
// Scenes are looked up by key, display name or alias (English keys with
// Swedish aliases), case-insensitively and by exact match only.
//
// Architecture:
//
//	┌────────────────────────────────────────────────────────┐
//	│                   Engine (engine.go)                    │
//	│  ┌──────────────┐     ┌──────────────────────────────┐ │
//	│  │   Registry   │     │  Exclusions                   │ │
//	│  │(registry.go) │     │  • global (every scene)       │ │
//	│  │ built-in +   │     │  • per scene key              │ │
//	│  │ config scenes│     └──────────────────────────────┘ │
//	│  └──────────────┘                                       │
//	│        │ Resolve(name)                                  │
//	│        ▼                                                │
//	│  Plan(name, lights) → one Target per remaining light    │
//	└────────────────────────────────────────────────────────┘
//
// Exclusions are applied when a plan is built, never stored in the
// definition. A light skipped by either layer receives no command.
//
// The engine does not send anything; the command dispatcher executes a
// plan one light at a time, and partial application is acceptable.
//
// # Usage
//
//	registry, exclusions, err := automation.FromConfig(cfg.Scenes)
//	if err != nil {
//	    return err
//	}
//	engine := automation.NewEngine(registry, exclusions)
//	plan, err := engine.Plan("film", store.Snapshot())
//	if errors.Is(err, automation.ErrUnknownScene) {
//	    // report to the user; no light state changes
//	}
package automation

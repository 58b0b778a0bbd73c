package command

import (
	"fmt"
	"time"

	"github.com/frostlux/frostlux/internal/automation"
	"github.com/frostlux/frostlux/internal/device"
)

// Outcome is how a command ended.
type Outcome int

// Command outcomes.
const (
	// OutcomeConfirmed means the gateway acknowledged the write.
	OutcomeConfirmed Outcome = iota + 1

	// OutcomeReverted means the command was abandoned (shutdown) and the
	// light restored to its last confirmed value.
	OutcomeReverted

	// OutcomeRejected means the gateway refused the write; reverted.
	OutcomeRejected

	// OutcomeUnreachable means the retry budget was spent; reverted and
	// the light flagged unreachable.
	OutcomeUnreachable

	// OutcomeSuperseded means a newer command for the light took over.
	OutcomeSuperseded
)

// String returns the outcome name used in logs, telemetry and the journal.
func (o Outcome) String() string {
	switch o {
	case OutcomeConfirmed:
		return "confirmed"
	case OutcomeReverted:
		return "reverted"
	case OutcomeRejected:
		return "rejected"
	case OutcomeUnreachable:
		return "unreachable"
	case OutcomeSuperseded:
		return "superseded"
	default:
		return fmt.Sprintf("Outcome(%d)", int(o))
	}
}

// MarshalText implements encoding.TextMarshaler.
func (o Outcome) MarshalText() ([]byte, error) {
	return []byte(o.String()), nil
}

// Failed reports whether the light did not end up with the requested value.
func (o Outcome) Failed() bool {
	return o == OutcomeReverted || o == OutcomeRejected || o == OutcomeUnreachable
}

// PendingCommand is a command whose response has not been resolved.
type PendingCommand struct {
	ID         string       `json:"id"`
	Kind       string       `json:"kind"`
	LightID    int          `json:"light_id"`
	Delta      device.Delta `json:"delta"`
	Generation uint64       `json:"generation"`
	Retries    int          `json:"retries"`
	StartedAt  time.Time    `json:"started_at"`

	cancel func()
}

// Result is the resolution of one command.
type Result struct {
	ID        string        `json:"id"`
	Kind      string        `json:"kind"`
	LightID   int           `json:"light_id"`
	LightName string        `json:"light_name"`
	Delta     device.Delta  `json:"delta"`
	Outcome   Outcome       `json:"outcome"`
	Attempts  int           `json:"attempts"`
	Latency   time.Duration `json:"latency"`
	StartedAt time.Time     `json:"started_at"`

	// Err is nil for OutcomeConfirmed; it wraps ErrRejected, ErrTimeout,
	// ErrUnreachable or ErrSuperseded otherwise.
	Err error `json:"-"`
}

// String renders the result for the status line.
func (r Result) String() string {
	name := r.LightName
	if name == "" {
		name = fmt.Sprintf("light %d", r.LightID)
	}
	switch r.Outcome {
	case OutcomeConfirmed:
		return fmt.Sprintf("%s: %s", name, r.Delta)
	case OutcomeUnreachable:
		return fmt.Sprintf("%s unreachable after %d attempts", name, r.Attempts)
	default:
		return fmt.Sprintf("%s: %s", name, r.Outcome)
	}
}

// SceneResult collects the per-light results of one scene application.
type SceneResult struct {
	Plan    automation.Plan `json:"plan"`
	Results []Result        `json:"results"`
}

// Count returns how many lights ended with outcome o.
func (s SceneResult) Count(o Outcome) int {
	n := 0
	for _, r := range s.Results {
		if r.Outcome == o {
			n++
		}
	}
	return n
}

// Failed returns the number of lights that did not take the scene.
func (s SceneResult) Failed() int {
	n := 0
	for _, r := range s.Results {
		if r.Outcome.Failed() {
			n++
		}
	}
	return n
}

// String renders the scene result for the status line and the CLI.
func (s SceneResult) String() string {
	msg := fmt.Sprintf("%s: %d/%d lights", s.Plan.Scene.Name, s.Count(OutcomeConfirmed), len(s.Results))
	if f := s.Failed(); f > 0 {
		msg += fmt.Sprintf(", %d failed", f)
	}
	if len(s.Plan.Excluded) > 0 {
		msg += fmt.Sprintf(", %d excluded", len(s.Plan.Excluded))
	}
	return msg
}

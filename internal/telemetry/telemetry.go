// Package telemetry turns command outcomes and gateway connection
// transitions into time-series points.
package telemetry

import (
	"strconv"
	"time"

	"github.com/frostlux/frostlux/internal/bridges/tradfri"
	"github.com/frostlux/frostlux/internal/command"
)

// Measurement names.
const (
	MeasurementCommand    = "command"
	MeasurementConnection = "connection"
)

// Writer queues one point. *influxdb.Client satisfies it.
type Writer interface {
	WritePointWithTime(measurement string, tags map[string]string, fields map[string]any, timestamp time.Time)
}

// Recorder writes one point per resolved command and per connection
// transition. Its methods match the dispatcher and supervisor callbacks.
type Recorder struct {
	w   Writer
	now func() time.Time
}

// NewRecorder creates a recorder writing to w.
func NewRecorder(w Writer) *Recorder {
	return &Recorder{w: w, now: time.Now}
}

// RecordCommand writes a "command" point tagged with the light and the
// outcome. The point is stamped with the time the command started.
func (r *Recorder) RecordCommand(res command.Result) {
	ts := res.StartedAt
	if ts.IsZero() {
		ts = r.now()
	}
	r.w.WritePointWithTime(MeasurementCommand,
		map[string]string{
			"light_id": strconv.Itoa(res.LightID),
			"outcome":  res.Outcome.String(),
			"kind":     res.Kind,
		},
		map[string]any{
			"attempts":   res.Attempts,
			"latency_ms": float64(res.Latency) / float64(time.Millisecond),
		},
		ts,
	)
}

// RecordConnection writes a "connection" point for a supervisor transition.
func (r *Recorder) RecordConnection(st tradfri.ConnectionState) {
	r.w.WritePointWithTime(MeasurementConnection,
		map[string]string{"state": st.Phase.String()},
		map[string]any{"attempt": st.Attempt},
		r.now(),
	)
}

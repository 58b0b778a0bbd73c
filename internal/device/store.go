package device

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Logger interface for optional logging.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// StoreOptions configures a Store.
type StoreOptions struct {
	// Margin is the number of refresh cycles a pending write is protected
	// for. A refresh cycle begun more than Margin cycles after the write
	// may overwrite it. Zero means a pending write is never overwritten.
	Margin uint64
}

// entry is the internal record for one light.
type entry struct {
	light Light

	// confirmed is the last value acknowledged by the gateway, or merged
	// from a refresh. Reverts restore it.
	confirmed Attributes

	// pendingCycle is the refresh cycle count when the outstanding
	// optimistic write was applied. Only meaningful while light.Pending.
	pendingCycle uint64
}

// Store is the generation-stamped light map.
//
// Readers take snapshots; writers use the narrow operation set below.
// A write is accepted only if its generation is at least the stored one,
// so a stale response or refresh never overwrites a newer value.
//
// All public methods are thread-safe.
type Store struct {
	mu       sync.RWMutex
	lights   map[int]*entry
	margin   uint64
	stale    bool
	cycles   uint64 // Refresh cycles begun, see BeginRefresh
	version  uint64 // Incremented on every visible change
	rejected uint64 // Refresh merges dropped because of newer writes

	onChange func()
	logger   Logger
}

// NewStore creates an empty store.
func NewStore(opts StoreOptions) *Store {
	return &Store{
		lights: make(map[int]*entry),
		margin: opts.Margin,
		logger: noopLogger{},
	}
}

// SetLogger sets the logger for the store.
func (s *Store) SetLogger(logger Logger) {
	s.mu.Lock()
	s.logger = logger
	s.mu.Unlock()
}

// SetOnChange registers a callback invoked after every accepted write.
// The callback runs outside the store lock and may read from the store.
func (s *Store) SetOnChange(fn func()) {
	s.mu.Lock()
	s.onChange = fn
	s.mu.Unlock()
}

// Snapshot returns a consistent copy of every light, sorted by name.
// Callers can safely modify the result.
func (s *Store) Snapshot() []Light {
	s.mu.RLock()
	lights := make([]Light, 0, len(s.lights))
	for _, e := range s.lights {
		lights = append(lights, e.light)
	}
	s.mu.RUnlock()

	sort.Slice(lights, func(i, j int) bool {
		a, b := strings.ToLower(lights[i].Name), strings.ToLower(lights[j].Name)
		if a != b {
			return a < b
		}
		return lights[i].ID < lights[j].ID
	})
	return lights
}

// Get returns a copy of one light.
func (s *Store) Get(id int) (Light, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.lights[id]
	if !ok {
		return Light{}, false
	}
	return e.light, true
}

// Generations returns the current generation of every light without
// starting a refresh cycle.
func (s *Store) Generations() map[int]uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()

	gens := make(map[int]uint64, len(s.lights))
	for id, e := range s.lights {
		gens[id] = e.light.Generation
	}
	return gens
}

// BeginRefresh starts a refresh cycle. It returns the current generation
// of every light, to pass to MergeRefresh, and counts the cycle so that
// pending writes can age out after Margin cycles.
func (s *Store) BeginRefresh() map[int]uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cycles++
	gens := make(map[int]uint64, len(s.lights))
	for id, e := range s.lights {
		gens[id] = e.light.Generation
	}
	return gens
}

// ApplyOptimistic writes delta ahead of the gateway's answer.
//
// Parameters:
//   - id: Light to update
//   - delta: Fields to change
//
// Returns:
//   - uint64: The new generation, to pass to Confirm, Revert or MarkUnreachable
//   - Attributes: The last confirmed value, to restore on failure
//   - error: ErrLightNotFound or ErrEmptyDelta
func (s *Store) ApplyOptimistic(id int, delta Delta) (uint64, Attributes, error) {
	if delta.IsEmpty() {
		return 0, Attributes{}, ErrEmptyDelta
	}

	s.mu.Lock()
	e, ok := s.lights[id]
	if !ok {
		s.mu.Unlock()
		return 0, Attributes{}, fmt.Errorf("%w: %d", ErrLightNotFound, id)
	}

	e.light.Attributes = e.light.Attributes.Apply(delta)
	e.light.Generation++
	e.light.Pending = true
	e.pendingCycle = s.cycles
	gen, prev := e.light.Generation, e.confirmed
	s.version++
	s.mu.Unlock()

	s.notify()
	return gen, prev, nil
}

// Confirm records the optimistic value of generation gen as acknowledged.
// It is a no-op, returning false, if a newer write has happened since.
func (s *Store) Confirm(id int, gen uint64) bool {
	s.mu.Lock()
	e, ok := s.lights[id]
	if !ok || e.light.Generation != gen {
		s.mu.Unlock()
		return false
	}

	e.confirmed = e.light.Attributes
	e.light.Pending = false
	e.light.Reachable = true
	e.light.Generation++
	s.version++
	s.mu.Unlock()

	s.notify()
	return true
}

// Revert restores previous if gen is still the latest write.
// It is a no-op, returning false, otherwise.
func (s *Store) Revert(id int, gen uint64, previous Attributes) bool {
	return s.rollback(id, gen, previous, false)
}

// MarkUnreachable reverts like Revert and flags the light unreachable.
// The flag persists until the next confirm or accepted refresh.
func (s *Store) MarkUnreachable(id int, gen uint64, previous Attributes) bool {
	return s.rollback(id, gen, previous, true)
}

func (s *Store) rollback(id int, gen uint64, previous Attributes, unreachable bool) bool {
	s.mu.Lock()
	e, ok := s.lights[id]
	if !ok || e.light.Generation != gen {
		s.mu.Unlock()
		return false
	}

	e.light.Attributes = previous
	e.confirmed = previous
	e.light.Pending = false
	if unreachable {
		e.light.Reachable = false
	}
	e.light.Generation++
	s.version++
	s.mu.Unlock()

	s.notify()
	return true
}

// MergeRefresh merges authoritative state fetched from the gateway.
//
// The merge is accepted only if authGen is at least the stored generation
// and there is no pending write, or the pending write was applied more than
// Margin refresh cycles ago. A rejected merge leaves the light untouched;
// the next refresh cycle tries again.
//
// Unknown ids are inserted.
//
// Parameters:
//   - id: Light being merged
//   - observed: State reported by the gateway
//   - authGen: Generation the caller read from BeginRefresh() before fetching
//
// Returns:
//   - bool: true if the merge was accepted
func (s *Store) MergeRefresh(id int, observed Observed, authGen uint64) bool {
	s.mu.Lock()
	e, ok := s.lights[id]
	if !ok {
		s.lights[id] = &entry{
			light: Light{
				ID:         id,
				Name:       observed.Name,
				Attributes: observed.Attributes,
				Reachable:  observed.Reachable,
				Generation: 1,
			},
			confirmed: observed.Attributes,
		}
		s.version++
		logger := s.logger
		s.mu.Unlock()

		logger.Debug("light added", "light_id", id, "name", observed.Name)
		s.notify()
		return true
	}

	if !s.acceptsMerge(e, authGen) {
		s.rejected++
		s.mu.Unlock()
		return false
	}

	changed := e.light.Attributes != observed.Attributes ||
		e.light.Name != observed.Name ||
		e.light.Reachable != observed.Reachable

	e.light.Name = observed.Name
	e.light.Attributes = observed.Attributes
	e.light.Reachable = observed.Reachable
	e.light.Pending = false
	e.confirmed = observed.Attributes
	e.light.Generation++
	if changed {
		s.version++
	}
	s.mu.Unlock()

	if changed {
		s.notify()
	}
	return true
}

// acceptsMerge applies the generation rule. Caller must hold s.mu.
func (s *Store) acceptsMerge(e *entry, authGen uint64) bool {
	if authGen < e.light.Generation {
		return false
	}
	if !e.light.Pending {
		return true
	}
	return s.margin > 0 && s.cycles-e.pendingCycle > s.margin
}

// Retain removes every light whose id is not in ids.
// Call it only with the complete id list of a successful refresh.
//
// Returns:
//   - int: Number of lights removed
func (s *Store) Retain(ids []int) int {
	keep := make(map[int]struct{}, len(ids))
	for _, id := range ids {
		keep[id] = struct{}{}
	}

	s.mu.Lock()
	removed := 0
	for id := range s.lights {
		if _, ok := keep[id]; !ok {
			delete(s.lights, id)
			removed++
		}
	}
	if removed > 0 {
		s.version++
	}
	logger := s.logger
	s.mu.Unlock()

	if removed > 0 {
		logger.Info("lights removed after refresh", "count", removed)
		s.notify()
	}
	return removed
}

// SetStale flags the light set as possibly out of date. Display only.
func (s *Store) SetStale(stale bool) {
	s.mu.Lock()
	if s.stale == stale {
		s.mu.Unlock()
		return
	}
	s.stale = stale
	s.version++
	s.mu.Unlock()

	s.notify()
}

// Stale reports whether consecutive refreshes have failed.
func (s *Store) Stale() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.stale
}

// Version returns a counter that changes whenever a snapshot would.
// Renderers compare it to skip redundant redraws.
func (s *Store) Version() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.version
}

// RejectedMerges returns how many refresh merges were dropped.
func (s *Store) RejectedMerges() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.rejected
}

// notify invokes the change callback outside the lock.
func (s *Store) notify() {
	s.mu.RLock()
	fn := s.onChange
	s.mu.RUnlock()

	if fn != nil {
		fn()
	}
}

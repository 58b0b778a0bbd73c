package automation

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Logger defines the logging interface used by the Registry and Engine.
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

// Registry holds the scene vocabulary.
//
// Every key, display name and alias is indexed in lowercase; a name may
// belong to only one scene.
//
// All public methods are thread-safe.
type Registry struct {
	mu     sync.RWMutex
	scenes map[string]*SceneDefinition // by key
	names  map[string]string           // lowercase name -> key
	next   int
	logger Logger
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		scenes: make(map[string]*SceneDefinition),
		names:  make(map[string]string),
		logger: noopLogger{},
	}
}

// NewBuiltinRegistry creates a registry holding the built-in scenes.
func NewBuiltinRegistry() *Registry {
	r := NewRegistry()
	for _, s := range Builtin() {
		if err := r.Register(s); err != nil {
			panic(fmt.Sprintf("automation: built-in scene %s: %v", s.Key, err))
		}
	}
	return r
}

// SetLogger sets the logger for the registry.
func (r *Registry) SetLogger(logger Logger) {
	r.mu.Lock()
	r.logger = logger
	r.mu.Unlock()
}

// Register validates and adds a scene.
//
// A custom scene with the key of a built-in one replaces it, taking over
// its hotkey when it has none. Any other name clash returns ErrSceneExists.
func (r *Registry) Register(s SceneDefinition) error {
	if err := ValidateScene(s); err != nil {
		return err
	}
	s = s.DeepCopy()

	r.mu.Lock()
	defer r.mu.Unlock()

	old, replacing := r.scenes[s.Key]
	if replacing && (!old.Builtin || s.Builtin) {
		return fmt.Errorf("%w: %s", ErrSceneExists, s.Key)
	}

	for _, n := range s.Names() {
		owner, taken := r.names[strings.ToLower(n)]
		if taken && owner != s.Key {
			return fmt.Errorf("%w: %q already names %s", ErrSceneExists, n, owner)
		}
	}

	if replacing {
		for _, n := range old.Names() {
			delete(r.names, strings.ToLower(n))
		}
		s.order = old.order
		if s.Hotkey == "" {
			s.Hotkey = old.Hotkey
		}
		r.logger.Info("built-in scene overridden", "scene", s.Key)
	} else {
		s.order = r.next
		r.next++
	}

	if s.Hotkey != "" {
		for key, other := range r.scenes {
			if key != s.Key && other.Hotkey == s.Hotkey {
				if replacing {
					r.restoreLocked(old)
				}
				return fmt.Errorf("%w: hotkey %q already applies %s", ErrSceneExists, s.Hotkey, key)
			}
		}
	}

	r.scenes[s.Key] = &s
	for _, n := range s.Names() {
		r.names[strings.ToLower(n)] = s.Key
	}
	return nil
}

// restoreLocked re-indexes a scene whose replacement was refused.
func (r *Registry) restoreLocked(s *SceneDefinition) {
	for _, n := range s.Names() {
		r.names[strings.ToLower(n)] = s.Key
	}
}

// Resolve returns the scene whose key, name or alias equals name,
// ignoring case and surrounding whitespace. The result is a deep copy.
func (r *Registry) Resolve(name string) (SceneDefinition, error) {
	needle := strings.ToLower(strings.TrimSpace(name))

	r.mu.RLock()
	defer r.mu.RUnlock()

	if key, ok := r.names[needle]; ok {
		return r.scenes[key].DeepCopy(), nil
	}
	return SceneDefinition{}, fmt.Errorf("%w: %q", ErrUnknownScene, name)
}

// ByHotkey returns the scene bound to a terminal key.
func (r *Registry) ByHotkey(k string) (SceneDefinition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, s := range r.scenes {
		if s.Hotkey == k {
			return s.DeepCopy(), true
		}
	}
	return SceneDefinition{}, false
}

// List returns deep copies of every scene in registration order.
func (r *Registry) List() []SceneDefinition {
	r.mu.RLock()
	scenes := make([]SceneDefinition, 0, len(r.scenes))
	for _, s := range r.scenes {
		scenes = append(scenes, s.DeepCopy())
	}
	r.mu.RUnlock()

	sort.Slice(scenes, func(i, j int) bool {
		return scenes[i].order < scenes[j].order
	})
	return scenes
}

// Len returns the number of registered scenes.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.scenes)
}

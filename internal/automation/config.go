package automation

import (
	"errors"
	"fmt"

	"github.com/frostlux/frostlux/internal/device"
	"github.com/frostlux/frostlux/internal/infrastructure/config"
)

// FromConfig builds the registry (built-in plus custom scenes) and the
// exclusion layers from the scenes section of the config file.
// Every invalid custom scene is reported, not just the first.
func FromConfig(cfg config.ScenesConfig) (*Registry, Exclusions, error) {
	registry := NewBuiltinRegistry()

	var errs []error
	for i, c := range cfg.Custom {
		if err := registry.Register(customScene(c)); err != nil {
			errs = append(errs, fmt.Errorf("scenes.custom[%d]: %w", i, err))
		}
	}
	if len(errs) > 0 {
		return nil, Exclusions{}, errors.Join(errs...)
	}

	return registry, Exclusions{
		Global:  cfg.Exclude,
		ByScene: cfg.ExcludeByScene,
	}, nil
}

func customScene(c config.CustomSceneConfig) SceneDefinition {
	s := SceneDefinition{
		Key:      c.Key,
		Name:     c.Name,
		Aliases:  c.Aliases,
		Hotkey:   c.Hotkey,
		Template: targetDelta(c.SceneTargetConfig),
	}
	if s.Key == "" {
		s.Key = GenerateKey(c.Name)
	}
	if s.Name == "" {
		s.Name = s.Key
	}
	if len(c.Lights) > 0 {
		s.PerLight = make(map[string]device.Delta, len(c.Lights))
		for name, t := range c.Lights {
			s.PerLight[name] = targetDelta(t)
		}
	}
	return s
}

func targetDelta(t config.SceneTargetConfig) device.Delta {
	d := device.Delta{On: t.On, Brightness: t.Brightness, ColorTemp: t.ColorTemp}
	// Brightness alone implies on, as it does for interactive commands.
	if d.On == nil && d.Brightness != nil {
		d.On = device.Bool(*d.Brightness > 0)
	}
	return d
}

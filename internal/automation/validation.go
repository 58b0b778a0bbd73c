package automation

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/frostlux/frostlux/internal/device"
)

// Validation constants.
const (
	maxNameLength = 100
	maxKeyLength  = 50
	maxAliases    = 10
	keyPattern    = `^[a-z0-9]+(?:-[a-z0-9]+)*$`
)

var keyRegex = regexp.MustCompile(keyPattern)

// ValidateScene performs comprehensive validation on a scene.
// Returns an error describing the first validation failure found.
func ValidateScene(s SceneDefinition) error {
	if err := ValidateKey(s.Key); err != nil {
		return err
	}
	if s.Name != "" {
		if err := ValidateName(s.Name); err != nil {
			return err
		}
	}
	if len(s.Aliases) > maxAliases {
		return fmt.Errorf("%w: %s has more than %d aliases", ErrInvalidScene, s.Key, maxAliases)
	}
	for _, a := range s.Aliases {
		if strings.TrimSpace(a) == "" {
			return fmt.Errorf("%w: %s has an empty alias", ErrInvalidScene, s.Key)
		}
	}
	if len([]rune(s.Hotkey)) > 1 {
		return fmt.Errorf("%w: %s hotkey must be a single character", ErrInvalidScene, s.Key)
	}

	if s.Template.IsEmpty() && len(s.PerLight) == 0 {
		return fmt.Errorf("%w: %s sets no attributes", ErrInvalidScene, s.Key)
	}
	if err := validateDelta(s.Template); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrInvalidScene, s.Key, err)
	}
	for light, d := range s.PerLight {
		if strings.TrimSpace(light) == "" {
			return fmt.Errorf("%w: %s has an empty light name", ErrInvalidScene, s.Key)
		}
		if err := validateDelta(d); err != nil {
			return fmt.Errorf("%w: %s light %q: %w", ErrInvalidScene, s.Key, light, err)
		}
	}
	return nil
}

// ValidateName checks if a scene name is valid.
func ValidateName(name string) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("%w: name cannot be empty", ErrInvalidScene)
	}
	if len(name) > maxNameLength {
		return fmt.Errorf("%w: name exceeds %d characters", ErrInvalidScene, maxNameLength)
	}
	return nil
}

// ValidateKey checks if a scene key format is valid.
func ValidateKey(key string) error {
	if key == "" {
		return fmt.Errorf("%w: key cannot be empty", ErrInvalidKey)
	}
	if len(key) > maxKeyLength {
		return fmt.Errorf("%w: key exceeds %d characters", ErrInvalidKey, maxKeyLength)
	}
	if !keyRegex.MatchString(key) {
		return fmt.Errorf("%w: %q must be lowercase alphanumeric with hyphens", ErrInvalidKey, key)
	}
	return nil
}

func validateDelta(d device.Delta) error {
	if d.Brightness != nil && (*d.Brightness < 0 || *d.Brightness > 100) {
		return fmt.Errorf("brightness %d outside 0-100", *d.Brightness)
	}
	if d.ColorTemp != nil && (*d.ColorTemp < device.MinColorTemp || *d.ColorTemp > device.MaxColorTemp) {
		return fmt.Errorf("color temperature %d outside %d-%d", *d.ColorTemp, device.MinColorTemp, device.MaxColorTemp)
	}
	return nil
}

// GenerateKey creates a scene key from a display name.
// It lowercases, replaces spaces/underscores with hyphens, removes
// other non-alphanumeric characters, and trims to maxKeyLength.
func GenerateKey(name string) string {
	key := strings.ToLower(name)
	key = strings.NewReplacer(" ", "-", "_", "-", "å", "a", "ä", "a", "ö", "o").Replace(key)

	var result strings.Builder
	for _, r := range key {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '-' {
			result.WriteRune(r)
		}
	}
	key = result.String()

	key = strings.Trim(key, "-")
	for strings.Contains(key, "--") {
		key = strings.ReplaceAll(key, "--", "-")
	}

	if len(key) > maxKeyLength {
		key = strings.TrimRight(key[:maxKeyLength], "-")
	}
	return key
}

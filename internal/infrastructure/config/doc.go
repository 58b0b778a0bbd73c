// Package config handles loading and validating FrostLux configuration.
//
// This package manages:
//   - Locating the configuration file (FROSTLUX_CONFIG, then the XDG config directory)
//   - Writing a commented default file on first run
//   - Loading configuration from YAML files
//   - Overriding with environment variables and an optional .env file
//   - Validation of required fields
//
// Security Considerations:
//   - The gateway pre-shared key should be set via FROSTLUX_GATEWAY_PSK
//   - The config file is written with restricted permissions (0600)
//
// Usage:
//
//	path, err := config.DefaultPath()
//	if err != nil {
//	    return err
//	}
//	cfg, err := config.Load(path)
//	if errors.Is(err, config.ErrMissingCredential) {
//	    // tell the user which variable to set
//	}
package config

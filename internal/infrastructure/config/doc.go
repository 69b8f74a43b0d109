// Package config handles loading and validating Gray Logic Pixels configuration.
//
// This package manages:
//   - Loading configuration from YAML files
//   - Overriding with environment variables
//   - Validation of required fields
//   - Default value handling
//
// Device entries are carried as raw maps (id, type, config). Their per-device
// settings (name, max_brightness, refresh_rate, ...) are validated by the
// device package when each device is created, so one bad entry never stops
// the rest of the file from loading.
//
// Security Considerations:
//   - Sensitive values (passwords, tokens) should be set via environment variables
//   - The config file should have restricted permissions (0600)
//
// Usage:
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.Site.Name, len(cfg.Devices))
package config

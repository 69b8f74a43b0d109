package device

import (
	"fmt"
	"math"
	"reflect"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config defaults.
const (
	DefaultMaxBrightness = 1.0
	DefaultRefreshRate   = 60
)

// Config holds the settings every device shares, whatever its type.
// Type-specific options live in the same raw map and are ignored here.
type Config struct {
	Name          string  `yaml:"name"`
	MaxBrightness float64 `yaml:"max_brightness"`
	CenterOffset  int     `yaml:"center_offset"`
	RefreshRate   int     `yaml:"refresh_rate"`
	ForceRefresh  bool    `yaml:"force_refresh"`
	PreviewOnly   bool    `yaml:"preview_only"`
}

// DefaultConfig returns a Config with every optional field at its default.
func DefaultConfig() Config {
	return Config{
		MaxBrightness: DefaultMaxBrightness,
		RefreshRate:   DefaultRefreshRate,
	}
}

// ParseConfig decodes and validates a raw device config map.
// Missing optional fields take their defaults. Errors wrap ErrInvalidConfig.
func ParseConfig(raw map[string]any) (Config, error) {
	cfg := DefaultConfig()

	if err := decodeOptions(raw, &cfg); err != nil {
		return Config{}, err
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// DecodeOptions decodes a raw device config map into out, a pointer to a
// yaml-tagged struct. Device types use it for their own options; fields
// already set in out act as defaults. Errors wrap ErrInvalidConfig.
func DecodeOptions(raw map[string]any, out any) error {
	return decodeOptions(raw, out)
}

func decodeOptions(raw map[string]any, out any) error {
	if raw == nil {
		return nil
	}

	if err := checkWholeNumbers(raw, out); err != nil {
		return err
	}

	data, err := yaml.Marshal(raw)
	if err != nil {
		return fmt.Errorf("%w: encoding options: %v", ErrInvalidConfig, err)
	}
	if err := yaml.Unmarshal(data, out); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return nil
}

// checkWholeNumbers rejects fractional values for the integer fields of out.
// yaml.v3 would otherwise truncate 1.5 to 1 without complaint.
func checkWholeNumbers(raw map[string]any, out any) error {
	v := reflect.ValueOf(out)
	for v.Kind() == reflect.Pointer {
		v = v.Elem()
	}
	if v.Kind() != reflect.Struct {
		return nil
	}

	var errs []string
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		switch f.Type.Kind() {
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
			reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		default:
			continue
		}

		key, _, _ := strings.Cut(f.Tag.Get("yaml"), ",")
		if key == "" || key == "-" {
			continue
		}

		var num float64
		switch n := raw[key].(type) {
		case float64:
			num = n
		case float32:
			num = float64(n)
		default:
			continue
		}
		if num != math.Trunc(num) || math.IsInf(num, 0) {
			errs = append(errs, fmt.Sprintf("%s %v must be a whole number", key, num))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(errs, "; "))
	}
	return nil
}

// Validate checks field ranges. Errors wrap ErrInvalidConfig.
func (c Config) Validate() error {
	var errs []string

	if strings.TrimSpace(c.Name) == "" {
		errs = append(errs, "name is required")
	}
	if c.MaxBrightness < 0 || c.MaxBrightness > 1 {
		errs = append(errs, fmt.Sprintf("max_brightness %v must be between 0 and 1", c.MaxBrightness))
	}
	if c.RefreshRate <= 0 {
		errs = append(errs, fmt.Sprintf("refresh_rate %d must be positive", c.RefreshRate))
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(errs, "; "))
	}
	return nil
}

// Interval returns the time between scheduling ticks.
func (c Config) Interval() time.Duration {
	if c.RefreshRate <= 0 {
		return time.Second / DefaultRefreshRate
	}
	return time.Second / time.Duration(c.RefreshRate)
}

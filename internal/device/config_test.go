package device

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseConfig_Defaults(t *testing.T) {
	cfg, err := ParseConfig(map[string]any{"name": "Desk"})
	require.NoError(t, err)

	assert.Equal(t, Config{
		Name:          "Desk",
		MaxBrightness: 1.0,
		CenterOffset:  0,
		RefreshRate:   60,
		ForceRefresh:  false,
		PreviewOnly:   false,
	}, cfg)
}

func TestParseConfig_AllFields(t *testing.T) {
	cfg, err := ParseConfig(map[string]any{
		"name":           "Shelf",
		"max_brightness": 0.5,
		"center_offset":  -3,
		"refresh_rate":   30,
		"force_refresh":  true,
		"preview_only":   true,
		"pixel_count":    144, // type option, ignored here
	})
	require.NoError(t, err)

	assert.Equal(t, "Shelf", cfg.Name)
	assert.Equal(t, 0.5, cfg.MaxBrightness)
	assert.Equal(t, -3, cfg.CenterOffset)
	assert.Equal(t, 30, cfg.RefreshRate)
	assert.True(t, cfg.ForceRefresh)
	assert.True(t, cfg.PreviewOnly)
}

func TestParseConfig_JSONNumbers(t *testing.T) {
	// Entries read back from the database carry float64 numbers.
	cfg, err := ParseConfig(map[string]any{
		"name":          "Stored",
		"refresh_rate":  float64(25),
		"center_offset": float64(2),
	})
	require.NoError(t, err)
	assert.Equal(t, 25, cfg.RefreshRate)
	assert.Equal(t, 2, cfg.CenterOffset)
}

func TestParseConfig_Invalid(t *testing.T) {
	tests := []struct {
		name string
		raw  map[string]any
	}{
		{"nil map", nil},
		{"missing name", map[string]any{"refresh_rate": 30}},
		{"blank name", map[string]any{"name": "  "}},
		{"brightness above one", map[string]any{"name": "x", "max_brightness": 1.5}},
		{"negative brightness", map[string]any{"name": "x", "max_brightness": -0.1}},
		{"zero refresh rate", map[string]any{"name": "x", "refresh_rate": 0}},
		{"negative refresh rate", map[string]any{"name": "x", "refresh_rate": -5}},
		{"wrong type", map[string]any{"name": "x", "refresh_rate": "fast"}},
		{"fractional offset", map[string]any{"name": "x", "center_offset": 1.5}},
		{"fractional refresh rate", map[string]any{"name": "x", "refresh_rate": 59.9}},
		{"fractional float32 offset", map[string]any{"name": "x", "center_offset": float32(-0.5)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseConfig(tt.raw)
			assert.ErrorIs(t, err, ErrInvalidConfig)
		})
	}
}

func TestDecodeOptions(t *testing.T) {
	type opts struct {
		PixelCount int    `yaml:"pixel_count"`
		Topic      string `yaml:"topic"`
	}

	o := opts{Topic: "default"}
	require.NoError(t, DecodeOptions(map[string]any{"name": "x", "pixel_count": 30}, &o))
	assert.Equal(t, opts{PixelCount: 30, Topic: "default"}, o)

	err := DecodeOptions(map[string]any{"pixel_count": "many"}, &o)
	assert.ErrorIs(t, err, ErrInvalidConfig)

	// JSON bodies decode numbers as float64; whole values pass, fractions fail.
	require.NoError(t, DecodeOptions(map[string]any{"pixel_count": float64(12)}, &o))
	assert.Equal(t, 12, o.PixelCount)

	err = DecodeOptions(map[string]any{"pixel_count": 2.5}, &o)
	assert.ErrorIs(t, err, ErrInvalidConfig)
	assert.Equal(t, 12, o.PixelCount, "rejected options must not be applied")
}

func TestConfig_Interval(t *testing.T) {
	assert.Equal(t, time.Second/60, Config{RefreshRate: 60}.Interval())
	assert.Equal(t, time.Second, Config{RefreshRate: 1}.Interval())
	assert.Equal(t, time.Second/DefaultRefreshRate, Config{}.Interval())
}

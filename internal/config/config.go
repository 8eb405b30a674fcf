// Package config loads the capture-graph configuration from YAML and the
// environment
package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Config represents the complete capture-graph configuration
type Config struct {
	Variant      string         `yaml:"variant"` // preview, record, screenshot
	Video        VideoConfig    `yaml:"video"`
	Audio        AudioConfig    `yaml:"audio"`
	Record       RecordConfig   `yaml:"record"`
	Snapshot     SnapshotConfig `yaml:"snapshot"`
	SettingsFile string         `yaml:"settings_file"`
	HTTP         HTTPConfig     `yaml:"http"`
	Log          LogConfig      `yaml:"log"`
}

// VideoConfig selects and configures the capture source
type VideoConfig struct {
	DevicePath string  `yaml:"device_path"` // substring of the device path
	Connector  string  `yaml:"connector"`   // Composite, SVideo, SerialDigital, ... ("" = no routing)
	Width      int     `yaml:"width"`       // 0 keeps the device default
	Height     int     `yaml:"height"`      // 0 keeps the device default
	FPS        float64 `yaml:"fps"`         // 0 keeps the device default
}

// AudioConfig selects the microphone for recording
type AudioConfig struct {
	DeviceName string `yaml:"device_name"` // substring of the display name ("" = video-only)
}

// RecordConfig configures the record-to-file variant
type RecordConfig struct {
	OutputPath  string `yaml:"output_path"`
	ProfilePath string `yaml:"profile_path"`
}

// SnapshotConfig configures picture export
type SnapshotConfig struct {
	OutputDir   string `yaml:"output_dir"`
	Format      string `yaml:"format"`       // png, jpeg, bmp
	JPEGQuality int    `yaml:"jpeg_quality"` // 1-100
}

// HTTPConfig configures the control API
type HTTPConfig struct {
	Listen                string `yaml:"listen"`
	SnapshotRatePerMinute int    `yaml:"snapshot_rate_per_minute"`
}

// LogConfig configures logging
type LogConfig struct {
	Level   string `yaml:"level"`
	Console bool   `yaml:"console"`
}

// Default returns the configuration used when nothing overrides it
func Default() Config {
	return Config{
		Variant: "preview",
		Snapshot: SnapshotConfig{
			OutputDir:   ".",
			Format:      "png",
			JPEGQuality: 90,
		},
		SettingsFile: "videosettings.yaml",
		HTTP: HTTPConfig{
			Listen:                "127.0.0.1:8086",
			SnapshotRatePerMinute: 30,
		},
		Log: LogConfig{Level: "info"},
	}
}

// Load reads defaults, the YAML file at path (optional when path is ""),
// CAPTURE_* environment overrides, and validates the result
func Load(path string) (*Config, error) {
	cfg, err := LoadUnvalidated(path)
	if err != nil {
		return nil, err
	}
	if err := Validate(cfg); err != nil {
		return nil, errors.Wrap(err, "invalid configuration")
	}
	return cfg, nil
}

// LoadUnvalidated is Load without validation, for callers that layer
// command-line flags on top before validating
func LoadUnvalidated(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.Wrap(err, "failed to read config file")
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, errors.Wrap(err, "failed to parse config")
		}
	}

	if err := applyEnv(&cfg, os.LookupEnv); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type lookupFunc func(string) (string, bool)

func applyEnv(cfg *Config, lookup lookupFunc) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok {
			*dst = strings.TrimSpace(v)
		}
	}
	integer := func(key string, dst *int) error {
		v, ok := lookup(key)
		if !ok {
			return nil
		}
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return errors.Wrapf(err, "%s", key)
		}
		*dst = n
		return nil
	}

	str("CAPTURE_VARIANT", &cfg.Variant)
	str("CAPTURE_VIDEO_DEVICE", &cfg.Video.DevicePath)
	str("CAPTURE_CONNECTOR", &cfg.Video.Connector)
	str("CAPTURE_AUDIO_DEVICE", &cfg.Audio.DeviceName)
	str("CAPTURE_OUTPUT", &cfg.Record.OutputPath)
	str("CAPTURE_PROFILE", &cfg.Record.ProfilePath)
	str("CAPTURE_SNAPSHOT_DIR", &cfg.Snapshot.OutputDir)
	str("CAPTURE_SNAPSHOT_FORMAT", &cfg.Snapshot.Format)
	str("CAPTURE_SETTINGS_FILE", &cfg.SettingsFile)
	str("CAPTURE_HTTP_LISTEN", &cfg.HTTP.Listen)
	str("CAPTURE_LOG_LEVEL", &cfg.Log.Level)

	if err := integer("CAPTURE_WIDTH", &cfg.Video.Width); err != nil {
		return err
	}
	if err := integer("CAPTURE_HEIGHT", &cfg.Video.Height); err != nil {
		return err
	}
	if err := integer("CAPTURE_JPEG_QUALITY", &cfg.Snapshot.JPEGQuality); err != nil {
		return err
	}
	if v, ok := lookup("CAPTURE_FPS"); ok {
		fps, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return errors.Wrap(err, "CAPTURE_FPS")
		}
		cfg.Video.FPS = fps
	}
	return nil
}

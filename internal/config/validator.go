package config

import (
	"strings"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/e7canasta/orion-care-sensor/modules/capture-graph/media"
)

const (
	minDimension = 32
	maxDimension = 4096
	minFPS       = 0.1
	maxFPS       = 60
)

// Validate checks if the configuration is valid and normalizes a few fields
func Validate(cfg *Config) error {
	cfg.Variant = strings.ToLower(strings.TrimSpace(cfg.Variant))
	switch cfg.Variant {
	case "preview", "record", "screenshot":
	case "":
		cfg.Variant = "preview"
	default:
		return errors.Errorf("variant must be preview, record or screenshot, got %q", cfg.Variant)
	}

	if cfg.Video.DevicePath == "" {
		return errors.New("video.device_path is required")
	}

	if err := validateDimension("video.width", cfg.Video.Width); err != nil {
		return err
	}
	if err := validateDimension("video.height", cfg.Video.Height); err != nil {
		return err
	}
	if (cfg.Video.Width == 0) != (cfg.Video.Height == 0) {
		return errors.New("video.width and video.height must be set together")
	}

	if cfg.Video.FPS != 0 && (cfg.Video.FPS < minFPS || cfg.Video.FPS > maxFPS) {
		return errors.Errorf("video.fps %.2f out of range (%.1f-%d)", cfg.Video.FPS, minFPS, maxFPS)
	}

	if cfg.Video.Connector != "" {
		if _, ok := media.ParseConnectorType(cfg.Video.Connector); !ok {
			return errors.Errorf("video.connector %q is not a known connector type", cfg.Video.Connector)
		}
	}

	if cfg.Variant == "record" && cfg.Record.OutputPath == "" {
		return errors.New("record.output_path is required for the record variant")
	}

	cfg.Snapshot.Format = strings.ToLower(cfg.Snapshot.Format)
	switch cfg.Snapshot.Format {
	case "png", "bmp":
	case "jpeg", "jpg":
		cfg.Snapshot.Format = "jpeg"
	case "":
		cfg.Snapshot.Format = "png"
	default:
		return errors.Errorf("snapshot.format must be png, jpeg or bmp, got %q", cfg.Snapshot.Format)
	}
	if cfg.Snapshot.JPEGQuality == 0 {
		cfg.Snapshot.JPEGQuality = 90
	}
	if cfg.Snapshot.JPEGQuality < 1 || cfg.Snapshot.JPEGQuality > 100 {
		return errors.Errorf("snapshot.jpeg_quality must be 1-100, got %d", cfg.Snapshot.JPEGQuality)
	}

	if cfg.HTTP.SnapshotRatePerMinute <= 0 {
		cfg.HTTP.SnapshotRatePerMinute = 30
	}

	if cfg.Log.Level != "" {
		if _, err := zerolog.ParseLevel(cfg.Log.Level); err != nil {
			return errors.Wrap(err, "log.level")
		}
	}

	return nil
}

func validateDimension(field string, v int) error {
	if v == 0 {
		return nil
	}
	if v < minDimension || v > maxDimension {
		return errors.Errorf("%s %d out of range (%d-%d)", field, v, minDimension, maxDimension)
	}
	return nil
}

// ConnectorType returns the parsed connector, ConnectorUnspecified when unset
func (c VideoConfig) ConnectorType() media.ConnectorType {
	ct, _ := media.ParseConnectorType(c.Connector)
	return ct
}

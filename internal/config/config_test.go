package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/e7canasta/orion-care-sensor/modules/capture-graph/media"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "capture.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, `
variant: record
video:
  device_path: /dev/video2
  connector: SVideo
  width: 1280
  height: 720
  fps: 25
audio:
  device_name: USB Audio
record:
  output_path: /tmp/lecture.mp4
  profile_path: /etc/capture/lecture.yaml
snapshot:
  format: JPG
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "record", cfg.Variant)
	assert.Equal(t, "/dev/video2", cfg.Video.DevicePath)
	assert.Equal(t, media.ConnectorSVideo, cfg.Video.ConnectorType())
	assert.Equal(t, 1280, cfg.Video.Width)
	assert.Equal(t, 25.0, cfg.Video.FPS)
	assert.Equal(t, "USB Audio", cfg.Audio.DeviceName)
	assert.Equal(t, "jpeg", cfg.Snapshot.Format)
	assert.Equal(t, 90, cfg.Snapshot.JPEGQuality)
	assert.Equal(t, "127.0.0.1:8086", cfg.HTTP.Listen)
}

func TestEnvOverrides(t *testing.T) {
	path := writeConfig(t, "video:\n  device_path: /dev/video0\n")

	t.Setenv("CAPTURE_VIDEO_DEVICE", "/dev/video4")
	t.Setenv("CAPTURE_WIDTH", "640")
	t.Setenv("CAPTURE_HEIGHT", "480")
	t.Setenv("CAPTURE_FPS", "15")
	t.Setenv("CAPTURE_VARIANT", "screenshot")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/dev/video4", cfg.Video.DevicePath)
	assert.Equal(t, 640, cfg.Video.Width)
	assert.Equal(t, 480, cfg.Video.Height)
	assert.Equal(t, 15.0, cfg.Video.FPS)
	assert.Equal(t, "screenshot", cfg.Variant)
}

func TestEnvOverrideParseError(t *testing.T) {
	t.Setenv("CAPTURE_WIDTH", "wide")
	_, err := LoadUnvalidated("")
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		cfg := Default()
		cfg.Video.DevicePath = "/dev/video0"
		return &cfg
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{name: "defaults with device", mutate: func(*Config) {}},
		{name: "missing device", mutate: func(c *Config) { c.Video.DevicePath = "" }, wantErr: true},
		{name: "unknown variant", mutate: func(c *Config) { c.Variant = "stream" }, wantErr: true},
		{name: "width too small", mutate: func(c *Config) { c.Video.Width, c.Video.Height = 16, 480 }, wantErr: true},
		{name: "height too large", mutate: func(c *Config) { c.Video.Width, c.Video.Height = 640, 5000 }, wantErr: true},
		{name: "width without height", mutate: func(c *Config) { c.Video.Width = 640 }, wantErr: true},
		{name: "fps too high", mutate: func(c *Config) { c.Video.FPS = 120 }, wantErr: true},
		{name: "fps too low", mutate: func(c *Config) { c.Video.FPS = 0.01 }, wantErr: true},
		{name: "unknown connector", mutate: func(c *Config) { c.Video.Connector = "HDMI-ish" }, wantErr: true},
		{name: "legacy connector spelling", mutate: func(c *Config) { c.Video.Connector = "Video_Composite" }},
		{name: "record without output", mutate: func(c *Config) { c.Variant = "record" }, wantErr: true},
		{name: "bad snapshot format", mutate: func(c *Config) { c.Snapshot.Format = "gif" }, wantErr: true},
		{name: "bad jpeg quality", mutate: func(c *Config) { c.Snapshot.JPEGQuality = 101 }, wantErr: true},
		{name: "bad log level", mutate: func(c *Config) { c.Log.Level = "loud" }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := Validate(cfg)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

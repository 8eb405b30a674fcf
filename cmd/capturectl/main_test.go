package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/e7canasta/orion-care-sensor/modules/capture-graph/internal/config"
	"github.com/e7canasta/orion-care-sensor/modules/capture-graph/media"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out, errOut bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetArgs(append([]string{"--dry-run", "--log-level", "error"}, args...))
	err := root.Execute()
	return out.String(), err
}

func TestGraphFlagsApply(t *testing.T) {
	tests := []struct {
		name    string
		variant string
		args    []string
		check   func(t *testing.T, cfg *config.Config)
		wantErr bool
	}{
		{
			name:    "flags override config",
			variant: "preview",
			args:    []string{"--device", "video2", "--connector", "svideo", "--width", "1280", "--height", "720", "--fps", "25"},
			check: func(t *testing.T, cfg *config.Config) {
				assert.Equal(t, "preview", cfg.Variant)
				assert.Equal(t, "video2", cfg.Video.DevicePath)
				assert.Equal(t, media.ConnectorSVideo, cfg.Video.ConnectorType())
				assert.Equal(t, 1280, cfg.Video.Width)
				assert.Equal(t, 720, cfg.Video.Height)
				assert.Equal(t, 25.0, cfg.Video.FPS)
			},
		},
		{
			name:    "unset flags keep config values",
			variant: "preview",
			args:    nil,
			check: func(t *testing.T, cfg *config.Config) {
				assert.Equal(t, "/dev/video9", cfg.Video.DevicePath)
				assert.Equal(t, 640, cfg.Video.Width)
			},
		},
		{
			name:    "record needs an output",
			variant: "record",
			args:    []string{"--audio", "USB"},
			wantErr: true,
		},
		{
			name:    "record flags",
			variant: "record",
			args:    []string{"-o", "out.mp4", "--audio", "USB", "--profile", "lecture.yaml"},
			check: func(t *testing.T, cfg *config.Config) {
				assert.Equal(t, "record", cfg.Variant)
				assert.Equal(t, "out.mp4", cfg.Record.OutputPath)
				assert.Equal(t, "USB", cfg.Audio.DeviceName)
				assert.Equal(t, "lecture.yaml", cfg.Record.ProfilePath)
			},
		},
		{
			name:    "width without height",
			variant: "preview",
			args:    []string{"--width", "320", "--height", "0"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.Default()
			cfg.Video.DevicePath = "/dev/video9"
			cfg.Video.Width, cfg.Video.Height = 640, 480

			flags := &graphFlags{}
			cmd := &cobra.Command{Use: tt.variant}
			flags.register(cmd, tt.variant)
			require.NoError(t, cmd.ParseFlags(tt.args))

			err := flags.apply(cmd, &cfg, tt.variant)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			tt.check(t, &cfg)
		})
	}
}

func TestOptionsFromConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Video.DevicePath = "video0"
	cfg.Video.Connector = "Composite"
	cfg.Audio.DeviceName = "USB"
	cfg.Record.OutputPath = "out.mp4"

	cfg.Variant = "preview"
	opts := optionsFromConfig(&cfg)
	assert.Equal(t, "video0", opts.VideoDevicePath)
	assert.Equal(t, media.ConnectorComposite, opts.Connector)
	assert.Empty(t, opts.AudioDeviceName, "audio only applies to record")
	assert.Empty(t, opts.OutputPath)

	cfg.Variant = "record"
	opts = optionsFromConfig(&cfg)
	assert.Equal(t, "USB", opts.AudioDeviceName)
	assert.Equal(t, "out.mp4", opts.OutputPath)
}

func TestDevicesCommand(t *testing.T) {
	out, err := execute(t, "devices")
	require.NoError(t, err)
	assert.Contains(t, out, "NAME")
	assert.Contains(t, out, "USB Capture HDMI")
	assert.Contains(t, out, "/dev/video0")

	out, err = execute(t, "devices", "--category", "audio")
	require.NoError(t, err)
	assert.Contains(t, out, "hw:1,0")

	_, err = execute(t, "devices", "--category", "midi")
	assert.Error(t, err)
}

func TestSettingsCommands(t *testing.T) {
	file := filepath.Join(t.TempDir(), "videosettings.yaml")

	out, err := execute(t, "settings", "sync", "--file", file)
	require.NoError(t, err)
	assert.Contains(t, out, "/dev/video0")
	assert.Contains(t, out, "SerialDigital")
	_, err = os.Stat(file)
	require.NoError(t, err)

	out, err = execute(t, "settings", "set", "/dev/video0", "--file", file, "--enabled", "--connector", "svideo")
	require.NoError(t, err)
	assert.Contains(t, out, "SVideo")
	assert.Contains(t, out, "true")

	out, err = execute(t, "settings", "list", "--file", file)
	require.NoError(t, err)
	assert.Contains(t, out, "SVideo")

	_, err = execute(t, "settings", "set", "/dev/video7", "--file", file, "--enabled")
	assert.Error(t, err, "unknown device")

	_, err = execute(t, "settings", "set", "/dev/video0", "--file", file)
	assert.Error(t, err, "no field to set")

	_, err = execute(t, "settings", "set", "/dev/video0", "--file", file, "--connector", "hdmi-ish")
	assert.Error(t, err)
}

func TestSettingsImport(t *testing.T) {
	dir := t.TempDir()
	legacy := filepath.Join(dir, "videosettings.txt")
	require.NoError(t, os.WriteFile(legacy, []byte(strings.Join([]string{
		"/dev/video0;USB Capture HDMI;True;False;Video_SVideo",
		"/dev/video1;Document Camera;False;True;Unknown",
	}, "\n")), 0o644))
	file := filepath.Join(dir, "videosettings.yaml")

	out, err := execute(t, "settings", "import", legacy, "--file", file)
	require.NoError(t, err)
	assert.Contains(t, out, "Document Camera")
	assert.Contains(t, out, "SVideo")
}

func TestPreferredConnector(t *testing.T) {
	file := filepath.Join(t.TempDir(), "videosettings.yaml")
	_, err := execute(t, "settings", "sync", "--file", file)
	require.NoError(t, err)
	_, err = execute(t, "settings", "set", "/dev/video0", "--file", file, "--connector", "composite")
	require.NoError(t, err)

	a := &app{dryRun: true}
	require.NoError(t, a.setup())
	rt, err := a.runtime()
	require.NoError(t, err)

	cfg := config.Default()
	cfg.Video.DevicePath = "video0"
	cfg.SettingsFile = file
	assert.Equal(t, media.ConnectorComposite, a.preferredConnector(t.Context(), rt, &cfg))

	cfg.SettingsFile = filepath.Join(t.TempDir(), "missing.yaml")
	assert.Equal(t, media.ConnectorUnspecified, a.preferredConnector(t.Context(), rt, &cfg))
}

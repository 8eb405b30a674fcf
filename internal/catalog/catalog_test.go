package catalog

import (
	"context"
	"testing"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/e7canasta/orion-care-sensor/modules/capture-graph/media"
	"github.com/e7canasta/orion-care-sensor/modules/capture-graph/media/mediatest"
)

func newRuntime() *mediatest.Runtime {
	rt := mediatest.New()
	rt.VideoDevices = []media.Device{
		{Name: "Integrated Camera", Path: "/dev/video0", Category: media.CategoryVideoInput},
		{Name: "AVerMedia C985", Path: "/dev/video2", Category: media.CategoryVideoInput},
		{Name: "AVerMedia C985", Path: "/dev/video4", Category: media.CategoryVideoInput},
	}
	rt.AudioDevices = []media.Device{
		{Name: "Микрофон (USB Audio)", Path: "hw:2,0", Category: media.CategoryAudioInput},
		{Name: "Line In (AVerMedia)", Path: "hw:3,0", Category: media.CategoryAudioInput},
	}
	return rt
}

func TestResolveByPath(t *testing.T) {
	c := New(newRuntime(), zerolog.Nop())
	ctx := context.Background()

	tests := []struct {
		name     string
		path     string
		wantName string
		wantPath string
		wantErr  error
	}{
		{name: "exact", path: "/dev/video2", wantName: "AVerMedia C985", wantPath: "/dev/video2"},
		{name: "substring", path: "video4", wantName: "AVerMedia C985", wantPath: "/dev/video4"},
		{name: "case-insensitive", path: "/DEV/VIDEO0", wantName: "Integrated Camera", wantPath: "/dev/video0"},
		{name: "first match wins", path: "/dev/video", wantPath: "/dev/video0", wantName: "Integrated Camera"},
		{name: "missing", path: "/dev/video9", wantErr: media.ErrDeviceNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dev, err := c.ResolveByPath(ctx, media.CategoryVideoInput, tt.path)
			if tt.wantErr != nil {
				require.Error(t, err)
				assert.True(t, errors.Is(err, tt.wantErr))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantName, dev.Name)
			assert.Equal(t, tt.wantPath, dev.Path)
		})
	}
}

func TestResolveByName(t *testing.T) {
	c := New(newRuntime(), zerolog.Nop())
	ctx := context.Background()

	dev, ok, err := c.ResolveByName(ctx, media.CategoryAudioInput, "микрофон")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "hw:2,0", dev.Path)

	dev, ok, err = c.ResolveByName(ctx, media.CategoryAudioInput, "line in")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "hw:3,0", dev.Path)

	_, ok, err = c.ResolveByName(ctx, media.CategoryAudioInput, "Headset")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestEnumerateIsNeverCached(t *testing.T) {
	rt := newRuntime()
	c := New(rt, zerolog.Nop())
	ctx := context.Background()

	_, err := c.ResolveByPath(ctx, media.CategoryVideoInput, "/dev/video9")
	require.Error(t, err)

	rt.VideoDevices = append(rt.VideoDevices, media.Device{
		Name: "Hotplugged", Path: "/dev/video9", Category: media.CategoryVideoInput,
	})

	dev, err := c.ResolveByPath(ctx, media.CategoryVideoInput, "/dev/video9")
	require.NoError(t, err)
	assert.Equal(t, "Hotplugged", dev.Name)
	assert.Equal(t, 2, rt.ListCalls())
}

func TestEnumerationFailure(t *testing.T) {
	rt := newRuntime()
	rt.ListErr = errors.New("monitor failed")
	c := New(rt, zerolog.Nop())
	ctx := context.Background()

	_, err := c.ResolveByPath(ctx, media.CategoryVideoInput, "/dev/video0")
	require.Error(t, err)
	assert.False(t, errors.Is(err, media.ErrDeviceNotFound))

	_, ok, err := c.ResolveByName(ctx, media.CategoryAudioInput, "mic")
	require.Error(t, err)
	assert.False(t, ok)
}

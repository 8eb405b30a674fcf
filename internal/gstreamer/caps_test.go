package gstreamer

import (
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"

	"github.com/e7canasta/orion-care-sensor/modules/capture-graph/media"
)

type fakeStructure struct {
	name   string
	fields map[string]interface{}
}

func (s fakeStructure) Name() string { return s.name }

func (s fakeStructure) GetValue(key string) (interface{}, error) {
	v, ok := s.fields[key]
	if !ok {
		return nil, errors.Errorf("no field %s", key)
	}
	return v, nil
}

func TestVideoCaps(t *testing.T) {
	tests := []struct {
		name   string
		format media.VideoFormat
		want   string
	}{
		{"empty request", media.VideoFormat{}, "video/x-raw"},
		{"pixel only", media.VideoFormat{Pixel: media.PixelBGR24}, "video/x-raw,format=BGR"},
		{"size", media.VideoFormat{Width: 1280, Height: 720}, "video/x-raw,width=1280,height=720"},
		{"half size ignored", media.VideoFormat{Width: 1280}, "video/x-raw"},
		{
			"size and rate",
			media.VideoFormat{Width: 640, Height: 480, FrameInterval: media.FrameIntervalFor(30)},
			"video/x-raw,width=640,height=480,framerate=30/1",
		},
		{"mjpeg", media.VideoFormat{Pixel: media.PixelMJPEG, Width: 1920, Height: 1080}, "image/jpeg,width=1920,height=1080"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, videoCaps(tt.format))
		})
	}
}

func TestFramerateFraction(t *testing.T) {
	tests := []struct {
		fps float64
		num int
		den int
	}{
		{30, 30, 1},
		{25, 25, 1},
		{60, 60, 1},
		{1, 1, 1},
		{0.5, 1, 2},
		{0.25, 1, 4},
		{29.97, 2997, 100},
		{7.5, 15, 2},
	}

	for _, tt := range tests {
		num, den := framerateFraction(media.FrameIntervalFor(tt.fps))
		assert.Equal(t, tt.num, num, "fps %v numerator", tt.fps)
		assert.Equal(t, tt.den, den, "fps %v denominator", tt.fps)
	}
}

func TestFormatFromStructure(t *testing.T) {
	raw := fakeStructure{name: "video/x-raw", fields: map[string]interface{}{
		"format": "YUY2",
		"width":  1280,
		"height": int32(720),
	}}
	f := formatFromStructure(raw)
	assert.Equal(t, media.PixelYUY2, f.Pixel)
	assert.Equal(t, 16, f.BitCount)
	assert.Equal(t, 1280, f.Width)
	assert.Equal(t, 720, f.Height)
	assert.Equal(t, "video", f.MediaType)

	jpeg := fakeStructure{name: "image/jpeg", fields: map[string]interface{}{"width": 1920, "height": 1080}}
	f = formatFromStructure(jpeg)
	assert.Equal(t, media.PixelMJPEG, f.Pixel)
	assert.Equal(t, 1920, f.Width)

	// Ranges come back as non-integer values and are left unspecified.
	ranged := fakeStructure{name: "video/x-raw", fields: map[string]interface{}{"width": "[ 1, 2147483647 ]"}}
	f = formatFromStructure(ranged)
	assert.Zero(t, f.Width)
	assert.Zero(t, f.Height)
}

func TestWithLayout(t *testing.T) {
	tests := []struct {
		name       string
		width      int
		wantStride int
	}{
		{"aligned", 640, 1920},
		{"padded to four bytes", 641, 1924},
		{"odd", 3, 12},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := withLayout(media.VideoFormat{Pixel: media.PixelBGR24, Width: tt.width, Height: 10})
			assert.Equal(t, 24, f.BitCount)
			assert.Equal(t, tt.wantStride, f.Stride)
			assert.Equal(t, tt.wantStride*10, f.ImageSize)
			assert.True(t, f.TopDown)
		})
	}

	f := withLayout(media.VideoFormat{Pixel: media.PixelI420, Width: 640, Height: 480, FrameInterval: 40 * time.Millisecond})
	assert.Zero(t, f.Stride, "planar formats carry no single stride")
	assert.Equal(t, 40*time.Millisecond, f.FrameInterval)
}

func TestDevicePath(t *testing.T) {
	tests := []struct {
		name   string
		fields map[string]interface{}
		want   string
	}{
		{"v4l2 device", map[string]interface{}{"device.path": "/dev/video0", "api.v4l2.path": "/dev/video9"}, "/dev/video0"},
		{"pipewire node", map[string]interface{}{"object.path": "v4l2:/dev/video2"}, "v4l2:/dev/video2"},
		{"empty values skipped", map[string]interface{}{"device.path": "", "node.name": "alsa_input.usb"}, "alsa_input.usb"},
		{"non-string skipped", map[string]interface{}{"device.path": 3}, ""},
		{"nothing", map[string]interface{}{}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, devicePath(fakeStructure{fields: tt.fields}))
		})
	}
}

package capturegraph_test

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	capturegraph "github.com/e7canasta/orion-care-sensor/modules/capture-graph"
	"github.com/e7canasta/orion-care-sensor/modules/capture-graph/media"
	"github.com/e7canasta/orion-care-sensor/modules/capture-graph/media/mediatest"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var errBoom = errors.New("boom")

// recorder is a Sink collecting every event
type recorder struct {
	mu     sync.Mutex
	events []capturegraph.Event
}

func (r *recorder) Notify(ev capturegraph.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recorder) ofKind(kind capturegraph.EventKind) []capturegraph.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []capturegraph.Event
	for _, ev := range r.events {
		if ev.Kind == kind {
			out = append(out, ev)
		}
	}
	return out
}

func (r *recorder) warningKinds() []capturegraph.WarningKind {
	var out []capturegraph.WarningKind
	for _, ev := range r.ofKind(capturegraph.EventWarning) {
		out = append(out, ev.Warning.Kind)
	}
	return out
}

func deps(rt media.Runtime, sink capturegraph.Sink) capturegraph.Deps {
	nop := zerolog.Nop()
	return capturegraph.Deps{Runtime: rt, Sink: sink, Logger: &nop}
}

func build(t *testing.T, rt *mediatest.Runtime, variant capturegraph.Variant, opts capturegraph.Options) (*capturegraph.Graph, *recorder) {
	t.Helper()
	rec := &recorder{}
	g, err := capturegraph.Build(context.Background(), deps(rt, rec), variant, opts)
	require.NoError(t, err)
	t.Cleanup(func() { _ = g.Close() })
	return g, rec
}

func flush(t *testing.T, g *capturegraph.Graph) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, g.Flush(ctx))
}

func writeProfile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "profile.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

const validProfile = `
name: lecture-720p
container: mp4mux
video:
  encoder: x264enc
  bitrate_kbps: 2500
audio:
  encoder: avenc_aac
  bitrate_kbps: 128
`

func TestBuildPreview(t *testing.T) {
	rt := mediatest.New()
	g, _ := build(t, rt, capturegraph.VariantPreview, capturegraph.Options{VideoDevicePath: "VIDEO0"})

	assert.Equal(t, capturegraph.StateStopped, g.State())
	assert.Equal(t, capturegraph.VariantPreview, g.Variant())
	assert.Equal(t, "/dev/video0", g.Device().Path)
	assert.NotEmpty(t, g.ID())
	assert.Equal(t, []capturegraph.Link{
		{Out: "USB Capture HDMI.Capture", In: "duplicator.Input"},
		{Out: "duplicator.Preview", In: "renderer"},
	}, g.Topology())

	p := rt.Last()
	assert.Equal(t, []string{"duplicator.Preview"}, p.Renders())
	assert.Nil(t, p.NodeOfKind(media.NodeFileWriter))
	assert.Nil(t, p.NodeOfKind(media.NodeFrameProbe))

	_, ok := g.SnapshotFormat()
	assert.False(t, ok)
	_, err := g.RequestSnapshot()
	assert.ErrorIs(t, err, capturegraph.ErrSnapshotUnsupported)
}

func TestBuildRecord(t *testing.T) {
	valid := writeProfile(t, validProfile)
	invalid := writeProfile(t, "name: [unterminated\n")
	missing := filepath.Join(t.TempDir(), "absent.yaml")

	tests := []struct {
		name         string
		audio        string
		profile      string
		wantAudio    bool
		wantProfile  bool
		wantWarnings []capturegraph.WarningKind
	}{
		{
			name:        "audio and profile",
			audio:       "hdmi audio",
			profile:     valid,
			wantAudio:   true,
			wantProfile: true,
		},
		{
			name:         "audio device absent",
			audio:        "Blue Yeti",
			profile:      valid,
			wantProfile:  true,
			wantWarnings: []capturegraph.WarningKind{capturegraph.WarnNoAudioDevice},
		},
		{
			name:         "invalid profile",
			audio:        "hdmi audio",
			profile:      invalid,
			wantAudio:    true,
			wantWarnings: []capturegraph.WarningKind{capturegraph.WarnProfileUnavailable},
		},
		{
			name:         "missing profile file, no microphone requested",
			profile:      missing,
			wantWarnings: []capturegraph.WarningKind{capturegraph.WarnProfileUnavailable},
		},
		{
			name: "no profile requested",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rt := mediatest.New()
			out := filepath.Join(t.TempDir(), "lecture.mp4")
			g, rec := build(t, rt, capturegraph.VariantRecord, capturegraph.Options{
				VideoDevicePath: "/dev/video0",
				AudioDeviceName: tt.audio,
				OutputPath:      out,
				ProfilePath:     tt.profile,
			})

			p := rt.Last()
			writer, ok := p.NodeOfKind(media.NodeFileWriter).(*mediatest.Writer)
			require.True(t, ok)

			assert.True(t, writer.Port("Video").Connected())
			assert.Equal(t, tt.wantAudio, writer.Port("Audio").Connected())
			assert.Equal(t, out, writer.FileName())
			assert.Equal(t, []string{"duplicator.Preview"}, p.Renders())

			if tt.wantProfile {
				require.NotNil(t, writer.Profile())
				assert.Equal(t, "lecture-720p", writer.Profile().Name)
				assert.Same(t, writer.Profile(), g.Profile())
			} else {
				assert.Nil(t, writer.Profile())
				assert.Nil(t, g.Profile())
			}

			dev, found := g.AudioDevice()
			assert.Equal(t, tt.wantAudio, found)
			if tt.wantAudio {
				assert.Equal(t, "hw:1,0", dev.Path)
			}

			flush(t, g)
			assert.ElementsMatch(t, tt.wantWarnings, rec.warningKinds())
		})
	}
}

func TestBuildRecordTopology(t *testing.T) {
	rt := mediatest.New()
	g, _ := build(t, rt, capturegraph.VariantRecord, capturegraph.Options{
		VideoDevicePath: "/dev/video0",
		AudioDeviceName: "HDMI Audio",
		OutputPath:      "/tmp/out.mp4",
	})

	assert.Equal(t, []capturegraph.Link{
		{Out: "USB Capture HDMI.Capture", In: "duplicator.Input"},
		{Out: "duplicator.Capture", In: "writer.Video"},
		{Out: "USB Capture HDMI Audio.Capture", In: "writer.Audio"},
		{Out: "duplicator.Preview", In: "renderer"},
	}, g.Topology())
}

func TestBuildRecordWithoutFileSink(t *testing.T) {
	rt := mediatest.New()
	rt.NoFileSink = true

	_, err := capturegraph.Build(context.Background(), deps(rt, nil), capturegraph.VariantRecord, capturegraph.Options{
		VideoDevicePath: "/dev/video0",
		OutputPath:      "/tmp/out.mp4",
	})
	require.Error(t, err)

	var be *capturegraph.BuildError
	require.ErrorAs(t, err, &be)
	assert.Equal(t, "set output file", be.Step)
	assert.Equal(t, capturegraph.VariantRecord, be.Variant)
	assert.ErrorIs(t, err, capturegraph.ErrCapabilityMissing)

	p := rt.Last()
	assert.Equal(t, []string{"writer", "duplicator", "USB Capture HDMI"}, p.Removed())
	assert.True(t, p.Closed())
}

func TestBuildFailureReleasesNodes(t *testing.T) {
	tests := []struct {
		name        string
		variant     capturegraph.Variant
		fail        mediatest.Op
		wantStep    string
		wantRemoved []string
	}{
		{
			name:        "render probe output",
			variant:     capturegraph.VariantScreenshot,
			fail:        mediatest.OpRender,
			wantStep:    "render probe output",
			wantRemoved: []string{"probe", "duplicator", "USB Capture HDMI"},
		},
		{
			name:        "connect source",
			variant:     capturegraph.VariantPreview,
			fail:        mediatest.OpConnect,
			wantStep:    "connect source to duplicator",
			wantRemoved: []string{"duplicator", "USB Capture HDMI"},
		},
		{
			name:        "add duplicator",
			variant:     capturegraph.VariantPreview,
			fail:        mediatest.OpAddDuplicator,
			wantStep:    "add duplicator",
			wantRemoved: []string{"USB Capture HDMI"},
		},
		{
			name:     "add source",
			variant:  capturegraph.VariantPreview,
			fail:     mediatest.OpAddSource,
			wantStep: "add video source",
		},
		{
			name:        "probe format readback",
			variant:     capturegraph.VariantScreenshot,
			fail:        mediatest.OpProbeFormat,
			wantStep:    "read negotiated probe format",
			wantRemoved: []string{"probe", "duplicator", "USB Capture HDMI"},
		},
		{
			name:        "apply profile",
			variant:     capturegraph.VariantRecord,
			fail:        mediatest.OpApplyProfile,
			wantStep:    "apply encoding profile",
			wantRemoved: []string{"writer", "duplicator", "USB Capture HDMI"},
		},
	}

	profilePath := writeProfile(t, validProfile)

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rt := mediatest.New()
			rt.Fail = map[mediatest.Op]error{tt.fail: errBoom}
			rec := &recorder{}

			g, err := capturegraph.Build(context.Background(), deps(rt, rec), tt.variant, capturegraph.Options{
				VideoDevicePath: "/dev/video0",
				OutputPath:      "/tmp/out.mp4",
				ProfilePath:     profilePath,
			})
			require.Error(t, err)
			assert.Nil(t, g)

			var be *capturegraph.BuildError
			require.ErrorAs(t, err, &be)
			assert.Equal(t, tt.wantStep, be.Step)
			assert.ErrorIs(t, err, errBoom)

			p := rt.Last()
			assert.Equal(t, tt.wantRemoved, p.Removed())
			assert.True(t, p.Closed())
			assert.Empty(t, p.Nodes())
		})
	}
}

func TestBuildDeviceNotFound(t *testing.T) {
	rt := mediatest.New()
	_, err := capturegraph.Build(context.Background(), deps(rt, nil), capturegraph.VariantPreview, capturegraph.Options{
		VideoDevicePath: "/dev/video9",
	})

	assert.ErrorIs(t, err, capturegraph.ErrDeviceNotFound)
	var be *capturegraph.BuildError
	require.ErrorAs(t, err, &be)
	assert.Equal(t, "resolve video device", be.Step)
	assert.True(t, rt.Last().Closed())
	assert.Empty(t, rt.Last().Removed())
}

func TestBuildValidatesOptions(t *testing.T) {
	tests := []struct {
		name    string
		variant capturegraph.Variant
		opts    capturegraph.Options
	}{
		{name: "no device", variant: capturegraph.VariantPreview},
		{name: "width only", variant: capturegraph.VariantPreview, opts: capturegraph.Options{VideoDevicePath: "video0", Width: 640}},
		{name: "negative fps", variant: capturegraph.VariantPreview, opts: capturegraph.Options{VideoDevicePath: "video0", FrameRate: -1}},
		{name: "record without output", variant: capturegraph.VariantRecord, opts: capturegraph.Options{VideoDevicePath: "video0"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rt := mediatest.New()
			_, err := capturegraph.Build(context.Background(), deps(rt, nil), tt.variant, tt.opts)
			var be *capturegraph.BuildError
			require.ErrorAs(t, err, &be)
			assert.Equal(t, "validate options", be.Step)
			assert.Nil(t, rt.Last(), "no pipeline is created for invalid options")
		})
	}
}

func TestBuildUnknownVariant(t *testing.T) {
	_, err := capturegraph.Build(context.Background(), deps(mediatest.New(), nil), "stream", capturegraph.Options{VideoDevicePath: "video0"})
	assert.ErrorIs(t, err, capturegraph.ErrUnknownVariant)

	v, err := capturegraph.ParseVariant(" Record ")
	require.NoError(t, err)
	assert.Equal(t, capturegraph.VariantRecord, v)

	_, err = capturegraph.ParseVariant("stream")
	assert.ErrorIs(t, err, capturegraph.ErrUnknownVariant)
}

func TestConfigureStream(t *testing.T) {
	t.Run("size and frame rate committed", func(t *testing.T) {
		rt := mediatest.New()
		build(t, rt, capturegraph.VariantPreview, capturegraph.Options{
			VideoDevicePath: "/dev/video0",
			Width:           640,
			Height:          480,
			FrameRate:       15,
		})

		src, ok := rt.Last().NodeOfKind(media.NodeVideoSource).(*mediatest.Source)
		require.True(t, ok)
		f, err := src.Format()
		require.NoError(t, err)
		assert.Equal(t, 640, f.Width)
		assert.Equal(t, 480, f.Height)
		assert.Equal(t, media.FrameIntervalFor(15), f.FrameInterval)
		assert.Equal(t, media.PixelYUY2, f.Pixel, "other fields are kept")
		assert.Equal(t, 1, src.Commits())
	})

	t.Run("nothing requested", func(t *testing.T) {
		rt := mediatest.New()
		build(t, rt, capturegraph.VariantPreview, capturegraph.Options{VideoDevicePath: "/dev/video0"})
		src := rt.Last().NodeOfKind(media.NodeVideoSource).(*mediatest.Source)
		assert.Equal(t, 0, src.Commits())
	})

	t.Run("unsupported is a build error", func(t *testing.T) {
		rt := mediatest.New()
		rt.NoStreamConfig = true
		_, err := capturegraph.Build(context.Background(), deps(rt, nil), capturegraph.VariantPreview, capturegraph.Options{
			VideoDevicePath: "/dev/video0",
			FrameRate:       25,
		})
		assert.ErrorIs(t, err, capturegraph.ErrCapabilityMissing)
	})

	t.Run("committed before the source is connected", func(t *testing.T) {
		rt := mediatest.New()
		rt.Fail = map[mediatest.Op]error{mediatest.OpSetFormat: errBoom}
		_, err := capturegraph.Build(context.Background(), deps(rt, nil), capturegraph.VariantPreview, capturegraph.Options{
			VideoDevicePath: "/dev/video0",
			Width:           640,
			Height:          480,
		})
		var be *capturegraph.BuildError
		require.ErrorAs(t, err, &be)
		assert.Equal(t, "commit stream format", be.Step)
		assert.Empty(t, rt.Last().Connections())
	})
}

func TestBuildRoutesConnector(t *testing.T) {
	rt := mediatest.New()
	rt.Crossbar = &mediatest.Crossbar{
		Outputs: 2,
		Inputs:  []media.ConnectorType{media.ConnectorComposite, media.ConnectorSVideo},
		RouteErr: map[[2]int]error{
			{1, 1}: errBoom,
		},
	}

	g, rec := build(t, rt, capturegraph.VariantPreview, capturegraph.Options{
		VideoDevicePath: "/dev/video0",
		Connector:       media.ConnectorSVideo,
	})

	assert.Equal(t, [][2]int{{0, 1}}, rt.Crossbar.Routes())
	res := g.Routing()
	require.Len(t, res.Warnings, 1)

	flush(t, g)
	warnings := rec.ofKind(capturegraph.EventWarning)
	require.Len(t, warnings, 1)
	assert.Equal(t, capturegraph.WarnRouteFailed, warnings[0].Warning.Kind)
	assert.ErrorIs(t, warnings[0].Warning.Err, errBoom)
	assert.Equal(t, g.ID(), warnings[0].GraphID)
}

func TestBuildRoutingQueryFailure(t *testing.T) {
	rt := mediatest.New()
	rt.Crossbar = &mediatest.Crossbar{QueryErr: errBoom}

	_, err := capturegraph.Build(context.Background(), deps(rt, nil), capturegraph.VariantPreview, capturegraph.Options{
		VideoDevicePath: "/dev/video0",
		Connector:       media.ConnectorComposite,
	})
	var be *capturegraph.BuildError
	require.ErrorAs(t, err, &be)
	assert.Equal(t, "route connector", be.Step)
}

func TestBuildLocalizedSourceOutput(t *testing.T) {
	rt := mediatest.New()
	rt.SourceOutputs = []string{"Просмотр", "Запись"}

	g, _ := build(t, rt, capturegraph.VariantPreview, capturegraph.Options{VideoDevicePath: "/dev/video0"})
	assert.Equal(t, "USB Capture HDMI.Запись", g.Topology()[0].Out)
}

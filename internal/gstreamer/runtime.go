// Package gstreamer is the production media.Runtime, built on go-gst
//
// Devices are enumerated with a GstDeviceMonitor, one fresh monitor per call.
// Each media node maps to a short element chain:
//
//	video source: <device element> → capsfilter
//	audio source: <device element> → audioconvert → audioresample
//	duplicator:   tee → queue (Capture), tee → queue (Preview)
//	file writer:  videoconvert → encoder → muxer → filesink
//	              audioconvert → encoder ↗          (when connected)
//	frame probe:  videoconvert → capsfilter (buffer probe on src)
//	renderer:     autovideosink
//
// Capture devices expose no crossbar here; connector selection is a
// driver-level setting on Linux, so video sources do not implement
// media.RoutingProvider.
package gstreamer

import (
	"context"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/tinyzimmer/go-gst/gst"

	"github.com/e7canasta/orion-care-sensor/modules/capture-graph/media"
)

// Device classes as advertised by GStreamer device providers
const (
	classVideoSource = "Video/Source"
	classAudioSource = "Audio/Source"
)

// pathProperties are device properties that carry a stable path, in order
// of preference
var pathProperties = []string{
	"device.path",
	"api.v4l2.path",
	"object.path",
	"api.alsa.path",
	"node.name",
}

// Runtime implements media.Runtime over GStreamer
type Runtime struct {
	log zerolog.Logger
}

// Available initializes GStreamer and checks that core elements can be
// created
func Available() error {
	gst.Init(nil)
	elem, err := gst.NewElement("fakesrc")
	if err != nil {
		return errors.Wrap(err, "gstreamer core elements unavailable")
	}
	_ = elem.SetState(gst.StateNull)
	return nil
}

// New returns a runtime, failing when GStreamer cannot be initialized
func New(log zerolog.Logger) (*Runtime, error) {
	if err := Available(); err != nil {
		return nil, err
	}
	return &Runtime{log: log}, nil
}

// NewPipeline creates an empty pipeline and starts its bus monitor
func (r *Runtime) NewPipeline(name string) (media.Pipeline, error) {
	return newPipeline(r, name)
}

// Devices enumerates capture devices of a category
func (r *Runtime) Devices(ctx context.Context, category media.Category) ([]media.Device, error) {
	gdevs, err := r.probe(ctx, category)
	if err != nil {
		return nil, err
	}
	out := make([]media.Device, 0, len(gdevs))
	for _, d := range gdevs {
		out = append(out, describe(d, category))
	}
	r.log.Debug().
		Str("category", category.String()).
		Int("count", len(out)).
		Msg("gstreamer: devices enumerated")
	return out, nil
}

func (r *Runtime) probe(ctx context.Context, category media.Category) ([]*gst.Device, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	class := classVideoSource
	if category == media.CategoryAudioInput {
		class = classAudioSource
	}
	monitor := gst.NewDeviceMonitor()
	if monitor == nil {
		return nil, errors.New("create device monitor")
	}
	monitor.AddFilter(class, nil)
	return monitor.GetDevices(), nil
}

func describe(d *gst.Device, category media.Category) media.Device {
	name := d.GetDisplayName()
	path := ""
	if props := d.GetProperties(); props != nil {
		path = devicePath(props)
	}
	if path == "" {
		path = name
	}
	return media.Device{Name: name, Path: path, Category: category}
}

// valueReader is the part of *gst.Structure property lookup needs
type valueReader interface {
	GetValue(key string) (interface{}, error)
}

// devicePath returns the first non-empty path property
func devicePath(props valueReader) string {
	for _, key := range pathProperties {
		v, err := props.GetValue(key)
		if err != nil {
			continue
		}
		if s, ok := v.(string); ok && s != "" {
			return s
		}
	}
	return ""
}

// sourceElement instantiates the capture element for dev and returns the
// caps the device advertises
//
// The device provider's own element is preferred. When the device has
// disappeared from the monitor a plain v4l2src/pulsesrc targeting the path is
// used, so a path that is valid but unlisted still works.
func (r *Runtime) sourceElement(dev media.Device) (*gst.Element, *gst.Caps, error) {
	gdevs, err := r.probe(context.Background(), dev.Category)
	if err != nil {
		return nil, nil, err
	}
	for _, d := range gdevs {
		if describe(d, dev.Category).Path != dev.Path {
			continue
		}
		if elem := d.CreateElement(""); elem != nil {
			return elem, d.GetCaps(), nil
		}
	}

	factory, prop := "v4l2src", "device"
	if dev.Category == media.CategoryAudioInput {
		factory = "pulsesrc"
	}
	elem, err := gst.NewElement(factory)
	if err != nil {
		return nil, nil, errors.Wrapf(err, "create %s for %s", factory, dev.Path)
	}
	if err := elem.SetProperty(prop, dev.Path); err != nil {
		return nil, nil, errors.Wrapf(err, "%s: set device %s", factory, dev.Path)
	}
	r.log.Debug().
		Str("device", dev.Path).
		Str("factory", factory).
		Msg("gstreamer: device not listed by monitor, using plain source element")
	return elem, nil, nil
}

var (
	_ media.Runtime       = (*Runtime)(nil)
	_ media.Pipeline      = (*Pipeline)(nil)
	_ media.ErrorReporter = (*Pipeline)(nil)

	_ media.StreamConfigurer  = (*sourceNode)(nil)
	_ media.FileSink          = (*writerNode)(nil)
	_ media.ProfileConfigurer = (*writerNode)(nil)
	_ media.FrameProbe        = (*probeNode)(nil)
)

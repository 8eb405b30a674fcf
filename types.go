package capturegraph

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"

	"github.com/e7canasta/orion-care-sensor/modules/capture-graph/internal/crossbar"
	"github.com/e7canasta/orion-care-sensor/modules/capture-graph/internal/graphstate"
	"github.com/e7canasta/orion-care-sensor/modules/capture-graph/internal/notify"
	"github.com/e7canasta/orion-care-sensor/modules/capture-graph/internal/snapshot"
	"github.com/e7canasta/orion-care-sensor/modules/capture-graph/media"
)

// Variant selects the consumer topology built off the duplicator
type Variant string

const (
	// VariantPreview renders the duplicator's preview output
	VariantPreview Variant = "preview"
	// VariantRecord writes video (and audio when a microphone matches) to a
	// file and renders the preview output
	VariantRecord Variant = "record"
	// VariantScreenshot passes the preview output through a frame probe for
	// on-demand snapshots and renders the probe output
	VariantScreenshot Variant = "screenshot"
)

// String returns the variant name
func (v Variant) String() string { return string(v) }

// ParseVariant parses a variant name, case-insensitive
func ParseVariant(s string) (Variant, error) {
	v := Variant(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := strategies[v]; !ok {
		return "", errors.Wrapf(ErrUnknownVariant, "%q", s)
	}
	return v, nil
}

// Options configures one build
type Options struct {
	// VideoDevicePath selects the capture device: first device whose path
	// contains it, case-insensitive (required)
	VideoDevicePath string
	// Connector is the physical input routed on devices behind a crossbar.
	// media.ConnectorUnspecified skips routing.
	Connector media.ConnectorType
	// Width and Height override the capture size (both or neither, 0 keeps
	// the device default)
	Width  int
	Height int
	// FrameRate overrides the capture rate in frames per second (0 keeps the
	// device default)
	FrameRate float64

	// AudioDeviceName selects the microphone for VariantRecord by display
	// name substring. "" records video only.
	AudioDeviceName string
	// OutputPath is the file VariantRecord writes (required for it)
	OutputPath string
	// ProfilePath is the encoding profile for VariantRecord. A missing or
	// invalid profile leaves the writer on its defaults.
	ProfilePath string
}

func (o Options) validate(v Variant) error {
	switch {
	case o.VideoDevicePath == "":
		return errors.New("video device path is required")
	case o.Width < 0 || o.Height < 0:
		return errors.Errorf("negative capture size %dx%d", o.Width, o.Height)
	case (o.Width == 0) != (o.Height == 0):
		return errors.Errorf("capture size %dx%d: width and height must be set together", o.Width, o.Height)
	case o.FrameRate < 0:
		return errors.Errorf("negative frame rate %.2f", o.FrameRate)
	case v == VariantRecord && o.OutputPath == "":
		return errors.New("output path is required to record")
	}
	return nil
}

func (o Options) configuresStream() bool {
	return o.Width > 0 || o.FrameRate > 0
}

// Link is one edge of an assembled graph. Ports are formatted "node.port";
// rendered outputs end in "renderer".
type Link struct {
	Out string
	In  string
}

// String returns "out -> in"
func (l Link) String() string {
	return fmt.Sprintf("%s -> %s", l.Out, l.In)
}

// ProfileLoader resolves encoding profiles for the record variant
type ProfileLoader interface {
	// Load returns the profile at path, ok=false when it is missing,
	// unreadable or invalid
	Load(path string) (p *media.Profile, ok bool)
}

// Re-exported collaborator types so callers need not import internal packages
type (
	// State is the lifecycle state of a graph
	State = graphstate.State
	// ControlError reports a failed run/pause/stop primitive
	ControlError = graphstate.ControlError
	// RoutingResult summarizes the connector routing pass of a build
	RoutingResult = crossbar.Result
	// RoutingWarning is one failed connector route
	RoutingWarning = crossbar.RoutingWarning

	Sink        = notify.Sink
	SinkFunc    = notify.SinkFunc
	Event       = notify.Event
	EventKind   = notify.Kind
	Warning     = notify.Warning
	WarningKind = notify.WarningKind

	PictureReady   = snapshot.PictureReady
	SnapshotResult = snapshot.Result
)

const (
	StateStopped = graphstate.Stopped
	StatePaused  = graphstate.Paused
	StateRunning = graphstate.Running

	EventPictureReady = notify.KindPictureReady
	EventWarning      = notify.KindWarning
	EventState        = notify.KindState

	WarnNoAudioDevice      = notify.WarnNoAudioDevice
	WarnProfileUnavailable = notify.WarnProfileUnavailable
	WarnRouteFailed        = notify.WarnRouteFailed
	WarnRuntime            = notify.WarnRuntime

	SnapshotArmed   = snapshot.Armed
	SnapshotSkipped = snapshot.Skipped
)

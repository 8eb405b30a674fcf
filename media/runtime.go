// Package media defines the contract between the capture graph and the media
// runtime that actually instantiates nodes, negotiates formats and moves
// buffers.
//
// The capture graph never touches a streaming framework directly. It consumes
// a Runtime through narrow capability calls: enumerate devices, create nodes,
// list their ports, connect two ports, render an output, and drive the
// run/pause/stop primitives. Optional node capabilities (connector routing,
// stream configuration, file sink, encoding profile, frame probe) are
// discovered with type assertions on the Node, the same way io.WriterTo is
// discovered on an io.Reader.
//
// Two implementations ship with the module:
//   - internal/gstreamer: GStreamer via go-gst (production)
//   - media/mediatest: in-memory runtime for tests and dry runs
package media

import (
	"context"
	"time"
)

// DeviceLister enumerates capture devices
type DeviceLister interface {
	// Devices returns a fresh snapshot of the devices in a category.
	// Implementations must not cache results across calls.
	Devices(ctx context.Context, category Category) ([]Device, error)
}

// Runtime is the media runtime collaborator
type Runtime interface {
	DeviceLister

	// NewPipeline creates an empty pipeline. The caller owns it and must
	// Close it.
	NewPipeline(name string) (Pipeline, error)
}

// Pipeline is one runtime graph: the container nodes are added to and the
// target of the run/pause/stop primitives
//
// Pipelines are driven from a single control goroutine, implementations do
// not need to be safe for concurrent control calls.
type Pipeline interface {
	// AddSource instantiates the source node for a device
	AddSource(dev Device) (Node, error)
	// AddDuplicator instantiates a stream duplicator with one input and
	// independent "Capture" and "Preview" outputs
	AddDuplicator(name string) (Node, error)
	// AddFileWriter instantiates a file writer with "Video" and "Audio" inputs
	AddFileWriter(name string) (Node, error)
	// AddFrameProbe instantiates a pass-through frame probe
	AddFrameProbe(name string) (Node, error)

	// Connect links an output port to an input port. Format negotiation is
	// the runtime's business, it either succeeds or fails atomically.
	Connect(out, in Port) error
	// Render terminates an output port with a renderer picked by the runtime
	Render(out Port) error
	// Remove detaches a node and releases it
	Remove(node Node) error

	// Run starts (or resumes) the data flow
	Run() error
	// Pause holds the data flow with the graph still negotiated
	Pause() error
	// Stop halts the data flow
	Stop() error

	// Close releases the pipeline. Nodes still attached are released too.
	Close() error
}

// Node is one processing unit inside a Pipeline
type Node interface {
	Name() string
	Kind() NodeKind
	// Ports enumerates the node's ports in runtime order
	Ports() ([]Port, error)
}

// Port is a directional connection point on a node
type Port interface {
	// ID is the identifier name matching runs against
	ID() string
	// DisplayName is the optional human name ("" when the runtime has none)
	DisplayName() string
	Direction() Direction
	Node() Node
	// Peer returns the connected port, nil when unconnected
	Peer() Port
}

// RoutingProvider is implemented by nodes that may sit behind a crossbar
type RoutingProvider interface {
	// Crossbar returns the routing capability, or nil with a nil error
	// when the device has nothing to route
	Crossbar() (Crossbar, error)
}

// Crossbar maps physical input connectors to outputs
type Crossbar interface {
	PinCounts() (outputs, inputs int, err error)
	// CanRoute reports whether input in can feed output out
	CanRoute(out, in int) bool
	// InputType returns the physical connector type of input in
	InputType(in int) (ConnectorType, error)
	// Route connects input in to output out
	Route(out, in int) error
}

// StreamConfigurer exposes the active capture format of a source
type StreamConfigurer interface {
	Format() (VideoFormat, error)
	SetFormat(f VideoFormat) error
}

// FileSink is implemented by writers that target a file
type FileSink interface {
	SetFileName(path string) error
}

// ProfileConfigurer is implemented by writers that accept an encoding profile
type ProfileConfigurer interface {
	ApplyProfile(p *Profile) error
}

// FrameHandler receives one decoded frame on a runtime-owned thread
//
// data is only valid for the duration of the call. A nil slice stands for a
// null buffer. The return value reports whether the frame was consumed.
type FrameHandler func(sampleTime time.Duration, data []byte) bool

// FrameProbe is implemented by nodes that expose decoded frames to the core
// without altering the stream they pass through
type FrameProbe interface {
	// SetRequestedFormat constrains negotiation. Must be called before the
	// probe is connected.
	SetRequestedFormat(f VideoFormat) error
	// ConnectedFormat returns the negotiated format. Only meaningful once
	// the graph is fully connected.
	ConnectedFormat() (VideoFormat, error)
	// SetFrameHandler enables delivery; nil disables it
	SetFrameHandler(h FrameHandler)
}

// ErrorReporter is implemented by pipelines that report asynchronous runtime
// failures (device unplugged, decoder error) while data flows
type ErrorReporter interface {
	// SetErrorHandler installs h. It is called on a runtime-owned goroutine.
	SetErrorHandler(h func(err error))
}

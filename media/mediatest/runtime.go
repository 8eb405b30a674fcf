// Package mediatest provides an in-memory media.Runtime for tests and dry runs
//
// The runtime records everything the capture graph asks of it (nodes added,
// connections, renders, applied profiles, control primitives) so tests can
// assert on the assembled topology without a real streaming framework.
// Failures are injected per operation through Runtime.Fail.
package mediatest

import (
	"context"
	"fmt"
	"sync"

	"github.com/pkg/errors"

	"github.com/e7canasta/orion-care-sensor/modules/capture-graph/media"
)

// Op names an injectable runtime operation
type Op string

const (
	OpAddSource     Op = "add-source"
	OpAddDuplicator Op = "add-duplicator"
	OpAddWriter     Op = "add-writer"
	OpAddProbe      Op = "add-probe"
	OpConnect       Op = "connect"
	OpRender        Op = "render"
	OpRemove        Op = "remove"
	OpRun           Op = "run"
	OpPause         Op = "pause"
	OpStop          Op = "stop"
	OpGetFormat     Op = "get-format"
	OpSetFormat     Op = "set-format"
	OpApplyProfile  Op = "apply-profile"
	OpSetFileName   Op = "set-file-name"
	OpProbeFormat   Op = "probe-format"
)

// Runtime is an in-memory media.Runtime
//
// Exported fields are configuration, set them before the runtime is used.
type Runtime struct {
	// VideoDevices and AudioDevices are returned by Devices
	VideoDevices []media.Device
	AudioDevices []media.Device
	// ListErr fails every enumeration
	ListErr error

	// SourceOutputs are the output port ids of video sources (default "Capture")
	SourceOutputs []string
	// SourceFormat is the initial active format of video sources
	SourceFormat media.VideoFormat
	// NoStreamConfig makes video sources lack media.StreamConfigurer
	NoStreamConfig bool
	// Crossbar, when set, is exposed by every video source
	Crossbar *Crossbar
	// NoFileSink makes file writers lack media.FileSink
	NoFileSink bool
	// NegotiatedFormat is what frame probes report once connected. Zero
	// fields fall back to the requested format.
	NegotiatedFormat media.VideoFormat

	// Fail injects an error for an operation
	Fail map[Op]error
	// FailConnectTo injects a connect error keyed by the input port, as
	// "node.port"
	FailConnectTo map[string]error

	mu        sync.Mutex
	pipelines []*Pipeline
	listCalls int
}

// New creates a runtime with one video and one audio device
func New() *Runtime {
	return &Runtime{
		VideoDevices: []media.Device{
			{Name: "USB Capture HDMI", Path: "/dev/video0", Category: media.CategoryVideoInput},
		},
		AudioDevices: []media.Device{
			{Name: "USB Capture HDMI Audio", Path: "hw:1,0", Category: media.CategoryAudioInput},
		},
		SourceFormat: media.VideoFormat{
			MediaType:     "video",
			Pixel:         media.PixelYUY2,
			BitCount:      16,
			Width:         1280,
			Height:        720,
			FrameInterval: media.FrameIntervalFor(30),
		},
	}
}

// Devices implements media.DeviceLister
func (r *Runtime) Devices(_ context.Context, category media.Category) ([]media.Device, error) {
	r.mu.Lock()
	r.listCalls++
	r.mu.Unlock()

	if r.ListErr != nil {
		return nil, r.ListErr
	}

	var src []media.Device
	switch category {
	case media.CategoryVideoInput:
		src = r.VideoDevices
	case media.CategoryAudioInput:
		src = r.AudioDevices
	default:
		return nil, errors.Errorf("mediatest: unknown category %d", category)
	}

	out := make([]media.Device, len(src))
	copy(out, src)
	return out, nil
}

// ListCalls returns how many times Devices was called
func (r *Runtime) ListCalls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.listCalls
}

// NewPipeline implements media.Runtime
func (r *Runtime) NewPipeline(name string) (media.Pipeline, error) {
	p := &Pipeline{rt: r, name: name}

	r.mu.Lock()
	r.pipelines = append(r.pipelines, p)
	r.mu.Unlock()

	return p, nil
}

// Pipelines returns every pipeline created so far
func (r *Runtime) Pipelines() []*Pipeline {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Pipeline, len(r.pipelines))
	copy(out, r.pipelines)
	return out
}

// Last returns the most recently created pipeline, nil when none
func (r *Runtime) Last() *Pipeline {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.pipelines) == 0 {
		return nil
	}
	return r.pipelines[len(r.pipelines)-1]
}

func (r *Runtime) fail(op Op) error {
	if err, ok := r.Fail[op]; ok && err != nil {
		return err
	}
	return nil
}

// Connection is one recorded link, formatted as "node.port"
type Connection struct {
	Out string
	In  string
}

// String returns "out -> in"
func (c Connection) String() string {
	return fmt.Sprintf("%s -> %s", c.Out, c.In)
}

// Pipeline is an in-memory media.Pipeline
type Pipeline struct {
	rt   *Runtime
	name string

	mu          sync.Mutex
	nodes       []media.Node
	connections []Connection
	renders     []string
	removed     []string
	ops         []Op
	closed      bool
	renderers   int
	onError     func(error)
}

// Name returns the pipeline name
func (p *Pipeline) Name() string { return p.name }

// AddSource implements media.Pipeline
func (p *Pipeline) AddSource(dev media.Device) (media.Node, error) {
	if err := p.rt.fail(OpAddSource); err != nil {
		return nil, err
	}

	var node media.Node
	switch dev.Category {
	case media.CategoryAudioInput:
		n := newNode(dev.Name, media.NodeAudioSource, Out("Capture"))
		node = n.bind(n)
	default:
		outs := p.rt.SourceOutputs
		if len(outs) == 0 {
			outs = []string{"Capture"}
		}
		specs := make([]PortSpec, 0, len(outs))
		for _, id := range outs {
			specs = append(specs, Out(id))
		}
		base := newNode(dev.Name, media.NodeVideoSource, specs...)
		if p.rt.NoStreamConfig {
			src := &BareSource{Node: base, rt: p.rt}
			node = base.bind(src)
		} else {
			src := &Source{BareSource: BareSource{Node: base, rt: p.rt}, format: p.rt.SourceFormat}
			node = base.bind(src)
		}
	}

	p.add(node)
	return node, nil
}

// AddDuplicator implements media.Pipeline
func (p *Pipeline) AddDuplicator(name string) (media.Node, error) {
	if err := p.rt.fail(OpAddDuplicator); err != nil {
		return nil, err
	}
	n := newNode(name, media.NodeDuplicator, In("Input"), Out("Capture"), Out("Preview"))
	node := n.bind(n)
	p.add(node)
	return node, nil
}

// AddFileWriter implements media.Pipeline
func (p *Pipeline) AddFileWriter(name string) (media.Node, error) {
	if err := p.rt.fail(OpAddWriter); err != nil {
		return nil, err
	}
	base := newNode(name, media.NodeFileWriter, In("Video"), In("Audio"))
	var node media.Node
	if p.rt.NoFileSink {
		node = base.bind(base)
	} else {
		node = base.bind(&Writer{Node: base, rt: p.rt})
	}
	p.add(node)
	return node, nil
}

// AddFrameProbe implements media.Pipeline
func (p *Pipeline) AddFrameProbe(name string) (media.Node, error) {
	if err := p.rt.fail(OpAddProbe); err != nil {
		return nil, err
	}
	base := newNode(name, media.NodeFrameProbe, In("Input"), Out("Output"))
	node := base.bind(&Probe{Node: base, rt: p.rt})
	p.add(node)
	return node, nil
}

// Connect implements media.Pipeline
func (p *Pipeline) Connect(out, in media.Port) error {
	if err := p.rt.fail(OpConnect); err != nil {
		return err
	}
	if i, ok := in.(*Port); ok {
		if err := p.rt.FailConnectTo[i.qualified()]; err != nil {
			return err
		}
	}
	return p.link(out, in)
}

func (p *Pipeline) link(out, in media.Port) error {
	o, ok1 := out.(*Port)
	i, ok2 := in.(*Port)
	if !ok1 || !ok2 {
		return errors.New("mediatest: foreign port")
	}
	if o.dir != media.DirectionOutput || i.dir != media.DirectionInput {
		return errors.Errorf("mediatest: cannot connect %s to %s", o.dir, i.dir)
	}
	if o.peer != nil || i.peer != nil {
		return errors.Wrapf(media.ErrAlreadyConnected, "mediatest: %s -> %s", o.qualified(), i.qualified())
	}

	o.peer, i.peer = i, o

	p.mu.Lock()
	p.connections = append(p.connections, Connection{Out: o.qualified(), In: i.qualified()})
	p.mu.Unlock()
	return nil
}

// Render implements media.Pipeline
func (p *Pipeline) Render(out media.Port) error {
	if err := p.rt.fail(OpRender); err != nil {
		return err
	}

	p.mu.Lock()
	p.renderers++
	name := fmt.Sprintf("renderer%d", p.renderers-1)
	p.mu.Unlock()

	r := newNode(name, media.NodeRenderer, In("VideoInput"))
	rn := r.bind(r)
	if err := p.link(out, r.ports[0]); err != nil {
		return err
	}
	p.add(rn)

	p.mu.Lock()
	p.renders = append(p.renders, out.(*Port).qualified())
	p.mu.Unlock()
	return nil
}

// Remove implements media.Pipeline
func (p *Pipeline) Remove(node media.Node) error {
	if err := p.rt.fail(OpRemove); err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	for idx, n := range p.nodes {
		if n != node {
			continue
		}
		if ports, err := n.Ports(); err == nil {
			for _, port := range ports {
				if tp, ok := port.(*Port); ok && tp.peer != nil {
					tp.peer.peer = nil
					tp.peer = nil
				}
			}
		}
		p.nodes = append(p.nodes[:idx], p.nodes[idx+1:]...)
		p.removed = append(p.removed, node.Name())
		return nil
	}
	return errors.Errorf("mediatest: node %q not in pipeline", node.Name())
}

// Run implements media.Pipeline
func (p *Pipeline) Run() error { return p.control(OpRun) }

// Pause implements media.Pipeline
func (p *Pipeline) Pause() error { return p.control(OpPause) }

// Stop implements media.Pipeline
func (p *Pipeline) Stop() error { return p.control(OpStop) }

func (p *Pipeline) control(op Op) error {
	if err := p.rt.fail(op); err != nil {
		return err
	}
	p.mu.Lock()
	p.ops = append(p.ops, op)
	p.mu.Unlock()
	return nil
}

// SetErrorHandler implements media.ErrorReporter
func (p *Pipeline) SetErrorHandler(h func(err error)) {
	p.mu.Lock()
	p.onError = h
	p.mu.Unlock()
}

// ReportError simulates an asynchronous runtime failure. Returns false when
// no handler is installed.
func (p *Pipeline) ReportError(err error) bool {
	p.mu.Lock()
	h := p.onError
	p.mu.Unlock()
	if h == nil {
		return false
	}
	h(err)
	return true
}

// Close implements media.Pipeline
func (p *Pipeline) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	p.nodes = nil
	return nil
}

func (p *Pipeline) add(n media.Node) {
	p.mu.Lock()
	p.nodes = append(p.nodes, n)
	p.mu.Unlock()
}

// Nodes returns the nodes currently attached
func (p *Pipeline) Nodes() []media.Node {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]media.Node, len(p.nodes))
	copy(out, p.nodes)
	return out
}

// NodeOfKind returns the first attached node of a kind, nil when none
func (p *Pipeline) NodeOfKind(kind media.NodeKind) media.Node {
	for _, n := range p.Nodes() {
		if n.Kind() == kind {
			return n
		}
	}
	return nil
}

// Connections returns every link made, in order
func (p *Pipeline) Connections() []Connection {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Connection, len(p.connections))
	copy(out, p.connections)
	return out
}

// Renders returns the rendered output ports as "node.port"
func (p *Pipeline) Renders() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.renders...)
}

// Removed returns the names of removed nodes, in removal order
func (p *Pipeline) Removed() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.removed...)
}

// Ops returns the control primitives that succeeded, in order
func (p *Pipeline) Ops() []Op {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Op(nil), p.ops...)
}

// Closed reports whether Close was called
func (p *Pipeline) Closed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

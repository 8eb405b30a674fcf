package mediatest

import (
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/e7canasta/orion-care-sensor/modules/capture-graph/media"
)

// PortSpec describes one port of a hand-built node
type PortSpec struct {
	ID          string
	DisplayName string
	Direction   media.Direction
}

// In is an input port spec
func In(id string) PortSpec { return PortSpec{ID: id, Direction: media.DirectionInput} }

// Out is an output port spec
func Out(id string) PortSpec { return PortSpec{ID: id, Direction: media.DirectionOutput} }

// Node is a plain in-memory media.Node
type Node struct {
	name  string
	kind  media.NodeKind
	ports []*Port
	owner media.Node

	// PortsErr fails port enumeration
	PortsErr error
}

// NewNode builds a standalone node, useful for port and routing tests
func NewNode(name string, kind media.NodeKind, ports ...PortSpec) *Node {
	n := newNode(name, kind, ports...)
	n.owner = n
	return n
}

func newNode(name string, kind media.NodeKind, specs ...PortSpec) *Node {
	n := &Node{name: name, kind: kind}
	for _, s := range specs {
		n.ports = append(n.ports, &Port{id: s.ID, display: s.DisplayName, dir: s.Direction, node: n})
	}
	return n
}

// bind records the node value ports report as their owner
func (n *Node) bind(owner media.Node) media.Node {
	n.owner = owner
	return owner
}

// Name implements media.Node
func (n *Node) Name() string { return n.name }

// Kind implements media.Node
func (n *Node) Kind() media.NodeKind { return n.kind }

// Ports implements media.Node
func (n *Node) Ports() ([]media.Port, error) {
	if n.PortsErr != nil {
		return nil, n.PortsErr
	}
	out := make([]media.Port, len(n.ports))
	for i, p := range n.ports {
		out[i] = p
	}
	return out, nil
}

// Port returns the port with an exact id, nil when absent
func (n *Node) Port(id string) *Port {
	for _, p := range n.ports {
		if p.id == id {
			return p
		}
	}
	return nil
}

// Port is an in-memory media.Port
type Port struct {
	id      string
	display string
	dir     media.Direction
	node    *Node
	peer    *Port
}

// ID implements media.Port
func (p *Port) ID() string { return p.id }

// DisplayName implements media.Port
func (p *Port) DisplayName() string { return p.display }

// Direction implements media.Port
func (p *Port) Direction() media.Direction { return p.dir }

// Node implements media.Port
func (p *Port) Node() media.Node { return p.node.owner }

// Peer implements media.Port
func (p *Port) Peer() media.Port {
	if p.peer == nil {
		return nil
	}
	return p.peer
}

// Connected reports whether the port has a peer
func (p *Port) Connected() bool { return p.peer != nil }

func (p *Port) qualified() string { return p.node.name + "." + p.id }

// BareSource is a video source without stream configuration
type BareSource struct {
	*Node
	rt *Runtime
}

// Crossbar implements media.RoutingProvider
func (s *BareSource) Crossbar() (media.Crossbar, error) {
	if s.rt.Crossbar == nil {
		return nil, nil
	}
	if s.rt.Crossbar.QueryErr != nil {
		return nil, s.rt.Crossbar.QueryErr
	}
	return s.rt.Crossbar, nil
}

// Source is a video source with stream configuration
type Source struct {
	BareSource

	mu      sync.Mutex
	format  media.VideoFormat
	commits int
}

// Format implements media.StreamConfigurer
func (s *Source) Format() (media.VideoFormat, error) {
	if err := s.rt.fail(OpGetFormat); err != nil {
		return media.VideoFormat{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.format, nil
}

// SetFormat implements media.StreamConfigurer
func (s *Source) SetFormat(f media.VideoFormat) error {
	if err := s.rt.fail(OpSetFormat); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.format = f
	s.commits++
	return nil
}

// Commits returns how many formats were committed
func (s *Source) Commits() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.commits
}

// Writer is a file writer with profile and file sink capabilities
type Writer struct {
	*Node
	rt *Runtime

	mu       sync.Mutex
	profile  *media.Profile
	fileName string
}

// ApplyProfile implements media.ProfileConfigurer
func (w *Writer) ApplyProfile(p *media.Profile) error {
	if err := w.rt.fail(OpApplyProfile); err != nil {
		return err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.profile = p
	return nil
}

// SetFileName implements media.FileSink
func (w *Writer) SetFileName(path string) error {
	if err := w.rt.fail(OpSetFileName); err != nil {
		return err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.fileName = path
	return nil
}

// Profile returns the applied profile, nil when the writer runs on defaults
func (w *Writer) Profile() *media.Profile {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.profile
}

// FileName returns the configured output path
func (w *Writer) FileName() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.fileName
}

// Probe is a frame probe whose frames are pushed by the test through Deliver
type Probe struct {
	*Node
	rt *Runtime

	mu        sync.Mutex
	requested media.VideoFormat
	handler   media.FrameHandler
	enables   int
}

// SetRequestedFormat implements media.FrameProbe
func (p *Probe) SetRequestedFormat(f media.VideoFormat) error {
	if p.Port("Input").Connected() {
		return errors.New("mediatest: requested format set after connection")
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.requested = f
	return nil
}

// RequestedFormat returns the format requested before wiring
func (p *Probe) RequestedFormat() media.VideoFormat {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.requested
}

// ConnectedFormat implements media.FrameProbe
func (p *Probe) ConnectedFormat() (media.VideoFormat, error) {
	if err := p.rt.fail(OpProbeFormat); err != nil {
		return media.VideoFormat{}, err
	}
	if !p.Port("Input").Connected() {
		return media.VideoFormat{}, errors.New("mediatest: probe not connected")
	}

	p.mu.Lock()
	f := p.requested
	p.mu.Unlock()

	n := p.rt.NegotiatedFormat
	if n.Width != 0 {
		f.Width = n.Width
	}
	if n.Height != 0 {
		f.Height = n.Height
	}
	if n.Stride != 0 {
		f.Stride = n.Stride
	} else if f.Stride == 0 {
		f.Stride = f.Width * f.BitCount / 8
	}
	if n.ImageSize != 0 {
		f.ImageSize = n.ImageSize
	} else if f.ImageSize == 0 {
		f.ImageSize = f.Stride * f.Height
	}
	if n.FrameInterval != 0 {
		f.FrameInterval = n.FrameInterval
	}
	f.TopDown = n.TopDown
	return f, nil
}

// SetFrameHandler implements media.FrameProbe
func (p *Probe) SetFrameHandler(h media.FrameHandler) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if h != nil && p.handler == nil {
		p.enables++
	}
	p.handler = h
}

// HandlerEnabled reports whether frame delivery is currently enabled
func (p *Probe) HandlerEnabled() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.handler != nil
}

// Enables returns how many times delivery went from disabled to enabled
func (p *Probe) Enables() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.enables
}

// Deliver simulates one decoded frame arriving on the runtime thread. It
// reports whether a handler was installed and consumed the frame.
func (p *Probe) Deliver(sampleTime time.Duration, data []byte) bool {
	p.mu.Lock()
	h := p.handler
	p.mu.Unlock()
	if h == nil {
		return false
	}
	return h(sampleTime, data)
}

// Crossbar is an in-memory media.Crossbar
type Crossbar struct {
	// Outputs is the number of output connectors
	Outputs int
	// Inputs lists the physical type of every input connector
	Inputs []media.ConnectorType
	// Reach limits feasible pairs, nil means every pair is feasible
	Reach func(out, in int) bool

	// QueryErr fails the routing capability query
	QueryErr error
	// CountsErr fails PinCounts
	CountsErr error
	// TypeErr fails InputType for the listed inputs
	TypeErr map[int]error
	// RouteErr fails Route for the listed (out, in) pairs
	RouteErr map[[2]int]error

	mu     sync.Mutex
	routes [][2]int
	active map[int]int
}

// PinCounts implements media.Crossbar
func (c *Crossbar) PinCounts() (int, int, error) {
	if c.CountsErr != nil {
		return 0, 0, c.CountsErr
	}
	return c.Outputs, len(c.Inputs), nil
}

// CanRoute implements media.Crossbar
func (c *Crossbar) CanRoute(out, in int) bool {
	if out < 0 || out >= c.Outputs || in < 0 || in >= len(c.Inputs) {
		return false
	}
	if c.Reach == nil {
		return true
	}
	return c.Reach(out, in)
}

// InputType implements media.Crossbar
func (c *Crossbar) InputType(in int) (media.ConnectorType, error) {
	if err := c.TypeErr[in]; err != nil {
		return media.ConnectorUnspecified, err
	}
	if in < 0 || in >= len(c.Inputs) {
		return media.ConnectorUnspecified, errors.Errorf("mediatest: input %d out of range", in)
	}
	return c.Inputs[in], nil
}

// Route implements media.Crossbar
func (c *Crossbar) Route(out, in int) error {
	if err := c.RouteErr[[2]int{out, in}]; err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.routes = append(c.routes, [2]int{out, in})
	if c.active == nil {
		c.active = make(map[int]int)
	}
	c.active[out] = in
	return nil
}

// Routes returns every successful Route call, in order
func (c *Crossbar) Routes() [][2]int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([][2]int(nil), c.routes...)
}

// Active returns the input currently routed to an output
func (c *Crossbar) Active(out int) (int, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	in, ok := c.active[out]
	return in, ok
}

// RoutingNode is a standalone node exposing a crossbar
type RoutingNode struct {
	*Node
	Bar *Crossbar
}

// NewRoutingNode wraps a crossbar in a video source node
func NewRoutingNode(name string, bar *Crossbar) *RoutingNode {
	n := newNode(name, media.NodeVideoSource, Out("Capture"))
	r := &RoutingNode{Node: n, Bar: bar}
	n.bind(r)
	return r
}

// Crossbar implements media.RoutingProvider
func (r *RoutingNode) Crossbar() (media.Crossbar, error) {
	if r.Bar == nil {
		return nil, nil
	}
	if r.Bar.QueryErr != nil {
		return nil, r.Bar.QueryErr
	}
	return r.Bar, nil
}

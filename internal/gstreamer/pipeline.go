package gstreamer

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/tinyzimmer/go-gst/gst"

	"github.com/e7canasta/orion-care-sensor/modules/capture-graph/internal/framerate"
	"github.com/e7canasta/orion-care-sensor/modules/capture-graph/internal/metrics"
	"github.com/e7canasta/orion-care-sensor/modules/capture-graph/media"
)

// eosTimeout bounds how long Stop waits for the writer to finalize the file
const eosTimeout = 3 * time.Second

// Pipeline is a media.Pipeline over one *gst.Pipeline
//
// Node constructors build an element chain, add it to the bin and link it
// internally; the chain's boundary pads become the node's ports. Run, Pause
// and Stop map to PLAYING, PAUSED and NULL. A bus monitor goroutine runs for
// the pipeline's lifetime and reports errors to the installed handler.
type Pipeline struct {
	rt       *Runtime
	name     string
	pipeline *gst.Pipeline
	log      zerolog.Logger

	videoSource *sourceNode
	hasWriter   bool
	renderers   []*node
	rate        *framerate.Meter

	handler atomic.Pointer[func(error)]
	eos     chan struct{}
	counts  [numCategories]atomic.Uint64

	cancel      context.CancelFunc
	monitorDone chan struct{}
	closeOnce   sync.Once
}

func newPipeline(rt *Runtime, name string) (*Pipeline, error) {
	gp, err := gst.NewPipeline(name)
	if err != nil {
		return nil, errors.Wrapf(err, "create pipeline %s", name)
	}

	ctx, cancel := context.WithCancel(context.Background())
	p := &Pipeline{
		rt:          rt,
		name:        name,
		pipeline:    gp,
		log:         rt.log.With().Str("pipeline", name).Logger(),
		eos:         make(chan struct{}, 1),
		rate:        framerate.NewMeter(framerate.DefaultWindow),
		cancel:      cancel,
		monitorDone: make(chan struct{}),
	}
	go p.monitor(ctx)
	return p, nil
}

// SetErrorHandler installs the asynchronous error callback (nil removes it)
func (p *Pipeline) SetErrorHandler(h func(err error)) {
	if h == nil {
		p.handler.Store(nil)
		return
	}
	p.handler.Store(&h)
}

// ErrorCounts returns bus errors seen so far per category
func (p *Pipeline) ErrorCounts() map[string]uint64 {
	out := make(map[string]uint64, numCategories)
	for c := ErrorCategory(0); c < numCategories; c++ {
		out[c.String()] = p.counts[c].Load()
	}
	return out
}

// newElements creates the named factories in order
func newElements(factories ...string) ([]*gst.Element, error) {
	elems := make([]*gst.Element, 0, len(factories))
	for _, f := range factories {
		e, err := gst.NewElement(f)
		if err != nil {
			return nil, errors.Wrapf(err, "create %s", f)
		}
		elems = append(elems, e)
	}
	return elems, nil
}

// addChain adds elements to the bin and links them in order
func (p *Pipeline) addChain(elems ...*gst.Element) error {
	if err := p.pipeline.AddMany(elems...); err != nil {
		return errors.Wrap(err, "add elements")
	}
	if len(elems) > 1 {
		if err := gst.ElementLinkMany(elems...); err != nil {
			return errors.Wrap(err, "link elements")
		}
	}
	return nil
}

// AddSource instantiates the capture element for dev
//
// Video: device element → capsfilter, output "Capture".
// Audio: device element → audioconvert → audioresample, output "Capture".
func (p *Pipeline) AddSource(dev media.Device) (media.Node, error) {
	src, caps, err := p.rt.sourceElement(dev)
	if err != nil {
		return nil, err
	}

	if dev.Category == media.CategoryAudioInput {
		rest, err := newElements("audioconvert", "audioresample")
		if err != nil {
			return nil, err
		}
		elems := append([]*gst.Element{src}, rest...)
		if err := p.addChain(elems...); err != nil {
			return nil, errors.Wrapf(err, "audio source %s", dev.Name)
		}
		n := &node{name: dev.Name, kind: media.NodeAudioSource, elements: elems}
		if _, err := n.addPort(n, "Capture", media.DirectionOutput, rest[1]); err != nil {
			return nil, err
		}
		return n, nil
	}

	capsfilter, err := gst.NewElement("capsfilter")
	if err != nil {
		return nil, errors.Wrap(err, "create capsfilter")
	}
	elems := []*gst.Element{src, capsfilter}
	if err := p.addChain(elems...); err != nil {
		return nil, errors.Wrapf(err, "video source %s", dev.Name)
	}
	n := &sourceNode{
		node:       &node{name: dev.Name, kind: media.NodeVideoSource, elements: elems},
		capsfilter: capsfilter,
		deviceCaps: caps,
	}
	out, err := n.addPort(n, "Capture", media.DirectionOutput, capsfilter)
	if err != nil {
		return nil, err
	}
	out.pad.AddProbe(gst.PadProbeTypeBuffer, func(*gst.Pad, *gst.PadProbeInfo) gst.PadProbeReturn {
		p.rate.Observe()
		return gst.PadProbeOK
	})
	p.videoSource = n
	return n, nil
}

// AddDuplicator builds tee → queue ("Capture") and tee → queue ("Preview")
func (p *Pipeline) AddDuplicator(name string) (media.Node, error) {
	elems, err := newElements("tee", "queue", "queue")
	if err != nil {
		return nil, err
	}
	tee, capture, preview := elems[0], elems[1], elems[2]
	_ = tee.SetProperty("allow-not-linked", true)
	_ = preview.SetProperty("max-size-buffers", uint(2))

	if err := p.pipeline.AddMany(elems...); err != nil {
		return nil, errors.Wrapf(err, "%s: add elements", name)
	}
	if err := tee.Link(capture); err != nil {
		return nil, errors.Wrapf(err, "%s: link capture branch", name)
	}
	if err := tee.Link(preview); err != nil {
		return nil, errors.Wrapf(err, "%s: link preview branch", name)
	}

	n := &duplicatorNode{node: &node{name: name, kind: media.NodeDuplicator, elements: elems}}
	for _, spec := range []struct {
		id   string
		dir  media.Direction
		elem *gst.Element
	}{
		{"Input", media.DirectionInput, tee},
		{"Capture", media.DirectionOutput, capture},
		{"Preview", media.DirectionOutput, preview},
	} {
		if _, err := n.addPort(n, spec.id, spec.dir, spec.elem); err != nil {
			return nil, err
		}
	}
	return n, nil
}

// AddFileWriter builds the writer's input converters and file sink. Encoders
// and the muxer are attached when the inputs are connected.
func (p *Pipeline) AddFileWriter(name string) (media.Node, error) {
	elems, err := newElements("videoconvert", "audioconvert", "filesink")
	if err != nil {
		return nil, err
	}
	if err := p.pipeline.AddMany(elems...); err != nil {
		return nil, errors.Wrapf(err, "%s: add elements", name)
	}

	w := &writerNode{
		node:         &node{name: name, kind: media.NodeFileWriter, elements: elems},
		pipeline:     p.pipeline,
		log:          p.log,
		videoConvert: elems[0],
		audioConvert: elems[1],
		filesink:     elems[2],
	}
	video, err := w.addPort(w, "Video", media.DirectionInput, w.videoConvert)
	if err != nil {
		return nil, err
	}
	video.beforeLink = w.linkVideo
	audio, err := w.addPort(w, "Audio", media.DirectionInput, w.audioConvert)
	if err != nil {
		return nil, err
	}
	audio.beforeLink = w.linkAudio

	p.hasWriter = true
	return w, nil
}

// AddFrameProbe builds videoconvert → capsfilter with a buffer probe on the
// capsfilter's output
func (p *Pipeline) AddFrameProbe(name string) (media.Node, error) {
	elems, err := newElements("videoconvert", "capsfilter")
	if err != nil {
		return nil, err
	}
	if err := p.addChain(elems...); err != nil {
		return nil, errors.Wrapf(err, "%s", name)
	}

	n := &probeNode{
		node:       &node{name: name, kind: media.NodeFrameProbe, elements: elems},
		pipeline:   p,
		capsfilter: elems[1],
	}
	if n.input, err = n.addPort(n, "Input", media.DirectionInput, elems[0]); err != nil {
		return nil, err
	}
	if n.output, err = n.addPort(n, "Output", media.DirectionOutput, elems[1]); err != nil {
		return nil, err
	}
	n.output.pad.AddProbe(gst.PadProbeTypeBuffer, n.onBuffer)
	return n, nil
}

func asPort(mp media.Port) (*port, error) {
	pp, ok := mp.(*port)
	if !ok || pp == nil {
		return nil, errors.Errorf("port %v does not belong to this runtime", mp)
	}
	return pp, nil
}

// Connect links out to in
//
// Semantics:
//   - Either side already connected: ErrAlreadyConnected
//   - Lazily assembled inputs (writer branches) are completed first
//   - Anything but PadLinkOK is an error
func (p *Pipeline) Connect(out, in media.Port) error {
	o, err := asPort(out)
	if err != nil {
		return err
	}
	i, err := asPort(in)
	if err != nil {
		return err
	}
	if o.dir != media.DirectionOutput || i.dir != media.DirectionInput {
		return errors.Errorf("connect %s -> %s: wrong port directions", o.id, i.id)
	}
	if o.peer != nil || i.peer != nil || o.pad.IsLinked() || i.pad.IsLinked() {
		return errors.Wrapf(media.ErrAlreadyConnected, "connect %s -> %s", o.id, i.id)
	}
	if i.beforeLink != nil {
		if err := i.beforeLink(); err != nil {
			return err
		}
		i.beforeLink = nil
	}
	if ret := o.pad.Link(i.pad); ret != gst.PadLinkOK {
		return errors.Errorf("connect %s.%s -> %s.%s: %v", o.owner.Name(), o.id, i.owner.Name(), i.id, ret)
	}
	o.peer, i.peer = i, o

	p.log.Debug().
		Str("out", o.owner.Name()+"."+o.id).
		Str("in", i.owner.Name()+"."+i.id).
		Msg("gstreamer: ports linked")
	return nil
}

// Render terminates out with an autovideosink
func (p *Pipeline) Render(out media.Port) error {
	o, err := asPort(out)
	if err != nil {
		return err
	}
	if o.peer != nil {
		return errors.Wrapf(media.ErrAlreadyConnected, "render %s", o.id)
	}

	sink, err := gst.NewElement("autovideosink")
	if err != nil {
		return errors.Wrap(err, "create autovideosink")
	}
	_ = sink.SetProperty("sync", false)
	if err := p.pipeline.Add(sink); err != nil {
		return errors.Wrap(err, "add renderer")
	}

	r := &node{name: "renderer", kind: media.NodeRenderer, elements: []*gst.Element{sink}}
	in, err := r.addPort(r, "Input", media.DirectionInput, sink)
	if err != nil {
		return err
	}
	if ret := o.pad.Link(in.pad); ret != gst.PadLinkOK {
		return errors.Errorf("render %s.%s: %v", o.owner.Name(), o.id, ret)
	}
	o.peer, in.peer = in, o
	p.renderers = append(p.renderers, r)
	return nil
}

// Remove unlinks a node's ports and drops its elements from the bin
func (p *Pipeline) Remove(mn media.Node) error {
	owner, ok := mn.(nodeOwner)
	if !ok {
		return errors.Errorf("node %s does not belong to this runtime", mn.Name())
	}
	n := owner.base()
	p.release(n)
	if p.videoSource != nil && p.videoSource.node == n {
		p.videoSource = nil
	}
	return nil
}

func (p *Pipeline) release(n *node) {
	for _, pt := range n.ports {
		if pt.peer == nil {
			continue
		}
		if pt.dir == media.DirectionOutput {
			pt.pad.Unlink(pt.peer.pad)
		} else {
			pt.peer.pad.Unlink(pt.pad)
		}
		pt.peer.peer = nil
		pt.peer = nil
	}
	for i := len(n.elements) - 1; i >= 0; i-- {
		e := n.elements[i]
		_ = e.SetState(gst.StateNull)
		if err := p.pipeline.Remove(e); err != nil {
			p.log.Debug().Err(err).Str("node", n.name).Msg("gstreamer: remove element failed")
		}
	}
	n.elements = nil
}

// Run sets the pipeline to PLAYING
func (p *Pipeline) Run() error {
	p.rate.Reset()
	return errors.Wrap(p.pipeline.SetState(gst.StatePlaying), "set PLAYING")
}

// Pause sets the pipeline to PAUSED
func (p *Pipeline) Pause() error {
	return errors.Wrap(p.pipeline.SetState(gst.StatePaused), "set PAUSED")
}

// Stop halts the pipeline
//
// With a file writer attached an EOS is pushed first so the muxer finalizes
// the container; Stop waits up to eosTimeout for it to reach the bus. A
// paused pipeline is set PLAYING for the drain, since a paused live source
// never carries the EOS downstream. A pipeline that never ran has nothing to
// finalize.
func (p *Pipeline) Stop() error {
	p.reportRate()
	if p.hasWriter {
		p.finalize()
	}
	return errors.Wrap(p.pipeline.SetState(gst.StateNull), "set NULL")
}

func (p *Pipeline) finalize() {
	send, resume := eosPlan(p.pipeline.GetState())
	if !send {
		return
	}
	if resume {
		if err := p.pipeline.SetState(gst.StatePlaying); err != nil {
			p.log.Warn().Err(err).Msg("gstreamer: resume for EOS failed, output may be truncated")
			return
		}
	}
	p.drainEOS()
	if !p.pipeline.SendEvent(gst.NewEOSEvent()) {
		return
	}
	select {
	case <-p.eos:
	case <-time.After(eosTimeout):
		p.log.Warn().Dur("timeout", eosTimeout).Msg("gstreamer: EOS not received, output may be truncated")
	}
}

// eosPlan reports whether a pipeline in state must be drained with an EOS,
// and whether it has to be resumed first
func eosPlan(state gst.State) (send, resume bool) {
	switch state {
	case gst.StatePlaying:
		return true, false
	case gst.StatePaused:
		return true, true
	}
	return false, false
}

// FrameRate returns the delivered rate of the video source since the last Run
func (p *Pipeline) FrameRate() framerate.Stats {
	return p.rate.Stats()
}

func (p *Pipeline) reportRate() {
	if p.videoSource == nil {
		return
	}
	st := p.rate.Stats()
	if st.Frames < 2 {
		return
	}
	metrics.RecordSourceRate(st.Mean, st.Stable)
	ev := p.log.Info()
	if !st.Stable {
		ev = p.log.Warn()
	}
	ev.Float64("fps_mean", st.Mean).
		Float64("fps_stddev", st.StdDev).
		Float64("fps_min", st.Min).
		Float64("fps_max", st.Max).
		Dur("jitter_mean", st.JitterMean).
		Bool("stable", st.Stable).
		Uint64("frames_total", p.rate.Total()).
		Msg("gstreamer: source frame rate")
}

func (p *Pipeline) drainEOS() {
	select {
	case <-p.eos:
	default:
	}
}

// Close stops the monitor and releases every element. Idempotent.
func (p *Pipeline) Close() error {
	var err error
	p.closeOnce.Do(func() {
		err = errors.Wrap(p.pipeline.SetState(gst.StateNull), "set NULL")
		p.cancel()
		<-p.monitorDone
		for _, r := range p.renderers {
			p.release(r)
		}
		p.renderers = nil
		p.log.Debug().Interface("errors", p.ErrorCounts()).Msg("gstreamer: pipeline closed")
	})
	return err
}

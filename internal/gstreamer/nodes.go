package gstreamer

import (
	"strconv"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/tinyzimmer/go-gst/gst"

	"github.com/e7canasta/orion-care-sensor/modules/capture-graph/media"
)

// Writer defaults when no encoding profile is applied
const (
	defaultMuxer        = "mp4mux"
	defaultVideoEncoder = "x264enc"
	defaultAudioEncoder = "avenc_aac"
)

// port wraps one pad of a node's boundary element
type port struct {
	id    string
	dir   media.Direction
	pad   *gst.Pad
	owner media.Node
	peer  *port

	// beforeLink runs before the pad is linked (lazy branch assembly)
	beforeLink func() error
}

func (p *port) ID() string { return p.id }
func (p *port) DisplayName() string { return p.pad.GetName() }
func (p *port) Direction() media.Direction { return p.dir }
func (p *port) Node() media.Node { return p.owner }

func (p *port) Peer() media.Port {
	if p.peer == nil {
		return nil
	}
	return p.peer
}

// node is the element chain behind one media.Node
type node struct {
	name     string
	kind     media.NodeKind
	elements []*gst.Element
	ports    []*port
}

func (n *node) Name() string { return n.name }
func (n *node) Kind() media.NodeKind { return n.kind }
func (n *node) base() *node { return n }

func (n *node) Ports() ([]media.Port, error) {
	out := make([]media.Port, len(n.ports))
	for i, p := range n.ports {
		out[i] = p
	}
	return out, nil
}

// addPort exposes a static pad of elem
func (n *node) addPort(owner media.Node, id string, dir media.Direction, elem *gst.Element) (*port, error) {
	padName := "src"
	if dir == media.DirectionInput {
		padName = "sink"
	}
	pad := elem.GetStaticPad(padName)
	if pad == nil {
		return nil, errors.Errorf("%s: element has no %s pad for port %s", n.name, padName, id)
	}
	p := &port{id: id, dir: dir, pad: pad, owner: owner}
	n.ports = append(n.ports, p)
	return p, nil
}

type nodeOwner interface {
	media.Node
	base() *node
}

// sourceNode is a capture device followed by a capsfilter that pins the
// stream format
type sourceNode struct {
	*node
	capsfilter *gst.Element
	deviceCaps *gst.Caps
	format     media.VideoFormat
	pinned     bool
}

// Format returns the pinned format. Before anything is pinned the source is
// unconstrained: geometry and pixel layout are left to negotiation.
func (s *sourceNode) Format() (media.VideoFormat, error) {
	if s.pinned {
		return s.format, nil
	}
	return media.VideoFormat{MediaType: "video"}, nil
}

// advertised returns the first format the device advertises
func (s *sourceNode) advertised() media.VideoFormat {
	if s.deviceCaps == nil || s.deviceCaps.GetSize() == 0 {
		return media.VideoFormat{MediaType: "video"}
	}
	return formatFromStructure(s.deviceCaps.GetStructureAt(0))
}

// SetFormat pins width, height and frame rate on the capsfilter. The pixel
// layout stays negotiable.
func (s *sourceNode) SetFormat(f media.VideoFormat) error {
	request := media.VideoFormat{Width: f.Width, Height: f.Height, FrameInterval: f.FrameInterval}
	if f.Pixel == media.PixelMJPEG {
		request.Pixel = media.PixelMJPEG
	}
	caps := gst.NewCapsFromString(videoCaps(request))
	if caps == nil {
		return errors.Errorf("%s: invalid caps %q", s.name, videoCaps(request))
	}
	if err := s.capsfilter.SetProperty("caps", caps); err != nil {
		return errors.Wrapf(err, "%s: set caps", s.name)
	}
	s.format = f
	s.pinned = true
	return nil
}

// duplicatorNode is a tee with one queue per branch
type duplicatorNode struct {
	*node
}

// writerNode encodes video, and audio when connected, into one container
//
// The encoder branches are linked lazily when their input is connected so
// the profile applied beforehand decides the elements.
type writerNode struct {
	*node
	pipeline *gst.Pipeline
	log      zerolog.Logger

	videoConvert *gst.Element
	audioConvert *gst.Element
	filesink     *gst.Element
	mux          *gst.Element

	profile *media.Profile
}

// ApplyProfile selects the container and encoders. Must precede connection.
func (w *writerNode) ApplyProfile(p *media.Profile) error {
	if p == nil {
		return errors.New("nil profile")
	}
	if w.mux != nil {
		return errors.Errorf("%s: profile must be applied before inputs are connected", w.name)
	}
	for _, factory := range []string{p.Container, p.Video.Encoder, p.Audio.Encoder} {
		if factory == "" {
			continue
		}
		if _, err := gst.NewElement(factory); err != nil {
			return errors.Wrapf(err, "%s: profile %q: element %s unavailable", w.name, p.Name, factory)
		}
	}
	w.profile = p
	return nil
}

// SetFileName sets the output location
func (w *writerNode) SetFileName(path string) error {
	if path == "" {
		return errors.Errorf("%s: empty output path", w.name)
	}
	return errors.Wrapf(w.filesink.SetProperty("location", path), "%s: set location", w.name)
}

func (w *writerNode) ensureMux() error {
	if w.mux != nil {
		return nil
	}
	factory := defaultMuxer
	if w.profile != nil && w.profile.Container != "" {
		factory = w.profile.Container
	}
	mux, err := gst.NewElement(factory)
	if err != nil {
		return errors.Wrapf(err, "%s: create muxer %s", w.name, factory)
	}
	if err := w.pipeline.Add(mux); err != nil {
		return errors.Wrapf(err, "%s: add muxer", w.name)
	}
	if err := mux.Link(w.filesink); err != nil {
		return errors.Wrapf(err, "%s: link muxer to file", w.name)
	}
	w.mux = mux
	w.elements = append(w.elements, mux)
	return nil
}

// linkBranch creates the encoder for one input and links convert → encoder
// → muxer
func (w *writerNode) linkBranch(convert *gst.Element, factory string, cfg *media.EncoderConfig) error {
	if err := w.ensureMux(); err != nil {
		return err
	}
	if cfg != nil && cfg.Encoder != "" {
		factory = cfg.Encoder
	}
	enc, err := gst.NewElement(factory)
	if err != nil {
		return errors.Wrapf(err, "%s: create encoder %s", w.name, factory)
	}
	if cfg != nil {
		w.configureEncoder(enc, factory, cfg)
	}
	if err := w.pipeline.Add(enc); err != nil {
		return errors.Wrapf(err, "%s: add encoder", w.name)
	}
	w.elements = append(w.elements, enc)
	if err := gst.ElementLinkMany(convert, enc, w.mux); err != nil {
		return errors.Wrapf(err, "%s: link %s branch", w.name, factory)
	}
	return nil
}

func (w *writerNode) linkVideo() error {
	var cfg *media.EncoderConfig
	if w.profile != nil {
		cfg = &w.profile.Video
	}
	return w.linkBranch(w.videoConvert, defaultVideoEncoder, cfg)
}

func (w *writerNode) linkAudio() error {
	var cfg *media.EncoderConfig
	if w.profile != nil {
		cfg = &w.profile.Audio
	}
	return w.linkBranch(w.audioConvert, defaultAudioEncoder, cfg)
}

// configureEncoder applies the profile's bitrate and extra properties.
// A property the encoder does not have is logged and skipped; the writer
// keeps the encoder default for it.
func (w *writerNode) configureEncoder(enc *gst.Element, factory string, cfg *media.EncoderConfig) {
	apply := func(key, value string) {
		if err := setArg(enc, key, value); err != nil {
			w.log.Warn().
				Err(err).
				Str("encoder", factory).
				Str("property", key).
				Str("value", value).
				Msg("gstreamer: encoder setting ignored")
		}
	}
	if cfg.BitrateKbps > 0 {
		apply(bitrateArg(factory, cfg.BitrateKbps))
	}
	for k, v := range cfg.Properties {
		apply(k, v)
	}
}

// setArg sets a property from its textual form, parsed against the
// property's declared type (unsigned, 64-bit, enum nick, ...)
func setArg(elem *gst.Element, key, value string) error {
	if _, err := elem.GetPropertyType(key); err != nil {
		return errors.Errorf("no property %q", key)
	}
	elem.SetArg(key, value)
	return nil
}

// bitrateArg maps a bitrate in kbit/s to the encoder's bitrate property.
// Encoders not listed take "bitrate" in kbit/s, as x264enc does.
func bitrateArg(factory string, kbps int) (key, value string) {
	switch factory {
	case "avenc_aac", "voaacenc", "fdkaacenc", "opusenc", "vorbisenc":
		return "bitrate", strconv.Itoa(kbps * 1000)
	case "vp8enc", "vp9enc":
		return "target-bitrate", strconv.Itoa(kbps * 1000)
	}
	return "bitrate", strconv.Itoa(kbps)
}

// probeNode converts to the requested raw format and taps buffers on the
// capsfilter's source pad
type probeNode struct {
	*node
	pipeline   *Pipeline
	capsfilter *gst.Element
	input      *port
	output     *port

	requested media.VideoFormat
	handler   atomic.Pointer[media.FrameHandler]
}

// SetRequestedFormat constrains the pixel layout
func (p *probeNode) SetRequestedFormat(f media.VideoFormat) error {
	if p.input.peer != nil {
		return errors.Errorf("%s: format must be requested before connection", p.name)
	}
	request := media.VideoFormat{Pixel: f.Pixel}
	caps := gst.NewCapsFromString(videoCaps(request))
	if caps == nil {
		return errors.Errorf("%s: invalid caps %q", p.name, videoCaps(request))
	}
	if err := p.capsfilter.SetProperty("caps", caps); err != nil {
		return errors.Wrapf(err, "%s: set caps", p.name)
	}
	p.requested = f
	return nil
}

// ConnectedFormat returns the negotiated format
//
// Before the pipeline prerolls GStreamer has not negotiated anything yet; the
// geometry then comes from the capture source's format, pinned so the
// eventual negotiation cannot diverge from what is reported.
func (p *probeNode) ConnectedFormat() (media.VideoFormat, error) {
	if p.input.peer == nil {
		return media.VideoFormat{}, errors.Errorf("%s: not connected", p.name)
	}

	if caps := p.output.pad.GetCurrentCaps(); caps != nil && caps.GetSize() > 0 {
		f := formatFromStructure(caps.GetStructureAt(0))
		return withLayout(f), nil
	}

	src := p.pipeline.videoSource
	if src == nil {
		return media.VideoFormat{}, errors.Errorf("%s: no capture source upstream", p.name)
	}
	sf, err := src.Format()
	if err != nil {
		return media.VideoFormat{}, err
	}
	if sf.Width == 0 || sf.Height == 0 {
		// Nothing negotiated yet: pin the device's default size so the
		// snapshot geometry holds once frames flow. Pixel layout and any
		// requested frame rate are kept.
		if adv := src.advertised(); adv.Width > 0 && adv.Height > 0 {
			sf.Width, sf.Height = adv.Width, adv.Height
			if err := src.SetFormat(sf); err != nil {
				return media.VideoFormat{}, err
			}
		}
	}

	f := p.requested
	f.MediaType = "video"
	f.Width = sf.Width
	f.Height = sf.Height
	f.FrameInterval = sf.FrameInterval
	return withLayout(f), nil
}

// SetFrameHandler enables delivery; nil disables it
func (p *probeNode) SetFrameHandler(h media.FrameHandler) {
	if h == nil {
		p.handler.Store(nil)
		return
	}
	p.handler.Store(&h)
}

// onBuffer runs on the streaming thread for every buffer leaving the probe
func (p *probeNode) onBuffer(_ *gst.Pad, info *gst.PadProbeInfo) gst.PadProbeReturn {
	h := p.handler.Load()
	if h == nil {
		return gst.PadProbeOK
	}

	buffer := info.GetBuffer()
	if buffer == nil {
		(*h)(0, nil)
		return gst.PadProbeOK
	}

	mapInfo := buffer.Map(gst.MapRead)
	if mapInfo == nil {
		(*h)(0, nil)
		return gst.PadProbeOK
	}
	(*h)(time.Duration(buffer.PresentationTimestamp()), mapInfo.Bytes())
	buffer.Unmap()
	return gst.PadProbeOK
}

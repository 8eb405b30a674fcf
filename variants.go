package capturegraph

import (
	"fmt"

	"github.com/pkg/errors"

	"github.com/e7canasta/orion-care-sensor/modules/capture-graph/internal/notify"
	"github.com/e7canasta/orion-care-sensor/modules/capture-graph/internal/snapshot"
	"github.com/e7canasta/orion-care-sensor/modules/capture-graph/media"
)

// probeFormat is requested on the frame probe before it is wired
var probeFormat = media.VideoFormat{
	MediaType: "video",
	Pixel:     media.PixelBGR24,
	BitCount:  24,
}

// buildPreview: source → duplicator → renderer
func buildPreview(b *builder) error {
	if err := assembleCapture(b); err != nil {
		return err
	}
	return renderPreview(b)
}

// buildRecord: duplicator "Capture" → writer "Video", optional audio source →
// writer "Audio", duplicator "Preview" → renderer
func buildRecord(b *builder) error {
	if err := assembleCapture(b); err != nil {
		return err
	}

	writer, err := b.add("add file writer", func() (media.Node, error) { return b.pipeline.AddFileWriter("writer") })
	if err != nil {
		return err
	}
	if err := applyProfile(b, writer); err != nil {
		return err
	}

	out, err := b.find("find duplicator capture output", b.duplicator, media.DirectionOutput, portCapture, "")
	if err != nil {
		return err
	}
	in, err := b.find("find writer video input", writer, media.DirectionInput, portVideo, "")
	if err != nil {
		return err
	}
	if err := b.connect("connect duplicator to writer", out, in); err != nil {
		return err
	}

	if err := addAudio(b, writer); err != nil {
		return err
	}
	if err := renderPreview(b); err != nil {
		return err
	}

	sink, ok := writer.(media.FileSink)
	if !ok {
		return b.fail("set output file", errors.Wrapf(media.ErrCapabilityMissing, "%s: file sink", writer.Name()))
	}
	if err := sink.SetFileName(b.opts.OutputPath); err != nil {
		return b.fail("set output file", err)
	}
	b.log.Debug().Str("output", b.opts.OutputPath).Msg("graph: output file set")
	return nil
}

// applyProfile loads and applies the encoding profile. An unusable profile
// is a warning; the writer then records with its defaults.
func applyProfile(b *builder, writer media.Node) error {
	path := b.opts.ProfilePath
	if path == "" {
		b.log.Debug().Msg("graph: no encoding profile requested, writer keeps its defaults")
		return nil
	}

	p, ok := b.profiles.Load(path)
	if !ok {
		b.g.warn(notify.WarnProfileUnavailable, fmt.Sprintf("encoding profile %q unavailable, recording with writer defaults", path), nil)
		return nil
	}
	pc, ok := writer.(media.ProfileConfigurer)
	if !ok {
		b.g.warn(notify.WarnProfileUnavailable, fmt.Sprintf("%s does not accept encoding profiles, recording with writer defaults", writer.Name()), nil)
		return nil
	}
	if err := pc.ApplyProfile(p); err != nil {
		return b.fail("apply encoding profile", err)
	}
	b.g.profile = p
	return nil
}

// addAudio resolves the microphone by name and connects it to the writer.
// No match means a video-only recording and a warning.
func addAudio(b *builder, writer media.Node) error {
	name := b.opts.AudioDeviceName
	if name == "" {
		b.log.Debug().Msg("graph: no microphone requested, recording video only")
		return nil
	}

	dev, found, err := b.catalog.ResolveByName(b.ctx, media.CategoryAudioInput, name)
	if err != nil {
		return b.fail("enumerate audio devices", err)
	}
	if !found {
		b.g.warn(notify.WarnNoAudioDevice, fmt.Sprintf("no microphone matching %q, recording video only", name), nil)
		return nil
	}

	audio, err := b.add("add audio source", func() (media.Node, error) { return b.pipeline.AddSource(dev) })
	if err != nil {
		return err
	}
	out, err := b.find("find audio output", audio, media.DirectionOutput, "", "")
	if err != nil {
		return err
	}
	in, err := b.find("find writer audio input", writer, media.DirectionInput, portAudio, "")
	if err != nil {
		return err
	}
	if err := b.connect("connect audio to writer", out, in); err != nil {
		return err
	}
	b.g.audio = &dev
	return nil
}

// buildScreenshot: duplicator "Preview" → frame probe → renderer
//
// The probe is configured in two phases: the pixel format is requested
// before it is wired, the negotiated geometry is read back once the graph is
// complete.
func buildScreenshot(b *builder) error {
	if err := assembleCapture(b); err != nil {
		return err
	}

	node, err := b.add("add frame probe", func() (media.Node, error) { return b.pipeline.AddFrameProbe("probe") })
	if err != nil {
		return err
	}
	probe, ok := node.(media.FrameProbe)
	if !ok {
		return b.fail("add frame probe", errors.Wrapf(media.ErrCapabilityMissing, "%s: frame probe", node.Name()))
	}
	if err := probe.SetRequestedFormat(probeFormat); err != nil {
		return b.fail("request probe format", err)
	}

	out, err := b.find("find duplicator preview output", b.duplicator, media.DirectionOutput, portPreview, "")
	if err != nil {
		return err
	}
	in, err := b.find("find probe input", node, media.DirectionInput, "", "")
	if err != nil {
		return err
	}
	if err := b.connect("connect duplicator to probe", out, in); err != nil {
		return err
	}

	pass, err := b.find("find probe output", node, media.DirectionOutput, "", "")
	if err != nil {
		return err
	}
	if err := b.render("render probe output", pass); err != nil {
		return err
	}

	format, err := probe.ConnectedFormat()
	if err != nil {
		return b.fail("read negotiated probe format", err)
	}
	b.log.Debug().Stringer("format", format).Msg("graph: probe format negotiated")

	b.g.grabber = snapshot.New(probe, format, b.g.exec, b.g.emitPicture, b.log)
	return nil
}

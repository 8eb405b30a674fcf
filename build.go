package capturegraph

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/e7canasta/orion-care-sensor/modules/capture-graph/internal/catalog"
	"github.com/e7canasta/orion-care-sensor/modules/capture-graph/internal/crossbar"
	"github.com/e7canasta/orion-care-sensor/modules/capture-graph/internal/graphstate"
	"github.com/e7canasta/orion-care-sensor/modules/capture-graph/internal/logging"
	"github.com/e7canasta/orion-care-sensor/modules/capture-graph/internal/metrics"
	"github.com/e7canasta/orion-care-sensor/modules/capture-graph/internal/notify"
	"github.com/e7canasta/orion-care-sensor/modules/capture-graph/internal/ports"
	"github.com/e7canasta/orion-care-sensor/modules/capture-graph/internal/profile"
	"github.com/e7canasta/orion-care-sensor/modules/capture-graph/internal/serial"
	"github.com/e7canasta/orion-care-sensor/modules/capture-graph/media"
)

// Port identifiers matched on runtime nodes. Some capture drivers expose the
// source output under a localized name only.
const (
	portCapture          = "Capture"
	portCaptureLocalized = "Запись"
	portPreview          = "Preview"
	portVideo            = "Video"
	portAudio            = "Audio"
)

// Deps are the collaborators of a build
type Deps struct {
	// Runtime instantiates and drives the nodes (required)
	Runtime media.Runtime
	// Profiles loads encoding profiles; nil reads YAML profile files
	Profiles ProfileLoader
	// Sink receives picture, warning and state events on the graph's
	// serialized executor; nil discards them
	Sink Sink
	// Logger overrides the "graph" component logger
	Logger *zerolog.Logger
	// QueueSize is the executor queue depth (0 = serial.DefaultQueueSize)
	QueueSize int
}

// buildFunc is one variant strategy
type buildFunc func(b *builder) error

// strategies is the closed set of variants Build dispatches on
var strategies = map[Variant]buildFunc{
	VariantPreview:    buildPreview,
	VariantRecord:     buildRecord,
	VariantScreenshot: buildScreenshot,
}

// Build assembles a capture graph for variant
//
// Algorithm:
//  1. Validate options and create an empty runtime pipeline
//  2. Shared capture steps: resolve the video device and add its source,
//     route the requested connector, add the duplicator, configure the
//     stream, connect source to duplicator
//  3. Variant consumer paths off the duplicator outputs
//  4. Attach the state machine (Stopped) and the runtime error hook
//
// Any failing step aborts with *BuildError after removing every node created
// so far (reverse order) and closing the pipeline. Missing microphone,
// unusable encoding profile and failed individual routes are warnings sent
// to deps.Sink, never errors.
func Build(ctx context.Context, deps Deps, variant Variant, opts Options) (*Graph, error) {
	strategy, ok := strategies[variant]
	if !ok {
		return nil, errors.Wrapf(ErrUnknownVariant, "%q", variant)
	}
	if deps.Runtime == nil {
		return nil, errors.New("capture graph: runtime is required")
	}

	id := uuid.New()
	log := logging.WithComponent("graph")
	if deps.Logger != nil {
		log = *deps.Logger
	}
	log = log.With().Str("graph_id", id.String()).Str("variant", variant.String()).Logger()

	g := &Graph{
		id:      id,
		variant: variant,
		opts:    opts,
		log:     log,
		sink:    deps.Sink,
		exec:    serial.New(deps.QueueSize),
	}
	if g.sink == nil {
		g.sink = notify.Discard
	}

	err := g.assemble(ctx, deps, strategy)
	metrics.RecordBuild(variant.String(), err)
	if err != nil {
		g.exec.Close()
		log.Error().Err(err).Str("device_path", opts.VideoDevicePath).Msg("graph: build failed")
		return nil, err
	}

	g.machine = graphstate.New(g.pipeline)
	g.machine.OnCommit(g.onCommit)
	if reporter, ok := g.pipeline.(media.ErrorReporter); ok {
		reporter.SetErrorHandler(g.onRuntimeError)
	}

	log.Info().
		Str("device", g.device.Name).
		Str("device_path", g.device.Path).
		Int("nodes", len(g.nodes)).
		Int("links", len(g.links)).
		Msg("graph: assembled")
	return g, nil
}

func (g *Graph) assemble(ctx context.Context, deps Deps, strategy buildFunc) error {
	if err := g.opts.validate(g.variant); err != nil {
		return &BuildError{Variant: g.variant, Step: "validate options", Err: err}
	}

	pipeline, err := deps.Runtime.NewPipeline(fmt.Sprintf("capture-%s-%s", g.variant, g.id.String()[:8]))
	if err != nil {
		return &BuildError{Variant: g.variant, Step: "create pipeline", Err: err}
	}
	g.pipeline = pipeline

	profiles := deps.Profiles
	if profiles == nil {
		profiles = profile.NewLoader(g.log)
	}

	b := &builder{
		ctx:      ctx,
		g:        g,
		pipeline: pipeline,
		catalog:  catalog.New(deps.Runtime, g.log),
		profiles: profiles,
		opts:     g.opts,
		log:      g.log,
	}
	if err := strategy(b); err != nil {
		if rerr := releaseNodes(pipeline, g.nodes, g.log); rerr != nil {
			g.log.Warn().Err(rerr).Msg("graph: release after failed build")
		}
		g.nodes = nil
		return err
	}
	return nil
}

// builder carries the state of one assembly. Steps record every node they
// create on the graph so a failure can release them.
type builder struct {
	ctx      context.Context
	g        *Graph
	pipeline media.Pipeline
	catalog  *catalog.Catalog
	profiles ProfileLoader
	opts     Options
	log      zerolog.Logger

	source     media.Node
	duplicator media.Node
}

func (b *builder) fail(step string, err error) error {
	return &BuildError{Variant: b.g.variant, Step: step, Err: err}
}

func (b *builder) add(step string, create func() (media.Node, error)) (media.Node, error) {
	node, err := create()
	if err != nil {
		return nil, b.fail(step, err)
	}
	b.g.nodes = append(b.g.nodes, node)
	b.log.Debug().Str("node", node.Name()).Stringer("kind", node.Kind()).Msg("graph: node added")
	return node, nil
}

func (b *builder) connect(step string, out, in media.Port) error {
	if err := b.pipeline.Connect(out, in); err != nil {
		return b.fail(step, err)
	}
	b.g.links = append(b.g.links, Link{Out: qualified(out), In: qualified(in)})
	return nil
}

func (b *builder) render(step string, out media.Port) error {
	if err := b.pipeline.Render(out); err != nil {
		return b.fail(step, err)
	}
	b.g.links = append(b.g.links, Link{Out: qualified(out), In: "renderer"})
	return nil
}

func (b *builder) find(step string, node media.Node, dir media.Direction, primary, secondary string) (media.Port, error) {
	p, err := ports.Find(node, dir, primary, secondary)
	if err != nil {
		return nil, b.fail(step, err)
	}
	return p, nil
}

func qualified(p media.Port) string {
	return p.Node().Name() + "." + p.ID()
}

// releaseNodes removes nodes in reverse creation order and closes the
// pipeline. Every node is attempted; the first error is returned.
func releaseNodes(pipeline media.Pipeline, nodes []media.Node, log zerolog.Logger) error {
	var first error
	for i := len(nodes) - 1; i >= 0; i-- {
		if err := pipeline.Remove(nodes[i]); err != nil {
			log.Warn().Err(err).Str("node", nodes[i].Name()).Msg("graph: remove node failed")
			if first == nil {
				first = errors.Wrapf(err, "remove %s", nodes[i].Name())
			}
		}
	}
	if err := pipeline.Close(); err != nil && first == nil {
		first = errors.Wrap(err, "close pipeline")
	}
	return first
}

// assembleCapture runs the steps every variant shares
func assembleCapture(b *builder) error {
	for _, step := range []buildFunc{
		addVideoSource,
		routeConnector,
		addDuplicator,
		configureStream,
		connectSourceToDuplicator,
	} {
		if err := step(b); err != nil {
			return err
		}
	}
	return nil
}

func addVideoSource(b *builder) error {
	dev, err := b.catalog.ResolveByPath(b.ctx, media.CategoryVideoInput, b.opts.VideoDevicePath)
	if err != nil {
		return b.fail("resolve video device", err)
	}
	b.g.device = dev

	src, err := b.add("add video source", func() (media.Node, error) { return b.pipeline.AddSource(dev) })
	if err != nil {
		return err
	}
	b.source = src
	return nil
}

func routeConnector(b *builder) error {
	if b.opts.Connector == media.ConnectorUnspecified {
		return nil
	}
	res, err := crossbar.Route(b.source, b.opts.Connector, b.log)
	if err != nil {
		return b.fail("route connector", err)
	}
	for _, w := range res.Warnings {
		b.g.warn(notify.WarnRouteFailed, fmt.Sprintf("%s connector route %s failed", b.opts.Connector, w.Pair), w)
	}
	b.g.routing = res
	return nil
}

func addDuplicator(b *builder) error {
	dup, err := b.add("add duplicator", func() (media.Node, error) { return b.pipeline.AddDuplicator("duplicator") })
	if err != nil {
		return err
	}
	b.duplicator = dup
	return nil
}

// configureStream writes the requested size and frame interval into the
// source's active format and commits it back, before the source is connected
func configureStream(b *builder) error {
	if !b.opts.configuresStream() {
		return nil
	}
	sc, ok := b.source.(media.StreamConfigurer)
	if !ok {
		return b.fail("configure stream", errors.Wrapf(media.ErrCapabilityMissing, "%s: stream configuration", b.source.Name()))
	}

	f, err := sc.Format()
	if err != nil {
		return b.fail("read stream format", err)
	}
	if b.opts.Width > 0 {
		f.Width, f.Height = b.opts.Width, b.opts.Height
		f.Stride, f.ImageSize = 0, 0
	}
	if b.opts.FrameRate > 0 {
		f.FrameInterval = media.FrameIntervalFor(b.opts.FrameRate)
	}
	if err := sc.SetFormat(f); err != nil {
		return b.fail("commit stream format", err)
	}
	b.log.Debug().Stringer("format", f).Msg("graph: stream configured")
	return nil
}

func connectSourceToDuplicator(b *builder) error {
	out, err := b.find("find source output", b.source, media.DirectionOutput, portCapture, portCaptureLocalized)
	if err != nil {
		return err
	}
	in, err := b.find("find duplicator input", b.duplicator, media.DirectionInput, "", "")
	if err != nil {
		return err
	}
	return b.connect("connect source to duplicator", out, in)
}

func renderPreview(b *builder) error {
	out, err := b.find("find duplicator preview output", b.duplicator, media.DirectionOutput, portPreview, "")
	if err != nil {
		return err
	}
	return b.render("render preview", out)
}

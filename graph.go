package capturegraph

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/e7canasta/orion-care-sensor/modules/capture-graph/internal/crossbar"
	"github.com/e7canasta/orion-care-sensor/modules/capture-graph/internal/graphstate"
	"github.com/e7canasta/orion-care-sensor/modules/capture-graph/internal/metrics"
	"github.com/e7canasta/orion-care-sensor/modules/capture-graph/internal/notify"
	"github.com/e7canasta/orion-care-sensor/modules/capture-graph/internal/serial"
	"github.com/e7canasta/orion-care-sensor/modules/capture-graph/internal/snapshot"
	"github.com/e7canasta/orion-care-sensor/modules/capture-graph/media"
)

// Graph is one assembled capture session
//
// Control methods (Start, Stop, Pause, Resume, RequestSnapshot, Close) are
// synchronous and meant for a single control goroutine; concurrent
// transitions are rejected rather than queued. Events reach the Sink on the
// graph's serialized executor, never on the caller or a runtime thread.
type Graph struct {
	id      uuid.UUID
	variant Variant
	opts    Options
	log     zerolog.Logger
	sink    Sink
	exec    *serial.Executor

	pipeline media.Pipeline
	machine  *graphstate.Machine

	// Set during assembly, read-only afterwards.
	device  media.Device
	audio   *media.Device
	profile *media.Profile
	routing crossbar.Result
	nodes   []media.Node
	links   []Link
	grabber *snapshot.Grabber

	mu     sync.Mutex
	closed bool
}

// ID returns the graph identifier
func (g *Graph) ID() string { return g.id.String() }

// Variant returns the variant the graph was built as
func (g *Graph) Variant() Variant { return g.variant }

// Options returns the build options
func (g *Graph) Options() Options { return g.opts }

// Device returns the resolved video device
func (g *Graph) Device() media.Device { return g.device }

// AudioDevice returns the microphone connected to the writer, if any
func (g *Graph) AudioDevice() (media.Device, bool) {
	if g.audio == nil {
		return media.Device{}, false
	}
	return *g.audio, true
}

// Profile returns the applied encoding profile, nil when the writer runs on
// its defaults
func (g *Graph) Profile() *media.Profile { return g.profile }

// Routing returns the connector routing outcome
func (g *Graph) Routing() RoutingResult { return g.routing }

// Topology returns every connection made during assembly, in order
func (g *Graph) Topology() []Link {
	out := make([]Link, len(g.links))
	copy(out, g.links)
	return out
}

// SnapshotFormat returns the negotiated probe format. ok is false for
// variants without a probe.
func (g *Graph) SnapshotFormat() (f media.VideoFormat, ok bool) {
	if g.grabber == nil {
		return media.VideoFormat{}, false
	}
	return g.grabber.Format(), true
}

// State returns the lifecycle state
func (g *Graph) State() State { return g.machine.State() }

// Start runs the graph. Valid from Stopped.
func (g *Graph) Start() error { return g.fire(graphstate.Start) }

// Stop halts the graph. Valid from Running or Paused.
func (g *Graph) Stop() error { return g.fire(graphstate.Stop) }

// Pause holds the data flow. Valid from Running.
func (g *Graph) Pause() error { return g.fire(graphstate.Pause) }

// Resume restarts a paused graph. Valid from Paused.
func (g *Graph) Resume() error { return g.fire(graphstate.Resume) }

// fire applies a transition
//
// Semantics:
//   - Wrong from-state: error wraps ErrInvalidStateTransition, no primitive
//     is invoked
//   - Failing primitive: *ControlError, state unchanged
//   - Success: state committed, a state event is emitted
func (g *Graph) fire(ev graphstate.Event) error {
	if g.isClosed() {
		return ErrClosed
	}
	_, err := g.machine.Fire(ev)
	metrics.RecordTransition(string(ev), err)
	if err != nil {
		g.log.Warn().
			Err(err).
			Str("op", string(ev)).
			Str("state", string(g.machine.State())).
			Msg("graph: transition failed")
		return err
	}
	return nil
}

func (g *Graph) onCommit(from, to graphstate.State, ev graphstate.Event) {
	g.log.Info().
		Str("op", string(ev)).
		Str("from", string(from)).
		Str("to", string(to)).
		Msg("graph: state changed")

	e := g.event(notify.KindState)
	e.State = string(to)
	g.post(e)
}

// RequestSnapshot arms the frame probe for the next frame
//
// Returns SnapshotSkipped (no error) while the negotiated geometry is not
// plausible yet, and ErrSnapshotUnsupported for variants without a probe.
// Requests made while one is pending collapse into it. The picture arrives
// as an EventPictureReady event.
func (g *Graph) RequestSnapshot() (SnapshotResult, error) {
	if g.grabber == nil {
		return SnapshotSkipped, ErrSnapshotUnsupported
	}
	if g.isClosed() {
		return SnapshotSkipped, ErrClosed
	}
	res, err := g.grabber.RequestSnapshot()
	if errors.Is(err, snapshot.ErrClosed) {
		return res, ErrClosed
	}
	return res, err
}

// Flush waits until every event emitted so far has reached the sink
func (g *Graph) Flush(ctx context.Context) error {
	if err := g.exec.Flush(ctx); err != nil {
		if errors.Is(err, serial.ErrClosed) {
			return ErrClosed
		}
		return err
	}
	return nil
}

// Close tears the graph down
//
// Algorithm:
//  1. Stop the pipeline unless already stopped
//  2. Disable snapshot delivery
//  3. Remove every node in reverse creation order and close the pipeline
//  4. Deliver pending events and stop the executor
//
// Idempotent. Must not be called from a Sink.
func (g *Graph) Close() error {
	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		return nil
	}
	g.closed = true
	g.mu.Unlock()

	var first error
	if g.machine.State() != graphstate.Stopped {
		_, err := g.machine.Fire(graphstate.Stop)
		metrics.RecordTransition(string(graphstate.Stop), err)
		if err != nil {
			g.log.Warn().Err(err).Msg("graph: stop on close failed")
			first = err
		}
	}

	if g.grabber != nil {
		g.grabber.Close()
	}
	if reporter, ok := g.pipeline.(media.ErrorReporter); ok {
		reporter.SetErrorHandler(nil)
	}

	if err := releaseNodes(g.pipeline, g.nodes, g.log); err != nil && first == nil {
		first = err
	}
	g.exec.Close()

	g.log.Info().Msg("graph: closed")
	return first
}

func (g *Graph) isClosed() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.closed
}

func (g *Graph) event(kind notify.Kind) notify.Event {
	return notify.Event{Kind: kind, GraphID: g.id.String(), Time: time.Now()}
}

// post hands an event to the executor without blocking
func (g *Graph) post(e notify.Event) {
	if !g.exec.Post(func() { g.sink.Notify(e) }) {
		g.log.Warn().Str("kind", string(e.Kind)).Msg("graph: event dropped, executor queue full or closed")
	}
}

// warn emits a non-fatal condition
func (g *Graph) warn(kind notify.WarningKind, msg string, err error) {
	metrics.RecordWarning(string(kind))
	g.log.Warn().Err(err).Str("warning", string(kind)).Msg("graph: " + msg)

	e := g.event(notify.KindWarning)
	e.Warning = &notify.Warning{Kind: kind, Message: msg, Err: err}
	g.post(e)
}

// emitPicture runs on the executor (snapshot completion)
func (g *Graph) emitPicture(pic snapshot.PictureReady) {
	e := g.event(notify.KindPictureReady)
	e.Picture = &pic
	g.sink.Notify(e)
}

// onRuntimeError runs on a runtime goroutine
func (g *Graph) onRuntimeError(err error) {
	g.warn(notify.WarnRuntime, "media runtime error", err)
}

// Package snapshot captures single frames from a running capture graph
//
// A Grabber sits on a frame probe. It is idle (delivery disabled) until
// RequestSnapshot arms it; the next plausible frame is copied into a reused
// capture buffer on the runtime thread, and completion (geometry checks,
// image construction, event emission) runs on the serialized executor.
package snapshot

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/e7canasta/orion-care-sensor/modules/capture-graph/internal/metrics"
	"github.com/e7canasta/orion-care-sensor/modules/capture-graph/internal/serial"
	"github.com/e7canasta/orion-care-sensor/modules/capture-graph/media"
)

const (
	// MinFrameBytes is the smallest plausible frame; anything shorter is a
	// null or truncated buffer
	MinFrameBytes = 1000
	// MaxImageSize bounds the capture buffer allocation
	MaxImageSize = 16_000_000
	// BufferSlack is added to the negotiated image size when allocating
	BufferSlack = 64000

	MinDimension = 32
	MaxDimension = 4096

	bytesPerPixel = 3
)

// ErrClosed is returned by RequestSnapshot after Close
var ErrClosed = errors.New("snapshot: grabber closed")

// PictureReady is emitted once per consumed snapshot request
type PictureReady struct {
	ID         uuid.UUID
	Created    time.Time
	SampleTime time.Duration
	// Image owns its pixels; the capture buffer is reused for the next request
	Image *BGR
}

// Result of RequestSnapshot
type Result int

const (
	// Armed means the next plausible frame will be captured
	Armed Result = iota
	// Skipped means the negotiated geometry is implausible (probe not
	// connected yet); nothing was armed
	Skipped
)

// String returns the metric label of r
func (r Result) String() string {
	if r == Armed {
		return "armed"
	}
	return "skipped"
}

// frameBuffer is owned by exactly one side at a time: parked in the slot, held
// by the runtime thread during the copy, or held by a pending completion
type frameBuffer struct {
	data       []byte
	n          int
	sampleTime time.Duration
}

// Grabber implements single-frame capture over a media.FrameProbe
type Grabber struct {
	probe media.FrameProbe
	exec  *serial.Executor
	emit  func(PictureReady)
	log   zerolog.Logger
	now   func() time.Time

	// Shared with runtime threads.
	armed atomic.Bool
	slot  atomic.Pointer[frameBuffer]
	shut  atomic.Bool

	// Control side.
	mu       sync.Mutex
	format   media.VideoFormat
	capacity int
	enabled  bool
	closed   bool
}

// New creates an idle grabber. format is the probe's negotiated format, read
// back once the graph is fully connected. emit runs on exec.
func New(probe media.FrameProbe, format media.VideoFormat, exec *serial.Executor, emit func(PictureReady), log zerolog.Logger) *Grabber {
	return &Grabber{
		probe:  probe,
		format: format,
		exec:   exec,
		emit:   emit,
		log:    log,
		now:    time.Now,
	}
}

// Format returns the negotiated format the grabber works with
func (g *Grabber) Format() media.VideoFormat {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.format
}

// RequestSnapshot arms the grabber for the next frame
//
// Algorithm:
//  1. Allocate the capture buffer on first use, sized from the negotiated
//     image size plus BufferSlack. An implausible size (< MinFrameBytes or
//     > MaxImageSize) means the probe is not connected: return Skipped
//  2. Set armed (idempotent while already armed)
//  3. Enable frame delivery on the probe if it was idle
func (g *Grabber) RequestSnapshot() (Result, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.closed {
		return Skipped, ErrClosed
	}

	if g.capacity == 0 {
		size := imageSize(g.format)
		if size < MinFrameBytes || size > MaxImageSize {
			g.log.Debug().
				Int("image_size", size).
				Stringer("format", g.format).
				Msg("snapshot: implausible frame size, request ignored")
			metrics.RecordSnapshotRequest(Skipped.String())
			return Skipped, nil
		}
		g.capacity = size + BufferSlack
		g.slot.Store(&frameBuffer{data: make([]byte, g.capacity)})
		g.log.Debug().Int("capacity", g.capacity).Msg("snapshot: capture buffer allocated")
	}

	g.armed.Store(true)
	if !g.enabled {
		g.probe.SetFrameHandler(g.onFrame)
		g.enabled = true
	}

	metrics.RecordSnapshotRequest(Armed.String())
	return Armed, nil
}

// Armed reports whether a request is pending
func (g *Grabber) Armed() bool {
	return g.armed.Load()
}

// onFrame is the probe's frame handler. It runs on runtime threads and must
// never block.
func (g *Grabber) onFrame(sampleTime time.Duration, data []byte) bool {
	if !g.armed.Load() {
		metrics.RecordFrame(metrics.FrameIdle)
		return false
	}
	if data == nil || len(data) < MinFrameBytes {
		metrics.RecordFrame(metrics.FrameRejected)
		return false
	}

	buf := g.slot.Swap(nil)
	if buf == nil {
		// Previous completion still owns the buffer.
		metrics.RecordFrame(metrics.FrameRejected)
		return false
	}
	if len(data) > len(buf.data) {
		g.slot.Store(buf)
		metrics.RecordFrame(metrics.FrameRejected)
		return false
	}
	if !g.armed.CompareAndSwap(true, false) {
		// Another runtime thread consumed the request first.
		g.slot.Store(buf)
		metrics.RecordFrame(metrics.FrameIdle)
		return false
	}

	buf.n = copy(buf.data, data)
	buf.sampleTime = sampleTime

	if !g.exec.Post(func() { g.complete(buf) }) {
		// Executor queue full: give the request back so a later frame
		// completes it.
		g.slot.Store(buf)
		g.rearm()
		metrics.RecordFrame(metrics.FrameDropped)
		return false
	}
	metrics.RecordFrame(metrics.FrameAccepted)
	return true
}

// rearm restores a request consumed by a frame that could not be completed.
// Close sets shut before clearing armed, so a re-arm racing Close is undone.
func (g *Grabber) rearm() {
	if !g.armed.CompareAndSwap(false, true) {
		return
	}
	if g.shut.Load() {
		g.armed.Store(false)
	}
}

// complete runs on the serialized executor
func (g *Grabber) complete(buf *frameBuffer) {
	g.mu.Lock()
	if g.enabled && !g.armed.Load() {
		g.probe.SetFrameHandler(nil)
		g.enabled = false
	}
	format := g.format
	closed := g.closed
	g.mu.Unlock()

	if closed {
		return
	}
	defer g.slot.Store(buf)

	img, err := decode(buf.data[:buf.n], format)
	if err != nil {
		g.log.Debug().Err(err).Stringer("format", format).Msg("snapshot: frame dropped")
		return
	}

	pic := PictureReady{
		ID:         uuid.New(),
		Created:    g.now(),
		SampleTime: buf.sampleTime,
		Image:      img,
	}
	metrics.RecordPicture()
	g.log.Debug().
		Str("picture_id", pic.ID.String()).
		Int("width", format.Width).
		Int("height", format.Height).
		Dur("sample_time", buf.sampleTime).
		Msg("snapshot: picture ready")

	if g.emit != nil {
		g.emit(pic)
	}
}

// Close disables delivery and releases the capture buffer. Idempotent.
func (g *Grabber) Close() {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.closed {
		return
	}
	g.closed = true
	g.shut.Store(true)
	g.armed.Store(false)
	if g.enabled {
		g.probe.SetFrameHandler(nil)
		g.enabled = false
	}
	g.slot.Store(nil)
	g.capacity = 0
}

// decode validates geometry and builds an image owning a copy of the pixels
func decode(data []byte, f media.VideoFormat) (*BGR, error) {
	if err := ValidateGeometry(f.Width, f.Height); err != nil {
		return nil, err
	}
	stride := f.Stride
	if stride <= 0 {
		stride = f.Width * bytesPerPixel
	}
	need := stride * f.Height
	if len(data) < need {
		return nil, errors.Wrapf(media.ErrInvalidGeometry, "frame has %d bytes, %dx%d needs %d", len(data), f.Width, f.Height, need)
	}

	pix := make([]byte, need)
	copy(pix, data[:need])
	return NewBGR(pix, f.Width, f.Height, stride, f.TopDown), nil
}

// ValidateGeometry rejects degenerate or oversized frames. Width must be a
// multiple of 4 so 24-bit rows need no padding.
func ValidateGeometry(width, height int) error {
	switch {
	case width%4 != 0:
		return errors.Wrapf(media.ErrInvalidGeometry, "width %d not a multiple of 4", width)
	case width < MinDimension || height < MinDimension:
		return errors.Wrapf(media.ErrInvalidGeometry, "%dx%d below %d", width, height, MinDimension)
	case width > MaxDimension || height > MaxDimension:
		return errors.Wrapf(media.ErrInvalidGeometry, "%dx%d above %d", width, height, MaxDimension)
	}
	return nil
}

func imageSize(f media.VideoFormat) int {
	if f.ImageSize > 0 {
		return f.ImageSize
	}
	stride := f.Stride
	if stride <= 0 {
		stride = f.Width * bytesPerPixel
	}
	return stride * f.Height
}

package api

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/pkg/errors"

	capturegraph "github.com/e7canasta/orion-care-sensor/modules/capture-graph"
	"github.com/e7canasta/orion-care-sensor/modules/capture-graph/internal/notify"
	"github.com/e7canasta/orion-care-sensor/modules/capture-graph/internal/snapshot"
	"github.com/e7canasta/orion-care-sensor/modules/capture-graph/media"
)

type deviceView struct {
	Name     string `json:"name"`
	Path     string `json:"path"`
	Category string `json:"category"`
}

func viewDevice(d media.Device) deviceView {
	return deviceView{Name: d.Name, Path: d.Path, Category: d.Category.String()}
}

type formatView struct {
	Pixel  string  `json:"pixel"`
	Width  int     `json:"width"`
	Height int     `json:"height"`
	Stride int     `json:"stride"`
	FPS    float64 `json:"fps,omitempty"`
}

type graphView struct {
	ID          string      `json:"id"`
	Variant     string      `json:"variant"`
	State       string      `json:"state"`
	Device      deviceView  `json:"device"`
	AudioDevice *deviceView `json:"audio_device,omitempty"`
	Profile     string      `json:"profile,omitempty"`
	Output      string      `json:"output,omitempty"`
	Topology    []string    `json:"topology"`
	RouteErrors int         `json:"route_errors"`
	Snapshot    *formatView `json:"snapshot_format,omitempty"`
}

func (s *Server) handleDevices(w http.ResponseWriter, r *http.Request) {
	category, err := media.ParseCategory(r.URL.Query().Get("category"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	devices, err := s.catalog.Enumerate(r.Context(), category)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	out := make([]deviceView, 0, len(devices))
	for _, d := range devices {
		out = append(out, viewDevice(d))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleGraph(w http.ResponseWriter, _ *http.Request) {
	g := s.graph
	v := graphView{
		ID:          g.ID(),
		Variant:     g.Variant().String(),
		State:       string(g.State()),
		Device:      viewDevice(g.Device()),
		Output:      g.Options().OutputPath,
		RouteErrors: len(g.Routing().Warnings),
	}
	if audio, ok := g.AudioDevice(); ok {
		av := viewDevice(audio)
		v.AudioDevice = &av
	}
	if p := g.Profile(); p != nil {
		v.Profile = p.Name
	}
	for _, l := range g.Topology() {
		v.Topology = append(v.Topology, l.String())
	}
	if f, ok := g.SnapshotFormat(); ok {
		v.Snapshot = &formatView{
			Pixel:  string(f.Pixel),
			Width:  f.Width,
			Height: f.Height,
			Stride: f.Stride,
			FPS:    f.FrameRate(),
		}
	}
	writeJSON(w, http.StatusOK, v)
}

func (s *Server) handleGraphOp(w http.ResponseWriter, r *http.Request) {
	ops := map[string]func() error{
		"start":  s.graph.Start,
		"stop":   s.graph.Stop,
		"pause":  s.graph.Pause,
		"resume": s.graph.Resume,
	}
	op := chi.URLParam(r, "op")
	fn, ok := ops[op]
	if !ok {
		writeError(w, http.StatusNotFound, errors.Errorf("unknown operation %q", op))
		return
	}

	if err := fn(); err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"state": string(s.graph.State())})
}

// statusFor maps graph errors to HTTP status codes
func statusFor(err error) int {
	var ce *capturegraph.ControlError
	switch {
	case errors.Is(err, capturegraph.ErrInvalidStateTransition),
		errors.Is(err, capturegraph.ErrSnapshotUnsupported):
		return http.StatusConflict
	case errors.Is(err, capturegraph.ErrClosed):
		return http.StatusServiceUnavailable
	case errors.As(err, &ce):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

var contentTypes = map[string]string{
	snapshot.FormatPNG:  "image/png",
	snapshot.FormatJPEG: "image/jpeg",
	snapshot.FormatBMP:  "image/bmp",
}

// handleSnapshot arms the probe and waits for the picture
//
// Algorithm:
//  1. Subscribe to picture events before arming, so the picture cannot be
//     missed
//  2. RequestSnapshot; Skipped answers 503 with Retry-After
//  3. Wait for the picture or the timeout (504), encode it in the requested
//     format
func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	format, err := snapshot.ParseFormat(r.URL.Query().Get("format"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	ch := make(chan notify.Event, 1)
	id := fmt.Sprintf("api-snapshot-%d", s.subscriptions.Add(1))
	if err := s.bus.Subscribe(id, ch, notify.KindPictureReady); err != nil {
		writeError(w, http.StatusServiceUnavailable, err)
		return
	}
	defer func() { _ = s.bus.Unsubscribe(id) }()

	res, err := s.graph.RequestSnapshot()
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	if res == capturegraph.SnapshotSkipped {
		w.Header().Set("Retry-After", "1")
		writeError(w, http.StatusServiceUnavailable, errors.New("frame geometry not negotiated yet"))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.SnapshotTimeout)
	defer cancel()

	var pic *snapshot.PictureReady
	for pic == nil {
		select {
		case ev := <-ch:
			if ev.GraphID == s.graph.ID() && ev.Picture != nil {
				pic = ev.Picture
			}
		case <-ctx.Done():
			writeError(w, http.StatusGatewayTimeout, errors.Wrap(ctx.Err(), "waiting for picture"))
			return
		}
	}

	var buf bytes.Buffer
	if err := snapshot.Encode(&buf, pic.Image.RGBA(), format, s.cfg.JPEGQuality); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	w.Header().Set("Content-Type", contentTypes[format])
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.Header().Set("X-Picture-Id", pic.ID.String())
	w.Header().Set("X-Sample-Time", pic.SampleTime.String())
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())

	s.log.Info().
		Str("picture_id", pic.ID.String()).
		Str("format", format).
		Int("bytes", buf.Len()).
		Msg("api: snapshot served")
}

// Package metrics provides Prometheus collectors for capture graphs.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Label values. Kept to small closed sets: no device paths or graph ids.
const (
	ResultOK    = "ok"
	ResultError = "error"

	FrameAccepted = "accepted"
	FrameIdle     = "idle"
	FrameRejected = "rejected"
	FrameDropped  = "dropped"
)

var (
	// BuildsTotal counts graph assemblies by variant and result.
	BuildsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "capture_graph_builds_total",
		Help: "Total number of capture graph builds, by variant and result.",
	}, []string{"variant", "result"})

	// StateTransitionsTotal counts state machine operations by op and result.
	StateTransitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "capture_graph_state_transitions_total",
		Help: "Total number of graph state transitions attempted, by operation and result.",
	}, []string{"op", "result"})

	// SnapshotRequestsTotal counts snapshot requests by result.
	SnapshotRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "capture_graph_snapshot_requests_total",
		Help: "Total number of snapshot requests, by result (armed/skipped/error).",
	}, []string{"result"})

	// FramesTotal counts frames seen by the snapshot probe by outcome.
	FramesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "capture_graph_frames_total",
		Help: "Total number of frames delivered to the snapshot probe, by outcome.",
	}, []string{"outcome"})

	// PicturesTotal counts emitted pictures.
	PicturesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "capture_graph_pictures_total",
		Help: "Total number of pictures emitted by snapshot capture.",
	})

	// WarningsTotal counts user-facing warnings by kind.
	WarningsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "capture_graph_warnings_total",
		Help: "Total number of non-fatal build warnings, by kind.",
	}, []string{"kind"})

	// RuntimeErrorsTotal counts media runtime bus errors by category.
	RuntimeErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "capture_graph_runtime_errors_total",
		Help: "Total number of media runtime errors, by category.",
	}, []string{"category"})

	// SourceFrameRate is the delivered frame rate of the video source over
	// the last measurement window, and whether it was stable.
	SourceFrameRate = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "capture_graph_source_frame_rate",
		Help: "Measured video source frame rate (fps) over the last window.",
	}, []string{"stable"})
)

// RecordBuild increments the build counter.
func RecordBuild(variant string, err error) {
	BuildsTotal.WithLabelValues(variant, result(err)).Inc()
}

// RecordTransition increments the transition counter.
func RecordTransition(op string, err error) {
	StateTransitionsTotal.WithLabelValues(op, result(err)).Inc()
}

// RecordSnapshotRequest increments the snapshot request counter.
func RecordSnapshotRequest(outcome string) {
	SnapshotRequestsTotal.WithLabelValues(outcome).Inc()
}

// RecordFrame increments the frame counter.
func RecordFrame(outcome string) {
	FramesTotal.WithLabelValues(outcome).Inc()
}

// RecordPicture increments the picture counter.
func RecordPicture() {
	PicturesTotal.Inc()
}

// RecordWarning increments the warning counter.
func RecordWarning(kind string) {
	WarningsTotal.WithLabelValues(kind).Inc()
}

// RecordRuntimeError increments the runtime error counter.
func RecordRuntimeError(category string) {
	RuntimeErrorsTotal.WithLabelValues(category).Inc()
}

// RecordSourceRate publishes the measured source rate. The gauge of the other
// stability label is zeroed.
func RecordSourceRate(fps float64, stable bool) {
	on, off := "true", "false"
	if !stable {
		on, off = off, on
	}
	SourceFrameRate.WithLabelValues(on).Set(fps)
	SourceFrameRate.WithLabelValues(off).Set(0)
}

func result(err error) string {
	if err != nil {
		return ResultError
	}
	return ResultOK
}

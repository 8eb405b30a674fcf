// Package capturegraph builds and drives real-time capture pipelines for
// physical video devices (USB/PCI capture cards, webcams, document cameras).
//
// A graph captures live video, and optionally audio, through a stream
// duplicator that splits it into independent consumer paths: an on-screen
// preview, a file writer, or a frame probe that extracts single pictures on
// demand. The media framework itself (node instantiation, format
// negotiation, buffer transport) sits behind the media.Runtime contract; the
// production runtime is GStreamer (internal/gstreamer), tests use
// media/mediatest.
//
// # Quick Start
//
// Preview a capture card on its S-Video input at 720p:
//
//	g, err := capturegraph.Build(ctx, capturegraph.Deps{Runtime: rt},
//	    capturegraph.VariantPreview,
//	    capturegraph.Options{
//	        VideoDevicePath: "/dev/video0",
//	        Connector:       media.ConnectorSVideo,
//	        Width:           1280,
//	        Height:          720,
//	    })
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer g.Close()
//
//	if err := g.Start(); err != nil {
//	    log.Fatal(err)
//	}
//
// # Variants
//
//	preview:    source → duplicator ─Preview→ renderer
//	record:     source → duplicator ─Capture→ writer.Video
//	                               └Preview→ renderer
//	            microphone ─────────────────→ writer.Audio   (when found)
//	screenshot: source → duplicator ─Preview→ probe → renderer
//
// Every variant shares the same capture steps: resolve the device by path,
// route the requested physical connector when the device sits behind a
// crossbar, add the duplicator, apply the requested size and frame rate, and
// connect the source to the duplicator.
//
// # Errors and warnings
//
// Assembly is all-or-nothing: any failing step returns *BuildError and every
// node created so far is released. A missing microphone, an unusable
// encoding profile and individual connector routes that fail are not errors;
// they are reported as Warning events and the build carries on (video-only
// recording, writer defaults, remaining routes).
//
// # State machine
//
//	Start:  stopped → running
//	Pause:  running → paused
//	Resume: paused  → running
//	Stop:   running|paused → stopped
//
// Calls from any other state fail with ErrInvalidStateTransition. A failing
// runtime primitive returns *ControlError and the state does not change.
//
// # Snapshots
//
// On screenshot graphs RequestSnapshot arms the probe; the next plausible
// frame is copied on the runtime thread and converted on the graph's
// serialized executor, which emits one EventPictureReady carrying the image.
// While no request is pending the probe's delivery callback is disabled.
//
// # Events
//
// Deps.Sink receives picture, warning and state events, always from the
// graph's single executor goroutine. internal/notify provides a fan-out bus
// for multiple subscribers.
package capturegraph

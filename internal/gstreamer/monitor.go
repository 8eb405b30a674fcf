package gstreamer

import (
	"context"
	"fmt"
	"time"

	"github.com/tinyzimmer/go-gst/gst"

	"github.com/e7canasta/orion-care-sensor/modules/capture-graph/internal/metrics"
)

// busPollInterval keeps shutdown responsive
const busPollInterval = 50 * time.Millisecond

// monitor polls the pipeline bus until ctx is cancelled
//
// This function:
//  1. Signals EOS to a waiting Stop
//  2. Classifies errors, counts them and forwards them to the error handler
//  3. Logs pipeline state changes
//
// Unlike a reconnecting stream, a capture pipeline does not end on error: the
// graph decides what to do with the reported failure.
func (p *Pipeline) monitor(ctx context.Context) {
	defer close(p.monitorDone)
	bus := p.pipeline.GetPipelineBus()

	for {
		select {
		case <-ctx.Done():
			p.log.Debug().Msg("gstreamer: context cancelled, stopping bus monitor")
			return
		default:
		}

		msg := bus.TimedPop(busPollInterval)
		if msg == nil {
			continue
		}

		switch msg.Type() {
		case gst.MessageEOS:
			p.log.Debug().Msg("gstreamer: end of stream received")
			select {
			case p.eos <- struct{}{}:
			default:
			}

		case gst.MessageError:
			gerr := msg.ParseError()
			rerr := &RuntimeError{
				Category: ClassifyError(gerr.Error(), gerr.DebugString()),
				Source:   msg.Source(),
				Message:  gerr.Error(),
				Debug:    gerr.DebugString(),
			}
			p.counts[rerr.Category].Add(1)
			metrics.RecordRuntimeError(rerr.Category.String())

			p.log.Error().
				Str("error", rerr.Message).
				Str("debug", rerr.Debug).
				Str("source", rerr.Source).
				Str("category", rerr.Category.String()).
				Msg("gstreamer: pipeline error")

			if h := p.handler.Load(); h != nil {
				(*h)(rerr)
			}

		case gst.MessageStateChanged:
			if msg.Source() == p.pipeline.GetName() {
				old, next := msg.ParseStateChanged()
				p.log.Debug().
					Str("from", fmt.Sprint(old)).
					Str("to", fmt.Sprint(next)).
					Msg("gstreamer: pipeline state changed")
			}
		}
	}
}

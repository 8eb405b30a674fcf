// Package crossbar routes a physical input connector to the outputs of a
// capture device's routing node
package crossbar

import (
	"fmt"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/e7canasta/orion-care-sensor/modules/capture-graph/media"
)

// Pair is one (output, input) connector pair
type Pair struct {
	Out int
	In  int
}

// String returns "out<-in"
func (p Pair) String() string {
	return fmt.Sprintf("%d<-%d", p.Out, p.In)
}

// RoutingWarning records one non-fatal routing failure
type RoutingWarning struct {
	Pair Pair
	Err  error
}

func (w RoutingWarning) Error() string {
	return fmt.Sprintf("route %s: %v", w.Pair, w.Err)
}

// Unwrap returns the runtime failure
func (w RoutingWarning) Unwrap() error { return w.Err }

// Result summarizes one routing pass
type Result struct {
	// Skipped is true when the node has nothing to route
	Skipped bool
	// Routed lists successful Route calls in call order
	Routed []Pair
	// Warnings lists failed Route calls
	Warnings []RoutingWarning
}

// Active returns the input left routed to each output (last match wins)
func (r Result) Active() map[int]int {
	m := make(map[int]int, len(r.Routed))
	for _, p := range r.Routed {
		m[p.Out] = p.In
	}
	return m
}

// Route selects the inputs of node's crossbar whose physical type equals
// desired and routes them to every output that can reach them
//
// Algorithm:
//  1. Node without a routing capability (or no crossbar behind it): no-op
//  2. Read the output/input counts
//  3. For every output, for every input: skip infeasible pairs, read the
//     input's physical type, route when it equals desired
//
// Scanning continues after a match, so when several inputs share the desired
// type each output ends up on the last of them. Per-pair failures never abort
// the pass: an unreadable input type is skipped and a failed Route is
// collected as a RoutingWarning. Only a failure querying the capability or
// its counts is returned as an error.
func Route(node media.Node, desired media.ConnectorType, log zerolog.Logger) (Result, error) {
	var res Result

	provider, ok := node.(media.RoutingProvider)
	if !ok {
		res.Skipped = true
		return res, nil
	}

	bar, err := provider.Crossbar()
	if err != nil {
		return res, errors.Wrapf(err, "crossbar: query routing capability of %s", node.Name())
	}
	if bar == nil {
		res.Skipped = true
		return res, nil
	}

	outputs, inputs, err := bar.PinCounts()
	if err != nil {
		return res, errors.Wrapf(err, "crossbar: read pin counts of %s", node.Name())
	}

	for out := 0; out < outputs; out++ {
		for in := 0; in < inputs; in++ {
			if !bar.CanRoute(out, in) {
				continue
			}

			kind, err := bar.InputType(in)
			if err != nil {
				log.Debug().Err(err).Int("input", in).Msg("crossbar: input type unavailable")
				continue
			}
			if kind != desired {
				continue
			}

			pair := Pair{Out: out, In: in}
			if err := bar.Route(out, in); err != nil {
				res.Warnings = append(res.Warnings, RoutingWarning{Pair: pair, Err: err})
				log.Warn().Err(err).
					Stringer("pair", pair).
					Str("connector", desired.String()).
					Msg("crossbar: route failed")
				continue
			}
			res.Routed = append(res.Routed, pair)
		}
	}

	log.Debug().
		Str("node", node.Name()).
		Str("connector", desired.String()).
		Int("routed", len(res.Routed)).
		Int("warnings", len(res.Warnings)).
		Msg("crossbar: routing pass complete")

	return res, nil
}

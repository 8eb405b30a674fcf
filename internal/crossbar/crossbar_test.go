package crossbar

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/e7canasta/orion-care-sensor/modules/capture-graph/media"
	"github.com/e7canasta/orion-care-sensor/modules/capture-graph/media/mediatest"
)

func TestRouteSelectsDesiredInputOnEveryOutput(t *testing.T) {
	bar := &mediatest.Crossbar{
		Outputs: 2,
		Inputs:  []media.ConnectorType{media.ConnectorComposite, media.ConnectorSVideo},
	}
	node := mediatest.NewRoutingNode("cam", bar)

	res, err := Route(node, media.ConnectorSVideo, zerolog.Nop())
	require.NoError(t, err)

	assert.Equal(t, []Pair{{Out: 0, In: 1}, {Out: 1, In: 1}}, res.Routed)
	assert.Empty(t, res.Warnings)
	assert.Equal(t, [][2]int{{0, 1}, {1, 1}}, bar.Routes())
	for _, r := range bar.Routes() {
		assert.NotEqual(t, 0, r[1], "composite input must not be routed")
	}
}

func TestRouteLastMatchingInputWins(t *testing.T) {
	bar := &mediatest.Crossbar{
		Outputs: 1,
		Inputs: []media.ConnectorType{
			media.ConnectorComposite,
			media.ConnectorComposite,
			media.ConnectorSVideo,
		},
	}
	node := mediatest.NewRoutingNode("cam", bar)

	res, err := Route(node, media.ConnectorComposite, zerolog.Nop())
	require.NoError(t, err)

	assert.Equal(t, []Pair{{Out: 0, In: 0}, {Out: 0, In: 1}}, res.Routed)
	assert.Equal(t, map[int]int{0: 1}, res.Active())
	in, ok := bar.Active(0)
	require.True(t, ok)
	assert.Equal(t, 1, in)
}

func TestRouteRespectsFeasibility(t *testing.T) {
	bar := &mediatest.Crossbar{
		Outputs: 2,
		Inputs:  []media.ConnectorType{media.ConnectorSVideo},
		Reach:   func(out, in int) bool { return out == 1 },
	}
	node := mediatest.NewRoutingNode("cam", bar)

	res, err := Route(node, media.ConnectorSVideo, zerolog.Nop())
	require.NoError(t, err)
	assert.Equal(t, []Pair{{Out: 1, In: 0}}, res.Routed)
}

func TestRoutePerPairFailuresAreNonFatal(t *testing.T) {
	bar := &mediatest.Crossbar{
		Outputs: 2,
		Inputs:  []media.ConnectorType{media.ConnectorSVideo, media.ConnectorSVideo},
		TypeErr: map[int]error{0: errors.New("pin info unavailable")},
		RouteErr: map[[2]int]error{
			{0, 1}: errors.New("route rejected"),
		},
	}
	node := mediatest.NewRoutingNode("cam", bar)

	res, err := Route(node, media.ConnectorSVideo, zerolog.Nop())
	require.NoError(t, err)

	assert.Equal(t, []Pair{{Out: 1, In: 1}}, res.Routed)
	require.Len(t, res.Warnings, 1)
	assert.Equal(t, Pair{Out: 0, In: 1}, res.Warnings[0].Pair)
	assert.Contains(t, res.Warnings[0].Error(), "route rejected")
}

func TestRouteNoCapability(t *testing.T) {
	plain := mediatest.NewNode("cam", media.NodeVideoSource, mediatest.Out("Capture"))
	res, err := Route(plain, media.ConnectorComposite, zerolog.Nop())
	require.NoError(t, err)
	assert.True(t, res.Skipped)

	empty := mediatest.NewRoutingNode("cam", nil)
	res, err = Route(empty, media.ConnectorComposite, zerolog.Nop())
	require.NoError(t, err)
	assert.True(t, res.Skipped)
}

func TestRouteEscalatesCapabilityFailures(t *testing.T) {
	tests := []struct {
		name string
		bar  *mediatest.Crossbar
	}{
		{
			name: "capability query",
			bar:  &mediatest.Crossbar{QueryErr: errors.New("no interface")},
		},
		{
			name: "pin counts",
			bar:  &mediatest.Crossbar{CountsErr: errors.New("driver error")},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Route(mediatest.NewRoutingNode("cam", tt.bar), media.ConnectorSVideo, zerolog.Nop())
			require.Error(t, err)
		})
	}
}

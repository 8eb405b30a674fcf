package ports

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/e7canasta/orion-care-sensor/modules/capture-graph/media"
	"github.com/e7canasta/orion-care-sensor/modules/capture-graph/media/mediatest"
)

func duplicator() *mediatest.Node {
	return mediatest.NewNode("tee", media.NodeDuplicator,
		mediatest.Out("Capture"),
		mediatest.Out("Preview"),
	)
}

func TestFind(t *testing.T) {
	tests := []struct {
		name      string
		node      *mediatest.Node
		dir       media.Direction
		primary   string
		secondary string
		wantID    string
		wantErr   error
	}{
		{
			name:    "exact name",
			node:    duplicator(),
			dir:     media.DirectionOutput,
			primary: "Preview",
			wantID:  "Preview",
		},
		{
			name:    "unknown name falls back to first port",
			node:    duplicator(),
			dir:     media.DirectionOutput,
			primary: "NoSuchName",
			wantID:  "Capture",
		},
		{
			name:   "no name takes first port",
			node:   duplicator(),
			dir:    media.DirectionOutput,
			wantID: "Capture",
		},
		{
			name:    "no port of direction",
			node:    duplicator(),
			dir:     media.DirectionInput,
			primary: "anything",
			wantErr: media.ErrPortNotFound,
		},
		{
			name: "secondary localized name",
			node: mediatest.NewNode("cam", media.NodeVideoSource,
				mediatest.Out("Просмотр"),
				mediatest.Out("Запись"),
			),
			dir:       media.DirectionOutput,
			primary:   "Capture",
			secondary: "Запись",
			wantID:    "Запись",
		},
		{
			name: "substring match",
			node: mediatest.NewNode("cam", media.NodeVideoSource,
				mediatest.Out("Still"),
				mediatest.Out("Video Capture"),
			),
			dir:     media.DirectionOutput,
			primary: "Capture",
			wantID:  "Video Capture",
		},
		{
			name: "empty secondary is ignored",
			node: mediatest.NewNode("cam", media.NodeVideoSource,
				mediatest.Out("Still"),
				mediatest.Out("Preview"),
			),
			dir:     media.DirectionOutput,
			primary: "Preview",
			wantID:  "Preview",
		},
		{
			name: "direction filter skips other ports",
			node: mediatest.NewNode("probe", media.NodeFrameProbe,
				mediatest.Out("Output"),
				mediatest.In("Input"),
			),
			dir:    media.DirectionInput,
			wantID: "Input",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Find(tt.node, tt.dir, tt.primary, tt.secondary)
			if tt.wantErr != nil {
				require.Error(t, err)
				assert.True(t, errors.Is(err, tt.wantErr), "got %v", err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantID, got.ID())
			assert.Equal(t, tt.dir, got.Direction())
		})
	}
}

func TestFindEnumerationFailure(t *testing.T) {
	node := duplicator()
	node.PortsErr = errors.New("device unplugged")

	_, err := Find(node, media.DirectionOutput, "Capture", "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "device unplugged")
	assert.False(t, errors.Is(err, media.ErrPortNotFound))
}

func TestFirst(t *testing.T) {
	node := mediatest.NewNode("writer", media.NodeFileWriter,
		mediatest.In("Video"),
		mediatest.In("Audio"),
	)
	p, err := First(node, media.DirectionInput)
	require.NoError(t, err)
	assert.Equal(t, "Video", p.ID())
	assert.Same(t, node, p.Node())
}

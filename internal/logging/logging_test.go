package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigureAndWithComponent(t *testing.T) {
	var buf bytes.Buffer
	Configure(Config{Level: "debug", Output: &buf})

	log := WithComponent("snapshot")
	log.Info().Str("graph_id", "g1").Msg("snapshot: armed")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "snapshot", entry["component"])
	assert.Equal(t, "capture-graph", entry["service"])
	assert.Equal(t, "g1", entry["graph_id"])
	assert.Equal(t, "snapshot: armed", entry["message"])

	// Second call is ignored.
	var other bytes.Buffer
	Configure(Config{Output: &other})
	second := WithComponent("x")
	second.Info().Msg("still first writer")
	assert.Zero(t, other.Len())
}

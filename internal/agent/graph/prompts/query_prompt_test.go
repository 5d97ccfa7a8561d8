package prompts

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderQuerySystem(t *testing.T) {
	got, err := RenderQuerySystem(context.Background())
	require.NoError(t, err)

	assert.Contains(t, got, "energy consumption assistant")
	assert.Contains(t, got, "Use query_readings")
	assert.Contains(t, got, "Use get_electricity_price")
	assert.Contains(t, got, "Use generate_plot")
	assert.NotContains(t, got, "{{")
}

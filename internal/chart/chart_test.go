package chart

import (
	"bytes"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	errx "github.com/energy-monitor/server/internal/core/error"
)

func TestRenderWritesPNG(t *testing.T) {
	r := NewRenderer(t.TempDir())
	r.now = func() time.Time { return time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC) }

	base := time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC)
	path, err := r.Render("SM123", 30, []Point{
		{Date: base, Value: 100},
		{Date: base.AddDate(0, 0, 1), Value: 112.5},
		{Date: base.AddDate(0, 0, 3), Value: 130},
	})
	require.NoError(t, err)

	assert.True(t, IsChartPath(path))
	assert.Contains(t, path, "energy_plot_SM123_20240115_103000.png")
	b, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(b, []byte("\x89PNG")))
}

func TestRenderNeedsTwoPoints(t *testing.T) {
	dir := t.TempDir()
	r := NewRenderer(dir)

	_, err := r.Render("SM1", 7, []Point{{Date: time.Now(), Value: 1}})
	require.ErrorIs(t, err, errx.ErrInsufficientData)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestFileNameSanitisesRequestID(t *testing.T) {
	got := FileName("../x y", time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC))
	assert.Equal(t, "energy_plot____x_y_20240102_030405.png", got)
}

func TestIsChartPath(t *testing.T) {
	assert.True(t, IsChartPath(" static/plots/energy_plot_a_20240101_000000.png\n"))
	assert.False(t, IsChartPath("static/plots/energy_plot_a.jpg"))
	assert.False(t, IsChartPath("Error: Only 1 reading found in the last 7 days."))
}

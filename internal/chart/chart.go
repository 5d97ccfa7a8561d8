// Package chart renders reading history as a PNG line chart.
package chart

import (
	"fmt"
	"image/color"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	errx "github.com/energy-monitor/server/internal/core/error"
)

const (
	// FilePrefix starts every generated chart file name.
	FilePrefix = "energy_plot_"
	fileExt    = ".png"
)

var lineColor = color.RGBA{R: 0x2e, G: 0x86, B: 0xab, A: 0xff}

// Point is one dated measurement.
type Point struct {
	Date  time.Time
	Value float64
}

// Renderer writes charts into a directory.
type Renderer struct {
	dir string
	now func() time.Time
}

// NewRenderer returns a Renderer writing to dir.
func NewRenderer(dir string) *Renderer {
	return &Renderer{dir: dir, now: time.Now}
}

// Dir returns the output directory.
func (r *Renderer) Dir() string {
	return r.dir
}

// Render draws points for the last days days and returns the file path. The
// file name embeds requestID so concurrent requests never collide. Fewer than
// two points yields errx.ErrInsufficientData.
func (r *Renderer) Render(requestID string, days int, points []Point) (string, error) {
	if len(points) < 2 {
		return "", fmt.Errorf("%w: %d point(s)", errx.ErrInsufficientData, len(points))
	}

	p := plot.New()
	p.Title.Text = fmt.Sprintf("Energy Consumption - Last %d Days", days)
	p.X.Label.Text = "Date"
	p.Y.Label.Text = "Energy Consumption (kWh)"
	p.X.Tick.Marker = plot.TimeTicks{Format: "2006-01-02"}
	p.Add(plotter.NewGrid())

	xys := make(plotter.XYs, len(points))
	for i, pt := range points {
		xys[i].X = float64(pt.Date.Unix())
		xys[i].Y = pt.Value
	}
	line, scatter, err := plotter.NewLinePoints(xys)
	if err != nil {
		return "", fmt.Errorf("build chart: %w", err)
	}
	line.Color = lineColor
	line.Width = vg.Points(2)
	scatter.Color = lineColor
	scatter.Radius = vg.Points(3)
	p.Add(line, scatter)

	if err := os.MkdirAll(r.dir, 0o755); err != nil {
		return "", fmt.Errorf("create chart dir: %w", err)
	}
	path := filepath.Join(r.dir, FileName(requestID, r.now()))
	if err := p.Save(8*vg.Inch, 6*vg.Inch, path); err != nil {
		return "", fmt.Errorf("save chart: %w", err)
	}
	return path, nil
}

// FileName returns the chart file name for a request at t.
func FileName(requestID string, t time.Time) string {
	id := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		}
		return '_'
	}, requestID)
	return FilePrefix + id + "_" + t.Format("20060102_150405") + fileExt
}

// IsChartPath reports whether s looks like a path produced by Render.
func IsChartPath(s string) bool {
	s = strings.TrimSpace(s)
	return strings.Contains(s, FilePrefix) && strings.HasSuffix(s, fileExt)
}

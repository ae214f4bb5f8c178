// Package render draws the dashboard charts as PNG images.
package render

import (
	"context"
	"fmt"
	"io"
	"math"
	"time"

	chart "github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"
	"go.opentelemetry.io/otel/attribute"

	"github.com/ZanzyTHEbar/usagepulse/internal/analysis"
	"github.com/ZanzyTHEbar/usagepulse/internal/monitoring"
	"github.com/ZanzyTHEbar/usagepulse/internal/query"
)

// Chart names accepted by Render.
const (
	UsageHistogram  = "usage-histogram"
	UsageVsBattery  = "usage-vs-battery"
	TopDevices      = "top-devices"
	UsageByGender   = "usage-by-gender"
	UsageByAge      = "usage-by-age"
	BehaviorClasses = "behavior-classes"
)

// Names lists every chart in dashboard order.
var Names = []string{UsageHistogram, UsageVsBattery, TopDevices, UsageByAge, UsageByGender, BehaviorClasses}

const ContentType = "image/png"

// Renderer turns dashboard tabs into PNG charts.
type Renderer struct {
	Width  int
	Height int

	telemetry *monitoring.Telemetry
	metrics   *monitoring.Metrics
}

// NewRenderer creates a renderer with the default canvas size.
func NewRenderer(telemetry *monitoring.Telemetry, metrics *monitoring.Metrics) *Renderer {
	if telemetry == nil {
		telemetry = monitoring.NoopTelemetry()
	}
	if metrics == nil {
		metrics = monitoring.NewMetrics()
	}
	return &Renderer{Width: 900, Height: 480, telemetry: telemetry, metrics: metrics}
}

// Known reports whether name is a chart Render can draw.
func Known(name string) bool {
	for _, n := range Names {
		if n == name {
			return true
		}
	}
	return false
}

// Render draws the named chart of d to w.
func (r *Renderer) Render(ctx context.Context, name string, d *analysis.Dashboard, w io.Writer) (err error) {
	if !Known(name) {
		return &query.ParameterError{Name: "chart", Value: name, Reason: "unknown chart"}
	}

	ctx, span := r.telemetry.StartSpan(ctx, "render."+name, attribute.Int("rows", d.KPIs.FilteredRows))
	start := time.Now()
	defer func() { monitoring.EndSpan(span, err) }()

	switch name {
	case UsageHistogram:
		err = r.histogram(d.Engagement.UsageHistogram, w)
	case UsageVsBattery:
		err = r.scatter(d.Engagement.UsageVsBattery, w)
	case TopDevices:
		err = r.bars("Top 10 Devices by Battery Drain (mAh/day)", d.Device.TopDevicesByBattery, w)
	case UsageByAge:
		err = r.bars("App Usage by Age (total min/day)", d.Demographics.UsageByAge, w)
	case UsageByGender:
		err = r.bars("Mean App Usage by Gender (min/day)", d.Demographics.UsageByGender, w)
	case BehaviorClasses:
		err = r.pie("User Behavior Class Distribution", d.Behavior.ClassDistribution, w)
	}
	if err != nil {
		return fmt.Errorf("render %s: %w", name, err)
	}

	r.metrics.IncrementChartRender()
	r.telemetry.Pipeline.RecordChartRender(ctx, name)
	span.SetAttributes(attribute.Int64("duration_ms", time.Since(start).Milliseconds()))
	return nil
}

func (r *Renderer) histogram(buckets []query.Bucket, w io.Writer) error {
	bars := make([]chart.Value, 0, len(buckets))
	for i, b := range buckets {
		label := ""
		if i%5 == 0 {
			label = fmt.Sprintf("%.0f", b.Lower)
		}
		bars = append(bars, chart.Value{Label: label, Value: float64(b.Count)})
	}
	if len(bars) == 0 {
		return r.empty("App Usage Distribution (min/day)", w)
	}

	bc := r.barChart("App Usage Distribution (min/day)", bars)
	bc.BarWidth = (r.Width - 120) / len(bars)
	bc.BarSpacing = 2
	return bc.Render(chart.PNG, w)
}

func (r *Renderer) scatter(s *query.ScatterResult, w io.Writer) error {
	title := "App Usage vs Battery Drain"
	if s == nil || len(s.Points) == 0 {
		return r.empty(title, w)
	}

	xs := make([]float64, len(s.Points))
	ys := make([]float64, len(s.Points))
	for i, p := range s.Points {
		xs[i], ys[i] = p.X, p.Y
	}

	series := []chart.Series{chart.ContinuousSeries{
		Name:    "users",
		XValues: xs,
		YValues: ys,
		Style: chart.Style{
			StrokeWidth: chart.Disabled,
			DotWidth:    4,
			DotColor:    chart.ColorBlue.WithAlpha(180),
		},
	}}

	yAll := append([]float64{}, ys...)
	if s.Trend != nil {
		tx := []float64{s.Trend.XMin, s.Trend.XMax}
		ty := []float64{s.Trend.At(s.Trend.XMin), s.Trend.At(s.Trend.XMax)}
		yAll = append(yAll, ty...)
		series = append(series, chart.ContinuousSeries{
			Name:    "OLS trend",
			XValues: tx,
			YValues: ty,
			Style:   chart.Style{StrokeWidth: 2, StrokeColor: chart.ColorRed},
		})
	}

	c := chart.Chart{
		Title:      title,
		Width:      r.Width,
		Height:     r.Height,
		Background: chart.Style{Padding: chart.Box{Top: 40, Left: 20, Right: 20, Bottom: 20}},
		XAxis:      chart.XAxis{Name: s.X, Range: paddedRange(xs)},
		YAxis:      chart.YAxis{Name: s.Y, Range: paddedRange(yAll)},
		Series:     series,
	}
	c.Elements = []chart.Renderable{chart.Legend(&c)}
	return c.Render(chart.PNG, w)
}

func (r *Renderer) bars(title string, groups []query.GroupValue, w io.Writer) error {
	bars := make([]chart.Value, 0, len(groups))
	for _, g := range groups {
		if !g.Value.Valid {
			continue
		}
		bars = append(bars, chart.Value{Label: g.Group, Value: g.Value.Float})
	}
	if len(bars) == 0 {
		return r.empty(title, w)
	}

	bc := r.barChart(title, bars)
	bc.BarWidth = clamp((r.Width-120)/len(bars)-10, 8, 80)
	bc.BarSpacing = 10
	return bc.Render(chart.PNG, w)
}

func (r *Renderer) pie(title string, counts []query.CategoryCount, w io.Writer) error {
	values := make([]chart.Value, 0, len(counts))
	for _, c := range counts {
		if c.Count == 0 {
			continue
		}
		values = append(values, chart.Value{
			Label: fmt.Sprintf("Class %s (%.0f%%)", c.Category, c.Share*100),
			Value: float64(c.Count),
		})
	}
	if len(values) == 0 {
		return r.empty(title, w)
	}

	pc := chart.PieChart{
		Title:  title,
		Width:  r.Height,
		Height: r.Height,
		Values: values,
	}
	return pc.Render(chart.PNG, w)
}

// empty draws the axes of a chart with no data so the page keeps its layout
// when a filter selects nothing.
func (r *Renderer) empty(title string, w io.Writer) error {
	bc := r.barChart(title+" (no data)", []chart.Value{{Label: "no data", Value: 0}})
	return bc.Render(chart.PNG, w)
}

// barChart anchors the value axis at zero so bar heights compare.
func (r *Renderer) barChart(title string, bars []chart.Value) chart.BarChart {
	lo, hi := 0.0, 0.0
	for _, b := range bars {
		lo = math.Min(lo, b.Value)
		hi = math.Max(hi, b.Value)
	}
	if hi-lo == 0 {
		hi = 1
	}
	return chart.BarChart{
		Title:      title,
		Width:      r.Width,
		Height:     r.Height,
		Background: chart.Style{Padding: chart.Box{Top: 40, Left: 10, Right: 10, Bottom: 10}},
		Canvas:     chart.Style{FillColor: drawing.ColorWhite},
		YAxis:      chart.YAxis{Range: &chart.ContinuousRange{Min: lo * 1.1, Max: hi * 1.1}},
		Bars:       bars,
	}
}

func paddedRange(values []float64) *chart.ContinuousRange {
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, v := range values {
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}
	pad := (hi - lo) * 0.05
	if pad == 0 {
		pad = math.Max(math.Abs(lo)*0.1, 1)
	}
	return &chart.ContinuousRange{Min: lo - pad, Max: hi + pad}
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

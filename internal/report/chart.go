package report

import (
	"fmt"
	"html/template"
	"io"
	"math"
	"strings"
)

const (
	chartTitle  = "Overall Sentiment by Speaker"
	chartXLabel = "Average Sentiment Score"

	positiveColor = "#2ca02c"
	negativeColor = "#d62728"
)

// ChartOptions controls the SVG chart geometry
type ChartOptions struct {
	Width     int
	BarHeight int
}

// DefaultChartOptions matches a 10x6 inch figure at 100 dpi
func DefaultChartOptions() ChartOptions {
	return ChartOptions{Width: 1000, BarHeight: 48}
}

type chartBar struct {
	Label  string
	Value  string
	X, Y   float64
	Width  float64
	Height float64
	TextY  float64
	LabelX float64
	ValueX float64
	Color  string
	Anchor string
}

type chartView struct {
	Width, Height       int
	Title, XLabel       string
	TitleX              float64
	AxisX               float64
	PlotTop, PlotBottom float64
	XLabelY             float64
	Bars                []chartBar
	Ticks               []chartTick
	Empty               bool
}

type chartTick struct {
	X     float64
	Y     float64
	Label string
}

var chartTemplate = template.Must(template.New("chart").Parse(`<svg xmlns="http://www.w3.org/2000/svg" width="{{.Width}}" height="{{.Height}}" viewBox="0 0 {{.Width}} {{.Height}}" font-family="sans-serif">
<rect width="100%" height="100%" fill="#ffffff"/>
<text x="{{.TitleX}}" y="32" font-size="20" text-anchor="middle">{{.Title}}</text>
{{- if .Empty}}
<text x="{{.TitleX}}" y="{{printf "%.1f" .PlotBottom}}" font-size="14" text-anchor="middle" fill="#666666">No utterances to chart</text>
{{- else}}
{{- range .Bars}}
<rect x="{{printf "%.1f" .X}}" y="{{printf "%.1f" .Y}}" width="{{printf "%.1f" .Width}}" height="{{printf "%.1f" .Height}}" fill="{{.Color}}"/>
<text x="{{printf "%.1f" .LabelX}}" y="{{printf "%.1f" .TextY}}" font-size="13" text-anchor="end">{{.Label}}</text>
<text x="{{printf "%.1f" .ValueX}}" y="{{printf "%.1f" .TextY}}" font-size="12" text-anchor="{{.Anchor}}">{{.Value}}</text>
{{- end}}
<line x1="{{printf "%.1f" .AxisX}}" y1="{{printf "%.1f" .PlotTop}}" x2="{{printf "%.1f" .AxisX}}" y2="{{printf "%.1f" .PlotBottom}}" stroke="#000000" stroke-dasharray="6,4"/>
{{- range .Ticks}}
<text x="{{printf "%.1f" .X}}" y="{{printf "%.1f" .Y}}" font-size="11" text-anchor="middle">{{.Label}}</text>
{{- end}}
{{- end}}
<text x="{{.TitleX}}" y="{{printf "%.1f" .XLabelY}}" font-size="14" text-anchor="middle">{{.XLabel}}</text>
</svg>
`))

// RenderChartSVG draws a diverging horizontal bar chart, one bar per speaker
// in the given order, green for positive means and red otherwise
func RenderChartSVG(w io.Writer, summaries []SpeakerSummary, opts ChartOptions) error {
	if opts.Width <= 0 || opts.BarHeight <= 0 {
		opts = DefaultChartOptions()
	}

	const (
		marginTop    = 56.0
		marginBottom = 70.0
		marginLeft   = 140.0
		marginRight  = 60.0
	)

	bars := len(summaries)
	plotHeight := float64(max(bars, 1) * opts.BarHeight)
	height := int(marginTop + plotHeight + marginBottom)
	plotWidth := float64(opts.Width) - marginLeft - marginRight

	extent := 1.0
	for _, s := range summaries {
		if v := math.Abs(s.MeanSentimentScore); !math.IsNaN(v) && v > extent {
			extent = v
		}
	}
	scale := plotWidth / (2 * extent)
	axisX := marginLeft + plotWidth/2

	view := chartView{
		Width:      opts.Width,
		Height:     height,
		Title:      chartTitle,
		XLabel:     chartXLabel,
		TitleX:     float64(opts.Width) / 2,
		AxisX:      axisX,
		PlotTop:    marginTop,
		PlotBottom: marginTop + plotHeight,
		XLabelY:    marginTop + plotHeight + 52,
		Empty:      bars == 0,
	}

	// matplotlib barh draws the first category at the bottom
	for i, s := range summaries {
		row := bars - 1 - i
		y := marginTop + float64(row*opts.BarHeight) + float64(opts.BarHeight)*0.1
		barHeight := float64(opts.BarHeight) * 0.8

		value := s.MeanSentimentScore
		if math.IsNaN(value) {
			value = 0
		}
		x := axisX
		width := math.Abs(value) * scale
		if value < 0 {
			x = axisX - width
		}

		color := negativeColor
		if value > 0 {
			color = positiveColor
		}

		anchor, valueX := "start", x+width+6
		if value < 0 {
			anchor, valueX = "end", x-6
		}

		view.Bars = append(view.Bars, chartBar{
			Label:  s.Speaker,
			Value:  formatChartValue(s.MeanSentimentScore),
			X:      x,
			Y:      y,
			Width:  width,
			Height: barHeight,
			TextY:  y + barHeight/2 + 4,
			LabelX: marginLeft - 8,
			ValueX: valueX,
			Color:  color,
			Anchor: anchor,
		})
	}

	for _, f := range []float64{-1, -0.5, 0, 0.5, 1} {
		v := f * extent
		view.Ticks = append(view.Ticks, chartTick{
			X:     axisX + v*scale,
			Y:     marginTop + plotHeight + 20,
			Label: fmt.Sprintf("%.2f", v),
		})
	}

	if err := chartTemplate.Execute(w, view); err != nil {
		return fmt.Errorf("failed to render chart: %w", err)
	}
	return nil
}

// RenderChartText draws the same chart as fixed-width text for terminals
func RenderChartText(w io.Writer, summaries []SpeakerSummary, halfWidth int) error {
	if halfWidth <= 0 {
		halfWidth = 20
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s (score > 0 is positive, < 0 is negative)\n", chartTitle)
	if len(summaries) == 0 {
		b.WriteString("  no utterances\n")
		_, err := io.WriteString(w, b.String())
		return err
	}

	labelWidth := 0
	for _, s := range summaries {
		labelWidth = max(labelWidth, len(s.Speaker))
	}

	for _, s := range summaries {
		value := s.MeanSentimentScore
		cells := 0
		if !math.IsNaN(value) {
			cells = int(math.Round(math.Min(math.Abs(value), 1) * float64(halfWidth)))
		}

		left := strings.Repeat(" ", halfWidth)
		right := strings.Repeat(" ", halfWidth)
		if value < 0 {
			left = strings.Repeat(" ", halfWidth-cells) + strings.Repeat("-", cells)
		} else if value > 0 {
			right = strings.Repeat("+", cells) + strings.Repeat(" ", halfWidth-cells)
		}

		fmt.Fprintf(&b, "  %-*s %s|%s %s\n", labelWidth, s.Speaker, left, right, formatChartValue(value))
	}

	_, err := io.WriteString(w, b.String())
	return err
}

func formatChartValue(v float64) string {
	if math.IsNaN(v) {
		return "n/a"
	}
	return fmt.Sprintf("%+.3f", v)
}

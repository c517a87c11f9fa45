package chart

import (
	"bytes"
	"errors"
	"fmt"
	"math"

	gochart "github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"

	"channel-trader/internal/exchange"
	"channel-trader/internal/indicator"
	"channel-trader/internal/position"
)

const markerGap = 2

// ErrEmptyWindow 表示没有K线可供绘制。
var ErrEmptyWindow = errors.New("chart: K线窗口为空")

// Renderer 将K线、通道与开仓标注渲染为图片。
type Renderer interface {
	Render(bars []exchange.Bar, ch indicator.Channel, markers []Marker) ([]byte, error)
}

var (
	colorBackground = drawing.Color{R: 0, G: 0, B: 0, A: 255}
	colorAxis       = drawing.Color{R: 160, G: 160, B: 160, A: 255}
	colorUp         = drawing.Color{R: 38, G: 166, B: 154, A: 255}
	colorDown       = drawing.Color{R: 239, G: 83, B: 80, A: 255}
	colorUpper      = drawing.Color{R: 0, G: 255, B: 255, A: 255}
	colorLower      = drawing.Color{R: 255, G: 255, B: 0, A: 255}
	colorMiddle     = drawing.Color{R: 255, G: 0, B: 255, A: 255}
	colorLong       = drawing.Color{R: 57, G: 255, B: 20, A: 255}
	colorShort      = drawing.Color{R: 255, G: 23, B: 68, A: 255}
	colorOutline    = drawing.Color{R: 0, G: 0, B: 0, A: 255}
)

// PNGRenderer 基于 go-chart 绘制黑底蜡烛图：青色上轨、黄色下轨、品红虚线中轨，
// 多单为绿色上三角，空单为红色下三角。
type PNGRenderer struct {
	Width   int
	Height  int
	Padding int
}

// NewPNGRenderer 创建渲染器。
func NewPNGRenderer(width, height int) *PNGRenderer {
	return &PNGRenderer{Width: width, Height: height, Padding: 24}
}

// Render 返回 PNG 编码的图表。
func (r *PNGRenderer) Render(bars []exchange.Bar, ch indicator.Channel, markers []Marker) ([]byte, error) {
	if len(bars) == 0 {
		return nil, ErrEmptyWindow
	}
	if ch.Len() != 0 && ch.Len() != len(bars) {
		return nil, fmt.Errorf("chart: 通道长度 %d 与K线数量 %d 不一致", ch.Len(), len(bars))
	}

	series := []gochart.Series{candleSeries{bars: bars}}
	for _, band := range []struct {
		name   string
		values []float64
		color  drawing.Color
		dashed bool
	}{
		{"upper", ch.Upper, colorUpper, false},
		{"lower", ch.Lower, colorLower, false},
		{"middle", ch.Middle, colorMiddle, true},
	} {
		if s, ok := bandSeries(band.name, band.values, band.color, band.dashed); ok {
			series = append(series, s)
		}
	}
	if resolved := Resolve(markers, bars); len(resolved) > 0 {
		series = append(series, markerSeries{markers: resolved, slots: len(bars)})
	}

	lo, hi := priceRange(bars, ch)
	graph := gochart.Chart{
		Width:  r.Width,
		Height: r.Height,
		Background: gochart.Style{
			FillColor: colorBackground,
			Padding:   gochart.Box{Top: r.Padding, Left: r.Padding, Right: r.Padding, Bottom: r.Padding},
		},
		Canvas: gochart.Style{FillColor: colorBackground},
		XAxis: gochart.XAxis{
			Style: gochart.Style{Hidden: true},
			Range: &gochart.ContinuousRange{Min: -0.5, Max: float64(len(bars)) - 0.5},
		},
		YAxis: gochart.YAxis{
			Style: gochart.Style{FontColor: colorAxis, StrokeColor: colorAxis, FontSize: 8},
			Range: &gochart.ContinuousRange{Min: lo, Max: hi},
		},
		Series: series,
	}

	var buf bytes.Buffer
	if err := graph.Render(gochart.PNG, &buf); err != nil {
		return nil, fmt.Errorf("chart: 渲染失败: %w", err)
	}
	return buf.Bytes(), nil
}

// bandSeries 跳过 NaN 的不可用下标，少于两个点时不绘制。
func bandSeries(name string, values []float64, c drawing.Color, dashed bool) (gochart.ContinuousSeries, bool) {
	var xs, ys []float64
	for i, v := range values {
		if math.IsNaN(v) {
			continue
		}
		xs = append(xs, float64(i))
		ys = append(ys, v)
	}
	if len(xs) < 2 {
		return gochart.ContinuousSeries{}, false
	}
	style := gochart.Style{StrokeColor: c, StrokeWidth: 1.5}
	if dashed {
		style.StrokeDashArray = []float64{6, 6}
	}
	return gochart.ContinuousSeries{Name: name, XValues: xs, YValues: ys, Style: style}, true
}

func priceRange(bars []exchange.Bar, ch indicator.Channel) (float64, float64) {
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, bar := range bars {
		lo = math.Min(lo, bar.Low)
		hi = math.Max(hi, bar.High)
	}
	for _, values := range [][]float64{ch.Upper, ch.Lower} {
		for _, v := range values {
			if math.IsNaN(v) {
				continue
			}
			lo = math.Min(lo, v)
			hi = math.Max(hi, v)
		}
	}
	if hi <= lo {
		hi = lo + 1
	}
	margin := (hi - lo) * 0.05
	return lo - margin, hi + margin
}

// candleSeries 以影线加实体绘制K线，上涨为青绿色，下跌为红色。
type candleSeries struct {
	bars []exchange.Bar
}

func (s candleSeries) GetName() string { return "candles" }
func (s candleSeries) GetYAxis() gochart.YAxisType { return gochart.YAxisPrimary }
func (s candleSeries) GetStyle() gochart.Style { return gochart.Style{} }
func (s candleSeries) Len() int { return len(s.bars) }

func (s candleSeries) GetBoundedValues(i int) (float64, float64, float64) {
	return float64(i), s.bars[i].High, s.bars[i].Low
}

func (s candleSeries) Validate() error {
	if len(s.bars) == 0 {
		return ErrEmptyWindow
	}
	return nil
}

func (s candleSeries) Render(r gochart.Renderer, box gochart.Box, xrange, yrange gochart.Range, _ gochart.Style) {
	half := int(math.Max(1, float64(box.Width())/float64(len(s.bars))*0.3))
	y := func(price float64) int { return box.Bottom - yrange.Translate(price) }

	r.SetStrokeDashArray(nil)
	r.SetStrokeWidth(1)
	for i, bar := range s.bars {
		c := colorUp
		if bar.Close < bar.Open {
			c = colorDown
		}
		x := box.Left + xrange.Translate(float64(i))

		r.SetStrokeColor(c)
		r.MoveTo(x, y(bar.High))
		r.LineTo(x, y(bar.Low))
		r.Stroke()

		top, bottom := y(math.Max(bar.Open, bar.Close)), y(math.Min(bar.Open, bar.Close))
		if bottom-top < 1 {
			bottom = top + 1
		}
		r.SetFillColor(c)
		r.MoveTo(x-half, top)
		r.LineTo(x+half+1, top)
		r.LineTo(x+half+1, bottom)
		r.LineTo(x-half, bottom)
		r.Close()
		r.Fill()
	}
}

// markerSeries 绘制开仓三角，顶点朝向开仓价：多单在价格下方，空单在价格上方。
type markerSeries struct {
	markers []Marker
	slots   int
}

func (s markerSeries) GetName() string { return "markers" }
func (s markerSeries) GetYAxis() gochart.YAxisType { return gochart.YAxisPrimary }
func (s markerSeries) GetStyle() gochart.Style { return gochart.Style{} }
func (s markerSeries) Validate() error { return nil }

func (s markerSeries) Render(r gochart.Renderer, box gochart.Box, xrange, yrange gochart.Range, _ gochart.Style) {
	size := markerSize(box.Width(), s.slots)

	r.SetStrokeDashArray(nil)
	r.SetStrokeWidth(1)
	r.SetStrokeColor(colorOutline)
	for _, m := range s.markers {
		cx := box.Left + xrange.Translate(float64(m.Index))
		cy := box.Bottom - yrange.Translate(m.Price)

		fill, apex, base := colorShort, cy-markerGap, cy-markerGap-size
		if m.Side == position.SideLong {
			fill, apex, base = colorLong, cy+markerGap, cy+markerGap+size
		}
		r.SetFillColor(fill)
		r.MoveTo(cx, apex)
		r.LineTo(cx+size/2, base)
		r.LineTo(cx-size/2, base)
		r.Close()
		r.FillStroke()
	}
}

func markerSize(width, slots int) int {
	if slots <= 0 {
		return 6
	}
	return int(math.Max(6, float64(width)/float64(slots)*1.2))
}

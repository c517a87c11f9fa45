package indicator

import (
	"errors"
	"fmt"
	"math"

	talib "github.com/markcheno/go-talib"
)

// ErrInsufficientBars 表示K线数量不足以计算通道（需要 1 <= lookback < len）。
var ErrInsufficientBars = errors.New("indicator: K线数量不足以计算通道")

// Bands 为某一根K线上的三条轨道值。
type Bands struct {
	Upper  float64
	Lower  float64
	Middle float64
}

// Defined 表示上下轨都已有真实值，可以参与信号判断。
func (b Bands) Defined() bool {
	return !math.IsNaN(b.Upper) && !math.IsNaN(b.Lower)
}

// Channel 保存与K线窗口逐一对齐的上轨、下轨和中轨，未定义的位置为 NaN。
type Channel struct {
	Lookback int
	Upper    []float64
	Lower    []float64
	Middle   []float64
}

// ComputeChannel 依据K线窗口计算突破通道。
//
// 对每个 i >= lookback：
//   - 当 Low[i] < Low[i-1] 时上轨取前 lookback 根K线（不含当前）的最高价，否则沿用上一值；
//   - 当 High[i] > High[i-1] 时下轨取前 lookback 根K线的最低价，否则沿用上一值；
//   - 中轨为上下轨均值。
//
// 每次调用都从原始K线完整重算，不保留跨调用状态。
func ComputeChannel(series Series, lookback int) (Channel, error) {
	n := series.Len()
	if lookback < 1 || lookback >= n {
		return Channel{}, fmt.Errorf("%w: lookback=%d bars=%d", ErrInsufficientBars, lookback, n)
	}

	windowHigh := rollingMax(series.High, lookback)
	windowLow := rollingMin(series.Low, lookback)

	ch := Channel{
		Lookback: lookback,
		Upper:    nanSlice(n),
		Lower:    nanSlice(n),
		Middle:   nanSlice(n),
	}

	for i := lookback; i < n; i++ {
		// windowHigh[i-1] 覆盖 [i-lookback, i-1]
		if series.Low[i] < series.Low[i-1] {
			ch.Upper[i] = windowHigh[i-1]
		} else {
			ch.Upper[i] = ch.Upper[i-1]
		}

		if series.High[i] > series.High[i-1] {
			ch.Lower[i] = windowLow[i-1]
		} else {
			ch.Lower[i] = ch.Lower[i-1]
		}

		ch.Middle[i] = (ch.Upper[i] + ch.Lower[i]) / 2
	}

	return ch, nil
}

// Len 返回通道长度。
func (c Channel) Len() int {
	return len(c.Middle)
}

// At 返回下标 i 的轨道值，越界时返回全 NaN。
func (c Channel) At(i int) Bands {
	if i < 0 || i >= c.Len() {
		return Bands{Upper: math.NaN(), Lower: math.NaN(), Middle: math.NaN()}
	}
	return Bands{Upper: c.Upper[i], Lower: c.Lower[i], Middle: c.Middle[i]}
}

// Latest 返回最新一根K线的轨道值。
func (c Channel) Latest() Bands {
	return c.At(c.Len() - 1)
}

// Eligible 判断下标 i 是否可用于信号判断。
func (c Channel) Eligible(i int) bool {
	return c.At(i).Defined()
}

func rollingMax(values []float64, period int) []float64 {
	if period < 2 {
		return append([]float64(nil), values...)
	}
	return talib.Max(values, period)
}

func rollingMin(values []float64, period int) []float64 {
	if period < 2 {
		return append([]float64(nil), values...)
	}
	return talib.Min(values, period)
}

func nanSlice(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = math.NaN()
	}
	return out
}

package indicator

import (
	"math"
	"time"

	"channel-trader/internal/exchange"
)

// Series 为通道计算使用的列式K线视图，与输入窗口逐一对齐。
type Series struct {
	Timestamps []time.Time
	High       []float64
	Low        []float64
	Close      []float64
}

// NewSeries 按输入顺序（最新在末尾）拆分K线窗口。
func NewSeries(bars []exchange.Bar) Series {
	s := Series{
		Timestamps: make([]time.Time, len(bars)),
		High:       make([]float64, len(bars)),
		Low:        make([]float64, len(bars)),
		Close:      make([]float64, len(bars)),
	}
	for i, b := range bars {
		s.Timestamps[i] = b.Timestamp.UTC()
		s.High[i] = b.High
		s.Low[i] = b.Low
		s.Close[i] = b.Close
	}
	return s
}

func (s Series) Len() int {
	return len(s.Close)
}

// NearestIndex 返回与 price 最接近的非 NaN 元素下标，找不到时返回 -1。距离相同取较早的下标。
func NearestIndex(values []float64, price float64) int {
	best, bestDist := -1, math.Inf(1)
	for i, v := range values {
		if math.IsNaN(v) {
			continue
		}
		if d := math.Abs(v - price); d < bestDist {
			best, bestDist = i, d
		}
	}
	return best
}

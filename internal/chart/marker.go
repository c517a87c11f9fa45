package chart

import (
	"sync"
	"time"

	"channel-trader/internal/exchange"
	"channel-trader/internal/position"
)

// Marker 为图表上的开仓标注。Index 为记录时在K线窗口中的下标。
type Marker struct {
	Index int
	Time  time.Time
	Price float64
	Side  position.Side
}

// MarkerLog 为只追加的标注记录。
type MarkerLog struct {
	mu      sync.RWMutex
	markers []Marker
}

// NewMarkerLog 创建空的标注记录。
func NewMarkerLog() *MarkerLog {
	return &MarkerLog{}
}

// Append 追加一条标注。
func (l *MarkerLog) Append(m Marker) {
	l.mu.Lock()
	l.markers = append(l.markers, m)
	l.mu.Unlock()
}

// Len 返回标注数量。
func (l *MarkerLog) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.markers)
}

// All 返回全部标注的副本。
func (l *MarkerLog) All() []Marker {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]Marker(nil), l.markers...)
}

// Resolve 将标注映射到当前K线窗口的下标。带时间的标注按时间定位，
// 已滑出窗口的标注被丢弃；不带时间的标注沿用记录时的下标。
func Resolve(markers []Marker, bars []exchange.Bar) []Marker {
	if len(bars) == 0 {
		return nil
	}
	index := make(map[int64]int, len(bars))
	for i, bar := range bars {
		index[bar.Timestamp.UnixMilli()] = i
	}

	out := make([]Marker, 0, len(markers))
	for _, m := range markers {
		if !m.Time.IsZero() {
			i, ok := index[m.Time.UnixMilli()]
			if !ok {
				continue
			}
			m.Index = i
		}
		if m.Index < 0 || m.Index >= len(bars) {
			continue
		}
		out = append(out, m)
	}
	return out
}

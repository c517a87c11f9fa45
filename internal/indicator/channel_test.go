package indicator

import (
	"math"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"channel-trader/internal/exchange"
)

func flatBars(n int, price float64) []exchange.Bar {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	bars := make([]exchange.Bar, n)
	for i := range bars {
		bars[i] = exchange.Bar{
			Timestamp: base.Add(time.Duration(i) * time.Hour),
			Open:      price,
			High:      price,
			Low:       price,
			Close:     price,
		}
	}
	return bars
}

func randomBars(seed int64, n int) []exchange.Bar {
	rng := rand.New(rand.NewSource(seed))
	bars := flatBars(n, 0)
	price := 2000.0
	for i := range bars {
		price += rng.Float64()*40 - 20
		spread := rng.Float64() * 15
		bars[i].Open = price
		bars[i].Close = price + rng.Float64()*10 - 5
		bars[i].High = math.Max(bars[i].Open, bars[i].Close) + spread
		bars[i].Low = math.Min(bars[i].Open, bars[i].Close) - spread
	}
	return bars
}

func windowMax(values []float64, from, to int) float64 {
	m := math.Inf(-1)
	for i := from; i <= to; i++ {
		m = math.Max(m, values[i])
	}
	return m
}

func windowMin(values []float64, from, to int) float64 {
	m := math.Inf(1)
	for i := from; i <= to; i++ {
		m = math.Min(m, values[i])
	}
	return m
}

func sameFloat(a, b float64) bool {
	if math.IsNaN(a) || math.IsNaN(b) {
		return math.IsNaN(a) && math.IsNaN(b)
	}
	return a == b
}

func assertSeriesEqual(t *testing.T, want, got []float64) {
	t.Helper()
	require.Equal(t, len(want), len(got))
	for i := range want {
		assert.Truef(t, sameFloat(want[i], got[i]), "index %d: want %v got %v", i, want[i], got[i])
	}
}

func TestComputeChannel_RejectsShortWindow(t *testing.T) {
	series := NewSeries(flatBars(10, 100))

	_, err := ComputeChannel(series, 10)
	assert.ErrorIs(t, err, ErrInsufficientBars)

	_, err = ComputeChannel(series, 0)
	assert.ErrorIs(t, err, ErrInsufficientBars)
}

func TestComputeChannel_CarryForwardOrWindowExtreme(t *testing.T) {
	for _, lookback := range []int{1, 2, 5, 18} {
		series := NewSeries(randomBars(int64(lookback), 120))
		ch, err := ComputeChannel(series, lookback)
		require.NoError(t, err)
		require.Equal(t, series.Len(), ch.Len())

		for i := 0; i < lookback; i++ {
			assert.True(t, math.IsNaN(ch.Upper[i]))
			assert.True(t, math.IsNaN(ch.Lower[i]))
			assert.True(t, math.IsNaN(ch.Middle[i]))
		}

		for i := lookback; i < series.Len(); i++ {
			hi := windowMax(series.High, i-lookback, i-1)
			lo := windowMin(series.Low, i-lookback, i-1)

			if series.Low[i] < series.Low[i-1] {
				assert.Equal(t, hi, ch.Upper[i], "upper recompute at %d", i)
			} else {
				assert.True(t, sameFloat(ch.Upper[i-1], ch.Upper[i]), "upper carry at %d", i)
			}

			if series.High[i] > series.High[i-1] {
				assert.Equal(t, lo, ch.Lower[i], "lower recompute at %d", i)
			} else {
				assert.True(t, sameFloat(ch.Lower[i-1], ch.Lower[i]), "lower carry at %d", i)
			}
		}
	}
}

func TestComputeChannel_MiddleIsExactMean(t *testing.T) {
	series := NewSeries(randomBars(42, 100))
	ch, err := ComputeChannel(series, 18)
	require.NoError(t, err)

	for i := 0; i < ch.Len(); i++ {
		if !ch.Eligible(i) {
			continue
		}
		assert.Equal(t, (ch.Upper[i]+ch.Lower[i])/2, ch.Middle[i])
	}
}

func TestComputeChannel_Idempotent(t *testing.T) {
	series := NewSeries(randomBars(7, 100))

	first, err := ComputeChannel(series, 18)
	require.NoError(t, err)
	second, err := ComputeChannel(series, 18)
	require.NoError(t, err)

	assertSeriesEqual(t, first.Upper, second.Upper)
	assertSeriesEqual(t, first.Lower, second.Lower)
	assertSeriesEqual(t, first.Middle, second.Middle)
}

func TestComputeChannel_SingleDipScenario(t *testing.T) {
	bars := flatBars(100, 100)
	bars[50].Low = 90

	series := NewSeries(bars)
	ch, err := ComputeChannel(series, 18)
	require.NoError(t, err)

	// 在第一次出现更低的低点之前，上轨没有真实值。
	for i := 18; i < 50; i++ {
		assert.True(t, math.IsNaN(ch.Upper[i]), "index %d", i)
		assert.False(t, ch.Eligible(i))
	}

	assert.Equal(t, windowMax(series.High, 32, 49), ch.Upper[50])
	for i := 51; i < 100; i++ {
		assert.Equal(t, ch.Upper[50], ch.Upper[i], "index %d", i)
	}

	// 高点从未抬升，下轨始终未定义，因此整段窗口都不会产生信号。
	for i := 0; i < 100; i++ {
		assert.True(t, math.IsNaN(ch.Lower[i]))
		assert.False(t, ch.Eligible(i))
	}
}

func TestComputeChannel_UndefinedPredecessorIsIneligible(t *testing.T) {
	bars := flatBars(6, 100)
	// index 2: 低点下降，上轨有值；高点未抬升，下轨沿用 NaN。
	bars[2].Low = 95
	// index 4: 高点抬升，下轨得到真实值。
	bars[4].High = 105

	ch, err := ComputeChannel(NewSeries(bars), 2)
	require.NoError(t, err)

	assert.False(t, ch.Eligible(2))
	assert.Equal(t, 100.0, ch.Upper[2])
	assert.True(t, math.IsNaN(ch.Lower[3]))
	assert.True(t, ch.Eligible(4))
	assert.Equal(t, 95.0, ch.Lower[4])
	assert.Equal(t, 97.5, ch.Middle[4])
}

func TestChannel_AtOutOfRange(t *testing.T) {
	var ch Channel
	assert.False(t, ch.Latest().Defined())
	assert.False(t, ch.Eligible(3))
}

func TestNearestIndex(t *testing.T) {
	assert.Equal(t, -1, NearestIndex(nil, 1))
	assert.Equal(t, 1, NearestIndex([]float64{10, 20, 30}, 21))
	assert.Equal(t, 0, NearestIndex([]float64{10, 20}, 15))
}

package exchange

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	ccxt "github.com/ccxt/ccxt/go/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"channel-trader/internal/config"
)

func fastRetry(attempts int) retryPolicy {
	return newRetryPolicy(config.RetryConfig{
		MaxAttempts: attempts,
		MinDelay:    time.Millisecond,
		MaxDelay:    2 * time.Millisecond,
	})
}

func TestRetry_RetriesNetworkErrors(t *testing.T) {
	calls := 0
	err := fastRetry(3).run(context.Background(), zap.NewNop(), "test", func() error {
		calls++
		if calls < 3 {
			return &net.OpError{Op: "dial", Err: errors.New("connection refused")}
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestRetry_StopsOnPermanentError(t *testing.T) {
	calls := 0
	err := fastRetry(5).run(context.Background(), zap.NewNop(), "test", func() error {
		calls++
		return &ccxt.Error{Type: ccxt.ExchangeErrorErrType, Message: "bad symbol"}
	})

	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestRetry_GivesUpAfterMaxAttempts(t *testing.T) {
	calls := 0
	err := fastRetry(2).run(context.Background(), zap.NewNop(), "test", func() error {
		calls++
		return &ccxt.Error{Type: ccxt.NetworkErrorErrType, Message: "timeout"}
	})

	require.Error(t, err)
	assert.Equal(t, 2, calls)
}

func TestRetry_MaintenanceIsNotRetried(t *testing.T) {
	calls := 0
	err := fastRetry(5).run(context.Background(), zap.NewNop(), "test", func() error {
		calls++
		return &ccxt.Error{Type: ccxt.OnMaintenanceErrType}
	})

	assert.ErrorIs(t, err, ErrMaintenance)
	assert.Equal(t, 1, calls)
}

func TestNewRetryPolicy_Defaults(t *testing.T) {
	p := newRetryPolicy(config.RetryConfig{MinDelay: 10 * time.Second, MaxDelay: time.Second})
	assert.Equal(t, 1, p.attempts)
	assert.Equal(t, time.Second, p.minDelay)
}

func TestClassify_ContextCanceled(t *testing.T) {
	err, retry := classify(context.Canceled)
	assert.False(t, retry)
	assert.ErrorIs(t, err, context.Canceled)

	err, retry = classify(nil)
	assert.NoError(t, err)
	assert.False(t, retry)
}

func TestNewClient_UnsupportedVenue(t *testing.T) {
	_, err := NewClient(config.ExchangeConfig{Name: "nowhere", Market: "ETH/USDT:USDT"}, nil)
	assert.ErrorIs(t, err, ErrUnsupportedVenue)
}

func TestClient_FetchBarsLoadsMarketsOnceAndDropsBrokenBars(t *testing.T) {
	loads := 0
	var gotLimit int64
	v := venue{
		id: "fake",
		loadMarkets: func() error {
			loads++
			return nil
		},
		fetchOHLCV: func(symbol, timeframe string, limit int64) ([]ccxt.OHLCV, error) {
			gotLimit = limit
			return []ccxt.OHLCV{
				{Timestamp: 1_700_000_000_000, Open: 1, High: 2, Low: 0.5, Close: 1.5, Volume: 10},
				{Timestamp: 0, Close: 9},
				{Timestamp: 1_700_003_600_000, Open: 1.5, High: 3, Low: 1, Close: 2.5, Volume: 11},
			}, nil
		},
	}
	c := newClient(v, "ETH/USDT:USDT", fastRetry(1), zap.NewNop())

	bars, err := c.FetchBars(context.Background(), "1h", 0)
	require.NoError(t, err)
	require.Len(t, bars, 2)
	assert.Equal(t, int64(1), gotLimit)
	assert.Equal(t, time.UnixMilli(1_700_003_600_000).UTC(), bars[1].Timestamp)
	assert.Equal(t, 2.5, bars[1].Close)

	_, err = c.FetchBars(context.Background(), "1h", 100)
	require.NoError(t, err)
	assert.Equal(t, 1, loads)
}

type fakeFetcher struct {
	bars      []Bar
	err       error
	timeframe string
	limit     int64
}

func (f *fakeFetcher) Symbol() string { return "ETH/USDT:USDT" }

func (f *fakeFetcher) FetchBars(_ context.Context, timeframe string, limit int64) ([]Bar, error) {
	f.timeframe = timeframe
	f.limit = limit
	return f.bars, f.err
}

func TestMarketDataService_SortsAndPassesWindow(t *testing.T) {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	fetcher := &fakeFetcher{bars: []Bar{
		{Timestamp: base.Add(2 * time.Hour), Close: 3},
		{Timestamp: base, Close: 1},
		{Timestamp: base.Add(time.Hour), Close: 2},
	}}

	svc := NewMarketDataService(fetcher, "1h", 100, nil)
	bars, err := svc.FetchBars(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "1h", fetcher.timeframe)
	assert.Equal(t, int64(100), fetcher.limit)
	assert.Equal(t, []float64{1, 2, 3}, Closes(bars))
}

func TestMarketDataService_EmptyWindowIsError(t *testing.T) {
	svc := NewMarketDataService(&fakeFetcher{}, "1h", 100, nil)
	_, err := svc.FetchBars(context.Background())
	assert.ErrorIs(t, err, ErrNoBars)
}

func TestMarketDataService_WrapsFetchError(t *testing.T) {
	boom := errors.New("boom")
	svc := NewMarketDataService(&fakeFetcher{err: boom}, "1h", 100, nil)
	_, err := svc.FetchBars(context.Background())
	assert.ErrorIs(t, err, boom)
}

package exchange

import (
	"fmt"
	"strings"

	ccxt "github.com/ccxt/ccxt/go/v4"

	"channel-trader/internal/config"
)

// venue 屏蔽不同 ccxt 交易所实例的具体类型，只保留拉取K线所需的能力。
type venue struct {
	id          string
	loadMarkets func() error
	fetchOHLCV  func(symbol, timeframe string, limit int64) ([]ccxt.OHLCV, error)
}

func venueOptions() map[string]interface{} {
	return map[string]interface{}{
		"enableRateLimit": true,
		"options": map[string]interface{}{
			"adjustForTimeDifference": true,
			"defaultType":             "future",
		},
	}
}

// newVenue 按 exchange.name 创建行情实例，目前支持 binanceusdm、binance 与 bybit。
func newVenue(cfg config.ExchangeConfig) (venue, error) {
	id := strings.ToLower(strings.TrimSpace(cfg.Name))
	switch id {
	case "", "binanceusdm":
		ex := ccxt.NewBinanceusdm(venueOptions())
		if cfg.UseSandbox {
			ex.SetSandboxMode(true)
		}
		return venue{
			id: "binanceusdm",
			loadMarkets: func() error {
				_, err := ex.LoadMarkets()
				return err
			},
			fetchOHLCV: func(symbol, timeframe string, limit int64) ([]ccxt.OHLCV, error) {
				return ex.FetchOHLCV(symbol, ccxt.WithFetchOHLCVTimeframe(timeframe), ccxt.WithFetchOHLCVLimit(limit))
			},
		}, nil
	case "binance":
		ex := ccxt.NewBinance(venueOptions())
		if cfg.UseSandbox {
			ex.SetSandboxMode(true)
		}
		return venue{
			id: id,
			loadMarkets: func() error {
				_, err := ex.LoadMarkets()
				return err
			},
			fetchOHLCV: func(symbol, timeframe string, limit int64) ([]ccxt.OHLCV, error) {
				return ex.FetchOHLCV(symbol, ccxt.WithFetchOHLCVTimeframe(timeframe), ccxt.WithFetchOHLCVLimit(limit))
			},
		}, nil
	case "bybit":
		ex := ccxt.NewBybit(venueOptions())
		if cfg.UseSandbox {
			ex.SetSandboxMode(true)
		}
		return venue{
			id: id,
			loadMarkets: func() error {
				_, err := ex.LoadMarkets()
				return err
			},
			fetchOHLCV: func(symbol, timeframe string, limit int64) ([]ccxt.OHLCV, error) {
				return ex.FetchOHLCV(symbol, ccxt.WithFetchOHLCVTimeframe(timeframe), ccxt.WithFetchOHLCVLimit(limit))
			},
		}, nil
	default:
		return venue{}, fmt.Errorf("%w: %q", ErrUnsupportedVenue, cfg.Name)
	}
}

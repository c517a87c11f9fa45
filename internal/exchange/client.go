package exchange

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	ccxt "github.com/ccxt/ccxt/go/v4"
	"go.uber.org/zap"

	"channel-trader/internal/config"
)

// Client 通过 ccxt 从公共行情接口拉取K线，不需要 API 密钥。下单走 bitunix 包。
type Client struct {
	venue  venue
	symbol string
	retry  retryPolicy
	logger *zap.Logger

	marketsMu     sync.Mutex
	marketsLoaded bool
}

// NewClient 按配置创建行情客户端。
func NewClient(cfg config.ExchangeConfig, logger *zap.Logger) (*Client, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if strings.TrimSpace(cfg.Market) == "" {
		return nil, errors.New("exchange: market 不能为空")
	}
	v, err := newVenue(cfg)
	if err != nil {
		return nil, err
	}
	return newClient(v, cfg.Market, newRetryPolicy(cfg.Retry), logger), nil
}

func newClient(v venue, symbol string, retry retryPolicy, logger *zap.Logger) *Client {
	return &Client{venue: v, symbol: symbol, retry: retry, logger: logger}
}

// Symbol 返回行情交易对。
func (c *Client) Symbol() string {
	return c.symbol
}

// FetchBars 拉取最近 limit 根K线，按交易所返回顺序转换。时间戳为 0 的残缺K线会被丢弃。
func (c *Client) FetchBars(ctx context.Context, timeframe string, limit int64) ([]Bar, error) {
	if limit <= 0 {
		limit = 1
	}

	var raw []ccxt.OHLCV
	op := fmt.Sprintf("%s.fetch_ohlcv_%s", c.venue.id, timeframe)
	err := c.retry.run(ctx, c.logger, op, func() error {
		if err := c.ensureMarkets(ctx); err != nil {
			return err
		}
		out, err := c.venue.fetchOHLCV(c.symbol, timeframe, limit)
		if err != nil {
			return err
		}
		raw = out
		return nil
	})
	if err != nil {
		return nil, err
	}

	bars := make([]Bar, 0, len(raw))
	for _, k := range raw {
		if k.Timestamp <= 0 {
			continue
		}
		bars = append(bars, Bar{
			Timestamp: time.UnixMilli(k.Timestamp).UTC(),
			Open:      k.Open,
			High:      k.High,
			Low:       k.Low,
			Close:     k.Close,
			Volume:    k.Volume,
		})
	}
	if dropped := len(raw) - len(bars); dropped > 0 {
		c.logger.Warn("丢弃残缺K线", zap.Int("dropped", dropped))
	}
	return bars, nil
}

// ensureMarkets 首次调用时加载市场元数据；失败不缓存，下次调用重新加载。
func (c *Client) ensureMarkets(ctx context.Context) error {
	c.marketsMu.Lock()
	defer c.marketsMu.Unlock()

	if c.marketsLoaded {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := c.venue.loadMarkets(); err != nil {
		return err
	}
	c.marketsLoaded = true
	c.logger.Info("已加载市场元数据", zap.String("venue", c.venue.id), zap.String("symbol", c.symbol))
	return nil
}

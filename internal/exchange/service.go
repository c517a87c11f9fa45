package exchange

import (
	"context"
	"fmt"
	"sort"

	"go.uber.org/zap"
)

type barFetcher interface {
	Symbol() string
	FetchBars(ctx context.Context, timeframe string, limit int64) ([]Bar, error)
}

// MarketDataService 按固定周期与窗口长度提供K线窗口。
type MarketDataService struct {
	client    barFetcher
	timeframe string
	limit     int
	logger    *zap.Logger
}

// NewMarketDataService 创建市场数据服务。
func NewMarketDataService(client barFetcher, timeframe string, limit int, logger *zap.Logger) *MarketDataService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MarketDataService{
		client:    client,
		timeframe: timeframe,
		limit:     limit,
		logger:    logger,
	}
}

// Symbol 返回行情交易对。
func (s *MarketDataService) Symbol() string {
	return s.client.Symbol()
}

// FetchBars 拉取最新的K线窗口（最新在末尾）。空窗口视为错误。
func (s *MarketDataService) FetchBars(ctx context.Context) ([]Bar, error) {
	bars, err := s.client.FetchBars(ctx, s.timeframe, int64(s.limit))
	if err != nil {
		return nil, fmt.Errorf("exchange: 拉取K线失败: %w", err)
	}
	if len(bars) == 0 {
		return nil, ErrNoBars
	}

	if !sort.SliceIsSorted(bars, func(i, j int) bool { return bars[i].Timestamp.Before(bars[j].Timestamp) }) {
		sort.SliceStable(bars, func(i, j int) bool { return bars[i].Timestamp.Before(bars[j].Timestamp) })
	}

	last, _ := Latest(bars)
	s.logger.Debug("K线窗口获取完成",
		zap.String("symbol", s.Symbol()),
		zap.String("timeframe", s.timeframe),
		zap.Int("count", len(bars)),
		zap.Time("latest", last.Timestamp),
		zap.Float64("close", last.Close),
	)

	return bars, nil
}

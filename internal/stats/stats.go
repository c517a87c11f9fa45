package stats

import (
	"context"
	"errors"
	"io/fs"
	"sync"

	"go.uber.org/zap"
)

// Counter 为已完成交易的胜负计数，只增不减。
type Counter struct {
	Wins   int64 `json:"win_count"`
	Losses int64 `json:"loss_count"`
}

// Completed 返回已完成交易数。
func (c Counter) Completed() int64 {
	return c.Wins + c.Losses
}

// WinRate 返回胜率（百分比），尚无已完成交易时 ok 为 false。
func (c Counter) WinRate() (rate float64, ok bool) {
	total := c.Completed()
	if total == 0 {
		return 0, false
	}
	return float64(c.Wins) / float64(total) * 100, true
}

// Store 为计数的持久化后端。
type Store interface {
	Load(ctx context.Context) (Counter, error)
	Save(ctx context.Context, c Counter) error
}

// Tracker 持有内存中的计数，持久化失败只记录日志，不影响内存值。
type Tracker struct {
	store  Store
	logger *zap.Logger

	mu      sync.RWMutex
	counter Counter
}

// NewTracker 创建统计跟踪器。
func NewTracker(store Store, logger *zap.Logger) *Tracker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Tracker{store: store, logger: logger}
}

// Load 从后端读取计数；读取失败时回退为零值。
func (t *Tracker) Load(ctx context.Context) Counter {
	c, err := t.store.Load(ctx)
	switch {
	case err == nil:
		t.logger.Info("已加载交易统计", zap.Int64("wins", c.Wins), zap.Int64("losses", c.Losses))
	case errors.Is(err, fs.ErrNotExist):
		t.logger.Info("未找到交易统计，从零开始")
		c = Counter{}
	default:
		t.logger.Warn("读取交易统计失败，从零开始", zap.Error(err))
		c = Counter{}
	}

	t.mu.Lock()
	t.counter = c
	t.mu.Unlock()
	return c
}

// RecordClose 记录一次成功平仓。平仓一律计为胜。
func (t *Tracker) RecordClose(ctx context.Context) Counter {
	t.mu.Lock()
	t.counter.Wins++
	c := t.counter
	t.mu.Unlock()

	if err := t.store.Save(ctx, c); err != nil {
		t.logger.Warn("保存交易统计失败，保留内存计数", zap.Error(err), zap.Int64("wins", c.Wins))
	}
	return c
}

// Counter 返回当前计数。
func (t *Tracker) Counter() Counter {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.counter
}

package position

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

type accountClient interface {
	Balance(ctx context.Context, marginCoin string) (float64, error)
	PendingPosition(ctx context.Context, symbol string) (Position, error)
}

// Manager 维护持仓与可用余额的本地缓存，每个周期刷新。
type Manager struct {
	client     accountClient
	symbol     string
	marginCoin string
	logger     *zap.Logger

	mu           sync.RWMutex
	current      Position
	balance      float64
	balanceKnown bool
}

// NewManager 创建仓位管理器。
func NewManager(client accountClient, symbol, marginCoin string, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		client:     client,
		symbol:     symbol,
		marginCoin: marginCoin,
		logger:     logger,
		current:    None(),
	}
}

// RefreshPosition 查询交易所当前持仓并更新缓存。查询失败时缓存保持不变。
func (m *Manager) RefreshPosition(ctx context.Context) (Position, error) {
	pos, err := m.client.PendingPosition(ctx, m.symbol)
	if err != nil {
		return m.Current(), fmt.Errorf("position: 查询持仓失败: %w", err)
	}

	m.mu.Lock()
	prev := m.current
	m.current = pos
	m.mu.Unlock()

	if prev.Side != pos.Side || !prev.Quantity.Equal(pos.Quantity) {
		m.logger.Info("持仓变化",
			zap.String("symbol", m.symbol),
			zap.String("from", string(prev.Side)),
			zap.String("to", string(pos.Side)),
			zap.String("qty", pos.Quantity.String()),
			zap.String("position_id", pos.ID),
		)
	}
	return pos, nil
}

// RefreshBalance 查询可用余额，返回最新余额以及是否与上次不同（首次查询视为变化）。
func (m *Manager) RefreshBalance(ctx context.Context) (float64, bool, error) {
	balance, err := m.client.Balance(ctx, m.marginCoin)
	if err != nil {
		return m.Balance(), false, fmt.Errorf("position: 查询余额失败: %w", err)
	}

	m.mu.Lock()
	changed := !m.balanceKnown || m.balance != balance
	m.balance = balance
	m.balanceKnown = true
	m.mu.Unlock()

	if changed {
		m.logger.Info("可用余额更新", zap.String("margin_coin", m.marginCoin), zap.Float64("available", balance))
	}
	return balance, changed, nil
}

// Current 返回缓存的持仓。
func (m *Manager) Current() Position {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// Set 直接覆盖缓存的持仓。
func (m *Manager) Set(pos Position) {
	m.mu.Lock()
	m.current = pos
	m.mu.Unlock()
}

// Balance 返回最近一次查询到的可用余额。
func (m *Manager) Balance() float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.balance
}

// Symbol 返回下单交易对。
func (m *Manager) Symbol() string {
	return m.symbol
}

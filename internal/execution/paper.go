package execution

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"channel-trader/internal/position"
)

// PaperAccount 为模拟盘账户：按最新标记价格撮合意图，并充当余额与持仓的查询来源。
type PaperAccount struct {
	mu       sync.Mutex
	balance  decimal.Decimal
	mark     decimal.Decimal
	current  position.Position
	sequence int
	logger   *zap.Logger
}

// NewPaperAccount 创建模拟账户。
func NewPaperAccount(balance float64, logger *zap.Logger) *PaperAccount {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PaperAccount{
		balance: decimal.NewFromFloat(balance),
		current: position.None(),
		logger:  logger,
	}
}

// SetMarkPrice 更新撮合与浮动盈亏使用的价格。
func (p *PaperAccount) SetMarkPrice(price float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.mark = decimal.NewFromFloat(price)
}

// Balance 返回模拟账户的可用余额。
func (p *PaperAccount) Balance(_ context.Context, _ string) (float64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.balance.InexactFloat64(), nil
}

// PendingPosition 返回模拟持仓，浮动盈亏按当前标记价格计算。
func (p *PaperAccount) PendingPosition(_ context.Context, _ string) (position.Position, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.current.IsOpen() {
		return position.None(), nil
	}
	pos := p.current
	pos.UnrealizedPnL = p.pnlLocked().InexactFloat64()
	return pos, nil
}

// Execute 以当前标记价格立即成交。
func (p *PaperAccount) Execute(_ context.Context, intent Intent) (Result, error) {
	result := Result{Intent: intent, Simulated: true, ExecutionTime: time.Now().UTC()}

	if _, _, err := intent.Action.OrderSides(); err != nil {
		return result, err
	}
	if !intent.Quantity.IsPositive() {
		return result, fmt.Errorf("%w: qty=%s", ErrInvalidQuantity, intent.Quantity.String())
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.mark.IsPositive() {
		return result, fmt.Errorf("execution: 模拟撮合缺少标记价格")
	}

	p.sequence++
	result.OrderID = fmt.Sprintf("paper-%d", p.sequence)

	if intent.Action.IsOpen() {
		if p.current.IsOpen() {
			return result, fmt.Errorf("execution: 模拟账户已有%s，拒绝重复开仓", p.current.Label())
		}
		p.current = position.New(intent.Action.Side(), intent.Quantity, result.OrderID, 0, p.mark.InexactFloat64())
		p.logger.Info("模拟开仓",
			zap.String("action", string(intent.Action)),
			zap.String("qty", intent.Quantity.String()),
			zap.String("price", p.mark.String()),
		)
		return result, nil
	}

	if intent.PositionID == "" {
		return result, ErrMissingPositionID
	}
	if !p.current.IsOpen() || p.current.ID != intent.PositionID || p.current.Side != intent.Action.Side() {
		return result, fmt.Errorf("execution: 模拟账户不存在持仓 %s", intent.PositionID)
	}

	realized := p.pnlLocked()
	p.balance = p.balance.Add(realized)
	p.current = position.None()
	p.logger.Info("模拟平仓",
		zap.String("action", string(intent.Action)),
		zap.String("price", p.mark.String()),
		zap.String("realized", realized.StringFixed(4)),
		zap.String("balance", p.balance.StringFixed(4)),
	)
	return result, nil
}

func (p *PaperAccount) pnlLocked() decimal.Decimal {
	if !p.current.IsOpen() {
		return decimal.Zero
	}
	entry := decimal.NewFromFloat(p.current.EntryPrice)
	diff := p.mark.Sub(entry)
	if p.current.Side == position.SideShort {
		diff = diff.Neg()
	}
	return diff.Mul(p.current.Quantity)
}

package risk

import (
	"errors"
	"fmt"
	"math"

	"github.com/shopspring/decimal"

	"channel-trader/internal/config"
)

// QuantityPlaces 为下单数量保留的小数位。
const QuantityPlaces = 6

// ErrFatalSizing 表示计算出的下单数量不为正，主循环应在强制推送通知后终止。
var ErrFatalSizing = errors.New("risk: 计算下单数量不为正")

// Size 计算开仓数量：floor6(余额 × 资金比例 × 杠杆 / 最新收盘价)。
func Size(balance, walletFraction float64, leverage int, price float64) (decimal.Decimal, error) {
	if !(price > 0) || math.IsInf(price, 0) {
		return decimal.Zero, fmt.Errorf("%w: 最新价格无效 price=%v", ErrFatalSizing, price)
	}
	if math.IsNaN(balance) || math.IsInf(balance, 0) || math.IsNaN(walletFraction) || math.IsInf(walletFraction, 0) {
		return decimal.Zero, fmt.Errorf("%w: 余额或资金比例无效", ErrFatalSizing)
	}

	qty := decimal.NewFromFloat(balance).
		Mul(decimal.NewFromFloat(walletFraction)).
		Mul(decimal.NewFromInt(int64(leverage))).
		Div(decimal.NewFromFloat(price)).
		Truncate(QuantityPlaces)

	if !qty.IsPositive() {
		return decimal.Zero, fmt.Errorf("%w: balance=%v fraction=%v leverage=%d price=%v",
			ErrFatalSizing, balance, walletFraction, leverage, price)
	}
	return qty, nil
}

// Sizer 绑定策略配置的仓位计算器。
type Sizer struct {
	cfg config.StrategyConfig
}

// NewSizer 创建仓位计算器。
func NewSizer(cfg config.StrategyConfig) *Sizer {
	return &Sizer{cfg: cfg}
}

// Size 按配置的资金比例与杠杆计算开仓数量。
func (s *Sizer) Size(balance, price float64) (decimal.Decimal, error) {
	return Size(balance, s.cfg.WalletFraction, s.cfg.Leverage, price)
}

// Leverage 返回配置的杠杆倍数。
func (s *Sizer) Leverage() int {
	return s.cfg.Leverage
}

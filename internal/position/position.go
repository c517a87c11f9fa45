package position

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Side 表示持仓方向。
type Side string

const (
	SideNone  Side = "none"
	SideLong  Side = "long"
	SideShort Side = "short"
)

// Position 描述交易所上某个交易对的当前持仓。
type Position struct {
	Side          Side
	Quantity      decimal.Decimal
	ID            string
	UnrealizedPnL float64
	EntryPrice    float64
}

// None 返回空仓。
func None() Position {
	return Position{Side: SideNone, Quantity: decimal.Zero}
}

// New 创建持仓，数量不为正或方向未知时一律归一为空仓。
func New(side Side, qty decimal.Decimal, id string, unrealizedPnL, entryPrice float64) Position {
	if !qty.IsPositive() || (side != SideLong && side != SideShort) {
		return None()
	}
	return Position{
		Side:          side,
		Quantity:      qty,
		ID:            id,
		UnrealizedPnL: unrealizedPnL,
		EntryPrice:    entryPrice,
	}
}

// IsOpen 表示是否持有多单或空单。
func (p Position) IsOpen() bool {
	return (p.Side == SideLong || p.Side == SideShort) && p.Quantity.IsPositive()
}

// Label 返回持仓方向的展示文本。
func (p Position) Label() string {
	switch {
	case !p.IsOpen():
		return "无持仓"
	case p.Side == SideLong:
		return "多单"
	default:
		return "空单"
	}
}

// Summary 返回通知中使用的持仓行。
func (p Position) Summary() string {
	switch {
	case !p.IsOpen():
		return "🔄 **当前持仓**：无持仓"
	case p.Side == SideLong:
		return fmt.Sprintf("📈 **当前持仓**：多单 (数量: %s)", p.Quantity.String())
	default:
		return fmt.Sprintf("📉 **当前持仓**：空单 (数量: %s)", p.Quantity.String())
	}
}

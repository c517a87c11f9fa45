package execution

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"channel-trader/internal/bitunix"
	"channel-trader/internal/position"
)

// Action 表示状态机给出的交易动作。
type Action string

const (
	ActionNone       Action = ""
	ActionOpenLong   Action = "open_long"
	ActionOpenShort  Action = "open_short"
	ActionCloseLong  Action = "close_long"
	ActionCloseShort Action = "close_short"
)

var (
	// ErrMissingPositionID 表示平仓意图缺少持仓ID，请求不会发出。
	ErrMissingPositionID = errors.New("execution: 平仓缺少持仓ID")
	// ErrInvalidQuantity 表示下单数量不为正。
	ErrInvalidQuantity = errors.New("execution: 下单数量必须为正")
	// ErrStaleQuantity 表示平仓条件成立但缓存的持仓数量不为正，本次平仓被跳过。
	ErrStaleQuantity = errors.New("execution: 持仓数量不为正，跳过平仓")
	// ErrUnknownAction 表示无法映射到订单方向的动作。
	ErrUnknownAction = errors.New("execution: 未知交易动作")
)

// IsOpen 表示是否为开仓动作。
func (a Action) IsOpen() bool {
	return a == ActionOpenLong || a == ActionOpenShort
}

// IsClose 表示是否为平仓动作。
func (a Action) IsClose() bool {
	return a == ActionCloseLong || a == ActionCloseShort
}

// Side 返回动作对应的持仓方向。
func (a Action) Side() position.Side {
	switch a {
	case ActionOpenLong, ActionCloseLong:
		return position.SideLong
	case ActionOpenShort, ActionCloseShort:
		return position.SideShort
	default:
		return position.SideNone
	}
}

// Label 返回动作的中文名称。
func (a Action) Label() string {
	switch a {
	case ActionOpenLong:
		return "开多"
	case ActionOpenShort:
		return "开空"
	case ActionCloseLong:
		return "平多"
	case ActionCloseShort:
		return "平空"
	default:
		return "无动作"
	}
}

// OrderSides 返回动作对应的 (side, tradeSide)。
func (a Action) OrderSides() (string, string, error) {
	switch a {
	case ActionOpenLong:
		return bitunix.SideBuy, bitunix.TradeSideOpen, nil
	case ActionCloseLong:
		return bitunix.SideSell, bitunix.TradeSideClose, nil
	case ActionOpenShort:
		return bitunix.SideSell, bitunix.TradeSideOpen, nil
	case ActionCloseShort:
		return bitunix.SideBuy, bitunix.TradeSideClose, nil
	default:
		return "", "", fmt.Errorf("%w: %q", ErrUnknownAction, string(a))
	}
}

// Intent 描述一次待执行的下单意图。
type Intent struct {
	Action     Action
	Quantity   decimal.Decimal
	Leverage   int
	PositionID string
}

// Result 为执行结果摘要。
type Result struct {
	Intent        Intent
	OrderID       string
	Simulated     bool
	ExecutionTime time.Time
}

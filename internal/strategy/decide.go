package strategy

import (
	"channel-trader/internal/execution"
	"channel-trader/internal/indicator"
	"channel-trader/internal/position"
)

// Decide 根据当前持仓方向、收盘价与第 i 根K线的通道给出动作。
//
//	空仓：收盘价 > 上轨 开多；收盘价 < 下轨 开空
//	多单：收盘价 < 中轨 平多（等于中轨继续持有）
//	空单：收盘价 > 中轨 平空
//
// 通道在 i 处未定义时不产生任何动作。
func Decide(side position.Side, closePrice float64, ch indicator.Channel, i int) execution.Action {
	if !ch.Eligible(i) {
		return execution.ActionNone
	}
	bands := ch.At(i)

	switch side {
	case position.SideLong:
		if closePrice < bands.Middle {
			return execution.ActionCloseLong
		}
	case position.SideShort:
		if closePrice > bands.Middle {
			return execution.ActionCloseShort
		}
	default:
		if closePrice > bands.Upper {
			return execution.ActionOpenLong
		}
		if closePrice < bands.Lower {
			return execution.ActionOpenShort
		}
	}
	return execution.ActionNone
}

package notify

import (
	"fmt"
	"strings"

	"channel-trader/internal/position"
	"channel-trader/internal/stats"
)

const separator = "\n--------------------------------\n"

// Render 生成一条通知的完整文本：动作正文、交易统计、当前持仓与浮动盈亏，首尾带分隔线。
// 平仓成功时持仓行固定为无持仓，且不显示浮动盈亏。
func Render(env Envelope, pos position.Position, counter stats.Counter) string {
	var b strings.Builder
	b.WriteString(actionText(env))
	b.WriteString("\n\n📊 **交易统计**：")
	b.WriteString(winRateText(counter))
	b.WriteString("\n")

	if env.Kind == KindCloseSuccess {
		b.WriteString(position.None().Summary())
	} else {
		b.WriteString(pos.Summary())
		if pos.IsOpen() {
			fmt.Fprintf(&b, "\n💰 当前未实现盈亏: %.4f USDT", pos.UnrealizedPnL)
		}
	}

	return separator + b.String() + separator
}

func actionText(env Envelope) string {
	d := env.Details
	switch env.Kind {
	case KindCloseSuccess:
		pnl := "N/A"
		if d.PnL != nil {
			pnl = fmt.Sprintf("%.4f", *d.PnL)
		}
		return fmt.Sprintf("%s (数量: %s)\n🎯 **平仓类型**: %s\n💰 **本次已实现盈亏**: %s USDT",
			env.Message, orNA(d.Qty), sideText(d.Side), pnl)
	case KindOpenSuccess:
		return fmt.Sprintf("%s (数量: %s, 估计价格: %.2f USDT)\nℹ️ **开仓类型**: %s",
			env.Message, orNA(d.Qty), d.Price, sideText(d.Side))
	case KindError:
		return withDetail("🔴 **错误**: "+env.Message, d.Detail)
	case KindWarning:
		return withDetail("⚠️ **警告**: "+env.Message, d.Detail)
	case KindFatal:
		return withDetail("🛑 **程序终止**: "+env.Message, d.Detail)
	default:
		return withDetail(env.Message, d.Detail)
	}
}

func winRateText(c stats.Counter) string {
	rate, ok := c.WinRate()
	if !ok {
		return "N/A (尚无已完成交易)"
	}
	return fmt.Sprintf("%.2f%% (%d胜/%d负)", rate, c.Wins, c.Losses)
}

func sideText(side position.Side) string {
	switch side {
	case position.SideLong:
		return "多单"
	case position.SideShort:
		return "空单"
	default:
		return "未知"
	}
}

func withDetail(text, detail string) string {
	if detail == "" {
		return text
	}
	return text + "\n" + detail
}

func orNA(s string) string {
	if s == "" {
		return "N/A"
	}
	return s
}

package strategy

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"channel-trader/internal/chart"
	"channel-trader/internal/exchange"
	"channel-trader/internal/execution"
	"channel-trader/internal/indicator"
	"channel-trader/internal/notify"
	"channel-trader/internal/position"
	"channel-trader/internal/stats"
)

type positionSource interface {
	RefreshPosition(ctx context.Context) (position.Position, error)
	Set(pos position.Position)
}

type notifier interface {
	Submit(ctx context.Context, env notify.Envelope) error
}

type outcomeRecorder interface {
	RecordClose(ctx context.Context) stats.Counter
}

// Cycle 为一次决策所需的输入，Quantity 为按当前余额计算出的开仓数量。
type Cycle struct {
	Bars     []exchange.Bar
	Channel  indicator.Channel
	Position position.Position
	Quantity decimal.Decimal
}

// Outcome 为一次决策的结果。
type Outcome struct {
	Action   execution.Action
	Executed bool
	Result   execution.Result
	Err      error
}

// Machine 为持仓状态机：依据通道信号开平仓，并负责标注、统计与通知。
type Machine struct {
	trader    execution.Trader
	positions positionSource
	notifier  notifier
	stats     outcomeRecorder
	markers   *chart.MarkerLog
	leverage  int
	logger    *zap.Logger
}

// NewMachine 创建状态机。
func NewMachine(trader execution.Trader, positions positionSource, n notifier, recorder outcomeRecorder, markers *chart.MarkerLog, leverage int, logger *zap.Logger) *Machine {
	if logger == nil {
		logger = zap.NewNop()
	}
	if markers == nil {
		markers = chart.NewMarkerLog()
	}
	return &Machine{
		trader:    trader,
		positions: positions,
		notifier:  n,
		stats:     recorder,
		markers:   markers,
		leverage:  leverage,
		logger:    logger,
	}
}

// Step 对最新一根K线执行一次决策。交易所错误会转为通知，本周期视为未执行。
func (m *Machine) Step(ctx context.Context, cycle Cycle) Outcome {
	if len(cycle.Bars) == 0 {
		return Outcome{}
	}
	i := len(cycle.Bars) - 1
	last := cycle.Bars[i]

	action := Decide(cycle.Position.Side, last.Close, cycle.Channel, i)
	if action == execution.ActionNone {
		bands := cycle.Channel.At(i)
		m.logger.Debug("无交易信号",
			zap.String("side", string(cycle.Position.Side)),
			zap.Float64("close", last.Close),
			zap.Float64("upper", bands.Upper),
			zap.Float64("middle", bands.Middle),
			zap.Float64("lower", bands.Lower),
		)
		return Outcome{}
	}

	m.logger.Info("交易信号", zap.String("action", string(action)), zap.Float64("close", last.Close))
	if action.IsOpen() {
		return m.open(ctx, action, cycle, i)
	}
	return m.close(ctx, action, cycle)
}

func (m *Machine) open(ctx context.Context, action execution.Action, cycle Cycle, i int) Outcome {
	last := cycle.Bars[i]
	intent := execution.Intent{Action: action, Quantity: cycle.Quantity, Leverage: m.leverage}
	outcome := Outcome{Action: action}

	res, err := m.trader.Execute(ctx, intent)
	if err != nil {
		outcome.Err = err
		m.notify(ctx, notify.ErrorEnvelope(fmt.Sprintf("%s失败", action.Label()), err, false))
		return outcome
	}
	outcome.Executed = true
	outcome.Result = res

	side := action.Side()
	m.markers.Append(chart.Marker{Index: i, Time: last.Timestamp, Price: last.Close, Side: side})

	if _, err := m.positions.RefreshPosition(ctx); err != nil {
		m.logger.Warn("开仓后刷新持仓失败，暂用本地持仓", zap.Error(err))
		m.notify(ctx, notify.ErrorEnvelope("开仓后查询持仓失败", err, false))
		m.positions.Set(position.New(side, cycle.Quantity, "", 0, last.Close))
	}

	msg := "🔵 **开仓成功**: 多单 📈"
	if side == position.SideShort {
		msg = "🔴 **开仓成功**: 空单 📉"
	}
	m.notify(ctx, notify.Envelope{
		Message: msg,
		Kind:    notify.KindOpenSuccess,
		Details: notify.Details{Side: side, Qty: cycle.Quantity.String(), Price: last.Close},
	})
	return outcome
}

func (m *Machine) close(ctx context.Context, action execution.Action, cycle Cycle) Outcome {
	pos := cycle.Position
	outcome := Outcome{Action: action}
	label := action.Label()

	if !pos.Quantity.IsPositive() {
		outcome.Err = execution.ErrStaleQuantity
		m.logger.Warn("平仓条件成立但持仓数量不为正", zap.String("qty", pos.Quantity.String()))
		m.notify(ctx, notify.ErrorEnvelope(
			fmt.Sprintf("%s警告: 尝试平仓但查询到的持仓数量为 %s", label, pos.Quantity.String()),
			execution.ErrStaleQuantity, false))
		return outcome
	}

	intent := execution.Intent{
		Action:     action,
		Quantity:   pos.Quantity,
		Leverage:   m.leverage,
		PositionID: pos.ID,
	}
	res, err := m.trader.Execute(ctx, intent)
	if err != nil {
		outcome.Err = err
		title := fmt.Sprintf("%s失败", label)
		if errors.Is(err, execution.ErrMissingPositionID) {
			title = fmt.Sprintf("%s警告: 缺少持仓ID，等待下次查询", label)
		}
		m.notify(ctx, notify.ErrorEnvelope(title, err, false))
		return outcome
	}
	outcome.Executed = true
	outcome.Result = res

	counter := m.stats.RecordClose(ctx)
	m.logger.Info("平仓成功", zap.String("action", string(action)), zap.Int64("wins", counter.Wins), zap.Int64("losses", counter.Losses))

	m.positions.Set(position.None())
	if _, err := m.positions.RefreshPosition(ctx); err != nil {
		m.logger.Warn("平仓后刷新持仓失败", zap.Error(err))
		m.notify(ctx, notify.ErrorEnvelope("平仓后查询持仓失败", err, false))
	}

	msg := "✅ **平仓成功**: 多单 📈"
	if pos.Side == position.SideShort {
		msg = "✅ **平仓成功**: 空单 📉"
	}
	pnl := pos.UnrealizedPnL
	m.notify(ctx, notify.Envelope{
		Message:   msg,
		Kind:      notify.KindCloseSuccess,
		Details:   notify.Details{Side: pos.Side, Qty: pos.Quantity.String(), PnL: &pnl},
		ForceSend: true,
	})
	return outcome
}

func (m *Machine) notify(ctx context.Context, env notify.Envelope) {
	if err := m.notifier.Submit(ctx, env); err != nil {
		m.logger.Warn("提交通知失败", zap.String("kind", string(env.Kind)), zap.Error(err))
	}
}

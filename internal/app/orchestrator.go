package app

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"channel-trader/internal/chart"
	"channel-trader/internal/exchange"
	"channel-trader/internal/execution"
	"channel-trader/internal/indicator"
	"channel-trader/internal/monitor"
	"channel-trader/internal/notify"
	"channel-trader/internal/position"
	"channel-trader/internal/strategy"
)

// bandTolerance 为判定通道变动的最小差值。
const bandTolerance = 0.001

// errStartupAborted 表示启动阶段无法取得行情，主流程应直接结束。
var errStartupAborted = errors.New("app: 启动阶段无法获取K线")

type barSource interface {
	FetchBars(ctx context.Context) ([]exchange.Bar, error)
}

type accountState interface {
	RefreshBalance(ctx context.Context) (float64, bool, error)
	RefreshPosition(ctx context.Context) (position.Position, error)
}

type stepper interface {
	Step(ctx context.Context, cycle strategy.Cycle) strategy.Outcome
}

type notifier interface {
	Submit(ctx context.Context, env notify.Envelope) error
	ForceFlush(ctx context.Context) error
}

type sizer interface {
	Size(balance, price float64) (decimal.Decimal, error)
}

type markPricer interface {
	SetMarkPrice(price float64)
}

type journal interface {
	RecordCycle(ctx context.Context, payload monitor.CyclePayload)
	RecordOrder(ctx context.Context, payload monitor.OrderPayload)
	RecordPosition(ctx context.Context, pos position.Position)
	RecordBalance(ctx context.Context, marginCoin string, available float64)
	RecordError(ctx context.Context, msg string, err error, ctxMap map[string]interface{})
}

type nopJournal struct{}

func (nopJournal) RecordCycle(context.Context, monitor.CyclePayload) {}
func (nopJournal) RecordOrder(context.Context, monitor.OrderPayload) {}
func (nopJournal) RecordPosition(context.Context, position.Position) {}
func (nopJournal) RecordBalance(context.Context, string, float64) {}
func (nopJournal) RecordError(context.Context, string, error, map[string]interface{}) {}

type orchestratorDeps struct {
	bars       barSource
	account    accountState
	machine    stepper
	notifier   notifier
	sizer      sizer
	renderer   chart.Renderer
	markers    *chart.MarkerLog
	journal    journal
	mark       markPricer
	lookback   int
	marginCoin string
	now        func() time.Time
}

// orchestrator 串行驱动每一轮：余额、行情、仓位计算、持仓、通道通知、状态机、新K线图表、推送。
type orchestrator struct {
	orchestratorDeps
	logger  *zap.Logger
	printer *message.Printer

	balance      float64
	balanceKnown bool
	lastBands    indicator.Bands
	bandsKnown   bool
	lastBarTime  time.Time
}

func newOrchestrator(deps orchestratorDeps, logger *zap.Logger) *orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if deps.journal == nil {
		deps.journal = nopJournal{}
	}
	if deps.markers == nil {
		deps.markers = chart.NewMarkerLog()
	}
	if deps.now == nil {
		deps.now = time.Now
	}
	return &orchestrator{
		orchestratorDeps: deps,
		logger:           logger,
		printer:          message.NewPrinter(language.English),
	}
}

// Start 发送启动通知，拉取初始K线并依据当前持仓补回一个开仓标注。
func (o *orchestrator) Start(ctx context.Context) error {
	o.submit(ctx, notify.Envelope{
		Message:   "🚀 **交易机器人启动** 🚀\n📊 开始载入初始K线数据... 📊",
		Kind:      notify.KindInfo,
		ForceSend: true,
	})

	bars, err := o.bars.FetchBars(ctx)
	if err != nil {
		o.logger.Error("启动时获取K线失败", zap.Error(err))
		o.journal.RecordError(ctx, "启动时获取K线失败", err, nil)
		o.submit(ctx, notify.ErrorEnvelope("启动失败：无法获取初始K线数据，请检查网络或API设置", err, true))
		return fmt.Errorf("%w: %v", errStartupAborted, err)
	}
	last := bars[len(bars)-1]
	o.lastBarTime = last.Timestamp
	if o.mark != nil {
		o.mark.SetMarkPrice(last.Close)
	}

	pos, err := o.account.RefreshPosition(ctx)
	if err != nil {
		o.reportError(ctx, "启动时查询持仓失败，跳过标注补回", err, false)
		return nil
	}
	o.reconcileMarker(bars, pos)
	return nil
}

func (o *orchestrator) reconcileMarker(bars []exchange.Bar, pos position.Position) {
	if !pos.IsOpen() || !(pos.EntryPrice > 0) {
		return
	}
	idx := indicator.NearestIndex(exchange.Closes(bars), pos.EntryPrice)
	if idx < 0 {
		return
	}
	o.markers.Append(chart.Marker{
		Index: idx,
		Time:  bars[idx].Timestamp,
		Price: bars[idx].Close,
		Side:  pos.Side,
	})
	o.logger.Info("已依据现有持仓补回开仓标注",
		zap.String("side", string(pos.Side)),
		zap.Float64("entry_price", pos.EntryPrice),
		zap.Int("index", idx),
	)
}

// Tick 执行一轮完整流程。只有仓位计算结果非正时返回错误，其余异常转为通知后跳过。
func (o *orchestrator) Tick(ctx context.Context) error {
	defer o.flush(ctx)

	if !o.refreshBalance(ctx) {
		return nil
	}

	bars, err := o.bars.FetchBars(ctx)
	if err != nil {
		o.reportError(ctx, "获取K线失败", err, false)
		return nil
	}
	ch, err := indicator.ComputeChannel(indicator.NewSeries(bars), o.lookback)
	if err != nil {
		o.reportError(ctx, "计算通道失败", err, false)
		return nil
	}
	last := bars[len(bars)-1]
	bands := ch.Latest()
	if o.mark != nil {
		o.mark.SetMarkPrice(last.Close)
	}

	qty, err := o.sizer.Size(o.balance, last.Close)
	if err != nil {
		o.logger.Error("下单数量不为正，停止运行", zap.Float64("balance", o.balance), zap.Float64("close", last.Close), zap.Error(err))
		o.journal.RecordError(ctx, "下单数量不为正", err, map[string]interface{}{"balance": o.balance, "close": last.Close})
		o.submit(ctx, notify.ErrorEnvelope("余额为0，交易机器人已停止运行", err, true))
		return err
	}

	pos, posErr := o.account.RefreshPosition(ctx)
	if posErr != nil {
		o.reportError(ctx, "查询持仓失败", posErr, false)
	} else {
		o.journal.RecordPosition(ctx, pos)
	}

	if o.channelChanged(bands) {
		o.submitChart(ctx, bars, ch, o.channelMessage(last.Close, bands))
	}

	cycle := monitor.CyclePayload{
		BarTime:  last.Timestamp,
		Close:    last.Close,
		Upper:    finite(bands.Upper),
		Lower:    finite(bands.Lower),
		Middle:   finite(bands.Middle),
		Quantity: qty.String(),
		Side:     string(pos.Side),
	}

	if posErr == nil {
		outcome := o.machine.Step(ctx, strategy.Cycle{Bars: bars, Channel: ch, Position: pos, Quantity: qty})
		if outcome.Action != execution.ActionNone {
			cycle.Action = string(outcome.Action)
			o.recordOrder(ctx, outcome)
		}
	}

	if last.Timestamp.After(o.lastBarTime) {
		o.submitChart(ctx, bars, ch, o.newBarMessage(last.Close, bands))
	}
	o.lastBarTime = last.Timestamp

	o.journal.RecordCycle(ctx, cycle)
	return nil
}

// refreshBalance 查询余额，失败时沿用上一次的值；从未取得余额时返回 false，本轮跳过。
func (o *orchestrator) refreshBalance(ctx context.Context) bool {
	balance, changed, err := o.account.RefreshBalance(ctx)
	if err != nil {
		o.reportError(ctx, "余额查询失败", err, true)
		return o.balanceKnown
	}
	o.balance = balance
	o.balanceKnown = true
	if !changed {
		return true
	}
	o.journal.RecordBalance(ctx, o.marginCoin, balance)
	o.submit(ctx, notify.Envelope{
		Message:   fmt.Sprintf("💰 **当前余额**: %.4f %s 💰", balance, o.marginCoin),
		Kind:      notify.KindBalanceUpdate,
		ForceSend: true,
	})
	return true
}

// channelChanged 比较最新三轨与上一轮，首轮总是视为变化。
func (o *orchestrator) channelChanged(bands indicator.Bands) bool {
	changed := !o.bandsKnown ||
		bandMoved(o.lastBands.Upper, bands.Upper) ||
		bandMoved(o.lastBands.Lower, bands.Lower) ||
		bandMoved(o.lastBands.Middle, bands.Middle)
	o.lastBands = bands
	o.bandsKnown = true
	return changed
}

func bandMoved(prev, cur float64) bool {
	prevNaN, curNaN := math.IsNaN(prev), math.IsNaN(cur)
	if prevNaN || curNaN {
		return prevNaN != curNaN
	}
	return math.Abs(cur-prev) > bandTolerance
}

func (o *orchestrator) channelMessage(closePrice float64, b indicator.Bands) string {
	return o.printer.Sprintf("📢 **通道指标变动通知** 📢\n📈 最新收盘价: $%.2f\n⬆️ 上轨: $%.2f\n⬇️ 下轨: $%.2f\n➖ 中轨: $%.2f\n🕒 更新时间: %s",
		closePrice, b.Upper, b.Lower, b.Middle, o.now().Format(time.DateTime))
}

func (o *orchestrator) newBarMessage(closePrice float64, b indicator.Bands) string {
	return o.printer.Sprintf("🆕 新K线产生，最新收盘价: $%.2f\n⬆️ 上轨: $%.2f\n⬇️ 下轨: $%.2f\n➖ 中轨: $%.2f\n🕒 时间: %s",
		closePrice, b.Upper, b.Lower, b.Middle, o.now().Format(time.DateTime))
}

// submitChart 附带通道图表提交通知，绘图失败时只发送文字。
func (o *orchestrator) submitChart(ctx context.Context, bars []exchange.Bar, ch indicator.Channel, msg string) {
	env := notify.Envelope{Message: msg, Kind: notify.KindStatusUpdate}
	if o.renderer != nil {
		img, err := o.renderer.Render(bars, ch, chart.Resolve(o.markers.All(), bars))
		if err != nil {
			o.logger.Warn("绘制通道图表失败", zap.Error(err))
		} else {
			env.Attachment = notify.PNGAttachment("channel.png", img)
		}
	}
	o.submit(ctx, env)
}

func (o *orchestrator) recordOrder(ctx context.Context, outcome strategy.Outcome) {
	payload := monitor.OrderPayload{
		Action:     string(outcome.Action),
		Quantity:   outcome.Result.Intent.Quantity.String(),
		PositionID: outcome.Result.Intent.PositionID,
		OrderID:    outcome.Result.OrderID,
		Simulated:  outcome.Result.Simulated,
		Executed:   outcome.Executed,
	}
	if outcome.Err != nil {
		payload.Error = outcome.Err.Error()
	}
	o.journal.RecordOrder(ctx, payload)
}

func (o *orchestrator) reportError(ctx context.Context, title string, err error, force bool) {
	o.logger.Error(title, zap.Error(err))
	o.journal.RecordError(ctx, title, err, nil)
	o.submit(ctx, notify.ErrorEnvelope(title, err, force))
}

func (o *orchestrator) submit(ctx context.Context, env notify.Envelope) {
	if err := o.notifier.Submit(ctx, env); err != nil {
		o.logger.Warn("提交通知失败", zap.String("kind", string(env.Kind)), zap.Error(err))
	}
}

func (o *orchestrator) flush(ctx context.Context) {
	if err := o.notifier.ForceFlush(ctx); err != nil {
		o.logger.Warn("推送通知失败", zap.Error(err))
	}
}

func finite(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}

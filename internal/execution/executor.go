package execution

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"channel-trader/internal/bitunix"
)

type orderClient interface {
	PlaceOrder(ctx context.Context, req bitunix.OrderRequest) (bitunix.OrderResult, error)
}

// Executor 将下单意图转换为 Bitunix 市价单并提交，不做重试。
type Executor struct {
	client     orderClient
	symbol     string
	marginCoin string
	logger     *zap.Logger
}

// NewExecutor 创建执行器。
func NewExecutor(client orderClient, symbol, marginCoin string, logger *zap.Logger) *Executor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Executor{
		client:     client,
		symbol:     symbol,
		marginCoin: marginCoin,
		logger:     logger,
	}
}

// BuildOrder 根据意图生成订单请求，平仓意图必须带持仓ID。
func (e *Executor) BuildOrder(intent Intent) (bitunix.OrderRequest, error) {
	return buildOrderRequest(intent, e.symbol, e.marginCoin)
}

// Execute 提交订单，任何校验或交易所错误都会原样返回。
func (e *Executor) Execute(ctx context.Context, intent Intent) (Result, error) {
	result := Result{Intent: intent, ExecutionTime: time.Now().UTC()}

	order, err := e.BuildOrder(intent)
	if err != nil {
		return result, err
	}

	e.logger.Info("提交订单",
		zap.String("action", string(intent.Action)),
		zap.String("side", order.Side),
		zap.String("trade_side", order.TradeSide),
		zap.String("qty", order.Qty),
		zap.Int("leverage", intent.Leverage),
		zap.String("position_id", order.PositionID),
	)

	res, err := e.client.PlaceOrder(ctx, order)
	if err != nil {
		e.logger.Warn("下单失败", zap.String("action", string(intent.Action)), zap.Error(err))
		return result, err
	}

	result.OrderID = res.OrderID
	return result, nil
}

func buildOrderRequest(intent Intent, symbol, marginCoin string) (bitunix.OrderRequest, error) {
	side, tradeSide, err := intent.Action.OrderSides()
	if err != nil {
		return bitunix.OrderRequest{}, err
	}
	if !intent.Quantity.IsPositive() {
		return bitunix.OrderRequest{}, fmt.Errorf("%w: qty=%s", ErrInvalidQuantity, intent.Quantity.String())
	}

	order := bitunix.OrderRequest{
		Symbol:     symbol,
		MarginCoin: marginCoin,
		Qty:        intent.Quantity.String(),
		Side:       side,
		TradeSide:  tradeSide,
		OrderType:  bitunix.OrderTypeMarket,
		Effect:     bitunix.EffectGTC,
	}
	if intent.Action.IsClose() {
		if intent.PositionID == "" {
			return bitunix.OrderRequest{}, ErrMissingPositionID
		}
		order.PositionID = intent.PositionID
	}
	return order, nil
}

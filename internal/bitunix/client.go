package bitunix

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"channel-trader/internal/config"
	"channel-trader/internal/position"
)

const (
	DefaultBaseURL = "https://fapi.bitunix.com"

	pathAccount         = "/api/v1/futures/account"
	pathPendingPosition = "/api/v1/futures/position/get_pending_positions"
	pathPlaceOrder      = "/api/v1/futures/trade/place_order"

	maxErrorBody = 512
)

// Client 为 Bitunix 合约 REST 客户端，不做自动重试，所有错误原样返回给调用方。
type Client struct {
	baseURL string
	signer  *Signer
	http    *http.Client
	logger  *zap.Logger
}

// NewClient 根据配置创建客户端。
func NewClient(cfg config.BitunixConfig, logger *zap.Logger) (*Client, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		base = DefaultBaseURL
	}
	if _, err := url.Parse(base); err != nil {
		return nil, fmt.Errorf("bitunix: base_url 非法: %w", err)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}

	return &Client{
		baseURL: base,
		signer:  NewSigner(Credentials{APIKey: cfg.APIKey, SecretKey: cfg.SecretKey}, cfg.Locale),
		http:    &http.Client{Timeout: timeout},
		logger:  logger,
	}, nil
}

// Balance 查询保证金币种的可用余额。
func (c *Client) Balance(ctx context.Context, marginCoin string) (float64, error) {
	const op = "查询余额"
	data, raw, err := c.do(ctx, op, http.MethodGet, pathAccount, map[string]any{"marginCoin": marginCoin}, nil)
	if err != nil {
		return 0, err
	}

	available, err := parseAvailable(data, marginCoin)
	if err != nil {
		return 0, &ParseError{Op: op, Body: truncate(raw), Err: err}
	}
	return available, nil
}

// PendingPosition 查询交易对的当前持仓，取第一条数量为正的记录；无持仓时返回空仓。
func (c *Client) PendingPosition(ctx context.Context, symbol string) (position.Position, error) {
	const op = "查询持仓"
	data, raw, err := c.do(ctx, op, http.MethodGet, pathPendingPosition, map[string]any{"symbol": symbol}, nil)
	if err != nil {
		return position.None(), err
	}

	var entries []pendingPosition
	if trimmed := bytes.TrimSpace(data); len(trimmed) > 0 && !bytes.Equal(trimmed, []byte("null")) {
		if err := json.Unmarshal(trimmed, &entries); err != nil {
			return position.None(), &ParseError{Op: op, Body: truncate(raw), Err: err}
		}
	}

	for _, entry := range entries {
		qty := entry.Qty.Decimal()
		if !qty.IsPositive() {
			continue
		}
		var side position.Side
		switch strings.ToUpper(strings.TrimSpace(entry.Side)) {
		case SideBuy, "LONG":
			side = position.SideLong
		case SideSell, "SHORT":
			side = position.SideShort
		default:
			c.logger.Warn("忽略未知方向的持仓", zap.String("side", entry.Side), zap.String("position_id", string(entry.PositionID)))
			continue
		}

		entryPrice := entry.AvgOpenPrice.Float64()
		if entryPrice == 0 {
			entryPrice = entry.EntryValue.Decimal().Div(qty).InexactFloat64()
		}
		return position.New(side, qty, string(entry.PositionID), entry.UnrealizedPNL.Float64(), entryPrice), nil
	}
	return position.None(), nil
}

// PlaceOrder 提交市价单。交易所返回 code=0 即视为受理成功。
func (c *Client) PlaceOrder(ctx context.Context, req OrderRequest) (OrderResult, error) {
	const op = "下单"
	if req.OrderType == "" {
		req.OrderType = OrderTypeMarket
	}
	if req.Effect == "" {
		req.Effect = EffectGTC
	}

	data, _, err := c.do(ctx, op, http.MethodPost, pathPlaceOrder, nil, req)
	if err != nil {
		return OrderResult{}, err
	}

	var result OrderResult
	if trimmed := bytes.TrimSpace(data); len(trimmed) > 0 && !bytes.Equal(trimmed, []byte("null")) {
		var od orderData
		if err := json.Unmarshal(trimmed, &od); err != nil {
			// 订单已被受理，订单号解析失败不应让调用方误判为下单失败。
			c.logger.Warn("订单已受理但无法解析订单号", zap.Error(err), zap.ByteString("data", trimmed))
		} else {
			result = OrderResult{OrderID: string(od.OrderID), ClientID: string(od.ClientID)}
		}
	}

	c.logger.Info("订单已受理",
		zap.String("symbol", req.Symbol),
		zap.String("side", req.Side),
		zap.String("trade_side", req.TradeSide),
		zap.String("qty", req.Qty),
		zap.String("order_id", result.OrderID),
	)
	return result, nil
}

func (c *Client) do(ctx context.Context, op, method, path string, query map[string]any, body any) (json.RawMessage, []byte, error) {
	signed, err := c.signer.Sign(SignRequest{Method: method, Query: query, Body: body})
	if err != nil {
		return nil, nil, err
	}

	target := c.baseURL + path
	if len(query) > 0 {
		values := url.Values{}
		for k, v := range query {
			values.Set(k, stringify(v))
		}
		target += "?" + values.Encode()
	}

	var reader io.Reader
	if len(signed.Body) > 0 {
		reader = bytes.NewReader(signed.Body)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return nil, nil, fmt.Errorf("bitunix: 构造请求失败: %w", err)
	}
	req.Header = signed.Header

	started := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, nil, &NetworkError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, &NetworkError{Op: op, Err: err}
	}

	c.logger.Debug("bitunix 请求完成",
		zap.String("op", op),
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("elapsed", time.Since(started)),
	)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, raw, &HTTPError{Op: op, StatusCode: resp.StatusCode, Body: truncate(raw)}
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, raw, &ParseError{Op: op, Body: truncate(raw), Err: err}
	}
	if env.Code == nil {
		return nil, raw, &ParseError{Op: op, Body: truncate(raw), Err: errors.New("响应缺少 code 字段")}
	}
	if *env.Code != 0 {
		msg := env.Msg
		if msg == "" {
			msg = env.Message
		}
		return nil, raw, &APIError{Op: op, Code: *env.Code, Msg: msg}
	}
	return env.Data, raw, nil
}

func parseAvailable(data json.RawMessage, marginCoin string) (float64, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return 0, errors.New("data 为空")
	}

	switch data[0] {
	case '[':
		var items []json.RawMessage
		if err := json.Unmarshal(data, &items); err != nil {
			return 0, err
		}
		if len(items) == 0 {
			return 0, errors.New("data 为空数组")
		}
		chosen := items[0]
		for _, item := range items {
			var head struct {
				MarginCoin string `json:"marginCoin"`
			}
			if json.Unmarshal(item, &head) == nil && strings.EqualFold(head.MarginCoin, marginCoin) {
				chosen = item
				break
			}
		}
		return parseAvailable(chosen, marginCoin)
	case '{':
		var fields map[string]json.RawMessage
		if err := json.Unmarshal(data, &fields); err != nil {
			return 0, err
		}
		available, ok := fields["available"]
		if !ok {
			return 0, errors.New("缺少 available 字段")
		}
		available = bytes.TrimSpace(available)
		if len(available) > 0 && available[0] == '{' {
			var perCoin map[string]Number
			if err := json.Unmarshal(available, &perCoin); err != nil {
				return 0, err
			}
			v, ok := perCoin[marginCoin]
			if !ok {
				return 0, fmt.Errorf("available 中缺少 %s", marginCoin)
			}
			return strictFloat(v)
		}
		var v Number
		if err := json.Unmarshal(available, &v); err != nil {
			return 0, err
		}
		return strictFloat(v)
	default:
		var v Number
		if err := json.Unmarshal(data, &v); err != nil {
			return 0, err
		}
		return strictFloat(v)
	}
}

func strictFloat(n Number) (float64, error) {
	if n == "" {
		return 0, errors.New("数值为空")
	}
	return strconv.ParseFloat(string(n), 64)
}

func truncate(raw []byte) string {
	s := strings.TrimSpace(string(raw))
	if len(s) > maxErrorBody {
		return s[:maxErrorBody] + "..."
	}
	return s
}

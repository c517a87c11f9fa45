package bitunix

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

const (
	SideBuy  = "BUY"
	SideSell = "SELL"

	TradeSideOpen  = "OPEN"
	TradeSideClose = "CLOSE"

	OrderTypeMarket = "MARKET"
	EffectGTC       = "GTC"
)

// OrderRequest 为下单请求体，字段顺序即签名与发送时的 JSON 键顺序。
type OrderRequest struct {
	Symbol     string `json:"symbol"`
	MarginCoin string `json:"marginCoin"`
	Qty        string `json:"qty"`
	Side       string `json:"side"`
	TradeSide  string `json:"tradeSide"`
	OrderType  string `json:"orderType"`
	Effect     string `json:"effect"`
	PositionID string `json:"positionId,omitempty"`
}

// OrderResult 为交易所受理订单后的返回。
type OrderResult struct {
	OrderID  string
	ClientID string
}

type envelope struct {
	Code    *int            `json:"code"`
	Msg     string          `json:"msg"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type orderData struct {
	OrderID  Number `json:"orderId"`
	ClientID Number `json:"clientId"`
}

type pendingPosition struct {
	PositionID    Number `json:"positionId"`
	Symbol        string `json:"symbol"`
	Qty           Number `json:"qty"`
	Side          string `json:"side"`
	UnrealizedPNL Number `json:"unrealizedPNL"`
	AvgOpenPrice  Number `json:"avgOpenPrice"`
	EntryValue    Number `json:"entryValue"`
	Margin        Number `json:"margin"`
}

// Number 兼容交易所以数字或字符串两种形式返回的数值字段，保留原始文本。
type Number string

// UnmarshalJSON 接受 JSON 数字、字符串或 null。
func (n *Number) UnmarshalJSON(raw []byte) error {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		*n = ""
		return nil
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return err
		}
		*n = Number(strings.TrimSpace(s))
		return nil
	}
	var num json.Number
	if err := json.Unmarshal(raw, &num); err != nil {
		return err
	}
	*n = Number(num.String())
	return nil
}

// Float64 返回数值，空值或非法文本返回 0。
func (n Number) Float64() float64 {
	if n == "" {
		return 0
	}
	f, err := strconv.ParseFloat(string(n), 64)
	if err != nil {
		return 0
	}
	return f
}

// Decimal 返回精确数值，空值或非法文本返回 0。
func (n Number) Decimal() decimal.Decimal {
	if n == "" {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(string(n))
	if err != nil {
		return decimal.Zero
	}
	return d
}

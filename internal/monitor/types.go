package monitor

import (
	"encoding/json"
	"time"
)

// EventType 表示监控事件类型。
type EventType string

const (
	EventCycle        EventType = "cycle"
	EventOrder        EventType = "order"
	EventPosition     EventType = "position"
	EventBalance      EventType = "balance"
	EventNotification EventType = "notification"
	EventError        EventType = "error"
)

// Event 封装通用监控事件。
type Event struct {
	ID        int64       `json:"id"`
	Type      EventType   `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload"`
}

// CyclePayload 记录一次轮询的行情与通道。
type CyclePayload struct {
	BarTime  time.Time `json:"bar_time"`
	Close    float64   `json:"close"`
	Upper    *float64  `json:"upper,omitempty"`
	Lower    *float64  `json:"lower,omitempty"`
	Middle   *float64  `json:"middle,omitempty"`
	Quantity string    `json:"quantity"`
	Side     string    `json:"side"`
	Action   string    `json:"action,omitempty"`
}

// OrderPayload 记录下单意图与结果。
type OrderPayload struct {
	Action     string `json:"action"`
	Quantity   string `json:"quantity"`
	PositionID string `json:"position_id,omitempty"`
	OrderID    string `json:"order_id,omitempty"`
	Simulated  bool   `json:"simulated"`
	Executed   bool   `json:"executed"`
	Error      string `json:"error,omitempty"`
}

// PositionPayload 记录持仓快照。
type PositionPayload struct {
	Side          string  `json:"side"`
	Quantity      string  `json:"quantity"`
	PositionID    string  `json:"position_id,omitempty"`
	EntryPrice    float64 `json:"entry_price"`
	UnrealizedPnL float64 `json:"unrealized_pnl"`
}

// BalancePayload 记录可用余额变化。
type BalancePayload struct {
	MarginCoin string  `json:"margin_coin"`
	Available  float64 `json:"available"`
}

// NotificationPayload 记录一次通知推送。
type NotificationPayload struct {
	Messages   int    `json:"messages"`
	Attachment bool   `json:"attachment"`
	Forced     bool   `json:"forced"`
	Error      string `json:"error,omitempty"`
}

// ErrorPayload 记录异常。
type ErrorPayload struct {
	Message string                 `json:"message"`
	Error   string                 `json:"error"`
	Context map[string]interface{} `json:"context,omitempty"`
}

func encodeEvent(e Event) ([]byte, error) {
	return json.Marshal(e)
}

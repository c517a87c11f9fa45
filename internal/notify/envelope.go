package notify

import (
	"channel-trader/internal/position"
	"channel-trader/internal/stats"
)

// Kind 表示通知对应的操作类型，决定正文的渲染方式。
type Kind string

const (
	KindInfo          Kind = "info"
	KindOpenSuccess   Kind = "open_success"
	KindCloseSuccess  Kind = "close_success"
	KindError         Kind = "error"
	KindWarning       Kind = "warning"
	KindBalanceUpdate Kind = "balance_update"
	KindStatusUpdate  Kind = "status_update"
	KindFatal         Kind = "fatal"
)

// Details 为开平仓与错误通知的附加信息。
type Details struct {
	Side   position.Side
	Qty    string
	Price  float64
	PnL    *float64
	Detail string
}

// Attachment 为随通知发送的文件，如通道图表。
type Attachment struct {
	Name        string
	ContentType string
	Data        []byte
}

// Envelope 为提交给批量器的一条通知。
type Envelope struct {
	Message    string
	Kind       Kind
	Details    Details
	ForceSend  bool
	Attachment *Attachment
}

// StatusSource 提供渲染通知时附带的持仓与统计快照。
type StatusSource interface {
	Status() (position.Position, stats.Counter)
}

// StatusFunc 将函数适配为 StatusSource。
type StatusFunc func() (position.Position, stats.Counter)

// Status 实现 StatusSource。
func (f StatusFunc) Status() (position.Position, stats.Counter) {
	return f()
}

// PNGAttachment 将图表字节包装为附件。
func PNGAttachment(name string, data []byte) *Attachment {
	if len(data) == 0 {
		return nil
	}
	return &Attachment{Name: name, ContentType: "image/png", Data: data}
}

package notify

import (
	"errors"

	"channel-trader/internal/bitunix"
	"channel-trader/internal/execution"
	"channel-trader/internal/risk"
)

// DescribeError 返回错误类别在通知中的标记。
func DescribeError(err error) string {
	var (
		netErr   *bitunix.NetworkError
		httpErr  *bitunix.HTTPError
		apiErr   *bitunix.APIError
		parseErr *bitunix.ParseError
	)
	switch {
	case err == nil:
		return ""
	case errors.As(err, &netErr):
		return "🔴 网络错误"
	case errors.As(err, &httpErr):
		return "🔴 HTTP错误"
	case errors.As(err, &apiErr):
		return "⚠️ 接口拒绝"
	case errors.As(err, &parseErr):
		return "🟠 响应解析失败"
	case errors.Is(err, execution.ErrMissingPositionID), errors.Is(err, execution.ErrStaleQuantity):
		return "⚠️ 状态警告"
	case errors.Is(err, risk.ErrFatalSizing):
		return "🛑 程序终止"
	default:
		return "🔴 错误"
	}
}

// ErrorEnvelope 构造错误通知，正文附带错误类别与错误信息。
func ErrorEnvelope(title string, err error, force bool) Envelope {
	kind := KindError
	switch {
	case errors.Is(err, risk.ErrFatalSizing):
		kind = KindFatal
	case errors.Is(err, execution.ErrMissingPositionID), errors.Is(err, execution.ErrStaleQuantity):
		kind = KindWarning
	}
	detail := ""
	if err != nil {
		detail = DescribeError(err) + ": " + err.Error()
	}
	return Envelope{
		Message:   title,
		Kind:      kind,
		Details:   Details{Detail: detail},
		ForceSend: force,
	}
}

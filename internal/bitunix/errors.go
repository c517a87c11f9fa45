package bitunix

import "fmt"

// NetworkError 表示请求未能到达交易所或读取响应失败。
type NetworkError struct {
	Op  string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("bitunix: %s 网络错误: %v", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// HTTPError 表示交易所返回了非 2xx 状态码。
type HTTPError struct {
	Op         string
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("bitunix: %s HTTP %d: %s", e.Op, e.StatusCode, e.Body)
}

// APIError 表示交易所拒绝了请求（响应 code 非 0）。
type APIError struct {
	Op   string
	Code int
	Msg  string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("bitunix: %s 被拒绝 code=%d msg=%s", e.Op, e.Code, e.Msg)
}

// ParseError 表示响应体无法解析为预期结构。
type ParseError struct {
	Op   string
	Body string
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("bitunix: %s 响应解析失败: %v", e.Op, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

package exchange

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"

	ccxt "github.com/ccxt/ccxt/go/v4"
)

var (
	// ErrMaintenance 表示行情交易所处于维护状态，本轮跳过。
	ErrMaintenance = errors.New("exchange: 交易所维护中")
	// ErrNoBars 表示行情接口返回了空的K线窗口。
	ErrNoBars = errors.New("exchange: 未获取到K线数据")
	// ErrUnsupportedVenue 表示配置的行情交易所不受支持。
	ErrUnsupportedVenue = errors.New("exchange: 不支持的行情交易所")
)

// classify 归一化错误并判断是否重试。维护与上下文取消都不重试。
func classify(err error) (error, bool) {
	if err == nil {
		return nil, false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err, false
	}

	var ccxtErr *ccxt.Error
	if errors.As(err, &ccxtErr) {
		switch ccxtErr.Type {
		case ccxt.OnMaintenanceErrType:
			msg := strings.TrimSpace(ccxtErr.Message)
			if msg == "" {
				msg = "under maintenance"
			}
			return fmt.Errorf("%w: %s", ErrMaintenance, msg), false
		case ccxt.NetworkErrorErrType,
			ccxt.RequestTimeoutErrType,
			ccxt.ExchangeNotAvailableErrType,
			ccxt.RateLimitExceededErrType,
			ccxt.DDoSProtectionErrType,
			ccxt.BadResponseErrType,
			ccxt.NullResponseErrType:
			return err, true
		default:
			return err, false
		}
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return err, true
	}
	return err, false
}

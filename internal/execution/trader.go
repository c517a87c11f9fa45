package execution

import "context"

// Trader 抽象执行器接口，方便切换真实或模拟下单。
type Trader interface {
	Execute(ctx context.Context, intent Intent) (Result, error)
}

var (
	_ Trader = (*Executor)(nil)
	_ Trader = (*PaperAccount)(nil)
)

package exchange

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"channel-trader/internal/config"
)

// retryPolicy 为指数退避重试：首次等待 minDelay，每次翻倍，不超过 maxDelay。
type retryPolicy struct {
	attempts int
	minDelay time.Duration
	maxDelay time.Duration
}

func newRetryPolicy(cfg config.RetryConfig) retryPolicy {
	p := retryPolicy{attempts: cfg.MaxAttempts, minDelay: cfg.MinDelay, maxDelay: cfg.MaxDelay}
	if p.attempts <= 0 {
		p.attempts = 1
	}
	if p.minDelay <= 0 {
		p.minDelay = 500 * time.Millisecond
	}
	if p.maxDelay <= 0 {
		p.maxDelay = 5 * time.Second
	}
	if p.minDelay > p.maxDelay {
		p.minDelay = p.maxDelay
	}
	return p
}

// run 执行 fn，直到成功、遇到不可重试错误、次数用尽或 ctx 结束。
func (p retryPolicy) run(ctx context.Context, logger *zap.Logger, op string, fn func() error) error {
	wait := p.minDelay
	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		start := time.Now()
		err := fn()
		if err == nil {
			if attempt > 1 {
				logger.Info("行情调用重试后成功", zap.String("operation", op), zap.Int("attempts", attempt))
			}
			return nil
		}

		err, retry := classify(err)
		switch {
		case errors.Is(err, ErrMaintenance):
			logger.Warn("行情交易所维护中", zap.String("operation", op), zap.Error(err))
			return err
		case !retry || attempt >= p.attempts:
			logger.Error("行情调用失败",
				zap.String("operation", op),
				zap.Int("attempts", attempt),
				zap.Duration("latency", time.Since(start)),
				zap.Error(err),
			)
			return err
		}

		logger.Warn("行情调用失败，等待重试",
			zap.String("operation", op),
			zap.Int("attempt", attempt),
			zap.Duration("wait", wait),
			zap.Error(err),
		)
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
		if wait *= 2; wait > p.maxDelay {
			wait = p.maxDelay
		}
	}
}

package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// DefaultFlushInterval 为缓冲区自动推送的最短间隔。
const DefaultFlushInterval = 180 * time.Second

// Sender 负责把合并后的文本（及可选附件）投递出去。
type Sender interface {
	Send(ctx context.Context, content string, attachment *Attachment) error
}

// Delivery 描述一次推送的结果，供监控记录。
type Delivery struct {
	Messages      int
	Content       string
	HasAttachment bool
	Forced        bool
	Err           error
	At            time.Time
}

// Option 调整 Batcher 的可选行为。
type Option func(*Batcher)

// WithClock 替换时钟，便于测试。
func WithClock(now func() time.Time) Option {
	return func(b *Batcher) { b.now = now }
}

// WithObserver 在每次推送后回调。
func WithObserver(fn func(Delivery)) Option {
	return func(b *Batcher) { b.observer = fn }
}

// Batcher 合并通知以降低推送频率：首条消息立即推送，之后距上次推送满 interval
// 或消息要求强制推送时，将缓冲区内全部消息以空行连接后一次发出。
type Batcher struct {
	sender   Sender
	status   StatusSource
	interval time.Duration
	now      func() time.Time
	observer func(Delivery)
	logger   *zap.Logger

	mu         sync.Mutex
	buffer     []string
	attachment *Attachment
	lastFlush  time.Time
	flushed    bool
}

// NewBatcher 创建通知批量器。
func NewBatcher(sender Sender, status StatusSource, interval time.Duration, logger *zap.Logger, opts ...Option) *Batcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	if interval <= 0 {
		interval = DefaultFlushInterval
	}
	b := &Batcher{
		sender:   sender,
		status:   status,
		interval: interval,
		now:      time.Now,
		logger:   logger,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Submit 渲染并缓存一条通知，满足推送条件时立即推送。推送失败会返回错误，缓冲区仍会清空。
func (b *Batcher) Submit(ctx context.Context, env Envelope) error {
	pos, counter := b.status.Status()
	rendered := Render(env, pos, counter)

	b.mu.Lock()
	defer b.mu.Unlock()

	b.buffer = append(b.buffer, rendered)
	if env.Attachment != nil {
		if b.attachment != nil {
			b.logger.Debug("替换未发送的附件", zap.String("dropped", b.attachment.Name))
		}
		b.attachment = env.Attachment
	}

	now := b.now()
	due := !b.flushed || now.Sub(b.lastFlush) >= b.interval
	if !due && !env.ForceSend {
		b.logger.Debug("通知已缓存", zap.String("kind", string(env.Kind)), zap.Int("pending", len(b.buffer)))
		return nil
	}
	return b.flushLocked(ctx, env.ForceSend)
}

// ForceFlush 立即推送缓冲区内的全部消息，缓冲区为空时不做任何事。
func (b *Batcher) ForceFlush(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.buffer) == 0 {
		return nil
	}
	return b.flushLocked(ctx, true)
}

// Pending 返回缓冲区中的消息数。
func (b *Batcher) Pending() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.buffer)
}

func (b *Batcher) flushLocked(ctx context.Context, forced bool) error {
	content := strings.Join(b.buffer, "\n\n")
	count := len(b.buffer)
	attachment := b.attachment

	b.buffer = nil
	b.attachment = nil
	b.lastFlush = b.now()
	b.flushed = true

	var err error
	if attachment != nil {
		var partial *PartialSendError
		err = b.sender.Send(ctx, content, attachment)
		if err != nil && !errors.As(err, &partial) {
			b.logger.Warn("带附件推送失败，改为纯文本重试", zap.Error(err))
			err = b.sender.Send(ctx, content, nil)
		}
	} else {
		err = b.sender.Send(ctx, content, nil)
	}

	if b.observer != nil {
		b.observer(Delivery{
			Messages:      count,
			Content:       content,
			HasAttachment: attachment != nil,
			Forced:        forced,
			Err:           err,
			At:            b.lastFlush,
		})
	}

	if err != nil {
		b.logger.Error("通知推送失败", zap.Int("messages", count), zap.Error(err))
		return fmt.Errorf("notify: 推送失败: %w", err)
	}
	b.logger.Info("通知已推送", zap.Int("messages", count), zap.Bool("attachment", attachment != nil), zap.Bool("forced", forced))
	return nil
}

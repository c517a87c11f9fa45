package notify

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"channel-trader/internal/bitunix"
	"channel-trader/internal/execution"
	"channel-trader/internal/position"
	"channel-trader/internal/risk"
	"channel-trader/internal/stats"
)

type sent struct {
	content    string
	attachment *Attachment
}

type recordingSender struct {
	mu       sync.Mutex
	sends    []sent
	failWith func(att *Attachment) error
}

func (r *recordingSender) Send(_ context.Context, content string, att *Attachment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sends = append(r.sends, sent{content: content, attachment: att})
	if r.failWith != nil {
		return r.failWith(att)
	}
	return nil
}

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func flatStatus() StatusSource {
	return StatusFunc(func() (position.Position, stats.Counter) {
		return position.None(), stats.Counter{}
	})
}

func newTestBatcher(sender Sender, status StatusSource) (*Batcher, *fakeClock) {
	clock := &fakeClock{t: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	return NewBatcher(sender, status, 180*time.Second, nil, WithClock(clock.Now)), clock
}

func TestBatcher_FirstMessageFlushesImmediately(t *testing.T) {
	sender := &recordingSender{}
	b, _ := newTestBatcher(sender, flatStatus())

	require.NoError(t, b.Submit(context.Background(), Envelope{Message: "启动", Kind: KindInfo}))
	require.Len(t, sender.sends, 1)
	assert.Contains(t, sender.sends[0].content, "启动")
	assert.Equal(t, 0, b.Pending())
}

func TestBatcher_ThreeMessagesInOnePayload(t *testing.T) {
	sender := &recordingSender{}
	b, clock := newTestBatcher(sender, flatStatus())
	ctx := context.Background()

	require.NoError(t, b.Submit(ctx, Envelope{Message: "first", Kind: KindInfo}))
	require.Len(t, sender.sends, 1)

	for i := 1; i <= 3; i++ {
		clock.Advance(10 * time.Second)
		require.NoError(t, b.Submit(ctx, Envelope{Message: fmt.Sprintf("msg-%d", i), Kind: KindStatusUpdate}))
	}
	require.Len(t, sender.sends, 1)
	assert.Equal(t, 3, b.Pending())

	require.NoError(t, b.ForceFlush(ctx))
	require.Len(t, sender.sends, 2)

	want := strings.Join([]string{
		Render(Envelope{Message: "msg-1", Kind: KindStatusUpdate}, position.None(), stats.Counter{}),
		Render(Envelope{Message: "msg-2", Kind: KindStatusUpdate}, position.None(), stats.Counter{}),
		Render(Envelope{Message: "msg-3", Kind: KindStatusUpdate}, position.None(), stats.Counter{}),
	}, "\n\n")
	assert.Equal(t, want, sender.sends[1].content)
}

func TestBatcher_IntervalAndForceSend(t *testing.T) {
	sender := &recordingSender{}
	b, clock := newTestBatcher(sender, flatStatus())
	ctx := context.Background()

	require.NoError(t, b.Submit(ctx, Envelope{Message: "a"}))
	clock.Advance(179 * time.Second)
	require.NoError(t, b.Submit(ctx, Envelope{Message: "b"}))
	assert.Len(t, sender.sends, 1)

	clock.Advance(time.Second)
	require.NoError(t, b.Submit(ctx, Envelope{Message: "c"}))
	require.Len(t, sender.sends, 2)
	assert.Contains(t, sender.sends[1].content, "b")
	assert.Contains(t, sender.sends[1].content, "c")

	clock.Advance(time.Second)
	require.NoError(t, b.Submit(ctx, Envelope{Message: "d", ForceSend: true}))
	assert.Len(t, sender.sends, 3)
}

func TestBatcher_ForceFlushEmptyIsNoop(t *testing.T) {
	sender := &recordingSender{}
	b, _ := newTestBatcher(sender, flatStatus())
	require.NoError(t, b.ForceFlush(context.Background()))
	assert.Empty(t, sender.sends)
}

func TestBatcher_AttachmentFallsBackToText(t *testing.T) {
	sender := &recordingSender{failWith: func(att *Attachment) error {
		if att != nil {
			return errors.New("payload too large")
		}
		return nil
	}}
	b, _ := newTestBatcher(sender, flatStatus())

	err := b.Submit(context.Background(), Envelope{
		Message:    "通道更新",
		Kind:       KindStatusUpdate,
		Attachment: PNGAttachment("channel.png", []byte{1, 2, 3}),
	})
	require.NoError(t, err)
	require.Len(t, sender.sends, 2)
	assert.NotNil(t, sender.sends[0].attachment)
	assert.Nil(t, sender.sends[1].attachment)
	assert.Equal(t, sender.sends[0].content, sender.sends[1].content)
}

func TestBatcher_PartialDeliveryIsNotResent(t *testing.T) {
	sender := &recordingSender{failWith: func(att *Attachment) error {
		if att != nil {
			return &PartialSendError{Sent: 1, Err: errors.New("second chunk rejected")}
		}
		return nil
	}}
	b, _ := newTestBatcher(sender, flatStatus())

	err := b.Submit(context.Background(), Envelope{
		Message:    "通道更新",
		Kind:       KindStatusUpdate,
		Attachment: PNGAttachment("channel.png", []byte{1, 2, 3}),
	})
	var partial *PartialSendError
	require.ErrorAs(t, err, &partial)
	assert.Equal(t, 1, partial.Sent)
	require.Len(t, sender.sends, 1)
	assert.NotNil(t, sender.sends[0].attachment)
}

func TestBatcher_FailureClearsBufferAndReports(t *testing.T) {
	sender := &recordingSender{failWith: func(*Attachment) error { return errors.New("down") }}
	var deliveries []Delivery
	clock := &fakeClock{t: time.Now()}
	b := NewBatcher(sender, flatStatus(), time.Minute, nil, WithClock(clock.Now), WithObserver(func(d Delivery) {
		deliveries = append(deliveries, d)
	}))

	err := b.Submit(context.Background(), Envelope{Message: "x"})
	assert.Error(t, err)
	assert.Equal(t, 0, b.Pending())
	require.Len(t, deliveries, 1)
	assert.Error(t, deliveries[0].Err)
}

func TestRender_OpenAndCloseLines(t *testing.T) {
	long := position.New(position.SideLong, decimal.RequireFromString("2.5"), "p1", 12.34567, 2000)
	counter := stats.Counter{Wins: 3, Losses: 1}

	open := Render(Envelope{
		Message: "开多成功",
		Kind:    KindOpenSuccess,
		Details: Details{Side: position.SideLong, Qty: "2.5", Price: 2001.456},
	}, long, counter)
	assert.True(t, strings.HasPrefix(open, separator))
	assert.True(t, strings.HasSuffix(open, separator))
	assert.Contains(t, open, "开多成功 (数量: 2.5, 估计价格: 2001.46 USDT)")
	assert.Contains(t, open, "📊 **交易统计**：75.00% (3胜/1负)")
	assert.Contains(t, open, "📈 **当前持仓**：多单 (数量: 2.5)")
	assert.Contains(t, open, "💰 当前未实现盈亏: 12.3457 USDT")

	pnl := 5.0
	closed := Render(Envelope{
		Message: "平多成功",
		Kind:    KindCloseSuccess,
		Details: Details{Side: position.SideLong, Qty: "2.5", PnL: &pnl},
	}, long, counter)
	assert.Contains(t, closed, "🎯 **平仓类型**: 多单")
	assert.Contains(t, closed, "💰 **本次已实现盈亏**: 5.0000 USDT")
	assert.Contains(t, closed, "🔄 **当前持仓**：无持仓")
	assert.NotContains(t, closed, "当前未实现盈亏")
}

func TestRender_NoCompletedTrades(t *testing.T) {
	out := Render(Envelope{Message: "hi"}, position.None(), stats.Counter{})
	assert.Contains(t, out, "N/A (尚无已完成交易)")
	assert.Contains(t, out, "🔄 **当前持仓**：无持仓")
}

func TestDescribeError(t *testing.T) {
	cases := []struct {
		err  error
		want string
	}{
		{&bitunix.NetworkError{Op: "x", Err: errors.New("dial")}, "🔴 网络错误"},
		{fmt.Errorf("wrap: %w", &bitunix.HTTPError{StatusCode: 502}), "🔴 HTTP错误"},
		{&bitunix.APIError{Code: 1}, "⚠️ 接口拒绝"},
		{&bitunix.ParseError{Err: errors.New("eof")}, "🟠 响应解析失败"},
		{execution.ErrMissingPositionID, "⚠️ 状态警告"},
		{execution.ErrStaleQuantity, "⚠️ 状态警告"},
		{risk.ErrFatalSizing, "🛑 程序终止"},
		{errors.New("other"), "🔴 错误"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, DescribeError(tc.err))
	}

	env := ErrorEnvelope("下单失败", &bitunix.APIError{Code: 7, Msg: "nope"}, true)
	assert.Equal(t, KindError, env.Kind)
	assert.True(t, env.ForceSend)
	assert.Contains(t, env.Details.Detail, "⚠️ 接口拒绝")
	assert.Equal(t, KindFatal, ErrorEnvelope("x", risk.ErrFatalSizing, true).Kind)
}

func TestWebhook_JSONAndMultipart(t *testing.T) {
	var mu sync.Mutex
	var contents []string
	var files []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		mediaType, params, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
		require.NoError(t, err)
		switch mediaType {
		case "application/json":
			raw, _ := io.ReadAll(r.Body)
			contents = append(contents, string(raw))
		case "multipart/form-data":
			mr := multipart.NewReader(r.Body, params["boundary"])
			for {
				part, err := mr.NextPart()
				if err != nil {
					break
				}
				data, _ := io.ReadAll(part)
				if part.FormName() == "file" {
					files = append(files, part.FileName()+":"+string(data))
				} else {
					contents = append(contents, "form:"+string(data))
				}
			}
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	hook := NewWebhook(srv.URL, time.Second, nil)
	require.NoError(t, hook.Send(context.Background(), "hello", nil))
	require.NoError(t, hook.Send(context.Background(), "with chart", &Attachment{Name: "c.png", Data: []byte("png")}))

	assert.Equal(t, []string{`{"content":"hello"}`, "form:with chart"}, contents)
	assert.Equal(t, []string{"c.png:png"}, files)
}

func TestWebhook_Non2xxIsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	err := NewWebhook(srv.URL, time.Second, nil).Send(context.Background(), "x", nil)
	var hookErr *WebhookError
	require.True(t, errors.As(err, &hookErr))
	assert.Equal(t, http.StatusTooManyRequests, hookErr.StatusCode)
}

func TestWebhook_LaterChunkFailureReportsDelivered(t *testing.T) {
	var mu sync.Mutex
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		calls++
		if calls > 1 {
			http.Error(w, "bad gateway", http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	content := strings.Repeat("a", MaxContentRunes) + "\n\n" + "tail"
	err := NewWebhook(srv.URL, time.Second, nil).Send(context.Background(), content, &Attachment{Name: "c.png", Data: []byte("png")})

	var partial *PartialSendError
	require.True(t, errors.As(err, &partial))
	assert.Equal(t, 1, partial.Sent)
	var hookErr *WebhookError
	require.True(t, errors.As(err, &hookErr))
	assert.Equal(t, http.StatusBadGateway, hookErr.StatusCode)
	assert.Equal(t, 2, calls)
}

func TestSplitContent(t *testing.T) {
	assert.Equal(t, []string{"short"}, SplitContent("short", 10))

	parts := SplitContent("aaaa\n\nbbbb\n\ncccc", 10)
	assert.Equal(t, []string{"aaaa\n\nbbbb", "cccc"}, parts)

	long := strings.Repeat("界", 25)
	parts = SplitContent(long, 10)
	require.Len(t, parts, 3)
	assert.Equal(t, strings.Repeat("界", 5), parts[2])
}

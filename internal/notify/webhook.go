package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"
)

// MaxContentRunes 为单条 webhook 消息 content 字段的字符上限。
const MaxContentRunes = 2000

// WebhookError 表示 webhook 返回了非 2xx 状态码。
type WebhookError struct {
	StatusCode int
	Body       string
}

func (e *WebhookError) Error() string {
	return fmt.Sprintf("notify: webhook 返回 %d: %s", e.StatusCode, e.Body)
}

// PartialSendError 表示拆分后的前 Sent 段已送达，之后的某段失败。
type PartialSendError struct {
	Sent int
	Err  error
}

func (e *PartialSendError) Error() string {
	return fmt.Sprintf("notify: 已送达 %d 段后失败: %v", e.Sent, e.Err)
}

func (e *PartialSendError) Unwrap() error { return e.Err }

// Webhook 为 Discord 风格的 webhook 发送器：纯文本发送 JSON {"content": …}，
// 带附件时发送 multipart（file + content）。超长文本按消息边界拆分为多次发送。
type Webhook struct {
	url    string
	client *http.Client
	logger *zap.Logger
}

// NewWebhook 创建 webhook 发送器。
func NewWebhook(url string, timeout time.Duration, logger *zap.Logger) *Webhook {
	if logger == nil {
		logger = zap.NewNop()
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Webhook{
		url:    url,
		client: &http.Client{Timeout: timeout},
		logger: logger,
	}
}

// Send 实现 Sender。附件随第一段文本发送；第一段之后失败时返回 *PartialSendError。
func (w *Webhook) Send(ctx context.Context, content string, attachment *Attachment) error {
	for i, chunk := range SplitContent(content, MaxContentRunes) {
		var err error
		if i == 0 && attachment != nil {
			err = w.postMultipart(ctx, chunk, attachment)
		} else {
			err = w.postJSON(ctx, chunk)
		}
		if err != nil {
			if i > 0 {
				return &PartialSendError{Sent: i, Err: err}
			}
			return err
		}
	}
	return nil
}

func (w *Webhook) postJSON(ctx context.Context, content string) error {
	payload, err := json.Marshal(map[string]string{"content": content})
	if err != nil {
		return fmt.Errorf("notify: 序列化消息失败: %w", err)
	}
	return w.post(ctx, "application/json", bytes.NewReader(payload))
}

func (w *Webhook) postMultipart(ctx context.Context, content string, attachment *Attachment) error {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	if err := mw.WriteField("content", content); err != nil {
		return fmt.Errorf("notify: 写入 content 字段失败: %w", err)
	}

	contentType := attachment.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, attachment.Name))
	header.Set("Content-Type", contentType)
	part, err := mw.CreatePart(header)
	if err != nil {
		return fmt.Errorf("notify: 创建附件字段失败: %w", err)
	}
	if _, err := part.Write(attachment.Data); err != nil {
		return fmt.Errorf("notify: 写入附件失败: %w", err)
	}
	if err := mw.Close(); err != nil {
		return fmt.Errorf("notify: 关闭 multipart 失败: %w", err)
	}

	return w.post(ctx, mw.FormDataContentType(), &body)
}

func (w *Webhook) post(ctx context.Context, contentType string, body io.Reader) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, body)
	if err != nil {
		return fmt.Errorf("notify: 构造请求失败: %w", err)
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("notify: 请求 webhook 失败: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &WebhookError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(raw))}
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

// SplitContent 将文本拆分为不超过 limit 个字符的片段，优先在空行处断开。
func SplitContent(content string, limit int) []string {
	if limit <= 0 || utf8.RuneCountInString(content) <= limit {
		return []string{content}
	}

	var chunks []string
	var current strings.Builder
	currentRunes := 0

	flush := func() {
		if currentRunes > 0 {
			chunks = append(chunks, current.String())
			current.Reset()
			currentRunes = 0
		}
	}

	for i, block := range strings.Split(content, "\n\n") {
		if i > 0 {
			block = "\n\n" + block
		}
		n := utf8.RuneCountInString(block)
		if currentRunes+n <= limit {
			current.WriteString(block)
			currentRunes += n
			continue
		}
		flush()
		block = strings.TrimPrefix(block, "\n\n")
		runes := []rune(block)
		for len(runes) > limit {
			chunks = append(chunks, string(runes[:limit]))
			runes = runes[limit:]
		}
		current.WriteString(string(runes))
		currentRunes = len(runes)
	}
	flush()
	return chunks
}

// LogSender 在未配置 webhook 时把通知写入日志。
type LogSender struct {
	logger *zap.Logger
}

// NewLogSender 创建日志发送器。
func NewLogSender(logger *zap.Logger) *LogSender {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSender{logger: logger}
}

// Send 实现 Sender。
func (s *LogSender) Send(_ context.Context, content string, attachment *Attachment) error {
	fields := []zap.Field{zap.String("content", content)}
	if attachment != nil {
		fields = append(fields, zap.String("attachment", attachment.Name), zap.Int("attachment_bytes", len(attachment.Data)))
	}
	s.logger.Info("通知（未配置 webhook）", fields...)
	return nil
}

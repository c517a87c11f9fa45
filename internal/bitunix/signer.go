package bitunix

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// DefaultLocale 为请求头 language 的默认值。
const DefaultLocale = "en-US"

// Credentials 为 API 认证信息。
type Credentials struct {
	APIKey    string
	SecretKey string
}

// SignRequest 描述待签名的请求内容。
//
// Body 可以是 []byte / json.RawMessage（按原样压缩，保留字段顺序）、string（原样使用）
// 或任意可 JSON 序列化的值（结构体按字段声明顺序输出）。
type SignRequest struct {
	Method string
	Query  map[string]any
	Body   any
}

// Signed 为签名结果，Body 即实际发送的请求体字节。
type Signed struct {
	Nonce     string
	Timestamp string
	Signature string
	Body      []byte
	Header    http.Header
}

// Sign 使用给定 nonce 与时间戳计算双重 SHA256 签名：
//
//	digest = sha256hex(nonce + timestamp + apiKey + payload)
//	sign   = sha256hex(digest + secretKey)
//
// GET 请求的 payload 为排序后的查询串，其余方法为压缩后的 JSON 请求体。
func Sign(creds Credentials, locale string, req SignRequest, nonce, timestamp string) (Signed, error) {
	body, err := CanonicalBody(req.Body)
	if err != nil {
		return Signed{}, err
	}

	payload := string(body)
	if strings.EqualFold(req.Method, http.MethodGet) {
		payload = CanonicalQuery(req.Query)
	}

	digest := sha256Hex(nonce + timestamp + creds.APIKey + payload)
	signature := sha256Hex(digest + creds.SecretKey)

	if locale == "" {
		locale = DefaultLocale
	}
	header := http.Header{}
	header.Set("api-key", creds.APIKey)
	header.Set("sign", signature)
	header.Set("nonce", nonce)
	header.Set("timestamp", timestamp)
	header.Set("language", locale)
	header.Set("Content-Type", "application/json")

	return Signed{
		Nonce:     nonce,
		Timestamp: timestamp,
		Signature: signature,
		Body:      body,
		Header:    header,
	}, nil
}

// CanonicalQuery 将查询参数按键名字节序排序后拼接为 k1v1k2v2...，值统一转为字符串。
func CanonicalQuery(query map[string]any) string {
	if len(query) == 0 {
		return ""
	}
	keys := make([]string, 0, len(query))
	for k := range query {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		b.WriteString(k)
		b.WriteString(stringify(query[k]))
	}
	return b.String()
}

// CanonicalBody 返回无多余空白、不转义 HTML 字符的 JSON 请求体；Body 为空时返回 nil。
func CanonicalBody(body any) ([]byte, error) {
	switch v := body.(type) {
	case nil:
		return nil, nil
	case string:
		if v == "" {
			return nil, nil
		}
		return []byte(v), nil
	case json.RawMessage:
		return compact(v)
	case []byte:
		return compact(v)
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(body); err != nil {
		return nil, fmt.Errorf("bitunix: 序列化请求体失败: %w", err)
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

func compact(raw []byte) ([]byte, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil, nil
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return nil, fmt.Errorf("bitunix: 请求体不是合法 JSON: %w", err)
	}
	return buf.Bytes(), nil
}

func stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case fmt.Stringer:
		return t.String()
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(t), 'f', -1, 32)
	case bool:
		return strconv.FormatBool(t)
	default:
		return fmt.Sprint(t)
	}
}

func sha256Hex(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

// NewNonce 生成 32 位小写十六进制随机串。
func NewNonce() string {
	id := uuid.New()
	return hex.EncodeToString(id[:])
}

// Signer 绑定凭证并自动生成 nonce 与毫秒时间戳。
type Signer struct {
	creds  Credentials
	locale string
	nonce  func() string
	now    func() time.Time
}

// NewSigner 创建签名器。
func NewSigner(creds Credentials, locale string) *Signer {
	return &Signer{
		creds:  creds,
		locale: locale,
		nonce:  NewNonce,
		now:    time.Now,
	}
}

// Sign 为请求生成签名与认证头。
func (s *Signer) Sign(req SignRequest) (Signed, error) {
	ts := strconv.FormatInt(s.now().UnixMilli(), 10)
	return Sign(s.creds, s.locale, req, s.nonce(), ts)
}

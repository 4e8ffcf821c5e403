package integrations

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/BaSui01/dailycrew/internal/retry"
	"github.com/BaSui01/dailycrew/internal/tlsutil"
	"github.com/BaSui01/dailycrew/types"
	"go.uber.org/zap"
)

// ErrUnauthorized 集成拒绝了凭据
var ErrUnauthorized = errors.New("integration rejected the credential")

// Options 客户端公共选项
type Options struct {
	BaseURL    string
	Timeout    time.Duration
	MaxRetries int
	HTTPClient *http.Client
}

// REST 带重试与错误映射的 JSON 调用器
type REST struct {
	name    string
	baseURL string
	client  *http.Client
	retry   retry.Retryer
	logger  *zap.Logger
}

// NewREST 创建 REST 调用器
func NewREST(name string, opts Options, logger *zap.Logger) *REST {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	client := opts.HTTPClient
	if client == nil {
		client = tlsutil.SecureHTTPClient(opts.Timeout)
	}
	policy := retry.DefaultPolicy()
	if opts.MaxRetries >= 0 {
		policy.MaxRetries = opts.MaxRetries
	}
	l := logger.With(zap.String("component", "integration"), zap.String("integration", name))
	return &REST{
		name:    name,
		baseURL: opts.BaseURL,
		client:  client,
		retry:   retry.NewBackoff(policy, l),
		logger:  l,
	}
}

// BaseURL 返回基础地址
func (r *REST) BaseURL() string {
	return r.baseURL
}

// Request 单次调用描述
type Request struct {
	Method  string
	URL     string // 绝对地址；为空时使用 BaseURL + Path
	Path    string
	Query   url.Values
	Headers map[string]string
	Body    any // JSON 编码
	Form    url.Values

	// Idempotent 允许重试 POST/PATCH；GET、HEAD、PUT、DELETE 总是可重试
	Idempotent bool
}

func (req Request) retryable(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodPut, http.MethodDelete, http.MethodOptions:
		return true
	}
	return req.Idempotent
}

// Do 发送请求并把 JSON 响应解码到 out（可为 nil）。幂等请求按策略重试，
// 其余只发送一次
func (r *REST) Do(ctx context.Context, req Request, out any) error {
	var body []byte
	contentType := ""
	switch {
	case req.Form != nil:
		body = []byte(req.Form.Encode())
		contentType = "application/x-www-form-urlencoded"
	case req.Body != nil:
		data, err := json.Marshal(req.Body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = data
		contentType = "application/json"
	}

	target := req.URL
	if target == "" {
		target = r.baseURL + req.Path
	}
	if len(req.Query) > 0 {
		target += "?" + req.Query.Encode()
	}
	method := req.Method
	if method == "" {
		method = http.MethodGet
	}

	send := func(ctx context.Context) error {
		var reader io.Reader
		if body != nil {
			reader = bytes.NewReader(body)
		}
		httpReq, err := http.NewRequestWithContext(ctx, method, target, reader)
		if err != nil {
			return fmt.Errorf("create request: %w", err)
		}
		httpReq.Header.Set("Accept", "application/json")
		if contentType != "" {
			httpReq.Header.Set("Content-Type", contentType)
		}
		for k, v := range req.Headers {
			httpReq.Header.Set(k, v)
		}

		resp, err := r.client.Do(httpReq)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return types.NewError(types.ErrUpstreamError, fmt.Sprintf("%s request failed", r.name)).
				WithCause(err).
				WithHTTPStatus(http.StatusBadGateway).
				WithRetryable(true)
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 400 {
			return MapHTTPError(resp.StatusCode, ReadErrorMessage(resp.Body), r.name)
		}
		if out == nil {
			_, _ = io.Copy(io.Discard, resp.Body)
			return nil
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return types.NewError(types.ErrUpstreamError, fmt.Sprintf("%s returned an unreadable response", r.name)).
				WithCause(err)
		}
		return nil
	}
	if !req.retryable(method) {
		return send(ctx)
	}
	return r.retry.Do(ctx, send)
}

// MapHTTPError 将 HTTP 状态码映射为带重试标记的 types.Error
func MapHTTPError(status int, msg, integration string) *types.Error {
	message := fmt.Sprintf("%s: %s", integration, msg)
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return types.NewError(types.ErrCredentialInvalid, message).
			WithCause(ErrUnauthorized).
			WithHTTPStatus(status)
	case status == http.StatusTooManyRequests:
		return types.NewError(types.ErrRateLimited, message).
			WithHTTPStatus(status).
			WithRetryable(true)
	case status == http.StatusNotFound:
		return types.NewError(types.ErrNotFound, message).WithHTTPStatus(status)
	case status >= 500:
		return types.NewError(types.ErrUpstreamError, message).
			WithHTTPStatus(status).
			WithRetryable(true)
	default:
		return types.NewError(types.ErrUpstreamError, message).WithHTTPStatus(status)
	}
}

// ReadErrorMessage 读取错误响应，优先解析 JSON 中的 message 字段
func ReadErrorMessage(body io.Reader) string {
	data, err := io.ReadAll(io.LimitReader(body, 64<<10))
	if err != nil {
		return "failed to read error response"
	}
	var errResp struct {
		Message string `json:"message"`
		Error   any    `json:"error"`
		Desc    string `json:"error_description"`
	}
	if err := json.Unmarshal(data, &errResp); err == nil {
		switch {
		case errResp.Message != "":
			return errResp.Message
		case errResp.Desc != "":
			return errResp.Desc
		}
		if s, ok := errResp.Error.(string); ok && s != "" {
			return s
		}
		if m, ok := errResp.Error.(map[string]any); ok {
			if s, ok := m["message"].(string); ok {
				return s
			}
		}
	}
	if len(data) == 0 {
		return http.StatusText(http.StatusInternalServerError)
	}
	return string(data)
}

// IsUnauthorized 错误是否为凭据被拒
func IsUnauthorized(err error) bool {
	return errors.Is(err, ErrUnauthorized)
}

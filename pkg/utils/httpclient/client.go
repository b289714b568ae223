// Package httpclient 封装对 Loki 与 LLM 后端的出站 HTTP 调用。
// 统一处理重试、限流退避和 W3C trace context 传播，调用方只组装请求。
package httpclient

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"

	"github.com/RHEcosystemAppEng/ansible-log-analysis/pkg/utils/json"
)

// 退避参数。LLM 补全动辄数秒，起步退避不必太短。
const (
	backoffBase = 200 * time.Millisecond
	backoffCap  = 2 * time.Second
)

// Client 带重试的 JSON HTTP 客户端。
type Client struct {
	httpClient *http.Client
	maxRetries int
}

// NewClient 创建客户端。maxRetries 为 0 时每个请求只发一次。
func NewClient(timeout time.Duration, maxRetries int) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		maxRetries: maxRetries,
	}
}

// DoJSON 发送请求并把成功响应解码到 v。v 为 nil 时丢弃响应体。
// 4xx（429 除外）视为调用方错误，带响应体原样上抛，不重试。
func (c *Client) DoJSON(req *http.Request, v interface{}) error {
	resp, err := c.do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("request failed with status code %d: %s", resp.StatusCode, string(body))
	}

	if v == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// do 执行请求。5xx 和 429 在退避后重试，其余状态码直接返回。
// 请求体先整体读入内存以便重试时重放，本服务的出站请求体都很小。
func (c *Client) do(req *http.Request) (*http.Response, error) {
	injectTraceContext(req)

	var body []byte
	if req.Body != nil {
		b, err := io.ReadAll(req.Body)
		if err != nil {
			return nil, fmt.Errorf("failed to read request body: %w", err)
		}
		_ = req.Body.Close()
		body = b
	}

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if body != nil {
			req.Body = io.NopCloser(bytes.NewReader(body))
		}

		resp, err := c.httpClient.Do(req)
		switch {
		case err != nil:
			lastErr = err
		case resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests:
			_ = resp.Body.Close()
			lastErr = fmt.Errorf("server error, status code %d", resp.StatusCode)
		default:
			return resp, nil
		}

		if attempt < c.maxRetries {
			select {
			case <-req.Context().Done():
				return nil, req.Context().Err()
			case <-time.After(backoff(attempt)):
			}
		}
	}
	return nil, lastErr
}

// backoff 指数退避，封顶 backoffCap。
func backoff(attempt int) time.Duration {
	d := backoffBase << attempt
	if d > backoffCap {
		return backoffCap
	}
	return d
}

// injectTraceContext 把当前 span 的 W3C trace 头注入请求。
// 无活跃 span 或传播器未设置时为空操作。
func injectTraceContext(req *http.Request) {
	if req == nil || req.Context() == nil {
		return
	}
	propagator := otel.GetTextMapPropagator()
	if propagator == nil {
		return
	}
	propagator.Inject(req.Context(), propagation.HeaderCarrier(req.Header))
}

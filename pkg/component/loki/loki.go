// Package loki 提供 Grafana Loki 查询客户端。
// 日志检索工具（按来源取日志、文本搜索、锚点上下文）都建立在 query_range 之上。
package loki

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"time"

	lokiopts "github.com/RHEcosystemAppEng/ansible-log-analysis/pkg/options/loki"
	"github.com/RHEcosystemAppEng/ansible-log-analysis/pkg/utils/httpclient"
)

// Direction 控制返回日志的时间方向。
type Direction string

const (
	DirectionForward  Direction = "forward"
	DirectionBackward Direction = "backward"
)

// Entry 一条从 Loki 返回的日志行。
type Entry struct {
	Timestamp time.Time
	Line      string
	Labels    map[string]string
}

// Client Loki HTTP API 客户端。
type Client struct {
	opts   *lokiopts.Options
	client *httpclient.Client
}

// New 创建 Loki 客户端。
func New(opts *lokiopts.Options) (*Client, error) {
	if opts == nil {
		return nil, fmt.Errorf("loki options is nil")
	}
	if errs := opts.Validate(); len(errs) > 0 {
		return nil, fmt.Errorf("invalid loki options: %v", errs)
	}

	return &Client{
		opts:   opts,
		client: httpclient.NewClient(opts.Timeout, 2),
	}, nil
}

// QueryRangeRequest query_range 查询参数。
type QueryRangeRequest struct {
	// Query LogQL 查询表达式。
	Query string
	// Start/End 查询时间窗口（闭区间）。
	Start time.Time
	End   time.Time
	// Limit 最大返回条数，0 则使用配置的 MaxEntries。
	Limit int
	// Direction 返回方向，默认 forward。
	Direction Direction
}

// queryRangeResponse Loki query_range API 响应体。
type queryRangeResponse struct {
	Status string `json:"status"`
	Data   struct {
		ResultType string `json:"resultType"`
		Result     []struct {
			Stream map[string]string `json:"stream"`
			Values [][2]string       `json:"values"`
		} `json:"result"`
	} `json:"data"`
}

// QueryRange 执行 LogQL 范围查询，返回按时间升序排列的日志行。
// 多个 stream 的结果合并后统一排序。
func (c *Client) QueryRange(ctx context.Context, q QueryRangeRequest) ([]Entry, error) {
	if q.Query == "" {
		return nil, fmt.Errorf("loki: query is required")
	}

	limit := q.Limit
	if limit <= 0 || limit > c.opts.MaxEntries {
		limit = c.opts.MaxEntries
	}
	direction := q.Direction
	if direction == "" {
		direction = DirectionForward
	}

	params := url.Values{}
	params.Set("query", q.Query)
	params.Set("start", strconv.FormatInt(q.Start.UnixNano(), 10))
	params.Set("end", strconv.FormatInt(q.End.UnixNano(), 10))
	params.Set("limit", strconv.Itoa(limit))
	params.Set("direction", string(direction))

	endpoint := c.opts.Address + "/loki/api/v1/query_range?" + params.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("loki: failed to create request: %w", err)
	}
	if c.opts.OrgID != "" {
		req.Header.Set("X-Scope-OrgID", c.opts.OrgID)
	}

	var resp queryRangeResponse
	if err := c.client.DoJSON(req, &resp); err != nil {
		return nil, fmt.Errorf("loki: query_range failed: %w", err)
	}

	if resp.Status != "success" {
		return nil, fmt.Errorf("loki: query_range returned status %q", resp.Status)
	}

	var entries []Entry
	for _, stream := range resp.Data.Result {
		for _, value := range stream.Values {
			ns, err := strconv.ParseInt(value[0], 10, 64)
			if err != nil {
				return nil, fmt.Errorf("loki: bad timestamp %q: %w", value[0], err)
			}
			entries = append(entries, Entry{
				Timestamp: time.Unix(0, ns),
				Line:      value[1],
				Labels:    stream.Stream,
			})
		}
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Timestamp.Before(entries[j].Timestamp)
	})

	return entries, nil
}

// Ready 检查 Loki 服务是否就绪。
func (c *Client) Ready(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.opts.Address+"/ready", nil)
	if err != nil {
		return fmt.Errorf("loki: failed to create request: %w", err)
	}
	return c.client.DoJSON(req, nil)
}

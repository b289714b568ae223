// Package tools 实现路由器可调用的检索工具。
// 每个工具对一次调用恰好发起一次外部请求，错误原样上抛，不做重试。
package tools

import (
	"context"
	"fmt"
	"sort"

	"github.com/RHEcosystemAppEng/ansible-log-analysis/internal/model"
)

// 工具名。选择器的决策表只会产出这三个名字之一。
const (
	NameLogsBySource      = "get_logs_by_source"
	NameSearchLogsByText  = "search_logs_by_text"
	NameLinesAroundAnchor = "get_lines_around_anchor"
)

// 参数键。值一律为字符串，时间用 RFC3339。
const (
	ParamSource     = "source"
	ParamSearchText = "search_text"
	ParamStart      = "start"
	ParamEnd        = "end"
	ParamLineCount  = "line_count"
)

// Tool 一个可调用的检索工具。
type Tool interface {
	// Name 工具名。
	Name() string
	// Invoke 以锚点日志和提取出的参数执行一次检索，返回文本化的结果。
	Invoke(ctx context.Context, anchor *model.LogEntry, params map[string]string) (string, error)
}

// Registry 工具注册表。
type Registry struct {
	tools map[string]Tool
}

// NewRegistry 创建注册表。
func NewRegistry(ts ...Tool) *Registry {
	r := &Registry{tools: make(map[string]Tool, len(ts))}
	for _, t := range ts {
		r.tools[t.Name()] = t
	}
	return r
}

// Register 注册工具，同名覆盖。
func (r *Registry) Register(t Tool) {
	r.tools[t.Name()] = t
}

// Get 按名取工具。
func (r *Registry) Get(name string) (Tool, error) {
	t, ok := r.tools[name]
	if !ok {
		return nil, fmt.Errorf("unknown tool: %s", name)
	}
	return t, nil
}

// Names 返回已注册的工具名（字典序）。
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

package biz

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/kart-io/logger"

	"github.com/RHEcosystemAppEng/ansible-log-analysis/internal/alm/tools"
	"github.com/RHEcosystemAppEng/ansible-log-analysis/internal/model"
)

// ToolSelector 把一条自然语言检索请求映射为恰好一次工具调用。
// 决策表基于提取出的结构化字段（有无来源、有无检索文本、有无窗口、
// 是否本地上下文意图），与文本推理能力完全解耦。
type ToolSelector struct {
	registry *tools.Registry
}

// NewToolSelector 创建选择器。
func NewToolSelector(registry *tools.Registry) *ToolSelector {
	return &ToolSelector{registry: registry}
}

// extracted 从请求文本提取出的结构化字段。
type extracted struct {
	source       string
	searchText   string
	window       TimeWindow
	hasWindow    bool
	localContext bool
	lineCount    int
}

// Select 选择并执行一个工具。恰好一次外部调用，外部错误原样记录在
// 返回的 ToolInvocation 中，重试策略属于路由器。
// 请求无工具可匹配时返回 ErrConfiguration。
func (s *ToolSelector) Select(ctx context.Context, request *model.RetrievalRequest, anchor *model.LogEntry) (*model.ToolInvocation, error) {
	ex := extractFields(request.Text, time.UnixMilli(request.AnchorTimestamp))

	name, params, err := decide(ex)
	if err != nil {
		return nil, err
	}

	tool, err := s.registry.Get(name)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfiguration, err)
	}

	inv := &model.ToolInvocation{
		Tool:   name,
		Params: params,
	}

	payload, err := tool.Invoke(ctx, anchor, params)
	if err != nil {
		inv.Status = model.StatusError
		inv.Error = err.Error()
		logger.Warnw("tool invocation failed",
			"tool", name, "request", request.Text, "error", err.Error())
		return inv, nil
	}

	inv.Status = model.StatusSuccess
	inv.Payload = payload
	return inv, nil
}

// decide 决策表。规则与字段一一对应，保持可独立测试：
//
//	本地上下文意图且无来源无检索文本 → get_lines_around_anchor
//	有命名来源且有窗口               → get_logs_by_source
//	其余                             → search_logs_by_text（要求检索文本）
func decide(ex extracted) (string, map[string]string, error) {
	switch {
	case ex.localContext && ex.source == "" && ex.searchText == "":
		params := map[string]string{}
		if ex.lineCount > 0 {
			params[tools.ParamLineCount] = strconv.Itoa(ex.lineCount)
		}
		return tools.NameLinesAroundAnchor, params, nil

	case ex.source != "" && ex.hasWindow:
		return tools.NameLogsBySource, map[string]string{
			tools.ParamSource: ex.source,
			tools.ParamStart:  ex.window.Start.Format(time.RFC3339),
			tools.ParamEnd:    ex.window.End.Format(time.RFC3339),
		}, nil

	default:
		if ex.searchText == "" {
			return "", nil, fmt.Errorf("%w: no tool matches request (no source+window, no search text, no local-context intent)", ErrConfiguration)
		}
		params := map[string]string{
			tools.ParamSearchText: ex.searchText,
			tools.ParamStart:      ex.window.Start.Format(time.RFC3339),
			tools.ParamEnd:        ex.window.End.Format(time.RFC3339),
		}
		if ex.source != "" {
			params[tools.ParamSource] = ex.source
		}
		return tools.NameSearchLogsByText, params, nil
	}
}

var (
	reQuoted   = regexp.MustCompile(`"((?:[^"\\]|\\.)*)"|'([^']*)'|` + "`([^`]*)`")
	reLogFile  = regexp.MustCompile(`(?i)\b([\w./-]*\w\.log)\b`)
	reFromSrc  = regexp.MustCompile(`(?i)\bfrom\s+(?:the\s+)?([A-Za-z0-9][\w.-]*)`)
	reSearchKw = regexp.MustCompile(`(?i)\b(?:search(?:ing)?\s+(?:for\s+)?|containing|matching|mentioning|find\s+(?:lines\s+)?(?:with\s+)?)\s*(.+?)(?:\s+(?:in|from|over|during|within)\b.*)?$`)
	reLines    = regexp.MustCompile(`(?i)\b(\d+)\s+lines?\b`)
)

// 来源捕获里要排除的普通词。
var sourceStopWords = map[string]bool{
	"logs": true, "log": true, "the": true, "a": true, "an": true,
	"last": true, "this": true, "that": true, "before": true, "around": true,
}

var localContextMarkers = []string{
	"around", "surrounding", "context", "before and after",
	"nearby", "adjacent", "preceding", "leading up to",
}

// extractFields 从请求文本提取结构化字段。
// 字段边界扫描一律在掩掉引号与括号区段的文本上进行，引号里的
// JSON 负载（花括号、冒号、逗号）不会破坏提取；检索文本本身
// 再从原文里取。
func extractFields(text string, anchor time.Time) extracted {
	masked := maskStructured(text)

	var ex extracted

	// 来源：*.log 文件名优先，其次 "from <service>"
	if m := reLogFile.FindStringSubmatch(masked); m != nil {
		ex.source = m[1]
	} else if m := reFromSrc.FindStringSubmatch(masked); m != nil {
		if !sourceStopWords[strings.ToLower(m[1])] {
			ex.source = m[1]
		}
	}

	// 检索文本：引号内容优先（取原文），其次关键词之后的尾部
	if m := reQuoted.FindStringSubmatch(text); m != nil {
		for _, g := range m[1:] {
			if g != "" {
				ex.searchText = g
				break
			}
		}
	} else if m := reSearchKw.FindStringSubmatch(masked); m != nil {
		ex.searchText = strings.TrimSpace(strings.Trim(m[1], ".,"))
	}

	ex.window, ex.hasWindow = ParseTimeWindow(masked, anchor)

	lower := strings.ToLower(masked)
	for _, marker := range localContextMarkers {
		if strings.Contains(lower, marker) {
			ex.localContext = true
			break
		}
	}

	if m := reLines.FindStringSubmatch(masked); m != nil {
		if n, err := strconv.Atoi(m[1]); err == nil {
			ex.lineCount = n
		}
	}

	return ex
}

// maskStructured 把引号内与花/方括号内的字符替换为空格，长度不变。
// 嵌套括号按深度计数，未闭合的引号掩到行尾。
func maskStructured(text string) string {
	out := []rune(text)
	var quote rune
	depth := 0

	for i, r := range out {
		switch {
		case quote != 0:
			if r == quote {
				quote = 0
			}
			out[i] = ' '
		case depth > 0:
			switch r {
			case '{', '[':
				depth++
			case '}', ']':
				depth--
			}
			out[i] = ' '
		case r == '"' || r == '\'' || r == '`':
			quote = r
			out[i] = ' '
		case r == '{' || r == '[':
			depth = 1
			out[i] = ' '
		}
	}
	return string(out)
}

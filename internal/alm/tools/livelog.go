package tools

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/RHEcosystemAppEng/ansible-log-analysis/internal/model"
	"github.com/RHEcosystemAppEng/ansible-log-analysis/pkg/component/loki"
)

// DefaultLineCount get_lines_around_anchor 未指定行数时的默认值。
const DefaultLineCount = 20

// anchorContextSpan 围绕锚点取上下文时查询的半窗口。
const anchorContextSpan = 5 * time.Minute

// LogsBySourceTool 按来源文件或服务取日志。
type LogsBySourceTool struct {
	client *loki.Client
}

// NewLogsBySourceTool 创建工具。
func NewLogsBySourceTool(client *loki.Client) *LogsBySourceTool {
	return &LogsBySourceTool{client: client}
}

func (t *LogsBySourceTool) Name() string { return NameLogsBySource }

// Invoke 需要 source 与 start/end 窗口参数。
func (t *LogsBySourceTool) Invoke(ctx context.Context, anchor *model.LogEntry, params map[string]string) (string, error) {
	source := params[ParamSource]
	if source == "" {
		return "", fmt.Errorf("get_logs_by_source: source is required")
	}

	start, end, err := parseWindowParams(params)
	if err != nil {
		return "", err
	}

	entries, err := t.client.QueryRange(ctx, loki.QueryRangeRequest{
		Query: sourceSelector(source),
		Start: start,
		End:   end,
	})
	if err != nil {
		return "", err
	}

	return renderEntries(entries), nil
}

// SearchLogsByTextTool 全文检索日志行。
type SearchLogsByTextTool struct {
	client *loki.Client
}

// NewSearchLogsByTextTool 创建工具。
func NewSearchLogsByTextTool(client *loki.Client) *SearchLogsByTextTool {
	return &SearchLogsByTextTool{client: client}
}

func (t *SearchLogsByTextTool) Name() string { return NameSearchLogsByText }

// Invoke 需要 search_text 与窗口参数，source 为可选过滤。
func (t *SearchLogsByTextTool) Invoke(ctx context.Context, anchor *model.LogEntry, params map[string]string) (string, error) {
	text := params[ParamSearchText]
	if text == "" {
		return "", fmt.Errorf("search_logs_by_text: search_text is required")
	}

	start, end, err := parseWindowParams(params)
	if err != nil {
		return "", err
	}

	selector := `{job=~".+"}`
	if source := params[ParamSource]; source != "" {
		selector = sourceSelector(source)
	}

	entries, err := t.client.QueryRange(ctx, loki.QueryRangeRequest{
		Query: fmt.Sprintf("%s |= %s", selector, strconv.Quote(text)),
		Start: start,
		End:   end,
	})
	if err != nil {
		return "", err
	}

	return renderEntries(entries), nil
}

// LinesAroundAnchorTool 取锚点日志前后的若干行。
// 锚点的文件、文本与时间戳由路由器提供，不从自由文本里二次提取。
type LinesAroundAnchorTool struct {
	client *loki.Client
}

// NewLinesAroundAnchorTool 创建工具。
func NewLinesAroundAnchorTool(client *loki.Client) *LinesAroundAnchorTool {
	return &LinesAroundAnchorTool{client: client}
}

func (t *LinesAroundAnchorTool) Name() string { return NameLinesAroundAnchor }

// Invoke 只接受 line_count 参数，缺省 DefaultLineCount。
func (t *LinesAroundAnchorTool) Invoke(ctx context.Context, anchor *model.LogEntry, params map[string]string) (string, error) {
	if anchor == nil {
		return "", fmt.Errorf("get_lines_around_anchor: anchor entry is required")
	}

	count := DefaultLineCount
	if v := params[ParamLineCount]; v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return "", fmt.Errorf("get_lines_around_anchor: bad line_count %q", v)
		}
		count = n
	}

	source := anchor.Labels.Filename
	if source == "" {
		source = anchor.Labels.ServiceName
	}
	if source == "" {
		return "", fmt.Errorf("get_lines_around_anchor: anchor has no source label")
	}

	at := anchor.Time()
	entries, err := t.client.QueryRange(ctx, loki.QueryRangeRequest{
		Query: sourceSelector(source),
		Start: at.Add(-anchorContextSpan),
		End:   at.Add(anchorContextSpan),
	})
	if err != nil {
		return "", err
	}

	return renderEntries(nearestLines(entries, at, count)), nil
}

// nearestLines 保留时间上离锚点最近的 count 行，最终按时间排列。
func nearestLines(entries []loki.Entry, at time.Time, count int) []loki.Entry {
	if len(entries) <= count {
		return entries
	}

	sort.SliceStable(entries, func(i, j int) bool {
		di := absDuration(entries[i].Timestamp.Sub(at))
		dj := absDuration(entries[j].Timestamp.Sub(at))
		return di < dj
	})
	kept := entries[:count]

	sort.Slice(kept, func(i, j int) bool {
		return kept[i].Timestamp.Before(kept[j].Timestamp)
	})
	return kept
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}

// sourceSelector 把来源标识映射为 LogQL 流选择器。
// 形如路径或 *.log 的按 filename 匹配，其余按 service_name。
func sourceSelector(source string) string {
	if strings.HasSuffix(source, ".log") || strings.Contains(source, "/") {
		return fmt.Sprintf(`{filename=%s}`, strconv.Quote(source))
	}
	return fmt.Sprintf(`{service_name=%s}`, strconv.Quote(source))
}

// renderEntries 把日志行序列化为工具结果文本。
func renderEntries(entries []loki.Entry) string {
	if len(entries) == 0 {
		return "(no matching log lines)"
	}

	var b strings.Builder
	for _, e := range entries {
		fmt.Fprintf(&b, "%s %s\n", e.Timestamp.Format(time.RFC3339), e.Line)
	}
	return b.String()
}

// parseWindowParams 解析 start/end 参数（RFC3339）。
func parseWindowParams(params map[string]string) (time.Time, time.Time, error) {
	start, err := time.Parse(time.RFC3339, params[ParamStart])
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("bad start %q: %w", params[ParamStart], err)
	}
	end, err := time.Parse(time.RFC3339, params[ParamEnd])
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("bad end %q: %w", params[ParamEnd], err)
	}
	return start, end, nil
}

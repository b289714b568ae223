package biz

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/RHEcosystemAppEng/ansible-log-analysis/internal/model"
	"github.com/RHEcosystemAppEng/ansible-log-analysis/pkg/llm"
	"github.com/RHEcosystemAppEng/ansible-log-analysis/pkg/utils/json"
)

// Decision 充分性判定结果。Sufficient 为 false 时 Request 必定非空。
type Decision struct {
	Sufficient bool
	Request    *model.RetrievalRequest
}

const classifierSystemPrompt = `You are a log triage assistant deciding whether enough context
has been gathered to write a remediation plan for a recurring log error.

Given the representative log entry and the context retrieved so far, decide:
- If the context is enough, respond sufficient.
- If one more piece of log-derived information would help, describe EXACTLY ONE
  retrieval request in plain language. Never combine multiple asks. The request
  must only ask for data that can be found in logs.

Respond with a single JSON object, no other text:
{"sufficient": true}
or
{"sufficient": false, "request": "<one retrieval request>"}`

// SufficiencyClassifier 封装对文本推理能力的调用纪律：
// 构造输入、解析结构化输出、拦截复合请求。推理本身是外部能力。
type SufficiencyClassifier struct {
	chat llm.ChatProvider
}

// NewSufficiencyClassifier 创建分类器。
func NewSufficiencyClassifier(chat llm.ChatProvider) *SufficiencyClassifier {
	return &SufficiencyClassifier{chat: chat}
}

// Evaluate 判定当前 bundle 是否足以生成修复方案。
// 复合请求返回 ErrMalformedRequest，由路由器强制 Sufficient。
func (c *SufficiencyClassifier) Evaluate(ctx context.Context, template *model.LogTemplate, bundle *model.ContextBundle) (*Decision, error) {
	prompt := c.buildPrompt(template, bundle)

	raw, err := c.chat.Generate(ctx, prompt, classifierSystemPrompt)
	if err != nil {
		return nil, fmt.Errorf("classifier call failed: %w", err)
	}

	decision, err := parseDecision(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedRequest, err)
	}

	if decision.Sufficient {
		return decision, nil
	}

	text := strings.TrimSpace(decision.Request.Text)
	if text == "" {
		// 要求更多上下文却没给请求文本，当作已充分
		return &Decision{Sufficient: true}, nil
	}
	if isCompoundRequest(text) {
		return nil, fmt.Errorf("%w: compound request %q", ErrMalformedRequest, text)
	}

	decision.Request.AnchorTimestamp = bundle.Anchor.Timestamp
	return decision, nil
}

func (c *SufficiencyClassifier) buildPrompt(template *model.LogTemplate, bundle *model.ContextBundle) string {
	var b strings.Builder

	anchor := bundle.Anchor
	fmt.Fprintf(&b, "Representative log entry (template %d):\n", template.ID)
	if anchor.Summary != "" {
		fmt.Fprintf(&b, "Summary: %s\n", anchor.Summary)
	}
	fmt.Fprintf(&b, "Raw: %s\n", anchor.Message)
	fmt.Fprintf(&b, "Labels: level=%s file=%s job=%s service=%s\n",
		anchor.Labels.DetectedLevel, anchor.Labels.Filename, anchor.Labels.Job, anchor.Labels.ServiceName)

	if len(bundle.Items) == 0 {
		b.WriteString("\nNo additional context has been retrieved yet.\n")
		return b.String()
	}

	fmt.Fprintf(&b, "\nContext retrieved so far (%d items):\n", len(bundle.Items))
	for i, item := range bundle.Items {
		fmt.Fprintf(&b, "%d. [%s] request: %s\n", i+1, item.Source, item.Request)
		if item.Status == model.StatusError {
			fmt.Fprintf(&b, "   FAILED: %s (do not request this again)\n", item.Error)
			continue
		}
		fmt.Fprintf(&b, "   payload: %s\n", item.Payload)
	}

	return b.String()
}

// decisionPayload 分类器约定的结构化输出。
type decisionPayload struct {
	Sufficient bool   `json:"sufficient"`
	Request    string `json:"request"`
}

var reCodeFence = regexp.MustCompile("(?s)```(?:json)?\\s*(.*?)```")

// parseDecision 解析 LLM 输出。容忍 markdown 代码围栏和 JSON 前后的
// 多余文本，取第一个大括号到最后一个大括号之间的内容。
func parseDecision(raw string) (*Decision, error) {
	text := strings.TrimSpace(raw)
	if m := reCodeFence.FindStringSubmatch(text); m != nil {
		text = strings.TrimSpace(m[1])
	}

	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return nil, fmt.Errorf("no JSON object in classifier output")
	}

	var payload decisionPayload
	if err := json.Unmarshal([]byte(text[start:end+1]), &payload); err != nil {
		return nil, fmt.Errorf("bad classifier JSON: %v", err)
	}

	if payload.Sufficient {
		return &Decision{Sufficient: true}, nil
	}
	return &Decision{
		Sufficient: false,
		Request:    &model.RetrievalRequest{Text: strings.TrimSpace(payload.Request)},
	}, nil
}

// 复合请求的连接标记。仅在掩掉引号与括号区段后扫描，
// 嵌入的 JSON 负载不会误触发。
var compoundMarkers = []string{
	"; ",
	" and then ",
	" and also ",
	" as well as ",
	" additionally ",
	" plus ",
}

var (
	reEnumeration    = regexp.MustCompile(`(?m)^\s*(?:\d+[.)]|[-*])\s+\S`)
	reImperativeVerb = regexp.MustCompile(`(?i)\b(get|fetch|search|find|retrieve|show|list|query)\b`)
)

// isCompoundRequest 判断请求是否打包了多个检索诉求。
// 尽力而为的启发式，不是硬保证。
func isCompoundRequest(text string) bool {
	masked := maskStructured(text)
	lower := strings.ToLower(masked)

	for _, marker := range compoundMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}

	if len(reEnumeration.FindAllString(masked, 2)) >= 2 {
		return true
	}

	// " and " 连接两个检索动词才算复合："errors and warnings" 不算
	if idx := strings.Index(lower, " and "); idx >= 0 {
		before, after := lower[:idx], lower[idx+5:]
		if reImperativeVerb.MatchString(before) && reImperativeVerb.MatchString(after) {
			return true
		}
	}

	return false
}

// 非日志数据的信号词：指标、实时状态、机密。
var nonLogPatterns = []string{
	"cpu usage", "memory usage", "disk usage", "current metrics",
	"live state", "current state", "running processes",
	"secret", "password", "credential", "api key", "token value",
	"prometheus", "grafana dashboard",
}

// isNonLogRequest 判断请求是否明显在索取日志之外的数据。
func isNonLogRequest(text string) bool {
	lower := strings.ToLower(maskStructured(text))
	for _, p := range nonLogPatterns {
		if strings.Contains(lower, p) {
			return true
		}
	}
	return false
}

package biz

import (
	"context"
	"fmt"
	"strings"

	"github.com/RHEcosystemAppEng/ansible-log-analysis/internal/model"
	"github.com/RHEcosystemAppEng/ansible-log-analysis/pkg/llm"
)

const summarizerSystemPrompt = `You summarize individual log lines for clustering.
Reply with one short sentence describing what happened, no preamble, no
markdown. Keep identifiers (service names, error codes) verbatim; drop
volatile values such as timestamps, request ids and memory addresses.`

const categorizerSystemPrompt = `You classify log lines for routing to the right expert.
Reply with exactly one category name from the list, nothing else.`

// ExpertCategories 专家分类的闭集。分类器输出不在集合内时回退到 unknown。
var ExpertCategories = []string{
	"networking",
	"storage",
	"authentication",
	"configuration",
	"application",
	"infrastructure",
}

// Summarizer 为单条日志生成摘要与专家分类。
// 摘要是聚类嵌入的输入，必须在嵌入之前填充。
type Summarizer struct {
	chat llm.ChatProvider
}

func NewSummarizer(chat llm.ChatProvider) *Summarizer {
	return &Summarizer{chat: chat}
}

// Summarize 填充 entry.Summary。失败时回退到原始消息截断，
// 管线不因单条摘要失败而中断。
func (s *Summarizer) Summarize(ctx context.Context, entry *model.LogEntry) error {
	prompt := fmt.Sprintf("Log line:\n%s", entry.Message)
	out, err := s.chat.Generate(ctx, prompt, summarizerSystemPrompt)
	if err != nil {
		return fmt.Errorf("summarize: %w", err)
	}
	out = strings.TrimSpace(out)
	if out == "" {
		return fmt.Errorf("summarize: empty summary")
	}
	entry.Summary = out
	return nil
}

// Categorize 填充 entry.Category，输出约束在 ExpertCategories 闭集内。
func (s *Summarizer) Categorize(ctx context.Context, entry *model.LogEntry) error {
	prompt := fmt.Sprintf("Categories: %s\n\nLog line:\n%s",
		strings.Join(ExpertCategories, ", "), entry.Message)
	out, err := s.chat.Generate(ctx, prompt, categorizerSystemPrompt)
	if err != nil {
		return fmt.Errorf("categorize: %w", err)
	}
	entry.Category = normalizeCategory(out)
	return nil
}

func normalizeCategory(out string) string {
	cleaned := strings.ToLower(strings.Trim(strings.TrimSpace(out), ".\"'`"))
	for _, c := range ExpertCategories {
		if cleaned == c {
			return c
		}
	}
	// 模型偶尔会包一句话，取包含的首个合法分类
	for _, c := range ExpertCategories {
		if strings.Contains(cleaned, c) {
			return c
		}
	}
	return "unknown"
}

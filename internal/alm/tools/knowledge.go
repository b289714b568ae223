package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/RHEcosystemAppEng/ansible-log-analysis/internal/alm/store"
	"github.com/RHEcosystemAppEng/ansible-log-analysis/internal/model"
)

// 知识库检索默认参数。
const (
	defaultKnowledgeLimit      = 3
	defaultKnowledgeScoreFloor = 0.3
)

// KnowledgeSearchTool 对知识库做相似度检索。
// 不在选择器的三个日志工具之列，由路由器在 Start 阶段预取时调用。
type KnowledgeSearchTool struct {
	store store.KnowledgeStore
}

// NewKnowledgeSearchTool 创建工具。
func NewKnowledgeSearchTool(s store.KnowledgeStore) *KnowledgeSearchTool {
	return &KnowledgeSearchTool{store: s}
}

func (t *KnowledgeSearchTool) Name() string { return "search_knowledge_base" }

// Invoke 以 search_text 为查询检索知识库。
func (t *KnowledgeSearchTool) Invoke(ctx context.Context, _ *model.LogEntry, params map[string]string) (string, error) {
	query := params[ParamSearchText]
	if query == "" {
		return "", fmt.Errorf("search_knowledge_base: search_text is required")
	}

	snippets, err := t.store.SearchKnowledge(ctx, query, defaultKnowledgeLimit, defaultKnowledgeScoreFloor)
	if err != nil {
		return "", err
	}

	return renderSnippets(snippets), nil
}

func renderSnippets(snippets []store.Snippet) string {
	if len(snippets) == 0 {
		return "(no relevant snippets)"
	}

	var b strings.Builder
	for i, sn := range snippets {
		fmt.Fprintf(&b, "%d. (score %.2f", i+1, sn.Score)
		if sn.Ref != "" {
			fmt.Fprintf(&b, ", %s", sn.Ref)
		}
		fmt.Fprintf(&b, ")\n%s\n", sn.Text)
	}
	return b.String()
}

package tools

import (
	"context"
	"fmt"

	"github.com/RHEcosystemAppEng/ansible-log-analysis/internal/alm/store"
	"github.com/RHEcosystemAppEng/ansible-log-analysis/internal/model"
)

const defaultSourceLimit = 3

// SourceRepoTool 按组件或 playbook 标识查找相关源码片段。
// 与知识库工具一样只服务于路由器的 Start 预取。
type SourceRepoTool struct {
	store store.KnowledgeStore
}

// NewSourceRepoTool 创建工具。
func NewSourceRepoTool(s store.KnowledgeStore) *SourceRepoTool {
	return &SourceRepoTool{store: s}
}

func (t *SourceRepoTool) Name() string { return "lookup_source_repo" }

// Invoke 以 source 参数为标识检索源码片段。
func (t *SourceRepoTool) Invoke(ctx context.Context, _ *model.LogEntry, params map[string]string) (string, error) {
	identifier := params[ParamSource]
	if identifier == "" {
		return "", fmt.Errorf("lookup_source_repo: source identifier is required")
	}

	snippets, err := t.store.SearchSource(ctx, identifier, defaultSourceLimit)
	if err != nil {
		return "", err
	}

	return renderSnippets(snippets), nil
}

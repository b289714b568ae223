// Package store 提供知识库与源码片段的向量检索。
package store

import "context"

// Snippet 一条检索命中。
type Snippet struct {
	// Text 片段内容。
	Text string `json:"text"`
	// Score 相似度得分（越大越相似）。
	Score float64 `json:"score"`
	// Ref 来源标识（文档名、playbook 路径等）。
	Ref string `json:"ref,omitempty"`
}

// KnowledgeStore 知识库检索接口。
type KnowledgeStore interface {
	// SearchKnowledge 按查询文本做相似度检索，丢弃低于 scoreFloor 的命中。
	SearchKnowledge(ctx context.Context, query string, limit int, scoreFloor float64) ([]Snippet, error)

	// SearchSource 按组件/playbook 标识检索相关源码片段。
	SearchSource(ctx context.Context, identifier string, limit int) ([]Snippet, error)

	// IndexKnowledge 向知识库写入一批文档。
	IndexKnowledge(ctx context.Context, docs []Document) error
}

// Document 待入库的知识文档。
type Document struct {
	Text string `json:"text"`
	Ref  string `json:"ref,omitempty"`
}

package store

import (
	"context"
	"fmt"

	"github.com/milvus-io/milvus/client/v2/entity"

	"github.com/RHEcosystemAppEng/ansible-log-analysis/pkg/component/milvus"
	"github.com/RHEcosystemAppEng/ansible-log-analysis/pkg/llm"
)

// 检索与入库使用不同的任务前缀（nomic 系嵌入模型的约定）。
// 前缀在这里统一添加，调用方传裸文本。
const (
	queryPrefix    = "search_query: "
	documentPrefix = "search_document: "
)

// MilvusStore 基于 Milvus 的知识库与源码片段检索。
// 两类内容各占一个集合，共享一个嵌入供应商。
type MilvusStore struct {
	client        *milvus.Client
	embedder      llm.EmbeddingProvider
	kbCollection  string
	srcCollection string
	dimension     int
}

var _ KnowledgeStore = (*MilvusStore)(nil)

// NewMilvusStore 创建 Milvus 存储实例。
func NewMilvusStore(client *milvus.Client, embedder llm.EmbeddingProvider, kbCollection, srcCollection string, dimension int) *MilvusStore {
	return &MilvusStore{
		client:        client,
		embedder:      embedder,
		kbCollection:  kbCollection,
		srcCollection: srcCollection,
		dimension:     dimension,
	}
}

// EnsureCollections 建表并加载两个集合。
func (s *MilvusStore) EnsureCollections(ctx context.Context) error {
	for _, name := range []string{s.kbCollection, s.srcCollection} {
		schema := &milvus.CollectionSchema{
			Name:        name,
			Description: "alm retrieval collection",
			Dimension:   s.dimension,
			MetaFields: []milvus.MetaField{
				{Name: "content", DataType: entity.FieldTypeVarChar, MaxLen: 65535},
				{Name: "ref", DataType: entity.FieldTypeVarChar, MaxLen: 512},
			},
		}
		if err := s.client.EnsureCollection(ctx, schema); err != nil {
			return fmt.Errorf("failed to ensure collection %s: %w", name, err)
		}
	}
	return nil
}

// IndexKnowledge 向知识库集合写入一批文档。
func (s *MilvusStore) IndexKnowledge(ctx context.Context, docs []Document) error {
	if len(docs) == 0 {
		return nil
	}

	texts := make([]string, len(docs))
	for i, d := range docs {
		texts[i] = documentPrefix + d.Text
	}

	embeddings, err := s.embedder.Embed(ctx, texts)
	if err != nil {
		return fmt.Errorf("failed to embed documents: %w", err)
	}

	metadata := map[string][]any{
		"content": make([]any, len(docs)),
		"ref":     make([]any, len(docs)),
	}
	for i, d := range docs {
		metadata["content"][i] = d.Text
		metadata["ref"][i] = d.Ref
	}

	if _, err := s.client.Insert(ctx, s.kbCollection, &milvus.InsertData{
		Embeddings: embeddings,
		Metadata:   metadata,
	}); err != nil {
		return fmt.Errorf("failed to insert into knowledge base: %w", err)
	}
	return nil
}

// SearchKnowledge 在知识库集合做相似度检索，低于 scoreFloor 的命中被丢弃。
func (s *MilvusStore) SearchKnowledge(ctx context.Context, query string, limit int, scoreFloor float64) ([]Snippet, error) {
	snippets, err := s.search(ctx, s.kbCollection, query, limit)
	if err != nil {
		return nil, err
	}

	filtered := snippets[:0]
	for _, sn := range snippets {
		if sn.Score >= scoreFloor {
			filtered = append(filtered, sn)
		}
	}
	return filtered, nil
}

// SearchSource 检索与组件/playbook 标识相关的源码片段。
func (s *MilvusStore) SearchSource(ctx context.Context, identifier string, limit int) ([]Snippet, error) {
	return s.search(ctx, s.srcCollection, identifier, limit)
}

func (s *MilvusStore) search(ctx context.Context, collection, query string, limit int) ([]Snippet, error) {
	vector, err := s.embedder.EmbedSingle(ctx, queryPrefix+query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	results, err := s.client.Search(ctx, collection, vector, limit, []string{"content", "ref"})
	if err != nil {
		return nil, fmt.Errorf("failed to search %s: %w", collection, err)
	}

	snippets := make([]Snippet, 0, len(results))
	for _, r := range results {
		sn := Snippet{Score: float64(r.Score)}
		if content, ok := r.Metadata["content"].(string); ok {
			sn.Text = content
		}
		if ref, ok := r.Metadata["ref"].(string); ok {
			sn.Ref = ref
		}
		snippets = append(snippets, sn)
	}
	return snippets, nil
}

package tools

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RHEcosystemAppEng/ansible-log-analysis/internal/alm/store"
)

// fakeStore 固定返回的知识库。
type fakeStore struct {
	kb      []store.Snippet
	src     []store.Snippet
	kbErr   error
	srcErr  error
	queries []string
}

func (s *fakeStore) SearchKnowledge(ctx context.Context, query string, limit int, scoreFloor float64) ([]store.Snippet, error) {
	s.queries = append(s.queries, query)
	return s.kb, s.kbErr
}

func (s *fakeStore) SearchSource(ctx context.Context, identifier string, limit int) ([]store.Snippet, error) {
	s.queries = append(s.queries, identifier)
	return s.src, s.srcErr
}

func (s *fakeStore) IndexKnowledge(ctx context.Context, docs []store.Document) error {
	return nil
}

func TestKnowledgeSearchRequiresQuery(t *testing.T) {
	tool := NewKnowledgeSearchTool(&fakeStore{})

	_, err := tool.Invoke(context.Background(), nil, map[string]string{})
	assert.Error(t, err)
}

func TestKnowledgeSearchRendersSnippets(t *testing.T) {
	fs := &fakeStore{kb: []store.Snippet{
		{Text: "restart the controller pod", Score: 0.91, Ref: "kb/controller.md"},
		{Text: "check pg_hba.conf", Score: 0.72},
	}}
	tool := NewKnowledgeSearchTool(fs)

	out, err := tool.Invoke(context.Background(), nil, map[string]string{ParamSearchText: "connection refused"})
	require.NoError(t, err)
	assert.Contains(t, out, "restart the controller pod")
	assert.Contains(t, out, "kb/controller.md")
	assert.Contains(t, out, "0.91")
	assert.Equal(t, []string{"connection refused"}, fs.queries)
}

func TestKnowledgeSearchEmptyResult(t *testing.T) {
	tool := NewKnowledgeSearchTool(&fakeStore{})

	out, err := tool.Invoke(context.Background(), nil, map[string]string{ParamSearchText: "anything"})
	require.NoError(t, err)
	assert.Equal(t, "(no relevant snippets)", out)
}

func TestKnowledgeSearchPropagatesError(t *testing.T) {
	tool := NewKnowledgeSearchTool(&fakeStore{kbErr: errors.New("milvus unavailable")})

	_, err := tool.Invoke(context.Background(), nil, map[string]string{ParamSearchText: "anything"})
	assert.Error(t, err)
}

func TestSourceRepoRequiresIdentifier(t *testing.T) {
	tool := NewSourceRepoTool(&fakeStore{})

	_, err := tool.Invoke(context.Background(), nil, map[string]string{})
	assert.Error(t, err)
}

func TestSourceRepoRendersSnippets(t *testing.T) {
	fs := &fakeStore{src: []store.Snippet{
		{Text: "- name: restart postgres", Ref: "playbooks/db.yml", Score: 0.8},
	}}
	tool := NewSourceRepoTool(fs)

	out, err := tool.Invoke(context.Background(), nil, map[string]string{ParamSource: "gateway"})
	require.NoError(t, err)
	assert.Contains(t, out, "restart postgres")
	assert.Contains(t, out, "playbooks/db.yml")
	assert.Equal(t, []string{"gateway"}, fs.queries)
}

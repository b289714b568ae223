package biz

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RHEcosystemAppEng/ansible-log-analysis/internal/alm/store"
	"github.com/RHEcosystemAppEng/ansible-log-analysis/internal/model"
)

// scriptedClassifier 按脚本返回判定结果。
type scriptedClassifier struct {
	decisions []*Decision
	errs      []error
	calls     int
}

func (c *scriptedClassifier) Evaluate(ctx context.Context, template *model.LogTemplate, bundle *model.ContextBundle) (*Decision, error) {
	i := c.calls
	c.calls++
	var err error
	if i < len(c.errs) {
		err = c.errs[i]
	}
	if err != nil {
		return nil, err
	}
	if i < len(c.decisions) {
		return c.decisions[i], nil
	}
	return &Decision{Sufficient: true}, nil
}

// scriptedSelector 记录请求并返回脚本化的调用结果。
type scriptedSelector struct {
	invocations []*model.ToolInvocation
	errs        []error
	requests    []string
	delay       time.Duration
}

func (s *scriptedSelector) Select(ctx context.Context, request *model.RetrievalRequest, anchor *model.LogEntry) (*model.ToolInvocation, error) {
	i := len(s.requests)
	s.requests = append(s.requests, request.Text)
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return &model.ToolInvocation{
				Tool:   "get_logs_by_source",
				Status: model.StatusError,
				Error:  ctx.Err().Error(),
			}, nil
		}
	}
	if i < len(s.errs) && s.errs[i] != nil {
		return nil, s.errs[i]
	}
	if i < len(s.invocations) {
		return s.invocations[i], nil
	}
	return &model.ToolInvocation{Tool: "get_logs_by_source", Status: model.StatusSuccess, Payload: "lines"}, nil
}

// countingGenerator 统计生成次数。
type countingGenerator struct {
	calls   int
	bundles []*model.ContextBundle
	err     error
}

func (g *countingGenerator) Generate(ctx context.Context, bundle *model.ContextBundle) (string, error) {
	g.calls++
	g.bundles = append(g.bundles, bundle)
	if g.err != nil {
		return "", g.err
	}
	return "restart the service", nil
}

// stubKnowledge 预取用的固定返回。
type stubKnowledge struct {
	kbErr  error
	srcErr error
}

func (k *stubKnowledge) SearchKnowledge(ctx context.Context, query string, limit int, scoreFloor float64) ([]store.Snippet, error) {
	if k.kbErr != nil {
		return nil, k.kbErr
	}
	return []store.Snippet{{Text: "known issue: connection pool exhaustion", Score: 0.8}}, nil
}

func (k *stubKnowledge) SearchSource(ctx context.Context, identifier string, limit int) ([]store.Snippet, error) {
	if k.srcErr != nil {
		return nil, k.srcErr
	}
	return []store.Snippet{{Text: "func connect() { ... }", Ref: "db/pool.go"}}, nil
}

func (k *stubKnowledge) IndexKnowledge(ctx context.Context, docs []store.Document) error {
	return nil
}

func routerTemplate() *model.LogTemplate {
	return &model.LogTemplate{
		ID: 7,
		Representative: model.LogEntry{
			Message:   "connection refused to db:5432",
			Summary:   "database connection refused",
			Labels:    model.LogLabels{ServiceName: "auth-service"},
			Timestamp: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC).UnixMilli(),
		},
		MemberCount: 4,
	}
}

func testConfig() *RouterConfig {
	cfg := NewRouterConfig()
	cfg.Prefetch = false
	cfg.RoundTimeout = 5 * time.Second
	return cfg
}

func TestResolveSufficientImmediately(t *testing.T) {
	classifier := &scriptedClassifier{decisions: []*Decision{{Sufficient: true}}}
	selector := &scriptedSelector{}
	gen := &countingGenerator{}
	r := NewRouter(classifier, selector, gen, nil, testConfig())

	result, err := r.Resolve(context.Background(), routerTemplate())
	require.NoError(t, err)
	assert.Equal(t, "restart the service", result.Plan)
	assert.Equal(t, 0, result.Rounds)
	assert.Empty(t, result.Items)
	assert.Equal(t, 1, gen.calls)
	assert.Empty(t, selector.requests)
}

func TestResolveOneRetrievalRound(t *testing.T) {
	classifier := &scriptedClassifier{decisions: []*Decision{
		{Request: &model.RetrievalRequest{Text: "get logs from auth-service in the last 30 minutes"}},
		{Sufficient: true},
	}}
	selector := &scriptedSelector{}
	gen := &countingGenerator{}
	r := NewRouter(classifier, selector, gen, nil, testConfig())

	result, err := r.Resolve(context.Background(), routerTemplate())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Rounds)
	require.Len(t, result.Items, 1)
	assert.Equal(t, model.SourceLiveLogs, result.Items[0].Source)
	assert.Equal(t, model.StatusSuccess, result.Items[0].Status)
	assert.Equal(t, "lines", result.Items[0].Payload)
	assert.Equal(t, 2, classifier.calls)
	assert.Equal(t, 1, gen.calls)
}

func TestResolveForcesDoneAtMaxRounds(t *testing.T) {
	needMore := func(text string) *Decision {
		return &Decision{Request: &model.RetrievalRequest{Text: text}}
	}
	classifier := &scriptedClassifier{decisions: []*Decision{
		needMore("get logs from auth-service"),
		needMore("search logs for \"timeout\""),
		needMore("get logs from billing-service"),
		needMore("get logs from gateway"),
	}}
	selector := &scriptedSelector{}
	gen := &countingGenerator{}
	r := NewRouter(classifier, selector, gen, nil, testConfig())

	result, err := r.Resolve(context.Background(), routerTemplate())
	require.NoError(t, err)
	// 轮数耗尽后强制收束，检索只发生 MaxRounds 次
	assert.Equal(t, 3, result.Rounds)
	assert.Len(t, selector.requests, 3)
	assert.Equal(t, 1, gen.calls)
}

func TestResolveDedupForcesDone(t *testing.T) {
	// 同一请求的大小写与空白变体视为重复
	classifier := &scriptedClassifier{decisions: []*Decision{
		{Request: &model.RetrievalRequest{Text: "Get logs from auth-service"}},
		{Request: &model.RetrievalRequest{Text: "get  logs   from AUTH-SERVICE"}},
	}}
	selector := &scriptedSelector{}
	gen := &countingGenerator{}
	r := NewRouter(classifier, selector, gen, nil, testConfig())

	result, err := r.Resolve(context.Background(), routerTemplate())
	require.NoError(t, err)
	assert.Len(t, selector.requests, 1)
	assert.Equal(t, 1, result.Rounds)
	assert.Equal(t, 1, gen.calls)
}

func TestResolveToolErrorBecomesErrorItem(t *testing.T) {
	classifier := &scriptedClassifier{decisions: []*Decision{
		{Request: &model.RetrievalRequest{Text: "get logs from auth-service"}},
		{Sufficient: true},
	}}
	selector := &scriptedSelector{invocations: []*model.ToolInvocation{
		{Tool: "get_logs_by_source", Status: model.StatusError, Error: "loki: connection refused"},
	}}
	gen := &countingGenerator{}
	r := NewRouter(classifier, selector, gen, nil, testConfig())

	result, err := r.Resolve(context.Background(), routerTemplate())
	require.NoError(t, err)
	require.Len(t, result.Items, 1)
	assert.Equal(t, model.StatusError, result.Items[0].Status)
	assert.Equal(t, "loki: connection refused", result.Items[0].Error)
	// 失败条目照样进入生成阶段
	assert.Equal(t, 1, gen.calls)
}

func TestResolveRoundTimeoutBecomesErrorItem(t *testing.T) {
	classifier := &scriptedClassifier{decisions: []*Decision{
		{Request: &model.RetrievalRequest{Text: "get logs from auth-service"}},
		{Sufficient: true},
	}}
	selector := &scriptedSelector{delay: 200 * time.Millisecond}
	gen := &countingGenerator{}
	cfg := testConfig()
	cfg.RoundTimeout = 20 * time.Millisecond
	r := NewRouter(classifier, selector, gen, nil, cfg)

	result, err := r.Resolve(context.Background(), routerTemplate())
	require.NoError(t, err)
	require.Len(t, result.Items, 1)
	assert.Equal(t, model.StatusError, result.Items[0].Status)
	assert.Equal(t, 1, result.Rounds)
	assert.Equal(t, 1, gen.calls)
}

func TestResolveNonLogRequestConsumesRound(t *testing.T) {
	classifier := &scriptedClassifier{decisions: []*Decision{
		{Request: &model.RetrievalRequest{Text: "get the current CPU usage of the pod"}},
		{Sufficient: true},
	}}
	selector := &scriptedSelector{}
	gen := &countingGenerator{}
	r := NewRouter(classifier, selector, gen, nil, testConfig())

	result, err := r.Resolve(context.Background(), routerTemplate())
	require.NoError(t, err)
	// 非日志请求不触发外部调用，但记为失败条目并消耗一轮
	assert.Empty(t, selector.requests)
	require.Len(t, result.Items, 1)
	assert.Equal(t, model.StatusError, result.Items[0].Status)
	assert.Equal(t, 1, result.Rounds)
}

func TestResolveMalformedRequestForcesDone(t *testing.T) {
	classifier := &scriptedClassifier{errs: []error{ErrMalformedRequest}}
	selector := &scriptedSelector{}
	gen := &countingGenerator{}
	r := NewRouter(classifier, selector, gen, nil, testConfig())

	result, err := r.Resolve(context.Background(), routerTemplate())
	require.NoError(t, err)
	assert.Empty(t, selector.requests)
	assert.Equal(t, 1, gen.calls)
	assert.NotEmpty(t, result.Plan)
}

func TestResolveClassifierErrorConsumesRound(t *testing.T) {
	classifier := &scriptedClassifier{
		errs:      []error{errors.New("llm unavailable"), nil},
		decisions: []*Decision{nil, {Sufficient: true}},
	}
	selector := &scriptedSelector{}
	gen := &countingGenerator{}
	r := NewRouter(classifier, selector, gen, nil, testConfig())

	result, err := r.Resolve(context.Background(), routerTemplate())
	require.NoError(t, err)
	assert.Equal(t, 2, classifier.calls)
	assert.Equal(t, 1, result.Rounds)
	// 失败以 error 条目入包，下一轮提示词能看到
	require.Len(t, result.Items, 1)
	assert.Equal(t, model.StatusError, result.Items[0].Status)
	assert.Equal(t, "llm unavailable", result.Items[0].Error)
	assert.Equal(t, 1, gen.calls)
}

func TestResolveSelectorConfigurationErrorAborts(t *testing.T) {
	classifier := &scriptedClassifier{decisions: []*Decision{
		{Request: &model.RetrievalRequest{Text: "search logs"}},
	}}
	selector := &scriptedSelector{errs: []error{ErrConfiguration}}
	gen := &countingGenerator{}
	r := NewRouter(classifier, selector, gen, nil, testConfig())

	_, err := r.Resolve(context.Background(), routerTemplate())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrConfiguration)
	assert.Equal(t, 0, gen.calls)
}

func TestResolveMissingAnchorTimestampAborts(t *testing.T) {
	template := routerTemplate()
	template.Representative.Timestamp = 0
	r := NewRouter(&scriptedClassifier{}, &scriptedSelector{}, &countingGenerator{}, nil, testConfig())

	_, err := r.Resolve(context.Background(), template)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrConfiguration)
}

func TestResolveCancelledContextAborts(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	gen := &countingGenerator{}
	r := NewRouter(&scriptedClassifier{}, &scriptedSelector{}, gen, nil, testConfig())

	_, err := r.Resolve(ctx, routerTemplate())
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	// 取消时半成品 bundle 被丢弃，不会生成方案
	assert.Equal(t, 0, gen.calls)
}

func TestResolvePrefetchAttachesItems(t *testing.T) {
	classifier := &scriptedClassifier{decisions: []*Decision{{Sufficient: true}}}
	gen := &countingGenerator{}
	cfg := testConfig()
	cfg.Prefetch = true
	r := NewRouter(classifier, &scriptedSelector{}, gen, &stubKnowledge{}, cfg)

	result, err := r.Resolve(context.Background(), routerTemplate())
	require.NoError(t, err)
	// 预取不消耗轮数
	assert.Equal(t, 0, result.Rounds)
	require.Len(t, result.Items, 2)
	assert.Equal(t, model.SourceKnowledgeBase, result.Items[0].Source)
	assert.Equal(t, model.SourceRepo, result.Items[1].Source)
	assert.Contains(t, result.Items[0].Payload, "connection pool")
}

func TestResolvePrefetchFailureDoesNotAbort(t *testing.T) {
	classifier := &scriptedClassifier{decisions: []*Decision{{Sufficient: true}}}
	cfg := testConfig()
	cfg.Prefetch = true
	knowledge := &stubKnowledge{kbErr: errors.New("milvus unavailable")}
	r := NewRouter(classifier, &scriptedSelector{}, &countingGenerator{}, knowledge, cfg)

	result, err := r.Resolve(context.Background(), routerTemplate())
	require.NoError(t, err)
	require.Len(t, result.Items, 2)
	assert.Equal(t, model.StatusError, result.Items[0].Status)
	assert.Equal(t, model.StatusSuccess, result.Items[1].Status)
}

func TestResolveGeneratorErrorPropagates(t *testing.T) {
	gen := &countingGenerator{err: errors.New("llm unavailable")}
	r := NewRouter(&scriptedClassifier{}, &scriptedSelector{}, gen, nil, testConfig())

	_, err := r.Resolve(context.Background(), routerTemplate())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "plan generation failed")
}

func TestNormalizeRequest(t *testing.T) {
	assert.Equal(t, normalizeRequest("Get  Logs\tFrom X"), normalizeRequest("get logs from x"))
	assert.NotEqual(t, normalizeRequest("get logs from x"), normalizeRequest("get logs from y"))
}

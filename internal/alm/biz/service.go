package biz

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/kart-io/logger"
	"go.opentelemetry.io/otel/attribute"

	"github.com/RHEcosystemAppEng/ansible-log-analysis/internal/alm/metrics"
	"github.com/RHEcosystemAppEng/ansible-log-analysis/internal/model"
	"github.com/RHEcosystemAppEng/ansible-log-analysis/pkg/llm"
	"github.com/RHEcosystemAppEng/ansible-log-analysis/pkg/observability/tracing"
	"github.com/RHEcosystemAppEng/ansible-log-analysis/pkg/pool"
)

// tracerName 分诊管线所有 span 使用的 tracer 名。
const tracerName = "alm/triage"

// TriageService 编排完整的分诊管线：
// 摘要 -> 嵌入 -> 模板指派 -> 按模板路由 -> 方案生成。
// 同一批次内每个模板只路由一次，模板间并发执行。
type TriageService struct {
	summarizer *Summarizer
	embedder   llm.EmbeddingProvider
	clusterer  *Clusterer
	registry   *ModelRegistry
	router     *Router
	cache      *PlanCache
	workers    *pool.Pool
}

// NewTriageService 创建服务。cache 可为 nil（关闭方案缓存）。
func NewTriageService(
	summarizer *Summarizer,
	embedder llm.EmbeddingProvider,
	clusterer *Clusterer,
	registry *ModelRegistry,
	router *Router,
	cache *PlanCache,
	workers *pool.Pool,
) *TriageService {
	return &TriageService{
		summarizer: summarizer,
		embedder:   embedder,
		clusterer:  clusterer,
		registry:   registry,
		router:     router,
		cache:      cache,
		workers:    workers,
	}
}

// Triage 处理一批日志条目，返回每个模板一条的分诊结果。
// 单条失败（摘要、嵌入、路由）不拖垮批次，失败模板被跳过并记日志。
func (s *TriageService) Triage(ctx context.Context, entries []model.LogEntry) ([]model.TriageResult, error) {
	if len(entries) == 0 {
		return nil, fmt.Errorf("%w: empty batch", ErrMalformedRequest)
	}

	ctx, span := tracing.StartSpan(ctx, tracerName, "triage.batch")
	defer span.End()
	span.SetAttributes(attribute.Int("triage.batch_size", len(entries)))

	s.enrich(ctx, entries)

	vectors, err := s.embed(ctx, entries)
	if err != nil {
		tracing.RecordError(ctx, err)
		return nil, err
	}

	templates := s.assign(entries, vectors)
	span.SetAttributes(attribute.Int("triage.templates", len(templates)))

	return s.resolveAll(ctx, templates), nil
}

// Fit 用一批历史日志重新拟合聚类模型并原子切换。
// 新模型落盘成功才生效，失败时保留当前模型。
func (s *TriageService) Fit(ctx context.Context, entries []model.LogEntry) (*ClusterModel, error) {
	m := metrics.Get()
	if len(entries) == 0 {
		err := fmt.Errorf("%w: empty fit batch", ErrInsufficientData)
		m.RecordFit(err)
		return nil, err
	}

	ctx, span := tracing.StartSpan(ctx, tracerName, "triage.fit")
	defer span.End()
	span.SetAttributes(attribute.Int("triage.batch_size", len(entries)))

	s.enrich(ctx, entries)

	vectors, err := s.embed(ctx, entries)
	if err != nil {
		m.RecordFit(err)
		return nil, err
	}

	cm, err := s.clusterer.Fit(vectors)
	if err != nil {
		m.RecordFit(err)
		return nil, err
	}

	s.registry.Swap(cm)
	if err := s.registry.Save(s.registry.Current()); err != nil {
		m.RecordFit(err)
		return nil, fmt.Errorf("persist cluster model: %w", err)
	}

	m.RecordFit(nil)
	return s.registry.Current(), nil
}

// enrich 为缺摘要或分类的条目补齐。失败的摘要回退到原始消息，
// 保证每条日志都有可嵌入的文本。
func (s *TriageService) enrich(ctx context.Context, entries []model.LogEntry) {
	ctx, span := tracing.StartSpan(ctx, tracerName, "triage.enrich")
	defer span.End()

	for i := range entries {
		e := &entries[i]
		if e.Summary == "" {
			if err := s.summarizer.Summarize(ctx, e); err != nil {
				logger.Warnw("summarize failed, falling back to raw message", "error", err.Error())
			}
		}
		if e.Category == "" {
			if err := s.summarizer.Categorize(ctx, e); err != nil {
				logger.Warnw("categorize failed", "error", err.Error())
				e.Category = "unknown"
			}
		}
	}
}

func (s *TriageService) embed(ctx context.Context, entries []model.LogEntry) ([][]float32, error) {
	ctx, span := tracing.StartSpan(ctx, tracerName, "triage.embed")
	defer span.End()

	texts := make([]string, len(entries))
	for i := range entries {
		texts[i] = EmbeddingText(&entries[i])
	}
	vectors, err := s.embedder.Embed(ctx, texts)
	if err != nil {
		err = fmt.Errorf("embed batch: %w", err)
		tracing.RecordError(ctx, err)
		return nil, err
	}
	if len(vectors) != len(entries) {
		return nil, fmt.Errorf("%w: embedder returned %d vectors for %d entries",
			ErrRetrieval, len(vectors), len(entries))
	}
	return vectors, nil
}

// assign 将条目归入模板。模型缺失时整批按新颖模板处理，
// 模板 ID 由向量哈希保证幂等。
func (s *TriageService) assign(entries []model.LogEntry, vectors [][]float32) []*model.LogTemplate {
	cm := s.registry.Current()
	grouped := make(map[int64]*model.LogTemplate)

	for i := range entries {
		var tid int64
		var novel bool
		if cm == nil {
			tid, novel = NovelTemplateID(vectors[i]), true
		} else {
			tid, novel = s.clusterer.Assign(cm, vectors[i])
		}

		if t, ok := grouped[tid]; ok {
			t.MemberCount++
			continue
		}
		grouped[tid] = &model.LogTemplate{
			ID:             tid,
			Representative: entries[i],
			MemberCount:    1,
			Novel:          novel,
		}
	}

	templates := make([]*model.LogTemplate, 0, len(grouped))
	for _, t := range grouped {
		templates = append(templates, t)
	}
	// map 遍历无序，按 ID 排序保证批次结果可复现
	sort.Slice(templates, func(i, j int) bool { return templates[i].ID < templates[j].ID })
	return templates
}

// resolveAll 并发路由所有模板，结果顺序与模板顺序一致。
func (s *TriageService) resolveAll(ctx context.Context, templates []*model.LogTemplate) []model.TriageResult {
	results := make([]*model.TriageResult, len(templates))
	var wg sync.WaitGroup

	for i, template := range templates {
		i, template := i, template

		if s.cache != nil {
			if cached := s.cache.Get(ctx, template); cached != nil {
				cached.Template.MemberCount = template.MemberCount
				results[i] = cached
				continue
			}
		}

		wg.Add(1)
		run := func() {
			defer wg.Done()
			result, err := s.router.Resolve(ctx, template)
			if err != nil {
				logger.Errorw("template triage aborted",
					"template", template.ID, "error", err.Error())
				return
			}
			if s.cache != nil {
				s.cache.Set(ctx, template, result)
			}
			results[i] = result
		}

		if err := s.workers.SubmitWithContext(ctx, run); err != nil {
			wg.Done()
			logger.Errorw("triage task submit failed",
				"template", template.ID, "error", err.Error())
		}
	}
	wg.Wait()

	out := make([]model.TriageResult, 0, len(results))
	for _, r := range results {
		if r != nil {
			out = append(out, *r)
		}
	}
	return out
}

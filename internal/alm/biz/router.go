package biz

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/kart-io/logger"
	"go.opentelemetry.io/otel/attribute"

	"github.com/RHEcosystemAppEng/ansible-log-analysis/internal/alm/metrics"
	"github.com/RHEcosystemAppEng/ansible-log-analysis/internal/alm/store"
	"github.com/RHEcosystemAppEng/ansible-log-analysis/internal/alm/tools"
	"github.com/RHEcosystemAppEng/ansible-log-analysis/internal/model"
	"github.com/RHEcosystemAppEng/ansible-log-analysis/pkg/id"
	"github.com/RHEcosystemAppEng/ansible-log-analysis/pkg/observability/tracing"
)

// Classifier 充分性判定能力。
type Classifier interface {
	Evaluate(ctx context.Context, template *model.LogTemplate, bundle *model.ContextBundle) (*Decision, error)
}

// Selector 工具选择与执行能力。
type Selector interface {
	Select(ctx context.Context, request *model.RetrievalRequest, anchor *model.LogEntry) (*model.ToolInvocation, error)
}

// PlanGenerator 修复方案生成能力（外部协作者）。
type PlanGenerator interface {
	Generate(ctx context.Context, bundle *model.ContextBundle) (string, error)
}

// RouterConfig 路由器配置。
type RouterConfig struct {
	// MaxRounds 单个模板的轮数上限。
	MaxRounds int
	// RoundTimeout 每轮（一次判定或一次检索）的独立超时。
	RoundTimeout time.Duration
	// Prefetch 是否在第一轮前预取知识库与源码上下文。
	Prefetch bool
}

// NewRouterConfig 返回默认配置。
func NewRouterConfig() *RouterConfig {
	return &RouterConfig{
		MaxRounds:    3,
		RoundTimeout: 30 * time.Second,
		Prefetch:     true,
	}
}

// routerState 状态机状态。
type routerState int

const (
	stateEvaluating routerState = iota
	stateRetrieving
	stateDone
	stateAborted
)

// Router 上下文累积路由器。每个模板一个实例串行执行；
// 实例间不共享可变状态，bundle 为实例独占。
type Router struct {
	classifier Classifier
	selector   Selector
	generator  PlanGenerator
	kbTool     tools.Tool
	srcTool    tools.Tool
	config     *RouterConfig
}

// NewRouter 创建路由器。knowledge 可为 nil（关闭预取）。
func NewRouter(classifier Classifier, selector Selector, generator PlanGenerator, knowledge store.KnowledgeStore, config *RouterConfig) *Router {
	if config == nil {
		config = NewRouterConfig()
	}
	r := &Router{
		classifier: classifier,
		selector:   selector,
		generator:  generator,
		config:     config,
	}
	if knowledge != nil {
		r.kbTool = tools.NewKnowledgeSearchTool(knowledge)
		r.srcTool = tools.NewSourceRepoTool(knowledge)
	}
	return r
}

// Resolve 为一个模板执行完整的上下文累积与方案生成。
// 除配置错误外的一切每轮失败都被状态机吸收：轮数耗尽后 bundle
// 无论多空都交给生成器，模板绝不会被静默丢弃。
func (r *Router) Resolve(ctx context.Context, template *model.LogTemplate) (*model.TriageResult, error) {
	m := metrics.Get()

	ctx, span := tracing.StartSpan(ctx, tracerName, "triage.resolve")
	defer span.End()
	span.SetAttributes(
		attribute.Int64("triage.template_id", template.ID),
		attribute.Bool("triage.novel", template.Novel),
	)

	// Start：校验锚点并初始化空 bundle
	anchor := template.Representative
	if anchor.Timestamp == 0 {
		m.RecordTemplateAborted()
		err := fmt.Errorf("%w: template %d has no anchor timestamp", ErrConfiguration, template.ID)
		tracing.RecordError(ctx, err)
		return nil, err
	}

	bundle := &model.ContextBundle{
		ID:     id.NewULID(),
		Anchor: anchor,
	}

	if r.config.Prefetch && r.kbTool != nil {
		r.prefetch(ctx, bundle)
	}

	seen := make(map[string]bool)
	var pending *model.RetrievalRequest
	state := stateEvaluating

	for state != stateDone && state != stateAborted {
		if err := ctx.Err(); err != nil {
			// 取消即整体丢弃，不把半成品 bundle 交给生成器
			m.RecordTemplateAborted()
			tracing.RecordError(ctx, err)
			return nil, err
		}

		switch state {
		case stateEvaluating:
			decision, err := r.evaluateRound(ctx, template, bundle)
			switch {
			case errors.Is(err, ErrMalformedRequest):
				logger.Warnw("classifier produced malformed request, forcing done",
					"template", template.ID, "error", err.Error())
				m.RecordForcedDone()
				state = stateDone

			case err != nil:
				// 判定本身失败：记一条 error 条目再消耗一轮，
				// 下一轮提示词能看到失败，轮数上限兜底
				logger.Warnw("classifier round failed",
					"template", template.ID, "round", bundle.Round, "error", err.Error())
				bundle.Items = append(bundle.Items, model.RetrievedContextItem{
					Source:  model.SourceLiveLogs,
					Request: "evaluate context sufficiency",
					Status:  model.StatusError,
					Error:   err.Error(),
				})
				bundle.Round++
				if bundle.Round >= r.config.MaxRounds {
					state = stateDone
				}

			case decision.Sufficient:
				state = stateDone

			case bundle.Round >= r.config.MaxRounds:
				// 尽力而为：带着已有上下文收束，而不是无限阻塞
				m.RecordForcedDone()
				state = stateDone

			default:
				normalized := normalizeRequest(decision.Request.Text)
				if seen[normalized] {
					// 分类器在重复自己，强制终止防止死循环
					m.RecordForcedDone()
					state = stateDone
					break
				}
				seen[normalized] = true
				pending = decision.Request
				state = stateRetrieving
			}

		case stateRetrieving:
			item, err := r.retrieveRound(ctx, pending, &bundle.Anchor)
			if err != nil {
				// 请求无工具可匹配，属配置错误，整体中止
				m.RecordTemplateAborted()
				tracing.RecordError(ctx, err)
				return nil, err
			}
			bundle.Items = append(bundle.Items, *item)
			bundle.Round++
			if item.Status == model.StatusError {
				m.RecordRetrievalError()
			}
			pending = nil
			state = stateEvaluating
		}
	}

	// Done：生成器对每个路由实例至多调用一次
	plan, err := r.generatePlan(ctx, bundle)
	if err != nil {
		err = fmt.Errorf("plan generation failed: %w", err)
		tracing.RecordError(ctx, err)
		return nil, err
	}

	m.RecordTemplateResolved(bundle.Round, template.Novel)
	return &model.TriageResult{
		Template:   *template,
		Plan:       plan,
		Items:      bundle.Items,
		Rounds:     bundle.Round,
		ResolvedAt: time.Now(),
	}, nil
}

// evaluateRound 调用分类器，带独立超时。
func (r *Router) evaluateRound(ctx context.Context, template *model.LogTemplate, bundle *model.ContextBundle) (*Decision, error) {
	roundCtx, cancel := context.WithTimeout(ctx, r.config.RoundTimeout)
	defer cancel()

	decision, err := r.classifier.Evaluate(roundCtx, template, bundle)
	metrics.Get().RecordLLMCall(err)
	return decision, err
}

// retrieveRound 执行一次检索并生成上下文条目。
// 明显索取非日志数据的请求直接记为 error 条目，不触发外部调用。
func (r *Router) retrieveRound(ctx context.Context, request *model.RetrievalRequest, anchor *model.LogEntry) (*model.RetrievedContextItem, error) {
	if isNonLogRequest(request.Text) {
		return &model.RetrievedContextItem{
			Source:  model.SourceLiveLogs,
			Request: request.Text,
			Status:  model.StatusError,
			Error:   "request asks for non-log data (metrics, live state or secrets)",
		}, nil
	}

	roundCtx, cancel := context.WithTimeout(ctx, r.config.RoundTimeout)
	defer cancel()

	inv, err := r.selector.Select(roundCtx, request, anchor)
	if err != nil {
		return nil, err
	}

	item := &model.RetrievedContextItem{
		Source:  model.SourceLiveLogs,
		Request: request.Text,
		Status:  inv.Status,
		Payload: inv.Payload,
		Error:   inv.Error,
	}
	return item, nil
}

// generatePlan 调用生成器，带独立超时。
func (r *Router) generatePlan(ctx context.Context, bundle *model.ContextBundle) (string, error) {
	genCtx, cancel := context.WithTimeout(ctx, r.config.RoundTimeout)
	defer cancel()

	plan, err := r.generator.Generate(genCtx, bundle)
	metrics.Get().RecordLLMCall(err)
	return plan, err
}

// prefetch 在第一轮前通过预取工具附上知识库与源码上下文。
// 失败只记状态不阻断，预取不消耗轮数。
func (r *Router) prefetch(ctx context.Context, bundle *model.ContextBundle) {
	anchor := bundle.Anchor

	query := anchor.Summary
	if query == "" {
		query = anchor.Message
	}
	bundle.Items = append(bundle.Items, r.prefetchItem(ctx, r.kbTool, model.SourceKnowledgeBase,
		query, map[string]string{tools.ParamSearchText: query}, &anchor))

	identifier := anchor.Labels.ServiceName
	if identifier == "" {
		identifier = anchor.Labels.Job
	}
	if identifier == "" {
		return
	}
	bundle.Items = append(bundle.Items, r.prefetchItem(ctx, r.srcTool, model.SourceRepo,
		identifier, map[string]string{tools.ParamSource: identifier}, &anchor))
}

// prefetchItem 执行一次预取工具调用并包装为上下文条目。
func (r *Router) prefetchItem(ctx context.Context, tool tools.Tool, source model.ContextSource,
	request string, params map[string]string, anchor *model.LogEntry) model.RetrievedContextItem {
	item := model.RetrievedContextItem{
		Source:  source,
		Request: request,
	}

	prefetchCtx, cancel := context.WithTimeout(ctx, r.config.RoundTimeout)
	defer cancel()

	payload, err := tool.Invoke(prefetchCtx, anchor, params)
	if err != nil {
		item.Status = model.StatusError
		item.Error = err.Error()
		return item
	}
	item.Status = model.StatusSuccess
	item.Payload = payload
	return item
}

// normalizeRequest 大小写与空白不敏感的请求归一化，用于去重。
func normalizeRequest(text string) string {
	return strings.Join(strings.Fields(strings.ToLower(text)), " ")
}

// Package metrics 提供日志分诊服务的业务指标收集。
package metrics

import (
	"sync"
	"sync/atomic"
	"time"
)

// TriageMetrics 分诊管线业务指标。
type TriageMetrics struct {
	// 模板指标
	templatesResolved uint64 // 完成分诊的模板数
	templatesAborted  uint64 // 因配置错误中止的模板数
	templatesNovel    uint64 // 新颖模板数

	// 路由指标
	roundsTotal      uint64 // 消耗的总轮数
	roundsForcedDone uint64 // 因轮数上限或去重强制结束的次数
	retrievalErrors  uint64 // 记为 error 的检索轮数

	// LLM 调用指标
	llmCallsTotal  uint64 // LLM 总调用次数
	llmCallsErrors uint64 // LLM 调用错误次数

	// 缓存指标
	planCacheHits   uint64 // 修复方案缓存命中
	planCacheMisses uint64 // 修复方案缓存未命中

	// 拟合指标
	fitsTotal  uint64 // fit 执行次数
	fitsErrors uint64 // fit 失败次数

	startTime time.Time
}

var (
	global *TriageMetrics
	once   sync.Once
)

// Get 获取全局指标实例。
func Get() *TriageMetrics {
	once.Do(func() {
		global = &TriageMetrics{startTime: time.Now()}
	})
	return global
}

// RecordTemplateResolved 记录一次完成的模板分诊。
func (m *TriageMetrics) RecordTemplateResolved(rounds int, novel bool) {
	atomic.AddUint64(&m.templatesResolved, 1)
	atomic.AddUint64(&m.roundsTotal, uint64(rounds))
	if novel {
		atomic.AddUint64(&m.templatesNovel, 1)
	}
}

// RecordTemplateAborted 记录一次中止。
func (m *TriageMetrics) RecordTemplateAborted() {
	atomic.AddUint64(&m.templatesAborted, 1)
}

// RecordForcedDone 记录一次强制结束（轮数上限、去重或复合请求）。
func (m *TriageMetrics) RecordForcedDone() {
	atomic.AddUint64(&m.roundsForcedDone, 1)
}

// RecordRetrievalError 记录一轮失败的检索。
func (m *TriageMetrics) RecordRetrievalError() {
	atomic.AddUint64(&m.retrievalErrors, 1)
}

// RecordLLMCall 记录一次 LLM 调用。
func (m *TriageMetrics) RecordLLMCall(err error) {
	atomic.AddUint64(&m.llmCallsTotal, 1)
	if err != nil {
		atomic.AddUint64(&m.llmCallsErrors, 1)
	}
}

// RecordPlanCache 记录一次方案缓存查询。
func (m *TriageMetrics) RecordPlanCache(hit bool) {
	if hit {
		atomic.AddUint64(&m.planCacheHits, 1)
	} else {
		atomic.AddUint64(&m.planCacheMisses, 1)
	}
}

// RecordFit 记录一次聚类拟合。
func (m *TriageMetrics) RecordFit(err error) {
	atomic.AddUint64(&m.fitsTotal, 1)
	if err != nil {
		atomic.AddUint64(&m.fitsErrors, 1)
	}
}

// Snapshot 当前指标的一致性快照。
type Snapshot struct {
	TemplatesResolved uint64  `json:"templates_resolved"`
	TemplatesAborted  uint64  `json:"templates_aborted"`
	TemplatesNovel    uint64  `json:"templates_novel"`
	RoundsTotal       uint64  `json:"rounds_total"`
	RoundsForcedDone  uint64  `json:"rounds_forced_done"`
	RetrievalErrors   uint64  `json:"retrieval_errors"`
	LLMCallsTotal     uint64  `json:"llm_calls_total"`
	LLMCallsErrors    uint64  `json:"llm_calls_errors"`
	PlanCacheHits     uint64  `json:"plan_cache_hits"`
	PlanCacheMisses   uint64  `json:"plan_cache_misses"`
	FitsTotal         uint64  `json:"fits_total"`
	FitsErrors        uint64  `json:"fits_errors"`
	UptimeSeconds     float64 `json:"uptime_seconds"`
}

// GetSnapshot 读取当前指标。
func (m *TriageMetrics) GetSnapshot() Snapshot {
	return Snapshot{
		TemplatesResolved: atomic.LoadUint64(&m.templatesResolved),
		TemplatesAborted:  atomic.LoadUint64(&m.templatesAborted),
		TemplatesNovel:    atomic.LoadUint64(&m.templatesNovel),
		RoundsTotal:       atomic.LoadUint64(&m.roundsTotal),
		RoundsForcedDone:  atomic.LoadUint64(&m.roundsForcedDone),
		RetrievalErrors:   atomic.LoadUint64(&m.retrievalErrors),
		LLMCallsTotal:     atomic.LoadUint64(&m.llmCallsTotal),
		LLMCallsErrors:    atomic.LoadUint64(&m.llmCallsErrors),
		PlanCacheHits:     atomic.LoadUint64(&m.planCacheHits),
		PlanCacheMisses:   atomic.LoadUint64(&m.planCacheMisses),
		FitsTotal:         atomic.LoadUint64(&m.fitsTotal),
		FitsErrors:        atomic.LoadUint64(&m.fitsErrors),
		UptimeSeconds:     time.Since(m.startTime).Seconds(),
	}
}

// Reset 清零所有计数，仅用于测试。
func (m *TriageMetrics) Reset() {
	atomic.StoreUint64(&m.templatesResolved, 0)
	atomic.StoreUint64(&m.templatesAborted, 0)
	atomic.StoreUint64(&m.templatesNovel, 0)
	atomic.StoreUint64(&m.roundsTotal, 0)
	atomic.StoreUint64(&m.roundsForcedDone, 0)
	atomic.StoreUint64(&m.retrievalErrors, 0)
	atomic.StoreUint64(&m.llmCallsTotal, 0)
	atomic.StoreUint64(&m.llmCallsErrors, 0)
	atomic.StoreUint64(&m.planCacheHits, 0)
	atomic.StoreUint64(&m.planCacheMisses, 0)
	atomic.StoreUint64(&m.fitsTotal, 0)
	atomic.StoreUint64(&m.fitsErrors, 0)
	m.startTime = time.Now()
}

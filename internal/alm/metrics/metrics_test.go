package metrics

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func newTestMetrics() *TriageMetrics {
	m := Get()
	m.Reset()
	return m
}

func TestGetReturnsSingleton(t *testing.T) {
	m1 := Get()
	m2 := Get()

	// 应该返回同一个实例
	assert.Same(t, m1, m2)
}

func TestRecordTemplateResolved(t *testing.T) {
	m := newTestMetrics()

	m.RecordTemplateResolved(2, false)
	m.RecordTemplateResolved(3, true)

	snap := m.GetSnapshot()
	assert.Equal(t, uint64(2), snap.TemplatesResolved)
	assert.Equal(t, uint64(1), snap.TemplatesNovel)
	assert.Equal(t, uint64(5), snap.RoundsTotal)
}

func TestRecordLLMCall(t *testing.T) {
	m := newTestMetrics()

	m.RecordLLMCall(nil)
	m.RecordLLMCall(nil)
	m.RecordLLMCall(assert.AnError)

	snap := m.GetSnapshot()
	assert.Equal(t, uint64(3), snap.LLMCallsTotal)
	assert.Equal(t, uint64(1), snap.LLMCallsErrors)
}

func TestRecordPlanCache(t *testing.T) {
	m := newTestMetrics()

	m.RecordPlanCache(true)
	m.RecordPlanCache(false)
	m.RecordPlanCache(false)

	snap := m.GetSnapshot()
	assert.Equal(t, uint64(1), snap.PlanCacheHits)
	assert.Equal(t, uint64(2), snap.PlanCacheMisses)
}

func TestRecordFit(t *testing.T) {
	m := newTestMetrics()

	m.RecordFit(nil)
	m.RecordFit(assert.AnError)

	snap := m.GetSnapshot()
	assert.Equal(t, uint64(2), snap.FitsTotal)
	assert.Equal(t, uint64(1), snap.FitsErrors)
}

func TestAbortAndForcedDoneCounters(t *testing.T) {
	m := newTestMetrics()

	m.RecordTemplateAborted()
	m.RecordForcedDone()
	m.RecordForcedDone()
	m.RecordRetrievalError()

	snap := m.GetSnapshot()
	assert.Equal(t, uint64(1), snap.TemplatesAborted)
	assert.Equal(t, uint64(2), snap.RoundsForcedDone)
	assert.Equal(t, uint64(1), snap.RetrievalErrors)
}

// 并发写入不应丢计数。
func TestConcurrentRecording(t *testing.T) {
	m := newTestMetrics()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				m.RecordTemplateResolved(1, false)
				m.RecordLLMCall(nil)
			}
		}()
	}
	wg.Wait()

	snap := m.GetSnapshot()
	assert.Equal(t, uint64(1000), snap.TemplatesResolved)
	assert.Equal(t, uint64(1000), snap.RoundsTotal)
	assert.Equal(t, uint64(1000), snap.LLMCallsTotal)
}

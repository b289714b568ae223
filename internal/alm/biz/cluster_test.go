package biz

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RHEcosystemAppEng/ansible-log-analysis/internal/model"
)

// 两个近邻向量加一个离群向量，对应两条 "user id already exists"
// 日志和一条 "password is wrong" 日志的嵌入布局。
func scenarioVectors() [][]float32 {
	return [][]float32{
		{1, 0.05, 0},
		{1, 0.1, 0},
		{0, 0.05, 1},
	}
}

func TestFitGroupsNearbyVectors(t *testing.T) {
	c := NewClusterer(nil)

	m, err := c.Fit(scenarioVectors())
	require.NoError(t, err)

	assert.Len(t, m.Centroids, 2)
	assert.Equal(t, m.Assignments[0], m.Assignments[1])
	assert.NotEqual(t, m.Assignments[0], m.Assignments[2])

	var total int64
	for _, n := range m.Counts {
		total += n
	}
	assert.Equal(t, int64(3), total)
}

func TestFitInsufficientData(t *testing.T) {
	c := NewClusterer(nil)

	_, err := c.Fit(nil)
	assert.ErrorIs(t, err, ErrInsufficientData)

	_, err = c.Fit([][]float32{{1, 0}})
	assert.ErrorIs(t, err, ErrInsufficientData)
}

func TestFitDeterministic(t *testing.T) {
	c := NewClusterer(nil)
	probe := []float32{1, 0.07, 0}

	m1, err := c.Fit(scenarioVectors())
	require.NoError(t, err)
	m2, err := c.Fit(scenarioVectors())
	require.NoError(t, err)

	assert.Equal(t, m1.Assignments, m2.Assignments)

	id1, novel1 := c.Assign(m1, probe)
	id2, novel2 := c.Assign(m2, probe)
	assert.Equal(t, id1, id2)
	assert.Equal(t, novel1, novel2)
}

func TestAssignIdempotent(t *testing.T) {
	c := NewClusterer(nil)
	m, err := c.Fit(scenarioVectors())
	require.NoError(t, err)

	probe := []float32{0, 0.05, 1}
	first, _ := c.Assign(m, probe)
	second, _ := c.Assign(m, probe)
	assert.Equal(t, first, second)
}

func TestAssignNovelVector(t *testing.T) {
	c := NewClusterer(nil)
	m, err := c.Fit(scenarioVectors())
	require.NoError(t, err)

	// 与两个簇中心都近乎正交
	outlier := []float32{0, 1, 0}
	id, novel := c.Assign(m, outlier)
	assert.True(t, novel)

	again, novelAgain := c.Assign(m, outlier)
	assert.True(t, novelAgain)
	assert.Equal(t, id, again)

	// 新模板 id 与拟合簇的小整数 id 空间不重叠
	assert.GreaterOrEqual(t, id, int64(1)<<62)
}

func TestEmbeddingTextPrefersSummaryTail(t *testing.T) {
	entry := &model.LogEntry{
		Message: "raw line",
		Summary: "summary text",
	}
	assert.Equal(t, "summary text", EmbeddingText(entry))

	entry.Summary = ""
	assert.Equal(t, "raw line", EmbeddingText(entry))

	long := strings.Repeat("x", 300) + "tail"
	entry.Summary = long
	got := EmbeddingText(entry)
	assert.Len(t, []rune(got), embedTailRunes)
	assert.True(t, strings.HasSuffix(got, "tail"))
}

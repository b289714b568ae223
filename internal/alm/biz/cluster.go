package biz

import (
	"fmt"
	"hash/fnv"
	"math"
	"strings"

	"github.com/RHEcosystemAppEng/ansible-log-analysis/internal/model"
)

// embedTailRunes 参与嵌入的摘要尾部长度。
// 摘要尾部通常携带最具区分度的错误细节。
const embedTailRunes = 256

// EmbeddingText 返回参与嵌入的文本子集。
// fit 与 assign 两条路径必须使用同一份预处理，任何不对称都会
// 让训练与在线分派产生不同的模板边界，这里是唯一的裁剪点。
func EmbeddingText(entry *model.LogEntry) string {
	text := entry.Summary
	if text == "" {
		text = entry.Message
	}
	text = strings.TrimSpace(text)

	runes := []rune(text)
	if len(runes) > embedTailRunes {
		runes = runes[len(runes)-embedTailRunes:]
	}
	return string(runes)
}

// ClustererConfig 模板聚类器配置。
type ClustererConfig struct {
	// MergeThreshold 凝聚合并的余弦距离上限。
	MergeThreshold float64
	// NoveltyThreshold assign 判定新模板的距离阈值。
	NoveltyThreshold float64
	// MinClusterSize fit 要求的最小输入规模。
	MinClusterSize int
	// Seed 随机种子。凝聚聚类本身按输入顺序确定，种子仍被记录，
	// 以便换用带随机初始化的算法时保持可复现。
	Seed int64
}

// NewClustererConfig 返回默认配置。
func NewClustererConfig() *ClustererConfig {
	return &ClustererConfig{
		MergeThreshold:   0.5,
		NoveltyThreshold: 0.55,
		MinClusterSize:   2,
		Seed:             42,
	}
}

// ClusterModel 拟合完成的聚类状态。fit 结束后只读，
// 所有并发 assign 共享同一个快照。
type ClusterModel struct {
	// Version 快照版本（ULID）。
	Version string `json:"version"`
	// Seed 拟合时记录的随机种子。
	Seed int64 `json:"seed"`
	// MergeThreshold 拟合时使用的合并阈值。
	MergeThreshold float64 `json:"merge_threshold"`
	// NoveltyThreshold 新模板判定阈值。
	NoveltyThreshold float64 `json:"novelty_threshold"`
	// Centroids 各簇中心（单位向量）。下标即模板 id。
	Centroids [][]float32 `json:"centroids"`
	// Counts 拟合批次中各簇的成员数。
	Counts []int64 `json:"counts"`
	// Assignments 拟合输入中每个向量的簇下标，顺序与输入一致。
	Assignments []int `json:"assignments"`
}

// Clusterer 模板聚类引擎，fit 和 assign 两种模式共用一套距离度量。
type Clusterer struct {
	config *ClustererConfig
}

// NewClusterer 创建聚类引擎实例。
func NewClusterer(config *ClustererConfig) *Clusterer {
	if config == nil {
		config = NewClustererConfig()
	}
	return &Clusterer{config: config}
}

// Fit 对一批向量做凝聚式平均链接聚类。
// 相同输入顺序产生相同结果：合并顺序按（最小距离，最小下标）唯一确定。
// 输入为空或小于 MinClusterSize 时返回 ErrInsufficientData。
func (c *Clusterer) Fit(vectors [][]float32) (*ClusterModel, error) {
	if len(vectors) == 0 || len(vectors) < c.config.MinClusterSize {
		return nil, fmt.Errorf("%w: got %d vectors, need at least %d",
			ErrInsufficientData, len(vectors), c.config.MinClusterSize)
	}

	dim := len(vectors[0])
	normalized := make([][]float32, len(vectors))
	for i, v := range vectors {
		if len(v) != dim {
			return nil, fmt.Errorf("%w: vector %d has dimension %d, expected %d",
				ErrInsufficientData, i, len(v), dim)
		}
		normalized[i] = normalize(v)
	}

	// 每个向量起始为单独一簇，members 保存原始下标。
	clusters := make([][]int, len(normalized))
	for i := range normalized {
		clusters[i] = []int{i}
	}

	// 平均链接：簇间距离 = 成员两两余弦距离的平均值。
	for len(clusters) > 1 {
		bestI, bestJ := -1, -1
		bestDist := math.MaxFloat64

		for i := 0; i < len(clusters); i++ {
			for j := i + 1; j < len(clusters); j++ {
				d := averageLinkage(normalized, clusters[i], clusters[j])
				if d < bestDist {
					bestDist = d
					bestI, bestJ = i, j
				}
			}
		}

		if bestDist > c.config.MergeThreshold {
			break
		}

		clusters[bestI] = append(clusters[bestI], clusters[bestJ]...)
		clusters = append(clusters[:bestJ], clusters[bestJ+1:]...)
	}

	model := &ClusterModel{
		Seed:             c.config.Seed,
		MergeThreshold:   c.config.MergeThreshold,
		NoveltyThreshold: c.config.NoveltyThreshold,
		Centroids:        make([][]float32, len(clusters)),
		Counts:           make([]int64, len(clusters)),
		Assignments:      make([]int, len(vectors)),
	}

	for id, members := range clusters {
		model.Centroids[id] = centroid(normalized, members, dim)
		model.Counts[id] = int64(len(members))
		for _, m := range members {
			model.Assignments[m] = id
		}
	}

	return model, nil
}

// Assign 把一个向量分派到最近的簇。
// 最小距离超过 NoveltyThreshold 时报告新模板，并铸造一个由向量内容
// 决定的稳定 id：同一向量反复 assign 得到同一个 id。
func (c *Clusterer) Assign(m *ClusterModel, vector []float32) (templateID int64, novel bool) {
	v := normalize(vector)

	best := -1
	bestDist := math.MaxFloat64
	for id, centroid := range m.Centroids {
		d := cosineDistance(v, centroid)
		if d < bestDist {
			bestDist = d
			best = id
		}
	}

	if best < 0 || bestDist > m.NoveltyThreshold {
		return NovelTemplateID(vector), true
	}
	return int64(best), false
}

// NovelTemplateID 为新模板铸造确定性 id。
// FNV-64a 哈希向量内容并置最高位，与拟合簇的小整数 id 空间隔离。
func NovelTemplateID(vector []float32) int64 {
	h := fnv.New64a()
	var buf [4]byte
	for _, f := range vector {
		bits := math.Float32bits(f)
		buf[0] = byte(bits)
		buf[1] = byte(bits >> 8)
		buf[2] = byte(bits >> 16)
		buf[3] = byte(bits >> 24)
		_, _ = h.Write(buf[:])
	}
	return int64(h.Sum64()&0x7fffffffffffffff) | (1 << 62)
}

// averageLinkage 两簇成员两两余弦距离的平均值。
func averageLinkage(vectors [][]float32, a, b []int) float64 {
	var sum float64
	for _, i := range a {
		for _, j := range b {
			sum += cosineDistance(vectors[i], vectors[j])
		}
	}
	return sum / float64(len(a)*len(b))
}

// centroid 成员向量的均值，再归一化为单位向量。
func centroid(vectors [][]float32, members []int, dim int) []float32 {
	sum := make([]float32, dim)
	for _, m := range members {
		for d, val := range vectors[m] {
			sum[d] += val
		}
	}
	n := float32(len(members))
	for d := range sum {
		sum[d] /= n
	}
	return normalize(sum)
}

// cosineDistance 1 - 余弦相似度。输入应已归一化。
func cosineDistance(a, b []float32) float64 {
	var dot float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
	}
	return 1 - dot
}

// normalize 归一化为单位向量。零向量原样返回。
func normalize(v []float32) []float32 {
	var sum float64
	for _, f := range v {
		sum += float64(f) * float64(f)
	}
	if sum == 0 {
		return v
	}
	norm := float32(math.Sqrt(sum))
	out := make([]float32, len(v))
	for i, f := range v {
		out[i] = f / norm
	}
	return out
}

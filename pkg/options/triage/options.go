// Package triage provides configuration options for the log triage core:
// template clustering, the context accumulation router and the worker pool.
package triage

import (
	"fmt"
	"time"

	"github.com/RHEcosystemAppEng/ansible-log-analysis/pkg/options"
	"github.com/spf13/pflag"
)

var _ options.IOptions = (*Options)(nil)

// Options contains triage-specific configuration.
type Options struct {
	// MergeThreshold 聚类合并的平均连锁距离阈值。
	MergeThreshold float64 `json:"merge-threshold" mapstructure:"merge-threshold"`

	// NoveltyThreshold 新模板判定的余弦距离阈值。
	NoveltyThreshold float64 `json:"novelty-threshold" mapstructure:"novelty-threshold"`

	// MinClusterSize 拟合所需的最小样本数。
	MinClusterSize int `json:"min-cluster-size" mapstructure:"min-cluster-size"`

	// MaxRounds 单个模板的上下文检索轮数上限。
	MaxRounds int `json:"max-rounds" mapstructure:"max-rounds"`

	// RoundTimeout 每轮判定或检索的独立超时。
	RoundTimeout time.Duration `json:"round-timeout" mapstructure:"round-timeout"`

	// Prefetch 是否在首轮前预取知识库与源码上下文。
	Prefetch bool `json:"prefetch" mapstructure:"prefetch"`

	// KnowledgeCollection 知识库使用的 Milvus 集合名。
	KnowledgeCollection string `json:"knowledge-collection" mapstructure:"knowledge-collection"`

	// SourceCollection 源码片段使用的 Milvus 集合名。
	SourceCollection string `json:"source-collection" mapstructure:"source-collection"`

	// EmbeddingDim is the dimension of embedding vectors.
	EmbeddingDim int `json:"embedding-dim" mapstructure:"embedding-dim"`

	// SnapshotPath 聚类模型快照文件位置。
	SnapshotPath string `json:"snapshot-path" mapstructure:"snapshot-path"`

	// WatchSnapshot 是否监听快照文件并热加载。
	WatchSnapshot bool `json:"watch-snapshot" mapstructure:"watch-snapshot"`

	// WorkerCapacity 模板路由的最大并发数。
	WorkerCapacity int `json:"worker-capacity" mapstructure:"worker-capacity"`
}

// NewOptions creates new Options with defaults.
func NewOptions() *Options {
	return &Options{
		MergeThreshold:      0.5,
		NoveltyThreshold:    0.55,
		MinClusterSize:      2,
		MaxRounds:           3,
		RoundTimeout:        30 * time.Second,
		Prefetch:            true,
		KnowledgeCollection: "alm_knowledge",
		SourceCollection:    "alm_source",
		EmbeddingDim:        768, // nomic-embed-text dimension
		SnapshotPath:        "_output/alm/cluster_model.json",
		WatchSnapshot:       true,
		WorkerCapacity:      16,
	}
}

// AddFlags adds flags to the flagset.
func (o *Options) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	p := options.Join(prefixes...)
	fs.Float64Var(&o.MergeThreshold, p+"triage.merge-threshold", o.MergeThreshold, "Average-linkage distance threshold for cluster merging.")
	fs.Float64Var(&o.NoveltyThreshold, p+"triage.novelty-threshold", o.NoveltyThreshold, "Cosine distance threshold for novel template detection.")
	fs.IntVar(&o.MinClusterSize, p+"triage.min-cluster-size", o.MinClusterSize, "Minimum number of samples required to fit the model.")
	fs.IntVar(&o.MaxRounds, p+"triage.max-rounds", o.MaxRounds, "Maximum context retrieval rounds per template.")
	fs.DurationVar(&o.RoundTimeout, p+"triage.round-timeout", o.RoundTimeout, "Timeout for each evaluation or retrieval round.")
	fs.BoolVar(&o.Prefetch, p+"triage.prefetch", o.Prefetch, "Prefetch knowledge base and source context before the first round.")
	fs.StringVar(&o.KnowledgeCollection, p+"triage.knowledge-collection", o.KnowledgeCollection, "Milvus collection for the knowledge base.")
	fs.StringVar(&o.SourceCollection, p+"triage.source-collection", o.SourceCollection, "Milvus collection for source snippets.")
	fs.IntVar(&o.EmbeddingDim, p+"triage.embedding-dim", o.EmbeddingDim, "Embedding vector dimension.")
	fs.StringVar(&o.SnapshotPath, p+"triage.snapshot-path", o.SnapshotPath, "Cluster model snapshot file path.")
	fs.BoolVar(&o.WatchSnapshot, p+"triage.watch-snapshot", o.WatchSnapshot, "Hot-reload the snapshot file on change.")
	fs.IntVar(&o.WorkerCapacity, p+"triage.worker-capacity", o.WorkerCapacity, "Maximum concurrent template routings.")
}

// Validate validates the options.
func (o *Options) Validate() []error {
	if o == nil {
		return nil
	}

	var errs []error
	if o.MergeThreshold <= 0 || o.MergeThreshold >= 1 {
		errs = append(errs, fmt.Errorf("triage merge-threshold must be in (0, 1)"))
	}
	if o.NoveltyThreshold <= 0 || o.NoveltyThreshold >= 1 {
		errs = append(errs, fmt.Errorf("triage novelty-threshold must be in (0, 1)"))
	}
	if o.MinClusterSize < 2 {
		errs = append(errs, fmt.Errorf("triage min-cluster-size must be at least 2"))
	}
	if o.MaxRounds <= 0 {
		errs = append(errs, fmt.Errorf("triage max-rounds must be positive"))
	}
	if o.RoundTimeout <= 0 {
		errs = append(errs, fmt.Errorf("triage round-timeout must be positive"))
	}
	if o.EmbeddingDim <= 0 {
		errs = append(errs, fmt.Errorf("triage embedding-dim must be positive"))
	}
	if o.WorkerCapacity <= 0 {
		errs = append(errs, fmt.Errorf("triage worker-capacity must be positive"))
	}
	return errs
}

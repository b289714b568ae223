// Package model defines the data models for the application.
package model

import (
	"time"
)

// LogLevel is the detected severity of a log entry.
type LogLevel string

const (
	LevelError   LogLevel = "error"
	LevelWarn    LogLevel = "warn"
	LevelInfo    LogLevel = "info"
	LevelDebug   LogLevel = "debug"
	LevelUnknown LogLevel = "unknown"
)

// LogLabels holds the fixed-key metadata attached to a single log entry
// by the ingestion side. Values are free text.
type LogLabels struct {
	DetectedLevel LogLevel `json:"detected_level,omitempty"`
	Filename      string   `json:"filename,omitempty"`
	Job           string   `json:"job,omitempty"`
	ServiceName   string   `json:"service_name,omitempty"`
}

// LogEntry is one ingested log line. It is owned by the ingestion
// collaborator and immutable once created; the triage core only reads it.
type LogEntry struct {
	// Message 原始日志文本。
	Message string `json:"message"`
	// Labels 日志标签（固定键集合）。
	Labels LogLabels `json:"labels"`
	// Timestamp 日志时间戳（epoch 毫秒）。
	Timestamp int64 `json:"timestamp"`

	// Summary is the LLM-produced summary of the message, populated by
	// the triage pipeline before clustering.
	Summary string `json:"summary,omitempty"`
	// Category is the expert classification of the entry.
	Category string `json:"category,omitempty"`
}

// Time returns the entry timestamp as time.Time.
func (e *LogEntry) Time() time.Time {
	return time.UnixMilli(e.Timestamp)
}

// LogTemplate is a cluster identity: a stable id, the representative
// entry (never replaced once the cluster exists) and a member count.
type LogTemplate struct {
	// ID 模板 ID。拟合簇使用簇下标；新颖模板使用向量哈希。
	ID int64 `json:"id"`
	// Representative 代表性日志（首个成员）。
	Representative LogEntry `json:"representative"`
	// MemberCount 成员数量。
	MemberCount int `json:"member_count"`
	// Novel reports whether the template was minted outside the fitted model.
	Novel bool `json:"novel,omitempty"`
}

// ContextSource identifies which external capability produced a
// retrieved context item.
type ContextSource string

const (
	SourceLiveLogs      ContextSource = "live-logs"
	SourceKnowledgeBase ContextSource = "knowledge-base"
	SourceRepo          ContextSource = "source-repo"
)

// ItemStatus is the outcome of one retrieval.
type ItemStatus string

const (
	StatusSuccess ItemStatus = "success"
	StatusError   ItemStatus = "error"
)

// RetrievedContextItem is one piece of evidence accumulated for a
// template, successful or not. Failed retrievals are recorded so the
// classifier sees them and does not re-request the same thing.
type RetrievedContextItem struct {
	Source  ContextSource `json:"source"`
	Request string        `json:"request"`
	Payload string        `json:"payload,omitempty"`
	Status  ItemStatus    `json:"status"`
	Error   string        `json:"error,omitempty"`
}

// ContextBundle is the accumulated evidence for one template's
// resolution attempt. It is exclusively owned by a single router
// instance and never shared between concurrent instances.
type ContextBundle struct {
	// ID 上下文包 ID（ULID）。
	ID string `json:"id"`
	// Anchor 锚点日志（模板代表项）。
	Anchor LogEntry `json:"anchor"`
	// Items 已收集的上下文（含失败项），按轮次追加。
	Items []RetrievedContextItem `json:"items"`
	// Round 已消耗的轮数。
	Round int `json:"round"`
}

// SucceededItems returns the items whose retrieval succeeded,
// preserving acquisition order.
func (b *ContextBundle) SucceededItems() []RetrievedContextItem {
	items := make([]RetrievedContextItem, 0, len(b.Items))
	for _, it := range b.Items {
		if it.Status == StatusSuccess {
			items = append(items, it)
		}
	}
	return items
}

// RetrievalRequest is one natural-language retrieval ask plus the log
// timestamp it is relative to. Stateless, single use.
type RetrievalRequest struct {
	Text            string `json:"text"`
	AnchorTimestamp int64  `json:"anchor_timestamp"`
}

// ToolInvocation records one concrete retrieval action: the selected
// tool, extracted parameters and the external call's outcome. There is
// exactly one invocation per retrieval request.
type ToolInvocation struct {
	Tool    string            `json:"tool"`
	Params  map[string]string `json:"params,omitempty"`
	Status  ItemStatus        `json:"status"`
	Payload string            `json:"payload,omitempty"`
	Error   string            `json:"error,omitempty"`
}

// TriageResult is the user-visible outcome for one template: the
// remediation plan plus the evidence that informed it. A template whose
// context gathering failed entirely still carries a plan derived from
// the anchor alone, distinguishable by an empty item list.
type TriageResult struct {
	Template   LogTemplate            `json:"template"`
	Plan       string                 `json:"plan"`
	Items      []RetrievedContextItem `json:"items"`
	Rounds     int                    `json:"rounds"`
	FromCache  bool                   `json:"from_cache,omitempty"`
	ResolvedAt time.Time              `json:"resolved_at"`
}

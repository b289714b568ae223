package biz

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RHEcosystemAppEng/ansible-log-analysis/internal/model"
	"github.com/RHEcosystemAppEng/ansible-log-analysis/pkg/llm"
)

// scriptedChat 依次返回预设回复。
type scriptedChat struct {
	replies []string
	err     error
	calls   int
	prompts []string
}

func (s *scriptedChat) Chat(_ context.Context, _ []llm.Message) (string, error) {
	return "", nil
}

func (s *scriptedChat) Generate(_ context.Context, prompt string, _ string) (string, error) {
	s.prompts = append(s.prompts, prompt)
	if s.err != nil {
		return "", s.err
	}
	idx := s.calls
	s.calls++
	if idx >= len(s.replies) {
		idx = len(s.replies) - 1
	}
	return s.replies[idx], nil
}

func (s *scriptedChat) Name() string { return "scripted" }

func testTemplate() *model.LogTemplate {
	return &model.LogTemplate{
		ID: 7,
		Representative: model.LogEntry{
			Message:   "error: user id 10 already exists",
			Summary:   "duplicate user id on create",
			Labels:    model.LogLabels{Filename: "app.log", ServiceName: "user-svc", DetectedLevel: model.LevelError},
			Timestamp: 1700000000000,
		},
	}
}

func testBundle() *model.ContextBundle {
	tpl := testTemplate()
	return &model.ContextBundle{ID: "b1", Anchor: tpl.Representative}
}

func TestEvaluateSufficient(t *testing.T) {
	chat := &scriptedChat{replies: []string{`{"sufficient": true}`}}
	c := NewSufficiencyClassifier(chat)

	d, err := c.Evaluate(context.Background(), testTemplate(), testBundle())
	require.NoError(t, err)
	assert.True(t, d.Sufficient)
}

func TestEvaluateNeedsMoreCarriesAnchorTimestamp(t *testing.T) {
	chat := &scriptedChat{replies: []string{
		`{"sufficient": false, "request": "Get error logs from auth-service in the last 30 minutes"}`,
	}}
	c := NewSufficiencyClassifier(chat)
	bundle := testBundle()

	d, err := c.Evaluate(context.Background(), testTemplate(), bundle)
	require.NoError(t, err)
	require.False(t, d.Sufficient)
	assert.Equal(t, bundle.Anchor.Timestamp, d.Request.AnchorTimestamp)
	assert.Contains(t, d.Request.Text, "auth-service")
}

func TestEvaluateToleratesCodeFence(t *testing.T) {
	chat := &scriptedChat{replies: []string{
		"Here is my decision:\n```json\n{\"sufficient\": false, \"request\": \"search logs containing 'timeout'\"}\n```",
	}}
	c := NewSufficiencyClassifier(chat)

	d, err := c.Evaluate(context.Background(), testTemplate(), testBundle())
	require.NoError(t, err)
	assert.False(t, d.Sufficient)
}

func TestEvaluateCompoundRequestIsMalformed(t *testing.T) {
	chat := &scriptedChat{replies: []string{
		`{"sufficient": false, "request": "Get logs from auth-service and then search logs for timeout"}`,
	}}
	c := NewSufficiencyClassifier(chat)

	_, err := c.Evaluate(context.Background(), testTemplate(), testBundle())
	assert.ErrorIs(t, err, ErrMalformedRequest)
}

func TestEvaluateGarbageOutputIsMalformed(t *testing.T) {
	chat := &scriptedChat{replies: []string{"I cannot decide, sorry."}}
	c := NewSufficiencyClassifier(chat)

	_, err := c.Evaluate(context.Background(), testTemplate(), testBundle())
	assert.ErrorIs(t, err, ErrMalformedRequest)
}

func TestEvaluateEmptyRequestFallsBackToSufficient(t *testing.T) {
	chat := &scriptedChat{replies: []string{`{"sufficient": false, "request": "  "}`}}
	c := NewSufficiencyClassifier(chat)

	d, err := c.Evaluate(context.Background(), testTemplate(), testBundle())
	require.NoError(t, err)
	assert.True(t, d.Sufficient)
}

func TestEvaluatePromptIncludesFailedItems(t *testing.T) {
	chat := &scriptedChat{replies: []string{`{"sufficient": true}`}}
	c := NewSufficiencyClassifier(chat)

	bundle := testBundle()
	bundle.Items = append(bundle.Items, model.RetrievedContextItem{
		Source:  model.SourceLiveLogs,
		Request: "get logs from db-service in the last 10 minutes",
		Status:  model.StatusError,
		Error:   "query timeout",
	})

	_, err := c.Evaluate(context.Background(), testTemplate(), bundle)
	require.NoError(t, err)

	require.Len(t, chat.prompts, 1)
	assert.Contains(t, chat.prompts[0], "FAILED: query timeout")
	assert.Contains(t, chat.prompts[0], "do not request this again")
}

func TestIsCompoundRequest(t *testing.T) {
	tests := []struct {
		text string
		want bool
	}{
		{"Get error logs from auth-service in the last 30 minutes", false},
		{"get logs and then search for timeouts", true},
		{"fetch logs from a; also check b", true},
		{"search for errors as well as warnings", true},
		{"find lines mentioning errors and warnings", false},
		{"1. get logs\n2. search knowledge base", true},
		// 引号里的连接词不触发
		{`search logs containing "stop and then restart"`, false},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, isCompoundRequest(tt.text), "text: %s", tt.text)
	}
}

func TestIsNonLogRequest(t *testing.T) {
	assert.True(t, isNonLogRequest("what is the current cpu usage of the host"))
	assert.True(t, isNonLogRequest("get the api key for the service"))
	assert.False(t, isNonLogRequest("get error logs from auth-service"))
	// 引号里的敏感词不触发
	assert.False(t, isNonLogRequest(`search logs containing "password of user x is wrong"`))
}

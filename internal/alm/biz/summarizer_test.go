package biz

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RHEcosystemAppEng/ansible-log-analysis/internal/model"
)

func TestSummarizeFillsSummary(t *testing.T) {
	chat := &scriptedChat{replies: []string{"database connection refused on auth-service"}}
	s := NewSummarizer(chat)

	entry := &model.LogEntry{Message: "2025-06-01 dial tcp db:5432: connection refused"}
	require.NoError(t, s.Summarize(context.Background(), entry))
	assert.Equal(t, "database connection refused on auth-service", entry.Summary)
	assert.Contains(t, chat.prompts[0], "connection refused")
}

func TestSummarizeErrorLeavesEntryUntouched(t *testing.T) {
	s := NewSummarizer(&scriptedChat{err: errors.New("llm down")})
	entry := &model.LogEntry{Message: "boom"}
	assert.Error(t, s.Summarize(context.Background(), entry))
	assert.Empty(t, entry.Summary)
}

func TestCategorizeConstrainsToKnownSet(t *testing.T) {
	chat := &scriptedChat{replies: []string{"Networking."}}
	s := NewSummarizer(chat)

	entry := &model.LogEntry{Message: "dial tcp: i/o timeout"}
	require.NoError(t, s.Categorize(context.Background(), entry))
	assert.Equal(t, "networking", entry.Category)
}

func TestNormalizeCategory(t *testing.T) {
	cases := map[string]string{
		"storage":                          "storage",
		"  Storage \n":                     "storage",
		"\"authentication\"":               "authentication",
		"the category is infrastructure":   "infrastructure",
		"no idea, maybe quantum mechanics": "unknown",
		"":                                 "unknown",
	}
	for in, want := range cases {
		assert.Equal(t, want, normalizeCategory(in), "input %q", in)
	}
}

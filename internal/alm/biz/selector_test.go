package biz

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RHEcosystemAppEng/ansible-log-analysis/internal/alm/tools"
	"github.com/RHEcosystemAppEng/ansible-log-analysis/internal/model"
)

// fakeTool 记录调用并返回预设结果。
type fakeTool struct {
	name    string
	calls   int
	params  map[string]string
	payload string
	err     error
}

func (f *fakeTool) Name() string { return f.name }

func (f *fakeTool) Invoke(_ context.Context, _ *model.LogEntry, params map[string]string) (string, error) {
	f.calls++
	f.params = params
	if f.err != nil {
		return "", f.err
	}
	return f.payload, nil
}

func newFakeRegistry() (*tools.Registry, *fakeTool, *fakeTool, *fakeTool) {
	bySource := &fakeTool{name: tools.NameLogsBySource, payload: "source logs"}
	byText := &fakeTool{name: tools.NameSearchLogsByText, payload: "matched logs"}
	around := &fakeTool{name: tools.NameLinesAroundAnchor, payload: "context lines"}
	return tools.NewRegistry(bySource, byText, around), bySource, byText, around
}

func anchorEntry() *model.LogEntry {
	return &model.LogEntry{
		Message:   "error: user id 10 already exists",
		Labels:    model.LogLabels{Filename: "app.log", ServiceName: "user-svc"},
		Timestamp: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC).UnixMilli(),
	}
}

func TestSelectNamedSourceWithWindow(t *testing.T) {
	registry, bySource, byText, around := newFakeRegistry()
	s := NewToolSelector(registry)
	anchor := anchorEntry()

	inv, err := s.Select(context.Background(), &model.RetrievalRequest{
		Text:            "Get error logs from auth-service in the last 30 minutes",
		AnchorTimestamp: anchor.Timestamp,
	}, anchor)
	require.NoError(t, err)

	assert.Equal(t, tools.NameLogsBySource, inv.Tool)
	assert.Equal(t, model.StatusSuccess, inv.Status)
	assert.Equal(t, 1, bySource.calls)
	assert.Zero(t, byText.calls)
	assert.Zero(t, around.calls)

	assert.Equal(t, "auth-service", bySource.params[tools.ParamSource])
	start, _ := time.Parse(time.RFC3339, bySource.params[tools.ParamStart])
	end, _ := time.Parse(time.RFC3339, bySource.params[tools.ParamEnd])
	assert.Equal(t, anchor.Time().UTC(), end.UTC())
	assert.Equal(t, anchor.Time().Add(-30*time.Minute).UTC(), start.UTC())
}

func TestSelectLocalContextDefaultLines(t *testing.T) {
	registry, _, _, around := newFakeRegistry()
	s := NewToolSelector(registry)
	anchor := anchorEntry()

	inv, err := s.Select(context.Background(), &model.RetrievalRequest{
		Text:            "get context before this failure",
		AnchorTimestamp: anchor.Timestamp,
	}, anchor)
	require.NoError(t, err)

	assert.Equal(t, tools.NameLinesAroundAnchor, inv.Tool)
	assert.Equal(t, 1, around.calls)
	// 未指定行数时不传参数，默认值由工具决定
	assert.Empty(t, around.params[tools.ParamLineCount])
}

func TestSelectSearchTextWithEmbeddedJSON(t *testing.T) {
	registry, _, byText, _ := newFakeRegistry()
	s := NewToolSelector(registry)
	anchor := anchorEntry()

	inv, err := s.Select(context.Background(), &model.RetrievalRequest{
		Text:            `search logs containing '{"user": 10, "op": "create", "msg": "id already exists"}'`,
		AnchorTimestamp: anchor.Timestamp,
	}, anchor)
	require.NoError(t, err)

	assert.Equal(t, tools.NameSearchLogsByText, inv.Tool)
	assert.Equal(t, 1, byText.calls)
	assert.Equal(t, `{"user": 10, "op": "create", "msg": "id already exists"}`,
		byText.params[tools.ParamSearchText])
}

func TestSelectNoToolMatches(t *testing.T) {
	registry, _, _, _ := newFakeRegistry()
	s := NewToolSelector(registry)
	anchor := anchorEntry()

	_, err := s.Select(context.Background(), &model.RetrievalRequest{
		Text:            "please help",
		AnchorTimestamp: anchor.Timestamp,
	}, anchor)
	assert.ErrorIs(t, err, ErrConfiguration)
}

func TestSelectSurfacesToolErrorInInvocation(t *testing.T) {
	registry, bySource, _, _ := newFakeRegistry()
	bySource.err = assert.AnError
	s := NewToolSelector(registry)
	anchor := anchorEntry()

	inv, err := s.Select(context.Background(), &model.RetrievalRequest{
		Text:            "Get logs from auth-service in the last 10 minutes",
		AnchorTimestamp: anchor.Timestamp,
	}, anchor)
	require.NoError(t, err)

	assert.Equal(t, model.StatusError, inv.Status)
	assert.Equal(t, assert.AnError.Error(), inv.Error)
	// 恰好一次外部调用，选择器不重试
	assert.Equal(t, 1, bySource.calls)
}

func TestExtractFieldsLogFileSource(t *testing.T) {
	anchor := time.Unix(1000, 0)
	ex := extractFields("show entries from /var/log/installer.log over the last 2 hours", anchor)

	assert.Equal(t, "/var/log/installer.log", ex.source)
	assert.True(t, ex.hasWindow)
	assert.Equal(t, anchor.Add(-2*time.Hour), ex.window.Start)
}

func TestExtractFieldsLineCount(t *testing.T) {
	ex := extractFields("show 50 lines around the failure", time.Unix(0, 0))
	assert.True(t, ex.localContext)
	assert.Equal(t, 50, ex.lineCount)
}

func TestMaskStructuredPreservesLength(t *testing.T) {
	in := `find "a {b: c}" in {"x": [1, 2]} tail`
	out := maskStructured(in)

	assert.Equal(t, len([]rune(in)), len([]rune(out)))
	assert.NotContains(t, out, "{")
	assert.NotContains(t, out, "b: c")
	assert.Contains(t, out, "find")
	assert.Contains(t, out, "tail")
}

func TestParseTimeWindowTable(t *testing.T) {
	anchor := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name      string
		text      string
		wantStart time.Time
		wantEnd   time.Time
		wantOK    bool
	}{
		{
			name:      "last minutes",
			text:      "errors in the last 30 minutes",
			wantStart: anchor.Add(-30 * time.Minute),
			wantEnd:   anchor,
			wantOK:    true,
		},
		{
			name:      "bare negative offset",
			text:      "window -2h please",
			wantStart: anchor.Add(-2 * time.Hour),
			wantEnd:   anchor,
			wantOK:    true,
		},
		{
			name:      "absolute pair",
			text:      "between 2026-03-01T10:00:00Z and 2026-03-01T11:00:00Z",
			wantStart: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
			wantEnd:   time.Date(2026, 3, 1, 11, 0, 0, 0, time.UTC),
			wantOK:    true,
		},
		{
			name:      "absolute single uses anchor as other bound",
			text:      "since 2026-03-01T11:30:00Z",
			wantStart: time.Date(2026, 3, 1, 11, 30, 0, 0, time.UTC),
			wantEnd:   anchor,
			wantOK:    true,
		},
		{
			name:      "no window",
			text:      "anything odd in the logs",
			wantStart: anchor.Add(-defaultWindowSpan),
			wantEnd:   anchor,
			wantOK:    false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, ok := ParseTimeWindow(tt.text, anchor)
			assert.Equal(t, tt.wantOK, ok)
			assert.True(t, w.Start.Equal(tt.wantStart), "start %v != %v", w.Start, tt.wantStart)
			assert.True(t, w.End.Equal(tt.wantEnd), "end %v != %v", w.End, tt.wantEnd)
		})
	}
}

func TestParseTimeWindowDays(t *testing.T) {
	anchor := time.Unix(1000000, 0)
	w, ok := ParseTimeWindow("during the past 1 day", anchor)
	assert.True(t, ok)
	assert.Equal(t, anchor.Add(-24*time.Hour), w.Start)
}

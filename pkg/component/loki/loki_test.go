package loki

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	lokiopts "github.com/RHEcosystemAppEng/ansible-log-analysis/pkg/options/loki"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	opts := lokiopts.NewOptions()
	opts.Address = srv.URL
	opts.OrgID = "tenant-a"
	opts.MaxEntries = 100

	c, err := New(opts)
	require.NoError(t, err)
	return c
}

func TestQueryRangeMergesStreamsSorted(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/loki/api/v1/query_range", r.URL.Path)
		assert.Equal(t, `{job="alm"}`, r.URL.Query().Get("query"))
		assert.Equal(t, "forward", r.URL.Query().Get("direction"))
		assert.Equal(t, "tenant-a", r.Header.Get("X-Scope-OrgID"))

		_, _ = w.Write([]byte(`{
			"status": "success",
			"data": {
				"resultType": "streams",
				"result": [
					{
						"stream": {"filename": "job_a.log"},
						"values": [["3000000000", "third"], ["1000000000", "first"]]
					},
					{
						"stream": {"filename": "job_b.log"},
						"values": [["2000000000", "second"]]
					}
				]
			}
		}`))
	})

	entries, err := c.QueryRange(context.Background(), QueryRangeRequest{
		Query: `{job="alm"}`,
		Start: time.Unix(0, 0),
		End:   time.Unix(10, 0),
	})
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, "first", entries[0].Line)
	assert.Equal(t, "second", entries[1].Line)
	assert.Equal(t, "third", entries[2].Line)
	assert.Equal(t, "job_b.log", entries[1].Labels["filename"])
	assert.Equal(t, time.Unix(1, 0), entries[0].Timestamp)
}

func TestQueryRangeClampsLimit(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "100", r.URL.Query().Get("limit"))
		_, _ = w.Write([]byte(`{"status":"success","data":{"resultType":"streams","result":[]}}`))
	})

	entries, err := c.QueryRange(context.Background(), QueryRangeRequest{
		Query: `{job="alm"}`,
		Start: time.Unix(0, 0),
		End:   time.Unix(1, 0),
		Limit: 100000,
	})
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestQueryRangeRequiresQuery(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("should not be called")
	})

	_, err := c.QueryRange(context.Background(), QueryRangeRequest{})
	assert.Error(t, err)
}

func TestQueryRangeNonSuccessStatus(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"status":"error","data":{"resultType":"streams","result":[]}}`))
	})

	_, err := c.QueryRange(context.Background(), QueryRangeRequest{
		Query: `{job="alm"}`,
		Start: time.Unix(0, 0),
		End:   time.Unix(1, 0),
	})
	assert.Error(t, err)
}

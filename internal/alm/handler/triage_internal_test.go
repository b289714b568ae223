package handler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/RHEcosystemAppEng/ansible-log-analysis/internal/model"
)

func TestAlertRequestEntryMapsLabels(t *testing.T) {
	ts := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	req := AlertRequest{
		LogTimestamp: ts,
		LogMessage:   "disk full on /var",
		LogSummary:   "root volume exhausted",
		Labels: map[string]string{
			"detected_level": "error",
			"filename":       "/var/log/aap.log",
			"job":            "aap",
			"service_name":   "controller",
			"pod":            "ignored",
		},
	}

	entry := req.entry()
	assert.Equal(t, "disk full on /var", entry.Message)
	assert.Equal(t, "root volume exhausted", entry.Summary)
	assert.Equal(t, ts.UnixMilli(), entry.Timestamp)
	assert.Equal(t, model.LevelError, entry.Labels.DetectedLevel)
	assert.Equal(t, "controller", entry.Labels.ServiceName)
	assert.Equal(t, "aap", entry.Labels.Job)
}

package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsExposure(t *testing.T) {
	IncCallback("ok")
	IncDispatch("fans", "ok")
	IncDelivery("error")
	IncUpdate("queued")
	RewriteRetries.Inc()

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	body := rec.Body.String()
	for _, m := range []string{
		`yanbot_callbacks_total{outcome="ok"}`,
		`yanbot_dispatches_total{outcome="ok",task_kind="fans"}`,
		`yanbot_deliveries_total{outcome="error"}`,
		`yanbot_updates_total{outcome="queued"}`,
		"yanbot_rewrite_retries_total",
	} {
		assert.Contains(t, body, m)
	}
}

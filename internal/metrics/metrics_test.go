package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordExplain(t *testing.T) {
	c := NewCollector()
	c.RecordExplain("mock_fallback", true)
	c.RecordExplain("mock_fallback", true)
	c.RecordExplain("real", false)

	text := scrape(t, c)
	assert.Contains(t, text, `snipwise_explain_responses_total{mode="mock_fallback",stream="true"} 2`)
	assert.Contains(t, text, `snipwise_explain_responses_total{mode="real",stream="false"} 1`)
}

func TestHandlerExposesMetrics(t *testing.T) {
	c := NewCollector()
	c.RecordRequest("/functions/v1/explain-snippet", http.MethodPost, 200, 15*time.Millisecond)
	c.RecordUpstreamError("groq", "stream")
	c.RecordRateLimitHit("functions")
	c.RecordGenerate("ok")

	text := scrape(t, c)
	for _, name := range []string{
		`snipwise_http_requests_total{code="200",method="POST",route="/functions/v1/explain-snippet"} 1`,
		`snipwise_upstream_errors_total{op="stream",provider="groq"} 1`,
		`snipwise_rate_limit_rejections_total{scope="functions"} 1`,
		`snipwise_generate_requests_total{outcome="ok"} 1`,
		"snipwise_start_time_seconds",
	} {
		assert.True(t, strings.Contains(text, name), "missing %s", name)
	}
}

func TestRecordRequestUnmatchedRoute(t *testing.T) {
	c := NewCollector()
	c.RecordRequest("", http.MethodGet, 404, time.Millisecond)
	assert.Contains(t, scrape(t, c), `snipwise_http_requests_total{code="404",method="GET",route="unmatched"} 1`)
}

func scrape(t *testing.T, c *Collector) string {
	t.Helper()
	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	return string(body)
}

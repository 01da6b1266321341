package reporting

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrometheusReporter(t *testing.T) {
	logger, _ := logtest.NewNullLogger()
	p := NewPrometheusReporter(logger)
	ctx := context.Background()

	round := sampleRound()
	require.NoError(t, p.ReportRound(ctx, round))
	round.Iteration = 14
	round.ValidationScore = 0.2
	round.Improved = false
	round.PatienceRaised = false
	round.TestScore = nil
	require.NoError(t, p.ReportRound(ctx, round))

	assert.Equal(t, 0.2, testutil.ToFloat64(p.validationScore))
	assert.Equal(t, 0.25, testutil.ToFloat64(p.testScore))
	assert.Equal(t, 14.0, testutil.ToFloat64(p.iteration))
	assert.Equal(t, 18.0, testutil.ToFloat64(p.patience))
	assert.Equal(t, 2.0, testutil.ToFloat64(p.roundsTotal))
	assert.Equal(t, 1.0, testutil.ToFloat64(p.improvedTotal))
	assert.Equal(t, 1.0, testutil.ToFloat64(p.patienceRaises))

	require.NoError(t, p.ReportSummary(ctx, sampleSummary()))
	assert.Equal(t, 1.0, testutil.ToFloat64(p.runsTotal.WithLabelValues("patience_exhausted")))
	assert.Equal(t, 2.0, testutil.ToFloat64(p.epochsPerSecond))

	// Close without Serve is a no-op.
	assert.NoError(t, p.Close())
}

func TestMetricsServerRoutes(t *testing.T) {
	logger, _ := logtest.NewNullLogger()
	p := NewPrometheusReporter(logger)
	require.NoError(t, p.ReportRound(context.Background(), sampleRound()))

	s := NewMetricsServer(PrometheusConfig{}, p.Registry(), logger)

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.True(t, strings.Contains(body, "seqrnn_validation_score 0.125"), body)
	assert.True(t, strings.Contains(body, "seqrnn_validation_rounds_total 1"), body)

	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var health map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &health))
	assert.Equal(t, "healthy", health["status"])
	assert.Equal(t, "seqrnn", health["service"])

	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/health", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestMetricsServerCustomPath(t *testing.T) {
	logger, _ := logtest.NewNullLogger()
	p := NewPrometheusReporter(logger)
	s := NewMetricsServer(PrometheusConfig{Path: "/internal/metrics"}, p.Registry(), logger)

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/internal/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

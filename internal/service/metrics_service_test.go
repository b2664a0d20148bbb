package service

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/school-site-api/internal/models"
)

func TestMetricsServiceSnapshot(t *testing.T) {
	m := NewMetricsService()
	m.ObserveHTTPRequest("GET", "/api/results/lookup", 200, 20*time.Millisecond)
	m.ObserveHTTPRequest("GET", "/api/results/lookup", 404, 10*time.Millisecond)
	m.RecordCacheOperation(true, time.Millisecond)
	m.RecordCacheOperation(false, time.Millisecond)
	m.RecordCacheOperation(false, time.Millisecond)
	m.RecordCacheOperation(true, time.Millisecond)
	m.ObserveDBQuery("results.list", 4*time.Millisecond)
	m.RecordUpload(5, 2, 1)

	snap := m.Snapshot()
	assert.Equal(t, uint64(2), snap.RequestsTotal)
	assert.InDelta(t, 15.0, snap.AverageRequestDurationMs, 0.001)
	assert.Equal(t, 0.5, snap.CacheHitRatio)
	assert.Equal(t, uint64(1), snap.DBQueryCount)
	assert.Equal(t, uint64(5), snap.UploadedRows)
}

func TestMetricsServiceExposition(t *testing.T) {
	m := NewMetricsService()
	m.RecordInquiry(models.InquiryAdmission)
	m.RecordExport(models.ExportFormatXLSX)
	m.RecordJob("results.invalidate", errors.New("boom"))

	w := httptest.NewRecorder()
	m.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	assert.Contains(t, body, `inquiries_submitted_total{kind="admission"} 1`)
	assert.Contains(t, body, `results_exports_total{format="xlsx"} 1`)
	assert.Contains(t, body, `background_jobs_total{status="failed",type="results.invalidate"} 1`)
}

func TestNilMetricsServiceIsSafe(t *testing.T) {
	var m *MetricsService
	m.ObserveHTTPRequest("GET", "/", 200, time.Millisecond)
	m.RecordUpload(1, 0, 0)
	assert.Equal(t, models.SystemMetrics{}, m.Snapshot())

	w := httptest.NewRecorder()
	m.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

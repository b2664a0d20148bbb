package routes

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/school-site-api/internal/handler"
	"github.com/noah-isme/school-site-api/internal/models"
	appErrors "github.com/noah-isme/school-site-api/pkg/errors"
)

type staticValidator struct {
	claims *models.AdminClaims
}

func (v staticValidator) ValidateToken(token string) (*models.AdminClaims, error) {
	if token != "good" {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "invalid token")
	}
	return v.claims, nil
}

func newTestRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	Setup(r, Handlers{
		Results:   handler.NewResultHandler(nil, 0),
		Exports:   handler.NewExportHandler(nil),
		Inquiries: handler.NewInquiryHandler(nil),
		Auth:      handler.NewAuthHandler(nil),
		Metrics:   handler.NewMetricsHandler(nil, nil),
	}, Options{
		APIPrefix: "/api/v1",
		Validator: staticValidator{claims: &models.AdminClaims{Username: "admin", Role: models.AdminRole}},
	})
	return r
}

func TestSetupServesHealthAtRoot(t *testing.T) {
	r := newTestRouter()

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestSetupGuardsAdminRoutes(t *testing.T) {
	r := newTestRouter()

	for _, tc := range []struct {
		method string
		path   string
	}{
		{http.MethodGet, "/api/v1/results"},
		{http.MethodPost, "/api/v1/results/upload"},
		{http.MethodDelete, "/api/v1/results/abc"},
		{http.MethodGet, "/api/v1/contact"},
		{http.MethodPatch, "/api/v1/admission/abc/status"},
	} {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(tc.method, tc.path, nil))
		assert.Equal(t, http.StatusUnauthorized, rec.Code, "%s %s", tc.method, tc.path)
	}
}

func TestSetupAdminSessionWithValidToken(t *testing.T) {
	r := newTestRouter()

	req := httptest.NewRequest(http.MethodGet, "/api/v1/admin/session", nil)
	req.Header.Set("Authorization", "Bearer good")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Data map[string]interface{} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "admin", body.Data["username"])
}

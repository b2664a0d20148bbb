package middleware

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/noah-isme/school-site-api/internal/models"
	"github.com/noah-isme/school-site-api/internal/service"
	appErrors "github.com/noah-isme/school-site-api/pkg/errors"
)

type validatorStub struct {
	claims *models.AdminClaims
	err    error
	token  string
}

func (v *validatorStub) ValidateToken(token string) (*models.AdminClaims, error) {
	v.token = token
	return v.claims, v.err
}

func init() {
	gin.SetMode(gin.TestMode)
}

func TestAdminJWTRejectsMissingAndMalformedHeaders(t *testing.T) {
	router := gin.New()
	router.GET("/admin", AdminJWT(&validatorStub{claims: &models.AdminClaims{Username: "admin"}}), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	for _, header := range []string{"", "Token abc", "Bearer "} {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/admin", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		router.ServeHTTP(w, req)
		assert.Equal(t, http.StatusUnauthorized, w.Code, header)
	}
}

func TestAdminJWTStoresClaims(t *testing.T) {
	stub := &validatorStub{claims: &models.AdminClaims{Username: "admin", Role: models.AdminRole}}
	router := gin.New()
	router.GET("/admin", AdminJWT(stub), func(c *gin.Context) {
		c.String(http.StatusOK, AdminFromContext(c).Username)
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/admin", nil)
	req.Header.Set("Authorization", "bearer tok123")
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "admin", w.Body.String())
	assert.Equal(t, "tok123", stub.token)
}

func TestAdminJWTPropagatesValidationError(t *testing.T) {
	stub := &validatorStub{err: appErrors.Wrap(errors.New("expired"), appErrors.ErrUnauthorized.Code, appErrors.ErrUnauthorized.Status, "invalid token")}
	router := gin.New()
	router.GET("/admin", AdminJWT(stub), func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/admin", nil)
	req.Header.Set("Authorization", "Bearer tok")
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), `"message":"invalid token"`)
}

func TestMetricsLabelsUnmatchedRoutes(t *testing.T) {
	metrics := service.NewMetricsService()
	router := gin.New()
	router.Use(Metrics(metrics))
	router.GET("/results/:id", func(c *gin.Context) { c.Status(http.StatusOK) })

	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/results/abc", nil))
	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/wp-login.php", nil))

	w := httptest.NewRecorder()
	metrics.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body := w.Body.String()
	assert.Contains(t, body, `path="/results/:id"`)
	assert.Contains(t, body, `path="unmatched"`)
	assert.NotContains(t, body, "wp-login")
	assert.Equal(t, uint64(2), metrics.Snapshot().RequestsTotal)
}

func TestMetricsSkipsProbeRoutes(t *testing.T) {
	metrics := service.NewMetricsService()
	router := gin.New()
	router.Use(Metrics(metrics, "/health"))
	router.GET("/health", func(c *gin.Context) { c.Status(http.StatusOK) })
	router.GET("/results", func(c *gin.Context) { c.Status(http.StatusOK) })

	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/health", nil))
	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/results", nil))

	assert.Equal(t, uint64(1), metrics.Snapshot().RequestsTotal)
}

func TestResponseMetaCacheHit(t *testing.T) {
	router := gin.New()
	router.Use(WithResponseMeta())
	var meta map[string]interface{}
	router.GET("/lookup", func(c *gin.Context) {
		SetCacheHit(c, true)
		meta = ExtractMeta(c)
		c.Status(http.StatusOK)
	})
	router.GET("/plain", func(c *gin.Context) {
		meta = ExtractMeta(c)
		c.Status(http.StatusOK)
	})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/lookup", nil))
	assert.Equal(t, "HIT", w.Header().Get("X-Cache"))
	require.NotNil(t, meta)
	assert.Equal(t, true, meta[cacheHitKey])
	assert.Contains(t, meta, processingTimeMs)

	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/plain", nil))
	assert.Nil(t, meta)
}

func TestAuditLogsSuccessfulMutations(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	router := gin.New()
	withAdmin := func(c *gin.Context) {
		c.Set(ContextUserKey, &models.AdminClaims{Username: "admin"})
		c.Next()
	}
	router.DELETE("/results/:id", withAdmin, Audit(zap.New(core), "result.delete", "results"), func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})
	router.POST("/results", withAdmin, Audit(zap.New(core), "result.create", "results"), func(c *gin.Context) {
		c.Status(http.StatusBadRequest)
	})

	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodDelete, "/results/r-1", nil))
	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/results", nil))

	entries := logs.All()
	require.Len(t, entries, 1)
	assert.Equal(t, "result.delete", entries[0].Message)
	fields := entries[0].ContextMap()
	assert.Equal(t, "r-1", fields["resource_id"])
	assert.Equal(t, "admin", fields["admin"])
	assert.Equal(t, int64(http.StatusNoContent), fields["status"])
}

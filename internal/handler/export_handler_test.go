package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/school-site-api/internal/models"
	"github.com/noah-isme/school-site-api/internal/service"
	appErrors "github.com/noah-isme/school-site-api/pkg/errors"
)

type fakeExportSrv struct {
	lastKind    models.TemplateKind
	lastRequest models.ExportRequest
	download    *service.ExportDownload
	downloadErr error
}

func (f *fakeExportSrv) Template(kind models.TemplateKind) ([]byte, string, error) {
	f.lastKind = kind
	return []byte("student_name,roll_no\n"), "results_template_" + string(kind) + ".csv", nil
}

func (f *fakeExportSrv) Export(_ context.Context, req models.ExportRequest) (*models.ExportResult, error) {
	f.lastRequest = req
	return &models.ExportResult{ID: "exp-1", Format: req.Format, URL: "/api/results/exports/token", ExpiresAt: time.Now().Add(time.Hour)}, nil
}

func (f *fakeExportSrv) ResolveDownload(string) (*service.ExportDownload, error) {
	return f.download, f.downloadErr
}

func TestExportHandlerTemplateDefaultsToBasic(t *testing.T) {
	srv := &fakeExportSrv{}
	handler := NewExportHandler(srv)

	c, rec := newTestContext(http.MethodGet, "/results/template", nil)
	handler.Template(c)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, models.TemplateBasic, srv.lastKind)
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "results_template_basic.csv")
	assert.Equal(t, "student_name,roll_no\n", rec.Body.String())
}

func TestExportHandlerCreate(t *testing.T) {
	srv := &fakeExportSrv{}
	handler := NewExportHandler(srv)

	c, rec := newTestContext(http.MethodPost, "/results/exports", bytes.NewBufferString(`{"format":"pdf","class_code":"10-A"}`))
	c.Request.Header.Set("Content-Type", "application/json")
	handler.Create(c)

	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, models.ExportFormatPDF, srv.lastRequest.Format)
	assert.Equal(t, "10-A", srv.lastRequest.ClassCode)

	var envelope responseEnvelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	assert.Equal(t, "/api/results/exports/token", envelope.Data["url"])
}

func TestExportHandlerDownloadStreamsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "results_all.csv")
	require.NoError(t, os.WriteFile(path, []byte("a,b\n"), 0o600))
	file, err := os.Open(path)
	require.NoError(t, err)

	handler := NewExportHandler(&fakeExportSrv{download: &service.ExportDownload{File: file, Filename: "results_all.csv", ContentType: "text/csv"}})

	c, rec := newTestContext(http.MethodGet, "/results/exports/token", nil)
	c.Params = gin.Params{{Key: "token", Value: "token"}}
	handler.Download(c)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/csv", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "results_all.csv")
	assert.Equal(t, "a,b\n", rec.Body.String())
}

func TestExportHandlerDownloadRejectsBadToken(t *testing.T) {
	handler := NewExportHandler(&fakeExportSrv{downloadErr: appErrors.Clone(appErrors.ErrUnauthorized, "download link expired")})

	c, rec := newTestContext(http.MethodGet, "/results/exports/bad", nil)
	handler.Download(c)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

package handler

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/school-site-api/internal/models"
	"github.com/noah-isme/school-site-api/internal/service"
	appErrors "github.com/noah-isme/school-site-api/pkg/errors"
	"github.com/noah-isme/school-site-api/pkg/response"
)

type exportService interface {
	Template(kind models.TemplateKind) ([]byte, string, error)
	Export(ctx context.Context, req models.ExportRequest) (*models.ExportResult, error)
	ResolveDownload(token string) (*service.ExportDownload, error)
}

// ExportHandler serves upload templates and rendered result exports.
type ExportHandler struct {
	exports exportService
}

// NewExportHandler constructs ExportHandler.
func NewExportHandler(exports exportService) *ExportHandler {
	return &ExportHandler{exports: exports}
}

// Template godoc
// @Summary Download CSV upload template
// @Tags Results
// @Produce text/csv
// @Param kind query string false "basic or complete"
// @Success 200 {file} file
// @Router /results/template [get]
func (h *ExportHandler) Template(c *gin.Context) {
	payload, filename, err := h.exports.Template(models.TemplateKind(c.DefaultQuery("kind", string(models.TemplateBasic))))
	if err != nil {
		response.Error(c, err)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Data(http.StatusOK, "text/csv; charset=utf-8", payload)
}

// Create godoc
// @Summary Export results
// @Tags Results
// @Accept json
// @Produce json
// @Param payload body models.ExportRequest true "Export request"
// @Success 201 {object} response.Envelope
// @Security BearerAuth
// @Router /results/exports [post]
func (h *ExportHandler) Create(c *gin.Context) {
	var req models.ExportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, invalidPayload(err))
		return
	}
	result, err := h.exports.Export(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, result)
}

// Download godoc
// @Summary Download a rendered export
// @Tags Results
// @Produce octet-stream
// @Param token path string true "Signed token"
// @Success 200 {file} file
// @Failure 401 {object} response.Envelope
// @Router /results/exports/{token} [get]
func (h *ExportHandler) Download(c *gin.Context) {
	download, err := h.exports.ResolveDownload(c.Param("token"))
	if err != nil {
		response.Error(c, err)
		return
	}
	defer download.File.Close()

	info, err := download.File.Stat()
	if err != nil {
		response.Error(c, appErrors.Storage(err, "failed to read export"))
		return
	}
	c.DataFromReader(http.StatusOK, info.Size(), download.ContentType, download.File, map[string]string{
		"Content-Disposition": fmt.Sprintf("attachment; filename=%q", download.Filename),
	})
}

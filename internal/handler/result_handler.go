package handler

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/school-site-api/internal/middleware"
	"github.com/noah-isme/school-site-api/internal/models"
	"github.com/noah-isme/school-site-api/internal/service"
	appErrors "github.com/noah-isme/school-site-api/pkg/errors"
	"github.com/noah-isme/school-site-api/pkg/response"
)

type resultService interface {
	Lookup(ctx context.Context, rollNo, classCode string) (*models.StudentResultHistory, bool, error)
	Get(ctx context.Context, id string) (*models.ExamResult, error)
	List(ctx context.Context, filter models.ResultFilter) ([]models.ExamResult, *models.Pagination, error)
	Students(ctx context.Context, classCode string) ([]models.StudentInfo, error)
	Create(ctx context.Context, req service.ResultRequest) (*models.ExamResult, error)
	Update(ctx context.Context, id string, req service.ResultRequest) (*models.ExamResult, error)
	Delete(ctx context.Context, id string) error
	Upload(ctx context.Context, upload service.ResultUpload) (*models.BulkUploadResult, error)
}

// multipart framing allowance on top of the CSV size limit
const multipartOverhead = 64 << 10

// ResultHandler exposes exam result endpoints.
type ResultHandler struct {
	results        resultService
	maxUploadBytes int64
}

// NewResultHandler constructs ResultHandler.
func NewResultHandler(results resultService, maxUploadBytes int64) *ResultHandler {
	if maxUploadBytes <= 0 {
		maxUploadBytes = 5 << 20
	}
	return &ResultHandler{results: results, maxUploadBytes: maxUploadBytes}
}

// Lookup godoc
// @Summary Look up a student's results
// @Tags Results
// @Produce json
// @Param roll_no query string true "Six digit roll number"
// @Param class_code query string true "Class code"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /results/lookup [get]
func (h *ResultHandler) Lookup(c *gin.Context) {
	history, cacheHit, err := h.results.Lookup(c.Request.Context(), c.Query("roll_no"), c.Query("class_code"))
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetCacheHit(c, cacheHit)
	response.JSON(c, http.StatusOK, history, nil, middleware.ExtractMeta(c))
}

// List godoc
// @Summary List results
// @Tags Results
// @Produce json
// @Param class_code query string false "Filter by class code"
// @Param exam_type query string false "Filter by exam type"
// @Param roll_no query string false "Filter by roll number"
// @Param search query string false "Search by student name or roll number"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /results [get]
func (h *ResultHandler) List(c *gin.Context) {
	filter := models.ResultFilter{
		ClassCode: strings.TrimSpace(c.Query("class_code")),
		ExamType:  strings.TrimSpace(c.Query("exam_type")),
		RollNo:    strings.TrimSpace(c.Query("roll_no")),
		Search:    strings.TrimSpace(c.Query("search")),
		Page:      parseQueryInt(c, "page", 1),
		PageSize:  parseQueryInt(c, "limit", 20),
	}
	results, pagination, err := h.results.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, results, pagination)
}

// Students godoc
// @Summary List students with results
// @Tags Results
// @Produce json
// @Param class_code query string false "Filter by class code"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /results/students [get]
func (h *ResultHandler) Students(c *gin.Context) {
	students, err := h.results.Students(c.Request.Context(), c.Query("class_code"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, students, nil)
}

// Get godoc
// @Summary Get result detail
// @Tags Results
// @Produce json
// @Param id path string true "Result ID"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /results/{id} [get]
func (h *ResultHandler) Get(c *gin.Context) {
	result, err := h.results.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// Create godoc
// @Summary Create result
// @Tags Results
// @Accept json
// @Produce json
// @Param payload body service.ResultRequest true "Result payload"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Security BearerAuth
// @Router /results [post]
func (h *ResultHandler) Create(c *gin.Context) {
	var req service.ResultRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, invalidPayload(err))
		return
	}
	result, err := h.results.Create(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, result)
}

// Update godoc
// @Summary Replace result
// @Tags Results
// @Accept json
// @Produce json
// @Param id path string true "Result ID"
// @Param payload body service.ResultRequest true "Result payload"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /results/{id} [put]
func (h *ResultHandler) Update(c *gin.Context) {
	var req service.ResultRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, invalidPayload(err))
		return
	}
	result, err := h.results.Update(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// Delete godoc
// @Summary Delete result
// @Tags Results
// @Produce json
// @Param id path string true "Result ID"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /results/{id} [delete]
func (h *ResultHandler) Delete(c *gin.Context) {
	if err := h.results.Delete(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.Message(c, http.StatusOK, "Result deleted successfully", nil)
}

// Upload godoc
// @Summary Bulk upload results from CSV
// @Description Accepts a multipart form with a `file` field or a raw text/csv body.
// @Tags Results
// @Accept multipart/form-data
// @Accept text/csv
// @Produce json
// @Param file formData file false "CSV file"
// @Param exam_type formData string false "Exam type applied when the CSV has no exam_type column"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 413 {object} response.Envelope
// @Security BearerAuth
// @Router /results/upload [post]
func (h *ResultHandler) Upload(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUploadBytes+multipartOverhead)

	upload, err := h.readUpload(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	result, err := h.results.Upload(c.Request.Context(), upload)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, result)
}

func (h *ResultHandler) readUpload(c *gin.Context) (service.ResultUpload, error) {
	if strings.HasPrefix(c.ContentType(), "multipart/") {
		header, err := c.FormFile("file")
		if err != nil {
			if isBodyTooLarge(err) {
				return service.ResultUpload{}, payloadTooLarge(h.maxUploadBytes)
			}
			return service.ResultUpload{}, appErrors.Clone(appErrors.ErrFormat, "multipart upload requires a file field")
		}
		file, err := header.Open()
		if err != nil {
			return service.ResultUpload{}, appErrors.Wrap(err, appErrors.ErrFormat.Code, appErrors.ErrFormat.Status, "failed to open upload")
		}
		defer file.Close()
		content, err := readLimited(file, h.maxUploadBytes)
		if err != nil {
			return service.ResultUpload{}, err
		}
		return service.ResultUpload{
			Filename:    header.Filename,
			ContentType: header.Header.Get("Content-Type"),
			Content:     content,
			ExamType:    c.PostForm("exam_type"),
		}, nil
	}

	content, err := readLimited(c.Request.Body, h.maxUploadBytes)
	if err != nil {
		return service.ResultUpload{}, err
	}
	return service.ResultUpload{
		Filename:    c.Query("filename"),
		ContentType: c.ContentType(),
		Content:     content,
		ExamType:    c.Query("exam_type"),
	}, nil
}

func isBodyTooLarge(err error) bool {
	var maxErr *http.MaxBytesError
	return errors.As(err, &maxErr) || strings.Contains(err.Error(), "request body too large")
}

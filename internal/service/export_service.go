package service

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/school-site-api/internal/models"
	appErrors "github.com/noah-isme/school-site-api/pkg/errors"
	"github.com/noah-isme/school-site-api/pkg/export"
	"github.com/noah-isme/school-site-api/pkg/storage"
)

type resultLister interface {
	List(ctx context.Context, filter models.ResultFilter) ([]models.ExamResult, int, error)
}

type fileStorage interface {
	Save(filename string, data []byte) (string, error)
	Open(filename string) (*os.File, error)
	CleanupOlderThan(ttl time.Duration) ([]string, error)
}

// ExportConfig tunes export behaviour.
type ExportConfig struct {
	APIPrefix string
	ExamTypes []string
	// RetainFor bounds how long rendered files stay on disk.
	RetainFor time.Duration
}

// ExportDownload is an opened export ready to stream.
type ExportDownload struct {
	File        *os.File
	Filename    string
	ContentType string
}

// ResultExportService renders result listings and upload templates.
type ResultExportService struct {
	repo      resultLister
	storage   fileStorage
	signer    *storage.SignedURLSigner
	metrics   *MetricsService
	cfg       ExportConfig
	validator *validator.Validate
	logger    *zap.Logger
	now       func() time.Time
}

// NewResultExportService constructs a ResultExportService.
func NewResultExportService(repo resultLister, files fileStorage, signer *storage.SignedURLSigner, metrics *MetricsService, cfg ExportConfig, validate *validator.Validate, logger *zap.Logger) *ResultExportService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.APIPrefix == "" {
		cfg.APIPrefix = "/api"
	}
	if cfg.RetainFor <= 0 {
		cfg.RetainFor = 24 * time.Hour
	}
	return &ResultExportService{
		repo:      repo,
		storage:   files,
		signer:    signer,
		metrics:   metrics,
		cfg:       cfg,
		validator: validate,
		logger:    logger,
		now:       time.Now,
	}
}

var exportColumns = []export.Column{
	{Key: ColumnStudentName, Label: "Student", Width: 2},
	{Key: ColumnRollNo, Label: "Roll No"},
	{Key: ColumnClass, Label: "Class"},
	{Key: ColumnClassCode, Label: "Class Code"},
	{Key: ColumnExamType, Label: "Exam"},
	{Key: ColumnResultStatus, Label: "Status"},
	{Key: ColumnGrade, Label: "Grade", Width: 0.6},
	{Key: ColumnSubject, Label: "Subject", Width: 1.5},
	{Key: ColumnMarks, Label: "Marks", Width: 0.7},
	{Key: ColumnMaxMarks, Label: "Max", Width: 0.7},
	{Key: "percentage", Label: "%", Width: 0.7},
}

// Template returns an upload template with example rows for kind.
func (s *ResultExportService) Template(kind models.TemplateKind) ([]byte, string, error) {
	if kind == "" {
		kind = models.TemplateBasic
	}
	if kind != models.TemplateBasic && kind != models.TemplateComplete {
		return nil, "", appErrors.Clone(appErrors.ErrValidation, "kind must be basic or complete")
	}

	examType := "Annual"
	if len(s.cfg.ExamTypes) > 0 {
		examType = s.cfg.ExamTypes[0]
	}
	keys := append(RequiredColumns(kind), ColumnExamType)
	if kind == models.TemplateComplete {
		keys = append(keys, ColumnMaxMarks)
	}
	columns := make([]export.Column, len(keys))
	for i, key := range keys {
		columns[i] = export.Column{Key: key}
	}

	base := map[string]string{
		ColumnStudentName:  "Asha Kumar",
		ColumnRollNo:       "100234",
		ColumnClass:        "Class 10",
		ColumnClassCode:    "10-A",
		ColumnExamType:     examType,
		ColumnResultStatus: string(models.ResultStatusPass),
		ColumnGrade:        "A",
	}
	rows := []map[string]string{base}
	if kind == models.TemplateComplete {
		rows = []map[string]string{
			withValues(base, map[string]string{ColumnSubject: "Mathematics", ColumnMarks: "85", ColumnMaxMarks: "100"}),
			withValues(base, map[string]string{ColumnSubject: "Science", ColumnMarks: "78", ColumnMaxMarks: "100"}),
		}
	}

	renderer := &export.CSVExporter{UseKeys: true}
	payload, err := renderer.Render(export.Dataset{Columns: columns, Rows: rows})
	if err != nil {
		return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render template")
	}
	return payload, fmt.Sprintf("results_template_%s.csv", kind), nil
}

// Export renders matching results and returns a signed download link.
func (s *ResultExportService) Export(ctx context.Context, req models.ExportRequest) (*models.ExportResult, error) {
	req.Format = models.ExportFormat(strings.ToLower(string(req.Format)))
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.WithDetails(appErrors.ErrValidation, "invalid export request", validationDetails(err))
	}

	results, _, err := s.repo.List(ctx, models.ResultFilter{ClassCode: req.ClassCode, ExamType: req.ExamType})
	if err != nil {
		return nil, appErrors.Storage(err, "failed to load results for export")
	}

	renderer, err := export.ForFormat(string(req.Format))
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, err.Error())
	}
	if csvRenderer, ok := renderer.(*export.CSVExporter); ok {
		csvRenderer.UseKeys = true
	}

	generatedAt := s.now().UTC()
	dataset := s.buildDataset(req, results, generatedAt)
	payload, err := renderer.Render(dataset)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render export")
	}

	id := uuid.NewString()
	filename := fmt.Sprintf("results_%s_%s_%s.%s", sanitizeFilename(req.ClassCode), generatedAt.Format("20060102_150405"), id[:8], renderer.Extension())
	relPath, err := s.storage.Save(filename, payload)
	if err != nil {
		return nil, appErrors.Storage(err, "failed to store export")
	}

	token, expiresAt, err := s.signer.Generate(id, relPath)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to sign export link")
	}

	s.metrics.RecordExport(req.Format)
	s.logger.Info("results exported", zap.String("id", id), zap.String("format", string(req.Format)), zap.Int("results", len(results)))

	return &models.ExportResult{
		ID:        id,
		Format:    req.Format,
		Rows:      len(dataset.Rows),
		URL:       fmt.Sprintf("%s/results/exports/%s", strings.TrimRight(s.cfg.APIPrefix, "/"), token),
		ExpiresAt: expiresAt,
	}, nil
}

// ResolveDownload validates a signed token and opens the export it names.
func (s *ResultExportService) ResolveDownload(token string) (*ExportDownload, error) {
	claims, err := s.signer.Parse(token)
	if err != nil {
		if errors.Is(err, storage.ErrTokenExpired) {
			return nil, appErrors.Clone(appErrors.ErrUnauthorized, "download link expired")
		}
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "invalid download link")
	}

	file, err := s.storage.Open(claims.Path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "export not found")
		}
		return nil, appErrors.Storage(err, "failed to open export")
	}

	contentType := "application/octet-stream"
	if renderer, err := export.ForFormat(strings.TrimPrefix(path.Ext(claims.Path), ".")); err == nil {
		contentType = renderer.ContentType()
	}
	return &ExportDownload{File: file, Filename: path.Base(claims.Path), ContentType: contentType}, nil
}

// Cleanup removes rendered exports older than the retention window.
func (s *ResultExportService) Cleanup() ([]string, error) {
	removed, err := s.storage.CleanupOlderThan(s.cfg.RetainFor)
	if err != nil {
		return nil, err
	}
	if len(removed) > 0 {
		s.logger.Info("expired exports removed", zap.Int("count", len(removed)))
	}
	return removed, nil
}

// buildDataset flattens results to one row per subject so the CSV form can be uploaded again.
func (s *ResultExportService) buildDataset(req models.ExportRequest, results []models.ExamResult, generatedAt time.Time) export.Dataset {
	rows := make([]map[string]string, 0, len(results))
	for _, result := range results {
		base := map[string]string{
			ColumnStudentName:  result.StudentName,
			ColumnRollNo:       result.RollNo,
			ColumnClass:        result.Class,
			ColumnClassCode:    result.ClassCode,
			ColumnExamType:     result.ExamType,
			ColumnResultStatus: string(result.ResultStatus),
			ColumnGrade:        result.Grade,
		}
		if len(result.Subjects) == 0 {
			rows = append(rows, base)
			continue
		}
		for _, subject := range result.Subjects {
			rows = append(rows, withValues(base, map[string]string{
				ColumnSubject:  subject.Name,
				ColumnMarks:    strconv.Itoa(subject.Marks),
				ColumnMaxMarks: strconv.Itoa(subject.MaxMarks),
				"percentage":   strconv.FormatFloat(SubjectPercentage(subject), 'f', 1, 64),
			}))
		}
	}

	title := "Exam Results"
	if req.ClassCode != "" {
		title += " - " + req.ClassCode
	}
	if req.ExamType != "" {
		title += " (" + req.ExamType + ")"
	}
	return export.Dataset{
		Title:   title,
		Columns: exportColumns,
		Rows:    rows,
		Footer: []string{
			fmt.Sprintf("Results: %d", len(results)),
			"Generated at " + generatedAt.Format(time.RFC3339),
		},
	}
}

func withValues(base, extra map[string]string) map[string]string {
	row := make(map[string]string, len(base)+len(extra))
	for k, v := range base {
		row[k] = v
	}
	for k, v := range extra {
		row[k] = v
	}
	return row
}

func sanitizeFilename(raw string) string {
	if raw == "" {
		return "all"
	}
	replacer := strings.NewReplacer(" ", "_", "/", "-", "\\", "-", ":", "-", "..", ".")
	result := replacer.Replace(raw)
	if len(result) > 64 {
		return result[:64]
	}
	return result
}

package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/school-site-api/internal/models"
	"github.com/noah-isme/school-site-api/internal/repository"
	appErrors "github.com/noah-isme/school-site-api/pkg/errors"
	"github.com/noah-isme/school-site-api/pkg/jobs"
)

// JobTypeInvalidateLookup names queue jobs that drop cached lookups.
const JobTypeInvalidateLookup = "results.invalidate"

type resultRepository interface {
	FindByRollAndClass(ctx context.Context, rollNo, classCode string) ([]models.ExamResult, error)
	FindByID(ctx context.Context, id string) (*models.ExamResult, error)
	List(ctx context.Context, filter models.ResultFilter) ([]models.ExamResult, int, error)
	ListUniqueStudents(ctx context.Context, classCode string) ([]models.ExamResult, error)
	Create(ctx context.Context, result *models.ExamResult, maxExamTypes int) error
	Update(ctx context.Context, result *models.ExamResult, maxExamTypes int) error
	Delete(ctx context.Context, id string) (*models.ExamResult, error)
	BulkInsert(ctx context.Context, records []models.ExamResult) ([]models.DuplicateResult, error)
}

type jobQueue interface {
	Enqueue(job jobs.Job) error
}

type archiveStorage interface {
	Save(name string, data []byte) (string, error)
	Delete(name string) error
}

// ResultSubjectRequest is one subject of a manually entered result.
type ResultSubjectRequest struct {
	Name     string `json:"name" validate:"required,csv_field"`
	Marks    int    `json:"marks" validate:"gte=0,lte=100000"`
	MaxMarks *int   `json:"max_marks,omitempty" validate:"omitempty,gte=0,lte=100000"`
}

// csvUnsafeChars cannot appear in stored text fields: the upload format splits on bare commas.
const csvUnsafeChars = ",\"\r\n"

// ResultRequest holds the payload for creating or replacing a result.
type ResultRequest struct {
	StudentName  string                 `json:"student_name" validate:"required,csv_field"`
	RollNo       string                 `json:"roll_no" validate:"required,roll_no"`
	Class        string                 `json:"class" validate:"required,csv_field"`
	ClassCode    string                 `json:"class_code" validate:"required,csv_field"`
	ExamType     string                 `json:"exam_type" validate:"required,exam_type"`
	ResultStatus string                 `json:"result_status" validate:"omitempty,result_status"`
	Grade        string                 `json:"grade" validate:"required,csv_field"`
	Subjects     []ResultSubjectRequest `json:"subjects" validate:"required,min=1,dive"`
}

// ResultUpload carries a raw CSV upload.
type ResultUpload struct {
	Filename    string
	ContentType string
	Content     []byte
	// ExamType applies to every record when the file has no exam_type column.
	ExamType string
}

// ResultServiceConfig tunes result validation and caching.
type ResultServiceConfig struct {
	ExamTypes      []string
	MaxExamTypes   int
	MaxUploadBytes int64
	CacheTTL       time.Duration
}

// ResultService orchestrates exam result lookups, manual entry and CSV ingestion.
type ResultService struct {
	repo      resultRepository
	cache     *CacheService
	queue     jobQueue
	archive   archiveStorage
	metrics   *MetricsService
	cfg       ResultServiceConfig
	validator *validator.Validate
	logger    *zap.Logger
	now       func() time.Time
}

// NewResultService constructs the result service. cache, queue, archive and metrics are optional.
func NewResultService(repo resultRepository, cache *CacheService, queue jobQueue, archive archiveStorage, metrics *MetricsService, cfg ResultServiceConfig, validate *validator.Validate, logger *zap.Logger) *ResultService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MaxExamTypes <= 0 {
		cfg.MaxExamTypes = 3
	}
	svc := &ResultService{
		repo:      repo,
		cache:     cache,
		queue:     queue,
		archive:   archive,
		metrics:   metrics,
		cfg:       cfg,
		validator: validate,
		logger:    logger,
		now:       time.Now,
	}
	svc.validator.RegisterTagNameFunc(jsonFieldName)
	svc.validator.RegisterValidation("roll_no", func(fl validator.FieldLevel) bool {
		return ValidRollNo(fl.Field().String())
	})
	svc.validator.RegisterValidation("result_status", func(fl validator.FieldLevel) bool {
		status := normalizeStatus(fl.Field().String())
		return status == models.ResultStatusPass || status == models.ResultStatusFail
	})
	svc.validator.RegisterValidation("csv_field", func(fl validator.FieldLevel) bool {
		return !strings.ContainsAny(fl.Field().String(), csvUnsafeChars)
	})
	svc.validator.RegisterValidation("exam_type", func(fl validator.FieldLevel) bool {
		_, ok := svc.canonicalExamType(fl.Field().String())
		return ok
	})
	return svc
}

// Lookup returns every exam of a student in a class together with the aggregated summary.
// The boolean reports whether the answer came from the cache.
func (s *ResultService) Lookup(ctx context.Context, rollNo, classCode string) (*models.StudentResultHistory, bool, error) {
	rollNo, classCode = strings.TrimSpace(rollNo), strings.TrimSpace(classCode)
	var details []string
	if rollNo == "" {
		details = append(details, "roll_no: is required")
	}
	if classCode == "" {
		details = append(details, "class_code: is required")
	}
	if len(details) > 0 {
		return nil, false, appErrors.WithDetails(appErrors.ErrValidation, "roll_no and class_code are required", details)
	}

	key := LookupCacheKey(rollNo, classCode)
	var cached models.StudentResultHistory
	if hit, _ := s.cache.Get(ctx, key, &cached); hit {
		return &cached, true, nil
	}

	rows, err := s.repo.FindByRollAndClass(ctx, rollNo, classCode)
	if err != nil {
		return nil, false, appErrors.Storage(err, "failed to load results")
	}
	if len(rows) == 0 {
		return nil, false, appErrors.Clone(appErrors.ErrNotFound, "no results found for this roll number and class")
	}

	latest := rows[0]
	history := &models.StudentResultHistory{
		Student: models.StudentInfo{
			StudentName: latest.StudentName,
			RollNo:      latest.RollNo,
			Class:       latest.Class,
			ClassCode:   latest.ClassCode,
		},
		Results: withSubjectPercentages(rows),
		Summary: SummarizeResults(rows),
	}
	_ = s.cache.Set(ctx, key, history, s.cfg.CacheTTL)
	return history, false, nil
}

func resultNotFound() error {
	return appErrors.Clone(appErrors.ErrNotFound, "result not found")
}

// Get returns a single result by id. Ids that are not UUIDs cannot exist.
func (s *ResultService) Get(ctx context.Context, id string) (*models.ExamResult, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, resultNotFound()
	}
	result, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, resultNotFound()
		}
		return nil, appErrors.Storage(err, "failed to load result")
	}
	return result, nil
}

// List returns results newest first with pagination metadata.
func (s *ResultService) List(ctx context.Context, filter models.ResultFilter) ([]models.ExamResult, *models.Pagination, error) {
	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.PageSize <= 0 {
		filter.PageSize = 20
	}
	if filter.PageSize > 500 {
		filter.PageSize = 500
	}
	results, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Storage(err, "failed to list results")
	}
	return results, &models.Pagination{Page: filter.Page, PageSize: filter.PageSize, TotalCount: total}, nil
}

// Students lists each student once, using their most recent record.
func (s *ResultService) Students(ctx context.Context, classCode string) ([]models.StudentInfo, error) {
	rows, err := s.repo.ListUniqueStudents(ctx, strings.TrimSpace(classCode))
	if err != nil {
		return nil, appErrors.Storage(err, "failed to list students")
	}
	students := make([]models.StudentInfo, 0, len(rows))
	for _, row := range rows {
		students = append(students, models.StudentInfo{
			StudentName: row.StudentName,
			RollNo:      row.RollNo,
			Class:       row.Class,
			ClassCode:   row.ClassCode,
		})
	}
	return students, nil
}

// Create stores a manually entered result.
func (s *ResultService) Create(ctx context.Context, req ResultRequest) (*models.ExamResult, error) {
	result, err := s.buildResult(req)
	if err != nil {
		return nil, err
	}
	if err := s.repo.Create(ctx, result, s.cfg.MaxExamTypes); err != nil {
		return nil, s.mapWriteError(err, result, "failed to create result")
	}
	s.logger.Info("result created", zap.String("id", result.ID), zap.String("roll_no", result.RollNo),
		zap.String("class_code", result.ClassCode), zap.String("exam_type", result.ExamType))
	s.invalidate(ctx, *result)
	return result, nil
}

// Update replaces a result by id.
func (s *ResultService) Update(ctx context.Context, id string, req ResultRequest) (*models.ExamResult, error) {
	result, err := s.buildResult(req)
	if err != nil {
		return nil, err
	}
	existing, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	result.ID = existing.ID
	if err := s.repo.Update(ctx, result, s.cfg.MaxExamTypes); err != nil {
		return nil, s.mapWriteError(err, result, "failed to update result")
	}
	s.invalidate(ctx, *existing, *result)
	return result, nil
}

// Delete removes a result by id.
func (s *ResultService) Delete(ctx context.Context, id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return resultNotFound()
	}
	deleted, err := s.repo.Delete(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return resultNotFound()
		}
		return appErrors.Storage(err, "failed to delete result")
	}
	s.invalidate(ctx, *deleted)
	return nil
}

// PreparedUpload is a parsed and validated CSV upload ready to insert.
type PreparedUpload struct {
	Kind        models.TemplateKind
	Records     []models.ExamResult
	SkippedRows int
}

// PrepareUpload parses, groups and validates an upload without writing it.
func (s *ResultService) PrepareUpload(upload ResultUpload) (*PreparedUpload, error) {
	if !IsCSVUpload(upload.Filename, upload.ContentType) {
		return nil, appErrors.Clone(appErrors.ErrFormat, "only CSV files are accepted")
	}
	if s.cfg.MaxUploadBytes > 0 && int64(len(upload.Content)) > s.cfg.MaxUploadBytes {
		return nil, appErrors.Clone(appErrors.ErrPayloadTooLarge, fmt.Sprintf("upload exceeds %d bytes", s.cfg.MaxUploadBytes))
	}

	parsed, err := ParseResultsCSV(string(upload.Content))
	if err != nil {
		return nil, err
	}
	records := GroupResultRows(parsed)

	fallbackExam := strings.TrimSpace(upload.ExamType)
	var details []string
	for i := range records {
		details = append(details, s.prepareUploadRecord(&records[i], fallbackExam)...)
	}
	if len(details) > 0 {
		return nil, appErrors.WithDetails(appErrors.ErrValidation, "uploaded results are invalid", details)
	}
	return &PreparedUpload{Kind: parsed.Kind, Records: records, SkippedRows: parsed.SkippedRows}, nil
}

// Upload validates a CSV upload and bulk inserts it, reporting duplicates instead of failing on them.
func (s *ResultService) Upload(ctx context.Context, upload ResultUpload) (*models.BulkUploadResult, error) {
	prepared, err := s.PrepareUpload(upload)
	if err != nil {
		return nil, err
	}
	records := prepared.Records

	archivePath := s.archiveUpload(upload.Content)

	duplicates, err := s.repo.BulkInsert(ctx, records)
	if err != nil {
		s.discardArchive(archivePath)
		return nil, appErrors.Storage(err, "failed to store uploaded results")
	}
	if duplicates == nil {
		duplicates = []models.DuplicateResult{}
	}

	inserted := len(records) - len(duplicates)
	s.metrics.RecordUpload(inserted, len(duplicates), prepared.SkippedRows)
	s.logger.Info("results uploaded",
		zap.String("template", string(prepared.Kind)),
		zap.Int("records", len(records)),
		zap.Int("inserted", inserted),
		zap.Int("duplicates", len(duplicates)),
		zap.Int("skipped_rows", prepared.SkippedRows))
	s.invalidate(ctx, records...)

	return &models.BulkUploadResult{
		Template:    prepared.Kind,
		Records:     len(records),
		Inserted:    inserted,
		SkippedRows: prepared.SkippedRows,
		Duplicates:  duplicates,
		ArchivePath: archivePath,
	}, nil
}

func (s *ResultService) buildResult(req ResultRequest) (*models.ExamResult, error) {
	req.StudentName = strings.TrimSpace(req.StudentName)
	req.RollNo = strings.TrimSpace(req.RollNo)
	req.Class = strings.TrimSpace(req.Class)
	req.ClassCode = strings.TrimSpace(req.ClassCode)
	req.ExamType = strings.TrimSpace(req.ExamType)
	req.Grade = strings.TrimSpace(req.Grade)
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.WithDetails(appErrors.ErrValidation, "invalid result payload", validationDetails(err))
	}

	examType, _ := s.canonicalExamType(req.ExamType)
	subjects := make(models.Subjects, 0, len(req.Subjects))
	for _, subject := range req.Subjects {
		maxMarks := models.DefaultMaxMarks
		if subject.MaxMarks != nil {
			maxMarks = *subject.MaxMarks
		}
		subjects = append(subjects, models.Subject{Name: strings.TrimSpace(subject.Name), Marks: subject.Marks, MaxMarks: maxMarks})
	}
	return &models.ExamResult{
		StudentName:  req.StudentName,
		RollNo:       req.RollNo,
		Class:        req.Class,
		ClassCode:    req.ClassCode,
		ExamType:     examType,
		ResultStatus: normalizeStatus(req.ResultStatus),
		Grade:        req.Grade,
		Subjects:     subjects,
	}, nil
}

func (s *ResultService) prepareUploadRecord(record *models.ExamResult, fallbackExam string) []string {
	label := fmt.Sprintf("roll_no %s, class_code %s", record.RollNo, record.ClassCode)
	var details []string
	if record.RollNo == "" {
		details = append(details, fmt.Sprintf("%s: roll_no is required", label))
	}
	if record.ClassCode == "" {
		details = append(details, fmt.Sprintf("%s: class_code is required", label))
	}

	examType := record.ExamType
	if examType == "" {
		examType = fallbackExam
	}
	switch canonical, ok := s.canonicalExamType(examType); {
	case examType == "":
		details = append(details, fmt.Sprintf("%s: exam_type is required", label))
	case !ok:
		details = append(details, fmt.Sprintf("%s: unknown exam_type %q", label, examType))
	default:
		record.ExamType = canonical
	}

	if record.ResultStatus != models.ResultStatusPass && record.ResultStatus != models.ResultStatusFail {
		details = append(details, fmt.Sprintf("%s: result_status must be Pass or Fail", label))
	}
	for _, subject := range record.Subjects {
		switch {
		case subject.Marks < 0:
			details = append(details, fmt.Sprintf("%s: marks for %s must not be negative", label, subject.Name))
		case subject.Marks > models.MarksLimit:
			details = append(details, fmt.Sprintf("%s: marks for %s must not exceed %d", label, subject.Name, models.MarksLimit))
		}
		if subject.MaxMarks > models.MarksLimit {
			details = append(details, fmt.Sprintf("%s: max_marks for %s must not exceed %d", label, subject.Name, models.MarksLimit))
		}
	}
	return details
}

func (s *ResultService) canonicalExamType(raw string) (string, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", false
	}
	if len(s.cfg.ExamTypes) == 0 {
		return raw, true
	}
	for _, examType := range s.cfg.ExamTypes {
		if strings.EqualFold(examType, raw) {
			return examType, true
		}
	}
	return "", false
}

func (s *ResultService) mapWriteError(err error, result *models.ExamResult, message string) error {
	switch {
	case errors.Is(err, repository.ErrDuplicateExamType):
		return appErrors.Clone(appErrors.ErrDuplicateExamType,
			fmt.Sprintf("result for %s exam already exists for roll number %s", result.ExamType, result.RollNo))
	case errors.Is(err, repository.ErrMaxExamTypes):
		return appErrors.Clone(appErrors.ErrMaxExamTypes,
			fmt.Sprintf("student already has %d exam types recorded", s.cfg.MaxExamTypes))
	case errors.Is(err, sql.ErrNoRows):
		return resultNotFound()
	}
	return appErrors.Storage(err, message)
}

func (s *ResultService) archiveUpload(content []byte) string {
	if s.archive == nil {
		return ""
	}
	name := fmt.Sprintf("results/%s-%s.csv", s.now().UTC().Format("20060102T150405"), uuid.NewString()[:8])
	path, err := s.archive.Save(name, content)
	if err != nil {
		s.logger.Warn("failed to archive results upload", zap.Error(err))
		return ""
	}
	return path
}

// discardArchive removes an archived upload whose rows never reached the store.
func (s *ResultService) discardArchive(path string) {
	if path == "" {
		return
	}
	if err := s.archive.Delete(path); err != nil {
		s.logger.Warn("failed to discard archived upload", zap.String("path", path), zap.Error(err))
	}
}

// invalidate drops cached lookups for every student touched by a write.
func (s *ResultService) invalidate(ctx context.Context, results ...models.ExamResult) {
	if !s.cache.Enabled() || len(results) == 0 {
		return
	}
	seen := make(map[string]struct{}, len(results))
	keys := make([]string, 0, len(results))
	for _, result := range results {
		key := LookupCacheKey(result.RollNo, result.ClassCode)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		keys = append(keys, key)
	}

	if s.queue != nil {
		err := s.queue.Enqueue(jobs.Job{ID: uuid.NewString(), Type: JobTypeInvalidateLookup, Payload: keys})
		if err == nil {
			return
		}
		s.logger.Warn("invalidation queue unavailable, deleting inline", zap.Error(err))
	}
	_ = s.cache.Delete(ctx, keys...)
}

// NewLookupInvalidator returns the queue handler that deletes cached lookups.
func NewLookupInvalidator(cache *CacheService) jobs.Handler {
	return func(ctx context.Context, job jobs.Job) error {
		keys, ok := job.Payload.([]string)
		if !ok {
			return fmt.Errorf("unexpected invalidation payload %T", job.Payload)
		}
		return cache.Delete(ctx, keys...)
	}
}

func jsonFieldName(field reflect.StructField) string {
	name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
	if name == "-" {
		return ""
	}
	if name == "" {
		return field.Name
	}
	return name
}

// validationDetails renders every failed rule as "field: problem".
func validationDetails(err error) []string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return []string{err.Error()}
	}
	details := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		field := fe.Namespace()
		if idx := strings.Index(field, "."); idx >= 0 {
			field = field[idx+1:]
		}
		details = append(details, fmt.Sprintf("%s: %s", field, describeRule(fe)))
	}
	return details
}

func describeRule(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "roll_no":
		return "must be exactly 6 digits"
	case "result_status":
		return "must be Pass or Fail"
	case "exam_type":
		return "is not a configured exam type"
	case "csv_field":
		return "must not contain commas, quotes or line breaks"
	case "email":
		return "must be a valid email address"
	case "min":
		if fe.Kind() == reflect.Slice {
			return fmt.Sprintf("must contain at least %s item(s)", fe.Param())
		}
		return fmt.Sprintf("must be at least %s", fe.Param())
	case "gte":
		return fmt.Sprintf("must be greater than or equal to %s", fe.Param())
	case "lte":
		return fmt.Sprintf("must be less than or equal to %s", fe.Param())
	case "oneof":
		return fmt.Sprintf("must be one of [%s]", fe.Param())
	}
	return fmt.Sprintf("failed %s validation", fe.Tag())
}

package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/school-site-api/internal/models"
)

var (
	// ErrDuplicateExamType signals an existing row for the same roll, class and exam type.
	ErrDuplicateExamType = errors.New("exam type already recorded for student")
	// ErrMaxExamTypes signals the student already has the maximum number of exam rows.
	ErrMaxExamTypes = errors.New("maximum exam types reached for student")
)

const uniqueViolation = "23505"

const resultColumns = `id, student_name, roll_no, class, class_code, exam_type, result_status, grade, subjects, created_at, updated_at`

// QueryObserver receives query timings.
type QueryObserver interface {
	ObserveDBQuery(label string, duration time.Duration)
}

// ResultRepository persists exam results in PostgreSQL.
type ResultRepository struct {
	db       *sqlx.DB
	observer QueryObserver
}

// NewResultRepository constructs a ResultRepository.
func NewResultRepository(db *sqlx.DB) *ResultRepository {
	return &ResultRepository{db: db}
}

// WithObserver attaches query timing instrumentation.
func (r *ResultRepository) WithObserver(observer QueryObserver) *ResultRepository {
	r.observer = observer
	return r
}

func (r *ResultRepository) observe(label string, start time.Time) {
	if r.observer != nil {
		r.observer.ObserveDBQuery(label, time.Since(start))
	}
}

// FindByRollAndClass returns every exam row of a student in a class, newest first.
func (r *ResultRepository) FindByRollAndClass(ctx context.Context, rollNo, classCode string) ([]models.ExamResult, error) {
	defer r.observe("results.find_by_roll_class", time.Now())
	query := `SELECT ` + resultColumns + ` FROM exam_results WHERE roll_no = $1 AND class_code = $2 ORDER BY created_at DESC`
	var results []models.ExamResult
	if err := r.db.SelectContext(ctx, &results, query, rollNo, classCode); err != nil {
		return nil, fmt.Errorf("find results by roll and class: %w", err)
	}
	return results, nil
}

// FindByID fetches a single result.
func (r *ResultRepository) FindByID(ctx context.Context, id string) (*models.ExamResult, error) {
	defer r.observe("results.find_by_id", time.Now())
	query := `SELECT ` + resultColumns + ` FROM exam_results WHERE id = $1`
	var result models.ExamResult
	if err := r.db.GetContext(ctx, &result, query, id); err != nil {
		return nil, err
	}
	return &result, nil
}

// List returns results matching the filter, newest first. A zero page size returns every match.
func (r *ResultRepository) List(ctx context.Context, filter models.ResultFilter) ([]models.ExamResult, int, error) {
	defer r.observe("results.list", time.Now())
	conditions := []string{"1=1"}
	args := []interface{}{}

	if filter.ClassCode != "" {
		args = append(args, filter.ClassCode)
		conditions = append(conditions, fmt.Sprintf("class_code = $%d", len(args)))
	}
	if filter.ExamType != "" {
		args = append(args, filter.ExamType)
		conditions = append(conditions, fmt.Sprintf("exam_type = $%d", len(args)))
	}
	if filter.RollNo != "" {
		args = append(args, filter.RollNo)
		conditions = append(conditions, fmt.Sprintf("roll_no = $%d", len(args)))
	}
	if filter.Search != "" {
		args = append(args, "%"+strings.ToLower(filter.Search)+"%")
		conditions = append(conditions, fmt.Sprintf("(LOWER(student_name) LIKE $%d OR roll_no LIKE $%d)", len(args), len(args)))
	}
	where := strings.Join(conditions, " AND ")

	query := fmt.Sprintf(`SELECT %s FROM exam_results WHERE %s ORDER BY created_at DESC`, resultColumns, where)
	if filter.PageSize > 0 {
		page := filter.Page
		if page < 1 {
			page = 1
		}
		query += fmt.Sprintf(" LIMIT %d OFFSET %d", filter.PageSize, (page-1)*filter.PageSize)
	}

	var results []models.ExamResult
	if err := r.db.SelectContext(ctx, &results, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list results: %w", err)
	}

	var total int
	if err := r.db.GetContext(ctx, &total, fmt.Sprintf("SELECT COUNT(*) FROM exam_results WHERE %s", where), args...); err != nil {
		return nil, 0, fmt.Errorf("count results: %w", err)
	}
	return results, total, nil
}

// ListUniqueStudents returns the newest row of each roll/class pair, newest first.
func (r *ResultRepository) ListUniqueStudents(ctx context.Context, classCode string) ([]models.ExamResult, error) {
	defer r.observe("results.unique_students", time.Now())
	where := ""
	args := []interface{}{}
	if classCode != "" {
		where = "WHERE class_code = $1"
		args = append(args, classCode)
	}
	query := fmt.Sprintf(`SELECT %s FROM (
        SELECT DISTINCT ON (roll_no, class_code) %s FROM exam_results %s
        ORDER BY roll_no, class_code, created_at DESC
    ) latest ORDER BY created_at DESC`, resultColumns, resultColumns, where)

	var results []models.ExamResult
	if err := r.db.SelectContext(ctx, &results, query, args...); err != nil {
		return nil, fmt.Errorf("list unique students: %w", err)
	}
	return results, nil
}

func prepareResult(result *models.ExamResult, now time.Time) {
	if result.ID == "" {
		result.ID = uuid.NewString()
	}
	if result.CreatedAt.IsZero() {
		result.CreatedAt = now
	}
	result.UpdatedAt = now
	if result.Subjects == nil {
		result.Subjects = models.Subjects{}
	}
}

func lockPair(ctx context.Context, tx *sqlx.Tx, rollNo, classCode string) error {
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, rollNo+"|"+classCode); err != nil {
		return fmt.Errorf("lock result pair: %w", err)
	}
	return nil
}

const insertResultQuery = `INSERT INTO exam_results (` + resultColumns + `)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
ON CONFLICT (roll_no, class_code, exam_type) DO NOTHING RETURNING id`

func insertArgs(result *models.ExamResult) []interface{} {
	return []interface{}{result.ID, result.StudentName, result.RollNo, result.Class, result.ClassCode, result.ExamType,
		result.ResultStatus, result.Grade, result.Subjects, result.CreatedAt, result.UpdatedAt}
}

// Create inserts a result unless its exam type already exists for the student or
// the student already holds maxExamTypes other exams. Both checks run under a
// per-pair advisory lock so concurrent submissions cannot slip past them.
func (r *ResultRepository) Create(ctx context.Context, result *models.ExamResult, maxExamTypes int) (err error) {
	defer r.observe("results.create", time.Now())
	prepareResult(result, time.Now().UTC())

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin create result: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = lockPair(ctx, tx, result.RollNo, result.ClassCode); err != nil {
		return err
	}

	if maxExamTypes > 0 {
		var others int
		const countQuery = `SELECT COUNT(*) FROM exam_results WHERE roll_no = $1 AND class_code = $2 AND exam_type <> $3`
		if err = tx.GetContext(ctx, &others, countQuery, result.RollNo, result.ClassCode, result.ExamType); err != nil {
			return fmt.Errorf("count exam types: %w", err)
		}
		if others >= maxExamTypes {
			return ErrMaxExamTypes
		}
	}

	var insertedID string
	if err = tx.QueryRowxContext(ctx, insertResultQuery, insertArgs(result)...).Scan(&insertedID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrDuplicateExamType
		}
		return fmt.Errorf("create result: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit create result: %w", err)
	}
	return nil
}

// Update replaces every mutable field of a result. A missing id yields sql.ErrNoRows.
func (r *ResultRepository) Update(ctx context.Context, result *models.ExamResult, maxExamTypes int) (err error) {
	defer r.observe("results.update", time.Now())
	result.UpdatedAt = time.Now().UTC()
	if result.Subjects == nil {
		result.Subjects = models.Subjects{}
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin update result: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = lockPair(ctx, tx, result.RollNo, result.ClassCode); err != nil {
		return err
	}

	if maxExamTypes > 0 {
		var others int
		const countQuery = `SELECT COUNT(*) FROM exam_results WHERE roll_no = $1 AND class_code = $2 AND exam_type <> $3 AND id <> $4`
		if err = tx.GetContext(ctx, &others, countQuery, result.RollNo, result.ClassCode, result.ExamType, result.ID); err != nil {
			return fmt.Errorf("count exam types: %w", err)
		}
		if others >= maxExamTypes {
			return ErrMaxExamTypes
		}
	}

	const query = `UPDATE exam_results SET student_name = $2, roll_no = $3, class = $4, class_code = $5, exam_type = $6,
        result_status = $7, grade = $8, subjects = $9, updated_at = $10
        WHERE id = $1 RETURNING created_at`
	if err = tx.QueryRowxContext(ctx, query, result.ID, result.StudentName, result.RollNo, result.Class, result.ClassCode,
		result.ExamType, result.ResultStatus, result.Grade, result.Subjects, result.UpdatedAt).Scan(&result.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return err
		}
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return ErrDuplicateExamType
		}
		return fmt.Errorf("update result: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit update result: %w", err)
	}
	return nil
}

// Delete removes a result and returns the deleted row. A missing id yields sql.ErrNoRows.
func (r *ResultRepository) Delete(ctx context.Context, id string) (*models.ExamResult, error) {
	defer r.observe("results.delete", time.Now())
	query := `DELETE FROM exam_results WHERE id = $1 RETURNING ` + resultColumns
	var deleted models.ExamResult
	if err := r.db.GetContext(ctx, &deleted, query, id); err != nil {
		return nil, err
	}
	return &deleted, nil
}

// BulkInsert stores records in one transaction. Records that collide with an
// existing exam are skipped and returned.
func (r *ResultRepository) BulkInsert(ctx context.Context, records []models.ExamResult) ([]models.DuplicateResult, error) {
	defer r.observe("results.bulk_insert", time.Now())
	if len(records) == 0 {
		return nil, nil
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin bulk insert results: %w", err)
	}
	commit := false
	defer func() {
		if !commit {
			_ = tx.Rollback()
		}
	}()

	duplicates := make([]models.DuplicateResult, 0)
	now := time.Now().UTC()
	for i := range records {
		rec := &records[i]
		prepareResult(rec, now)
		var insertedID string
		if err := tx.QueryRowxContext(ctx, insertResultQuery, insertArgs(rec)...).Scan(&insertedID); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				duplicates = append(duplicates, models.DuplicateResult{RollNo: rec.RollNo, ClassCode: rec.ClassCode, ExamType: rec.ExamType})
				continue
			}
			return nil, fmt.Errorf("bulk insert results: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit bulk insert results: %w", err)
	}
	commit = true
	return duplicates, nil
}

// Ping checks database reachability for readiness probes.
func (r *ResultRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// ResultStatus is the pass/fail outcome of one exam.
type ResultStatus string

const (
	ResultStatusPass ResultStatus = "Pass"
	ResultStatusFail ResultStatus = "Fail"
)

// DefaultMaxMarks applies to subjects recorded without an explicit maximum.
const DefaultMaxMarks = 100

// MarksLimit bounds marks and max_marks for a single subject.
const MarksLimit = 100000

// TemplateKind distinguishes the two CSV upload shapes.
type TemplateKind string

const (
	TemplateBasic    TemplateKind = "basic"
	TemplateComplete TemplateKind = "complete"
)

// Subject is one scored subject inside an exam result.
type Subject struct {
	Name       string   `json:"name"`
	Marks      int      `json:"marks"`
	MaxMarks   int      `json:"max_marks"`
	Percentage *float64 `json:"percentage,omitempty"`
}

// Subjects is persisted as a JSONB array.
type Subjects []Subject

// Value marshals subjects to JSON for persistence. Display-only percentages are dropped.
func (s Subjects) Value() (driver.Value, error) {
	stored := make([]Subject, len(s))
	for i, subject := range s {
		subject.Percentage = nil
		stored[i] = subject
	}
	data, err := json.Marshal(stored)
	if err != nil {
		return nil, fmt.Errorf("marshal subjects: %w", err)
	}
	return data, nil
}

// Scan unmarshals a JSONB array into subjects.
func (s *Subjects) Scan(value interface{}) error {
	if value == nil {
		*s = Subjects{}
		return nil
	}
	var data []byte
	switch v := value.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("unsupported subjects type %T", value)
	}
	parsed := Subjects{}
	if err := json.Unmarshal(data, &parsed); err != nil {
		return fmt.Errorf("unmarshal subjects: %w", err)
	}
	*s = parsed
	return nil
}

// ExamResult is one persisted (student, class, exam) row.
type ExamResult struct {
	ID           string       `db:"id" json:"id"`
	StudentName  string       `db:"student_name" json:"student_name"`
	RollNo       string       `db:"roll_no" json:"roll_no"`
	Class        string       `db:"class" json:"class"`
	ClassCode    string       `db:"class_code" json:"class_code"`
	ExamType     string       `db:"exam_type" json:"exam_type"`
	ResultStatus ResultStatus `db:"result_status" json:"result_status"`
	Grade        string       `db:"grade" json:"grade"`
	Subjects     Subjects     `db:"subjects" json:"subjects"`
	CreatedAt    time.Time    `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time    `db:"updated_at" json:"updated_at"`
}

// ResultSummary aggregates all exams of one student in one class.
type ResultSummary struct {
	OverallPercentage float64      `json:"overallPercentage"`
	OverallGrade      string       `json:"overallGrade"`
	OverallStatus     ResultStatus `json:"overallStatus"`
	TotalExams        int          `json:"totalExams"`
	PassedExams       int          `json:"passedExams"`
	FailedExams       int          `json:"failedExams"`
}

// StudentInfo identifies a student within a class section.
type StudentInfo struct {
	StudentName string `json:"student_name"`
	RollNo      string `json:"roll_no"`
	Class       string `json:"class"`
	ClassCode   string `json:"class_code"`
}

// StudentResultHistory is the public lookup payload.
type StudentResultHistory struct {
	Student StudentInfo    `json:"student"`
	Results []ExamResult   `json:"results"`
	Summary *ResultSummary `json:"summary"`
}

// ResultFilter narrows admin listings.
type ResultFilter struct {
	ClassCode string
	ExamType  string
	RollNo    string
	Search    string
	Page      int
	PageSize  int
}

// DuplicateResult names a row the store refused because its exam already exists.
type DuplicateResult struct {
	RollNo    string `json:"roll_no"`
	ClassCode string `json:"class_code"`
	ExamType  string `json:"exam_type"`
}

// BulkUploadResult reports the outcome of a CSV upload.
type BulkUploadResult struct {
	Template    TemplateKind      `json:"template"`
	Records     int               `json:"records"`
	Inserted    int               `json:"inserted"`
	SkippedRows int               `json:"skipped_rows"`
	Duplicates  []DuplicateResult `json:"duplicates"`
	ArchivePath string            `json:"archive_path,omitempty"`
}

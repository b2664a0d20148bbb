package models

import "time"

// ExportFormat enumerates rendered result export formats.
type ExportFormat string

const (
	ExportFormatCSV  ExportFormat = "csv"
	ExportFormatPDF  ExportFormat = "pdf"
	ExportFormatXLSX ExportFormat = "xlsx"
)

// ExportRequest selects the results to export.
type ExportRequest struct {
	Format    ExportFormat `json:"format" validate:"required,oneof=csv pdf xlsx"`
	ClassCode string       `json:"class_code"`
	ExamType  string       `json:"exam_type"`
}

// ExportResult describes a rendered export file.
type ExportResult struct {
	ID        string       `json:"id"`
	Format    ExportFormat `json:"format"`
	Rows      int          `json:"rows"`
	URL       string       `json:"url"`
	ExpiresAt time.Time    `json:"expires_at"`
}

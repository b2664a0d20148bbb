package main

import (
	"bytes"
	"errors"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"

	"github.com/noah-isme/school-site-api/internal/models"
	"github.com/noah-isme/school-site-api/internal/service"
	appErrors "github.com/noah-isme/school-site-api/pkg/errors"
)

func init() {
	color.NoColor = true
}

func TestRenderPreviewListsRecords(t *testing.T) {
	var out bytes.Buffer
	renderPreview(&out, &service.PreparedUpload{
		Kind: models.TemplateComplete,
		Records: []models.ExamResult{{
			RollNo: "100234", ClassCode: "10-A", StudentName: "Asha", ExamType: "Annual",
			ResultStatus: models.ResultStatusPass, Grade: "A",
			Subjects: models.Subjects{{Name: "Math", Marks: 90, MaxMarks: 100}},
		}},
		SkippedRows: 2,
	})

	text := out.String()
	assert.Contains(t, text, "100234")
	assert.Contains(t, text, "Annual")
	assert.Contains(t, text, "complete template: 1 records, 2 skipped rows")
}

func TestRenderResultShowsDuplicates(t *testing.T) {
	var out bytes.Buffer
	renderResult(&out, &models.BulkUploadResult{
		Template:   models.TemplateBasic,
		Records:    3,
		Inserted:   2,
		Duplicates: []models.DuplicateResult{{RollNo: "100235", ClassCode: "10-A", ExamType: "Quarterly"}},
	})

	text := out.String()
	assert.Contains(t, text, "100235")
	assert.Contains(t, text, "Imported 2 of 3 records (basic template)")
	assert.Contains(t, text, "0 skipped rows, 1 duplicates")
	assert.NotContains(t, text, "Archived upload")
}

func TestReportErrorPrintsDetails(t *testing.T) {
	var out bytes.Buffer
	err := reportError(&out, appErrors.WithDetails(appErrors.ErrValidation, "uploaded results are invalid", []string{"roll_no 12: must be a six digit roll number"}))

	assert.True(t, errors.Is(err, appErrors.ErrValidation))
	assert.Contains(t, out.String(), "roll_no 12: must be a six digit roll number")
}

func TestRootCmdRequiresFile(t *testing.T) {
	cmd := newRootCmd()
	cmd.SetArgs([]string{})
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})

	err := cmd.Execute()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), `required flag(s) "file" not set`)
}

package service

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/school-site-api/internal/models"
	appErrors "github.com/noah-isme/school-site-api/pkg/errors"
	"github.com/noah-isme/school-site-api/pkg/storage"
)

type resultListerStub struct {
	results []models.ExamResult
	filter  models.ResultFilter
	err     error
}

func (r *resultListerStub) List(_ context.Context, filter models.ResultFilter) ([]models.ExamResult, int, error) {
	r.filter = filter
	return r.results, len(r.results), r.err
}

func newExportServiceForTest(t *testing.T, repo resultLister) *ResultExportService {
	t.Helper()
	store, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	signer := storage.NewSignedURLSigner("secret", time.Hour)
	cfg := ExportConfig{APIPrefix: "/api", ExamTypes: []string{"Quarterly", "Annual"}}
	return NewResultExportService(repo, store, signer, NewMetricsService(), cfg, nil, zap.NewNop())
}

func sampleExportResults() []models.ExamResult {
	return []models.ExamResult{
		{
			StudentName: "Asha Kumar", RollNo: "100234", Class: "Class 10", ClassCode: "10-A", ExamType: "Annual",
			ResultStatus: models.ResultStatusPass, Grade: "A",
			Subjects: models.Subjects{{Name: "Math", Marks: 45, MaxMarks: 50}, {Name: "Science", Marks: 70, MaxMarks: 100}},
		},
		{
			StudentName: "Ravi", RollNo: "100235", Class: "Class 10", ClassCode: "10-A", ExamType: "Annual",
			ResultStatus: models.ResultStatusFail, Grade: "D", Subjects: models.Subjects{},
		},
	}
}

func TestResultExportServiceTemplates(t *testing.T) {
	svc := newExportServiceForTest(t, &resultListerStub{})

	basic, name, err := svc.Template(models.TemplateBasic)
	require.NoError(t, err)
	assert.Equal(t, "results_template_basic.csv", name)
	parsed, err := ParseResultsCSV(string(basic))
	require.NoError(t, err)
	assert.Equal(t, models.TemplateBasic, parsed.Kind)
	assert.True(t, parsed.HasExamType)
	assert.Equal(t, "Quarterly", parsed.Rows[0].Get(ColumnExamType))

	complete, _, err := svc.Template(models.TemplateComplete)
	require.NoError(t, err)
	parsed, err = ParseResultsCSV(string(complete))
	require.NoError(t, err)
	assert.Equal(t, models.TemplateComplete, parsed.Kind)
	assert.True(t, parsed.HasMaxMarks)
	records := GroupResultRows(parsed)
	require.Len(t, records, 1)
	assert.Len(t, records[0].Subjects, 2)

	_, _, err = svc.Template("detailed")
	assert.True(t, errors.Is(err, appErrors.ErrValidation))
}

func TestResultExportServiceCSVRoundTrip(t *testing.T) {
	repo := &resultListerStub{results: sampleExportResults()}
	svc := newExportServiceForTest(t, repo)

	result, err := svc.Export(context.Background(), models.ExportRequest{Format: "CSV", ClassCode: "10-A"})
	require.NoError(t, err)
	assert.Equal(t, models.ExportFormatCSV, result.Format)
	assert.Equal(t, 3, result.Rows)
	assert.Equal(t, "10-A", repo.filter.ClassCode)
	assert.Zero(t, repo.filter.PageSize)
	require.True(t, strings.HasPrefix(result.URL, "/api/results/exports/"))

	download, err := svc.ResolveDownload(strings.TrimPrefix(result.URL, "/api/results/exports/"))
	require.NoError(t, err)
	defer download.File.Close()
	assert.Equal(t, "text/csv", download.ContentType)
	assert.True(t, strings.HasPrefix(download.Filename, "results_10-A_"))

	content, err := io.ReadAll(download.File)
	require.NoError(t, err)
	parsed, err := ParseResultsCSV(string(content))
	require.NoError(t, err)
	records := GroupResultRows(parsed)
	require.Len(t, records, 2)
	assert.Equal(t, models.Subjects{{Name: "Math", Marks: 45, MaxMarks: 50}, {Name: "Science", Marks: 70, MaxMarks: 100}}, records[0].Subjects)
	assert.Equal(t, models.ResultStatusFail, records[1].ResultStatus)
	assert.Empty(t, records[1].Subjects)
}

func TestResultExportServiceXLSXAndPDF(t *testing.T) {
	svc := newExportServiceForTest(t, &resultListerStub{results: sampleExportResults()})

	for _, format := range []models.ExportFormat{models.ExportFormatXLSX, models.ExportFormatPDF} {
		result, err := svc.Export(context.Background(), models.ExportRequest{Format: format})
		require.NoError(t, err)
		download, err := svc.ResolveDownload(strings.TrimPrefix(result.URL, "/api/results/exports/"))
		require.NoError(t, err)
		assert.True(t, strings.HasSuffix(download.Filename, "."+string(format)))
		assert.NotEqual(t, "application/octet-stream", download.ContentType)
		require.NoError(t, download.File.Close())
	}
}

func TestResultExportServiceRejectsBadRequests(t *testing.T) {
	svc := newExportServiceForTest(t, &resultListerStub{})

	_, err := svc.Export(context.Background(), models.ExportRequest{Format: "docx"})
	assert.True(t, errors.Is(err, appErrors.ErrValidation))

	_, err = svc.ResolveDownload("not-a-token")
	assert.True(t, errors.Is(err, appErrors.ErrUnauthorized))
}

func TestResultExportServiceStorageFailure(t *testing.T) {
	svc := newExportServiceForTest(t, &resultListerStub{err: errors.New("timeout")})

	_, err := svc.Export(context.Background(), models.ExportRequest{Format: models.ExportFormatCSV})
	assert.True(t, errors.Is(err, appErrors.ErrStorage))
}

package export

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func sampleDataset() Dataset {
	return Dataset{
		Title: "Exam Results",
		Columns: []Column{
			{Key: "student_name", Label: "Student", Width: 2},
			{Key: "roll_no", Label: "Roll No"},
			{Key: "grade", Label: "Grade"},
		},
		Rows: []map[string]string{
			{"student_name": "Asha, K.", "roll_no": "100234", "grade": "A"},
			{"student_name": "Ravi", "roll_no": "100235"},
		},
		Footer: []string{"Generated for Class 5"},
	}
}

func TestCSVExporterQuotesAndKeys(t *testing.T) {
	out, err := NewCSVExporter().Render(sampleDataset())
	require.NoError(t, err)
	assert.Equal(t, "Student,Roll No,Grade\n\"Asha, K.\",100234,A\nRavi,100235,\n", string(out))

	keyed := &CSVExporter{UseKeys: true}
	out, err = keyed.Render(sampleDataset())
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(out, []byte("student_name,roll_no,grade\n")))
}

func TestPDFExporterProducesDocument(t *testing.T) {
	out, err := NewPDFExporter().Render(sampleDataset())
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(out, []byte("%PDF")))
}

func TestXLSXExporterWritesCells(t *testing.T) {
	out, err := NewXLSXExporter().Render(sampleDataset())
	require.NoError(t, err)

	f, err := excelize.OpenReader(bytes.NewReader(out))
	require.NoError(t, err)
	defer f.Close() //nolint:errcheck

	header, err := f.GetCellValue(sheetName, "A1")
	require.NoError(t, err)
	assert.Equal(t, "Student", header)
	roll, err := f.GetCellValue(sheetName, "B3")
	require.NoError(t, err)
	assert.Equal(t, "100235", roll)
}

func TestRenderersRequireColumns(t *testing.T) {
	for _, format := range []string{"csv", "pdf", "xlsx"} {
		r, err := ForFormat(format)
		require.NoError(t, err)
		assert.Equal(t, format, r.Extension())
		_, err = r.Render(Dataset{})
		assert.Error(t, err)
	}
	_, err := ForFormat("docx")
	assert.Error(t, err)
}

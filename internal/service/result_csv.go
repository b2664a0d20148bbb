package service

import (
	"fmt"
	"math"
	"mime"
	"path/filepath"
	"strings"

	"github.com/noah-isme/school-site-api/internal/models"
	appErrors "github.com/noah-isme/school-site-api/pkg/errors"
)

// CSV column names understood by the result upload.
const (
	ColumnStudentName  = "student_name"
	ColumnRollNo       = "roll_no"
	ColumnClass        = "class"
	ColumnClassCode    = "class_code"
	ColumnResultStatus = "result_status"
	ColumnGrade        = "grade"
	ColumnSubject      = "subject"
	ColumnMarks        = "marks"
	ColumnExamType     = "exam_type"
	ColumnMaxMarks     = "max_marks"
)

var (
	basicColumns    = []string{ColumnStudentName, ColumnRollNo, ColumnClass, ColumnClassCode, ColumnResultStatus, ColumnGrade}
	completeColumns = append(append([]string{}, basicColumns...), ColumnSubject, ColumnMarks)

	csvContentTypes = map[string]struct{}{
		"text/csv":                 {},
		"application/csv":          {},
		"application/vnd.ms-excel": {},
		"text/plain":               {},
	}
)

// RequiredColumns returns the header columns a template must carry, in template order.
func RequiredColumns(kind models.TemplateKind) []string {
	if kind == models.TemplateComplete {
		return append([]string{}, completeColumns...)
	}
	return append([]string{}, basicColumns...)
}

// CSVRow is one accepted data row keyed by header name.
type CSVRow struct {
	Line   int
	Values map[string]string
}

// Get returns the trimmed value of column, or "" when absent.
func (r CSVRow) Get(column string) string {
	return r.Values[column]
}

// ParsedResultsCSV is the validated content of a result upload.
type ParsedResultsCSV struct {
	Kind        models.TemplateKind
	Headers     []string
	Rows        []CSVRow
	SkippedRows int
	HasExamType bool
	HasMaxMarks bool
}

// IsCSVUpload accepts a .csv file name or a CSV-ish content type.
func IsCSVUpload(filename, contentType string) bool {
	if strings.EqualFold(filepath.Ext(strings.TrimSpace(filename)), ".csv") {
		return true
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		mediaType = strings.ToLower(strings.TrimSpace(contentType))
	}
	_, ok := csvContentTypes[mediaType]
	return ok
}

// ParseResultsCSV validates the structure of an uploaded result file.
// Fields are split on bare commas; quoted fields are not supported.
// Line numbers in rows and errors are physical file lines, blank lines included.
func ParseResultsCSV(content string) (*ParsedResultsCSV, error) {
	content = strings.TrimPrefix(content, "\ufeff")

	type line struct {
		number int
		text   string
	}
	var lines []line
	for i, raw := range strings.Split(content, "\n") {
		text := strings.TrimSpace(strings.TrimSuffix(raw, "\r"))
		if text == "" {
			continue
		}
		lines = append(lines, line{number: i + 1, text: text})
	}

	if len(lines) < 2 {
		return nil, appErrors.Clone(appErrors.ErrFormat, "CSV file has no data rows")
	}

	headers := splitFields(lines[0].text)
	index := make(map[string]struct{}, len(headers))
	for _, h := range headers {
		index[h] = struct{}{}
	}
	has := func(column string) bool {
		_, ok := index[column]
		return ok
	}

	parsed := &ParsedResultsCSV{
		Kind:        models.TemplateBasic,
		Headers:     headers,
		HasExamType: has(ColumnExamType),
	}
	if has(ColumnSubject) && has(ColumnMarks) {
		parsed.Kind = models.TemplateComplete
		parsed.HasMaxMarks = has(ColumnMaxMarks)
	}

	var missing []string
	for _, column := range RequiredColumns(parsed.Kind) {
		if !has(column) {
			missing = append(missing, column)
		}
	}
	if len(missing) > 0 {
		return nil, appErrors.WithDetails(appErrors.ErrFormat,
			fmt.Sprintf("Missing required columns: %s", strings.Join(missing, ", ")), missing)
	}

	var badRolls []string
	firstBad := 0
	for _, l := range lines[1:] {
		values := splitFields(l.text)
		if len(values) != len(headers) {
			parsed.SkippedRows++
			continue
		}
		row := CSVRow{Line: l.number, Values: make(map[string]string, len(headers))}
		for i, h := range headers {
			row.Values[h] = values[i]
		}
		if roll := row.Get(ColumnRollNo); roll != "" && !ValidRollNo(roll) {
			if firstBad == 0 {
				firstBad = l.number
			}
			badRolls = append(badRolls, fmt.Sprintf("line %d: roll_no %q must be exactly 6 digits", l.number, roll))
		}
		parsed.Rows = append(parsed.Rows, row)
	}

	if len(badRolls) > 0 {
		return nil, appErrors.WithDetails(appErrors.ErrValidation,
			fmt.Sprintf("Invalid roll number at line %d: must be exactly 6 digits", firstBad), badRolls)
	}

	return parsed, nil
}

// ValidRollNo reports whether roll is exactly six ASCII digits.
func ValidRollNo(roll string) bool {
	if len(roll) != 6 {
		return false
	}
	for i := 0; i < len(roll); i++ {
		if roll[i] < '0' || roll[i] > '9' {
			return false
		}
	}
	return true
}

func splitFields(text string) []string {
	fields := strings.Split(text, ",")
	for i := range fields {
		fields[i] = strings.TrimSpace(fields[i])
	}
	return fields
}

// GroupResultRows folds parsed rows into one record per student and class
// (and exam type, when the file carries that column), in first-seen order.
func GroupResultRows(parsed *ParsedResultsCSV) []models.ExamResult {
	if parsed == nil {
		return nil
	}

	order := make([]string, 0)
	records := make(map[string]*models.ExamResult)

	for _, row := range parsed.Rows {
		key := row.Get(ColumnRollNo) + "-" + row.Get(ColumnClassCode)
		if parsed.HasExamType {
			key += "-" + row.Get(ColumnExamType)
		}

		record, ok := records[key]
		if !ok {
			record = &models.ExamResult{
				StudentName:  row.Get(ColumnStudentName),
				RollNo:       row.Get(ColumnRollNo),
				Class:        row.Get(ColumnClass),
				ClassCode:    row.Get(ColumnClassCode),
				ExamType:     row.Get(ColumnExamType),
				ResultStatus: normalizeStatus(row.Get(ColumnResultStatus)),
				Grade:        row.Get(ColumnGrade),
				Subjects:     models.Subjects{},
			}
			records[key] = record
			order = append(order, key)
		}

		if parsed.Kind != models.TemplateComplete {
			continue
		}
		subject, marks := row.Get(ColumnSubject), row.Get(ColumnMarks)
		if subject == "" || marks == "" {
			continue
		}
		maxMarks := models.DefaultMaxMarks
		if parsed.HasMaxMarks {
			if v, ok := leadingInt(row.Get(ColumnMaxMarks)); ok && v > 0 {
				maxMarks = v
			}
		}
		value, _ := leadingInt(marks)
		record.Subjects = append(record.Subjects, models.Subject{Name: subject, Marks: value, MaxMarks: maxMarks})
	}

	results := make([]models.ExamResult, 0, len(order))
	for _, key := range order {
		results = append(results, *records[key])
	}
	return results
}

func normalizeStatus(raw string) models.ResultStatus {
	switch {
	case raw == "":
		return models.ResultStatusPass
	case strings.EqualFold(raw, string(models.ResultStatusPass)):
		return models.ResultStatusPass
	case strings.EqualFold(raw, string(models.ResultStatusFail)):
		return models.ResultStatusFail
	}
	return models.ResultStatus(raw)
}

// leadingInt reads an optionally signed integer prefix ("85.5" is 85, "abc" is not a number).
// Prefixes too long for an int saturate at math.MaxInt instead of wrapping.
func leadingInt(raw string) (int, bool) {
	raw = strings.TrimSpace(raw)
	i, sign := 0, 1
	if i < len(raw) && (raw[i] == '-' || raw[i] == '+') {
		if raw[i] == '-' {
			sign = -1
		}
		i++
	}
	start, n := i, 0
	for ; i < len(raw) && raw[i] >= '0' && raw[i] <= '9'; i++ {
		d := int(raw[i] - '0')
		if n > (math.MaxInt-d)/10 {
			n = math.MaxInt
			continue
		}
		n = n*10 + d
	}
	if i == start {
		return 0, false
	}
	return sign * n, true
}

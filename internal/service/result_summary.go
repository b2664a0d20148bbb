package service

import (
	"math"

	"github.com/noah-isme/school-site-api/internal/models"
)

// SummarizeResults aggregates every exam of one student in one class.
// It returns nil for no rows. The overall grade is taken from the first row as given.
func SummarizeResults(rows []models.ExamResult) *models.ResultSummary {
	if len(rows) == 0 {
		return nil
	}

	var marks, maxMarks, passed int
	for _, row := range rows {
		if row.ResultStatus == models.ResultStatusPass {
			passed++
		}
		for _, subject := range row.Subjects {
			marks += subject.Marks
			maxMarks += subject.MaxMarks
		}
	}

	var percentage float64
	if maxMarks != 0 {
		percentage = roundTo(float64(marks)/float64(maxMarks)*100, 2)
	}

	status := models.ResultStatusPass
	if passed != len(rows) {
		status = models.ResultStatusFail
	}

	return &models.ResultSummary{
		OverallPercentage: percentage,
		OverallGrade:      rows[0].Grade,
		OverallStatus:     status,
		TotalExams:        len(rows),
		PassedExams:       passed,
		FailedExams:       len(rows) - passed,
	}
}

// SubjectPercentage returns marks over max_marks to one decimal; a zero maximum counts as 100.
func SubjectPercentage(subject models.Subject) float64 {
	maxMarks := subject.MaxMarks
	if maxMarks <= 0 {
		maxMarks = models.DefaultMaxMarks
	}
	return roundTo(float64(subject.Marks)/float64(maxMarks)*100, 1)
}

// withSubjectPercentages returns copies of rows whose subjects carry their percentage.
func withSubjectPercentages(rows []models.ExamResult) []models.ExamResult {
	out := make([]models.ExamResult, len(rows))
	for i, row := range rows {
		subjects := make(models.Subjects, len(row.Subjects))
		for j, subject := range row.Subjects {
			pct := SubjectPercentage(subject)
			subject.Percentage = &pct
			subjects[j] = subject
		}
		row.Subjects = subjects
		out[i] = row
	}
	return out
}

func roundTo(value float64, places int) float64 {
	scale := math.Pow(10, float64(places))
	return math.Round(value*scale) / scale
}

package services

import (
	"bytes"
	"encoding/csv"
	"sort"
)

// SubmissionRow is one answer in the long-format CSV export.
type SubmissionRow struct {
	UserID         string
	SurveySlug     string
	OccurrenceDate string
	QuestionKey    string
	Value          string
	SubmittedAt    string // RFC3339
}

// ExportLongCSV renders one row per answer.
func ExportLongCSV(rows []SubmissionRow) ([]byte, error) {
	buf := &bytes.Buffer{}
	w := csv.NewWriter(buf)
	_ = w.Write([]string{"user_id", "survey_slug", "occurrence_date", "question_key", "value", "submitted_at"})
	for _, r := range rows {
		rec := []string{r.UserID, r.SurveySlug, r.OccurrenceDate, r.QuestionKey, r.Value, r.SubmittedAt}
		if err := w.Write(rec); err != nil {
			return nil, err
		}
	}
	w.Flush()
	return buf.Bytes(), w.Error()
}

// WideRow is one submission in the wide-format CSV export, with a column
// per question key.
type WideRow struct {
	UserID         string
	OccurrenceDate string
	SurveySlug     string
	Values         map[string]string
}

// ExportWideCSV renders one row per submission. Question columns are the
// union of all keys, sorted for stable output.
func ExportWideCSV(rows []WideRow) ([]byte, error) {
	keySet := map[string]struct{}{}
	for _, r := range rows {
		for k := range r.Values {
			keySet[k] = struct{}{}
		}
	}
	keys := make([]string, 0, len(keySet))
	for k := range keySet {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	sort.SliceStable(rows, func(i, j int) bool {
		if rows[i].UserID != rows[j].UserID {
			return rows[i].UserID < rows[j].UserID
		}
		if rows[i].OccurrenceDate != rows[j].OccurrenceDate {
			return rows[i].OccurrenceDate < rows[j].OccurrenceDate
		}
		return rows[i].SurveySlug < rows[j].SurveySlug
	})

	buf := &bytes.Buffer{}
	w := csv.NewWriter(buf)
	header := append([]string{"user_id", "occurrence_date", "survey_slug"}, keys...)
	_ = w.Write(header)
	for _, r := range rows {
		row := make([]string, 0, len(header))
		row = append(row, r.UserID, r.OccurrenceDate, r.SurveySlug)
		for _, k := range keys {
			row = append(row, r.Values[k])
		}
		if err := w.Write(row); err != nil {
			return nil, err
		}
	}
	w.Flush()
	return buf.Bytes(), w.Error()
}

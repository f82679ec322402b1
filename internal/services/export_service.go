package services

import (
	"sort"
	"time"

	"github.com/Digital-Minimalist-Lab/30-day-cohorts-webapp/internal/timeutil"
)

// ExportStore is the storage surface for data takeout and erasure.
// GetUser and GetCohort return (nil, nil) when absent.
type ExportStore interface {
	GetUser(id string) (*User, error)
	GetProfile(userID string) (*Profile, error)
	ListUserEnrollments(userID string) ([]*Enrollment, error)
	ListSubmissionsByUser(userID string) ([]*Submission, error)
	ListResponseRecordsByUser(userID string) ([]*ResponseRecord, error)
	DeleteUserData(userID string, hard bool) (bool, error)
	GetCohort(id string) (*Cohort, error)
	GetSurvey(id string) (*Survey, error)
	ListSubmissionsByCohort(cohortID string) ([]*Submission, error)
	ListResponseRecordsByCohort(cohortID string) ([]*ResponseRecord, error)
	AddAudit(entry AuditEntry)
}

// ExportService covers the user's own data takeout and deletion, plus the
// admin CSV exports of a whole cohort.
type ExportService struct {
	store ExportStore
	now   func() time.Time
}

func NewExportService(store ExportStore) *ExportService {
	return &ExportService{store: store, now: time.Now}
}

// UserExport bundles everything stored about one user.
type UserExport struct {
	User        map[string]any    `json:"user"`
	Profile     *Profile          `json:"profile,omitempty"`
	Enrollments []*Enrollment     `json:"enrollments"`
	Submissions []*Submission     `json:"submissions"`
	Records     []*ResponseRecord `json:"response_records"`
}

// ExportUser returns the user's complete data bundle and records an audit
// entry naming who asked.
func (s *ExportService) ExportUser(userID, actor string) (*UserExport, error) {
	u, err := s.store.GetUser(userID)
	if err != nil {
		return nil, err
	}
	if u == nil {
		return nil, NewNotFoundError("user not found")
	}
	profile, err := s.store.GetProfile(userID)
	if err != nil {
		return nil, err
	}
	enrollments, err := s.store.ListUserEnrollments(userID)
	if err != nil {
		return nil, err
	}
	submissions, err := s.store.ListSubmissionsByUser(userID)
	if err != nil {
		return nil, err
	}
	records, err := s.store.ListResponseRecordsByUser(userID)
	if err != nil {
		return nil, err
	}
	s.store.AddAudit(AuditEntry{Time: s.now(), Actor: actor, Action: "export_user", Target: userID})
	return &UserExport{
		User:        map[string]any{"id": u.ID, "email": u.Email, "name": u.Name, "created_at": u.CreatedAt},
		Profile:     profile,
		Enrollments: enrollments,
		Submissions: submissions,
		Records:     records,
	}, nil
}

// DeleteUser erases the user's submissions, response records, enrollments,
// reminder logs and profile. Hard deletion also removes the user row; a
// soft delete keeps the login so the user can start over.
func (s *ExportService) DeleteUser(userID string, hard bool, actor string) error {
	u, err := s.store.GetUser(userID)
	if err != nil {
		return err
	}
	if u == nil {
		return NewNotFoundError("user not found")
	}
	ok, err := s.store.DeleteUserData(userID, hard)
	if err != nil {
		return err
	}
	if !ok {
		return NewNotFoundError("user not found")
	}
	s.store.AddAudit(AuditEntry{
		Time:   s.now(),
		Actor:  actor,
		Action: map[bool]string{true: "delete_user_hard", false: "delete_user_soft"}[hard],
		Target: userID,
	})
	return nil
}

type ExportResult struct {
	Filename    string
	ContentType string
	Data        []byte
}

// ExportCohortCSV renders every submission in the cohort as CSV, long
// format by default or wide with one row per submission.
func (s *ExportService) ExportCohortCSV(cohortID, format, actor string) (*ExportResult, error) {
	if cohortID == "" {
		return nil, NewInvalidError("cohort_id required")
	}
	if format == "" {
		format = "long"
	}
	cohort, err := s.store.GetCohort(cohortID)
	if err != nil {
		return nil, err
	}
	if cohort == nil {
		return nil, NewNotFoundError("cohort not found")
	}
	subs, err := s.store.ListSubmissionsByCohort(cohortID)
	if err != nil {
		return nil, err
	}
	records, err := s.store.ListResponseRecordsByCohort(cohortID)
	if err != nil {
		return nil, err
	}
	occurrences := make(map[string]timeutil.Date, len(records))
	for _, r := range records {
		occurrences[r.SubmissionID] = r.OccurrenceDate
	}
	slugs, err := s.surveySlugs(subs)
	if err != nil {
		return nil, err
	}

	var result *ExportResult
	switch format {
	case "long":
		rows := buildLongRows(subs, occurrences, slugs)
		b, err := ExportLongCSV(rows)
		if err != nil {
			return nil, err
		}
		result = &ExportResult{Filename: "long.csv", ContentType: "text/csv; charset=utf-8", Data: b}
	case "wide":
		rows := buildWideRows(subs, occurrences, slugs)
		b, err := ExportWideCSV(rows)
		if err != nil {
			return nil, err
		}
		result = &ExportResult{Filename: "wide.csv", ContentType: "text/csv; charset=utf-8", Data: b}
	default:
		return nil, NewInvalidError("unsupported format")
	}
	s.store.AddAudit(AuditEntry{Time: s.now(), Actor: actor, Action: "export_cohort_csv", Target: cohortID, Note: format})
	return result, nil
}

func (s *ExportService) surveySlugs(subs []*Submission) (map[string]string, error) {
	slugs := map[string]string{}
	for _, sub := range subs {
		if _, ok := slugs[sub.SurveyID]; ok {
			continue
		}
		survey, err := s.store.GetSurvey(sub.SurveyID)
		if err != nil {
			return nil, err
		}
		if survey == nil {
			slugs[sub.SurveyID] = sub.SurveyID
			continue
		}
		slugs[sub.SurveyID] = survey.Slug
	}
	return slugs, nil
}

func buildLongRows(subs []*Submission, occurrences map[string]timeutil.Date, slugs map[string]string) []SubmissionRow {
	var rows []SubmissionRow
	for _, sub := range subs {
		occ := occurrences[sub.ID]
		for _, a := range sub.Answers {
			rows = append(rows, SubmissionRow{
				UserID:         sub.UserID,
				SurveySlug:     slugs[sub.SurveyID],
				OccurrenceDate: occ.String(),
				QuestionKey:    a.QuestionKey,
				Value:          a.Value,
				SubmittedAt:    sub.CompletedAt.Format(time.RFC3339),
			})
		}
	}
	sort.SliceStable(rows, func(i, j int) bool {
		if rows[i].UserID != rows[j].UserID {
			return rows[i].UserID < rows[j].UserID
		}
		if rows[i].OccurrenceDate != rows[j].OccurrenceDate {
			return rows[i].OccurrenceDate < rows[j].OccurrenceDate
		}
		if rows[i].SurveySlug != rows[j].SurveySlug {
			return rows[i].SurveySlug < rows[j].SurveySlug
		}
		return rows[i].QuestionKey < rows[j].QuestionKey
	})
	return rows
}

func buildWideRows(subs []*Submission, occurrences map[string]timeutil.Date, slugs map[string]string) []WideRow {
	rows := make([]WideRow, 0, len(subs))
	for _, sub := range subs {
		values := make(map[string]string, len(sub.Answers))
		for _, a := range sub.Answers {
			values[a.QuestionKey] = a.Value
		}
		rows = append(rows, WideRow{
			UserID:         sub.UserID,
			OccurrenceDate: occurrences[sub.ID].String(),
			SurveySlug:     slugs[sub.SurveyID],
			Values:         values,
		})
	}
	return rows
}

package services

import (
	"encoding/csv"
	"strings"
	"testing"
	"time"

	"github.com/Digital-Minimalist-Lab/30-day-cohorts-webapp/internal/timeutil"
)

type exportStubStore struct {
	users       map[string]*User
	profiles    map[string]*Profile
	enrollments []*Enrollment
	submissions []*Submission
	records     []*ResponseRecord
	cohorts     map[string]*Cohort
	surveys     map[string]*Survey
	deleted     map[string]bool
	audits      []AuditEntry
}

func newExportStubStore() *exportStubStore {
	return &exportStubStore{
		users:    map[string]*User{},
		profiles: map[string]*Profile{},
		cohorts:  map[string]*Cohort{},
		surveys:  map[string]*Survey{},
		deleted:  map[string]bool{},
	}
}

func (s *exportStubStore) GetUser(id string) (*User, error) {
	if u, ok := s.users[id]; ok {
		copy := *u
		return &copy, nil
	}
	return nil, nil
}

func (s *exportStubStore) GetProfile(userID string) (*Profile, error) {
	return s.profiles[userID], nil
}

func (s *exportStubStore) ListUserEnrollments(userID string) ([]*Enrollment, error) {
	var out []*Enrollment
	for _, e := range s.enrollments {
		if e.UserID == userID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (s *exportStubStore) ListSubmissionsByUser(userID string) ([]*Submission, error) {
	var out []*Submission
	for _, sub := range s.submissions {
		if sub.UserID == userID {
			out = append(out, sub)
		}
	}
	return out, nil
}

func (s *exportStubStore) ListResponseRecordsByUser(userID string) ([]*ResponseRecord, error) {
	var out []*ResponseRecord
	for _, r := range s.records {
		if r.UserID == userID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *exportStubStore) DeleteUserData(userID string, hard bool) (bool, error) {
	if _, ok := s.users[userID]; !ok {
		return false, nil
	}
	s.deleted[userID] = hard
	return true, nil
}

func (s *exportStubStore) GetCohort(id string) (*Cohort, error) {
	return s.cohorts[id], nil
}

func (s *exportStubStore) GetSurvey(id string) (*Survey, error) {
	return s.surveys[id], nil
}

func (s *exportStubStore) ListSubmissionsByCohort(cohortID string) ([]*Submission, error) {
	var out []*Submission
	for _, sub := range s.submissions {
		if sub.CohortID == cohortID {
			out = append(out, sub)
		}
	}
	return out, nil
}

func (s *exportStubStore) ListResponseRecordsByCohort(cohortID string) ([]*ResponseRecord, error) {
	var out []*ResponseRecord
	for _, r := range s.records {
		if r.CohortID == cohortID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *exportStubStore) AddAudit(entry AuditEntry) {
	s.audits = append(s.audits, entry)
}

func newExportFixture() *exportStubStore {
	store := newExportStubStore()
	store.users["usr_1"] = &User{ID: "usr_1", Email: "one@example.com", Name: "One"}
	store.profiles["usr_1"] = &Profile{UserID: "usr_1", Timezone: "Europe/Berlin", DailyReminder: true}
	store.cohorts["coh_1"] = testCohort("2025-09-01", 30)
	store.cohorts["coh_1"].ID = "coh_1"
	store.surveys["svy_daily"] = &Survey{ID: "svy_daily", Slug: "daily-check-in", Name: "Daily Check-in"}
	store.enrollments = []*Enrollment{
		{ID: "enr_1", UserID: "usr_1", CohortID: "coh_1", Status: EnrollmentFree},
	}
	at := time.Date(2025, 9, 1, 20, 0, 0, 0, time.UTC)
	store.submissions = []*Submission{
		{ID: "sub_1", SurveyID: "svy_daily", UserID: "usr_1", CohortID: "coh_1", CompletedAt: at,
			Answers: []Answer{{QuestionKey: "mood_1to5", Value: "4"}, {QuestionKey: "note", Value: "calm, quiet evening"}}},
		{ID: "sub_2", SurveyID: "svy_daily", UserID: "usr_2", CohortID: "coh_1", CompletedAt: at.Add(time.Hour),
			Answers: []Answer{{QuestionKey: "mood_1to5", Value: "2"}}},
	}
	store.records = []*ResponseRecord{
		{ID: "rec_1", UserID: "usr_1", CohortID: "coh_1", ScheduleID: "sch_daily", SubmissionID: "sub_1",
			OccurrenceDate: timeutil.MustDate("2025-09-01"), CreatedAt: at},
		{ID: "rec_2", UserID: "usr_2", CohortID: "coh_1", ScheduleID: "sch_daily", SubmissionID: "sub_2",
			OccurrenceDate: timeutil.MustDate("2025-09-01"), CreatedAt: at},
	}
	return store
}

func TestExportUser(t *testing.T) {
	store := newExportFixture()
	svc := NewExportService(store)

	bundle, err := svc.ExportUser("usr_1", "usr_1")
	if err != nil {
		t.Fatalf("ExportUser: %v", err)
	}
	if bundle.User["email"] != "one@example.com" {
		t.Errorf("user = %v", bundle.User)
	}
	if bundle.Profile == nil || bundle.Profile.Timezone != "Europe/Berlin" {
		t.Errorf("profile = %+v", bundle.Profile)
	}
	if len(bundle.Enrollments) != 1 || len(bundle.Submissions) != 1 || len(bundle.Records) != 1 {
		t.Errorf("bundle sizes = %d/%d/%d, want 1/1/1",
			len(bundle.Enrollments), len(bundle.Submissions), len(bundle.Records))
	}
	if len(store.audits) != 1 || store.audits[0].Action != "export_user" {
		t.Errorf("audits = %+v", store.audits)
	}
}

func TestExportUserNotFound(t *testing.T) {
	svc := NewExportService(newExportFixture())
	if _, err := svc.ExportUser("usr_missing", "usr_missing"); err == nil {
		t.Fatalf("expected not found")
	}
}

func TestDeleteUser(t *testing.T) {
	store := newExportFixture()
	svc := NewExportService(store)

	if err := svc.DeleteUser("usr_1", false, "usr_1"); err != nil {
		t.Fatalf("DeleteUser: %v", err)
	}
	if hard, ok := store.deleted["usr_1"]; !ok || hard {
		t.Fatalf("soft delete not recorded: %v", store.deleted)
	}
	if store.audits[len(store.audits)-1].Action != "delete_user_soft" {
		t.Fatalf("audit = %+v", store.audits)
	}

	if err := svc.DeleteUser("usr_1", true, "admin@example.com"); err != nil {
		t.Fatalf("hard DeleteUser: %v", err)
	}
	if !store.deleted["usr_1"] {
		t.Fatalf("hard delete not recorded")
	}
}

func TestExportCohortCSVLong(t *testing.T) {
	store := newExportFixture()
	svc := NewExportService(store)

	res, err := svc.ExportCohortCSV("coh_1", "", "admin@example.com")
	if err != nil {
		t.Fatalf("ExportCohortCSV: %v", err)
	}
	if res.Filename != "long.csv" || !strings.HasPrefix(res.ContentType, "text/csv") {
		t.Fatalf("result = %+v", res)
	}

	rows, err := csv.NewReader(strings.NewReader(string(res.Data))).ReadAll()
	if err != nil {
		t.Fatalf("parse csv: %v", err)
	}
	// Header plus three answers across two users.
	if len(rows) != 4 {
		t.Fatalf("rows = %d, want 4:\n%s", len(rows), res.Data)
	}
	if rows[0][0] != "user_id" || rows[0][3] != "question_key" {
		t.Fatalf("header = %v", rows[0])
	}
	if rows[1][0] != "usr_1" || rows[1][2] != "2025-09-01" || rows[1][3] != "mood_1to5" || rows[1][4] != "4" {
		t.Fatalf("first row = %v", rows[1])
	}
	if rows[3][0] != "usr_2" {
		t.Fatalf("rows not sorted by user: %v", rows[3])
	}
}

func TestExportCohortCSVWide(t *testing.T) {
	store := newExportFixture()
	svc := NewExportService(store)

	res, err := svc.ExportCohortCSV("coh_1", "wide", "admin@example.com")
	if err != nil {
		t.Fatalf("ExportCohortCSV: %v", err)
	}
	rows, err := csv.NewReader(strings.NewReader(string(res.Data))).ReadAll()
	if err != nil {
		t.Fatalf("parse csv: %v", err)
	}
	// Header plus one row per submission.
	if len(rows) != 3 {
		t.Fatalf("rows = %d, want 3:\n%s", len(rows), res.Data)
	}
	wantHeader := []string{"user_id", "occurrence_date", "survey_slug", "mood_1to5", "note"}
	for i, col := range wantHeader {
		if rows[0][i] != col {
			t.Fatalf("header = %v, want %v", rows[0], wantHeader)
		}
	}
	if rows[1][3] != "4" || rows[1][4] != "calm, quiet evening" {
		t.Fatalf("usr_1 row = %v", rows[1])
	}
	if rows[2][3] != "2" || rows[2][4] != "" {
		t.Fatalf("usr_2 row = %v", rows[2])
	}
}

func TestExportCohortCSVUnsupportedFormat(t *testing.T) {
	svc := NewExportService(newExportFixture())
	if _, err := svc.ExportCohortCSV("coh_1", "pivot", "admin@example.com"); err == nil {
		t.Fatalf("unsupported format accepted")
	}
}

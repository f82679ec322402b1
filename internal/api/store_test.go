package api

import (
	"errors"
	"testing"

	"github.com/Digital-Minimalist-Lab/30-day-cohorts-webapp/internal/services"
	"github.com/Digital-Minimalist-Lab/30-day-cohorts-webapp/internal/timeutil"
)

func seedUser(t *testing.T, s *MemoryStore, id, email string) {
	t.Helper()
	if err := s.AddUser(&services.User{ID: id, Email: email}); err != nil {
		t.Fatalf("AddUser(%s): %v", email, err)
	}
}

func TestMemoryStoreEmailUniqueness(t *testing.T) {
	s := NewMemoryStore()
	seedUser(t, s, "usr_1", "ada@example.com")

	err := s.AddUser(&services.User{ID: "usr_2", Email: "Ada@Example.com"})
	if !errors.Is(err, services.ErrEmailTaken) {
		t.Fatalf("AddUser with taken email: err = %v, want ErrEmailTaken", err)
	}

	u, err := s.FindUserByEmail("ADA@example.com")
	if err != nil || u == nil || u.ID != "usr_1" {
		t.Fatalf("FindUserByEmail = %v, %v, want usr_1", u, err)
	}
	u, err = s.FindUserByEmail("nobody@example.com")
	if err != nil || u != nil {
		t.Fatalf("FindUserByEmail for unknown address = %v, %v, want nil, nil", u, err)
	}
}

func TestMemoryStoreReminderTimezones(t *testing.T) {
	s := NewMemoryStore()
	profiles := []*services.Profile{
		{UserID: "usr_1", Timezone: "Europe/Berlin", DailyReminder: true},
		{UserID: "usr_2", Timezone: "Asia/Tokyo", DailyReminder: true},
		{UserID: "usr_3", Timezone: "Europe/Berlin", DailyReminder: true},
		{UserID: "usr_4", Timezone: "America/New_York", DailyReminder: false},
		{UserID: "usr_5", Timezone: "", DailyReminder: true},
	}
	for _, p := range profiles {
		if err := s.SaveProfile(p); err != nil {
			t.Fatalf("SaveProfile(%s): %v", p.UserID, err)
		}
	}

	zones, err := s.ListReminderTimezones()
	if err != nil {
		t.Fatalf("ListReminderTimezones: %v", err)
	}
	want := []string{"Asia/Tokyo", "Europe/Berlin"}
	if len(zones) != len(want) {
		t.Fatalf("zones = %v, want %v", zones, want)
	}
	for i := range want {
		if zones[i] != want[i] {
			t.Fatalf("zones = %v, want %v", zones, want)
		}
	}

	berlin, err := s.ListProfilesByTimezone("Europe/Berlin")
	if err != nil {
		t.Fatalf("ListProfilesByTimezone: %v", err)
	}
	if len(berlin) != 2 || berlin[0].UserID != "usr_1" || berlin[1].UserID != "usr_3" {
		t.Fatalf("Berlin profiles = %+v, want usr_1 and usr_3", berlin)
	}
}

func TestMemoryStoreEnrollmentUniqueness(t *testing.T) {
	s := NewMemoryStore()
	e := &services.Enrollment{ID: "enr_1", UserID: "usr_1", CohortID: "coh_1", Status: services.EnrollmentFree}
	if err := s.CreateEnrollment(e); err != nil {
		t.Fatalf("CreateEnrollment: %v", err)
	}

	dup := &services.Enrollment{ID: "enr_2", UserID: "usr_1", CohortID: "coh_1", Status: services.EnrollmentPending}
	if err := s.CreateEnrollment(dup); !errors.Is(err, services.ErrDuplicateEnrollment) {
		t.Fatalf("duplicate enrollment: err = %v, want ErrDuplicateEnrollment", err)
	}

	pending := &services.Enrollment{ID: "enr_3", UserID: "usr_1", CohortID: "coh_2", Status: services.EnrollmentPending}
	if err := s.CreateEnrollment(pending); err != nil {
		t.Fatalf("CreateEnrollment in second cohort: %v", err)
	}

	active, err := s.ListActiveEnrollments("usr_1")
	if err != nil {
		t.Fatalf("ListActiveEnrollments: %v", err)
	}
	if len(active) != 1 || active[0].ID != "enr_1" {
		t.Fatalf("active enrollments = %+v, want only enr_1", active)
	}

	n, err := s.CountActiveEnrollments("coh_1")
	if err != nil || n != 1 {
		t.Fatalf("CountActiveEnrollments = %d, %v, want 1", n, err)
	}
}

func TestMemoryStoreSubmissionOccurrenceConflict(t *testing.T) {
	s := NewMemoryStore()
	day := timeutil.MustDate("2025-09-02")
	sub := &services.Submission{ID: "sub_1", SurveyID: "svy_1", UserID: "usr_1", CohortID: "coh_1"}
	rec := &services.ResponseRecord{ID: "rec_1", UserID: "usr_1", CohortID: "coh_1", ScheduleID: "sch_1", SubmissionID: "sub_1", OccurrenceDate: day}
	if err := s.CreateSubmission(sub, rec); err != nil {
		t.Fatalf("CreateSubmission: %v", err)
	}

	again := &services.Submission{ID: "sub_2", SurveyID: "svy_1", UserID: "usr_1", CohortID: "coh_1"}
	recAgain := &services.ResponseRecord{ID: "rec_2", UserID: "usr_1", CohortID: "coh_1", ScheduleID: "sch_1", SubmissionID: "sub_2", OccurrenceDate: day}
	if err := s.CreateSubmission(again, recAgain); !errors.Is(err, services.ErrDuplicateResponse) {
		t.Fatalf("duplicate occurrence: err = %v, want ErrDuplicateResponse", err)
	}

	subs, err := s.ListSubmissions("usr_1", "coh_1")
	if err != nil {
		t.Fatalf("ListSubmissions: %v", err)
	}
	if len(subs) != 1 {
		t.Fatalf("submissions after rejected duplicate = %d, want 1", len(subs))
	}

	other := &services.ResponseRecord{ID: "rec_3", UserID: "usr_2", CohortID: "coh_1", ScheduleID: "sch_1", SubmissionID: "sub_3", OccurrenceDate: day}
	if err := s.CreateSubmission(&services.Submission{ID: "sub_3", SurveyID: "svy_1", UserID: "usr_2", CohortID: "coh_1"}, other); err != nil {
		t.Fatalf("same occurrence for another user: %v", err)
	}

	if err := s.CreateSubmission(&services.Submission{ID: "sub_4"}, nil); err == nil {
		t.Fatalf("CreateSubmission without record should fail")
	}
}

func TestMemoryStoreReminderIdempotency(t *testing.T) {
	s := NewMemoryStore()
	key := "task_reminder:usr_1:2025-09-02"

	sent, err := s.WasReminderSent(key)
	if err != nil || sent {
		t.Fatalf("WasReminderSent before record = %v, %v, want false", sent, err)
	}
	if err := s.RecordReminder(&services.ReminderLog{ID: "rml_1", IdempotencyKey: key, UserID: "usr_1"}); err != nil {
		t.Fatalf("RecordReminder: %v", err)
	}
	sent, err = s.WasReminderSent(key)
	if err != nil || !sent {
		t.Fatalf("WasReminderSent after record = %v, %v, want true", sent, err)
	}
	err = s.RecordReminder(&services.ReminderLog{ID: "rml_2", IdempotencyKey: key, UserID: "usr_1"})
	if !errors.Is(err, services.ErrDuplicateReminder) {
		t.Fatalf("duplicate reminder: err = %v, want ErrDuplicateReminder", err)
	}
}

func TestMemoryStoreDeleteUserData(t *testing.T) {
	s := NewMemoryStore()
	seedUser(t, s, "usr_1", "ada@example.com")
	seedUser(t, s, "usr_2", "grace@example.com")
	if err := s.SaveProfile(&services.Profile{UserID: "usr_1", Timezone: "UTC", DailyReminder: true}); err != nil {
		t.Fatalf("SaveProfile: %v", err)
	}
	if err := s.CreateEnrollment(&services.Enrollment{ID: "enr_1", UserID: "usr_1", CohortID: "coh_1", Status: services.EnrollmentFree}); err != nil {
		t.Fatalf("CreateEnrollment: %v", err)
	}
	if err := s.CreateEnrollment(&services.Enrollment{ID: "enr_2", UserID: "usr_2", CohortID: "coh_1", Status: services.EnrollmentFree}); err != nil {
		t.Fatalf("CreateEnrollment: %v", err)
	}
	day := timeutil.MustDate("2025-09-02")
	if err := s.CreateSubmission(
		&services.Submission{ID: "sub_1", SurveyID: "svy_1", UserID: "usr_1", CohortID: "coh_1"},
		&services.ResponseRecord{ID: "rec_1", UserID: "usr_1", CohortID: "coh_1", ScheduleID: "sch_1", SubmissionID: "sub_1", OccurrenceDate: day},
	); err != nil {
		t.Fatalf("CreateSubmission: %v", err)
	}
	if err := s.RecordReminder(&services.ReminderLog{ID: "rml_1", IdempotencyKey: "task_reminder:usr_1:2025-09-02", UserID: "usr_1"}); err != nil {
		t.Fatalf("RecordReminder: %v", err)
	}

	found, err := s.DeleteUserData("usr_1", false)
	if err != nil || !found {
		t.Fatalf("DeleteUserData = %v, %v, want true", found, err)
	}

	if u, _ := s.GetUser("usr_1"); u == nil {
		t.Fatalf("soft delete removed the user row")
	}
	if p, _ := s.GetProfile("usr_1"); p != nil {
		t.Fatalf("profile survived deletion: %+v", p)
	}
	if es, _ := s.ListUserEnrollments("usr_1"); len(es) != 0 {
		t.Fatalf("enrollments survived deletion: %+v", es)
	}
	if subs, _ := s.ListSubmissionsByUser("usr_1"); len(subs) != 0 {
		t.Fatalf("submissions survived deletion: %+v", subs)
	}
	if recs, _ := s.ListResponseRecordsByUser("usr_1"); len(recs) != 0 {
		t.Fatalf("records survived deletion: %+v", recs)
	}
	if sent, _ := s.WasReminderSent("task_reminder:usr_1:2025-09-02"); sent {
		t.Fatalf("reminder log survived deletion")
	}

	// The occurrence slot is free again, so a fresh start does not conflict.
	if err := s.CreateSubmission(
		&services.Submission{ID: "sub_9", SurveyID: "svy_1", UserID: "usr_1", CohortID: "coh_1"},
		&services.ResponseRecord{ID: "rec_9", UserID: "usr_1", CohortID: "coh_1", ScheduleID: "sch_1", SubmissionID: "sub_9", OccurrenceDate: day},
	); err != nil {
		t.Fatalf("resubmit after delete: %v", err)
	}

	// Other users keep their data.
	if es, _ := s.ListUserEnrollments("usr_2"); len(es) != 1 {
		t.Fatalf("bystander enrollments = %+v, want 1", es)
	}

	found, err = s.DeleteUserData("usr_1", true)
	if err != nil || !found {
		t.Fatalf("hard DeleteUserData = %v, %v, want true", found, err)
	}
	if u, _ := s.GetUser("usr_1"); u != nil {
		t.Fatalf("hard delete kept the user row: %+v", u)
	}
	if err := s.AddUser(&services.User{ID: "usr_3", Email: "ada@example.com"}); err != nil {
		t.Fatalf("email not released after hard delete: %v", err)
	}

	found, err = s.DeleteUserData("usr_missing", false)
	if err != nil || found {
		t.Fatalf("DeleteUserData for unknown user = %v, %v, want false, nil", found, err)
	}
}

func TestMemoryStoreCohortOrdering(t *testing.T) {
	s := NewMemoryStore()
	cohorts := []*services.Cohort{
		{ID: "coh_b", Name: "October", StartDate: timeutil.MustDate("2025-10-01"), EndDate: timeutil.MustDate("2025-10-30"), Active: true},
		{ID: "coh_a", Name: "September", StartDate: timeutil.MustDate("2025-09-01"), EndDate: timeutil.MustDate("2025-09-30"), Active: true},
		{ID: "coh_c", Name: "October bis", StartDate: timeutil.MustDate("2025-10-01"), EndDate: timeutil.MustDate("2025-10-30"), Active: true},
	}
	for _, c := range cohorts {
		if err := s.CreateCohort(c); err != nil {
			t.Fatalf("CreateCohort(%s): %v", c.ID, err)
		}
	}

	got, err := s.ListCohorts()
	if err != nil {
		t.Fatalf("ListCohorts: %v", err)
	}
	wantOrder := []string{"coh_a", "coh_b", "coh_c"}
	if len(got) != len(wantOrder) {
		t.Fatalf("cohorts = %d, want %d", len(got), len(wantOrder))
	}
	for i, id := range wantOrder {
		if got[i].ID != id {
			t.Fatalf("cohort[%d] = %s, want %s", i, got[i].ID, id)
		}
	}
}

func TestMemoryStoreQuestionsSortedByOrder(t *testing.T) {
	s := NewMemoryStore()
	qs := []*services.Question{
		{ID: "que_3", SurveyID: "svy_1", Key: "third", Order: 2},
		{ID: "que_1", SurveyID: "svy_1", Key: "first", Order: 0},
		{ID: "que_2", SurveyID: "svy_1", Key: "second", Order: 1},
	}
	if err := s.ReplaceQuestions("svy_1", qs); err != nil {
		t.Fatalf("ReplaceQuestions: %v", err)
	}
	got, err := s.ListQuestions("svy_1")
	if err != nil {
		t.Fatalf("ListQuestions: %v", err)
	}
	want := []string{"first", "second", "third"}
	for i, key := range want {
		if got[i].Key != key {
			t.Fatalf("question[%d] = %s, want %s", i, got[i].Key, key)
		}
	}
}

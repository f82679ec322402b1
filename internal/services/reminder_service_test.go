package services

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/Digital-Minimalist-Lab/30-day-cohorts-webapp/internal/email"
	"github.com/Digital-Minimalist-Lab/30-day-cohorts-webapp/internal/timeutil"
)

type reminderStoreStub struct {
	timezones   []string
	profiles    map[string][]*Profile
	users       map[string]*User
	enrollments map[string][]*Enrollment
	reminders   map[string]*ReminderLog
}

func (s *reminderStoreStub) ListReminderTimezones() ([]string, error) {
	return append([]string(nil), s.timezones...), nil
}

func (s *reminderStoreStub) ListProfilesByTimezone(tz string) ([]*Profile, error) {
	return append([]*Profile(nil), s.profiles[tz]...), nil
}

func (s *reminderStoreStub) GetUser(id string) (*User, error) {
	return s.users[id], nil
}

func (s *reminderStoreStub) ListActiveEnrollments(userID string) ([]*Enrollment, error) {
	return append([]*Enrollment(nil), s.enrollments[userID]...), nil
}

func (s *reminderStoreStub) WasReminderSent(key string) (bool, error) {
	_, ok := s.reminders[key]
	return ok, nil
}

func (s *reminderStoreStub) RecordReminder(l *ReminderLog) error {
	if _, ok := s.reminders[l.IdempotencyKey]; ok {
		return ErrDuplicateReminder
	}
	s.reminders[l.IdempotencyKey] = l
	return nil
}

type failingMailer struct{}

func (failingMailer) Send(context.Context, email.Message) error {
	return fmt.Errorf("smtp unreachable")
}

// newReminderFixture wires a reminder service over the task fixture, with
// usr_1 opted in from UTC and enrolled in coh_test.
func newReminderFixture(at string) (*ReminderService, *reminderStoreStub, *email.MockService, *taskStoreStub) {
	tasks := newTaskFixture()
	store := &reminderStoreStub{
		timezones: []string{"UTC"},
		profiles: map[string][]*Profile{
			"UTC": {{UserID: "usr_1", Timezone: "UTC", DailyReminder: true}},
		},
		users: map[string]*User{
			"usr_1": {ID: "usr_1", Email: "ada@example.com", Name: "Ada"},
		},
		enrollments: map[string][]*Enrollment{
			"usr_1": {{ID: "enr_1", UserID: "usr_1", CohortID: "coh_test", Status: EnrollmentFree}},
		},
		reminders: map[string]*ReminderLog{},
	}
	mock := email.NewMockService()
	svc := NewReminderService(store, NewTaskService(tasks), mock, zerolog.Nop())
	fixed, err := time.Parse(time.RFC3339, at)
	if err != nil {
		panic(err)
	}
	svc.now = func() time.Time { return fixed }
	return svc, store, mock, tasks
}

func TestSweepSendsReminder(t *testing.T) {
	svc, store, mock, _ := newReminderFixture("2025-09-03T12:00:00Z")

	stats, err := svc.SweepAll(context.Background(), SweepOptions{})
	if err != nil {
		t.Fatalf("SweepAll() error = %v", err)
	}
	if stats.Sent != 1 || stats.Errors != 0 {
		t.Fatalf("stats = %+v, want one send and no errors", stats)
	}
	if len(mock.Sent()) != 1 {
		t.Fatalf("sent %d emails, want 1", len(mock.Sent()))
	}
	msg := mock.Last()
	if msg.To != "ada@example.com" {
		t.Errorf("To = %q, want ada@example.com", msg.To)
	}
	// Due on day three: the entry survey plus three cumulative check-ins.
	if msg.Subject != "You have 4 pending tasks" {
		t.Errorf("Subject = %q", msg.Subject)
	}
	if !strings.Contains(msg.Body, "Hi Ada,") {
		t.Errorf("body missing greeting: %q", msg.Body)
	}
	if !strings.Contains(msg.Body, "Entry Survey (due 2025-09-01)") {
		t.Errorf("body missing entry task: %q", msg.Body)
	}
	if !strings.Contains(msg.Body, "Check-in for 2025-09-03 (due 2025-09-03)") {
		t.Errorf("body missing daily task: %q", msg.Body)
	}

	key := "task_reminder:usr_1:2025-09-03"
	logEntry, ok := store.reminders[key]
	if !ok {
		t.Fatalf("no reminder recorded under %q", key)
	}
	if logEntry.RecipientEmail != "ada@example.com" || logEntry.EmailType != EmailTypeTaskReminder {
		t.Errorf("reminder log = %+v", logEntry)
	}
}

func TestSweepIsIdempotentPerDay(t *testing.T) {
	svc, _, mock, _ := newReminderFixture("2025-09-03T12:00:00Z")

	if _, err := svc.SweepAll(context.Background(), SweepOptions{}); err != nil {
		t.Fatalf("first sweep error = %v", err)
	}
	stats, err := svc.SweepAll(context.Background(), SweepOptions{})
	if err != nil {
		t.Fatalf("second sweep error = %v", err)
	}
	if stats.Sent != 0 || stats.Skipped != 1 {
		t.Fatalf("second sweep stats = %+v, want skip", stats)
	}
	if len(mock.Sent()) != 1 {
		t.Fatalf("sent %d emails across both sweeps, want 1", len(mock.Sent()))
	}
}

func TestSweepSingleTaskSubject(t *testing.T) {
	svc, _, mock, tasks := newReminderFixture("2025-09-03T12:00:00Z")
	tasks.records = []*ResponseRecord{
		{ID: "rec_1", UserID: "usr_1", CohortID: "coh_test", ScheduleID: "sch_entry", OccurrenceDate: timeutil.MustDate("2025-09-01")},
		{ID: "rec_2", UserID: "usr_1", CohortID: "coh_test", ScheduleID: "sch_daily", OccurrenceDate: timeutil.MustDate("2025-09-01")},
		{ID: "rec_3", UserID: "usr_1", CohortID: "coh_test", ScheduleID: "sch_daily", OccurrenceDate: timeutil.MustDate("2025-09-02")},
	}

	if _, err := svc.SweepAll(context.Background(), SweepOptions{}); err != nil {
		t.Fatalf("SweepAll() error = %v", err)
	}
	msg := mock.Last()
	if msg == nil {
		t.Fatal("no email sent")
	}
	if msg.Subject != "Reminder: Check-in for 2025-09-03" {
		t.Errorf("Subject = %q", msg.Subject)
	}
}

func TestSweepHonorsSendHour(t *testing.T) {
	svc, _, mock, _ := newReminderFixture("2025-09-03T08:00:00Z")

	stats, err := svc.SweepAll(context.Background(), SweepOptions{})
	if err != nil {
		t.Fatalf("SweepAll() error = %v", err)
	}
	if stats.Sent != 0 || len(mock.Sent()) != 0 {
		t.Fatalf("sent before the send hour: %+v", stats)
	}

	stats, err = svc.SweepAll(context.Background(), SweepOptions{Force: true})
	if err != nil {
		t.Fatalf("forced sweep error = %v", err)
	}
	if stats.Sent != 1 {
		t.Fatalf("forced sweep stats = %+v, want one send", stats)
	}
}

func TestSweepLoweredSendHour(t *testing.T) {
	svc, _, mock, _ := newReminderFixture("2025-09-03T08:00:00Z")
	svc.SetSendHour(8)

	if _, err := svc.SweepAll(context.Background(), SweepOptions{}); err != nil {
		t.Fatalf("SweepAll() error = %v", err)
	}
	if len(mock.Sent()) != 1 {
		t.Fatalf("sent %d emails, want 1 at the lowered hour", len(mock.Sent()))
	}
}

func TestSweepDryRun(t *testing.T) {
	svc, store, mock, _ := newReminderFixture("2025-09-03T12:00:00Z")

	stats, err := svc.SweepAll(context.Background(), SweepOptions{DryRun: true})
	if err != nil {
		t.Fatalf("SweepAll() error = %v", err)
	}
	if !stats.DryRun || stats.Sent != 1 {
		t.Fatalf("stats = %+v, want counted dry-run send", stats)
	}
	if len(mock.Sent()) != 0 {
		t.Fatalf("dry run sent %d emails", len(mock.Sent()))
	}
	if len(store.reminders) != 0 {
		t.Fatalf("dry run recorded %d reminders", len(store.reminders))
	}
}

func TestSweepSkipsOptedOut(t *testing.T) {
	svc, store, mock, _ := newReminderFixture("2025-09-03T12:00:00Z")
	store.profiles["UTC"][0].DailyReminder = false

	stats, err := svc.SweepAll(context.Background(), SweepOptions{})
	if err != nil {
		t.Fatalf("SweepAll() error = %v", err)
	}
	if stats.Profiles != 0 || stats.Sent != 0 || len(mock.Sent()) != 0 {
		t.Fatalf("stats = %+v, want opted-out profile untouched", stats)
	}
}

func TestSweepSkipsWhenNothingPending(t *testing.T) {
	svc, store, mock, _ := newReminderFixture("2025-09-03T12:00:00Z")
	store.enrollments["usr_1"] = nil

	stats, err := svc.SweepAll(context.Background(), SweepOptions{})
	if err != nil {
		t.Fatalf("SweepAll() error = %v", err)
	}
	if stats.Sent != 0 || stats.Skipped != 1 {
		t.Fatalf("stats = %+v, want skip without send", stats)
	}
	if len(store.reminders) != 0 {
		t.Fatalf("recorded %d reminders with nothing pending", len(store.reminders))
	}
	if len(mock.Sent()) != 0 {
		t.Fatalf("sent %d emails with nothing pending", len(mock.Sent()))
	}
}

func TestSweepSkipsBrokenTimezone(t *testing.T) {
	svc, store, mock, _ := newReminderFixture("2025-09-03T12:00:00Z")
	store.timezones = []string{"Mars/Olympus_Mons", "UTC"}
	store.profiles["Mars/Olympus_Mons"] = []*Profile{{UserID: "usr_2", Timezone: "Mars/Olympus_Mons", DailyReminder: true}}

	stats, err := svc.SweepAll(context.Background(), SweepOptions{})
	if err != nil {
		t.Fatalf("SweepAll() error = %v", err)
	}
	if stats.Errors != 1 {
		t.Errorf("Errors = %d, want 1 for the unloadable zone", stats.Errors)
	}
	if stats.Sent != 1 || len(mock.Sent()) != 1 {
		t.Fatalf("stats = %+v, want the UTC user still reminded", stats)
	}
}

func TestSweepSendFailureIsRetriable(t *testing.T) {
	svc, store, _, _ := newReminderFixture("2025-09-03T12:00:00Z")
	svc.mailer = failingMailer{}

	stats, err := svc.SweepAll(context.Background(), SweepOptions{})
	if err != nil {
		t.Fatalf("SweepAll() error = %v", err)
	}
	if stats.Errors != 1 || stats.Sent != 0 {
		t.Fatalf("stats = %+v, want one error and no send", stats)
	}
	if len(store.reminders) != 0 {
		t.Fatalf("failed send recorded a reminder, blocking the retry")
	}

	// A later sweep with a working mailer delivers the reminder.
	mock := email.NewMockService()
	svc.mailer = mock
	if _, err := svc.SweepAll(context.Background(), SweepOptions{}); err != nil {
		t.Fatalf("retry sweep error = %v", err)
	}
	if len(mock.Sent()) != 1 {
		t.Fatalf("retry sent %d emails, want 1", len(mock.Sent()))
	}
}

func TestSweepHonorsContext(t *testing.T) {
	svc, _, mock, _ := newReminderFixture("2025-09-03T12:00:00Z")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := svc.SweepAll(ctx, SweepOptions{}); err == nil {
		t.Fatal("SweepAll() with cancelled context returned nil error")
	}
	if len(mock.Sent()) != 0 {
		t.Fatalf("cancelled sweep sent %d emails", len(mock.Sent()))
	}
}

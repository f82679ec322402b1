package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"text/template"
	"time"

	"github.com/rs/zerolog"

	"github.com/Digital-Minimalist-Lab/30-day-cohorts-webapp/internal/email"
	"github.com/Digital-Minimalist-Lab/30-day-cohorts-webapp/internal/timeutil"
)

// ReminderStore is the storage surface for the reminder sweep.
type ReminderStore interface {
	ListReminderTimezones() ([]string, error)
	ListProfilesByTimezone(tz string) ([]*Profile, error)
	GetUser(id string) (*User, error)
	ListActiveEnrollments(userID string) ([]*Enrollment, error)
	WasReminderSent(key string) (bool, error)
	RecordReminder(l *ReminderLog) error
}

// TaskLister is the slice of the task aggregator the sweep needs.
type TaskLister interface {
	UserTasks(userID, cohortID string, today timeutil.Date) ([]PendingTask, []CompletedTask, error)
}

const EmailTypeTaskReminder = "task_reminder"

// DefaultReminderHour is the earliest local hour a reminder goes out.
const DefaultReminderHour = 10

// ReminderService emails users who still have pending tasks today. The
// sweep walks profiles grouped by timezone so "today" and the send-hour
// gate are evaluated in each user's local time, and an idempotency key per
// user and day keeps hourly sweeps from mailing twice.
type ReminderService struct {
	store  ReminderStore
	tasks  TaskLister
	mailer email.Service
	log    zerolog.Logger
	now    func() time.Time
	hour   int
}

func NewReminderService(store ReminderStore, tasks TaskLister, mailer email.Service, log zerolog.Logger) *ReminderService {
	return &ReminderService{
		store:  store,
		tasks:  tasks,
		mailer: mailer,
		log:    log,
		now:    time.Now,
		hour:   DefaultReminderHour,
	}
}

// SetSendHour overrides the local-hour gate.
func (svc *ReminderService) SetSendHour(h int) {
	if h >= 0 && h <= 23 {
		svc.hour = h
	}
}

type SweepOptions struct {
	// DryRun composes and counts but neither sends nor records.
	DryRun bool
	// Force ignores the local send-hour gate.
	Force bool
}

type SweepStats struct {
	Timezones int  `json:"timezones"`
	Profiles  int  `json:"profiles"`
	Sent      int  `json:"sent"`
	Skipped   int  `json:"skipped"`
	Errors    int  `json:"errors"`
	DryRun    bool `json:"dry_run"`
}

// SweepAll runs the reminder sweep across every timezone with opted-in
// profiles.
func (svc *ReminderService) SweepAll(ctx context.Context, opts SweepOptions) (*SweepStats, error) {
	stats := &SweepStats{DryRun: opts.DryRun}
	timezones, err := svc.store.ListReminderTimezones()
	if err != nil {
		return stats, err
	}
	for _, tz := range timezones {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		stats.Timezones++
		if err := svc.sweepTimezone(ctx, tz, opts, stats); err != nil {
			return stats, err
		}
	}
	svc.log.Info().
		Int("timezones", stats.Timezones).
		Int("profiles", stats.Profiles).
		Int("sent", stats.Sent).
		Int("skipped", stats.Skipped).
		Int("errors", stats.Errors).
		Bool("dry_run", stats.DryRun).
		Msg("reminder sweep finished")
	return stats, nil
}

func (svc *ReminderService) sweepTimezone(ctx context.Context, tz string, opts SweepOptions, stats *SweepStats) error {
	loc, err := time.LoadLocation(tz)
	if err != nil {
		svc.log.Warn().Str("timezone", tz).Err(err).Msg("skipping unloadable timezone")
		stats.Errors++
		return nil
	}
	localNow := svc.now().In(loc)
	if !opts.Force && localNow.Hour() < svc.hour {
		svc.log.Debug().Str("timezone", tz).Int("hour", localNow.Hour()).Msg("before send hour, skipping timezone")
		return nil
	}
	today := timeutil.DateOf(localNow)

	profiles, err := svc.store.ListProfilesByTimezone(tz)
	if err != nil {
		return err
	}
	for _, p := range profiles {
		if err := ctx.Err(); err != nil {
			return err
		}
		if !p.DailyReminder {
			continue
		}
		stats.Profiles++
		svc.remindUser(ctx, p.UserID, today, opts, stats)
	}
	return nil
}

func (svc *ReminderService) remindUser(ctx context.Context, userID string, today timeutil.Date, opts SweepOptions, stats *SweepStats) {
	key := reminderKey(userID, today)
	sent, err := svc.store.WasReminderSent(key)
	if err != nil {
		svc.log.Error().Str("user_id", userID).Err(err).Msg("reminder lookup failed")
		stats.Errors++
		return
	}
	if sent {
		stats.Skipped++
		return
	}

	user, err := svc.store.GetUser(userID)
	if err != nil || user == nil {
		if err != nil {
			svc.log.Error().Str("user_id", userID).Err(err).Msg("user lookup failed")
			stats.Errors++
			return
		}
		stats.Skipped++
		return
	}

	pending, err := svc.pendingTasks(userID, today)
	if err != nil {
		svc.log.Error().Str("user_id", userID).Err(err).Msg("task aggregation failed")
		stats.Errors++
		return
	}
	if len(pending) == 0 {
		stats.Skipped++
		return
	}

	msg, err := composeReminder(user, pending)
	if err != nil {
		svc.log.Error().Str("user_id", userID).Err(err).Msg("reminder composition failed")
		stats.Errors++
		return
	}

	if opts.DryRun {
		svc.log.Info().Str("user_id", userID).Str("subject", msg.Subject).Int("tasks", len(pending)).Msg("dry run, would send reminder")
		stats.Sent++
		return
	}

	if err := svc.mailer.Send(ctx, msg); err != nil {
		svc.log.Error().Str("user_id", userID).Err(err).Msg("reminder send failed")
		stats.Errors++
		return
	}
	stats.Sent++

	logEntry := &ReminderLog{
		ID:             "rml_" + shortID(12),
		IdempotencyKey: key,
		RecipientEmail: user.Email,
		UserID:         userID,
		EmailType:      EmailTypeTaskReminder,
		CreatedAt:      svc.now(),
	}
	if err := svc.store.RecordReminder(logEntry); err != nil {
		if errors.Is(err, ErrDuplicateReminder) {
			svc.log.Debug().Str("user_id", userID).Msg("reminder already recorded by a concurrent sweep")
			return
		}
		// The email went out; an unrecorded log risks a duplicate on the
		// next sweep.
		svc.log.Error().Str("user_id", userID).Err(err).Msg("reminder log write failed")
		stats.Errors++
	}
}

func (svc *ReminderService) pendingTasks(userID string, today timeutil.Date) ([]PendingTask, error) {
	enrollments, err := svc.store.ListActiveEnrollments(userID)
	if err != nil {
		return nil, err
	}
	var pending []PendingTask
	for _, e := range enrollments {
		p, _, err := svc.tasks.UserTasks(userID, e.CohortID, today)
		if err != nil {
			return nil, err
		}
		pending = append(pending, p...)
	}
	return pending, nil
}

func reminderKey(userID string, today timeutil.Date) string {
	return fmt.Sprintf("%s:%s:%s", EmailTypeTaskReminder, userID, today)
}

var reminderBody = template.Must(template.New("reminder").Parse(`Hi {{.Name}},

You have {{.Count}} pending task{{if ne .Count 1}}s{{end}} in your declutter program:

{{range .Tasks}}  - {{.Title}} (due {{.OccurrenceDate}})
{{end}}
Complete them from your dashboard when you have a moment.
`))

func composeReminder(user *User, pending []PendingTask) (email.Message, error) {
	name := user.Name
	if name == "" {
		name = "there"
	}
	var body bytes.Buffer
	err := reminderBody.Execute(&body, struct {
		Name  string
		Count int
		Tasks []PendingTask
	}{Name: name, Count: len(pending), Tasks: pending})
	if err != nil {
		return email.Message{}, err
	}

	subject := fmt.Sprintf("You have %d pending tasks", len(pending))
	if len(pending) == 1 {
		subject = "Reminder: " + pending[0].Title
	}
	return email.Message{To: user.Email, Subject: subject, Body: body.String()}, nil
}

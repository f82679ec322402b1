package services

import (
	"strconv"
	"strings"
	"time"

	"github.com/Digital-Minimalist-Lab/30-day-cohorts-webapp/internal/timeutil"
)

// Frequency says how often a scheduled survey recurs within a cohort.
type Frequency string

const (
	FrequencyOnce   Frequency = "ONCE"
	FrequencyDaily  Frequency = "DAILY"
	FrequencyWeekly Frequency = "WEEKLY"
)

// AnchorPoint is the reference date a ONCE schedule offsets from.
type AnchorPoint string

const (
	AnchorEnrollStart AnchorPoint = "ENROLL_START"
	AnchorEnrollEnd   AnchorPoint = "ENROLL_END"
	AnchorCohortStart AnchorPoint = "COHORT_START"
	AnchorCohortEnd   AnchorPoint = "COHORT_END"
)

// EnrollmentStatus tracks where a user sits in the signup/payment flow.
type EnrollmentStatus string

const (
	EnrollmentPending  EnrollmentStatus = "pending"
	EnrollmentPaid     EnrollmentStatus = "paid"
	EnrollmentFree     EnrollmentStatus = "free"
	EnrollmentRefunded EnrollmentStatus = "refunded"
)

// Active reports whether the enrollment grants program access.
func (s EnrollmentStatus) Active() bool {
	return s == EnrollmentPaid || s == EnrollmentFree
}

// QuestionType is the input kind of a survey question.
type QuestionType string

const (
	QuestionText     QuestionType = "text"
	QuestionTextarea QuestionType = "textarea"
	QuestionInteger  QuestionType = "integer"
	QuestionDecimal  QuestionType = "decimal"
	QuestionRadio    QuestionType = "radio"
	QuestionInfo     QuestionType = "info"
)

// ValidQuestionType reports whether t is one of the supported kinds.
func ValidQuestionType(t QuestionType) bool {
	switch t {
	case QuestionText, QuestionTextarea, QuestionInteger, QuestionDecimal, QuestionRadio, QuestionInfo:
		return true
	}
	return false
}

type User struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	PassHash  []byte    `json:"-"`
	Name      string    `json:"name,omitempty"`
	Admin     bool      `json:"admin,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Profile holds per-user scheduling preferences. Materialized lazily with
// defaults; see ProfileService.Resolve.
type Profile struct {
	UserID         string `json:"user_id"`
	Timezone       string `json:"timezone"`
	DailyReminder  bool   `json:"daily_reminder"`
	WeeklyReminder bool   `json:"weekly_reminder"`
}

// Cohort is one time-boxed program run. StartDate and EndDate are both
// inclusive; a 30-day program has EndDate = StartDate + 29 days.
type Cohort struct {
	ID                string        `json:"id"`
	Name              string        `json:"name"`
	StartDate         timeutil.Date `json:"start_date"`
	EndDate           timeutil.Date `json:"end_date"`
	Active            bool          `json:"active"`
	Paid              bool          `json:"paid"`
	MinimumPriceCents int           `json:"minimum_price_cents,omitempty"`
	MaxSeats          int           `json:"max_seats,omitempty"`
	EnrollStart       timeutil.Date `json:"enroll_start,omitempty"`
	EnrollEnd         timeutil.Date `json:"enroll_end,omitempty"`
	CreatedAt         time.Time     `json:"created_at"`
}

// AnchorDate resolves an anchor point against the cohort's dates. Enrollment
// anchors fall back to the cohort start when no enrollment window is set.
func (c *Cohort) AnchorDate(p AnchorPoint) timeutil.Date {
	switch p {
	case AnchorEnrollStart:
		if !c.EnrollStart.IsZero() {
			return c.EnrollStart
		}
	case AnchorEnrollEnd:
		if !c.EnrollEnd.IsZero() {
			return c.EnrollEnd
		}
	case AnchorCohortEnd:
		return c.EndDate
	}
	return c.StartDate
}

// JoinableOn reports whether enrollment is open on the given date. Seat
// capacity is checked separately since it needs an enrollment count.
func (c *Cohort) JoinableOn(today timeutil.Date) bool {
	if !c.Active {
		return false
	}
	if c.EnrollStart.IsZero() && c.EnrollEnd.IsZero() {
		return !today.After(c.EndDate)
	}
	if !c.EnrollStart.IsZero() && today.Before(c.EnrollStart) {
		return false
	}
	if !c.EnrollEnd.IsZero() && today.After(c.EnrollEnd) {
		return false
	}
	return true
}

// Schedule defines when instances of a survey become due within a cohort.
// Definitions are validated at creation and immutable while the cohort runs;
// the calculator assumes they are well formed.
type Schedule struct {
	ID        string    `json:"id"`
	CohortID  string    `json:"cohort_id"`
	SurveyID  string    `json:"survey_id"`
	Frequency Frequency `json:"frequency"`
	// Cumulative keeps every missed occurrence pending; otherwise only the
	// latest occurrence is surfaced.
	Cumulative bool `json:"cumulative"`
	// DayOfWeek is used by WEEKLY schedules: 0=Monday .. 6=Sunday.
	DayOfWeek int `json:"day_of_week,omitempty"`
	// OffsetDays and OffsetFrom are used by ONCE schedules.
	OffsetDays int         `json:"offset_days,omitempty"`
	OffsetFrom AnchorPoint `json:"offset_from,omitempty"`
	// Templates may use {survey_name}, {week_number} and {due_date}.
	// Empty templates fall back to the survey's own title/description.
	TitleTemplate       string    `json:"title_template,omitempty"`
	DescriptionTemplate string    `json:"description_template,omitempty"`
	CreatedAt           time.Time `json:"created_at"`
}

type Survey struct {
	ID            string    `json:"id"`
	Slug          string    `json:"slug"`
	Name          string    `json:"name"`
	Description   string    `json:"description,omitempty"`
	TitleTemplate string    `json:"title_template,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

// Title returns the survey's display title template, defaulting to the name.
func (s *Survey) Title() string {
	if s.TitleTemplate != "" {
		return s.TitleTemplate
	}
	return s.Name
}

type Question struct {
	ID       string       `json:"id"`
	SurveyID string       `json:"survey_id"`
	Key      string       `json:"key"`
	Text     string       `json:"text"`
	Type     QuestionType `json:"type"`
	Section  string       `json:"section,omitempty"`
	Order    int          `json:"order"`
	Required bool         `json:"required"`
	// Choices maps stored values to labels for radio questions.
	Choices map[string]string `json:"choices,omitempty"`
}

type Enrollment struct {
	ID              string           `json:"id"`
	UserID          string           `json:"user_id"`
	CohortID        string           `json:"cohort_id"`
	Status          EnrollmentStatus `json:"status"`
	AmountPaidCents int              `json:"amount_paid_cents,omitempty"`
	PaidAt          time.Time        `json:"paid_at,omitempty"`
	EnrolledAt      time.Time        `json:"enrolled_at"`
}

type Answer struct {
	QuestionKey string `json:"question_key"`
	Value       string `json:"value"`
}

type Submission struct {
	ID          string    `json:"id"`
	SurveyID    string    `json:"survey_id"`
	UserID      string    `json:"user_id"`
	CohortID    string    `json:"cohort_id"`
	CompletedAt time.Time `json:"completed_at"`
	Answers     []Answer  `json:"answers,omitempty"`
}

// ResponseRecord marks one task occurrence as completed. The triple
// (UserID, ScheduleID, OccurrenceDate) is unique; a second submission for
// the same occurrence must fail with ErrDuplicateResponse at the store.
type ResponseRecord struct {
	ID             string        `json:"id"`
	UserID         string        `json:"user_id"`
	CohortID       string        `json:"cohort_id"`
	ScheduleID     string        `json:"schedule_id"`
	SubmissionID   string        `json:"submission_id"`
	OccurrenceDate timeutil.Date `json:"occurrence_date"`
	CreatedAt      time.Time     `json:"created_at"`
}

// ReminderLog records a sent reminder email for deduplication. The
// idempotency key is unique per store.
type ReminderLog struct {
	ID             string    `json:"id"`
	IdempotencyKey string    `json:"idempotency_key"`
	RecipientEmail string    `json:"recipient_email"`
	UserID         string    `json:"user_id,omitempty"`
	EmailType      string    `json:"email_type"`
	CreatedAt      time.Time `json:"created_at"`
}

type AuditEntry struct {
	Time   time.Time `json:"time"`
	Actor  string    `json:"actor"`
	Action string    `json:"action"`
	Target string    `json:"target"`
	Note   string    `json:"note,omitempty"`
}

// PendingTask is one due-but-uncompleted survey occurrence, ready for
// dashboard display.
type PendingTask struct {
	Schedule       *Schedule     `json:"schedule"`
	Survey         *Survey       `json:"survey"`
	OccurrenceDate timeutil.Date `json:"occurrence_date"`
	Title          string        `json:"title"`
	Description    string        `json:"description,omitempty"`
	WeekNumber     int           `json:"week_number"`
}

// CompletedTask is an occurrence already fulfilled by a submission.
type CompletedTask struct {
	Schedule       *Schedule     `json:"schedule"`
	Survey         *Survey       `json:"survey"`
	OccurrenceDate timeutil.Date `json:"occurrence_date"`
	SubmissionID   string        `json:"submission_id"`
	CompletedAt    time.Time     `json:"completed_at"`
}

// renderTaskTemplate substitutes the task template placeholders.
func renderTaskTemplate(tmpl string, surveyName string, week int, due timeutil.Date) string {
	r := strings.NewReplacer(
		"{survey_name}", surveyName,
		"{week_number}", strconv.Itoa(week),
		"{due_date}", due.String(),
	)
	return r.Replace(tmpl)
}

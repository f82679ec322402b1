package db

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/rs/zerolog"

	"github.com/Digital-Minimalist-Lab/30-day-cohorts-webapp/internal/api"
	"github.com/Digital-Minimalist-Lab/30-day-cohorts-webapp/internal/services"
	"github.com/Digital-Minimalist-Lab/30-day-cohorts-webapp/internal/timeutil"
)

// postgresSchema is applied on startup. Statements are idempotent so a
// restart against an existing database is a no-op.
const postgresSchema = `
CREATE TABLE IF NOT EXISTS users (
    id         TEXT PRIMARY KEY,
    email      TEXT NOT NULL,
    pass_hash  BYTEA,
    name       TEXT NOT NULL DEFAULT '',
    admin      BOOLEAN NOT NULL DEFAULT FALSE,
    created_at TIMESTAMPTZ NOT NULL
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_users_email_lower ON users (lower(email));

CREATE TABLE IF NOT EXISTS profiles (
    user_id         TEXT PRIMARY KEY REFERENCES users(id) ON DELETE CASCADE,
    timezone        TEXT NOT NULL DEFAULT 'UTC',
    daily_reminder  BOOLEAN NOT NULL DEFAULT TRUE,
    weekly_reminder BOOLEAN NOT NULL DEFAULT TRUE
);
CREATE INDEX IF NOT EXISTS idx_profiles_timezone ON profiles(timezone) WHERE daily_reminder;

CREATE TABLE IF NOT EXISTS cohorts (
    id                  TEXT PRIMARY KEY,
    name                TEXT NOT NULL,
    start_date          DATE NOT NULL,
    end_date            DATE NOT NULL,
    active              BOOLEAN NOT NULL DEFAULT TRUE,
    paid                BOOLEAN NOT NULL DEFAULT FALSE,
    minimum_price_cents INTEGER NOT NULL DEFAULT 0,
    max_seats           INTEGER NOT NULL DEFAULT 0,
    enroll_start        DATE,
    enroll_end          DATE,
    created_at          TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS surveys (
    id             TEXT PRIMARY KEY,
    slug           TEXT NOT NULL UNIQUE,
    name           TEXT NOT NULL,
    description    TEXT NOT NULL DEFAULT '',
    title_template TEXT NOT NULL DEFAULT '',
    created_at     TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS questions (
    id         TEXT PRIMARY KEY,
    survey_id  TEXT NOT NULL REFERENCES surveys(id) ON DELETE CASCADE,
    key        TEXT NOT NULL,
    text       TEXT NOT NULL,
    type       TEXT NOT NULL,
    section    TEXT NOT NULL DEFAULT '',
    sort_order INTEGER NOT NULL DEFAULT 0,
    required   BOOLEAN NOT NULL DEFAULT FALSE,
    choices    JSONB,
    UNIQUE (survey_id, key)
);

CREATE TABLE IF NOT EXISTS schedules (
    seq                  BIGSERIAL,
    id                   TEXT PRIMARY KEY,
    cohort_id            TEXT NOT NULL REFERENCES cohorts(id) ON DELETE CASCADE,
    survey_id            TEXT NOT NULL REFERENCES surveys(id),
    frequency            TEXT NOT NULL,
    cumulative           BOOLEAN NOT NULL DEFAULT FALSE,
    day_of_week          INTEGER NOT NULL DEFAULT 0,
    offset_days          INTEGER NOT NULL DEFAULT 0,
    offset_from          TEXT NOT NULL DEFAULT '',
    title_template       TEXT NOT NULL DEFAULT '',
    description_template TEXT NOT NULL DEFAULT '',
    created_at           TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_schedules_cohort ON schedules(cohort_id);

CREATE TABLE IF NOT EXISTS enrollments (
    id                TEXT PRIMARY KEY,
    user_id           TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
    cohort_id         TEXT NOT NULL REFERENCES cohorts(id) ON DELETE CASCADE,
    status            TEXT NOT NULL,
    amount_paid_cents INTEGER NOT NULL DEFAULT 0,
    paid_at           TIMESTAMPTZ,
    enrolled_at       TIMESTAMPTZ NOT NULL,
    UNIQUE (user_id, cohort_id)
);
CREATE INDEX IF NOT EXISTS idx_enrollments_user ON enrollments(user_id);
CREATE INDEX IF NOT EXISTS idx_enrollments_cohort ON enrollments(cohort_id);

CREATE TABLE IF NOT EXISTS submissions (
    seq          BIGSERIAL,
    id           TEXT PRIMARY KEY,
    survey_id    TEXT NOT NULL REFERENCES surveys(id),
    user_id      TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
    cohort_id    TEXT NOT NULL REFERENCES cohorts(id) ON DELETE CASCADE,
    completed_at TIMESTAMPTZ NOT NULL,
    answers      JSONB NOT NULL DEFAULT '[]'::jsonb
);
CREATE INDEX IF NOT EXISTS idx_submissions_user_cohort ON submissions(user_id, cohort_id);
CREATE INDEX IF NOT EXISTS idx_submissions_cohort ON submissions(cohort_id);

CREATE TABLE IF NOT EXISTS response_records (
    seq             BIGSERIAL,
    id              TEXT PRIMARY KEY,
    user_id         TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
    cohort_id       TEXT NOT NULL,
    schedule_id     TEXT NOT NULL REFERENCES schedules(id),
    submission_id   TEXT NOT NULL REFERENCES submissions(id) ON DELETE CASCADE,
    occurrence_date DATE NOT NULL,
    created_at      TIMESTAMPTZ NOT NULL,
    UNIQUE (user_id, schedule_id, occurrence_date)
);
CREATE INDEX IF NOT EXISTS idx_records_user_cohort ON response_records(user_id, cohort_id);
CREATE INDEX IF NOT EXISTS idx_records_cohort ON response_records(cohort_id);

CREATE TABLE IF NOT EXISTS reminder_logs (
    id              TEXT PRIMARY KEY,
    idempotency_key TEXT NOT NULL UNIQUE,
    recipient_email TEXT NOT NULL DEFAULT '',
    user_id         TEXT,
    email_type      TEXT NOT NULL,
    created_at      TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_reminder_logs_user ON reminder_logs(user_id);

CREATE TABLE IF NOT EXISTS audit_log (
    seq    BIGSERIAL PRIMARY KEY,
    at     TIMESTAMPTZ NOT NULL,
    actor  TEXT NOT NULL DEFAULT '',
    action TEXT NOT NULL,
    target TEXT NOT NULL DEFAULT '',
    note   TEXT NOT NULL DEFAULT ''
);
`

// EnsureSchema creates any missing tables and indexes.
func EnsureSchema(db *sqlx.DB) error {
	if _, err := db.Exec(postgresSchema); err != nil {
		return fmt.Errorf("ensure postgres schema: %w", err)
	}
	return nil
}

// PostgresStore backs the API with a shared postgres database, for
// deployments where several instances serve the same cohorts.
type PostgresStore struct {
	db  *sqlx.DB
	log zerolog.Logger
}

var _ api.Store = (*PostgresStore)(nil)

func NewPostgresStore(db *sqlx.DB, log zerolog.Logger) (*PostgresStore, error) {
	if db == nil {
		return nil, errors.New("nil db")
	}
	return &PostgresStore{db: db, log: log}, nil
}

func isPQUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}

func pqNullTime(t time.Time) sql.NullTime {
	if t.IsZero() {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

func pqNullDate(d timeutil.Date) sql.NullTime {
	if d.IsZero() {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: d.Time(), Valid: true}
}

func dateOfNull(nt sql.NullTime) timeutil.Date {
	if !nt.Valid {
		return timeutil.Date{}
	}
	return timeutil.DateOf(nt.Time)
}

func (s *PostgresStore) marshal(what string, v any) []byte {
	b, err := json.Marshal(v)
	if err != nil {
		s.log.Error().Err(err).Str("what", what).Msg("postgres store: encode json")
		return nil
	}
	return b
}

// --- Users ---

type userRow struct {
	ID        string    `db:"id"`
	Email     string    `db:"email"`
	PassHash  []byte    `db:"pass_hash"`
	Name      string    `db:"name"`
	Admin     bool      `db:"admin"`
	CreatedAt time.Time `db:"created_at"`
}

func (r userRow) toUser() *services.User {
	return &services.User{ID: r.ID, Email: r.Email, PassHash: r.PassHash, Name: r.Name, Admin: r.Admin, CreatedAt: r.CreatedAt}
}

func (s *PostgresStore) AddUser(u *services.User) error {
	_, err := s.db.Exec(`INSERT INTO users (id, email, pass_hash, name, admin, created_at)
      VALUES ($1, $2, $3, $4, $5, $6)`,
		u.ID, u.Email, u.PassHash, u.Name, u.Admin, u.CreatedAt.UTC())
	if isPQUniqueViolation(err) {
		return services.ErrEmailTaken
	}
	return err
}

func (s *PostgresStore) FindUserByEmail(email string) (*services.User, error) {
	var r userRow
	err := s.db.Get(&r, `SELECT id, email, pass_hash, name, admin, created_at
      FROM users WHERE lower(email) = lower($1)`, email)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return r.toUser(), nil
}

func (s *PostgresStore) GetUser(id string) (*services.User, error) {
	var r userRow
	err := s.db.Get(&r, `SELECT id, email, pass_hash, name, admin, created_at
      FROM users WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return r.toUser(), nil
}

// --- Profiles ---

type profileRow struct {
	UserID         string `db:"user_id"`
	Timezone       string `db:"timezone"`
	DailyReminder  bool   `db:"daily_reminder"`
	WeeklyReminder bool   `db:"weekly_reminder"`
}

func (r profileRow) toProfile() *services.Profile {
	return &services.Profile{UserID: r.UserID, Timezone: r.Timezone, DailyReminder: r.DailyReminder, WeeklyReminder: r.WeeklyReminder}
}

func (s *PostgresStore) GetProfile(userID string) (*services.Profile, error) {
	var r profileRow
	err := s.db.Get(&r, `SELECT user_id, timezone, daily_reminder, weekly_reminder
      FROM profiles WHERE user_id = $1`, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return r.toProfile(), nil
}

func (s *PostgresStore) SaveProfile(p *services.Profile) error {
	_, err := s.db.Exec(`INSERT INTO profiles (user_id, timezone, daily_reminder, weekly_reminder)
      VALUES ($1, $2, $3, $4)
      ON CONFLICT (user_id) DO UPDATE SET
        timezone = EXCLUDED.timezone,
        daily_reminder = EXCLUDED.daily_reminder,
        weekly_reminder = EXCLUDED.weekly_reminder`,
		p.UserID, p.Timezone, p.DailyReminder, p.WeeklyReminder)
	return err
}

func (s *PostgresStore) ListReminderTimezones() ([]string, error) {
	var zones []string
	err := s.db.Select(&zones, `SELECT DISTINCT timezone FROM profiles
      WHERE daily_reminder AND timezone <> '' ORDER BY timezone`)
	return zones, err
}

func (s *PostgresStore) ListProfilesByTimezone(tz string) ([]*services.Profile, error) {
	var rows []profileRow
	err := s.db.Select(&rows, `SELECT user_id, timezone, daily_reminder, weekly_reminder
      FROM profiles WHERE timezone = $1 ORDER BY user_id`, tz)
	if err != nil {
		return nil, err
	}
	out := make([]*services.Profile, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toProfile())
	}
	return out, nil
}

// --- Cohorts ---

type cohortRow struct {
	ID                string       `db:"id"`
	Name              string       `db:"name"`
	StartDate         time.Time    `db:"start_date"`
	EndDate           time.Time    `db:"end_date"`
	Active            bool         `db:"active"`
	Paid              bool         `db:"paid"`
	MinimumPriceCents int          `db:"minimum_price_cents"`
	MaxSeats          int          `db:"max_seats"`
	EnrollStart       sql.NullTime `db:"enroll_start"`
	EnrollEnd         sql.NullTime `db:"enroll_end"`
	CreatedAt         time.Time    `db:"created_at"`
}

func (r cohortRow) toCohort() *services.Cohort {
	return &services.Cohort{
		ID:                r.ID,
		Name:              r.Name,
		StartDate:         timeutil.DateOf(r.StartDate),
		EndDate:           timeutil.DateOf(r.EndDate),
		Active:            r.Active,
		Paid:              r.Paid,
		MinimumPriceCents: r.MinimumPriceCents,
		MaxSeats:          r.MaxSeats,
		EnrollStart:       dateOfNull(r.EnrollStart),
		EnrollEnd:         dateOfNull(r.EnrollEnd),
		CreatedAt:         r.CreatedAt,
	}
}

func (s *PostgresStore) CreateCohort(c *services.Cohort) error {
	_, err := s.db.Exec(`INSERT INTO cohorts
      (id, name, start_date, end_date, active, paid, minimum_price_cents, max_seats, enroll_start, enroll_end, created_at)
      VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		c.ID, c.Name, c.StartDate.Time(), c.EndDate.Time(), c.Active, c.Paid,
		c.MinimumPriceCents, c.MaxSeats, pqNullDate(c.EnrollStart), pqNullDate(c.EnrollEnd), c.CreatedAt.UTC())
	return err
}

func (s *PostgresStore) GetCohort(id string) (*services.Cohort, error) {
	var r cohortRow
	err := s.db.Get(&r, `SELECT `+cohortCols+` FROM cohorts WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return r.toCohort(), nil
}

func (s *PostgresStore) ListCohorts() ([]*services.Cohort, error) {
	var rows []cohortRow
	err := s.db.Select(&rows, `SELECT `+cohortCols+` FROM cohorts ORDER BY start_date, id`)
	if err != nil {
		return nil, err
	}
	out := make([]*services.Cohort, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toCohort())
	}
	return out, nil
}

// --- Schedules ---

type scheduleRow struct {
	ID                  string    `db:"id"`
	CohortID            string    `db:"cohort_id"`
	SurveyID            string    `db:"survey_id"`
	Frequency           string    `db:"frequency"`
	Cumulative          bool      `db:"cumulative"`
	DayOfWeek           int       `db:"day_of_week"`
	OffsetDays          int       `db:"offset_days"`
	OffsetFrom          string    `db:"offset_from"`
	TitleTemplate       string    `db:"title_template"`
	DescriptionTemplate string    `db:"description_template"`
	CreatedAt           time.Time `db:"created_at"`
}

func (r scheduleRow) toSchedule() *services.Schedule {
	return &services.Schedule{
		ID:                  r.ID,
		CohortID:            r.CohortID,
		SurveyID:            r.SurveyID,
		Frequency:           services.Frequency(r.Frequency),
		Cumulative:          r.Cumulative,
		DayOfWeek:           r.DayOfWeek,
		OffsetDays:          r.OffsetDays,
		OffsetFrom:          services.AnchorPoint(r.OffsetFrom),
		TitleTemplate:       r.TitleTemplate,
		DescriptionTemplate: r.DescriptionTemplate,
		CreatedAt:           r.CreatedAt,
	}
}

func (s *PostgresStore) CreateSchedule(sc *services.Schedule) error {
	_, err := s.db.Exec(`INSERT INTO schedules
      (id, cohort_id, survey_id, frequency, cumulative, day_of_week, offset_days, offset_from, title_template, description_template, created_at)
      VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		sc.ID, sc.CohortID, sc.SurveyID, string(sc.Frequency), sc.Cumulative, sc.DayOfWeek,
		sc.OffsetDays, string(sc.OffsetFrom), sc.TitleTemplate, sc.DescriptionTemplate, sc.CreatedAt.UTC())
	return err
}

func (s *PostgresStore) ListSchedules(cohortID string) ([]*services.Schedule, error) {
	var rows []scheduleRow
	err := s.db.Select(&rows, `SELECT id, cohort_id, survey_id, frequency, cumulative, day_of_week,
      offset_days, offset_from, title_template, description_template, created_at
      FROM schedules WHERE cohort_id = $1 ORDER BY seq`, cohortID)
	if err != nil {
		return nil, err
	}
	out := make([]*services.Schedule, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toSchedule())
	}
	return out, nil
}

// --- Surveys and questions ---

type surveyRow struct {
	ID            string    `db:"id"`
	Slug          string    `db:"slug"`
	Name          string    `db:"name"`
	Description   string    `db:"description"`
	TitleTemplate string    `db:"title_template"`
	CreatedAt     time.Time `db:"created_at"`
}

func (r surveyRow) toSurvey() *services.Survey {
	return &services.Survey{ID: r.ID, Slug: r.Slug, Name: r.Name, Description: r.Description, TitleTemplate: r.TitleTemplate, CreatedAt: r.CreatedAt}
}

func (s *PostgresStore) CreateSurvey(sv *services.Survey) error {
	_, err := s.db.Exec(`INSERT INTO surveys (id, slug, name, description, title_template, created_at)
      VALUES ($1, $2, $3, $4, $5, $6)`,
		sv.ID, sv.Slug, sv.Name, sv.Description, sv.TitleTemplate, sv.CreatedAt.UTC())
	if isPQUniqueViolation(err) {
		return fmt.Errorf("survey slug %q already exists", sv.Slug)
	}
	return err
}

func (s *PostgresStore) getSurvey(query string, arg any) (*services.Survey, error) {
	var r surveyRow
	err := s.db.Get(&r, query, arg)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return r.toSurvey(), nil
}

func (s *PostgresStore) GetSurvey(id string) (*services.Survey, error) {
	return s.getSurvey(`SELECT id, slug, name, description, title_template, created_at
      FROM surveys WHERE id = $1`, id)
}

func (s *PostgresStore) GetSurveyBySlug(slug string) (*services.Survey, error) {
	return s.getSurvey(`SELECT id, slug, name, description, title_template, created_at
      FROM surveys WHERE slug = $1`, slug)
}

type questionRow struct {
	ID       string `db:"id"`
	SurveyID string `db:"survey_id"`
	Key      string `db:"key"`
	Text     string `db:"text"`
	Type     string `db:"type"`
	Section  string `db:"section"`
	Order    int    `db:"sort_order"`
	Required bool   `db:"required"`
	Choices  []byte `db:"choices"`
}

func (s *PostgresStore) ListQuestions(surveyID string) ([]*services.Question, error) {
	var rows []questionRow
	err := s.db.Select(&rows, `SELECT id, survey_id, key, text, type, section, sort_order, required, choices
      FROM questions WHERE survey_id = $1 ORDER BY sort_order, id`, surveyID)
	if err != nil {
		return nil, err
	}
	out := make([]*services.Question, 0, len(rows))
	for _, r := range rows {
		q := &services.Question{
			ID:       r.ID,
			SurveyID: r.SurveyID,
			Key:      r.Key,
			Text:     r.Text,
			Type:     services.QuestionType(r.Type),
			Section:  r.Section,
			Order:    r.Order,
			Required: r.Required,
		}
		if len(r.Choices) > 0 {
			if err := json.Unmarshal(r.Choices, &q.Choices); err != nil {
				s.log.Error().Err(err).Str("question", r.ID).Msg("postgres store: decode choices")
			}
		}
		out = append(out, q)
	}
	return out, nil
}

func (s *PostgresStore) ReplaceQuestions(surveyID string, qs []*services.Question) error {
	tx, err := s.db.Beginx()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM questions WHERE survey_id = $1`, surveyID); err != nil {
		return err
	}
	for _, q := range qs {
		var choices []byte
		if len(q.Choices) > 0 {
			choices = s.marshal("choices", q.Choices)
		}
		if _, err := tx.Exec(`INSERT INTO questions
          (id, survey_id, key, text, type, section, sort_order, required, choices)
          VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
			q.ID, surveyID, q.Key, q.Text, string(q.Type), q.Section, q.Order, q.Required, choices); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// --- Enrollments ---

type enrollmentRow struct {
	ID              string       `db:"id"`
	UserID          string       `db:"user_id"`
	CohortID        string       `db:"cohort_id"`
	Status          string       `db:"status"`
	AmountPaidCents int          `db:"amount_paid_cents"`
	PaidAt          sql.NullTime `db:"paid_at"`
	EnrolledAt      time.Time    `db:"enrolled_at"`
}

func (r enrollmentRow) toEnrollment() *services.Enrollment {
	e := &services.Enrollment{
		ID:              r.ID,
		UserID:          r.UserID,
		CohortID:        r.CohortID,
		Status:          services.EnrollmentStatus(r.Status),
		AmountPaidCents: r.AmountPaidCents,
		EnrolledAt:      r.EnrolledAt,
	}
	if r.PaidAt.Valid {
		e.PaidAt = r.PaidAt.Time
	}
	return e
}

func (s *PostgresStore) CreateEnrollment(e *services.Enrollment) error {
	_, err := s.db.Exec(`INSERT INTO enrollments
      (id, user_id, cohort_id, status, amount_paid_cents, paid_at, enrolled_at)
      VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		e.ID, e.UserID, e.CohortID, string(e.Status), e.AmountPaidCents,
		pqNullTime(e.PaidAt), e.EnrolledAt.UTC())
	if isPQUniqueViolation(err) {
		return services.ErrDuplicateEnrollment
	}
	return err
}

func (s *PostgresStore) UpdateEnrollment(e *services.Enrollment) error {
	res, err := s.db.Exec(`UPDATE enrollments
      SET status = $1, amount_paid_cents = $2, paid_at = $3 WHERE id = $4`,
		string(e.Status), e.AmountPaidCents, pqNullTime(e.PaidAt), e.ID)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("enrollment %s not found", e.ID)
	}
	return nil
}

func (s *PostgresStore) getEnrollment(query string, args ...any) (*services.Enrollment, error) {
	var r enrollmentRow
	err := s.db.Get(&r, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return r.toEnrollment(), nil
}

func (s *PostgresStore) GetEnrollment(userID, cohortID string) (*services.Enrollment, error) {
	return s.getEnrollment(`SELECT `+enrollmentCols+` FROM enrollments
      WHERE user_id = $1 AND cohort_id = $2`, userID, cohortID)
}

func (s *PostgresStore) GetEnrollmentByID(id string) (*services.Enrollment, error) {
	return s.getEnrollment(`SELECT `+enrollmentCols+` FROM enrollments WHERE id = $1`, id)
}

func (s *PostgresStore) selectEnrollments(query string, args ...any) ([]*services.Enrollment, error) {
	var rows []enrollmentRow
	if err := s.db.Select(&rows, query, args...); err != nil {
		return nil, err
	}
	out := make([]*services.Enrollment, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toEnrollment())
	}
	return out, nil
}

func (s *PostgresStore) ListUserEnrollments(userID string) ([]*services.Enrollment, error) {
	return s.selectEnrollments(`SELECT `+enrollmentCols+` FROM enrollments
      WHERE user_id = $1 ORDER BY enrolled_at, id`, userID)
}

func (s *PostgresStore) ListActiveEnrollments(userID string) ([]*services.Enrollment, error) {
	return s.selectEnrollments(`SELECT `+enrollmentCols+` FROM enrollments
      WHERE user_id = $1 AND status IN ($2, $3) ORDER BY enrolled_at, id`,
		userID, string(services.EnrollmentPaid), string(services.EnrollmentFree))
}

func (s *PostgresStore) CountActiveEnrollments(cohortID string) (int, error) {
	var n int
	err := s.db.Get(&n, `SELECT COUNT(*) FROM enrollments
      WHERE cohort_id = $1 AND status IN ($2, $3)`,
		cohortID, string(services.EnrollmentPaid), string(services.EnrollmentFree))
	return n, err
}

// --- Submissions and response records ---

type submissionRow struct {
	ID          string    `db:"id"`
	SurveyID    string    `db:"survey_id"`
	UserID      string    `db:"user_id"`
	CohortID    string    `db:"cohort_id"`
	CompletedAt time.Time `db:"completed_at"`
	Answers     []byte    `db:"answers"`
}

func (s *PostgresStore) toSubmission(r submissionRow) *services.Submission {
	sub := &services.Submission{
		ID:          r.ID,
		SurveyID:    r.SurveyID,
		UserID:      r.UserID,
		CohortID:    r.CohortID,
		CompletedAt: r.CompletedAt,
	}
	if len(r.Answers) > 0 {
		if err := json.Unmarshal(r.Answers, &sub.Answers); err != nil {
			s.log.Error().Err(err).Str("submission", r.ID).Msg("postgres store: decode answers")
		}
	}
	return sub
}

func (s *PostgresStore) CreateSubmission(sub *services.Submission, rec *services.ResponseRecord) error {
	if rec == nil {
		return fmt.Errorf("response record required")
	}
	answers := s.marshal("answers", sub.Answers)
	if answers == nil {
		answers = []byte("[]")
	}

	tx, err := s.db.Beginx()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`INSERT INTO submissions (id, survey_id, user_id, cohort_id, completed_at, answers)
      VALUES ($1, $2, $3, $4, $5, $6)`,
		sub.ID, sub.SurveyID, sub.UserID, sub.CohortID, sub.CompletedAt.UTC(), answers); err != nil {
		return err
	}
	if _, err := tx.Exec(`INSERT INTO response_records
      (id, user_id, cohort_id, schedule_id, submission_id, occurrence_date, created_at)
      VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		rec.ID, rec.UserID, rec.CohortID, rec.ScheduleID, rec.SubmissionID,
		rec.OccurrenceDate.Time(), rec.CreatedAt.UTC()); err != nil {
		if isPQUniqueViolation(err) {
			return services.ErrDuplicateResponse
		}
		return err
	}
	return tx.Commit()
}

func (s *PostgresStore) selectSubmissions(query string, args ...any) ([]*services.Submission, error) {
	var rows []submissionRow
	if err := s.db.Select(&rows, query, args...); err != nil {
		return nil, err
	}
	out := make([]*services.Submission, 0, len(rows))
	for _, r := range rows {
		out = append(out, s.toSubmission(r))
	}
	return out, nil
}

func (s *PostgresStore) ListSubmissions(userID, cohortID string) ([]*services.Submission, error) {
	return s.selectSubmissions(`SELECT `+submissionCols+` FROM submissions
      WHERE user_id = $1 AND cohort_id = $2 ORDER BY seq`, userID, cohortID)
}

func (s *PostgresStore) ListSubmissionsByUser(userID string) ([]*services.Submission, error) {
	return s.selectSubmissions(`SELECT `+submissionCols+` FROM submissions
      WHERE user_id = $1 ORDER BY seq`, userID)
}

func (s *PostgresStore) ListSubmissionsByCohort(cohortID string) ([]*services.Submission, error) {
	return s.selectSubmissions(`SELECT `+submissionCols+` FROM submissions
      WHERE cohort_id = $1 ORDER BY seq`, cohortID)
}

type recordRow struct {
	ID             string    `db:"id"`
	UserID         string    `db:"user_id"`
	CohortID       string    `db:"cohort_id"`
	ScheduleID     string    `db:"schedule_id"`
	SubmissionID   string    `db:"submission_id"`
	OccurrenceDate time.Time `db:"occurrence_date"`
	CreatedAt      time.Time `db:"created_at"`
}

func (r recordRow) toRecord() *services.ResponseRecord {
	return &services.ResponseRecord{
		ID:             r.ID,
		UserID:         r.UserID,
		CohortID:       r.CohortID,
		ScheduleID:     r.ScheduleID,
		SubmissionID:   r.SubmissionID,
		OccurrenceDate: timeutil.DateOf(r.OccurrenceDate),
		CreatedAt:      r.CreatedAt,
	}
}

func (s *PostgresStore) selectRecords(query string, args ...any) ([]*services.ResponseRecord, error) {
	var rows []recordRow
	if err := s.db.Select(&rows, query, args...); err != nil {
		return nil, err
	}
	out := make([]*services.ResponseRecord, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toRecord())
	}
	return out, nil
}

func (s *PostgresStore) ListResponseRecords(userID, cohortID string) ([]*services.ResponseRecord, error) {
	return s.selectRecords(`SELECT `+recordCols+` FROM response_records
      WHERE user_id = $1 AND cohort_id = $2 ORDER BY seq`, userID, cohortID)
}

func (s *PostgresStore) ListResponseRecordsByUser(userID string) ([]*services.ResponseRecord, error) {
	return s.selectRecords(`SELECT `+recordCols+` FROM response_records
      WHERE user_id = $1 ORDER BY seq`, userID)
}

func (s *PostgresStore) ListResponseRecordsByCohort(cohortID string) ([]*services.ResponseRecord, error) {
	return s.selectRecords(`SELECT `+recordCols+` FROM response_records
      WHERE cohort_id = $1 ORDER BY seq`, cohortID)
}

// --- Reminder logs ---

func (s *PostgresStore) WasReminderSent(key string) (bool, error) {
	var one int
	err := s.db.Get(&one, `SELECT 1 FROM reminder_logs WHERE idempotency_key = $1`, key)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (s *PostgresStore) RecordReminder(l *services.ReminderLog) error {
	_, err := s.db.Exec(`INSERT INTO reminder_logs
      (id, idempotency_key, recipient_email, user_id, email_type, created_at)
      VALUES ($1, $2, $3, $4, $5, $6)`,
		l.ID, l.IdempotencyKey, l.RecipientEmail, toNullString(l.UserID), l.EmailType, l.CreatedAt.UTC())
	if isPQUniqueViolation(err) {
		return services.ErrDuplicateReminder
	}
	return err
}

// --- Account deletion ---

func (s *PostgresStore) DeleteUserData(userID string, hard bool) (bool, error) {
	tx, err := s.db.Beginx()
	if err != nil {
		return false, err
	}
	defer tx.Rollback()

	var one int
	err = tx.Get(&one, `SELECT 1 FROM users WHERE id = $1`, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	steps := []string{
		`DELETE FROM response_records WHERE user_id = $1`,
		`DELETE FROM submissions WHERE user_id = $1`,
		`DELETE FROM enrollments WHERE user_id = $1`,
		`DELETE FROM reminder_logs WHERE user_id = $1`,
		`DELETE FROM profiles WHERE user_id = $1`,
	}
	for _, stmt := range steps {
		if _, err := tx.Exec(stmt, userID); err != nil {
			return false, err
		}
	}
	if hard {
		if _, err := tx.Exec(`DELETE FROM users WHERE id = $1`, userID); err != nil {
			return false, err
		}
	}
	return true, tx.Commit()
}

// --- Audit ---

func (s *PostgresStore) AddAudit(e services.AuditEntry) {
	_, err := s.db.Exec(`INSERT INTO audit_log (at, actor, action, target, note)
      VALUES ($1, $2, $3, $4, $5)`,
		e.Time.UTC(), e.Actor, e.Action, e.Target, e.Note)
	if err != nil {
		s.log.Error().Err(err).Str("action", e.Action).Msg("postgres store: add audit")
	}
}

type auditRow struct {
	At     time.Time `db:"at"`
	Actor  string    `db:"actor"`
	Action string    `db:"action"`
	Target string    `db:"target"`
	Note   string    `db:"note"`
}

func (s *PostgresStore) ListAudit() []services.AuditEntry {
	var rows []auditRow
	if err := s.db.Select(&rows, `SELECT at, actor, action, target, note FROM audit_log ORDER BY seq`); err != nil {
		s.log.Error().Err(err).Msg("postgres store: list audit")
		return nil
	}
	out := make([]services.AuditEntry, 0, len(rows))
	for _, r := range rows {
		out = append(out, services.AuditEntry{Time: r.At, Actor: r.Actor, Action: r.Action, Target: r.Target, Note: r.Note})
	}
	return out
}

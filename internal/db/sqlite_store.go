package db

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"

	"github.com/Digital-Minimalist-Lab/30-day-cohorts-webapp/internal/api"
	"github.com/Digital-Minimalist-Lab/30-day-cohorts-webapp/internal/services"
	"github.com/Digital-Minimalist-Lab/30-day-cohorts-webapp/internal/timeutil"
)

// SQLiteStore keeps everything in a single sqlite file. It is the default
// persistent backend for single-host deployments.
type SQLiteStore struct {
	db  *sql.DB
	log zerolog.Logger
}

var _ api.Store = (*SQLiteStore)(nil)

// NewSQLiteStore applies the connection pragmas and wraps db. The caller
// owns the handle and runs migrations before serving traffic.
func NewSQLiteStore(db *sql.DB, log zerolog.Logger) (*SQLiteStore, error) {
	if db == nil {
		return nil, errors.New("nil db")
	}
	pragmas := []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
	}
	for _, stmt := range pragmas {
		if _, err := db.Exec(stmt); err != nil {
			return nil, fmt.Errorf("apply sqlite pragma %q: %w", stmt, err)
		}
	}
	return &SQLiteStore{db: db, log: log}, nil
}

func isUniqueViolation(err error) bool {
	var se sqlite3.Error
	if errors.As(err, &se) {
		return se.ExtendedCode == sqlite3.ErrConstraintUnique ||
			se.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func fmtTime(t time.Time) string { return t.UTC().Format(time.RFC3339Nano) }

func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func parseDate(s string) timeutil.Date {
	if s == "" {
		return timeutil.Date{}
	}
	d, err := timeutil.ParseDate(s)
	if err != nil {
		return timeutil.Date{}
	}
	return d
}

func nullDate(d timeutil.Date) sql.NullString {
	if d.IsZero() {
		return sql.NullString{}
	}
	return sql.NullString{String: d.String(), Valid: true}
}

func nullTime(t time.Time) sql.NullString {
	if t.IsZero() {
		return sql.NullString{}
	}
	return sql.NullString{String: fmtTime(t), Valid: true}
}

func (s *SQLiteStore) encodeJSON(what string, v any) sql.NullString {
	if v == nil {
		return sql.NullString{}
	}
	b, err := json.Marshal(v)
	if err != nil {
		s.log.Error().Err(err).Str("what", what).Msg("sqlite store: encode json")
		return sql.NullString{}
	}
	return sql.NullString{String: string(b), Valid: true}
}

func (s *SQLiteStore) decodeChoices(ns sql.NullString) map[string]string {
	if !ns.Valid || strings.TrimSpace(ns.String) == "" {
		return nil
	}
	var out map[string]string
	if err := json.Unmarshal([]byte(ns.String), &out); err != nil {
		s.log.Error().Err(err).Msg("sqlite store: decode choices")
		return nil
	}
	return out
}

func (s *SQLiteStore) decodeAnswers(raw string) []services.Answer {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	var out []services.Answer
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		s.log.Error().Err(err).Msg("sqlite store: decode answers")
		return nil
	}
	return out
}

// --- Users ---

func (s *SQLiteStore) AddUser(u *services.User) error {
	_, err := s.db.Exec(`INSERT INTO users (id, email, pass_hash, name, admin, created_at)
      VALUES (?, ?, ?, ?, ?, ?)`,
		u.ID, u.Email, u.PassHash, u.Name, u.Admin, fmtTime(u.CreatedAt))
	if isUniqueViolation(err) {
		return services.ErrEmailTaken
	}
	return err
}

func scanUser(sc rowScanner) (*services.User, error) {
	var u services.User
	var created string
	if err := sc.Scan(&u.ID, &u.Email, &u.PassHash, &u.Name, &u.Admin, &created); err != nil {
		return nil, err
	}
	u.CreatedAt = parseTime(created)
	return &u, nil
}

func (s *SQLiteStore) FindUserByEmail(email string) (*services.User, error) {
	if strings.TrimSpace(email) == "" {
		return nil, nil
	}
	row := s.db.QueryRow(`SELECT id, email, pass_hash, name, admin, created_at
      FROM users WHERE email = ? COLLATE NOCASE`, email)
	u, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return u, err
}

func (s *SQLiteStore) GetUser(id string) (*services.User, error) {
	row := s.db.QueryRow(`SELECT id, email, pass_hash, name, admin, created_at
      FROM users WHERE id = ?`, id)
	u, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return u, err
}

// --- Profiles ---

func (s *SQLiteStore) GetProfile(userID string) (*services.Profile, error) {
	var p services.Profile
	row := s.db.QueryRow(`SELECT user_id, timezone, daily_reminder, weekly_reminder
      FROM profiles WHERE user_id = ?`, userID)
	err := row.Scan(&p.UserID, &p.Timezone, &p.DailyReminder, &p.WeeklyReminder)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *SQLiteStore) SaveProfile(p *services.Profile) error {
	_, err := s.db.Exec(`INSERT INTO profiles (user_id, timezone, daily_reminder, weekly_reminder)
      VALUES (?, ?, ?, ?)
      ON CONFLICT(user_id) DO UPDATE SET
        timezone = excluded.timezone,
        daily_reminder = excluded.daily_reminder,
        weekly_reminder = excluded.weekly_reminder`,
		p.UserID, p.Timezone, p.DailyReminder, p.WeeklyReminder)
	return err
}

func (s *SQLiteStore) ListReminderTimezones() ([]string, error) {
	rows, err := s.db.Query(`SELECT DISTINCT timezone FROM profiles
      WHERE daily_reminder = 1 AND timezone <> '' ORDER BY timezone`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var zones []string
	for rows.Next() {
		var tz string
		if err := rows.Scan(&tz); err != nil {
			return nil, err
		}
		zones = append(zones, tz)
	}
	return zones, rows.Err()
}

func (s *SQLiteStore) ListProfilesByTimezone(tz string) ([]*services.Profile, error) {
	rows, err := s.db.Query(`SELECT user_id, timezone, daily_reminder, weekly_reminder
      FROM profiles WHERE timezone = ? ORDER BY user_id`, tz)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*services.Profile
	for rows.Next() {
		var p services.Profile
		if err := rows.Scan(&p.UserID, &p.Timezone, &p.DailyReminder, &p.WeeklyReminder); err != nil {
			return nil, err
		}
		out = append(out, &p)
	}
	return out, rows.Err()
}

// --- Cohorts ---

func (s *SQLiteStore) CreateCohort(c *services.Cohort) error {
	_, err := s.db.Exec(`INSERT INTO cohorts
      (id, name, start_date, end_date, active, paid, minimum_price_cents, max_seats, enroll_start, enroll_end, created_at)
      VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.Name, c.StartDate.String(), c.EndDate.String(), c.Active, c.Paid,
		c.MinimumPriceCents, c.MaxSeats, nullDate(c.EnrollStart), nullDate(c.EnrollEnd), fmtTime(c.CreatedAt))
	return err
}

func scanCohort(sc rowScanner) (*services.Cohort, error) {
	var c services.Cohort
	var start, end, created string
	var enrollStart, enrollEnd sql.NullString
	if err := sc.Scan(&c.ID, &c.Name, &start, &end, &c.Active, &c.Paid,
		&c.MinimumPriceCents, &c.MaxSeats, &enrollStart, &enrollEnd, &created); err != nil {
		return nil, err
	}
	c.StartDate = parseDate(start)
	c.EndDate = parseDate(end)
	c.EnrollStart = parseDate(enrollStart.String)
	c.EnrollEnd = parseDate(enrollEnd.String)
	c.CreatedAt = parseTime(created)
	return &c, nil
}

const cohortCols = `id, name, start_date, end_date, active, paid, minimum_price_cents, max_seats, enroll_start, enroll_end, created_at`

func (s *SQLiteStore) GetCohort(id string) (*services.Cohort, error) {
	row := s.db.QueryRow(`SELECT `+cohortCols+` FROM cohorts WHERE id = ?`, id)
	c, err := scanCohort(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return c, err
}

func (s *SQLiteStore) ListCohorts() ([]*services.Cohort, error) {
	rows, err := s.db.Query(`SELECT ` + cohortCols + ` FROM cohorts ORDER BY start_date, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*services.Cohort
	for rows.Next() {
		c, err := scanCohort(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// --- Schedules ---

func (s *SQLiteStore) CreateSchedule(sc *services.Schedule) error {
	_, err := s.db.Exec(`INSERT INTO schedules
      (id, cohort_id, survey_id, frequency, cumulative, day_of_week, offset_days, offset_from, title_template, description_template, created_at)
      VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sc.ID, sc.CohortID, sc.SurveyID, string(sc.Frequency), sc.Cumulative, sc.DayOfWeek,
		sc.OffsetDays, string(sc.OffsetFrom), sc.TitleTemplate, sc.DescriptionTemplate, fmtTime(sc.CreatedAt))
	return err
}

func (s *SQLiteStore) ListSchedules(cohortID string) ([]*services.Schedule, error) {
	// rowid order keeps the design file's survey order on export.
	rows, err := s.db.Query(`SELECT id, cohort_id, survey_id, frequency, cumulative, day_of_week,
      offset_days, offset_from, title_template, description_template, created_at
      FROM schedules WHERE cohort_id = ? ORDER BY rowid`, cohortID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*services.Schedule
	for rows.Next() {
		var sc services.Schedule
		var freq, anchor, created string
		if err := rows.Scan(&sc.ID, &sc.CohortID, &sc.SurveyID, &freq, &sc.Cumulative, &sc.DayOfWeek,
			&sc.OffsetDays, &anchor, &sc.TitleTemplate, &sc.DescriptionTemplate, &created); err != nil {
			return nil, err
		}
		sc.Frequency = services.Frequency(freq)
		sc.OffsetFrom = services.AnchorPoint(anchor)
		sc.CreatedAt = parseTime(created)
		out = append(out, &sc)
	}
	return out, rows.Err()
}

// --- Surveys and questions ---

func (s *SQLiteStore) CreateSurvey(sv *services.Survey) error {
	_, err := s.db.Exec(`INSERT INTO surveys (id, slug, name, description, title_template, created_at)
      VALUES (?, ?, ?, ?, ?, ?)`,
		sv.ID, sv.Slug, sv.Name, sv.Description, sv.TitleTemplate, fmtTime(sv.CreatedAt))
	if isUniqueViolation(err) {
		return fmt.Errorf("survey slug %q already exists", sv.Slug)
	}
	return err
}

func scanSurvey(sc rowScanner) (*services.Survey, error) {
	var sv services.Survey
	var created string
	if err := sc.Scan(&sv.ID, &sv.Slug, &sv.Name, &sv.Description, &sv.TitleTemplate, &created); err != nil {
		return nil, err
	}
	sv.CreatedAt = parseTime(created)
	return &sv, nil
}

func (s *SQLiteStore) GetSurvey(id string) (*services.Survey, error) {
	row := s.db.QueryRow(`SELECT id, slug, name, description, title_template, created_at
      FROM surveys WHERE id = ?`, id)
	sv, err := scanSurvey(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return sv, err
}

func (s *SQLiteStore) GetSurveyBySlug(slug string) (*services.Survey, error) {
	row := s.db.QueryRow(`SELECT id, slug, name, description, title_template, created_at
      FROM surveys WHERE slug = ?`, slug)
	sv, err := scanSurvey(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return sv, err
}

func (s *SQLiteStore) ListQuestions(surveyID string) ([]*services.Question, error) {
	rows, err := s.db.Query(`SELECT id, survey_id, key, text, type, section, sort_order, required, choices
      FROM questions WHERE survey_id = ? ORDER BY sort_order, rowid`, surveyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*services.Question
	for rows.Next() {
		var q services.Question
		var qtype string
		var choices sql.NullString
		if err := rows.Scan(&q.ID, &q.SurveyID, &q.Key, &q.Text, &qtype, &q.Section,
			&q.Order, &q.Required, &choices); err != nil {
			return nil, err
		}
		q.Type = services.QuestionType(qtype)
		q.Choices = s.decodeChoices(choices)
		out = append(out, &q)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) ReplaceQuestions(surveyID string, qs []*services.Question) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM questions WHERE survey_id = ?`, surveyID); err != nil {
		return err
	}
	for _, q := range qs {
		if _, err := tx.Exec(`INSERT INTO questions
          (id, survey_id, key, text, type, section, sort_order, required, choices)
          VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			q.ID, surveyID, q.Key, q.Text, string(q.Type), q.Section, q.Order, q.Required,
			s.encodeJSON("choices", mapOrNil(q.Choices))); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func mapOrNil(m map[string]string) any {
	if len(m) == 0 {
		return nil
	}
	return m
}

// --- Enrollments ---

func (s *SQLiteStore) CreateEnrollment(e *services.Enrollment) error {
	_, err := s.db.Exec(`INSERT INTO enrollments
      (id, user_id, cohort_id, status, amount_paid_cents, paid_at, enrolled_at)
      VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.UserID, e.CohortID, string(e.Status), e.AmountPaidCents,
		nullTime(e.PaidAt), fmtTime(e.EnrolledAt))
	if isUniqueViolation(err) {
		return services.ErrDuplicateEnrollment
	}
	return err
}

func (s *SQLiteStore) UpdateEnrollment(e *services.Enrollment) error {
	res, err := s.db.Exec(`UPDATE enrollments
      SET status = ?, amount_paid_cents = ?, paid_at = ? WHERE id = ?`,
		string(e.Status), e.AmountPaidCents, nullTime(e.PaidAt), e.ID)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("enrollment %s not found", e.ID)
	}
	return nil
}

func scanEnrollment(sc rowScanner) (*services.Enrollment, error) {
	var e services.Enrollment
	var status, enrolled string
	var paidAt sql.NullString
	if err := sc.Scan(&e.ID, &e.UserID, &e.CohortID, &status, &e.AmountPaidCents, &paidAt, &enrolled); err != nil {
		return nil, err
	}
	e.Status = services.EnrollmentStatus(status)
	e.PaidAt = parseTime(paidAt.String)
	e.EnrolledAt = parseTime(enrolled)
	return &e, nil
}

const enrollmentCols = `id, user_id, cohort_id, status, amount_paid_cents, paid_at, enrolled_at`

func (s *SQLiteStore) GetEnrollment(userID, cohortID string) (*services.Enrollment, error) {
	row := s.db.QueryRow(`SELECT `+enrollmentCols+` FROM enrollments
      WHERE user_id = ? AND cohort_id = ?`, userID, cohortID)
	e, err := scanEnrollment(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return e, err
}

func (s *SQLiteStore) GetEnrollmentByID(id string) (*services.Enrollment, error) {
	row := s.db.QueryRow(`SELECT `+enrollmentCols+` FROM enrollments WHERE id = ?`, id)
	e, err := scanEnrollment(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return e, err
}

func (s *SQLiteStore) listEnrollments(query string, args ...any) ([]*services.Enrollment, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*services.Enrollment
	for rows.Next() {
		e, err := scanEnrollment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) ListUserEnrollments(userID string) ([]*services.Enrollment, error) {
	return s.listEnrollments(`SELECT `+enrollmentCols+` FROM enrollments
      WHERE user_id = ? ORDER BY enrolled_at, id`, userID)
}

func (s *SQLiteStore) ListActiveEnrollments(userID string) ([]*services.Enrollment, error) {
	return s.listEnrollments(`SELECT `+enrollmentCols+` FROM enrollments
      WHERE user_id = ? AND status IN (?, ?) ORDER BY enrolled_at, id`,
		userID, string(services.EnrollmentPaid), string(services.EnrollmentFree))
}

func (s *SQLiteStore) CountActiveEnrollments(cohortID string) (int, error) {
	var n int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM enrollments
      WHERE cohort_id = ? AND status IN (?, ?)`,
		cohortID, string(services.EnrollmentPaid), string(services.EnrollmentFree)).Scan(&n)
	return n, err
}

// --- Submissions and response records ---

func (s *SQLiteStore) CreateSubmission(sub *services.Submission, rec *services.ResponseRecord) error {
	if rec == nil {
		return fmt.Errorf("response record required")
	}
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`INSERT INTO submissions (id, survey_id, user_id, cohort_id, completed_at, answers)
      VALUES (?, ?, ?, ?, ?, ?)`,
		sub.ID, sub.SurveyID, sub.UserID, sub.CohortID, fmtTime(sub.CompletedAt),
		s.encodeJSON("answers", sub.Answers).String); err != nil {
		return err
	}
	if _, err := tx.Exec(`INSERT INTO response_records
      (id, user_id, cohort_id, schedule_id, submission_id, occurrence_date, created_at)
      VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.UserID, rec.CohortID, rec.ScheduleID, rec.SubmissionID,
		rec.OccurrenceDate.String(), fmtTime(rec.CreatedAt)); err != nil {
		if isUniqueViolation(err) {
			return services.ErrDuplicateResponse
		}
		return err
	}
	return tx.Commit()
}

func (s *SQLiteStore) scanSubmission(sc rowScanner) (*services.Submission, error) {
	var sub services.Submission
	var completed, answers string
	if err := sc.Scan(&sub.ID, &sub.SurveyID, &sub.UserID, &sub.CohortID, &completed, &answers); err != nil {
		return nil, err
	}
	sub.CompletedAt = parseTime(completed)
	sub.Answers = s.decodeAnswers(answers)
	return &sub, nil
}

func (s *SQLiteStore) listSubmissions(query string, args ...any) ([]*services.Submission, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*services.Submission
	for rows.Next() {
		sub, err := s.scanSubmission(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sub)
	}
	return out, rows.Err()
}

const submissionCols = `id, survey_id, user_id, cohort_id, completed_at, answers`

func (s *SQLiteStore) ListSubmissions(userID, cohortID string) ([]*services.Submission, error) {
	return s.listSubmissions(`SELECT `+submissionCols+` FROM submissions
      WHERE user_id = ? AND cohort_id = ? ORDER BY rowid`, userID, cohortID)
}

func (s *SQLiteStore) ListSubmissionsByUser(userID string) ([]*services.Submission, error) {
	return s.listSubmissions(`SELECT `+submissionCols+` FROM submissions
      WHERE user_id = ? ORDER BY rowid`, userID)
}

func (s *SQLiteStore) ListSubmissionsByCohort(cohortID string) ([]*services.Submission, error) {
	return s.listSubmissions(`SELECT `+submissionCols+` FROM submissions
      WHERE cohort_id = ? ORDER BY rowid`, cohortID)
}

func (s *SQLiteStore) listRecords(query string, args ...any) ([]*services.ResponseRecord, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*services.ResponseRecord
	for rows.Next() {
		var r services.ResponseRecord
		var occurrence, created string
		if err := rows.Scan(&r.ID, &r.UserID, &r.CohortID, &r.ScheduleID, &r.SubmissionID,
			&occurrence, &created); err != nil {
			return nil, err
		}
		r.OccurrenceDate = parseDate(occurrence)
		r.CreatedAt = parseTime(created)
		out = append(out, &r)
	}
	return out, rows.Err()
}

const recordCols = `id, user_id, cohort_id, schedule_id, submission_id, occurrence_date, created_at`

func (s *SQLiteStore) ListResponseRecords(userID, cohortID string) ([]*services.ResponseRecord, error) {
	return s.listRecords(`SELECT `+recordCols+` FROM response_records
      WHERE user_id = ? AND cohort_id = ? ORDER BY rowid`, userID, cohortID)
}

func (s *SQLiteStore) ListResponseRecordsByUser(userID string) ([]*services.ResponseRecord, error) {
	return s.listRecords(`SELECT `+recordCols+` FROM response_records
      WHERE user_id = ? ORDER BY rowid`, userID)
}

func (s *SQLiteStore) ListResponseRecordsByCohort(cohortID string) ([]*services.ResponseRecord, error) {
	return s.listRecords(`SELECT `+recordCols+` FROM response_records
      WHERE cohort_id = ? ORDER BY rowid`, cohortID)
}

// --- Reminder logs ---

func (s *SQLiteStore) WasReminderSent(key string) (bool, error) {
	var one int
	err := s.db.QueryRow(`SELECT 1 FROM reminder_logs WHERE idempotency_key = ?`, key).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (s *SQLiteStore) RecordReminder(l *services.ReminderLog) error {
	_, err := s.db.Exec(`INSERT INTO reminder_logs
      (id, idempotency_key, recipient_email, user_id, email_type, created_at)
      VALUES (?, ?, ?, ?, ?, ?)`,
		l.ID, l.IdempotencyKey, l.RecipientEmail, toNullString(l.UserID), l.EmailType, fmtTime(l.CreatedAt))
	if isUniqueViolation(err) {
		return services.ErrDuplicateReminder
	}
	return err
}

func toNullString(v string) sql.NullString {
	if strings.TrimSpace(v) == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: v, Valid: true}
}

// --- Account deletion ---

func (s *SQLiteStore) DeleteUserData(userID string, hard bool) (bool, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return false, err
	}
	defer tx.Rollback()

	var one int
	err = tx.QueryRow(`SELECT 1 FROM users WHERE id = ?`, userID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	steps := []string{
		`DELETE FROM response_records WHERE user_id = ?`,
		`DELETE FROM submissions WHERE user_id = ?`,
		`DELETE FROM enrollments WHERE user_id = ?`,
		`DELETE FROM reminder_logs WHERE user_id = ?`,
		`DELETE FROM profiles WHERE user_id = ?`,
	}
	for _, stmt := range steps {
		if _, err := tx.Exec(stmt, userID); err != nil {
			return false, err
		}
	}
	if hard {
		if _, err := tx.Exec(`DELETE FROM users WHERE id = ?`, userID); err != nil {
			return false, err
		}
	}
	return true, tx.Commit()
}

// --- Audit ---

func (s *SQLiteStore) AddAudit(e services.AuditEntry) {
	_, err := s.db.Exec(`INSERT INTO audit_log (at, actor, action, target, note)
      VALUES (?, ?, ?, ?, ?)`,
		fmtTime(e.Time), e.Actor, e.Action, e.Target, e.Note)
	if err != nil {
		s.log.Error().Err(err).Str("action", e.Action).Msg("sqlite store: add audit")
	}
}

func (s *SQLiteStore) ListAudit() []services.AuditEntry {
	rows, err := s.db.Query(`SELECT at, actor, action, target, note FROM audit_log ORDER BY seq`)
	if err != nil {
		s.log.Error().Err(err).Msg("sqlite store: list audit")
		return nil
	}
	defer rows.Close()
	var out []services.AuditEntry
	for rows.Next() {
		var e services.AuditEntry
		var at string
		if err := rows.Scan(&at, &e.Actor, &e.Action, &e.Target, &e.Note); err != nil {
			s.log.Error().Err(err).Msg("sqlite store: scan audit")
			return out
		}
		e.Time = parseTime(at)
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		s.log.Error().Err(err).Msg("sqlite store: list audit")
	}
	return out
}

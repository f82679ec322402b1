package api

import (
	"github.com/Digital-Minimalist-Lab/30-day-cohorts-webapp/internal/services"
)

// Store is the full storage surface behind the API. The memory
// implementation lives in this package; sqlite and postgres in internal/db.
// The narrow per-service interfaces in internal/services are structural
// subsets of Store, so any implementation wires into every service
// directly.
//
// Getters return (nil, nil) when a row is absent. Mutations report
// unique-constraint violations through the services sentinel errors
// (ErrEmailTaken, ErrDuplicateEnrollment, ErrDuplicateResponse,
// ErrDuplicateReminder).
type Store interface {
	AddUser(u *services.User) error
	FindUserByEmail(email string) (*services.User, error)
	GetUser(id string) (*services.User, error)

	GetProfile(userID string) (*services.Profile, error)
	SaveProfile(p *services.Profile) error
	ListReminderTimezones() ([]string, error)
	ListProfilesByTimezone(tz string) ([]*services.Profile, error)

	CreateCohort(c *services.Cohort) error
	GetCohort(id string) (*services.Cohort, error)
	ListCohorts() ([]*services.Cohort, error)

	CreateSchedule(s *services.Schedule) error
	ListSchedules(cohortID string) ([]*services.Schedule, error)

	CreateSurvey(s *services.Survey) error
	GetSurvey(id string) (*services.Survey, error)
	GetSurveyBySlug(slug string) (*services.Survey, error)
	ListQuestions(surveyID string) ([]*services.Question, error)
	ReplaceQuestions(surveyID string, qs []*services.Question) error

	CreateEnrollment(e *services.Enrollment) error
	UpdateEnrollment(e *services.Enrollment) error
	GetEnrollment(userID, cohortID string) (*services.Enrollment, error)
	GetEnrollmentByID(id string) (*services.Enrollment, error)
	ListUserEnrollments(userID string) ([]*services.Enrollment, error)
	ListActiveEnrollments(userID string) ([]*services.Enrollment, error)
	CountActiveEnrollments(cohortID string) (int, error)

	// CreateSubmission stores the submission and its response record as
	// one unit; a duplicate record fails the whole write.
	CreateSubmission(sub *services.Submission, rec *services.ResponseRecord) error
	ListSubmissions(userID, cohortID string) ([]*services.Submission, error)
	ListSubmissionsByUser(userID string) ([]*services.Submission, error)
	ListSubmissionsByCohort(cohortID string) ([]*services.Submission, error)

	ListResponseRecords(userID, cohortID string) ([]*services.ResponseRecord, error)
	ListResponseRecordsByUser(userID string) ([]*services.ResponseRecord, error)
	ListResponseRecordsByCohort(cohortID string) ([]*services.ResponseRecord, error)

	WasReminderSent(key string) (bool, error)
	RecordReminder(l *services.ReminderLog) error

	// DeleteUserData removes the user's submissions, response records,
	// enrollments, reminder logs and profile. With hard it also removes
	// the user row. Returns false when the user does not exist.
	DeleteUserData(userID string, hard bool) (bool, error)

	AddAudit(e services.AuditEntry)
	ListAudit() []services.AuditEntry
}

var (
	_ services.AuthStore       = (Store)(nil)
	_ services.ProfileStore    = (Store)(nil)
	_ services.TaskStore       = (Store)(nil)
	_ services.EnrollmentStore = (Store)(nil)
	_ services.SubmissionStore = (Store)(nil)
	_ services.DesignStore     = (Store)(nil)
	_ services.ProgressStore   = (Store)(nil)
	_ services.ReminderStore   = (Store)(nil)
	_ services.ExportStore     = (Store)(nil)
)

var _ Store = (*MemoryStore)(nil)

package api

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/Digital-Minimalist-Lab/30-day-cohorts-webapp/internal/services"
)

// MemoryStore keeps everything in maps behind one RWMutex. It backs tests
// and development runs; sqlite and postgres cover real deployments.
type MemoryStore struct {
	mu            sync.RWMutex
	users         map[string]*services.User
	userIDByEmail map[string]string
	profiles      map[string]*services.Profile
	cohorts       map[string]*services.Cohort
	schedules     map[string][]*services.Schedule
	surveys       map[string]*services.Survey
	surveyBySlug  map[string]string
	questions     map[string][]*services.Question
	enrollments   map[string]*services.Enrollment
	enrollmentIdx map[string]string
	submissions   []*services.Submission
	records       []*services.ResponseRecord
	recordKeys    map[string]bool
	reminders     map[string]*services.ReminderLog
	audit         []services.AuditEntry
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:         map[string]*services.User{},
		userIDByEmail: map[string]string{},
		profiles:      map[string]*services.Profile{},
		cohorts:       map[string]*services.Cohort{},
		schedules:     map[string][]*services.Schedule{},
		surveys:       map[string]*services.Survey{},
		surveyBySlug:  map[string]string{},
		questions:     map[string][]*services.Question{},
		enrollments:   map[string]*services.Enrollment{},
		enrollmentIdx: map[string]string{},
		submissions:   []*services.Submission{},
		records:       []*services.ResponseRecord{},
		recordKeys:    map[string]bool{},
		reminders:     map[string]*services.ReminderLog{},
		audit:         []services.AuditEntry{},
	}
}

func enrollmentKey(userID, cohortID string) string { return userID + "|" + cohortID }

func recordKey(r *services.ResponseRecord) string {
	return r.UserID + "|" + r.ScheduleID + "|" + r.OccurrenceDate.String()
}

// users

func (s *MemoryStore) AddUser(u *services.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	email := strings.ToLower(u.Email)
	if _, taken := s.userIDByEmail[email]; taken {
		return services.ErrEmailTaken
	}
	s.users[u.ID] = u
	s.userIDByEmail[email] = u.ID
	return nil
}

func (s *MemoryStore) FindUserByEmail(email string) (*services.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if email == "" {
		return nil, nil
	}
	id, ok := s.userIDByEmail[strings.ToLower(email)]
	if !ok {
		return nil, nil
	}
	return s.users[id], nil
}

func (s *MemoryStore) GetUser(id string) (*services.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.users[id], nil
}

// profiles

func (s *MemoryStore) GetProfile(userID string) (*services.Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.profiles[userID], nil
}

func (s *MemoryStore) SaveProfile(p *services.Profile) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.profiles[p.UserID] = p
	return nil
}

func (s *MemoryStore) ListReminderTimezones() ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	seen := map[string]bool{}
	for _, p := range s.profiles {
		if p.DailyReminder && p.Timezone != "" {
			seen[p.Timezone] = true
		}
	}
	out := make([]string, 0, len(seen))
	for tz := range seen {
		out = append(out, tz)
	}
	sort.Strings(out)
	return out, nil
}

func (s *MemoryStore) ListProfilesByTimezone(tz string) ([]*services.Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []*services.Profile{}
	for _, p := range s.profiles {
		if p.Timezone == tz {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out, nil
}

// cohorts

func (s *MemoryStore) CreateCohort(c *services.Cohort) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cohorts[c.ID] = c
	return nil
}

func (s *MemoryStore) GetCohort(id string) (*services.Cohort, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cohorts[id], nil
}

func (s *MemoryStore) ListCohorts() ([]*services.Cohort, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*services.Cohort, 0, len(s.cohorts))
	for _, c := range s.cohorts {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].StartDate.Equal(out[j].StartDate) {
			return out[i].StartDate.Before(out[j].StartDate)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// schedules, kept in creation order so design exports mirror imports

func (s *MemoryStore) CreateSchedule(sc *services.Schedule) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.schedules[sc.CohortID] = append(s.schedules[sc.CohortID], sc)
	return nil
}

func (s *MemoryStore) ListSchedules(cohortID string) ([]*services.Schedule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]*services.Schedule(nil), s.schedules[cohortID]...), nil
}

// surveys

func (s *MemoryStore) CreateSurvey(sv *services.Survey) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.surveys[sv.ID] = sv
	if sv.Slug != "" {
		s.surveyBySlug[sv.Slug] = sv.ID
	}
	return nil
}

func (s *MemoryStore) GetSurvey(id string) (*services.Survey, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.surveys[id], nil
}

func (s *MemoryStore) GetSurveyBySlug(slug string) (*services.Survey, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.surveyBySlug[slug]
	if !ok {
		return nil, nil
	}
	return s.surveys[id], nil
}

func (s *MemoryStore) ListQuestions(surveyID string) ([]*services.Question, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]*services.Question(nil), s.questions[surveyID]...), nil
}

func (s *MemoryStore) ReplaceQuestions(surveyID string, qs []*services.Question) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := append([]*services.Question(nil), qs...)
	sort.SliceStable(cp, func(i, j int) bool { return cp[i].Order < cp[j].Order })
	s.questions[surveyID] = cp
	return nil
}

// enrollments

func (s *MemoryStore) CreateEnrollment(e *services.Enrollment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := enrollmentKey(e.UserID, e.CohortID)
	if _, dup := s.enrollmentIdx[key]; dup {
		return services.ErrDuplicateEnrollment
	}
	s.enrollments[e.ID] = e
	s.enrollmentIdx[key] = e.ID
	return nil
}

func (s *MemoryStore) UpdateEnrollment(e *services.Enrollment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.enrollments[e.ID]; !ok {
		return fmt.Errorf("enrollment %s not found", e.ID)
	}
	s.enrollments[e.ID] = e
	s.enrollmentIdx[enrollmentKey(e.UserID, e.CohortID)] = e.ID
	return nil
}

func (s *MemoryStore) GetEnrollment(userID, cohortID string) (*services.Enrollment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.enrollmentIdx[enrollmentKey(userID, cohortID)]
	if !ok {
		return nil, nil
	}
	return s.enrollments[id], nil
}

func (s *MemoryStore) GetEnrollmentByID(id string) (*services.Enrollment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.enrollments[id], nil
}

func (s *MemoryStore) ListUserEnrollments(userID string) ([]*services.Enrollment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.listEnrollments(func(e *services.Enrollment) bool { return e.UserID == userID }), nil
}

func (s *MemoryStore) ListActiveEnrollments(userID string) ([]*services.Enrollment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.listEnrollments(func(e *services.Enrollment) bool {
		return e.UserID == userID && e.Status.Active()
	}), nil
}

func (s *MemoryStore) CountActiveEnrollments(cohortID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, e := range s.enrollments {
		if e.CohortID == cohortID && e.Status.Active() {
			n++
		}
	}
	return n, nil
}

// listEnrollments is called with the lock held.
func (s *MemoryStore) listEnrollments(keep func(*services.Enrollment) bool) []*services.Enrollment {
	out := []*services.Enrollment{}
	for _, e := range s.enrollments {
		if keep(e) {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].EnrolledAt.Equal(out[j].EnrolledAt) {
			return out[i].EnrolledAt.Before(out[j].EnrolledAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// submissions and the response ledger

func (s *MemoryStore) CreateSubmission(sub *services.Submission, rec *services.ResponseRecord) error {
	if rec == nil {
		return fmt.Errorf("response record required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	key := recordKey(rec)
	if s.recordKeys[key] {
		return services.ErrDuplicateResponse
	}
	s.submissions = append(s.submissions, sub)
	s.records = append(s.records, rec)
	s.recordKeys[key] = true
	return nil
}

func (s *MemoryStore) ListSubmissions(userID, cohortID string) ([]*services.Submission, error) {
	return s.listSubmissions(func(sub *services.Submission) bool {
		return sub.UserID == userID && sub.CohortID == cohortID
	})
}

func (s *MemoryStore) ListSubmissionsByUser(userID string) ([]*services.Submission, error) {
	return s.listSubmissions(func(sub *services.Submission) bool { return sub.UserID == userID })
}

func (s *MemoryStore) ListSubmissionsByCohort(cohortID string) ([]*services.Submission, error) {
	return s.listSubmissions(func(sub *services.Submission) bool { return sub.CohortID == cohortID })
}

func (s *MemoryStore) listSubmissions(keep func(*services.Submission) bool) ([]*services.Submission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []*services.Submission{}
	for _, sub := range s.submissions {
		if keep(sub) {
			out = append(out, sub)
		}
	}
	return out, nil
}

func (s *MemoryStore) ListResponseRecords(userID, cohortID string) ([]*services.ResponseRecord, error) {
	return s.listRecords(func(r *services.ResponseRecord) bool {
		return r.UserID == userID && r.CohortID == cohortID
	})
}

func (s *MemoryStore) ListResponseRecordsByUser(userID string) ([]*services.ResponseRecord, error) {
	return s.listRecords(func(r *services.ResponseRecord) bool { return r.UserID == userID })
}

func (s *MemoryStore) ListResponseRecordsByCohort(cohortID string) ([]*services.ResponseRecord, error) {
	return s.listRecords(func(r *services.ResponseRecord) bool { return r.CohortID == cohortID })
}

func (s *MemoryStore) listRecords(keep func(*services.ResponseRecord) bool) ([]*services.ResponseRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []*services.ResponseRecord{}
	for _, r := range s.records {
		if keep(r) {
			out = append(out, r)
		}
	}
	return out, nil
}

// reminder log

func (s *MemoryStore) WasReminderSent(key string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.reminders[key]
	return ok, nil
}

func (s *MemoryStore) RecordReminder(l *services.ReminderLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, dup := s.reminders[l.IdempotencyKey]; dup {
		return services.ErrDuplicateReminder
	}
	s.reminders[l.IdempotencyKey] = l
	return nil
}

// privacy

func (s *MemoryStore) DeleteUserData(userID string, hard bool) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return false, nil
	}

	kept := s.submissions[:0]
	for _, sub := range s.submissions {
		if sub.UserID != userID {
			kept = append(kept, sub)
		}
	}
	s.submissions = kept

	keptRecs := s.records[:0]
	for _, r := range s.records {
		if r.UserID == userID {
			delete(s.recordKeys, recordKey(r))
			continue
		}
		keptRecs = append(keptRecs, r)
	}
	s.records = keptRecs

	for id, e := range s.enrollments {
		if e.UserID == userID {
			delete(s.enrollments, id)
			delete(s.enrollmentIdx, enrollmentKey(e.UserID, e.CohortID))
		}
	}
	for key, l := range s.reminders {
		if l.UserID == userID {
			delete(s.reminders, key)
		}
	}
	delete(s.profiles, userID)

	if hard {
		delete(s.userIDByEmail, strings.ToLower(u.Email))
		delete(s.users, userID)
	}
	return true, nil
}

// audit log

func (s *MemoryStore) AddAudit(e services.AuditEntry) {
	s.mu.Lock()
	s.audit = append(s.audit, e)
	s.mu.Unlock()
}

func (s *MemoryStore) ListAudit() []services.AuditEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]services.AuditEntry, len(s.audit))
	copy(out, s.audit)
	return out
}

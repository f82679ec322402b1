package services

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/Digital-Minimalist-Lab/30-day-cohorts-webapp/internal/timeutil"
)

// SubmissionStore is the storage surface for recording survey responses.
// CreateSubmission persists the submission and its response record
// atomically; a duplicate occurrence must surface ErrDuplicateResponse
// with nothing written.
type SubmissionStore interface {
	GetCohort(id string) (*Cohort, error)
	GetEnrollment(userID, cohortID string) (*Enrollment, error)
	GetSurveyBySlug(slug string) (*Survey, error)
	ListSchedules(cohortID string) ([]*Schedule, error)
	ListQuestions(surveyID string) ([]*Question, error)
	CreateSubmission(sub *Submission, rec *ResponseRecord) error
	ListSubmissions(userID, cohortID string) ([]*Submission, error)
}

// SubmissionService validates and records survey answers against a due
// occurrence.
type SubmissionService struct {
	store SubmissionStore
	now   func() time.Time
}

func NewSubmissionService(store SubmissionStore) *SubmissionService {
	return &SubmissionService{store: store, now: time.Now}
}

// SubmitInput is one survey submission. OccurrenceDate may be zero when
// exactly one occurrence of the survey is currently due.
type SubmitInput struct {
	CohortID       string            `json:"cohort_id"`
	SurveySlug     string            `json:"survey_slug"`
	OccurrenceDate timeutil.Date     `json:"occurrence_date"`
	Answers        map[string]string `json:"answers"`
}

// Submit records the user's answers for a due occurrence. The occurrence
// must be one the calculator currently reports for the schedule; completing
// the same occurrence twice is a conflict.
func (svc *SubmissionService) Submit(userID string, in SubmitInput, today timeutil.Date) (*Submission, error) {
	cohort, err := svc.store.GetCohort(in.CohortID)
	if err != nil {
		return nil, err
	}
	if cohort == nil {
		return nil, NewNotFoundError("cohort not found")
	}
	enr, err := svc.store.GetEnrollment(userID, in.CohortID)
	if err != nil {
		return nil, err
	}
	if enr == nil || !enr.Status.Active() {
		return nil, NewForbiddenError("enrollment is not active")
	}
	survey, err := svc.store.GetSurveyBySlug(in.SurveySlug)
	if err != nil {
		return nil, err
	}
	if survey == nil {
		return nil, NewNotFoundError("survey not found")
	}
	schedule, err := svc.scheduleForSurvey(in.CohortID, survey.ID)
	if err != nil {
		return nil, err
	}

	occ := in.OccurrenceDate
	due := DueOccurrences(schedule, cohort, today)
	if occ.IsZero() {
		if len(due) != 1 {
			return nil, NewInvalidError("occurrence_date is required when multiple occurrences are due")
		}
		occ = due[0]
	} else if !containsDate(due, occ) {
		return nil, NewInvalidError("occurrence is not currently due")
	}

	questions, err := svc.store.ListQuestions(survey.ID)
	if err != nil {
		return nil, err
	}
	answers, err := validateAnswers(questions, in.Answers)
	if err != nil {
		return nil, err
	}

	now := svc.now()
	sub := &Submission{
		ID:          "sub_" + shortID(12),
		SurveyID:    survey.ID,
		UserID:      userID,
		CohortID:    in.CohortID,
		CompletedAt: now,
		Answers:     answers,
	}
	rec := &ResponseRecord{
		ID:             "rec_" + shortID(12),
		UserID:         userID,
		CohortID:       in.CohortID,
		ScheduleID:     schedule.ID,
		SubmissionID:   sub.ID,
		OccurrenceDate: occ,
		CreatedAt:      now,
	}
	if err := svc.store.CreateSubmission(sub, rec); err != nil {
		if errors.Is(err, ErrDuplicateResponse) {
			return nil, NewConflictError("this occurrence is already completed")
		}
		return nil, err
	}
	return sub, nil
}

// ListForUser returns the user's own submissions in a cohort.
func (svc *SubmissionService) ListForUser(userID, cohortID string) ([]*Submission, error) {
	cohort, err := svc.store.GetCohort(cohortID)
	if err != nil {
		return nil, err
	}
	if cohort == nil {
		return nil, NewNotFoundError("cohort not found")
	}
	return svc.store.ListSubmissions(userID, cohortID)
}

func (svc *SubmissionService) scheduleForSurvey(cohortID, surveyID string) (*Schedule, error) {
	schedules, err := svc.store.ListSchedules(cohortID)
	if err != nil {
		return nil, err
	}
	for _, s := range schedules {
		if s.SurveyID == surveyID {
			return s, nil
		}
	}
	return nil, NewNotFoundError("survey is not scheduled in this cohort")
}

func containsDate(ds []timeutil.Date, d timeutil.Date) bool {
	for _, have := range ds {
		if have.Equal(d) {
			return true
		}
	}
	return false
}

// validateAnswers checks the provided answers against the survey questions
// and returns them in question order. All problems are reported at once.
func validateAnswers(questions []*Question, answers map[string]string) ([]Answer, error) {
	known := make(map[string]*Question, len(questions))
	for _, q := range questions {
		known[q.Key] = q
	}

	var problems []string
	for key := range answers {
		if _, ok := known[key]; !ok {
			problems = append(problems, fmt.Sprintf("unknown question %q", key))
		}
	}

	var out []Answer
	for _, q := range questions {
		val, ok := answers[q.Key]
		trimmed := strings.TrimSpace(val)
		if q.Type == QuestionInfo {
			continue
		}
		if !ok || trimmed == "" {
			if q.Required {
				problems = append(problems, fmt.Sprintf("question %q is required", q.Key))
			}
			continue
		}
		switch q.Type {
		case QuestionInteger:
			if _, err := strconv.Atoi(trimmed); err != nil {
				problems = append(problems, fmt.Sprintf("question %q expects an integer", q.Key))
				continue
			}
		case QuestionDecimal:
			if _, err := strconv.ParseFloat(trimmed, 64); err != nil {
				problems = append(problems, fmt.Sprintf("question %q expects a number", q.Key))
				continue
			}
		case QuestionRadio:
			if _, valid := q.Choices[trimmed]; !valid {
				problems = append(problems, fmt.Sprintf("question %q has no choice %q", q.Key, trimmed))
				continue
			}
		}
		out = append(out, Answer{QuestionKey: q.Key, Value: trimmed})
	}
	if len(problems) > 0 {
		return nil, NewInvalidError(strings.Join(problems, "; "))
	}
	return out, nil
}

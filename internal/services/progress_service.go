package services

import (
	"sort"
	"strconv"

	"github.com/Digital-Minimalist-Lab/30-day-cohorts-webapp/internal/timeutil"
)

// ProgressStore is the storage surface for per-user progress reporting.
type ProgressStore interface {
	ListSubmissions(userID, cohortID string) ([]*Submission, error)
	ListQuestions(surveyID string) ([]*Question, error)
}

// ProgressService summarizes how a user is tracking through a cohort:
// completion of due tasks plus trends over the numeric answers they have
// given so far.
type ProgressService struct {
	store ProgressStore
	tasks *TaskService
}

func NewProgressService(store ProgressStore, tasks *TaskService) *ProgressService {
	return &ProgressService{store: store, tasks: tasks}
}

// QuestionMetric aggregates a numeric question across submissions in
// completion order.
type QuestionMetric struct {
	QuestionKey string  `json:"question_key"`
	Samples     int     `json:"samples"`
	First       float64 `json:"first"`
	Last        float64 `json:"last"`
	Min         float64 `json:"min"`
	Max         float64 `json:"max"`
	Mean        float64 `json:"mean"`
	Change      float64 `json:"change"`
}

type ProgressReport struct {
	CohortID       string           `json:"cohort_id"`
	Today          timeutil.Date    `json:"today"`
	PendingCount   int              `json:"pending_count"`
	CompletedCount int              `json:"completed_count"`
	CompletionRate float64          `json:"completion_rate"`
	Metrics        []QuestionMetric `json:"metrics,omitempty"`
}

// Report builds the user's progress for a cohort as of today.
func (svc *ProgressService) Report(userID, cohortID string, today timeutil.Date) (*ProgressReport, error) {
	pending, completed, err := svc.tasks.UserTasks(userID, cohortID, today)
	if err != nil {
		return nil, err
	}

	subs, err := svc.store.ListSubmissions(userID, cohortID)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(subs, func(i, j int) bool {
		if !subs[i].CompletedAt.Equal(subs[j].CompletedAt) {
			return subs[i].CompletedAt.Before(subs[j].CompletedAt)
		}
		return subs[i].ID < subs[j].ID
	})

	series, err := svc.numericSeries(subs)
	if err != nil {
		return nil, err
	}

	report := &ProgressReport{
		CohortID:       cohortID,
		Today:          today,
		PendingCount:   len(pending),
		CompletedCount: len(completed),
	}
	if total := len(pending) + len(completed); total > 0 {
		report.CompletionRate = float64(len(completed)) / float64(total)
	}

	keys := make([]string, 0, len(series))
	for key := range series {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		report.Metrics = append(report.Metrics, summarize(key, series[key]))
	}
	return report, nil
}

// numericSeries extracts integer and decimal answers per question key, in
// submission order.
func (svc *ProgressService) numericSeries(subs []*Submission) (map[string][]float64, error) {
	numeric := map[string]bool{}
	seen := map[string]bool{}
	for _, sub := range subs {
		if seen[sub.SurveyID] {
			continue
		}
		seen[sub.SurveyID] = true
		questions, err := svc.store.ListQuestions(sub.SurveyID)
		if err != nil {
			return nil, err
		}
		for _, q := range questions {
			if q.Type == QuestionInteger || q.Type == QuestionDecimal {
				numeric[q.Key] = true
			}
		}
	}

	series := map[string][]float64{}
	for _, sub := range subs {
		for _, a := range sub.Answers {
			if !numeric[a.QuestionKey] {
				continue
			}
			v, err := strconv.ParseFloat(a.Value, 64)
			if err != nil {
				continue
			}
			series[a.QuestionKey] = append(series[a.QuestionKey], v)
		}
	}
	return series, nil
}

func summarize(key string, values []float64) QuestionMetric {
	m := QuestionMetric{
		QuestionKey: key,
		Samples:     len(values),
		First:       values[0],
		Last:        values[len(values)-1],
		Min:         values[0],
		Max:         values[0],
	}
	sum := 0.0
	for _, v := range values {
		sum += v
		if v < m.Min {
			m.Min = v
		}
		if v > m.Max {
			m.Max = v
		}
	}
	m.Mean = sum / float64(len(values))
	m.Change = m.Last - m.First
	return m
}

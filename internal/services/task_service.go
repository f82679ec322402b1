package services

import (
	"fmt"
	"sort"

	"github.com/Digital-Minimalist-Lab/30-day-cohorts-webapp/internal/timeutil"
)

// TaskStore is the storage surface the task aggregator needs.
type TaskStore interface {
	GetCohort(id string) (*Cohort, error)
	ListSchedules(cohortID string) ([]*Schedule, error)
	GetSurvey(id string) (*Survey, error)
	ListResponseRecords(userID, cohortID string) ([]*ResponseRecord, error)
}

// TaskService resolves what a user owes and has already done for a cohort
// on a given date. It never touches the clock; callers resolve today in
// the user's timezone first.
type TaskService struct {
	store TaskStore
}

func NewTaskService(store TaskStore) *TaskService {
	return &TaskService{store: store}
}

type occurrenceKey struct {
	ScheduleID string
	Date       timeutil.Date
}

// UserTasks evaluates every schedule of the cohort against today and
// splits the due occurrences into pending and completed using the user's
// response records. Both lists are ordered by occurrence date, then by
// display rank, anchor date and schedule id, so repeated calls with the
// same inputs produce identical output.
func (svc *TaskService) UserTasks(userID, cohortID string, today timeutil.Date) ([]PendingTask, []CompletedTask, error) {
	cohort, err := svc.store.GetCohort(cohortID)
	if err != nil {
		return nil, nil, err
	}
	if cohort == nil {
		return nil, nil, NewNotFoundError("cohort not found")
	}
	if !cohort.Active || today.Before(cohort.StartDate) {
		return nil, nil, nil
	}

	schedules, err := svc.store.ListSchedules(cohortID)
	if err != nil {
		return nil, nil, err
	}
	// Stores list schedules in creation order; evaluation runs in anchor
	// order.
	SortSchedules(schedules, cohort)
	records, err := svc.store.ListResponseRecords(userID, cohortID)
	if err != nil {
		return nil, nil, err
	}
	done := make(map[occurrenceKey]*ResponseRecord, len(records))
	for _, r := range records {
		done[occurrenceKey{r.ScheduleID, r.OccurrenceDate}] = r
	}

	var pending []PendingTask
	var completed []CompletedTask
	for _, s := range schedules {
		survey, err := svc.store.GetSurvey(s.SurveyID)
		if err != nil {
			return nil, nil, err
		}
		if survey == nil {
			return nil, nil, fmt.Errorf("schedule %s references missing survey %s", s.ID, s.SurveyID)
		}
		for _, occ := range DueOccurrences(s, cohort, today) {
			if rec, ok := done[occurrenceKey{s.ID, occ}]; ok {
				completed = append(completed, CompletedTask{
					Schedule:       s,
					Survey:         survey,
					OccurrenceDate: occ,
					SubmissionID:   rec.SubmissionID,
					CompletedAt:    rec.CreatedAt,
				})
				continue
			}
			week := occ.DaysSince(cohort.StartDate)/7 + 1
			pending = append(pending, PendingTask{
				Schedule:       s,
				Survey:         survey,
				OccurrenceDate: occ,
				Title:          taskTitle(s, survey, week, occ),
				Description:    taskDescription(s, survey, week, occ),
				WeekNumber:     week,
			})
		}
	}

	sortPending(pending, cohort)
	sortCompleted(completed, cohort)
	return pending, completed, nil
}

// PendingCount reports how many tasks the user still owes. Reminder sweeps
// use it without materializing rendered titles.
func (svc *TaskService) PendingCount(userID, cohortID string, today timeutil.Date) (int, error) {
	pending, _, err := svc.UserTasks(userID, cohortID, today)
	if err != nil {
		return 0, err
	}
	return len(pending), nil
}

func taskTitle(s *Schedule, survey *Survey, week int, due timeutil.Date) string {
	tmpl := s.TitleTemplate
	if tmpl == "" {
		tmpl = survey.Title()
	}
	return renderTaskTemplate(tmpl, survey.Name, week, due)
}

func taskDescription(s *Schedule, survey *Survey, week int, due timeutil.Date) string {
	tmpl := s.DescriptionTemplate
	if tmpl == "" {
		tmpl = survey.Description
	}
	return renderTaskTemplate(tmpl, survey.Name, week, due)
}

func sortPending(tasks []PendingTask, c *Cohort) {
	sort.SliceStable(tasks, func(i, j int) bool {
		return taskLess(tasks[i].Schedule, tasks[i].OccurrenceDate, tasks[j].Schedule, tasks[j].OccurrenceDate, c)
	})
}

func sortCompleted(tasks []CompletedTask, c *Cohort) {
	sort.SliceStable(tasks, func(i, j int) bool {
		return taskLess(tasks[i].Schedule, tasks[i].OccurrenceDate, tasks[j].Schedule, tasks[j].OccurrenceDate, c)
	})
}

func taskLess(si *Schedule, di timeutil.Date, sj *Schedule, dj timeutil.Date, c *Cohort) bool {
	if !di.Equal(dj) {
		return di.Before(dj)
	}
	ri, rj := scheduleRank(si), scheduleRank(sj)
	if ri != rj {
		return ri < rj
	}
	ai, aj := ScheduleAnchor(si, c), ScheduleAnchor(sj, c)
	if !ai.Equal(aj) {
		return ai.Before(aj)
	}
	return si.ID < sj.ID
}

package services

import (
	"fmt"
	"strings"
	"time"

	"github.com/Digital-Minimalist-Lab/30-day-cohorts-webapp/internal/timeutil"
)

// DesignStore is the storage surface for authoring cohorts from design
// documents. Surveys are shared across cohorts by slug; GetSurvey,
// GetSurveyBySlug and GetCohort return (nil, nil) when absent.
type DesignStore interface {
	ListCohorts() ([]*Cohort, error)
	GetCohort(id string) (*Cohort, error)
	CreateCohort(c *Cohort) error
	GetSurvey(id string) (*Survey, error)
	GetSurveyBySlug(slug string) (*Survey, error)
	CreateSurvey(s *Survey) error
	ListQuestions(surveyID string) ([]*Question, error)
	ReplaceQuestions(surveyID string, qs []*Question) error
	ListSchedules(cohortID string) ([]*Schedule, error)
	CreateSchedule(s *Schedule) error
}

// DesignService turns design documents into cohorts and back.
type DesignService struct {
	store DesignStore
	now   func() time.Time
}

func NewDesignService(store DesignStore) *DesignService {
	return &DesignService{store: store, now: time.Now}
}

// CreateCohortInput creates a cohort directly, optionally instantiating the
// built-in program design. Zero DurationDays defaults to 30.
type CreateCohortInput struct {
	Name              string        `json:"name"`
	StartDate         timeutil.Date `json:"start_date"`
	DurationDays      int           `json:"duration_days"`
	Paid              bool          `json:"paid"`
	MinimumPriceCents int           `json:"minimum_price_cents"`
	MaxSeats          int           `json:"max_seats"`
	UseDefaultDesign  bool          `json:"use_default_design"`
}

// CreateCohort creates a cohort from explicit fields. With UseDefaultDesign
// the built-in declutter design is instantiated under the given name and
// window; otherwise the cohort starts with no schedules.
func (svc *DesignService) CreateCohort(in CreateCohortInput) (*Cohort, error) {
	if in.Name == "" {
		return nil, NewInvalidError("name is required")
	}
	if in.StartDate.IsZero() {
		return nil, NewInvalidError("start_date is required")
	}
	if in.DurationDays == 0 {
		in.DurationDays = 30
	}
	if in.DurationDays < 1 {
		return nil, NewInvalidError("duration_days must be at least 1")
	}

	if in.UseDefaultDesign {
		d := DefaultDesign()
		d.Template.Name = in.Name
		d.Template.DurationDays = in.DurationDays
		d.Template.IsPaid = in.Paid
		d.Template.MinimumPriceCents = in.MinimumPriceCents
		d.Template.MaxSeats = in.MaxSeats
		return svc.Import(d, in.StartDate)
	}

	if err := svc.checkDuplicate(in.Name, in.StartDate); err != nil {
		return nil, err
	}
	c := &Cohort{
		ID:                "coh_" + shortID(12),
		Name:              in.Name,
		StartDate:         in.StartDate,
		EndDate:           in.StartDate.AddDays(in.DurationDays - 1),
		Active:            true,
		Paid:              in.Paid,
		MinimumPriceCents: in.MinimumPriceCents,
		MaxSeats:          in.MaxSeats,
		CreatedAt:         svc.now(),
	}
	if err := svc.store.CreateCohort(c); err != nil {
		return nil, err
	}
	return c, nil
}

// Import instantiates a design document as a new cohort starting on start.
// A zero start falls back to the document's own start_date. Surveys are
// matched by slug and reused when they already exist, so repeated imports
// of the same program share survey history across cohorts. Importing the
// same name and start twice is a conflict, which makes directory-watch
// imports idempotent.
func (svc *DesignService) Import(d *CohortDesign, start timeutil.Date) (*Cohort, error) {
	if problems := d.Validate(); len(problems) > 0 {
		return nil, NewInvalidError(strings.Join(problems, "; "))
	}
	if start.IsZero() {
		start = d.Template.StartDate
	}
	if start.IsZero() {
		return nil, NewInvalidError("start date is required to import a design")
	}
	if err := svc.checkDuplicate(d.Template.Name, start); err != nil {
		return nil, err
	}

	now := svc.now()
	cohort := &Cohort{
		ID:                "coh_" + shortID(12),
		Name:              d.Template.Name,
		StartDate:         start,
		EndDate:           start.AddDays(d.Template.DurationDays - 1),
		Active:            true,
		Paid:              d.Template.IsPaid,
		MinimumPriceCents: d.Template.MinimumPriceCents,
		MaxSeats:          d.Template.MaxSeats,
		CreatedAt:         now,
	}
	if err := svc.store.CreateCohort(cohort); err != nil {
		return nil, err
	}

	for _, sd := range d.Surveys {
		survey, err := svc.ensureSurvey(&sd, now)
		if err != nil {
			return nil, err
		}
		schedule := sd.Schedule.toSchedule(cohort.ID, survey.ID)
		schedule.ID = "sch_" + shortID(12)
		schedule.CreatedAt = now
		if err := svc.store.CreateSchedule(schedule); err != nil {
			return nil, err
		}
	}
	return cohort, nil
}

// ensureSurvey finds the survey by slug or creates it with its questions.
// Existing surveys keep their current questions untouched.
func (svc *DesignService) ensureSurvey(sd *SurveyDesign, now time.Time) (*Survey, error) {
	survey, err := svc.store.GetSurveyBySlug(sd.Slug)
	if err != nil {
		return nil, err
	}
	if survey != nil {
		return survey, nil
	}
	survey = &Survey{
		ID:            "svy_" + shortID(12),
		Slug:          sd.Slug,
		Name:          sd.Name,
		Description:   sd.Description,
		TitleTemplate: sd.TitleTemplate,
		CreatedAt:     now,
	}
	if err := svc.store.CreateSurvey(survey); err != nil {
		return nil, err
	}

	ordered := allZeroOrder(sd.Questions)
	qs := make([]*Question, 0, len(sd.Questions))
	for i, qd := range sd.Questions {
		order := qd.Order
		if ordered {
			order = i
		}
		qs = append(qs, &Question{
			ID:       "que_" + shortID(12),
			SurveyID: survey.ID,
			Key:      qd.Key,
			Text:     qd.Text,
			Type:     qd.Type,
			Section:  qd.Section,
			Order:    order,
			Required: qd.IsRequired,
			Choices:  qd.Choices,
		})
	}
	if err := svc.store.ReplaceQuestions(survey.ID, qs); err != nil {
		return nil, err
	}
	return survey, nil
}

// allZeroOrder reports whether the design leaves ordering implicit, in
// which case document order wins.
func allZeroOrder(qs []QuestionDesign) bool {
	for _, q := range qs {
		if q.Order != 0 {
			return false
		}
	}
	return true
}

func (svc *DesignService) checkDuplicate(name string, start timeutil.Date) error {
	cohorts, err := svc.store.ListCohorts()
	if err != nil {
		return err
	}
	for _, c := range cohorts {
		if c.Name == name && c.StartDate.Equal(start) {
			return NewConflictError(fmt.Sprintf("cohort %q starting %s already exists", name, start))
		}
	}
	return nil
}

// Export renders an existing cohort back into a design document that
// re-imports to an equivalent cohort.
func (svc *DesignService) Export(cohortID string) (*CohortDesign, error) {
	cohort, err := svc.store.GetCohort(cohortID)
	if err != nil {
		return nil, err
	}
	if cohort == nil {
		return nil, NewNotFoundError("cohort not found")
	}

	d := &CohortDesign{
		Template: CohortTemplate{
			Name:              cohort.Name,
			StartDate:         cohort.StartDate,
			DurationDays:      cohort.EndDate.DaysSince(cohort.StartDate) + 1,
			IsPaid:            cohort.Paid,
			MinimumPriceCents: cohort.MinimumPriceCents,
			MaxSeats:          cohort.MaxSeats,
		},
	}

	schedules, err := svc.store.ListSchedules(cohortID)
	if err != nil {
		return nil, err
	}
	for _, s := range schedules {
		survey, err := svc.store.GetSurvey(s.SurveyID)
		if err != nil {
			return nil, err
		}
		if survey == nil {
			return nil, fmt.Errorf("schedule %s references missing survey %s", s.ID, s.SurveyID)
		}
		questions, err := svc.store.ListQuestions(survey.ID)
		if err != nil {
			return nil, err
		}

		sd := SurveyDesign{
			Slug:          survey.Slug,
			Name:          survey.Name,
			Description:   survey.Description,
			TitleTemplate: survey.TitleTemplate,
			Schedule: ScheduleDesign{
				Frequency:               s.Frequency,
				IsCumulative:            s.Cumulative,
				TaskTitleTemplate:       s.TitleTemplate,
				TaskDescriptionTemplate: s.DescriptionTemplate,
			},
		}
		switch s.Frequency {
		case FrequencyWeekly:
			sd.Schedule.DayOfWeek = intPtr(s.DayOfWeek)
		case FrequencyOnce:
			sd.Schedule.OffsetDays = s.OffsetDays
			sd.Schedule.OffsetFrom = s.OffsetFrom
		}
		for _, q := range questions {
			sd.Questions = append(sd.Questions, QuestionDesign{
				Key:        q.Key,
				Text:       q.Text,
				Type:       q.Type,
				IsRequired: q.Required,
				Order:      q.Order,
				Section:    q.Section,
				Choices:    q.Choices,
			})
		}
		d.Surveys = append(d.Surveys, sd)
	}
	return d, nil
}

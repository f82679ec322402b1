package services

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"go.yaml.in/yaml/v3"

	"github.com/Digital-Minimalist-Lab/30-day-cohorts-webapp/internal/timeutil"
)

// Design documents describe a cohort as data: the cohort template plus its
// surveys, their questions and their schedules. They round-trip through
// YAML and JSON so cohorts can be authored in files, imported over the API
// or dropped into a watched directory.

const (
	FormatYAML = "yaml"
	FormatJSON = "json"
)

// CohortDesign is the root of a design document.
type CohortDesign struct {
	Template CohortTemplate `json:"cohort_template" yaml:"cohort_template"`
	Surveys  []SurveyDesign `json:"surveys" yaml:"surveys"`
}

// CohortTemplate carries the cohort-level fields. StartDate is optional;
// imports may pass the start date out of band instead.
type CohortTemplate struct {
	Name              string        `json:"name" yaml:"name"`
	StartDate         timeutil.Date `json:"start_date,omitempty" yaml:"start_date,omitempty"`
	DurationDays      int           `json:"duration_days" yaml:"duration_days"`
	IsPaid            bool          `json:"is_paid,omitempty" yaml:"is_paid,omitempty"`
	MinimumPriceCents int           `json:"minimum_price_cents,omitempty" yaml:"minimum_price_cents,omitempty"`
	MaxSeats          int           `json:"max_seats,omitempty" yaml:"max_seats,omitempty"`
}

type SurveyDesign struct {
	Slug          string           `json:"slug" yaml:"slug"`
	Name          string           `json:"name" yaml:"name"`
	Description   string           `json:"description,omitempty" yaml:"description,omitempty"`
	TitleTemplate string           `json:"title_template,omitempty" yaml:"title_template,omitempty"`
	Questions     []QuestionDesign `json:"questions" yaml:"questions"`
	Schedule      ScheduleDesign   `json:"schedule" yaml:"schedule"`
}

type QuestionDesign struct {
	Key        string            `json:"key" yaml:"key"`
	Text       string            `json:"text" yaml:"text"`
	Type       QuestionType      `json:"type" yaml:"type"`
	IsRequired bool              `json:"is_required,omitempty" yaml:"is_required,omitempty"`
	Order      int               `json:"order,omitempty" yaml:"order,omitempty"`
	Section    string            `json:"section,omitempty" yaml:"section,omitempty"`
	Choices    map[string]string `json:"choices,omitempty" yaml:"choices,omitempty"`
}

// ScheduleDesign mirrors Schedule without identifiers. DayOfWeek is a
// pointer so a missing value is distinguishable from Monday.
type ScheduleDesign struct {
	Frequency               Frequency   `json:"frequency" yaml:"frequency"`
	IsCumulative            bool        `json:"is_cumulative,omitempty" yaml:"is_cumulative,omitempty"`
	DayOfWeek               *int        `json:"day_of_week,omitempty" yaml:"day_of_week,omitempty"`
	OffsetDays              int         `json:"offset_days,omitempty" yaml:"offset_days,omitempty"`
	OffsetFrom              AnchorPoint `json:"offset_from,omitempty" yaml:"offset_from,omitempty"`
	TaskTitleTemplate       string      `json:"task_title_template,omitempty" yaml:"task_title_template,omitempty"`
	TaskDescriptionTemplate string      `json:"task_description_template,omitempty" yaml:"task_description_template,omitempty"`
}

// ParseDesign decodes a design document. Unknown fields are rejected so
// typos in hand-written files fail loudly instead of silently dropping a
// schedule knob.
func ParseDesign(data []byte, format string) (*CohortDesign, error) {
	var d CohortDesign
	switch format {
	case FormatYAML:
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&d); err != nil {
			if errors.Is(err, io.EOF) {
				return nil, NewInvalidError("design document is empty")
			}
			return nil, NewInvalidError(fmt.Sprintf("invalid yaml design: %v", err))
		}
	case FormatJSON:
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&d); err != nil {
			return nil, NewInvalidError(fmt.Sprintf("invalid json design: %v", err))
		}
	default:
		return nil, NewInvalidError(fmt.Sprintf("unsupported design format %q", format))
	}
	return &d, nil
}

// EncodeDesign renders a design document in the requested format.
func EncodeDesign(d *CohortDesign, format string) ([]byte, error) {
	switch format {
	case FormatYAML:
		return yaml.Marshal(d)
	case FormatJSON:
		return json.MarshalIndent(d, "", "  ")
	}
	return nil, NewInvalidError(fmt.Sprintf("unsupported design format %q", format))
}

// DesignFormatForPath guesses the format from a file extension, defaulting
// to YAML.
func DesignFormatForPath(path string) string {
	if strings.EqualFold(filepath.Ext(path), ".json") {
		return FormatJSON
	}
	return FormatYAML
}

// Validate returns every problem in the design, empty when it is sound.
func (d *CohortDesign) Validate() []string {
	var problems []string
	if d.Template.Name == "" {
		problems = append(problems, "cohort_template.name is required")
	}
	if d.Template.DurationDays < 1 {
		problems = append(problems, "cohort_template.duration_days must be at least 1")
	}
	if d.Template.MinimumPriceCents < 0 {
		problems = append(problems, "cohort_template.minimum_price_cents must not be negative")
	}
	if d.Template.MaxSeats < 0 {
		problems = append(problems, "cohort_template.max_seats must not be negative")
	}
	if len(d.Surveys) == 0 {
		problems = append(problems, "at least one survey is required")
	}

	// Synthetic window for checking that ONCE due dates land inside the
	// cohort. Only the duration matters.
	window := &Cohort{StartDate: timeutil.NewDate(2000, 1, 3)}
	if d.Template.DurationDays > 0 {
		window.EndDate = window.StartDate.AddDays(d.Template.DurationDays - 1)
	} else {
		window.EndDate = window.StartDate
	}

	slugs := map[string]bool{}
	for i, sd := range d.Surveys {
		where := fmt.Sprintf("surveys[%d]", i)
		if sd.Slug == "" {
			problems = append(problems, where+".slug is required")
		} else if slugs[sd.Slug] {
			problems = append(problems, fmt.Sprintf("%s.slug %q appears more than once", where, sd.Slug))
		}
		slugs[sd.Slug] = true
		if sd.Name == "" {
			problems = append(problems, where+".name is required")
		}
		if len(sd.Questions) == 0 {
			problems = append(problems, where+" has no questions")
		}
		keys := map[string]bool{}
		for j, q := range sd.Questions {
			qwhere := fmt.Sprintf("%s.questions[%d]", where, j)
			if q.Key == "" {
				problems = append(problems, qwhere+".key is required")
			} else if keys[q.Key] {
				problems = append(problems, fmt.Sprintf("%s.key %q appears more than once", qwhere, q.Key))
			}
			keys[q.Key] = true
			if q.Text == "" {
				problems = append(problems, qwhere+".text is required")
			}
			if !ValidQuestionType(q.Type) {
				problems = append(problems, fmt.Sprintf("%s.type %q is not supported", qwhere, q.Type))
			}
			if q.Type == QuestionRadio && len(q.Choices) == 0 {
				problems = append(problems, qwhere+" is a radio question without choices")
			}
		}
		problems = append(problems, sd.Schedule.validate(where+".schedule", window)...)
	}
	return problems
}

func (sd *ScheduleDesign) validate(where string, window *Cohort) []string {
	var problems []string
	switch sd.Frequency {
	case FrequencyDaily:
	case FrequencyWeekly:
		if sd.DayOfWeek == nil {
			problems = append(problems, where+".day_of_week is required for WEEKLY")
		} else if *sd.DayOfWeek < 0 || *sd.DayOfWeek > 6 {
			problems = append(problems, where+".day_of_week must be between 0 (Monday) and 6 (Sunday)")
		}
	case FrequencyOnce:
		s := sd.toSchedule("", "")
		if err := ValidateSchedule(s, window); err != nil {
			problems = append(problems, where+": "+err.Error())
		}
	default:
		problems = append(problems, fmt.Sprintf("%s.frequency %q is not supported", where, sd.Frequency))
	}
	return problems
}

func (sd *ScheduleDesign) toSchedule(cohortID, surveyID string) *Schedule {
	s := &Schedule{
		CohortID:            cohortID,
		SurveyID:            surveyID,
		Frequency:           sd.Frequency,
		Cumulative:          sd.IsCumulative,
		OffsetDays:          sd.OffsetDays,
		OffsetFrom:          sd.OffsetFrom,
		TitleTemplate:       sd.TaskTitleTemplate,
		DescriptionTemplate: sd.TaskDescriptionTemplate,
	}
	if sd.DayOfWeek != nil {
		s.DayOfWeek = *sd.DayOfWeek
	}
	return s
}

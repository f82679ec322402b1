package services

func intPtr(n int) *int { return &n }

// DefaultDesign is the built-in 30-day digital declutter program: an entry
// survey on day one, a daily check-in, a weekly reflection every Sunday and
// an exit survey on the last day. New cohorts can start from it instead of
// a hand-written design file.
func DefaultDesign() *CohortDesign {
	return &CohortDesign{
		Template: CohortTemplate{
			Name:         "30-Day Digital Declutter",
			DurationDays: 30,
		},
		Surveys: []SurveyDesign{
			{
				Slug:        "entry",
				Name:        "Entry Survey",
				Description: "Where you are starting from and what you want out of the month.",
				Questions: []QuestionDesign{
					{Key: "intention_text", Text: "What do you want to get out of the next 30 days?", Type: QuestionTextarea, IsRequired: true, Order: 0},
					{Key: "baseline_screentime_min", Text: "On a typical day, how many minutes do you spend on your phone?", Type: QuestionInteger, IsRequired: true, Order: 1},
					{Key: "phone_first_thing", Text: "Do you usually reach for your phone within 10 minutes of waking up?", Type: QuestionRadio, IsRequired: true, Order: 2,
						Choices: map[string]string{"yes": "Yes", "no": "No"}},
					{Key: "apps_to_quit", Text: "Which apps or sites do you want to step away from?", Type: QuestionTextarea, Order: 3},
				},
				Schedule: ScheduleDesign{
					Frequency:  FrequencyOnce,
					OffsetFrom: AnchorCohortStart,
				},
			},
			{
				Slug:        "daily-check-in",
				Name:        "Daily Check-in",
				Description: "A short daily pulse on mood and screen time.",
				Questions: []QuestionDesign{
					{Key: "mood_1to5", Text: "How was your mood today, 1 (low) to 5 (great)?", Type: QuestionInteger, IsRequired: true, Order: 0, Section: "Mood"},
					{Key: "digital_satisfaction_1to5", Text: "How satisfied are you with how you used technology today, 1 to 5?", Type: QuestionInteger, IsRequired: true, Order: 1, Section: "Mood"},
					{Key: "screentime_min", Text: "Roughly how many minutes of screen time did you have today?", Type: QuestionInteger, Order: 2, Section: "Screen time"},
					{Key: "proud_moment_text", Text: "What is one moment from today you are proud of?", Type: QuestionTextarea, Order: 3, Section: "Reflection"},
					{Key: "digital_slip_text", Text: "Did you slip back into an old habit? What happened?", Type: QuestionTextarea, Order: 4, Section: "Reflection"},
					{Key: "reflection_text", Text: "Anything else on your mind?", Type: QuestionTextarea, Order: 5, Section: "Reflection"},
				},
				Schedule: ScheduleDesign{
					Frequency:         FrequencyDaily,
					TaskTitleTemplate: "Daily check-in for {due_date}",
				},
			},
			{
				Slug:        "weekly-reflection",
				Name:        "Weekly Reflection",
				Description: "A longer look back at the week.",
				Questions: []QuestionDesign{
					{Key: "wins_text", Text: "What went well this week?", Type: QuestionTextarea, IsRequired: true, Order: 0},
					{Key: "challenges_text", Text: "What was hardest this week?", Type: QuestionTextarea, Order: 1},
					{Key: "screentime_trend", Text: "Compared to last week, your screen time went:", Type: QuestionRadio, Order: 2,
						Choices: map[string]string{"down": "Down", "same": "About the same", "up": "Up"}},
					{Key: "week_rating_1to5", Text: "How would you rate this week overall, 1 to 5?", Type: QuestionInteger, IsRequired: true, Order: 3},
				},
				Schedule: ScheduleDesign{
					Frequency:         FrequencyWeekly,
					IsCumulative:      true,
					DayOfWeek:         intPtr(6),
					TaskTitleTemplate: "Week {week_number} reflection",
				},
			},
			{
				Slug:        "exit",
				Name:        "Exit Survey",
				Description: "How the month went and what you are keeping.",
				Questions: []QuestionDesign{
					{Key: "outcome_text", Text: "Looking back at your entry intentions, how did the month go?", Type: QuestionTextarea, IsRequired: true, Order: 0},
					{Key: "final_screentime_min", Text: "On a typical day now, how many minutes do you spend on your phone?", Type: QuestionInteger, Order: 1},
					{Key: "keep_habits_text", Text: "Which new habits do you plan to keep?", Type: QuestionTextarea, Order: 2},
					{Key: "program_rating_1to5", Text: "How valuable was the program for you, 1 to 5?", Type: QuestionInteger, IsRequired: true, Order: 3},
				},
				Schedule: ScheduleDesign{
					Frequency:  FrequencyOnce,
					OffsetFrom: AnchorCohortEnd,
				},
			},
		},
	}
}

package services

import (
	"reflect"
	"testing"

	"github.com/Digital-Minimalist-Lab/30-day-cohorts-webapp/internal/timeutil"
)

func testCohort(start string, days int) *Cohort {
	s := timeutil.MustDate(start)
	return &Cohort{
		ID:        "coh_test",
		Name:      "Test Cohort",
		StartDate: s,
		EndDate:   s.AddDays(days - 1),
		Active:    true,
	}
}

func dates(ss ...string) []timeutil.Date {
	out := make([]timeutil.Date, 0, len(ss))
	for _, s := range ss {
		out = append(out, timeutil.MustDate(s))
	}
	return out
}

func TestDueOccurrencesOnce(t *testing.T) {
	// 2025-09-01 is a Monday; end date is 2025-09-30.
	c := testCohort("2025-09-01", 30)
	entry := &Schedule{ID: "sch_entry", Frequency: FrequencyOnce, OffsetFrom: AnchorCohortStart}
	exit := &Schedule{ID: "sch_exit", Frequency: FrequencyOnce, OffsetFrom: AnchorCohortEnd}

	cases := []struct {
		name  string
		sched *Schedule
		today string
		want  []timeutil.Date
	}{
		{"entry before start", entry, "2025-08-31", nil},
		{"entry on due date", entry, "2025-09-01", dates("2025-09-01")},
		{"entry stays due later", entry, "2025-09-15", dates("2025-09-01")},
		{"exit before due", exit, "2025-09-29", nil},
		{"exit on due date", exit, "2025-09-30", dates("2025-09-30")},
		{"exit after cohort end", exit, "2025-10-05", dates("2025-09-30")},
	}
	for _, tc := range cases {
		got := DueOccurrences(tc.sched, c, timeutil.MustDate(tc.today))
		if !reflect.DeepEqual(got, tc.want) {
			t.Errorf("%s: DueOccurrences = %v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestDueOccurrencesOnceWithOffset(t *testing.T) {
	c := testCohort("2025-09-01", 30)
	s := &Schedule{ID: "sch_mid", Frequency: FrequencyOnce, OffsetFrom: AnchorCohortStart, OffsetDays: 3}

	if got := DueOccurrences(s, c, timeutil.MustDate("2025-09-03")); got != nil {
		t.Fatalf("before offset day: DueOccurrences = %v, want nil", got)
	}
	want := dates("2025-09-04")
	if got := DueOccurrences(s, c, timeutil.MustDate("2025-09-04")); !reflect.DeepEqual(got, want) {
		t.Fatalf("on offset day: DueOccurrences = %v, want %v", got, want)
	}
}

func TestDueOccurrencesDailyCumulative(t *testing.T) {
	c := testCohort("2025-09-01", 30)
	s := &Schedule{ID: "sch_daily", Frequency: FrequencyDaily, Cumulative: true}

	if got := DueOccurrences(s, c, timeutil.MustDate("2025-08-31")); got != nil {
		t.Fatalf("before start: DueOccurrences = %v, want nil", got)
	}

	want := dates("2025-09-01", "2025-09-02", "2025-09-03")
	if got := DueOccurrences(s, c, timeutil.MustDate("2025-09-03")); !reflect.DeepEqual(got, want) {
		t.Fatalf("day three: DueOccurrences = %v, want %v", got, want)
	}

	// Past the cohort end every day of the window is due, and no more.
	got := DueOccurrences(s, c, timeutil.MustDate("2025-10-05"))
	if len(got) != 30 {
		t.Fatalf("after end: len = %d, want 30", len(got))
	}
	if !got[0].Equal(c.StartDate) || !got[29].Equal(c.EndDate) {
		t.Fatalf("after end: range %v..%v, want %v..%v", got[0], got[29], c.StartDate, c.EndDate)
	}
}

func TestDueOccurrencesDailyNonCumulative(t *testing.T) {
	c := testCohort("2025-09-01", 30)
	s := &Schedule{ID: "sch_daily", Frequency: FrequencyDaily}

	want := dates("2025-09-03")
	if got := DueOccurrences(s, c, timeutil.MustDate("2025-09-03")); !reflect.DeepEqual(got, want) {
		t.Fatalf("mid window: DueOccurrences = %v, want %v", got, want)
	}
	want = dates("2025-09-30")
	if got := DueOccurrences(s, c, timeutil.MustDate("2025-10-05")); !reflect.DeepEqual(got, want) {
		t.Fatalf("after end: DueOccurrences = %v, want %v", got, want)
	}
}

func TestDueOccurrencesWeeklyCumulative(t *testing.T) {
	c := testCohort("2025-09-01", 30)
	s := &Schedule{ID: "sch_weekly", Frequency: FrequencyWeekly, Cumulative: true, DayOfWeek: 0}

	// Start is a Monday, so Monday occurrences land on start, +7, +14.
	want := dates("2025-09-01", "2025-09-08", "2025-09-15")
	if got := DueOccurrences(s, c, timeutil.MustDate("2025-09-16")); !reflect.DeepEqual(got, want) {
		t.Fatalf("DueOccurrences = %v, want %v", got, want)
	}
}

func TestDueOccurrencesWeeklyNonCumulative(t *testing.T) {
	c := testCohort("2025-09-01", 30)
	s := &Schedule{ID: "sch_weekly", Frequency: FrequencyWeekly, DayOfWeek: 6}

	// First Sunday is 2025-09-07; by the 16th two have passed and only the
	// latest remains due.
	want := dates("2025-09-14")
	if got := DueOccurrences(s, c, timeutil.MustDate("2025-09-16")); !reflect.DeepEqual(got, want) {
		t.Fatalf("DueOccurrences = %v, want %v", got, want)
	}

	if got := DueOccurrences(s, c, timeutil.MustDate("2025-09-06")); got != nil {
		t.Fatalf("before first occurrence: DueOccurrences = %v, want nil", got)
	}
}

func TestDueOccurrencesWeeklySundayWindow(t *testing.T) {
	// 2024-01-01 is a Monday; Sundays in the window are the 7th, 14th, 21st, 28th.
	c := testCohort("2024-01-01", 30)
	cumulative := &Schedule{ID: "sch_w1", Frequency: FrequencyWeekly, Cumulative: true, DayOfWeek: 6}
	latest := &Schedule{ID: "sch_w2", Frequency: FrequencyWeekly, DayOfWeek: 6}

	today := timeutil.MustDate("2024-01-15")
	want := dates("2024-01-07", "2024-01-14")
	if got := DueOccurrences(cumulative, c, today); !reflect.DeepEqual(got, want) {
		t.Fatalf("cumulative: DueOccurrences = %v, want %v", got, want)
	}
	want = dates("2024-01-14")
	if got := DueOccurrences(latest, c, today); !reflect.DeepEqual(got, want) {
		t.Fatalf("non-cumulative: DueOccurrences = %v, want %v", got, want)
	}
}

func TestDueOccurrencesClampToEnd(t *testing.T) {
	c := testCohort("2024-01-01", 30)
	schedules := []*Schedule{
		{ID: "s1", Frequency: FrequencyOnce, OffsetFrom: AnchorCohortEnd},
		{ID: "s2", Frequency: FrequencyDaily, Cumulative: true},
		{ID: "s3", Frequency: FrequencyDaily},
		{ID: "s4", Frequency: FrequencyWeekly, Cumulative: true, DayOfWeek: 2},
		{ID: "s5", Frequency: FrequencyWeekly, DayOfWeek: 4},
	}
	atEnd := c.EndDate
	longAfter := c.EndDate.AddDays(90)
	for _, s := range schedules {
		a := DueOccurrences(s, c, atEnd)
		b := DueOccurrences(s, c, longAfter)
		if !reflect.DeepEqual(a, b) {
			t.Errorf("%s: results diverge after cohort end: %v vs %v", s.ID, a, b)
		}
	}
}

func TestDueOccurrencesEnrollmentAnchors(t *testing.T) {
	c := testCohort("2025-09-01", 30)
	// Without per-user enrollment windows the enrollment anchors coincide
	// with the cohort window.
	start := &Schedule{ID: "s1", Frequency: FrequencyOnce, OffsetFrom: AnchorEnrollStart, OffsetDays: 2}
	end := &Schedule{ID: "s2", Frequency: FrequencyOnce, OffsetFrom: AnchorEnrollEnd}

	want := dates("2025-09-03")
	if got := DueOccurrences(start, c, timeutil.MustDate("2025-09-10")); !reflect.DeepEqual(got, want) {
		t.Fatalf("enroll start anchor: DueOccurrences = %v, want %v", got, want)
	}
	want = dates("2025-09-30")
	if got := DueOccurrences(end, c, timeutil.MustDate("2025-09-30")); !reflect.DeepEqual(got, want) {
		t.Fatalf("enroll end anchor: DueOccurrences = %v, want %v", got, want)
	}
}

func TestFirstWeekday(t *testing.T) {
	cases := []struct {
		start string
		dow   int
		want  string
	}{
		{"2025-09-01", 0, "2025-09-01"}, // Monday start, Monday target
		{"2025-09-01", 6, "2025-09-07"}, // Monday start, Sunday target
		{"2025-09-03", 0, "2025-09-08"}, // Wednesday start, Monday target
		{"2025-09-03", 2, "2025-09-03"}, // Wednesday start, Wednesday target
	}
	for _, tc := range cases {
		got := firstWeekday(timeutil.MustDate(tc.start), tc.dow)
		if got.String() != tc.want {
			t.Errorf("firstWeekday(%s, %d) = %s, want %s", tc.start, tc.dow, got, tc.want)
		}
	}
}

func TestSortSchedules(t *testing.T) {
	c := testCohort("2025-09-01", 30)
	exit := &Schedule{ID: "sch_a", Frequency: FrequencyOnce, OffsetFrom: AnchorCohortEnd}
	weekly := &Schedule{ID: "sch_b", Frequency: FrequencyWeekly, DayOfWeek: 0}
	daily := &Schedule{ID: "sch_c", Frequency: FrequencyDaily}
	entry := &Schedule{ID: "sch_d", Frequency: FrequencyOnce, OffsetFrom: AnchorCohortStart}

	schedules := []*Schedule{exit, weekly, daily, entry}
	SortSchedules(schedules, c)

	want := []string{"sch_d", "sch_c", "sch_b", "sch_a"}
	for i, s := range schedules {
		if s.ID != want[i] {
			t.Fatalf("position %d = %s, want %s", i, s.ID, want[i])
		}
	}
}

func TestValidateSchedule(t *testing.T) {
	c := testCohort("2025-09-01", 30)
	cases := []struct {
		name    string
		sched   *Schedule
		wantErr bool
	}{
		{"daily", &Schedule{Frequency: FrequencyDaily}, false},
		{"weekly valid", &Schedule{Frequency: FrequencyWeekly, DayOfWeek: 6}, false},
		{"weekly day out of range", &Schedule{Frequency: FrequencyWeekly, DayOfWeek: 7}, true},
		{"once in window", &Schedule{Frequency: FrequencyOnce, OffsetFrom: AnchorCohortStart, OffsetDays: 10}, false},
		{"once past end", &Schedule{Frequency: FrequencyOnce, OffsetFrom: AnchorCohortStart, OffsetDays: 45}, true},
		{"once before start", &Schedule{Frequency: FrequencyOnce, OffsetFrom: AnchorCohortEnd, OffsetDays: -45}, true},
		{"once missing anchor", &Schedule{Frequency: FrequencyOnce}, true},
		{"unknown frequency", &Schedule{Frequency: Frequency("MONTHLY")}, true},
	}
	for _, tc := range cases {
		err := ValidateSchedule(tc.sched, c)
		if (err != nil) != tc.wantErr {
			t.Errorf("%s: ValidateSchedule err = %v, wantErr = %v", tc.name, err, tc.wantErr)
		}
	}
}

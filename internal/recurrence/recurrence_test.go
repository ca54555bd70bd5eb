package recurrence

import (
	"testing"
	"time"

	"gorm.io/datatypes"

	"taskplanner/internal/model"
)

func at(y int, m time.Month, d, h, min int) *time.Time {
	t := time.Date(y, m, d, h, min, 0, 0, time.UTC)
	return &t
}

func intPtr(n int) *int { return &n }

func TestNext_AdvancesByInterval(t *testing.T) {
	due := at(2024, time.March, 10, 9, 0)
	cases := []struct {
		name     string
		typ      model.RecurrenceType
		interval *int
		want     time.Time
	}{
		{"daily default interval", model.RecurDaily, nil, time.Date(2024, 3, 11, 9, 0, 0, 0, time.UTC)},
		{"daily every 3", model.RecurDaily, intPtr(3), time.Date(2024, 3, 13, 9, 0, 0, 0, time.UTC)},
		{"weekly every 2", model.RecurWeekly, intPtr(2), time.Date(2024, 3, 24, 9, 0, 0, 0, time.UTC)},
		{"monthly", model.RecurMonthly, intPtr(1), time.Date(2024, 4, 10, 9, 0, 0, 0, time.UTC)},
		{"monthly across year", model.RecurMonthly, intPtr(10), time.Date(2025, 1, 10, 9, 0, 0, 0, time.UTC)},
		{"yearly", model.RecurYearly, intPtr(1), time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)},
		{"zero interval treated as one", model.RecurDaily, intPtr(0), time.Date(2024, 3, 11, 9, 0, 0, 0, time.UTC)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			task := &model.Task{DueDate: due, IsRecurring: true, RecurrenceType: tc.typ, RecurrenceInterval: tc.interval}
			got, ok := Next(task)
			if !ok {
				t.Fatalf("expected next occurrence")
			}
			if !got.Equal(tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, got)
			}
			if !got.After(*due) {
				t.Fatalf("expected next after due, got %v", got)
			}
		})
	}
}

func TestNext_MonthEndClamping(t *testing.T) {
	cases := []struct {
		name string
		due  *time.Time
		typ  model.RecurrenceType
		want time.Time
	}{
		{"jan 31 leap year", at(2024, time.January, 31, 9, 0), model.RecurMonthly, time.Date(2024, 2, 29, 9, 0, 0, 0, time.UTC)},
		{"jan 31 common year", at(2023, time.January, 31, 9, 0), model.RecurMonthly, time.Date(2023, 2, 28, 9, 0, 0, 0, time.UTC)},
		{"mar 31 to apr 30", at(2024, time.March, 31, 8, 30), model.RecurMonthly, time.Date(2024, 4, 30, 8, 30, 0, 0, time.UTC)},
		{"feb 29 yearly", at(2024, time.February, 29, 0, 0), model.RecurYearly, time.Date(2025, 2, 28, 0, 0, 0, 0, time.UTC)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := Next(&model.Task{DueDate: tc.due, RecurrenceType: tc.typ})
			if !ok || !got.Equal(tc.want) {
				t.Fatalf("expected %v, got %v (ok=%v)", tc.want, got, ok)
			}
		})
	}
}

func TestNext_KeepsLocalWallClock(t *testing.T) {
	loc := time.FixedZone("+03:00", 3*3600)
	due := time.Date(2024, 1, 31, 23, 30, 0, 0, loc)
	got, ok := Next(&model.Task{DueDate: &due, RecurrenceType: model.RecurMonthly})
	if !ok {
		t.Fatalf("expected next occurrence")
	}
	want := time.Date(2024, 2, 29, 23, 30, 0, 0, loc)
	if !got.Equal(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
}

func TestNext_EndDate(t *testing.T) {
	end := at(2024, time.February, 1, 9, 0)

	got, ok := Next(&model.Task{DueDate: at(2024, time.January, 20, 9, 0), RecurrenceType: model.RecurDaily, RecurrenceEndDate: end})
	if !ok || !got.Equal(time.Date(2024, 1, 21, 9, 0, 0, 0, time.UTC)) {
		t.Fatalf("expected 2024-01-21, got %v (ok=%v)", got, ok)
	}

	got, ok = Next(&model.Task{DueDate: at(2024, time.January, 31, 9, 0), RecurrenceType: model.RecurDaily, RecurrenceEndDate: end})
	if !ok || !got.Equal(*end) {
		t.Fatalf("expected next equal to end date to be valid, got %v (ok=%v)", got, ok)
	}

	if _, ok := Next(&model.Task{DueDate: end, RecurrenceType: model.RecurDaily, RecurrenceEndDate: end}); ok {
		t.Fatalf("expected no occurrence past end date")
	}
}

func TestNext_NoAnchor(t *testing.T) {
	if _, ok := Next(&model.Task{RecurrenceType: model.RecurDaily}); ok {
		t.Fatalf("expected none without due date")
	}
	if _, ok := Next(&model.Task{DueDate: at(2024, 1, 1, 0, 0)}); ok {
		t.Fatalf("expected none without recurrence type")
	}
	if _, ok := Next(nil); ok {
		t.Fatalf("expected none for nil task")
	}
}

func TestNext_Custom(t *testing.T) {
	// 2024-03-13 is a Wednesday.
	due := at(2024, time.March, 13, 7, 0)
	cases := []struct {
		name     string
		days     string
		interval *int
		want     time.Time
		ok       bool
	}{
		{"later same week", `["MON","FRI"]`, nil, time.Date(2024, 3, 15, 7, 0, 0, 0, time.UTC), true},
		{"wraps to next week", `["MON","WED"]`, nil, time.Date(2024, 3, 18, 7, 0, 0, 0, time.UTC), true},
		{"wraps every two weeks", `["tuesday"]`, intPtr(2), time.Date(2024, 3, 26, 7, 0, 0, 0, time.UTC), true},
		{"sunday closes the week", `["SUN"]`, nil, time.Date(2024, 3, 17, 7, 0, 0, 0, time.UTC), true},
		{"empty set", `[]`, nil, time.Time{}, false},
		{"unknown day", `["XYZ"]`, nil, time.Time{}, false},
		{"not json", `MON`, nil, time.Time{}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			task := &model.Task{
				DueDate:            due,
				RecurrenceType:     model.RecurCustom,
				RecurrenceInterval: tc.interval,
				RecurrenceDays:     datatypes.JSON(tc.days),
			}
			got, ok := Next(task)
			if ok != tc.ok {
				t.Fatalf("expected ok=%v, got %v", tc.ok, ok)
			}
			if ok && !got.Equal(tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, got)
			}
		})
	}
}

func TestDayCodes_MondayFirst(t *testing.T) {
	days, ok := ParseDays(datatypes.JSON(`["sunday","Fri","mon"]`))
	if !ok {
		t.Fatalf("expected valid day-set")
	}
	got := DayCodes(days)
	want := []string{"MON", "FRI", "SUN"}
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, got)
		}
	}
}

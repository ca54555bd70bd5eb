package bot

import (
	"errors"
	"strings"
	"testing"
	"time"

	"taskplanner/internal/model"
	"taskplanner/internal/notify"
	"taskplanner/internal/recurrence"
	"taskplanner/internal/service"
)

func TestParseNewTask(t *testing.T) {
	loc := time.FixedZone("UTC+3", 3*3600)

	input, err := parseNewTask(" pay rent | due 2025-11-30 18:00 | priority high | every monthly 2 | until 2026-06-01 | notes flat 4", loc)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if input.Title != "pay rent" || input.Priority != "HIGH" || input.Notes != "flat 4" {
		t.Fatalf("unexpected input %+v", input)
	}
	want := time.Date(2025, 11, 30, 15, 0, 0, 0, time.UTC)
	if input.DueDate == nil || !input.DueDate.Equal(want) {
		t.Fatalf("expected due %v, got %v", want, input.DueDate)
	}
	if input.AllDay == nil || *input.AllDay {
		t.Fatalf("expected timed task, got %v", input.AllDay)
	}
	if input.IsRecurring == nil || !*input.IsRecurring || input.RecurrenceType != "MONTHLY" {
		t.Fatalf("expected monthly recurrence, got %+v", input)
	}
	if input.RecurrenceInterval == nil || *input.RecurrenceInterval != 2 || input.RecurrenceEndDate == nil {
		t.Fatalf("expected interval and end date, got %+v", input)
	}
}

func TestParseNewTask_DateOnlyAndDays(t *testing.T) {
	input, err := parseNewTask("gym | due 2025-03-03 | every custom | days mon, wed", time.UTC)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if input.AllDay == nil || !*input.AllDay {
		t.Fatalf("expected all-day task")
	}
	if strings.Join(input.RecurrenceDays, ",") != "MON,WED" {
		t.Fatalf("unexpected days %v", input.RecurrenceDays)
	}
}

func TestParseNewTask_UntilDateCoversWholeDay(t *testing.T) {
	loc := time.FixedZone("UTC+3", 3*3600)
	input, err := parseNewTask("standup | due 2024-01-31 09:00 | every daily | until 2024-02-01", loc)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	want := time.Date(2024, 2, 1, 23, 59, 59, int(time.Second-time.Nanosecond), loc)
	if input.RecurrenceEndDate == nil || !input.RecurrenceEndDate.Equal(want) {
		t.Fatalf("expected end %v, got %v", want, input.RecurrenceEndDate)
	}

	// The occurrence on the end date itself is still produced.
	task := &model.Task{
		DueDate:           input.DueDate,
		IsRecurring:       true,
		RecurrenceType:    model.RecurDaily,
		RecurrenceEndDate: input.RecurrenceEndDate,
	}
	next, ok := recurrence.Next(task)
	if !ok || !next.Equal(time.Date(2024, 2, 1, 9, 0, 0, 0, loc)) {
		t.Fatalf("expected occurrence on 2024-02-01 09:00, got %v (%v)", next, ok)
	}
}

func TestParseEmail(t *testing.T) {
	if got, err := parseEmail("  Ann <ann@example.com> "); err != nil || got != "ann@example.com" {
		t.Fatalf("expected bare address, got %q (%v)", got, err)
	}
	if got, err := parseEmail("OFF"); err != nil || got != "" {
		t.Fatalf("expected empty address for off, got %q (%v)", got, err)
	}
	for _, bad := range []string{"", "not-an-address"} {
		if _, err := parseEmail(bad); !errors.Is(err, errUsage) {
			t.Fatalf("%q: expected errUsage, got %v", bad, err)
		}
	}
}

func TestParseNewTask_Errors(t *testing.T) {
	cases := map[string]string{
		"empty title":   "  | due 2025-01-01",
		"bad date":      "x | due tomorrow",
		"bad repeat":    "x | every fortnight",
		"bad interval":  "x | every daily two",
		"unknown piece": "x | colour red",
	}
	for name, args := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := parseNewTask(args, time.UTC); err == nil {
				t.Fatalf("expected error for %q", args)
			}
		})
	}
	if _, err := parseNewTask("", time.UTC); !errors.Is(err, errUsage) {
		t.Fatalf("expected usage error, got %v", err)
	}
}

func TestParseRemind(t *testing.T) {
	loc := time.FixedZone("UTC-5", -5*3600)

	id, at, typ, err := parseRemind("12 2025-11-30 09:00 both", loc)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if id != 12 || typ != model.ReminderBoth || !at.Equal(time.Date(2025, 11, 30, 14, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected result %d %v %v", id, at, typ)
	}

	if _, _, typ, err := parseRemind("3 2025-01-01 08:30", loc); err != nil || typ != model.ReminderNotification {
		t.Fatalf("expected push default, got %v (%v)", typ, err)
	}
	if _, _, _, err := parseRemind("3 2025-01-01", loc); !errors.Is(err, errUsage) {
		t.Fatalf("expected usage error, got %v", err)
	}
	if _, _, _, err := parseRemind("3 2025-01-01 08:30 pigeon", loc); err == nil {
		t.Fatalf("expected unknown channel error")
	}
	if _, _, _, err := parseRemind("abc 2025-01-01 08:30", loc); err == nil {
		t.Fatalf("expected bad id error")
	}
}

func TestShortTitle(t *testing.T) {
	if got := shortTitle("  buy\nmilk  ", 20); got != "Buy milk" {
		t.Fatalf("unexpected %q", got)
	}
	if got := shortTitle("abcdefghij", 5); got != "Abcd…" {
		t.Fatalf("unexpected %q", got)
	}
}

func TestFormatTask(t *testing.T) {
	now := time.Date(2025, 5, 10, 12, 0, 0, 0, time.UTC)
	due := now.Add(-time.Hour)
	interval := 2
	view := service.TaskView{
		ID:                 7,
		Title:              "<script>",
		Priority:           model.PriorityHigh,
		Status:             model.StatusTodo,
		DueDate:            &due,
		IsRecurring:        true,
		RecurrenceType:     model.RecurWeekly,
		RecurrenceInterval: &interval,
	}

	out := formatTask(view, now)
	for _, want := range []string{iconOverdue, "#7", "&lt;script&gt;", "overdue", "weekly, every 2"} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in %q", want, out)
		}
	}

	view.Status = model.StatusCompleted
	if out := formatTask(view, now); !strings.HasPrefix(out, iconDone) || strings.Contains(out, "overdue") {
		t.Fatalf("completed task rendered as overdue: %q", out)
	}
}

func TestFormatTask_EndDateInOwnerZone(t *testing.T) {
	loc := time.FixedZone("UTC+3", 3*3600)
	now := time.Date(2025, 5, 10, 12, 0, 0, 0, loc)
	// 2025-05-31 22:30 UTC is already June 1st at UTC+3.
	end := time.Date(2025, 5, 31, 22, 30, 0, 0, time.UTC)
	view := service.TaskView{
		ID:                7,
		Title:             "rent",
		Status:            model.StatusTodo,
		IsRecurring:       true,
		RecurrenceType:    model.RecurMonthly,
		RecurrenceEndDate: &end,
	}

	out := formatTask(view, now)
	if !strings.Contains(out, "until 2025-06-01") {
		t.Fatalf("expected end date in owner zone, got %q", out)
	}
}

func TestFormatEvent(t *testing.T) {
	event := notify.NewEvent(notify.ActionDelete, 1, service.TaskView{ID: 3, Title: "old"})
	if got := formatEvent(event); !strings.Contains(got, "deleted") || !strings.Contains(got, "#3") {
		t.Fatalf("unexpected %q", got)
	}
}

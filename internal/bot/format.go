package bot

import (
	"errors"
	"fmt"
	"html"
	"net/mail"
	"strconv"
	"strings"
	"time"
	"unicode"

	"taskplanner/internal/model"
	"taskplanner/internal/notify"
	"taskplanner/internal/service"
)

const (
	layoutDate     = "2006-01-02"
	layoutDateTime = "2006-01-02 15:04"
)

var errUsage = errors.New("usage")

// parseEmail returns the bare address from "/email" arguments. "off" yields
// an empty address, which disables the email channel.
func parseEmail(args string) (string, error) {
	args = strings.TrimSpace(args)
	switch {
	case args == "":
		return "", errUsage
	case strings.EqualFold(args, "off"):
		return "", nil
	}
	addr, err := mail.ParseAddress(args)
	if err != nil {
		return "", fmt.Errorf("%w: %v", errUsage, err)
	}
	return addr.Address, nil
}

func escape(s string) string {
	return html.EscapeString(s)
}

func normalizeTitle(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return value
	}
	runes := []rune(value)
	runes[0] = unicode.ToUpper(runes[0])
	return string(runes)
}

func shortTitle(title string, maxLen int) string {
	clean := strings.TrimSpace(strings.ReplaceAll(title, "\n", " "))
	clean = normalizeTitle(clean)
	runes := []rune(clean)
	if len(runes) <= maxLen {
		return clean
	}
	if maxLen <= 1 {
		return string(runes[:maxLen])
	}
	return string(runes[:maxLen-1]) + "…"
}

func parseTaskID(data, prefix string) (uint, error) {
	raw := strings.TrimSpace(strings.TrimPrefix(data, prefix))
	value, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || value == 0 {
		return 0, fmt.Errorf("bad task id %q", raw)
	}
	return uint(value), nil
}

// parseWhen reads "YYYY-MM-DD" or "YYYY-MM-DD HH:MM" in loc. allDay is true
// for the date-only form.
func parseWhen(value string, loc *time.Location) (t time.Time, allDay bool, err error) {
	value = strings.Join(strings.Fields(value), " ")
	if t, err = time.ParseInLocation(layoutDateTime, value, loc); err == nil {
		return t, false, nil
	}
	if t, err = time.ParseInLocation(layoutDate, value, loc); err == nil {
		return t, true, nil
	}
	return time.Time{}, false, fmt.Errorf("cannot read date %q, use %s or %q", value, layoutDate, layoutDateTime)
}

// parseNewTask reads "/new" arguments: a title followed by optional
// "|"-separated clauses such as "due 2025-11-30 18:00" or "every weekly 2".
func parseNewTask(args string, loc *time.Location) (service.TaskInput, error) {
	parts := strings.Split(args, "|")
	input := service.TaskInput{Title: strings.TrimSpace(parts[0])}
	if input.Title == "" {
		return input, errUsage
	}

	for _, part := range parts[1:] {
		key, value, _ := strings.Cut(strings.TrimSpace(part), " ")
		value = strings.TrimSpace(value)
		switch strings.ToLower(key) {
		case "due":
			due, allDay, err := parseWhen(value, loc)
			if err != nil {
				return input, err
			}
			input.DueDate = &due
			input.AllDay = &allDay
		case "priority":
			input.Priority = strings.ToUpper(value)
		case "every":
			fields := strings.Fields(value)
			if len(fields) == 0 {
				return input, fmt.Errorf("every needs daily, weekly, monthly, yearly or custom")
			}
			typ := model.ParseRecurrenceType(strings.ToUpper(fields[0]))
			if typ == "" {
				return input, fmt.Errorf("unknown repeat %q", fields[0])
			}
			recurring := true
			input.IsRecurring = &recurring
			input.RecurrenceType = string(typ)
			if len(fields) > 1 {
				n, err := strconv.Atoi(fields[1])
				if err != nil {
					return input, fmt.Errorf("repeat interval must be a number")
				}
				input.RecurrenceInterval = &n
			}
		case "until":
			end, allDay, err := parseWhen(value, loc)
			if err != nil {
				return input, err
			}
			if allDay {
				// A bare date includes the whole day.
				end = end.AddDate(0, 0, 1).Add(-time.Nanosecond)
			}
			input.RecurrenceEndDate = &end
		case "days":
			for _, d := range strings.FieldsFunc(value, func(r rune) bool { return r == ',' || r == ' ' }) {
				input.RecurrenceDays = append(input.RecurrenceDays, strings.ToUpper(d))
			}
		case "notes":
			input.Notes = value
		case "":
		default:
			return input, fmt.Errorf("unknown option %q", key)
		}
	}
	return input, nil
}

// parseRemind reads "<id> <YYYY-MM-DD HH:MM> [email|push|both]".
func parseRemind(args string, loc *time.Location) (uint, time.Time, model.ReminderType, error) {
	fields := strings.Fields(args)
	if len(fields) < 3 {
		return 0, time.Time{}, "", errUsage
	}
	id, err := parseTaskID(fields[0], "")
	if err != nil {
		return 0, time.Time{}, "", err
	}
	at, err := time.ParseInLocation(layoutDateTime, fields[1]+" "+fields[2], loc)
	if err != nil {
		return 0, time.Time{}, "", fmt.Errorf("cannot read time, use %q", layoutDateTime)
	}
	typ := model.ReminderNotification
	if len(fields) > 3 {
		switch strings.ToLower(fields[3]) {
		case "email", "mail":
			typ = model.ReminderEmail
		case "push", "telegram":
			typ = model.ReminderNotification
		case "both":
			typ = model.ReminderBoth
		default:
			return 0, time.Time{}, "", fmt.Errorf("unknown channel %q", fields[3])
		}
	}
	return id, at, typ, nil
}

func priorityIcon(p model.Priority) string {
	switch p {
	case model.PriorityHigh:
		return "🔴"
	case model.PriorityMedium:
		return "🟠"
	case model.PriorityLow:
		return "🔵"
	default:
		return ""
	}
}

func formatTask(task service.TaskView, now time.Time) string {
	var b strings.Builder
	icon := iconDefault
	switch {
	case task.Status == model.StatusCompleted:
		icon = iconDone
	case task.DueDate != nil && now.After(*task.DueDate):
		icon = iconOverdue
	case task.DueDate != nil && task.DueDate.Sub(now) <= 48*time.Hour:
		icon = iconDue
	}
	b.WriteString(fmt.Sprintf("%s <b>#%d</b> %s", icon, task.ID, escape(normalizeTitle(task.Title))))
	if p := priorityIcon(task.Priority); p != "" {
		b.WriteString(" " + p)
	}
	if task.IsRecurring {
		b.WriteString(" " + iconRecurring)
	}
	b.WriteByte('\n')

	if task.DueDate != nil {
		d := task.DueDate.In(now.Location())
		layout := layoutDateTime
		if task.AllDay {
			layout = layoutDate
		}
		if task.Status != model.StatusCompleted && now.After(d) {
			b.WriteString(fmt.Sprintf("   ⏰ Due: %s · <b>overdue</b>\n", d.Format(layout)))
		} else {
			b.WriteString(fmt.Sprintf("   ⏰ Due: %s\n", d.Format(layout)))
		}
	}
	if task.IsRecurring {
		b.WriteString(fmt.Sprintf("   🔄 %s\n", describeRecurrence(task, now.Location())))
	}
	if task.Description != "" {
		b.WriteString(fmt.Sprintf("   📝 %s\n", escape(task.Description)))
	}
	if n := len(task.Subtasks); n > 0 {
		b.WriteString(fmt.Sprintf("   📎 %d subtask(s)\n", n))
	}
	return b.String()
}

func describeRecurrence(task service.TaskView, loc *time.Location) string {
	interval := 1
	if task.RecurrenceInterval != nil {
		interval = *task.RecurrenceInterval
	}
	text := strings.ToLower(string(task.RecurrenceType))
	if interval > 1 {
		text = fmt.Sprintf("%s, every %d", text, interval)
	}
	if len(task.RecurrenceDays) > 0 {
		text += " on " + strings.Join(task.RecurrenceDays, ",")
	}
	if task.RecurrenceEndDate != nil {
		text += " until " + task.RecurrenceEndDate.In(loc).Format(layoutDate)
	}
	return text
}

func formatEvent(event notify.Event) string {
	verb := map[notify.Action]string{
		notify.ActionCreate: "created",
		notify.ActionUpdate: "updated",
		notify.ActionDelete: "deleted",
	}[event.Action]
	if verb == "" {
		verb = string(event.Action)
	}
	view, ok := event.Task.(service.TaskView)
	if !ok {
		return fmt.Sprintf("🛰 Task %s", verb)
	}
	return fmt.Sprintf("🛰 Task %s: <b>#%d</b> %s", verb, view.ID, escape(shortTitle(view.Title, 40)))
}

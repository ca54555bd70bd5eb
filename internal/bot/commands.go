package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"taskplanner/internal/model"
	"taskplanner/internal/service"
)

const helpText = "ℹ️ <b>Commands</b>\n" +
	"• /new &lt;title&gt; [| due 2025-11-30 18:00] [| priority high] [| every weekly 2] [| until 2026-01-01] [| days MON,WED]\n" +
	"• /tasks · open tasks with complete and delete buttons\n" +
	"• /today · tasks due today\n" +
	"• /overdue · tasks past their due date\n" +
	"• /search &lt;text&gt; · search title, description and notes\n" +
	"• /subtasks &lt;id&gt; · children of a task\n" +
	"• /done &lt;id&gt; · complete a task\n" +
	"• /delete &lt;id&gt; · delete a task with its subtasks\n" +
	"• /remind &lt;id&gt; &lt;2025-11-30 09:00&gt; [email|push|both]\n" +
	"• /tz &lt;Europe/Berlin&gt; · set your time zone\n" +
	"• /email &lt;you@example.com&gt; · where email reminders go, /email off to stop\n" +
	"• /watch, /unwatch · live task change feed"

func (b *Bot) handleStart(ctx context.Context, msg *tgbotapi.Message) error {
	owner, err := b.ensureOwner(ctx, msg.From, msg.Chat.ID)
	if err != nil {
		return err
	}
	name := strings.TrimSpace(msg.From.FirstName)
	if name == "" {
		name = "there"
	}
	text := fmt.Sprintf("👋 Hi, %s!\n<b>I keep your tasks and remind you about them.</b>\nTime zone: %s\n\n%s",
		escape(name), escape(owner.Timezone), helpText)
	return b.sendText(msg.Chat.ID, text)
}

func (b *Bot) handleHelp(msg *tgbotapi.Message) error {
	return b.sendText(msg.Chat.ID, helpText)
}

func (b *Bot) handleNew(ctx context.Context, msg *tgbotapi.Message) error {
	owner, err := b.ensureOwner(ctx, msg.From, msg.Chat.ID)
	if err != nil {
		return err
	}
	input, err := parseNewTask(msg.CommandArguments(), ownerLocation(owner))
	if errors.Is(err, errUsage) {
		return b.sendText(msg.Chat.ID, "Give the task a title: /new Buy milk | due 2025-11-30")
	}
	if err != nil {
		return b.sendText(msg.Chat.ID, escape(err.Error()))
	}

	task, err := b.taskSvc.CreateTask(ctx, owner.ID, input)
	if err != nil {
		return b.replyError(msg.Chat.ID, err)
	}
	b.log.Info("task created", "task_id", task.ID, "owner_id", owner.ID, "recurring", task.IsRecurring)
	return b.sendText(msg.Chat.ID, "✅ <b>Task saved</b>\n"+formatTask(*task, time.Now().In(ownerLocation(owner))))
}

func (b *Bot) handleListTasks(ctx context.Context, msg *tgbotapi.Message) error {
	owner, err := b.ensureOwner(ctx, msg.From, msg.Chat.ID)
	if err != nil {
		return err
	}
	tasks, err := b.taskSvc.GetAllTasks(ctx, owner.ID)
	if err != nil {
		return b.replyError(msg.Chat.ID, err)
	}

	open := tasks[:0]
	for _, t := range tasks {
		if t.Status != model.StatusCompleted {
			open = append(open, t)
		}
	}
	if len(open) == 0 {
		return b.sendText(msg.Chat.ID, "No open tasks. Add one with /new.")
	}

	now := time.Now().In(ownerLocation(owner))
	var builder strings.Builder
	builder.WriteString("📋 <b>Open tasks</b>\n\n")
	var buttons [][]tgbotapi.InlineKeyboardButton
	for _, task := range open {
		builder.WriteString(formatTask(task, now))
		builder.WriteByte('\n')
		buttons = append(buttons, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(fmt.Sprintf("✅ #%d · %s", task.ID, shortTitle(task.Title, 20)), fmt.Sprintf("%s%d", cbCompletePrefix, task.ID)),
			tgbotapi.NewInlineKeyboardButtonData("🗑 Delete", fmt.Sprintf("%s%d", cbDeletePrefix, task.ID)),
		))
	}
	return b.sendWithReplyMarkup(msg.Chat.ID, strings.TrimSpace(builder.String()), tgbotapi.NewInlineKeyboardMarkup(buttons...))
}

func (b *Bot) handleToday(ctx context.Context, msg *tgbotapi.Message) error {
	owner, err := b.ensureOwner(ctx, msg.From, msg.Chat.ID)
	if err != nil {
		return err
	}
	tasks, err := b.taskSvc.GetTodayTasks(ctx, owner.ID)
	if err != nil {
		return b.replyError(msg.Chat.ID, err)
	}
	return b.sendTasks(msg.Chat.ID, owner, "📅 <b>Due today</b>", "Nothing due today.", tasks)
}

func (b *Bot) handleOverdue(ctx context.Context, msg *tgbotapi.Message) error {
	owner, err := b.ensureOwner(ctx, msg.From, msg.Chat.ID)
	if err != nil {
		return err
	}
	tasks, err := b.taskSvc.GetOverdueTasks(ctx, owner.ID)
	if err != nil {
		return b.replyError(msg.Chat.ID, err)
	}
	return b.sendTasks(msg.Chat.ID, owner, "⚠️ <b>Overdue</b>", "Nothing overdue.", tasks)
}

func (b *Bot) handleSearch(ctx context.Context, msg *tgbotapi.Message) error {
	query := strings.TrimSpace(msg.CommandArguments())
	if query == "" {
		return b.sendText(msg.Chat.ID, "What should I look for? /search milk")
	}
	owner, err := b.ensureOwner(ctx, msg.From, msg.Chat.ID)
	if err != nil {
		return err
	}
	tasks, err := b.taskSvc.SearchTasks(ctx, owner.ID, query)
	if err != nil {
		return b.replyError(msg.Chat.ID, err)
	}
	return b.sendTasks(msg.Chat.ID, owner, fmt.Sprintf("🔎 <b>%s</b>", escape(query)), "No matches.", tasks)
}

func (b *Bot) handleSubtasks(ctx context.Context, msg *tgbotapi.Message) error {
	taskID, err := parseTaskID(msg.CommandArguments(), "")
	if err != nil {
		return b.sendText(msg.Chat.ID, "Give a task id: /subtasks 12")
	}
	owner, err := b.ensureOwner(ctx, msg.From, msg.Chat.ID)
	if err != nil {
		return err
	}
	tasks, err := b.taskSvc.GetSubtasks(ctx, owner.ID, taskID)
	if err != nil {
		return b.replyError(msg.Chat.ID, err)
	}
	return b.sendTasks(msg.Chat.ID, owner, fmt.Sprintf("📎 <b>Subtasks of #%d</b>", taskID), "No subtasks.", tasks)
}

func (b *Bot) handleDone(ctx context.Context, msg *tgbotapi.Message) error {
	taskID, err := parseTaskID(msg.CommandArguments(), "")
	if err != nil {
		return b.sendText(msg.Chat.ID, "Give a task id: /done 12")
	}
	owner, err := b.ensureOwner(ctx, msg.From, msg.Chat.ID)
	if err != nil {
		return err
	}
	return b.completeTaskAndRefresh(ctx, msg.Chat.ID, owner, taskID)
}

func (b *Bot) handleDelete(ctx context.Context, msg *tgbotapi.Message) error {
	taskID, err := parseTaskID(msg.CommandArguments(), "")
	if err != nil {
		return b.sendText(msg.Chat.ID, "Give a task id: /delete 12")
	}
	owner, err := b.ensureOwner(ctx, msg.From, msg.Chat.ID)
	if err != nil {
		return err
	}
	return b.deleteTaskAndRefresh(ctx, msg.Chat.ID, owner, taskID)
}

func (b *Bot) handleRemind(ctx context.Context, msg *tgbotapi.Message) error {
	owner, err := b.ensureOwner(ctx, msg.From, msg.Chat.ID)
	if err != nil {
		return err
	}
	loc := ownerLocation(owner)
	taskID, at, typ, err := parseRemind(msg.CommandArguments(), loc)
	if errors.Is(err, errUsage) {
		return b.sendText(msg.Chat.ID, "Usage: /remind 12 2025-11-30 09:00 [email|push|both]")
	}
	if err != nil {
		return b.sendText(msg.Chat.ID, escape(err.Error()))
	}
	reminder, err := b.reminderSvc.CreateReminder(ctx, owner.ID, taskID, at, string(typ))
	if err != nil {
		return b.replyError(msg.Chat.ID, err)
	}
	return b.sendText(msg.Chat.ID, fmt.Sprintf("🔔 Reminder #%d for task #%d at %s (%s).",
		reminder.ID, taskID, reminder.RemindAt.In(loc).Format(layoutDateTime), strings.ToLower(string(reminder.Type))))
}

func (b *Bot) handleTimezone(ctx context.Context, msg *tgbotapi.Message) error {
	name := strings.TrimSpace(msg.CommandArguments())
	loc, err := time.LoadLocation(name)
	if name == "" || err != nil {
		return b.sendText(msg.Chat.ID, "Give an IANA zone name: /tz Europe/Berlin")
	}
	owner, err := b.ensureOwner(ctx, msg.From, msg.Chat.ID)
	if err != nil {
		return err
	}
	if err := b.owners.SetTimezone(ctx, owner.ID, loc.String()); err != nil {
		return err
	}
	return b.sendText(msg.Chat.ID, fmt.Sprintf("🕰 Time zone set to %s.", escape(loc.String())))
}

func (b *Bot) handleEmail(ctx context.Context, msg *tgbotapi.Message) error {
	address, err := parseEmail(msg.CommandArguments())
	if err != nil {
		return b.sendText(msg.Chat.ID, "Give an address: /email you@example.com, or /email off")
	}
	owner, err := b.ensureOwner(ctx, msg.From, msg.Chat.ID)
	if err != nil {
		return err
	}
	if err := b.owners.SetEmail(ctx, owner.ID, address); err != nil {
		return err
	}
	if address == "" {
		return b.sendText(msg.Chat.ID, "📭 Email reminders turned off.")
	}
	return b.sendText(msg.Chat.ID, fmt.Sprintf("📬 Email reminders go to %s.", escape(address)))
}

func (b *Bot) handleWatch(ctx context.Context, msg *tgbotapi.Message) error {
	owner, err := b.ensureOwner(ctx, msg.From, msg.Chat.ID)
	if err != nil {
		return err
	}
	chatID := msg.Chat.ID

	b.mu.Lock()
	if _, ok := b.watchers[chatID]; ok {
		b.mu.Unlock()
		return b.sendText(chatID, "Already watching. /unwatch to stop.")
	}
	events, cancel := b.hub.Subscribe(owner.ID)
	b.watchers[chatID] = cancel
	b.mu.Unlock()

	go func() {
		for event := range events {
			if err := b.sendText(chatID, formatEvent(event)); err != nil {
				b.log.Warn("forward task event", "chat_id", chatID, "error", err)
			}
		}
	}()
	return b.sendText(chatID, "🛰 Watching task changes.")
}

func (b *Bot) handleUnwatch(msg *tgbotapi.Message) error {
	b.mu.Lock()
	cancel, ok := b.watchers[msg.Chat.ID]
	delete(b.watchers, msg.Chat.ID)
	b.mu.Unlock()
	if !ok {
		return b.sendText(msg.Chat.ID, "Not watching.")
	}
	cancel()
	return b.sendText(msg.Chat.ID, "Stopped watching.")
}

func (b *Bot) unwatchAll() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for chatID, cancel := range b.watchers {
		cancel()
		delete(b.watchers, chatID)
	}
}

func (b *Bot) completeTaskAndRefresh(ctx context.Context, chatID int64, owner *model.Owner, taskID uint) error {
	task, err := b.taskSvc.CompleteTask(ctx, owner.ID, taskID)
	if err != nil {
		return b.replyError(chatID, err)
	}
	b.log.Info("task completed", "task_id", task.ID, "owner_id", owner.ID, "recurring", task.IsRecurring)

	info := fmt.Sprintf("✅ Task \"%s\" completed.", escape(normalizeTitle(task.Title)))
	if task.IsRecurring {
		info = fmt.Sprintf("♻️ Task \"%s\" completed. The next occurrence is on your list unless the series has ended.", escape(normalizeTitle(task.Title)))
	}
	return b.sendText(chatID, info)
}

func (b *Bot) deleteTaskAndRefresh(ctx context.Context, chatID int64, owner *model.Owner, taskID uint) error {
	task, err := b.taskSvc.GetTask(ctx, owner.ID, taskID)
	if err != nil {
		return b.replyError(chatID, err)
	}
	if err := b.taskSvc.DeleteTask(ctx, owner.ID, taskID); err != nil {
		return b.replyError(chatID, err)
	}
	return b.sendText(chatID, fmt.Sprintf("🗑 Task \"%s\" deleted.", escape(normalizeTitle(task.Title))))
}

func (b *Bot) sendTasks(chatID int64, owner *model.Owner, title, empty string, tasks []service.TaskView) error {
	if len(tasks) == 0 {
		return b.sendText(chatID, empty)
	}
	now := time.Now().In(ownerLocation(owner))
	var builder strings.Builder
	builder.WriteString(title + "\n\n")
	for _, task := range tasks {
		builder.WriteString(formatTask(task, now))
		builder.WriteByte('\n')
	}
	return b.sendText(chatID, strings.TrimSpace(builder.String()))
}

// replyError turns service errors into chat replies. Unexpected errors are
// returned for logging.
func (b *Bot) replyError(chatID int64, err error) error {
	switch {
	case errors.Is(err, service.ErrNotFound):
		return b.sendText(chatID, "Not found.")
	case errors.Is(err, service.ErrInvalidOperation):
		return b.sendText(chatID, escape(err.Error()))
	default:
		if sendErr := b.sendText(chatID, "Something went wrong, try again later."); sendErr != nil {
			b.log.Warn("send error reply", "error", sendErr)
		}
		return err
	}
}

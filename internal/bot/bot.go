package bot

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"taskplanner/internal/model"
	"taskplanner/internal/notify"
	"taskplanner/internal/repository"
	"taskplanner/internal/service"
)

const (
	cbCompletePrefix = "complete:"
	cbDeletePrefix   = "delete:"
	cbConfirmPrefix  = "confirm:"
	cbCancelPrefix   = "cancel:"
)

const (
	btnConfirm       = "✅ Confirm"
	btnCancel        = "↩️ Cancel"
	iconDefault      = "🟢"
	iconDue          = "⏳"
	iconOverdue      = "⚠️"
	iconDone         = "✔️"
	iconRecurring    = "♻️"
	menuLabelTasks   = "📋 Tasks"
	menuLabelToday   = "📅 Today"
	menuLabelOverdue = "⚠️ Overdue"
	menuLabelHelp    = "ℹ️ Help"
)

// Bot is the Telegram front end over the task and reminder services.
type Bot struct {
	api         *tgbotapi.BotAPI
	owners      *repository.OwnerRepository
	taskSvc     *service.TaskService
	reminderSvc *service.ReminderService
	hub         *notify.Hub
	log         *slog.Logger

	mu       sync.Mutex
	watchers map[int64]func()
}

// apiTimeout caps every Bot API request. It must outlast the long-poll
// window of GetUpdatesChan.
const (
	pollTimeout = 60
	apiTimeout  = (pollTimeout + 15) * time.Second
)

// NewAPI authorizes the bot token. The same client is shared with the push
// channel so reminders arrive in the owner's chat.
func NewAPI(token string) (*tgbotapi.BotAPI, error) {
	client := &http.Client{Timeout: apiTimeout}
	api, err := tgbotapi.NewBotAPIWithClient(token, tgbotapi.APIEndpoint, client)
	if err != nil {
		return nil, fmt.Errorf("create bot api: %w", err)
	}
	return api, nil
}

func New(api *tgbotapi.BotAPI, owners *repository.OwnerRepository, taskSvc *service.TaskService, reminderSvc *service.ReminderService, hub *notify.Hub, log *slog.Logger) *Bot {
	if log == nil {
		log = slog.Default()
	}
	log = log.With("component", "bot")
	log.Info("bot authorized", "account", api.Self.UserName)
	return &Bot{
		api:         api,
		owners:      owners,
		taskSvc:     taskSvc,
		reminderSvc: reminderSvc,
		hub:         hub,
		log:         log,
		watchers:    make(map[int64]func()),
	}
}

// Start begins polling updates until ctx is cancelled.
func (b *Bot) Start(ctx context.Context) error {
	updateConfig := tgbotapi.NewUpdate(0)
	updateConfig.Timeout = pollTimeout
	updates := b.api.GetUpdatesChan(updateConfig)

	b.log.Info("start polling updates")

	go func() {
		<-ctx.Done()
		b.api.StopReceivingUpdates()
	}()
	defer b.unwatchAll()

	for update := range updates {
		switch {
		case update.CallbackQuery != nil:
			if err := b.handleCallback(ctx, update.CallbackQuery); err != nil {
				b.log.Error("handle callback", "error", err)
			}
		case update.Message != nil:
			if update.Message.Chat == nil || !update.Message.Chat.IsPrivate() {
				continue
			}
			if err := b.handleMessage(ctx, update.Message); err != nil {
				b.log.Error("handle message", "error", err)
			}
		}
	}

	return ctx.Err()
}

func (b *Bot) handleMessage(ctx context.Context, msg *tgbotapi.Message) error {
	if msg.From == nil {
		return nil
	}

	if msg.IsCommand() {
		b.log.Info("command", "user", msg.From.ID, "command", msg.Command(), "args", msg.CommandArguments())
		return b.handleCommand(ctx, msg)
	}

	if handled, err := b.handleMenuAlias(ctx, msg); handled {
		return err
	}

	return b.sendText(msg.Chat.ID, "I did not get that. Use /new to add a task or /help for the command list.")
}

func (b *Bot) handleCommand(ctx context.Context, msg *tgbotapi.Message) error {
	switch msg.Command() {
	case "start":
		return b.handleStart(ctx, msg)
	case "help":
		return b.handleHelp(msg)
	case "new":
		return b.handleNew(ctx, msg)
	case "tasks":
		return b.handleListTasks(ctx, msg)
	case "today":
		return b.handleToday(ctx, msg)
	case "overdue":
		return b.handleOverdue(ctx, msg)
	case "search":
		return b.handleSearch(ctx, msg)
	case "subtasks":
		return b.handleSubtasks(ctx, msg)
	case "done":
		return b.handleDone(ctx, msg)
	case "delete":
		return b.handleDelete(ctx, msg)
	case "remind":
		return b.handleRemind(ctx, msg)
	case "tz":
		return b.handleTimezone(ctx, msg)
	case "email":
		return b.handleEmail(ctx, msg)
	case "watch":
		return b.handleWatch(ctx, msg)
	case "unwatch":
		return b.handleUnwatch(msg)
	default:
		return b.sendText(msg.Chat.ID, "Unknown command. See /help.")
	}
}

func (b *Bot) handleMenuAlias(ctx context.Context, msg *tgbotapi.Message) (bool, error) {
	text := strings.TrimSpace(strings.ToLower(msg.Text))
	switch text {
	case strings.ToLower(menuLabelTasks):
		return true, b.handleListTasks(ctx, msg)
	case strings.ToLower(menuLabelToday):
		return true, b.handleToday(ctx, msg)
	case strings.ToLower(menuLabelOverdue):
		return true, b.handleOverdue(ctx, msg)
	case strings.ToLower(menuLabelHelp):
		return true, b.handleHelp(msg)
	default:
		return false, nil
	}
}

func (b *Bot) handleCallback(ctx context.Context, cb *tgbotapi.CallbackQuery) error {
	if cb == nil || cb.From == nil || cb.Message == nil {
		return nil
	}
	if _, err := b.api.Request(tgbotapi.NewCallback(cb.ID, "")); err != nil {
		b.log.Warn("callback ack", "error", err)
	}

	data := cb.Data
	chatID := cb.Message.Chat.ID
	b.log.Info("callback", "user", cb.From.ID, "data", data)

	switch {
	case strings.HasPrefix(data, cbCompletePrefix):
		taskID, err := parseTaskID(data, cbCompletePrefix)
		if err != nil {
			return nil
		}
		return b.askConfirmation(ctx, chatID, cb.From, cbCompletePrefix, taskID)
	case strings.HasPrefix(data, cbDeletePrefix):
		taskID, err := parseTaskID(data, cbDeletePrefix)
		if err != nil {
			return nil
		}
		return b.askConfirmation(ctx, chatID, cb.From, cbDeletePrefix, taskID)
	case strings.HasPrefix(data, cbConfirmPrefix):
		action, rest, ok := strings.Cut(strings.TrimPrefix(data, cbConfirmPrefix), ":")
		if !ok {
			return nil
		}
		taskID, err := parseTaskID(rest, "")
		if err != nil {
			return nil
		}
		owner, err := b.ensureOwner(ctx, cb.From, chatID)
		if err != nil {
			return err
		}
		if action+":" == cbDeletePrefix {
			return b.deleteTaskAndRefresh(ctx, chatID, owner, taskID)
		}
		return b.completeTaskAndRefresh(ctx, chatID, owner, taskID)
	case strings.HasPrefix(data, cbCancelPrefix):
		return b.sendText(chatID, "Okay, nothing changed.")
	default:
		return nil
	}
}

func (b *Bot) askConfirmation(ctx context.Context, chatID int64, from *tgbotapi.User, prefix string, taskID uint) error {
	owner, err := b.ensureOwner(ctx, from, chatID)
	if err != nil {
		return err
	}
	task, err := b.taskSvc.GetTask(ctx, owner.ID, taskID)
	if err != nil {
		return b.replyError(chatID, err)
	}

	var text string
	if prefix == cbDeletePrefix {
		text = fmt.Sprintf("Delete task \"%s\" (#%d) with its subtasks and reminders?", escape(normalizeTitle(task.Title)), task.ID)
	} else {
		if task.Status == model.StatusCompleted {
			return b.sendText(chatID, "The task is already completed.")
		}
		text = fmt.Sprintf("Mark \"%s\" (#%d) as completed?", escape(normalizeTitle(task.Title)), task.ID)
	}
	return b.sendWithReplyMarkup(chatID, text, confirmKeyboard(prefix, task.ID))
}

func (b *Bot) ensureOwner(ctx context.Context, from *tgbotapi.User, chatID int64) (*model.Owner, error) {
	name := strings.TrimSpace(strings.Join([]string{from.FirstName, from.LastName}, " "))
	if name == "" {
		name = from.UserName
	}
	return b.owners.UpsertFromTelegram(ctx, from.ID, chatID, name)
}

// ownerLocation falls back to UTC for owners with an unknown zone.
func ownerLocation(owner *model.Owner) *time.Location {
	loc, err := time.LoadLocation(owner.Timezone)
	if err != nil || owner.Timezone == "" {
		return time.UTC
	}
	return loc
}

func (b *Bot) sendText(chatID int64, text string) error {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	msg.ReplyMarkup = mainMenuKeyboard()
	_, err := b.api.Send(msg)
	return err
}

func (b *Bot) sendWithReplyMarkup(chatID int64, text string, markup interface{}) error {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	msg.ReplyMarkup = markup
	_, err := b.api.Send(msg)
	return err
}

func confirmKeyboard(prefix string, taskID uint) tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(btnConfirm, fmt.Sprintf("%s%s%d", cbConfirmPrefix, prefix, taskID)),
			tgbotapi.NewInlineKeyboardButtonData(btnCancel, fmt.Sprintf("%s%d", cbCancelPrefix, taskID)),
		),
	)
}

func mainMenuKeyboard() tgbotapi.ReplyKeyboardMarkup {
	kb := tgbotapi.NewReplyKeyboard(
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(menuLabelTasks),
			tgbotapi.NewKeyboardButton(menuLabelToday),
		),
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(menuLabelOverdue),
			tgbotapi.NewKeyboardButton(menuLabelHelp),
		),
	)
	kb.ResizeKeyboard = true
	kb.OneTimeKeyboard = false
	return kb
}

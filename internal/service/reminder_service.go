package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"taskplanner/internal/dispatch"
	"taskplanner/internal/model"
	"taskplanner/internal/repository"
)

const (
	reminderSubject        = "Task Reminder"
	defaultDispatchTimeout = 30 * time.Second
)

// ReminderService manages reminders and runs the due-reminder scan.
type ReminderService struct {
	store   *repository.Store
	gateway dispatch.Gateway
	pool    *dispatch.Pool
	log     *slog.Logger
	now     func() time.Time
	// sendTimeout bounds a single reminder's dispatch across all channels.
	sendTimeout time.Duration
}

func NewReminderService(store *repository.Store, gateway dispatch.Gateway, pool *dispatch.Pool, log *slog.Logger) *ReminderService {
	if log == nil {
		log = slog.Default()
	}
	if pool == nil {
		pool = dispatch.NewPool(1)
	}
	return &ReminderService{store: store, gateway: gateway, pool: pool, log: log, now: time.Now, sendTimeout: defaultDispatchTimeout}
}

// WithDispatchTimeout caps how long one reminder may spend in its channels
// before it is counted as failed and left for the next scan.
func (s *ReminderService) WithDispatchTimeout(d time.Duration) *ReminderService {
	if d > 0 {
		s.sendTimeout = d
	}
	return s
}

func (s *ReminderService) CreateReminder(ctx context.Context, ownerID, taskID uint, remindAt time.Time, typ string) (*ReminderView, error) {
	if remindAt.IsZero() {
		return nil, invalidf("remind time is required")
	}
	task, err := s.store.Tasks.FindByID(ctx, taskID)
	if err != nil {
		return nil, lookupErr(err, "task", taskID)
	}
	if task.OwnerID != ownerID {
		return nil, notFoundf("task %d", taskID)
	}
	owner, err := s.store.Owners.FindByID(ctx, ownerID)
	if err != nil {
		return nil, lookupErr(err, "owner", ownerID)
	}
	reminder := model.Reminder{
		TaskID:   task.ID,
		RemindAt: remindAt.UTC(),
		Type:     model.ParseReminderType(typ),
	}
	if !reachable(owner, reminder.Type) {
		return nil, invalidf("no destination for %s reminders; set an email address or push token first", reminder.Type)
	}
	if err := s.store.Reminders.Create(ctx, &reminder); err != nil {
		return nil, err
	}
	s.log.Info("reminder created", "reminder_id", reminder.ID, "task_id", task.ID, "remind_at", reminder.RemindAt, "type", reminder.Type)
	view := reminderView(reminder)
	return &view, nil
}

func (s *ReminderService) DeleteReminder(ctx context.Context, ownerID, reminderID uint) error {
	reminder, err := s.store.Reminders.FindByID(ctx, reminderID)
	if err != nil {
		return lookupErr(err, "reminder", reminderID)
	}
	if reminder.Task == nil || reminder.Task.OwnerID != ownerID {
		return notFoundf("reminder %d", reminderID)
	}
	return s.store.Reminders.Delete(ctx, reminderID)
}

func (s *ReminderService) ListReminders(ctx context.Context, ownerID, taskID uint) ([]ReminderView, error) {
	task, err := s.store.Tasks.FindByID(ctx, taskID)
	if err != nil {
		return nil, lookupErr(err, "task", taskID)
	}
	if task.OwnerID != ownerID {
		return nil, notFoundf("task %d", taskID)
	}
	reminders, err := s.store.Reminders.ListByTask(ctx, taskID)
	if err != nil {
		return nil, err
	}
	out := make([]ReminderView, 0, len(reminders))
	for _, r := range reminders {
		out = append(out, reminderView(r))
	}
	return out, nil
}

// ScanReport summarizes one pass over due reminders.
type ScanReport struct {
	RunID    string
	Pending  int
	Sent     int
	Failed   int
	Orphaned int
}

type reminderJob struct {
	reminder model.Reminder
	msg      dispatch.Message
}

type reminderResult struct {
	job     reminderJob
	outcome dispatch.Outcome
}

// ProcessDue dispatches every unsent reminder due by now. Dispatch runs on the
// worker pool; each reminder is marked sent as soon as its own dispatch
// resolves, so a crash mid-batch keeps the progress made so far. Reminders
// whose channels all failed stay pending for the next run.
func (s *ReminderService) ProcessDue(ctx context.Context) (ScanReport, error) {
	report := ScanReport{RunID: uuid.NewString()}
	log := s.log.With("run_id", report.RunID)

	pending, err := s.store.Reminders.FindPending(ctx, s.now())
	if err != nil {
		return report, err
	}
	report.Pending = len(pending)
	if len(pending) == 0 {
		log.Debug("no pending reminders")
		return report, nil
	}
	log.Info("processing pending reminders", "count", len(pending))

	ownerIDs := make([]uint, 0, len(pending))
	for _, r := range pending {
		if r.Task != nil {
			ownerIDs = append(ownerIDs, r.Task.OwnerID)
		}
	}
	owners, err := s.store.Owners.FindByIDs(ctx, ownerIDs)
	if err != nil {
		return report, err
	}

	jobs := make([]reminderJob, 0, len(pending))
	for _, r := range pending {
		if r.Task == nil {
			report.Orphaned++
			log.Warn("reminder without task", "reminder_id", r.ID)
			continue
		}
		owner, ok := owners[r.Task.OwnerID]
		if !ok {
			report.Orphaned++
			log.Warn("reminder without owner", "reminder_id", r.ID, "task_id", r.TaskID)
			continue
		}
		jobs = append(jobs, reminderJob{reminder: r, msg: renderReminder(r.Task, owner)})
	}

	results := dispatch.Run(ctx, s.pool, jobs, func(ctx context.Context, j reminderJob) reminderResult {
		ctx, cancel := context.WithTimeout(ctx, s.sendTimeout)
		defer cancel()
		return reminderResult{job: j, outcome: dispatch.Deliver(ctx, s.gateway, j.reminder.Type, j.msg)}
	})
	for res := range results {
		id := res.job.reminder.ID
		if !res.outcome.Resolved() {
			report.Failed++
			log.Warn("reminder dispatch failed", "reminder_id", id, "error", res.outcome.Err())
			continue
		}
		if err := res.outcome.Err(); err != nil {
			log.Warn("reminder partially dispatched", "reminder_id", id, "error", err)
		}
		marked, err := s.store.Reminders.MarkSent(ctx, id, s.now())
		if err != nil {
			// Delivered but not recorded: the next run sends it again.
			report.Failed++
			log.Error("mark reminder sent", "reminder_id", id, "error", err)
			continue
		}
		if marked {
			report.Sent++
		}
	}

	log.Info("reminder scan finished", "pending", report.Pending, "sent", report.Sent, "failed", report.Failed, "orphaned", report.Orphaned)
	return report, nil
}

// ScanJob wraps ProcessDue for the scheduler. Batch-level errors are logged
// and left for the next tick.
func (s *ReminderService) ScanJob(timeout time.Duration) func() {
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		if _, err := s.ProcessDue(ctx); err != nil && !errors.Is(err, context.Canceled) {
			s.log.Error("reminder scan", "error", err)
		}
	}
}

// reachable reports whether at least one channel routed for typ has a
// destination on the owner.
func reachable(owner *model.Owner, typ model.ReminderType) bool {
	for _, ch := range dispatch.Channels(typ) {
		switch ch {
		case dispatch.ChannelEmail:
			if owner.Email != "" {
				return true
			}
		case dispatch.ChannelPush:
			if owner.PushToken != "" {
				return true
			}
		}
	}
	return false
}

func renderReminder(task *model.Task, owner model.Owner) dispatch.Message {
	body := fmt.Sprintf("Reminder: %s", task.Title)
	if task.DueDate != nil {
		loc, err := time.LoadLocation(owner.Timezone)
		if err != nil || owner.Timezone == "" {
			loc = time.UTC
		}
		body += fmt.Sprintf(" (due %s)", task.DueDate.In(loc).Format("2006-01-02 15:04"))
	}
	return dispatch.Message{
		Subject:   reminderSubject,
		Body:      body,
		Email:     owner.Email,
		PushToken: owner.PushToken,
	}
}

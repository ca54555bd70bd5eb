package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"taskplanner/internal/dispatch"
	"taskplanner/internal/model"
)

type fakeGateway struct {
	mu        sync.Mutex
	emails    []string
	pushes    []string
	failEmail bool
	failPush  map[string]bool
}

func (g *fakeGateway) SendEmail(_ context.Context, address, subject, body string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.emails = append(g.emails, address+"|"+body)
	if g.failEmail {
		return dispatch.ErrTransport
	}
	return nil
}

func (g *fakeGateway) SendPush(_ context.Context, token, title, body string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.pushes = append(g.pushes, token+"|"+body)
	if g.failPush[token] {
		return dispatch.ErrTransport
	}
	return nil
}

func (g *fakeGateway) counts() (int, int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.emails), len(g.pushes)
}

type reminderFixture struct {
	svc   *ReminderService
	tasks *TaskService
	gw    *fakeGateway
	now   time.Time
}

func newReminderFixture(t *testing.T) *reminderFixture {
	t.Helper()
	store := newTestStore(t)
	gw := &fakeGateway{failPush: map[string]bool{}}
	now := time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)
	svc := NewReminderService(store, gw, dispatch.NewPool(3), quietLogger())
	svc.now = fixedClock(now)
	tasks := NewTaskService(store, nil, quietLogger(), time.UTC)
	tasks.now = fixedClock(now)
	return &reminderFixture{svc: svc, tasks: tasks, gw: gw, now: now}
}

func (f *reminderFixture) reminder(t *testing.T, owner *model.Owner, title string, at time.Time, typ model.ReminderType) *ReminderView {
	t.Helper()
	ctx := context.Background()
	task, err := f.tasks.CreateTask(ctx, owner.ID, TaskInput{Title: title})
	if err != nil {
		t.Fatalf("create task: %v", err)
	}
	r, err := f.svc.CreateReminder(ctx, owner.ID, task.ID, at, string(typ))
	if err != nil {
		t.Fatalf("create reminder: %v", err)
	}
	return r
}

func (f *reminderFixture) load(t *testing.T, id uint) *model.Reminder {
	t.Helper()
	r, err := f.svc.store.Reminders.FindByID(context.Background(), id)
	if err != nil {
		t.Fatalf("load reminder: %v", err)
	}
	return r
}

func TestProcessDue_BothChannelsIndependent(t *testing.T) {
	f := newReminderFixture(t)
	f.gw.failEmail = true
	owner := createOwner(t, f.svc.store, "both@example.com")
	r := f.reminder(t, owner, "Call mom", f.now.Add(-time.Minute), model.ReminderBoth)

	report, err := f.svc.ProcessDue(context.Background())
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	emails, pushes := f.gw.counts()
	if emails != 1 || pushes != 1 {
		t.Fatalf("expected both channels attempted, got %d emails %d pushes", emails, pushes)
	}
	if report.Sent != 1 || report.Failed != 0 {
		t.Fatalf("expected reminder marked sent after push succeeded, got %+v", report)
	}
	stored := f.load(t, r.ID)
	if !stored.IsSent || stored.SentAt == nil || !stored.SentAt.Equal(f.now) {
		t.Fatalf("expected sent at %v, got %v/%v", f.now, stored.IsSent, stored.SentAt)
	}
	if f.gw.pushes[0] != "100|Reminder: Call mom" {
		t.Fatalf("unexpected push payload %q", f.gw.pushes[0])
	}
}

func TestProcessDue_RoutesByType(t *testing.T) {
	f := newReminderFixture(t)
	owner := createOwner(t, f.svc.store, "route@example.com")
	f.reminder(t, owner, "email only", f.now, model.ReminderEmail)
	f.reminder(t, owner, "push only", f.now.Add(-time.Hour), model.ReminderNotification)
	f.reminder(t, owner, "later", f.now.Add(time.Second), model.ReminderBoth)

	report, err := f.svc.ProcessDue(context.Background())
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	emails, pushes := f.gw.counts()
	if report.Pending != 2 || report.Sent != 2 || emails != 1 || pushes != 1 {
		t.Fatalf("expected one email and one push, got %+v emails=%d pushes=%d", report, emails, pushes)
	}
}

func TestProcessDue_Idempotent(t *testing.T) {
	f := newReminderFixture(t)
	owner := createOwner(t, f.svc.store, "idem@example.com")
	r := f.reminder(t, owner, "Stretch", f.now.Add(-time.Minute), model.ReminderNotification)

	if _, err := f.svc.ProcessDue(context.Background()); err != nil {
		t.Fatalf("first scan: %v", err)
	}
	firstSent := f.load(t, r.ID).SentAt

	f.svc.now = fixedClock(f.now.Add(time.Minute))
	report, err := f.svc.ProcessDue(context.Background())
	if err != nil {
		t.Fatalf("second scan: %v", err)
	}
	_, pushes := f.gw.counts()
	if report.Pending != 0 || pushes != 1 {
		t.Fatalf("expected no re-dispatch, got %+v pushes=%d", report, pushes)
	}
	if again := f.load(t, r.ID).SentAt; again == nil || !again.Equal(*firstSent) {
		t.Fatalf("expected sentAt unchanged, got %v want %v", again, firstSent)
	}
}

func TestProcessDue_FailureStaysPendingAndDoesNotAbortBatch(t *testing.T) {
	f := newReminderFixture(t)
	broken := createOwner(t, f.svc.store, "broken@example.com")
	if err := f.svc.store.DB().Model(broken).Update("push_token", "dead").Error; err != nil {
		t.Fatalf("set token: %v", err)
	}
	f.gw.failPush["dead"] = true
	healthy := createOwner(t, f.svc.store, "healthy@example.com")

	bad := f.reminder(t, broken, "never arrives", f.now.Add(-2*time.Minute), model.ReminderNotification)
	good := f.reminder(t, healthy, "arrives", f.now.Add(-time.Minute), model.ReminderNotification)

	report, err := f.svc.ProcessDue(context.Background())
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if report.Sent != 1 || report.Failed != 1 {
		t.Fatalf("expected one sent and one failed, got %+v", report)
	}
	if f.load(t, bad.ID).IsSent {
		t.Fatalf("expected failed reminder to stay pending")
	}
	if !f.load(t, good.ID).IsSent {
		t.Fatalf("expected healthy reminder sent")
	}

	report, err = f.svc.ProcessDue(context.Background())
	if err != nil {
		t.Fatalf("retry scan: %v", err)
	}
	if report.Pending != 1 || report.Failed != 1 {
		t.Fatalf("expected failed reminder retried, got %+v", report)
	}

	f.gw.failPush["dead"] = false
	if _, err := f.svc.ProcessDue(context.Background()); err != nil {
		t.Fatalf("recovery scan: %v", err)
	}
	if !f.load(t, bad.ID).IsSent {
		t.Fatalf("expected reminder sent once transport recovered")
	}
}

func TestProcessDue_MissingDestinationIsNotRetried(t *testing.T) {
	f := newReminderFixture(t)
	ctx := context.Background()
	owner := createOwner(t, f.svc.store, "gone@example.com")
	svc := NewReminderService(f.svc.store, dispatch.Transport{Mailer: f.gw, Pusher: f.gw}, dispatch.NewPool(1), quietLogger())
	svc.now = f.svc.now
	r := f.reminder(t, owner, "no inbox", f.now, model.ReminderEmail)
	// The address is removed after the reminder was scheduled.
	if err := f.svc.store.Owners.SetEmail(ctx, owner.ID, ""); err != nil {
		t.Fatalf("clear email: %v", err)
	}

	report, err := svc.ProcessDue(ctx)
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if emails, _ := f.gw.counts(); emails != 0 {
		t.Fatalf("expected no email attempt, got %d", emails)
	}
	if report.Sent != 1 || !f.load(t, r.ID).IsSent {
		t.Fatalf("expected reminder resolved without destination, got %+v", report)
	}
}

func TestCreateReminder_RequiresDestination(t *testing.T) {
	f := newReminderFixture(t)
	ctx := context.Background()
	owner := createOwner(t, f.svc.store, "")
	task, err := f.tasks.CreateTask(ctx, owner.ID, TaskInput{Title: "call mom"})
	if err != nil {
		t.Fatalf("create task: %v", err)
	}

	if _, err := f.svc.CreateReminder(ctx, owner.ID, task.ID, f.now, "EMAIL"); !errors.Is(err, ErrInvalidOperation) {
		t.Fatalf("email without address: expected ErrInvalidOperation, got %v", err)
	}
	// BOTH still reaches the owner through push.
	if _, err := f.svc.CreateReminder(ctx, owner.ID, task.ID, f.now, "BOTH"); err != nil {
		t.Fatalf("both with push token: %v", err)
	}

	if err := f.svc.store.Owners.SetEmail(ctx, owner.ID, "mom@example.com"); err != nil {
		t.Fatalf("set email: %v", err)
	}
	if _, err := f.svc.CreateReminder(ctx, owner.ID, task.ID, f.now, "EMAIL"); err != nil {
		t.Fatalf("email after address set: %v", err)
	}
}

// stallingGateway blocks every push until the caller gives up.
type stallingGateway struct {
	*fakeGateway
	stall map[string]bool
}

func (g *stallingGateway) SendPush(ctx context.Context, token, title, body string) error {
	if g.stall[token] {
		<-ctx.Done()
		return ctx.Err()
	}
	return g.fakeGateway.SendPush(ctx, token, title, body)
}

func TestProcessDue_StalledChannelDoesNotHangScan(t *testing.T) {
	f := newReminderFixture(t)
	ctx := context.Background()
	gw := &stallingGateway{fakeGateway: f.gw, stall: map[string]bool{"100": true}}
	svc := NewReminderService(f.svc.store, gw, dispatch.NewPool(2), quietLogger()).WithDispatchTimeout(100 * time.Millisecond)
	svc.now = f.svc.now

	stuck := createOwner(t, f.svc.store, "stuck@example.com")
	healthy := createOwner(t, f.svc.store, "ok@example.com")
	if err := f.svc.store.DB().Model(healthy).Update("push_token", "200").Error; err != nil {
		t.Fatalf("set token: %v", err)
	}
	r1 := f.reminder(t, stuck, "stalls", f.now, model.ReminderNotification)
	r2 := f.reminder(t, healthy, "goes through", f.now, model.ReminderNotification)

	done := make(chan ScanReport, 1)
	go func() {
		report, err := svc.ProcessDue(ctx)
		if err != nil {
			t.Errorf("scan: %v", err)
		}
		done <- report
	}()

	var report ScanReport
	select {
	case report = <-done:
	case <-time.After(3 * time.Second):
		t.Fatalf("scan did not return with a stalled channel")
	}
	if report.Sent != 1 || report.Failed != 1 {
		t.Fatalf("expected 1 sent and 1 failed, got %+v", report)
	}
	if f.load(t, r1.ID).IsSent {
		t.Fatalf("stalled reminder must stay pending")
	}
	if !f.load(t, r2.ID).IsSent {
		t.Fatalf("healthy reminder should be sent")
	}
}

func TestReminderOwnership(t *testing.T) {
	f := newReminderFixture(t)
	ctx := context.Background()
	alice := createOwner(t, f.svc.store, "alice@example.com")
	bob := createOwner(t, f.svc.store, "bob@example.com")
	r := f.reminder(t, alice, "alice only", f.now.Add(time.Hour), model.ReminderEmail)

	if _, err := f.svc.CreateReminder(ctx, bob.ID, r.TaskID, f.now, "EMAIL"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("create: expected ErrNotFound, got %v", err)
	}
	if err := f.svc.DeleteReminder(ctx, bob.ID, r.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("delete: expected ErrNotFound, got %v", err)
	}
	if _, err := f.svc.ListReminders(ctx, bob.ID, r.TaskID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("list: expected ErrNotFound, got %v", err)
	}
	if err := f.svc.DeleteReminder(ctx, alice.ID, 9999); !errors.Is(err, ErrNotFound) {
		t.Fatalf("delete missing: expected ErrNotFound, got %v", err)
	}
	if _, err := f.svc.CreateReminder(ctx, alice.ID, r.TaskID, time.Time{}, "EMAIL"); !errors.Is(err, ErrInvalidOperation) {
		t.Fatalf("zero time: expected ErrInvalidOperation, got %v", err)
	}

	list, err := f.svc.ListReminders(ctx, alice.ID, r.TaskID)
	if err != nil || len(list) != 1 || list[0].Type != model.ReminderEmail {
		t.Fatalf("expected alice's reminder, got %+v (%v)", list, err)
	}
	if err := f.svc.DeleteReminder(ctx, alice.ID, r.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if list, _ := f.svc.ListReminders(ctx, alice.ID, r.TaskID); len(list) != 0 {
		t.Fatalf("expected reminder removed, got %d", len(list))
	}
}

func TestCreateReminder_DefaultsType(t *testing.T) {
	f := newReminderFixture(t)
	owner := createOwner(t, f.svc.store, "d@example.com")
	r := f.reminder(t, owner, "x", f.now, "CARRIER_PIGEON")
	if r.Type != model.ReminderNotification || r.IsSent {
		t.Fatalf("expected pending NOTIFICATION reminder, got %+v", r)
	}
}

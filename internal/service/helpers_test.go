package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"
	_ "time/tzdata"

	"taskplanner/internal/model"
	"taskplanner/internal/notify"
	"taskplanner/internal/repository"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestStore(t *testing.T) *repository.Store {
	t.Helper()
	db, err := repository.NewDB(repository.DriverSQLite, ":memory:", quietLogger())
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("db handle: %v", err)
	}
	t.Cleanup(func() { sqlDB.Close() })
	return repository.NewStore(db)
}

func createOwner(t *testing.T, store *repository.Store, email string) *model.Owner {
	t.Helper()
	owner := &model.Owner{Email: email, Name: email, PushToken: "100", Timezone: "UTC"}
	if err := store.Owners.Create(context.Background(), owner); err != nil {
		t.Fatalf("create owner: %v", err)
	}
	return owner
}

func createList(t *testing.T, store *repository.Store, ownerID uint, name string) *model.TaskList {
	t.Helper()
	list := &model.TaskList{OwnerID: ownerID, Name: name}
	if err := store.Lists.Create(context.Background(), list); err != nil {
		t.Fatalf("create list: %v", err)
	}
	return list
}

func createTag(t *testing.T, store *repository.Store, ownerID uint, name string) *model.Tag {
	t.Helper()
	tag := &model.Tag{OwnerID: ownerID, Name: name}
	if err := store.Tags.Create(context.Background(), tag); err != nil {
		t.Fatalf("create tag: %v", err)
	}
	return tag
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []notify.Event
	err    error
}

func (n *recordingNotifier) Publish(ownerID uint, event notify.Event) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, event)
	return n.err
}

func (n *recordingNotifier) actions() []notify.Action {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]notify.Action, 0, len(n.events))
	for _, e := range n.events {
		out = append(out, e.Action)
	}
	return out
}

var errBoom = errors.New("boom")

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func ptr[T any](v T) *T { return &v }

// Package notify fans task change events out to connected clients.
package notify

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

type Action string

const (
	ActionCreate Action = "create"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)

// Event is one task change. Task carries the materialized task view.
type Event struct {
	ID         string
	Action     Action
	OwnerID    uint
	Task       any
	OccurredAt time.Time
}

func NewEvent(action Action, ownerID uint, task any) Event {
	return Event{
		ID:         uuid.NewString(),
		Action:     action,
		OwnerID:    ownerID,
		Task:       task,
		OccurredAt: time.Now().UTC(),
	}
}

// Notifier receives task change events. Delivery is best effort.
type Notifier interface {
	Publish(ownerID uint, event Event) error
}

// ErrDropped is returned when a subscriber's buffer was full.
var ErrDropped = errors.New("event dropped")

// Hub keeps per-owner subscriptions. Publish never blocks.
type Hub struct {
	mu     sync.RWMutex
	nextID int
	subs   map[uint]map[int]chan Event
	buffer int
}

func NewHub(buffer int) *Hub {
	if buffer <= 0 {
		buffer = 16
	}
	return &Hub{subs: make(map[uint]map[int]chan Event), buffer: buffer}
}

// Subscribe returns a channel of the owner's events and a cancel func that
// closes it.
func (h *Hub) Subscribe(ownerID uint) (<-chan Event, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()
	id := h.nextID
	h.nextID++
	ch := make(chan Event, h.buffer)
	if h.subs[ownerID] == nil {
		h.subs[ownerID] = make(map[int]chan Event)
	}
	h.subs[ownerID][id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			delete(h.subs[ownerID], id)
			if len(h.subs[ownerID]) == 0 {
				delete(h.subs, ownerID)
			}
			close(ch)
		})
	}
}

func (h *Hub) Subscribers(ownerID uint) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[ownerID])
}

func (h *Hub) Publish(ownerID uint, event Event) error {
	h.mu.RLock()
	defer h.mu.RUnlock()
	dropped := 0
	for _, ch := range h.subs[ownerID] {
		select {
		case ch <- event:
		default:
			dropped++
		}
	}
	if dropped > 0 {
		return fmt.Errorf("%w: %d subscriber(s) of owner %d", ErrDropped, dropped, ownerID)
	}
	return nil
}

package dispatch

import (
	"context"
	"errors"
	"fmt"

	"taskplanner/internal/model"
)

type Channel string

const (
	ChannelEmail Channel = "email"
	ChannelPush  Channel = "push"
)

var routes = map[model.ReminderType][]Channel{
	model.ReminderEmail:        {ChannelEmail},
	model.ReminderNotification: {ChannelPush},
	model.ReminderBoth:         {ChannelEmail, ChannelPush},
}

// Channels returns the channels a reminder type fans out to.
func Channels(t model.ReminderType) []Channel {
	if chs, ok := routes[t]; ok {
		return chs
	}
	return routes[model.ReminderNotification]
}

// Message is one reminder rendered for delivery.
type Message struct {
	Subject   string
	Body      string
	Email     string
	PushToken string
}

// Attempt is the result of one channel call.
type Attempt struct {
	Channel Channel
	Err     error
}

// Skipped reports whether the channel had nothing to deliver to.
func (a Attempt) Skipped() bool {
	return errors.Is(a.Err, ErrNoDestination) || errors.Is(a.Err, ErrChannelDisabled)
}

// Failed reports a delivery error worth retrying.
func (a Attempt) Failed() bool {
	return a.Err != nil && !a.Skipped()
}

// Outcome collects every channel attempt for one reminder.
type Outcome struct {
	Attempts []Attempt
}

func (o Outcome) Delivered() int {
	n := 0
	for _, a := range o.Attempts {
		if a.Err == nil {
			n++
		}
	}
	return n
}

// Resolved reports whether the reminder can be marked sent: some channel
// delivered, or nothing failed in a retryable way.
func (o Outcome) Resolved() bool {
	if o.Delivered() > 0 {
		return true
	}
	for _, a := range o.Attempts {
		if a.Failed() {
			return false
		}
	}
	return true
}

// Err joins the errors of every failed or skipped channel.
func (o Outcome) Err() error {
	var errs []error
	for _, a := range o.Attempts {
		if a.Err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", a.Channel, a.Err))
		}
	}
	return errors.Join(errs...)
}

// Deliver sends msg on every channel of t. Channels are attempted
// independently; a failure or panic in one does not stop the next.
func Deliver(ctx context.Context, gw Gateway, t model.ReminderType, msg Message) Outcome {
	var out Outcome
	for _, ch := range Channels(t) {
		out.Attempts = append(out.Attempts, Attempt{Channel: ch, Err: send(ctx, gw, ch, msg)})
	}
	return out
}

func send(ctx context.Context, gw Gateway, ch Channel, msg Message) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %s panicked: %v", ErrTransport, ch, r)
		}
	}()
	switch ch {
	case ChannelEmail:
		return gw.SendEmail(ctx, msg.Email, msg.Subject, msg.Body)
	case ChannelPush:
		return gw.SendPush(ctx, msg.PushToken, msg.Subject, msg.Body)
	}
	return fmt.Errorf("%w: unknown channel %q", ErrChannelDisabled, ch)
}

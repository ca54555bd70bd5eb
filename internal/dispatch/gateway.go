// Package dispatch delivers reminder messages over email and push channels.
package dispatch

import (
	"context"
	"errors"
)

var (
	// ErrTransport marks a delivery attempt that the transport rejected.
	ErrTransport = errors.New("transport failure")
	// ErrNoDestination means the owner has no address for the channel.
	ErrNoDestination = errors.New("no destination for channel")
	// ErrChannelDisabled means the channel is not configured.
	ErrChannelDisabled = errors.New("channel disabled")
)

// Gateway is the outbound transport used by the reminder scanner.
type Gateway interface {
	SendEmail(ctx context.Context, address, subject, body string) error
	SendPush(ctx context.Context, deviceToken, title, body string) error
}

// Mailer sends email.
type Mailer interface {
	SendEmail(ctx context.Context, address, subject, body string) error
}

// Pusher sends push notifications.
type Pusher interface {
	SendPush(ctx context.Context, deviceToken, title, body string) error
}

// Transport combines a mailer and a pusher. Either may be nil, in which case
// the channel reports ErrChannelDisabled.
type Transport struct {
	Mailer Mailer
	Pusher Pusher
}

func (t Transport) SendEmail(ctx context.Context, address, subject, body string) error {
	if t.Mailer == nil {
		return ErrChannelDisabled
	}
	if address == "" {
		return ErrNoDestination
	}
	return t.Mailer.SendEmail(ctx, address, subject, body)
}

func (t Transport) SendPush(ctx context.Context, deviceToken, title, body string) error {
	if t.Pusher == nil {
		return ErrChannelDisabled
	}
	if deviceToken == "" {
		return ErrNoDestination
	}
	return t.Pusher.SendPush(ctx, deviceToken, title, body)
}

package dispatch

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/wneessen/go-mail"
)

const defaultSMTPTimeout = 15 * time.Second

// SMTPMailer sends plain-text mail through an SMTP relay. Every send dials a
// fresh connection bounded by both the timeout and the caller's deadline.
type SMTPMailer struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	Timeout  time.Duration

	send func(ctx context.Context, msg *mail.Msg) error
}

func NewSMTPMailer(host string, port int, username, password, from string, timeout time.Duration) *SMTPMailer {
	if timeout <= 0 {
		timeout = defaultSMTPTimeout
	}
	m := &SMTPMailer{
		Host:     host,
		Port:     port,
		Username: username,
		Password: password,
		From:     from,
		Timeout:  timeout,
	}
	m.send = m.dialAndSend
	return m
}

func (m *SMTPMailer) SendEmail(ctx context.Context, address, subject, body string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	msg := mail.NewMsg()
	if err := msg.From(m.From); err != nil {
		return fmt.Errorf("%w: sender %q: %v", ErrTransport, m.From, err)
	}
	if err := msg.To(address); err != nil {
		return fmt.Errorf("%w: recipient %q: %v", ErrNoDestination, address, err)
	}
	msg.Subject(subject)
	msg.SetDate()
	msg.SetBodyString(mail.TypeTextPlain, body)

	ctx, cancel := context.WithTimeout(ctx, m.Timeout)
	defer cancel()
	if err := m.send(ctx, msg); err != nil {
		return fmt.Errorf("%w: smtp to %s: %v", ErrTransport, address, err)
	}
	return nil
}

func (m *SMTPMailer) dialAndSend(ctx context.Context, msg *mail.Msg) error {
	opts := []mail.Option{
		mail.WithPort(m.Port),
		mail.WithTimeout(m.Timeout),
		mail.WithTLSPolicy(mail.TLSOpportunistic),
		mail.WithDialContextFunc(deadlineDialer),
	}
	if m.Username != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(m.Username),
			mail.WithPassword(m.Password),
		)
	}
	client, err := mail.NewClient(m.Host, opts...)
	if err != nil {
		return err
	}
	return client.DialAndSendWithContext(ctx, msg)
}

// deadlineDialer pins the connection deadline to ctx so a relay that accepts
// and then goes silent cannot hold the caller past it.
func deadlineDialer(ctx context.Context, network, address string) (net.Conn, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, network, address)
	if err != nil {
		return nil, err
	}
	if deadline, ok := ctx.Deadline(); ok {
		if err := conn.SetDeadline(deadline); err != nil {
			conn.Close()
			return nil, err
		}
	}
	return conn, nil
}

// Package notify delivers OTP and welcome messages by email and SMS.
//
// Senders implement Notifier for one channel. Mux routes a Message to the
// sender for its channel, and Dispatcher runs delivery on a small worker
// pool so request handlers never wait on SMTP or the SMS gateway.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// Channel is a delivery medium.
type Channel string

const (
	ChannelEmail Channel = "email"
	ChannelSMS   Channel = "sms"
)

// Message is one outbound notification. HTML is used for email only; SMS
// sends Text.
type Message struct {
	Channel Channel
	To      string
	Subject string
	Text    string
	HTML    string
}

// Notifier delivers a message.
type Notifier interface {
	Notify(ctx context.Context, msg Message) error
}

// ErrNoSender is returned by Mux for a channel with no sender configured.
var ErrNoSender = errors.New("notify: no sender for channel")

// Mux routes messages to a per-channel Notifier.
type Mux struct {
	senders map[Channel]Notifier
}

func NewMux() *Mux {
	return &Mux{senders: make(map[Channel]Notifier)}
}

// Handle registers n for ch, replacing any earlier sender.
func (m *Mux) Handle(ch Channel, n Notifier) *Mux {
	m.senders[ch] = n
	return m
}

func (m *Mux) Notify(ctx context.Context, msg Message) error {
	n, ok := m.senders[msg.Channel]
	if !ok {
		return fmt.Errorf("%w %q", ErrNoSender, msg.Channel)
	}
	return n.Notify(ctx, msg)
}

// LogNotifier writes messages to the log instead of sending them. It stands
// in for senders that are not configured in development.
type LogNotifier struct {
	logger *slog.Logger
}

func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

// Notify logs the channel and recipient at Info. The body can carry an OTP,
// so it is only logged at Debug.
func (l *LogNotifier) Notify(ctx context.Context, msg Message) error {
	l.logger.InfoContext(ctx, "notification (not sent)",
		slog.String("channel", string(msg.Channel)),
		slog.String("to", msg.To),
		slog.String("subject", msg.Subject),
	)
	l.logger.DebugContext(ctx, "notification body",
		slog.String("to", msg.To),
		slog.String("text", msg.Text),
	)
	return nil
}

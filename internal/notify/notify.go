// Package notify delivers credential-workflow email off the request path.
// Messages travel over a buffered channel to a single worker goroutine;
// there is no shared mutable state between producers and the sender.
package notify

import (
	"context"
	"fmt"
	"sync"

	"tijara.org/internal/obs"
)

// Message is one outbound email.
type Message struct {
	To      string
	Subject string
	Body    string
}

// Sender performs the actual delivery. LogSender is the default; SMTP or
// an email API can be plugged in without touching the queue.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// LogSender writes messages to the structured log instead of sending them.
type LogSender struct{}

func (LogSender) Send(_ context.Context, msg Message) error {
	obs.LogRequest(map[string]any{
		"type":    "email",
		"to":      msg.To,
		"subject": msg.Subject,
	})
	return nil
}

// Mailer is the asynchronous notifier consumed by the auth service.
type Mailer struct {
	sender Sender
	queue  chan Message

	stopOnce sync.Once
	done     chan struct{}
}

// NewMailer starts the delivery worker. Close must be called on shutdown.
func NewMailer(sender Sender, buffer int) *Mailer {
	if sender == nil {
		sender = LogSender{}
	}
	if buffer <= 0 {
		buffer = 64
	}
	m := &Mailer{
		sender: sender,
		queue:  make(chan Message, buffer),
		done:   make(chan struct{}),
	}
	go m.run()
	return m
}

func (m *Mailer) run() {
	defer close(m.done)
	for msg := range m.queue {
		if err := m.sender.Send(context.Background(), msg); err != nil {
			obs.LogRequest(map[string]any{
				"type":  "email",
				"level": "error",
				"to":    msg.To,
				"error": err.Error(),
			})
		}
	}
}

// enqueue drops the message if the queue is full: email is best-effort and
// must never block a request.
func (m *Mailer) enqueue(msg Message) {
	select {
	case m.queue <- msg:
	default:
		obs.LogRequest(map[string]any{
			"type":  "email",
			"level": "warn",
			"msg":   "notifier queue full, dropping message",
			"to":    msg.To,
		})
	}
}

// ConfirmEmailCode queues the account-confirmation OTP email.
func (m *Mailer) ConfirmEmailCode(email, code string) {
	m.enqueue(Message{
		To:      email,
		Subject: "Confirm your Tijara account",
		Body:    fmt.Sprintf("Your confirmation code is %s. It expires in two minutes.", code),
	})
}

// PasswordChanged queues the security notification sent after a password
// change.
func (m *Mailer) PasswordChanged(email string) {
	m.enqueue(Message{
		To:      email,
		Subject: "Your Tijara password was changed",
		Body:    "Your password was just changed. If this was not you, reset it immediately.",
	})
}

// Close drains the queue and stops the worker.
func (m *Mailer) Close() {
	m.stopOnce.Do(func() { close(m.queue) })
	<-m.done
}

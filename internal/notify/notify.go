// Package notify delivers transactional email. Delivery failures are
// reported in the Result and never returned as errors or panics.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Attachment is a file sent with a message.
type Attachment struct {
	Filename    string
	ContentType string
	Content     []byte
}

// Message is one email.
type Message struct {
	To          string
	Subject     string
	HTML        string
	Attachments []Attachment
}

// Result describes the outcome of a Notify call.
type Result struct {
	Sent     bool
	Attempts int
	Err      error
}

// Transport hands a message to a mail system.
type Transport interface {
	Send(ctx context.Context, msg Message) error
}

// Notifier retries a Transport with exponential backoff.
type Notifier struct {
	transport  Transport
	logger     *slog.Logger
	maxRetries uint64
	initial    time.Duration
}

type Option func(*Notifier)

func WithLogger(logger *slog.Logger) Option {
	return func(n *Notifier) {
		n.logger = logger
	}
}

// WithMaxRetries bounds retries after the first attempt.
func WithMaxRetries(retries uint64) Option {
	return func(n *Notifier) {
		n.maxRetries = retries
	}
}

// WithInitialInterval sets the first backoff delay; tests shrink it.
func WithInitialInterval(d time.Duration) Option {
	return func(n *Notifier) {
		n.initial = d
	}
}

func New(transport Transport, opts ...Option) *Notifier {
	n := &Notifier{
		transport:  transport,
		logger:     slog.Default(),
		maxRetries: 3,
		initial:    500 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Notify sends msg, retrying transient failures.
func (n *Notifier) Notify(ctx context.Context, msg Message) Result {
	if msg.To == "" {
		return Result{Err: errors.New("message has no recipient")}
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = n.initial
	policy.MaxElapsedTime = 0

	var res Result
	err := backoff.Retry(func() error {
		res.Attempts++
		return n.send(ctx, msg)
	}, backoff.WithContext(backoff.WithMaxRetries(policy, n.maxRetries), ctx))
	if err != nil {
		res.Err = err
		n.logger.WarnContext(ctx, "email delivery failed",
			"subject", msg.Subject,
			"attempts", res.Attempts,
			"error", err,
		)
		return res
	}
	res.Sent = true
	return res
}

// send converts transport panics into permanent errors.
func (n *Notifier) send(ctx context.Context, msg Message) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = backoff.Permanent(fmt.Errorf("mail transport panicked: %v", r))
		}
	}()
	return n.transport.Send(ctx, msg)
}

// LogTransport writes messages to the log instead of sending them.
type LogTransport struct {
	logger *slog.Logger
}

func NewLogTransport(logger *slog.Logger) *LogTransport {
	return &LogTransport{logger: logger}
}

func (t *LogTransport) Send(ctx context.Context, msg Message) error {
	names := make([]string, 0, len(msg.Attachments))
	for _, a := range msg.Attachments {
		names = append(names, a.Filename)
	}
	t.logger.InfoContext(ctx, "email not sent: smtp disabled",
		"to", msg.To,
		"subject", msg.Subject,
		"attachments", names,
	)
	return nil
}

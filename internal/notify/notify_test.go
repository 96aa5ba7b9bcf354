package notify

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingTransport struct {
	mu       sync.Mutex
	failures int
	panics   bool
	sent     []Message
	calls    int
}

func (t *recordingTransport) Send(_ context.Context, msg Message) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.calls++
	if t.panics {
		panic("smtp connection reset")
	}
	if t.calls <= t.failures {
		return errors.New("421 service not available")
	}
	t.sent = append(t.sent, msg)
	return nil
}

func newNotifier(tr Transport, retries uint64) *Notifier {
	return New(tr,
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithMaxRetries(retries),
		WithInitialInterval(time.Millisecond),
	)
}

func TestNotify(t *testing.T) {
	ctx := context.Background()
	msg := Message{To: "asha@example.edu", Subject: "hi", HTML: "<p>hi</p>"}

	t.Run("transient failures are retried", func(t *testing.T) {
		tr := &recordingTransport{failures: 2}
		res := newNotifier(tr, 3).Notify(ctx, msg)
		assert.True(t, res.Sent)
		assert.NoError(t, res.Err)
		assert.Equal(t, 3, res.Attempts)
		assert.Len(t, tr.sent, 1)
	})

	t.Run("retries are bounded", func(t *testing.T) {
		tr := &recordingTransport{failures: 100}
		res := newNotifier(tr, 2).Notify(ctx, msg)
		assert.False(t, res.Sent)
		assert.Error(t, res.Err)
		assert.Equal(t, 3, res.Attempts)
	})

	t.Run("transport panic is contained", func(t *testing.T) {
		tr := &recordingTransport{panics: true}
		var res Result
		assert.NotPanics(t, func() { res = newNotifier(tr, 3).Notify(ctx, msg) })
		assert.False(t, res.Sent)
		require.Error(t, res.Err)
		assert.Contains(t, res.Err.Error(), "panicked")
		assert.Equal(t, 1, res.Attempts)
	})

	t.Run("missing recipient is not attempted", func(t *testing.T) {
		tr := &recordingTransport{}
		res := newNotifier(tr, 3).Notify(ctx, Message{Subject: "x"})
		assert.False(t, res.Sent)
		assert.Equal(t, 0, tr.calls)
	})

	t.Run("cancelled context stops retrying", func(t *testing.T) {
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		tr := &recordingTransport{failures: 100}
		res := newNotifier(tr, 5).Notify(cctx, msg)
		assert.False(t, res.Sent)
		assert.LessOrEqual(t, res.Attempts, 1)
	})
}

func TestRenderPaymentSuccess(t *testing.T) {
	subject, body, err := RenderPaymentSuccess(PaymentSuccess{
		StudentName:   "Asha <Patil>",
		Amount:        "INR 2500.00",
		TransactionID: "TXN-42",
		ReceiptNumber: "RCPT-1",
		Date:          "10 Jun 2025",
		DashboardURL:  "http://localhost:3000/dashboard",
		Issuer:        "SPPU",
	})
	require.NoError(t, err)
	assert.Equal(t, "Payment Successful - Application Fee", subject)
	assert.Contains(t, body, "INR 2500.00")
	assert.Contains(t, body, "TXN-42")
	assert.Contains(t, body, "Asha &lt;Patil&gt;")
	assert.False(t, strings.Contains(body, "<Patil>"))
}

func TestLogTransport(t *testing.T) {
	var sb strings.Builder
	tr := NewLogTransport(slog.New(slog.NewTextHandler(&sb, nil)))
	require.NoError(t, tr.Send(context.Background(), Message{
		To:          "asha@example.edu",
		Subject:     "receipt",
		Attachments: []Attachment{{Filename: "receipt_RCPT-1.pdf"}},
	}))
	assert.Contains(t, sb.String(), "receipt_RCPT-1.pdf")
}

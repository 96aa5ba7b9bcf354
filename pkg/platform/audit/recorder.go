// Package audit records who did what to which entity. Recording never fails
// the caller: store errors are logged, counted, and swallowed.
package audit

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/mssola/useragent"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	id "admissions/pkg/domain"
	"admissions/pkg/requestcontext"
)

const unknownOrigin = "unknown"

// Recorder enriches entries with request origin and appends them to a Store.
type Recorder struct {
	store   Store
	logger  *slog.Logger
	breaker *circuitBreaker

	written *prometheus.CounterVec
	dropped *prometheus.CounterVec
}

type Option func(*Recorder)

func WithLogger(logger *slog.Logger) Option {
	return func(r *Recorder) {
		r.logger = logger
	}
}

// WithRegisterer registers the recorder's counters on reg.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(r *Recorder) {
		factory := promauto.With(reg)
		r.written = factory.NewCounterVec(prometheus.CounterOpts{
			Name: "admissions_audit_entries_written_total",
			Help: "Audit entries persisted, by category",
		}, []string{"category"})
		r.dropped = factory.NewCounterVec(prometheus.CounterOpts{
			Name: "admissions_audit_entries_dropped_total",
			Help: "Audit entries that could not be persisted, by reason",
		}, []string{"reason"})
	}
}

// WithBreaker overrides the failure threshold and cooldown of the store breaker.
func WithBreaker(threshold int, cooldown time.Duration) Option {
	return func(r *Recorder) {
		r.breaker = newCircuitBreaker(threshold, cooldown)
	}
}

func NewRecorder(store Store, opts ...Option) *Recorder {
	r := &Recorder{
		store:   store,
		logger:  slog.Default(),
		breaker: newCircuitBreaker(0, 0),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Record appends entry. Missing fields are filled from the request context:
// actor, request id, IP address, user agent, parsed client label, timestamp.
func (r *Recorder) Record(ctx context.Context, entry Entry) {
	if r == nil || r.store == nil {
		return
	}
	entry = enrich(ctx, entry)

	if !r.breaker.allow() {
		r.drop(ctx, entry, "circuit_open", nil)
		return
	}
	if err := r.store.Append(ctx, entry); err != nil {
		if r.breaker.recordFailure() {
			r.logger.ErrorContext(ctx, "audit store unhealthy, opening circuit", "error", err)
		}
		r.drop(ctx, entry, "store_error", err)
		return
	}
	r.breaker.recordSuccess()
	if r.written != nil {
		r.written.WithLabelValues(string(entry.Action.Category())).Inc()
	}
}

// ListByEntity returns the entries recorded against one entity, oldest first.
func (r *Recorder) ListByEntity(ctx context.Context, entityType, entityID string) ([]Entry, error) {
	return r.store.ListByEntity(ctx, entityType, entityID)
}

func (r *Recorder) drop(ctx context.Context, entry Entry, reason string, err error) {
	if r.dropped != nil {
		r.dropped.WithLabelValues(reason).Inc()
	}
	attrs := []any{
		"action", entry.Action,
		"entity_type", entry.EntityType,
		"entity_id", entry.EntityID,
		"request_id", entry.RequestID,
		"reason", reason,
	}
	if err != nil {
		attrs = append(attrs, "error", err)
	}
	r.logger.WarnContext(ctx, "audit entry dropped", attrs...)
}

func enrich(ctx context.Context, entry Entry) Entry {
	if entry.ID == (id.AuditEntryID{}) {
		entry.ID = id.NewAuditEntryID()
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = requestcontext.Now(ctx)
	}
	if entry.Actor == "" {
		if userID := requestcontext.UserID(ctx); !userID.IsNil() {
			entry.Actor = userID.String()
		} else {
			entry.Actor = "system"
		}
	}
	if entry.RequestID == "" {
		entry.RequestID = requestcontext.RequestID(ctx)
	}
	if entry.IPAddress == "" {
		entry.IPAddress = requestcontext.ClientIP(ctx)
	}
	if entry.IPAddress == "" {
		entry.IPAddress = unknownOrigin
	}
	if entry.UserAgent == "" {
		entry.UserAgent = requestcontext.UserAgent(ctx)
	}
	if entry.UserAgent == "" {
		entry.UserAgent = unknownOrigin
	}
	if entry.Client == "" {
		entry.Client = ClientLabel(entry.UserAgent)
	}
	return entry
}

// ClientLabel condenses a User-Agent into "Browser Version on OS".
func ClientLabel(ua string) string {
	if ua == "" || ua == unknownOrigin {
		return unknownOrigin
	}
	parsed := useragent.New(ua)
	if parsed.Bot() {
		name, _ := parsed.Browser()
		return "bot " + name
	}
	name, version := parsed.Browser()
	if name == "" {
		return unknownOrigin
	}
	if os := parsed.OS(); os != "" {
		return fmt.Sprintf("%s %s on %s", name, version, os)
	}
	return fmt.Sprintf("%s %s", name, version)
}

package audit_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	id "admissions/pkg/domain"
	"admissions/pkg/platform/audit"
	"admissions/pkg/platform/audit/store/memory"
	"admissions/pkg/requestcontext"
)

type failingStore struct {
	calls atomic.Int32
}

func (f *failingStore) Append(context.Context, audit.Entry) error {
	f.calls.Add(1)
	return errors.New("connection refused")
}

func (f *failingStore) ListByEntity(context.Context, string, string) ([]audit.Entry, error) {
	return nil, nil
}

type RecorderSuite struct {
	suite.Suite
	store    *memory.InMemoryStore
	recorder *audit.Recorder
	logger   *slog.Logger
}

func TestRecorderSuite(t *testing.T) {
	suite.Run(t, new(RecorderSuite))
}

func (s *RecorderSuite) SetupTest() {
	s.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	s.store = memory.NewInMemoryStore()
	s.recorder = audit.NewRecorder(s.store, audit.WithLogger(s.logger), audit.WithRegisterer(prometheus.NewRegistry()))
}

func (s *RecorderSuite) TestEnrichesFromRequestContext() {
	userID := id.NewUserID()
	now := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
	ctx := requestcontext.WithUserID(context.Background(), userID)
	ctx = requestcontext.WithRequestID(ctx, "req-42")
	ctx = requestcontext.WithTime(ctx, now)
	ctx = requestcontext.WithClientMetadata(ctx, "203.0.113.7",
		"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36")

	s.recorder.Record(ctx, audit.Entry{
		Action:     audit.ActionPaymentVerified,
		EntityType: audit.EntityPayment,
		EntityID:   "pay-1",
		NewValues:  map[string]any{"status": "SUCCESS"},
	})

	entries, err := s.recorder.ListByEntity(ctx, audit.EntityPayment, "pay-1")
	s.Require().NoError(err)
	s.Require().Len(entries, 1)
	e := entries[0]
	s.Equal(userID.String(), e.Actor)
	s.Equal("req-42", e.RequestID)
	s.Equal("203.0.113.7", e.IPAddress)
	s.Equal(now, e.Timestamp)
	s.Contains(e.Client, "Chrome")
	s.Contains(e.Client, "Windows")
	s.NotEqual(id.AuditEntryID{}, e.ID)
}

func (s *RecorderSuite) TestUnknownOriginDefaults() {
	s.recorder.Record(context.Background(), audit.Entry{
		Action:     audit.ActionApplicationRepaired,
		EntityType: audit.EntityApplication,
		EntityID:   "app-1",
	})

	entries, err := s.store.ListAll(context.Background())
	s.Require().NoError(err)
	s.Require().Len(entries, 1)
	s.Equal("system", entries[0].Actor)
	s.Equal("unknown", entries[0].IPAddress)
	s.Equal("unknown", entries[0].UserAgent)
	s.Equal("unknown", entries[0].Client)
}

func (s *RecorderSuite) TestNilRecorderIsNoop() {
	var r *audit.Recorder
	s.NotPanics(func() {
		r.Record(context.Background(), audit.Entry{Action: audit.ActionPaymentVerified})
	})
}

func TestRecorderSwallowsStoreFailures(t *testing.T) {
	store := &failingStore{}
	reg := prometheus.NewRegistry()
	recorder := audit.NewRecorder(store,
		audit.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		audit.WithRegisterer(reg),
		audit.WithBreaker(3, time.Hour),
	)

	for i := 0; i < 10; i++ {
		assert.NotPanics(t, func() {
			recorder.Record(context.Background(), audit.Entry{
				Action:     audit.ActionPaymentVerificationFailed,
				EntityType: audit.EntityPayment,
				EntityID:   "pay-1",
			})
		})
	}

	// the circuit opens after three failures and later entries skip the store
	assert.Equal(t, int32(3), store.calls.Load())

	count, err := testutil.GatherAndCount(reg, "admissions_audit_entries_dropped_total")
	require.NoError(t, err)
	assert.Equal(t, 2, count, "store_error and circuit_open series")
}

func TestActionCategories(t *testing.T) {
	assert.Equal(t, audit.CategoryCompliance, audit.ActionPaymentVerified.Category())
	assert.Equal(t, audit.CategorySecurity, audit.ActionPaymentVerificationFailed.Category())
	assert.Equal(t, audit.CategoryOperations, audit.Action("something_new").Category())
}

func TestClientLabel(t *testing.T) {
	assert.Equal(t, "unknown", audit.ClientLabel(""))
	assert.Contains(t, audit.ClientLabel("Mozilla/5.0 (compatible; Googlebot/2.1; +http://www.google.com/bot.html)"), "bot")
}

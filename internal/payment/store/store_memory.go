package store

import (
	"context"
	"slices"
	"sync"

	"admissions/internal/payment/models"
	id "admissions/pkg/domain"
	"admissions/pkg/platform/sentinel"
)

// InMemoryStore keeps payments in process. It enforces the same uniqueness
// rules as the Postgres schema, including one SUCCESS per application.
type InMemoryStore struct {
	mu       sync.RWMutex
	payments map[id.PaymentID]*models.Payment
	byOrder  map[string]id.PaymentID
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		payments: make(map[id.PaymentID]*models.Payment),
		byOrder:  make(map[string]id.PaymentID),
	}
}

func (s *InMemoryStore) Create(_ context.Context, p *models.Payment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.byOrder[p.GatewayOrderID]; exists {
		return sentinel.ErrConflict
	}
	for _, existing := range s.payments {
		if existing.TransactionID == p.TransactionID || existing.ReceiptNumber == p.ReceiptNumber {
			return sentinel.ErrConflict
		}
	}
	s.payments[p.ID] = clonePayment(p)
	s.byOrder[p.GatewayOrderID] = p.ID
	return nil
}

func (s *InMemoryStore) FindByID(_ context.Context, paymentID id.PaymentID) (*models.Payment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.payments[paymentID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return clonePayment(p), nil
}

func (s *InMemoryStore) FindByOrderID(_ context.Context, orderID string) (*models.Payment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	paymentID, ok := s.byOrder[orderID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return clonePayment(s.payments[paymentID]), nil
}

// FindByIDForUpdate has no row lock in memory; callers serialize through
// the transaction runner.
func (s *InMemoryStore) FindByIDForUpdate(ctx context.Context, paymentID id.PaymentID) (*models.Payment, error) {
	return s.FindByID(ctx, paymentID)
}

func (s *InMemoryStore) FindSuccessfulByApplication(_ context.Context, appID id.ApplicationID) (*models.Payment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, p := range s.payments {
		if p.ApplicationID == appID && p.Status == models.StatusSuccess {
			return clonePayment(p), nil
		}
	}
	return nil, sentinel.ErrNotFound
}

// MarkSucceeded moves a PENDING payment to SUCCESS. It returns
// ErrInvalidState when the payment is no longer PENDING and ErrConflict when
// another payment for the application already succeeded.
func (s *InMemoryStore) MarkSucceeded(_ context.Context, paymentID id.PaymentID, settlement models.Settlement) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.payments[paymentID]
	if !ok {
		return sentinel.ErrNotFound
	}
	if p.Status != models.StatusPending {
		return sentinel.ErrInvalidState
	}
	for _, other := range s.payments {
		if other.ID != p.ID && other.ApplicationID == p.ApplicationID && other.Status == models.StatusSuccess {
			return sentinel.ErrConflict
		}
	}
	return p.Succeed(settlement)
}

// MarkFailed moves a PENDING payment to FAILED, or returns ErrInvalidState.
func (s *InMemoryStore) MarkFailed(_ context.Context, paymentID id.PaymentID, rejection models.Rejection) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.payments[paymentID]
	if !ok {
		return sentinel.ErrNotFound
	}
	if p.Status != models.StatusPending {
		return sentinel.ErrInvalidState
	}
	return p.Fail(rejection)
}

// ListSettledApplications returns applications that have a SUCCESS payment.
func (s *InMemoryStore) ListSettledApplications(_ context.Context) ([]id.ApplicationID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []id.ApplicationID
	for _, p := range s.payments {
		if p.Status == models.StatusSuccess && !slices.Contains(out, p.ApplicationID) {
			out = append(out, p.ApplicationID)
		}
	}
	return out, nil
}

// ListByApplication returns every payment attempt for an application.
func (s *InMemoryStore) ListByApplication(_ context.Context, appID id.ApplicationID) ([]*models.Payment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Payment
	for _, p := range s.payments {
		if p.ApplicationID == appID {
			out = append(out, clonePayment(p))
		}
	}
	slices.SortFunc(out, func(a, b *models.Payment) int { return a.CreatedAt.Compare(b.CreatedAt) })
	return out, nil
}

func clonePayment(p *models.Payment) *models.Payment {
	cp := *p
	cp.GatewayResponse = slices.Clone(p.GatewayResponse)
	return &cp
}

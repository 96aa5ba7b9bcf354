package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"admissions/internal/payment/models"
	"admissions/internal/platform/postgres"
	id "admissions/pkg/domain"
	"admissions/pkg/platform/sentinel"
	txcontext "admissions/pkg/platform/tx"
)

const oneSuccessIndex = "payments_one_success_per_application"

// PostgresStore persists payments. State changes are conditional on the row
// still being PENDING so a lost race affects zero rows.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Create(ctx context.Context, p *models.Payment) error {
	_, err := txcontext.Execer(ctx, s.db).ExecContext(ctx, `
		INSERT INTO payments (
			id, transaction_id, application_id, user_id, gateway_order_id, amount, currency,
			status, receipt_number, payment_method, created_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`, uuid.UUID(p.ID), p.TransactionID, uuid.UUID(p.ApplicationID), uuid.UUID(p.UserID), p.GatewayOrderID,
		p.Amount, p.Currency, string(p.Status), p.ReceiptNumber, p.PaymentMethod, p.CreatedAt)
	if err != nil {
		if postgres.IsUniqueViolation(err, "") {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("insert payment: %w", err)
	}
	return nil
}

const paymentColumns = `
	id, transaction_id, application_id, user_id, gateway_order_id, gateway_payment_id, gateway_signature,
	amount, currency, status, receipt_number, payment_method, gateway_response, failure_reason,
	student_name, course_name, application_number, created_at, completed_at, failed_at`

func scanPayment(row interface{ Scan(...any) error }) (*models.Payment, error) {
	var (
		p                      models.Payment
		paymentID, appID, user uuid.UUID
		gatewayPayment, sig    sql.NullString
		status                 string
		response               []byte
		completedAt, failedAt  sql.NullTime
	)
	if err := row.Scan(
		&paymentID, &p.TransactionID, &appID, &user, &p.GatewayOrderID, &gatewayPayment, &sig,
		&p.Amount, &p.Currency, &status, &p.ReceiptNumber, &p.PaymentMethod, &response, &p.FailureReason,
		&p.StudentName, &p.CourseName, &p.ApplicationNumber, &p.CreatedAt, &completedAt, &failedAt,
	); err != nil {
		return nil, err
	}
	p.ID = id.PaymentID(paymentID)
	p.ApplicationID = id.ApplicationID(appID)
	p.UserID = id.UserID(user)
	p.GatewayPaymentID = gatewayPayment.String
	p.GatewaySignature = sig.String
	p.Status = models.Status(status)
	p.GatewayResponse = response
	if completedAt.Valid {
		t := completedAt.Time
		p.CompletedAt = &t
	}
	if failedAt.Valid {
		t := failedAt.Time
		p.FailedAt = &t
	}
	return &p, nil
}

func (s *PostgresStore) findOne(ctx context.Context, where string, arg any) (*models.Payment, error) {
	row := txcontext.Execer(ctx, s.db).QueryRowContext(ctx, `SELECT `+paymentColumns+` FROM payments WHERE `+where, arg)
	p, err := scanPayment(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find payment: %w", err)
	}
	return p, nil
}

func (s *PostgresStore) FindByID(ctx context.Context, paymentID id.PaymentID) (*models.Payment, error) {
	return s.findOne(ctx, "id = $1", uuid.UUID(paymentID))
}

func (s *PostgresStore) FindByOrderID(ctx context.Context, orderID string) (*models.Payment, error) {
	return s.findOne(ctx, "gateway_order_id = $1", orderID)
}

// FindByIDForUpdate row-locks the payment until the surrounding transaction ends.
func (s *PostgresStore) FindByIDForUpdate(ctx context.Context, paymentID id.PaymentID) (*models.Payment, error) {
	return s.findOne(ctx, "id = $1 FOR UPDATE", uuid.UUID(paymentID))
}

func (s *PostgresStore) FindSuccessfulByApplication(ctx context.Context, appID id.ApplicationID) (*models.Payment, error) {
	return s.findOne(ctx, "application_id = $1 AND status = 'SUCCESS'", uuid.UUID(appID))
}

func (s *PostgresStore) MarkSucceeded(ctx context.Context, paymentID id.PaymentID, st models.Settlement) error {
	res, err := txcontext.Execer(ctx, s.db).ExecContext(ctx, `
		UPDATE payments
		SET status = 'SUCCESS', gateway_payment_id = $2, gateway_signature = $3, payment_method = $4,
			gateway_response = $5, completed_at = $6,
			student_name = $7, course_name = $8, application_number = $9
		WHERE id = $1 AND status = 'PENDING'
	`, uuid.UUID(paymentID), st.GatewayPaymentID, st.Signature, st.Method, nullableJSON(st.Response), st.At,
		st.StudentName, st.CourseName, st.ApplicationNumber)
	if err != nil {
		if postgres.IsUniqueViolation(err, oneSuccessIndex) {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("mark payment succeeded: %w", err)
	}
	return s.requireTransition(ctx, res, paymentID)
}

func (s *PostgresStore) MarkFailed(ctx context.Context, paymentID id.PaymentID, r models.Rejection) error {
	res, err := txcontext.Execer(ctx, s.db).ExecContext(ctx, `
		UPDATE payments
		SET status = 'FAILED', failure_reason = $2,
			gateway_payment_id = COALESCE(NULLIF($3, ''), gateway_payment_id),
			gateway_response = $4, failed_at = $5
		WHERE id = $1 AND status = 'PENDING'
	`, uuid.UUID(paymentID), r.Reason, r.GatewayPaymentID, nullableJSON(r.Response), r.At)
	if err != nil {
		return fmt.Errorf("mark payment failed: %w", err)
	}
	return s.requireTransition(ctx, res, paymentID)
}

// requireTransition distinguishes a missing payment from one that already
// left PENDING when a conditional update touched no rows.
func (s *PostgresStore) requireTransition(ctx context.Context, res sql.Result, paymentID id.PaymentID) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 1 {
		return nil
	}
	if _, err := s.FindByID(ctx, paymentID); err != nil {
		return err
	}
	return sentinel.ErrInvalidState
}

// ListSettledApplications returns applications whose payment succeeded but
// whose own payment status has not caught up.
func (s *PostgresStore) ListSettledApplications(ctx context.Context) ([]id.ApplicationID, error) {
	rows, err := txcontext.Execer(ctx, s.db).QueryContext(ctx, `
		SELECT p.application_id
		FROM payments p JOIN applications a ON a.id = p.application_id
		WHERE p.status = 'SUCCESS' AND a.payment_status <> 'SUCCESS'
	`)
	if err != nil {
		return nil, fmt.Errorf("query settled applications: %w", err)
	}
	defer rows.Close()

	var out []id.ApplicationID
	for rows.Next() {
		var appID uuid.UUID
		if err := rows.Scan(&appID); err != nil {
			return nil, fmt.Errorf("scan application id: %w", err)
		}
		out = append(out, id.ApplicationID(appID))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate settled applications: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) ListByApplication(ctx context.Context, appID id.ApplicationID) ([]*models.Payment, error) {
	rows, err := txcontext.Execer(ctx, s.db).QueryContext(ctx,
		`SELECT `+paymentColumns+` FROM payments WHERE application_id = $1 ORDER BY created_at`, uuid.UUID(appID))
	if err != nil {
		return nil, fmt.Errorf("query payments: %w", err)
	}
	defer rows.Close()

	var out []*models.Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, fmt.Errorf("scan payment: %w", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate payments: %w", err)
	}
	return out, nil
}

func nullableJSON(raw []byte) any {
	if len(raw) == 0 {
		return nil
	}
	return string(raw)
}

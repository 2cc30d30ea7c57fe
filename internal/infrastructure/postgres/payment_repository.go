package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	domain "github.com/Zhima-Mochi/minishop-fulfillment/internal/domain/payment"
)

const paymentColumns = `id, order_id, order_number, user_id, method, status, amount, refunded_amount, currency,
	transaction_id, gateway_transaction_no, gateway_response, failure_reason, risk_score, risk_level,
	created_at, updated_at, processed_at`

type PaymentRepository struct {
	pool *pgxpool.Pool
}

func NewPaymentRepository(pool *pgxpool.Pool) *PaymentRepository {
	return &PaymentRepository{pool: pool}
}

func (r *PaymentRepository) Insert(ctx context.Context, p *domain.Payment) error {
	_, err := r.pool.Exec(ctx, `INSERT INTO payments (`+paymentColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)`,
		p.ID, p.OrderID, p.OrderNumber, p.UserID, p.Method, p.Status, p.Amount, p.RefundedAmount, p.Currency,
		p.TransactionID, p.GatewayTransactionNo, rawJSON(p.GatewayResponse), p.FailureReason, p.RiskScore, p.RiskLevel,
		p.CreatedAt, p.UpdatedAt, p.ProcessedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrConflict
		}
		return fmt.Errorf("insert payment: %w", err)
	}
	return nil
}

func (r *PaymentRepository) Get(ctx context.Context, id string) (*domain.Payment, error) {
	return r.findOne(ctx, `SELECT `+paymentColumns+` FROM payments WHERE id = $1`, id)
}

func (r *PaymentRepository) FindByTransactionID(ctx context.Context, transactionID string) (*domain.Payment, error) {
	if transactionID == "" {
		return nil, domain.ErrNotFound
	}
	return r.findOne(ctx, `SELECT `+paymentColumns+` FROM payments WHERE transaction_id = $1
		ORDER BY created_at DESC LIMIT 1`, transactionID)
}

func (r *PaymentRepository) LatestByOrderNumber(ctx context.Context, orderNumber string) (*domain.Payment, error) {
	return r.findOne(ctx, `SELECT `+paymentColumns+` FROM payments WHERE order_number = $1
		ORDER BY created_at DESC LIMIT 1`, orderNumber)
}

func (r *PaymentRepository) SettledByOrderNumber(ctx context.Context, orderNumber string) (*domain.Payment, error) {
	return r.findOne(ctx, `SELECT `+paymentColumns+` FROM payments WHERE order_number = $1
		AND status IN ('COMPLETED', 'PARTIALLY_REFUNDED') LIMIT 1`, orderNumber)
}

func (r *PaymentRepository) UpdateIfStatus(ctx context.Context, p *domain.Payment, expected domain.Status) error {
	tag, err := r.pool.Exec(ctx, `UPDATE payments SET
			status = $3, refunded_amount = $4, transaction_id = $5, gateway_transaction_no = $6,
			gateway_response = $7, failure_reason = $8, risk_score = $9, risk_level = $10,
			updated_at = $11, processed_at = $12
		WHERE id = $1 AND status = $2`,
		p.ID, expected, p.Status, p.RefundedAmount, p.TransactionID, p.GatewayTransactionNo,
		rawJSON(p.GatewayResponse), p.FailureReason, p.RiskScore, p.RiskLevel,
		p.UpdatedAt, p.ProcessedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrConflict
		}
		return fmt.Errorf("update payment: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}
	var exists bool
	if err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM payments WHERE id = $1)`, p.ID).Scan(&exists); err != nil {
		return fmt.Errorf("update payment: %w", err)
	}
	if !exists {
		return domain.ErrNotFound
	}
	return domain.ErrConflict
}

func (r *PaymentRepository) CountByUserSince(ctx context.Context, userID string, since time.Time) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx, `SELECT count(*) FROM payments WHERE user_id = $1 AND created_at >= $2`, userID, since).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count payments: %w", err)
	}
	return n, nil
}

func (r *PaymentRepository) CountByUserAndStatus(ctx context.Context, userID string, status domain.Status) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx, `SELECT count(*) FROM payments WHERE user_id = $1 AND status = $2`, userID, status).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count payments: %w", err)
	}
	return n, nil
}

func (r *PaymentRepository) findOne(ctx context.Context, query string, arg any) (*domain.Payment, error) {
	var (
		p   domain.Payment
		raw []byte
	)
	err := r.pool.QueryRow(ctx, query, arg).Scan(
		&p.ID, &p.OrderID, &p.OrderNumber, &p.UserID, &p.Method, &p.Status, &p.Amount, &p.RefundedAmount, &p.Currency,
		&p.TransactionID, &p.GatewayTransactionNo, &raw, &p.FailureReason, &p.RiskScore, &p.RiskLevel,
		&p.CreatedAt, &p.UpdatedAt, &p.ProcessedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("select payment: %w", err)
	}
	if len(raw) > 0 {
		p.GatewayResponse = raw
	}
	return &p, nil
}

// rawJSON maps an empty document to SQL NULL.
func rawJSON(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return string(b)
}

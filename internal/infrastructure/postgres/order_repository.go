package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	domain "github.com/Zhima-Mochi/minishop-fulfillment/internal/domain/order"
)

const orderColumns = `id, order_number, user_id, status, payment_status, payment_method, currency,
	subtotal, tax, shipping_fee, discount_amount, total_amount, voucher_id, voucher_code,
	payment_reference, cancellation_reason, created_at, updated_at, cancelled_at, paid_at`

type OrderRepository struct {
	pool *pgxpool.Pool
}

func NewOrderRepository(pool *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{pool: pool}
}

func (r *OrderRepository) Insert(ctx context.Context, o *domain.Order) error {
	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `INSERT INTO orders (`+orderColumns+`)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20)`,
			o.ID, o.OrderNumber, o.UserID, o.Status, o.PaymentStatus, o.PaymentMethod, o.Currency,
			o.Subtotal, o.Tax, o.ShippingFee, o.DiscountAmount, o.TotalAmount, o.VoucherID, o.VoucherCode,
			o.PaymentReference, o.CancellationReason, o.CreatedAt, o.UpdatedAt, o.CancelledAt, o.PaidAt,
		)
		if err != nil {
			if isUniqueViolation(err) {
				return domain.ErrConflict
			}
			return fmt.Errorf("insert order: %w", err)
		}

		batch := &pgx.Batch{}
		for i, it := range o.Items {
			batch.Queue(`INSERT INTO order_items (order_id, position, product_id, quantity, unit_price)
				VALUES ($1, $2, $3, $4, $5)`, o.ID, i, it.ProductID, it.Quantity, it.UnitPrice)
		}
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("insert order items: %w", err)
		}
		return nil
	})
}

func (r *OrderRepository) Get(ctx context.Context, id string) (*domain.Order, error) {
	return r.findOne(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, id)
}

func (r *OrderRepository) FindByNumber(ctx context.Context, orderNumber string) (*domain.Order, error) {
	return r.findOne(ctx, `SELECT `+orderColumns+` FROM orders WHERE order_number = $1`, orderNumber)
}

func (r *OrderRepository) findOne(ctx context.Context, query string, arg any) (*domain.Order, error) {
	o, err := scanOrder(r.pool.QueryRow(ctx, query, arg))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("select order: %w", err)
	}
	if err := r.loadItems(ctx, []*domain.Order{o}); err != nil {
		return nil, err
	}
	return o, nil
}

func (r *OrderRepository) Update(ctx context.Context, o *domain.Order) error {
	tag, err := r.pool.Exec(ctx, `UPDATE orders SET
			status = $2, payment_status = $3, subtotal = $4, tax = $5, shipping_fee = $6,
			discount_amount = $7, total_amount = $8, voucher_id = $9, voucher_code = $10,
			payment_reference = $11, cancellation_reason = $12, updated_at = $13,
			cancelled_at = $14, paid_at = $15
		WHERE id = $1`,
		o.ID, o.Status, o.PaymentStatus, o.Subtotal, o.Tax, o.ShippingFee,
		o.DiscountAmount, o.TotalAmount, o.VoucherID, o.VoucherCode,
		o.PaymentReference, o.CancellationReason, o.UpdatedAt, o.CancelledAt, o.PaidAt,
	)
	if err != nil {
		return fmt.Errorf("update order: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *OrderRepository) Delete(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM orders WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete order: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *OrderRepository) ListStale(ctx context.Context, status domain.Status, paymentStatus domain.PaymentStatus, cutoff time.Time, limit int) ([]*domain.Order, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.pool.Query(ctx, `SELECT `+orderColumns+` FROM orders
		WHERE status = $1 AND payment_status = $2 AND updated_at < $3
		ORDER BY updated_at
		LIMIT $4`, status, paymentStatus, cutoff, limit)
	if err != nil {
		return nil, fmt.Errorf("list stale orders: %w", err)
	}
	defer rows.Close()

	var out []*domain.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan stale order: %w", err)
		}
		out = append(out, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list stale orders: %w", err)
	}
	if err := r.loadItems(ctx, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *OrderRepository) loadItems(ctx context.Context, orders []*domain.Order) error {
	if len(orders) == 0 {
		return nil
	}
	ids := make([]string, 0, len(orders))
	byID := make(map[string]*domain.Order, len(orders))
	for _, o := range orders {
		ids = append(ids, o.ID)
		byID[o.ID] = o
	}
	rows, err := r.pool.Query(ctx, `SELECT order_id, product_id, quantity, unit_price
		FROM order_items WHERE order_id = ANY($1) ORDER BY order_id, position`, ids)
	if err != nil {
		return fmt.Errorf("select order items: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var orderID string
		var it domain.Item
		if err := rows.Scan(&orderID, &it.ProductID, &it.Quantity, &it.UnitPrice); err != nil {
			return fmt.Errorf("scan order item: %w", err)
		}
		if o := byID[orderID]; o != nil {
			o.Items = append(o.Items, it)
		}
	}
	return rows.Err()
}

func scanOrder(row pgx.Row) (*domain.Order, error) {
	var o domain.Order
	err := row.Scan(
		&o.ID, &o.OrderNumber, &o.UserID, &o.Status, &o.PaymentStatus, &o.PaymentMethod, &o.Currency,
		&o.Subtotal, &o.Tax, &o.ShippingFee, &o.DiscountAmount, &o.TotalAmount, &o.VoucherID, &o.VoucherCode,
		&o.PaymentReference, &o.CancellationReason, &o.CreatedAt, &o.UpdatedAt, &o.CancelledAt, &o.PaidAt,
	)
	if err != nil {
		return nil, err
	}
	return &o, nil
}

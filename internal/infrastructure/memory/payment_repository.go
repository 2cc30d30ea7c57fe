package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	domain "github.com/Zhima-Mochi/minishop-fulfillment/internal/domain/payment"
)

type PaymentRepository struct {
	mu       sync.RWMutex
	payments map[string]*domain.Payment
	// order number -> payment ids in creation order
	byOrder map[string][]string
}

func NewPaymentRepository() *PaymentRepository {
	return &PaymentRepository{
		payments: make(map[string]*domain.Payment),
		byOrder:  make(map[string][]string),
	}
}

func (r *PaymentRepository) Insert(ctx context.Context, p *domain.Payment) error {
	_ = ctx
	if p == nil || p.ID == "" || p.OrderNumber == "" {
		return fmt.Errorf("payment repository: id and order number are required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.payments[p.ID]; exists {
		return domain.ErrConflict
	}
	if p.Status == domain.StatusCompleted && r.settledLocked(p.OrderNumber) != nil {
		return domain.ErrConflict
	}
	r.payments[p.ID] = p.Clone()
	r.byOrder[p.OrderNumber] = append(r.byOrder[p.OrderNumber], p.ID)
	return nil
}

func (r *PaymentRepository) Get(ctx context.Context, id string) (*domain.Payment, error) {
	_ = ctx

	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.payments[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return p.Clone(), nil
}

func (r *PaymentRepository) FindByTransactionID(ctx context.Context, transactionID string) (*domain.Payment, error) {
	_ = ctx
	if transactionID == "" {
		return nil, domain.ErrNotFound
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, p := range r.payments {
		if p.TransactionID == transactionID {
			return p.Clone(), nil
		}
	}
	return nil, domain.ErrNotFound
}

func (r *PaymentRepository) LatestByOrderNumber(ctx context.Context, orderNumber string) (*domain.Payment, error) {
	_ = ctx

	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := r.byOrder[orderNumber]
	if len(ids) == 0 {
		return nil, domain.ErrNotFound
	}
	return r.payments[ids[len(ids)-1]].Clone(), nil
}

func (r *PaymentRepository) SettledByOrderNumber(ctx context.Context, orderNumber string) (*domain.Payment, error) {
	_ = ctx

	r.mu.RLock()
	defer r.mu.RUnlock()

	if p := r.settledLocked(orderNumber); p != nil {
		return p.Clone(), nil
	}
	return nil, domain.ErrNotFound
}

func (r *PaymentRepository) settledLocked(orderNumber string) *domain.Payment {
	for _, id := range r.byOrder[orderNumber] {
		p := r.payments[id]
		if p.Status == domain.StatusCompleted || p.Status == domain.StatusPartiallyRefunded {
			return p
		}
	}
	return nil
}

func (r *PaymentRepository) UpdateIfStatus(ctx context.Context, p *domain.Payment, expected domain.Status) error {
	_ = ctx
	if p == nil || p.ID == "" {
		return fmt.Errorf("payment repository: id is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	existing, ok := r.payments[p.ID]
	if !ok {
		return domain.ErrNotFound
	}
	if existing.Status != expected {
		return domain.ErrConflict
	}
	r.payments[p.ID] = p.Clone()
	return nil
}

func (r *PaymentRepository) CountByUserSince(ctx context.Context, userID string, since time.Time) (int, error) {
	_ = ctx

	r.mu.RLock()
	defer r.mu.RUnlock()

	n := 0
	for _, p := range r.payments {
		if p.UserID == userID && !p.CreatedAt.Before(since) {
			n++
		}
	}
	return n, nil
}

func (r *PaymentRepository) CountByUserAndStatus(ctx context.Context, userID string, status domain.Status) (int, error) {
	_ = ctx

	r.mu.RLock()
	defer r.mu.RUnlock()

	n := 0
	for _, p := range r.payments {
		if p.UserID == userID && p.Status == status {
			n++
		}
	}
	return n, nil
}

// Package payment processes payment attempts for every supported method.
package payment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Zhima-Mochi/minishop-fulfillment/internal/application"
	"github.com/Zhima-Mochi/minishop-fulfillment/internal/domain/fault"
	dompay "github.com/Zhima-Mochi/minishop-fulfillment/internal/domain/payment"
	domoutbox "github.com/Zhima-Mochi/minishop-fulfillment/internal/domain/outbox"
	"github.com/Zhima-Mochi/minishop-fulfillment/internal/observability"
	"github.com/Zhima-Mochi/minishop-fulfillment/internal/observability/logctx"
)

const paymentService = "payment-service"

var ErrRepository = errors.New("payment: repository failure")

type Deps struct {
	Repo      dompay.Repository
	IDs       application.IDGenerator
	Card      CardProvider
	Gateway   RedirectGateway
	Bank      BankAccount
	Publisher domoutbox.Publisher
	Clock     application.Clock
}

// Service is the payment method adapter. It owns payment attempts and never touches orders.
type Service struct {
	repo      dompay.Repository
	ids       application.IDGenerator
	card      CardProvider
	gateway   RedirectGateway
	bank      BankAccount
	publisher domoutbox.Publisher
	now       application.Clock
	in        application.Instruments
}

func NewService(d Deps, tel observability.Observability) *Service {
	now := d.Clock
	if now == nil {
		now = time.Now
	}
	return &Service{
		repo:      d.Repo,
		ids:       d.IDs,
		card:      d.Card,
		gateway:   d.Gateway,
		bank:      d.Bank,
		publisher: d.Publisher,
		now:       now,
		in:        application.NewInstruments(tel, paymentService),
	}
}

// assessRisk scores p from the payer's recent history. Lookup failures leave the score at zero.
func (s *Service) assessRisk(ctx context.Context, p *dompay.Payment) {
	logger := logctx.FromOr(ctx, s.in.Logger())
	recent, err := s.repo.CountByUserSince(ctx, p.UserID, s.now().Add(-24*time.Hour))
	if err != nil {
		logger.Warn("fraud_history_lookup_failed", observability.F("error", err.Error()))
		return
	}
	failed, err := s.repo.CountByUserAndStatus(ctx, p.UserID, dompay.StatusFailed)
	if err != nil {
		logger.Warn("fraud_history_lookup_failed", observability.F("error", err.Error()))
		return
	}
	p.RiskScore, p.RiskLevel = dompay.Assess(p.Amount, dompay.History{PaymentsLast24h: recent, FailedPayments: failed})
	if p.RiskLevel == dompay.RiskHigh || p.RiskLevel == dompay.RiskCritical {
		logger.Warn("payment_high_risk",
			observability.F("payment_id", p.ID),
			observability.F("risk_score", p.RiskScore),
			observability.F("risk_level", string(p.RiskLevel)),
		)
	}
}

// save persists a transition made on p, guarded by the status it had when loaded.
func (s *Service) save(ctx context.Context, p *dompay.Payment, expected dompay.Status) error {
	if err := s.repo.UpdateIfStatus(ctx, p, expected); err != nil {
		return wrapRepositoryError(err)
	}
	return nil
}

func (s *Service) publishOutcome(ctx context.Context, p *dompay.Payment) {
	switch p.Status {
	case dompay.StatusCompleted:
		_ = s.in.Publish(ctx, s.publisher, dompay.NewSucceededEvent(p))
	case dompay.StatusFailed:
		_ = s.in.Publish(ctx, s.publisher, dompay.NewFailedEvent(p))
	}
}

func wrapRepositoryError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, dompay.ErrNotFound), errors.Is(err, dompay.ErrConflict):
		return err
	default:
		return fmt.Errorf("%w: %w", ErrRepository, err)
	}
}

func rejection(err error) error {
	if errors.Is(err, fault.ErrBusinessRejection) || errors.Is(err, fault.ErrCollaboratorUnavailable) || errors.Is(err, fault.ErrValidation) {
		return err
	}
	return fmt.Errorf("%w: %w", fault.ErrBusinessRejection, err)
}

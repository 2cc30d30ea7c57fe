package payment

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"

	"github.com/Zhima-Mochi/minishop-fulfillment/internal/domain/fault"
	domorder "github.com/Zhima-Mochi/minishop-fulfillment/internal/domain/order"
	dompay "github.com/Zhima-Mochi/minishop-fulfillment/internal/domain/payment"
	"github.com/Zhima-Mochi/minishop-fulfillment/internal/observability"
)

const useCaseProcess = "payment.process"

// Request starts a payment attempt for a priced order.
type Request struct {
	Order     *domorder.Order
	ClientIP  string
	ReturnURL string
}

type RedirectPayload struct {
	URL    string
	TxnRef string
}

type CardPayload struct {
	IntentID     string
	ClientSecret string
}

type BankTransferPayload struct {
	BankName        string
	AccountNumber   string
	AccountHolder   string
	Amount          decimal.Decimal
	TransferContent string
	QRData          string
}

// Result is the normalized outcome of Process. Exactly one payload is set for the methods that have one.
type Result struct {
	Success       bool
	PaymentID     string
	Method        dompay.Method
	Status        dompay.Status
	TransactionID string
	Redirect      *RedirectPayload
	Card          *CardPayload
	Bank          *BankTransferPayload
	FailureReason string
}

// Process creates a payment attempt with the order's method.
// Cash on delivery settles synchronously; the other methods wait for an external event.
func (s *Service) Process(ctx context.Context, req Request) (_ *Result, err error) {
	o := req.Order
	if o == nil {
		return nil, fault.Validation("order is required")
	}
	ctx, run := s.in.Start(ctx, useCaseProcess, "ProcessPayment",
		attribute.String("order.number", o.OrderNumber),
		attribute.String("payment.method", string(o.PaymentMethod)),
	)
	run.With(
		observability.F("order_number", o.OrderNumber),
		observability.F("payment_method", string(o.PaymentMethod)),
	)
	defer func() { run.Finish(err) }()

	now := s.now()
	p := dompay.New(s.ids.NewID(), o, now)
	res := &Result{PaymentID: p.ID, Method: p.Method}

	var payErr error
	switch o.PaymentMethod {
	case domorder.MethodCashOnDelivery:
		s.assessRisk(ctx, p)
		payErr = p.Complete("COD_"+o.OrderNumber, now)
	case domorder.MethodCard:
		payErr = s.startCard(ctx, p, res)
	case domorder.MethodRedirectGateway:
		payErr = s.startRedirect(ctx, p, req, res)
	case domorder.MethodBankTransfer:
		s.startBankTransfer(p, res)
	default:
		payErr = fault.Validationf("unsupported payment method %q", o.PaymentMethod)
	}

	if payErr != nil {
		run.Fail("PAYMENT_CREATION_FAILED")
		res.FailureReason = payErr.Error()
		if failErr := p.Fail(res.FailureReason, now); failErr == nil {
			if insErr := s.repo.Insert(ctx, p); insErr != nil {
				run.Logger.Warn("failed_attempt_not_recorded", observability.F("error", insErr.Error()))
			}
			s.publishOutcome(ctx, p)
		}
		res.Status = p.Status
		return res, rejection(payErr)
	}

	if err := s.repo.Insert(ctx, p); err != nil {
		run.Fail("REPO_INSERT_FAILED")
		return nil, wrapRepositoryError(err)
	}
	s.publishOutcome(ctx, p)

	res.Success = true
	res.Status = p.Status
	res.TransactionID = p.TransactionID
	run.Span().SetAttributes(attribute.String("payment.status", string(p.Status)))
	return res, nil
}

func (s *Service) startCard(ctx context.Context, p *dompay.Payment, res *Result) error {
	if s.card == nil {
		return fault.Rejected("card_provider", "card payments are not configured")
	}
	intent, err := s.card.CreateIntent(ctx, dompay.IntentRequest{
		OrderNumber: p.OrderNumber,
		AmountMinor: dompay.MinorUnits(p.Amount),
		Currency:    p.Currency,
	})
	if err != nil {
		return err
	}
	if err := p.Processing(intent.ID, s.now()); err != nil {
		return err
	}
	res.Card = &CardPayload{IntentID: intent.ID, ClientSecret: intent.ClientSecret}
	return nil
}

func (s *Service) startRedirect(ctx context.Context, p *dompay.Payment, req Request, res *Result) error {
	if s.gateway == nil {
		return fault.Rejected("gateway", "redirect gateway is not configured")
	}
	r, err := s.gateway.CreateRedirect(ctx, dompay.RedirectRequest{
		OrderNumber: p.OrderNumber,
		Amount:      p.Amount,
		ClientIP:    req.ClientIP,
		ReturnURL:   req.ReturnURL,
		CreatedAt:   s.now(),
	})
	if err != nil {
		return err
	}
	if err := p.Processing(r.TxnRef, s.now()); err != nil {
		return err
	}
	res.Redirect = &RedirectPayload{URL: r.URL, TxnRef: r.TxnRef}
	return nil
}

func (s *Service) startBankTransfer(p *dompay.Payment, res *Result) {
	p.TransactionID = fmt.Sprintf("BT%d", s.now().UnixMilli())
	content := "Thanh toan don hang " + p.OrderNumber
	res.Bank = &BankTransferPayload{
		BankName:        s.bank.BankName,
		AccountNumber:   s.bank.AccountNumber,
		AccountHolder:   s.bank.AccountHolder,
		Amount:          p.Amount,
		TransferContent: content,
		QRData:          fmt.Sprintf("Bank:%s|Account:%s|Amount:%s|Content:%s", s.bank.BankName, s.bank.AccountNumber, p.Amount.String(), content),
	}
}

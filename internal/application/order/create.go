package order

import (
	"context"
	"errors"
	"strings"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"

	"github.com/Zhima-Mochi/minishop-fulfillment/internal/application"
	apppay "github.com/Zhima-Mochi/minishop-fulfillment/internal/application/payment"
	"github.com/Zhima-Mochi/minishop-fulfillment/internal/domain/deadletter"
	"github.com/Zhima-Mochi/minishop-fulfillment/internal/domain/fault"
	domorder "github.com/Zhima-Mochi/minishop-fulfillment/internal/domain/order"
	"github.com/Zhima-Mochi/minishop-fulfillment/internal/domain/voucher"
	"github.com/Zhima-Mochi/minishop-fulfillment/internal/observability"
	"github.com/Zhima-Mochi/minishop-fulfillment/internal/observability/logctx"
)

const useCaseOrderCreate = "order.create"

type ItemInput struct {
	ProductID string
	Quantity  int
	UnitPrice decimal.Decimal
}

type CreateOrderInput struct {
	// OrderNumber doubles as the idempotency key. A new number is generated when empty.
	OrderNumber   string
	UserID        string
	Items         []ItemInput
	PaymentMethod string
	VoucherCode   string
	Currency      string
	Tax           decimal.Decimal
	ShippingFee   decimal.Decimal
	ClientIP      string
	ReturnURL     string
}

type CreateOrderResult struct {
	Order *domorder.Order
	// Payment is nil when the result replays an order created earlier.
	Payment  *apppay.Result
	Replayed bool
}

func (in CreateOrderInput) draft() (domorder.Draft, error) {
	if strings.TrimSpace(in.UserID) == "" {
		return domorder.Draft{}, fault.Validation("userId is required")
	}
	if len(in.Items) == 0 {
		return domorder.Draft{}, fault.Validation("at least one item is required")
	}
	items := make([]domorder.Item, 0, len(in.Items))
	for i, it := range in.Items {
		switch {
		case strings.TrimSpace(it.ProductID) == "":
			return domorder.Draft{}, fault.Validationf("items[%d]: productId is required", i)
		case it.Quantity <= 0:
			return domorder.Draft{}, fault.Validationf("items[%d]: quantity must be greater than zero", i)
		case it.UnitPrice.IsNegative():
			return domorder.Draft{}, fault.Validationf("items[%d]: unitPrice must not be negative", i)
		}
		items = append(items, domorder.Item{ProductID: it.ProductID, Quantity: it.Quantity, UnitPrice: it.UnitPrice})
	}
	method, err := domorder.ParsePaymentMethod(in.PaymentMethod)
	if err != nil {
		return domorder.Draft{}, fault.Validation(err.Error())
	}
	if in.Tax.IsNegative() || in.ShippingFee.IsNegative() {
		return domorder.Draft{}, fault.Validation("tax and shippingFee must not be negative")
	}
	return domorder.Draft{
		OrderNumber:   strings.TrimSpace(in.OrderNumber),
		UserID:        in.UserID,
		PaymentMethod: method,
		Currency:      in.Currency,
		Items:         items,
		Tax:           in.Tax,
		ShippingFee:   in.ShippingFee,
	}, nil
}

// CreateOrderUseCase runs the create-order saga.
type CreateOrderUseCase struct {
	svc *Service
}

var _ application.UseCase[CreateOrderInput, *CreateOrderResult] = (*CreateOrderUseCase)(nil)

func NewCreateOrderUseCase(svc *Service) *CreateOrderUseCase {
	return &CreateOrderUseCase{svc: svc}
}

func (uc *CreateOrderUseCase) Execute(ctx context.Context, cmd CreateOrderInput) (*CreateOrderResult, error) {
	return uc.svc.CreateOrder(ctx, cmd)
}

// CreateOrder validates cmd, then runs voucher, reserve, payment and persist in order,
// unwinding the completed steps in reverse when one fails.
func (s *Service) CreateOrder(ctx context.Context, cmd CreateOrderInput) (_ *CreateOrderResult, err error) {
	ctx, run := s.in.Start(ctx, useCaseOrderCreate, "CreateOrder",
		attribute.String("order.user_id", cmd.UserID),
		attribute.String("order.payment_method", cmd.PaymentMethod),
		attribute.Int("order.item_count", len(cmd.Items)),
	)
	run.With(observability.F("user_id", cmd.UserID))
	defer func() { run.Finish(err) }()

	draft, err := cmd.draft()
	if err != nil {
		run.Fail("VALIDATION_FAILED")
		return nil, err
	}

	if draft.OrderNumber == "" {
		draft.OrderNumber = domorder.NewOrderNumber(s.now())
		return s.runSaga(ctx, run, draft, cmd)
	}

	run.With(observability.F("order_number", draft.OrderNumber))
	if existing, ok := s.existing(ctx, draft.OrderNumber); ok {
		run.Replay("IDEMPOTENT_REPLAY", "order.idempotent_replay", attribute.String("order.number", existing.OrderNumber))
		return &CreateOrderResult{Order: existing, Replayed: true}, nil
	}

	leader := false
	v, err, _ := s.creates.Do(draft.OrderNumber, func() (any, error) {
		leader = true
		return s.runSaga(ctx, run, draft, cmd)
	})
	if err != nil {
		return nil, err
	}
	res := v.(*CreateOrderResult)
	if !leader {
		run.Replay("IDEMPOTENT_REPLAY", "order.concurrent_create_collapsed")
		cp := *res
		cp.Order = res.Order.Clone()
		return &cp, nil
	}
	return res, nil
}

func (s *Service) existing(ctx context.Context, orderNumber string) (*domorder.Order, bool) {
	o, err := s.repo.FindByNumber(ctx, orderNumber)
	if err != nil {
		if !errors.Is(err, domorder.ErrNotFound) {
			logctx.FromOr(ctx, s.in.Logger()).Warn("idempotency_lookup_failed",
				observability.F("order_number", orderNumber),
				observability.F("error", err.Error()),
			)
		}
		return nil, false
	}
	return o, true
}

// step is one forward action of the saga with the action that undoes it.
type step struct {
	name       string
	action     func(ctx context.Context) error
	compensate func(ctx context.Context)
	// compensateOnFailure also runs compensate when action itself fails. The action may have
	// taken effect remotely before reporting the error, so its undo must be idempotent.
	compensateOnFailure bool
}

func (s *Service) runSaga(ctx context.Context, run *application.Run, draft domorder.Draft, cmd CreateOrderInput) (*CreateOrderResult, error) {
	now := s.now()
	o, err := domorder.New(s.ids.NewID(), draft, now)
	if err != nil {
		run.Fail("VALIDATION_FAILED")
		return nil, fault.Validation(err.Error())
	}
	run.Span().SetAttributes(
		attribute.String("order.id", o.ID),
		attribute.String("order.number", o.OrderNumber),
	)
	run.With(observability.F("order_id", o.ID), observability.F("order_number", o.OrderNumber))

	var payment *apppay.Result
	steps := make([]step, 0, 4)
	if code := strings.TrimSpace(cmd.VoucherCode); code != "" {
		steps = append(steps, step{
			name:   "voucher",
			action: func(ctx context.Context) error { return s.redeemVoucher(ctx, o, code) },
			compensate: func(ctx context.Context) {
				s.escalate(ctx, "voucher.usage_uncompensated", o, domorder.StatusCancelled,
					errors.New("voucher usage recorded for an order that was not created"), 1, deadletter.PriorityHigh)
			},
		})
	}
	steps = append(steps,
		step{
			name:                "reserve",
			action:              func(ctx context.Context) error { return s.inventory.Reserve(ctx, o.ID, lines(o.Items)) },
			compensate:          func(ctx context.Context) { s.releaseInventory(ctx, o.ID, o.Items) },
			compensateOnFailure: true,
		},
		step{
			name: "payment",
			action: func(ctx context.Context) error {
				res, err := s.payments.Process(ctx, apppay.Request{Order: o, ClientIP: cmd.ClientIP, ReturnURL: cmd.ReturnURL})
				if res != nil {
					payment = res
				}
				if err != nil {
					return err
				}
				return s.applyPayment(o, res)
			},
			compensate: func(ctx context.Context) {
				if payment == nil {
					return
				}
				if err := s.payments.VoidAttempt(ctx, payment.PaymentID, "order creation aborted"); err != nil {
					run.Logger.Warn("payment_void_failed", observability.F("payment_id", payment.PaymentID), observability.F("error", err.Error()))
				}
			},
		},
		step{
			name:   "persist",
			action: func(ctx context.Context) error { return wrapRepositoryError(s.repo.Insert(ctx, o)) },
		},
	)

	if err := s.runSteps(ctx, run, steps); err != nil {
		if errors.Is(err, domorder.ErrConflict) {
			if winner, ok := s.existing(ctx, o.OrderNumber); ok {
				run.Replay("IDEMPOTENT_REPLAY", "order.insert_conflict", attribute.String("order.number", winner.OrderNumber))
				return &CreateOrderResult{Order: winner, Replayed: true}, nil
			}
		}
		return nil, err
	}

	if o.PaymentStatus == domorder.PaymentCompleted {
		s.confirmInventory(ctx, o)
	}
	_ = s.in.Publish(ctx, s.publisher, domorder.NewCreatedEvent(o))

	run.Span().SetAttributes(
		attribute.String("order.status", string(o.Status)),
		attribute.String("order.payment_status", string(o.PaymentStatus)),
	)
	return &CreateOrderResult{Order: o.Clone(), Payment: payment}, nil
}

// runSteps executes steps in order. When step k fails, the compensations of steps k-1..1 run in reverse,
// preceded by step k's own when it is marked compensateOnFailure.
func (s *Service) runSteps(ctx context.Context, run *application.Run, steps []step) error {
	for i, st := range steps {
		err := st.action(ctx)
		if err == nil {
			continue
		}
		run.Fail("SAGA_" + strings.ToUpper(st.name) + "_FAILED")
		run.Logger.Warn("saga_step_failed",
			observability.F("step", st.name),
			observability.F("error", err.Error()),
		)
		undo := context.WithoutCancel(ctx)
		from := i - 1
		if st.compensateOnFailure {
			from = i
		}
		for j := from; j >= 0; j-- {
			if steps[j].compensate == nil {
				continue
			}
			run.Logger.Info("saga_compensating", observability.F("step", steps[j].name))
			steps[j].compensate(undo)
		}
		return err
	}
	return nil
}

func (s *Service) redeemVoucher(ctx context.Context, o *domorder.Order, code string) error {
	if s.vouchers == nil {
		return fault.Rejected("voucher", "vouchers are not accepted")
	}
	items := make([]voucher.Item, 0, len(o.Items))
	for _, it := range o.Items {
		items = append(items, voucher.Item{ProductID: it.ProductID, Quantity: it.Quantity, Price: it.UnitPrice})
	}
	q, err := s.vouchers.Validate(ctx, voucher.Check{
		Code:        code,
		UserID:      o.UserID,
		OrderAmount: o.Subtotal,
		Items:       items,
	})
	if err != nil {
		return err
	}
	if !q.Valid {
		return fault.Rejected("voucher", q.Message)
	}
	if q.FreeShipping {
		o.ShippingFee = decimal.Zero
	}
	if q.Code == "" {
		q.Code = code
	}
	if err := o.ApplyDiscount(q.VoucherID, q.Code, q.DiscountAmount); err != nil {
		return fault.Validation(err.Error())
	}
	return s.vouchers.RecordUsage(ctx, voucher.Usage{
		VoucherID:      q.VoucherID,
		Code:           q.Code,
		UserID:         o.UserID,
		OrderID:        o.ID,
		OrderNumber:    o.OrderNumber,
		OriginalAmount: o.GrossAmount(),
		DiscountAmount: o.DiscountAmount,
		FinalAmount:    o.TotalAmount,
	})
}

// applyPayment mirrors the attempt's status onto the order.
func (s *Service) applyPayment(o *domorder.Order, res *apppay.Result) error {
	now := s.now()
	o.PaymentReference = res.TransactionID
	switch res.Status {
	case domorder.PaymentCompleted:
		return o.SetPaymentStatus(domorder.PaymentCompleted, now)
	case domorder.PaymentProcessing:
		return o.AwaitPayment(now)
	}
	return nil
}

func (s *Service) confirmInventory(ctx context.Context, o *domorder.Order) {
	out, err := s.inventory.Confirm(ctx, o.ID, lines(o.Items))
	logger := logctx.FromOr(ctx, s.in.Logger())
	switch {
	case err != nil:
		logger.Warn("inventory_confirm_failed", observability.F("order_number", o.OrderNumber), observability.F("error", err.Error()))
	case out.Queued:
		logger.Info("inventory_confirm_queued", observability.F("order_number", o.OrderNumber))
	}
}

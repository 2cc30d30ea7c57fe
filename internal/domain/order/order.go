package order

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var (
	ErrNotFound        = errors.New("order: not found")
	ErrConflict        = errors.New("order: already exists")
	ErrInvalidQuantity = errors.New("order: quantity must be greater than zero")
	ErrInvalidAmount   = errors.New("order: amount must be zero or greater")
	ErrNoItems         = errors.New("order: at least one item is required")
)

type Status string

const (
	StatusPending    Status = "PENDING"
	StatusProcessing Status = "PROCESSING"
	StatusConfirmed  Status = "CONFIRMED"
	StatusShipped    Status = "SHIPPED"
	StatusDelivered  Status = "DELIVERED"
	StatusCompleted  Status = "COMPLETED"
	StatusCancelled  Status = "CANCELLED"
	StatusFailed     Status = "FAILED"
	StatusRefunded   Status = "REFUNDED"
)

// PaymentStatus mirrors the status of the order's current payment attempt.
type PaymentStatus string

const (
	PaymentPending           PaymentStatus = "PENDING"
	PaymentProcessing        PaymentStatus = "PROCESSING"
	PaymentCompleted         PaymentStatus = "COMPLETED"
	PaymentFailed            PaymentStatus = "FAILED"
	PaymentRefunded          PaymentStatus = "REFUNDED"
	PaymentPartiallyRefunded PaymentStatus = "PARTIALLY_REFUNDED"
	PaymentCancelled         PaymentStatus = "CANCELLED"
)

type PaymentMethod string

const (
	MethodCashOnDelivery  PaymentMethod = "CASH_ON_DELIVERY"
	MethodRedirectGateway PaymentMethod = "REDIRECT_GATEWAY"
	MethodCard            PaymentMethod = "CARD"
	MethodBankTransfer    PaymentMethod = "BANK_TRANSFER"
)

// ParsePaymentMethod accepts the canonical names plus the legacy aliases COD and VNPAY.
func ParsePaymentMethod(s string) (PaymentMethod, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case string(MethodCashOnDelivery), "COD":
		return MethodCashOnDelivery, nil
	case string(MethodRedirectGateway), "VNPAY":
		return MethodRedirectGateway, nil
	case string(MethodCard):
		return MethodCard, nil
	case string(MethodBankTransfer):
		return MethodBankTransfer, nil
	default:
		return "", fmt.Errorf("order: unknown payment method %q", s)
	}
}

type Item struct {
	ProductID string
	Quantity  int
	UnitPrice decimal.Decimal
}

// LineTotal is UnitPrice × Quantity.
func (i Item) LineTotal() decimal.Decimal {
	return i.UnitPrice.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

type Order struct {
	ID                 string
	OrderNumber        string
	UserID             string
	Status             Status
	PaymentStatus      PaymentStatus
	PaymentMethod      PaymentMethod
	Currency           string
	Items              []Item
	Subtotal           decimal.Decimal
	Tax                decimal.Decimal
	ShippingFee        decimal.Decimal
	DiscountAmount     decimal.Decimal
	TotalAmount        decimal.Decimal
	VoucherID          string
	VoucherCode        string
	PaymentReference   string
	CancellationReason string
	CreatedAt          time.Time
	UpdatedAt          time.Time
	CancelledAt        *time.Time
	PaidAt             *time.Time
}

// Draft carries the caller-supplied fields of a new order.
type Draft struct {
	OrderNumber   string
	UserID        string
	PaymentMethod PaymentMethod
	Currency      string
	Items         []Item
	Tax           decimal.Decimal
	ShippingFee   decimal.Decimal
}

// New builds a PENDING order from d. Discount is applied later through ApplyDiscount.
func New(id string, d Draft, now time.Time) (*Order, error) {
	if len(d.Items) == 0 {
		return nil, ErrNoItems
	}
	for _, it := range d.Items {
		if it.Quantity <= 0 {
			return nil, ErrInvalidQuantity
		}
		if it.UnitPrice.IsNegative() {
			return nil, ErrInvalidAmount
		}
	}
	if d.Tax.IsNegative() || d.ShippingFee.IsNegative() {
		return nil, ErrInvalidAmount
	}
	number := d.OrderNumber
	if number == "" {
		number = NewOrderNumber(now)
	}
	currency := d.Currency
	if currency == "" {
		currency = "VND"
	}

	o := &Order{
		ID:            id,
		OrderNumber:   number,
		UserID:        d.UserID,
		Status:        StatusPending,
		PaymentStatus: PaymentPending,
		PaymentMethod: d.PaymentMethod,
		Currency:      currency,
		Items:         append([]Item(nil), d.Items...),
		Tax:           d.Tax,
		ShippingFee:   d.ShippingFee,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	o.Recalculate()
	return o, nil
}

// NewOrderNumber returns ORD-<unix millis>-<8 hex chars>.
func NewOrderNumber(now time.Time) string {
	return fmt.Sprintf("ORD-%d-%s", now.UnixMilli(), strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
}

// GrossAmount is subtotal plus tax and shipping, before any discount.
func (o *Order) GrossAmount() decimal.Decimal {
	return o.Subtotal.Add(o.Tax).Add(o.ShippingFee)
}

// Recalculate derives Subtotal and TotalAmount from the line items, tax, shipping and discount.
func (o *Order) Recalculate() {
	subtotal := decimal.Zero
	for _, it := range o.Items {
		subtotal = subtotal.Add(it.LineTotal())
	}
	o.Subtotal = subtotal
	if o.DiscountAmount.GreaterThan(o.GrossAmount()) {
		o.DiscountAmount = o.GrossAmount()
	}
	o.TotalAmount = o.GrossAmount().Sub(o.DiscountAmount)
}

// ApplyDiscount records a voucher discount priced by the voucher collaborator.
func (o *Order) ApplyDiscount(voucherID, code string, discount decimal.Decimal) error {
	if discount.IsNegative() {
		return ErrInvalidAmount
	}
	o.VoucherID = voucherID
	o.VoucherCode = code
	o.DiscountAmount = discount
	o.Recalculate()
	return nil
}

// Settled reports whether money has moved for this order.
func (o *Order) Settled() bool {
	switch o.PaymentStatus {
	case PaymentCompleted, PaymentRefunded, PaymentPartiallyRefunded:
		return true
	}
	return false
}

// Clone returns a deep copy safe to hand across repository boundaries.
func (o *Order) Clone() *Order {
	if o == nil {
		return nil
	}
	cp := *o
	cp.Items = append([]Item(nil), o.Items...)
	if o.CancelledAt != nil {
		t := *o.CancelledAt
		cp.CancelledAt = &t
	}
	if o.PaidAt != nil {
		t := *o.PaidAt
		cp.PaidAt = &t
	}
	return &cp
}

func (o *Order) touch(now time.Time) {
	o.UpdatedAt = now
}

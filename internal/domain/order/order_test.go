package order

import (
	"regexp"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

func draft() Draft {
	return Draft{
		OrderNumber:   "ORD-1699999999999-abcd1234",
		UserID:        "user-1",
		PaymentMethod: MethodCashOnDelivery,
		Items: []Item{
			{ProductID: "P1", Quantity: 2, UnitPrice: decimal.NewFromInt(500_000)},
			{ProductID: "P2", Quantity: 1, UnitPrice: decimal.NewFromInt(250_000)},
		},
		Tax:         decimal.NewFromInt(100_000),
		ShippingFee: decimal.NewFromInt(30_000),
	}
}

func TestNewComputesTotals(t *testing.T) {
	o, err := New("id-1", draft(), fixedNow)
	require.NoError(t, err)

	assert.Equal(t, StatusPending, o.Status)
	assert.Equal(t, PaymentPending, o.PaymentStatus)
	assert.Equal(t, "VND", o.Currency)
	assert.True(t, o.Subtotal.Equal(decimal.NewFromInt(1_250_000)))
	assert.True(t, o.TotalAmount.Equal(decimal.NewFromInt(1_380_000)))

	require.NoError(t, o.ApplyDiscount("v-1", "SAVE10", decimal.NewFromInt(80_000)))
	assert.True(t, o.TotalAmount.Equal(decimal.NewFromInt(1_300_000)))
	assert.True(t, o.TotalAmount.Equal(o.Subtotal.Add(o.Tax).Add(o.ShippingFee).Sub(o.DiscountAmount)))
}

func TestDiscountNeverDrivesTotalNegative(t *testing.T) {
	o, err := New("id-1", draft(), fixedNow)
	require.NoError(t, err)
	require.NoError(t, o.ApplyDiscount("v-1", "ALL", decimal.NewFromInt(99_000_000)))
	assert.True(t, o.TotalAmount.IsZero())
}

func TestNewRejectsInvalidDrafts(t *testing.T) {
	d := draft()
	d.Items = nil
	_, err := New("id", d, fixedNow)
	assert.ErrorIs(t, err, ErrNoItems)

	d = draft()
	d.Items[0].Quantity = 0
	_, err = New("id", d, fixedNow)
	assert.ErrorIs(t, err, ErrInvalidQuantity)

	d = draft()
	d.Tax = decimal.NewFromInt(-1)
	_, err = New("id", d, fixedNow)
	assert.ErrorIs(t, err, ErrInvalidAmount)
}

func TestNewOrderNumberFormat(t *testing.T) {
	n := NewOrderNumber(fixedNow)
	assert.Regexp(t, regexp.MustCompile(`^ORD-\d{13}-[0-9a-f]{8}$`), n)
}

func TestParsePaymentMethodAliases(t *testing.T) {
	m, err := ParsePaymentMethod("cod")
	require.NoError(t, err)
	assert.Equal(t, MethodCashOnDelivery, m)

	m, err = ParsePaymentMethod("VNPAY")
	require.NoError(t, err)
	assert.Equal(t, MethodRedirectGateway, m)

	_, err = ParsePaymentMethod("crypto")
	assert.Error(t, err)
}

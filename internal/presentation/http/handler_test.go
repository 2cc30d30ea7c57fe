package httppresentation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apporder "github.com/Zhima-Mochi/minishop-fulfillment/internal/application/order"
	apppay "github.com/Zhima-Mochi/minishop-fulfillment/internal/application/payment"
	"github.com/Zhima-Mochi/minishop-fulfillment/internal/domain/fault"
	domorder "github.com/Zhima-Mochi/minishop-fulfillment/internal/domain/order"
	dompay "github.com/Zhima-Mochi/minishop-fulfillment/internal/domain/payment"
)

type fakeOrders struct {
	order    *domorder.Order
	err      error
	rec      *apporder.Reconciliation
	lastCall string
	lastArgs []string
}

func (f *fakeOrders) record(call string, args ...string) {
	f.lastCall = call
	f.lastArgs = args
}

func (f *fakeOrders) GetOrder(_ context.Context, n string) (*domorder.Order, error) {
	f.record("get", n)
	return f.order, f.err
}

func (f *fakeOrders) Cancel(_ context.Context, n, reason string) (*domorder.Order, error) {
	f.record("cancel", n, reason)
	return f.order, f.err
}

func (f *fakeOrders) Delete(_ context.Context, n string) error {
	f.record("delete", n)
	return f.err
}

func (f *fakeOrders) UpdateStatus(_ context.Context, n, status, reason string) (*domorder.Order, error) {
	f.record("status", n, status, reason)
	return f.order, f.err
}

func (f *fakeOrders) ConfirmPayment(_ context.Context, n, ref string) (*domorder.Order, error) {
	f.record("confirm", n, ref)
	return f.order, f.err
}

func (f *fakeOrders) HandleGatewayCallback(_ context.Context, params map[string]string) (*apporder.Reconciliation, error) {
	f.record("callback", params["vnp_TxnRef"])
	return f.rec, f.err
}

func (f *fakeOrders) ConfirmBankTransfer(_ context.Context, n, txn string) (*apporder.Reconciliation, error) {
	f.record("bank", n, txn)
	return f.rec, f.err
}

func (f *fakeOrders) ConfirmCard(_ context.Context, intentID string) (*apporder.Reconciliation, error) {
	f.record("card", intentID)
	return f.rec, f.err
}

type fakeCreate struct {
	calls  int
	last   apporder.CreateOrderInput
	result *apporder.CreateOrderResult
	err    error
}

func (f *fakeCreate) Execute(_ context.Context, in apporder.CreateOrderInput) (*apporder.CreateOrderResult, error) {
	f.calls++
	f.last = in
	return f.result, f.err
}

type fakeRefunds struct {
	last apppay.RefundRequest
	res  *apppay.RefundResult
	err  error
}

func (f *fakeRefunds) Refund(_ context.Context, req apppay.RefundRequest) (*apppay.RefundResult, error) {
	f.last = req
	return f.res, f.err
}

func sampleOrder() *domorder.Order {
	return &domorder.Order{
		ID:            "ord-1",
		OrderNumber:   "ORD-1",
		UserID:        "user-1",
		Status:        domorder.StatusProcessing,
		PaymentStatus: domorder.PaymentProcessing,
		PaymentMethod: domorder.MethodRedirectGateway,
		Currency:      "VND",
		Items:         []domorder.Item{{ProductID: "p-1", Quantity: 2, UnitPrice: decimal.NewFromInt(50000)}},
		Subtotal:      decimal.NewFromInt(100000),
		TotalAmount:   decimal.NewFromInt(100000),
	}
}

type fixture struct {
	orders  *fakeOrders
	create  *fakeCreate
	refunds *fakeRefunds
	server  http.Handler
}

func newFixture() *fixture {
	f := &fixture{orders: &fakeOrders{}, create: &fakeCreate{}, refunds: &fakeRefunds{}}
	f.server = NewHandler(Deps{
		Orders:      f.orders,
		CreateOrder: f.create,
		Refunds:     f.refunds,
		Metrics: http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte("# metrics"))
		}),
	}, nil).Router()
	return f
}

func (f *fixture) do(method, target, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	f.server.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, dst any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), dst))
}

const createBody = `{
	"orderNumber": "ORD-1",
	"userId": "user-1",
	"items": [{"productId": "p-1", "quantity": 2, "unitPrice": "50000"}],
	"paymentMethod": "REDIRECT_GATEWAY",
	"shippingFee": 30000,
	"returnUrl": "https://shop.example/return"
}`

func TestCreateOrderReturnsCreated(t *testing.T) {
	f := newFixture()
	f.create.result = &apporder.CreateOrderResult{
		Order: sampleOrder(),
		Payment: &apppay.Result{
			Success:   true,
			PaymentID: "pay-1",
			Method:    dompay.Method(domorder.MethodRedirectGateway),
			Status:    dompay.StatusProcessing,
			Redirect:  &apppay.RedirectPayload{URL: "https://gateway.example/pay?vnp_TxnRef=ORD-1", TxnRef: "ORD-1"},
		},
	}

	rec := f.do(http.MethodPost, "/orders", createBody)

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var body createOrderResponse
	decode(t, rec, &body)
	assert.True(t, body.Success)
	assert.Equal(t, "ORD-1", body.Order.OrderNumber)
	assert.Equal(t, "PROCESSING", body.Order.Status)
	require.NotNil(t, body.Payment)
	assert.Equal(t, "https://gateway.example/pay?vnp_TxnRef=ORD-1", body.Payment.PaymentURL)

	assert.Equal(t, 1, f.create.calls)
	assert.Equal(t, "user-1", f.create.last.UserID)
	assert.True(t, decimal.NewFromInt(30000).Equal(f.create.last.ShippingFee))
	require.Len(t, f.create.last.Items, 1)
	assert.True(t, decimal.NewFromInt(50000).Equal(f.create.last.Items[0].UnitPrice))
	assert.Equal(t, "192.0.2.1", f.create.last.ClientIP)
	assert.NotEmpty(t, rec.Header().Get(headerRequestID))
}

func TestCreateOrderReplayReturnsOK(t *testing.T) {
	f := newFixture()
	f.create.result = &apporder.CreateOrderResult{Order: sampleOrder(), Replayed: true}

	rec := f.do(http.MethodPost, "/orders", createBody)

	require.Equal(t, http.StatusOK, rec.Code)
	var body createOrderResponse
	decode(t, rec, &body)
	assert.True(t, body.Replayed)
	assert.Nil(t, body.Payment)
}

func TestCreateOrderValidation(t *testing.T) {
	cases := map[string]struct {
		body string
		want string
	}{
		"empty body":     {``, "request body is empty"},
		"unknown field":  {`{"userId":"u","bogus":1}`, "malformed request body"},
		"missing user":   {`{"items":[{"productId":"p","quantity":1,"unitPrice":1}],"paymentMethod":"CARD"}`, "userId is required"},
		"no items":       {`{"userId":"u","items":[],"paymentMethod":"CARD"}`, "items must have at least 1 entries"},
		"zero quantity":  {`{"userId":"u","items":[{"productId":"p","quantity":0,"unitPrice":1}],"paymentMethod":"CARD"}`, "items[0].quantity must be greater than 0"},
		"negative price": {`{"userId":"u","items":[{"productId":"p","quantity":1,"unitPrice":-1}],"paymentMethod":"CARD"}`, "items[0].unitPrice must be 0 or greater"},
		"unknown method": {`{"userId":"u","items":[{"productId":"p","quantity":1,"unitPrice":1}],"paymentMethod":"CHEQUE"}`, "paymentMethod must be one of"},
		"bad return url": {`{"userId":"u","items":[{"productId":"p","quantity":1,"unitPrice":1}],"paymentMethod":"CARD","returnUrl":"not a url"}`, "returnUrl must be a valid URL"},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			f := newFixture()
			rec := f.do(http.MethodPost, "/orders", tc.body)

			require.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
			var body errorResponse
			decode(t, rec, &body)
			assert.Equal(t, "validation", body.Kind)
			assert.Contains(t, body.Error, tc.want)
			assert.Zero(t, f.create.calls)
		})
	}
}

func TestErrorMapping(t *testing.T) {
	cases := map[string]struct {
		err  error
		want int
	}{
		"validation":   {fault.Validation("orderNumber is required"), http.StatusBadRequest},
		"not found":    {fmt.Errorf("load: %w", domorder.ErrNotFound), http.StatusNotFound},
		"terminal":     {fmt.Errorf("%w: CANCELLED", domorder.ErrTerminalState), http.StatusConflict},
		"transition":   {fmt.Errorf("%w: PENDING -> SHIPPED", domorder.ErrInvalidStateTransition), http.StatusConflict},
		"rejection":    {fault.Rejected("inventory", "insufficient stock"), http.StatusUnprocessableEntity},
		"unavailable":  {fault.Unavailable("inventory", context.DeadlineExceeded), http.StatusServiceUnavailable},
		"signature":    {fault.ErrSignatureInvalid, http.StatusUnauthorized},
		"critical":     {fmt.Errorf("confirm: %w", fault.ErrCriticalConsistency), http.StatusInternalServerError},
		"unclassified": {errors.New("boom"), http.StatusInternalServerError},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			f := newFixture()
			f.orders.err = tc.err

			rec := f.do(http.MethodGet, "/orders/by-number/ORD-1", "")

			assert.Equal(t, tc.want, rec.Code)
			var body errorResponse
			decode(t, rec, &body)
			assert.Equal(t, fault.Kind(tc.err), body.Kind)
		})
	}
}

func TestOrderRoutes(t *testing.T) {
	f := newFixture()
	f.orders.order = sampleOrder()

	rec := f.do(http.MethodGet, "/orders/by-number/ORD-1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"ORD-1"}, f.orders.lastArgs)

	rec = f.do(http.MethodPost, "/orders/by-number/ORD-1/cancel", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"ORD-1", "cancelled by request"}, f.orders.lastArgs)

	rec = f.do(http.MethodPost, "/orders/by-number/ORD-1/cancel", `{"reason":"changed my mind"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"ORD-1", "changed my mind"}, f.orders.lastArgs)

	rec = f.do(http.MethodPost, "/orders/by-number/ORD-1/status", `{"status":"shipped","reason":"courier picked up"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "status", f.orders.lastCall)
	assert.Equal(t, []string{"ORD-1", "shipped", "courier picked up"}, f.orders.lastArgs)

	rec = f.do(http.MethodPost, "/orders/by-number/ORD-1/status", `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(http.MethodPost, "/orders/by-number/ORD-1/confirm-payment", `{"reference":"COD-1"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"ORD-1", "COD-1"}, f.orders.lastArgs)

	rec = f.do(http.MethodDelete, "/orders/by-number/ORD-1", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "delete", f.orders.lastCall)
}

func TestConfirmBankTransfer(t *testing.T) {
	f := newFixture()
	o := sampleOrder()
	o.Status = domorder.StatusConfirmed
	o.PaymentStatus = domorder.PaymentCompleted
	f.orders.rec = &apporder.Reconciliation{
		Order:      o,
		Settlement: &apppay.Settlement{OrderNumber: "ORD-1", Verified: true, Success: true},
	}

	rec := f.do(http.MethodPost, "/orders/by-number/ORD-1/bank-transfer/confirm", `{"transactionId":"BT-42"}`)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"ORD-1", "BT-42"}, f.orders.lastArgs)
	var body reconciliationResponse
	decode(t, rec, &body)
	assert.True(t, body.Success)
	require.NotNil(t, body.Order)
	assert.Equal(t, "CONFIRMED", body.Order.Status)

	rec = f.do(http.MethodPost, "/orders/by-number/ORD-1/bank-transfer/confirm", `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGatewayIPNAcknowledgement(t *testing.T) {
	cases := map[string]struct {
		rec  *apporder.Reconciliation
		err  error
		want string
	}{
		"confirmed": {
			rec:  &apporder.Reconciliation{Settlement: &apppay.Settlement{Verified: true, Success: true}},
			want: ipnConfirmed,
		},
		"duplicate": {
			rec:  &apporder.Reconciliation{Settlement: &apppay.Settlement{Verified: true, Success: true, Duplicate: true}},
			want: ipnAlreadyConfirmed,
		},
		"forged": {
			rec:  &apporder.Reconciliation{Settlement: &apppay.Settlement{Verified: false, Reason: "invalid signature"}},
			want: ipnInvalidSignature,
		},
		"amount mismatch": {
			rec:  &apporder.Reconciliation{Settlement: &apppay.Settlement{Verified: true, Reason: "amount mismatch: gateway 1, expected 2"}},
			want: ipnInvalidAmount,
		},
		"unknown payment": {
			rec:  &apporder.Reconciliation{Settlement: &apppay.Settlement{Verified: true}},
			err:  dompay.ErrNotFound,
			want: ipnOrderNotFound,
		},
		"collaborator down": {
			rec:  &apporder.Reconciliation{Settlement: &apppay.Settlement{Verified: true, Success: true}},
			err:  fault.Unavailable("inventory", context.DeadlineExceeded),
			want: ipnUnknownError,
		},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			f := newFixture()
			f.orders.rec, f.orders.err = tc.rec, tc.err

			rec := f.do(http.MethodGet, "/payments/gateway/ipn?vnp_TxnRef=ORD-1&vnp_ResponseCode=00", "")

			require.Equal(t, http.StatusOK, rec.Code)
			var body ipnResponse
			decode(t, rec, &body)
			assert.Equal(t, tc.want, body.RspCode)
			assert.Equal(t, []string{"ORD-1"}, f.orders.lastArgs)
		})
	}
}

func TestGatewayReturnAlwaysAnswersOK(t *testing.T) {
	f := newFixture()
	f.orders.rec = &apporder.Reconciliation{Settlement: &apppay.Settlement{Verified: true}}
	f.orders.err = dompay.ErrNotFound

	rec := f.do(http.MethodGet, "/payments/gateway/return?vnp_TxnRef=ORD-404", "")

	require.Equal(t, http.StatusOK, rec.Code)
	var body reconciliationResponse
	decode(t, rec, &body)
	assert.False(t, body.Success)
	assert.Contains(t, body.Error, "not found")
}

func TestConfirmCard(t *testing.T) {
	f := newFixture()
	o := sampleOrder()
	o.PaymentMethod = domorder.MethodCard
	f.orders.rec = &apporder.Reconciliation{
		Order:      o,
		Settlement: &apppay.Settlement{Verified: true, Payment: &dompay.Payment{Status: dompay.StatusProcessing}},
	}

	rec := f.do(http.MethodPost, "/payments/card/pi_123/confirm", "")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"pi_123"}, f.orders.lastArgs)
	var body reconciliationResponse
	decode(t, rec, &body)
	assert.False(t, body.Success)
	assert.Equal(t, "PROCESSING", body.PaymentStatus)
}

func TestRefund(t *testing.T) {
	f := newFixture()
	f.refunds.res = &apppay.RefundResult{
		Payment: &dompay.Payment{
			ID:             "pay-1",
			Status:         dompay.StatusPartiallyRefunded,
			RefundedAmount: decimal.NewFromInt(40000),
		},
		Amount:    decimal.NewFromInt(40000),
		Reference: "RF-1",
	}

	rec := f.do(http.MethodPost, "/payments/pay-1/refund", `{"amount":"40000","reason":"damaged"}`)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "pay-1", f.refunds.last.PaymentID)
	assert.True(t, decimal.NewFromInt(40000).Equal(f.refunds.last.Amount))
	var body refundResponse
	decode(t, rec, &body)
	assert.Equal(t, "PARTIALLY_REFUNDED", body.Status)
	assert.Equal(t, "RF-1", body.Reference)

	f.refunds.err = fmt.Errorf("%w: status PENDING", dompay.ErrNotRefundable)
	rec = f.do(http.MethodPost, "/payments/pay-1/refund", "")
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestOperationalRoutes(t *testing.T) {
	f := newFixture()

	rec := f.do(http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())

	rec = f.do(http.MethodGet, "/ready", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "# metrics", rec.Body.String())

	rec = f.do(http.MethodGet, "/nowhere", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestReadyReportsDependencyFailure(t *testing.T) {
	h := NewHandler(Deps{
		Ready: func(context.Context) error { return errors.New("postgres: connection refused") },
	}, nil).Router()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestRequestIDIsEchoed(t *testing.T) {
	f := newFixture()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set(headerRequestID, "req-123")
	rec := httptest.NewRecorder()

	f.server.ServeHTTP(rec, req)

	assert.Equal(t, "req-123", rec.Header().Get(headerRequestID))
}

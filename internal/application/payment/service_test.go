package payment

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Zhima-Mochi/minishop-fulfillment/internal/domain/fault"
	domorder "github.com/Zhima-Mochi/minishop-fulfillment/internal/domain/order"
	domoutbox "github.com/Zhima-Mochi/minishop-fulfillment/internal/domain/outbox"
	dompay "github.com/Zhima-Mochi/minishop-fulfillment/internal/domain/payment"
	"github.com/Zhima-Mochi/minishop-fulfillment/internal/infrastructure/card"
	"github.com/Zhima-Mochi/minishop-fulfillment/internal/infrastructure/gateway/vnpay"
	"github.com/Zhima-Mochi/minishop-fulfillment/internal/infrastructure/memory"
)

var testNow = time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC)

type seqIDs struct {
	mu sync.Mutex
	n  int
}

func (g *seqIDs) NewID() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return fmt.Sprintf("pay-%d", g.n)
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []domoutbox.Event
}

func (p *recordingPublisher) Publish(_ context.Context, e domoutbox.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return nil
}

func (p *recordingPublisher) names() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.EventName())
	}
	return out
}

type failingCard struct{ err error }

func (f failingCard) CreateIntent(context.Context, dompay.IntentRequest) (dompay.Intent, error) {
	return dompay.Intent{}, f.err
}
func (f failingCard) ConfirmIntent(context.Context, string) (dompay.Intent, error) {
	return dompay.Intent{}, f.err
}
func (f failingCard) Refund(context.Context, string, decimal.Decimal) (dompay.CardRefund, error) {
	return dompay.CardRefund{}, f.err
}

const gatewaySecret = "TESTSECRET"

func gatewayClient() *vnpay.Client {
	return vnpay.NewClient(vnpay.Config{
		MerchantCode: "SHOP01",
		SecretKey:    gatewaySecret,
		ReturnURL:    "http://localhost:8080/payments/gateway/return",
	})
}

type fixture struct {
	svc  *Service
	repo *memory.PaymentRepository
	pub  *recordingPublisher
	card *card.Sandbox
}

func newFixture(t *testing.T, opts ...func(*Deps)) *fixture {
	t.Helper()
	f := &fixture{
		repo: memory.NewPaymentRepository(),
		pub:  &recordingPublisher{},
		card: card.NewSandbox(1),
	}
	d := Deps{
		Repo:      f.repo,
		IDs:       &seqIDs{},
		Card:      f.card,
		Gateway:   vnpay.NewGateway(gatewayClient()),
		Bank:      BankAccount{BankName: "Vietcombank", AccountNumber: "1234567890", AccountHolder: "Shop"},
		Publisher: f.pub,
		Clock:     func() time.Time { return testNow },
	}
	for _, o := range opts {
		o(&d)
	}
	f.svc = NewService(d, nil)
	return f
}

func newOrder(t *testing.T, method domorder.PaymentMethod) *domorder.Order {
	t.Helper()
	o, err := domorder.New("o-1", domorder.Draft{
		OrderNumber:   "ORD-1709285400000-abcd1234",
		UserID:        "u-1",
		PaymentMethod: method,
		Items:         []domorder.Item{{ProductID: "p-1", Quantity: 3, UnitPrice: decimal.NewFromInt(50_000)}},
	}, testNow)
	require.NoError(t, err)
	return o
}

func TestProcessCashOnDeliverySettlesSynchronously(t *testing.T) {
	f := newFixture(t)
	o := newOrder(t, domorder.MethodCashOnDelivery)

	res, err := f.svc.Process(context.Background(), Request{Order: o})
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, dompay.StatusCompleted, res.Status)
	assert.Equal(t, "COD_"+o.OrderNumber, res.TransactionID)

	stored, err := f.repo.Get(context.Background(), res.PaymentID)
	require.NoError(t, err)
	assert.Equal(t, dompay.RiskLow, stored.RiskLevel)
	assert.NotNil(t, stored.ProcessedAt)
	assert.Equal(t, []string{dompay.EventSucceeded}, f.pub.names())
}

func TestProcessRedirectGatewayReturnsSignedURL(t *testing.T) {
	f := newFixture(t)
	o := newOrder(t, domorder.MethodRedirectGateway)

	res, err := f.svc.Process(context.Background(), Request{Order: o, ClientIP: "::1"})
	require.NoError(t, err)
	assert.Equal(t, dompay.StatusProcessing, res.Status)
	require.NotNil(t, res.Redirect)
	assert.Equal(t, o.OrderNumber, res.Redirect.TxnRef)

	u, err := url.Parse(res.Redirect.URL)
	require.NoError(t, err)
	assert.Equal(t, "15000000", u.Query().Get("vnp_Amount"))
	assert.Equal(t, "127.0.0.1", u.Query().Get("vnp_IpAddr"))
	assert.Empty(t, f.pub.names(), "nothing settles until the callback")
}

func TestProcessCardCreatesIntent(t *testing.T) {
	f := newFixture(t)
	res, err := f.svc.Process(context.Background(), Request{Order: newOrder(t, domorder.MethodCard)})
	require.NoError(t, err)
	assert.Equal(t, dompay.StatusProcessing, res.Status)
	require.NotNil(t, res.Card)
	assert.NotEmpty(t, res.Card.ClientSecret)
	assert.Equal(t, res.Card.IntentID, res.TransactionID)
}

func TestProcessBankTransferInstructions(t *testing.T) {
	f := newFixture(t)
	o := newOrder(t, domorder.MethodBankTransfer)

	res, err := f.svc.Process(context.Background(), Request{Order: o})
	require.NoError(t, err)
	assert.Equal(t, dompay.StatusPending, res.Status)
	assert.Equal(t, fmt.Sprintf("BT%d", testNow.UnixMilli()), res.TransactionID)
	require.NotNil(t, res.Bank)
	assert.Equal(t, "Thanh toan don hang "+o.OrderNumber, res.Bank.TransferContent)
	assert.Equal(t, "Bank:Vietcombank|Account:1234567890|Amount:150000|Content:Thanh toan don hang "+o.OrderNumber, res.Bank.QRData)
}

func TestProcessFailureRecordsFailedAttempt(t *testing.T) {
	f := newFixture(t, func(d *Deps) { d.Card = failingCard{err: fault.Unavailable("card_provider", errors.New("timeout"))} })
	o := newOrder(t, domorder.MethodCard)

	res, err := f.svc.Process(context.Background(), Request{Order: o})
	require.Error(t, err)
	assert.ErrorIs(t, err, fault.ErrCollaboratorUnavailable)
	assert.False(t, res.Success)
	assert.Equal(t, dompay.StatusFailed, res.Status)
	assert.NotEmpty(t, res.FailureReason)

	stored, err := f.repo.LatestByOrderNumber(context.Background(), o.OrderNumber)
	require.NoError(t, err)
	assert.Equal(t, dompay.StatusFailed, stored.Status)
	assert.Equal(t, []string{dompay.EventFailed}, f.pub.names())
}

func TestProcessGatewayMisconfiguredIsRejection(t *testing.T) {
	f := newFixture(t, func(d *Deps) {
		d.Gateway = vnpay.NewGateway(vnpay.NewClient(vnpay.Config{MerchantCode: "SHOP01"}))
	})
	_, err := f.svc.Process(context.Background(), Request{Order: newOrder(t, domorder.MethodRedirectGateway)})
	assert.ErrorIs(t, err, fault.ErrBusinessRejection)
	assert.ErrorIs(t, err, vnpay.ErrNotConfigured)
}

func signedCallback(txnRef, code string, amountMinor int64) map[string]string {
	params := map[string]string{
		vnpay.FieldTxnRef:        txnRef,
		vnpay.FieldResponseCode:  code,
		vnpay.FieldTransactionNo: "14123456",
		vnpay.FieldAmount:        fmt.Sprintf("%d", amountMinor),
	}
	params[vnpay.FieldSecureHash] = gatewayClient().Signer().Sign(params)
	return params
}

func TestSettleGatewayCallbackSuccessIsIdempotent(t *testing.T) {
	f := newFixture(t)
	o := newOrder(t, domorder.MethodRedirectGateway)
	_, err := f.svc.Process(context.Background(), Request{Order: o})
	require.NoError(t, err)

	params := signedCallback(o.OrderNumber, "00", 15_000_000)
	out, err := f.svc.SettleGatewayCallback(context.Background(), params)
	require.NoError(t, err)
	assert.True(t, out.Verified)
	assert.True(t, out.Success)
	assert.False(t, out.Duplicate)
	assert.Equal(t, dompay.StatusCompleted, out.Payment.Status)
	assert.Equal(t, "14123456", out.Payment.GatewayTransactionNo)

	again, err := f.svc.SettleGatewayCallback(context.Background(), params)
	require.NoError(t, err)
	assert.True(t, again.Duplicate)
	assert.True(t, again.Success)
	assert.Equal(t, []string{dompay.EventSucceeded}, f.pub.names(), "a replayed callback publishes nothing")
}

func TestSettleGatewayCallbackFailureCodes(t *testing.T) {
	f := newFixture(t)
	o := newOrder(t, domorder.MethodRedirectGateway)
	_, err := f.svc.Process(context.Background(), Request{Order: o})
	require.NoError(t, err)

	out, err := f.svc.SettleGatewayCallback(context.Background(), signedCallback(o.OrderNumber, "24", 15_000_000))
	require.NoError(t, err)
	assert.False(t, out.Success)
	assert.Equal(t, "customer cancelled the transaction", out.Reason)
	assert.Equal(t, dompay.StatusFailed, out.Payment.Status)
	assert.Equal(t, []string{dompay.EventFailed}, f.pub.names())
}

func TestSettleGatewayCallbackForgedSignatureFails(t *testing.T) {
	f := newFixture(t)
	o := newOrder(t, domorder.MethodRedirectGateway)
	_, err := f.svc.Process(context.Background(), Request{Order: o})
	require.NoError(t, err)

	params := signedCallback(o.OrderNumber, "00", 15_000_000)
	params[vnpay.FieldSecureHash] = "deadbeef"
	out, err := f.svc.SettleGatewayCallback(context.Background(), params)
	require.NoError(t, err)
	assert.False(t, out.Verified)
	assert.False(t, out.Success)
	assert.Equal(t, "signature validation failed", out.Reason)
}

func TestSettleGatewayCallbackAmountMismatch(t *testing.T) {
	f := newFixture(t)
	o := newOrder(t, domorder.MethodRedirectGateway)
	_, err := f.svc.Process(context.Background(), Request{Order: o})
	require.NoError(t, err)

	out, err := f.svc.SettleGatewayCallback(context.Background(), signedCallback(o.OrderNumber, "00", 100))
	require.NoError(t, err)
	assert.False(t, out.Success)
	assert.Contains(t, out.Reason, "amount mismatch")
}

func TestSettleGatewayCallbackUnknownPayment(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.SettleGatewayCallback(context.Background(), signedCallback("ORD-missing", "00", 100))
	assert.ErrorIs(t, err, dompay.ErrNotFound)
}

func TestSettleBankTransfer(t *testing.T) {
	f := newFixture(t)
	o := newOrder(t, domorder.MethodBankTransfer)
	res, err := f.svc.Process(context.Background(), Request{Order: o})
	require.NoError(t, err)

	_, err = f.svc.SettleBankTransfer(context.Background(), o.OrderNumber, "BT-wrong")
	assert.ErrorIs(t, err, fault.ErrBusinessRejection)

	out, err := f.svc.SettleBankTransfer(context.Background(), o.OrderNumber, res.TransactionID)
	require.NoError(t, err)
	assert.True(t, out.Success)
	assert.Equal(t, dompay.StatusCompleted, out.Payment.Status)

	out, err = f.svc.SettleBankTransfer(context.Background(), o.OrderNumber, "")
	require.NoError(t, err)
	assert.True(t, out.Duplicate)
}

func TestSettleCard(t *testing.T) {
	f := newFixture(t)
	res, err := f.svc.Process(context.Background(), Request{Order: newOrder(t, domorder.MethodCard)})
	require.NoError(t, err)

	out, err := f.svc.SettleCard(context.Background(), res.Card.IntentID)
	require.NoError(t, err)
	assert.True(t, out.Success)
	assert.Equal(t, res.Card.IntentID, out.Payment.TransactionID)
}

func TestVoidLatestCancelsOpenAttemptOnly(t *testing.T) {
	f := newFixture(t)
	o := newOrder(t, domorder.MethodRedirectGateway)
	res, err := f.svc.Process(context.Background(), Request{Order: o})
	require.NoError(t, err)

	require.NoError(t, f.svc.VoidLatest(context.Background(), o.OrderNumber, "saga aborted"))
	stored, _ := f.repo.Get(context.Background(), res.PaymentID)
	assert.Equal(t, dompay.StatusCancelled, stored.Status)

	require.NoError(t, f.svc.VoidAttempt(context.Background(), res.PaymentID, "again"))
	require.NoError(t, f.svc.VoidAttempt(context.Background(), "missing", "noop"))
}

func TestVoidRefusesSettledAttempt(t *testing.T) {
	f := newFixture(t)
	o := newOrder(t, domorder.MethodCard)
	res, err := f.svc.Process(context.Background(), Request{Order: o})
	require.NoError(t, err)
	_, err = f.svc.SettleCard(context.Background(), res.Card.IntentID)
	require.NoError(t, err)

	err = f.svc.VoidLatest(context.Background(), o.OrderNumber, "payment timeout")
	require.ErrorIs(t, err, dompay.ErrSettled)
	var settledErr *SettledError
	require.True(t, errors.As(err, &settledErr))
	assert.Equal(t, res.PaymentID, settledErr.Payment.ID)

	assert.ErrorIs(t, f.svc.VoidAttempt(context.Background(), res.PaymentID, "abort"), dompay.ErrSettled)
	stored, _ := f.repo.Get(context.Background(), res.PaymentID)
	assert.Equal(t, dompay.StatusCompleted, stored.Status)
}

func TestRefundPartialThenFull(t *testing.T) {
	f := newFixture(t)
	o := newOrder(t, domorder.MethodCashOnDelivery)
	res, err := f.svc.Process(context.Background(), Request{Order: o})
	require.NoError(t, err)

	r, err := f.svc.Refund(context.Background(), RefundRequest{PaymentID: res.PaymentID, Amount: decimal.NewFromInt(50_000), Reason: "damaged"})
	require.NoError(t, err)
	assert.Equal(t, dompay.StatusPartiallyRefunded, r.Payment.Status)
	assert.Equal(t, fmt.Sprintf("REF%d", testNow.UnixMilli()), r.Reference)

	_, err = f.svc.Refund(context.Background(), RefundRequest{PaymentID: res.PaymentID, Amount: decimal.NewFromInt(500_000)})
	assert.ErrorIs(t, err, fault.ErrValidation)

	r, err = f.svc.RefundByOrderNumber(context.Background(), o.OrderNumber, "cancelled")
	require.NoError(t, err)
	assert.Equal(t, dompay.StatusRefunded, r.Payment.Status)
	assert.True(t, r.Amount.Equal(decimal.NewFromInt(100_000)))

	_, err = f.svc.RefundByOrderNumber(context.Background(), o.OrderNumber, "again")
	assert.ErrorIs(t, err, dompay.ErrNotRefundable)
}

func TestRefundCardGoesThroughProvider(t *testing.T) {
	f := newFixture(t)
	res, err := f.svc.Process(context.Background(), Request{Order: newOrder(t, domorder.MethodCard)})
	require.NoError(t, err)
	_, err = f.svc.SettleCard(context.Background(), res.Card.IntentID)
	require.NoError(t, err)

	r, err := f.svc.Refund(context.Background(), RefundRequest{PaymentID: res.PaymentID})
	require.NoError(t, err)
	assert.Contains(t, r.Reference, "re_")
	assert.Equal(t, dompay.StatusRefunded, r.Payment.Status)
}

func TestRefundRejectsUnsettledPayment(t *testing.T) {
	f := newFixture(t)
	res, err := f.svc.Process(context.Background(), Request{Order: newOrder(t, domorder.MethodBankTransfer)})
	require.NoError(t, err)

	_, err = f.svc.Refund(context.Background(), RefundRequest{PaymentID: res.PaymentID})
	assert.ErrorIs(t, err, dompay.ErrNotRefundable)
}

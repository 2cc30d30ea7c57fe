// Package card talks to the card payment provider, or simulates one in sandbox mode.
package card

import (
	"context"
	"fmt"
	"net/url"

	"github.com/shopspring/decimal"
	"github.com/sony/gobreaker"

	"github.com/Zhima-Mochi/minishop-fulfillment/internal/domain/fault"
	"github.com/Zhima-Mochi/minishop-fulfillment/internal/domain/payment"
	"github.com/Zhima-Mochi/minishop-fulfillment/internal/infrastructure/breaker"
	"github.com/Zhima-Mochi/minishop-fulfillment/internal/infrastructure/httpclient"
)

const peer = "card_provider"

type intentBody struct {
	ID           string `json:"id"`
	ClientSecret string `json:"client_secret"`
	Status       string `json:"status"`
	Error        string `json:"error,omitempty"`
}

type createIntentBody struct {
	Amount   int64             `json:"amount"`
	Currency string            `json:"currency"`
	Metadata map[string]string `json:"metadata"`
}

type refundBody struct {
	ID            string `json:"id"`
	Status        string `json:"status"`
	PaymentIntent string `json:"payment_intent,omitempty"`
	Amount        int64  `json:"amount,omitempty"`
	Error         string `json:"error,omitempty"`
}

// HTTPProvider calls a provider exposing intent and refund resources over JSON.
type HTTPProvider struct {
	http *httpclient.Client
	cb   *gobreaker.CircuitBreaker
}

func NewHTTPProvider(hc *httpclient.Client, cb *gobreaker.CircuitBreaker) *HTTPProvider {
	return &HTTPProvider{http: hc, cb: cb}
}

func (p *HTTPProvider) CreateIntent(ctx context.Context, req payment.IntentRequest) (payment.Intent, error) {
	body := createIntentBody{
		Amount:   req.AmountMinor,
		Currency: req.Currency,
		Metadata: map[string]string{"order_number": req.OrderNumber},
	}
	return p.intentCall(ctx, "create_intent", "/v1/payment_intents", body)
}

func (p *HTTPProvider) ConfirmIntent(ctx context.Context, intentID string) (payment.Intent, error) {
	return p.intentCall(ctx, "confirm_intent", "/v1/payment_intents/"+url.PathEscape(intentID)+"/confirm", struct{}{})
}

func (p *HTTPProvider) intentCall(ctx context.Context, endpoint, path string, in any) (payment.Intent, error) {
	return breaker.Execute(p.cb, func() (payment.Intent, error) {
		var out intentBody
		resp, err := p.http.PostJSON(ctx, endpoint, path, in, &out)
		if err != nil {
			return payment.Intent{}, err
		}
		if !resp.OK() {
			_ = httpclient.DecodeBody(resp, &out)
			return payment.Intent{}, fault.Rejected(peer, fmt.Sprintf("%s: status %d %s", endpoint, resp.Status, out.Error))
		}
		return payment.Intent{ID: out.ID, ClientSecret: out.ClientSecret, Status: payment.IntentStatus(out.Status)}, nil
	})
}

func (p *HTTPProvider) Refund(ctx context.Context, intentID string, amount decimal.Decimal) (payment.CardRefund, error) {
	body := refundBody{PaymentIntent: intentID, Amount: payment.MinorUnits(amount)}
	return breaker.Execute(p.cb, func() (payment.CardRefund, error) {
		var out refundBody
		resp, err := p.http.PostJSON(ctx, "refund", "/v1/refunds", body, &out)
		if err != nil {
			return payment.CardRefund{}, err
		}
		if !resp.OK() {
			_ = httpclient.DecodeBody(resp, &out)
			return payment.CardRefund{}, fault.Rejected(peer, fmt.Sprintf("refund: status %d %s", resp.Status, out.Error))
		}
		return payment.CardRefund{ID: out.ID, Status: out.Status}, nil
	})
}

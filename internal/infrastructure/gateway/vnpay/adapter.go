package vnpay

import (
	"context"

	"github.com/Zhima-Mochi/minishop-fulfillment/internal/domain/payment"
)

// Gateway exposes a Client through the payment domain types.
type Gateway struct {
	client *Client
}

func NewGateway(c *Client) *Gateway { return &Gateway{client: c} }

func (g *Gateway) CreateRedirect(_ context.Context, req payment.RedirectRequest) (payment.Redirect, error) {
	u, err := g.client.BuildPaymentURL(PaymentRequest{
		OrderNumber: req.OrderNumber,
		Amount:      req.Amount,
		ClientIP:    req.ClientIP,
		ReturnURL:   req.ReturnURL,
		CreatedAt:   req.CreatedAt,
	})
	if err != nil {
		return payment.Redirect{}, err
	}
	return payment.Redirect{URL: u.URL, TxnRef: u.TxnRef}, nil
}

func (g *Gateway) VerifyCallback(params map[string]string) payment.GatewayCallback {
	cb := g.client.ParseCallback(params)
	out := payment.GatewayCallback{
		Params:        cb.Params,
		TxnRef:        cb.TxnRef,
		ResponseCode:  cb.ResponseCode,
		TransactionNo: cb.TransactionNo,
		Amount:        cb.Amount,
		Verified:      cb.Verified,
		Success:       cb.Succeeded(),
	}
	if !out.Success {
		out.Reason = cb.FailureReason()
	}
	return out
}

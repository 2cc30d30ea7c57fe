// Package voucher is the HTTP client for the voucher collaborator.
package voucher

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/shopspring/decimal"
	"github.com/sony/gobreaker"

	"github.com/Zhima-Mochi/minishop-fulfillment/internal/domain/fault"
	"github.com/Zhima-Mochi/minishop-fulfillment/internal/domain/voucher"
	"github.com/Zhima-Mochi/minishop-fulfillment/internal/infrastructure/breaker"
	"github.com/Zhima-Mochi/minishop-fulfillment/internal/infrastructure/httpclient"
)

const peer = "voucher"

type validateItem struct {
	ProductID string          `json:"productId"`
	Quantity  int             `json:"quantity"`
	Price     decimal.Decimal `json:"price"`
}

type validateRequest struct {
	VoucherCode string          `json:"voucherCode"`
	UserID      string          `json:"userId"`
	OrderAmount decimal.Decimal `json:"orderAmount"`
	Items       []validateItem  `json:"items"`
}

type validateResponse struct {
	Valid          bool            `json:"valid"`
	Message        string          `json:"message"`
	DiscountAmount decimal.Decimal `json:"discountAmount"`
	FinalAmount    decimal.Decimal `json:"finalAmount"`
	VoucherID      json.Number     `json:"voucherId"`
	VoucherCode    string          `json:"voucherCode"`
	FreeShipping   bool            `json:"freeShipping"`
}

type usageRequest struct {
	VoucherID      string          `json:"voucherId"`
	VoucherCode    string          `json:"voucherCode"`
	UserID         string          `json:"userId"`
	OrderID        string          `json:"orderId"`
	OrderNumber    string          `json:"orderNumber"`
	OriginalAmount decimal.Decimal `json:"originalAmount"`
	DiscountAmount decimal.Decimal `json:"discountAmount"`
	FinalAmount    decimal.Decimal `json:"finalAmount"`
}

type Client struct {
	http *httpclient.Client
	cb   *gobreaker.CircuitBreaker
}

func NewClient(hc *httpclient.Client, cb *gobreaker.CircuitBreaker) *Client {
	return &Client{http: hc, cb: cb}
}

// Validate prices a voucher. An invalid voucher is a business rejection.
func (c *Client) Validate(ctx context.Context, chk voucher.Check) (voucher.Quote, error) {
	req := validateRequest{
		VoucherCode: chk.Code,
		UserID:      chk.UserID,
		OrderAmount: chk.OrderAmount,
		Items:       make([]validateItem, 0, len(chk.Items)),
	}
	for _, it := range chk.Items {
		req.Items = append(req.Items, validateItem{ProductID: it.ProductID, Quantity: it.Quantity, Price: it.Price})
	}

	return breaker.Execute(c.cb, func() (voucher.Quote, error) {
		var out validateResponse
		resp, err := c.http.PostJSON(ctx, "validate", "/api/vouchers/validate", req, &out)
		if err != nil {
			return voucher.Quote{}, err
		}
		if !resp.OK() {
			if resp.Status >= http.StatusInternalServerError || resp.Status == http.StatusNotFound {
				return voucher.Quote{}, fault.Unavailable(peer, fmt.Errorf("validate: status %d", resp.Status))
			}
			_ = httpclient.DecodeBody(resp, &out)
		}
		q := voucher.Quote{
			Valid:          out.Valid && resp.OK(),
			Message:        out.Message,
			VoucherID:      out.VoucherID.String(),
			Code:           out.VoucherCode,
			DiscountAmount: out.DiscountAmount,
			FinalAmount:    out.FinalAmount,
			FreeShipping:   out.FreeShipping,
		}
		if q.Code == "" {
			q.Code = chk.Code
		}
		if !q.Valid {
			msg := q.Message
			if msg == "" {
				msg = "invalid voucher " + chk.Code
			}
			return q, fault.Rejected(peer, msg)
		}
		if q.DiscountAmount.IsNegative() {
			return q, fault.Rejected(peer, "negative discount")
		}
		return q, nil
	})
}

// RecordUsage marks the voucher as spent on an order. The collaborator has no undo for this call.
func (c *Client) RecordUsage(ctx context.Context, u voucher.Usage) error {
	req := usageRequest{
		VoucherID:      u.VoucherID,
		VoucherCode:    u.Code,
		UserID:         u.UserID,
		OrderID:        u.OrderID,
		OrderNumber:    u.OrderNumber,
		OriginalAmount: u.OriginalAmount,
		DiscountAmount: u.DiscountAmount,
		FinalAmount:    u.FinalAmount,
	}
	_, err := breaker.Execute(c.cb, func() (struct{}, error) {
		resp, err := c.http.PostJSON(ctx, "usage", "/api/vouchers/usage", req, nil)
		if err != nil {
			return struct{}{}, err
		}
		if !resp.OK() {
			return struct{}{}, fault.Rejected(peer, fmt.Sprintf("record usage: status %d", resp.Status))
		}
		return struct{}{}, nil
	})
	return err
}

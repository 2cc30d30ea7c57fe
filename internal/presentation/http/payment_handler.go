package httppresentation

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	apporder "github.com/Zhima-Mochi/minishop-fulfillment/internal/application/order"
	apppay "github.com/Zhima-Mochi/minishop-fulfillment/internal/application/payment"
	"github.com/Zhima-Mochi/minishop-fulfillment/internal/domain/fault"
	domorder "github.com/Zhima-Mochi/minishop-fulfillment/internal/domain/order"
	dompay "github.com/Zhima-Mochi/minishop-fulfillment/internal/domain/payment"
	"github.com/Zhima-Mochi/minishop-fulfillment/internal/observability"
	"github.com/Zhima-Mochi/minishop-fulfillment/internal/observability/logctx"
)

// Gateway IPN acknowledgement codes.
const (
	ipnConfirmed        = "00"
	ipnOrderNotFound    = "01"
	ipnAlreadyConfirmed = "02"
	ipnInvalidAmount    = "04"
	ipnInvalidSignature = "97"
	ipnUnknownError     = "99"
)

type reconciliationResponse struct {
	Success       bool           `json:"success"`
	Verified      bool           `json:"verified"`
	Duplicate     bool           `json:"duplicate,omitempty"`
	OrderNumber   string         `json:"orderNumber,omitempty"`
	PaymentStatus string         `json:"paymentStatus,omitempty"`
	Reason        string         `json:"reason,omitempty"`
	Error         string         `json:"error,omitempty"`
	Order         *orderResponse `json:"order,omitempty"`
}

type ipnResponse struct {
	RspCode string `json:"RspCode"`
	Message string `json:"Message"`
}

type refundRequest struct {
	Amount decimal.Decimal `json:"amount" validate:"gte=0"`
	Reason string          `json:"reason"`
}

type refundResponse struct {
	Success        bool            `json:"success"`
	PaymentID      string          `json:"paymentId"`
	Status         string          `json:"status"`
	Amount         decimal.Decimal `json:"amount"`
	RefundedAmount decimal.Decimal `json:"refundedAmount"`
	Reference      string          `json:"reference,omitempty"`
}

func toReconciliationResponse(rec *apporder.Reconciliation) reconciliationResponse {
	var out reconciliationResponse
	if rec == nil {
		return out
	}
	if st := rec.Settlement; st != nil {
		out.Success = st.Success
		out.Verified = st.Verified
		out.Duplicate = st.Duplicate
		out.OrderNumber = st.OrderNumber
		out.Reason = st.Reason
		if st.Payment != nil {
			out.PaymentStatus = string(st.Payment.Status)
		}
	}
	if rec.Order != nil {
		o := toOrderResponse(rec.Order)
		out.Order = &o
		out.OrderNumber = o.OrderNumber
		out.Success = rec.Order.PaymentStatus == domorder.PaymentCompleted
	}
	return out
}

func queryParams(r *http.Request) map[string]string {
	q := r.URL.Query()
	params := make(map[string]string, len(q))
	for k, vs := range q {
		if len(vs) > 0 {
			params[k] = vs[0]
		}
	}
	return params
}

// handleGatewayReturn reconciles the customer's browser return. It always answers 200 with the outcome.
func (h *Handler) handleGatewayReturn(w http.ResponseWriter, r *http.Request) {
	rec, err := h.orders.HandleGatewayCallback(r.Context(), queryParams(r))
	out := toReconciliationResponse(rec)
	if err != nil {
		out.Success = false
		out.Error = err.Error()
	}
	writeJSON(w, http.StatusOK, out)
}

// handleGatewayIPN reconciles the gateway's server-to-server notification and acknowledges it with an RspCode.
func (h *Handler) handleGatewayIPN(w http.ResponseWriter, r *http.Request) {
	rec, err := h.orders.HandleGatewayCallback(r.Context(), queryParams(r))
	ack := ipnAck(rec, err)
	if ack.RspCode != ipnConfirmed && ack.RspCode != ipnAlreadyConfirmed {
		fields := []observability.Field{observability.F("rsp_code", ack.RspCode)}
		if err != nil {
			fields = append(fields, observability.F("error", err.Error()))
		}
		logctx.FromOr(r.Context(), h.log).Warn("gateway_ipn_rejected", fields...)
	}
	writeJSON(w, http.StatusOK, ack)
}

func ipnAck(rec *apporder.Reconciliation, err error) ipnResponse {
	var st *apppay.Settlement
	if rec != nil {
		st = rec.Settlement
	}
	switch {
	case st != nil && !st.Verified:
		return ipnResponse{RspCode: ipnInvalidSignature, Message: "Invalid signature"}
	case errors.Is(err, dompay.ErrNotFound), errors.Is(err, domorder.ErrNotFound), errors.Is(err, fault.ErrValidation):
		return ipnResponse{RspCode: ipnOrderNotFound, Message: "Order not found"}
	case err != nil:
		return ipnResponse{RspCode: ipnUnknownError, Message: "Unknown error"}
	case st != nil && st.Duplicate:
		return ipnResponse{RspCode: ipnAlreadyConfirmed, Message: "Order already confirmed"}
	case st != nil && strings.HasPrefix(st.Reason, "amount mismatch"):
		return ipnResponse{RspCode: ipnInvalidAmount, Message: "Invalid amount"}
	default:
		return ipnResponse{RspCode: ipnConfirmed, Message: "Confirm Success"}
	}
}

func (h *Handler) handleConfirmCard(w http.ResponseWriter, r *http.Request) {
	rec, err := h.orders.ConfirmCard(r.Context(), chi.URLParam(r, "intentID"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toReconciliationResponse(rec))
}

func (h *Handler) handleRefund(w http.ResponseWriter, r *http.Request) {
	var req refundRequest
	if r.ContentLength != 0 {
		if err := decodeJSON(h.validate, r, &req); err != nil {
			writeDomainError(w, err)
			return
		}
	}
	res, err := h.refunds.Refund(r.Context(), apppay.RefundRequest{
		PaymentID: chi.URLParam(r, "paymentID"),
		Amount:    req.Amount,
		Reason:    req.Reason,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, refundResponse{
		Success:        true,
		PaymentID:      res.Payment.ID,
		Status:         string(res.Payment.Status),
		Amount:         res.Amount,
		RefundedAmount: res.Payment.RefundedAmount,
		Reference:      res.Reference,
	})
}

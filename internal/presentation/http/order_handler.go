package httppresentation

import (
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	apporder "github.com/Zhima-Mochi/minishop-fulfillment/internal/application/order"
	apppay "github.com/Zhima-Mochi/minishop-fulfillment/internal/application/payment"
	domorder "github.com/Zhima-Mochi/minishop-fulfillment/internal/domain/order"
)

type itemRequest struct {
	ProductID string          `json:"productId" validate:"required"`
	Quantity  int             `json:"quantity" validate:"gt=0"`
	UnitPrice decimal.Decimal `json:"unitPrice" validate:"gte=0"`
}

type createOrderRequest struct {
	OrderNumber   string          `json:"orderNumber"`
	UserID        string          `json:"userId" validate:"required"`
	Items         []itemRequest   `json:"items" validate:"required,min=1,dive"`
	PaymentMethod string          `json:"paymentMethod" validate:"required,oneof=CASH_ON_DELIVERY COD REDIRECT_GATEWAY VNPAY CARD BANK_TRANSFER"`
	VoucherCode   string          `json:"voucherCode"`
	Currency      string          `json:"currency"`
	Tax           decimal.Decimal `json:"tax" validate:"gte=0"`
	ShippingFee   decimal.Decimal `json:"shippingFee" validate:"gte=0"`
	ReturnURL     string          `json:"returnUrl" validate:"omitempty,http_url"`
}

type itemResponse struct {
	ProductID string          `json:"productId"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unitPrice"`
}

type orderResponse struct {
	ID                 string          `json:"id"`
	OrderNumber        string          `json:"orderNumber"`
	UserID             string          `json:"userId"`
	Status             string          `json:"status"`
	PaymentStatus      string          `json:"paymentStatus"`
	PaymentMethod      string          `json:"paymentMethod"`
	Currency           string          `json:"currency"`
	Items              []itemResponse  `json:"items"`
	Subtotal           decimal.Decimal `json:"subtotal"`
	Tax                decimal.Decimal `json:"tax"`
	ShippingFee        decimal.Decimal `json:"shippingFee"`
	DiscountAmount     decimal.Decimal `json:"discountAmount"`
	TotalAmount        decimal.Decimal `json:"totalAmount"`
	VoucherCode        string          `json:"voucherCode,omitempty"`
	PaymentReference   string          `json:"paymentReference,omitempty"`
	CancellationReason string          `json:"cancellationReason,omitempty"`
	CreatedAt          time.Time       `json:"createdAt"`
	UpdatedAt          time.Time       `json:"updatedAt"`
	PaidAt             *time.Time      `json:"paidAt,omitempty"`
	CancelledAt        *time.Time      `json:"cancelledAt,omitempty"`
}

type bankTransferResponse struct {
	BankName        string          `json:"bankName"`
	AccountNumber   string          `json:"accountNumber"`
	AccountHolder   string          `json:"accountHolder"`
	Amount          decimal.Decimal `json:"amount"`
	TransferContent string          `json:"transferContent"`
	QRData          string          `json:"qrData"`
}

type paymentResponse struct {
	Success       bool                  `json:"success"`
	PaymentID     string                `json:"paymentId"`
	Method        string                `json:"method"`
	Status        string                `json:"status"`
	TransactionID string                `json:"transactionId,omitempty"`
	PaymentURL    string                `json:"paymentUrl,omitempty"`
	ClientSecret  string                `json:"clientSecret,omitempty"`
	IntentID      string                `json:"intentId,omitempty"`
	BankTransfer  *bankTransferResponse `json:"bankTransfer,omitempty"`
	FailureReason string                `json:"failureReason,omitempty"`
}

type createOrderResponse struct {
	Success  bool             `json:"success"`
	Order    orderResponse    `json:"order"`
	Payment  *paymentResponse `json:"payment,omitempty"`
	Replayed bool             `json:"replayed,omitempty"`
}

type reasonRequest struct {
	Reason string `json:"reason"`
}

type updateStatusRequest struct {
	Status string `json:"status" validate:"required"`
	Reason string `json:"reason"`
}

type confirmPaymentRequest struct {
	Reference string `json:"reference"`
}

type bankTransferConfirmRequest struct {
	TransactionID string `json:"transactionId" validate:"required"`
}

func toOrderResponse(o *domorder.Order) orderResponse {
	items := make([]itemResponse, 0, len(o.Items))
	for _, it := range o.Items {
		items = append(items, itemResponse{ProductID: it.ProductID, Quantity: it.Quantity, UnitPrice: it.UnitPrice})
	}
	return orderResponse{
		ID:                 o.ID,
		OrderNumber:        o.OrderNumber,
		UserID:             o.UserID,
		Status:             string(o.Status),
		PaymentStatus:      string(o.PaymentStatus),
		PaymentMethod:      string(o.PaymentMethod),
		Currency:           o.Currency,
		Items:              items,
		Subtotal:           o.Subtotal,
		Tax:                o.Tax,
		ShippingFee:        o.ShippingFee,
		DiscountAmount:     o.DiscountAmount,
		TotalAmount:        o.TotalAmount,
		VoucherCode:        o.VoucherCode,
		PaymentReference:   o.PaymentReference,
		CancellationReason: o.CancellationReason,
		CreatedAt:          o.CreatedAt,
		UpdatedAt:          o.UpdatedAt,
		PaidAt:             o.PaidAt,
		CancelledAt:        o.CancelledAt,
	}
}

func toPaymentResponse(res *apppay.Result) *paymentResponse {
	if res == nil {
		return nil
	}
	out := &paymentResponse{
		Success:       res.Success,
		PaymentID:     res.PaymentID,
		Method:        string(res.Method),
		Status:        string(res.Status),
		TransactionID: res.TransactionID,
		FailureReason: res.FailureReason,
	}
	if res.Redirect != nil {
		out.PaymentURL = res.Redirect.URL
	}
	if res.Card != nil {
		out.IntentID = res.Card.IntentID
		out.ClientSecret = res.Card.ClientSecret
	}
	if b := res.Bank; b != nil {
		out.BankTransfer = &bankTransferResponse{
			BankName:        b.BankName,
			AccountNumber:   b.AccountNumber,
			AccountHolder:   b.AccountHolder,
			Amount:          b.Amount,
			TransferContent: b.TransferContent,
			QRData:          b.QRData,
		}
	}
	return out
}

func (h *Handler) handleCreateOrder(w http.ResponseWriter, r *http.Request) {
	var req createOrderRequest
	if err := decodeJSON(h.validate, r, &req); err != nil {
		writeDomainError(w, err)
		return
	}

	items := make([]apporder.ItemInput, 0, len(req.Items))
	for _, it := range req.Items {
		items = append(items, apporder.ItemInput{ProductID: it.ProductID, Quantity: it.Quantity, UnitPrice: it.UnitPrice})
	}
	result, err := h.create.Execute(r.Context(), apporder.CreateOrderInput{
		OrderNumber:   req.OrderNumber,
		UserID:        req.UserID,
		Items:         items,
		PaymentMethod: req.PaymentMethod,
		VoucherCode:   req.VoucherCode,
		Currency:      req.Currency,
		Tax:           req.Tax,
		ShippingFee:   req.ShippingFee,
		ClientIP:      clientIP(r),
		ReturnURL:     req.ReturnURL,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}

	status := http.StatusCreated
	if result.Replayed {
		status = http.StatusOK
	}
	writeJSON(w, status, createOrderResponse{
		Success:  true,
		Order:    toOrderResponse(result.Order),
		Payment:  toPaymentResponse(result.Payment),
		Replayed: result.Replayed,
	})
}

func (h *Handler) handleGetOrder(w http.ResponseWriter, r *http.Request) {
	o, err := h.orders.GetOrder(r.Context(), chi.URLParam(r, "orderNumber"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderResponse(o))
}

func (h *Handler) handleDeleteOrder(w http.ResponseWriter, r *http.Request) {
	if err := h.orders.Delete(r.Context(), chi.URLParam(r, "orderNumber")); err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleCancelOrder(w http.ResponseWriter, r *http.Request) {
	var req reasonRequest
	if r.ContentLength != 0 {
		if err := decodeJSON(h.validate, r, &req); err != nil {
			writeDomainError(w, err)
			return
		}
	}
	if req.Reason == "" {
		req.Reason = "cancelled by request"
	}
	o, err := h.orders.Cancel(r.Context(), chi.URLParam(r, "orderNumber"), req.Reason)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderResponse(o))
}

func (h *Handler) handleUpdateStatus(w http.ResponseWriter, r *http.Request) {
	var req updateStatusRequest
	if err := decodeJSON(h.validate, r, &req); err != nil {
		writeDomainError(w, err)
		return
	}
	o, err := h.orders.UpdateStatus(r.Context(), chi.URLParam(r, "orderNumber"), req.Status, req.Reason)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderResponse(o))
}

// handleConfirmPayment is the staff confirmation used for cash on delivery.
func (h *Handler) handleConfirmPayment(w http.ResponseWriter, r *http.Request) {
	var req confirmPaymentRequest
	if r.ContentLength != 0 {
		if err := decodeJSON(h.validate, r, &req); err != nil {
			writeDomainError(w, err)
			return
		}
	}
	o, err := h.orders.ConfirmPayment(r.Context(), chi.URLParam(r, "orderNumber"), req.Reference)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderResponse(o))
}

func (h *Handler) handleConfirmBankTransfer(w http.ResponseWriter, r *http.Request) {
	var req bankTransferConfirmRequest
	if err := decodeJSON(h.validate, r, &req); err != nil {
		writeDomainError(w, err)
		return
	}
	rec, err := h.orders.ConfirmBankTransfer(r.Context(), chi.URLParam(r, "orderNumber"), req.TransactionID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toReconciliationResponse(rec))
}

// clientIP returns the host part of RemoteAddr, which RealIP has already resolved from forwarding headers.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

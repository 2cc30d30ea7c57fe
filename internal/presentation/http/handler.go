// Package httppresentation exposes the fulfillment use cases over HTTP.
package httppresentation

import (
	"context"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/Zhima-Mochi/minishop-fulfillment/internal/application"
	apporder "github.com/Zhima-Mochi/minishop-fulfillment/internal/application/order"
	apppay "github.com/Zhima-Mochi/minishop-fulfillment/internal/application/payment"
	domorder "github.com/Zhima-Mochi/minishop-fulfillment/internal/domain/order"
	"github.com/Zhima-Mochi/minishop-fulfillment/internal/observability"
)

const componentHTTPHandler = "http_server"

// Orders is the order orchestrator as seen by the HTTP layer.
type Orders interface {
	GetOrder(ctx context.Context, orderNumber string) (*domorder.Order, error)
	Cancel(ctx context.Context, orderNumber, reason string) (*domorder.Order, error)
	Delete(ctx context.Context, orderNumber string) error
	UpdateStatus(ctx context.Context, orderNumber, status, reason string) (*domorder.Order, error)
	ConfirmPayment(ctx context.Context, orderNumber, reference string) (*domorder.Order, error)
	HandleGatewayCallback(ctx context.Context, params map[string]string) (*apporder.Reconciliation, error)
	ConfirmBankTransfer(ctx context.Context, orderNumber, transactionID string) (*apporder.Reconciliation, error)
	ConfirmCard(ctx context.Context, intentID string) (*apporder.Reconciliation, error)
}

// Refunds issues payment-level refunds.
type Refunds interface {
	Refund(ctx context.Context, req apppay.RefundRequest) (*apppay.RefundResult, error)
}

var (
	_ Orders  = (*apporder.Service)(nil)
	_ Refunds = (*apppay.Service)(nil)
)

type Deps struct {
	Orders      Orders
	CreateOrder application.UseCase[apporder.CreateOrderInput, *apporder.CreateOrderResult]
	Refunds     Refunds
	// Metrics serves /metrics when set.
	Metrics http.Handler
	// Ready backs /ready. Nil reports ready.
	Ready func(ctx context.Context) error
}

type Handler struct {
	orders   Orders
	create   application.UseCase[apporder.CreateOrderInput, *apporder.CreateOrderResult]
	refunds  Refunds
	metrics  http.Handler
	ready    func(ctx context.Context) error
	validate *validator.Validate
	log      observability.Logger
	tel      observability.Observability
}

func NewHandler(d Deps, tel observability.Observability) *Handler {
	if tel == nil {
		tel = observability.Nop()
	}
	return &Handler{
		orders:   d.Orders,
		create:   d.CreateOrder,
		refunds:  d.Refunds,
		metrics:  d.Metrics,
		ready:    d.Ready,
		validate: newValidator(),
		log:      tel.Logger().With(observability.F("component", componentHTTPHandler)),
		tel:      tel,
	}
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	v.RegisterCustomTypeFunc(func(f reflect.Value) any {
		d, ok := f.Interface().(decimal.Decimal)
		if !ok {
			return nil
		}
		return d.InexactFloat64()
	}, decimal.Decimal{})
	return v
}

// Router wires every route behind: RequestID → RealIP → Recoverer → Trace → request logger, metrics and access log.
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.RequestID,
		middleware.RealIP,
		middleware.Recoverer,
		withTrace,
		ObservabilityMiddleware(h.log, h.tel),
	)

	r.Get("/health", h.handleHealth)
	r.Get("/ready", h.handleReady)
	if h.metrics != nil {
		r.Method(http.MethodGet, "/metrics", h.metrics)
	}

	r.Route("/orders", func(r chi.Router) {
		r.Post("/", h.handleCreateOrder)
		r.Route("/by-number/{orderNumber}", func(r chi.Router) {
			r.Get("/", h.handleGetOrder)
			r.Delete("/", h.handleDeleteOrder)
			r.Post("/cancel", h.handleCancelOrder)
			r.Post("/status", h.handleUpdateStatus)
			r.Post("/confirm-payment", h.handleConfirmPayment)
			r.Post("/bank-transfer/confirm", h.handleConfirmBankTransfer)
		})
	})

	r.Route("/payments", func(r chi.Router) {
		r.Get("/gateway/return", h.handleGatewayReturn)
		r.Get("/gateway/ipn", h.handleGatewayIPN)
		r.Post("/card/{intentID}/confirm", h.handleConfirmCard)
		r.Post("/{paymentID}/refund", h.handleRefund)
	})

	return r
}

func (h *Handler) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (h *Handler) handleReady(w http.ResponseWriter, r *http.Request) {
	if h.ready != nil {
		if err := h.ready(r.Context()); err != nil {
			writeError(w, http.StatusServiceUnavailable, err)
			return
		}
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}

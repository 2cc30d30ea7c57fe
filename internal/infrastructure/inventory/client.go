// Package inventory is the HTTP gateway to the remote inventory ledger.
package inventory

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/sony/gobreaker"

	"github.com/Zhima-Mochi/minishop-fulfillment/internal/domain/fault"
	"github.com/Zhima-Mochi/minishop-fulfillment/internal/domain/inventory"
	"github.com/Zhima-Mochi/minishop-fulfillment/internal/domain/outbox"
	"github.com/Zhima-Mochi/minishop-fulfillment/internal/infrastructure/breaker"
	"github.com/Zhima-Mochi/minishop-fulfillment/internal/infrastructure/httpclient"
	"github.com/Zhima-Mochi/minishop-fulfillment/internal/observability"
	"github.com/Zhima-Mochi/minishop-fulfillment/internal/observability/logctx"
)

const peer = "inventory"

type request struct {
	OrderID string           `json:"orderId"`
	Items   []inventory.Line `json:"items"`
}

type response struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
	Message string `json:"message,omitempty"`
}

func (r response) reason() string {
	if r.Error != "" {
		return r.Error
	}
	if r.Message != "" {
		return r.Message
	}
	return "request rejected"
}

// Client reserves, confirms and releases stock keyed by order id.
type Client struct {
	http      *httpclient.Client
	cb        *gobreaker.CircuitBreaker
	publisher outbox.Publisher
	log       observability.Logger
	now       func() time.Time
}

// NewClient wires the transport and breaker. publisher receives retry requests when a confirm or release cannot be delivered.
func NewClient(hc *httpclient.Client, cb *gobreaker.CircuitBreaker, publisher outbox.Publisher, log observability.Logger) *Client {
	if log == nil {
		log = observability.NopLogger()
	}
	return &Client{
		http:      hc,
		cb:        cb,
		publisher: publisher,
		log:       log.With(observability.F("component", "inventory_gateway")),
		now:       time.Now,
	}
}

// Reserve holds stock for every line. It has no fallback: unavailability aborts the caller.
func (c *Client) Reserve(ctx context.Context, orderID string, lines []inventory.Line) error {
	if err := inventory.Validate(lines); err != nil {
		return fault.Validation(err.Error())
	}
	return c.Apply(ctx, inventory.OpReserve, orderID, lines)
}

// Confirm converts the reservation into a committed decrement.
// When the ledger is unreachable the call is queued for retry and reported as a soft success.
func (c *Client) Confirm(ctx context.Context, orderID string, lines []inventory.Line) (inventory.Outcome, error) {
	return c.soft(ctx, inventory.OpConfirm, orderID, lines)
}

// Release returns reserved stock. Releasing an unknown or already released reservation succeeds.
func (c *Client) Release(ctx context.Context, orderID string, lines []inventory.Line) (inventory.Outcome, error) {
	return c.soft(ctx, inventory.OpRelease, orderID, lines)
}

func (c *Client) soft(ctx context.Context, op inventory.Operation, orderID string, lines []inventory.Line) (inventory.Outcome, error) {
	if len(lines) == 0 {
		return inventory.Outcome{}, nil
	}
	err := c.Apply(ctx, op, orderID, lines)
	if err == nil {
		return inventory.Outcome{}, nil
	}
	if !errors.Is(err, fault.ErrCollaboratorUnavailable) || c.publisher == nil {
		return inventory.Outcome{}, err
	}

	logger := logctx.FromOr(ctx, c.log)
	logger.Warn("inventory_call_queued",
		observability.F("operation", string(op)),
		observability.F("order_id", orderID),
		observability.F("error", err),
	)
	evt := inventory.NewRetryRequestedEvent(op, orderID, lines, err, c.now())
	if pubErr := c.publisher.Publish(context.WithoutCancel(ctx), evt); pubErr != nil {
		return inventory.Outcome{}, errors.Join(err, fmt.Errorf("queue %s retry: %w", op, pubErr))
	}
	return inventory.Outcome{Queued: true}, nil
}

// Apply performs op once through the breaker, choosing the batch endpoint for more than one line.
func (c *Client) Apply(ctx context.Context, op inventory.Operation, orderID string, lines []inventory.Line) error {
	path := "/api/inventory/" + string(op)
	endpoint := string(op)
	if len(lines) > 1 {
		path += "-batch"
		endpoint += "_batch"
	}

	_, err := breaker.Execute(c.cb, func() (struct{}, error) {
		var out response
		resp, err := c.http.PostJSON(ctx, endpoint, path, request{OrderID: orderID, Items: lines}, &out)
		if err != nil {
			return struct{}{}, err
		}
		if !resp.OK() {
			if resp.Status != http.StatusConflict && resp.Status != http.StatusUnprocessableEntity && resp.Status != http.StatusBadRequest {
				return struct{}{}, fault.Unavailable(peer, fmt.Errorf("%s: unexpected status %d", endpoint, resp.Status))
			}
			_ = httpclient.DecodeBody(resp, &out)
			return struct{}{}, c.rejection(op, out.reason())
		}
		if !out.Success {
			return struct{}{}, c.rejection(op, out.reason())
		}
		return struct{}{}, nil
	})
	return err
}

func (c *Client) rejection(op inventory.Operation, reason string) error {
	if op == inventory.OpReserve {
		return fmt.Errorf("%w: %w: %s", fault.ErrBusinessRejection, inventory.ErrInsufficientStock, reason)
	}
	return fault.Rejected(peer, fmt.Sprintf("%s: %s", op, reason))
}

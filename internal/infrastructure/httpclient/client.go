// Package httpclient is the JSON-over-HTTP transport shared by collaborator clients.
package httpclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"

	"github.com/Zhima-Mochi/minishop-fulfillment/internal/domain/fault"
	"github.com/Zhima-Mochi/minishop-fulfillment/internal/observability"
)

const maxErrorBody = 4 << 10

// Client sends JSON requests to one collaborator with a mandatory timeout.
type Client struct {
	peer    string
	baseURL string
	timeout time.Duration
	http    *http.Client
	headers http.Header

	extCounter   observability.Counter   // external_requests_total{peer,endpoint,outcome}
	extHistogram observability.Histogram // external_request_duration_seconds{peer,endpoint}
}

type Option func(*Client)

// WithHTTPClient replaces the underlying http.Client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

// WithHeader adds a header to every request.
func WithHeader(key, value string) Option {
	return func(c *Client) { c.headers.Set(key, value) }
}

func New(peer, baseURL string, timeout time.Duration, tel observability.Observability, opts ...Option) *Client {
	if tel == nil {
		tel = observability.Nop()
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	c := &Client{
		peer:         peer,
		baseURL:      strings.TrimRight(baseURL, "/"),
		timeout:      timeout,
		http:         &http.Client{},
		headers:      http.Header{},
		extCounter:   tel.Metrics().Counter(observability.MExternalRequests),
		extHistogram: tel.Metrics().Histogram(observability.MExternalRequestDuration),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Peer names the collaborator in metrics and errors.
func (c *Client) Peer() string { return c.peer }

// Response is a completed exchange. Body holds the raw payload for non-2xx statuses.
type Response struct {
	Status int
	Body   []byte
}

// OK reports a 2xx status.
func (r Response) OK() bool { return r.Status >= 200 && r.Status < 300 }

// Do sends in as JSON and decodes a 2xx body into out.
// Transport errors, timeouts and 5xx statuses are returned as fault.ErrCollaboratorUnavailable.
// 4xx statuses are returned in Response without an error.
func (c *Client) Do(ctx context.Context, method, endpoint, path string, in, out any) (resp Response, err error) {
	start := time.Now()
	outcome := "success"
	defer func() {
		if err != nil {
			outcome = "error"
		} else if !resp.OK() {
			outcome = "rejected"
		}
		c.extCounter.Add(1,
			observability.L("peer", c.peer),
			observability.L("endpoint", endpoint),
			observability.L("outcome", outcome),
		)
		c.extHistogram.Observe(time.Since(start).Seconds(),
			observability.L("peer", c.peer),
			observability.L("endpoint", endpoint),
		)
	}()

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var body io.Reader
	if in != nil {
		buf, mErr := json.Marshal(in)
		if mErr != nil {
			return Response{}, fmt.Errorf("%s %s: encode request: %w", c.peer, endpoint, mErr)
		}
		body = bytes.NewReader(buf)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return Response{}, fmt.Errorf("%s %s: build request: %w", c.peer, endpoint, err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("X-Request-ID", uuid.NewString())
	for k, vs := range c.headers {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))

	res, err := c.http.Do(req)
	if err != nil {
		return Response{}, fault.Unavailable(c.peer, fmt.Errorf("%s: %w", endpoint, err))
	}
	defer res.Body.Close()

	resp.Status = res.StatusCode
	switch {
	case res.StatusCode >= 500:
		raw, _ := io.ReadAll(io.LimitReader(res.Body, maxErrorBody))
		return resp, fault.Unavailable(c.peer, fmt.Errorf("%s: status %d: %s", endpoint, res.StatusCode, strings.TrimSpace(string(raw))))
	case res.StatusCode >= 300:
		resp.Body, _ = io.ReadAll(io.LimitReader(res.Body, maxErrorBody))
		return resp, nil
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, res.Body)
		return resp, nil
	}
	if err := json.NewDecoder(res.Body).Decode(out); err != nil && err != io.EOF {
		return resp, fault.Unavailable(c.peer, fmt.Errorf("%s: decode response: %w", endpoint, err))
	}
	return resp, nil
}

// PostJSON is Do with POST.
func (c *Client) PostJSON(ctx context.Context, endpoint, path string, in, out any) (Response, error) {
	return c.Do(ctx, http.MethodPost, endpoint, path, in, out)
}

// GetJSON is Do with GET and no body.
func (c *Client) GetJSON(ctx context.Context, endpoint, path string, out any) (Response, error) {
	return c.Do(ctx, http.MethodGet, endpoint, path, nil, out)
}

// DecodeBody unmarshals a non-2xx body captured in resp.
func DecodeBody(resp Response, out any) error {
	if len(resp.Body) == 0 {
		return io.EOF
	}
	return json.Unmarshal(resp.Body, out)
}

// Package conekta implements gateway.Charger on top of the Conekta orders API.
package conekta

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/xenking/parcel-checkout/internal/domain/gateway"
)

const (
	// Provider is the provider name reported in gateway errors.
	Provider = "conekta"

	// DefaultBaseURL is the production API endpoint.
	DefaultBaseURL = "https://api.conekta.io"

	acceptHeader   = "application/vnd.conekta-v2.1.0+json"
	maxBodySize    = 1 << 20
	defaultTimeout = 30 * time.Second
)

// Config configures the API client.
type Config struct {
	APIKey  string
	BaseURL string
	Timeout time.Duration
	// Locale selects the language of API error messages.
	Locale string
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the HTTP client. Its transport is used as is.
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) { cl.http = c }
}

// WithTracerProvider sets the tracer provider for client spans.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(cl *Client) { cl.tracerProvider = tp }
}

// Client creates orders with charges through the Conekta REST API.
type Client struct {
	http           *http.Client
	baseURL        string
	apiKey         string
	locale         string
	tracerProvider trace.TracerProvider
	tracer         trace.Tracer
}

var _ gateway.Charger = (*Client)(nil)

// New creates a Client.
func New(cfg Config, opts ...Option) *Client {
	c := &Client{
		baseURL:        strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:         cfg.APIKey,
		locale:         cfg.Locale,
		tracerProvider: otel.GetTracerProvider(),
	}
	if c.baseURL == "" {
		c.baseURL = DefaultBaseURL
	}
	if c.locale == "" {
		c.locale = "es"
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.http == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = defaultTimeout
		}
		c.http = &http.Client{
			Timeout: timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport,
				otelhttp.WithTracerProvider(c.tracerProvider),
			),
		}
	}
	c.tracer = c.tracerProvider.Tracer("github.com/xenking/parcel-checkout/internal/gateway/conekta")
	return c
}

// ChargeOrder creates an order with a single charge. Non-2xx responses and
// transport failures are returned as *gateway.Error.
func (c *Client) ChargeOrder(ctx context.Context, params gateway.OrderParams) (_ *gateway.Result, rerr error) {
	ctx, span := c.tracer.Start(ctx, "conekta.ChargeOrder",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("payment.method", string(params.PaymentMethod.Type)),
			attribute.Int("order.line_items", len(params.LineItems)),
		),
	)
	defer func() {
		if rerr != nil {
			span.RecordError(rerr)
			span.SetStatus(codes.Error, rerr.Error())
		}
		span.End()
	}()

	e := jx.GetEncoder()
	defer jx.PutEncoder(e)
	encodeOrder(e, params)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/orders", bytes.NewReader(e.Bytes()))
	if err != nil {
		return nil, errors.Wrap(err, "create request")
	}
	req.Header.Set("Accept", acceptHeader)
	req.Header.Set("Accept-Language", c.locale)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &gateway.Error{
			Provider: Provider,
			Type:     "connection_error",
			Message:  err.Error(),
		}
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, &gateway.Error{
			Provider: Provider,
			Status:   resp.StatusCode,
			Type:     "connection_error",
			Message:  errors.Wrap(err, "read response").Error(),
		}
	}
	span.SetAttributes(attribute.Int("http.response.status_code", resp.StatusCode))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		gerr := &gateway.Error{
			Provider: Provider,
			Status:   resp.StatusCode,
			Type:     "api_error",
			Payload:  body,
		}
		if apiErr, err := decodeError(jx.DecodeBytes(body)); err == nil {
			if apiErr.Type != "" {
				gerr.Type = apiErr.Type
			}
			gerr.Message = apiErr.Message
		}
		return nil, gerr
	}

	res, err := decodeOrder(jx.DecodeBytes(body))
	if err != nil {
		return nil, &gateway.Error{
			Provider: Provider,
			Status:   resp.StatusCode,
			Type:     "invalid_response",
			Message:  err.Error(),
			Payload:  body,
		}
	}
	span.SetAttributes(
		attribute.String("gateway.order_id", res.OrderID),
		attribute.String("gateway.charge_status", res.ChargeStatus),
	)
	return res, nil
}

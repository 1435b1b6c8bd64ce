package bbdc

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/JakeFAU/bbdc-slot-bot/internal/booking"
	"github.com/JakeFAU/bbdc-slot-bot/internal/metrics"
)

const tracerName = "github.com/JakeFAU/bbdc-slot-bot/internal/bbdc"

// Limiter throttles outbound requests per host.
type Limiter interface {
	Wait(ctx context.Context, rawURL string) error
}

// Options configures the HTTP side of the client.
type Options struct {
	BaseURL            string
	Timeout            time.Duration
	InsecureSkipVerify bool
	UserAgent          string
	MaxRetries         int
	BackoffInitial     time.Duration
	BackoffMax         time.Duration
}

// Client creates authenticated sessions against the booking site.
type Client struct {
	opts      Options
	limiter   Limiter
	retry     *RetryPolicy
	transport *http.Transport
	tracer    trace.Tracer
	logger    *zap.Logger
	apis      map[booking.SlotType]SlotAPI
}

// New builds a Client. limiter and archiver may be nil.
func New(opts Options, limiter Limiter, archiver *Archiver, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.TLSClientConfig = &tls.Config{
		MinVersion:         tls.VersionTLS12,
		InsecureSkipVerify: opts.InsecureSkipVerify, //nolint:gosec // the site's chain does not verify
	}
	c := &Client{
		opts:      opts,
		limiter:   limiter,
		retry:     NewRetryPolicy(opts.MaxRetries, opts.BackoffInitial, opts.BackoffMax),
		transport: transport,
		tracer:    otel.Tracer(tracerName),
		logger:    logger.Named("bbdc"),
	}
	practical := NewPracticalAPI(archiver, c.tracer, c.logger)
	c.apis = map[booking.SlotType]SlotAPI{practical.SlotType(): practical}
	return c
}

// API returns the endpoint set for a slot type.
func (c *Client) API(slotType booking.SlotType) (SlotAPI, error) {
	api, ok := c.apis[slotType]
	if !ok {
		return nil, fmt.Errorf("%w: %s", booking.ErrUnknownSlotType, slotType)
	}
	return api, nil
}

// newHTTP returns a resty client sharing the transport, rate limiter and retry policy.
func (c *Client) newHTTP() *resty.Client {
	rc := resty.NewWithClient(&http.Client{Transport: c.transport})
	rc.SetLogger(c.logger.Named("resty").Sugar())
	rc.SetBaseURL(c.opts.BaseURL).
		SetTimeout(c.opts.Timeout).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")
	if c.opts.UserAgent != "" {
		rc.SetHeader("User-Agent", c.opts.UserAgent)
	}
	c.retry.apply(rc)
	rc.OnBeforeRequest(c.beforeRequest)
	rc.OnAfterResponse(c.afterResponse)
	rc.OnError(c.onError)
	return rc
}

func (c *Client) beforeRequest(_ *resty.Client, req *resty.Request) error {
	if c.limiter == nil {
		return nil
	}
	if err := c.limiter.Wait(req.Context(), c.opts.BaseURL); err != nil {
		return fmt.Errorf("throttle %s: %w", req.URL, err)
	}
	return nil
}

func (c *Client) afterResponse(_ *resty.Client, resp *resty.Response) error {
	metrics.ObserveAPIRequest(resp.Request.URL, resp.StatusCode(), resp.Time())
	c.logger.Debug("api response",
		zap.String("endpoint", metrics.EndpointLabel(resp.Request.URL)),
		zap.Int("status", resp.StatusCode()),
		zap.Int("attempt", resp.Request.Attempt),
		zap.Duration("latency", resp.Time()),
	)
	return nil
}

func (c *Client) onError(req *resty.Request, err error) {
	metrics.ObserveAPIError(req.URL)
	c.logger.Warn("api request failed",
		zap.String("endpoint", metrics.EndpointLabel(req.URL)),
		zap.Int("attempts", req.Attempt),
		zap.Error(err),
	)
}

// apiResponse is the envelope every back-service endpoint returns.
type apiResponse[T any] struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Success bool   `json:"success"`
	Data    T      `json:"data"`
}

func decode[T any](resp *resty.Response) (apiResponse[T], error) {
	var out apiResponse[T]
	if err := json.Unmarshal(resp.Body(), &out); err != nil {
		return out, fmt.Errorf("%w: status %d: %w", ErrUnexpectedResponse, resp.StatusCode(), err)
	}
	return out, nil
}

func fail(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}

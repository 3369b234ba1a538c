package transport

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// maxReplyBytes is the largest reply accepted from the endpoint
const maxReplyBytes = 4 << 20

// HTTPClient posts each message as a query parameter and reads the plain
// text reply from the response body.
type HTTPClient struct {
	endpoint   *url.URL
	httpClient *http.Client
	logger     *slog.Logger
	tracer     trace.Tracer
	duration   metric.Float64Histogram
}

// NewHTTPClient creates a client for an http(s) endpoint
func NewHTTPClient(endpoint string, opts Options) (*HTTPClient, error) {
	if opts.Logger == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}
	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("invalid endpoint %q: %w", endpoint, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("endpoint %q is not http(s)", endpoint)
	}

	tracer := opts.Tracer
	if tracer == nil {
		tracer = otel.Tracer("assistchat/transport")
	}
	meter := opts.Meter
	if meter == nil {
		meter = otel.GetMeterProvider().Meter("assistchat/transport")
	}
	histogram, err := meter.Float64Histogram(
		"http.client.request.duration",
		metric.WithDescription("HTTP request duration in milliseconds"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create duration histogram: %w", err)
	}

	client := &HTTPClient{
		endpoint:   u,
		httpClient: &http.Client{Timeout: opts.Timeout},
		logger:     opts.Logger,
		tracer:     tracer,
		duration:   histogram,
	}

	opts.Logger.Info("created HTTP transport", "url", u.Redacted())
	return client, nil
}

// Send posts text to the endpoint and returns the response body
func (c *HTTPClient) Send(ctx context.Context, text string) (string, error) {
	ctx, span := c.tracer.Start(ctx, "chat.send",
		trace.WithAttributes(attribute.String("transport", "http")))
	defer span.End()

	start := time.Now()
	reply, err := c.send(ctx, text)
	c.duration.Record(ctx, float64(time.Since(start).Milliseconds()))

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", err
	}
	return reply, nil
}

func (c *HTTPClient) send(ctx context.Context, text string) (string, error) {
	u := *c.endpoint
	q := u.Query()
	q.Set("message", text)
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.String(), nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "text/plain, text/markdown, */*")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	// One byte past the limit tells a full reply from a cut one
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxReplyBytes+1))
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}
	tooLarge := len(body) > maxReplyBytes
	if tooLarge {
		body = body[:maxReplyBytes]
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}
	if tooLarge {
		return "", ErrReplyTooLarge
	}
	if !utf8.Valid(body) {
		return "", ErrMalformedReply
	}
	if len(body) == 0 {
		return "", ErrEmptyReply
	}

	return string(body), nil
}

// Close releases idle connections
func (c *HTTPClient) Close() error {
	c.httpClient.CloseIdleConnections()
	c.logger.Info("closed HTTP transport")
	return nil
}

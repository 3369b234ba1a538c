// Package transport carries chat messages to the assistant endpoint.
package transport

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

var (
	// ErrEmptyReply is returned when the endpoint answers with no content.
	ErrEmptyReply = errors.New("empty reply from assistant")
	// ErrMalformedReply is returned when the reply is not valid UTF-8 text.
	ErrMalformedReply = errors.New("malformed reply from assistant")
	// ErrReplyTooLarge is returned when the reply exceeds maxReplyBytes.
	ErrReplyTooLarge = fmt.Errorf("reply larger than %d bytes: %w", maxReplyBytes, ErrMalformedReply)
)

// StatusError reports a non-2xx response
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("API error: %d - %s", e.Code, e.Body)
}

// Sender sends one message and waits for the reply
type Sender interface {
	Send(ctx context.Context, text string) (string, error)
	Close() error
}

// Options are shared by all transports
type Options struct {
	Timeout time.Duration
	Logger  *slog.Logger
	Tracer  trace.Tracer
	Meter   metric.Meter
}

// New creates the transport matching the endpoint scheme
func New(endpoint string, opts Options) (Sender, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("invalid endpoint %q: %w", endpoint, err)
	}

	switch u.Scheme {
	case "http", "https":
		return NewHTTPClient(endpoint, opts)
	case "ws", "wss":
		return NewWebSocketClient(endpoint, opts)
	default:
		return nil, fmt.Errorf("unsupported endpoint scheme %q", u.Scheme)
	}
}

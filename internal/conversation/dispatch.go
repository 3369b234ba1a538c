package conversation

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// DefaultTimeout bounds a single remote call
const DefaultTimeout = 60 * time.Second

// Transport carries one message to the assistant and returns its reply
type Transport interface {
	Send(ctx context.Context, text string) (string, error)
}

// Exchange describes one finished remote call. It carries no message text.
type Exchange struct {
	SessionID string
	RequestID uint64
	Attempt   int
	OK        bool
	Error     string
	Duration  time.Duration
	Timestamp time.Time
}

// Recorder stores finished exchanges
type Recorder interface {
	Record(ctx context.Context, ex Exchange) error
}

// DispatcherOptions configures a Dispatcher
type DispatcherOptions struct {
	SessionID string
	Timeout   time.Duration
	Recorder  Recorder
	Meter     metric.Meter
	Logger    *slog.Logger
}

// Dispatcher runs Requests against a Transport and turns every result,
// including panics and timeouts, into an Outcome.
type Dispatcher struct {
	transport Transport
	sessionID string
	timeout   time.Duration
	recorder  Recorder
	logger    *slog.Logger
	exchanges metric.Int64Counter
}

// NewDispatcher creates a Dispatcher for the given transport
func NewDispatcher(transport Transport, opts DispatcherOptions) (*Dispatcher, error) {
	if transport == nil {
		return nil, fmt.Errorf("transport cannot be nil")
	}
	if opts.Logger == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	meter := opts.Meter
	if meter == nil {
		meter = otel.GetMeterProvider().Meter("assistchat")
	}
	counter, err := meter.Int64Counter(
		"chat.exchanges",
		metric.WithDescription("Remote chat calls by outcome"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create exchange counter: %w", err)
	}

	return &Dispatcher{
		transport: transport,
		sessionID: opts.SessionID,
		timeout:   opts.Timeout,
		recorder:  opts.Recorder,
		logger:    opts.Logger,
		exchanges: counter,
	}, nil
}

// Do performs the remote call for req. It blocks until the call finishes or
// the timeout expires and never returns an error of its own.
func (d *Dispatcher) Do(ctx context.Context, req Request) Outcome {
	start := time.Now()
	out := d.call(ctx, req)
	duration := time.Since(start)

	status := "success"
	errText := ""
	if !out.OK() {
		status = "failure"
		errText = out.Err.Error()
	}
	d.exchanges.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", status)))
	d.logger.Info("exchange finished",
		"request_id", req.ID,
		"attempt", req.Attempt,
		"outcome", status,
		"duration_ms", duration.Milliseconds())

	if d.recorder != nil {
		ex := Exchange{
			SessionID: d.sessionID,
			RequestID: req.ID,
			Attempt:   req.Attempt,
			OK:        out.OK(),
			Error:     errText,
			Duration:  duration,
			Timestamp: start,
		}
		if err := d.recorder.Record(ctx, ex); err != nil {
			d.logger.Warn("failed to record exchange", "request_id", req.ID, "error", err)
		}
	}
	return out
}

func (d *Dispatcher) call(ctx context.Context, req Request) (out Outcome) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("transport panicked", "request_id", req.ID, "panic", r)
			out = Outcome{Err: fmt.Errorf("transport panic: %v", r)}
		}
	}()

	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	reply, err := d.transport.Send(ctx, req.Text)
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			err = fmt.Errorf("request timed out after %s: %w", d.timeout, err)
		}
		return Outcome{Err: err}
	}
	return Outcome{Reply: reply}
}

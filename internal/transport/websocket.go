package transport

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// WebSocketClient sends each message as one text frame and reads the next
// text frame as the reply.
type WebSocketClient struct {
	url    string
	dialer *websocket.Dialer
	conn   *websocket.Conn
	logger *slog.Logger
	tracer trace.Tracer
	mu     sync.Mutex
	closed bool
}

// NewWebSocketClient creates a client for a ws(s) endpoint. The connection
// is dialed on first use.
func NewWebSocketClient(url string, opts Options) (*WebSocketClient, error) {
	if opts.Logger == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}
	tracer := opts.Tracer
	if tracer == nil {
		tracer = otel.Tracer("assistchat/transport")
	}

	dialer := *websocket.DefaultDialer
	if opts.Timeout > 0 {
		dialer.HandshakeTimeout = opts.Timeout
	}

	opts.Logger.Info("created WebSocket transport", "url", url)
	return &WebSocketClient{
		url:    url,
		dialer: &dialer,
		logger: opts.Logger,
		tracer: tracer,
	}, nil
}

// Send writes text and waits for the reply frame
func (c *WebSocketClient) Send(ctx context.Context, text string) (string, error) {
	ctx, span := c.tracer.Start(ctx, "chat.send",
		trace.WithAttributes(attribute.String("transport", "websocket")))
	defer span.End()

	reply, err := c.send(ctx, text)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", err
	}
	return reply, nil
}

func (c *WebSocketClient) send(ctx context.Context, text string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return "", fmt.Errorf("client is closed")
	}

	if c.conn == nil {
		conn, _, err := c.dialer.DialContext(ctx, c.url, nil)
		if err != nil {
			return "", fmt.Errorf("failed to connect to WebSocket: %w", err)
		}
		conn.SetReadLimit(maxReplyBytes)
		c.conn = conn
		c.logger.Info("connected WebSocket transport", "url", c.url)
	}

	conn := c.conn
	deadline, _ := ctx.Deadline()
	_ = conn.SetWriteDeadline(deadline)
	_ = conn.SetReadDeadline(deadline)

	// Unblock a pending read if the context is cancelled without a deadline.
	stop := context.AfterFunc(ctx, func() {
		_ = conn.SetReadDeadline(time.Now())
	})
	defer stop()

	if err := conn.WriteMessage(websocket.TextMessage, []byte(text)); err != nil {
		c.dropLocked()
		return "", fmt.Errorf("failed to write message: %w", err)
	}

	msgType, data, err := conn.ReadMessage()
	if err != nil {
		c.dropLocked()
		if errors.Is(err, websocket.ErrReadLimit) {
			return "", ErrReplyTooLarge
		}
		return "", fmt.Errorf("failed to read reply: %w", err)
	}
	if msgType != websocket.TextMessage || !utf8.Valid(data) {
		return "", ErrMalformedReply
	}
	if len(data) == 0 {
		return "", ErrEmptyReply
	}
	return string(data), nil
}

// dropLocked discards a broken connection so the next Send redials
func (c *WebSocketClient) dropLocked() {
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
}

// Close disconnects from the endpoint
func (c *WebSocketClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true

	if c.conn != nil {
		c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		c.conn.Close()
		c.conn = nil
	}

	c.logger.Info("closed WebSocket transport", "url", c.url)
	return nil
}

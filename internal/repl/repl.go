// Package repl is the line-mode chat loop used when the full-screen view is
// unavailable or not wanted.
package repl

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"AssistChat/internal/conversation"
	"AssistChat/internal/session"
)

// Dispatcher runs a request to completion
type Dispatcher interface {
	Do(ctx context.Context, req conversation.Request) conversation.Outcome
}

// REPL reads one message per line and prints the assistant's replies
type REPL struct {
	store      *conversation.Store
	dispatcher Dispatcher
	in         io.Reader
	out        io.Writer
	logger     *slog.Logger

	printed     int
	wasPending  bool
	unsubscribe func()
}

// New creates a REPL over store reading from in and writing to out
func New(store *conversation.Store, dispatcher Dispatcher, in io.Reader, out io.Writer, logger *slog.Logger) (*REPL, error) {
	if store == nil || dispatcher == nil {
		return nil, fmt.Errorf("store and dispatcher are required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}
	r := &REPL{
		store:      store,
		dispatcher: dispatcher,
		in:         in,
		out:        out,
		logger:     logger,
		printed:    store.Len(),
	}
	r.unsubscribe = store.Subscribe(r.render)
	return r, nil
}

// render prints transcript additions. User lines are already on screen.
func (r *REPL) render(state conversation.State) {
	for _, msg := range state.History[r.printed:] {
		if msg.Sender == session.SenderAssistant {
			fmt.Fprintf(r.out, "%s: %s\n\n", msg.Sender.DisplayName(), msg.Text)
		}
	}
	r.printed = len(state.History)

	if state.Pending && !r.wasPending {
		fmt.Fprintln(r.out, "Assistant is thinking...")
	}
	if state.LastError {
		fmt.Fprintln(r.out, "Something went wrong. Type /retry to try again.")
		fmt.Fprintln(r.out)
	}
	r.wasPending = state.Pending
}

// handleCommand runs a known slash command. It reports whether line was a
// command at all and whether the loop should end. Anything else that starts
// with "/" is an ordinary message.
func (r *REPL) handleCommand(ctx context.Context, line string) (handled, quit bool, err error) {
	parts := strings.Fields(line)
	if len(parts) != 1 {
		return false, false, nil
	}

	switch parts[0] {
	case "/quit", "/exit":
		return true, true, nil

	case "/retry":
		req, err := r.store.Retry()
		if errors.Is(err, conversation.ErrNothingToRetry) {
			fmt.Fprintln(r.out, "Nothing to retry.")
			return true, false, nil
		}
		if err != nil {
			return true, false, err
		}
		r.complete(ctx, req)
		return true, false, nil

	case "/help":
		fmt.Fprintln(r.out, "Available commands:")
		fmt.Fprintln(r.out, "  /retry        - Resend the last message that failed")
		fmt.Fprintln(r.out, "  /quit, /exit  - Exit")
		fmt.Fprintln(r.out, "  /help         - Show this help message")
		return true, false, nil
	}
	return false, false, nil
}

// complete runs req and applies its outcome. The loop reads no further input
// until the request resolves.
func (r *REPL) complete(ctx context.Context, req conversation.Request) {
	out := r.dispatcher.Do(ctx, req)
	if err := r.store.Resolve(req.ID, out); err != nil {
		r.logger.Error("failed to resolve request", "request_id", req.ID, "error", err)
	}
}

// readLines scans in on its own goroutine so that a blocked read never
// delays cancellation. The error channel is filled before lines is closed.
func (r *REPL) readLines(ctx context.Context) (<-chan string, <-chan error) {
	lines := make(chan string)
	errc := make(chan error, 1)

	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(r.in)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
		errc <- scanner.Err()
	}()
	return lines, errc
}

// Run reads lines until EOF, /quit or ctx is cancelled
func (r *REPL) Run(ctx context.Context) error {
	defer r.unsubscribe()

	fmt.Fprintln(r.out, "=== AssistChat ===")
	fmt.Fprintln(r.out, "Type /help for commands, /quit to exit")
	fmt.Fprintln(r.out)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	lines, errc := r.readLines(ctx)

	for {
		fmt.Fprint(r.out, "You: ")

		var input string
		select {
		case <-ctx.Done():
			fmt.Fprintln(r.out)
			fmt.Fprintln(r.out, "Goodbye!")
			return nil
		case line, ok := <-lines:
			if !ok {
				select {
				case err := <-errc:
					if err != nil {
						return fmt.Errorf("failed to read input: %w", err)
					}
				default:
				}
				fmt.Fprintln(r.out, "Goodbye!")
				return nil
			}
			input = line
		}

		trimmed := strings.TrimSpace(input)
		if trimmed == "" {
			continue
		}

		if strings.HasPrefix(trimmed, "/") {
			handled, quit, err := r.handleCommand(ctx, trimmed)
			if err != nil {
				fmt.Fprintf(r.out, "Error: %v\n", err)
				r.logger.Error("command error", "error", err)
			}
			if quit {
				fmt.Fprintln(r.out, "Goodbye!")
				return nil
			}
			if handled {
				continue
			}
		}

		req, err := r.store.Submit(input)
		if err != nil {
			r.logger.Debug("submission rejected", "error", err)
			continue
		}
		r.complete(ctx, req)
	}
}

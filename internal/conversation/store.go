// Package conversation owns the chat transcript and the lifecycle of the
// single outstanding request: submit, pending, resolve, retry.
package conversation

import (
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"AssistChat/internal/session"
)

var (
	// ErrEmptyInput is returned by Submit for blank or whitespace-only text.
	ErrEmptyInput = errors.New("empty input")
	// ErrPending is returned while a request is awaiting its reply.
	ErrPending = errors.New("a request is already pending")
	// ErrNothingToRetry is returned by Retry when the last request did not fail.
	ErrNothingToRetry = errors.New("nothing to retry")
	// ErrUnknownRequest is returned by Resolve for a request that is not in flight.
	ErrUnknownRequest = errors.New("unknown or already resolved request")
)

// Request is one remote call the caller must dispatch exactly once and then
// hand back to Resolve.
type Request struct {
	ID      uint64
	Text    string
	Attempt int
}

// Outcome is the result of a dispatched Request: a reply on success, or the
// reason it failed.
type Outcome struct {
	Reply string
	Err   error
}

// OK reports whether the outcome is a success
func (o Outcome) OK() bool {
	return o.Err == nil
}

// State is a point-in-time copy of the conversation
type State struct {
	History   []session.Message
	Pending   bool
	LastError bool
	Draft     string
}

// Store holds the transcript and request status for one chat session.
type Store struct {
	mu sync.Mutex

	history   []session.Message
	pending   bool
	lastError bool
	draft     string

	inflight   *Request
	failedText string
	attempt    int
	nextID     uint64

	subscribers map[int]func(State)
	nextSub     int

	logger *slog.Logger
	now    func() time.Time
}

// NewStore creates an empty conversation
func NewStore(logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		history:     []session.Message{},
		subscribers: make(map[int]func(State)),
		logger:      logger,
		now:         time.Now,
	}
}

// SetDraft replaces the text currently being composed
func (s *Store) SetDraft(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.draft = text
}

// Draft returns the text currently being composed
func (s *Store) Draft() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.draft
}

// Submit appends a user message and returns the Request that carries it.
// Blank text and submissions while a request is pending are rejected without
// touching any state.
func (s *Store) Submit(text string) (Request, error) {
	s.mu.Lock()
	if strings.TrimSpace(text) == "" {
		s.mu.Unlock()
		return Request{}, ErrEmptyInput
	}
	if s.pending {
		s.mu.Unlock()
		s.logger.Debug("submission ignored while pending")
		return Request{}, ErrPending
	}

	s.history = append(s.history, session.Message{
		Sender:    session.SenderUser,
		Text:      text,
		Timestamp: s.now(),
	})
	s.draft = ""
	s.lastError = false
	s.attempt = 1
	req := s.issueLocked(text)
	state := s.snapshotLocked()
	s.mu.Unlock()

	s.logger.Info("message submitted", "request_id", req.ID, "length", len(text))
	s.notify(state)
	return req, nil
}

// Retry re-issues the text of the most recent failed submission without
// appending another user message.
func (s *Store) Retry() (Request, error) {
	s.mu.Lock()
	if s.pending {
		s.mu.Unlock()
		return Request{}, ErrPending
	}
	if !s.lastError {
		s.mu.Unlock()
		return Request{}, ErrNothingToRetry
	}

	s.lastError = false
	s.attempt++
	req := s.issueLocked(s.failedText)
	state := s.snapshotLocked()
	s.mu.Unlock()

	s.logger.Info("retrying request", "request_id", req.ID, "attempt", req.Attempt)
	s.notify(state)
	return req, nil
}

// Resolve completes the in-flight request, appending exactly one assistant
// message: the reply on success or FallbackText on failure.
func (s *Store) Resolve(id uint64, out Outcome) error {
	s.mu.Lock()
	if s.inflight == nil || s.inflight.ID != id {
		s.mu.Unlock()
		s.logger.Warn("dropping resolution", "request_id", id)
		return ErrUnknownRequest
	}
	req := *s.inflight

	text := out.Reply
	if !out.OK() {
		text = session.FallbackText
		s.failedText = req.Text
	}
	s.history = append(s.history, session.Message{
		Sender:    session.SenderAssistant,
		Text:      text,
		Timestamp: s.now(),
	})
	s.pending = false
	s.lastError = !out.OK()
	s.inflight = nil
	state := s.snapshotLocked()
	s.mu.Unlock()

	if out.OK() {
		s.logger.Info("request resolved", "request_id", id, "reply_length", len(out.Reply))
	} else {
		s.logger.Warn("request failed", "request_id", id, "attempt", req.Attempt, "error", out.Err)
	}
	s.notify(state)
	return nil
}

// Snapshot returns a copy of the current state
func (s *Store) Snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// Len returns the number of messages in the transcript
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.history)
}

// Subscribe registers fn to be called after every transition. The returned
// function removes the subscription.
func (s *Store) Subscribe(fn func(State)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextSub
	s.nextSub++
	s.subscribers[id] = fn
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.subscribers, id)
	}
}

func (s *Store) issueLocked(text string) Request {
	s.nextID++
	req := Request{ID: s.nextID, Text: text, Attempt: s.attempt}
	s.inflight = &req
	s.pending = true
	return req
}

func (s *Store) snapshotLocked() State {
	history := make([]session.Message, len(s.history))
	copy(history, s.history)
	return State{
		History:   history,
		Pending:   s.pending,
		LastError: s.lastError,
		Draft:     s.draft,
	}
}

func (s *Store) notify(state State) {
	s.mu.Lock()
	subs := make([]func(State), 0, len(s.subscribers))
	for i := 0; i < s.nextSub; i++ {
		if fn, ok := s.subscribers[i]; ok {
			subs = append(subs, fn)
		}
	}
	s.mu.Unlock()

	for _, fn := range subs {
		fn(state)
	}
}

package session

import (
	"time"

	"github.com/google/uuid"
)

// FallbackText is the assistant message shown in place of a reply when a
// remote call fails.
const FallbackText = "Sorry, something went wrong."

// Sender identifies who authored a message
type Sender string

const (
	SenderUser      Sender = "user"
	SenderAssistant Sender = "assistant"
)

// DisplayName returns the label shown next to a message
func (s Sender) DisplayName() string {
	switch s {
	case SenderUser:
		return "You"
	case SenderAssistant:
		return "Assistant"
	default:
		return string(s)
	}
}

// Message represents a single transcript entry. Text is opaque: assistant
// text may carry markdown, which only the renderer interprets.
type Message struct {
	Sender    Sender    `json:"sender"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// Session identifies one chat view lifetime. It is never persisted.
type Session struct {
	ID        string    `json:"id"`
	StartTime time.Time `json:"start_time"`
	Endpoint  string    `json:"endpoint"`
}

// New creates a session with a random ID
func New(endpoint string) Session {
	return Session{
		ID:        uuid.NewString(),
		StartTime: time.Now(),
		Endpoint:  endpoint,
	}
}

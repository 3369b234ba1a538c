package tui

import (
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"

	"AssistChat/internal/session"
)

const (
	welcomeTitle = "Welcome to AssistChat!"
	welcomeHint  = "Start a conversation by typing a message below."
)

// Renderer turns a transcript into terminal text. Both senders' text goes
// through glamour.
type Renderer struct {
	style    string
	width    int
	markdown *glamour.TermRenderer
}

// NewRenderer creates a renderer wrapping at width columns. style is a
// glamour style name ("auto", "dark", "light", "notty", ...) or a path to
// a style file.
func NewRenderer(style string, width int) *Renderer {
	r := &Renderer{style: style}
	r.SetWidth(width)
	return r
}

// SetWidth rebuilds the markdown renderer for a new wrap width
func (r *Renderer) SetWidth(width int) {
	if width < 20 {
		width = 20
	}
	if width == r.width && r.markdown != nil {
		return
	}
	r.width = width

	styleOpt := glamour.WithStylePath(r.style)
	if r.style == "" || r.style == "auto" {
		styleOpt = glamour.WithAutoStyle()
	}
	md, err := glamour.NewTermRenderer(styleOpt, glamour.WithWordWrap(width))
	if err != nil {
		// Fall back to plain text
		md = nil
	}
	r.markdown = md
}

// Markdown renders message text. The raw text is returned if rendering fails.
func (r *Renderer) Markdown(text string) string {
	if r.markdown == nil {
		return text
	}
	out, err := r.markdown.Render(text)
	if err != nil {
		return text
	}
	return strings.Trim(out, "\n")
}

// Transcript renders the whole history, or the welcome text if it is empty
func (r *Renderer) Transcript(history []session.Message) string {
	if len(history) == 0 {
		return welcomeStyle.Width(r.width).Render(welcomeTitle + "\n\n" + welcomeHint)
	}

	var b strings.Builder
	for i, msg := range history {
		if i > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(r.message(msg))
	}
	return b.String()
}

func (r *Renderer) message(msg session.Message) string {
	label := userLabelStyle
	if msg.Sender == session.SenderAssistant {
		label = assistantLabelStyle
	}
	return lipgloss.JoinVertical(lipgloss.Left,
		label.Render(msg.Sender.DisplayName()),
		r.Markdown(msg.Text))
}

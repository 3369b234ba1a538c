// Package tui is the full-screen chat view. It renders the conversation
// store and reports scrolling to the viewport follower.
package tui

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"AssistChat/internal/conversation"
	"AssistChat/internal/follow"
)

const (
	thinkingText    = "Assistant is thinking..."
	errorBannerText = "Something went wrong. Please try again."
	helpText        = "enter send • ctrl+r retry • pgup/pgdn scroll • esc quit"

	// title, status, input and help lines
	chromeHeight = 4
)

// resolvedMsg carries a finished remote call back into the update loop
type resolvedMsg struct {
	id  uint64
	out conversation.Outcome
}

// Dispatcher runs a request to completion
type Dispatcher interface {
	Do(ctx context.Context, req conversation.Request) conversation.Outcome
}

// Options configures the chat view
type Options struct {
	Title           string
	FollowThreshold int
	GlamourStyle    string
	WordWrap        int
	Logger          *slog.Logger
}

type keyMap struct {
	Submit key.Binding
	Retry  key.Binding
	Quit   key.Binding
	Top    key.Binding
	Bottom key.Binding
}

var keys = keyMap{
	Submit: key.NewBinding(key.WithKeys("enter")),
	Retry:  key.NewBinding(key.WithKeys("ctrl+r")),
	Quit:   key.NewBinding(key.WithKeys("ctrl+c", "esc")),
	Top:    key.NewBinding(key.WithKeys("home")),
	Bottom: key.NewBinding(key.WithKeys("end")),
}

// scrollKeys leaves letters to the input field
var scrollKeys = viewport.KeyMap{
	PageDown:     key.NewBinding(key.WithKeys("pgdown")),
	PageUp:       key.NewBinding(key.WithKeys("pgup")),
	HalfPageUp:   key.NewBinding(key.WithKeys("ctrl+u")),
	HalfPageDown: key.NewBinding(key.WithKeys("ctrl+d")),
	Up:           key.NewBinding(key.WithKeys("up")),
	Down:         key.NewBinding(key.WithKeys("down")),
}

// Model is the Bubble Tea model for the chat view
type Model struct {
	ctx        context.Context
	store      *conversation.Store
	dispatcher Dispatcher
	follower   *follow.Follower
	renderer   *Renderer
	logger     *slog.Logger

	title    string
	wordWrap int

	viewport viewport.Model
	input    textinput.Model
	spinner  spinner.Model

	width  int
	height int
}

// NewModel creates the chat view over store. Requests are run by dispatcher
// under ctx.
func NewModel(ctx context.Context, store *conversation.Store, dispatcher Dispatcher, opts Options) (Model, error) {
	if store == nil || dispatcher == nil {
		return Model{}, fmt.Errorf("store and dispatcher are required")
	}
	if opts.Logger == nil {
		return Model{}, fmt.Errorf("logger cannot be nil")
	}
	if opts.Title == "" {
		opts.Title = "AssistChat"
	}
	if opts.WordWrap <= 0 {
		opts.WordWrap = 80
	}

	in := textinput.New()
	in.Placeholder = "Type your message..."
	in.Prompt = "> "
	in.Focus()

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = thinkingStyle

	vp := viewport.New(80, 20)
	vp.KeyMap = scrollKeys

	m := Model{
		ctx:        ctx,
		store:      store,
		dispatcher: dispatcher,
		follower:   follow.New(opts.FollowThreshold),
		renderer:   NewRenderer(opts.GlamourStyle, opts.WordWrap),
		logger:     opts.Logger,
		title:      opts.Title,
		wordWrap:   opts.WordWrap,
		viewport:   vp,
		input:      in,
		spinner:    sp,
		width:      80,
		height:     20 + chromeHeight,
	}
	m.refresh(store.Len())
	return m, nil
}

func (m Model) Init() tea.Cmd {
	return textinput.Blink
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.resize(msg.Width, msg.Height)
		return m, nil

	case resolvedMsg:
		before := m.store.Len()
		if err := m.store.Resolve(msg.id, msg.out); err != nil {
			return m, nil
		}
		m.refresh(before)
		m.input.Focus()
		return m, textinput.Blink

	case spinner.TickMsg:
		if !m.store.Snapshot().Pending {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case tea.MouseMsg:
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		m.follower.OnScroll(m.metrics())
		return m, cmd

	case tea.KeyMsg:
		return m.updateKey(msg)
	}
	return m, nil
}

func (m Model) updateKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, keys.Quit):
		return m, tea.Quit

	case key.Matches(msg, keys.Submit):
		return m.submit()

	case key.Matches(msg, keys.Retry):
		return m.retry()

	case key.Matches(msg, keys.Top):
		m.viewport.GotoTop()
		m.follower.OnScroll(m.metrics())
		return m, nil

	case key.Matches(msg, keys.Bottom):
		m.viewport.GotoBottom()
		m.follower.OnScroll(m.metrics())
		return m, nil

	case key.Matches(msg, scrollKeys.PageUp, scrollKeys.PageDown,
		scrollKeys.HalfPageUp, scrollKeys.HalfPageDown, scrollKeys.Up, scrollKeys.Down):
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		m.follower.OnScroll(m.metrics())
		return m, cmd
	}

	// Input is disabled while a reply is pending
	if m.store.Snapshot().Pending {
		return m, nil
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	m.store.SetDraft(m.input.Value())
	return m, cmd
}

func (m Model) submit() (tea.Model, tea.Cmd) {
	text := m.input.Value()
	if strings.TrimSpace(text) == "" || m.store.Snapshot().Pending {
		return m, nil
	}

	m.follower.ForceBottom()
	before := m.store.Len()
	req, err := m.store.Submit(text)
	if err != nil {
		m.logger.Debug("submission rejected", "error", err)
		return m, nil
	}
	m.input.Reset()
	m.input.Blur()
	m.refresh(before)
	return m, tea.Batch(m.dispatch(req), m.spinner.Tick)
}

func (m Model) retry() (tea.Model, tea.Cmd) {
	req, err := m.store.Retry()
	if err != nil {
		if !errors.Is(err, conversation.ErrNothingToRetry) {
			m.logger.Debug("retry rejected", "error", err)
		}
		return m, nil
	}
	m.input.Blur()
	return m, tea.Batch(m.dispatch(req), m.spinner.Tick)
}

func (m Model) dispatch(req conversation.Request) tea.Cmd {
	ctx, d := m.ctx, m.dispatcher
	return func() tea.Msg {
		return resolvedMsg{id: req.ID, out: d.Do(ctx, req)}
	}
}

func (m *Model) resize(width, height int) {
	m.width = width
	m.height = height
	m.viewport.Width = width
	m.viewport.Height = max(1, height-chromeHeight)
	m.input.Width = max(10, width-len(m.input.Prompt)-1)
	m.renderer.SetWidth(min(width-2, m.wordWrap))

	atBottom := m.follower.AtBottom()
	m.viewport.SetContent(m.renderer.Transcript(m.store.Snapshot().History))
	if atBottom {
		m.viewport.GotoBottom()
	}
}

// refresh re-renders the transcript after it grew from before messages and
// lets the follower decide whether to jump to the newest one.
func (m *Model) refresh(before int) {
	history := m.store.Snapshot().History
	m.viewport.SetContent(m.renderer.Transcript(history))
	if offset, moved := m.follower.AfterAppend(before, len(history), m.metrics()); moved {
		m.viewport.SetYOffset(offset)
	}
}

func (m Model) metrics() follow.Metrics {
	return follow.Metrics{
		ScrollHeight: m.viewport.TotalLineCount(),
		ScrollTop:    m.viewport.YOffset,
		ClientHeight: m.viewport.Height,
	}
}

func (m Model) View() string {
	state := m.store.Snapshot()

	var b strings.Builder
	b.WriteString(titleStyle.Width(m.width).Render(m.title))
	b.WriteString("\n")
	b.WriteString(m.viewport.View())
	b.WriteString("\n")

	switch {
	case state.Pending:
		b.WriteString(m.spinner.View() + thinkingStyle.Render(thinkingText))
	case state.LastError:
		b.WriteString(errorBannerStyle.Render(errorBannerText) + dimStyle.Render("  (ctrl+r to retry)"))
	default:
		if !m.follower.AtBottom() {
			b.WriteString(dimStyle.Render("↓ more below (end to follow)"))
		}
	}
	b.WriteString("\n")
	b.WriteString(m.input.View())
	b.WriteString("\n")
	b.WriteString(dimStyle.Render(helpText))
	return b.String()
}

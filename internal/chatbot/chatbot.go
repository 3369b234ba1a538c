package chatbot

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/mattn/go-isatty"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"AssistChat/internal/config"
	"AssistChat/internal/conversation"
	"AssistChat/internal/repl"
	"AssistChat/internal/session"
	"AssistChat/internal/telemetry"
	"AssistChat/internal/transport"
	"AssistChat/internal/tui"
)

// ChatBot wires the conversation store to a transport and a front end
type ChatBot struct {
	config     *config.Config
	version    string
	session    session.Session
	logger     *slog.Logger
	logFile    io.Closer
	tracer     trace.Tracer
	meter      metric.Meter
	cleanup    func()
	journal    *telemetry.Journal
	sender     transport.Sender
	store      *conversation.Store
	dispatcher *conversation.Dispatcher
}

// NewChatBot creates a ChatBot from a validated config
func NewChatBot(ctx context.Context, cfg *config.Config, version string) (*ChatBot, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	logger, logFile, err := telemetry.InitLogger(cfg.LogDir, cfg.Debug)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	cb := &ChatBot{
		config:  cfg,
		version: version,
		session: session.New(cfg.Endpoint),
		logger:  logger,
		logFile: logFile,
		cleanup: func() {},
	}
	if cfg.Debug {
		logger.Info("Debug mode enabled")
	}

	if cfg.Telemetry {
		tracer, meter, cleanup, err := telemetry.InitTelemetry(ctx, cfg.LogDir, version)
		if err != nil {
			cb.Close()
			return nil, fmt.Errorf("failed to initialize telemetry: %w", err)
		}
		cb.tracer, cb.meter, cb.cleanup = tracer, meter, cleanup
	}

	var recorder conversation.Recorder
	if cfg.Journal {
		journal, err := telemetry.OpenJournal(cfg.DBPath, logger)
		if err != nil {
			logger.Warn("failed to open exchange journal, continuing without it", "error", err)
		} else {
			cb.journal = journal
			recorder = journal
		}
	}

	sender, err := transport.New(cfg.Endpoint, transport.Options{
		Timeout: cfg.Timeout(),
		Logger:  logger,
		Tracer:  cb.tracer,
		Meter:   cb.meter,
	})
	if err != nil {
		cb.Close()
		return nil, fmt.Errorf("failed to create transport: %w", err)
	}
	cb.sender = sender

	cb.store = conversation.NewStore(logger)
	cb.dispatcher, err = conversation.NewDispatcher(sender, conversation.DispatcherOptions{
		SessionID: cb.session.ID,
		Timeout:   cfg.Timeout(),
		Recorder:  recorder,
		Meter:     cb.meter,
		Logger:    logger,
	})
	if err != nil {
		cb.Close()
		return nil, fmt.Errorf("failed to create dispatcher: %w", err)
	}

	logger.Info("created new session", "session_id", cb.session.ID, "endpoint", cfg.Endpoint)
	return cb, nil
}

// Run starts the chat front end and blocks until the user quits
func (cb *ChatBot) Run(ctx context.Context) error {
	defer cb.Close()

	if cb.config.Plain || !isatty.IsTerminal(os.Stdout.Fd()) {
		r, err := repl.New(cb.store, cb.dispatcher, os.Stdin, os.Stdout, cb.logger)
		if err != nil {
			return err
		}
		return r.Run(ctx)
	}

	m, err := tui.NewModel(ctx, cb.store, cb.dispatcher, tui.Options{
		Title:           "AssistChat",
		FollowThreshold: cb.config.FollowThreshold,
		GlamourStyle:    cb.config.GlamourStyle,
		WordWrap:        cb.config.WordWrap,
		Logger:          cb.logger,
	})
	if err != nil {
		return err
	}

	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithMouseCellMotion(), tea.WithContext(ctx))
	if _, err := p.Run(); err != nil && ctx.Err() == nil {
		return fmt.Errorf("chat view failed: %w", err)
	}
	return nil
}

// Close releases every resource the ChatBot opened. It is safe to call twice.
func (cb *ChatBot) Close() {
	if cb.journal != nil {
		messages := 0
		if cb.store != nil {
			messages = cb.store.Len()
		}
		summary, err := cb.journal.Summarize(context.Background(), cb.session.ID)
		if err == nil {
			cb.logger.Info("session finished",
				"session_id", cb.session.ID,
				"messages", messages,
				"exchanges", summary.Total,
				"failures", summary.Failures,
				"retries", summary.Retries,
				"slowest_ms", summary.Slowest.Milliseconds())
		}
		if err := cb.journal.Close(); err != nil {
			cb.logger.Error("failed to close journal", "error", err)
		}
		cb.journal = nil
	}
	if cb.sender != nil {
		if err := cb.sender.Close(); err != nil {
			cb.logger.Error("failed to close transport", "error", err)
		}
		cb.sender = nil
	}
	if cb.cleanup != nil {
		cb.cleanup()
		cb.cleanup = nil
	}
	if cb.logFile != nil {
		cb.logFile.Close()
		cb.logFile = nil
	}
}

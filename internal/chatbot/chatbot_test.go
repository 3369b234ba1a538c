package chatbot

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"AssistChat/internal/config"
	"AssistChat/internal/session"
)

func testConfig(t *testing.T, endpoint string) *config.Config {
	t.Helper()
	dir := t.TempDir()
	cfg := config.Default()
	cfg.Endpoint = endpoint
	cfg.LogDir = filepath.Join(dir, "logs")
	cfg.DBPath = filepath.Join(dir, "assistchat.db")
	return cfg
}

func TestNewChatBot_ExchangeAndClose(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, "re: "+r.URL.Query().Get("message"))
	}))
	defer srv.Close()

	cfg := testConfig(t, srv.URL+"/chat/send")
	cb, err := NewChatBot(context.Background(), cfg, "test")
	require.NoError(t, err)
	require.NotNil(t, cb.journal)
	require.NotNil(t, cb.sender)

	req, err := cb.store.Submit("hello")
	require.NoError(t, err)
	out := cb.dispatcher.Do(context.Background(), req)
	require.NoError(t, cb.store.Resolve(req.ID, out))

	history := cb.store.Snapshot().History
	require.Len(t, history, 2)
	assert.Equal(t, session.SenderAssistant, history[1].Sender)
	assert.Equal(t, "re: hello", history[1].Text)

	summary, err := cb.journal.Summarize(context.Background(), cb.session.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Total)
	assert.Zero(t, summary.Failures)

	cb.Close()
	assert.Nil(t, cb.journal)
	assert.Nil(t, cb.sender)
	assert.Nil(t, cb.logFile)

	// second call is a no-op
	cb.Close()

	_, err = os.Stat(filepath.Join(cfg.LogDir, "assistchat.log"))
	assert.NoError(t, err)
}

func TestNewChatBot_ContinuesWithoutJournal(t *testing.T) {
	cfg := testConfig(t, "http://localhost:8080/chat/send")
	cfg.DBPath = filepath.Join(t.TempDir(), "missing", "dir", "assistchat.db")

	cb, err := NewChatBot(context.Background(), cfg, "test")
	require.NoError(t, err)
	defer cb.Close()

	assert.Nil(t, cb.journal)
	assert.NotNil(t, cb.dispatcher)
}

func TestNewChatBot_JournalDisabled(t *testing.T) {
	cfg := testConfig(t, "ws://localhost:8080/chat")
	cfg.Journal = false

	cb, err := NewChatBot(context.Background(), cfg, "test")
	require.NoError(t, err)
	defer cb.Close()

	assert.Nil(t, cb.journal)
	_, err = os.Stat(cfg.DBPath)
	assert.True(t, os.IsNotExist(err))
}

func TestNewChatBot_InvalidConfig(t *testing.T) {
	cfg := testConfig(t, "ftp://localhost/chat")

	_, err := NewChatBot(context.Background(), cfg, "test")
	require.ErrorContains(t, err, "invalid configuration")
}

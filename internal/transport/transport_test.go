package transport

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testOptions() Options {
	return Options{
		Timeout: 5 * time.Second,
		Logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

func TestNew_PicksTransportByScheme(t *testing.T) {
	s, err := New("http://localhost:8080/chat/send", testOptions())
	require.NoError(t, err)
	assert.IsType(t, &HTTPClient{}, s)

	s, err = New("wss://example.com/chat", testOptions())
	require.NoError(t, err)
	assert.IsType(t, &WebSocketClient{}, s)

	_, err = New("ftp://example.com", testOptions())
	require.Error(t, err)
}

func TestNewHTTPClient_RequiresLogger(t *testing.T) {
	_, err := NewHTTPClient("http://localhost:8080", Options{})
	require.Error(t, err)
}

func TestHTTPClient_SendsMessageAsQueryParameter(t *testing.T) {
	var gotMethod, gotMessage string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotMessage = r.URL.Query().Get("message")
		assert.Equal(t, "/chat/send", r.URL.Path)
		w.Header().Set("Content-Type", "text/plain")
		io.WriteString(w, "| Date | Status |\n|---|---|\n| May 31 | ok |")
	}))
	defer srv.Close()

	c, err := NewHTTPClient(srv.URL+"/chat/send", testOptions())
	require.NoError(t, err)
	defer c.Close()

	reply, err := c.Send(context.Background(), "list my pipelines & issues?")
	require.NoError(t, err)
	assert.Equal(t, http.MethodPost, gotMethod)
	assert.Equal(t, "list my pipelines & issues?", gotMessage)
	assert.True(t, strings.HasPrefix(reply, "| Date | Status |"))
}

func TestHTTPClient_KeepsExistingQuery(t *testing.T) {
	var gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		io.WriteString(w, "ok")
	}))
	defer srv.Close()

	c, err := NewHTTPClient(srv.URL+"/chat/send?agent=gitlab", testOptions())
	require.NoError(t, err)
	defer c.Close()

	_, err = c.Send(context.Background(), "hi")
	require.NoError(t, err)
	assert.Contains(t, gotQuery, "agent=gitlab")
	assert.Contains(t, gotQuery, "message=hi")
}

func TestHTTPClient_Failures(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
		check   func(t *testing.T, err error)
	}{
		{
			name: "server error",
			handler: func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "agent crashed", http.StatusInternalServerError)
			},
			check: func(t *testing.T, err error) {
				var se *StatusError
				require.ErrorAs(t, err, &se)
				assert.Equal(t, http.StatusInternalServerError, se.Code)
				assert.Equal(t, "agent crashed", se.Body)
			},
		},
		{
			name: "not found",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusNotFound)
			},
			check: func(t *testing.T, err error) {
				var se *StatusError
				require.ErrorAs(t, err, &se)
				assert.Equal(t, http.StatusNotFound, se.Code)
			},
		},
		{
			name: "empty body",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusOK)
			},
			check: func(t *testing.T, err error) {
				require.ErrorIs(t, err, ErrEmptyReply)
			},
		},
		{
			name: "reply over the size limit",
			handler: func(w http.ResponseWriter, r *http.Request) {
				io.WriteString(w, strings.Repeat("a", maxReplyBytes+100))
			},
			check: func(t *testing.T, err error) {
				require.ErrorIs(t, err, ErrReplyTooLarge)
				require.ErrorIs(t, err, ErrMalformedReply)
			},
		},
		{
			name: "invalid utf-8",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte{0xff, 0xfe, 0xfd})
			},
			check: func(t *testing.T, err error) {
				require.ErrorIs(t, err, ErrMalformedReply)
			},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(tc.handler)
			defer srv.Close()

			c, err := NewHTTPClient(srv.URL, testOptions())
			require.NoError(t, err)
			defer c.Close()

			_, err = c.Send(context.Background(), "hello")
			require.Error(t, err)
			tc.check(t, err)
		})
	}
}

func TestHTTPClient_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c, err := NewHTTPClient(url, testOptions())
	require.NoError(t, err)

	_, err = c.Send(context.Background(), "hello")
	require.Error(t, err)
}

func TestHTTPClient_HonoursContext(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	c, err := NewHTTPClient(srv.URL, testOptions())
	require.NoError(t, err)
	defer c.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err = c.Send(ctx, "hello")
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func newWebSocketServer(t *testing.T, handle func(conn *websocket.Conn)) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		handle(conn)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestWebSocketClient_RoundTrip(t *testing.T) {
	srv := newWebSocketServer(t, func(conn *websocket.Conn) {
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			conn.WriteMessage(websocket.TextMessage, []byte("re: "+string(data)))
		}
	})

	c, err := NewWebSocketClient(wsURL(srv), testOptions())
	require.NoError(t, err)
	defer c.Close()

	for _, msg := range []string{"one", "two"} {
		reply, err := c.Send(context.Background(), msg)
		require.NoError(t, err)
		assert.Equal(t, "re: "+msg, reply)
	}
}

func TestWebSocketClient_RedialsAfterBrokenConnection(t *testing.T) {
	var conns int32
	srv := newWebSocketServer(t, func(conn *websocket.Conn) {
		n := atomic.AddInt32(&conns, 1)
		_, data, err := conn.ReadMessage()
		if err != nil || n == 1 {
			// First connection hangs up without answering
			return
		}
		conn.WriteMessage(websocket.TextMessage, []byte("re: "+string(data)))
	})

	c, err := NewWebSocketClient(wsURL(srv), testOptions())
	require.NoError(t, err)
	defer c.Close()

	_, err = c.Send(context.Background(), "lost")
	require.Error(t, err)

	reply, err := c.Send(context.Background(), "again")
	require.NoError(t, err)
	assert.Equal(t, "re: again", reply)
	assert.Equal(t, int32(2), atomic.LoadInt32(&conns))
}

func TestWebSocketClient_BinaryReplyIsMalformed(t *testing.T) {
	srv := newWebSocketServer(t, func(conn *websocket.Conn) {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
		conn.WriteMessage(websocket.BinaryMessage, []byte{0x01})
		conn.ReadMessage()
	})

	c, err := NewWebSocketClient(wsURL(srv), testOptions())
	require.NoError(t, err)
	defer c.Close()

	_, err = c.Send(context.Background(), "hello")
	require.ErrorIs(t, err, ErrMalformedReply)
}

func TestWebSocketClient_ReplyOverSizeLimit(t *testing.T) {
	srv := newWebSocketServer(t, func(conn *websocket.Conn) {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
		conn.WriteMessage(websocket.TextMessage, []byte(strings.Repeat("a", maxReplyBytes+1)))
	})

	c, err := NewWebSocketClient(wsURL(srv), testOptions())
	require.NoError(t, err)
	defer c.Close()

	_, err = c.Send(context.Background(), "hello")
	require.ErrorIs(t, err, ErrReplyTooLarge)
}

func TestWebSocketClient_ClosedClient(t *testing.T) {
	c, err := NewWebSocketClient("ws://127.0.0.1:1/chat", testOptions())
	require.NoError(t, err)
	require.NoError(t, c.Close())
	require.NoError(t, c.Close())

	_, err = c.Send(context.Background(), "hello")
	require.Error(t, err)
}

package relay

import (
	"context"
	"flag"
	"io"
	"log/slog"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/grafana/dskit/services"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingController struct {
	mu       sync.Mutex
	commands []string
}

func (c *recordingController) Control(_ context.Context, command string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.commands = append(c.commands, command)

	switch command {
	case "play", "pause", "resume":
		return nil
	default:
		return errors.New("unknown command")
	}
}

func (c *recordingController) seen() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.commands...)
}

func newTestRelay(t *testing.T) (*Relay, *recordingController, string) {
	t.Helper()

	cfg := Config{}
	cfg.RegisterFlagsAndApplyDefaults("relay", flag.NewFlagSet("test", flag.PanicOnError))

	ctrl := &recordingController{}
	r, err := New(cfg, ctrl, *slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)

	router := mux.NewRouter()
	r.RegisterHandlers(router)
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)

	require.NoError(t, services.StartAndAwaitRunning(context.Background(), r))
	t.Cleanup(func() {
		_ = services.StopAndAwaitTerminated(context.Background(), r)
	})

	return r, ctrl, "ws" + strings.TrimPrefix(srv.URL, "http") + "/live"
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func send(t *testing.T, conn *websocket.Conn, env envelope) {
	t.Helper()
	require.NoError(t, conn.WriteJSON(env))
}

func receive(t *testing.T, conn *websocket.Conn) envelope {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var env envelope
	require.NoError(t, conn.ReadJSON(&env))
	return env
}

// silent asserts that nothing arrives on conn for a short while.
func silent(t *testing.T, conn *websocket.Conn) {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(100*time.Millisecond)))
	var env envelope
	err := conn.ReadJSON(&env)
	require.Error(t, err, "unexpected message %+v", env)
}

func TestRelayHeaderAndPackets(t *testing.T) {
	_, _, url := newTestRelay(t)

	host := dial(t, url)
	listener := dial(t, url)

	send(t, host, envelope{Event: "stream", Data: []byte("too early")})
	send(t, host, envelope{Event: "bufferHeader", Data: []byte("hdr")})
	send(t, host, envelope{Event: "stream", Data: []byte("pkt1")})

	assert.Equal(t, envelope{Event: "bufferHeader", Data: []byte("hdr")}, receive(t, listener))
	assert.Equal(t, envelope{Event: "stream", Data: []byte("pkt1")}, receive(t, listener))

	late := dial(t, url)
	send(t, host, envelope{Event: "stream", Data: []byte("pkt2")})

	assert.Equal(t, envelope{Event: "bufferHeader", Data: []byte("hdr")}, receive(t, late))
	assert.Equal(t, envelope{Event: "stream", Data: []byte("pkt2")}, receive(t, late))
	assert.Equal(t, envelope{Event: "stream", Data: []byte("pkt2")}, receive(t, listener))

	silent(t, host)
}

func TestRelayEmptyHeaderKeepsRelaying(t *testing.T) {
	_, _, url := newTestRelay(t)

	host := dial(t, url)
	listener := dial(t, url)

	send(t, host, envelope{Event: "bufferHeader", Data: []byte("hdr")})
	send(t, host, envelope{Event: "bufferHeader"})
	send(t, host, envelope{Event: "stream", Data: []byte("pkt")})

	assert.Equal(t, envelope{Event: "bufferHeader", Data: []byte("hdr")}, receive(t, listener))
	assert.Equal(t, "bufferHeader", receive(t, listener).Event)
	assert.Equal(t, envelope{Event: "stream", Data: []byte("pkt")}, receive(t, listener))

	late := dial(t, url)
	assert.Equal(t, "bufferHeader", receive(t, late).Event)
}

func TestRelayControl(t *testing.T) {
	r, ctrl, url := newTestRelay(t)

	host := dial(t, url)
	listener := dial(t, url)

	send(t, host, envelope{Event: "control", Command: "pause"})
	send(t, host, envelope{Event: "control", Command: "rewind"})
	send(t, host, envelope{Event: "unknown"})
	send(t, host, envelope{Event: "control", Command: "resume"})

	require.Eventually(t, func() bool {
		return len(ctrl.seen()) == 3
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, []string{"pause", "rewind", "resume"}, ctrl.seen())

	// unknown commands leave the connection usable
	send(t, host, envelope{Event: "bufferHeader", Data: []byte("hdr")})
	assert.Equal(t, "bufferHeader", receive(t, listener).Event)

	assert.Equal(t, 2, r.Feed().Len())
}

func TestRelayPeerLeaves(t *testing.T) {
	r, _, url := newTestRelay(t)

	conn := dial(t, url)
	require.Equal(t, 1, r.Feed().Len())
	require.NoError(t, conn.Close())

	require.Eventually(t, func() bool {
		return r.Feed().Len() == 0
	}, 2*time.Second, 10*time.Millisecond)
}

func TestRelayStopClosesPeers(t *testing.T) {
	r, _, url := newTestRelay(t)
	conn := dial(t, url)

	require.NoError(t, services.StopAndAwaitTerminated(context.Background(), r))

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseGoingAway), "got %v", err)

	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	if resp != nil {
		assert.Equal(t, 503, resp.StatusCode)
	}
}

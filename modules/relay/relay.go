// Package relay serves the live side-channel: peers connect over a websocket
// to publish or receive the live feed and to send playback commands.
package relay

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/grafana/dskit/services"

	"github.com/zachfi/onair/pkg/livefeed"
)

// Controller applies playback commands received from peers.
type Controller interface {
	Control(ctx context.Context, command string) error
}

const (
	eventHeader  = string(livefeed.KindHeader)
	eventStream  = string(livefeed.KindPacket)
	eventControl = "control"
)

// envelope is the JSON message exchanged with peers. Data is base64 encoded
// on the wire.
type envelope struct {
	Event   string `json:"event"`
	Data    []byte `json:"data,omitempty"`
	Command string `json:"command,omitempty"`
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 65536,
	// Broadcasters connect from pages served elsewhere.
	CheckOrigin: func(r *http.Request) bool { return true },
}

type Relay struct {
	services.Service
	cfg     *Config
	logger  *slog.Logger
	feed    *livefeed.Relay
	control Controller

	mu      sync.Mutex
	stopped bool
	quit    chan struct{}
	conns   sync.WaitGroup
}

var module = "relay"

// New creates and returns a new Relay.
func New(cfg Config, control Controller, logger slog.Logger) (*Relay, error) {
	if cfg.Path == "" {
		cfg.Path = "/live"
	}
	if cfg.MaxMessageSize <= 0 {
		cfg.MaxMessageSize = defaultMaxMessageSize
	}

	r := &Relay{
		cfg:     &cfg,
		logger:  logger.With("module", module),
		control: control,
		quit:    make(chan struct{}),
	}
	r.feed = livefeed.New(cfg.SendBuffer, r.logger)

	r.Service = services.NewBasicService(nil, r.running, r.stopping)

	return r, nil
}

// Feed is the live feed shared by every peer.
func (r *Relay) Feed() *livefeed.Relay {
	return r.feed
}

func (r *Relay) RegisterHandlers(router *mux.Router) {
	router.HandleFunc(r.cfg.Path, r.handler).Methods(http.MethodGet)
}

func (r *Relay) running(ctx context.Context) error {
	<-ctx.Done()
	return nil
}

func (r *Relay) stopping(_ error) error {
	r.logger.Info("stopping")

	r.mu.Lock()
	r.stopped = true
	close(r.quit)
	r.mu.Unlock()

	r.conns.Wait()
	return nil
}

func (r *Relay) handler(w http.ResponseWriter, req *http.Request) {
	r.mu.Lock()
	if r.stopped {
		r.mu.Unlock()
		http.Error(w, "relay stopped", http.StatusServiceUnavailable)
		return
	}
	r.conns.Add(1)
	r.mu.Unlock()
	defer r.conns.Done()

	// Joined before the handshake completes so nothing published after the
	// peer sees its connection open is missed.
	peer := r.feed.Join()
	defer r.feed.Leave(peer.ID())

	logger := r.logger.With("peer", peer.ID())

	conn, err := upgrader.Upgrade(w, req, nil)
	if err != nil {
		logger.Error("websocket upgrade error", "err", err)
		return
	}
	defer conn.Close()

	logger.Info("peer connected", "remote", req.RemoteAddr)

	conn.SetReadLimit(r.cfg.MaxMessageSize)

	readerDone := make(chan struct{})
	go func() {
		defer close(readerDone)
		r.read(req.Context(), conn, peer.ID(), logger)
	}()

	r.write(conn, peer, readerDone, logger)

	_ = conn.Close()
	<-readerDone

	logger.Info("peer disconnected")
}

func (r *Relay) read(ctx context.Context, conn *websocket.Conn, id string, logger *slog.Logger) {
	for {
		var env envelope
		if err := conn.ReadJSON(&env); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logger.Debug("read failed", "err", err)
			}
			return
		}

		switch env.Event {
		case eventHeader:
			r.feed.SetHeader(id, env.Data)
		case eventStream:
			r.feed.Packet(id, env.Data)
		case eventControl:
			if err := r.control.Control(ctx, env.Command); err != nil {
				logger.Warn("ignoring control command", "command", env.Command, "err", err)
			}
		default:
			logger.Debug("ignoring event", "event", env.Event)
		}
	}
}

func (r *Relay) write(conn *websocket.Conn, peer *livefeed.Peer, readerDone <-chan struct{}, logger *slog.Logger) {
	for {
		select {
		case <-readerDone:
			return
		case <-r.quit:
			r.closeConn(conn, websocket.CloseGoingAway, "relay stopping")
			return
		case m, ok := <-peer.Messages():
			if !ok {
				logger.Warn("peer too slow, disconnecting")
				r.closeConn(conn, websocket.CloseTryAgainLater, "too slow")
				return
			}

			r.setWriteDeadline(conn)
			if err := conn.WriteJSON(envelope{Event: string(m.Kind), Data: m.Data}); err != nil {
				logger.Debug("write failed", "err", err)
				return
			}
		}
	}
}

func (r *Relay) setWriteDeadline(conn *websocket.Conn) {
	if r.cfg.WriteTimeout > 0 {
		_ = conn.SetWriteDeadline(time.Now().Add(r.cfg.WriteTimeout))
	}
}

func (r *Relay) closeConn(conn *websocket.Conn, code int, reason string) {
	r.setWriteDeadline(conn)
	_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason))
}

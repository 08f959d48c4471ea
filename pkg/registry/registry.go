// Package registry tracks connected listeners and fans audio out to them.
package registry

import (
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	listenersGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "onair",
		Name:      "listeners",
		Help:      "Number of registered listeners.",
	})
	evictionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "onair",
		Name:      "listener_evictions_total",
		Help:      "Listeners removed because their delivery failed.",
	})
)

// Client is the per-listener sink. Write must not block; pacer.Pacer
// satisfies it.
type Client interface {
	Write(p []byte) (int, error)
	End()
}

// Registry maps client ids to their sinks. It is safe for concurrent use.
type Registry struct {
	logger *slog.Logger

	mu      sync.RWMutex
	clients map[string]Client
}

func New(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}

	return &Registry{
		logger:  logger,
		clients: make(map[string]Client),
	}
}

// Register stores c under a fresh id and returns the id.
func (r *Registry) Register(c Client) string {
	r.mu.Lock()
	defer r.mu.Unlock()

	id := uuid.NewString()
	for {
		if _, taken := r.clients[id]; !taken {
			break
		}
		id = uuid.NewString()
	}

	r.clients[id] = c
	listenersGauge.Set(float64(len(r.clients)))

	r.logger.Debug("client registered", "client", id, "clients", len(r.clients))

	return id
}

// Unregister removes the client and ends its sink. Unknown ids are ignored,
// so late or duplicate disconnect notifications are harmless.
func (r *Registry) Unregister(id string) bool {
	r.mu.Lock()
	c, ok := r.clients[id]
	if ok {
		delete(r.clients, id)
		listenersGauge.Set(float64(len(r.clients)))
	}
	n := len(r.clients)
	r.mu.Unlock()

	if !ok {
		return false
	}

	c.End()
	r.logger.Debug("client unregistered", "client", id, "clients", n)

	return true
}

// Broadcast writes chunk to every registered client. A client whose write
// fails is evicted; the failure never reaches the caller or other clients.
// The lock is not held while writing.
func (r *Registry) Broadcast(chunk []byte) {
	type entry struct {
		id string
		c  Client
	}

	r.mu.RLock()
	clients := make([]entry, 0, len(r.clients))
	for id, c := range r.clients {
		clients = append(clients, entry{id, c})
	}
	r.mu.RUnlock()

	for _, e := range clients {
		if _, err := e.c.Write(chunk); err != nil {
			if r.Unregister(e.id) {
				evictionsTotal.Inc()
				r.logger.Warn("evicted client", "client", e.id, "err", err)
			}
		}
	}
}

// Len returns the number of registered clients.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.clients)
}

// Package livefeed relays an out-of-band live audio feed (e.g. a microphone)
// between side-channel peers. Packets are only relayed once an initialization
// header has been seen, and every new peer receives that header first.
package livefeed

import (
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	packetsRelayed = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "onair",
		Name:      "live_packets_relayed_total",
		Help:      "Live packets accepted for relay.",
	})
	packetsDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "onair",
		Name:      "live_packets_dropped_total",
		Help:      "Live packets not delivered.",
	}, []string{"reason"})
	peersGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "onair",
		Name:      "live_peers",
		Help:      "Connected side-channel peers.",
	})
)

type Kind string

const (
	KindHeader Kind = "bufferHeader"
	KindPacket Kind = "stream"
)

type Message struct {
	Kind Kind
	Data []byte
}

const defaultBufferSize = 256

// Peer is one side-channel connection. Its transport drains Messages until
// the channel is closed.
type Peer struct {
	id   string
	send chan Message
}

func (p *Peer) ID() string {
	return p.id
}

// Messages is closed when the peer leaves or is dropped for being slow.
func (p *Peer) Messages() <-chan Message {
	return p.send
}

type Relay struct {
	logger     *slog.Logger
	bufferSize int
	header     HeaderCache

	mu    sync.RWMutex
	peers map[string]*Peer
}

func New(bufferSize int, logger *slog.Logger) *Relay {
	if bufferSize <= 0 {
		bufferSize = defaultBufferSize
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Relay{
		logger:     logger,
		bufferSize: bufferSize,
		peers:      make(map[string]*Peer),
	}
}

// Join adds a peer. The cached header, if any, is queued before anything else.
func (r *Relay) Join() *Peer {
	r.mu.Lock()
	defer r.mu.Unlock()

	p := &Peer{
		id:   uuid.NewString(),
		send: make(chan Message, r.bufferSize),
	}
	if hdr, ok := r.header.Get(); ok {
		p.send <- Message{Kind: KindHeader, Data: hdr}
	}

	r.peers[p.id] = p
	peersGauge.Set(float64(len(r.peers)))

	r.logger.Debug("live peer joined", "peer", p.id, "peers", len(r.peers))

	return p
}

// Leave removes the peer and closes its message channel. Unknown ids are ignored.
func (r *Relay) Leave(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.leaveLocked(id)
}

func (r *Relay) leaveLocked(id string) {
	p, ok := r.peers[id]
	if !ok {
		return
	}

	delete(r.peers, id)
	close(p.send)
	peersGauge.Set(float64(len(r.peers)))

	r.logger.Debug("live peer left", "peer", id, "peers", len(r.peers))
}

// SetHeader caches a new initialization header and relays it to every peer
// except its sender.
func (r *Relay) SetHeader(from string, b []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.header.Set(b)
	hdr, _ := r.header.Get()

	slow := r.fanout(from, Message{Kind: KindHeader, Data: hdr})
	for _, id := range slow {
		r.leaveLocked(id)
	}

	r.logger.Info("live header updated", "from", from, "bytes", len(b))
}

// Packet relays a live audio packet to every peer except its sender. Packets
// arriving before any header are dropped and Packet returns false.
func (r *Relay) Packet(from string, b []byte) bool {
	r.mu.RLock()
	if _, ok := r.header.Get(); !ok {
		r.mu.RUnlock()
		packetsDropped.WithLabelValues("no_header").Inc()
		return false
	}

	slow := r.fanout(from, Message{Kind: KindPacket, Data: append([]byte(nil), b...)})
	r.mu.RUnlock()

	packetsRelayed.Inc()

	if len(slow) > 0 {
		r.mu.Lock()
		for _, id := range slow {
			r.leaveLocked(id)
		}
		r.mu.Unlock()
	}

	return true
}

// Header returns the cached header.
func (r *Relay) Header() ([]byte, bool) {
	return r.header.Get()
}

// Len returns the number of connected peers.
func (r *Relay) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.peers)
}

// fanout queues m for every peer but from without blocking and returns the
// peers whose queue was full. Callers hold mu.
func (r *Relay) fanout(from string, m Message) []string {
	var slow []string

	for id, p := range r.peers {
		if id == from {
			continue
		}

		select {
		case p.send <- m:
		default:
			slow = append(slow, id)
			packetsDropped.WithLabelValues("slow_peer").Inc()
			r.logger.Warn("dropping slow live peer", "peer", id)
		}
	}

	return slow
}

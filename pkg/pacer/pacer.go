// Package pacer releases audio bytes downstream no faster than a fixed byte
// rate, absorbing bursts in a bounded backlog.
package pacer

import (
	"context"
	"errors"
	"io"
	"sync"

	"golang.org/x/time/rate"
)

var (
	// ErrBacklogFull is returned by Write when the downstream consumer has
	// fallen a full backlog behind.
	ErrBacklogFull = errors.New("pacer backlog full")

	// ErrClosed is returned by writes after End.
	ErrClosed = io.ErrClosedPipe
)

const (
	defaultBacklog = 64
	defaultBurst   = 4096
)

type Config struct {
	// BytesPerSecond is the release rate. Zero or less means unlimited.
	BytesPerSecond float64
	// Backlog is the number of chunks buffered before writes are refused.
	Backlog int
	// Burst is the largest number of bytes released at once.
	Burst int
}

// Pacer is a byte-rate limiter. Writers queue chunks, a single drainer
// releases them to a downstream writer at the configured rate.
type Pacer struct {
	limiter *rate.Limiter
	burst   int

	mu     sync.RWMutex
	queue  chan []byte
	closed bool

	drainMu sync.Mutex
	pending []byte // taken from queue but not yet released
	done    chan struct{}
	once    sync.Once
}

func New(cfg Config) *Pacer {
	if cfg.Backlog <= 0 {
		cfg.Backlog = defaultBacklog
	}
	if cfg.Burst <= 0 {
		cfg.Burst = defaultBurst
	}

	limit := rate.Inf
	if cfg.BytesPerSecond > 0 {
		limit = rate.Limit(cfg.BytesPerSecond)
	}

	return &Pacer{
		limiter: rate.NewLimiter(limit, cfg.Burst),
		burst:   cfg.Burst,
		queue:   make(chan []byte, cfg.Backlog),
		done:    make(chan struct{}),
	}
}

// Write queues a copy of p without blocking. It fails with ErrBacklogFull
// when the backlog is exhausted and ErrClosed after End.
func (p *Pacer) Write(b []byte) (int, error) {
	if len(b) == 0 {
		return 0, nil
	}

	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return 0, ErrClosed
	}

	select {
	case p.queue <- append([]byte(nil), b...):
		return len(b), nil
	default:
		return 0, ErrBacklogFull
	}
}

// Feed queues b, waiting for backlog space until ctx is done. Unlike Write
// it takes ownership of b. End blocks while a Feed is waiting.
func (p *Pacer) Feed(ctx context.Context, b []byte) error {
	if len(b) == 0 {
		return nil
	}

	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return ErrClosed
	}

	select {
	case p.queue <- b:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// End signals that no more data follows. Queued bytes are still released by
// Drain, after which Done is closed. End is idempotent.
func (p *Pacer) End() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.closed {
		close(p.queue)
		p.closed = true
	}
}

// Drain releases queued bytes to w at the configured rate. It returns nil once
// the pacer has been ended and fully flushed, or the first error from ctx or
// w. A chunk interrupted by an error is kept and released first by the next
// Drain, so detaching and re-attaching the downstream loses no bytes. Only
// one Drain runs at a time.
func (p *Pacer) Drain(ctx context.Context, w io.Writer) error {
	p.drainMu.Lock()
	defer p.drainMu.Unlock()

	for {
		chunk := p.pending
		p.pending = nil

		if chunk == nil {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case c, ok := <-p.queue:
				if !ok {
					p.once.Do(func() { close(p.done) })
					return nil
				}
				chunk = c
			}
		}

		if err := p.wait(ctx, len(chunk)); err != nil {
			p.pending = chunk
			return err
		}

		if _, err := w.Write(chunk); err != nil {
			p.pending = chunk
			return err
		}
	}
}

func (p *Pacer) wait(ctx context.Context, n int) error {
	for n > 0 {
		k := min(n, p.burst)
		if err := p.limiter.WaitN(ctx, k); err != nil {
			return err
		}
		n -= k
	}
	return nil
}

// Backlog returns the number of queued chunks.
func (p *Pacer) Backlog() int {
	return len(p.queue)
}

// Done is closed once the pacer has been ended and every byte released.
func (p *Pacer) Done() <-chan struct{} {
	return p.done
}

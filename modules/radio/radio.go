package radio

import (
	"context"
	"log/slog"
	"sync/atomic"

	"github.com/grafana/dskit/services"
	"github.com/pkg/errors"

	"github.com/zachfi/onair/pkg/catalog"
	"github.com/zachfi/onair/pkg/engine"
	"github.com/zachfi/onair/pkg/registry"
)

// ErrNotReady is returned by Control before the catalog is loaded.
var ErrNotReady = errors.New("radio is not ready")

// Radio loads the catalog, runs the playback engine and serves listeners.
type Radio struct {
	services.Service
	cfg    *Config
	logger *slog.Logger

	registry *registry.Registry
	engine   atomic.Pointer[engine.Engine]

	// closed on stopping so listener streams end before the server shuts down
	quit chan struct{}
}

var module = "radio"

// New creates and returns a new Radio.
func New(cfg Config, logger slog.Logger) (*Radio, error) {
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = defaultChunkSize
	}
	if cfg.ClientBacklog <= 0 {
		cfg.ClientBacklog = defaultClientBacklog
	}

	r := &Radio{
		cfg:    &cfg,
		logger: logger.With("module", module),
		quit:   make(chan struct{}),
	}
	r.registry = registry.New(r.logger)

	r.Service = services.NewBasicService(r.starting, r.running, r.stopping)

	return r, nil
}

func (r *Radio) starting(ctx context.Context) error {
	tracks, err := catalog.Load(ctx, r.cfg.Dir, catalog.Options{
		Extensions:     r.cfg.Extensions,
		DefaultBitrate: r.cfg.DefaultBitrate,
		Prober: catalog.Chain{
			catalog.FFProbe{Path: r.cfg.FFProbePath},
			catalog.MPEGHeader{},
		},
		Concurrency: r.cfg.ProbeConcurrency,
		Logger:      r.logger,
	})
	if err != nil {
		r.logger.Error("error loading catalog", "err", err, "dir", r.cfg.Dir)
		return errors.Wrap(err, "failed to load catalog")
	}

	r.logger.Info("catalog loaded", "dir", r.cfg.Dir, "tracks", len(tracks))

	e := engine.New(engine.Config{
		ChunkSize:          r.cfg.ChunkSize,
		MasterBacklog:      r.cfg.MasterBacklog,
		ClientRateHeadroom: r.cfg.ClientRateHeadroom,
	}, tracks, r.registry, r.logger)
	r.engine.Store(e)

	return nil
}

func (r *Radio) running(ctx context.Context) error {
	e := r.engine.Load()

	if r.cfg.Autoplay {
		go func() {
			if err := e.Play(ctx); err != nil && !errors.Is(err, context.Canceled) {
				r.logger.Error("autoplay failed", "err", err)
			}
		}()
	}

	return e.Run(ctx)
}

func (r *Radio) stopping(_ error) error {
	r.logger.Info("stopping")
	close(r.quit)
	return nil
}

// Control applies a play, pause or resume command to the engine.
func (r *Radio) Control(ctx context.Context, command string) error {
	e := r.engine.Load()
	if e == nil {
		return ErrNotReady
	}

	if err := e.Control(ctx, command); err != nil {
		return err
	}

	r.logger.Info("control", "command", command, "state", e.Status().State)

	return nil
}

// Status reports the engine state, Idle until the catalog is loaded.
func (r *Radio) Status() engine.Status {
	e := r.engine.Load()
	if e == nil {
		return engine.Status{State: engine.Idle}
	}
	return e.Status()
}

// Listeners returns the number of connected listeners.
func (r *Radio) Listeners() int {
	return r.registry.Len()
}

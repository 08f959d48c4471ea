// Package engine owns what is playing. A single control loop serializes
// play, pause, resume and automatic advance, reads the current track through
// a master pacer at the track's bit-rate and hands each paced chunk to the
// listener registry.
package engine

import (
	"context"
	"io"
	"log/slog"
	"os"
	"sync"

	"github.com/pkg/errors"

	"github.com/zachfi/onair/pkg/catalog"
	"github.com/zachfi/onair/pkg/pacer"
)

var (
	// ErrStopped is returned by control operations once Run has returned.
	ErrStopped = errors.New("playback engine stopped")

	// ErrUnknownCommand is returned by Control for unrecognized commands.
	ErrUnknownCommand = errors.New("unknown command")
)

const (
	defaultChunkSize     = 4096
	defaultMasterBacklog = 16
	defaultHeadroom      = 1.5
)

// Broadcaster receives every paced chunk. Implementations must not block and
// must not modify the chunk.
type Broadcaster interface {
	Broadcast(chunk []byte)
}

// Opener opens the source stream of a track.
type Opener func(path string) (io.ReadCloser, error)

type Config struct {
	// ChunkSize is the read size from the source, and the pacer burst.
	ChunkSize int
	// MasterBacklog is the number of chunks read ahead of playback.
	MasterBacklog int
	// ClientRateHeadroom scales the fastest track rate into the rate at
	// which listener pacers release bytes, so they can catch up on jitter.
	ClientRateHeadroom float64
}

type Option func(*Engine)

// WithOpener replaces os.Open as the track source.
func WithOpener(o Opener) Option {
	return func(e *Engine) {
		e.open = o
	}
}

type Engine struct {
	cfg    Config
	logger *slog.Logger
	out    Broadcaster
	open   Opener

	cursor     *catalog.Cursor
	clientRate float64

	cmds    chan command
	events  chan event
	stopped chan struct{}

	// owned by the control loop
	state   State
	session *session
	gen     uint64

	statusMu sync.RWMutex
	status   Status
}

type op int

const (
	opPlay op = iota
	opPause
	opResume
)

type command struct {
	op   op
	done chan struct{}
}

// event is an input to the control loop from a session's goroutines.
type event struct {
	gen   uint64
	chunk []byte
	err   error
}

// session pairs the selected track with its open source and master pacer.
// It exists iff the state is not Idle.
type session struct {
	gen    uint64
	track  catalog.Track
	src    io.ReadCloser
	master *pacer.Pacer

	ctx    context.Context
	cancel context.CancelFunc
	detach context.CancelFunc

	held   [][]byte // chunks that reached the loop while paused
	failed error    // read error seen while paused
}

func New(cfg Config, tracks []catalog.Track, out Broadcaster, logger *slog.Logger, opts ...Option) *Engine {
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = defaultChunkSize
	}
	if cfg.MasterBacklog <= 0 {
		cfg.MasterBacklog = defaultMasterBacklog
	}
	if cfg.ClientRateHeadroom < 1 {
		cfg.ClientRateHeadroom = defaultHeadroom
	}
	if logger == nil {
		logger = slog.Default()
	}

	e := &Engine{
		cfg:     cfg,
		logger:  logger,
		out:     out,
		open:    func(path string) (io.ReadCloser, error) { return os.Open(path) },
		cursor:  catalog.NewCursor(tracks),
		cmds:    make(chan command),
		events:  make(chan event),
		stopped: make(chan struct{}),
	}

	maxRate := catalog.Track{Bitrate: catalog.DefaultBitrate}.ByteRate()
	for i, t := range tracks {
		if i == 0 || t.ByteRate() > maxRate {
			maxRate = t.ByteRate()
		}
	}
	e.clientRate = maxRate * cfg.ClientRateHeadroom

	for _, o := range opts {
		o(e)
	}

	return e
}

// Run drives the control loop until ctx is done. It must be called once.
func (e *Engine) Run(ctx context.Context) error {
	defer close(e.stopped)
	defer func() {
		e.stopSession()
		e.setState(Idle)
	}()

	for {
		select {
		case <-ctx.Done():
			e.logger.Info("stopping playback")
			return nil
		case c := <-e.cmds:
			e.handle(ctx, c.op)
			close(c.done)
		case ev := <-e.events:
			e.handleEvent(ctx, ev)
		}
	}
}

// Play starts the next track when idle, and resumes when paused.
func (e *Engine) Play(ctx context.Context) error {
	return e.do(ctx, opPlay)
}

// Pause stops forwarding audio while keeping the source open. It is a no-op
// unless playing.
func (e *Engine) Pause(ctx context.Context) error {
	return e.do(ctx, opPause)
}

// Resume continues a paused track from where it stopped. It is a no-op
// unless paused.
func (e *Engine) Resume(ctx context.Context) error {
	return e.do(ctx, opResume)
}

// Control maps an external command name to its operation.
func (e *Engine) Control(ctx context.Context, command string) error {
	switch command {
	case "play":
		return e.Play(ctx)
	case "pause":
		return e.Pause(ctx)
	case "resume":
		return e.Resume(ctx)
	default:
		return errors.Wrap(ErrUnknownCommand, command)
	}
}

// Status returns the current state and track.
func (e *Engine) Status() Status {
	e.statusMu.RLock()
	defer e.statusMu.RUnlock()
	return e.status
}

// ClientRate is the byte rate for listener pacers: the fastest track in the
// catalog with headroom.
func (e *Engine) ClientRate() float64 {
	return e.clientRate
}

func (e *Engine) do(ctx context.Context, o op) error {
	c := command{op: o, done: make(chan struct{})}

	select {
	case e.cmds <- c:
	case <-e.stopped:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case <-c.done:
		return nil
	case <-e.stopped:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (e *Engine) handle(ctx context.Context, o op) {
	switch o {
	case opPlay:
		switch e.state {
		case Idle:
			e.advance(ctx)
		case Paused:
			e.resume(ctx)
		}

	case opPause:
		if e.state != Playing {
			return
		}
		e.session.detach()
		e.setState(Paused)
		e.logger.Info("paused", "track", e.session.track.Path)

	case opResume:
		if e.state != Paused || e.session == nil {
			return
		}
		e.resume(ctx)
	}
}

func (e *Engine) resume(ctx context.Context) {
	s := e.session

	if s.failed != nil {
		e.logger.Warn("track failed while paused, advancing", "track", s.track.Path, "err", s.failed)
		trackFailures.Inc()
		e.advance(ctx)
		return
	}

	for _, chunk := range s.held {
		e.broadcast(chunk)
	}
	s.held = nil

	e.attach(s)
	e.setState(Playing)
	e.logger.Info("resumed", "track", s.track.Path)
}

func (e *Engine) handleEvent(ctx context.Context, ev event) {
	s := e.session
	if s == nil || ev.gen != s.gen {
		return
	}

	switch {
	case ev.chunk != nil:
		if e.state == Paused {
			s.held = append(s.held, ev.chunk)
			return
		}
		e.broadcast(ev.chunk)

	case e.state == Paused:
		// Resume re-attaches forwarding, which finds the end again.
		if ev.err != nil {
			s.failed = ev.err
		}

	case ev.err != nil:
		e.logger.Warn("track failed, advancing", "track", s.track.Path, "err", ev.err)
		trackFailures.Inc()
		e.advance(ctx)

	default:
		e.logger.Debug("track finished", "track", s.track.Path)
		e.advance(ctx)
	}
}

// advance discards the current session and starts the next track. Tracks
// that cannot be opened are skipped, at most one full lap of the catalog.
func (e *Engine) advance(ctx context.Context) {
	e.stopSession()

	for attempt := 0; attempt < e.cursor.Len(); attempt++ {
		track, ok := e.cursor.Next()
		if !ok {
			break
		}

		if err := e.startSession(ctx, track); err != nil {
			e.logger.Error("failed to open track", "track", track.Path, "err", err)
			trackFailures.Inc()
			continue
		}

		e.setState(Playing)
		return
	}

	if e.cursor.Len() == 0 {
		e.logger.Debug("catalog empty, nothing to play")
	} else {
		e.logger.Error("no playable track in catalog")
	}
	e.setState(Idle)
}

func (e *Engine) startSession(ctx context.Context, track catalog.Track) error {
	src, err := e.open(track.Path)
	if err != nil {
		return errors.Wrap(err, "failed to open source")
	}

	e.gen++
	sctx, cancel := context.WithCancel(ctx)
	s := &session{
		gen:   e.gen,
		track: track,
		src:   src,
		master: pacer.New(pacer.Config{
			BytesPerSecond: track.ByteRate(),
			Backlog:        e.cfg.MasterBacklog,
			Burst:          e.cfg.ChunkSize,
		}),
		ctx:    sctx,
		cancel: cancel,
	}
	e.session = s

	go e.read(sctx, s)
	e.attach(s)

	tracksStarted.Inc()
	e.logger.Info("playing track", "track", track.Path, "bitrate", track.Bitrate)

	return nil
}

func (e *Engine) stopSession() {
	s := e.session
	if s == nil {
		return
	}

	s.cancel()
	if err := s.src.Close(); err != nil {
		e.logger.Debug("error closing source", "track", s.track.Path, "err", err)
	}
	e.session = nil
}

// attach starts forwarding paced chunks from the master pacer to the loop.
func (e *Engine) attach(s *session) {
	ctx, detach := context.WithCancel(s.ctx)
	s.detach = detach
	go e.forward(ctx, s)
}

// read copies the source into the master pacer. End of file ends the pacer
// so the forwarder reports the end once everything has been played.
func (e *Engine) read(ctx context.Context, s *session) {
	for {
		buf := make([]byte, e.cfg.ChunkSize)
		n, err := s.src.Read(buf)
		if n > 0 {
			if ferr := s.master.Feed(ctx, buf[:n]); ferr != nil {
				return
			}
		}

		if err == io.EOF {
			s.master.End()
			return
		}
		if err != nil {
			if ctx.Err() == nil {
				e.send(ctx, event{gen: s.gen, err: errors.Wrap(err, "read source")})
			}
			return
		}
	}
}

func (e *Engine) forward(ctx context.Context, s *session) {
	w := writerFunc(func(p []byte) (int, error) {
		if !e.send(ctx, event{gen: s.gen, chunk: p}) {
			return 0, ctx.Err()
		}
		return len(p), nil
	})

	if err := s.master.Drain(ctx, w); err != nil {
		return
	}

	e.send(ctx, event{gen: s.gen})
}

func (e *Engine) send(ctx context.Context, ev event) bool {
	select {
	case e.events <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}

func (e *Engine) broadcast(chunk []byte) {
	e.out.Broadcast(chunk)
	bytesBroadcast.Add(float64(len(chunk)))
}

func (e *Engine) setState(s State) {
	e.state = s
	stateGauge.Set(float64(s))

	st := Status{State: s}
	if e.session != nil {
		track := e.session.track
		st.Track = &track
	}

	e.statusMu.Lock()
	e.status = st
	e.statusMu.Unlock()
}

type writerFunc func(p []byte) (int, error)

func (f writerFunc) Write(p []byte) (int, error) {
	return f(p)
}

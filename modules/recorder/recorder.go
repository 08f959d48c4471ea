// Package recorder archives the live side-channel feed to disk. Every new
// stream header starts a new file.
package recorder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/grafana/dskit/services"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/zachfi/onair/pkg/livefeed"
)

var (
	bytesWritten = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "onair",
		Name:      "recorder_bytes_written_total",
		Help:      "Bytes of live audio written to archive files.",
	})
	archivesSaved = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "onair",
		Name:      "recorder_archives_total",
		Help:      "Archive files committed.",
	})
)

// minWriteBufSize and maxWriteBufSize clamp the configured write buffer to avoid
// tiny writes (no benefit) or very large buffers (memory and latency).
const (
	minWriteBufSize = 32 * 1024       // 32 KiB
	maxWriteBufSize = 4 * 1024 * 1024 // 4 MiB
)

type Recorder struct {
	services.Service
	cfg    *Config
	logger *slog.Logger
	feed   *livefeed.Relay
	now    func() time.Time

	seq int

	errMu sync.Mutex
	errs  []error // from closing archives, reported on stopping
}

var module = "recorder"

// New creates and returns a new Recorder.
func New(cfg Config, feed *livefeed.Relay, logger slog.Logger) (*Recorder, error) {
	cfg.WriteBufferSize = clampWriteBufSize(cfg.WriteBufferSize)
	if cfg.Extension == "" {
		cfg.Extension = ".webm"
	}

	r := &Recorder{
		cfg:    &cfg,
		logger: logger.With("module", module),
		feed:   feed,
		now:    time.Now,
	}

	r.Service = services.NewBasicService(r.starting, r.running, r.stopping)

	return r, nil
}

func clampWriteBufSize(n int) int {
	if n == 0 {
		n = defaultWriteBufferSize
	}
	if n < minWriteBufSize {
		n = minWriteBufSize
	}
	if n > maxWriteBufSize {
		n = maxWriteBufSize
	}
	return n
}

func (r *Recorder) starting(_ context.Context) error {
	if r.cfg.Dir == "" {
		r.logger.Info("no directory configured, live recording disabled")
		return nil
	}

	if err := os.MkdirAll(r.cfg.Dir, os.ModePerm); err != nil {
		r.logger.Error("error creating archive directory", "err", err)
		return err
	}

	return nil
}

func (r *Recorder) running(ctx context.Context) error {
	if r.cfg.Dir == "" {
		<-ctx.Done()
		return nil
	}

	for {
		peer := r.feed.Join()
		r.record(ctx, peer)
		r.feed.Leave(peer.ID())

		if ctx.Err() != nil {
			return nil
		}

		// The feed drops peers that fall a full buffer behind.
		r.logger.Warn("recorder fell behind the live feed, rejoining")
	}
}

func (r *Recorder) stopping(_ error) error {
	r.logger.Info("stopping")

	r.errMu.Lock()
	defer r.errMu.Unlock()

	if len(r.errs) > 0 {
		return errors.Join(r.errs...)
	}
	return nil
}

func (r *Recorder) record(ctx context.Context, peer *livefeed.Peer) {
	var a *archive
	defer func() {
		if a != nil {
			r.addErr(r.finish(a))
		}
	}()

	for {
		select {
		case <-ctx.Done():
			// Keep what the feed already handed over.
			for {
				select {
				case m, ok := <-peer.Messages():
					if !ok {
						return
					}
					a = r.handle(a, m)
				default:
					return
				}
			}
		case m, ok := <-peer.Messages():
			if !ok {
				return
			}
			a = r.handle(a, m)
		}
	}
}

// handle writes m to the current archive and returns the archive to use
// next. A header closes the current archive and starts a new one.
func (r *Recorder) handle(a *archive, m livefeed.Message) *archive {
	if m.Kind == livefeed.KindHeader {
		if a != nil {
			r.addErr(r.finish(a))
		}

		var err error
		a, err = r.create()
		if err != nil {
			r.logger.Error("error creating archive", "err", err)
			return nil
		}
		r.logger.Info("recording live feed", "path", a.dest)
	}

	if a == nil {
		return nil
	}

	if err := a.write(m.Data); err != nil {
		r.logger.Error("error writing to file", "err", err)
	}

	return a
}

func (r *Recorder) addErr(err error) {
	if err == nil {
		return
	}

	r.errMu.Lock()
	defer r.errMu.Unlock()
	r.errs = append(r.errs, err)
}

func (r *Recorder) create() (*archive, error) {
	r.seq++
	name := fmt.Sprintf("live-%s-%03d%s", r.now().Format("20060102-150405"), r.seq, r.cfg.Extension)

	f, err := os.CreateTemp(r.cfg.Dir, "*"+r.cfg.Extension+".tmp")
	if err != nil {
		return nil, err
	}

	return &archive{
		f:    f,
		dest: filepath.Join(r.cfg.Dir, name),
		size: r.cfg.WriteBufferSize,
		buf:  make([]byte, 0, r.cfg.WriteBufferSize),
	}, nil
}

// finish flushes and closes the archive, then moves it into place.
func (r *Recorder) finish(a *archive) error {
	tempPath := a.f.Name()

	var errs []error
	if err := a.flush(); err != nil {
		r.logger.Error("error writing to file", "err", err)
		errs = append(errs, err)
	}
	if err := a.f.Sync(); err != nil {
		r.logger.Error("error syncing file", "err", err)
		errs = append(errs, err)
	}
	if err := a.f.Close(); err != nil {
		r.logger.Error("error closing file", "err", err)
		errs = append(errs, err)
	}

	r.commitTempFile(tempPath, a.dest)

	return errors.Join(errs...)
}

// commitTempFile renames tempPath to destPath only if dest doesn't exist or
// the temp file is larger (so a previous crash doesn't overwrite a good recording).
func (r *Recorder) commitTempFile(tempPath, destPath string) {
	tempInfo, err := os.Stat(tempPath)
	if err != nil {
		r.logger.Error("error stating temp file", "err", err, "path", tempPath)
		_ = os.Remove(tempPath)
		return
	}

	destInfo, err := os.Stat(destPath)
	if err != nil && !os.IsNotExist(err) {
		r.logger.Error("error stating dest file", "err", err, "path", destPath)
		_ = os.Remove(tempPath)
		return
	}

	if destInfo != nil && tempInfo.Size() <= destInfo.Size() {
		_ = os.Remove(tempPath)
		r.logger.Debug("discarded shorter recording", "path", destPath, "temp_size", tempInfo.Size(), "existing_size", destInfo.Size())
		return
	}

	if err := os.Rename(tempPath, destPath); err != nil {
		r.logger.Error("error renaming temp to dest", "err", err, "temp", tempPath, "dest", destPath)
		_ = os.Remove(tempPath)
		return
	}

	archivesSaved.Inc()
	r.logger.Debug("saved recording", "path", destPath, "size", tempInfo.Size())
}

// archive batches writes in memory so the disk sees few, large writes.
type archive struct {
	f    *os.File
	dest string
	size int
	buf  []byte
}

func (a *archive) write(b []byte) error {
	a.buf = append(a.buf, b...)
	if len(a.buf) >= a.size {
		return a.flush()
	}
	return nil
}

func (a *archive) flush() error {
	if len(a.buf) == 0 {
		return nil
	}

	n, err := a.f.Write(a.buf)
	bytesWritten.Add(float64(n))
	a.buf = a.buf[:0]

	return err
}

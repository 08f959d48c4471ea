// Package catalog builds the ordered list of playable tracks from a directory.
package catalog

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
)

// DefaultBitrate is assumed for any track whose bit-rate cannot be probed.
const DefaultBitrate = 128000

const defaultConcurrency = 4

type Options struct {
	// Extensions lists the accepted file extensions, including the dot.
	Extensions     []string
	DefaultBitrate int
	Prober         Prober
	Concurrency    int
	Logger         *slog.Logger
}

// Load lists dir and returns a Track for every entry with a supported
// extension, in directory listing order. Probe failures are not fatal: the
// track falls back to the default bit-rate. Failing to read dir is.
func Load(ctx context.Context, dir string, opts Options) ([]Track, error) {
	if opts.DefaultBitrate <= 0 {
		opts.DefaultBitrate = DefaultBitrate
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = defaultConcurrency
	}
	if len(opts.Extensions) == 0 {
		opts.Extensions = []string{".mp3"}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read track directory %s", dir)
	}

	var paths []string
	for _, e := range entries {
		if e.IsDir() || !hasExtension(e.Name(), opts.Extensions) {
			continue
		}
		paths = append(paths, filepath.Join(dir, e.Name()))
	}

	tracks := make([]Track, len(paths))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.Concurrency)
	for i, p := range paths {
		i, p := i, p
		g.Go(func() error {
			tracks[i] = loadTrack(gctx, p, opts)
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, errors.Wrap(err, "track loading interrupted")
	}

	opts.Logger.Info("loaded tracks", "dir", dir, "count", len(tracks))

	return tracks, nil
}

func loadTrack(ctx context.Context, path string, opts Options) Track {
	t := Track{Path: path, Bitrate: opts.DefaultBitrate}

	if opts.Prober != nil {
		bitrate, err := opts.Prober.Probe(ctx, path)
		switch {
		case err != nil:
			opts.Logger.Warn("bitrate probe failed, using default", "track", path, "bitrate", opts.DefaultBitrate, "err", err)
		case bitrate <= 0:
			opts.Logger.Warn("bitrate missing, using default", "track", path, "bitrate", opts.DefaultBitrate)
		default:
			t.Bitrate = bitrate
		}
	}

	t.Title, t.Artist = readTags(path)
	if t.Title == "" {
		base := filepath.Base(path)
		t.Title = strings.TrimSuffix(base, filepath.Ext(base))
	}

	return t
}

func hasExtension(name string, exts []string) bool {
	ext := filepath.Ext(name)
	for _, e := range exts {
		if strings.EqualFold(ext, e) {
			return true
		}
	}
	return false
}

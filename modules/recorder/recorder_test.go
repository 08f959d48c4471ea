package recorder

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"testing"
	"time"

	"github.com/grafana/dskit/services"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zachfi/onair/pkg/livefeed"
)

func testLogger() slog.Logger {
	return *slog.New(slog.NewTextHandler(io.Discard, nil))
}

func startRecorder(t *testing.T, cfg Config, feed *livefeed.Relay) *Recorder {
	t.Helper()

	r, err := New(cfg, feed, testLogger())
	require.NoError(t, err)
	r.now = func() time.Time { return time.Date(2026, 10, 19, 15, 4, 5, 0, time.UTC) }

	require.NoError(t, services.StartAndAwaitRunning(context.Background(), r))
	t.Cleanup(func() {
		_ = services.StopAndAwaitTerminated(context.Background(), r)
	})

	return r
}

func archives(t *testing.T, dir string) map[string]string {
	t.Helper()

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)

	out := map[string]string{}
	for _, e := range entries {
		b, err := os.ReadFile(filepath.Join(dir, e.Name()))
		require.NoError(t, err)
		out[e.Name()] = string(b)
	}
	return out
}

func TestRecordsEachHeaderToNewFile(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "archive")
	feed := livefeed.New(16, nil)

	r := startRecorder(t, Config{Dir: dir, Extension: ".webm"}, feed)

	require.Eventually(t, func() bool { return feed.Len() == 1 }, 2*time.Second, 10*time.Millisecond)

	host := feed.Join()
	feed.SetHeader(host.ID(), []byte("H1"))
	feed.Packet(host.ID(), []byte("a"))
	feed.Packet(host.ID(), []byte("b"))
	feed.SetHeader(host.ID(), []byte("H2"))
	feed.Packet(host.ID(), []byte("c"))

	// the second file exists as a temp file once its header is processed
	require.Eventually(t, func() bool { return len(archives(t, dir)) == 2 }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, services.StopAndAwaitTerminated(context.Background(), r))

	got := archives(t, dir)
	assert.Equal(t, map[string]string{
		"live-20261019-150405-001.webm": "H1ab",
		"live-20261019-150405-002.webm": "H2c",
	}, got)
}

func TestJoiningMidFeedStartsWithHeader(t *testing.T) {
	dir := t.TempDir()
	feed := livefeed.New(16, nil)

	host := feed.Join()
	feed.SetHeader(host.ID(), []byte("HDR"))
	feed.Packet(host.ID(), []byte("missed"))

	r := startRecorder(t, Config{Dir: dir}, feed)
	require.Eventually(t, func() bool { return feed.Len() == 2 }, 2*time.Second, 10*time.Millisecond)

	feed.Packet(host.ID(), []byte("kept"))
	require.Eventually(t, func() bool { return len(archives(t, dir)) == 1 }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, services.StopAndAwaitTerminated(context.Background(), r))

	var names []string
	for name, content := range archives(t, dir) {
		names = append(names, name)
		assert.Equal(t, "HDRkept", content)
	}
	sort.Strings(names)
	assert.Equal(t, []string{"live-20261019-150405-001.webm"}, names)
}

func TestDisabledWithoutDir(t *testing.T) {
	feed := livefeed.New(16, nil)
	startRecorder(t, Config{}, feed)

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 0, feed.Len())
}

func TestRotationErrorsReportedOnStop(t *testing.T) {
	dir := t.TempDir()
	r, err := New(Config{Dir: dir}, livefeed.New(1, nil), testLogger())
	require.NoError(t, err)

	a, err := r.create()
	require.NoError(t, err)
	require.NoError(t, a.write([]byte("H1")))
	require.NoError(t, a.f.Close())

	next := r.handle(a, livefeed.Message{Kind: livefeed.KindHeader, Data: []byte("H2")})
	require.NotNil(t, next)
	require.NoError(t, r.finish(next))

	assert.Error(t, r.stopping(nil))
}

func TestCommitTempFile(t *testing.T) {
	dir := t.TempDir()
	r, err := New(Config{Dir: dir}, livefeed.New(1, nil), testLogger())
	require.NoError(t, err)

	write := func(name string, size int) string {
		p := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(p, bytes.Repeat([]byte("x"), size), 0o644))
		return p
	}

	dest := filepath.Join(dir, "live.webm")

	r.commitTempFile(write("a.tmp", 10), dest)
	assert.Equal(t, map[string]string{"live.webm": "xxxxxxxxxx"}, archives(t, dir))

	// shorter recordings never replace a longer one
	r.commitTempFile(write("b.tmp", 4), dest)
	assert.Equal(t, map[string]string{"live.webm": "xxxxxxxxxx"}, archives(t, dir))

	r.commitTempFile(write("c.tmp", 12), dest)
	assert.Equal(t, map[string]string{"live.webm": "xxxxxxxxxxxx"}, archives(t, dir))
}

func TestClampWriteBufSize(t *testing.T) {
	assert.Equal(t, defaultWriteBufferSize, clampWriteBufSize(0))
	assert.Equal(t, minWriteBufSize, clampWriteBufSize(1))
	assert.Equal(t, maxWriteBufSize, clampWriteBufSize(64*1024*1024))
	assert.Equal(t, 512*1024, clampWriteBufSize(512*1024))
}

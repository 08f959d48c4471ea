package app

import (
	"flag"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig(t *testing.T) {
	file := filepath.Join(t.TempDir(), "onair.yaml")
	require.NoError(t, os.WriteFile(file, []byte(`
target: radio
radio:
  dir: /srv/music
  extensions: .mp3,.ogg
  chunk-size: 8192
  write-timeout: 5s
  station-name: Night Shift
relay:
  path: /mic
recorder:
  dir: /srv/archive
`), 0o644))

	cfg, err := LoadConfig(file)
	require.NoError(t, err)

	assert.Equal(t, Radio, cfg.Target)
	assert.Equal(t, "/srv/music", cfg.Radio.Dir)
	assert.Equal(t, []string{".mp3", ".ogg"}, []string(cfg.Radio.Extensions))
	assert.Equal(t, 8192, cfg.Radio.ChunkSize)
	assert.Equal(t, 5*time.Second, cfg.Radio.WriteTimeout)
	assert.Equal(t, "Night Shift", cfg.Radio.StationName)
	assert.Equal(t, "/mic", cfg.Relay.Path)
	assert.Equal(t, "/srv/archive", cfg.Recorder.Dir)
}

func TestLoadConfigRejectsUnknownFields(t *testing.T) {
	file := filepath.Join(t.TempDir(), "onair.yaml")
	require.NoError(t, os.WriteFile(file, []byte("radio:\n  shuffle: true\n"), 0o644))

	_, err := LoadConfig(file)
	require.Error(t, err)
}

func TestDefaults(t *testing.T) {
	cfg := Config{}
	cfg.RegisterFlagsAndApplyDefaults("", flag.NewFlagSet("test", flag.PanicOnError))

	assert.Equal(t, All, cfg.Target)
	assert.Equal(t, 3000, cfg.Server.HTTPListenPort)
	assert.Equal(t, "./playlists", cfg.Radio.Dir)
	assert.Equal(t, []string{".mp3"}, []string(cfg.Radio.Extensions))
	assert.Equal(t, 128000, cfg.Radio.DefaultBitrate)
	assert.True(t, cfg.Radio.Autoplay)
	assert.Equal(t, "/live", cfg.Relay.Path)
	assert.Empty(t, cfg.Recorder.Dir)
}

func TestModuleDependencies(t *testing.T) {
	cfg := Config{}
	cfg.RegisterFlagsAndApplyDefaults("", flag.NewFlagSet("test", flag.PanicOnError))

	a, err := New(cfg, *slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)

	assert.ElementsMatch(t, []string{Server}, a.ModuleManager.DependenciesForModule(Radio))
	assert.ElementsMatch(t, []string{Server, Radio}, a.ModuleManager.DependenciesForModule(Relay))
	assert.ElementsMatch(t, []string{Server, Radio, Relay}, a.ModuleManager.DependenciesForModule(Recorder))
}

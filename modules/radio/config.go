package radio

import (
	"flag"
	"time"

	"github.com/grafana/dskit/flagext"
	"github.com/zachfi/zkit/pkg/util"

	"github.com/zachfi/onair/pkg/catalog"
)

const (
	defaultChunkSize          = 4096
	defaultMasterBacklog      = 16
	defaultClientBacklog      = 64
	defaultClientRateHeadroom = 1.5
	defaultWriteTimeout       = 10 * time.Second
	defaultProbeConcurrency   = 4
	defaultIcyMetaInt         = 16000
)

type Config struct {
	Dir              string                 `yaml:"dir,omitempty"`
	Extensions       flagext.StringSliceCSV `yaml:"extensions,omitempty"`
	DefaultBitrate   int                    `yaml:"default-bitrate,omitempty"`
	FFProbePath      string                 `yaml:"ffprobe-path,omitempty"`
	ProbeConcurrency int                    `yaml:"probe-concurrency,omitempty"`

	ChunkSize          int           `yaml:"chunk-size,omitempty"`
	MasterBacklog      int           `yaml:"master-backlog,omitempty"`      // chunks read ahead of playback
	ClientBacklog      int           `yaml:"client-backlog,omitempty"`      // chunks a listener may fall behind before eviction
	ClientRateHeadroom float64       `yaml:"client-rate-headroom,omitempty"`
	WriteTimeout       time.Duration `yaml:"write-timeout,omitempty"`
	Autoplay           bool          `yaml:"autoplay,omitempty"`

	StationName        string `yaml:"station-name,omitempty"`
	StationGenre       string `yaml:"station-genre,omitempty"`
	StationDescription string `yaml:"station-description,omitempty"`
	StationURL         string `yaml:"station-url,omitempty"`
	IcyMetaInt         int    `yaml:"icy-metaint,omitempty"`
}

func (cfg *Config) RegisterFlagsAndApplyDefaults(prefix string, f *flag.FlagSet) {
	f.StringVar(&cfg.Dir, util.PrefixConfig(prefix, "dir"), "./playlists", "The directory of tracks to play")
	cfg.Extensions = flagext.StringSliceCSV{".mp3"}
	f.Var(&cfg.Extensions, util.PrefixConfig(prefix, "extensions"), "Comma separated file extensions to include in the catalog")
	f.IntVar(&cfg.DefaultBitrate, util.PrefixConfig(prefix, "default-bitrate"), catalog.DefaultBitrate, "Bit-rate assumed when a track cannot be probed")
	f.StringVar(&cfg.FFProbePath, util.PrefixConfig(prefix, "ffprobe-path"), "ffprobe", "Path to the ffprobe binary used to probe bit-rates")
	f.IntVar(&cfg.ProbeConcurrency, util.PrefixConfig(prefix, "probe-concurrency"), defaultProbeConcurrency, "Number of tracks probed at once while loading")

	f.IntVar(&cfg.ChunkSize, util.PrefixConfig(prefix, "chunk-size"), defaultChunkSize, "Bytes read from a track at a time")
	f.IntVar(&cfg.MasterBacklog, util.PrefixConfig(prefix, "master-backlog"), defaultMasterBacklog, "Chunks read ahead of playback")
	f.IntVar(&cfg.ClientBacklog, util.PrefixConfig(prefix, "client-backlog"), defaultClientBacklog,
		"Chunks a listener may fall behind before it is disconnected")
	f.Float64Var(&cfg.ClientRateHeadroom, util.PrefixConfig(prefix, "client-rate-headroom"), defaultClientRateHeadroom,
		"Factor applied to the fastest track rate for listener delivery")
	f.DurationVar(&cfg.WriteTimeout, util.PrefixConfig(prefix, "write-timeout"), defaultWriteTimeout, "Deadline for a single write to a listener")
	f.BoolVar(&cfg.Autoplay, util.PrefixConfig(prefix, "autoplay"), true, "Start playing once the catalog is loaded")

	f.StringVar(&cfg.StationName, util.PrefixConfig(prefix, "station-name"), "onair", "Station name announced to listeners")
	f.StringVar(&cfg.StationGenre, util.PrefixConfig(prefix, "station-genre"), "", "Station genre announced to listeners")
	f.StringVar(&cfg.StationDescription, util.PrefixConfig(prefix, "station-description"), "", "Station description announced to listeners")
	f.StringVar(&cfg.StationURL, util.PrefixConfig(prefix, "station-url"), "", "Station homepage announced to listeners")
	f.IntVar(&cfg.IcyMetaInt, util.PrefixConfig(prefix, "icy-metaint"), defaultIcyMetaInt,
		"Audio bytes between metadata blocks for listeners that request them")
}

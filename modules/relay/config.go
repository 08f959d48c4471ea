package relay

import (
	"flag"
	"time"

	"github.com/zachfi/zkit/pkg/util"
)

const (
	defaultSendBuffer     = 256
	defaultMaxMessageSize = 1 << 20 // 1 MiB
	defaultWriteTimeout   = 10 * time.Second
)

type Config struct {
	Path           string        `yaml:"path,omitempty"`
	SendBuffer     int           `yaml:"send-buffer,omitempty"`      // messages queued per peer before it is dropped
	MaxMessageSize int64         `yaml:"max-message-size,omitempty"` // largest inbound message in bytes
	WriteTimeout   time.Duration `yaml:"write-timeout,omitempty"`
}

func (cfg *Config) RegisterFlagsAndApplyDefaults(prefix string, f *flag.FlagSet) {
	f.StringVar(&cfg.Path, util.PrefixConfig(prefix, "path"), "/live", "HTTP path of the live side-channel websocket")
	f.IntVar(&cfg.SendBuffer, util.PrefixConfig(prefix, "send-buffer"), defaultSendBuffer,
		"Messages queued for a peer before it is considered too slow and dropped")
	f.Int64Var(&cfg.MaxMessageSize, util.PrefixConfig(prefix, "max-message-size"), defaultMaxMessageSize, "Largest accepted inbound message in bytes")
	f.DurationVar(&cfg.WriteTimeout, util.PrefixConfig(prefix, "write-timeout"), defaultWriteTimeout, "Deadline for a single write to a peer")
}

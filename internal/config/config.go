package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/danmuck/edgelink/internal/protocol/frame"
	"github.com/danmuck/edgelink/internal/transport"
)

// LinkConfig is the full linkctl configuration.
type LinkConfig struct {
	Channel   ChannelConfig
	Transport TransportConfig
	Frame     FrameConfig
	Metrics   MetricsConfig
	Ping      PingConfig
}

type ChannelConfig struct {
	Name            string
	ExchangeTimeout time.Duration
}

type TransportConfig struct {
	Address string
	Listen  string
	Stream  transport.Config
}

type FrameConfig struct {
	MaxAuthBytes    uint64
	MaxPayloadBytes uint64
}

type MetricsConfig struct {
	Enabled bool
	Addr    string
}

// PingConfig drives linkctl's ping mode.
type PingConfig struct {
	Count   int
	Async   int
	Payload string
}

func DefaultLinkConfig() LinkConfig {
	limits := frame.DefaultLimits()
	return LinkConfig{
		Channel: ChannelConfig{
			Name:            "link",
			ExchangeTimeout: 5 * time.Second,
		},
		Transport: TransportConfig{
			Address: "127.0.0.1:9400",
			Listen:  ":9400",
			Stream:  transport.DefaultConfig(),
		},
		Frame: FrameConfig{
			MaxAuthBytes:    limits.MaxAuthBytes,
			MaxPayloadBytes: limits.MaxPayloadBytes,
		},
		Metrics: MetricsConfig{Addr: "127.0.0.1:9401"},
		Ping:    PingConfig{Count: 3, Payload: "ping"},
	}
}

func (f FrameConfig) Limits() frame.Limits {
	return frame.Limits{MaxAuthBytes: f.MaxAuthBytes, MaxPayloadBytes: f.MaxPayloadBytes}
}

type fileConfig struct {
	Channel struct {
		Name            string `toml:"name"`
		ExchangeTimeout string `toml:"exchange_timeout"`
	} `toml:"channel"`
	Transport struct {
		Address        string `toml:"address"`
		Listen         string `toml:"listen"`
		ConnectTimeout string `toml:"connect_timeout"`
		WriteTimeout   string `toml:"write_timeout"`
		SweepInterval  string `toml:"sweep_interval"`
		ChunkSize      int    `toml:"chunk_size"`
		ReadBuffer     int    `toml:"read_buffer"`
		MaxInbound     int    `toml:"max_inbound"`
		Backoff        struct {
			Initial    string  `toml:"initial"`
			Multiplier float64 `toml:"multiplier"`
			Max        string  `toml:"max"`
			Jitter     bool    `toml:"jitter"`
		} `toml:"backoff"`
	} `toml:"transport"`
	Frame struct {
		MaxAuthBytes    uint64 `toml:"max_auth_bytes"`
		MaxPayloadBytes uint64 `toml:"max_payload_bytes"`
	} `toml:"frame"`
	Metrics struct {
		Enabled bool   `toml:"enabled"`
		Addr    string `toml:"addr"`
	} `toml:"metrics"`
	Ping struct {
		Count   int    `toml:"count"`
		Async   int    `toml:"async"`
		Payload string `toml:"payload"`
	} `toml:"ping"`
}

// LoadLinkConfig decodes path over DefaultLinkConfig; keys absent from the
// file keep their defaults.
func LoadLinkConfig(path string) (LinkConfig, error) {
	cfg := DefaultLinkConfig()

	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return LinkConfig{}, fmt.Errorf("config load failed (%s): %w", path, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return LinkConfig{}, fmt.Errorf("config parse failed (%s): unknown key %s", path, undecoded[0])
	}

	durations := []struct {
		key []string
		src string
		dst *time.Duration
	}{
		{[]string{"channel", "exchange_timeout"}, raw.Channel.ExchangeTimeout, &cfg.Channel.ExchangeTimeout},
		{[]string{"transport", "connect_timeout"}, raw.Transport.ConnectTimeout, &cfg.Transport.Stream.ConnectTimeout},
		{[]string{"transport", "write_timeout"}, raw.Transport.WriteTimeout, &cfg.Transport.Stream.WriteTimeout},
		{[]string{"transport", "sweep_interval"}, raw.Transport.SweepInterval, &cfg.Transport.Stream.SweepInterval},
		{[]string{"transport", "backoff", "initial"}, raw.Transport.Backoff.Initial, &cfg.Transport.Stream.Backoff.InitialDelay},
		{[]string{"transport", "backoff", "max"}, raw.Transport.Backoff.Max, &cfg.Transport.Stream.Backoff.MaxDelay},
	}
	for _, d := range durations {
		if !meta.IsDefined(d.key...) {
			continue
		}
		v, err := time.ParseDuration(strings.TrimSpace(d.src))
		if err != nil {
			return LinkConfig{}, fmt.Errorf("parse %s: %w", strings.Join(d.key, "."), err)
		}
		*d.dst = v
	}

	if meta.IsDefined("channel", "name") {
		cfg.Channel.Name = strings.TrimSpace(raw.Channel.Name)
	}
	if meta.IsDefined("transport", "address") {
		cfg.Transport.Address = strings.TrimSpace(raw.Transport.Address)
	}
	if meta.IsDefined("transport", "listen") {
		cfg.Transport.Listen = strings.TrimSpace(raw.Transport.Listen)
	}
	if meta.IsDefined("transport", "chunk_size") {
		cfg.Transport.Stream.ChunkSize = raw.Transport.ChunkSize
	}
	if meta.IsDefined("transport", "read_buffer") {
		cfg.Transport.Stream.ReadBuffer = raw.Transport.ReadBuffer
	}
	if meta.IsDefined("transport", "max_inbound") {
		cfg.Transport.Stream.MaxInbound = raw.Transport.MaxInbound
	}
	if meta.IsDefined("transport", "backoff", "multiplier") {
		cfg.Transport.Stream.Backoff.Multiplier = raw.Transport.Backoff.Multiplier
	}
	if meta.IsDefined("transport", "backoff", "jitter") {
		cfg.Transport.Stream.Backoff.Jitter = raw.Transport.Backoff.Jitter
	}
	if meta.IsDefined("frame", "max_auth_bytes") {
		cfg.Frame.MaxAuthBytes = raw.Frame.MaxAuthBytes
	}
	if meta.IsDefined("frame", "max_payload_bytes") {
		cfg.Frame.MaxPayloadBytes = raw.Frame.MaxPayloadBytes
	}
	if meta.IsDefined("metrics", "enabled") {
		cfg.Metrics.Enabled = raw.Metrics.Enabled
	}
	if meta.IsDefined("metrics", "addr") {
		cfg.Metrics.Addr = strings.TrimSpace(raw.Metrics.Addr)
	}
	if meta.IsDefined("ping", "count") {
		cfg.Ping.Count = raw.Ping.Count
	}
	if meta.IsDefined("ping", "async") {
		cfg.Ping.Async = raw.Ping.Async
	}
	if meta.IsDefined("ping", "payload") {
		cfg.Ping.Payload = raw.Ping.Payload
	}

	if err := ValidateLinkConfig(cfg); err != nil {
		return LinkConfig{}, err
	}
	return cfg, nil
}

func ValidateLinkConfig(cfg LinkConfig) error {
	if strings.TrimSpace(cfg.Channel.Name) == "" {
		return fmt.Errorf("link config missing channel.name")
	}
	if cfg.Channel.ExchangeTimeout <= 0 {
		return fmt.Errorf("channel.exchange_timeout must be > 0")
	}
	if strings.TrimSpace(cfg.Transport.Address) == "" && strings.TrimSpace(cfg.Transport.Listen) == "" {
		return fmt.Errorf("link config needs transport.address or transport.listen")
	}
	if err := cfg.Transport.Stream.Validate(); err != nil {
		return err
	}
	if cfg.Frame.MaxPayloadBytes == 0 {
		return fmt.Errorf("frame.max_payload_bytes must be > 0")
	}
	if cfg.Metrics.Enabled && strings.TrimSpace(cfg.Metrics.Addr) == "" {
		return fmt.Errorf("metrics.addr required when metrics are enabled")
	}
	if cfg.Ping.Count < 0 || cfg.Ping.Async < 0 {
		return fmt.Errorf("ping counts must be >= 0")
	}
	return nil
}

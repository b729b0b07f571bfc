package transport

import (
	"fmt"
	"time"
)

// BackoffConfig defines dial retry backoff behavior.
type BackoffConfig struct {
	InitialDelay time.Duration
	Multiplier   float64
	MaxDelay     time.Duration
	Jitter       bool
}

// Config defines stream transport defaults.
type Config struct {
	ConnectTimeout time.Duration
	WriteTimeout   time.Duration
	// ChunkSize bounds every SendData call; ReadBuffer bounds every read.
	ChunkSize  int
	ReadBuffer int
	// MaxInbound caps inbound bytes held while no reply is expected. A peer
	// exceeding it has the link dropped.
	MaxInbound int
	// SweepInterval wakes an idle pump so expired entries are evicted and
	// retained inbound bytes are offered again.
	SweepInterval time.Duration
	Backoff       BackoffConfig
}

func DefaultConfig() Config {
	return Config{
		ConnectTimeout: 5 * time.Second,
		WriteTimeout:   15 * time.Second,
		ChunkSize:      512,
		ReadBuffer:     4096,
		MaxInbound:     16 << 20,
		SweepInterval:  50 * time.Millisecond,
		Backoff: BackoffConfig{
			InitialDelay: 250 * time.Millisecond,
			Multiplier:   2.0,
			MaxDelay:     5 * time.Second,
			Jitter:       true,
		},
	}
}

func (c Config) Validate() error {
	if c.ChunkSize <= 0 {
		return fmt.Errorf("transport: chunk_size must be > 0 (got %d)", c.ChunkSize)
	}
	if c.ReadBuffer <= 0 {
		return fmt.Errorf("transport: read_buffer must be > 0 (got %d)", c.ReadBuffer)
	}
	if c.MaxInbound < c.ReadBuffer {
		return fmt.Errorf("transport: max_inbound must be >= read_buffer (got %d)", c.MaxInbound)
	}
	if c.SweepInterval <= 0 {
		return fmt.Errorf("transport: sweep_interval must be > 0")
	}
	if c.Backoff.Multiplier < 0 {
		return fmt.Errorf("transport: backoff multiplier must be >= 0")
	}
	return nil
}

package channel

import (
	"strings"
	"time"

	"github.com/juju/clock"
)

// Transport is the byte channel an Engine drives. Implementations call back
// into the Engine's Pump methods from a single goroutine.
type Transport interface {
	Open(timeout time.Duration) error
	Close(timeout time.Duration) error
	IsOpen() bool
	// Trigger asks the transport to call SendData soon. It must not block and
	// must not call into the Engine synchronously.
	Trigger()
}

// Pump is the surface a transport calls whenever it has capacity or data.
// Calls are serialized by the transport.
type Pump interface {
	SendData(buf []byte) int
	ReceiveData(buf []byte) int
	StateChange()
}

// Attacher is implemented by transports that need the Pump they serve.
type Attacher interface {
	Attach(p Pump)
}

// Config carries engine identity and its time source.
type Config struct {
	Name  string
	Clock clock.Clock
}

func DefaultConfig() Config {
	return Config{
		Name:  "link",
		Clock: clock.WallClock,
	}
}

func (c Config) normalized() Config {
	if strings.TrimSpace(c.Name) == "" {
		c.Name = "link"
	}
	if c.Clock == nil {
		c.Clock = clock.WallClock
	}
	return c
}

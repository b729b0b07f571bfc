package channel

import (
	"bytes"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// manualTransport lets a test act as the pump goroutine.
type manualTransport struct {
	open     atomic.Bool
	triggers atomic.Int32
	pump     Pump
}

func newManualTransport() *manualTransport {
	t := &manualTransport{}
	t.open.Store(true)
	return t
}

func (t *manualTransport) Attach(p Pump) { t.pump = p }

func (t *manualTransport) Open(time.Duration) error {
	t.open.Store(true)
	t.pump.StateChange()
	return nil
}

func (t *manualTransport) Close(time.Duration) error {
	t.open.Store(false)
	t.pump.StateChange()
	return nil
}

func (t *manualTransport) IsOpen() bool  { return t.open.Load() }
func (t *manualTransport) Trigger()      { t.triggers.Add(1) }
func (t *manualTransport) Triggers() int { return int(t.triggers.Load()) }

// drainSend pulls every byte the engine is willing to send right now.
func (t *manualTransport) drainSend(chunk int) []byte {
	var out []byte
	buf := make([]byte, chunk)
	for {
		n := t.pump.SendData(buf)
		if n == 0 {
			return out
		}
		out = append(out, buf[:n]...)
	}
}

// echoTransport is an in-process peer: it reads newline-terminated requests
// in tiny chunks and answers each with its upper-cased text plus "!".
type echoTransport struct {
	open atomic.Bool
	kick chan struct{}
	stop chan struct{}
	wg   sync.WaitGroup
	pump Pump
}

func newEchoTransport() *echoTransport {
	t := &echoTransport{
		kick: make(chan struct{}, 1),
		stop: make(chan struct{}),
	}
	t.open.Store(true)
	return t
}

func (t *echoTransport) Attach(p Pump) { t.pump = p }

func (t *echoTransport) Open(time.Duration) error {
	t.wg.Add(1)
	go t.run()
	return nil
}

func (t *echoTransport) Close(time.Duration) error {
	t.open.Store(false)
	close(t.stop)
	t.wg.Wait()
	return nil
}

func (t *echoTransport) IsOpen() bool { return t.open.Load() }

func (t *echoTransport) Trigger() {
	select {
	case t.kick <- struct{}{}:
	default:
	}
}

func (t *echoTransport) run() {
	defer t.wg.Done()
	ticker := time.NewTicker(time.Millisecond)
	defer ticker.Stop()
	buf := make([]byte, 3)
	var req, replies []byte
	for {
		select {
		case <-t.stop:
			t.pump.StateChange()
			return
		case <-t.kick:
		case <-ticker.C:
		}
		for {
			n := t.pump.SendData(buf)
			if n == 0 {
				break
			}
			req = append(req, buf[:n]...)
			for {
				i := bytes.IndexByte(req, '\n')
				if i < 0 {
					break
				}
				replies = append(replies, []byte(strings.ToUpper(string(req[:i]))+"!")...)
				req = req[i+1:]
			}
		}
		for len(replies) > 0 {
			end := min(2, len(replies))
			n := t.pump.ReceiveData(replies[:end])
			if n == 0 {
				break
			}
			replies = replies[n:]
		}
	}
}

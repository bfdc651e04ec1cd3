// Package forwarder implements the downstream connector: a persistent
// client to the next filter (UNIX/TCP/UDP) with reconnect, bounded
// retry, and a count of pending sends (no set of pending buffers is
// kept; each buffer travels in its send command), serialized through one executor
// goroutine so that "Forwarder writes are serialised per forwarder
// instance" (spec.md §5) holds even under concurrent Send calls from
// multiple session goroutines. Grounded on
// cmd/broker/transport/uds_transport.go's reconnect/retry idiom and
// original_source/samples/base/network/ANextFilterConnector.{hpp,cpp}
// for the attempt-budget and pending-buffer semantics.
package forwarder

import (
	"net"
	"sync"
	"time"

	"github.com/advens/darwin-go/internal/darwinlog"
)

// Config configures a Forwarder's target and retry budget.
type Config struct {
	Address       string
	UseUDP        bool
	MaxAttempts   int
	AttemptsDelay time.Duration
}

// DefaultMaxAttempts and DefaultAttemptsDelay match spec.md §4.4.
const (
	DefaultMaxAttempts   = 3
	DefaultAttemptsDelay = time.Second
)

type sendCmd struct {
	buf []byte
}

// Forwarder sends serialized packets to the next filter in the pipeline.
type Forwarder struct {
	network       Network
	addr          string
	connector     connector
	maxAttempts   int
	attemptsDelay time.Duration
	log           *darwinlog.Logger

	cmdCh  chan sendCmd
	stopCh chan struct{}
	wg     sync.WaitGroup

	// executor-goroutine-only state (never touched from other goroutines):
	conn      net.Conn
	connected bool
	attempts  int

	mu       sync.Mutex // guards pendingN, the only state read off-executor
	pendingN int
}

// New builds and starts a Forwarder for cfg. log may be nil.
func New(cfg Config, log *darwinlog.Logger) (*Forwarder, error) {
	if log == nil {
		log = darwinlog.Default()
	}
	network, addr, err := ParseAddress(cfg.Address, cfg.UseUDP)
	if err != nil {
		return nil, err
	}
	delay := cfg.AttemptsDelay
	if delay == 0 {
		delay = DefaultAttemptsDelay
	}

	// cfg.MaxAttempts == 0 is a deliberate, valid setting ("do not
	// retry"); callers that want the spec.md default of 3 pass
	// DefaultMaxAttempts explicitly.
	f := &Forwarder{
		network:       network,
		addr:          addr,
		connector:     newConnector(network, addr),
		maxAttempts:   cfg.MaxAttempts,
		attemptsDelay: delay,
		log:           log,
		cmdCh:         make(chan sendCmd, 256),
		stopCh:        make(chan struct{}),
	}
	f.wg.Add(1)
	go f.run()
	return f, nil
}

// Send enqueues buf for delivery. It returns immediately; the actual
// connect/write/retry sequence runs on the forwarder's single executor
// goroutine, matching spec.md's "issue an asynchronous write".
func (f *Forwarder) Send(buf []byte) {
	select {
	case f.cmdCh <- sendCmd{buf: buf}:
	case <-f.stopCh:
	}
}

// PendingCount reports how many buffers are currently in flight
// (enqueued but not yet successfully delivered or dropped).
func (f *Forwarder) PendingCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pendingN
}

func (f *Forwarder) run() {
	defer f.wg.Done()
	for {
		select {
		case cmd := <-f.cmdCh:
			f.setPendingDelta(1)
			f.trySend(&cmd)
			f.setPendingDelta(-1)
		case <-f.stopCh:
			return
		}
	}
}

func (f *Forwarder) setPendingDelta(d int) {
	f.mu.Lock()
	f.pendingN += d
	f.mu.Unlock()
}

// trySend implements the connect/send/retry protocol of spec.md §4.4:
// steps 1-2 (connect up to the remaining budget, drop on exhaustion)
// and steps 3-4 (write, and on error or short write, mark disconnected
// and resubmit through step 1) collapse into one bounded loop, since
// this is all executed serially on the single executor goroutine —
// there is no separate "callback" thread to hop to.
func (f *Forwarder) trySend(cmd *sendCmd) {
	for {
		if !f.connected {
			if err := f.connect(); err != nil {
				f.attempts++
				f.log.Warn("forwarder connect failed", map[string]any{"addr": f.addr, "attempt": f.attempts, "err": err.Error()})
			} else {
				f.connected = true
				f.attempts = 0
			}
		}

		if f.connected {
			n, err := f.conn.Write(cmd.buf)
			if err == nil && n == len(cmd.buf) {
				f.attempts = 0
				return
			}
			f.disconnect()
			f.attempts++
			if err != nil {
				f.log.Warn("forwarder send failed, retrying", map[string]any{"addr": f.addr, "attempt": f.attempts, "err": err.Error()})
			} else {
				f.log.Warn("forwarder short write, retrying", map[string]any{"addr": f.addr, "attempt": f.attempts, "written": n, "want": len(cmd.buf)})
			}
		}

		if f.attempts >= f.maxAttempts {
			f.log.Error("forwarder dropping packet after exhausting retry budget", map[string]any{"addr": f.addr, "attempts": f.attempts})
			return
		}
		time.Sleep(f.attemptsDelay)
	}
}

func (f *Forwarder) connect() error {
	conn, err := f.connector.connect()
	if err != nil {
		return err
	}
	f.conn = conn
	return nil
}

func (f *Forwarder) disconnect() {
	f.connected = false
	if f.conn != nil {
		_ = f.conn.Close()
		f.conn = nil
	}
}

// Close stops the executor. Any pending sends are abandoned; their
// buffers are released with the forwarder once Close returns.
func (f *Forwarder) Close() error {
	close(f.stopCh)
	f.wg.Wait()
	if f.conn != nil {
		return f.conn.Close()
	}
	return nil
}

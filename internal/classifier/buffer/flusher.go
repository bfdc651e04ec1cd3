package buffer

import (
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/advens/darwin-go/internal/darwinlog"
	"github.com/advens/darwin-go/internal/darwinpacket"
	"github.com/advens/darwin-go/internal/forwarder"
)

// expiryGrace is added to a connector's interval when refreshing its
// redis key TTL; the expiration must outlive the flush period so state
// is only purged when threads or filters are stopped.
const expiryGrace = 60 * time.Second

// Sender delivers one formatted batch body to a downstream filter.
// Unlike forwarder.Forwarder's fire-and-forget Send, the flusher needs
// the outcome to decide whether to reinsert the popped batch.
type Sender interface {
	Send(body []byte) error
}

// PacketSender frames a batch as a Darwin packet and writes it over a
// fresh connection per flush.
type PacketSender struct {
	network forwarder.Network
	addr    string
}

// NewPacketSender parses the output's socket address the same way the
// forwarder parses next-filter addresses.
func NewPacketSender(address string) (*PacketSender, error) {
	network, addr, err := forwarder.ParseAddress(address, false)
	if err != nil {
		return nil, err
	}
	return &PacketSender{network: network, addr: addr}, nil
}

// Send implements Sender.
func (s *PacketSender) Send(body []byte) error {
	u := uuid.New()
	var eventID darwinpacket.EventID
	copy(eventID[:], u[:])

	pkt := darwinpacket.New(
		darwinpacket.TypeFilter,
		darwinpacket.ResponseNone,
		uint64(FilterCode),
		eventID,
		0,
		uint64(len(body)),
	)
	pkt.Body = append(pkt.Body, body...)

	conn, err := net.DialTimeout(string(s.network), s.addr, 5*time.Second)
	if err != nil {
		return fmt.Errorf("buffer: dial next filter: %w", err)
	}
	defer conn.Close()

	buf := pkt.Encode()
	n, err := conn.Write(buf)
	if err != nil {
		return fmt.Errorf("buffer: send to next filter: %w", err)
	}
	if n != len(buf) {
		return fmt.Errorf("buffer: short write to next filter: %d of %d bytes", n, len(buf))
	}
	return nil
}

// Flusher periodically drains one connector's redis buffer to its
// downstream filter, the Go rendition of BufferThread: every interval,
// read the buffer length, skip when under required_log_lines, else pop,
// format, send, and reinsert the batch when the send fails.
type Flusher struct {
	connector Connector
	sender    Sender
	log       *darwinlog.Logger

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewFlusher builds a stopped Flusher; call Start to run it.
func NewFlusher(connector Connector, sender Sender, log *darwinlog.Logger) *Flusher {
	if log == nil {
		log = darwinlog.Default()
	}
	return &Flusher{
		connector: connector,
		sender:    sender,
		log:       log,
		stopCh:    make(chan struct{}),
	}
}

// Start launches the periodic flush loop.
func (f *Flusher) Start() {
	f.wg.Add(1)
	go func() {
		defer f.wg.Done()
		interval := f.connector.Config().Interval
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				f.FlushOnce()
			case <-f.stopCh:
				return
			}
		}
	}()
}

// Stop terminates the flush loop and waits for it to exit.
func (f *Flusher) Stop() {
	close(f.stopCh)
	f.wg.Wait()
}

// FlushOnce performs one flush cycle, per BufferThread::Main.
func (f *Flusher) FlushOnce() {
	cfg := f.connector.Config()
	list := cfg.RedisList

	defer func() {
		// Refresh the TTL every cycle so only abandoned state expires.
		if err := f.connector.RedisSetExpiry(cfg.Interval + expiryGrace); err != nil {
			f.log.Warn("buffer: could not refresh redis key expiry", map[string]any{"list": list, "err": err.Error()})
		}
	}()

	n, err := f.connector.RedisListLen()
	if err != nil {
		f.log.Error("buffer: error querying redis buffer length", map[string]any{"list": list, "err": err.Error()})
		return
	}
	if n >= 0 && n < cfg.RequiredLogLines {
		f.log.Debug("buffer: not enough logs in redis, waiting for more", map[string]any{"list": list, "len": n})
		return
	}

	logs, err := f.connector.RedisPopLogs(n)
	if err != nil {
		f.log.Error("buffer: error popping logs from redis", map[string]any{"list": list, "err": err.Error()})
		return
	}
	if len(logs) == 0 {
		return
	}

	body, ok := f.connector.FormatDataToSend(logs)
	if !ok {
		f.log.Debug("buffer: batch not ready to send, reinserting", map[string]any{"list": list, "len": len(logs)})
		f.reinsert(logs)
		return
	}

	if err := f.sender.Send([]byte(body)); err != nil {
		f.log.Info("buffer: unable to send data to next filter, reinserting logs in redis", map[string]any{"list": list, "err": err.Error()})
		f.reinsert(logs)
		return
	}
	f.log.Debug("buffer: flushed batch", map[string]any{"list": list, "len": len(logs)})
}

func (f *Flusher) reinsert(logs []string) {
	if err := f.connector.RedisReinsertLogs(logs); err != nil {
		f.log.Error("buffer: could not reinsert logs, data lost", map[string]any{"err": err.Error()})
	}
}

// Manager owns one Flusher per configured output, the Go rendition of
// BufferThreadManager.
type Manager struct {
	flushers []*Flusher
}

// NewManager builds one flusher per connector, each with its own
// PacketSender toward the connector's socket path.
func NewManager(connectors []Connector, log *darwinlog.Logger) (*Manager, error) {
	m := &Manager{}
	for _, c := range connectors {
		sender, err := NewPacketSender(c.Config().SocketPath)
		if err != nil {
			return nil, err
		}
		m.flushers = append(m.flushers, NewFlusher(c, sender, log))
	}
	return m, nil
}

// Start launches every flusher.
func (m *Manager) Start() {
	for _, f := range m.flushers {
		f.Start()
	}
}

// Stop terminates every flusher.
func (m *Manager) Stop() {
	for _, f := range m.flushers {
		f.Stop()
	}
}

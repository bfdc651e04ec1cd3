// Package session implements the per-connection state machine: decode
// a packet, dispatch a task to the worker pool, suspend the read loop
// until the task signals completion, then run the response workflow
// and resume reading. Grounded on pkg/proc/subprocess's process
// lifecycle shape (adapted here to a connection lifecycle) and
// cmd/broker/transport/uds_transport.go's accept-loop pattern, with
// response semantics from original_source/samples/base (ASession's
// Workflow: BOTH forwards then replies, BACK replies only, DARWIN
// forwards only, NONE does nothing) per spec.md §4.6.
package session

import (
	"bufio"
	"context"
	"io"
	"net"
	"sync"

	"github.com/advens/darwin-go/internal/alert"
	"github.com/advens/darwin-go/internal/darwinlog"
	"github.com/advens/darwin-go/internal/darwinpacket"
	"github.com/advens/darwin-go/internal/rescache"
	"github.com/advens/darwin-go/internal/task"
	"github.com/advens/darwin-go/internal/workerpool"
)

// Forwarder is the subset of *forwarder.Forwarder a session needs,
// kept as an interface so this package doesn't import forwarder
// directly and tests can substitute a fake.
type Forwarder interface {
	Send(buf []byte)
}

// Config bundles everything a Session needs to process packets for
// one filter instance. Cache/Alert/Forwarder/Pool may be nil, each
// independently disabling that concern.
type Config struct {
	FilterName string
	Classifier task.Classifier
	Cache      *rescache.Cache
	Alert      *alert.Manager
	Forwarder  Forwarder
	Threshold  uint32
	Output     task.OutputMode
	Limits     darwinpacket.Limits
	Pool       *workerpool.Pool
	Log        *darwinlog.Logger
}

// state is the session's lifecycle per spec.md §3: Reading -> Decoded
// -> Dispatched -> Writing -> Reading | Closed.
type state int32

const (
	stateReading state = iota
	stateDecoded
	stateDispatched
	stateWriting
	stateClosed
)

// Session owns one client connection and processes packets on it serially.
type Session struct {
	conn net.Conn
	cfg  Config
	log  *darwinlog.Logger

	mu    sync.Mutex
	state state
}

// New wraps conn in a Session ready to Serve.
func New(conn net.Conn, cfg Config) *Session {
	log := cfg.Log
	if log == nil {
		log = darwinlog.Default()
	}
	return &Session{conn: conn, cfg: cfg, log: log, state: stateReading}
}

// State reports the session's current lifecycle state.
func (s *Session) State() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch s.state {
	case stateReading:
		return "reading"
	case stateDecoded:
		return "decoded"
	case stateDispatched:
		return "dispatched"
	case stateWriting:
		return "writing"
	default:
		return "closed"
	}
}

func (s *Session) setState(st state) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
}

// Serve runs the read-dispatch-write loop until the connection closes
// or a wire-level error forces it shut. A single connection may carry
// many packets in sequence; each is fully processed (including any
// downstream forward) before the next is read, preserving per-connection
// ordering.
func (s *Session) Serve(ctx context.Context) {
	defer s.conn.Close()
	reader := bufio.NewReader(s.conn)

	for {
		s.setState(stateReading)
		pkt, err := s.readPacket(reader)
		if err != nil {
			if err != io.EOF {
				s.log.Debug("session: closing after read error", map[string]any{"err": err.Error()})
			}
			s.setState(stateClosed)
			return
		}
		s.setState(stateDecoded)

		result := s.dispatch(ctx, pkt)

		s.setState(stateWriting)
		s.respond(pkt, result)
	}
}

func (s *Session) readPacket(r *bufio.Reader) (*darwinpacket.Packet, error) {
	header := make([]byte, darwinpacket.HeaderFixedSize())
	if _, err := io.ReadFull(r, header); err != nil {
		return nil, err
	}
	total, err := darwinpacket.PeekLength(header)
	if err != nil {
		return nil, err
	}
	frame := make([]byte, total)
	copy(frame, header)
	if total > len(header) {
		if _, err := io.ReadFull(r, frame[len(header):]); err != nil {
			return nil, err
		}
	}
	return darwinpacket.Decode(frame, s.cfg.Limits)
}

// dispatch hands the packet to the worker pool as a task.Task and
// suspends this goroutine until the task signals completion -- the
// session's one suspension point per request.
func (s *Session) dispatch(ctx context.Context, pkt *darwinpacket.Packet) task.Result {
	s.setState(stateDispatched)
	resultCh := make(chan task.Result, 1)

	t := &task.Task{
		FilterName: s.cfg.FilterName,
		Classifier: s.cfg.Classifier,
		Cache:      s.cfg.Cache,
		Alert:      s.cfg.Alert,
		Threshold:  s.cfg.Threshold,
		Output:     s.cfg.Output,
		Packet:     pkt,
		ResultCh:   resultCh,
		Log:        s.log,
	}

	if s.cfg.Pool != nil {
		if err := s.cfg.Pool.Submit(t); err != nil {
			// Pool closed (shutdown in progress): run inline so the
			// caller still gets a response rather than hanging forever.
			_ = t.Execute(ctx)
		}
	} else {
		_ = t.Execute(ctx)
	}

	return <-resultCh
}

// respond implements the response workflow of spec.md §4.6: downstream
// forward first, then the caller's response, per response_kind.
func (s *Session) respond(pkt *darwinpacket.Packet, result task.Result) {
	resp := pkt
	resp.Body = result.ResponseBody

	switch pkt.ResponseKind {
	case darwinpacket.ResponseNone:
		return
	case darwinpacket.ResponseBack:
		s.writeResponse(resp)
	case darwinpacket.ResponseDarwin:
		s.forward(resp)
	case darwinpacket.ResponseBoth:
		s.forward(resp)
		s.writeResponse(resp)
	}
}

func (s *Session) forward(pkt *darwinpacket.Packet) {
	if s.cfg.Forwarder == nil {
		return
	}
	s.cfg.Forwarder.Send(pkt.Encode())
}

func (s *Session) writeResponse(pkt *darwinpacket.Packet) {
	if _, err := s.conn.Write(pkt.Encode()); err != nil {
		s.log.Debug("session: write response failed", map[string]any{"err": err.Error()})
	}
}

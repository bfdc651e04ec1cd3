package buffer

import (
	"errors"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/advens/darwin-go/internal/darwinpacket"
)

// recordingSender captures flushed bodies.
type recordingSender struct {
	bodies [][]byte
	err    error
}

func (s *recordingSender) Send(body []byte) error {
	if s.err != nil {
		return s.err
	}
	s.bodies = append(s.bodies, body)
	return nil
}

func flushConnector(t *testing.T, length int64, required int64) (*stubConnector, *recordingSender, *Flusher) {
	t.Helper()
	conn := &stubConnector{
		cfg:    OutputConfig{Kind: KindSofa, RedisList: "l", Interval: time.Minute, RequiredLogLines: required},
		length: length,
		sendOK: true,
	}
	sender := &recordingSender{}
	return conn, sender, NewFlusher(conn, sender, nil)
}

func TestFlushOnceSendsWhenEnoughLogs(t *testing.T) {
	conn, sender, f := flushConnector(t, 2, 2)
	conn.popped = []string{"a;b;c;d;e", "f;g;h;i;j"}

	f.FlushOnce()

	require.Len(t, sender.bodies, 1)
	assert.Empty(t, conn.reAdded)
}

func TestFlushOnceWaitsUnderThreshold(t *testing.T) {
	conn, sender, f := flushConnector(t, 1, 5)
	conn.popped = []string{"a;b;c;d;e"}

	f.FlushOnce()

	assert.Empty(t, sender.bodies)
	assert.Empty(t, conn.reAdded)
}

func TestFlushOnceReinsertsOnSendFailure(t *testing.T) {
	conn, sender, f := flushConnector(t, 1, 1)
	conn.popped = []string{"a;b;c;d;e"}
	sender.err = errors.New("next filter down")

	f.FlushOnce()

	require.Len(t, conn.reAdded, 1)
	assert.Equal(t, []string{"a;b;c;d;e"}, conn.reAdded[0])
}

func TestFlushOnceReinsertsWhenBatchNotReady(t *testing.T) {
	conn, sender, f := flushConnector(t, 1, 1)
	conn.popped = []string{"a;b;c;d;e"}
	conn.sendOK = false

	f.FlushOnce()

	assert.Empty(t, sender.bodies)
	require.Len(t, conn.reAdded, 1)
}

func TestFlushOnceSkipsOnLengthError(t *testing.T) {
	conn, sender, f := flushConnector(t, 0, 1)
	conn.lenErr = errors.New("redis down")

	f.FlushOnce()

	assert.Empty(t, sender.bodies)
	assert.Empty(t, conn.reAdded)
}

func TestFlusherStartStop(t *testing.T) {
	conn, _, f := flushConnector(t, 0, 5)
	_ = conn
	f.Start()
	f.Stop()
}

func TestPacketSenderDeliversDarwinFrame(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	received := make(chan *darwinpacket.Packet, 1)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		buf := make([]byte, 4096)
		n, _ := conn.Read(buf)
		pkt, err := darwinpacket.Decode(buf[:n], darwinpacket.DefaultLimits())
		if err == nil {
			received <- pkt
		}
	}()

	sender, err := NewPacketSender(ln.Addr().String())
	require.NoError(t, err)
	require.NoError(t, sender.Send([]byte(`[["x"]]`)))

	select {
	case pkt := <-received:
		assert.Equal(t, darwinpacket.TypeFilter, pkt.Type)
		assert.Equal(t, darwinpacket.ResponseNone, pkt.ResponseKind)
		assert.EqualValues(t, FilterCode, pkt.FilterCode)
		assert.Equal(t, []byte(`[["x"]]`), pkt.Body)
	case <-time.After(2 * time.Second):
		t.Fatal("no packet received")
	}
}

func TestPacketSenderFailsWhenNoListener(t *testing.T) {
	sender, err := NewPacketSender("/nonexistent/darwin.sock")
	require.NoError(t, err)
	assert.Error(t, sender.Send([]byte("x")))
}

func TestNewManagerBuildsOneFlusherPerConnector(t *testing.T) {
	conns := []Connector{
		&stubConnector{cfg: OutputConfig{Kind: KindSofa, SocketPath: "/tmp/sofa.sock", RedisList: "a", Interval: time.Minute}},
		&stubConnector{cfg: OutputConfig{Kind: KindSum, SocketPath: "/tmp/sum.sock", RedisList: "b", Interval: time.Minute}},
	}
	m, err := NewManager(conns, nil)
	require.NoError(t, err)
	assert.Len(t, m.flushers, 2)
	m.Start()
	m.Stop()
}

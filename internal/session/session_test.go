package session

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/advens/darwin-go/internal/darwinpacket"
	"github.com/advens/darwin-go/internal/rescache"
	"github.com/advens/darwin-go/internal/task"
)

type stubClassifier struct{ bad map[string]bool }

func (c *stubClassifier) FilterCode() uint32 { return 1 }
func (c *stubClassifier) ParseLine(entry []byte) (task.ClassifiedLine, error) {
	var items []string
	if err := json.Unmarshal(entry, &items); err != nil || len(items) != 1 {
		return nil, fmt.Errorf("bad entry")
	}
	return items[0], nil
}
func (c *stubClassifier) Hash(line task.ClassifiedLine) uint64 {
	return rescache.Fingerprint([]byte(line.(string)))
}
func (c *stubClassifier) Classify(ctx context.Context, line task.ClassifiedLine) (uint32, error) {
	if c.bad[line.(string)] {
		return 100, nil
	}
	return 0, nil
}
func (c *stubClassifier) AlertEntry(line task.ClassifiedLine) string      { return line.(string) }
func (c *stubClassifier) AlertDetails(task.ClassifiedLine, uint32) string { return "{}" }
func (c *stubClassifier) AlertRuleName() string                           { return "Stub" }
func (c *stubClassifier) AlertTags() string                               { return "[]" }

type fakeForwarder struct{ sent [][]byte }

func (f *fakeForwarder) Send(buf []byte) { f.sent = append(f.sent, append([]byte(nil), buf...)) }

func newConfig(classifier task.Classifier, fwd Forwarder, rk darwinpacket.ResponseKind) Config {
	return Config{
		FilterName: "stub",
		Classifier: classifier,
		Cache:      rescache.New(0),
		Forwarder:  fwd,
		Threshold:  50,
		Output:     task.OutputRaw,
		Limits:     darwinpacket.DefaultLimits(),
	}
}

func encodeRequest(body string, rk darwinpacket.ResponseKind) []byte {
	p := &darwinpacket.Packet{
		Type:         darwinpacket.TypeFilter,
		ResponseKind: rk,
		FilterCode:   1,
		Body:         []byte(body),
	}
	return p.Encode()
}

func TestSessionBackResponseWritesReply(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()

	classifier := &stubClassifier{bad: map[string]bool{"evil.example": true}}
	cfg := newConfig(classifier, nil, darwinpacket.ResponseBack)
	sess := New(server, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go sess.Serve(ctx)

	req := encodeRequest(`[["evil.example"]]`, darwinpacket.ResponseBack)
	_, err := client.Write(req)
	require.NoError(t, err)

	header := make([]byte, darwinpacket.HeaderFixedSize())
	client.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, err = readFull(client, header)
	require.NoError(t, err)

	total, err := darwinpacket.PeekLength(header)
	require.NoError(t, err)
	rest := make([]byte, total-len(header))
	_, err = readFull(client, rest)
	require.NoError(t, err)

	frame := append(header, rest...)
	resp, err := darwinpacket.Decode(frame, darwinpacket.DefaultLimits())
	require.NoError(t, err)
	assert.Equal(t, []uint32{100}, resp.Certitudes)
	assert.Equal(t, []byte(`[["evil.example"]]`), resp.Body)
}

func TestSessionDarwinResponseForwardsOnly(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()

	classifier := &stubClassifier{bad: map[string]bool{}}
	fwd := &fakeForwarder{}
	cfg := newConfig(classifier, fwd, darwinpacket.ResponseDarwin)
	sess := New(server, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() { sess.Serve(ctx); close(done) }()

	req := encodeRequest(`[["ok.example"]]`, darwinpacket.ResponseDarwin)
	_, err := client.Write(req)
	require.NoError(t, err)

	require.Eventually(t, func() bool { return len(fwd.sent) == 1 }, time.Second, time.Millisecond)

	cancel()
	client.Close()
	<-done
}

func TestSessionNoneResponseWritesNothing(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()

	classifier := &stubClassifier{bad: map[string]bool{}}
	cfg := newConfig(classifier, nil, darwinpacket.ResponseNone)
	sess := New(server, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go sess.Serve(ctx)

	req := encodeRequest(`[["ok.example"]]`, darwinpacket.ResponseNone)
	_, err := client.Write(req)
	require.NoError(t, err)

	client.SetReadDeadline(time.Now().Add(50 * time.Millisecond))
	buf := make([]byte, 1)
	_, err = client.Read(buf)
	assert.Error(t, err, "no bytes should ever be written back for response_kind NONE")
}

func readFull(c net.Conn, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := c.Read(buf[total:])
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

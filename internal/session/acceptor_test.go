package session

import (
	"context"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/advens/darwin-go/internal/darwinpacket"
)

func TestAcceptorServesMultipleConnections(t *testing.T) {
	sockPath := filepath.Join(t.TempDir(), "darwin.sock")
	ln, err := net.Listen("unix", sockPath)
	require.NoError(t, err)

	classifier := &stubClassifier{bad: map[string]bool{"evil.example": true}}
	factory := func() Config { return newConfig(classifier, nil, darwinpacket.ResponseBack) }

	acc := NewAcceptor(ln, factory, nil)
	ctx, cancel := context.WithCancel(context.Background())
	go acc.Run(ctx)
	defer cancel()

	for i := 0; i < 2; i++ {
		conn, err := net.Dial("unix", sockPath)
		require.NoError(t, err)

		req := encodeRequest(`[["evil.example"]]`, darwinpacket.ResponseBack)
		_, err = conn.Write(req)
		require.NoError(t, err)

		conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		header := make([]byte, darwinpacket.HeaderFixedSize())
		_, err = readFull(conn, header)
		require.NoError(t, err)
		conn.Close()
	}

	os.Remove(sockPath)
}

func TestServeMonitorWritesFixedPayloadAndCloses(t *testing.T) {
	sockPath := filepath.Join(t.TempDir(), "monitor.sock")
	ln, err := net.Listen("unix", sockPath)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	go ServeMonitor(ctx, ln, nil)
	defer cancel()

	conn, err := net.Dial("unix", sockPath)
	require.NoError(t, err)
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	buf := make([]byte, 2)
	_, err = readFull(conn, buf)
	require.NoError(t, err)
	require.Equal(t, "{}", string(buf))
}

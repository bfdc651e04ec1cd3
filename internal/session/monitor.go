package session

import (
	"context"
	"net"

	"github.com/advens/darwin-go/internal/darwinlog"
)

// monitorPayload is the fixed health-check body every monitor
// connection receives, matching original_source/samples/base/Monitor.cpp
// exactly: no request parsing, no session/task machinery involved.
var monitorPayload = []byte("{}")

// ServeMonitor accepts connections on ln, writes monitorPayload to each
// one, and closes it. It runs until ctx is canceled or the listener errs.
func ServeMonitor(ctx context.Context, ln net.Listener, log *darwinlog.Logger) error {
	if log == nil {
		log = darwinlog.Default()
	}

	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
				return err
			}
		}
		go func(c net.Conn) {
			defer c.Close()
			if _, err := c.Write(monitorPayload); err != nil {
				log.Debug("monitor: write failed", map[string]any{"err": err.Error()})
			}
		}(conn)
	}
}

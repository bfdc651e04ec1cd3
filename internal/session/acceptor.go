package session

import (
	"context"
	"net"
	"sync"

	"github.com/advens/darwin-go/internal/darwinlog"
)

// Factory builds the per-session Config for a freshly accepted
// connection. It is called once per connection, letting a caller share
// immutable config (classifier, cache, alert manager, pool) across every
// Session without reconstructing it per connection.
type Factory func() Config

// Acceptor runs the listener accept loop: one goroutine per connection,
// each running its own Session.Serve, mirroring
// cmd/broker/transport/uds_transport.go's acceptLoop/handleNewConnection
// split.
type Acceptor struct {
	ln      net.Listener
	factory Factory
	log     *darwinlog.Logger

	wg sync.WaitGroup
}

// NewAcceptor wraps ln; factory supplies a fresh Config for each
// accepted connection.
func NewAcceptor(ln net.Listener, factory Factory, log *darwinlog.Logger) *Acceptor {
	if log == nil {
		log = darwinlog.Default()
	}
	return &Acceptor{ln: ln, factory: factory, log: log}
}

// Run accepts connections until ctx is canceled or the listener errs.
// It blocks until every in-flight Session.Serve returns.
func (a *Acceptor) Run(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		a.ln.Close()
	}()

	for {
		conn, err := a.ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				a.wg.Wait()
				return nil
			default:
				a.wg.Wait()
				return err
			}
		}

		a.wg.Add(1)
		go func() {
			defer a.wg.Done()
			sess := New(conn, a.factory())
			sess.Serve(ctx)
		}()
	}
}

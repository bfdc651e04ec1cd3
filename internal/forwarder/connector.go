package forwarder

import (
	"net"

	"github.com/advens/darwin-go/internal/sysopt"
)

// connector is the tagged-variant-behind-one-interface model the
// design notes call for, replacing the C++ multiple-inheritance
// hierarchy of TcpNextFilterConnector/UnixNextFilterConnector/
// UdpNextFilterConnector. One concrete type, netConnector, serves all
// three transports; only the dial network/address differ.
type connector interface {
	connect() (net.Conn, error)
}

type netConnector struct {
	network string
	addr    string
}

func (c *netConnector) connect() (net.Conn, error) {
	conn, err := net.Dial(c.network, c.addr)
	if err != nil {
		return nil, err
	}
	if tcp, ok := conn.(*net.TCPConn); ok {
		tuneTCP(tcp)
	}
	return conn, nil
}

// tuneTCP applies the low-latency socket options to a fresh downstream
// TCP connection. Tuning failures are ignored: a connection that
// cannot be tuned still carries packets.
func tuneTCP(conn *net.TCPConn) {
	raw, err := conn.SyscallConn()
	if err != nil {
		return
	}
	_ = raw.Control(func(fd uintptr) {
		_ = sysopt.TuneTCPSocket(int(fd))
	})
}

func newConnector(network Network, addr string) connector {
	return &netConnector{network: string(network), addr: addr}
}

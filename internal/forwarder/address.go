package forwarder

import (
	"fmt"
	"net"
	"strconv"

	"github.com/advens/darwin-go/internal/darwinerr"
)

// Network identifies the transport a forwarder target resolves to.
type Network string

const (
	NetworkUnix Network = "unix"
	NetworkTCP  Network = "tcp"
	NetworkUDP  Network = "udp"
)

// ParseAddress classifies addr the way cmd/broker/transport/
// transport_factory.go dispatches on configuration shape: "host:port"
// or "[v6]:port" parses as TCP or UDP (per useUDP), anything else is
// treated as a UNIX socket path. It fails on an unparseable host:port
// form (e.g. a non-numeric port).
func ParseAddress(addr string, useUDP bool) (Network, string, error) {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		// Not a host:port shape at all -- treat as a UNIX path.
		return NetworkUnix, addr, nil
	}
	if _, err := strconv.ParseUint(port, 10, 16); err != nil {
		return "", "", darwinerr.Wrap(darwinerr.CodeConfigInvalid, fmt.Sprintf("invalid port in address %q", addr), err)
	}
	network := NetworkTCP
	if useUDP {
		network = NetworkUDP
	}
	return network, net.JoinHostPort(host, port), nil
}

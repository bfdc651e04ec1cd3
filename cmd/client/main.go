// Command client is a manual test client for a running filter: it
// frames a request body as a Darwin packet, sends it to the filter's
// listening socket, and prints the response certitudes. Useful for
// poking a deployed filter without an upstream pipeline.
package main

import (
	"flag"
	"fmt"
	"io"
	"net"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/advens/darwin-go/internal/darwinpacket"
	"github.com/advens/darwin-go/internal/forwarder"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout))
}

func run(argv []string, out io.Writer) int {
	fs := flag.NewFlagSet("client", flag.ContinueOnError)
	filterCode := fs.Uint64("filter-code", 0, "filter code to stamp on the request")
	timeout := fs.Duration("timeout", 5*time.Second, "dial and response timeout")
	if err := fs.Parse(argv); err != nil {
		return 1
	}
	if fs.NArg() != 2 {
		fmt.Fprintf(os.Stderr, "usage: client [flags] <address> <json-body>\n")
		return 1
	}
	address, body := fs.Arg(0), fs.Arg(1)

	pkt, err := send(address, body, *filterCode, *timeout)
	if err != nil {
		fmt.Fprintf(os.Stderr, "client: %v\n", err)
		return 1
	}

	fmt.Fprintf(out, "event id:   %s\n", pkt.EventID.String())
	fmt.Fprintf(out, "certitudes: %v\n", pkt.Certitudes)
	if len(pkt.Body) > 0 {
		fmt.Fprintf(out, "body:       %s\n", pkt.Body)
	}
	return 0
}

func send(address, body string, filterCode uint64, timeout time.Duration) (*darwinpacket.Packet, error) {
	network, addr, err := forwarder.ParseAddress(address, false)
	if err != nil {
		return nil, err
	}

	u := uuid.New()
	var eventID darwinpacket.EventID
	copy(eventID[:], u[:])

	pkt := darwinpacket.New(
		darwinpacket.TypeFilter,
		darwinpacket.ResponseBack,
		filterCode,
		eventID,
		0,
		uint64(len(body)),
	)
	pkt.Body = []byte(body)

	conn, err := net.DialTimeout(string(network), addr, timeout)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", address, err)
	}
	defer conn.Close()

	if _, err := conn.Write(pkt.Encode()); err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}

	_ = conn.SetReadDeadline(time.Now().Add(timeout))
	return readResponse(conn)
}

func readResponse(conn net.Conn) (*darwinpacket.Packet, error) {
	header := make([]byte, darwinpacket.HeaderFixedSize())
	if _, err := io.ReadFull(conn, header); err != nil {
		return nil, fmt.Errorf("read response header: %w", err)
	}
	total, err := darwinpacket.PeekLength(header)
	if err != nil {
		return nil, err
	}
	frame := make([]byte, total)
	copy(frame, header)
	if _, err := io.ReadFull(conn, frame[len(header):]); err != nil {
		return nil, fmt.Errorf("read response payload: %w", err)
	}
	return darwinpacket.Decode(frame, darwinpacket.DefaultLimits())
}

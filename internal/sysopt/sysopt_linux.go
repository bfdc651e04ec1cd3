//go:build linux

// Package sysopt carries the Linux-specific TCP socket tuning the
// filter daemon applies to its downstream connections, grounded on the
// teacher's linux_optimizations.go.
package sysopt

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// TuneTCPSocket applies low-latency socket options to a connected TCP
// descriptor: disables Nagle's algorithm and requests immediate ACKs,
// since forwarded certitude results are small and latency-sensitive.
func TuneTCPSocket(fd int) error {
	if err := unix.SetsockoptInt(fd, unix.IPPROTO_TCP, unix.TCP_NODELAY, 1); err != nil {
		return fmt.Errorf("set TCP_NODELAY: %w", err)
	}
	if err := unix.SetsockoptInt(fd, unix.IPPROTO_TCP, unix.TCP_QUICKACK, 1); err != nil {
		// Not fatal: not all kernels support this.
		return nil
	}
	return nil
}

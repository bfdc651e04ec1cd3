//go:build !linux

package sysopt

// TuneTCPSocket is a no-op on non-Linux platforms.
func TuneTCPSocket(fd int) error { return nil }

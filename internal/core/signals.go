package core

import (
	"os"
	"os/signal"
	"syscall"
)

// ShutdownSignals returns a channel delivering SIGINT/SIGTERM/SIGQUIT,
// the graceful-shutdown set of spec.md §6, extending
// pkg/proc/subprocess/signal.go's SetupSignalHandler (which only
// covers os.Interrupt/SIGTERM) with SIGQUIT.
func ShutdownSignals() chan os.Signal {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, os.Interrupt, syscall.SIGTERM, syscall.SIGQUIT)
	return ch
}

// RotateSignals returns a channel delivering SIGUSR1/SIGHUP, the
// log-rotation trigger set of spec.md §6.
func RotateSignals() chan os.Signal {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGUSR1, syscall.SIGHUP)
	return ch
}

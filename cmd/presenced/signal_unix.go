//go:build !windows

package main

import (
	"os"
	"os/signal"
	"syscall"
)

// ///////////////////////////////////////////////
// Signal Handling
// ///////////////////////////////////////////////

// signalChannel delivers shutdown signals (SIGINT, SIGTERM) on the first
// channel and reload requests (SIGHUP) on the second.
func signalChannel() (shutdown, reload <-chan os.Signal) {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	return stop, hup
}

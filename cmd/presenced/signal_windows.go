//go:build windows

package main

import (
	"os"
	"os/signal"
)

// ///////////////////////////////////////////////
// Signal Handling
// ///////////////////////////////////////////////

// signalChannel delivers os.Interrupt on the first channel. Windows has no
// SIGHUP, so the reload channel never fires; edits to config.toml are still
// picked up by the file watcher.
func signalChannel() (shutdown, reload <-chan os.Signal) {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt)
	return stop, make(chan os.Signal)
}

package main

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// ///////////////////////////////////////////////
// PID Management
// ///////////////////////////////////////////////

// pidToken generates a random 16-character hex token that proves ownership of
// the PID file, so [removePID] only deletes a file this instance wrote.
func pidToken() string {
	b := make([]byte, 8)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}

// writePID opens the PID file, takes the advisory lock, and writes
// "PID:TOKEN". The returned handle holds the lock and must stay open for the
// daemon's lifetime; pass it to [removePID] on shutdown.
func writePID(paths DataPaths, token string) (*os.File, error) {
	f, err := os.OpenFile(paths.PID(), os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		return nil, fmt.Errorf("open PID file: %w", err)
	}
	if err := lockFile(f); err != nil {
		f.Close()
		return nil, fmt.Errorf("lock PID file: %w", err)
	}
	if err := f.Truncate(0); err != nil {
		_ = unlockFile(f)
		f.Close()
		return nil, fmt.Errorf("truncate PID file: %w", err)
	}
	if _, err := fmt.Fprintf(f, "%d:%s", os.Getpid(), token); err != nil {
		_ = unlockFile(f)
		f.Close()
		return nil, fmt.Errorf("write PID file: %w", err)
	}
	return f, nil
}

// removePID releases the lock, closes f, and removes the PID file only if it
// still carries token.
func removePID(paths DataPaths, token string, f *os.File) {
	if f != nil {
		_ = unlockFile(f)
		f.Close()
	}
	data, err := os.ReadFile(paths.PID())
	if err != nil {
		return
	}
	parts := strings.SplitN(string(data), ":", 2)
	if len(parts) == 2 && parts[1] == token {
		os.Remove(paths.PID())
	}
}

// checkStalePID reports whether another daemon holds the PID file lock. A
// file whose lock can be taken belongs to a dead process and is removed.
func checkStalePID(paths DataPaths) (alive bool, pid int) {
	f, err := os.OpenFile(paths.PID(), os.O_RDWR, 0o600)
	if err != nil {
		return false, 0
	}

	if lockErr := lockFile(f); lockErr != nil {
		data, _ := os.ReadFile(paths.PID())
		f.Close()
		parts := strings.SplitN(string(data), ":", 2)
		if p, convErr := strconv.Atoi(parts[0]); convErr == nil {
			return true, p
		}
		return true, 0
	}

	_ = unlockFile(f)
	f.Close()
	os.Remove(paths.PID())
	return false, 0
}

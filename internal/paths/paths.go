// Package paths centralizes file and directory names used across the project.
// All data directory file names are defined here as the single source of truth.
package paths

import "path/filepath"

// ///////////////////////////////////////////////
// Constants
// ///////////////////////////////////////////////

// Data directory file names.
const (
	PIDFile     = "presenced.pid"
	ConfigFile  = "config.toml"
	LogFile     = "presenced.log"
	EnvFile     = ".env"
	HistoryFile = "history.db"
)

// Process and layout constants.
const (
	BinaryName = "presenced"
	DataDirRel = ".presenced" // relative to $HOME
)

// Remote file paths, relative to the repository root.
const (
	ReleaseManifest = ".release-manifest.json"
)

// Environment variables read on top of the config file.
const (
	EnvUserID  = "PRESENCE_USER_ID"
	EnvBaseURL = "PRESENCE_BASE_URL"
)

// ///////////////////////////////////////////////
// DataDir
// ///////////////////////////////////////////////

// DataDir provides path construction methods rooted at a data directory.
type DataDir struct {
	Root string
}

// PID returns the full path to the PID file.
func (d DataDir) PID() string { return filepath.Join(d.Root, PIDFile) }

// Config returns the full path to the config file.
func (d DataDir) Config() string { return filepath.Join(d.Root, ConfigFile) }

// Log returns the full path to the log file.
func (d DataDir) Log() string { return filepath.Join(d.Root, LogFile) }

// Env returns the full path to the optional dotenv file.
func (d DataDir) Env() string { return filepath.Join(d.Root, EnvFile) }

// History returns the full path to the SQLite display history.
func (d DataDir) History() string { return filepath.Join(d.Root, HistoryFile) }

// Package presenced provides embedded assets for the presenced daemon.
//
// The root package exists solely to embed config.default.toml via
// [DefaultConfigTOML]. The daemon writes it to the data directory on first
// run.
package presenced

import _ "embed"

// DefaultConfigTOML holds the raw bytes of config.default.toml, embedded at
// build time.
//
//go:embed config.default.toml
var DefaultConfigTOML []byte

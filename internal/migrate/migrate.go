// Package migrate upgrades versioned on-disk documents one schema step at a
// time.
package migrate

import (
	"fmt"
	"log/slog"
	"sort"
)

// ///////////////////////////////////////////////
// Types
// ///////////////////////////////////////////////

// Migration upgrades a document to [Migration.Version] from the version
// immediately before it.
type Migration struct {
	// Version is the schema version this migration produces.
	Version int
	// Description is a short label for log output.
	Description string
	// Upgrade transforms the raw document.
	Upgrade func(data []byte) ([]byte, error)
}

// Registry holds the target version and the ordered upgrades for one
// document type.
type Registry struct {
	// CurrentVersion is the version every document is upgraded to.
	CurrentVersion int

	migrations []Migration
}

// ///////////////////////////////////////////////
// Registry
// ///////////////////////////////////////////////

// Register adds m to the registry. It panics on a duplicate version or on a
// version beyond CurrentVersion, both of which are programming errors.
func (r *Registry) Register(m Migration) {
	if m.Version > r.CurrentVersion {
		panic(fmt.Sprintf("migrate: migration v%d exceeds current version %d", m.Version, r.CurrentVersion))
	}
	for _, existing := range r.migrations {
		if existing.Version == m.Version {
			panic(fmt.Sprintf("migrate: duplicate migration version %d (description: %q)", m.Version, m.Description))
		}
	}
	r.migrations = append(r.migrations, m)
	sort.Slice(r.migrations, func(i, j int) bool {
		return r.migrations[i].Version < r.migrations[j].Version
	})
}

// Pending reports whether a document at fileVersion needs upgrading.
func (r *Registry) Pending(fileVersion int) bool {
	return fileVersion < r.CurrentVersion
}

// Run applies every registered migration newer than fromVersion, in order.
// It returns the upgraded data and the version reached. A document newer
// than CurrentVersion is rejected rather than silently downgraded.
func (r *Registry) Run(data []byte, fromVersion int) ([]byte, int, error) {
	if fromVersion > r.CurrentVersion {
		return nil, fromVersion, fmt.Errorf("document version %d is newer than supported version %d", fromVersion, r.CurrentVersion)
	}
	version := fromVersion
	for _, m := range r.migrations {
		if version >= m.Version {
			continue
		}
		slog.Info("applying migration", "version", m.Version, "description", m.Description)
		var err error
		data, err = m.Upgrade(data)
		if err != nil {
			return nil, version, fmt.Errorf("migration to v%d failed: %w", m.Version, err)
		}
		version = m.Version
	}
	return data, r.CurrentVersion, nil
}

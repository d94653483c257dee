package paths

import (
	"path/filepath"
	"testing"
)

// ///////////////////////////////////////////////
// Constant Value Tests
// ///////////////////////////////////////////////

func TestConstantValues(t *testing.T) {
	tests := []struct {
		name string
		got  string
		want string
	}{
		{"DataDirRel", DataDirRel, ".presenced"},
		{"PIDFile", PIDFile, "presenced.pid"},
		{"ConfigFile", ConfigFile, "config.toml"},
		{"LogFile", LogFile, "presenced.log"},
		{"EnvFile", EnvFile, ".env"},
		{"HistoryFile", HistoryFile, "history.db"},
		{"ReleaseManifest", ReleaseManifest, ".release-manifest.json"},
		{"BinaryName", BinaryName, "presenced"},
		{"EnvUserID", EnvUserID, "PRESENCE_USER_ID"},
		{"EnvBaseURL", EnvBaseURL, "PRESENCE_BASE_URL"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("%s = %q, want %q", tt.name, tt.got, tt.want)
			}
		})
	}
}

// ///////////////////////////////////////////////
// DataDir Method Tests
// ///////////////////////////////////////////////

func TestDataDirMethods(t *testing.T) {
	root := filepath.Join("home", "user", ".presenced")
	d := DataDir{Root: root}

	tests := []struct {
		name string
		got  string
		want string
	}{
		{"PID", d.PID(), filepath.Join(root, "presenced.pid")},
		{"Config", d.Config(), filepath.Join(root, "config.toml")},
		{"Log", d.Log(), filepath.Join(root, "presenced.log")},
		{"Env", d.Env(), filepath.Join(root, ".env")},
		{"History", d.History(), filepath.Join(root, "history.db")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("%s() = %q, want %q", tt.name, tt.got, tt.want)
			}
		})
	}
}

func TestDataDirEmptyRoot(t *testing.T) {
	d := DataDir{Root: ""}

	// With an empty root, methods return just the file name.
	if got := d.Config(); got != ConfigFile {
		t.Errorf("Config() = %q, want %q", got, ConfigFile)
	}
	if got := d.PID(); got != PIDFile {
		t.Errorf("PID() = %q, want %q", got, PIDFile)
	}
}

package main

import (
	"bytes"
	"errors"
	"io"
	"log/slog"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	rootpkg "tools.zach/dev/presenced"
	"tools.zach/dev/presenced/internal/history"
	"tools.zach/dev/presenced/internal/paths"
	"tools.zach/dev/presenced/internal/presence"
	"tools.zach/dev/presenced/internal/view"
)

// runCmd executes the root command with args and returns its stdout.
func runCmd(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

// ///////////////////////////////////////////////
// version / config
// ///////////////////////////////////////////////

func TestVersionCmd(t *testing.T) {
	got, err := runCmd(t, "version")
	if err != nil {
		t.Fatalf("version: %v", err)
	}
	if strings.TrimSpace(got) != resolveVersion() {
		t.Errorf("version printed %q, want %q", got, resolveVersion())
	}
}

func TestConfigPathCmd(t *testing.T) {
	dir := t.TempDir()
	got, err := runCmd(t, "config", "path", "--data-dir", dir)
	if err != nil {
		t.Fatalf("config path: %v", err)
	}
	if want := filepath.Join(dir, paths.ConfigFile); strings.TrimSpace(got) != want {
		t.Errorf("config path = %q, want %q", got, want)
	}
}

func TestConfigInitCmd(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested")

	got, err := runCmd(t, "config", "init", "--data-dir", dir)
	if err != nil {
		t.Fatalf("config init: %v", err)
	}
	if !strings.Contains(got, "wrote") {
		t.Errorf("first init output = %q, want a wrote message", got)
	}
	data, err := os.ReadFile(filepath.Join(dir, paths.ConfigFile))
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(data, rootpkg.DefaultConfigTOML) {
		t.Error("config init wrote something other than the default config")
	}

	got, err = runCmd(t, "config", "init", "--data-dir", dir)
	if err != nil {
		t.Fatalf("second config init: %v", err)
	}
	if !strings.Contains(got, "already exists") {
		t.Errorf("second init output = %q, want already exists", got)
	}
}

func TestConfigValidateCmd(t *testing.T) {
	t.Setenv(paths.EnvUserID, "")
	t.Setenv(paths.EnvBaseURL, "")

	tests := []struct {
		name    string
		content string
		wantErr bool
		want    string
	}{
		{"valid", "version = 2\n[presence]\nuser_id = \"alice\"\n", false, "alice"},
		{"no user", "version = 2\n", false, "not set"},
		{"bad interval", "version = 2\n[presence]\ninterval_ms = -1\n", true, ""},
		{"broken toml", "[[[", true, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			if err := os.WriteFile(filepath.Join(dir, paths.ConfigFile), []byte(tt.content), 0o644); err != nil {
				t.Fatal(err)
			}
			got, err := runCmd(t, "config", "validate", "--data-dir", dir)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if !strings.Contains(got, tt.want) {
				t.Errorf("output %q missing %q", got, tt.want)
			}
		})
	}
}

// ///////////////////////////////////////////////
// status
// ///////////////////////////////////////////////

type fixedSource struct {
	snap presence.Snapshot
}

func (s fixedSource) Snapshot() presence.Snapshot { return s.snap }

func TestDialAddr(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"127.0.0.1:7331", "127.0.0.1:7331"},
		{":7331", "127.0.0.1:7331"},
		{"0.0.0.0:80", "127.0.0.1:80"},
		{"[::]:80", "127.0.0.1:80"},
		{"example.com:8080", "example.com:8080"},
		{"no-port", "no-port"},
	}
	for _, tt := range tests {
		if got := dialAddr(tt.in); got != tt.want {
			t.Errorf("dialAddr(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestStatusCmd(t *testing.T) {
	now := time.Now()
	tests := []struct {
		name string
		snap presence.Snapshot
		want []string
	}{
		{
			name: "ready",
			snap: presence.Snapshot{
				Status:     presence.StatusReady,
				Generation: 4,
				UpdatedAt:  now,
				Primary: &presence.Candidate{Activity: &presence.ActivityStatus{
					Name:   "Minecraft",
					Phrase: presence.Phrase{Action: presence.ActionUsing, Target: "Minecraft"},
				}},
			},
			want: []string{"ready", "Using Minecraft", "activity"},
		},
		{
			name: "errored",
			snap: presence.Snapshot{Status: presence.StatusErrored, Err: presence.ErrNetwork},
			want: []string{"errored", "network", "nothing to show"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(view.NewServer(view.ServerOptions{
				Source:  fixedSource{snap: tt.snap},
				Version: "1.2.3",
				Logger:  slog.New(slog.DiscardHandler),
			}).Handler())
			defer srv.Close()

			listen := strings.TrimPrefix(srv.URL, "http://")
			got, err := runCmd(t, "status", "--data-dir", t.TempDir(), "--listen", listen)
			if err != nil {
				t.Fatalf("status: %v", err)
			}
			for _, w := range append(tt.want, "1.2.3") {
				if !strings.Contains(got, w) {
					t.Errorf("status output %q missing %q", got, w)
				}
			}
		})
	}
}

func TestStatusCmdUnreachable(t *testing.T) {
	srv := httptest.NewServer(nil)
	listen := strings.TrimPrefix(srv.URL, "http://")
	srv.Close()

	_, err := runCmd(t, "status", "--data-dir", t.TempDir(), "--listen", listen)
	if err == nil || !strings.Contains(err.Error(), "not reachable") {
		t.Errorf("err = %v, want not reachable", err)
	}
}

// ///////////////////////////////////////////////
// history
// ///////////////////////////////////////////////

func TestHistoryCmd(t *testing.T) {
	dir := t.TempDir()

	got, err := runCmd(t, "history", "--data-dir", dir)
	if err != nil {
		t.Fatalf("history on empty dir: %v", err)
	}
	if !strings.Contains(got, "no history") {
		t.Errorf("output = %q, want no history", got)
	}
	if _, err := os.Stat(filepath.Join(dir, paths.HistoryFile)); !errors.Is(err, os.ErrNotExist) {
		t.Error("history command created the database")
	}

	store, err := history.Open(filepath.Join(dir, paths.HistoryFile))
	if err != nil {
		t.Fatal(err)
	}
	base := time.Now().Add(-time.Hour)
	for i, text := range []string{"Coding main.go (Go)", "Song – Artist", "Using Minecraft"} {
		if _, err := store.Record(t.Context(), "activity", text, base.Add(time.Duration(i)*time.Minute)); err != nil {
			t.Fatal(err)
		}
	}
	store.Close()

	got, err = runCmd(t, "history", "--data-dir", dir, "-n", "2")
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	lines := strings.Split(strings.TrimRight(got, "\n"), "\n")
	if len(lines) != 2 {
		t.Fatalf("got %d lines, want 2:\n%s", len(lines), got)
	}
	if !strings.Contains(lines[0], "Using Minecraft") || !strings.Contains(lines[1], "Song – Artist") {
		t.Errorf("lines not newest first:\n%s", got)
	}
}

func TestFormatHistory(t *testing.T) {
	now := time.Date(2026, 3, 10, 18, 0, 0, 0, time.UTC)
	entries := []history.Entry{
		{Kind: "music", Text: "Song – Artist", At: now.Add(-time.Hour)},
		{Kind: "activity", Text: "Coding main.go (Go)", At: now.Add(-48 * time.Hour)},
	}
	got := formatHistory(entries, now)

	for _, w := range []string{"17:00:00", "Song – Artist", "Mar 08 18:00", "Coding main.go (Go)"} {
		if !strings.Contains(got, w) {
			t.Errorf("formatHistory output missing %q:\n%s", w, got)
		}
	}
	if strings.Contains(got, "Mar 10") {
		t.Errorf("today's entry shows a date:\n%s", got)
	}
}

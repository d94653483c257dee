package update

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

// ///////////////////////////////////////////////
// Newer Tests
// ///////////////////////////////////////////////

func TestNewer(t *testing.T) {
	tests := []struct {
		name    string
		current string
		latest  string
		want    bool
	}{
		{"equal versions", "1.2.3", "1.2.3", false},
		{"older major", "0.9.9", "1.0.0", true},
		{"newer major", "2.0.0", "1.9.9", false},
		{"older minor", "1.0.0", "1.1.0", true},
		{"older patch", "1.0.0", "1.0.1", true},
		{"with v prefix", "v0.1.0", "v0.2.0", true},
		{"mixed prefix", "0.1.0", "v0.2.0", true},
		{"pre-release less than release", "0.1.0-dev", "0.1.0", true},
		{"release not less than pre-release", "0.1.0", "0.1.0-dev", false},
		{"pre-releases ordered", "1.0.0-alpha", "1.0.0-beta", true},
		{"build metadata ignored", "1.0.0+abc", "1.0.0", false},
		{"dev build", "dev+05ffee5", "1.0.0", false},
		{"invalid latest", "1.0.0", "invalid", false},
		{"empty latest", "1.0.0", "", false},
		{"short version", "1.2", "1.3", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Newer(tt.current, tt.latest); got != tt.want {
				t.Errorf("Newer(%q, %q) = %v, want %v", tt.current, tt.latest, got, tt.want)
			}
		})
	}
}

// ///////////////////////////////////////////////
// Checker Tests
// ///////////////////////////////////////////////

func manifestServer(t *testing.T, status int, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestLatest(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		want    string
		wantErr bool
	}{
		{"valid manifest", http.StatusOK, `{".": "2.0.0", "tools/x": "0.1.0"}`, "2.0.0", false},
		{"missing root key", http.StatusOK, `{}`, "", false},
		{"invalid JSON", http.StatusOK, `not json`, "", true},
		{"not found", http.StatusNotFound, ``, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := manifestServer(t, tt.status, tt.body)
			got, err := NewChecker(srv.URL).Latest(t.Context())
			if (err != nil) != tt.wantErr {
				t.Fatalf("Latest() error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("Latest() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestLatestCancelled(t *testing.T) {
	srv := manifestServer(t, http.StatusOK, `{".": "1.0.0"}`)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := NewChecker(srv.URL).Latest(ctx); err == nil {
		t.Error("expected error for cancelled context")
	}
}

func TestCheckLogsNewerVersion(t *testing.T) {
	body, _ := json.Marshal(map[string]string{".": "1.2.0"})
	srv := manifestServer(t, http.StatusOK, string(body))

	var buf bytes.Buffer
	log := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	NewChecker(srv.URL).Check(t.Context(), "1.0.0", log)
	if !strings.Contains(buf.String(), "new version available") {
		t.Errorf("log = %q, want new version notice", buf.String())
	}

	buf.Reset()
	NewChecker(srv.URL).Check(t.Context(), "1.2.0", log)
	if strings.Contains(buf.String(), "new version available") {
		t.Errorf("same version logged an update: %q", buf.String())
	}
}

// ///////////////////////////////////////////////
// Source Tests
// ///////////////////////////////////////////////

func TestParseRemote(t *testing.T) {
	tests := []struct {
		input     string
		wantOwner string
		wantRepo  string
	}{
		{"https://github.com/user/repo", "user", "repo"},
		{"https://github.com/user/repo.git", "user", "repo"},
		{"git@github.com:user/repo.git", "user", "repo"},
		{"git@github.com:my-org/my-project\n", "my-org", "my-project"},
		{"https://github.com/zach/presenced\n", "zach", "presenced"},
		{"https://gitlab.com/user/repo", "", ""},
		{"just some text", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			owner, repo := parseRemote(tt.input)
			if owner != tt.wantOwner || repo != tt.wantRepo {
				t.Errorf("parseRemote(%q) = %q, %q; want %q, %q", tt.input, owner, repo, tt.wantOwner, tt.wantRepo)
			}
		})
	}
}

func TestRawURLFromGitOutput(t *testing.T) {
	owner, repo := parseRemote("https://github.com/zach/presenced\n")
	got := rawURL(owner, repo, ".release-manifest.json")
	if got != "https://raw.githubusercontent.com/zach/presenced/main/.release-manifest.json" {
		t.Errorf("rawURL from git output = %q", got)
	}
}

func TestRawURL(t *testing.T) {
	if got := rawURL("", "repo", "f"); got != "" {
		t.Errorf("rawURL without owner = %q, want empty", got)
	}
	if got := rawURL("owner", "", "f"); got != "" {
		t.Errorf("rawURL without repo = %q, want empty", got)
	}
	want := "https://raw.githubusercontent.com/o/r/main/.release-manifest.json"
	if got := rawURL("o", "r", ".release-manifest.json"); got != want {
		t.Errorf("rawURL = %q, want %q", got, want)
	}
}

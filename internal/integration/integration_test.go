// Package integration runs the full presence pipeline against a fake watcher:
// HTTP client, poller, parser, history store, and the widget server.
package integration

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"tools.zach/dev/presenced/internal/history"
	"tools.zach/dev/presenced/internal/presence"
	"tools.zach/dev/presenced/internal/view"
)

// ///////////////////////////////////////////////
// Helpers
// ///////////////////////////////////////////////

// watcher is a fake upstream. It serves body for /<user> and remembers the
// cache headers it was sent.
type watcher struct {
	mu           sync.Mutex
	status       int
	body         string
	cacheControl string
}

func (w *watcher) set(status int, body string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.status, w.body = status, body
}

func (w *watcher) ServeHTTP(rw http.ResponseWriter, r *http.Request) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.cacheControl = r.Header.Get("Cache-Control")
	if r.URL.Path != "/alice" {
		http.NotFound(rw, r)
		return
	}
	rw.Header().Set("Content-Type", "application/json")
	rw.WriteHeader(w.status)
	io.WriteString(rw, w.body)
}

func codingBody(file string) string {
	return fmt.Sprintf(`{"ok": true, "presence_data": {"misc_activities": [{
		"name": "Code",
		"details": "Editing %[1]s",
		"state": "Working on %[1]s:12:4",
		"assets": {"large_image": "mp:external/x/https/cdn.example/icons/go.png"}
	}]}}`, file)
}

func musicBody(end time.Time) string {
	return fmt.Sprintf(`{"ok": true, "presence_data": {"spotify_status": {
		"album": {"name": "Album", "cover_url": "https://i.example/cover.jpg"},
		"track": {"name": "Song", "artists": ["Artist"], "start": %q, "end": %q, "url": "https://open.example/track/1"}
	}, "misc_activities": []}}`, end.Add(-3*time.Minute).Format(time.RFC3339), end.Format(time.RFC3339))
}

type pipeline struct {
	upstream *watcher
	server   *httptest.Server
	history  *history.Store
}

// startPipeline wires every layer together and runs the poller until the
// test ends.
func startPipeline(t *testing.T, up *watcher) *pipeline {
	t.Helper()
	log := slog.New(slog.DiscardHandler)

	upSrv := httptest.NewServer(up)
	t.Cleanup(upSrv.Close)

	hist, err := history.Open(filepath.Join(t.TempDir(), "history.db"))
	if err != nil {
		t.Fatalf("history.Open: %v", err)
	}
	t.Cleanup(func() { hist.Close() })

	reg := prometheus.NewPedanticRegistry()
	p := presence.NewPoller(presence.PollerOptions{
		UserID:   "alice",
		Interval: 50 * time.Millisecond,
		Fetcher: presence.NewClient(presence.ClientOptions{
			BaseURL: upSrv.URL,
			Timeout: 2 * time.Second,
			Logger:  log,
		}),
		Parser: presence.NewParser(presence.ParserOptions{
			HideFiles:  []string{"**/*.env", "*.env"},
			HiddenText: "a secret file",
		}),
		Logger:  log,
		Metrics: presence.NewMetrics(reg),
	})

	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		p.Run(ctx)
	}()
	go func() {
		defer wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case <-p.Changes():
			}
			if d := view.Render(p.Snapshot(), time.Now()); d != nil {
				hist.Record(ctx, d.Kind, d.Text, d.UpdatedAt)
			}
		}
	}()
	t.Cleanup(func() {
		cancel()
		wg.Wait()
	})

	srv := httptest.NewServer(view.NewServer(view.ServerOptions{
		Source:   p,
		History:  hist,
		Gatherer: reg,
		Version:  "test",
		Logger:   log,
	}).Handler())
	t.Cleanup(srv.Close)

	return &pipeline{upstream: up, server: srv, history: hist}
}

// presenceLine fetches /presence and returns the rendered text, or "" on 204.
func (p *pipeline) presenceLine(t *testing.T) string {
	t.Helper()
	resp, err := http.Get(p.server.URL + "/presence")
	if err != nil {
		t.Fatalf("GET /presence: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNoContent {
		return ""
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("GET /presence: status %d", resp.StatusCode)
	}
	var d view.Display
	if err := json.NewDecoder(resp.Body).Decode(&d); err != nil {
		t.Fatalf("decode /presence: %v", err)
	}
	return d.Text
}

func (p *pipeline) waitForLine(t *testing.T, want string) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	var got string
	for time.Now().Before(deadline) {
		if got = p.presenceLine(t); got == want {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("presence line = %q, want %q", got, want)
}

// waitForHistory waits until the newest history entry is want.
func (p *pipeline) waitForHistory(t *testing.T, want string) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		entries, err := p.history.Recent(t.Context(), 1)
		if err == nil && len(entries) == 1 && entries[0].Text == want {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("newest history entry never became %q", want)
}

// ///////////////////////////////////////////////
// Pipeline Tests
// ///////////////////////////////////////////////

func TestPipelineFollowsUpstream(t *testing.T) {
	up := &watcher{}
	up.set(http.StatusOK, codingBody("main.go"))
	p := startPipeline(t, up)

	p.waitForLine(t, "Coding main.go (Go)")
	p.waitForHistory(t, "Coding main.go (Go)")

	up.set(http.StatusOK, musicBody(time.Now().Add(time.Hour)))
	p.waitForLine(t, "Song – Artist")
	p.waitForHistory(t, "Song – Artist")

	up.set(http.StatusOK, codingBody("config/prod.env"))
	p.waitForLine(t, "Coding a secret file (Go)")
	p.waitForHistory(t, "Coding a secret file (Go)")

	up.set(http.StatusInternalServerError, `{"ok": false}`)
	p.waitForLine(t, "")

	entries, err := p.history.Recent(t.Context(), 10)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	var texts []string
	for _, e := range entries {
		texts = append(texts, e.Text)
	}
	want := []string{"Coding a secret file (Go)", "Song – Artist", "Coding main.go (Go)"}
	if strings.Join(texts, "|") != strings.Join(want, "|") {
		t.Errorf("history = %q, want %q", texts, want)
	}
	for _, text := range texts {
		if strings.Contains(text, "prod.env") {
			t.Errorf("hidden file leaked into history: %q", text)
		}
	}
}

func TestPipelineBypassesCaches(t *testing.T) {
	up := &watcher{}
	up.set(http.StatusOK, codingBody("main.go"))
	p := startPipeline(t, up)
	p.waitForLine(t, "Coding main.go (Go)")

	up.mu.Lock()
	got := up.cacheControl
	up.mu.Unlock()
	if !strings.Contains(got, "no-store") {
		t.Errorf("upstream Cache-Control = %q, want no-store", got)
	}

	resp, err := http.Get(p.server.URL + "/presence")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if cc := resp.Header.Get("Cache-Control"); cc != "no-store" {
		t.Errorf("widget Cache-Control = %q, want no-store", cc)
	}
}

func TestPipelineMetrics(t *testing.T) {
	up := &watcher{}
	up.set(http.StatusOK, codingBody("main.go"))
	p := startPipeline(t, up)
	p.waitForLine(t, "Coding main.go (Go)")

	resp, err := http.Get(p.server.URL + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), "presenced_") {
		t.Errorf("/metrics has no presenced series:\n%s", body)
	}
}

package main

import (
	"context"
	"log/slog"
	"reflect"
	"sync"
	"sync/atomic"
	"time"

	"tools.zach/dev/presenced/internal/config"
	"tools.zach/dev/presenced/internal/history"
	"tools.zach/dev/presenced/internal/logger"
	"tools.zach/dev/presenced/internal/presence"
	"tools.zach/dev/presenced/internal/view"
)

// ///////////////////////////////////////////////
// Daemon
// ///////////////////////////////////////////////

// daemon owns the running poller and replaces it when the configuration
// changes. It implements view.Source.
type daemon struct {
	dataDir string
	metrics *presence.Metrics
	log     *slog.Logger
	// history records distinct display lines; nil disables recording.
	history *history.Store
	// newFetcher builds the upstream fetcher for a config.
	newFetcher func(cfg *config.Config) presence.Fetcher
	// listen overrides server.listen in every loaded config when set.
	listen string

	// mu serializes start and stop, and guards the fields below.
	mu     sync.Mutex
	cfg    *config.Config
	cancel context.CancelFunc
	done   chan struct{}

	poller atomic.Pointer[presence.Poller]
}

func newDaemon(dataDir string, metrics *presence.Metrics, hist *history.Store, log *slog.Logger) *daemon {
	d := &daemon{
		dataDir: dataDir,
		metrics: metrics,
		history: hist,
		log:     log,
	}
	d.newFetcher = func(cfg *config.Config) presence.Fetcher {
		return presence.NewClient(presence.ClientOptions{
			BaseURL:  cfg.Presence.BaseURL,
			Timeout:  cfg.RequestTimeout(),
			RetryMax: cfg.Presence.RetryMax,
			Logger:   log.With("component", "client"),
		})
	}
	return d
}

// Snapshot returns the current poller's state.
func (d *daemon) Snapshot() presence.Snapshot {
	if p := d.poller.Load(); p != nil {
		return p.Snapshot()
	}
	return presence.Snapshot{Status: presence.StatusNotConfigured, Err: presence.ErrNotConfigured}
}

// current returns the newest accepted config.
func (d *daemon) current() *config.Config {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.cfg
}

// start stops any running poller and launches one built from cfg.
func (d *daemon) start(ctx context.Context, cfg *config.Config) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stopLocked()

	p := presence.NewPoller(presence.PollerOptions{
		UserID:   cfg.Presence.UserID,
		Interval: cfg.Interval(),
		Fetcher:  d.newFetcher(cfg),
		Parser: presence.NewParser(presence.ParserOptions{
			IdleMarkers: cfg.Presence.IdleMarkers,
			EditorLabel: cfg.Display.EditorLabel,
			Languages:   cfg.Languages,
			HideFiles:   cfg.Privacy.HideFiles,
			HiddenText:  cfg.Privacy.HiddenText,
		}),
		PreferEditor: cfg.Display.PreferEditor,
		Logger:       d.log,
		Metrics:      d.metrics,
	})

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	d.poller.Store(p)
	d.cfg, d.cancel, d.done = cfg, cancel, done

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		p.Run(runCtx)
	}()
	if d.history != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			d.record(runCtx, p)
		}()
	}
	go func() {
		wg.Wait()
		close(done)
	}()
}

// record stores each newly rendered line until ctx ends.
func (d *daemon) record(ctx context.Context, p *presence.Poller) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-p.Changes():
		}
		disp := view.Render(p.Snapshot(), time.Now())
		if disp == nil {
			continue
		}
		wrote, err := d.history.Record(ctx, disp.Kind, disp.Text, disp.UpdatedAt)
		switch {
		case err != nil && ctx.Err() == nil:
			d.log.Warn("failed to record history", "error", err)
		case wrote:
			logger.Trace(d.log, "history recorded", "kind", disp.Kind, "text", disp.Text)
		}
	}
}

// prune drops history older than the configured retention.
func (d *daemon) prune(ctx context.Context, now time.Time) {
	cfg := d.current()
	if d.history == nil || cfg == nil || cfg.Retention() <= 0 {
		return
	}
	n, err := d.history.Prune(ctx, now.Add(-cfg.Retention()))
	if err != nil {
		d.log.Warn("failed to prune history", "error", err)
		return
	}
	if n > 0 {
		d.log.Debug("pruned history", "removed", n)
	}
}

// stop cancels the running poller and waits for it to finish.
func (d *daemon) stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stopLocked()
}

func (d *daemon) stopLocked() {
	if d.cancel == nil {
		return
	}
	d.cancel()
	<-d.done
	d.cancel, d.done = nil, nil
}

// reload re-reads config.toml and the dotenv files. An invalid config is
// logged and the running poller is kept. The poller restarts only when a
// setting it uses changed; it reports whether that happened.
func (d *daemon) reload(ctx context.Context) bool {
	cfg, err := loadConfig(d.dataDir, d.listen)
	if err != nil {
		d.log.Warn("config reload failed, keeping previous settings", "error", err)
		return false
	}

	old := d.current()
	if old != nil {
		if old.Server != cfg.Server || old.Log != cfg.Log || old.History.Enabled != cfg.History.Enabled {
			d.log.Warn("changed settings take effect after restart", "sections", "server, log, history.enabled")
		}
		if pollerSettingsEqual(old, cfg) {
			d.mu.Lock()
			d.cfg = cfg
			d.mu.Unlock()
			logger.Trace(d.log, "config reloaded, poller settings unchanged")
			return false
		}
	}

	d.log.Info("config reloaded, restarting poller",
		"user_id", cfg.Presence.UserID,
		"interval", cfg.Interval(),
	)
	d.start(ctx, cfg)
	return true
}

// loadConfig reads config.toml and the dotenv files, then applies a non-empty
// --listen override.
func loadConfig(dataDir, listen string) (*config.Config, error) {
	cfg, err := config.LoadWithEnv(dataDir)
	if err != nil {
		return nil, err
	}
	if listen != "" {
		cfg.Server.Listen = listen
	}
	return cfg, nil
}

// pollerSettingsEqual reports whether a and b build identical pollers. The
// history retention is read on every prune and needs no restart.
func pollerSettingsEqual(a, b *config.Config) bool {
	return reflect.DeepEqual(a.Presence, b.Presence) &&
		a.Display == b.Display &&
		reflect.DeepEqual(a.Languages, b.Languages) &&
		reflect.DeepEqual(a.Privacy, b.Privacy)
}

package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	rootpkg "tools.zach/dev/presenced"
	"tools.zach/dev/presenced/internal/atomicfile"
	"tools.zach/dev/presenced/internal/config"
	"tools.zach/dev/presenced/internal/history"
	"tools.zach/dev/presenced/internal/logger"
	"tools.zach/dev/presenced/internal/presence"
	"tools.zach/dev/presenced/internal/update"
	"tools.zach/dev/presenced/internal/view"
)

// pruneInterval is how often old history rows are deleted.
const pruneInterval = time.Hour

// writeDefaultConfig seeds config.toml on first run. An existing file is
// left alone. It reports whether a file was written.
func writeDefaultConfig(dp DataPaths) (bool, error) {
	if _, err := os.Stat(dp.Config()); !errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err := atomicfile.Write(dp.Config(), rootpkg.DefaultConfigTOML, 0o644); err != nil {
		return false, fmt.Errorf("write default config: %w", err)
	}
	return true, nil
}

// newRegistry returns the registry backing /metrics, preloaded with the Go
// runtime and process collectors.
func newRegistry() *prometheus.Registry {
	reg := prometheus.NewPedanticRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// ///////////////////////////////////////////////
// Serve
// ///////////////////////////////////////////////

// serve runs the daemon in the foreground until SIGINT or SIGTERM.
func serve(opts *rootOptions) error {
	dp := opts.paths()

	if err := os.MkdirAll(dp.Root, 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}
	if alive, pid := checkStalePID(dp); alive {
		return fmt.Errorf("daemon already running (pid %d)", pid)
	}
	if _, err := writeDefaultConfig(dp); err != nil {
		fmt.Fprintf(os.Stderr, "warning: %v\n", err)
	}

	cfg, err := loadConfig(dp.Root, opts.listen)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log, logCloser := logger.New(logger.Options{
		Path:      dp.Log(),
		Level:     logger.ParseLevel(cfg.Log.Level),
		MaxSizeMB: cfg.Log.MaxSizeMB,
		Stderr:    cfg.Log.Stderr,
	})
	defer logCloser.Close()
	slog.SetDefault(log)

	ver := resolveVersion()
	log.Info("presenced starting", "version", ver, "data_dir", dp.Root, "listen", cfg.Server.Listen)

	token := pidToken()
	pidFile, err := writePID(dp, token)
	if err != nil {
		log.Error("failed to write PID file", "error", err)
		return err
	}
	defer removePID(dp, token, pidFile)

	var hist *history.Store
	if cfg.History.Enabled {
		hist, err = history.Open(dp.History())
		if err != nil {
			log.Warn("history disabled", "error", err)
			hist = nil
		} else {
			defer hist.Close()
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reg := newRegistry()
	d := newDaemon(dp.Root, presence.NewMetrics(reg), hist, log)
	d.listen = opts.listen
	d.start(ctx, cfg)
	defer d.stop()

	srvOpts := view.ServerOptions{
		Source:  d,
		Version: ver,
		Logger:  log,
	}
	if cfg.Server.Metrics {
		srvOpts.Gatherer = reg
	}
	if hist != nil {
		srvOpts.History = hist
	}
	srv := view.NewServer(srvOpts)

	var changes <-chan struct{}
	watcher, err := config.NewWatcher(dp.Config(), dp.Env())
	if err != nil {
		log.Warn("config watcher unavailable, reload with SIGHUP", "error", err)
	} else {
		defer watcher.Close()
		if watcher.Polling() {
			log.Info("using polling mode for config watching")
		}
		changes = watcher.Events()
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.Serve(gctx, cfg.Server.Listen)
	})
	g.Go(func() error {
		return loop(gctx, cancel, d, changes, log)
	})
	if cfg.Update.Check {
		g.Go(func() error {
			if url := update.ManifestURL(); url != "" {
				update.NewChecker(url).Check(gctx, ver, log)
			}
			return nil
		})
	}

	err = g.Wait()
	if err != nil {
		log.Error("daemon stopped", "error", err)
	} else {
		log.Info("presenced stopped")
	}
	return err
}

// loop dispatches signals, config changes, and history pruning until ctx
// ends or a shutdown signal arrives, in which case it calls stop.
func loop(ctx context.Context, stop context.CancelFunc, d *daemon, changes <-chan struct{}, log *slog.Logger) error {
	shutdown, hup := signalChannel()

	pruneTicker := time.NewTicker(pruneInterval)
	defer pruneTicker.Stop()
	d.prune(ctx, time.Now())

	for {
		select {
		case <-ctx.Done():
			return nil

		case <-shutdown:
			log.Info("received shutdown signal")
			stop()
			return nil

		case <-hup:
			log.Info("received reload signal")
			d.reload(ctx)

		case <-changes:
			d.reload(ctx)

		case now := <-pruneTicker.C:
			d.prune(ctx, now)
		}
	}
}

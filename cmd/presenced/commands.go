package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"tools.zach/dev/presenced/internal/config"
	"tools.zach/dev/presenced/internal/history"
	"tools.zach/dev/presenced/internal/view"
)

// statusTimeout bounds each request the status command makes.
const statusTimeout = 3 * time.Second

// ///////////////////////////////////////////////
// version
// ///////////////////////////////////////////////

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the build version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), resolveVersion())
		},
	}
}

// ///////////////////////////////////////////////
// config
// ///////////////////////////////////////////////

func newConfigCmd(opts *rootOptions) *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect or create the config file",
	}

	configCmd.AddCommand(&cobra.Command{
		Use:   "path",
		Short: "Print the config file location",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), opts.paths().Config())
		},
	})

	configCmd.AddCommand(&cobra.Command{
		Use:   "init",
		Short: "Write the default config.toml if none exists",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			dp := opts.paths()
			if err := os.MkdirAll(dp.Root, 0o755); err != nil {
				return fmt.Errorf("create data dir: %w", err)
			}
			wrote, err := writeDefaultConfig(dp)
			if err != nil {
				return err
			}
			if wrote {
				fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", dp.Config())
			} else {
				fmt.Fprintf(cmd.OutOrStdout(), "%s already exists\n", dp.Config())
			}
			return nil
		},
	})

	configCmd.AddCommand(&cobra.Command{
		Use:   "validate",
		Short: "Load config.toml and .env and report the effective settings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.LoadWithEnv(opts.dataDir)
			if err != nil {
				return err
			}
			printConfigSummary(cmd.OutOrStdout(), cfg)
			return nil
		},
	})

	return configCmd
}

func printConfigSummary(w io.Writer, cfg *config.Config) {
	user := cfg.Presence.UserID
	if user == "" {
		user = warnStyle.Render("not set")
	}
	fmt.Fprintln(w, passStyle.Render("config ok"))
	fmt.Fprintf(w, "  %s %s\n", kindStyle.Render("user"), user)
	fmt.Fprintf(w, "  %s %s\n", kindStyle.Render("upstream"), cfg.Presence.BaseURL)
	fmt.Fprintf(w, "  %s %s\n", kindStyle.Render("interval"), cfg.Interval())
	fmt.Fprintf(w, "  %s %s\n", kindStyle.Render("listen"), cfg.Server.Listen)
}

// ///////////////////////////////////////////////
// status
// ///////////////////////////////////////////////

// health mirrors the /healthz response body.
type health struct {
	Status     string `json:"status"`
	Version    string `json:"version"`
	Poller     string `json:"poller"`
	Generation uint64 `json:"generation"`
	ErrorKind  string `json:"error_kind"`
	Updated    string `json:"updated"`
}

func newStatusCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show what a running daemon is serving",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			listen := opts.listen
			if listen == "" {
				cfg, err := config.LoadWithEnv(opts.dataDir)
				if err != nil {
					return err
				}
				listen = cfg.Server.Listen
			}
			base := "http://" + dialAddr(listen)
			client := &http.Client{Timeout: statusTimeout}

			h, disp, err := fetchStatus(cmd.Context(), client, base)
			if err != nil {
				return fmt.Errorf("daemon not reachable at %s: %w", base, err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), formatStatus(h, disp))
			return nil
		},
	}
}

// dialAddr turns a listen address into one a local client can dial.
func dialAddr(listen string) string {
	host, port, err := net.SplitHostPort(listen)
	if err != nil {
		return listen
	}
	switch host {
	case "", "0.0.0.0", "::":
		host = "127.0.0.1"
	}
	return net.JoinHostPort(host, port)
}

// fetchStatus reads /healthz and /presence. disp is nil when the daemon
// has nothing to show.
func fetchStatus(ctx context.Context, client *http.Client, base string) (health, *view.Display, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	var h health
	if _, err := getJSON(ctx, client, base+"/healthz", &h); err != nil {
		return h, nil, err
	}
	var disp view.Display
	code, err := getJSON(ctx, client, base+"/presence", &disp)
	if err != nil {
		return h, nil, err
	}
	if code == http.StatusNoContent {
		return h, nil, nil
	}
	return h, &disp, nil
}

func getJSON(ctx context.Context, client *http.Client, url string, v any) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
			return resp.StatusCode, fmt.Errorf("decode %s: %w", url, err)
		}
		return resp.StatusCode, nil
	case http.StatusNoContent:
		return resp.StatusCode, nil
	default:
		return resp.StatusCode, fmt.Errorf("GET %s: %s", url, resp.Status)
	}
}

func formatStatus(h health, disp *view.Display) string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("presenced " + h.Version))
	b.WriteString("  ")
	b.WriteString(pollerStyle(h.Poller).Render(h.Poller))
	if h.ErrorKind != "" {
		b.WriteString(" " + failStyle.Render("("+h.ErrorKind+")"))
	}
	if h.Updated != "" {
		b.WriteString(" " + mutedStyle.Render("updated "+h.Updated))
	}
	b.WriteString("\n")

	if disp == nil {
		b.WriteString(mutedStyle.Render("nothing to show"))
		return b.String()
	}
	b.WriteString(panelStyle.Render(kindStyle.Render(disp.Kind) + lineStyle.Render(disp.Text)))
	return b.String()
}

// ///////////////////////////////////////////////
// history
// ///////////////////////////////////////////////

func newHistoryCmd(opts *rootOptions) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recently shown presence lines",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			path := opts.paths().History()
			if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
				fmt.Fprintln(cmd.OutOrStdout(), mutedStyle.Render("no history recorded yet"))
				return nil
			}
			store, err := history.Open(path)
			if err != nil {
				return err
			}
			defer store.Close()

			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			entries, err := store.Recent(ctx, limit)
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), formatHistory(entries, time.Now()))
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of entries to show")
	return cmd
}

// formatHistory renders entries one per line. Entries from today show only
// the time of day.
func formatHistory(entries []history.Entry, now time.Time) string {
	if len(entries) == 0 {
		return mutedStyle.Render("no history recorded yet") + "\n"
	}
	y, m, d := now.Date()
	var b strings.Builder
	for _, e := range entries {
		at := e.At.In(now.Location())
		layout := "Jan 02 15:04"
		if ay, am, ad := at.Date(); ay == y && am == m && ad == d {
			layout = "15:04:05"
		}
		fmt.Fprintf(&b, "%s  %s%s\n",
			mutedStyle.Render(fmt.Sprintf("%-12s", at.Format(layout))),
			kindStyle.Render(e.Kind),
			e.Text,
		)
	}
	return b.String()
}

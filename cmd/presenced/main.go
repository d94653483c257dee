// Package main implements the presenced daemon, which polls a user's public
// presence and serves the rendered status line to a widget over HTTP, plus a
// few commands for inspecting a running instance.
package main

import (
	"os"
	"path/filepath"
	"runtime/debug"

	"github.com/spf13/cobra"

	"tools.zach/dev/presenced/internal/paths"
)

// ///////////////////////////////////////////////
// Version
// ///////////////////////////////////////////////

// version is set at build time via ldflags:
//   - goreleaser: -X main.version={{.Version}}  -> "0.1.0"
//   - make build: -X main.version=$(VERSION)    -> "0.0.0-dev+05ffee5"
//
// When ldflags are not set, resolveVersion reads the VCS info Go embeds.
var version = "dev"

// resolveVersion returns [version] when set via ldflags, otherwise a
// "dev+<hash>" tag built from the embedded VCS revision.
func resolveVersion() string {
	if version != "dev" {
		return version
	}
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return version
	}
	var revision string
	var dirty bool
	for _, s := range info.Settings {
		switch s.Key {
		case "vcs.revision":
			revision = s.Value
		case "vcs.modified":
			dirty = s.Value == "true"
		}
	}
	if revision == "" {
		return version
	}
	hash := revision[:min(7, len(revision))]
	if dirty {
		return "dev+" + hash + ".dirty"
	}
	return "dev+" + hash
}

// ///////////////////////////////////////////////
// Default Data Directory
// ///////////////////////////////////////////////

// defaultDataDir returns ~/.presenced, or ./.presenced when the home directory
// cannot be determined.
func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", paths.DataDirRel)
	}
	return filepath.Join(home, paths.DataDirRel)
}

// ///////////////////////////////////////////////
// Commands
// ///////////////////////////////////////////////

// rootOptions holds the flags shared by every command.
type rootOptions struct {
	dataDir string
	listen  string
}

func (o *rootOptions) paths() DataPaths {
	return DataPaths{Root: o.dataDir}
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	rootCmd := &cobra.Command{
		Use:          paths.BinaryName,
		Short:        "Serve a live presence line for a website widget",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(_ *cobra.Command, _ []string) error {
			return serve(opts)
		},
	}

	rootCmd.PersistentFlags().StringVar(&opts.dataDir, "data-dir", defaultDataDir(), "data directory for config, .env, history, PID file, and logs")
	rootCmd.PersistentFlags().StringVar(&opts.listen, "listen", "", "override server.listen from the config file")

	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newConfigCmd(opts))
	rootCmd.AddCommand(newStatusCmd(opts))
	rootCmd.AddCommand(newHistoryCmd(opts))

	return rootCmd
}

package update

import (
	"context"
	"log/slog"
	"os/exec"
	"regexp"
	"strings"
	"sync"
	"time"

	"tools.zach/dev/presenced/internal/paths"
)

// Set at build time via:
//
//	-X tools.zach/dev/presenced/internal/update.ldOwner=...
//	-X tools.zach/dev/presenced/internal/update.ldRepo=...
var (
	ldOwner string
	ldRepo  string
)

var (
	sourceOnce sync.Once
	manifest   string
)

// githubRemoteRe extracts owner and repo from HTTPS and SSH GitHub remotes.
var githubRemoteRe = regexp.MustCompile(`github\.com[:/]([^/]+)/([^/.]+)`)

// ManifestURL returns the raw URL of the release manifest on the main
// branch, or "" when the repository cannot be determined. Build-time ldflags
// win; otherwise the local git remote origin is consulted once.
func ManifestURL() string {
	sourceOnce.Do(func() {
		owner, repo := ldOwner, ldRepo
		if owner == "" || repo == "" {
			owner, repo = gitOrigin()
		}
		manifest = rawURL(owner, repo, paths.ReleaseManifest)
	})
	return manifest
}

func gitOrigin() (owner, repo string) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	out, err := exec.CommandContext(ctx, "git", "remote", "get-url", "origin").Output()
	if err != nil {
		slog.Debug("update: ldflags not set and git remote unavailable", "error", err)
		return "", ""
	}
	return parseRemote(string(out))
}

func parseRemote(remote string) (owner, repo string) {
	m := githubRemoteRe.FindStringSubmatch(strings.TrimSpace(remote))
	if len(m) != 3 {
		return "", ""
	}
	return m[1], m[2]
}

func rawURL(owner, repo, path string) string {
	if owner == "" || repo == "" {
		return ""
	}
	return "https://raw.githubusercontent.com/" + owner + "/" + repo + "/main/" + path
}

// Package update looks up the latest presenced release from the release
// manifest published in the repository.
package update

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"golang.org/x/mod/semver"
)

// ///////////////////////////////////////////////
// Checker
// ///////////////////////////////////////////////

// Checker fetches the release manifest, a JSON object whose "." key holds
// the latest stable version.
type Checker struct {
	url  string
	http *retryablehttp.Client
}

// NewChecker returns a Checker for the manifest at url.
func NewChecker(url string) *Checker {
	rc := retryablehttp.NewClient()
	rc.RetryMax = 1
	rc.HTTPClient.Timeout = 5 * time.Second
	rc.ErrorHandler = retryablehttp.PassthroughErrorHandler
	rc.Logger = nil
	return &Checker{url: url, http: rc}
}

// Latest returns the newest released version.
func (c *Checker) Latest(ctx context.Context) (string, error) {
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("GET %s: %w", c.url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("GET %s: status %d", c.url, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return "", fmt.Errorf("reading response: %w", err)
	}

	return RootVersion(body)
}

// RootVersion returns the "." entry of a release manifest, or "" when the
// manifest has none.
func RootVersion(manifest []byte) (string, error) {
	var m map[string]string
	if err := json.Unmarshal(manifest, &m); err != nil {
		return "", fmt.Errorf("parsing manifest: %w", err)
	}
	return strings.TrimSpace(m["."]), nil
}

// Check logs when a release newer than current exists. Failures are logged at
// debug level and otherwise ignored.
func (c *Checker) Check(ctx context.Context, current string, log *slog.Logger) {
	latest, err := c.Latest(ctx)
	if err != nil {
		log.Debug("version check failed", "error", err)
		return
	}
	if Newer(current, latest) {
		log.Info("new version available", "current", current, "latest", latest)
	}
}

// ///////////////////////////////////////////////
// Version Comparison
// ///////////////////////////////////////////////

// Newer reports whether latest is a later semantic version than current.
// Either side may omit the leading "v". Non-semver strings, such as "dev"
// builds, never compare as newer.
func Newer(current, latest string) bool {
	cur, lat := canonical(current), canonical(latest)
	if !semver.IsValid(cur) || !semver.IsValid(lat) {
		return false
	}
	return semver.Compare(cur, lat) < 0
}

func canonical(v string) string {
	v = strings.TrimSpace(v)
	if v == "" || strings.HasPrefix(v, "v") {
		return v
	}
	return "v" + v
}

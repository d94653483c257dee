// Package main prints the presenced build version for use in ldflags:
//
//	go build -ldflags "-X main.version=$(go run ./cmd/buildver)" ./cmd/presenced
//
// Output depends on git state:
//
//	No tags, clean:     <manifest>-dev+05ffee5
//	No tags, dirty:     <manifest>-dev+05ffee5.dirty
//	On tag v0.1.0:      0.1.0
//	Dirty tag:          0.1.0-dirty
//	3 past v0.1.0:      0.1.0-dev.3+g1234567
//
// <manifest> is the root version in .release-manifest.json, the same file the
// daemon's update check reads.
package main

import (
	"fmt"
	"os"
	"os/exec"
	"regexp"
	"strings"

	"golang.org/x/mod/semver"

	"tools.zach/dev/presenced/internal/paths"
	"tools.zach/dev/presenced/internal/update"
)

// fallbackVersion is used when the manifest is missing or unusable.
const fallbackVersion = "0.0.0"

// describeRe splits `git describe --tags --dirty` output into the tag, the
// number of commits past it, the abbreviated hash, and the dirty marker.
var describeRe = regexp.MustCompile(`^(v[^-]+(?:-[^-]+)*?)(?:-(\d+)-(g[0-9a-f]+))?(-dirty)?$`)

func main() {
	fmt.Print(buildVersion())
}

func buildVersion() string {
	if out, err := exec.Command("git", "describe", "--tags", "--match", "v*", "--dirty").Output(); err == nil {
		if v, ok := fromDescribe(strings.TrimSpace(string(out))); ok {
			return v
		}
	}

	base := baseVersion(paths.ReleaseManifest)
	out, err := exec.Command("git", "rev-parse", "--short=7", "HEAD").Output()
	if err != nil {
		return base + "-dev"
	}
	return devVersion(base, strings.TrimSpace(string(out)), isDirty())
}

// fromDescribe converts git describe output such as "v0.1.0-3-g1234567-dirty"
// into a SemVer string. ok is false when the tag is not a valid version.
func fromDescribe(desc string) (string, bool) {
	m := describeRe.FindStringSubmatch(desc)
	if m == nil || !semver.IsValid(m[1]) {
		return "", false
	}
	tag, commits, hash, dirty := strings.TrimPrefix(m[1], "v"), m[2], m[3], m[4] != ""

	if commits == "" {
		if dirty {
			return tag + "-dirty", true
		}
		return tag, true
	}
	meta := hash
	if dirty {
		meta += ".dirty"
	}
	return fmt.Sprintf("%s-dev.%s+%s", tag, commits, meta), true
}

func devVersion(base, hash string, dirty bool) string {
	if dirty {
		return fmt.Sprintf("%s-dev+%s.dirty", base, hash)
	}
	return fmt.Sprintf("%s-dev+%s", base, hash)
}

func isDirty() bool {
	out, err := exec.Command("git", "status", "--porcelain").Output()
	if err != nil {
		return false
	}
	return len(strings.TrimSpace(string(out))) > 0
}

// baseVersion reads the root version from the release manifest at path.
func baseVersion(path string) string {
	data, err := os.ReadFile(path)
	if err != nil {
		return fallbackVersion
	}
	v, err := update.RootVersion(data)
	if err != nil || !semver.IsValid("v"+v) {
		return fallbackVersion
	}
	return v
}

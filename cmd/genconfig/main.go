// Package main implements the genconfig tool that writes config.default.toml
// from config.ExampleConfig().
//
// It is invoked by go generate via the directive in internal/config/config.go.
package main

import (
	"bytes"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
	"tools.zach/dev/presenced/internal/config"
)

func main() {
	result, err := render(config.ExampleConfig())
	if err != nil {
		fmt.Fprintf(os.Stderr, "render: %v\n", err)
		os.Exit(1)
	}

	// go generate runs from the package directory (internal/config/).
	// With go.mod at root, ../../ reaches the repo root where configdata.go
	// embeds config.default.toml.
	outPath := "../../config.default.toml"
	if err := os.WriteFile(outPath, []byte(result), 0o644); err != nil {
		fmt.Fprintf(os.Stderr, "write %s: %v\n", outPath, err)
		os.Exit(1)
	}
	fmt.Printf("wrote config.default.toml\n")
}

// render encodes cfg as TOML and annotates it from [config.ConfigDocs].
func render(cfg *config.Config) (string, error) {
	var raw bytes.Buffer
	if err := toml.NewEncoder(&raw).Encode(cfg); err != nil {
		return "", fmt.Errorf("marshal: %w", err)
	}

	lines := strings.Split(raw.String(), "\n")
	out := []string{
		"# ///////////////////////////////////////////////",
		"# Presenced Configuration",
		"# ///////////////////////////////////////////////",
		"",
	}

	var sectionStack []string
	emittedKeys := map[string]bool{}

	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}

		if strings.HasPrefix(trimmed, "[") && !strings.HasPrefix(trimmed, "[[") {
			injectOmitted(&out, sectionStack, emittedKeys)

			section := strings.Trim(trimmed, "[] ")
			sectionStack = parseSectionPath(section)
			emittedKeys[section] = true

			out = append(out, "", fmt.Sprintf("# ///// %s /////", sectionName(section)), "")
			if doc, ok := config.ConfigDocs[section]; ok && doc.Comment != "" {
				out = appendComment(out, doc.Comment)
			}
			out = append(out, trimmed)
			continue
		}

		if !strings.Contains(trimmed, "=") || strings.HasPrefix(trimmed, "#") {
			out = append(out, trimmed)
			continue
		}

		key := strings.TrimSpace(strings.SplitN(trimmed, "=", 2)[0])
		fullPath := key
		if len(sectionStack) > 0 {
			fullPath = strings.Join(sectionStack, ".") + "." + key
		}
		emittedKeys[fullPath] = true

		doc, ok := config.ConfigDocs[fullPath]
		if !ok {
			out = append(out, trimmed)
			continue
		}
		if doc.Comment != "" {
			out = appendComment(out, doc.Comment)
		}
		out = append(out, trimmed)
		for _, alt := range doc.Alternatives {
			out = append(out, "# "+alt)
		}
	}

	injectOmitted(&out, sectionStack, emittedKeys)
	injectOmittedSections(&out, emittedKeys)

	result := strings.Join(out, "\n")
	return strings.TrimRight(result, "\n") + "\n", nil
}

func appendComment(out []string, comment string) []string {
	for _, cl := range strings.Split(comment, "\n") {
		out = append(out, "# "+cl)
	}
	return out
}

// injectOmitted appends commented-out entries for [config.ConfigDocs] keys that
// belong to the current section but were not emitted by the TOML encoder (typically
// because the field has an omitempty tag and holds its zero value). Keys are
// sorted for deterministic ordering.
func injectOmitted(out *[]string, sectionStack []string, emitted map[string]bool) {
	if len(sectionStack) == 0 {
		return
	}
	prefix := strings.Join(sectionStack, ".") + "."

	var omitted []string
	for path := range config.ConfigDocs {
		if !strings.HasPrefix(path, prefix) {
			continue
		}
		rest := strings.TrimPrefix(path, prefix)
		if strings.Contains(rest, ".") {
			continue
		}
		if emitted[path] {
			continue
		}
		omitted = append(omitted, path)
	}
	sort.Strings(omitted)

	for _, path := range omitted {
		doc := config.ConfigDocs[path]
		*out = append(*out, "")
		if doc.Comment != "" {
			*out = appendComment(*out, doc.Comment)
		}
		for _, alt := range doc.Alternatives {
			*out = append(*out, "# "+alt)
		}
		emitted[path] = true
	}
}

// injectOmittedSections appends commented-out blocks for top-level tables the
// encoder skipped entirely, such as an empty [languages] map.
func injectOmittedSections(out *[]string, emitted map[string]bool) {
	var omitted []string
	for path, doc := range config.ConfigDocs {
		if strings.Contains(path, ".") || emitted[path] || len(doc.Alternatives) == 0 {
			continue
		}
		omitted = append(omitted, path)
	}
	sort.Strings(omitted)

	for _, path := range omitted {
		doc := config.ConfigDocs[path]
		*out = append(*out, "", fmt.Sprintf("# ///// %s /////", sectionName(path)), "")
		if doc.Comment != "" {
			*out = appendComment(*out, doc.Comment)
		}
		for _, alt := range doc.Alternatives {
			*out = append(*out, "# "+alt)
		}
		emitted[path] = true
	}
}

// parseSectionPath splits a dotted TOML section header (e.g. "server.tls")
// into its component path segments.
func parseSectionPath(section string) []string {
	return strings.Split(section, ".")
}

// sectionName returns a display name for a TOML section header: the last
// dotted segment with its first letter capitalized.
func sectionName(section string) string {
	parts := strings.Split(section, ".")
	last := parts[len(parts)-1]
	if len(last) == 0 {
		return ""
	}
	return strings.ToUpper(last[:1]) + last[1:]
}

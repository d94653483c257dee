package main

import (
	"reflect"
	"strings"
	"testing"

	"tools.zach/dev/presenced/internal/config"
)

// ///////////////////////////////////////////////
// parseSectionPath Tests
// ///////////////////////////////////////////////

func TestParseSectionPath(t *testing.T) {
	tests := []struct {
		name    string
		section string
		want    []string
	}{
		{"single segment", "presence", []string{"presence"}},
		{"two segments", "server.tls", []string{"server", "tls"}},
		{"three segments", "a.b.c", []string{"a", "b", "c"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := parseSectionPath(tt.section)
			if len(got) != len(tt.want) {
				t.Fatalf("parseSectionPath(%q) returned %d segments, want %d", tt.section, len(got), len(tt.want))
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("parseSectionPath(%q)[%d] = %q, want %q", tt.section, i, got[i], tt.want[i])
				}
			}
		})
	}
}

// ///////////////////////////////////////////////
// sectionName Tests
// ///////////////////////////////////////////////

func TestSectionName(t *testing.T) {
	tests := []struct {
		name    string
		section string
		want    string
	}{
		{"single segment", "presence", "Presence"},
		{"last of two", "server.tls", "Tls"},
		{"last of three", "a.b.log", "Log"},
		{"already capitalized", "Privacy", "Privacy"},
		{"single char", "a", "A"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := sectionName(tt.section)
			if got != tt.want {
				t.Errorf("sectionName(%q) = %q, want %q", tt.section, got, tt.want)
			}
		})
	}
}

func TestSectionNameEmpty(t *testing.T) {
	// A trailing dot produces an empty last segment.
	got := sectionName("")
	if got != "" {
		t.Errorf("sectionName(%q) = %q, want empty string", "", got)
	}
}

// ///////////////////////////////////////////////
// injectOmitted Tests
// ///////////////////////////////////////////////

func TestInjectOmittedNoSection(t *testing.T) {
	// When sectionStack is empty, injectOmitted should be a no-op.
	var out []string
	emitted := map[string]bool{}
	injectOmitted(&out, nil, emitted)
	if len(out) != 0 {
		t.Errorf("injectOmitted with nil sectionStack produced %d lines, want 0", len(out))
	}
}

func TestInjectOmittedSkipsEmitted(t *testing.T) {
	var out []string
	emitted := map[string]bool{}
	for path := range config.ConfigDocs {
		if strings.HasPrefix(path, "log.") {
			emitted[path] = true
		}
	}
	injectOmitted(&out, []string{"log"}, emitted)
	if len(out) != 0 {
		t.Errorf("injectOmitted produced %v for a fully emitted section", out)
	}
}

// ///////////////////////////////////////////////
// render Tests
// ///////////////////////////////////////////////

func TestRenderParsesBack(t *testing.T) {
	want := config.ExampleConfig()
	got, err := render(want)
	if err != nil {
		t.Fatalf("render: %v", err)
	}

	cfg, err := config.Parse([]byte(got))
	if err != nil {
		t.Fatalf("Parse(rendered): %v\n%s", err, got)
	}
	if !reflect.DeepEqual(cfg, want) {
		t.Errorf("round trip mismatch:\n got %+v\nwant %+v", cfg, want)
	}
}

func TestRenderAnnotates(t *testing.T) {
	got, err := render(config.ExampleConfig())
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	for _, want := range []string{
		"# Presenced Configuration",
		"# ///// Presence /////",
		"[presence]",
		"# Presence ID of the user to watch.",
		"# ///// Languages /////",
		`# zig = "Zig"`,
		`# level = "debug"`,
	} {
		if !strings.Contains(got, want) {
			t.Errorf("rendered config missing %q", want)
		}
	}
}

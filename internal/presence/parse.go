package presence

import (
	"path"
	"regexp"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
)

// ///////////////////////////////////////////////
// Music
// ///////////////////////////////////////////////

// ParseMusic derives the now-playing model at instant now. It returns nil
// when status is nil. Progress is clamped to [0, 100] and IsPlaying is false
// once now reaches the track's end, whatever the payload still claims.
func ParseMusic(status *SpotifyStatus, now time.Time) *MusicStatus {
	if status == nil {
		return nil
	}
	track := status.Track
	artists := make([]string, len(track.Artists))
	copy(artists, track.Artists)

	return &MusicStatus{
		IsPlaying:     now.Before(track.End),
		TrackName:     track.Name,
		Artists:       artists,
		AlbumName:     status.Album.Name,
		AlbumCoverURL: status.Album.CoverURL,
		TrackURL:      track.URL,
		Progress:      progressPercent(track.Start, track.End, now),
		StartTime:     track.Start,
		EndTime:       track.End,
	}
}

// progressPercent returns how far now is through [start, end], as a
// percentage clamped to [0, 100]. An empty or inverted window counts as
// finished once now reaches end.
func progressPercent(start, end, now time.Time) float64 {
	total := end.Sub(start)
	if total <= 0 {
		if now.Before(end) {
			return 0
		}
		return 100
	}
	p := float64(now.Sub(start)) / float64(total) * 100
	return min(max(p, 0), 100)
}

// ///////////////////////////////////////////////
// Activities
// ///////////////////////////////////////////////

// DefaultIdleMarker is the details text the VS Code presence extension sends
// when no file is open.
const DefaultIdleMarker = "Not in a file!"

// DefaultEditorLabel is the fallback target for editor activities that are
// neither editing nor viewing a file.
const DefaultEditorLabel = "VS Code"

// Phrase actions.
const (
	ActionCoding  = "Coding"
	ActionViewing = "Viewing"
	ActionUsing   = "Using"
)

// iconRe extracts the language code from asset refs like
// ".../icons/ts.png".
var iconRe = regexp.MustCompile(`/icons/([^/.]+)\.[A-Za-z0-9]+`)

// workingOnRe extracts the file from "Working on main.go:12:4".
var workingOnRe = regexp.MustCompile(`Working on (.+?):`)

// defaultLanguages maps icon codes to language names.
var defaultLanguages = map[string]string{
	"ts":         "TypeScript",
	"js":         "JavaScript",
	"py":         "Python",
	"java":       "Java",
	"cpp":        "C++",
	"c":          "C",
	"cs":         "C#",
	"php":        "PHP",
	"rb":         "Ruby",
	"go":         "Go",
	"rs":         "Rust",
	"kt":         "Kotlin",
	"swift":      "Swift",
	"dart":       "Dart",
	"html":       "HTML",
	"css":        "CSS",
	"scss":       "SCSS",
	"json":       "JSON",
	"md":         "Markdown",
	"yml":        "YAML",
	"yaml":       "YAML",
	"xml":        "XML",
	"sql":        "SQL",
	"sh":         "Shell",
	"bash":       "Bash",
	"dockerfile": "Docker",
	"vscode":     "VS Code",
}

// ParserOptions tunes activity derivation. Zero values select defaults.
type ParserOptions struct {
	// IdleMarkers are details strings that mark an activity as idle. Defaults
	// to [DefaultIdleMarker].
	IdleMarkers []string
	// EditorLabel is the "Using" target for editor activities.
	EditorLabel string
	// Languages adds to or overrides the built-in icon code table.
	Languages map[string]string
	// HideFiles are doublestar globs; matching file targets are replaced by
	// HiddenText.
	HideFiles []string
	// HiddenText replaces hidden file targets.
	HiddenText string
}

// Parser derives [ActivityStatus] values. It holds only immutable options
// and is safe for concurrent use.
type Parser struct {
	idleMarkers map[string]bool
	editorLabel string
	languages   map[string]string
	hideFiles   []string
	hiddenText  string
}

// NewParser builds a Parser from opts.
func NewParser(opts ParserOptions) *Parser {
	p := &Parser{
		idleMarkers: make(map[string]bool),
		editorLabel: opts.EditorLabel,
		languages:   make(map[string]string, len(defaultLanguages)+len(opts.Languages)),
		hideFiles:   opts.HideFiles,
		hiddenText:  opts.HiddenText,
	}
	markers := opts.IdleMarkers
	if markers == nil {
		markers = []string{DefaultIdleMarker}
	}
	for _, m := range markers {
		p.idleMarkers[m] = true
	}
	if p.editorLabel == "" {
		p.editorLabel = DefaultEditorLabel
	}
	for k, v := range defaultLanguages {
		p.languages[k] = v
	}
	for k, v := range opts.Languages {
		p.languages[strings.ToLower(k)] = v
	}
	if p.hiddenText == "" {
		p.hiddenText = "a file"
	}
	return p
}

// ParseActivities derives display models for acts, preserving order and
// dropping suppressed entries.
func (p *Parser) ParseActivities(acts []MiscActivity) []ActivityStatus {
	out := make([]ActivityStatus, 0, len(acts))
	for _, a := range acts {
		if s, ok := p.parseActivity(a); ok {
			out = append(out, s)
		}
	}
	return out
}

// parseActivity derives one activity. ok is false when it is suppressed.
func (p *Parser) parseActivity(a MiscActivity) (ActivityStatus, bool) {
	s := ActivityStatus{
		Kind:    Classify(a.Name),
		Name:    a.Name,
		Details: a.Details,
	}
	if a.State != nil {
		s.State = *a.State
	}
	if a.Assets != nil {
		s.LargeImageRef = a.Assets.LargeImage
		s.SmallImageRef = a.Assets.SmallImage
	}
	if a.Timestamps != nil && a.Timestamps.Start != nil {
		s.StartTime = time.UnixMilli(*a.Timestamps.Start)
	}
	s.Language = p.Language(s.LargeImageRef)

	phrase, ok := p.phrase(s)
	if !ok {
		return ActivityStatus{}, false
	}
	s.Phrase = phrase
	return s, true
}

// Classify returns [KindEditor] for names containing "code" in any case.
func Classify(name string) ActivityKind {
	if strings.Contains(strings.ToLower(name), "code") {
		return KindEditor
	}
	return KindOther
}

// Language maps an icon asset ref to a language name. Unknown codes come
// back uppercased; refs without an icon path yield "".
func (p *Parser) Language(ref string) string {
	m := iconRe.FindStringSubmatch(ref)
	if m == nil {
		return ""
	}
	code := m[1]
	if name, ok := p.languages[strings.ToLower(code)]; ok {
		return name
	}
	return strings.ToUpper(code)
}

// phrase derives the action/target pair. Idle markers win over everything so
// an idle editor is never shown even if its state line is stale.
func (p *Parser) phrase(s ActivityStatus) (Phrase, bool) {
	if p.idleMarkers[s.Details] || s.State == "" {
		return Phrase{}, false
	}
	if strings.Contains(s.State, "Working on ") {
		if m := workingOnRe.FindStringSubmatch(s.State); m != nil {
			return Phrase{Action: ActionCoding, Target: p.maskFile(m[1])}, true
		}
	}
	if strings.Contains(s.State, "Viewing ") {
		target := strings.Replace(s.State, "Viewing ", "", 1)
		return Phrase{Action: ActionViewing, Target: p.maskFile(target)}, true
	}
	label := s.Name
	if s.Kind == KindEditor {
		label = p.editorLabel
	}
	return Phrase{Action: ActionUsing, Target: label}, true
}

// maskFile replaces file when it matches a hide pattern, either as given or
// by its base name. Malformed patterns never match; config validation
// rejects them up front.
func (p *Parser) maskFile(file string) string {
	for _, pattern := range p.hideFiles {
		for _, candidate := range []string{file, path.Base(file)} {
			matched, err := doublestar.Match(pattern, candidate)
			if err == nil && matched {
				return p.hiddenText
			}
		}
	}
	return file
}

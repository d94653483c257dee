// Package view turns poller snapshots into the single line the presence
// widget shows, and serves it over HTTP.
//
// Any state other than a Ready snapshot with a primary candidate renders as
// nothing. There is no error or placeholder output.
package view

import (
	"net/url"
	"strings"
	"time"

	"tools.zach/dev/presenced/internal/presence"
)

// Display kinds.
const (
	KindMusic    = "music"
	KindActivity = "activity"
)

// spotifySearchURL is prefixed to the escaped first artist name.
const spotifySearchURL = "https://open.spotify.com/search/"

// Display is the render model for one presence line.
type Display struct {
	Kind       string        `json:"kind"`
	Text       string        `json:"text"`
	Music      *MusicLine    `json:"music,omitempty"`
	Activity   *ActivityLine `json:"activity,omitempty"`
	Generation uint64        `json:"generation"`
	UpdatedAt  time.Time     `json:"updated_at"`
}

// MusicLine describes a playing track.
type MusicLine struct {
	Track     string   `json:"track"`
	Artists   []string `json:"artists"`
	Album     string   `json:"album,omitempty"`
	CoverURL  string   `json:"cover_url,omitempty"`
	TrackURL  string   `json:"track_url,omitempty"`
	ArtistURL string   `json:"artist_url,omitempty"`
	Progress  float64  `json:"progress_percent"`
	Position  string   `json:"position"`
	Length    string   `json:"length"`
}

// ActivityLine describes an activity such as an editor session.
type ActivityLine struct {
	Kind     presence.ActivityKind `json:"kind"`
	Name     string                `json:"name"`
	Action   string                `json:"action"`
	Target   string                `json:"target"`
	Language string                `json:"language,omitempty"`
	Elapsed  string                `json:"elapsed,omitempty"`
}

// Render returns the display for snap at instant now, or nil when nothing
// should be shown.
func Render(snap presence.Snapshot, now time.Time) *Display {
	if snap.Status != presence.StatusReady || snap.Primary == nil {
		return nil
	}
	d := &Display{Generation: snap.Generation, UpdatedAt: snap.UpdatedAt}

	switch {
	case snap.Primary.Music != nil:
		m := snap.Primary.Music
		if !m.IsPlaying || !now.Before(m.EndTime) {
			return nil
		}
		d.Kind = KindMusic
		d.Music = musicLine(m, now)
		d.Text = m.TrackName
		if len(m.Artists) > 0 {
			d.Text += " – " + strings.Join(m.Artists, ", ")
		}
	case snap.Primary.Activity != nil:
		a := snap.Primary.Activity
		d.Kind = KindActivity
		d.Activity = activityLine(a, now)
		d.Text = a.Phrase.Action + " " + a.Phrase.Target
		if a.Language != "" && a.Phrase.Action != presence.ActionUsing {
			d.Text += " (" + a.Language + ")"
		}
	default:
		return nil
	}
	return d
}

func musicLine(m *presence.MusicStatus, now time.Time) *MusicLine {
	total := m.Duration()
	pos := min(max(now.Sub(m.StartTime), 0), max(total, 0))

	line := &MusicLine{
		Track:    m.TrackName,
		Artists:  m.Artists,
		Album:    m.AlbumName,
		CoverURL: m.AlbumCoverURL,
		TrackURL: m.TrackURL,
		Progress: m.Progress,
		Position: presence.FormatDuration(pos),
		Length:   presence.FormatDuration(total),
	}
	if len(m.Artists) > 0 {
		line.ArtistURL = spotifySearchURL + url.PathEscape(m.Artists[0])
	}
	return line
}

func activityLine(a *presence.ActivityStatus, now time.Time) *ActivityLine {
	line := &ActivityLine{
		Kind:     a.Kind,
		Name:     a.Name,
		Action:   a.Phrase.Action,
		Target:   a.Phrase.Target,
		Language: a.Language,
	}
	if !a.StartTime.IsZero() {
		line.Elapsed = presence.FormatElapsed(now.Sub(a.StartTime))
	}
	return line
}

// Package presence polls a remote presence watcher for one user and turns the
// payload into display-ready music and activity models.
//
// The package has three layers:
//
//   - [Client] fetches the raw [Response] over HTTP, bypassing caches.
//   - [ParseMusic] and [Parser.ParseActivities] derive [MusicStatus] and
//     [ActivityStatus] values. Both are pure.
//   - [Poller] runs the fetch/parse pipeline on a fixed interval with at most
//     one request in flight and publishes immutable [Snapshot] values.
package presence

import (
	"errors"
	"time"
)

// ///////////////////////////////////////////////
// Sentinel Errors
// ///////////////////////////////////////////////

var (
	// ErrNotConfigured means no user ID is set. It is permanent.
	ErrNotConfigured = errors.New("presence user id not configured")
	// ErrNetwork wraps transport failures and non-success HTTP statuses.
	ErrNetwork = errors.New("presence network error")
	// ErrParse wraps undecodable or unexpected payloads.
	ErrParse = errors.New("presence parse error")
	// ErrCancelled is returned when the request context ends first. It is a
	// control signal, not a reportable error.
	ErrCancelled = errors.New("presence request cancelled")
)

// ///////////////////////////////////////////////
// Wire Types
// ///////////////////////////////////////////////

// Response is the top-level watcher payload.
type Response struct {
	OK           bool          `json:"ok"`
	PresenceData *PresenceData `json:"presence_data"`
}

// PresenceData holds the per-platform presence for the watched user. Only the
// fields this daemon displays are decoded.
type PresenceData struct {
	SpotifyStatus  *SpotifyStatus  `json:"spotify_status"`
	MiscActivities []MiscActivity  `json:"misc_activities"`
	CustomStatus   *CustomStatus   `json:"custom_status"`
	Statuses       *PlatformStatus `json:"statuses"`
}

// CustomStatus is the user's free-text status line.
type CustomStatus struct {
	Name  string  `json:"name"`
	Emoji *string `json:"emoji"`
	State string  `json:"state"`
}

// PlatformStatus carries the per-client online status strings.
type PlatformStatus struct {
	Desktop string `json:"desktop"`
	Mobile  string `json:"mobile"`
	Web     string `json:"web"`
	Status  string `json:"status"`
}

// SpotifyStatus is the now-playing block.
type SpotifyStatus struct {
	Album SpotifyAlbum `json:"album"`
	Track SpotifyTrack `json:"track"`
}

// SpotifyAlbum describes the playing track's album.
type SpotifyAlbum struct {
	CoverURL string `json:"cover_url"`
	Name     string `json:"name"`
}

// SpotifyTrack describes the playing track. Start and End are RFC 3339.
type SpotifyTrack struct {
	Artists []string  `json:"artists"`
	End     time.Time `json:"end"`
	Name    string    `json:"name"`
	Start   time.Time `json:"start"`
	URL     string    `json:"url"`
}

// MiscActivity is a generic rich-presence activity such as an editor plugin.
type MiscActivity struct {
	Name       string              `json:"name"`
	Details    string              `json:"details,omitempty"`
	State      *string             `json:"state,omitempty"`
	Assets     *ActivityAssets     `json:"assets,omitempty"`
	Timestamps *ActivityTimestamps `json:"timestamps,omitempty"`
	Type       string              `json:"type,omitempty"`
}

// ActivityAssets holds image references for an activity.
type ActivityAssets struct {
	LargeImage string  `json:"large_image,omitempty"`
	LargeText  *string `json:"large_text,omitempty"`
	SmallImage string  `json:"small_image,omitempty"`
	SmallText  string  `json:"small_text,omitempty"`
}

// ActivityTimestamps are Unix milliseconds.
type ActivityTimestamps struct {
	Start *int64 `json:"start,omitempty"`
	End   *int64 `json:"end,omitempty"`
}

// ///////////////////////////////////////////////
// Derived Types
// ///////////////////////////////////////////////

// MusicStatus is the display model for the now-playing track.
type MusicStatus struct {
	IsPlaying     bool      `json:"is_playing"`
	TrackName     string    `json:"track_name"`
	Artists       []string  `json:"artists"`
	AlbumName     string    `json:"album_name"`
	AlbumCoverURL string    `json:"album_cover_url"`
	TrackURL      string    `json:"track_url"`
	Progress      float64   `json:"progress_percent"`
	StartTime     time.Time `json:"start_time"`
	EndTime       time.Time `json:"end_time"`
}

// Duration is the full track length.
func (m *MusicStatus) Duration() time.Duration {
	return m.EndTime.Sub(m.StartTime)
}

// ActivityKind classifies an activity.
type ActivityKind string

const (
	KindEditor ActivityKind = "editor"
	KindOther  ActivityKind = "other"
)

// Phrase is the verb/target pair shown for an activity, e.g. Coding main.go.
type Phrase struct {
	Action string `json:"action"`
	Target string `json:"target"`
}

// ActivityStatus is the display model for one non-suppressed activity.
type ActivityStatus struct {
	Kind          ActivityKind `json:"kind"`
	Name          string       `json:"name"`
	Details       string       `json:"details,omitempty"`
	State         string       `json:"state,omitempty"`
	LargeImageRef string       `json:"large_image,omitempty"`
	SmallImageRef string       `json:"small_image,omitempty"`
	Language      string       `json:"language,omitempty"`
	Phrase        Phrase       `json:"phrase"`
	// StartTime is zero when the activity reports no start.
	StartTime time.Time `json:"start_time,omitzero"`
}

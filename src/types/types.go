package types

import (
	"encoding/json"
	"time"
)

// PlaybackMode is the global master play/pause flag.
type PlaybackMode string

const (
	MasterPlay  PlaybackMode = "master_play"
	MasterPause PlaybackMode = "master_pause"
)

// SessionMode is the per-request session play/pause flag. It is tracked
// separately from PlaybackMode.
type SessionMode string

const (
	SessionPlay  SessionMode = "session_play"
	SessionPause SessionMode = "session_pause"
)

// Track is a queue entry. SpotifyURI is unique within the queue.
type Track struct {
	SpotifyURI     string   `json:"spotifyUri"`
	Name           string   `json:"name,omitempty"`
	Artist         string   `json:"artist,omitempty"`
	Album          string   `json:"album,omitempty"`
	AlbumArtURL    string   `json:"albumArtUrl,omitempty"`
	SubmitterName  string   `json:"spotifyName,omitempty"`
	SubmitterEmail string   `json:"userEmail,omitempty"`
	Jammers        []string `json:"jammers,omitempty"`
	IsFallback     bool     `json:"isFallback,omitempty"`
}

// JamCount returns the number of jammers on the track.
func (t Track) JamCount() int { return len(t.Jammers) }

// Title returns the best available display name.
func (t Track) Title() string {
	if t.Name != "" {
		return t.Name
	}
	if t.SpotifyURI != "" {
		return t.SpotifyURI
	}
	return "Unknown Track"
}

// Progress is the playback position of the current track.
type Progress struct {
	PositionMS int64 `json:"position_ms"`
	DurationMS int64 `json:"duration_ms"`
}

// CurrentTrack is the currently playing track with live progress.
type CurrentTrack struct {
	Track
	Progress *Progress `json:"progress,omitempty"`
}

// FallbackPlaylist describes the server's backup source for an empty queue.
type FallbackPlaylist struct {
	URL        string `json:"url"`
	Name       string `json:"name"`
	TrackCount int    `json:"trackCount"`
}

// ConnectedUser is one roster entry.
type ConnectedUser struct {
	SessionID string  `json:"sessionId"`
	UserID    *string `json:"userId"`
	Name      string  `json:"name"`
	Email     string  `json:"email"`
	IsMaster  bool    `json:"isMaster"`
}

// ModeSnapshot is the payload of a mode broadcast.
type ModeSnapshot struct {
	Mode                 PlaybackMode      `json:"mode"`
	CurrentlyPlaying     *CurrentTrack     `json:"currentlyPlayingTrack"`
	MasterSessionID      string            `json:"masterUserSessionId"`
	CanTakeMasterControl bool              `json:"canTakeMasterControl"`
	Fallback             *FallbackPlaylist `json:"fallbackPlaylist"`
}

// HistoryType tags a HistoryEvent.
type HistoryType string

const (
	HistoryMessage          HistoryType = "message"
	HistoryUserConnected    HistoryType = "user_connected"
	HistoryUserDisconnected HistoryType = "user_disconnected"
	HistoryTrackPlay        HistoryType = "track_play"
	HistoryTrackSkip        HistoryType = "track_skip"
	HistoryTrackAdded       HistoryType = "track_added"
	HistoryJam              HistoryType = "jam"
	HistoryUnjam            HistoryType = "unjam"
	HistoryAirhorn          HistoryType = "airhorn"
)

// HistoryDetails is the type-specific payload of a HistoryEvent. Track is
// an object for play/skip events and a plain name for added/jam/unjam.
type HistoryDetails struct {
	Message   string          `json:"message,omitempty"`
	LoginType string          `json:"loginType,omitempty"`
	Airhorn   string          `json:"airhorn,omitempty"`
	Track     json.RawMessage `json:"track,omitempty"`
}

// TrackInfo decodes Track when it holds an object.
func (d HistoryDetails) TrackInfo() (Track, bool) {
	if len(d.Track) == 0 || d.Track[0] != '{' {
		return Track{}, false
	}
	var t Track
	if err := json.Unmarshal(d.Track, &t); err != nil {
		return Track{}, false
	}
	return t, true
}

// TrackName returns the track name whether Track is a string or an object.
func (d HistoryDetails) TrackName() string {
	if t, ok := d.TrackInfo(); ok {
		return t.Title()
	}
	var name string
	if err := json.Unmarshal(d.Track, &name); err == nil {
		return name
	}
	return ""
}

// HistoryEvent is one activity feed entry. Timestamp is in milliseconds.
type HistoryEvent struct {
	Type      HistoryType    `json:"type"`
	Timestamp int64          `json:"timestamp"`
	UserName  string         `json:"userName"`
	Details   HistoryDetails `json:"details"`
}

// Time converts the millisecond timestamp.
func (e HistoryEvent) Time() time.Time { return time.UnixMilli(e.Timestamp) }

// Known reports whether the event type is one the feed knows how to render.
func (e HistoryEvent) Known() bool {
	switch e.Type {
	case HistoryMessage, HistoryUserConnected, HistoryUserDisconnected,
		HistoryTrackPlay, HistoryTrackSkip, HistoryTrackAdded,
		HistoryJam, HistoryUnjam, HistoryAirhorn:
		return true
	}
	return false
}

// PlayHistoryEntry is one played track.
type PlayHistoryEntry struct {
	Track     Track  `json:"track"`
	StartedBy string `json:"startedBy"`
	Timestamp int64  `json:"timestamp"`
}

// Time converts the millisecond timestamp.
func (e PlayHistoryEntry) Time() time.Time { return time.UnixMilli(e.Timestamp) }

// Conn abstracts a client WebSocket connection for testability.
type Conn interface {
	WriteJSON(v any) error
	ReadMessage() ([]byte, error)
	Close() error
}

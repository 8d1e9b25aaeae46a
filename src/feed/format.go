package feed

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/orchestra-mcp/jam/src/types"
)

// TimeAgo renders t relative to now: seconds, minutes and hours for the last
// day, then the calendar date.
func TimeAgo(t, now time.Time) string {
	seconds := int64(now.Sub(t) / time.Second)
	if seconds < 0 {
		seconds = 0
	}
	if seconds < 60 {
		return fmt.Sprintf("%ds ago", seconds)
	}
	minutes := seconds / 60
	if minutes < 60 {
		return fmt.Sprintf("%dm ago", minutes)
	}
	hours := minutes / 60
	if hours < 24 {
		return fmt.Sprintf("%dh ago", hours)
	}
	return t.Local().Format("2006-01-02")
}

// NewestFirst returns a reversed copy of a chronologically ordered feed.
func NewestFirst[T any](events []T) []T {
	out := slices.Clone(events)
	slices.Reverse(out)
	return out
}

// Describe renders one activity-feed event as a single line. Unknown event
// types produce a debug line rather than being dropped.
func Describe(e types.HistoryEvent) string {
	user := e.UserName
	if user == "" {
		user = "Someone"
	}
	switch e.Type {
	case types.HistoryMessage:
		return fmt.Sprintf("%s: %s", user, e.Details.Message)
	case types.HistoryUserConnected:
		if e.Details.LoginType == "spotify" {
			return user + " joined via Spotify"
		}
		return user + " joined as Offline Contributor"
	case types.HistoryUserDisconnected:
		return user + " left"
	case types.HistoryTrackPlay:
		return describeTrack(e, "Started by")
	case types.HistoryTrackSkip:
		return describeTrack(e, "Skipped by")
	case types.HistoryTrackAdded:
		return fmt.Sprintf("%s added %s", user, e.Details.TrackName())
	case types.HistoryJam:
		return fmt.Sprintf("%s jammed %s", user, e.Details.TrackName())
	case types.HistoryUnjam:
		return fmt.Sprintf("%s unjammed %s", user, e.Details.TrackName())
	case types.HistoryAirhorn:
		return fmt.Sprintf("%s played %s", user, HumanizeAirhorn(e.Details.Airhorn))
	default:
		return fmt.Sprintf("🐛 Unknown Event Type: %s", e.Type)
	}
}

func describeTrack(e types.HistoryEvent, verb string) string {
	t, ok := e.Details.TrackInfo()
	if !ok {
		return fmt.Sprintf("%s: %s", verb, e.UserName)
	}
	artist := t.Artist
	if artist == "" {
		artist = "Unknown Artist"
	}
	line := fmt.Sprintf("%s by %s", t.Title(), artist)
	if t.Album != "" {
		line += " (" + t.Album + ")"
	}
	return fmt.Sprintf("%s. %s: %s", line, verb, e.UserName)
}

// DescribePlay renders one play-history entry.
func DescribePlay(e types.PlayHistoryEntry) string {
	line := e.Track.Title()
	if e.Track.Artist != "" {
		line += " by " + e.Track.Artist
	}
	if e.StartedBy != "" {
		line += ", started by " + e.StartedBy
	}
	return line
}

// HumanizeAirhorn turns a clip name such as "air-horn_long" into words.
func HumanizeAirhorn(name string) string {
	return strings.NewReplacer("-", " ", "_", " ").Replace(name)
}

// PlaylistLink converts a spotify:playlist URI to its web URL. Other values
// are returned unchanged.
func PlaylistLink(uri string) string {
	const prefix = "spotify:playlist:"
	if id, ok := strings.CutPrefix(uri, prefix); ok && id != "" {
		return "https://open.spotify.com/playlist/" + id
	}
	return uri
}

// Clock renders milliseconds as m:ss.
func Clock(ms int64) string {
	if ms < 0 {
		ms = 0
	}
	total := ms / 1000
	return fmt.Sprintf("%d:%02d", total/60, total%60)
}

// ProgressFraction returns position/duration clamped to [0, 1].
func ProgressFraction(p *types.Progress) float64 {
	if p == nil || p.DurationMS <= 0 {
		return 0
	}
	f := float64(p.PositionMS) / float64(p.DurationMS)
	return min(max(f, 0), 1)
}

// FormatProgress renders "m:ss / m:ss". The position never reads past the
// duration.
func FormatProgress(p *types.Progress) string {
	if p == nil {
		return ""
	}
	pos := p.PositionMS
	if p.DurationMS > 0 && pos > p.DurationMS {
		pos = p.DurationMS
	}
	return Clock(pos) + " / " + Clock(p.DurationMS)
}

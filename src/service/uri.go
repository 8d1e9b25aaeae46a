package service

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/zmb3/spotify/v2"
)

var (
	ErrEmptyTrack   = errors.New("track id is empty")
	ErrInvalidTrack = errors.New("not a track uri or link")
)

const trackURIPrefix = "spotify:track:"

// NormalizeTrackURI accepts a track URI, an open.spotify.com track link or a
// bare track id and returns the canonical spotify:track:ID form used as the
// queue key.
func NormalizeTrackURI(input string) (string, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return "", ErrEmptyTrack
	}

	var id spotify.ID
	switch {
	case strings.HasPrefix(input, trackURIPrefix):
		id = spotify.ID(strings.TrimPrefix(input, trackURIPrefix))
	case strings.Contains(input, "open.spotify.com"):
		parsed, err := parseTrackLink(input)
		if err != nil {
			return "", err
		}
		id = parsed
	case !strings.ContainsAny(input, ":/ "):
		id = spotify.ID(input)
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidTrack, input)
	}

	if !validID(id) {
		return "", fmt.Errorf("%w: %q", ErrInvalidTrack, input)
	}
	return string(spotify.URI(trackURIPrefix + string(id))), nil
}

func parseTrackLink(link string) (spotify.ID, error) {
	if !strings.Contains(link, "://") {
		link = "https://" + link
	}
	u, err := url.Parse(link)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidTrack, err)
	}
	// Paths look like /track/ID or /intl-xx/track/ID.
	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	for i := 0; i+1 < len(parts); i++ {
		if parts[i] == "track" {
			return spotify.ID(parts[i+1]), nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidTrack, link)
}

// validID accepts base62 ids.
func validID(id spotify.ID) bool {
	if id == "" {
		return false
	}
	for _, r := range string(id) {
		switch {
		case r >= '0' && r <= '9', r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
		default:
			return false
		}
	}
	return true
}

package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/zmb3/spotify/v2"
	"golang.org/x/oauth2"
)

// ErrUnknownTrack means the provider catalog has no track with that id.
var ErrUnknownTrack = errors.New("track not found in catalog")

// TrackResolver looks a track id up in the provider catalog and returns its
// canonical URI.
type TrackResolver interface {
	ResolveTrack(ctx context.Context, id spotify.ID, token *oauth2.Token) (spotify.URI, error)
}

// SpotifyResolver resolves tracks through the Spotify Web API with the
// viewer's own access token.
type SpotifyResolver struct {
	opts []spotify.ClientOption
}

// NewSpotifyResolver creates a resolver. An empty baseURL keeps the public API.
func NewSpotifyResolver(baseURL string) *SpotifyResolver {
	opts := []spotify.ClientOption{spotify.WithRetry(true)}
	if baseURL != "" {
		opts = append(opts, spotify.WithBaseURL(baseURL))
	}
	return &SpotifyResolver{opts: opts}
}

func (r *SpotifyResolver) ResolveTrack(ctx context.Context, id spotify.ID, token *oauth2.Token) (spotify.URI, error) {
	if token == nil || token.AccessToken == "" {
		return "", errors.New("no provider access token")
	}
	client := spotify.New(oauth2.NewClient(ctx, oauth2.StaticTokenSource(token)), r.opts...)
	track, err := client.GetTrack(ctx, id)
	if err != nil {
		var se spotify.Error
		if errors.As(err, &se) && (se.Status == http.StatusNotFound || se.Status == http.StatusBadRequest) {
			return "", fmt.Errorf("%w: %s", ErrUnknownTrack, id)
		}
		return "", fmt.Errorf("get track %s: %w", id, err)
	}
	if track.URI != "" {
		return track.URI, nil
	}
	return spotify.URI(trackURIPrefix + string(track.ID)), nil
}

// trackID extracts the id from a canonical track URI.
func trackID(uri string) spotify.ID {
	return spotify.ID(uri[len(trackURIPrefix):])
}

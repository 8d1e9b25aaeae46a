// Package service is the command dispatcher: user actions become outbound
// commands on the session socket or calls to the HTTP collaborators.
package service

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"unicode/utf8"

	"github.com/orchestra-mcp/jam/src/collab"
	"github.com/orchestra-mcp/jam/src/feed"
	"github.com/orchestra-mcp/jam/src/identity"
	"github.com/orchestra-mcp/jam/src/protocol"
	"github.com/orchestra-mcp/jam/src/state"
	"github.com/orchestra-mcp/jam/src/types"
	"github.com/rs/zerolog"
)

// MaxMessageLength caps chat messages, in runes.
const MaxMessageLength = 200

// Notice texts shown as toasts.
const (
	DuplicateNotice    = "That track is already in the Play Queue."
	SubmitFailedNotice = "Failed to submit track"
	LikedFailedNotice  = "Failed to load liked tracks."
)

var (
	ErrDuplicateTrack = errors.New("track already queued")
	ErrNoSession      = errors.New("no session id")
	ErrNotMaster      = errors.New("only the master can do that")
	ErrCannotSkip     = errors.New("nothing to skip to")
	ErrEmptyMessage   = errors.New("message is empty")
	ErrEmptyAirhorn   = errors.New("airhorn name is empty")
)

// Sender writes a command to the session socket, or drops it when
// disconnected.
type Sender interface {
	Send(cmd protocol.Command)
}

// Collaborator is the HTTP side of the session server.
type Collaborator interface {
	SubmitTrack(ctx context.Context, trackID, sessionID, accessToken string) error
	LoadRandomLiked(ctx context.Context, sessionID string) (collab.LoadResult, error)
	Airhorns(ctx context.Context) ([]string, error)
}

// Service dispatches user actions.
type Service struct {
	sender  Sender
	state   *state.Store
	http    Collaborator
	ids     identity.Store
	notices *feed.Notices
	catalog TrackResolver
	logger  zerolog.Logger
}

// New creates a Service.
func New(sender Sender, st *state.Store, http Collaborator, ids identity.Store, notices *feed.Notices, logger zerolog.Logger) *Service {
	return &Service{
		sender:  sender,
		state:   st,
		http:    http,
		ids:     ids,
		notices: notices,
		logger:  logger.With().Str("component", "dispatcher").Logger(),
	}
}

// WithCatalog enables catalog lookups for submissions made with a provider
// token.
func (s *Service) WithCatalog(r TrackResolver) *Service {
	s.catalog = r
	return s
}

func (s *Service) toast(text string) {
	if s.notices != nil {
		s.notices.Show(feed.Toast, text)
	}
}

func (s *Service) session() (string, error) {
	id := s.state.Self()
	if id == "" {
		return "", ErrNoSession
	}
	return id, nil
}

// sendWithSession builds a command that carries the session id and drops it
// when none is known.
func (s *Service) sendWithSession(build func(sessionID string) protocol.Command) error {
	id, err := s.session()
	if err != nil {
		return err
	}
	s.sender.Send(build(id))
	return nil
}

// SubmitTrack normalizes input, rejects tracks already queued without any
// network call, confirms the track against the catalog when the viewer holds
// a provider token, then submits through HTTP.
func (s *Service) SubmitTrack(ctx context.Context, input string) error {
	uri, err := NormalizeTrackURI(input)
	if err != nil {
		return err
	}
	sessionID, err := s.session()
	if err != nil {
		return err
	}
	if s.state.HasTrack(uri) {
		s.toast(DuplicateNotice)
		return ErrDuplicateTrack
	}

	var id identity.Identity
	if s.ids != nil {
		if id, err = s.ids.Load(ctx); err != nil {
			s.logger.Warn().Err(err).Msg("load identity for access token failed")
		}
	}
	if uri, err = s.resolve(ctx, uri, id); err != nil {
		return err
	}

	if err := s.http.SubmitTrack(ctx, uri, sessionID, id.AccessToken()); err != nil {
		s.toast(SubmitFailedNotice)
		return fmt.Errorf("submit %s: %w", uri, err)
	}
	s.logger.Info().Str("uri", uri).Msg("track submitted")
	return nil
}

// resolve maps uri to the catalog's canonical URI. Unknown tracks are
// rejected; catalog outages fall back to the normalized URI.
func (s *Service) resolve(ctx context.Context, uri string, id identity.Identity) (string, error) {
	if s.catalog == nil || id.AccessToken() == "" {
		return uri, nil
	}
	canonical, err := s.catalog.ResolveTrack(ctx, trackID(uri), id.SpotifyToken)
	switch {
	case errors.Is(err, ErrUnknownTrack):
		s.toast(SubmitFailedNotice)
		return "", err
	case err != nil:
		s.logger.Warn().Err(err).Str("uri", uri).Msg("catalog lookup failed")
		return uri, nil
	}
	if resolved := string(canonical); resolved != uri {
		// Relinked tracks come back under another id.
		if s.state.HasTrack(resolved) {
			s.toast(DuplicateNotice)
			return "", ErrDuplicateTrack
		}
		return resolved, nil
	}
	return uri, nil
}

// Jam toggles this user's jam on a queued track.
func (s *Service) Jam(uri string) error {
	return s.sendWithSession(func(id string) protocol.Command {
		return protocol.Jam{SpotifyURI: uri, SessionID: id}
	})
}

// RemoveTrack asks the server to drop a track from the queue.
func (s *Service) RemoveTrack(uri string) error {
	return s.sendWithSession(func(id string) protocol.Command {
		return protocol.RemoveTrack{SpotifyURI: uri, SessionID: id}
	})
}

// DelayTrack asks the server to move a track down the queue.
func (s *Service) DelayTrack(uri string) error {
	return s.sendWithSession(func(id string) protocol.Command {
		return protocol.DelayTrack{SpotifyURI: uri, SessionID: id}
	})
}

// TakeMasterControl requests master authority. State only changes when a
// mode broadcast says so.
func (s *Service) TakeMasterControl() error {
	return s.sendWithSession(func(id string) protocol.Command {
		return protocol.TakeMasterControl{SessionID: id}
	})
}

func (s *Service) MasterPlay()  { s.sender.Send(protocol.MasterPlay{}) }
func (s *Service) MasterPause() { s.sender.Send(protocol.MasterPause{}) }

// MasterSkip skips the current track. Only the master may skip, and only
// when a queued track or the fallback playlist can play next.
func (s *Service) MasterSkip() error {
	if !s.state.IsMaster() {
		return ErrNotMaster
	}
	if !s.state.CanSkip() {
		return ErrCannotSkip
	}
	return s.sendWithSession(func(id string) protocol.Command {
		return protocol.MasterSkip{SessionID: id}
	})
}

func (s *Service) SessionPlay() error {
	return s.sendWithSession(func(id string) protocol.Command {
		return protocol.SessionPlay{SessionID: id}
	})
}

func (s *Service) SessionPause() error {
	return s.sendWithSession(func(id string) protocol.Command {
		return protocol.SessionPause{SessionID: id}
	})
}

// PostMessage sends a chat line to the activity feed.
func (s *Service) PostMessage(text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return ErrEmptyMessage
	}
	if utf8.RuneCountInString(text) > MaxMessageLength {
		text = string([]rune(text)[:MaxMessageLength])
	}
	return s.sendWithSession(func(id string) protocol.Command {
		return protocol.HistoryMessage{Message: text, SessionID: id}
	})
}

// SendAirhorn asks every client to play a clip.
func (s *Service) SendAirhorn(name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return ErrEmptyAirhorn
	}
	s.sender.Send(protocol.Airhorn{Airhorn: name})
	return nil
}

// RequestPlayHistory asks for a fresh play_history broadcast.
func (s *Service) RequestPlayHistory() { s.sender.Send(protocol.GetPlayHistory{}) }

// LoadRandomLiked asks the server to append random liked tracks from the
// master's library and reports the outcome as a toast.
func (s *Service) LoadRandomLiked(ctx context.Context) (int, error) {
	sessionID, err := s.session()
	if err != nil {
		return 0, err
	}
	if !s.state.IsMaster() {
		return 0, ErrNotMaster
	}
	res, err := s.http.LoadRandomLiked(ctx, sessionID)
	if err != nil {
		if res.Error != "" {
			s.toast(res.Error)
		} else {
			s.toast(LikedFailedNotice)
		}
		return 0, err
	}
	s.toast(fmt.Sprintf("Loaded %d random liked tracks!", res.Added))
	return res.Added, nil
}

// Airhorns lists the available clips.
func (s *Service) Airhorns(ctx context.Context) ([]string, error) {
	return s.http.Airhorns(ctx)
}

// ViewerEmail returns the email this client is known by. Roster entries for
// listeners may carry placeholder values, in which case the stored listener
// email wins.
func (s *Service) ViewerEmail(ctx context.Context) string {
	var stored string
	if s.ids != nil {
		if id, err := s.ids.Load(ctx); err == nil {
			stored = id.Email
		}
	}
	self := s.state.Self()
	for _, u := range s.state.Roster() {
		if u.SessionID != self || self == "" {
			continue
		}
		if u.Name == "" || u.Name == "Unknown" || u.Email == "" || u.Email == "No email" {
			return stored
		}
		return u.Email
	}
	return stored
}

// HasJammed reports whether email is among the track's jammers.
func HasJammed(t types.Track, email string) bool {
	return email != "" && slices.Contains(t.Jammers, email)
}

// CanDelay reports whether email may delay t: only the submitter, and never
// for fallback tracks.
func CanDelay(t types.Track, email string) bool {
	return !t.IsFallback && email != "" && t.SubmitterEmail == email
}

// CanRemove reports whether t may be removed. Fallback tracks cannot.
func CanRemove(t types.Track) bool { return !t.IsFallback }

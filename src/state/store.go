// Package state holds the client's view of the session. Every field is
// replaced wholesale by the broadcast that carries it; nothing is merged.
package state

import (
	"slices"
	"sync"

	"github.com/orchestra-mcp/jam/src/types"
)

// Snapshot is a copy of the whole client-visible state.
type Snapshot struct {
	SelfSessionID        string                   `json:"selfSessionId"`
	IsMaster             bool                     `json:"isMaster"`
	CanSkip              bool                     `json:"canSkip"`
	Mode                 types.PlaybackMode       `json:"mode"`
	SessionMode          types.SessionMode        `json:"sessionMode"`
	Current              *types.CurrentTrack      `json:"currentlyPlayingTrack,omitempty"`
	MasterSessionID      string                   `json:"masterUserSessionId,omitempty"`
	CanTakeMasterControl bool                     `json:"canTakeMasterControl"`
	Fallback             *types.FallbackPlaylist  `json:"fallbackPlaylist,omitempty"`
	Queue                []types.Track            `json:"queue"`
	Roster               []types.ConnectedUser    `json:"sessions"`
	History              []types.HistoryEvent     `json:"history"`
	PlayHistory          []types.PlayHistoryEntry `json:"playHistory"`
	Version              uint64                   `json:"version"`
}

// Store is the reducer target for inbound frames. Reducers are called from a
// single goroutine; readers may call any query concurrently.
type Store struct {
	mu sync.RWMutex

	self string

	queue []types.Track

	mode        types.PlaybackMode
	sessionMode types.SessionMode
	current     *types.CurrentTrack
	master      string
	canTake     bool
	fallback    *types.FallbackPlaylist

	roster  []types.ConnectedUser
	history []types.HistoryEvent
	plays   []types.PlayHistoryEntry

	version uint64
}

// New creates a store in its initial state.
func New() *Store {
	return &Store{
		mode:        types.MasterPause,
		sessionMode: types.SessionPause,
		queue:       []types.Track{},
		roster:      []types.ConnectedUser{},
		history:     []types.HistoryEvent{},
		plays:       []types.PlayHistoryEntry{},
	}
}

// SetSelf records the session id this client presents. Master authority is
// derived from it.
func (s *Store) SetSelf(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.self = sessionID
	s.version++
}

// Self returns the recorded session id.
func (s *Store) Self() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.self
}

// ApplyTracks replaces the queue.
func (s *Store) ApplyTracks(tracks []types.Track) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queue = cloneTracks(tracks)
	s.version++
}

// ApplyMode replaces every field a mode broadcast carries. An absent track or
// fallback clears the previous one.
func (s *Store) ApplyMode(m types.ModeSnapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch m.Mode {
	case types.MasterPlay:
		s.mode = types.MasterPlay
	default:
		s.mode = types.MasterPause
	}
	s.current = cloneCurrent(m.CurrentlyPlaying)
	s.master = m.MasterSessionID
	s.canTake = m.CanTakeMasterControl
	if m.Fallback != nil {
		fb := *m.Fallback
		s.fallback = &fb
	} else {
		s.fallback = nil
	}
	s.version++
}

// ApplySessionMode replaces the session mode. Playback mode is untouched.
func (s *Store) ApplySessionMode(mode types.SessionMode) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if mode == types.SessionPlay {
		s.sessionMode = types.SessionPlay
	} else {
		s.sessionMode = types.SessionPause
	}
	s.version++
}

// ApplyRoster replaces the connected-user list.
func (s *Store) ApplyRoster(users []types.ConnectedUser) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.roster = make([]types.ConnectedUser, len(users))
	copy(s.roster, users)
	s.version++
}

// ApplyHistory replaces the activity feed.
func (s *Store) ApplyHistory(events []types.HistoryEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history = make([]types.HistoryEvent, len(events))
	copy(s.history, events)
	s.version++
}

// ApplyPlayHistory replaces the play history.
func (s *Store) ApplyPlayHistory(entries []types.PlayHistoryEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.plays = make([]types.PlayHistoryEntry, len(entries))
	for i, e := range entries {
		e.Track = cloneTrack(e.Track)
		s.plays[i] = e
	}
	s.version++
}

// IsMaster reports whether this client holds master authority according to
// the latest mode broadcast.
func (s *Store) IsMaster() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isMaster()
}

func (s *Store) isMaster() bool {
	return s.self != "" && s.self == s.master
}

// CanSkip reports whether a master skip is allowed: this client is master
// and something can play next.
func (s *Store) CanSkip() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.canSkip()
}

func (s *Store) canSkip() bool {
	return s.isMaster() && (len(s.queue) > 0 || s.fallback != nil)
}

// HasTrack reports whether uri is already queued.
func (s *Store) HasTrack(uri string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.ContainsFunc(s.queue, func(t types.Track) bool {
		return t.SpotifyURI == uri
	})
}

// Queue returns a copy of the queue.
func (s *Store) Queue() []types.Track {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneTracks(s.queue)
}

// Roster returns a copy of the connected users.
func (s *Store) Roster() []types.ConnectedUser {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.roster)
}

// Version increases on every reducer call.
func (s *Store) Version() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.version
}

// Snapshot returns a deep copy of the state.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap := Snapshot{
		SelfSessionID:        s.self,
		IsMaster:             s.isMaster(),
		CanSkip:              s.canSkip(),
		Mode:                 s.mode,
		SessionMode:          s.sessionMode,
		Current:              cloneCurrent(s.current),
		MasterSessionID:      s.master,
		CanTakeMasterControl: s.canTake,
		Queue:                cloneTracks(s.queue),
		Roster:               slices.Clone(s.roster),
		History:              slices.Clone(s.history),
		PlayHistory:          slices.Clone(s.plays),
		Version:              s.version,
	}
	if s.fallback != nil {
		fb := *s.fallback
		snap.Fallback = &fb
	}
	return snap
}

func cloneTrack(t types.Track) types.Track {
	t.Jammers = slices.Clone(t.Jammers)
	return t
}

func cloneTracks(tracks []types.Track) []types.Track {
	out := make([]types.Track, len(tracks))
	for i, t := range tracks {
		out[i] = cloneTrack(t)
	}
	return out
}

func cloneCurrent(c *types.CurrentTrack) *types.CurrentTrack {
	if c == nil {
		return nil
	}
	out := *c
	out.Track = cloneTrack(c.Track)
	if c.Progress != nil {
		p := *c.Progress
		out.Progress = &p
	}
	return &out
}

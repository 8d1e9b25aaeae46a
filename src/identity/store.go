// Package identity persists the credentials a client presents on (re)connect:
// the server-issued session id and, for listeners, the name and email used to
// obtain a fresh one.
package identity

import (
	"context"
	"errors"
	"sync"

	"golang.org/x/oauth2"
)

// Role distinguishes provider-backed masters from offline listeners.
type Role string

const (
	RoleMaster   Role = "master"
	RoleListener Role = "listener"
)

// Identity is the persisted credential set.
type Identity struct {
	SessionID    string        `json:"sessionId,omitempty"`
	Role         Role          `json:"role,omitempty"`
	DisplayName  string        `json:"displayName,omitempty"`
	Email        string        `json:"email,omitempty"`
	SpotifyToken *oauth2.Token `json:"spotifyToken,omitempty"`
}

// HasSession reports whether a session id is available.
func (i Identity) HasSession() bool { return i.SessionID != "" }

// HasListener reports whether a listener name and email are stored, which is
// what a self-healing re-login needs.
func (i Identity) HasListener() bool {
	return i.DisplayName != "" && i.Email != ""
}

// AccessToken returns the provider access token, if any.
func (i Identity) AccessToken() string {
	if i.SpotifyToken == nil {
		return ""
	}
	return i.SpotifyToken.AccessToken
}

// Store gets, sets and clears the persisted identity. Load returns a zero
// Identity and nil error when nothing is stored.
type Store interface {
	Load(ctx context.Context) (Identity, error)
	Save(ctx context.Context, id Identity) error
	Clear(ctx context.Context) error
}

// Watcher is implemented by stores that can observe changes made by other
// processes.
type Watcher interface {
	Watch(ctx context.Context, fn func(Identity)) error
}

var ErrNoSession = errors.New("no session id stored")

// ReplaceSession loads the identity, swaps its session id and saves it.
func ReplaceSession(ctx context.Context, s Store, sessionID string) (Identity, error) {
	id, err := s.Load(ctx)
	if err != nil {
		return Identity{}, err
	}
	id.SessionID = sessionID
	if err := s.Save(ctx, id); err != nil {
		return Identity{}, err
	}
	return id, nil
}

// MemoryStore keeps the identity in process memory.
type MemoryStore struct {
	mu sync.RWMutex
	id Identity
}

// NewMemoryStore creates a store seeded with id.
func NewMemoryStore(id Identity) *MemoryStore {
	return &MemoryStore{id: id}
}

func (m *MemoryStore) Load(context.Context) (Identity, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.id, nil
}

func (m *MemoryStore) Save(_ context.Context, id Identity) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.id = id
	return nil
}

func (m *MemoryStore) Clear(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.id = Identity{}
	return nil
}

// Package router is the single dispatch point for inbound frames: each frame
// is decoded once, handed to the one handler registered for its type, then
// fanned out to any subscribers.
package router

import (
	"sync"

	"github.com/orchestra-mcp/jam/src/feed"
	"github.com/orchestra-mcp/jam/src/protocol"
	"github.com/orchestra-mcp/jam/src/state"
	"github.com/rs/zerolog"
)

// Handler processes one decoded frame.
type Handler func(f protocol.Frame)

// Router maps frame types to handlers.
type Router struct {
	mu       sync.RWMutex
	handlers map[protocol.Type]Handler
	subs     map[protocol.Type][]Handler
	logger   zerolog.Logger
}

// New creates an empty Router.
func New(logger zerolog.Logger) *Router {
	return &Router{
		handlers: make(map[protocol.Type]Handler),
		subs:     make(map[protocol.Type][]Handler),
		logger:   logger.With().Str("component", "router").Logger(),
	}
}

// Register sets the handler for a frame type, replacing any previous one.
func (r *Router) Register(t protocol.Type, h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[t] = h
}

// Subscribe adds an observer that runs after the handler for t.
func (r *Router) Subscribe(t protocol.Type, fn Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.subs[t] = append(r.subs[t], fn)
}

// Route decodes data and dispatches it. Frames that fail to decode are
// logged and dropped; the error is returned for callers that count them.
func (r *Router) Route(data []byte) error {
	f, err := protocol.Decode(data)
	if err != nil {
		r.logger.Warn().Err(err).Int("bytes", len(data)).Msg("dropping inbound frame")
		return err
	}
	r.Dispatch(f)
	return nil
}

// Dispatch runs the handler and subscribers for an already decoded frame.
func (r *Router) Dispatch(f protocol.Frame) {
	t := f.FrameType()
	r.mu.RLock()
	h := r.handlers[t]
	subs := append([]Handler(nil), r.subs[t]...)
	r.mu.RUnlock()

	r.logger.Debug().Str("type", string(t)).Msg("frame")
	if h == nil && len(subs) == 0 {
		r.logger.Debug().Str("type", string(t)).Msg("no handler registered")
		return
	}
	if h != nil {
		h(f)
	}
	for _, fn := range subs {
		fn(f)
	}
}

// RegisterDefaults wires the state reducers and the banner notice. The
// login_error handler belongs to the connection manager and is not set here.
func RegisterDefaults(r *Router, store *state.Store, notices *feed.Notices) {
	r.Register(protocol.TypeLoginSuccess, func(f protocol.Frame) {
		r.logger.Info().Str("session_id", f.(*protocol.LoginSuccess).SessionID).Msg("login accepted")
	})
	r.Register(protocol.TypeTracksList, func(f protocol.Frame) {
		store.ApplyTracks(f.(*protocol.TracksList).Tracks)
	})
	r.Register(protocol.TypeMode, func(f protocol.Frame) {
		store.ApplyMode(f.(*protocol.Mode).ModeSnapshot)
	})
	r.Register(protocol.TypeSessionMode, func(f protocol.Frame) {
		store.ApplySessionMode(f.(*protocol.SessionModeFrame).SessionMode)
	})
	r.Register(protocol.TypeSessionsList, func(f protocol.Frame) {
		store.ApplyRoster(f.(*protocol.SessionsList).Sessions)
	})
	r.Register(protocol.TypeHistory, func(f protocol.Frame) {
		store.ApplyHistory(f.(*protocol.History).History)
	})
	r.Register(protocol.TypePlayHistory, func(f protocol.Frame) {
		store.ApplyPlayHistory(f.(*protocol.PlayHistory).PlayHistory)
	})
	r.Register(protocol.TypePlayAirhorn, func(f protocol.Frame) {
		r.logger.Info().Str("airhorn", f.(*protocol.PlayAirhorn).Airhorn).Msg("airhorn")
	})
	r.Register(protocol.TypeProminentMessage, func(f protocol.Frame) {
		if notices == nil {
			return
		}
		if msg := f.(*protocol.ProminentMessage).Message; msg != "" {
			notices.Show(feed.Banner, msg)
		}
	})
}

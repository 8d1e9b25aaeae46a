// Package protocol defines the session wire format: a closed set of inbound
// frames and outbound commands, both discriminated by a "type" field.
package protocol

import "github.com/orchestra-mcp/jam/src/types"

// Type is the frame discriminator.
type Type string

// Inbound frame types.
const (
	TypeLoginSuccess     Type = "login_success"
	TypeLoginError       Type = "login_error"
	TypeTracksList       Type = "tracks_list"
	TypeMode             Type = "mode"
	TypeSessionMode      Type = "session_mode"
	TypeSessionsList     Type = "sessions_list"
	TypePlayAirhorn      Type = "play_airhorn"
	TypeHistory          Type = "history"
	TypePlayHistory      Type = "play_history"
	TypeProminentMessage Type = "prominent_message"
)

// Frame is an inbound server frame.
type Frame interface {
	FrameType() Type
}

type LoginSuccess struct {
	SessionID string `json:"sessionId,omitempty"`
}

type LoginError struct {
	Error   string `json:"error,omitempty"`
	Message string `json:"message,omitempty"`
}

type TracksList struct {
	Tracks []types.Track `json:"tracks"`
}

type Mode struct {
	types.ModeSnapshot
}

type SessionModeFrame struct {
	SessionMode types.SessionMode `json:"sessionMode"`
}

type SessionsList struct {
	Sessions []types.ConnectedUser `json:"sessions"`
}

type PlayAirhorn struct {
	Airhorn string `json:"airhorn"`
}

type History struct {
	History []types.HistoryEvent `json:"history"`
}

type PlayHistory struct {
	PlayHistory []types.PlayHistoryEntry `json:"playHistory"`
}

type ProminentMessage struct {
	Message string `json:"message"`
}

func (*LoginSuccess) FrameType() Type     { return TypeLoginSuccess }
func (*LoginError) FrameType() Type       { return TypeLoginError }
func (*TracksList) FrameType() Type       { return TypeTracksList }
func (*Mode) FrameType() Type             { return TypeMode }
func (*SessionModeFrame) FrameType() Type { return TypeSessionMode }
func (*SessionsList) FrameType() Type     { return TypeSessionsList }
func (*PlayAirhorn) FrameType() Type      { return TypePlayAirhorn }
func (*History) FrameType() Type          { return TypeHistory }
func (*PlayHistory) FrameType() Type      { return TypePlayHistory }
func (*ProminentMessage) FrameType() Type { return TypeProminentMessage }

var inbound = map[Type]func() Frame{
	TypeLoginSuccess:     func() Frame { return &LoginSuccess{} },
	TypeLoginError:       func() Frame { return &LoginError{} },
	TypeTracksList:       func() Frame { return &TracksList{} },
	TypeMode:             func() Frame { return &Mode{} },
	TypeSessionMode:      func() Frame { return &SessionModeFrame{} },
	TypeSessionsList:     func() Frame { return &SessionsList{} },
	TypePlayAirhorn:      func() Frame { return &PlayAirhorn{} },
	TypeHistory:          func() Frame { return &History{} },
	TypePlayHistory:      func() Frame { return &PlayHistory{} },
	TypeProminentMessage: func() Frame { return &ProminentMessage{} },
}

// InboundTypes lists every frame type the decoder accepts.
func InboundTypes() []Type {
	out := make([]Type, 0, len(inbound))
	for t := range inbound {
		out = append(out, t)
	}
	return out
}

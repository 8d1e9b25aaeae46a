package protocol

// Outbound command types.
const (
	TypeLogin             Type = "login"
	TypeGetTracks         Type = "get_tracks"
	TypeGetSessions       Type = "get_sessions"
	TypeGetPlayHistory    Type = "get_play_history"
	TypePing              Type = "ping"
	TypeMasterPlay        Type = "master_play"
	TypeMasterPause       Type = "master_pause"
	TypeMasterSkip        Type = "master_skip"
	TypeTakeMasterControl Type = "take_master_control"
	TypeSessionPlay       Type = "session_play"
	TypeSessionPause      Type = "session_pause"
	TypeJam               Type = "jam"
	TypeRemoveTrack       Type = "remove_track"
	TypeDelayTrack        Type = "delay_track"
	TypeAirhorn           Type = "airhorn"
	TypeHistoryMessage    Type = "history_message"
)

// Command is an outbound client frame. Encode adds the "type" field.
type Command interface {
	CommandType() Type
}

type Login struct {
	UserID string `json:"userId"`
}

type GetTracks struct{}

type GetSessions struct{}

type GetPlayHistory struct{}

type Ping struct {
	SessionID string `json:"sessionId"`
}

type MasterPlay struct{}

type MasterPause struct{}

type MasterSkip struct {
	SessionID string `json:"sessionId"`
}

type TakeMasterControl struct {
	SessionID string `json:"sessionId"`
}

type SessionPlay struct {
	SessionID string `json:"sessionId"`
}

type SessionPause struct {
	SessionID string `json:"sessionId"`
}

type Jam struct {
	SpotifyURI string `json:"spotifyUri"`
	SessionID  string `json:"sessionId"`
}

type RemoveTrack struct {
	SpotifyURI string `json:"spotifyUri"`
	SessionID  string `json:"sessionId"`
}

type DelayTrack struct {
	SpotifyURI string `json:"spotifyUri"`
	SessionID  string `json:"sessionId"`
}

type Airhorn struct {
	Airhorn string `json:"airhorn"`
}

type HistoryMessage struct {
	Message   string `json:"message"`
	SessionID string `json:"sessionId"`
}

func (Login) CommandType() Type             { return TypeLogin }
func (GetTracks) CommandType() Type         { return TypeGetTracks }
func (GetSessions) CommandType() Type       { return TypeGetSessions }
func (GetPlayHistory) CommandType() Type    { return TypeGetPlayHistory }
func (Ping) CommandType() Type              { return TypePing }
func (MasterPlay) CommandType() Type        { return TypeMasterPlay }
func (MasterPause) CommandType() Type       { return TypeMasterPause }
func (MasterSkip) CommandType() Type        { return TypeMasterSkip }
func (TakeMasterControl) CommandType() Type { return TypeTakeMasterControl }
func (SessionPlay) CommandType() Type       { return TypeSessionPlay }
func (SessionPause) CommandType() Type      { return TypeSessionPause }
func (Jam) CommandType() Type               { return TypeJam }
func (RemoveTrack) CommandType() Type       { return TypeRemoveTrack }
func (DelayTrack) CommandType() Type        { return TypeDelayTrack }
func (Airhorn) CommandType() Type           { return TypeAirhorn }
func (HistoryMessage) CommandType() Type    { return TypeHistoryMessage }

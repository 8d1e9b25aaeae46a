package router

import (
	"testing"
	"time"

	"github.com/orchestra-mcp/jam/src/feed"
	"github.com/orchestra-mcp/jam/src/protocol"
	"github.com/orchestra-mcp/jam/src/state"
	"github.com/orchestra-mcp/jam/src/types"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newWired(t *testing.T) (*Router, *state.Store, *feed.Notices) {
	t.Helper()
	r := New(zerolog.Nop())
	s := state.New()
	n := feed.NewNotices(time.Hour, time.Hour, zerolog.Nop())
	t.Cleanup(n.Stop)
	RegisterDefaults(r, s, n)
	return r, s, n
}

func TestRouteTracksListReplacesQueue(t *testing.T) {
	r, s, _ := newWired(t)
	require.NoError(t, r.Route([]byte(`{"type":"tracks_list","tracks":[{"spotifyUri":"a"},{"spotifyUri":"b"}]}`)))
	require.NoError(t, r.Route([]byte(`{"type":"tracks_list","tracks":[{"spotifyUri":"c"}]}`)))

	q := s.Queue()
	require.Len(t, q, 1)
	assert.Equal(t, "c", q[0].SpotifyURI)

	require.NoError(t, r.Route([]byte(`{"type":"tracks_list","tracks":null}`)))
	assert.Empty(t, s.Queue())
}

func TestRouteModeScenario(t *testing.T) {
	r, s, _ := newWired(t)
	s.SetSelf("S1")
	require.NoError(t, r.Route([]byte(`{"type":"mode","mode":"master_play","currentlyPlayingTrack":{"spotifyUri":"abc"},"masterUserSessionId":"S1","canTakeMasterControl":false}`)))

	snap := s.Snapshot()
	assert.True(t, snap.IsMaster)
	assert.Equal(t, types.MasterPlay, snap.Mode)
	require.NotNil(t, snap.Current)
	assert.Equal(t, "abc", snap.Current.SpotifyURI)
}

func TestRouteSessionModeAndFeeds(t *testing.T) {
	r, s, _ := newWired(t)
	frames := []string{
		`{"type":"session_mode","sessionMode":"session_play"}`,
		`{"type":"sessions_list","sessions":[{"sessionId":"a","name":"Ann","email":"a@x","isMaster":true,"userId":null}]}`,
		`{"type":"history","history":[{"type":"jam","timestamp":1,"userName":"ann","details":{"track":"Song"}}]}`,
		`{"type":"play_history","playHistory":[{"track":{"spotifyUri":"u"},"startedBy":"ann","timestamp":2}]}`,
	}
	for _, f := range frames {
		require.NoError(t, r.Route([]byte(f)))
	}
	snap := s.Snapshot()
	assert.Equal(t, types.SessionPlay, snap.SessionMode)
	assert.Equal(t, types.MasterPause, snap.Mode, "session mode never touches playback mode")
	require.Len(t, snap.Roster, 1)
	assert.Nil(t, snap.Roster[0].UserID)
	require.Len(t, snap.History, 1)
	require.Len(t, snap.PlayHistory, 1)
}

func TestRouteProminentMessageShowsBanner(t *testing.T) {
	r, _, n := newWired(t)
	require.NoError(t, r.Route([]byte(`{"type":"prominent_message","message":"Last call!"}`)))
	b, ok := n.Current(feed.Banner)
	require.True(t, ok)
	assert.Equal(t, "Last call!", b.Text)
}

func TestRouteMalformedDropped(t *testing.T) {
	r, s, _ := newWired(t)
	v := s.Version()
	assert.ErrorIs(t, r.Route([]byte(`{{{`)), protocol.ErrMalformedFrame)
	assert.ErrorIs(t, r.Route([]byte(`{"tracks":[]}`)), protocol.ErrMissingType)
	assert.ErrorIs(t, r.Route([]byte(`{"type":"nope"}`)), protocol.ErrUnknownFrame)
	assert.Equal(t, v, s.Version())
}

func TestSubscribersRunAfterHandler(t *testing.T) {
	r, s, _ := newWired(t)
	var seenLen = -1
	var airhorn string
	r.Subscribe(protocol.TypeTracksList, func(protocol.Frame) { seenLen = len(s.Queue()) })
	r.Subscribe(protocol.TypePlayAirhorn, func(f protocol.Frame) { airhorn = f.(*protocol.PlayAirhorn).Airhorn })

	require.NoError(t, r.Route([]byte(`{"type":"tracks_list","tracks":[{"spotifyUri":"a"}]}`)))
	require.NoError(t, r.Route([]byte(`{"type":"play_airhorn","airhorn":"horn-1"}`)))
	assert.Equal(t, 1, seenLen)
	assert.Equal(t, "horn-1", airhorn)
}

func TestRegisterReplacesHandler(t *testing.T) {
	r := New(zerolog.Nop())
	calls := []string{}
	r.Register(protocol.TypeLoginError, func(protocol.Frame) { calls = append(calls, "first") })
	r.Register(protocol.TypeLoginError, func(protocol.Frame) { calls = append(calls, "second") })
	require.NoError(t, r.Route([]byte(`{"type":"login_error","error":"stale"}`)))
	assert.Equal(t, []string{"second"}, calls)
}

func TestUnhandledTypeIsNoop(t *testing.T) {
	r := New(zerolog.Nop())
	assert.NoError(t, r.Route([]byte(`{"type":"login_success"}`)))
}

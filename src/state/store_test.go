package state

import (
	"sync"
	"testing"

	"github.com/orchestra-mcp/jam/src/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func track(uri string, jammers ...string) types.Track {
	return types.Track{SpotifyURI: uri, Name: uri, Jammers: jammers}
}

func TestInitialState(t *testing.T) {
	s := New()
	snap := s.Snapshot()
	assert.Equal(t, types.MasterPause, snap.Mode)
	assert.Equal(t, types.SessionPause, snap.SessionMode)
	assert.NotNil(t, snap.Queue)
	assert.Empty(t, snap.Queue)
	assert.Nil(t, snap.Current)
	assert.False(t, snap.IsMaster)
	assert.False(t, snap.CanSkip)
}

func TestApplyTracksReplacesQueue(t *testing.T) {
	s := New()
	payloads := [][]types.Track{
		{track("a"), track("b")},
		{track("c")},
		nil,
		{track("d"), track("a", "x@y.z")},
	}
	for _, p := range payloads {
		s.ApplyTracks(p)
		got := s.Queue()
		require.Len(t, got, len(p))
		for i := range p {
			assert.Equal(t, p[i].SpotifyURI, got[i].SpotifyURI)
		}
	}
	assert.True(t, s.HasTrack("a"))
	assert.False(t, s.HasTrack("b"))
}

func TestQueueCopyIsIsolated(t *testing.T) {
	s := New()
	in := []types.Track{track("a", "j1")}
	s.ApplyTracks(in)
	in[0].Jammers[0] = "mutated"

	q := s.Queue()
	assert.Equal(t, "j1", q[0].Jammers[0])
	q[0].SpotifyURI = "changed"
	assert.True(t, s.HasTrack("a"))
}

func TestModeScenarioMakesSelfMaster(t *testing.T) {
	s := New()
	s.SetSelf("S1")
	s.ApplyMode(types.ModeSnapshot{
		Mode:             types.MasterPlay,
		CurrentlyPlaying: &types.CurrentTrack{Track: track("abc")},
		MasterSessionID:  "S1",
	})

	snap := s.Snapshot()
	assert.True(t, snap.IsMaster)
	assert.Equal(t, types.MasterPlay, snap.Mode)
	require.NotNil(t, snap.Current)
	assert.Equal(t, "abc", snap.Current.SpotifyURI)
}

func TestIsMasterFollowsLatestMode(t *testing.T) {
	s := New()
	s.SetSelf("S1")
	s.ApplyMode(types.ModeSnapshot{MasterSessionID: "S1"})
	assert.True(t, s.IsMaster())

	s.ApplyMode(types.ModeSnapshot{MasterSessionID: "S2", CanTakeMasterControl: true})
	assert.False(t, s.IsMaster())
	assert.True(t, s.Snapshot().CanTakeMasterControl)

	s.SetSelf("")
	s.ApplyMode(types.ModeSnapshot{MasterSessionID: ""})
	assert.False(t, s.IsMaster(), "empty ids never match")
}

func TestModeReplacesOptionalFields(t *testing.T) {
	s := New()
	s.ApplyMode(types.ModeSnapshot{
		Mode:             types.MasterPlay,
		CurrentlyPlaying: &types.CurrentTrack{Track: track("abc"), Progress: &types.Progress{PositionMS: 1, DurationMS: 2}},
		Fallback:         &types.FallbackPlaylist{URL: "spotify:playlist:1"},
	})
	s.ApplyMode(types.ModeSnapshot{Mode: "bogus"})

	snap := s.Snapshot()
	assert.Equal(t, types.MasterPause, snap.Mode)
	assert.Nil(t, snap.Current)
	assert.Nil(t, snap.Fallback)
}

func TestSessionModeIndependentOfPlaybackMode(t *testing.T) {
	s := New()
	s.ApplyMode(types.ModeSnapshot{Mode: types.MasterPlay})
	s.ApplySessionMode(types.SessionPlay)
	snap := s.Snapshot()
	assert.Equal(t, types.MasterPlay, snap.Mode)
	assert.Equal(t, types.SessionPlay, snap.SessionMode)

	s.ApplySessionMode(types.SessionPause)
	assert.Equal(t, types.MasterPlay, s.Snapshot().Mode)
}

func TestCanSkip(t *testing.T) {
	cases := []struct {
		name     string
		master   string
		queue    []types.Track
		fallback *types.FallbackPlaylist
		want     bool
	}{
		{"not master", "S2", []types.Track{track("a")}, nil, false},
		{"master empty queue no fallback", "S1", nil, nil, false},
		{"master with queue", "S1", []types.Track{track("a")}, nil, true},
		{"master with fallback only", "S1", nil, &types.FallbackPlaylist{URL: "u"}, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s := New()
			s.SetSelf("S1")
			s.ApplyTracks(tc.queue)
			s.ApplyMode(types.ModeSnapshot{MasterSessionID: tc.master, Fallback: tc.fallback})
			assert.Equal(t, tc.want, s.CanSkip())
		})
	}
}

func TestFeedsReplace(t *testing.T) {
	s := New()
	s.ApplyRoster([]types.ConnectedUser{{SessionID: "a"}, {SessionID: "b"}})
	s.ApplyRoster([]types.ConnectedUser{{SessionID: "c"}})
	assert.Len(t, s.Roster(), 1)

	s.ApplyHistory([]types.HistoryEvent{{Type: types.HistoryJam}})
	s.ApplyHistory(nil)
	assert.NotNil(t, s.Snapshot().History)
	assert.Empty(t, s.Snapshot().History)

	s.ApplyPlayHistory([]types.PlayHistoryEntry{{Track: track("a"), StartedBy: "ann"}})
	assert.Len(t, s.Snapshot().PlayHistory, 1)
}

func TestVersionIncrements(t *testing.T) {
	s := New()
	v := s.Version()
	s.ApplyTracks(nil)
	s.ApplySessionMode(types.SessionPlay)
	assert.Equal(t, v+2, s.Version())
}

func TestConcurrentReaders(t *testing.T) {
	s := New()
	s.SetSelf("S1")
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				_ = s.Snapshot()
				_ = s.CanSkip()
			}
		}()
	}
	for j := 0; j < 200; j++ {
		s.ApplyTracks([]types.Track{track("a")})
		s.ApplyMode(types.ModeSnapshot{MasterSessionID: "S1"})
	}
	wg.Wait()
	assert.True(t, s.CanSkip())
}

package feed

import (
	"encoding/json"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/orchestra-mcp/jam/src/types"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJams(t *testing.T) {
	cases := []struct {
		n    int
		want JamIcons
		text string
	}{
		{0, JamIcons{}, ""},
		{4, JamIcons{Count: 4, Ones: 4}, "❤️❤️❤️❤️"},
		{5, JamIcons{Count: 5, Fives: 1}, "💚"},
		{23, JamIcons{Count: 23, Tens: 2, Ones: 3}, "💙💙❤️❤️❤️"},
		{27, JamIcons{Count: 27, Tens: 2, Fives: 1, Ones: 2}, "💙💙💚❤️❤️"},
		{50, JamIcons{Count: 50, Tens: 5}, "💙💙💙💙💙"},
		{51, JamIcons{Count: 51, Intense: true}, "❤️‍🔥"},
	}
	for _, tc := range cases {
		got := Jams(tc.n)
		assert.Equal(t, tc.want, got, "n=%d", tc.n)
		assert.Equal(t, tc.text, got.String(), "n=%d", tc.n)
	}
	assert.Equal(t, "27 jams", Jams(27).Label())
	assert.Equal(t, JamIcons{}, Jams(-3))
}

func TestTimeAgo(t *testing.T) {
	now := time.Date(2024, 5, 10, 12, 0, 0, 0, time.Local)
	assert.Equal(t, "0s ago", TimeAgo(now.Add(time.Second), now))
	assert.Equal(t, "59s ago", TimeAgo(now.Add(-59*time.Second), now))
	assert.Equal(t, "1m ago", TimeAgo(now.Add(-60*time.Second), now))
	assert.Equal(t, "59m ago", TimeAgo(now.Add(-59*time.Minute), now))
	assert.Equal(t, "23h ago", TimeAgo(now.Add(-23*time.Hour), now))
	assert.Equal(t, "2024-05-08", TimeAgo(now.Add(-48*time.Hour), now))
}

func TestNewestFirst(t *testing.T) {
	in := []int{1, 2, 3}
	assert.Equal(t, []int{3, 2, 1}, NewestFirst(in))
	assert.Equal(t, []int{1, 2, 3}, in, "input untouched")
	assert.Empty(t, NewestFirst[int](nil))
}

func rawTrack(t *testing.T, v any) json.RawMessage {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return b
}

func TestDescribe(t *testing.T) {
	cases := []struct {
		name  string
		event types.HistoryEvent
		want  string
	}{
		{"message", types.HistoryEvent{Type: types.HistoryMessage, UserName: "ann", Details: types.HistoryDetails{Message: "hi"}}, "ann: hi"},
		{"spotify join", types.HistoryEvent{Type: types.HistoryUserConnected, UserName: "ann", Details: types.HistoryDetails{LoginType: "spotify"}}, "ann joined via Spotify"},
		{"listener join", types.HistoryEvent{Type: types.HistoryUserConnected, UserName: "bob"}, "bob joined as Offline Contributor"},
		{"leave", types.HistoryEvent{Type: types.HistoryUserDisconnected, UserName: "bob"}, "bob left"},
		{"play", types.HistoryEvent{Type: types.HistoryTrackPlay, UserName: "ann", Details: types.HistoryDetails{
			Track: rawTrack(t, types.Track{SpotifyURI: "u", Name: "Song", Artist: "Band", Album: "LP"}),
		}}, "Song by Band (LP). Started by: ann"},
		{"skip no track", types.HistoryEvent{Type: types.HistoryTrackSkip, UserName: "ann"}, "Skipped by: ann"},
		{"added", types.HistoryEvent{Type: types.HistoryTrackAdded, UserName: "ann", Details: types.HistoryDetails{Track: rawTrack(t, "Song")}}, "ann added Song"},
		{"jam", types.HistoryEvent{Type: types.HistoryJam, UserName: "ann", Details: types.HistoryDetails{Track: rawTrack(t, "Song")}}, "ann jammed Song"},
		{"unjam", types.HistoryEvent{Type: types.HistoryUnjam, UserName: "ann", Details: types.HistoryDetails{Track: rawTrack(t, "Song")}}, "ann unjammed Song"},
		{"airhorn", types.HistoryEvent{Type: types.HistoryAirhorn, UserName: "ann", Details: types.HistoryDetails{Airhorn: "air-horn_long"}}, "ann played air horn long"},
		{"unknown", types.HistoryEvent{Type: "debug_dump"}, "🐛 Unknown Event Type: debug_dump"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Describe(tc.event))
		})
	}
}

func TestDescribePlay(t *testing.T) {
	e := types.PlayHistoryEntry{Track: types.Track{Name: "Song", Artist: "Band"}, StartedBy: "ann"}
	assert.Equal(t, "Song by Band, started by ann", DescribePlay(e))
	assert.Equal(t, "Unknown Track", DescribePlay(types.PlayHistoryEntry{}))
}

func TestPlaylistLink(t *testing.T) {
	assert.Equal(t, "https://open.spotify.com/playlist/37i9", PlaylistLink("spotify:playlist:37i9"))
	assert.Equal(t, "https://example.com/x", PlaylistLink("https://example.com/x"))
	assert.Equal(t, "spotify:playlist:", PlaylistLink("spotify:playlist:"))
}

func TestProgress(t *testing.T) {
	assert.Equal(t, "", FormatProgress(nil))
	assert.Equal(t, "1:05 / 3:20", FormatProgress(&types.Progress{PositionMS: 65_999, DurationMS: 200_000}))
	assert.Equal(t, "3:20 / 3:20", FormatProgress(&types.Progress{PositionMS: 250_000, DurationMS: 200_000}))
	assert.Equal(t, "0:00 / 0:00", FormatProgress(&types.Progress{PositionMS: -5}))

	assert.Equal(t, 0.5, ProgressFraction(&types.Progress{PositionMS: 100, DurationMS: 200}))
	assert.Equal(t, 1.0, ProgressFraction(&types.Progress{PositionMS: 300, DurationMS: 200}))
	assert.Equal(t, 0.0, ProgressFraction(&types.Progress{PositionMS: -1, DurationMS: 200}))
	assert.Equal(t, 0.0, ProgressFraction(&types.Progress{PositionMS: 100}))
}

type recorder struct {
	mu     sync.Mutex
	events []string
}

func (r *recorder) fn(kind Kind, n *Notice) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if n == nil {
		r.events = append(r.events, kind.String()+":clear")
		return
	}
	r.events = append(r.events, kind.String()+":"+n.Text)
}

func (r *recorder) snapshot() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.events...)
}

func TestNoticesExpire(t *testing.T) {
	n := NewNotices(20*time.Millisecond, time.Hour, zerolog.Nop())
	defer n.Stop()
	rec := &recorder{}
	n.OnChange(rec.fn)

	n.Show(Toast, "dup")
	got, ok := n.Current(Toast)
	require.True(t, ok)
	assert.Equal(t, "dup", got.Text)

	require.Eventually(t, func() bool {
		_, ok := n.Current(Toast)
		return !ok
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"toast:dup", "toast:clear"}, rec.snapshot())
}

func TestNoticesReplaceRestartsTimer(t *testing.T) {
	n := NewNotices(50*time.Millisecond, time.Hour, zerolog.Nop())
	defer n.Stop()

	n.Show(Toast, "first")
	time.Sleep(30 * time.Millisecond)
	n.Show(Toast, "second")
	time.Sleep(30 * time.Millisecond)

	got, ok := n.Current(Toast)
	require.True(t, ok, "replacement must not expire on the first timer")
	assert.Equal(t, "second", got.Text)
}

func TestNoticesSlotsIndependent(t *testing.T) {
	n := NewNotices(time.Hour, time.Hour, zerolog.Nop())
	defer n.Stop()
	n.Show(Banner, "party at 5")
	n.Show(Toast, "dup")
	n.Dismiss(Toast)

	_, ok := n.Current(Toast)
	assert.False(t, ok)
	b, ok := n.Current(Banner)
	require.True(t, ok)
	assert.Equal(t, "party at 5", b.Text)
}

func TestNoticesStop(t *testing.T) {
	n := NewNotices(10*time.Millisecond, 10*time.Millisecond, zerolog.Nop())
	rec := &recorder{}
	n.OnChange(rec.fn)
	n.Show(Banner, "x")
	n.Stop()
	n.Show(Toast, "ignored")
	time.Sleep(40 * time.Millisecond)
	assert.Equal(t, []string{"banner:x"}, rec.snapshot())
}

func TestNoticesStopWaitsForRunningWatcher(t *testing.T) {
	n := NewNotices(time.Hour, time.Hour, zerolog.Nop())
	entered := make(chan struct{})
	release := make(chan struct{})
	var calls atomic.Int32
	n.OnChange(func(Kind, *Notice) {
		if calls.Add(1) == 1 {
			close(entered)
			<-release
		}
	})

	go n.Show(Toast, "slow")
	<-entered

	stopped := make(chan struct{})
	go func() {
		n.Stop()
		close(stopped)
	}()
	select {
	case <-stopped:
		t.Fatal("Stop returned while a watcher was running")
	case <-time.After(30 * time.Millisecond):
	}
	close(release)
	<-stopped

	n.Show(Banner, "after")
	n.Dismiss(Toast)
	assert.Equal(t, int32(1), calls.Load())
}

func TestNoticesShowRacingStop(t *testing.T) {
	n := NewNotices(time.Hour, time.Hour, zerolog.Nop())
	rec := &recorder{}
	n.OnChange(rec.fn)

	// Hold the notify lock so Show updates the slot and then waits; Stop
	// lands before the watchers get their turn.
	n.notifyMu.Lock()
	shown := make(chan struct{})
	go func() {
		n.Show(Toast, "late")
		close(shown)
	}()
	require.Eventually(t, func() bool {
		_, ok := n.Current(Toast)
		return ok
	}, time.Second, time.Millisecond)
	n.mu.Lock()
	n.stopped = true
	n.mu.Unlock()
	n.notifyMu.Unlock()
	<-shown

	assert.Empty(t, rec.snapshot())
}

package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/orchestra-mcp/jam/config"
	"github.com/orchestra-mcp/jam/src/app"
	"github.com/orchestra-mcp/jam/src/client"
	"github.com/orchestra-mcp/jam/src/feed"
	"github.com/orchestra-mcp/jam/src/identity"
	"github.com/orchestra-mcp/jam/src/protocol"
	"github.com/orchestra-mcp/jam/src/service"
	"github.com/orchestra-mcp/jam/src/state"
	"github.com/rs/zerolog"
)

const help = `add <uri|link>   submit a track        jam <uri>     toggle a jam
remove <uri>     remove a track        delay <uri>   push a track down
play | pause     master playback       skip          skip (master only)
take             take master control   splay|spause  session playback
say <text>       post to the feed      airhorn <n>   play an airhorn
airhorns         list airhorns         liked         add a random liked song
queue | history | plays | status | help | quit`

// out serialises terminal writes from the manager loop and the prompt.
type out struct {
	mu sync.Mutex
	w  io.Writer
}

func (o *out) printf(format string, args ...any) {
	o.mu.Lock()
	defer o.mu.Unlock()
	fmt.Fprintf(o.w, format, args...)
}

func runSession(ctx context.Context, cfg *config.SessionConfig, ids identity.Store, logger zerolog.Logger) error {
	a := app.New(cfg, ids, logger)
	if err := a.Activate(ctx); err != nil {
		if errors.Is(err, app.ErrLoginRequired) {
			return errors.New("no valid session; run `jamctl login <name> <email>` first")
		}
		return err
	}
	defer a.Deactivate()

	o := &out{w: os.Stdout}
	watchFeed(a, o)
	sh := newShell(a, o)

	lines := make(chan string)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(os.Stdin)
		for sc.Scan() {
			lines <- sc.Text()
		}
	}()

	o.printf("connected to %s, type help for commands\n", a.Manager.URL())
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-a.LoginRequired():
			return errors.New("session rejected; log in again")
		case err := <-a.StatusErrors():
			logger.Warn().Err(err).Msg("status server stopped")
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			quit, err := sh.execute(ctx, line)
			if err != nil {
				o.printf("error: %v\n", err)
			}
			if quit {
				return nil
			}
		}
	}
}

// watchFeed prints notices, airhorns and new history events as they arrive.
func watchFeed(a *app.App, o *out) {
	a.Notices.OnChange(func(kind feed.Kind, n *feed.Notice) {
		if n != nil {
			o.printf("[%s] %s\n", kind, n.Text)
		}
	})
	a.Router.Subscribe(protocol.TypePlayAirhorn, func(f protocol.Frame) {
		o.printf("📯 %s\n", feed.HumanizeAirhorn(f.(*protocol.PlayAirhorn).Airhorn))
	})

	var (
		last   int64
		seeded bool
	)
	a.Router.Subscribe(protocol.TypeHistory, func(f protocol.Frame) {
		events := f.(*protocol.History).History
		// The first broadcast is the backlog; only later events are printed.
		if !seeded {
			seeded = true
			for _, e := range events {
				last = max(last, e.Timestamp)
			}
			return
		}
		for _, e := range events {
			if e.Timestamp > last {
				o.printf("%s\n", feed.Describe(e))
				last = e.Timestamp
			}
		}
	})
	a.Manager.OnStatus(func(s client.Status) {
		o.printf("-- %s\n", s)
	})
}

// dispatcher is the part of service.Service the shell drives.
type dispatcher interface {
	SubmitTrack(ctx context.Context, input string) error
	Jam(uri string) error
	RemoveTrack(uri string) error
	DelayTrack(uri string) error
	MasterPlay()
	MasterPause()
	MasterSkip() error
	TakeMasterControl() error
	SessionPlay() error
	SessionPause() error
	PostMessage(text string) error
	SendAirhorn(name string) error
	Airhorns(ctx context.Context) ([]string, error)
	LoadRandomLiked(ctx context.Context) (int, error)
	RequestPlayHistory()
	ViewerEmail(ctx context.Context) string
}

// shell maps typed lines onto dispatcher calls and prints the local views.
type shell struct {
	svc   dispatcher
	state *state.Store
	stats func() client.Stats
	out   *out
	now   func() time.Time
}

func newShell(a *app.App, o *out) *shell {
	return &shell{svc: a.Service, state: a.State, stats: a.Manager.Stats, out: o, now: time.Now}
}

// execute runs one line and reports whether the shell should exit.
func (sh *shell) execute(ctx context.Context, line string) (bool, error) {
	line = strings.TrimSpace(line)
	if line == "" {
		return false, nil
	}
	cmd, arg, _ := strings.Cut(line, " ")
	arg = strings.TrimSpace(arg)
	svc, o := sh.svc, sh.out

	switch cmd {
	case "help":
		o.printf("%s\n", help)
	case "quit", "exit":
		return true, nil
	case "add":
		return false, svc.SubmitTrack(ctx, arg)
	case "jam":
		return false, svc.Jam(arg)
	case "remove":
		return false, svc.RemoveTrack(arg)
	case "delay":
		return false, svc.DelayTrack(arg)
	case "play":
		svc.MasterPlay()
	case "pause":
		svc.MasterPause()
	case "skip":
		return false, svc.MasterSkip()
	case "take":
		return false, svc.TakeMasterControl()
	case "splay":
		return false, svc.SessionPlay()
	case "spause":
		return false, svc.SessionPause()
	case "say":
		return false, svc.PostMessage(arg)
	case "airhorn":
		return false, svc.SendAirhorn(arg)
	case "airhorns":
		names, err := svc.Airhorns(ctx)
		if err != nil {
			return false, err
		}
		for _, n := range names {
			o.printf("  %s (%s)\n", n, feed.HumanizeAirhorn(n))
		}
	case "liked":
		added, err := svc.LoadRandomLiked(ctx)
		if err != nil {
			return false, err
		}
		o.printf("added %d liked songs\n", added)
	case "queue":
		sh.printQueue(ctx)
	case "history":
		now := sh.now()
		for _, e := range feed.NewestFirst(sh.state.Snapshot().History) {
			o.printf("%8s  %s\n", feed.TimeAgo(e.Time(), now), feed.Describe(e))
		}
	case "plays":
		svc.RequestPlayHistory()
		now := sh.now()
		for _, e := range feed.NewestFirst(sh.state.Snapshot().PlayHistory) {
			o.printf("%8s  %s\n", feed.TimeAgo(e.Time(), now), feed.DescribePlay(e))
		}
	case "status":
		st := sh.stats()
		snap := sh.state.Snapshot()
		o.printf("%s  session=%s attempts=%d master=%t mode=%s/%s\n",
			st.StatusText, st.SessionID, st.Attempts, snap.IsMaster, snap.Mode, snap.SessionMode)
	default:
		return false, fmt.Errorf("unknown command %q, try help", cmd)
	}
	return false, nil
}

func (sh *shell) printQueue(ctx context.Context) {
	o := sh.out
	snap := sh.state.Snapshot()
	email := sh.svc.ViewerEmail(ctx)
	if c := snap.Current; c != nil {
		o.printf("▶ %s", c.Title())
		if c.Artist != "" {
			o.printf(" by %s", c.Artist)
		}
		if c.Progress != nil {
			o.printf("  %s", feed.FormatProgress(c.Progress))
		}
		o.printf("\n")
	}
	if len(snap.Queue) == 0 {
		if snap.Fallback != nil {
			o.printf("queue empty, playing %s (%s)\n", snap.Fallback.Name, feed.PlaylistLink(snap.Fallback.URL))
		} else {
			o.printf("queue empty\n")
		}
		return
	}
	for i, t := range snap.Queue {
		mark := " "
		if service.HasJammed(t, email) {
			mark = "*"
		}
		jams := feed.Jams(t.JamCount())
		o.printf("%2d%s %s  %s %s\n", i+1, mark, t.Title(), jams.String(), jams.Label())
	}
}

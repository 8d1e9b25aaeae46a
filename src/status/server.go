// Package status serves a read-only local view of the session: connection
// health, state snapshots and a live snapshot stream over WebSocket.
package status

import (
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/fasthttp/websocket"
	"github.com/gofiber/fiber/v3"
	"github.com/orchestra-mcp/jam/src/client"
	"github.com/orchestra-mcp/jam/src/feed"
	"github.com/orchestra-mcp/jam/src/state"
	"github.com/rs/zerolog"
	"github.com/valyala/fasthttp"
)

const (
	defaultHistoryLimit = 50
	streamPoll          = 250 * time.Millisecond
)

// StatsSource reports connection health.
type StatsSource interface {
	Stats() client.Stats
	URL() string
}

var upgrader = websocket.FastHTTPUpgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(*fasthttp.RequestCtx) bool { return true },
}

// Server exposes the status routes.
type Server struct {
	app     *fiber.App
	stats   StatsSource
	store   *state.Store
	notices *feed.Notices
	srv     *fasthttp.Server
	logger  zerolog.Logger
	now     func() time.Time
}

// New builds the fiber app and registers routes.
func New(stats StatsSource, store *state.Store, notices *feed.Notices, logger zerolog.Logger) *Server {
	s := &Server{
		app:     fiber.New(fiber.Config{AppName: "jamctl-status"}),
		stats:   stats,
		store:   store,
		notices: notices,
		logger:  logger.With().Str("component", "status").Logger(),
		now:     time.Now,
	}
	s.RegisterRoutes(s.app)
	s.srv = &fasthttp.Server{
		Handler:         s.Handler(),
		Name:            "jamctl",
		ReadTimeout:     10 * time.Second,
		IdleTimeout:     time.Minute,
		Logger:          fasthttpLogger{s.logger},
		CloseOnShutdown: true,
	}
	return s
}

// App returns the fiber app.
func (s *Server) App() *fiber.App { return s.app }

// RegisterRoutes registers the JSON routes on group.
func (s *Server) RegisterRoutes(group fiber.Router) {
	group.Get("/status", s.handleStatus)
	group.Get("/state", s.handleState)
	group.Get("/queue", s.handleQueue)
	group.Get("/history", s.handleHistory)
	group.Get("/play-history", s.handlePlayHistory)
	group.Get("/notices", s.handleNotices)
}

func (s *Server) handleStatus(c fiber.Ctx) error {
	st := s.stats.Stats()
	return c.JSON(fiber.Map{
		"status":           st.StatusText,
		"url":              s.stats.URL(),
		"attempts":         st.Attempts,
		"reconnectPending": st.ReconnectPending,
		"connectionId":     st.ConnectionID,
		"sessionId":        st.SessionID,
		"loginRequired":    st.LoginRequired,
	})
}

func (s *Server) handleState(c fiber.Ctx) error {
	return c.JSON(s.store.Snapshot())
}

type queueRow struct {
	URI       string `json:"spotifyUri"`
	Title     string `json:"title"`
	Artist    string `json:"artist,omitempty"`
	Submitter string `json:"submitter,omitempty"`
	Fallback  bool   `json:"isFallback,omitempty"`
	Jams      int    `json:"jams"`
	Icons     string `json:"icons"`
}

func (s *Server) handleQueue(c fiber.Ctx) error {
	queue := s.store.Queue()
	rows := make([]queueRow, 0, len(queue))
	for _, t := range queue {
		icons := feed.Jams(t.JamCount())
		rows = append(rows, queueRow{
			URI:       t.SpotifyURI,
			Title:     t.Title(),
			Artist:    t.Artist,
			Submitter: t.SubmitterName,
			Fallback:  t.IsFallback,
			Jams:      icons.Count,
			Icons:     icons.String(),
		})
	}
	return c.JSON(rows)
}

type historyRow struct {
	Type string `json:"type"`
	User string `json:"userName,omitempty"`
	Text string `json:"text"`
	Ago  string `json:"ago"`
}

func limitParam(c fiber.Ctx) (int, error) {
	raw := c.Query("limit")
	if raw == "" {
		return defaultHistoryLimit, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, fiber.NewError(fiber.StatusBadRequest, "limit must be a non-negative integer")
	}
	return n, nil
}

func (s *Server) handleHistory(c fiber.Ctx) error {
	limit, err := limitParam(c)
	if err != nil {
		return err
	}
	events := feed.NewestFirst(s.store.Snapshot().History)
	if len(events) > limit {
		events = events[:limit]
	}
	now := s.now()
	rows := make([]historyRow, 0, len(events))
	for _, e := range events {
		rows = append(rows, historyRow{
			Type: string(e.Type),
			User: e.UserName,
			Text: feed.Describe(e),
			Ago:  feed.TimeAgo(e.Time(), now),
		})
	}
	return c.JSON(rows)
}

func (s *Server) handlePlayHistory(c fiber.Ctx) error {
	limit, err := limitParam(c)
	if err != nil {
		return err
	}
	entries := feed.NewestFirst(s.store.Snapshot().PlayHistory)
	if len(entries) > limit {
		entries = entries[:limit]
	}
	now := s.now()
	rows := make([]historyRow, 0, len(entries))
	for _, e := range entries {
		rows = append(rows, historyRow{
			Type: "play",
			User: e.StartedBy,
			Text: feed.DescribePlay(e),
			Ago:  feed.TimeAgo(e.Time(), now),
		})
	}
	return c.JSON(rows)
}

func (s *Server) handleNotices(c fiber.Ctx) error {
	out := fiber.Map{}
	if s.notices == nil {
		return c.JSON(out)
	}
	if n, ok := s.notices.Current(feed.Toast); ok {
		out["toast"] = n.Text
	}
	if n, ok := s.notices.Current(feed.Banner); ok {
		out["banner"] = n.Text
	}
	return c.JSON(out)
}

// Handler routes /ws to the snapshot stream and everything else to fiber.
// The stream is a raw fasthttp handler because the upgrade needs the
// underlying *fasthttp.RequestCtx.
func (s *Server) Handler() fasthttp.RequestHandler {
	stream := s.StreamHandler()
	app := s.app.Handler()
	return func(ctx *fasthttp.RequestCtx) {
		if string(ctx.Path()) == "/ws" {
			stream(ctx)
			return
		}
		app(ctx)
	}
}

// StreamHandler pushes a state snapshot on connect and after every change.
func (s *Server) StreamHandler() fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		upgrade := string(ctx.Request.Header.Peek("Upgrade"))
		if !strings.EqualFold(upgrade, "websocket") {
			ctx.SetStatusCode(fasthttp.StatusUpgradeRequired)
			ctx.SetBodyString(`{"error":"upgrade_required","message":"WebSocket upgrade required"}`)
			return
		}
		err := upgrader.Upgrade(ctx, func(conn *websocket.Conn) {
			defer conn.Close()
			s.stream(conn)
		})
		if err != nil {
			s.logger.Error().Err(err).Msg("websocket upgrade failed")
		}
	}
}

func (s *Server) stream(conn *websocket.Conn) {
	// Reads only detect the peer going away.
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(streamPoll)
	defer ticker.Stop()
	var sent uint64
	first := true
	for {
		if v := s.store.Version(); first || v != sent {
			first = false
			sent = v
			if err := conn.WriteJSON(s.store.Snapshot()); err != nil {
				return
			}
		}
		select {
		case <-gone:
			return
		case <-ticker.C:
		}
	}
}

// Serve serves on ln until Shutdown.
func (s *Server) Serve(ln net.Listener) error {
	s.logger.Info().Str("addr", ln.Addr().String()).Msg("status server listening")
	return s.srv.Serve(ln)
}

// ListenAndServe listens on addr and serves.
func (s *Server) ListenAndServe(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.Serve(ln)
}

// Shutdown stops the server.
func (s *Server) Shutdown() error {
	return s.srv.Shutdown()
}

type fasthttpLogger struct{ logger zerolog.Logger }

func (l fasthttpLogger) Printf(format string, args ...any) {
	l.logger.Debug().Msgf(format, args...)
}

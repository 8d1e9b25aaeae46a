// Package client owns the session socket: dialing, identity presentation,
// reconnection with backoff, heartbeat and the login_error recovery flow.
//
// All connection state lives on one goroutine. Socket readers, timers and
// background calls only post events to it, and every socket event carries the
// generation of the connection it came from so that late events from a
// replaced socket are dropped.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/orchestra-mcp/jam/config"
	"github.com/orchestra-mcp/jam/src/identity"
	"github.com/orchestra-mcp/jam/src/protocol"
	"github.com/orchestra-mcp/jam/src/router"
	"github.com/orchestra-mcp/jam/src/state"
	"github.com/orchestra-mcp/jam/src/types"
	"github.com/rs/zerolog"
)

// Status is the connection state.
type Status int

const (
	Disconnected Status = iota
	Connecting
	Connected
)

func (s Status) String() string {
	switch s {
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	default:
		return "disconnected"
	}
}

// ErrNoListener is reported when a re-login is needed but no listener name
// and email are stored.
var ErrNoListener = errors.New("no listener identity stored")

// Authenticator exchanges a listener name and email for a new session id.
type Authenticator interface {
	ListenerLogin(ctx context.Context, name, email string) (string, error)
}

// Deps are the collaborators a Manager drives.
type Deps struct {
	Dialer   Dialer
	Identity identity.Store
	Auth     Authenticator
	Router   *router.Router
	State    *state.Store
}

// Stats describes the manager at one instant.
type Stats struct {
	Status           Status `json:"-"`
	StatusText       string `json:"status"`
	Attempts         int    `json:"attempts"`
	ReconnectPending bool   `json:"reconnectPending"`
	Generation       uint64 `json:"generation"`
	ConnectionID     string `json:"connectionId,omitempty"`
	SessionID        string `json:"sessionId,omitempty"`
	LoginRequired    bool   `json:"loginRequired"`
}

// Events posted to the loop.
type connectReq struct{}

type reconnectFire struct{ seq uint64 }

type dialed struct {
	gen  uint64
	conn types.Conn
	id   identity.Identity
	err  error
}

type frameIn struct {
	gen  uint64
	data []byte
}

type closed struct {
	gen uint64
	err error
}

type sendReq struct{ cmd protocol.Command }

type heartbeatTick struct{ gen uint64 }

type reloginDone struct {
	sessionID string
	err       error
}

type identityChanged struct{ id identity.Identity }

type statsReq struct{ reply chan Stats }

// Manager owns the session socket.
type Manager struct {
	url          string
	pingInterval time.Duration
	base         time.Duration
	limit        time.Duration
	reloginDelay time.Duration
	httpTimeout  time.Duration

	dialer Dialer
	ids    identity.Store
	auth   Authenticator
	router *router.Router
	store  *state.Store
	logger zerolog.Logger

	events   chan any
	done     chan struct{}
	loopDone chan struct{}
	ctx      context.Context
	cancel   context.CancelFunc
	started  bool
	startMu  sync.Mutex
	stopOnce sync.Once

	// loop-owned
	status           Status
	conn             types.Conn
	gen              uint64
	connID           string
	dialing          bool
	attempts         int
	reconnectTimer   *time.Timer
	reconnectSeq     uint64
	reconnectPending bool
	hb               *heartbeat
	relogging        bool
	halted           bool
	sessionID        string
	loginSignalled   bool

	cbMu            sync.Mutex
	onStatus        []func(Status)
	onLoginRequired []func()
}

// New creates a Manager from the session config.
func New(cfg *config.SessionConfig, deps Deps, logger zerolog.Logger) (*Manager, error) {
	wsURL, err := cfg.WebSocketURL()
	if err != nil {
		return nil, err
	}
	if deps.Dialer == nil {
		deps.Dialer = NewWSDialer(cfg.HandshakeTimeout, cfg.WriteTimeout)
	}
	if deps.State == nil {
		deps.State = state.New()
	}
	if deps.Router == nil {
		deps.Router = router.New(logger)
	}
	if deps.Identity == nil {
		deps.Identity = identity.NewMemoryStore(identity.Identity{})
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		url:          wsURL,
		pingInterval: cfg.PingInterval,
		base:         cfg.ReconnectBase,
		limit:        cfg.ReconnectMax,
		reloginDelay: cfg.ReloginDelay,
		httpTimeout:  cfg.HTTPTimeout,
		dialer:       deps.Dialer,
		ids:          deps.Identity,
		auth:         deps.Auth,
		router:       deps.Router,
		store:        deps.State,
		logger:       logger.With().Str("component", "session-manager").Logger(),
		events:       make(chan any, 256),
		done:         make(chan struct{}),
		loopDone:     make(chan struct{}),
		ctx:          ctx,
		cancel:       cancel,
	}, nil
}

// URL returns the socket endpoint.
func (m *Manager) URL() string { return m.url }

// OnStatus registers a callback for status changes. Callbacks run on the
// manager goroutine and must not block or call Close.
func (m *Manager) OnStatus(fn func(Status)) {
	m.cbMu.Lock()
	defer m.cbMu.Unlock()
	m.onStatus = append(m.onStatus, fn)
}

// OnLoginRequired registers a callback fired at most once when the stored
// identity can no longer be used. Same constraints as OnStatus.
func (m *Manager) OnLoginRequired(fn func()) {
	m.cbMu.Lock()
	defer m.cbMu.Unlock()
	m.onLoginRequired = append(m.onLoginRequired, fn)
}

// Start registers the login_error handler, starts watching the identity store
// when it supports it and runs the event loop. It does not connect.
func (m *Manager) Start() error {
	m.startMu.Lock()
	defer m.startMu.Unlock()
	if m.started {
		return nil
	}
	select {
	case <-m.done:
		return errors.New("manager closed")
	default:
	}

	id, err := m.ids.Load(m.ctx)
	if err != nil {
		m.logger.Error().Err(err).Msg("load identity failed")
	}
	m.sessionID = id.SessionID
	m.store.SetSelf(id.SessionID)

	// Router handlers run on the loop goroutine, inside handleFrame.
	m.router.Register(protocol.TypeLoginError, func(f protocol.Frame) {
		m.handleLoginError(f.(*protocol.LoginError))
	})

	if w, ok := m.ids.(identity.Watcher); ok {
		if err := w.Watch(m.ctx, func(id identity.Identity) {
			m.post(identityChanged{id: id})
		}); err != nil {
			m.logger.Warn().Err(err).Msg("identity watch unavailable")
		}
	}

	m.started = true
	go m.run()
	return nil
}

// Connect opens the socket unless one is open or being dialed.
func (m *Manager) Connect() { m.post(connectReq{}) }

// Send writes cmd when connected and drops it otherwise.
func (m *Manager) Send(cmd protocol.Command) { m.post(sendReq{cmd: cmd}) }

// SessionID returns the session id presented on the current connection.
func (m *Manager) SessionID() string { return m.store.Self() }

// Stats queries the loop. After Close it reports Disconnected.
func (m *Manager) Stats() Stats {
	reply := make(chan Stats, 1)
	if !m.post(statsReq{reply: reply}) {
		return Stats{Status: Disconnected, StatusText: Disconnected.String()}
	}
	select {
	case s := <-reply:
		return s
	case <-m.done:
		return Stats{Status: Disconnected, StatusText: Disconnected.String()}
	}
}

// Close tears the manager down: timers, heartbeat and identity watch are
// cancelled and the socket is closed. No callback runs after Close returns.
func (m *Manager) Close() {
	m.stopOnce.Do(func() {
		close(m.done)
		m.cancel()
		m.startMu.Lock()
		started := m.started
		m.startMu.Unlock()
		if started {
			<-m.loopDone
		} else {
			m.teardown()
		}
	})
}

func (m *Manager) post(ev any) bool {
	select {
	case <-m.done:
		return false
	default:
	}
	select {
	case m.events <- ev:
		return true
	case <-m.done:
		return false
	}
}

func (m *Manager) run() {
	defer close(m.loopDone)
	for {
		select {
		case ev := <-m.events:
			m.handle(ev)
		case <-m.done:
			m.teardown()
			return
		}
	}
}

func (m *Manager) handle(ev any) {
	switch ev := ev.(type) {
	case connectReq:
		m.handleConnect()
	case reconnectFire:
		m.handleReconnectFire(ev)
	case dialed:
		m.handleDialed(ev)
	case frameIn:
		m.handleFrame(ev)
	case closed:
		m.handleClosed(ev)
	case sendReq:
		m.write(ev.cmd)
	case heartbeatTick:
		m.handleHeartbeat(ev)
	case reloginDone:
		m.handleReloginDone(ev)
	case identityChanged:
		m.handleIdentityChanged(ev)
	case statsReq:
		ev.reply <- m.stats()
	}
}

func (m *Manager) teardown() {
	m.cancelReconnect()
	m.detach()
	m.status = Disconnected
}

func (m *Manager) stats() Stats {
	return Stats{
		Status:           m.status,
		StatusText:       m.status.String(),
		Attempts:         m.attempts,
		ReconnectPending: m.reconnectPending,
		Generation:       m.gen,
		ConnectionID:     m.connID,
		SessionID:        m.sessionID,
		LoginRequired:    m.halted,
	}
}

func (m *Manager) setStatus(s Status) {
	if m.status == s {
		return
	}
	m.status = s
	m.logger.Debug().Str("status", s.String()).Msg("status changed")
	m.cbMu.Lock()
	fns := slices.Clone(m.onStatus)
	m.cbMu.Unlock()
	for _, fn := range fns {
		fn(s)
	}
}

func (m *Manager) handleConnect() {
	if m.halted {
		return
	}
	if m.dialing || (m.status == Connected && m.conn != nil) {
		return
	}
	m.cancelReconnect()
	m.detach()

	m.gen++
	gen := m.gen
	m.dialing = true
	m.setStatus(Connecting)
	m.logger.Debug().Uint64("gen", gen).Str("url", m.url).Msg("dialing")

	go func() {
		id, err := m.ids.Load(m.ctx)
		if err != nil {
			m.logger.Error().Err(err).Msg("load identity failed")
		}
		conn, err := m.dialer.Dial(m.ctx, m.url)
		if !m.post(dialed{gen: gen, conn: conn, id: id, err: err}) && conn != nil {
			conn.Close()
		}
	}()
}

func (m *Manager) handleDialed(ev dialed) {
	if ev.gen != m.gen || m.halted {
		if ev.conn != nil {
			ev.conn.Close()
		}
		return
	}
	m.dialing = false
	if ev.err != nil {
		m.logger.Warn().Err(ev.err).Msg("dial failed")
		m.setStatus(Disconnected)
		m.scheduleReconnect()
		return
	}

	m.conn = ev.conn
	m.connID = uuid.NewString()
	m.attempts = 0
	m.sessionID = ev.id.SessionID
	m.store.SetSelf(m.sessionID)
	m.setStatus(Connected)
	m.logger.Info().Str("conn_id", m.connID).Bool("has_session", m.sessionID != "").Msg("connected")

	if m.sessionID != "" {
		m.write(protocol.Login{UserID: m.sessionID})
	}
	m.write(protocol.GetTracks{})
	m.write(protocol.GetSessions{})

	if m.sessionID != "" && m.pingInterval > 0 {
		gen := m.gen
		m.hb = startHeartbeat(m.pingInterval, func() bool {
			return m.post(heartbeatTick{gen: gen})
		})
	}

	conn, gen := m.conn, m.gen
	go func() {
		for {
			data, err := conn.ReadMessage()
			if err != nil {
				m.post(closed{gen: gen, err: err})
				return
			}
			if !m.post(frameIn{gen: gen, data: data}) {
				return
			}
		}
	}()
}

func (m *Manager) handleFrame(ev frameIn) {
	if ev.gen != m.gen || m.conn == nil {
		return
	}
	_ = m.router.Route(ev.data)
}

func (m *Manager) handleClosed(ev closed) {
	if ev.gen != m.gen {
		return
	}
	if ev.err != nil {
		m.logger.Info().Err(ev.err).Str("conn_id", m.connID).Msg("connection closed")
	}
	m.hb.Stop()
	m.hb = nil
	if m.conn != nil {
		m.conn.Close()
		m.conn = nil
	}
	m.connID = ""
	m.setStatus(Disconnected)
	m.scheduleReconnect()
}

func (m *Manager) handleHeartbeat(ev heartbeatTick) {
	if ev.gen != m.gen || m.status != Connected || m.sessionID == "" {
		return
	}
	m.write(protocol.Ping{SessionID: m.sessionID})
}

func (m *Manager) write(cmd protocol.Command) {
	if m.status != Connected || m.conn == nil {
		m.logger.Debug().Str("type", string(cmd.CommandType())).Msg("not connected, dropping command")
		return
	}
	data, err := protocol.Encode(cmd)
	if err != nil {
		m.logger.Warn().Err(err).Msg("encode command failed")
		return
	}
	if err := m.conn.WriteJSON(json.RawMessage(data)); err != nil {
		// The reader observes the broken socket and drives reconnection.
		m.logger.Warn().Err(err).Str("type", string(cmd.CommandType())).Msg("write failed")
		return
	}
	m.logger.Debug().Str("type", string(cmd.CommandType())).Msg("sent")
}

// scheduleReconnect arms the single reconnect timer with the backoff delay.
func (m *Manager) scheduleReconnect() {
	if m.halted {
		return
	}
	delay := Backoff(m.attempts, m.base, m.limit)
	m.attempts++
	m.logger.Info().Dur("delay", delay).Int("attempt", m.attempts).Msg("reconnect scheduled")
	m.armReconnect(delay)
}

func (m *Manager) armReconnect(delay time.Duration) {
	m.cancelReconnect()
	seq := m.reconnectSeq
	m.reconnectPending = true
	m.reconnectTimer = time.AfterFunc(delay, func() {
		m.post(reconnectFire{seq: seq})
	})
}

func (m *Manager) cancelReconnect() {
	if m.reconnectTimer != nil {
		m.reconnectTimer.Stop()
		m.reconnectTimer = nil
	}
	m.reconnectSeq++
	m.reconnectPending = false
}

func (m *Manager) handleReconnectFire(ev reconnectFire) {
	if ev.seq != m.reconnectSeq || !m.reconnectPending {
		return
	}
	m.reconnectTimer = nil
	m.reconnectPending = false
	m.handleConnect()
}

// detach invalidates the current socket and any dial in flight.
func (m *Manager) detach() {
	m.hb.Stop()
	m.hb = nil
	if m.conn != nil || m.dialing {
		m.gen++
	}
	if m.conn != nil {
		m.conn.Close()
		m.conn = nil
	}
	m.dialing = false
	m.connID = ""
}

func (m *Manager) handleLoginError(f *protocol.LoginError) {
	if m.halted || m.relogging {
		return
	}
	m.logger.Warn().Str("error", f.Error).Str("message", f.Message).Msg("login rejected")
	m.relogging = true

	go func() {
		sessionID, err := m.relogin()
		m.post(reloginDone{sessionID: sessionID, err: err})
	}()
}

func (m *Manager) relogin() (string, error) {
	id, err := m.ids.Load(m.ctx)
	if err != nil {
		return "", err
	}
	if !id.HasListener() || m.auth == nil {
		return "", ErrNoListener
	}
	ctx, cancel := context.WithTimeout(m.ctx, m.httpTimeout)
	defer cancel()
	sessionID, err := m.auth.ListenerLogin(ctx, id.DisplayName, id.Email)
	if err != nil {
		return "", err
	}
	if _, err := identity.ReplaceSession(m.ctx, m.ids, sessionID); err != nil {
		return "", err
	}
	return sessionID, nil
}

func (m *Manager) handleReloginDone(ev reloginDone) {
	m.relogging = false
	if m.halted {
		return
	}
	if ev.err != nil {
		m.logger.Warn().Err(ev.err).Msg("re-login failed")
		m.requireLogin()
		return
	}
	m.logger.Info().Msg("re-login succeeded, reconnecting")
	m.sessionID = ev.sessionID
	m.store.SetSelf(ev.sessionID)
	m.detach()
	m.setStatus(Disconnected)
	m.armReconnect(m.reloginDelay)
}

func (m *Manager) handleIdentityChanged(ev identityChanged) {
	if m.halted || m.relogging {
		return
	}
	if !ev.id.HasSession() {
		m.logger.Info().Msg("identity cleared")
		m.requireLogin()
		return
	}
	if ev.id.SessionID == m.sessionID {
		return
	}
	m.logger.Info().Msg("session id changed, reconnecting")
	m.sessionID = ev.id.SessionID
	m.store.SetSelf(ev.id.SessionID)
	m.cancelReconnect()
	m.detach()
	m.attempts = 0
	m.setStatus(Disconnected)
	m.handleConnect()
}

// requireLogin stops all socket activity and signals once.
func (m *Manager) requireLogin() {
	m.halted = true
	m.cancelReconnect()
	m.detach()
	m.setStatus(Disconnected)
	if m.loginSignalled {
		return
	}
	m.loginSignalled = true
	m.cbMu.Lock()
	fns := slices.Clone(m.onLoginRequired)
	m.cbMu.Unlock()
	for _, fn := range fns {
		fn()
	}
}

// Package app wires the session client together and owns its lifecycle.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"path/filepath"
	"sync"
	"time"

	"github.com/orchestra-mcp/jam/config"
	"github.com/orchestra-mcp/jam/src/client"
	"github.com/orchestra-mcp/jam/src/collab"
	"github.com/orchestra-mcp/jam/src/feed"
	"github.com/orchestra-mcp/jam/src/identity"
	"github.com/orchestra-mcp/jam/src/router"
	"github.com/orchestra-mcp/jam/src/service"
	"github.com/orchestra-mcp/jam/src/state"
	"github.com/orchestra-mcp/jam/src/status"
	"github.com/rs/zerolog"
)

// ErrLoginRequired means no usable identity is stored.
var ErrLoginRequired = errors.New("login required")

const redisPingTimeout = 2 * time.Second

// OpenIdentity opens the identity store selected by cfg.IdentityBackend. The
// returned closer is never nil.
func OpenIdentity(cfg *config.SessionConfig, logger zerolog.Logger) (identity.Store, io.Closer, error) {
	switch cfg.IdentityBackend {
	case config.BackendMemory:
		return identity.NewMemoryStore(identity.Identity{}), nopCloser{}, nil
	case config.BackendSQLite:
		path := cfg.IdentityPath
		if path == "" {
			fs, err := identity.DefaultFileStore(logger)
			if err != nil {
				return nil, nil, err
			}
			path = filepath.Join(filepath.Dir(fs.Path()), "identity.db")
		}
		s, err := identity.OpenSQLite(path)
		if err != nil {
			return nil, nil, err
		}
		return s, s, nil
	case config.BackendRedis:
		s := identity.NewRedisStore(identity.RedisConfigFromEnv())
		ctx, cancel := context.WithTimeout(context.Background(), redisPingTimeout)
		defer cancel()
		if err := s.Ping(ctx); err != nil {
			s.Close()
			return nil, nil, fmt.Errorf("redis identity store: %w", err)
		}
		return s, s, nil
	case config.BackendFile, "":
		if cfg.IdentityPath != "" {
			return identity.NewFileStore(cfg.IdentityPath, logger), nopCloser{}, nil
		}
		s, err := identity.DefaultFileStore(logger)
		if err != nil {
			return nil, nil, err
		}
		return s, nopCloser{}, nil
	default:
		return nil, nil, fmt.Errorf("unknown identity backend %q", cfg.IdentityBackend)
	}
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// App holds every component of a running client.
type App struct {
	cfg    *config.SessionConfig
	logger zerolog.Logger

	Identity identity.Store
	State    *state.Store
	Notices  *feed.Notices
	Router   *router.Router
	Collab   *collab.Client
	Manager  *client.Manager
	Service  *service.Service
	Status   *status.Server

	mu            sync.Mutex
	active        bool
	loginRequired chan struct{}
	loginOnce     sync.Once
	statusErr     chan error
}

// New creates an inactive App.
func New(cfg *config.SessionConfig, ids identity.Store, logger zerolog.Logger) *App {
	return &App{
		cfg:           cfg,
		logger:        logger,
		Identity:      ids,
		loginRequired: make(chan struct{}),
		statusErr:     make(chan error, 1),
	}
}

// LoginRequired is closed when the stored identity is rejected for good.
func (a *App) LoginRequired() <-chan struct{} { return a.loginRequired }

// StatusErrors reports a failure of the status server.
func (a *App) StatusErrors() <-chan error { return a.statusErr }

func (a *App) signalLoginRequired() {
	a.loginOnce.Do(func() { close(a.loginRequired) })
}

// Activate validates the stored identity, builds every component, starts the
// connection manager and connects.
func (a *App) Activate(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.active {
		return nil
	}

	a.State = state.New()
	a.Notices = feed.NewNotices(a.cfg.ToastTTL, a.cfg.BannerTTL, a.logger)
	a.Router = router.New(a.logger)
	router.RegisterDefaults(a.Router, a.State, a.Notices)
	a.Collab = collab.New(a.cfg.APIOrigin, a.cfg.HTTPTimeout, a.logger)

	if err := a.checkIdentity(ctx); err != nil {
		a.Notices.Stop()
		return err
	}

	m, err := client.New(a.cfg, client.Deps{
		Identity: a.Identity,
		Auth:     a.Collab,
		Router:   a.Router,
		State:    a.State,
	}, a.logger)
	if err != nil {
		a.Notices.Stop()
		return err
	}
	a.Manager = m
	a.Service = service.New(m, a.State, a.Collab, a.Identity, a.Notices, a.logger).
		WithCatalog(service.NewSpotifyResolver(a.cfg.SpotifyAPIURL))
	m.OnLoginRequired(a.signalLoginRequired)

	if err := m.Start(); err != nil {
		a.Notices.Stop()
		return err
	}
	m.Connect()

	if a.cfg.StatusAddr != "" {
		ln, err := net.Listen("tcp", a.cfg.StatusAddr)
		if err != nil {
			a.logger.Warn().Err(err).Str("addr", a.cfg.StatusAddr).Msg("status server unavailable")
		} else {
			a.Status = status.New(m, a.State, a.Notices, a.logger)
			go func() {
				if err := a.Status.Serve(ln); err != nil {
					a.statusErr <- err
				}
			}()
		}
	}

	a.active = true
	a.logger.Info().Str("url", m.URL()).Msg("session client activated")
	return nil
}

// checkIdentity asks the server whether the stored session is still valid
// and, for listeners, re-issues it when it is not.
func (a *App) checkIdentity(ctx context.Context) error {
	id, err := a.Identity.Load(ctx)
	if err != nil {
		return fmt.Errorf("load identity: %w", err)
	}
	if !id.HasSession() && !id.HasListener() {
		return ErrLoginRequired
	}
	if id.HasSession() {
		ok, err := a.Collab.ValidateSession(ctx, id.SessionID)
		if err != nil {
			// The socket reports a stale session with login_error.
			a.logger.Warn().Err(err).Msg("session validation unavailable")
			return nil
		}
		if ok {
			return nil
		}
	}
	if !id.HasListener() {
		return ErrLoginRequired
	}
	sessionID, err := a.Collab.ListenerLogin(ctx, id.DisplayName, id.Email)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrLoginRequired, err)
	}
	if _, err := identity.ReplaceSession(ctx, a.Identity, sessionID); err != nil {
		return err
	}
	a.logger.Info().Msg("listener session re-issued")
	return nil
}

// Deactivate stops the status server, the manager and pending notices.
func (a *App) Deactivate() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.active {
		return nil
	}
	var errs []error
	if a.Status != nil {
		if err := a.Status.Shutdown(); err != nil {
			errs = append(errs, fmt.Errorf("status shutdown: %w", err))
		}
	}
	a.Manager.Close()
	a.Notices.Stop()
	a.active = false
	a.logger.Info().Msg("session client deactivated")
	return errors.Join(errs...)
}

// Login performs a listener login and stores the resulting identity.
func Login(ctx context.Context, c *collab.Client, ids identity.Store, name, email string) (identity.Identity, error) {
	sessionID, err := c.ListenerLogin(ctx, name, email)
	if err != nil {
		return identity.Identity{}, err
	}
	id := identity.Identity{
		SessionID:   sessionID,
		Role:        identity.RoleListener,
		DisplayName: name,
		Email:       email,
	}
	if err := ids.Save(ctx, id); err != nil {
		return identity.Identity{}, err
	}
	return id, nil
}

package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"
)

// Identity backends understood by the CLI.
const (
	BackendFile   = "file"
	BackendSQLite = "sqlite"
	BackendRedis  = "redis"
	BackendMemory = "memory"
)

// SessionConfig holds client-side session synchronization settings.
type SessionConfig struct {
	APIOrigin     string        `json:"api_origin"`
	WebSocketPath string        `json:"websocket_path"`
	PingInterval  time.Duration `json:"ping_interval"`

	ReconnectBase time.Duration `json:"reconnect_base"`
	ReconnectMax  time.Duration `json:"reconnect_max"`
	ReloginDelay  time.Duration `json:"relogin_delay"`

	HandshakeTimeout time.Duration `json:"handshake_timeout"`
	WriteTimeout     time.Duration `json:"write_timeout"`
	HTTPTimeout      time.Duration `json:"http_timeout"`

	ToastTTL  time.Duration `json:"toast_ttl"`
	BannerTTL time.Duration `json:"banner_ttl"`

	SpotifyAPIURL   string `json:"spotify_api_url"`
	StatusAddr      string `json:"status_addr"`
	IdentityBackend string `json:"identity_backend"`
	IdentityPath    string `json:"identity_path"`
}

// DefaultConfig returns the default session configuration.
func DefaultConfig() *SessionConfig {
	return &SessionConfig{
		APIOrigin:        "http://localhost:3001",
		WebSocketPath:    "/websocket",
		PingInterval:     30 * time.Second,
		ReconnectBase:    time.Second,
		ReconnectMax:     10 * time.Second,
		ReloginDelay:     100 * time.Millisecond,
		HandshakeTimeout: 10 * time.Second,
		WriteTimeout:     10 * time.Second,
		HTTPTimeout:      15 * time.Second,
		ToastTTL:         1500 * time.Millisecond,
		BannerTTL:        8 * time.Second,
		IdentityBackend:  BackendFile,
	}
}

// FromEnv loads the session configuration from environment variables.
// Falls back to defaults for any missing or unparsable values.
func FromEnv() *SessionConfig {
	cfg := DefaultConfig()

	if origin := os.Getenv("JAM_API_URL"); origin != "" {
		cfg.APIOrigin = origin
	}
	durationEnv("JAM_PING_INTERVAL", &cfg.PingInterval)
	durationEnv("JAM_RECONNECT_BASE", &cfg.ReconnectBase)
	durationEnv("JAM_RECONNECT_MAX", &cfg.ReconnectMax)
	durationEnv("JAM_HTTP_TIMEOUT", &cfg.HTTPTimeout)
	if api := os.Getenv("JAM_SPOTIFY_API_URL"); api != "" {
		cfg.SpotifyAPIURL = api
	}
	if addr := os.Getenv("JAM_STATUS_ADDR"); addr != "" {
		cfg.StatusAddr = addr
	}
	switch backend := os.Getenv("JAM_IDENTITY_BACKEND"); backend {
	case BackendFile, BackendSQLite, BackendRedis, BackendMemory:
		cfg.IdentityBackend = backend
	}
	if path := os.Getenv("JAM_IDENTITY_PATH"); path != "" {
		cfg.IdentityPath = path
	}
	return cfg
}

func durationEnv(key string, dst *time.Duration) {
	raw := os.Getenv(key)
	if raw == "" {
		return
	}
	if d, err := time.ParseDuration(raw); err == nil && d > 0 {
		*dst = d
	}
}

// WebSocketURL swaps the API origin's HTTP scheme for its WebSocket
// equivalent and appends the socket path.
func (c *SessionConfig) WebSocketURL() (string, error) {
	u, err := url.Parse(strings.TrimRight(c.APIOrigin, "/"))
	if err != nil {
		return "", fmt.Errorf("parse api origin: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("unsupported api origin scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return "", fmt.Errorf("api origin %q has no host", c.APIOrigin)
	}
	u.Path += c.WebSocketPath
	return u.String(), nil
}

package identity

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

func sampleIdentity() Identity {
	return Identity{
		SessionID:   "S1",
		Role:        RoleListener,
		DisplayName: "Ann",
		Email:       "ann@example.com",
	}
}

func TestIdentityPredicates(t *testing.T) {
	var zero Identity
	assert.False(t, zero.HasSession())
	assert.False(t, zero.HasListener())
	assert.Empty(t, zero.AccessToken())

	id := sampleIdentity()
	assert.True(t, id.HasSession())
	assert.True(t, id.HasListener())

	id.Email = ""
	assert.False(t, id.HasListener())

	id.SpotifyToken = &oauth2.Token{AccessToken: "tok"}
	assert.Equal(t, "tok", id.AccessToken())
}

func TestMemoryStore(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(Identity{})

	id, err := s.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, Identity{}, id)

	require.NoError(t, s.Save(ctx, sampleIdentity()))
	id, err = s.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, "S1", id.SessionID)

	require.NoError(t, s.Clear(ctx))
	id, _ = s.Load(ctx)
	assert.False(t, id.HasSession())
}

func TestReplaceSessionKeepsListener(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(sampleIdentity())

	id, err := ReplaceSession(ctx, s, "S2")
	require.NoError(t, err)
	assert.Equal(t, "S2", id.SessionID)
	assert.Equal(t, "Ann", id.DisplayName)

	stored, _ := s.Load(ctx)
	assert.Equal(t, id, stored)
}

func TestFileStoreMissingFile(t *testing.T) {
	s := NewFileStore(filepath.Join(t.TempDir(), "nested", "identity.json"), zerolog.Nop())
	id, err := s.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Identity{}, id)
	assert.NoError(t, s.Clear(context.Background()))
}

func TestFileStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "identity.json")
	s := NewFileStore(path, zerolog.Nop())

	want := sampleIdentity()
	want.SpotifyToken = &oauth2.Token{AccessToken: "tok", TokenType: "Bearer"}
	require.NoError(t, s.Save(ctx, want))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	got, err := s.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, want.SessionID, got.SessionID)
	assert.Equal(t, want.Email, got.Email)
	require.NotNil(t, got.SpotifyToken)
	assert.Equal(t, "tok", got.SpotifyToken.AccessToken)

	require.NoError(t, s.Clear(ctx))
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}

func TestFileStoreCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "identity.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0600))
	_, err := NewFileStore(path, zerolog.Nop()).Load(context.Background())
	assert.Error(t, err)
}

func TestFileStoreWatchSeesExternalWrites(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	path := filepath.Join(t.TempDir(), "identity.json")
	s := NewFileStore(path, zerolog.Nop())

	seen := make(chan Identity, 8)
	require.NoError(t, s.Watch(ctx, func(id Identity) { seen <- id }))

	other := NewFileStore(path, zerolog.Nop())
	require.NoError(t, other.Save(ctx, sampleIdentity()))

	select {
	case id := <-seen:
		assert.Equal(t, "S1", id.SessionID)
	case <-time.After(2 * time.Second):
		t.Fatal("watcher did not report the new identity")
	}

	require.NoError(t, other.Clear(ctx))
	select {
	case id := <-seen:
		assert.False(t, id.HasSession())
	case <-time.After(2 * time.Second):
		t.Fatal("watcher did not report the cleared identity")
	}
}

// rawValue reads one row of the kv table.
func rawValue(t *testing.T, s *SQLiteStore, key string) (string, bool) {
	t.Helper()
	var value string
	err := s.db.QueryRow(`SELECT value FROM kv WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false
	}
	require.NoError(t, err)
	return value, true
}

func TestSQLiteStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	s, err := OpenSQLite(filepath.Join(t.TempDir(), "identity.db"))
	require.NoError(t, err)
	defer s.Close()

	id, err := s.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, Identity{}, id)

	want := sampleIdentity()
	want.SpotifyToken = &oauth2.Token{AccessToken: "tok"}
	require.NoError(t, s.Save(ctx, want))

	raw, ok := rawValue(t, s, "listener_email")
	assert.True(t, ok)
	assert.Equal(t, "ann@example.com", raw)

	got, err := s.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, "S1", got.SessionID)
	assert.Equal(t, RoleListener, got.Role)
	assert.Equal(t, "tok", got.AccessToken())

	// Blank fields are removed rather than stored empty.
	want.Email = ""
	want.SpotifyToken = nil
	require.NoError(t, s.Save(ctx, want))
	_, ok = rawValue(t, s, "listener_email")
	assert.False(t, ok)

	require.NoError(t, s.Clear(ctx))
	got, err = s.Load(ctx)
	require.NoError(t, err)
	assert.False(t, got.HasSession())
}

func TestDefaultRedisConfig(t *testing.T) {
	cfg := DefaultRedisConfig()
	assert.Equal(t, "localhost:6379", cfg.Addr)
	assert.Empty(t, cfg.Password)
	assert.Equal(t, 0, cfg.DB)
	assert.Equal(t, "jam:identity:default", cfg.Key())
}

func TestRedisConfigFromEnv(t *testing.T) {
	t.Setenv("REDIS_ADDR", "redis.example.com:6380")
	t.Setenv("REDIS_PASSWORD", "secret")
	t.Setenv("REDIS_DB", "3")
	t.Setenv("REDIS_JAM_PREFIX", "prod:")
	t.Setenv("JAM_PROFILE", "kitchen")

	cfg := RedisConfigFromEnv()
	assert.Equal(t, "redis.example.com:6380", cfg.Addr)
	assert.Equal(t, "secret", cfg.Password)
	assert.Equal(t, 3, cfg.DB)
	assert.Equal(t, "prod:kitchen", cfg.Key())
}

func TestRedisConfigFromEnvInvalidDB(t *testing.T) {
	t.Setenv("REDIS_DB", "not-a-number")
	cfg := RedisConfigFromEnv()
	assert.Equal(t, 0, cfg.DB)
}

func TestRedisFieldMapping(t *testing.T) {
	want := sampleIdentity()
	want.SpotifyToken = &oauth2.Token{AccessToken: "tok"}

	fields, err := fieldsFromIdentity(want)
	require.NoError(t, err)
	assert.Equal(t, "S1", fields["sessionId"])
	assert.Equal(t, "Ann", fields["listener_name"])

	flat := make(map[string]string, len(fields))
	for k, v := range fields {
		flat[k] = v.(string)
	}
	got, err := identityFromFields(flat)
	require.NoError(t, err)
	assert.Equal(t, want.SessionID, got.SessionID)
	assert.Equal(t, want.Email, got.Email)
	assert.Equal(t, "tok", got.AccessToken())

	empty, err := fieldsFromIdentity(Identity{})
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestRedisStoreUnavailable(t *testing.T) {
	cfg := DefaultRedisConfig()
	cfg.Addr = "127.0.0.1:1"
	s := NewRedisStore(cfg)
	defer s.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()
	assert.Error(t, s.Ping(ctx))
	_, err := s.Load(ctx)
	assert.Error(t, err)
}

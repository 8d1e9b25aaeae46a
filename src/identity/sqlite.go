package identity

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	_ "modernc.org/sqlite"
)

// Keys mirror the browser storage layout the session server's web client
// uses, so a dump of the table reads the same way.
const (
	keySessionID     = "sessionId"
	keyRole          = "role"
	keyListenerName  = "listener_name"
	keyListenerEmail = "listener_email"
	keySpotifyToken  = "spotify_token"
)

// SQLiteStore keeps the identity in a key/value table.
type SQLiteStore struct {
	db   *sql.DB
	path string
	mu   sync.Mutex
}

// OpenSQLite opens or creates the identity database at path.
func OpenSQLite(path string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("create identity dir: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open identity database: %w", err)
	}
	if _, err := db.Exec(`
		PRAGMA journal_mode = WAL;
		PRAGMA busy_timeout = 5000;
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("configure identity database: %w", err)
	}
	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS kv (
			key   TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("create kv table: %w", err)
	}
	return &SQLiteStore{db: db, path: path}, nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error { return s.db.Close() }

func (s *SQLiteStore) Load(ctx context.Context) (Identity, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT key, value FROM kv`)
	if err != nil {
		return Identity{}, fmt.Errorf("query identity: %w", err)
	}
	defer rows.Close()

	var id Identity
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return Identity{}, fmt.Errorf("scan identity: %w", err)
		}
		switch key {
		case keySessionID:
			id.SessionID = value
		case keyRole:
			id.Role = Role(value)
		case keyListenerName:
			id.DisplayName = value
		case keyListenerEmail:
			id.Email = value
		case keySpotifyToken:
			if err := json.Unmarshal([]byte(value), &id.SpotifyToken); err != nil {
				return Identity{}, fmt.Errorf("decode stored token: %w", err)
			}
		}
	}
	return id, rows.Err()
}

func (s *SQLiteStore) Save(ctx context.Context, id Identity) error {
	values := map[string]string{
		keySessionID:     id.SessionID,
		keyRole:          string(id.Role),
		keyListenerName:  id.DisplayName,
		keyListenerEmail: id.Email,
	}
	if id.SpotifyToken != nil {
		raw, err := json.Marshal(id.SpotifyToken)
		if err != nil {
			return fmt.Errorf("encode token: %w", err)
		}
		values[keySpotifyToken] = string(raw)
	} else {
		values[keySpotifyToken] = ""
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin identity tx: %w", err)
	}
	defer tx.Rollback()

	for key, value := range values {
		if value == "" {
			if _, err := tx.ExecContext(ctx, `DELETE FROM kv WHERE key = ?`, key); err != nil {
				return fmt.Errorf("delete %s: %w", key, err)
			}
			continue
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO kv (key, value) VALUES (?, ?)
			 ON CONFLICT(key) DO UPDATE SET value = excluded.value`, key, value); err != nil {
			return fmt.Errorf("store %s: %w", key, err)
		}
	}
	return tx.Commit()
}

func (s *SQLiteStore) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.db.ExecContext(ctx, `DELETE FROM kv`); err != nil {
		return fmt.Errorf("clear identity: %w", err)
	}
	return nil
}

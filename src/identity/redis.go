package identity

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"github.com/redis/go-redis/v9"
)

// RedisConfig holds connection settings for the Redis identity store.
type RedisConfig struct {
	Addr     string // Redis address, default "localhost:6379"
	Password string // Redis password, default ""
	DB       int    // Redis database number, default 0
	Prefix   string // Key prefix, default "jam:identity:"
	Profile  string // Identity profile name, default "default"
}

// DefaultRedisConfig returns a RedisConfig with sensible defaults.
func DefaultRedisConfig() *RedisConfig {
	return &RedisConfig{
		Addr:    "localhost:6379",
		Prefix:  "jam:identity:",
		Profile: "default",
	}
}

// RedisConfigFromEnv loads Redis configuration from environment variables.
// Falls back to defaults for any missing values.
func RedisConfigFromEnv() *RedisConfig {
	cfg := DefaultRedisConfig()

	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		cfg.Addr = addr
	}
	if pw := os.Getenv("REDIS_PASSWORD"); pw != "" {
		cfg.Password = pw
	}
	if dbStr := os.Getenv("REDIS_DB"); dbStr != "" {
		if db, err := strconv.Atoi(dbStr); err == nil {
			cfg.DB = db
		}
	}
	if prefix := os.Getenv("REDIS_JAM_PREFIX"); prefix != "" {
		cfg.Prefix = prefix
	}
	if profile := os.Getenv("JAM_PROFILE"); profile != "" {
		cfg.Profile = profile
	}
	return cfg
}

// Key returns the hash key holding the identity.
func (c *RedisConfig) Key() string { return c.Prefix + c.Profile }

// RedisStore keeps the identity in a Redis hash so several machines can share
// one listener identity.
type RedisStore struct {
	client *redis.Client
	key    string
}

// NewRedisStore creates a store from cfg.
func NewRedisStore(cfg *RedisConfig) *RedisStore {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	return &RedisStore{client: client, key: cfg.Key()}
}

// Ping checks connectivity.
func (r *RedisStore) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Close closes the Redis connection.
func (r *RedisStore) Close() error { return r.client.Close() }

func (r *RedisStore) Load(ctx context.Context) (Identity, error) {
	fields, err := r.client.HGetAll(ctx, r.key).Result()
	if err != nil {
		return Identity{}, fmt.Errorf("load identity: %w", err)
	}
	return identityFromFields(fields)
}

func (r *RedisStore) Save(ctx context.Context, id Identity) error {
	fields, err := fieldsFromIdentity(id)
	if err != nil {
		return err
	}
	pipe := r.client.TxPipeline()
	pipe.Del(ctx, r.key)
	if len(fields) > 0 {
		pipe.HSet(ctx, r.key, fields)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("save identity: %w", err)
	}
	return nil
}

func (r *RedisStore) Clear(ctx context.Context) error {
	if err := r.client.Del(ctx, r.key).Err(); err != nil {
		return fmt.Errorf("clear identity: %w", err)
	}
	return nil
}

func fieldsFromIdentity(id Identity) (map[string]any, error) {
	fields := map[string]any{}
	if id.SessionID != "" {
		fields[keySessionID] = id.SessionID
	}
	if id.Role != "" {
		fields[keyRole] = string(id.Role)
	}
	if id.DisplayName != "" {
		fields[keyListenerName] = id.DisplayName
	}
	if id.Email != "" {
		fields[keyListenerEmail] = id.Email
	}
	if id.SpotifyToken != nil {
		raw, err := json.Marshal(id.SpotifyToken)
		if err != nil {
			return nil, fmt.Errorf("encode token: %w", err)
		}
		fields[keySpotifyToken] = string(raw)
	}
	return fields, nil
}

func identityFromFields(fields map[string]string) (Identity, error) {
	id := Identity{
		SessionID:   fields[keySessionID],
		Role:        Role(fields[keyRole]),
		DisplayName: fields[keyListenerName],
		Email:       fields[keyListenerEmail],
	}
	if raw := fields[keySpotifyToken]; raw != "" {
		if err := json.Unmarshal([]byte(raw), &id.SpotifyToken); err != nil {
			return Identity{}, fmt.Errorf("decode stored token: %w", err)
		}
	}
	return id, nil
}

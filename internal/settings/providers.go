package settings

import (
	"context"
	"fmt"
	"os"

	goredis "github.com/redis/go-redis/v9"
)

// Environment variables read by EnvProvider.
const (
	EnvMatomoURL       = "MATOMO_URL"
	EnvSiteID          = "MATOMO_SITE_ID"
	EnvAuthToken       = "MATOMO_AUTH_TOKEN"
	EnvTrackingEnabled = "MATOMO_TRACKING_ENABLED"
	EnvRetentionDays   = "LOG_RETENTION_DAYS"
)

var envKeys = map[string]string{
	EnvMatomoURL:       KeyMatomoURL,
	EnvSiteID:          KeySiteID,
	EnvAuthToken:       KeyAuthToken,
	EnvTrackingEnabled: KeyTrackingEnabled,
	EnvRetentionDays:   KeyRetentionDays,
}

// EnvProvider reads settings from the environment on every Load.
type EnvProvider struct {
	lookup func(string) (string, bool)
}

func NewEnvProvider() *EnvProvider {
	return &EnvProvider{lookup: os.LookupEnv}
}

func (p *EnvProvider) Load(ctx context.Context) (Settings, error) {
	raw := make(map[string]string, len(envKeys))
	for env, key := range envKeys {
		if v, ok := p.lookup(env); ok {
			raw[key] = v
		}
	}
	return FromMap(raw), nil
}

// HashReader is the part of the Redis client RedisProvider needs.
type HashReader interface {
	HGetAll(ctx context.Context, key string) *goredis.MapStringStringCmd
}

// RedisProvider reads the option hash the shop mirrors into Redis.
type RedisProvider struct {
	client HashReader
	key    string
}

func NewRedisProvider(client HashReader, key string) *RedisProvider {
	return &RedisProvider{client: client, key: key}
}

func (p *RedisProvider) Load(ctx context.Context) (Settings, error) {
	raw, err := p.client.HGetAll(ctx, p.key).Result()
	if err != nil {
		return Settings{}, fmt.Errorf("failed to read settings hash %q: %w", p.key, err)
	}
	return FromMap(raw), nil
}

// NewRedisClient creates a Redis client for the settings hash.
func NewRedisClient(addr, password string, db int) *goredis.Client {
	return goredis.NewClient(&goredis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
}

package lock

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// unlockScript deletes the key only while it still holds the caller's token,
// so an expired lock taken over by another holder is left alone.
var unlockScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

type RedisSettings struct {
	// Addr is the redis server address (default: localhost:6379)
	Addr string `mapstructure:"addr"`
	// Password is the optional redis password
	Password string `mapstructure:"password"`
	// DB is the redis database index (default: 0)
	DB int `mapstructure:"db"`
	// Prefix is prepended to every lock key (default: waste-atlas:)
	Prefix string `mapstructure:"prefix"`
	// TTL bounds how long a crashed holder keeps a key locked (default: 2m)
	TTL time.Duration `mapstructure:"ttl"`
	// RetryInterval is the wait between acquisition attempts (default: 100ms)
	RetryInterval time.Duration `mapstructure:"retry_interval"`
}

func DefaultRedisSettings() RedisSettings {
	return RedisSettings{
		Addr:          "localhost:6379",
		Prefix:        "waste-atlas:",
		TTL:           2 * time.Minute,
		RetryInterval: 100 * time.Millisecond,
	}
}

// RedisLocker is a Locker shared by every process talking to the same redis.
// Ownership is a SET NX key holding a random token.
type RedisLocker struct {
	client   redis.UniversalClient
	settings RedisSettings
}

func NewRedisLocker(client redis.UniversalClient, settings RedisSettings) *RedisLocker {
	defaults := DefaultRedisSettings()
	if settings.TTL <= 0 {
		settings.TTL = defaults.TTL
	}
	if settings.RetryInterval <= 0 {
		settings.RetryInterval = defaults.RetryInterval
	}
	return &RedisLocker{client: client, settings: settings}
}

// DialRedis opens a client and checks the connection.
func DialRedis(ctx context.Context, settings RedisSettings) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     settings.Addr,
		Password: settings.Password,
		DB:       settings.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", settings.Addr, err)
	}
	return client, nil
}

func (l *RedisLocker) Lock(ctx context.Context, key string) (func(), error) {
	redisKey := l.settings.Prefix + key
	token := uuid.NewString()

	for {
		ok, err := l.client.SetNX(ctx, redisKey, token, l.settings.TTL).Result()
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			return nil, fmt.Errorf("failed to acquire lock %s: %w", key, err)
		}
		if ok {
			break
		}

		timer := time.NewTimer(l.settings.RetryInterval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
			defer cancel()

			if err := unlockScript.Run(releaseCtx, l.client, []string{redisKey}, token).Err(); err != nil {
				zerolog.Ctx(ctx).Warn().Err(err).Str("key", key).Msg("failed to release lock")
			}
		})
	}, nil
}

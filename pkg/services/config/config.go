package config

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/de-tools/waste-atlas/pkg/auth"
	"github.com/de-tools/waste-atlas/pkg/services/audit"
	"github.com/de-tools/waste-atlas/pkg/services/inventory"
	"github.com/de-tools/waste-atlas/pkg/services/lock"
	"github.com/de-tools/waste-atlas/pkg/services/notify"
	"github.com/de-tools/waste-atlas/pkg/services/reconcile"
	"github.com/de-tools/waste-atlas/pkg/services/rules"
	"github.com/de-tools/waste-atlas/pkg/services/scanner/aws"
	"github.com/de-tools/waste-atlas/pkg/services/schedule"
	"github.com/de-tools/waste-atlas/pkg/services/tracing"
	"github.com/de-tools/waste-atlas/pkg/store/db"
	"github.com/go-playground/validator/v10"
	"github.com/go-viper/mapstructure/v2"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const EnvPrefix = "WASTE_ATLAS"

const (
	LockBackendLocal = "local"
	LockBackendRedis = "redis"

	NotifyBackendNone = "none"
	NotifyBackendAMQP = "amqp"
)

type ServerSettings struct {
	// Addr is the listen address of the web API (default: :8080)
	Addr string `mapstructure:"addr" validate:"required"`
	// ShutdownTimeout bounds the graceful shutdown (default: 10s)
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"gt=0"`
}

type LockSettings struct {
	// Backend is local or redis (default: local)
	Backend string              `mapstructure:"backend" validate:"oneof=local redis"`
	Redis   lock.RedisSettings `mapstructure:"redis"`
}

type NotifySettings struct {
	// Backend is none or amqp (default: none)
	Backend string              `mapstructure:"backend" validate:"oneof=none amqp"`
	AMQP    notify.AMQPSettings `mapstructure:"amqp"`
}

// Config is the full application configuration. Every key can be overridden
// with a WASTE_ATLAS_ prefixed environment variable, dots replaced by
// underscores (WASTE_ATLAS_DATABASE_DSN).
type Config struct {
	LogLevel string `mapstructure:"log_level" validate:"oneof=trace debug info warn error"`
	// ClientsFile is the ini file listing audited clients (default: clients.ini)
	ClientsFile string `mapstructure:"clients_file" validate:"required"`

	Server    ServerSettings     `mapstructure:"server"`
	Database  db.Settings        `mapstructure:"database"`
	AWS       aws.Settings       `mapstructure:"aws"`
	Rules     rules.Settings     `mapstructure:"rules"`
	Reconcile reconcile.Settings `mapstructure:"reconcile"`
	Inventory inventory.Settings `mapstructure:"inventory"`
	Audit     audit.Settings     `mapstructure:"audit"`
	Auth      auth.Settings      `mapstructure:"auth"`
	Lock      LockSettings       `mapstructure:"lock"`
	Notify    NotifySettings     `mapstructure:"notify"`
	Schedule  schedule.Settings  `mapstructure:"schedule"`
	Tracing   tracing.Settings   `mapstructure:"tracing"`
}

func Default() Config {
	return Config{
		LogLevel:    "info",
		ClientsFile: "clients.ini",
		Server: ServerSettings{
			Addr:            ":8080",
			ShutdownTimeout: 10 * time.Second,
		},
		Database: db.Settings{
			Driver: string(db.DialectSQLite),
			DSN:    "waste-atlas.db",
		},
		AWS:       aws.DefaultSettings(),
		Rules:     rules.DefaultSettings(),
		Reconcile: reconcile.DefaultSettings(),
		Inventory: inventory.DefaultSettings(),
		Audit:     audit.DefaultSettings(),
		Auth:      auth.DefaultSettings(),
		Lock: LockSettings{
			Backend: LockBackendLocal,
			Redis:   lock.DefaultRedisSettings(),
		},
		Notify: NotifySettings{
			Backend: NotifyBackendNone,
			AMQP:    notify.DefaultAMQPSettings(),
		},
		Tracing: tracing.DefaultSettings(),
	}
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Load reads the configuration from path, or from waste-atlas.yaml in the
// working directory when path is empty, then applies environment overrides.
// A .env file is loaded first when present.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("waste-atlas")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := setDefaults(v, Default()); err != nil {
		return nil, err
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("config unmarshal error: %w", err)
	}

	if err := validate.Struct(&c); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if _, err := db.ParseDialect(c.Database.Driver); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &c, nil
}

// setDefaults registers every leaf of defaults as a dotted key so that
// AutomaticEnv can resolve nested settings during Unmarshal.
func setDefaults(v *viper.Viper, defaults Config) error {
	var tree map[string]any
	if err := mapstructure.Decode(defaults, &tree); err != nil {
		return fmt.Errorf("encode config defaults: %w", err)
	}

	flat := make(map[string]any)
	flatten("", tree, flat)

	keys := make([]string, 0, len(flat))
	for k := range flat {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		v.SetDefault(k, flat[k])
	}
	return nil
}

func flatten(prefix string, tree map[string]any, out map[string]any) {
	for k, val := range tree {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		if nested, ok := val.(map[string]any); ok {
			flatten(key, nested, out)
			continue
		}
		out[key] = val
	}
}

// Package config loads the worker configuration from a YAML file and
// READMODEL_ prefixed environment variables.
package config

import (
	"errors"
	"log/slog"
	"path/filepath"
	"reflect"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-readmodel-cache/cache"
	"github.com/goliatone/go-readmodel-cache/internal/cacheinfra"
	"github.com/goliatone/go-readmodel-cache/internal/dbopen"
	"github.com/goliatone/go-readmodel-cache/internal/queue"
	"github.com/goliatone/go-readmodel-cache/invalidation"
	"github.com/goliatone/go-readmodel-cache/stats"
	"github.com/goliatone/go-readmodel-cache/warming"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment variable. The dot in a key becomes
// an underscore: "store.redis.addr" is READMODEL_STORE_REDIS_ADDR.
const EnvPrefix = "READMODEL"

// Store backends.
const (
	StoreMemory = "memory"
	StoreRedis  = "redis"
	StoreSQL    = "sql"
)

// Queue backends.
const (
	QueueMemory = "memory"
	QueueSQS    = "sqs"
)

// Config aggregates configuration for the worker. Each section is owned by
// the package that consumes it.
type Config struct {
	Database     DatabaseConfig      `mapstructure:"database"`
	Store        StoreConfig         `mapstructure:"store"`
	Cache        cache.Config        `mapstructure:"cache"`
	Queue        QueueConfig         `mapstructure:"queue"`
	Invalidation invalidation.Policy `mapstructure:"invalidation"`
	Stats        stats.TTLPolicy     `mapstructure:"stats"`
	Warming      warming.Config      `mapstructure:"warming"`
	Log          LogConfig           `mapstructure:"log"`
}

// DatabaseConfig locates the authoritative store.
type DatabaseConfig struct {
	Driver string `mapstructure:"driver"`
	DSN    string `mapstructure:"dsn"`
}

// StoreConfig selects the cache backend.
type StoreConfig struct {
	Backend string            `mapstructure:"backend"`
	Memory  cacheinfra.Config `mapstructure:"memory"`
	Redis   RedisConfig       `mapstructure:"redis"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Prefix   string `mapstructure:"prefix"`
}

// QueueConfig selects the invalidation job queue.
type QueueConfig struct {
	Backend string          `mapstructure:"backend"`
	Workers int             `mapstructure:"workers"`
	SQS     queue.SQSConfig `mapstructure:"sqs"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
	// FailureFile receives error level records as JSON lines. Empty
	// disables it.
	FailureFile string `mapstructure:"failure_file"`
}

// SlogLevel parses Level, defaulting to info.
func (l LogConfig) SlogLevel() slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(l.Level)); err != nil {
		return slog.LevelInfo
	}
	return level
}

// Default returns the configuration used when nothing overrides it.
func Default() Config {
	return Config{
		Database: DatabaseConfig{Driver: dbopen.DriverSQLite, DSN: dbopen.MemoryDSN},
		Store: StoreConfig{
			Backend: StoreMemory,
			Memory:  cacheinfra.DefaultConfig(),
			Redis:   RedisConfig{Addr: "localhost:6379", Prefix: cacheinfra.DefaultRedisPrefix},
		},
		Cache:        cache.DefaultConfig(),
		Queue:        QueueConfig{Backend: QueueMemory, Workers: 4, SQS: queue.DefaultSQSConfig()},
		Invalidation: invalidation.DefaultPolicy(),
		Stats:        stats.DefaultTTLPolicy(),
		Warming:      warming.DefaultConfig(),
		Log:          LogConfig{Level: "info"},
	}
}

// Load reads path, or readmodel.yaml from the working directory when path
// is empty, then applies environment overrides. A missing default file is
// not an error; a missing explicit file is.
func Load(path string) (*Config, error) {
	cfg := Default()

	v := viper.New()
	if path != "" {
		v.SetConfigFile(path)
		if filepath.Ext(path) == "" {
			v.SetConfigType("yaml")
		}
	} else {
		v.SetConfigName("readmodel")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	bindEnvs(v, cfg)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, goerrors.Wrap(err, goerrors.CategoryBadInput, "read config file")
		}
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryBadInput, "decode config")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks every section.
func (c Config) Validate() error {
	checks := []error{
		validation.ValidateStruct(&c.Database,
			validation.Field(&c.Database.Driver, validation.Required, validation.In(dbopen.DriverSQLite, dbopen.DriverPostgres)),
			validation.Field(&c.Database.DSN, validation.Required),
		),
		validation.ValidateStruct(&c.Store,
			validation.Field(&c.Store.Backend, validation.Required, validation.In(StoreMemory, StoreRedis, StoreSQL)),
		),
		validation.ValidateStruct(&c.Store.Redis,
			validation.Field(&c.Store.Redis.Addr, validation.When(c.Store.Backend == StoreRedis, validation.Required)),
		),
		validation.ValidateStruct(&c.Queue,
			validation.Field(&c.Queue.Backend, validation.Required, validation.In(QueueMemory, QueueSQS)),
			validation.Field(&c.Queue.Workers, validation.Required, validation.Min(1)),
		),
		validation.ValidateStruct(&c.Queue.SQS,
			validation.Field(&c.Queue.SQS.QueueURL, validation.When(c.Queue.Backend == QueueSQS, validation.Required)),
		),
	}
	for _, err := range checks {
		if err != nil {
			return goerrors.Wrap(err, goerrors.CategoryValidation, "invalid config")
		}
	}

	if c.Store.Backend == StoreMemory {
		if err := c.Store.Memory.Validate(); err != nil {
			return goerrors.Wrap(err, goerrors.CategoryValidation, "invalid memory store config")
		}
	}
	for _, section := range []interface{ Validate() error }{c.Cache, c.Invalidation, c.Stats, c.Warming} {
		if err := section.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// bindEnvs registers every key of cfg so viper looks up the matching
// environment variable while unmarshalling.
func bindEnvs(v *viper.Viper, cfg any, parts ...string) {
	val := reflect.ValueOf(cfg)
	typ := reflect.TypeOf(cfg)
	if typ.Kind() == reflect.Ptr {
		val = val.Elem()
		typ = typ.Elem()
	}
	for i := 0; i < typ.NumField(); i++ {
		f := typ.Field(i)
		tag := f.Tag.Get("mapstructure")
		if tag == "" {
			tag = strings.ToLower(f.Name)
		}
		key := append(append([]string{}, parts...), tag)
		if f.Type.Kind() == reflect.Struct {
			bindEnvs(v, val.Field(i).Interface(), key...)
			continue
		}
		_ = v.BindEnv(strings.Join(key, "."))
	}
}

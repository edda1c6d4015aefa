// Package conf loads the layered configuration: built-in defaults,
// memvault.yml, then MEMVAULT_ environment overrides.
package conf

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"dario.cat/mergo"
	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"github.com/looplj/memvault/internal/log"
	"github.com/looplj/memvault/internal/metrics"
	"github.com/looplj/memvault/internal/pkg/xcache"
	"github.com/looplj/memvault/internal/server"
	"github.com/looplj/memvault/internal/server/biz"
	"github.com/looplj/memvault/internal/server/maintenance"
	"github.com/looplj/memvault/internal/store"
)

type Config struct {
	APIServer   server.Config      `conf:"server"      yaml:"server"      json:"server"`
	Store       store.Config       `conf:"store"       yaml:"store"       json:"store"`
	Log         log.Config         `conf:"log"         yaml:"log"         json:"log"`
	Metrics     metrics.Config     `conf:"metrics"     yaml:"metrics"     json:"metrics"`
	Cache       xcache.Config      `conf:"cache"       yaml:"cache"       json:"cache"`
	Auth        biz.AuthConfig     `conf:"auth"        yaml:"auth"        json:"auth"`
	Queue       biz.QueueConfig    `conf:"queue"       yaml:"queue"       json:"queue"`
	Drain       biz.DrainConfig    `conf:"drain"       yaml:"drain"       json:"drain"`
	Archive     biz.ArchiveConfig  `conf:"archive"     yaml:"archive"     json:"archive"`
	Maintenance maintenance.Config `conf:"maintenance" yaml:"maintenance" json:"maintenance"`
}

func defaultConfig() Config {
	return Config{
		APIServer: server.Config{
			Host:           "0.0.0.0",
			Port:           8090,
			Name:           "memvault",
			ReadTimeout:    30 * time.Second,
			RequestTimeout: 30 * time.Second,
		},
		Store: store.Config{
			Dialect: "sqlite3",
			DSN:     "file:memvault.db?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)",
		},
		Log: log.Config{
			Name:    "memvault",
			Level:   "info",
			Format:  "console",
			Outputs: []string{"stdout"},
		},
		Cache: xcache.Config{
			Mode: xcache.ModeMemory,
		},
		Maintenance: maintenance.Config{
			CRON: "*/10 * * * *",
		},
	}
}

// Load reads memvault.yml from the working directory, ~/.memvault or
// /etc/memvault, layers MEMVAULT_ env vars on top, and fills the gaps
// with defaults. A missing file is fine; a malformed one is not.
func Load() (Config, error) {
	v := viper.New()
	v.SetConfigName("memvault")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.memvault")
	v.AddConfigPath("/etc/memvault")

	v.SetEnvPrefix("MEMVAULT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var config Config

	err := v.Unmarshal(&config, func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "conf"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	})
	if err != nil {
		return Config{}, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := mergo.Merge(&config, defaultConfig()); err != nil {
		return Config{}, fmt.Errorf("failed to apply defaults: %w", err)
	}

	return config, nil
}

// Per-section extractors for dependency injection.

func APIServer(config Config) server.Config { return config.APIServer }

func Store(config Config) store.Config { return config.Store }

func Log(config Config) log.Config { return config.Log }

func Metrics(config Config) metrics.Config { return config.Metrics }

func Cache(config Config) xcache.Config { return config.Cache }

func Auth(config Config) biz.AuthConfig { return config.Auth }

func Queue(config Config) biz.QueueConfig { return config.Queue }

func Drain(config Config) biz.DrainConfig { return config.Drain }

func Archive(config Config) biz.ArchiveConfig { return config.Archive }

func Maintenance(config Config) maintenance.Config { return config.Maintenance }

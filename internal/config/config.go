// Package config reads chatsync.yaml, environment overrides and defaults.
package config

import (
	"chatsync/internal/settings"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

type APIConfig struct {
	BaseURL           string  `mapstructure:"baseURL" yaml:"baseURL" validate:"required,url"`
	RPS               float64 `mapstructure:"rps" yaml:"rps" validate:"gte=0"`
	Burst             int     `mapstructure:"burst" yaml:"burst" validate:"gte=1"`
	HistoryCacheBytes int     `mapstructure:"historyCacheBytes" yaml:"historyCacheBytes" validate:"gte=0"`

	Retries   int           `mapstructure:"retries" yaml:"retries" validate:"gte=0,lte=10"`
	RetryWait time.Duration `mapstructure:"retryWait" yaml:"retryWait" validate:"min=10ms"`
	Timeout   time.Duration `mapstructure:"timeout" yaml:"timeout" validate:"min=1s"`
}

type StreamConfig struct {
	Heartbeat        time.Duration `mapstructure:"heartbeat" yaml:"heartbeat" validate:"min=1s"`
	ReconnectDelay   time.Duration `mapstructure:"reconnectDelay" yaml:"reconnectDelay" validate:"min=10ms"`
	HandshakeTimeout time.Duration `mapstructure:"handshakeTimeout" yaml:"handshakeTimeout" validate:"min=1s"`
}

type HubConfig struct {
	RedisMirror  bool   `mapstructure:"redisMirror" yaml:"redisMirror"`
	RedisAddr    string `mapstructure:"redisAddr" yaml:"redisAddr" validate:"required_if=RedisMirror true"`
	RedisChannel string `mapstructure:"redisChannel" yaml:"redisChannel" validate:"required_if=RedisMirror true"`
}

type NotifyConfig struct {
	Desktop bool   `mapstructure:"desktop" yaml:"desktop"`
	AppName string `mapstructure:"appName" yaml:"appName"`
	Icon    string `mapstructure:"icon" yaml:"icon"`
}

type InspectConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Address string `mapstructure:"address" yaml:"address" validate:"required_if=Enabled true"`
}

type LogConfig struct {
	Level  string `mapstructure:"level" yaml:"level" validate:"oneof=debug info warn error"`
	ToFile bool   `mapstructure:"toFile" yaml:"toFile"`
	File   string `mapstructure:"file" yaml:"file" validate:"required_if=ToFile true"`
}

type EmojiConfig struct {
	File string `mapstructure:"file" yaml:"file"`
}

type Config struct {
	API      APIConfig       `mapstructure:"api" yaml:"api"`
	Stream   StreamConfig    `mapstructure:"stream" yaml:"stream"`
	Settings settings.Config `mapstructure:"settings" yaml:"settings"`
	Hub      HubConfig       `mapstructure:"hub" yaml:"hub"`
	Notify   NotifyConfig    `mapstructure:"notify" yaml:"notify"`
	Inspect  InspectConfig   `mapstructure:"inspect" yaml:"inspect"`
	Log      LogConfig       `mapstructure:"log" yaml:"log"`
	Emoji    EmojiConfig     `mapstructure:"emoji" yaml:"emoji"`

	// Path is the file the values were read from, empty when none was found.
	Path string `mapstructure:"-" yaml:"-"`
}

var envKeys = []string{
	"api.baseURL",
	"api.rps",
	"api.burst",
	"api.historyCacheBytes",
	"api.retries",
	"api.retryWait",
	"api.timeout",
	"stream.heartbeat",
	"stream.reconnectDelay",
	"stream.handshakeTimeout",
	"settings.backend",
	"settings.path",
	"settings.redisAddr",
	"settings.secret",
	"settings.mysql.user",
	"settings.mysql.password",
	"settings.mysql.address",
	"settings.mysql.port",
	"settings.mysql.database",
	"hub.redisMirror",
	"hub.redisAddr",
	"hub.redisChannel",
	"notify.desktop",
	"notify.appName",
	"notify.icon",
	"inspect.enabled",
	"inspect.address",
	"log.level",
	"log.toFile",
	"log.file",
	"emoji.file",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("api.baseURL", "https://slack.com/api/")
	v.SetDefault("api.rps", 5)
	v.SetDefault("api.burst", 10)
	v.SetDefault("api.historyCacheBytes", 8*1024*1024)
	v.SetDefault("api.retries", 3)
	v.SetDefault("api.retryWait", "200ms")
	v.SetDefault("api.timeout", "10s")

	v.SetDefault("stream.heartbeat", "15s")
	v.SetDefault("stream.reconnectDelay", "1s")
	v.SetDefault("stream.handshakeTimeout", "10s")

	v.SetDefault("settings.backend", "sqlite")
	v.SetDefault("settings.path", "./chatsync.db")
	v.SetDefault("settings.mysql.port", "3306")

	v.SetDefault("hub.redisChannel", "chatsync")

	v.SetDefault("notify.desktop", true)
	v.SetDefault("notify.appName", "chatsync")

	v.SetDefault("inspect.enabled", false)
	v.SetDefault("inspect.address", "127.0.0.1:3010")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.toFile", false)
	v.SetDefault("log.file", "chatsync.log")
}

// EnvName maps a key such as stream.reconnectDelay to CHATSYNC_STREAM_RECONNECTDELAY.
func EnvName(key string) string {
	return "CHATSYNC_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
}

// Load reads path, or chatsync.yaml from the working directory when path is empty.
// A missing default file is not an error.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	for _, key := range envKeys {
		if err := v.BindEnv(key, EnvName(key)); err != nil {
			return nil, err
		}
	}

	if path != "" {
		filename := filepath.Base(path)
		v.AddConfigPath(filepath.Dir(path))
		v.SetConfigName(strings.TrimSuffix(filename, filepath.Ext(filename)))
	} else {
		v.AddConfigPath(".")
		v.SetConfigName("chatsync")
	}
	v.SetConfigType("yaml")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode into config struct: %w", err)
	}
	cfg.Path = v.ConfigFileUsed()

	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func Validate(cfg *Config) error {
	validate := validator.New(validator.WithRequiredStructEnabled())
	if err := validate.Struct(cfg); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

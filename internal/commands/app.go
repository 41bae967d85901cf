package commands

import (
	"chatsync/internal/api"
	"chatsync/internal/client"
	"chatsync/internal/config"
	"chatsync/internal/hub"
	"chatsync/internal/markup"
	"chatsync/internal/metrics"
	"chatsync/internal/notify"
	"chatsync/internal/settings"
	"chatsync/internal/stream"
	"chatsync/internal/supervisor"
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

type app struct {
	cfg      *config.Config
	sugar    *zap.SugaredLogger
	settings *settings.Settings
	registry *prometheus.Registry
	api      *api.Client
	client   *client.Client
	redis    *redis.Client
}

func setupLogger(cfg config.LogConfig) (*zap.SugaredLogger, error) {
	level, err := zap.ParseAtomicLevel(cfg.Level)
	if err != nil {
		return nil, err
	}

	zapConfig := zap.NewProductionConfig()
	zapConfig.OutputPaths = []string{"stdout"}
	if cfg.ToFile {
		zapConfig.OutputPaths = append(zapConfig.OutputPaths, cfg.File)
	}
	zapConfig.Level = level

	logger, err := zapConfig.Build()
	if err != nil {
		return nil, err
	}
	return logger.Sugar(), nil
}

func newApp(ctx context.Context, configPath string) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	sugar, err := setupLogger(cfg.Log)
	if err != nil {
		return nil, fmt.Errorf("setting up logger: %w", err)
	}
	if cfg.Path != "" {
		sugar.Debugf("Using config file [%s]", cfg.Path)
	}

	store, err := settings.Open(ctx, sugar, cfg.Settings)
	if err != nil {
		return nil, err
	}
	if _, err := store.CheckVersion(ctx, Version); err != nil {
		store.Close()
		return nil, err
	}

	emoji, err := markup.LoadEmoji(cfg.Emoji.File)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("loading emoji: %w", err)
	}

	registry := prometheus.NewRegistry()
	recorder := metrics.New(registry)

	apiClient := api.New(sugar, store, api.Options{
		BaseURL:           cfg.API.BaseURL,
		RPS:               cfg.API.RPS,
		Burst:             cfg.API.Burst,
		HistoryCacheBytes: cfg.API.HistoryCacheBytes,
		Retries:           cfg.API.Retries,
		RetryWait:         cfg.API.RetryWait,
		Timeout:           cfg.API.Timeout,
	}, recorder)

	sinks := notify.Multi{notify.NewLog(sugar)}
	if cfg.Notify.Desktop {
		sinks = append(sinks, notify.NewDesktop(sugar, cfg.Notify.Icon))
	}

	transport := supervisor.WebsocketTransport{Dialer: stream.NewDialer(sugar, cfg.Stream.HandshakeTimeout)}

	session := client.New(sugar, apiClient, store, transport, client.Options{
		Sink:           sinks,
		Emoji:          emoji,
		Heartbeat:      cfg.Stream.Heartbeat,
		ReconnectDelay: cfg.Stream.ReconnectDelay,
		Metrics:        recorder,
	})

	session.Hub().Subscribe(hub.LoginSucceeded, func(n hub.Notification) {
		login, ok := n.Payload.(hub.Login)
		if !ok {
			return
		}
		if err := store.SetUserID(ctx, login.UserID); err != nil {
			sugar.Warnf("Storing user ID [%s] failed: %v", login.UserID, err)
		}
	})

	a := &app{
		cfg:      cfg,
		sugar:    sugar,
		settings: store,
		registry: registry,
		api:      apiClient,
		client:   session,
	}

	if cfg.Hub.RedisMirror {
		a.redis = redis.NewClient(&redis.Options{Addr: cfg.Hub.RedisAddr})
		session.Hub().MirrorToRedis(ctx, a.redis, cfg.Hub.RedisChannel)
	}
	return a, nil
}

func (a *app) close() {
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.sugar.Debugf("Closing redis mirror failed: %v", err)
		}
	}
	if err := a.settings.Close(); err != nil {
		a.sugar.Warnf("Closing settings failed: %v", err)
	}
	_ = a.sugar.Sync()
}

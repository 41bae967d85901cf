// Package settings persists the credential and the app version marker.
package settings

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	keyCredential = "credential"
	keyUserID     = "user_id"
	keyVersion    = "app_version"
	keySecret     = "secret"
)

type MySQLConfig struct {
	User     string `mapstructure:"user" yaml:"user"`
	Password string `mapstructure:"password" yaml:"password"`
	Address  string `mapstructure:"address" yaml:"address"`
	Port     string `mapstructure:"port" yaml:"port"`
	Database string `mapstructure:"database" yaml:"database"`
}

type Config struct {
	Backend   string      `mapstructure:"backend" yaml:"backend" validate:"oneof=memory sqlite mysql redis bbolt pebble"`
	Path      string      `mapstructure:"path" yaml:"path" validate:"required_if=Backend sqlite,required_if=Backend bbolt,required_if=Backend pebble"`
	MySQL     MySQLConfig `mapstructure:"mysql" yaml:"mysql"`
	RedisAddr string      `mapstructure:"redisAddr" yaml:"redisAddr" validate:"required_if=Backend redis"`
	Secret    string      `mapstructure:"secret" yaml:"secret"`
}

type Settings struct {
	sugar   *zap.SugaredLogger
	backend Backend
	secret  []byte

	mutex   sync.RWMutex
	token   string
	userID  string
	version string
}

// OpenBackend picks the store named by cfg.Backend.
func OpenBackend(sugar *zap.SugaredLogger, cfg Config) (Backend, error) {
	switch cfg.Backend {
	case "", "memory":
		return NewMemory(), nil
	case "sqlite":
		return OpenSQLite(sugar, cfg.Path)
	case "mysql":
		return OpenMySQL(sugar, cfg.MySQL)
	case "redis":
		return NewRedis(redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})), nil
	case "bbolt":
		return OpenBolt(cfg.Path)
	case "pebble":
		return OpenPebble(filepath.Clean(cfg.Path))
	default:
		return nil, fmt.Errorf("unknown settings backend %q", cfg.Backend)
	}
}

func Open(ctx context.Context, sugar *zap.SugaredLogger, cfg Config) (*Settings, error) {
	backend, err := OpenBackend(sugar, cfg)
	if err != nil {
		return nil, fmt.Errorf("opening settings backend %s: %w", cfg.Backend, err)
	}

	s, err := New(ctx, sugar, backend, cfg.Secret)
	if err != nil {
		backend.Close()
		return nil, err
	}
	return s, nil
}

// New loads the stored state from backend. Without a configured secret one is
// generated and kept in the backend.
func New(ctx context.Context, sugar *zap.SugaredLogger, backend Backend, secret string) (*Settings, error) {
	if secret == "" {
		stored, err := backend.Get(ctx, keySecret)
		if err != nil {
			return nil, err
		}
		if stored == "" {
			stored = uuid.NewString()
			if err := backend.Set(ctx, keySecret, stored); err != nil {
				return nil, err
			}
		}
		secret = stored
	}

	s := &Settings{sugar: sugar, backend: backend, secret: []byte(secret)}
	if err := s.load(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Settings) load(ctx context.Context) error {
	sealed, err := s.backend.Get(ctx, keyCredential)
	if err != nil {
		return err
	}
	userID, err := s.backend.Get(ctx, keyUserID)
	if err != nil {
		return err
	}

	token := ""
	if sealed != "" {
		claims, err := unseal(s.secret, sealed)
		if err != nil {
			s.sugar.Warnf("Stored credential is unreadable, ignoring it: %v", err)
		} else {
			token = claims.Token
		}
	}

	s.mutex.Lock()
	s.token = token
	s.userID = userID
	s.mutex.Unlock()

	s.sugar.Debugf("Loaded credential [%s]", Fingerprint(token))
	return nil
}

func (s *Settings) Token() string {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.token
}

func (s *Settings) HasCredential() bool {
	return s.Token() != ""
}

func (s *Settings) SetToken(ctx context.Context, token string) error {
	if token == "" {
		return s.clear(ctx)
	}

	s.mutex.RLock()
	version := s.version
	s.mutex.RUnlock()

	sealed, err := seal(s.secret, token, version)
	if err != nil {
		return err
	}
	if err := s.backend.Set(ctx, keyCredential, sealed); err != nil {
		return err
	}

	s.mutex.Lock()
	s.token = token
	s.mutex.Unlock()

	s.sugar.Infof("Stored credential [%s]", Fingerprint(token))
	return nil
}

// ClearToken forgets the credential and the user it belonged to.
func (s *Settings) ClearToken() error {
	return s.clear(context.Background())
}

func (s *Settings) clear(ctx context.Context) error {
	s.mutex.Lock()
	previous := s.token
	s.token = ""
	s.userID = ""
	s.mutex.Unlock()

	if err := s.backend.Delete(ctx, keyCredential); err != nil {
		return err
	}
	if err := s.backend.Delete(ctx, keyUserID); err != nil {
		return err
	}

	if previous != "" {
		s.sugar.Infof("Cleared credential [%s]", Fingerprint(previous))
	}
	return nil
}

func (s *Settings) UserID() string {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.userID
}

func (s *Settings) SetUserID(ctx context.Context, userID string) error {
	if err := s.backend.Set(ctx, keyUserID, userID); err != nil {
		return err
	}

	s.mutex.Lock()
	s.userID = userID
	s.mutex.Unlock()
	return nil
}

// CheckVersion discards the credential when it was stored by a different app
// version, then records version. It reports whether a credential was discarded.
func (s *Settings) CheckVersion(ctx context.Context, version string) (bool, error) {
	stored, err := s.backend.Get(ctx, keyVersion)
	if err != nil {
		return false, err
	}
	s.mutex.Lock()
	s.version = version
	s.mutex.Unlock()

	if stored == version {
		return false, nil
	}

	discarded := s.HasCredential()
	if discarded {
		s.sugar.Infof("App version changed from [%s] to [%s], discarding credential", stored, version)
		if err := s.clear(ctx); err != nil {
			return false, err
		}
	}

	if err := s.backend.Set(ctx, keyVersion, version); err != nil {
		return discarded, err
	}
	return discarded, nil
}

func (s *Settings) Close() error {
	return s.backend.Close()
}

package settings

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "github.com/go-sql-driver/mysql"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

type sqlBackend struct {
	db     *sql.DB
	upsert string
}

func setPragmaValues(db *sql.DB) error {
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		return err
	}

	if _, err := db.Exec("PRAGMA synchronous = normal"); err != nil {
		return err
	}

	return nil
}

func OpenSQLite(sugar *zap.SugaredLogger, path string) (Backend, error) {
	sugar.Debugf("Opening sqlite settings database at [%s]", path)

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	// there can be sqlite busy errors if this is not set to 1
	db.SetMaxOpenConns(1)

	if err := setPragmaValues(db); err != nil {
		db.Close()
		return nil, err
	}

	backend := &sqlBackend{
		db:     db,
		upsert: "INSERT INTO settings (name, value) VALUES (?, ?) ON CONFLICT(name) DO UPDATE SET value = excluded.value",
	}
	if err := backend.setupTables(); err != nil {
		db.Close()
		return nil, err
	}
	return backend, nil
}

func OpenMySQL(sugar *zap.SugaredLogger, cfg MySQLConfig) (Backend, error) {
	sugar.Debugf("Connecting to settings database mysql/mariadb at [%s:%s]", cfg.Address, cfg.Port)

	db, err := sql.Open("mysql", fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=True&timeout=10s", cfg.User, cfg.Password, cfg.Address, cfg.Port, cfg.Database))
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(2)

	backend := &sqlBackend{
		db:     db,
		upsert: "INSERT INTO settings (name, value) VALUES (?, ?) ON DUPLICATE KEY UPDATE value = VALUES(value)",
	}
	if err := backend.setupTables(); err != nil {
		db.Close()
		return nil, err
	}
	return backend, nil
}

func (b *sqlBackend) setupTables() error {
	_, err := b.db.Exec(`
		CREATE TABLE IF NOT EXISTS settings (
			name VARCHAR(64) PRIMARY KEY,
			value TEXT NOT NULL
		)
	`)
	return err
}

func (b *sqlBackend) Get(ctx context.Context, key string) (string, error) {
	var value string
	err := b.db.QueryRowContext(ctx, "SELECT value FROM settings WHERE name = ?", key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	} else if err != nil {
		return "", err
	}
	return value, nil
}

func (b *sqlBackend) Set(ctx context.Context, key string, value string) error {
	_, err := b.db.ExecContext(ctx, b.upsert, key, value)
	return err
}

func (b *sqlBackend) Delete(ctx context.Context, key string) error {
	_, err := b.db.ExecContext(ctx, "DELETE FROM settings WHERE name = ?", key)
	return err
}

func (b *sqlBackend) Close() error {
	return b.db.Close()
}

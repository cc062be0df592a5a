// Package repository реализует хранилище пользователей и подписок на основе PostgreSQL.
// Запись покупки выполняется одной транзакцией с блокировкой строки пользователя,
// поэтому покупки одного пользователя сериализуются, а покупки разных пользователей независимы.
package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	// Регистрация драйвера pgx для использования с database/sql.
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/magabrotheeeer/premium-entitlements/internal/storage"
)

// Storage инкапсулирует соединение с базой данных PostgreSQL.
type Storage struct {
	DB *sql.DB
}

// Options задаёт параметры пула соединений.
type Options struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// New создаёт подключение к PostgreSQL и проверяет его доступность.
func New(ctx context.Context, storageConnectionString string, opts Options) (*Storage, error) {
	const op = "storage.New"

	db, err := sql.Open("pgx", storageConnectionString)
	if err != nil {
		return nil, storage.Wrap(op, err)
	}
	if opts.MaxOpenConns > 0 {
		db.SetMaxOpenConns(opts.MaxOpenConns)
	}
	if opts.MaxIdleConns > 0 {
		db.SetMaxIdleConns(opts.MaxIdleConns)
	}
	if opts.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(opts.ConnMaxLifetime)
	}
	if err = db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, storage.Wrap(op, err)
	}

	return &Storage{
		DB: db,
	}, nil
}

// Ping проверяет доступность базы данных.
func (s *Storage) Ping(ctx context.Context) error {
	const op = "storage.Ping"
	return storage.Wrap(op, s.DB.PingContext(ctx))
}

// Close закрывает пул соединений.
func (s *Storage) Close() error {
	return s.DB.Close()
}

// CheckDatabaseReady проверяет, что миграции применены.
func CheckDatabaseReady(ctx context.Context, s *Storage) error {
	var exists bool
	err := s.DB.QueryRowContext(ctx, `SELECT EXISTS (
        SELECT FROM information_schema.tables 
        WHERE table_name = 'subscriptions'
    )`).Scan(&exists)
	if err != nil {
		return fmt.Errorf("required table subscriptions missing or query error: %w", err)
	}
	if !exists {
		return fmt.Errorf("required table subscriptions missing")
	}
	return nil
}

package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/magabrotheeeer/premium-entitlements/internal/models"
	"github.com/magabrotheeeer/premium-entitlements/internal/storage"
)

// UpsertUser добавляет пользователя или обновляет его handle, имя и фамилию.
// Дата создания и флаг активности существующего пользователя не меняются.
func (s *Storage) UpsertUser(ctx context.Context, user models.User) error {
	const op = "storage.UpsertUser"
	select {
	case <-ctx.Done():
		return storage.Wrap(op, ctx.Err())
	default:
	}

	query := `INSERT INTO users (user_id, username, first_name, last_name)
			  VALUES ($1, $2, $3, $4)
			  ON CONFLICT (user_id) DO UPDATE SET
			      username = EXCLUDED.username,
			      first_name = EXCLUDED.first_name,
			      last_name = EXCLUDED.last_name`
	if _, err := s.DB.ExecContext(ctx, query,
		user.ID, user.Username, user.FirstName, user.LastName); err != nil {
		return storage.Wrap(op, err)
	}
	return nil
}

// GetUser возвращает пользователя по идентификатору.
func (s *Storage) GetUser(ctx context.Context, userID int64) (*models.User, error) {
	const op = "storage.GetUser"
	select {
	case <-ctx.Done():
		return nil, storage.Wrap(op, ctx.Err())
	default:
	}

	query := `SELECT user_id, username, first_name, last_name, created_at, is_active
			  FROM users
			  WHERE user_id = $1`
	u := &models.User{}
	err := s.DB.QueryRowContext(ctx, query, userID).Scan(&u.ID, &u.Username, &u.FirstName,
		&u.LastName, &u.CreatedAt, &u.IsActive)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s: %w", op, storage.ErrUserNotFound)
	}
	if err != nil {
		return nil, storage.Wrap(op, err)
	}
	return u, nil
}

// CountUsers возвращает общее количество пользователей.
func (s *Storage) CountUsers(ctx context.Context) (int, error) {
	const op = "storage.CountUsers"
	select {
	case <-ctx.Done():
		return 0, storage.Wrap(op, ctx.Err())
	default:
	}

	var count int
	if err := s.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&count); err != nil {
		return 0, storage.Wrap(op, err)
	}
	return count, nil
}

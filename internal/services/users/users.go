// Package users обрабатывает обращения пользователей и считает простую статистику.
package users

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/magabrotheeeer/premium-entitlements/internal/lib/sl"
	"github.com/magabrotheeeer/premium-entitlements/internal/models"
)

type Repository interface {
	UpsertUser(ctx context.Context, user models.User) error
	CountUsers(ctx context.Context) (int, error)
	CountActiveEntitlements(ctx context.Context, now time.Time) (int, error)
}

type Service struct {
	repo Repository
	now  func() time.Time
	log  *slog.Logger
}

func New(repo Repository, log *slog.Logger) *Service {
	return &Service{repo: repo, now: time.Now, log: log}
}

// Contact регистрирует обращение пользователя или обновляет его имя.
func (s *Service) Contact(ctx context.Context, req models.DummyUser) error {
	const op = "users.Contact"
	err := s.repo.UpsertUser(ctx, models.User{
		ID:        req.ID,
		Username:  req.Username,
		FirstName: req.FirstName,
		LastName:  req.LastName,
	})
	if err != nil {
		s.log.Error("failed to upsert user", slog.String("op", op), slog.Int64("user_id", req.ID), sl.Err(err))
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// Stats возвращает число пользователей, действующих подписок и конверсию в процентах.
func (s *Service) Stats(ctx context.Context) (models.Stats, error) {
	const op = "users.Stats"

	total, err := s.repo.CountUsers(ctx)
	if err != nil {
		return models.Stats{}, fmt.Errorf("%s: %w", op, err)
	}
	active, err := s.repo.CountActiveEntitlements(ctx, s.now())
	if err != nil {
		return models.Stats{}, fmt.Errorf("%s: %w", op, err)
	}

	stats := models.Stats{Users: total, Active: active, Free: max(total-active, 0)}
	if total > 0 {
		stats.Conversion = math.Round(float64(active)/float64(total)*1000) / 10
	}
	return stats, nil
}

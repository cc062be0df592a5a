// Package scheduler периодически публикует напоминания о скором окончании подписок.
// Записи в хранилище не меняются: истечение вычисляется при каждой проверке.
package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/magabrotheeeer/premium-entitlements/internal/lib/rabbitmq"
	"github.com/magabrotheeeer/premium-entitlements/internal/lib/sl"
	"github.com/magabrotheeeer/premium-entitlements/internal/metrics"
	"github.com/magabrotheeeer/premium-entitlements/internal/models"
)

type SubscriptionRepository interface {
	ListExpiringBetween(ctx context.Context, from, to time.Time) ([]*models.Subscription, error)
}

type Publisher interface {
	Publish(ctx context.Context, routingKey string, message any) error
}

type SchedulerService struct {
	repo      SubscriptionRepository
	publisher Publisher
	interval  time.Duration
	window    time.Duration
	now       func() time.Time
	log       *slog.Logger
}

// NewSchedulerService создаёт планировщик. Каждый запуск охватывает подписки,
// которые закончатся через window, с шагом interval.
func NewSchedulerService(repo SubscriptionRepository, publisher Publisher, interval, window time.Duration, log *slog.Logger) *SchedulerService {
	return &SchedulerService{
		repo:      repo,
		publisher: publisher,
		interval:  interval,
		window:    window,
		now:       time.Now,
		log:       log,
	}
}

// Run публикует напоминания сразу и затем каждые interval до отмены ctx.
func (s *SchedulerService) Run(ctx context.Context) {
	s.RemindExpiring(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.RemindExpiring(ctx)
		}
	}
}

// RemindExpiring публикует события для подписок с окончанием
// в интервале (now+window-interval, now+window] и возвращает их число.
func (s *SchedulerService) RemindExpiring(ctx context.Context) int {
	const op = "scheduler.RemindExpiring"
	log := s.log.With(slog.String("op", op))

	to := s.now().Add(s.window)
	from := to.Add(-s.interval)

	subs, err := s.repo.ListExpiringBetween(ctx, from, to)
	if err != nil {
		log.Error("failed to find expiring subscriptions", sl.Err(err))
		return 0
	}
	if len(subs) == 0 {
		log.Debug("no expiring subscriptions found")
		return 0
	}

	published := 0
	for _, sub := range subs {
		event := models.EntitlementEvent{
			UserID:        sub.UserID,
			Plan:          sub.Plan,
			AmountPaid:    sub.AmountPaid,
			EndDate:       sub.EndDate,
			ExternalTxnID: sub.ExternalTxnID,
		}
		if err := s.publisher.Publish(ctx, rabbitmq.RoutingEntitlementExpiring, event); err != nil {
			log.Error("failed to publish message", slog.Int64("user_id", sub.UserID), sl.Err(err))
			continue
		}
		published++
	}
	metrics.RecordExpiryReminders(published)
	log.Info("expiry reminders published", slog.Int("found", len(subs)), slog.Int("published", published))
	return published
}

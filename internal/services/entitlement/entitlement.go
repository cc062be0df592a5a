// Package entitlement вычисляет статус премиум-доступа пользователя и выдаёт подписки.
//
// Статус всегда вычисляется от текущего времени по сохранённой записи,
// поэтому истечение подписки не требует фоновой обработки.
// GrantEntitlement единственный путь записи подписок.
package entitlement

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/magabrotheeeer/premium-entitlements/internal/lib/days"
	"github.com/magabrotheeeer/premium-entitlements/internal/lib/rabbitmq"
	"github.com/magabrotheeeer/premium-entitlements/internal/lib/sl"
	"github.com/magabrotheeeer/premium-entitlements/internal/metrics"
	"github.com/magabrotheeeer/premium-entitlements/internal/models"
	"github.com/magabrotheeeer/premium-entitlements/internal/plans"
	"github.com/magabrotheeeer/premium-entitlements/internal/storage"
)

var (
	// ErrDuplicateConfirmation транзакция уже учтена. Вызывающая сторона
	// считает такую выдачу успешной, подписка не меняется.
	ErrDuplicateConfirmation = errors.New("transaction already reconciled")
	ErrInvalidAmount         = errors.New("amount paid must be positive")
	ErrInvalidUser           = errors.New("user id must be positive")
)

// Store операции хранилища, нужные движку.
type Store interface {
	RecordPurchase(ctx context.Context, p models.Purchase, now time.Time) (*models.Subscription, error)
	FetchActiveEntitlement(ctx context.Context, userID int64, now time.Time) (*models.Subscription, error)
}

// Cache кэш действующих подписок.
type Cache interface {
	GetEntitlement(ctx context.Context, userID int64) (*models.Subscription, bool, error)
	SetEntitlement(ctx context.Context, sub *models.Subscription, now time.Time) error
	SetEntitlementNX(ctx context.Context, sub *models.Subscription, now time.Time) error
	InvalidateEntitlement(ctx context.Context, userID int64) error
}

// Publisher отправляет события о выданных подписках.
type Publisher interface {
	Publish(ctx context.Context, routingKey string, message any) error
}

// Engine движок проверки и выдачи подписок.
type Engine struct {
	store     Store
	catalog   *plans.Catalog
	cache     Cache
	publisher Publisher
	now       func() time.Time
	log       *slog.Logger
}

// Option настраивает Engine.
type Option func(*Engine)

func WithCache(c Cache) Option {
	return func(e *Engine) { e.cache = c }
}

func WithPublisher(p Publisher) Option {
	return func(e *Engine) { e.publisher = p }
}

// WithClock подменяет источник текущего времени.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// New создаёт движок. Каталог тарифов не меняется после создания.
func New(store Store, catalog *plans.Catalog, log *slog.Logger, opts ...Option) *Engine {
	e := &Engine{
		store:   store,
		catalog: catalog,
		now:     time.Now,
		log:     log,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Now возвращает текущее время по часам движка.
func (e *Engine) Now() time.Time {
	return e.now()
}

// StatusOf строит статус по записи sub на момент now. Пустая или истёкшая
// запись даёт неактивный статус.
func StatusOf(sub *models.Subscription, now time.Time) models.Status {
	if sub == nil || !sub.Entitles(now) {
		return models.Status{}
	}
	plan := sub.Plan
	end := sub.EndDate
	return models.Status{
		Active:        true,
		Plan:          &plan,
		EndTimestamp:  &end,
		DaysRemaining: days.Remaining(now, sub.EndDate),
	}
}

// CheckEntitlement возвращает статус пользователя на текущий момент.
func (e *Engine) CheckEntitlement(ctx context.Context, userID int64) (models.Status, error) {
	return e.CheckEntitlementAt(ctx, userID, e.now())
}

// CheckEntitlementAt возвращает статус пользователя на момент now.
// Отсутствие подписки не является ошибкой.
func (e *Engine) CheckEntitlementAt(ctx context.Context, userID int64, now time.Time) (models.Status, error) {
	const op = "entitlement.CheckEntitlement"
	log := e.log.With(slog.String("op", op), slog.Int64("user_id", userID))

	if e.cache != nil {
		sub, found, err := e.cache.GetEntitlement(ctx, userID)
		if err != nil {
			log.Warn("failed to read entitlement from cache", sl.Err(err))
		} else if found && sub.Entitles(now) {
			metrics.RecordCheck(true, "cache")
			return StatusOf(sub, now), nil
		}
	}

	sub, err := e.store.FetchActiveEntitlement(ctx, userID, now)
	if err != nil {
		log.Error("failed to fetch active entitlement", sl.Err(err))
		return models.Status{}, fmt.Errorf("%s: %w", op, err)
	}

	status := StatusOf(sub, now)
	metrics.RecordCheck(status.Active, "store")

	// чтение могло начаться до покупки, поэтому запись выдачи не перезаписывается
	if sub != nil && e.cache != nil {
		if err := e.cache.SetEntitlementNX(ctx, sub, now); err != nil {
			log.Warn("failed to cache entitlement", sl.Err(err))
		}
	}
	return status, nil
}

// GrantEntitlement проверяет тариф и сумму и записывает новую подписку,
// деактивируя предыдущие. Для уже учтённой транзакции возвращает существующую
// запись вместе с ErrDuplicateConfirmation.
func (e *Engine) GrantEntitlement(ctx context.Context, userID int64, planTag string, amountPaid int64, txnID string) (*models.Subscription, error) {
	const op = "entitlement.GrantEntitlement"
	log := e.log.With(
		slog.String("op", op),
		slog.Int64("user_id", userID),
		slog.String("plan", planTag),
		slog.String("txn_id", txnID),
	)

	plan, err := e.catalog.Lookup(planTag)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if userID <= 0 {
		return nil, fmt.Errorf("%s: %w", op, ErrInvalidUser)
	}
	if amountPaid <= 0 {
		return nil, fmt.Errorf("%s: %w", op, ErrInvalidAmount)
	}

	now := e.now()
	sub, err := e.store.RecordPurchase(ctx, models.Purchase{
		UserID:        userID,
		Plan:          plan.Tag,
		AmountPaid:    amountPaid,
		DurationDays:  plan.DurationDays,
		ExternalTxnID: txnID,
	}, now)
	if errors.Is(err, storage.ErrDuplicateTransaction) {
		metrics.RecordGrant(plan.Tag, "duplicate", amountPaid)
		log.Info("transaction already reconciled, skipping")
		return sub, fmt.Errorf("%s: %w", op, ErrDuplicateConfirmation)
	}
	if err != nil {
		metrics.RecordGrant(plan.Tag, "failed", amountPaid)
		log.Error("failed to record purchase", sl.Err(err))
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	metrics.RecordGrant(plan.Tag, "granted", amountPaid)
	log.Info("entitlement granted",
		slog.Int64("subscription_id", sub.ID),
		slog.Time("end_date", sub.EndDate),
	)

	if e.cache != nil {
		if err := e.cache.SetEntitlement(ctx, sub, now); err != nil {
			log.Warn("failed to cache granted entitlement", sl.Err(err))
			if err := e.cache.InvalidateEntitlement(ctx, userID); err != nil {
				log.Warn("failed to invalidate cached entitlement", sl.Err(err))
			}
		}
	}
	if e.publisher != nil {
		event := models.EntitlementEvent{
			UserID:        sub.UserID,
			Plan:          sub.Plan,
			AmountPaid:    sub.AmountPaid,
			EndDate:       sub.EndDate,
			ExternalTxnID: sub.ExternalTxnID,
		}
		if err := e.publisher.Publish(ctx, rabbitmq.RoutingEntitlementGranted, event); err != nil {
			log.Warn("failed to publish granted event", sl.Err(err))
		}
	}
	return sub, nil
}

// Catalog возвращает каталог тарифов движка.
func (e *Engine) Catalog() *plans.Catalog {
	return e.catalog
}

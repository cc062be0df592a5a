package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/magabrotheeeer/premium-entitlements/internal/lib/days"
	"github.com/magabrotheeeer/premium-entitlements/internal/models"
	"github.com/magabrotheeeer/premium-entitlements/internal/storage"
)

const (
	uniqueViolation     = "23505"
	txnUniqueConstraint = "ux_subscriptions_external_txn_id"
)

const subscriptionColumns = `id, user_id, plan, amount_paid, start_date, end_date, is_active, external_txn_id`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSubscription(row rowScanner) (*models.Subscription, error) {
	var (
		sub   models.Subscription
		txnID sql.NullString
	)
	if err := row.Scan(&sub.ID, &sub.UserID, &sub.Plan, &sub.AmountPaid,
		&sub.StartDate, &sub.EndDate, &sub.IsActive, &txnID); err != nil {
		return nil, err
	}
	sub.ExternalTxnID = txnID.String
	return &sub, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// RecordPurchase записывает покупку одной транзакцией: блокирует строку пользователя,
// деактивирует все его активные подписки и вставляет новую с началом в now.
// Повторная транзакция платёжной системы возвращает существующую запись
// и storage.ErrDuplicateTransaction.
func (s *Storage) RecordPurchase(ctx context.Context, p models.Purchase, now time.Time) (*models.Subscription, error) {
	const op = "storage.RecordPurchase"
	select {
	case <-ctx.Done():
		return nil, storage.Wrap(op, ctx.Err())
	default:
	}

	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return nil, storage.Wrap(op, err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err = tx.ExecContext(ctx,
		`INSERT INTO users (user_id) VALUES ($1) ON CONFLICT (user_id) DO NOTHING`,
		p.UserID); err != nil {
		return nil, storage.Wrap(op, err)
	}

	var locked int64
	if err = tx.QueryRowContext(ctx,
		`SELECT user_id FROM users WHERE user_id = $1 FOR UPDATE`,
		p.UserID).Scan(&locked); err != nil {
		return nil, storage.Wrap(op, err)
	}

	if p.ExternalTxnID != "" {
		existing, err := scanSubscription(tx.QueryRowContext(ctx,
			`SELECT `+subscriptionColumns+` FROM subscriptions WHERE external_txn_id = $1`,
			p.ExternalTxnID))
		switch {
		case err == nil:
			return existing, fmt.Errorf("%s: %w", op, storage.ErrDuplicateTransaction)
		case !errors.Is(err, sql.ErrNoRows):
			return nil, storage.Wrap(op, err)
		}
	}

	if _, err = tx.ExecContext(ctx,
		`UPDATE subscriptions SET is_active = false WHERE user_id = $1 AND is_active`,
		p.UserID); err != nil {
		return nil, storage.Wrap(op, err)
	}

	start := now.UTC()
	sub := &models.Subscription{
		UserID:        p.UserID,
		Plan:          p.Plan,
		AmountPaid:    p.AmountPaid,
		StartDate:     start,
		EndDate:       days.Add(start, p.DurationDays),
		IsActive:      true,
		ExternalTxnID: p.ExternalTxnID,
	}
	err = tx.QueryRowContext(ctx,
		`INSERT INTO subscriptions (user_id, plan, amount_paid, start_date, end_date, is_active, external_txn_id)
		 VALUES ($1, $2, $3, $4, $5, true, $6)
		 RETURNING id`,
		sub.UserID, sub.Plan, sub.AmountPaid, sub.StartDate, sub.EndDate,
		nullString(sub.ExternalTxnID)).Scan(&sub.ID)
	if err != nil {
		if isTxnConflict(err) {
			_ = tx.Rollback()
			return s.existingTransaction(ctx, op, p.ExternalTxnID)
		}
		return nil, storage.Wrap(op, err)
	}

	if err = tx.Commit(); err != nil {
		if isTxnConflict(err) {
			return s.existingTransaction(ctx, op, p.ExternalTxnID)
		}
		return nil, storage.Wrap(op, err)
	}
	return sub, nil
}

// existingTransaction дочитывает запись, с которой конфликтовала вставка:
// тот же идентификатор транзакции был записан для другого пользователя.
func (s *Storage) existingTransaction(ctx context.Context, op, txnID string) (*models.Subscription, error) {
	existing, err := s.FindByExternalTxnID(ctx, txnID)
	if err != nil {
		return nil, err
	}
	return existing, fmt.Errorf("%s: %w", op, storage.ErrDuplicateTransaction)
}

func isTxnConflict(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation &&
		pgErr.ConstraintName == txnUniqueConstraint
}

// FetchActiveEntitlement возвращает активную подписку пользователя с самой поздней
// датой окончания, если она ещё не истекла к моменту now. Возвращает nil, nil,
// если такой подписки нет.
func (s *Storage) FetchActiveEntitlement(ctx context.Context, userID int64, now time.Time) (*models.Subscription, error) {
	const op = "storage.FetchActiveEntitlement"
	select {
	case <-ctx.Done():
		return nil, storage.Wrap(op, ctx.Err())
	default:
	}

	query := `SELECT ` + subscriptionColumns + `
			  FROM subscriptions
			  WHERE user_id = $1 AND is_active AND end_date > $2
			  ORDER BY end_date DESC
			  LIMIT 1`
	sub, err := scanSubscription(s.DB.QueryRowContext(ctx, query, userID, now.UTC()))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, storage.Wrap(op, err)
	}
	return sub, nil
}

// FindByExternalTxnID возвращает подписку по идентификатору транзакции. Возвращает nil, nil,
// если транзакция ещё не записана.
func (s *Storage) FindByExternalTxnID(ctx context.Context, txnID string) (*models.Subscription, error) {
	const op = "storage.FindByExternalTxnID"
	select {
	case <-ctx.Done():
		return nil, storage.Wrap(op, ctx.Err())
	default:
	}

	query := `SELECT ` + subscriptionColumns + ` FROM subscriptions WHERE external_txn_id = $1`
	sub, err := scanSubscription(s.DB.QueryRowContext(ctx, query, txnID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, storage.Wrap(op, err)
	}
	return sub, nil
}

// CountActiveEntitlements подсчитывает подписки, дающие доступ в момент now.
func (s *Storage) CountActiveEntitlements(ctx context.Context, now time.Time) (int, error) {
	const op = "storage.CountActiveEntitlements"
	select {
	case <-ctx.Done():
		return 0, storage.Wrap(op, ctx.Err())
	default:
	}

	var count int
	err := s.DB.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM subscriptions WHERE is_active AND end_date > $1`,
		now.UTC()).Scan(&count)
	if err != nil {
		return 0, storage.Wrap(op, err)
	}
	return count, nil
}

// ListExpiringBetween возвращает активные подписки, заканчивающиеся в интервале (from, to].
func (s *Storage) ListExpiringBetween(ctx context.Context, from, to time.Time) ([]*models.Subscription, error) {
	const op = "storage.ListExpiringBetween"
	select {
	case <-ctx.Done():
		return nil, storage.Wrap(op, ctx.Err())
	default:
	}

	query := `SELECT ` + subscriptionColumns + `
			  FROM subscriptions
			  WHERE is_active AND end_date > $1 AND end_date <= $2
			  ORDER BY end_date`
	rows, err := s.DB.QueryContext(ctx, query, from.UTC(), to.UTC())
	if err != nil {
		return nil, storage.Wrap(op, err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var result []*models.Subscription
	for rows.Next() {
		sub, err := scanSubscription(rows)
		if err != nil {
			return nil, storage.Wrap(op, err)
		}
		result = append(result, sub)
	}
	if err = rows.Err(); err != nil {
		return nil, storage.Wrap(op, err)
	}
	return result, nil
}

package repository

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/magabrotheeeer/premium-entitlements/internal/models"
	"github.com/magabrotheeeer/premium-entitlements/internal/storage"
)

var subscriptionCols = []string{"id", "user_id", "plan", "amount_paid", "start_date", "end_date", "is_active", "external_txn_id"}

func setupMock(t *testing.T) (*Storage, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	closer := func() { _ = db.Close() }
	return &Storage{DB: db}, mock, closer
}

func TestStorage_RecordPurchase(t *testing.T) {
	now := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	purchase := models.Purchase{
		UserID:        42,
		Plan:          "monthly",
		AmountPaid:    150,
		DurationDays:  30,
		ExternalTxnID: "ch_1",
	}

	tests := []struct {
		name      string
		setup     func(mock sqlmock.Sqlmock)
		wantID    int64
		wantErr   error
		wantStore bool
	}{
		{
			name: "deactivates previous and inserts new record",
			setup: func(mock sqlmock.Sqlmock) {
				mock.ExpectBegin()
				mock.ExpectExec(`INSERT INTO users \(user_id\) VALUES \(\$1\) ON CONFLICT`).
					WithArgs(int64(42)).WillReturnResult(sqlmock.NewResult(0, 0))
				mock.ExpectQuery(`SELECT user_id FROM users WHERE user_id = \$1 FOR UPDATE`).
					WithArgs(int64(42)).WillReturnRows(sqlmock.NewRows([]string{"user_id"}).AddRow(42))
				mock.ExpectQuery(`FROM subscriptions WHERE external_txn_id = \$1`).
					WithArgs("ch_1").WillReturnRows(sqlmock.NewRows(subscriptionCols))
				mock.ExpectExec(`UPDATE subscriptions SET is_active = false WHERE user_id = \$1 AND is_active`).
					WithArgs(int64(42)).WillReturnResult(sqlmock.NewResult(0, 1))
				mock.ExpectQuery(`INSERT INTO subscriptions`).
					WithArgs(int64(42), "monthly", int64(150), now, now.Add(30*24*time.Hour), "ch_1").
					WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(7))
				mock.ExpectCommit()
			},
			wantID: 7,
		},
		{
			name: "duplicate transaction returns existing record",
			setup: func(mock sqlmock.Sqlmock) {
				mock.ExpectBegin()
				mock.ExpectExec(`INSERT INTO users`).WillReturnResult(sqlmock.NewResult(0, 0))
				mock.ExpectQuery(`FOR UPDATE`).WillReturnRows(sqlmock.NewRows([]string{"user_id"}).AddRow(42))
				mock.ExpectQuery(`FROM subscriptions WHERE external_txn_id = \$1`).
					WithArgs("ch_1").
					WillReturnRows(sqlmock.NewRows(subscriptionCols).
						AddRow(3, 42, "monthly", 150, now.Add(-time.Hour), now.Add(719*time.Hour), true, "ch_1"))
				mock.ExpectRollback()
			},
			wantID:  3,
			wantErr: storage.ErrDuplicateTransaction,
		},
		{
			name: "begin fails",
			setup: func(mock sqlmock.Sqlmock) {
				mock.ExpectBegin().WillReturnError(errors.New("connection refused"))
			},
			wantStore: true,
		},
		{
			name: "insert fails and transaction is rolled back",
			setup: func(mock sqlmock.Sqlmock) {
				mock.ExpectBegin()
				mock.ExpectExec(`INSERT INTO users`).WillReturnResult(sqlmock.NewResult(0, 0))
				mock.ExpectQuery(`FOR UPDATE`).WillReturnRows(sqlmock.NewRows([]string{"user_id"}).AddRow(42))
				mock.ExpectQuery(`external_txn_id = \$1`).WillReturnRows(sqlmock.NewRows(subscriptionCols))
				mock.ExpectExec(`UPDATE subscriptions`).WillReturnResult(sqlmock.NewResult(0, 1))
				mock.ExpectQuery(`INSERT INTO subscriptions`).WillReturnError(errors.New("disk full"))
				mock.ExpectRollback()
			},
			wantStore: true,
		},
		{
			name: "unique violation on transaction id from another user",
			setup: func(mock sqlmock.Sqlmock) {
				mock.ExpectBegin()
				mock.ExpectExec(`INSERT INTO users`).WillReturnResult(sqlmock.NewResult(0, 0))
				mock.ExpectQuery(`FOR UPDATE`).WillReturnRows(sqlmock.NewRows([]string{"user_id"}).AddRow(42))
				mock.ExpectQuery(`external_txn_id = \$1`).WillReturnRows(sqlmock.NewRows(subscriptionCols))
				mock.ExpectExec(`UPDATE subscriptions`).WillReturnResult(sqlmock.NewResult(0, 0))
				mock.ExpectQuery(`INSERT INTO subscriptions`).WillReturnError(&pgconn.PgError{
					Code:           uniqueViolation,
					ConstraintName: txnUniqueConstraint,
				})
				mock.ExpectRollback()
				mock.ExpectQuery(`FROM subscriptions WHERE external_txn_id = \$1`).
					WithArgs("ch_1").
					WillReturnRows(sqlmock.NewRows(subscriptionCols).
						AddRow(9, 43, "monthly", 150, now, now.Add(720*time.Hour), true, "ch_1"))
			},
			wantID:  9,
			wantErr: storage.ErrDuplicateTransaction,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, mock, closer := setupMock(t)
			defer closer()
			tt.setup(mock)

			sub, err := s.RecordPurchase(context.Background(), purchase, now)

			switch {
			case tt.wantStore:
				assert.True(t, storage.IsStorageError(err), "expected storage error, got %v", err)
				assert.Nil(t, sub)
			case tt.wantErr != nil:
				assert.ErrorIs(t, err, tt.wantErr)
				require.NotNil(t, sub)
				assert.Equal(t, tt.wantID, sub.ID)
			default:
				require.NoError(t, err)
				require.NotNil(t, sub)
				assert.Equal(t, tt.wantID, sub.ID)
				assert.True(t, sub.IsActive)
				assert.Equal(t, now, sub.StartDate)
				assert.Equal(t, now.Add(30*24*time.Hour), sub.EndDate)
				assert.Equal(t, int64(150), sub.AmountPaid)
			}
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestStorage_RecordPurchase_WithoutTxnIDSkipsLookup(t *testing.T) {
	s, mock, closer := setupMock(t)
	defer closer()
	now := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO users`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`FOR UPDATE`).WillReturnRows(sqlmock.NewRows([]string{"user_id"}).AddRow(5))
	mock.ExpectExec(`UPDATE subscriptions`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`INSERT INTO subscriptions`).
		WithArgs(int64(5), "weekly", int64(50), now, now.Add(7*24*time.Hour), nil).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(1))
	mock.ExpectCommit()

	sub, err := s.RecordPurchase(context.Background(), models.Purchase{
		UserID: 5, Plan: "weekly", AmountPaid: 50, DurationDays: 7,
	}, now)
	require.NoError(t, err)
	assert.Equal(t, int64(1), sub.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStorage_RecordPurchase_CanceledContext(t *testing.T) {
	s, mock, closer := setupMock(t)
	defer closer()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.RecordPurchase(ctx, models.Purchase{UserID: 1}, time.Now())
	assert.True(t, storage.IsStorageError(err))
	assert.ErrorIs(t, err, context.Canceled)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStorage_FetchActiveEntitlement(t *testing.T) {
	now := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

	t.Run("found", func(t *testing.T) {
		s, mock, closer := setupMock(t)
		defer closer()

		mock.ExpectQuery(`WHERE user_id = \$1 AND is_active AND end_date > \$2`).
			WithArgs(int64(42), now).
			WillReturnRows(sqlmock.NewRows(subscriptionCols).
				AddRow(2, 42, "weekly", 50, now.Add(-time.Hour), now.Add(100*time.Hour), true, nil))

		sub, err := s.FetchActiveEntitlement(context.Background(), 42, now)
		require.NoError(t, err)
		require.NotNil(t, sub)
		assert.Equal(t, "weekly", sub.Plan)
		assert.Empty(t, sub.ExternalTxnID)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("none", func(t *testing.T) {
		s, mock, closer := setupMock(t)
		defer closer()

		mock.ExpectQuery(`FROM subscriptions`).WillReturnRows(sqlmock.NewRows(subscriptionCols))

		sub, err := s.FetchActiveEntitlement(context.Background(), 42, now)
		require.NoError(t, err)
		assert.Nil(t, sub)
	})

	t.Run("storage failure", func(t *testing.T) {
		s, mock, closer := setupMock(t)
		defer closer()

		mock.ExpectQuery(`FROM subscriptions`).WillReturnError(sql.ErrConnDone)

		_, err := s.FetchActiveEntitlement(context.Background(), 42, now)
		assert.True(t, storage.IsStorageError(err))
	})
}

func TestStorage_Users(t *testing.T) {
	s, mock, closer := setupMock(t)
	defer closer()
	ctx := context.Background()

	mock.ExpectExec(`INSERT INTO users \(user_id, username, first_name, last_name\)`).
		WithArgs(int64(42), "jdoe", "John", "Doe").
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, s.UpsertUser(ctx, models.User{ID: 42, Username: "jdoe", FirstName: "John", LastName: "Doe"}))

	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM users`).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(12))
	count, err := s.CountUsers(ctx)
	require.NoError(t, err)
	assert.Equal(t, 12, count)

	mock.ExpectQuery(`FROM users\s+WHERE user_id = \$1`).
		WithArgs(int64(7)).
		WillReturnRows(sqlmock.NewRows([]string{"user_id", "username", "first_name", "last_name", "created_at", "is_active"}))
	_, err = s.GetUser(ctx, 7)
	assert.ErrorIs(t, err, storage.ErrUserNotFound)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStorage_CountActiveEntitlements(t *testing.T) {
	s, mock, closer := setupMock(t)
	defer closer()
	now := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM subscriptions WHERE is_active AND end_date > \$1`).
		WithArgs(now).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(3))

	count, err := s.CountActiveEntitlements(context.Background(), now)
	require.NoError(t, err)
	assert.Equal(t, 3, count)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStorage_ListExpiringBetween(t *testing.T) {
	s, mock, closer := setupMock(t)
	defer closer()
	from := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	to := from.Add(24 * time.Hour)

	mock.ExpectQuery(`WHERE is_active AND end_date > \$1 AND end_date <= \$2`).
		WithArgs(from, to).
		WillReturnRows(sqlmock.NewRows(subscriptionCols).
			AddRow(1, 10, "weekly", 50, from.Add(-6*24*time.Hour), from.Add(time.Hour), true, "a").
			AddRow(2, 11, "monthly", 150, from.Add(-29*24*time.Hour), from.Add(20*time.Hour), true, "b"))

	subs, err := s.ListExpiringBetween(context.Background(), from, to)
	require.NoError(t, err)
	require.Len(t, subs, 2)
	assert.Equal(t, int64(10), subs[0].UserID)
	assert.Equal(t, "b", subs[1].ExternalTxnID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

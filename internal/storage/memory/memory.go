// Package memory реализует хранилище пользователей и подписок в памяти процесса.
// Используется для локального запуска без PostgreSQL и в тестах сервисов.
// Покупки одного пользователя сериализуются отдельным мьютексом на пользователя,
// общий мьютекс защищает только доступ к картам и не удерживается между шагами.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/magabrotheeeer/premium-entitlements/internal/lib/days"
	"github.com/magabrotheeeer/premium-entitlements/internal/models"
	"github.com/magabrotheeeer/premium-entitlements/internal/storage"
)

// Store хранилище в памяти.
type Store struct {
	userLocks sync.Map // int64 -> *sync.Mutex

	mu     sync.RWMutex
	users  map[int64]*models.User
	subs   map[int64]*models.Subscription
	byUser map[int64][]int64
	byTxn  map[string]int64
	nextID int64
	now    func() time.Time
}

// New создаёт пустое хранилище.
func New() *Store {
	return &Store{
		users:  make(map[int64]*models.User),
		subs:   make(map[int64]*models.Subscription),
		byUser: make(map[int64][]int64),
		byTxn:  make(map[string]int64),
		now:    time.Now,
	}
}

func (s *Store) lockUser(userID int64) func() {
	m, _ := s.userLocks.LoadOrStore(userID, &sync.Mutex{})
	mu := m.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

// UpsertUser добавляет пользователя или обновляет handle, имя и фамилию.
func (s *Store) UpsertUser(ctx context.Context, user models.User) error {
	const op = "storage.memory.UpsertUser"
	if err := ctx.Err(); err != nil {
		return storage.Wrap(op, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if u, ok := s.users[user.ID]; ok {
		u.Username = user.Username
		u.FirstName = user.FirstName
		u.LastName = user.LastName
		return nil
	}
	s.users[user.ID] = &models.User{
		ID:        user.ID,
		Username:  user.Username,
		FirstName: user.FirstName,
		LastName:  user.LastName,
		CreatedAt: s.now().UTC(),
		IsActive:  true,
	}
	return nil
}

// GetUser возвращает копию пользователя.
func (s *Store) GetUser(ctx context.Context, userID int64) (*models.User, error) {
	const op = "storage.memory.GetUser"
	if err := ctx.Err(); err != nil {
		return nil, storage.Wrap(op, err)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[userID]
	if !ok {
		return nil, fmt.Errorf("%s: %w", op, storage.ErrUserNotFound)
	}
	cp := *u
	return &cp, nil
}

// RecordPurchase деактивирует активные подписки пользователя и добавляет новую.
func (s *Store) RecordPurchase(ctx context.Context, p models.Purchase, now time.Time) (*models.Subscription, error) {
	const op = "storage.memory.RecordPurchase"
	if err := ctx.Err(); err != nil {
		return nil, storage.Wrap(op, err)
	}

	unlock := s.lockUser(p.UserID)
	defer unlock()

	if p.ExternalTxnID != "" {
		existing, err := s.FindByExternalTxnID(ctx, p.ExternalTxnID)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			return existing, fmt.Errorf("%s: %w", op, storage.ErrDuplicateTransaction)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// повторная проверка: тот же идентификатор мог прийти для другого пользователя
	if id, ok := s.byTxn[p.ExternalTxnID]; ok && p.ExternalTxnID != "" {
		cp := *s.subs[id]
		return &cp, fmt.Errorf("%s: %w", op, storage.ErrDuplicateTransaction)
	}

	if _, ok := s.users[p.UserID]; !ok {
		s.users[p.UserID] = &models.User{ID: p.UserID, CreatedAt: now.UTC(), IsActive: true}
	}

	for _, id := range s.byUser[p.UserID] {
		s.subs[id].IsActive = false
	}

	s.nextID++
	start := now.UTC()
	sub := &models.Subscription{
		ID:            s.nextID,
		UserID:        p.UserID,
		Plan:          p.Plan,
		AmountPaid:    p.AmountPaid,
		StartDate:     start,
		EndDate:       days.Add(start, p.DurationDays),
		IsActive:      true,
		ExternalTxnID: p.ExternalTxnID,
	}
	s.subs[sub.ID] = sub
	s.byUser[p.UserID] = append(s.byUser[p.UserID], sub.ID)
	if p.ExternalTxnID != "" {
		s.byTxn[p.ExternalTxnID] = sub.ID
	}

	cp := *sub
	return &cp, nil
}

// FetchActiveEntitlement возвращает действующую в момент now подписку с самой
// поздней датой окончания или nil, nil.
func (s *Store) FetchActiveEntitlement(ctx context.Context, userID int64, now time.Time) (*models.Subscription, error) {
	const op = "storage.memory.FetchActiveEntitlement"
	if err := ctx.Err(); err != nil {
		return nil, storage.Wrap(op, err)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var best *models.Subscription
	for _, id := range s.byUser[userID] {
		sub := s.subs[id]
		if !sub.Entitles(now) {
			continue
		}
		if best == nil || sub.EndDate.After(best.EndDate) {
			best = sub
		}
	}
	if best == nil {
		return nil, nil
	}
	cp := *best
	return &cp, nil
}

// FindByExternalTxnID возвращает подписку по идентификатору транзакции или nil, nil.
func (s *Store) FindByExternalTxnID(ctx context.Context, txnID string) (*models.Subscription, error) {
	const op = "storage.memory.FindByExternalTxnID"
	if err := ctx.Err(); err != nil {
		return nil, storage.Wrap(op, err)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byTxn[txnID]
	if !ok {
		return nil, nil
	}
	cp := *s.subs[id]
	return &cp, nil
}

// CountUsers возвращает количество пользователей.
func (s *Store) CountUsers(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, storage.Wrap("storage.memory.CountUsers", err)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.users), nil
}

// CountActiveEntitlements считает подписки, действующие в момент now.
func (s *Store) CountActiveEntitlements(ctx context.Context, now time.Time) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, storage.Wrap("storage.memory.CountActiveEntitlements", err)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	count := 0
	for _, sub := range s.subs {
		if sub.Entitles(now) {
			count++
		}
	}
	return count, nil
}

// ListExpiringBetween возвращает активные подписки с окончанием в интервале (from, to].
func (s *Store) ListExpiringBetween(ctx context.Context, from, to time.Time) ([]*models.Subscription, error) {
	if err := ctx.Err(); err != nil {
		return nil, storage.Wrap("storage.memory.ListExpiringBetween", err)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*models.Subscription
	for _, sub := range s.subs {
		if sub.Entitles(from) && !sub.EndDate.After(to) {
			cp := *sub
			result = append(result, &cp)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].EndDate.Before(result[j].EndDate) })
	return result, nil
}

// Subscriptions возвращает все записи пользователя в порядке создания.
func (s *Store) Subscriptions(userID int64) []models.Subscription {
	s.mu.RLock()
	defer s.mu.RUnlock()

	res := make([]models.Subscription, 0, len(s.byUser[userID]))
	for _, id := range s.byUser[userID] {
		res = append(res, *s.subs[id])
	}
	return res
}

// Ping всегда успешен.
func (s *Store) Ping(_ context.Context) error {
	return nil
}

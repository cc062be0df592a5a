// Package cache хранит в Redis действующие подписки пользователей.
// В кэш попадает сама запись, статус всегда пересчитывается от текущего времени.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/magabrotheeeer/premium-entitlements/internal/config"
	"github.com/magabrotheeeer/premium-entitlements/internal/models"
)

const entitlementPrefix = "entitlement:"

// Cache обёртка над клиентом Redis.
type Cache struct {
	Db  *redis.Client
	ttl time.Duration
}

// InitServer подключается к Redis и проверяет соединение.
func InitServer(ctx context.Context, cfg config.RedisConnection) (*Cache, error) {
	const op = "cache.InitServer"
	db := redis.NewClient(&redis.Options{
		Addr:         cfg.AddressRedis,
		Password:     cfg.Password,
		DB:           cfg.DB,
		Username:     cfg.User,
		MaxRetries:   cfg.MaxRetries,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.TimeoutRedis,
		WriteTimeout: cfg.TimeoutRedis,
	})

	if err := db.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return New(db, cfg.EntitlementTTL), nil
}

// New оборачивает готовый клиент. ttl задаёт верхнюю границу жизни записи в кэше.
func New(db *redis.Client, ttl time.Duration) *Cache {
	return &Cache{Db: db, ttl: ttl}
}

// EntitlementKey ключ записи о подписке пользователя.
func EntitlementKey(userID int64) string {
	return entitlementPrefix + strconv.FormatInt(userID, 10)
}

func (c *Cache) Get(ctx context.Context, key string, result any) (bool, error) {
	const op = "cache.Get"
	val, err := c.Db.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	if err = json.Unmarshal([]byte(val), result); err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	return true, nil
}

func (c *Cache) Invalidate(ctx context.Context, key string) error {
	const op = "cache.Invalidate"
	if err := c.Db.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// GetEntitlement возвращает закэшированную запись о подписке пользователя.
func (c *Cache) GetEntitlement(ctx context.Context, userID int64) (*models.Subscription, bool, error) {
	var sub models.Subscription
	found, err := c.Get(ctx, EntitlementKey(userID), &sub)
	if err != nil || !found {
		return nil, false, err
	}
	return &sub, true, nil
}

// setNewerScript записывает запись, если в кэше нет записи с большим id.
// id записей одного пользователя растут в порядке фиксации покупок.
var setNewerScript = redis.NewScript(`
local cur = redis.call('GET', KEYS[1])
if cur then
	local ok, rec = pcall(cjson.decode, cur)
	if ok and type(rec) == 'table' and tonumber(rec['id']) and tonumber(rec['id']) > tonumber(ARGV[2]) then
		return 0
	end
end
redis.call('SET', KEYS[1], ARGV[1], 'PX', ARGV[3])
return 1
`)

func (c *Cache) entitlementTTL(sub *models.Subscription, now time.Time) time.Duration {
	ttl := c.ttl
	if left := sub.EndDate.Sub(now); left < ttl {
		ttl = left
	}
	return ttl
}

// SetEntitlement кладёт только что выданную запись в кэш, заменяя прежнюю,
// если там не лежит более новая. Время жизни не превышает срок подписки,
// истёкшие записи не кэшируются.
func (c *Cache) SetEntitlement(ctx context.Context, sub *models.Subscription, now time.Time) error {
	const op = "cache.SetEntitlement"
	ttl := c.entitlementTTL(sub, now)
	if ttl <= 0 {
		return nil
	}
	data, err := json.Marshal(sub)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	err = setNewerScript.Run(ctx, c.Db, []string{EntitlementKey(sub.UserID)},
		string(data), sub.ID, ttl.Milliseconds()).Err()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// SetEntitlementNX кладёт прочитанную из хранилища запись, только если ключа ещё нет.
// Чтение, начатое до покупки, не перезапишет запись, положенную при выдаче.
func (c *Cache) SetEntitlementNX(ctx context.Context, sub *models.Subscription, now time.Time) error {
	const op = "cache.SetEntitlementNX"
	ttl := c.entitlementTTL(sub, now)
	if ttl <= 0 {
		return nil
	}
	data, err := json.Marshal(sub)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if err := c.Db.SetNX(ctx, EntitlementKey(sub.UserID), data, ttl).Err(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// InvalidateEntitlement удаляет запись пользователя из кэша.
func (c *Cache) InvalidateEntitlement(ctx context.Context, userID int64) error {
	return c.Invalidate(ctx, EntitlementKey(userID))
}

// Close закрывает соединение с Redis.
func (c *Cache) Close() error {
	return c.Db.Close()
}

// cache реализует session-кэш refresh-токенов: на пользователя хранится
// ровно один действующий refresh-токен (ключ — ID пользователя).
//
// Кэш — вспомогательный механизм отзыва, а не источник истины:
// вызывающая сторона обязана переживать его недоступность (fail-open).
// Поэтому контракт возвращает определённый результат для каждой операции,
// а ограничение времени на поход в Redis зашито внутрь реализации —
// ни одна точка вызова не обязана проверять «готовность» клиента.
package cache

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrUnavailable — операция кэша не выполнена (соединение/таймаут).
// Вызывающая сторона трактует это как отсутствие записи (fail-open).
var ErrUnavailable = errors.New("session cache unavailable")

// SessionCache — минимальный контракт кэша сессий.
type SessionCache interface {
	// Current возвращает действующий refresh-токен пользователя и признак наличия записи.
	Current(ctx context.Context, userID uuid.UUID) (string, bool, error)
	// Store сохраняет токен как единственный действующий, перезаписывая предыдущий (ротация).
	Store(ctx context.Context, userID uuid.UUID, token string, ttl time.Duration) error
	// Drop удаляет запись пользователя; отсутствие ключа ошибкой не считается.
	Drop(ctx context.Context, userID uuid.UUID) error
	// Close закрывает клиент.
	Close() error
}

type redisCache struct {
	rdb     *redis.Client
	prefix  string
	timeout time.Duration
}

// NewRedisCache создаёт клиент Redis из URL (например, redis://:pass@host:6379/0).
// Если prefix пустой — используется "auth:session:". opTimeout ограничивает
// каждую операцию; значение <=0 заменяется на 300ms.
func NewRedisCache(redisURL, prefix string, opTimeout time.Duration) (SessionCache, error) {
	if prefix == "" {
		prefix = "auth:session:"
	}
	if opTimeout <= 0 {
		opTimeout = 300 * time.Millisecond
	}

	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}

	rdb := redis.NewClient(opt)

	// Fail-fast на старте.
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		_ = rdb.Close()
		return nil, err
	}

	return &redisCache{rdb: rdb, prefix: prefix, timeout: opTimeout}, nil
}

func (c *redisCache) key(userID uuid.UUID) string { return c.prefix + userID.String() }

// bound ограничивает операцию собственным таймаутом кэша,
// не перекрывая более короткий дедлайн запроса, если он уже есть.
func (c *redisCache) bound(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, c.timeout)
}

func (c *redisCache) Current(ctx context.Context, userID uuid.UUID) (string, bool, error) {
	ctx, cancel := c.bound(ctx)
	defer cancel()

	val, err := c.rdb.Get(ctx, c.key(userID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", false, nil
		}

		return "", false, errors.Join(ErrUnavailable, err)
	}

	return val, true, nil
}

func (c *redisCache) Store(ctx context.Context, userID uuid.UUID, token string, ttl time.Duration) error {
	ctx, cancel := c.bound(ctx)
	defer cancel()

	if err := c.rdb.Set(ctx, c.key(userID), token, ttl).Err(); err != nil {
		return errors.Join(ErrUnavailable, err)
	}

	return nil
}

func (c *redisCache) Drop(ctx context.Context, userID uuid.UUID) error {
	ctx, cancel := c.bound(ctx)
	defer cancel()

	// DEL несуществующего ключа — не ошибка: logout идемпотентен.
	if err := c.rdb.Del(ctx, c.key(userID)).Err(); err != nil {
		return errors.Join(ErrUnavailable, err)
	}

	return nil
}

func (c *redisCache) Close() error { return c.rdb.Close() }

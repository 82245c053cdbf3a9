// service содержит бизнес-логику ядра аутентификации:
// регистрацию/вход пользователей, выпуск/проверку токенов, ротацию
// refresh-токенов через session-кэш и работу с хранилищем через
// интерфейсы из пакета storage.
//
// Основные аспекты:
//   - Пакет не хранит состояние запроса внутри Service; экземпляр Service
//     безопасен для конкурентного использования из разных горутин при условии,
//     что переданные зависимости (storage.Storage, cache.SessionCache)
//     потокобезопасны.
//   - Session-кэш опционален (может быть nil) и используется best-effort:
//     его недоступность логируется и не валит операцию (fail-open) — ценой
//     ослабленной гарантии отзыва.
//   - Конкурентные refresh по одному пользователю намеренно не сериализуются:
//     перезапись записи в кэше работает по принципу «последний победил».
package service

import (
	"errors"

	"github.com/mindscape-dev/mindscape-backend/internal/cache"
	"github.com/mindscape-dev/mindscape-backend/internal/config"
	"github.com/mindscape-dev/mindscape-backend/internal/storage"
)

var (
	// ErrInvalidCredentials — пара email/пароль неверна или пользователь не найден.
	// Намеренно не различаем эти случаи. HTTP: 401.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrInvalidToken — токен (access/refresh) некорректен по формату/подписи.
	// HTTP: 401.
	ErrInvalidToken = errors.New("invalid token")

	// ErrTokenExpired — срок действия токена истёк. Отличается от ErrInvalidToken
	// только для логирования; для клиента оба случая — 401.
	ErrTokenExpired = errors.New("token expired")

	// ErrTokenSuperseded — криптографически валидный refresh-токен, вытесненный
	// более поздним login/refresh (в кэше лежит другой). HTTP: 401.
	ErrTokenSuperseded = errors.New("token superseded")

	// ErrUserNotFound — пользователь, на которого указывает токен, больше
	// не существует или деактивирован. Для клиента неотличим от невалидного
	// токена. HTTP: 401.
	ErrUserNotFound = errors.New("user not found")

	// ErrUserExists — email или username уже заняты. HTTP: 409.
	ErrUserExists = errors.New("user already exists")

	// ErrInvalidEmail — email имеет некорректный формат. HTTP: 400.
	ErrInvalidEmail = errors.New("invalid email format")

	// ErrInvalidUsername — username короче 3 символов. HTTP: 400.
	ErrInvalidUsername = errors.New("invalid username")

	// ErrWeakPassword — пароль короче минимальной длины. HTTP: 400.
	ErrWeakPassword = errors.New("password is too weak")

	// ErrEmptyPassword — пароль пустой. HTTP: 400.
	ErrEmptyPassword = errors.New("password is empty")
)

// Service описывает бизнес-логику ядра аутентификации.
type Service struct {
	storage  storage.Storage
	cfg      config.AuthConfig
	sessions cache.SessionCache // может быть nil, если кэш не сконфигурирован
}

// New создаёт новый экземпляр Service.
func New(storage storage.Storage, cfg config.AuthConfig) *Service {
	return &Service{
		storage: storage,
		cfg:     cfg,
	}
}

// SetSessionCache устанавливает session-кэш refresh-токенов (опционально).
func (s *Service) SetSessionCache(c cache.SessionCache) {
	s.sessions = c
}

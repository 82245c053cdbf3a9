// storage задаёт контракт хранилища учётных записей.
// Конкретные реализации живут в подпакетах (см. storage/postgres).
package storage

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/mindscape-dev/mindscape-backend/internal/models"
)

var (
	// ErrNotFound — запись не найдена.
	ErrNotFound = errors.New("not found")
	// ErrAlreadyExists — нарушение уникальности (email/username).
	ErrAlreadyExists = errors.New("already exists")
)

// Storage выполняет операции над пользователями.
type Storage interface {
	// SaveUser создает нового пользователя в БД.
	SaveUser(ctx context.Context, user *models.User) error
	// UserByEmail находит пользователя по email (в нормализованном нижнем регистре).
	UserByEmail(ctx context.Context, email string) (*models.User, error)
	// UserByID находит пользователя по ID.
	UserByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	// UpdatePassword заменяет хэш пароля пользователя.
	UpdatePassword(ctx context.Context, id uuid.UUID, passwordHash string) error
	// Close освобождает ресурсы хранилища.
	Close()
}

package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Role — роль пользователя в системе.
type Role string

const (
	RoleUser      Role = "user"
	RoleCounselor Role = "counselor"
	RoleAdmin     Role = "admin"
)

// Valid сообщает, входит ли роль в список известных.
func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleCounselor, RoleAdmin:
		return true
	}

	return false
}

// User — модель пользователя в системе.
// PasswordHash никогда не отдается наружу: для ответов API используется Public().
type User struct {
	ID           uuid.UUID
	Username     string
	Email        string
	PasswordHash string
	FirstName    string
	LastName     string
	Role         Role
	IsActive     bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// PublicUser — представление пользователя для ответов API (без хэша пароля).
type PublicUser struct {
	ID        uuid.UUID `json:"id"`
	Username  string    `json:"username"`
	Email     string    `json:"email"`
	FirstName string    `json:"first_name,omitempty"`
	LastName  string    `json:"last_name,omitempty"`
	Role      Role      `json:"role"`
	CreatedAt time.Time `json:"created_at"`
}

// Public возвращает безопасное для выдачи наружу представление пользователя.
func (u *User) Public() PublicUser {
	return PublicUser{
		ID:        u.ID,
		Username:  u.Username,
		Email:     u.Email,
		FirstName: u.FirstName,
		LastName:  u.LastName,
		Role:      u.Role,
		CreatedAt: u.CreatedAt,
	}
}

// UserSummary — краткое представление пользователя для realtime-событий.
type UserSummary struct {
	ID   uuid.UUID `json:"id"`
	Name string    `json:"name"`
}

// Summary возвращает краткое представление: "Имя Фамилия",
// либо username, если имя не заполнено.
func (u *User) Summary() UserSummary {
	name := strings.TrimSpace(u.FirstName + " " + u.LastName)
	if name == "" {
		name = u.Username
	}

	return UserSummary{ID: u.ID, Name: name}
}

package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/mindscape-dev/mindscape-backend/internal/http/httperr"
	"github.com/mindscape-dev/mindscape-backend/internal/models"
	"github.com/mindscape-dev/mindscape-backend/internal/service"
)

// Identity — результат проверки access-токена: кто и с какой ролью.
type Identity struct {
	UserID uuid.UUID
	Role   models.Role
}

// Verifier проверяет access-токен и возвращает идентичность владельца.
// Реализуется service.Service; интерфейс нужен тестам мидлвара.
type Verifier interface {
	Authenticate(accessToken string) (uuid.UUID, models.Role, error)
}

type ctxKey int

const ctxIdentity ctxKey = iota

// IdentityFrom извлекает идентичность из контекста запроса.
// Возвращает false вне цепочки Authenticate.
func IdentityFrom(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(ctxIdentity).(Identity)
	return id, ok
}

// Authenticate извлекает Bearer-токен из Authorization, проверяет подпись
// и срок действия и кладёт Identity в контекст. Запрос без валидного
// токена завершается 401 и до обработчика не доходит.
//
// Кэш сессий здесь не участвует: access-токен самодостаточен до истечения.
func Authenticate(v Verifier) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := bearerToken(r)
			if token == "" {
				httperr.WriteError(w, r, service.ErrInvalidToken)
				return
			}

			userID, role, err := v.Authenticate(token)
			if err != nil {
				httperr.WriteError(w, r, err)
				return
			}

			ctx := context.WithValue(r.Context(), ctxIdentity, Identity{
				UserID: userID,
				Role:   role,
			})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// bearerToken достаёт токен из "Authorization: Bearer <token>".
func bearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if auth == "" {
		return ""
	}

	const prefix = "Bearer "
	if !strings.HasPrefix(auth, prefix) {
		return ""
	}

	return strings.TrimSpace(auth[len(prefix):])
}

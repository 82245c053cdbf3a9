// httperr стандартизирует ответы об ошибках HTTP-слоя.
// На вход он принимает ошибку бизнес-слоя (сентинелы пакета service),
// а на выход даёт:
//   - корректный HTTP-статус;
//   - краткое безопасное message без утечки деталей.
//
// Внутренние подробности (какое поле не прошло сравнение, чем именно плох
// токен) наружу не отдаются никогда — только логируются на сервере.
package httperr

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/mindscape-dev/mindscape-backend/internal/service"
)

// APIError — единый формат ошибки для фронта.
// Code — короткий стабильный код для машиночитаемой обработки на FE.
// Message — безопасное человекочитаемое описание.
// RequestID — прокидывается из X-Request-Id, если есть (для трассировки).
type APIError struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"request_id,omitempty"`
}

// ErrorResponse — корневой объект в ответе.
type ErrorResponse struct {
	Error APIError `json:"error"`
}

// ErrBadRequest — локальная ошибка разбора входного тела запроса.
var ErrBadRequest = errors.New("bad request")

// ToHTTP конвертирует ошибку бизнес-слоя в HTTP-статус и унифицированный ответ.
//
// Поведение:
//   - err == nil — это программная ошибка вызова: возвращаем 500/internal,
//     чтобы не послать "200 OK" с телом ошибки и не маскировать баг;
//   - токенные ошибки (invalid/expired/superseded) и «пользователь исчез»
//     схлопываются в один 401/invalid_token — клиенту различие не нужно;
//   - InvalidCredentials -> 401 с отдельным кодом (клиент показывает форму
//     логина, а не инициирует refresh);
//   - прочее -> 500/internal (без утечки деталей).
func ToHTTP(err error) (int, ErrorResponse) {
	switch {
	case err == nil:
		return internal()

	case errors.Is(err, service.ErrInvalidCredentials):
		return respond(http.StatusUnauthorized, "invalid_credentials", "invalid credentials")

	case errors.Is(err, service.ErrInvalidToken),
		errors.Is(err, service.ErrTokenExpired),
		errors.Is(err, service.ErrTokenSuperseded),
		errors.Is(err, service.ErrUserNotFound):
		return respond(http.StatusUnauthorized, "invalid_token", "invalid or expired token")

	case errors.Is(err, service.ErrUserExists):
		return respond(http.StatusConflict, "already_exists", "user with this email or username already exists")

	case errors.Is(err, service.ErrInvalidEmail),
		errors.Is(err, service.ErrInvalidUsername),
		errors.Is(err, service.ErrWeakPassword),
		errors.Is(err, service.ErrEmptyPassword),
		errors.Is(err, ErrBadRequest):
		return respond(http.StatusBadRequest, "invalid_argument", "invalid argument")

	case errors.Is(err, context.DeadlineExceeded):
		return respond(http.StatusGatewayTimeout, "deadline_exceeded", "deadline exceeded")

	default:
		return internal()
	}
}

// WriteError — хелпер для HTTP-хендлеров.
// Пишет корректный статус/тело, добавляет request_id из заголовка, если он есть.
func WriteError(w http.ResponseWriter, r *http.Request, err error) {
	status, resp := ToHTTP(err)

	// Прокидываем request_id для фронта, чтобы он мог репортить баги с привязкой.
	if rid := r.Header.Get("X-Request-Id"); rid != "" {
		resp.Error.RequestID = rid
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(resp)
}

func respond(status int, code, msg string) (int, ErrorResponse) {
	return status, ErrorResponse{Error: APIError{Code: code, Message: msg}}
}

func internal() (int, ErrorResponse) {
	return respond(http.StatusInternalServerError, "internal", "internal error")
}

package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/mindscape-dev/mindscape-backend/internal/http/handlers"
	"github.com/mindscape-dev/mindscape-backend/internal/http/middleware"
	"github.com/mindscape-dev/mindscape-backend/internal/service"
)

// Options — параметры сборки HTTP-роутера.
type Options struct {
	Logger   *slog.Logger
	Timeout  time.Duration
	BasePath string // например, "/api"; если пустой — роуты регистрируются на корне.
}

// NewRouter собирает http.Handler с chi и подключёнными middleware/роутами.
// realtime — обработчик websocket-рукопожатия (GET /ws); может быть nil,
// тогда маршрут не регистрируется.
func NewRouter(svc *service.Service, realtime http.Handler, opts Options) http.Handler {
	root := chi.NewRouter()

	// Middleware (внешний -> внутренний).
	root.Use(
		middleware.Recover(),            // безопасно ловим паники
		middleware.RequestID(),          // формируем/прокидываем X-Request-Id (до логирования!)
		middleware.Logging(opts.Logger), // кладём request-scoped логгер в контекст и логируем
	)
	if opts.Timeout > 0 {
		root.Use(middleware.Timeout(opts.Timeout)) // общий дедлайн запроса
	}

	h := handlers.New(svc)

	register := func(r chi.Router) {
		registerRoutes(r, h, svc, realtime)
	}

	if opts.BasePath != "" {
		sub := chi.NewRouter()
		register(sub)
		root.Mount(opts.BasePath, sub)
		return root
	}

	register(root)
	return root
}

// registerRoutes — единая точка регистрации всех REST-эндпойнтов.
func registerRoutes(r chi.Router, h *handlers.Handlers, svc *service.Service, realtime http.Handler) {
	// Публичные маршруты.
	r.Post("/auth/register", h.RegisterUser)
	r.Post("/auth/login", h.LoginUser)
	r.Post("/auth/refresh-token", h.RefreshToken)

	// Маршруты под access-токеном.
	r.Group(func(r chi.Router) {
		r.Use(middleware.Authenticate(svc))

		r.Post("/auth/logout", h.Logout)
		r.Get("/auth/me", h.Me)
		r.Put("/auth/change-password", h.ChangePassword)
	})

	// Websocket-рукопожатие делает собственную проверку токена
	// (токен приходит и через query), поэтому живёт вне Authenticate.
	if realtime != nil {
		r.Get("/ws", realtime.ServeHTTP)
	}
}

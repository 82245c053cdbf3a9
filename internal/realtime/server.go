package realtime

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/mindscape-dev/mindscape-backend/internal/config"
	"github.com/mindscape-dev/mindscape-backend/internal/http/httperr"
	"github.com/mindscape-dev/mindscape-backend/internal/models"
	"github.com/mindscape-dev/mindscape-backend/internal/pkg/log"
	"github.com/mindscape-dev/mindscape-backend/internal/service"
)

// AuthService — часть бизнес-слоя, нужная рукопожатию.
// Реализуется service.Service.
type AuthService interface {
	Authenticate(accessToken string) (uuid.UUID, models.Role, error)
	UserByID(ctx context.Context, id uuid.UUID) (*models.User, error)
}

// Server принимает websocket-рукопожатия на GET /ws.
//
// Токен приходит в query (?token=...) или в Authorization: Bearer.
// Проверка — до upgrade: невалидный токен или исчезнувший пользователь
// получают обычный HTTP 401, ни один обработчик событий для такого
// подключения не запускается.
type Server struct {
	svc      AuthService
	hub      *Hub
	cfg      config.RealtimeConfig
	upgrader websocket.Upgrader
}

func NewServer(svc AuthService, hub *Hub, cfg config.RealtimeConfig) *Server {
	return &Server{
		svc: svc,
		hub: hub,
		cfg: cfg,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Шлюз стоит за собственным auth-рукопожатием; ограничение
			// origin — забота внешнего периметра.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	token := handshakeToken(r)
	if token == "" {
		httperr.WriteError(w, r, service.ErrInvalidToken)
		return
	}

	userID, _, err := s.svc.Authenticate(token)
	if err != nil {
		httperr.WriteError(w, r, err)
		return
	}

	user, err := s.svc.UserByID(ctx, userID)
	if err != nil {
		httperr.WriteError(w, r, err)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade сам ответил клиенту; остаётся залогировать.
		log.From(ctx).LogAttrs(ctx, slog.LevelWarn, "ws_upgrade_failed",
			slog.String("err", err.Error()))
		return
	}

	c := newClient(s.hub, conn, user.Summary(), s.cfg)

	// Персональная комната — адресная доставка "в пользователя".
	s.hub.Join(personalRoom(userID), c)

	connectionsActive.Inc()
	log.From(ctx).LogAttrs(ctx, slog.LevelInfo, "ws_connected",
		slog.String("user_id", userID.String()),
	)

	// После upgrade соединение перехвачено: контекст запроса больше не
	// управляет его временем жизни, пампы живут до ошибки чтения/записи.
	go c.writePump()
	c.readPump(context.WithoutCancel(ctx))
}

// handshakeToken достаёт токен из query или заголовка Authorization.
func handshakeToken(r *http.Request) string {
	if token := r.URL.Query().Get("token"); token != "" {
		return token
	}

	auth := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if strings.HasPrefix(auth, prefix) {
		return strings.TrimSpace(auth[len(prefix):])
	}

	return ""
}

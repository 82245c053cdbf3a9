package realtime

// Интеграционные тесты websocket-шлюза: httptest + реальный gorilla-клиент,
// бизнес-слой на моках хранилища. Проверяем рукопожатие, правила рассылки
// и деградацию на кривом входе.

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/mindscape-dev/mindscape-backend/internal/config"
	"github.com/mindscape-dev/mindscape-backend/internal/models"
	"github.com/mindscape-dev/mindscape-backend/internal/service"
	"github.com/mindscape-dev/mindscape-backend/internal/storage"
	"github.com/mindscape-dev/mindscape-backend/mocks"
)

func testRealtimeConfig() config.RealtimeConfig {
	return config.RealtimeConfig{
		PingInterval:   200 * time.Millisecond,
		WriteTimeout:   time.Second,
		MaxMessageSize: 65536,
		SendBuffer:     16,
	}
}

func testAuthConfig() config.AuthConfig {
	return config.AuthConfig{
		JWTSecret:       "test-secret-0123456789",
		AccessTokenTTL:  time.Hour,
		RefreshTokenTTL: 7 * 24 * time.Hour,
		Issuer:          "mindscape-backend",
		Audience:        []string{"mindscape-client"},
	}
}

type wsEnv struct {
	srv *httptest.Server
	svc *service.Service
	ms  *mocks.MockStorage
}

func newWSEnv(t *testing.T) *wsEnv {
	t.Helper()

	ctrl := gomock.NewController(t)
	t.Cleanup(ctrl.Finish)

	ms := mocks.NewMockStorage(ctrl)
	svc := service.New(ms, testAuthConfig())

	srv := httptest.NewServer(NewServer(svc, NewHub(), testRealtimeConfig()))
	t.Cleanup(srv.Close)

	return &wsEnv{srv: srv, svc: svc, ms: ms}
}

// newWSUser — пользователь + валидный access-токен; хендшейк-лукапы замоканы.
func (e *wsEnv) newWSUser(t *testing.T, username, first, last string) (*models.User, string) {
	t.Helper()

	hash, err := bcrypt.GenerateFromPassword([]byte("password123"), bcrypt.MinCost)
	require.NoError(t, err)

	now := time.Now().UTC()
	user := &models.User{
		ID:           uuid.New(),
		Username:     username,
		Email:        username + "@example.com",
		PasswordHash: string(hash),
		FirstName:    first,
		LastName:     last,
		Role:         models.RoleUser,
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	e.ms.EXPECT().UserByEmail(gomock.Any(), user.Email).Return(user, nil)
	e.ms.EXPECT().UserByID(gomock.Any(), user.ID).Return(user, nil).AnyTimes()

	pair, _, err := e.svc.LoginUser(context.Background(), user.Email, "password123")
	require.NoError(t, err)

	return user, pair.AccessToken
}

func (e *wsEnv) wsURL(query string) string {
	u := "ws" + strings.TrimPrefix(e.srv.URL, "http")
	if query != "" {
		u += "?" + query
	}
	return u
}

func (e *wsEnv) dial(t *testing.T, token string) *websocket.Conn {
	t.Helper()

	conn, resp, err := websocket.DefaultDialer.Dial(e.wsURL("token="+token), nil)
	require.NoError(t, err)
	if resp != nil {
		resp.Body.Close()
	}
	t.Cleanup(func() { conn.Close() })

	return conn
}

func sendEvent(t *testing.T, conn *websocket.Conn, event string, data any) {
	t.Helper()

	raw, err := json.Marshal(data)
	require.NoError(t, err)

	payload, err := json.Marshal(Envelope{Event: event, Data: raw})
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, payload))
}

// readEvent ждёт следующий конверт не дольше двух секунд.
func readEvent(t *testing.T, conn *websocket.Conn) Envelope {
	t.Helper()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, raw, err := conn.ReadMessage()
	require.NoError(t, err)

	var env Envelope
	require.NoError(t, json.Unmarshal(raw, &env))
	return env
}

// joinAndSync вступает в комнату и дожидается эха собственного сообщения —
// подтверждение, что join обработан (у join нет явного ack).
func joinAndSync(t *testing.T, conn *websocket.Conn, roomID string) {
	t.Helper()

	sendEvent(t, conn, EventJoin, map[string]string{"room_id": roomID})
	sendEvent(t, conn, EventMessage, map[string]string{
		"room_id": roomID,
		"content": "sync",
	})

	env := readEvent(t, conn)
	require.Equal(t, EventMessage, env.Event)
}

// expectNoEvent проверяет тишину на соединении в коротком окне.
func expectNoEvent(t *testing.T, conn *websocket.Conn) {
	t.Helper()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(150*time.Millisecond)))
	_, _, err := conn.ReadMessage()
	require.Error(t, err) // ожидаем timeout
}

func TestHandshake_MissingToken_401(t *testing.T) {
	e := newWSEnv(t)

	_, resp, err := websocket.DefaultDialer.Dial(e.wsURL(""), nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	defer resp.Body.Close()
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestHandshake_GarbageToken_401(t *testing.T) {
	e := newWSEnv(t)

	_, resp, err := websocket.DefaultDialer.Dial(e.wsURL("token=not-a-jwt"), nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	defer resp.Body.Close()
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

// Токен валиден, но пользователь исчез из хранилища.
func TestHandshake_DeletedUser_401(t *testing.T) {
	e := newWSEnv(t)

	hash, err := bcrypt.GenerateFromPassword([]byte("password123"), bcrypt.MinCost)
	require.NoError(t, err)

	now := time.Now().UTC()
	ghost := &models.User{
		ID:           uuid.New(),
		Username:     "ghost",
		Email:        "ghost@example.com",
		PasswordHash: string(hash),
		Role:         models.RoleUser,
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	e.ms.EXPECT().UserByEmail(gomock.Any(), ghost.Email).Return(ghost, nil)
	pair, _, err := e.svc.LoginUser(context.Background(), ghost.Email, "password123")
	require.NoError(t, err)

	// К моменту хендшейка пользователя больше нет.
	e.ms.EXPECT().UserByID(gomock.Any(), ghost.ID).Return(nil, storage.ErrNotFound)

	_, resp, err := websocket.DefaultDialer.Dial(e.wsURL("token="+pair.AccessToken), nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	defer resp.Body.Close()
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestHandshake_BearerHeader(t *testing.T) {
	e := newWSEnv(t)

	_, token := e.newWSUser(t, "bearer", "Bearer", "User")

	conn, resp, err := websocket.DefaultDialer.Dial(e.wsURL(""), http.Header{
		"Authorization": []string{"Bearer " + token},
	})
	require.NoError(t, err)
	resp.Body.Close()
	conn.Close()
}

func TestMessage_FanOut_IncludesSender(t *testing.T) {
	e := newWSEnv(t)

	userA, tokenA := e.newWSUser(t, "alice", "Alice", "A")
	_, tokenB := e.newWSUser(t, "bob", "Bob", "B")

	connA := e.dial(t, tokenA)
	connB := e.dial(t, tokenB)

	joinAndSync(t, connA, "room1")
	sendEvent(t, connB, EventJoin, map[string]string{"room_id": "room1"})

	// A видит вход B — значит, оба в комнате.
	env := readEvent(t, connA)
	require.Equal(t, EventUserJoined, env.Event)

	var joined PresenceEvent
	require.NoError(t, json.Unmarshal(env.Data, &joined))
	require.Equal(t, "room1", joined.RoomID)
	require.Equal(t, "Bob B", joined.User.Name)

	sendEvent(t, connA, EventMessage, map[string]string{
		"room_id": "room1",
		"content": "hello room",
	})

	for _, conn := range []*websocket.Conn{connA, connB} {
		env := readEvent(t, conn)
		require.Equal(t, EventMessage, env.Event)

		var msg MessageEvent
		require.NoError(t, json.Unmarshal(env.Data, &msg))
		require.NotEmpty(t, msg.ID)
		require.Equal(t, "room1", msg.RoomID)
		require.Equal(t, "hello room", msg.Content)
		require.Equal(t, DefaultMessageType, msg.Type) // тип по умолчанию
		require.Equal(t, userA.ID, msg.User.ID)
		require.False(t, msg.Timestamp.IsZero())
	}
}

func TestTyping_NotEchoedToActor(t *testing.T) {
	e := newWSEnv(t)

	userA, tokenA := e.newWSUser(t, "alice", "Alice", "A")
	_, tokenB := e.newWSUser(t, "bob", "Bob", "B")

	connA := e.dial(t, tokenA)
	connB := e.dial(t, tokenB)

	joinAndSync(t, connA, "room1")
	sendEvent(t, connB, EventJoin, map[string]string{"room_id": "room1"})
	require.Equal(t, EventUserJoined, readEvent(t, connA).Event)

	sendEvent(t, connA, EventTyping, map[string]any{
		"room_id":   "room1",
		"is_typing": true,
	})

	env := readEvent(t, connB)
	require.Equal(t, EventTyping, env.Event)

	var typing TypingEvent
	require.NoError(t, json.Unmarshal(env.Data, &typing))
	require.Equal(t, userA.ID, typing.User.ID)
	require.True(t, typing.IsTyping)

	// Сам печатающий эха не получает.
	expectNoEvent(t, connA)
}

func TestLeave_BroadcastsUserLeft(t *testing.T) {
	e := newWSEnv(t)

	_, tokenA := e.newWSUser(t, "alice", "Alice", "A")
	userB, tokenB := e.newWSUser(t, "bob", "Bob", "B")

	connA := e.dial(t, tokenA)
	connB := e.dial(t, tokenB)

	joinAndSync(t, connA, "room1")
	sendEvent(t, connB, EventJoin, map[string]string{"room_id": "room1"})
	require.Equal(t, EventUserJoined, readEvent(t, connA).Event)

	sendEvent(t, connB, EventLeave, map[string]string{"room_id": "room1"})

	env := readEvent(t, connA)
	require.Equal(t, EventUserLeft, env.Event)

	var left PresenceEvent
	require.NoError(t, json.Unmarshal(env.Data, &left))
	require.Equal(t, "room1", left.RoomID)
	require.Equal(t, userB.ID, left.User.ID)
}

// Обрыв соединения эквивалентен leave из каждой комнаты.
func TestDisconnect_BroadcastsUserLeft(t *testing.T) {
	e := newWSEnv(t)

	_, tokenA := e.newWSUser(t, "alice", "Alice", "A")
	userB, tokenB := e.newWSUser(t, "bob", "Bob", "B")

	connA := e.dial(t, tokenA)
	connB := e.dial(t, tokenB)

	joinAndSync(t, connA, "room1")
	sendEvent(t, connB, EventJoin, map[string]string{"room_id": "room1"})
	require.Equal(t, EventUserJoined, readEvent(t, connA).Event)

	require.NoError(t, connB.Close())

	env := readEvent(t, connA)
	require.Equal(t, EventUserLeft, env.Event)

	var left PresenceEvent
	require.NoError(t, json.Unmarshal(env.Data, &left))
	require.Equal(t, userB.ID, left.User.ID)
}

// Кривой вход получает адресный error; соединение продолжает работать.
func TestMalformedPayload_ScopedError(t *testing.T) {
	e := newWSEnv(t)

	_, token := e.newWSUser(t, "alice", "Alice", "A")
	conn := e.dial(t, token)

	// 1) Не-JSON.
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("not json")))
	env := readEvent(t, conn)
	require.Equal(t, EventError, env.Event)

	// 2) Неизвестное событие.
	sendEvent(t, conn, "dance", map[string]string{})
	env = readEvent(t, conn)
	require.Equal(t, EventError, env.Event)

	// 3) join без room_id.
	sendEvent(t, conn, EventJoin, map[string]string{})
	env = readEvent(t, conn)
	require.Equal(t, EventError, env.Event)

	var werr ErrorEvent
	require.NoError(t, json.Unmarshal(env.Data, &werr))
	require.NotEmpty(t, werr.Message)

	// Соединение живо: штатный join + message проходят.
	sendEvent(t, conn, EventJoin, map[string]string{"room_id": "room1"})
	sendEvent(t, conn, EventMessage, map[string]string{
		"room_id": "room1",
		"content": "still alive",
	})

	env = readEvent(t, conn)
	require.Equal(t, EventMessage, env.Event)
}

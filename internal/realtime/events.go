// realtime реализует websocket-шлюз: комнаты, рассылку событий и
// жизненный цикл подключений. Формат обмена — JSON-конверты
// {"event": <имя>, "data": {...}}, по одному на текстовый фрейм.
package realtime

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/mindscape-dev/mindscape-backend/internal/models"
)

// Имена событий протокола.
const (
	// Клиент -> сервер.
	EventJoin    = "join"
	EventLeave   = "leave"
	EventMessage = "message"
	EventTyping  = "typing"

	// Сервер -> клиент.
	EventUserJoined = "user-joined"
	EventUserLeft   = "user-left"
	EventError      = "error"
)

// DefaultMessageType — тип сообщения, если клиент его не указал.
const DefaultMessageType = "text"

// Envelope — транспортный конверт события.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// joinPayload — вход join/leave.
type joinPayload struct {
	RoomID string `json:"room_id"`
}

// messagePayload — вход message.
type messagePayload struct {
	RoomID  string `json:"room_id"`
	Content string `json:"content"`
	Type    string `json:"type"`
}

// typingPayload — вход typing.
type typingPayload struct {
	RoomID   string `json:"room_id"`
	IsTyping bool   `json:"is_typing"`
}

// MessageEvent — исходящее message: доставляется всем участникам комнаты,
// включая отправителя.
type MessageEvent struct {
	ID        string             `json:"id"`
	RoomID    string             `json:"room_id"`
	User      models.UserSummary `json:"user"`
	Content   string             `json:"content"`
	Type      string             `json:"type"`
	Timestamp time.Time          `json:"timestamp"`
}

// PresenceEvent — исходящее user-joined/user-left: всем, кроме самого участника.
type PresenceEvent struct {
	RoomID string             `json:"room_id"`
	User   models.UserSummary `json:"user"`
}

// TypingEvent — исходящее typing: всем, кроме печатающего.
type TypingEvent struct {
	RoomID   string             `json:"room_id"`
	User     models.UserSummary `json:"user"`
	IsTyping bool               `json:"is_typing"`
}

// ErrorEvent — адресная ошибка протокола; соединение при этом не рвётся.
type ErrorEvent struct {
	Message string `json:"message"`
}

// encodeEvent сериализует конверт события один раз на рассылку.
func encodeEvent(event string, data any) ([]byte, error) {
	const op = "realtime.events.encodeEvent"

	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	out, err := json.Marshal(Envelope{Event: event, Data: raw})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return out, nil
}

package realtime

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/mindscape-dev/mindscape-backend/internal/config"
	"github.com/mindscape-dev/mindscape-backend/internal/models"
	"github.com/mindscape-dev/mindscape-backend/internal/pkg/log"
)

// Префиксы имён комнат в Hub.
// Персональная комната служит адресной доставкой "в пользователя";
// клиент попадает в неё автоматически при подключении.
const (
	chatRoomPrefix     = "chat:"
	personalRoomPrefix = "user:"
)

func chatRoom(roomID string) string { return chatRoomPrefix + roomID }

func personalRoom(userID uuid.UUID) string { return personalRoomPrefix + userID.String() }

// client — одно websocket-подключение аутентифицированного пользователя.
//
// Жизненный цикл: read pump читает и диспетчеризует события в порядке
// прихода (per-connection ordering), write pump сериализует запись в
// сокет и шлёт ping. Любая ошибка чтения завершает подключение:
// выход из всех комнат с рассылкой user-left и закрытие сокета.
type client struct {
	hub  *Hub
	conn *websocket.Conn
	user models.UserSummary
	cfg  config.RealtimeConfig

	// send — исходящая очередь. Канал никогда не закрывается:
	// Deliver могут звать конкурентно с teardown, остановка write pump
	// сигналится через done.
	send chan []byte
	done chan struct{}
}

func newClient(hub *Hub, conn *websocket.Conn, user models.UserSummary, cfg config.RealtimeConfig) *client {
	return &client{
		hub:  hub,
		conn: conn,
		user: user,
		cfg:  cfg,
		send: make(chan []byte, cfg.SendBuffer),
		done: make(chan struct{}),
	}
}

func (c *client) User() models.UserSummary { return c.user }

// Deliver — неблокирующая постановка в очередь.
func (c *client) Deliver(payload []byte) bool {
	select {
	case <-c.done:
		return true // уже закрывается; не считаем медленным
	default:
	}

	select {
	case c.send <- payload:
		return true
	default:
		return false
	}
}

// Kick рвёт сокет; teardown доделает read pump, когда чтение упадёт.
func (c *client) Kick() {
	_ = c.conn.Close()
}

// pongWait — сколько ждём ответ на ping до признания соединения мёртвым.
func (c *client) pongWait() time.Duration {
	return c.cfg.PingInterval * 2
}

// readPump блокируется до закрытия соединения. Единственная горутина,
// читающая из сокета.
func (c *client) readPump(ctx context.Context) {
	defer c.teardown(ctx)

	c.conn.SetReadLimit(c.cfg.MaxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(c.pongWait()))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(c.pongWait()))
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseNormalClosure,
				websocket.CloseGoingAway,
				websocket.CloseAbnormalClosure) {
				log.From(ctx).LogAttrs(ctx, slog.LevelWarn, "ws_read_failed",
					slog.String("user_id", c.user.ID.String()),
					slog.String("err", err.Error()),
				)
			}
			return
		}

		c.dispatch(ctx, raw)
	}
}

// writePump сериализует запись в сокет: события из очереди и ping по тикеру.
// Единственная горутина, пишущая в сокет.
func (c *client) writePump() {
	ticker := time.NewTicker(c.cfg.PingInterval)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case <-c.done:
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
			_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return

		case payload := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// teardown — единая точка завершения: выход из комнат с рассылкой
// user-left, остановка write pump, закрытие сокета.
func (c *client) teardown(ctx context.Context) {
	close(c.done)

	for _, room := range c.hub.LeaveAll(c) {
		if !strings.HasPrefix(room, chatRoomPrefix) {
			continue
		}

		c.broadcastPresence(room, EventUserLeft)
	}

	_ = c.conn.Close()

	connectionsActive.Dec()
	log.From(ctx).LogAttrs(ctx, slog.LevelInfo, "ws_disconnected",
		slog.String("user_id", c.user.ID.String()),
	)
}

// dispatch разбирает конверт и выполняет событие. Кривой вход — адресный
// error без разрыва соединения.
func (c *client) dispatch(ctx context.Context, raw []byte) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		eventsReceived.WithLabelValues("invalid").Inc()
		c.sendError("invalid message format")
		return
	}

	switch env.Event {
	case EventJoin:
		eventsReceived.WithLabelValues(EventJoin).Inc()
		c.handleJoin(env.Data)

	case EventLeave:
		eventsReceived.WithLabelValues(EventLeave).Inc()
		c.handleLeave(env.Data)

	case EventMessage:
		eventsReceived.WithLabelValues(EventMessage).Inc()
		c.handleMessage(ctx, env.Data)

	case EventTyping:
		eventsReceived.WithLabelValues(EventTyping).Inc()
		c.handleTyping(env.Data)

	default:
		eventsReceived.WithLabelValues("invalid").Inc()
		c.sendError("unknown event: " + env.Event)
	}
}

func (c *client) handleJoin(data json.RawMessage) {
	var in joinPayload
	if err := json.Unmarshal(data, &in); err != nil || in.RoomID == "" {
		c.sendError("join requires room_id")
		return
	}

	room := chatRoom(in.RoomID)
	c.hub.Join(room, c)
	c.broadcastPresence(room, EventUserJoined)
}

func (c *client) handleLeave(data json.RawMessage) {
	var in joinPayload
	if err := json.Unmarshal(data, &in); err != nil || in.RoomID == "" {
		c.sendError("leave requires room_id")
		return
	}

	room := chatRoom(in.RoomID)
	if !c.hub.Leave(room, c) {
		return // не был участником — нечего рассылать
	}

	c.broadcastPresence(room, EventUserLeft)
}

func (c *client) handleMessage(ctx context.Context, data json.RawMessage) {
	var in messagePayload
	if err := json.Unmarshal(data, &in); err != nil || in.RoomID == "" {
		c.sendError("message requires room_id")
		return
	}
	if strings.TrimSpace(in.Content) == "" {
		c.sendError("message requires content")
		return
	}

	msgType := in.Type
	if msgType == "" {
		msgType = DefaultMessageType
	}

	out := MessageEvent{
		ID:        uuid.NewString(),
		RoomID:    in.RoomID,
		User:      c.user,
		Content:   in.Content,
		Type:      msgType,
		Timestamp: time.Now().UTC(),
	}

	payload, err := encodeEvent(EventMessage, out)
	if err != nil {
		log.From(ctx).LogAttrs(ctx, slog.LevelError, "ws_encode_failed",
			slog.String("err", err.Error()))
		return
	}

	eventsBroadcast.WithLabelValues(EventMessage).Inc()
	// message — всем участникам, включая отправителя.
	c.hub.Broadcast(chatRoom(in.RoomID), payload, nil)
}

func (c *client) handleTyping(data json.RawMessage) {
	var in typingPayload
	if err := json.Unmarshal(data, &in); err != nil || in.RoomID == "" {
		c.sendError("typing requires room_id")
		return
	}

	payload, err := encodeEvent(EventTyping, TypingEvent{
		RoomID:   in.RoomID,
		User:     c.user,
		IsTyping: in.IsTyping,
	})
	if err != nil {
		return
	}

	eventsBroadcast.WithLabelValues(EventTyping).Inc()
	c.hub.Broadcast(chatRoom(in.RoomID), payload, c)
}

// broadcastPresence шлёт user-joined/user-left всем в комнате, кроме самого
// участника. room — внутреннее имя (с префиксом).
func (c *client) broadcastPresence(room, event string) {
	payload, err := encodeEvent(event, PresenceEvent{
		RoomID: strings.TrimPrefix(room, chatRoomPrefix),
		User:   c.user,
	})
	if err != nil {
		return
	}

	eventsBroadcast.WithLabelValues(event).Inc()
	c.hub.Broadcast(room, payload, c)
}

// sendError — адресная ошибка протокола только отправителю.
func (c *client) sendError(msg string) {
	payload, err := encodeEvent(EventError, ErrorEvent{Message: msg})
	if err != nil {
		return
	}

	_ = c.Deliver(payload)
}

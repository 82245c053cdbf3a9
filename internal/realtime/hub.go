package realtime

import (
	"sync"

	"github.com/mindscape-dev/mindscape-backend/internal/models"
)

// Subscriber — получатель событий комнаты.
// Реализуется websocket-клиентом; для юнит-тестов правил рассылки
// достаточно любой не-сетевой реализации.
type Subscriber interface {
	// User возвращает краткий профиль владельца подключения.
	User() models.UserSummary
	// Deliver ставит закодированное событие в исходящую очередь,
	// не блокируясь. false — очередь переполнена.
	Deliver(payload []byte) bool
	// Kick принудительно закрывает подключение медленного подписчика.
	Kick()
}

// Hub владеет членством комнат: имя комнаты -> множество подписчиков.
// Все операции потокобезопасны. Hub не знает о websocket: отправка
// делегируется подписчику и не блокирует рассылку.
type Hub struct {
	mu    sync.Mutex
	rooms map[string]map[Subscriber]struct{}
}

func NewHub() *Hub {
	return &Hub{rooms: make(map[string]map[Subscriber]struct{})}
}

// Join добавляет подписчика в комнату. Повторный Join — no-op.
func (h *Hub) Join(room string, s Subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()

	set, ok := h.rooms[room]
	if !ok {
		set = make(map[Subscriber]struct{})
		h.rooms[room] = set
	}

	set[s] = struct{}{}
}

// Leave убирает подписчика из комнаты.
// Возвращает true, если подписчик действительно был участником.
func (h *Hub) Leave(room string, s Subscriber) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	set, ok := h.rooms[room]
	if !ok {
		return false
	}

	if _, member := set[s]; !member {
		return false
	}

	delete(set, s)
	if len(set) == 0 {
		delete(h.rooms, room)
	}

	return true
}

// LeaveAll убирает подписчика из всех комнат и возвращает их имена.
func (h *Hub) LeaveAll(s Subscriber) []string {
	h.mu.Lock()
	defer h.mu.Unlock()

	var left []string
	for room, set := range h.rooms {
		if _, member := set[s]; !member {
			continue
		}

		delete(set, s)
		if len(set) == 0 {
			delete(h.rooms, room)
		}

		left = append(left, room)
	}

	return left
}

// Members возвращает число участников комнаты.
func (h *Hub) Members(room string) int {
	h.mu.Lock()
	defer h.mu.Unlock()

	return len(h.rooms[room])
}

// Broadcast доставляет payload всем участникам комнаты, кроме except
// (nil — всем без исключения). Подписчик с переполненной очередью
// отключается, чтобы не тормозить остальных; Kick зовётся вне мьютекса —
// teardown подписчика сам ходит в Hub.
func (h *Hub) Broadcast(room string, payload []byte, except Subscriber) {
	h.mu.Lock()

	var slow []Subscriber
	for s := range h.rooms[room] {
		if s == except {
			continue
		}

		if !s.Deliver(payload) {
			slow = append(slow, s)
		}
	}

	h.mu.Unlock()

	for _, s := range slow {
		subscribersKicked.Inc()
		s.Kick()
	}
}

package ws

import (
	"sync"

	"github.com/cwrk-planet/vault-room-service/internal/domain"
)

type Conn interface {
	Send(msg Message) error
	Close() error
}

// Hub хранит активные соединения и их членство в комнатах.
// Рассылка best-effort: медленный получатель отваливается по своему
// write deadline и не задерживает остальных.
type Hub struct {
	mu      sync.RWMutex
	conns   map[Conn]struct{}
	rooms   map[string]map[Conn]struct{}
	members map[Conn]string // conn -> комната
}

func NewHub() *Hub {
	return &Hub{
		conns:   make(map[Conn]struct{}),
		rooms:   make(map[string]map[Conn]struct{}),
		members: make(map[Conn]string),
	}
}

func (h *Hub) Register(c Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.conns[c] = struct{}{}
}

func (h *Hub) Unregister(c Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	delete(h.conns, c)
	if room, ok := h.members[c]; ok {
		delete(h.members, c)
		if rs, ok := h.rooms[room]; ok {
			delete(rs, c)
			if len(rs) == 0 {
				delete(h.rooms, room)
			}
		}
	}
}

// Join переводит соединение в комнату; из предыдущей оно выходит.
func (h *Hub) Join(room string, c Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if prev, ok := h.members[c]; ok && prev != room {
		if rs, ok := h.rooms[prev]; ok {
			delete(rs, c)
			if len(rs) == 0 {
				delete(h.rooms, prev)
			}
		}
	}

	rs, ok := h.rooms[room]
	if !ok {
		rs = make(map[Conn]struct{})
		h.rooms[room] = rs
	}
	rs[c] = struct{}{}
	h.members[c] = room
}

func (h *Hub) Broadcast(room string, msg Message) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for c := range h.rooms[room] {
		_ = c.Send(msg) // best-effort
	}
}

func (h *Hub) BroadcastAll(msg Message) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for c := range h.conns {
		_ = c.Send(msg)
	}
}

// Hub реализует service.Notifier: фанаут успешных мутаций комнаты.

func (h *Hub) RoomMessage(room string, msg domain.Message) {
	h.Broadcast(room, Message{Type: TypeChat, Payload: msg})
}

func (h *Hub) RoomMessageDeleted(room, id string) {
	h.Broadcast(room, Message{Type: TypeDeleted, Payload: DeletedPayload{ID: id}})
}

func (h *Hub) RoomCleared(room string) {
	h.Broadcast(room, Message{Type: TypeCleared})
}

package ws

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/cwrk-planet/vault-room-service/internal/domain"

	"github.com/gorilla/websocket"
)

type RoomSvc interface {
	History(ctx context.Context, room string) ([]domain.Message, error)
	Append(ctx context.Context, room string, msg domain.Message) error
	Delete(ctx context.Context, room, id, requester string) error
	Clear(ctx context.Context, room string) error
}

type TokenSvc interface {
	Verify(token, room, identity string) error
	Consume(token string)
}

type Server struct {
	upgrader websocket.Upgrader
	hub      *Hub
	rooms    RoomSvc
	tokens   TokenSvc

	adminPassword []byte
	pingEvery     time.Duration

	mu       sync.Mutex
	profiles map[*wsConn]UserProfile
}

func NewServer(hub *Hub, rooms RoomSvc, tokens TokenSvc, adminPassword string) *Server {
	return &Server{
		hub:           hub,
		rooms:         rooms,
		tokens:        tokens,
		adminPassword: []byte(adminPassword),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		pingEvery: 15 * time.Second,
		profiles:  make(map[*wsConn]UserProfile),
	}
}

// WS endpoint: GET /ws. Авторизация не на соединении, а на каждом
// привилегированном событии: одноразовый токен в payload.
func (s *Server) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("ws upgrade failed", "err", err)
		return
	}

	c := newWsConn(conn)
	s.hub.Register(c)

	go s.writeLoop(r.Context(), c)
	s.readLoop(r.Context(), c)

	s.hub.Unregister(c)
	s.dropProfile(c)

	if err := c.Close(); err != nil {
		slog.Debug("ws close failed", "err", err)
	}
}

func (s *Server) readLoop(ctx context.Context, c *wsConn) {
	defer func() { _ = c.Close() }()

	c.conn.SetReadLimit(8 << 20) // вложения ходят по HTTP, тут только JSON
	c.conn.SetReadDeadline(time.Now().Add(2 * s.pingEvery))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(2 * s.pingEvery))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			continue
		}

		switch msg.Type {
		case TypeUserJoin:
			var p UserProfile
			if decode(msg.Payload, &p) == nil {
				s.setProfile(c, p)
			}
		case TypeJoinRoom:
			var p JoinRoomPayload
			if decode(msg.Payload, &p) == nil {
				s.handleJoinRoom(ctx, c, p)
			}
		case TypeChat:
			var p ChatEventPayload
			if decode(msg.Payload, &p) == nil {
				s.handleChat(ctx, c, p)
			}
		case TypeDeleteRequest:
			var p DeleteRequestPayload
			if decode(msg.Payload, &p) == nil {
				s.handleDelete(ctx, c, p)
			}
		case TypeAdminClear:
			var p AdminClearPayload
			if decode(msg.Payload, &p) == nil {
				s.handleAdminClear(ctx, c, p)
			}
		default:
			// ignore
		}
	}
}

func (s *Server) handleJoinRoom(ctx context.Context, c *wsConn, p JoinRoomPayload) {
	if !domain.ValidRoomName(p.Room) {
		return
	}
	if err := s.tokens.Verify(p.Token, p.Room, p.UserID); err != nil {
		_ = c.Send(Message{Type: TypeRoomAuthFailed, Payload: ReasonPayload{Reason: domain.TokenReason(err)}})
		return
	}
	// гасим сразу после проверки, до любых побочных эффектов:
	// параллельный дубль запроса не должен проехать на том же токене
	s.tokens.Consume(p.Token)

	s.hub.Join(p.Room, c)

	msgs, err := s.rooms.History(ctx, p.Room)
	if err != nil {
		if errors.Is(err, domain.ErrRoomNotFound) {
			_ = c.Send(Message{Type: TypeRoomNotFound, Payload: RoomPayload{Room: p.Room}})
			return
		}
		slog.Error("ws join history failed", "room", p.Room, "err", err)
		_ = c.Send(Message{Type: TypeRoomError, Payload: ReasonPayload{Reason: "server_error"}})
		return
	}
	if msgs == nil {
		msgs = []domain.Message{}
	}
	_ = c.Send(Message{Type: TypeHistory, Payload: HistoryPayload{Room: p.Room, Messages: msgs}})
}

func (s *Server) handleChat(ctx context.Context, c *wsConn, p ChatEventPayload) {
	if !domain.ValidRoomName(p.Room) {
		return
	}
	if err := s.tokens.Verify(p.Token, p.Room, p.UserID); err != nil {
		_ = c.Send(Message{Type: TypeRoomAuthFailed, Payload: ReasonPayload{Reason: domain.TokenReason(err)}})
		return
	}
	s.tokens.Consume(p.Token)

	// защита от подмены авторства: authorId в сообщении обязан
	// совпадать с identity, на которую выписан токен
	if p.Msg.AuthorID != p.UserID {
		_ = c.Send(Message{Type: TypeRoomAuthFailed, Payload: ReasonPayload{Reason: "user_mismatch"}})
		return
	}
	if p.Msg.TS == 0 {
		p.Msg.TS = time.Now().UnixMilli()
	}

	if err := s.rooms.Append(ctx, p.Room, p.Msg); err != nil {
		// проигранная гонка — это отказ доставки, о нём сообщаем явно
		_ = c.Send(Message{Type: TypeMessageFailed, Payload: MessageFailedPayload{ID: p.Msg.ID, Reason: failReason(err)}})
		return
	}
	// рассылку по комнате делает Notifier после успешного сохранения
}

func (s *Server) handleDelete(ctx context.Context, c *wsConn, p DeleteRequestPayload) {
	if !domain.ValidRoomName(p.Room) || p.ID == "" {
		return
	}
	if err := s.tokens.Verify(p.Token, p.Room, p.UserID); err != nil {
		_ = c.Send(Message{Type: TypeDeleteFailed, Payload: DeleteFailedPayload{ID: p.ID, Reason: domain.TokenReason(err)}})
		return
	}
	s.tokens.Consume(p.Token)

	if err := s.rooms.Delete(ctx, p.Room, p.ID, p.UserID); err != nil {
		_ = c.Send(Message{Type: TypeDeleteFailed, Payload: DeleteFailedPayload{ID: p.ID, Reason: failReason(err)}})
	}
}

func (s *Server) handleAdminClear(ctx context.Context, c *wsConn, p AdminClearPayload) {
	// единый операторский секрет, сравнение только constant-time
	if subtle.ConstantTimeCompare([]byte(p.Password), s.adminPassword) != 1 {
		_ = c.Send(Message{Type: TypeAdminClearFailed, Payload: ReasonPayload{Reason: "wrong_password"}})
		return
	}
	if !domain.ValidRoomName(p.Room) {
		return
	}
	if err := s.tokens.Verify(p.Token, p.Room, p.UserID); err != nil {
		_ = c.Send(Message{Type: TypeAdminClearFailed, Payload: ReasonPayload{Reason: domain.TokenReason(err)}})
		return
	}
	s.tokens.Consume(p.Token)

	if err := s.rooms.Clear(ctx, p.Room); err != nil {
		slog.Error("ws admin clear failed", "room", p.Room, "err", err)
		_ = c.Send(Message{Type: TypeAdminClearFailed, Payload: ReasonPayload{Reason: failReason(err)}})
	}
}

// failReason — машинно-читаемый код отказа операции; сырые внутренние
// ошибки клиенту не уходят.
func failReason(err error) string {
	switch {
	case errors.Is(err, domain.ErrConflict):
		return "conflict"
	case errors.Is(err, domain.ErrRoomNotFound):
		return "room_not_found"
	case errors.Is(err, domain.ErrMessageNotFound):
		return "not_found"
	case errors.Is(err, domain.ErrNotOwner):
		return "not_owner"
	case errors.Is(err, domain.ErrBadMessage), errors.Is(err, domain.ErrBadRoomName):
		return "invalid"
	}
	return "server_error"
}

func (s *Server) setProfile(c *wsConn, p UserProfile) {
	s.mu.Lock()
	s.profiles[c] = p
	s.mu.Unlock()
	s.broadcastUserList()
}

func (s *Server) dropProfile(c *wsConn) {
	s.mu.Lock()
	delete(s.profiles, c)
	s.mu.Unlock()
	s.broadcastUserList()
}

func (s *Server) broadcastUserList() {
	s.mu.Lock()
	users := make([]UserProfile, 0, len(s.profiles))
	for _, p := range s.profiles {
		users = append(users, p)
	}
	s.mu.Unlock()

	s.hub.BroadcastAll(Message{Type: TypeUserList, Payload: users})
}

func (s *Server) writeLoop(ctx context.Context, c *wsConn) {
	ticker := time.NewTicker(s.pingEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			_ = c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second))
		case <-ctx.Done():
			return
		case <-c.closed:
			return
		}
	}
}

// --- helpers ---

func decode(payload any, dst any) error {
	b, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, dst)
}

type wsConn struct {
	conn   *websocket.Conn
	sendMu chan struct{}
	closed chan struct{}
}

func newWsConn(c *websocket.Conn) *wsConn {
	return &wsConn{
		conn:   c,
		sendMu: make(chan struct{}, 1),
		closed: make(chan struct{}),
	}
}

func (c *wsConn) Send(msg Message) error {
	c.sendMu <- struct{}{}
	defer func() { <-c.sendMu }()
	c.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))

	return c.conn.WriteJSON(msg)
}

func (c *wsConn) Close() error {
	select {
	case <-c.closed:
	default:
		close(c.closed)
	}

	return c.conn.Close()
}

package ws

import "github.com/cwrk-planet/vault-room-service/internal/domain"

// События протокола. Клиент -> сервер:
const (
	TypeUserJoin      = "userJoin"      // профиль участника
	TypeJoinRoom      = "joinRoom"      // вход в комнату по токену
	TypeChat          = "chat message"  // отправка сообщения
	TypeDeleteRequest = "requestDelete" // удаление своего сообщения
	TypeAdminClear    = "adminClearAll" // очистка комнаты админом
)

// Сервер -> клиент:
const (
	TypeUserList     = "userList"         // снапшот присутствующих
	TypeHistory      = "history"          // история после входа
	TypeDeleted      = "delete message"   // сообщение удалено
	TypeCleared      = "clearAllMessages" // комната очищена
	TypeRoomNotFound = "roomNotFound"
	TypeRoomError    = "roomError"

	TypeRoomAuthFailed   = "roomAuthFailed"   // отказ по токену, payload — причина
	TypeMessageFailed    = "messageFailed"    // сообщение не доставлено
	TypeDeleteFailed     = "deleteFailed"
	TypeAdminClearFailed = "adminClearFailed"
)

type Message struct {
	Type    string `json:"type"`
	Payload any    `json:"payload,omitempty"`
}

// UserProfile — отображаемые данные участника. В авторизации не
// участвуют: единственный признак владения — userId.
type UserProfile struct {
	UserID      string `json:"userId"`
	DisplayName string `json:"displayName"`
	Color       string `json:"color,omitempty"`
	AvatarRef   string `json:"avatarRef,omitempty"`
}

type JoinRoomPayload struct {
	Room   string `json:"room"`
	UserID string `json:"userId"`
	Token  string `json:"token"`
}

type HistoryPayload struct {
	Room     string           `json:"room"`
	Messages []domain.Message `json:"msgs"`
}

type ChatEventPayload struct {
	Room   string         `json:"room"`
	UserID string         `json:"userId"`
	Token  string         `json:"token"`
	Msg    domain.Message `json:"msg"`
}

type DeleteRequestPayload struct {
	Room   string `json:"room"`
	ID     string `json:"id"`
	UserID string `json:"userId"`
	Token  string `json:"token"`
}

type AdminClearPayload struct {
	Room     string `json:"room"`
	Password string `json:"password"`
	UserID   string `json:"userId"`
	Token    string `json:"token"`
}

type DeletedPayload struct {
	ID string `json:"id"`
}

type ReasonPayload struct {
	Reason string `json:"reason"`
}

type MessageFailedPayload struct {
	ID     string `json:"id"`
	Reason string `json:"reason"`
}

type DeleteFailedPayload struct {
	ID     string `json:"id"`
	Reason string `json:"reason"`
}

type RoomPayload struct {
	Room string `json:"room"`
}

package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/cwrk-planet/vault-room-service/internal/crypto"
	"github.com/cwrk-planet/vault-room-service/internal/domain"
	"github.com/cwrk-planet/vault-room-service/internal/store"

	"golang.org/x/crypto/bcrypt"
)

const (
	roomDir       = "rooms"
	roomSuffix    = ".env.json"
	attachmentDir = "attachments"
)

// Notifier получает события после успешной мутации. Вызов не должен
// блокироваться на медленных подписчиках.
type Notifier interface {
	RoomMessage(room string, msg domain.Message)
	RoomMessageDeleted(room, id string)
	RoomCleared(room string)
}

// RoomService владеет циклом load -> mutate -> save документа комнаты.
// Документ в памяти живёт ровно одну операцию: каждая операция заново
// читает блоб, источник истины — хранилище.
type RoomService struct {
	store    store.Store
	sealer   *crypto.Sealer
	notifier Notifier

	maxMessages int
	retention   time.Duration
	maxAttempts int

	now func() time.Time
}

func NewRoomService(st store.Store, sealer *crypto.Sealer, notifier Notifier) *RoomService {
	return &RoomService{
		store:       st,
		sealer:      sealer,
		notifier:    notifier,
		maxMessages: 100,
		retention:   DefaultRetention,
		maxAttempts: 3,
		now:         time.Now,
	}
}

func (s *RoomService) SetMaxMessages(n int) {
	if n > 0 {
		s.maxMessages = n
	}
}

func (s *RoomService) SetRetention(d time.Duration) {
	if d > 0 {
		s.retention = d
	}
}

func roomPath(name string) string {
	return roomDir + "/" + name + roomSuffix
}

func attachmentPath(room, name string) string {
	return attachmentDir + "/" + room + "/" + name
}

// Create создаёт комнату create-only записью: без тега версии
// хранилище отклонит запись, если блоб уже существует.
func (s *RoomService) Create(ctx context.Context, name, password string) error {
	if !domain.ValidRoomName(name) {
		return domain.ErrBadRoomName
	}
	if password == "" {
		return domain.ErrWrongPassword
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("room create %s: %w", name, err)
	}

	doc := &domain.RoomDocument{
		Room:     name,
		PassHash: string(hash),
		Messages: []domain.Message{},
	}
	if _, err := s.save(ctx, name, doc, ""); err != nil {
		if errors.Is(err, store.ErrVersionConflict) {
			return domain.ErrRoomExists
		}
		return err
	}
	return nil
}

// Authenticate сверяет пароль комнаты с хешем из документа.
func (s *RoomService) Authenticate(ctx context.Context, name, password string) error {
	doc, _, err := s.load(ctx, name)
	if err != nil {
		return err
	}
	if bcrypt.CompareHashAndPassword([]byte(doc.PassHash), []byte(password)) != nil {
		return domain.ErrWrongPassword
	}
	return nil
}

// History возвращает историю комнаты, попутно выметая просроченные
// вложения: новый участник не должен увидеть то, что уже подлежит
// удалению. Это чтение, поэтому проигранная гонка за сохранение
// подчищенного документа не считается ошибкой — следующий писатель
// выполнит ту же чистку.
func (s *RoomService) History(ctx context.Context, name string) ([]domain.Message, error) {
	doc, version, err := s.load(ctx, name)
	if err != nil {
		return nil, err
	}

	kept, expired := Partition(doc.Messages, s.now(), s.retention)
	if len(expired) == 0 {
		return doc.Messages, nil
	}

	doc.Messages = kept
	if _, err := s.save(ctx, name, doc, version); err != nil {
		if errors.Is(err, store.ErrVersionConflict) {
			slog.Debug("history prune lost a race", "room", name)
		} else {
			slog.Warn("history prune save failed", "room", name, "err", err)
		}
		return kept, nil
	}
	s.deleteAttachments(ctx, name, expired)
	return kept, nil
}

// Append добавляет сообщение и обрезает историю до maxMessages,
// выбрасывая старейшие записи.
func (s *RoomService) Append(ctx context.Context, name string, msg domain.Message) error {
	if !msg.Valid() {
		return domain.ErrBadMessage
	}

	err := s.update(ctx, name, func(doc *domain.RoomDocument) ([]domain.Message, error) {
		doc.Messages = append(doc.Messages, msg)
		var dropped []domain.Message
		if over := len(doc.Messages) - s.maxMessages; over > 0 {
			dropped = append(dropped, doc.Messages[:over]...)
			doc.Messages = doc.Messages[over:]
		}
		return dropped, nil
	})
	if err != nil {
		return err
	}
	if s.notifier != nil {
		s.notifier.RoomMessage(name, msg)
	}
	return nil
}

// Delete удаляет сообщение по id. Владение определяется только по
// authorId; никакие отображаемые поля в авторизации не участвуют.
func (s *RoomService) Delete(ctx context.Context, name, id, requester string) error {
	err := s.update(ctx, name, func(doc *domain.RoomDocument) ([]domain.Message, error) {
		idx := -1
		for i, m := range doc.Messages {
			if m.ID == id {
				idx = i
				break
			}
		}
		if idx < 0 {
			return nil, domain.ErrMessageNotFound
		}
		target := doc.Messages[idx]
		if target.AuthorID != requester {
			return nil, domain.ErrNotOwner
		}
		doc.Messages = append(doc.Messages[:idx], doc.Messages[idx+1:]...)
		return []domain.Message{target}, nil
	})
	if err != nil {
		return err
	}
	if s.notifier != nil {
		s.notifier.RoomMessageDeleted(name, id)
	}
	return nil
}

// Clear опустошает комнату. Проверку админ-пароля выполняет вызывающий.
func (s *RoomService) Clear(ctx context.Context, name string) error {
	err := s.update(ctx, name, func(doc *domain.RoomDocument) ([]domain.Message, error) {
		removed := doc.Messages
		doc.Messages = []domain.Message{}
		return removed, nil
	})
	if err != nil {
		return err
	}
	if s.notifier != nil {
		s.notifier.RoomCleared(name)
	}
	return nil
}

// ListRooms возвращает имена существующих комнат.
func (s *RoomService) ListRooms(ctx context.Context) ([]string, error) {
	entries, err := s.store.List(ctx, roomDir)
	if err != nil {
		return nil, fmt.Errorf("list rooms: %w", err)
	}
	rooms := make([]string, 0, len(entries))
	for _, e := range entries {
		name, ok := strings.CutSuffix(e, roomSuffix)
		if !ok || !domain.ValidRoomName(name) {
			continue
		}
		rooms = append(rooms, name)
	}
	sort.Strings(rooms)
	return rooms, nil
}

// update — общий цикл load -> prune -> mutate -> save с ограниченным
// повтором: при конфликте версий документ перечитывается и та же
// логическая мутация применяется заново, не более maxAttempts раз.
// Молчаливой потери не бывает: исчерпав попытки, возвращаем ErrConflict.
// mutate возвращает сообщения, чьи вложения надо удалить; блобы
// трогаем только после успешного сохранения.
func (s *RoomService) update(ctx context.Context, name string, mutate func(*domain.RoomDocument) ([]domain.Message, error)) error {
	if !domain.ValidRoomName(name) {
		return domain.ErrBadRoomName
	}

	var lastErr error
	for attempt := 0; attempt < s.maxAttempts; attempt++ {
		doc, version, err := s.load(ctx, name)
		if err != nil {
			return err
		}

		kept, expired := Partition(doc.Messages, s.now(), s.retention)
		doc.Messages = kept

		removed, err := mutate(doc)
		if err != nil {
			return err
		}

		if _, err := s.save(ctx, name, doc, version); err != nil {
			if errors.Is(err, store.ErrVersionConflict) {
				lastErr = err
				slog.Debug("room save conflict, retrying", "room", name, "attempt", attempt+1)
				continue
			}
			return err
		}

		s.deleteAttachments(ctx, name, append(expired, removed...))
		return nil
	}

	slog.Warn("room update exhausted retries", "room", name, "attempts", s.maxAttempts, "err", lastErr)
	return domain.ErrConflict
}

func (s *RoomService) load(ctx context.Context, name string) (*domain.RoomDocument, string, error) {
	if !domain.ValidRoomName(name) {
		return nil, "", domain.ErrBadRoomName
	}

	raw, version, err := s.store.Get(ctx, roomPath(name))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, "", domain.ErrRoomNotFound
		}
		return nil, "", fmt.Errorf("room load %s: %w", name, err)
	}

	plain, err := s.sealer.Open(raw)
	if err != nil {
		// порча или чужой ключ — это отказ загрузки, не «пустая комната»
		return nil, "", fmt.Errorf("room load %s: %w", name, err)
	}

	var doc domain.RoomDocument
	if err := json.Unmarshal(plain, &doc); err != nil {
		return nil, "", fmt.Errorf("room load %s: decode: %w", name, err)
	}
	return &doc, version, nil
}

func (s *RoomService) save(ctx context.Context, name string, doc *domain.RoomDocument, version string) (string, error) {
	plain, err := json.Marshal(doc)
	if err != nil {
		return "", fmt.Errorf("room save %s: encode: %w", name, err)
	}
	sealed, err := s.sealer.Seal(plain)
	if err != nil {
		return "", fmt.Errorf("room save %s: %w", name, err)
	}
	next, err := s.store.Put(ctx, roomPath(name), sealed, version)
	if err != nil {
		if errors.Is(err, store.ErrVersionConflict) {
			return "", err
		}
		return "", fmt.Errorf("room save %s: %w", name, err)
	}
	return next, nil
}

// deleteAttachments подчищает блобы вложений best-effort: запись
// о сообщении уже ушла из документа, висящий блоб — это долг по
// уборке, а не ошибка операции.
func (s *RoomService) deleteAttachments(ctx context.Context, room string, msgs []domain.Message) {
	for _, m := range msgs {
		if m.Kind != domain.KindImage || m.AttachmentRef == "" {
			continue
		}
		p := attachmentPath(room, m.AttachmentRef)
		_, version, err := s.store.Get(ctx, p)
		if err != nil {
			if !errors.Is(err, store.ErrNotFound) {
				slog.Warn("attachment lookup for delete failed", "path", p, "err", err)
			}
			continue
		}
		if err := s.store.Delete(ctx, p, version); err != nil {
			slog.Warn("attachment delete failed", "path", p, "err", err)
		}
	}
}

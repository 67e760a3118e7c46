package service

import (
	"time"

	"github.com/cwrk-planet/vault-room-service/internal/domain"
)

// DefaultRetention — срок жизни вложений.
const DefaultRetention = 30 * 24 * time.Hour

// Partition делит историю на оставляемую и просроченную части.
// Просроченным считается image-сообщение старше window; сообщения
// без метки времени не трогаем — возраст неизвестен, удалять нельзя.
// Порядок сообщений в обеих частях сохраняется.
func Partition(msgs []domain.Message, now time.Time, window time.Duration) (kept, expired []domain.Message) {
	for _, m := range msgs {
		if m.Kind == domain.KindImage && m.TS > 0 && now.Sub(time.UnixMilli(m.TS)) > window {
			expired = append(expired, m)
			continue
		}
		kept = append(kept, m)
	}
	return kept, expired
}

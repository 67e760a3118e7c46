package domain

const (
	KindText  = "text"
	KindImage = "image"
)

// Message — одна запись истории комнаты. ID генерирует клиент и он
// уникален внутри комнаты; AuthorID — единственный признак владения,
// DisplayName/Color/AvatarRef никогда не участвуют в авторизации.
type Message struct {
	ID            string `json:"id"`
	AuthorID      string `json:"authorId"`
	DisplayName   string `json:"displayName"`
	Color         string `json:"color,omitempty"`
	AvatarRef     string `json:"avatarRef,omitempty"`
	Kind          string `json:"kind"`
	Text          string `json:"text,omitempty"`
	AttachmentRef string `json:"attachmentRef,omitempty"`
	TS            int64  `json:"ts"` // unix millis; 0 = возраст неизвестен
}

func (m Message) Valid() bool {
	if m.ID == "" || m.AuthorID == "" {
		return false
	}
	switch m.Kind {
	case KindText:
		return m.Text != ""
	case KindImage:
		return ValidAttachmentName(m.AttachmentRef)
	}
	return false
}

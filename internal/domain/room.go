package domain

import "regexp"

// Имя комнаты попадает в путь внутри удалённого хранилища,
// поэтому алфавит жёстко ограничен ещё до любого I/O.
var roomNameRe = regexp.MustCompile(`^[A-Za-z0-9_-]{1,40}$`)

// Имя вложения: тот же алфавит + фиксированный суффикс .jpg.
var attachmentNameRe = regexp.MustCompile(`^[A-Za-z0-9_-]{1,40}\.jpg$`)

// RoomDocument — расшифрованное содержимое блоба комнаты.
// Формат полей совпадает с тем, что лежит в хранилище.
type RoomDocument struct {
	Room     string    `json:"room"`
	PassHash string    `json:"passHash"`
	Messages []Message `json:"messages"`
}

func ValidRoomName(name string) bool {
	return roomNameRe.MatchString(name)
}

func ValidAttachmentName(name string) bool {
	return len(name) <= 80 && attachmentNameRe.MatchString(name)
}

package domain

import "errors"

var (
	ErrRoomNotFound    = errors.New("room not found")
	ErrRoomExists      = errors.New("room already exists")
	ErrWrongPassword   = errors.New("wrong password")
	ErrMessageNotFound = errors.New("message not found")
	ErrNotOwner        = errors.New("message belongs to another identity")
	ErrConflict        = errors.New("room was modified concurrently")

	ErrBadRoomName        = errors.New("invalid room name")
	ErrBadMessage         = errors.New("invalid message")
	ErrBadAttachment      = errors.New("invalid attachment")
	ErrAttachmentTaken    = errors.New("attachment name already taken")
	ErrAttachmentNotFound = errors.New("attachment not found")

	// Ошибки кодека: блоб повреждён либо зашифрован другим ключом.
	// Наружу уходят как отказ загрузки комнаты, не как «пустые данные».
	ErrSealedFormat    = errors.New("sealed blob too short")
	ErrSealedIntegrity = errors.New("sealed blob failed authentication")
)

// Ошибки проверки входного токена, по одной на причину отказа.
var (
	ErrTokenMissing       = errors.New("token missing")
	ErrTokenUsed          = errors.New("token already used")
	ErrTokenMalformed     = errors.New("token malformed")
	ErrTokenBadSignature  = errors.New("token signature mismatch")
	ErrTokenWrongRoom     = errors.New("token issued for another room")
	ErrTokenWrongIdentity = errors.New("token issued for another identity")
	ErrTokenExpired       = errors.New("token expired")
)

// TokenReason переводит ошибку проверки токена в машинно-читаемый
// код причины для клиента. Сырые внутренние ошибки наружу не уходят.
func TokenReason(err error) string {
	switch {
	case errors.Is(err, ErrTokenMissing):
		return "missing"
	case errors.Is(err, ErrTokenUsed):
		return "already-used"
	case errors.Is(err, ErrTokenMalformed):
		return "malformed"
	case errors.Is(err, ErrTokenBadSignature):
		return "bad-signature"
	case errors.Is(err, ErrTokenWrongRoom):
		return "wrong-room"
	case errors.Is(err, ErrTokenWrongIdentity):
		return "wrong-identity"
	case errors.Is(err, ErrTokenExpired):
		return "expired"
	}
	return "server_error"
}

package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"io"

	_ "image/gif"
	_ "image/png"

	"github.com/cwrk-planet/vault-room-service/internal/crypto"
	"github.com/cwrk-planet/vault-room-service/internal/domain"
	"github.com/cwrk-planet/vault-room-service/internal/store"

	"github.com/google/uuid"
)

// AttachmentService загружает и отдаёт вложения. Любая картинка
// перед сохранением перекодируется в JPEG — в хранилище не попадает
// ни один байт клиентского файла как есть, а суффикс .jpg всегда
// честный.
type AttachmentService struct {
	store   store.Store
	sealer  *crypto.Sealer
	quality int
}

func NewAttachmentService(st store.Store, sealer *crypto.Sealer) *AttachmentService {
	return &AttachmentService{store: st, sealer: sealer, quality: 85}
}

// Upload перекодирует, шифрует и сохраняет картинку create-only
// записью под серверным именем. Возвращает имя, которое сообщение
// вида image укажет в attachmentRef. Загрузка, за которой так и не
// пришло сообщение, остаётся осиротевшим блобом — известный и
// задокументированный долг по уборке.
func (s *AttachmentService) Upload(ctx context.Context, room string, r io.Reader) (string, error) {
	if !domain.ValidRoomName(room) {
		return "", domain.ErrBadRoomName
	}

	img, _, err := image.Decode(r)
	if err != nil {
		return "", domain.ErrBadAttachment
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: s.quality}); err != nil {
		return "", fmt.Errorf("attachment encode: %w", err)
	}

	sealed, err := s.sealer.Seal(buf.Bytes())
	if err != nil {
		return "", fmt.Errorf("attachment seal: %w", err)
	}

	name := uuid.NewString() + ".jpg"
	if _, err := s.store.Put(ctx, attachmentPath(room, name), sealed, ""); err != nil {
		if errors.Is(err, store.ErrVersionConflict) {
			return "", domain.ErrAttachmentTaken
		}
		return "", fmt.Errorf("attachment store: %w", err)
	}
	return name, nil
}

// Fetch возвращает расшифрованный JPEG по имени вложения.
func (s *AttachmentService) Fetch(ctx context.Context, room, name string) ([]byte, error) {
	if !domain.ValidRoomName(room) {
		return nil, domain.ErrBadRoomName
	}
	if !domain.ValidAttachmentName(name) {
		return nil, domain.ErrBadAttachment
	}

	raw, _, err := s.store.Get(ctx, attachmentPath(room, name))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, domain.ErrAttachmentNotFound
		}
		return nil, fmt.Errorf("attachment fetch: %w", err)
	}

	plain, err := s.sealer.Open(raw)
	if err != nil {
		return nil, fmt.Errorf("attachment fetch %s/%s: %w", room, name, err)
	}
	return plain, nil
}

package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"io"

	"github.com/cwrk-planet/vault-room-service/internal/domain"
)

// Sealer шифрует и расшифровывает блобы перед отправкой в хранилище.
// Ключ один на процесс: sha256(shared secret), AES-256-GCM.
// Раскладка блоба: nonce(12) || tag(16) || ciphertext — в этом виде
// данные уже лежат в хранилище, менять её нельзя.
type Sealer struct {
	aead cipher.AEAD
}

func NewSealer(secret string) (*Sealer, error) {
	key := sha256.Sum256([]byte(secret))
	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, fmt.Errorf("crypto.NewSealer: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("crypto.NewSealer: %w", err)
	}
	return &Sealer{aead: aead}, nil
}

// Seal шифрует plaintext со свежим случайным nonce.
func (s *Sealer) Seal(plain []byte) ([]byte, error) {
	nonce := make([]byte, s.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("crypto.Seal: %w", err)
	}

	// gcm.Seal отдаёт ciphertext||tag, в блобе tag идёт перед ciphertext
	sealed := s.aead.Seal(nil, nonce, plain, nil)
	tagAt := len(sealed) - s.aead.Overhead()

	out := make([]byte, 0, len(nonce)+len(sealed))
	out = append(out, nonce...)
	out = append(out, sealed[tagAt:]...)
	out = append(out, sealed[:tagAt]...)
	return out, nil
}

// Open расшифровывает блоб. ErrSealedFormat — блоб короче nonce+tag,
// ErrSealedIntegrity — не сошлась аутентификация (подмена или чужой ключ).
func (s *Sealer) Open(blob []byte) ([]byte, error) {
	nonceLen, tagLen := s.aead.NonceSize(), s.aead.Overhead()
	if len(blob) < nonceLen+tagLen {
		return nil, domain.ErrSealedFormat
	}

	nonce := blob[:nonceLen]
	tag := blob[nonceLen : nonceLen+tagLen]
	ct := blob[nonceLen+tagLen:]

	sealed := make([]byte, 0, len(ct)+len(tag))
	sealed = append(sealed, ct...)
	sealed = append(sealed, tag...)

	plain, err := s.aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return nil, domain.ErrSealedIntegrity
	}
	return plain, nil
}

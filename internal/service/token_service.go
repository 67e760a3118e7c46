package service

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/cwrk-planet/vault-room-service/internal/domain"
)

// DefaultTokenTTL — срок жизни входного токена. Короткий намеренно:
// режим «пароль на каждое действие».
const DefaultTokenTTL = 10 * time.Minute

type tokenPayload struct {
	Room   string `json:"room"`
	UserID string `json:"userId"`
	TS     int64  `json:"ts"` // unix millis
	Nonce  string `json:"nonce"`
}

// TokenService выпускает и проверяет одноразовые токены входа в
// комнату: base64url(payload) + "." + base64url(hmac-sha256).
// Использованные подписи лежат в минутных корзинах и выметаются по
// истечении TTL, так что память ограничена темпом выпуска внутри
// одного окна и массовой очистки (с окном повтора после неё) нет.
type TokenService struct {
	secret []byte
	ttl    time.Duration

	mu   sync.Mutex
	used map[int64]map[string]struct{} // unix-минута истечения -> подписи

	now func() time.Time
}

func NewTokenService(secret string, ttl time.Duration) *TokenService {
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	return &TokenService{
		secret: []byte(secret),
		ttl:    ttl,
		used:   make(map[int64]map[string]struct{}),
		now:    time.Now,
	}
}

// Issue выпускает токен для пары (room, identity).
func (s *TokenService) Issue(room, identity string) (string, error) {
	nonce := make([]byte, 16)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("token issue: %w", err)
	}

	payload, err := json.Marshal(tokenPayload{
		Room:   room,
		UserID: identity,
		TS:     s.now().UnixMilli(),
		Nonce:  hex.EncodeToString(nonce),
	})
	if err != nil {
		return "", fmt.Errorf("token issue: %w", err)
	}

	payloadB64 := base64.RawURLEncoding.EncodeToString(payload)
	return payloadB64 + "." + s.sign(payloadB64), nil
}

// Verify проверяет токен для пары (room, identity). Сам по себе
// Verify токен не сжигает: вызывающий обязан явно вызвать Consume
// сразу после успешной проверки и до побочных эффектов.
func (s *TokenService) Verify(token, room, identity string) error {
	if token == "" {
		return domain.ErrTokenMissing
	}

	payloadB64, sig, ok := strings.Cut(token, ".")
	if !ok {
		return domain.ErrTokenMalformed
	}

	// сравнение подписи строго constant-time
	expected := s.sign(payloadB64)
	if !hmac.Equal([]byte(sig), []byte(expected)) {
		return domain.ErrTokenBadSignature
	}

	if s.isUsed(sig) {
		return domain.ErrTokenUsed
	}

	raw, err := base64.RawURLEncoding.DecodeString(payloadB64)
	if err != nil {
		return domain.ErrTokenMalformed
	}
	var p tokenPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return domain.ErrTokenMalformed
	}

	if p.Room != room {
		return domain.ErrTokenWrongRoom
	}
	if p.UserID != identity {
		return domain.ErrTokenWrongIdentity
	}
	if p.TS <= 0 || s.now().Sub(time.UnixMilli(p.TS)) > s.ttl {
		return domain.ErrTokenExpired
	}
	return nil
}

// Consume необратимо гасит токен.
func (s *TokenService) Consume(token string) {
	_, sig, ok := strings.Cut(token, ".")
	if !ok {
		return
	}

	// токен потребляется только пока жив, значит истекает не позже now+ttl
	expires := s.now().Add(s.ttl)
	bucket := expires.Unix() / 60

	s.mu.Lock()
	defer s.mu.Unlock()

	s.sweepLocked()
	set, ok := s.used[bucket]
	if !ok {
		set = make(map[string]struct{})
		s.used[bucket] = set
	}
	set[sig] = struct{}{}
}

func (s *TokenService) isUsed(sig string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.sweepLocked()
	for _, set := range s.used {
		if _, ok := set[sig]; ok {
			return true
		}
	}
	return false
}

// sweepLocked выбрасывает корзины, чьё время истечения прошло:
// повтор таких токенов и так отбивается проверкой срока.
func (s *TokenService) sweepLocked() {
	nowBucket := s.now().Unix() / 60
	for b := range s.used {
		if b < nowBucket {
			delete(s.used, b)
		}
	}
}

func (s *TokenService) sign(payloadB64 string) string {
	mac := hmac.New(sha256.New, s.secret)
	mac.Write([]byte(payloadB64))
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}

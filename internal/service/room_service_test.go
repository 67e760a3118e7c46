package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/cwrk-planet/vault-room-service/internal/crypto"
	"github.com/cwrk-planet/vault-room-service/internal/domain"
	"github.com/cwrk-planet/vault-room-service/internal/store"
)

func newTestRoomService(t *testing.T) (*RoomService, *store.Memory) {
	t.Helper()
	sealer, err := crypto.NewSealer("unit-test-secret")
	if err != nil {
		t.Fatalf("NewSealer: %v", err)
	}
	mem := store.NewMemory()
	return NewRoomService(mem, sealer, nil), mem
}

func textMsg(id, author, text string) domain.Message {
	return domain.Message{ID: id, AuthorID: author, DisplayName: "u", Kind: domain.KindText, Text: text, TS: time.Now().UnixMilli()}
}

func TestCreateAndAuthenticate(t *testing.T) {
	svc, _ := newTestRoomService(t)
	ctx := context.Background()

	if err := svc.Create(ctx, "general", "hunter42"); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := svc.Authenticate(ctx, "general", "hunter42"); err != nil {
		t.Fatalf("Authenticate with right password: %v", err)
	}
	if err := svc.Authenticate(ctx, "general", "wrong"); !errors.Is(err, domain.ErrWrongPassword) {
		t.Fatalf("Authenticate with wrong password: expected ErrWrongPassword, got %v", err)
	}
	if err := svc.Authenticate(ctx, "missing", "x"); !errors.Is(err, domain.ErrRoomNotFound) {
		t.Fatalf("Authenticate on missing room: expected ErrRoomNotFound, got %v", err)
	}
}

func TestCreate_Validation(t *testing.T) {
	svc, _ := newTestRoomService(t)
	ctx := context.Background()

	for _, name := range []string{"", "a b", "а-кириллица", "x/../../etc", "this-name-is-way-too-long-to-be-a-valid-room-name"} {
		if err := svc.Create(ctx, name, "pw"); !errors.Is(err, domain.ErrBadRoomName) {
			t.Fatalf("Create(%q): expected ErrBadRoomName, got %v", name, err)
		}
	}
}

func TestCreate_Twice(t *testing.T) {
	svc, _ := newTestRoomService(t)
	ctx := context.Background()

	if err := svc.Create(ctx, "r", "first-pass"); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := svc.Append(ctx, "r", textMsg("m1", "alice", "hi")); err != nil {
		t.Fatalf("Append: %v", err)
	}

	if err := svc.Create(ctx, "r", "second-pass"); !errors.Is(err, domain.ErrRoomExists) {
		t.Fatalf("second Create: expected ErrRoomExists, got %v", err)
	}

	// данные первой комнаты не тронуты
	if err := svc.Authenticate(ctx, "r", "first-pass"); err != nil {
		t.Fatalf("first password no longer valid: %v", err)
	}
	msgs, err := svc.History(ctx, "r")
	if err != nil || len(msgs) != 1 || msgs[0].ID != "m1" {
		t.Fatalf("history after failed create: %v %v", msgs, err)
	}
}

func TestAppend_CapDropsOldest(t *testing.T) {
	svc, _ := newTestRoomService(t)
	ctx := context.Background()
	svc.Create(ctx, "r", "pw")

	for i := 0; i < 105; i++ {
		if err := svc.Append(ctx, "r", textMsg(fmt.Sprintf("m%03d", i), "alice", "hi")); err != nil {
			t.Fatalf("Append %d: %v", i, err)
		}
	}

	msgs, err := svc.History(ctx, "r")
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(msgs) != 100 {
		t.Fatalf("history length = %d, want 100", len(msgs))
	}
	if msgs[0].ID != "m005" || msgs[99].ID != "m104" {
		t.Fatalf("retained window = [%s..%s], want [m005..m104]", msgs[0].ID, msgs[99].ID)
	}
}

func TestDelete_Ownership(t *testing.T) {
	svc, _ := newTestRoomService(t)
	ctx := context.Background()
	svc.Create(ctx, "r", "pw")
	svc.Append(ctx, "r", textMsg("m1", "alice", "one"))
	svc.Append(ctx, "r", textMsg("m2", "bob", "two"))

	if err := svc.Delete(ctx, "r", "m1", "bob"); !errors.Is(err, domain.ErrNotOwner) {
		t.Fatalf("delete by non-owner: expected ErrNotOwner, got %v", err)
	}
	msgs, _ := svc.History(ctx, "r")
	if len(msgs) != 2 {
		t.Fatalf("message removed by forbidden delete: %v", msgs)
	}

	if err := svc.Delete(ctx, "r", "m1", "alice"); err != nil {
		t.Fatalf("delete by owner: %v", err)
	}
	msgs, _ = svc.History(ctx, "r")
	if len(msgs) != 1 || msgs[0].ID != "m2" {
		t.Fatalf("history after delete: %v", msgs)
	}

	if err := svc.Delete(ctx, "r", "gone", "alice"); !errors.Is(err, domain.ErrMessageNotFound) {
		t.Fatalf("delete of missing id: expected ErrMessageNotFound, got %v", err)
	}
}

func TestDelete_RemovesAttachmentBlob(t *testing.T) {
	svc, mem := newTestRoomService(t)
	ctx := context.Background()
	svc.Create(ctx, "r", "pw")

	mem.Put(ctx, "attachments/r/pic.jpg", []byte("sealed"), "")
	msg := domain.Message{ID: "m1", AuthorID: "alice", Kind: domain.KindImage, AttachmentRef: "pic.jpg", TS: time.Now().UnixMilli()}
	if err := svc.Append(ctx, "r", msg); err != nil {
		t.Fatalf("Append: %v", err)
	}

	if err := svc.Delete(ctx, "r", "m1", "alice"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, _, err := mem.Get(ctx, "attachments/r/pic.jpg"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("attachment blob survived delete: %v", err)
	}
}

func TestPrune_RetentionWindow(t *testing.T) {
	svc, mem := newTestRoomService(t)
	ctx := context.Background()
	svc.Create(ctx, "r", "pw")

	now := time.Now()
	svc.now = func() time.Time { return now }

	mem.Put(ctx, "attachments/r/old.jpg", []byte("sealed"), "")
	mem.Put(ctx, "attachments/r/fresh.jpg", []byte("sealed"), "")

	old := domain.Message{ID: "old", AuthorID: "a", Kind: domain.KindImage, AttachmentRef: "old.jpg",
		TS: now.Add(-31 * 24 * time.Hour).UnixMilli()}
	fresh := domain.Message{ID: "fresh", AuthorID: "a", Kind: domain.KindImage, AttachmentRef: "fresh.jpg",
		TS: now.Add(-29 * 24 * time.Hour).UnixMilli()}
	ageless := domain.Message{ID: "ageless", AuthorID: "a", Kind: domain.KindText, Text: "no ts"}

	for _, m := range []domain.Message{old, fresh, ageless} {
		if err := svc.Append(ctx, "r", m); err != nil {
			t.Fatalf("Append %s: %v", m.ID, err)
		}
	}

	msgs, err := svc.History(ctx, "r")
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	ids := map[string]bool{}
	for _, m := range msgs {
		ids[m.ID] = true
	}
	if ids["old"] {
		t.Fatal("31-day-old image survived pruning")
	}
	if !ids["fresh"] || !ids["ageless"] {
		t.Fatalf("pruning removed live messages: %v", ids)
	}

	if _, _, err := mem.Get(ctx, "attachments/r/old.jpg"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expired attachment blob not deleted: %v", err)
	}
	if _, _, err := mem.Get(ctx, "attachments/r/fresh.jpg"); err != nil {
		t.Fatalf("fresh attachment blob deleted: %v", err)
	}
}

func TestClear_RemovesEverything(t *testing.T) {
	svc, mem := newTestRoomService(t)
	ctx := context.Background()
	svc.Create(ctx, "r", "pw")

	mem.Put(ctx, "attachments/r/a.jpg", []byte("sealed"), "")
	svc.Append(ctx, "r", textMsg("m1", "alice", "hi"))
	svc.Append(ctx, "r", domain.Message{ID: "m2", AuthorID: "bob", Kind: domain.KindImage, AttachmentRef: "a.jpg", TS: time.Now().UnixMilli()})

	if err := svc.Clear(ctx, "r"); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	msgs, err := svc.History(ctx, "r")
	if err != nil || len(msgs) != 0 {
		t.Fatalf("history after clear: %v %v", msgs, err)
	}
	if _, _, err := mem.Get(ctx, "attachments/r/a.jpg"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("attachment blob survived clear: %v", err)
	}
}

func TestListRooms(t *testing.T) {
	svc, mem := newTestRoomService(t)
	ctx := context.Background()
	svc.Create(ctx, "beta", "pw")
	svc.Create(ctx, "alpha", "pw")
	mem.Put(ctx, "rooms/garbage.txt", []byte("x"), "")

	rooms, err := svc.ListRooms(ctx)
	if err != nil {
		t.Fatalf("ListRooms: %v", err)
	}
	if len(rooms) != 2 || rooms[0] != "alpha" || rooms[1] != "beta" {
		t.Fatalf("ListRooms = %v", rooms)
	}
}

// conflictStore прокидывает всё в Memory, но первые fail вызовов Put
// завершает конфликтом версий.
type conflictStore struct {
	*store.Memory
	fail int
}

func (c *conflictStore) Put(ctx context.Context, path string, content []byte, version string) (string, error) {
	if c.fail > 0 && version != "" {
		c.fail--
		return "", store.ErrVersionConflict
	}
	return c.Memory.Put(ctx, path, content, version)
}

func TestAppend_RetriesThenSucceeds(t *testing.T) {
	sealer, _ := crypto.NewSealer("unit-test-secret")
	cs := &conflictStore{Memory: store.NewMemory(), fail: 2}
	svc := NewRoomService(cs, sealer, nil)
	ctx := context.Background()

	if err := svc.Create(ctx, "r", "pw"); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := svc.Append(ctx, "r", textMsg("m1", "alice", "hi")); err != nil {
		t.Fatalf("Append with 2 conflicts must succeed on retry, got %v", err)
	}
}

func TestAppend_SurfacesConflictAfterRetries(t *testing.T) {
	sealer, _ := crypto.NewSealer("unit-test-secret")
	cs := &conflictStore{Memory: store.NewMemory(), fail: 10}
	svc := NewRoomService(cs, sealer, nil)
	ctx := context.Background()

	if err := svc.Create(ctx, "r", "pw"); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := svc.Append(ctx, "r", textMsg("m1", "alice", "hi")); !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("expected ErrConflict after exhausted retries, got %v", err)
	}

	msgs, _ := svc.History(ctx, "r")
	if len(msgs) != 0 {
		t.Fatalf("failed append still landed: %v", msgs)
	}
}

// Два писателя, прочитавшие один тег: победить должен ровно один,
// в документе ровно одно из двух сообщений.
func TestConcurrentWriters_SameVersion(t *testing.T) {
	sealer, _ := crypto.NewSealer("unit-test-secret")
	mem := store.NewMemory()
	ctx := context.Background()

	seedDoc := &domain.RoomDocument{Room: "r", PassHash: "x", Messages: []domain.Message{}}
	seed, _ := json.Marshal(seedDoc)
	sealed, _ := sealer.Seal(seed)
	version, _ := mem.Put(ctx, "rooms/r.env.json", sealed, "")

	write := func(id string) error {
		doc := &domain.RoomDocument{Room: "r", PassHash: "x",
			Messages: []domain.Message{textMsg(id, "a", "hi")}}
		plain, _ := json.Marshal(doc)
		blob, _ := sealer.Seal(plain)
		_, err := mem.Put(ctx, "rooms/r.env.json", blob, version)
		return err
	}

	err1 := write("w1")
	err2 := write("w2")

	if (err1 == nil) == (err2 == nil) {
		t.Fatalf("exactly one writer must win: err1=%v err2=%v", err1, err2)
	}
	loser := err1
	if loser == nil {
		loser = err2
	}
	if !errors.Is(loser, store.ErrVersionConflict) {
		t.Fatalf("loser must see ErrVersionConflict, got %v", loser)
	}

	raw, _, _ := mem.Get(ctx, "rooms/r.env.json")
	plain, _ := sealer.Open(raw)
	var doc domain.RoomDocument
	json.Unmarshal(plain, &doc)
	if len(doc.Messages) != 1 {
		t.Fatalf("document must hold exactly one message, got %d", len(doc.Messages))
	}
}

package http

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/cwrk-planet/vault-room-service/internal/domain"
	"github.com/cwrk-planet/vault-room-service/internal/service"

	"github.com/go-chi/chi/v5"
)

type Handler struct {
	roomSvc   *service.RoomService
	tokenSvc  *service.TokenService
	attachSvc *service.AttachmentService

	entryPassword  []byte
	maxUploadBytes int64
}

func NewHandler(room *service.RoomService, token *service.TokenService, attach *service.AttachmentService, entryPassword string, maxUploadBytes int64) *Handler {
	if maxUploadBytes <= 0 {
		maxUploadBytes = 8 << 20
	}
	return &Handler{
		roomSvc:        room,
		tokenSvc:       token,
		attachSvc:      attach,
		entryPassword:  []byte(entryPassword),
		maxUploadBytes: maxUploadBytes,
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// POST /auth — входной пароль сайта, общий для всех.
func (h *Handler) Auth(w http.ResponseWriter, r *http.Request) {
	var req AuthRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid json"})
		return
	}
	ok := subtle.ConstantTimeCompare([]byte(req.Password), h.entryPassword) == 1
	writeJSON(w, http.StatusOK, AuthResponse{OK: ok})
}

// GET /rooms
func (h *Handler) ListRooms(w http.ResponseWriter, r *http.Request) {
	rooms, err := h.roomSvc.ListRooms(r.Context())
	if err != nil {
		slog.Error("handler.ListRooms:", slog.Any("err", err))
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: "failed to list rooms"})
		return
	}
	writeJSON(w, http.StatusOK, RoomsListResponse{Rooms: rooms})
}

// POST /rooms/create
func (h *Handler) CreateRoom(w http.ResponseWriter, r *http.Request) {
	var req CreateRoomRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, OKResponse{Error: "invalid json"})
		return
	}
	if req.Room == "" || req.Password == "" {
		writeJSON(w, http.StatusBadRequest, OKResponse{Error: "missing"})
		return
	}

	switch err := h.roomSvc.Create(r.Context(), req.Room, req.Password); {
	case err == nil:
		writeJSON(w, http.StatusOK, OKResponse{OK: true})
	case errors.Is(err, domain.ErrBadRoomName):
		writeJSON(w, http.StatusBadRequest, OKResponse{Error: "bad_room_name"})
	case errors.Is(err, domain.ErrRoomExists):
		writeJSON(w, http.StatusOK, OKResponse{Error: "exists"})
	default:
		slog.Error("handler.CreateRoom:", slog.Any("err", err))
		writeJSON(w, http.StatusInternalServerError, OKResponse{Error: "server"})
	}
}

// POST /rooms/join — при верном пароле выдаёт одноразовый токен.
func (h *Handler) JoinRoom(w http.ResponseWriter, r *http.Request) {
	var req JoinRoomRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, JoinRoomResponse{Error: "invalid json"})
		return
	}
	if req.Room == "" || req.Password == "" || req.UserID == "" {
		writeJSON(w, http.StatusBadRequest, JoinRoomResponse{Error: "missing"})
		return
	}

	switch err := h.roomSvc.Authenticate(r.Context(), req.Room, req.Password); {
	case err == nil:
	case errors.Is(err, domain.ErrRoomNotFound), errors.Is(err, domain.ErrBadRoomName):
		writeJSON(w, http.StatusOK, JoinRoomResponse{Error: "not_found"})
		return
	case errors.Is(err, domain.ErrWrongPassword):
		writeJSON(w, http.StatusOK, JoinRoomResponse{Error: "wrong_password"})
		return
	default:
		slog.Error("handler.JoinRoom:", slog.Any("err", err))
		writeJSON(w, http.StatusInternalServerError, JoinRoomResponse{Error: "server"})
		return
	}

	token, err := h.tokenSvc.Issue(req.Room, req.UserID)
	if err != nil {
		slog.Error("handler.JoinRoom.Issue:", slog.Any("err", err))
		writeJSON(w, http.StatusInternalServerError, JoinRoomResponse{Error: "server"})
		return
	}
	writeJSON(w, http.StatusOK, JoinRoomResponse{OK: true, Token: token})
}

// POST /rooms/{room}/attachments — multipart, поле file.
func (h *Handler) UploadAttachment(w http.ResponseWriter, r *http.Request) {
	room := chi.URLParam(r, "room")

	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes)
	if err := r.ParseMultipartForm(h.maxUploadBytes); err != nil {
		writeJSON(w, http.StatusRequestEntityTooLarge, UploadResponse{Error: "too_large"})
		return
	}
	file, _, err := r.FormFile("file")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, UploadResponse{Error: "missing"})
		return
	}
	defer file.Close()

	switch name, err := h.attachSvc.Upload(r.Context(), room, file); {
	case err == nil:
		writeJSON(w, http.StatusOK, UploadResponse{OK: true, Name: name})
	case errors.Is(err, domain.ErrBadRoomName):
		writeJSON(w, http.StatusBadRequest, UploadResponse{Error: "bad_room_name"})
	case errors.Is(err, domain.ErrBadAttachment):
		writeJSON(w, http.StatusBadRequest, UploadResponse{Error: "bad_image"})
	default:
		slog.Error("handler.UploadAttachment:", slog.Any("err", err))
		writeJSON(w, http.StatusInternalServerError, UploadResponse{Error: "server"})
	}
}

// GET /rooms/{room}/attachments/{name}
func (h *Handler) GetAttachment(w http.ResponseWriter, r *http.Request) {
	room := chi.URLParam(r, "room")
	name := chi.URLParam(r, "name")

	switch data, err := h.attachSvc.Fetch(r.Context(), room, name); {
	case err == nil:
		w.Header().Set("Content-Type", "image/jpeg")
		w.Header().Set("Cache-Control", "private, max-age=86400")
		_, _ = w.Write(data)
	case errors.Is(err, domain.ErrBadRoomName), errors.Is(err, domain.ErrBadAttachment):
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "bad_name"})
	case errors.Is(err, domain.ErrAttachmentNotFound):
		writeJSON(w, http.StatusNotFound, ErrorResponse{Error: "not_found"})
	default:
		slog.Error("handler.GetAttachment:", slog.Any("err", err))
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: "server"})
	}
}

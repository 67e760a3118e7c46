package http

type AuthRequest struct {
	Password string `json:"password"`
}

type AuthResponse struct {
	OK bool `json:"ok"`
}

type CreateRoomRequest struct {
	Room     string `json:"room"`
	Password string `json:"password"`
}

type JoinRoomRequest struct {
	Room     string `json:"room"`
	Password string `json:"password"`
	UserID   string `json:"userId"`
}

type JoinRoomResponse struct {
	OK    bool   `json:"ok"`
	Token string `json:"token,omitempty"`
	Error string `json:"error,omitempty"`
}

type OKResponse struct {
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

type RoomsListResponse struct {
	Rooms []string `json:"rooms"`
}

type UploadResponse struct {
	OK    bool   `json:"ok"`
	Name  string `json:"name,omitempty"`
	Error string `json:"error,omitempty"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

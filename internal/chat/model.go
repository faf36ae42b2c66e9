package chat

import "time"

type Sender struct {
	ID    int    `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

// Message is a stored chat message as the history API returns it.
type Message struct {
	ID          int       `json:"id"`
	RoomID      string    `json:"roomId"`
	Sender      Sender    `json:"sender"`
	Message     string    `json:"message"`
	MessageType string    `json:"messageType"`
	CreatedAt   time.Time `json:"createdAt"`
}

type CreateRoomRequest struct {
	RoomName    string `json:"roomName" validate:"required,max=100"`
	Description string `json:"description"`
}

type CreateRoomResponse struct {
	RoomID  string `json:"roomId"`
	Message string `json:"message"`
}

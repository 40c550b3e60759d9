package dto

import "time"

// StartSupportChatResponse returns the room to connect to.
type StartSupportChatResponse struct {
	RoomName string `json:"room_name"`
}

// ChatMessageResponse is one transcript line.
type ChatMessageResponse struct {
	ID        int64     `json:"id"`
	Username  string    `json:"username"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"created_at"`
}

// TranscriptResponse is a room transcript with its ticket, if any.
type TranscriptResponse struct {
	RoomName string                `json:"room_name"`
	Ticket   *TicketSummary        `json:"ticket"`
	Messages []ChatMessageResponse `json:"messages"`
}

package domain

import "time"

// ChatMessage is one persisted line of a chat room transcript. Immutable
// once stored.
type ChatMessage struct {
	ID        int64
	RoomName  string
	UserID    string
	Username  string
	Body      string
	CreatedAt time.Time
}

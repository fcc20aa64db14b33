package chat

import (
	"time"

	"github.com/CUknot/roomchat/models"
)

// Event types exchanged with connected clients.
const (
	EventNewMessage = "new-message"
	EventJoin       = "join"
	EventError      = "error"
)

// AvatarSize is the gravatar size used next to chat lines.
const AvatarSize = 25

// Event is the envelope of every realtime frame.
type Event struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

// MessageView is a message as pushed to clients and listed in room history.
type MessageView struct {
	ID             uint      `json:"id"`
	RoomID         uint      `json:"roomId"`
	Text           string    `json:"text"`
	SenderUsername string    `json:"senderUsername"`
	SentAt         time.Time `json:"sentAt"`
	AvatarURL      string    `json:"avatarUrl"`
}

// NewMessageView renders message as sent by sender. A nil sender falls
// back to message.Sender.
func NewMessageView(message *models.Message, sender *models.User) MessageView {
	if sender == nil {
		sender = message.Sender
	}
	view := MessageView{
		ID:     message.ID,
		RoomID: message.RoomID,
		Text:   message.Text,
		SentAt: message.SentAt,
	}
	if sender != nil {
		view.SenderUsername = sender.Username
		view.AvatarURL = sender.GravatarURL(AvatarSize)
	}
	return view
}

// ErrorPayload is the payload of an error event.
type ErrorPayload struct {
	Message string `json:"message"`
}

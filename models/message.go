package models

import (
	"time"

	"gorm.io/gorm"
)

// MaxMessageLength is the longest message body accepted, in characters.
const MaxMessageLength = 200

type Message struct {
	ID       uint      `gorm:"primaryKey" json:"id"`
	Text     string    `gorm:"size:200" json:"text"`
	SentAt   time.Time `gorm:"index:idx_messages_room_sent,priority:2" json:"sent_at"`
	SenderID uint      `gorm:"index" json:"sender_id"`
	Sender   *User     `gorm:"foreignKey:SenderID;constraint:OnDelete:CASCADE;" json:"sender,omitempty"`
	RoomID   uint      `gorm:"index:idx_messages_room_sent,priority:1" json:"room_id"`
}

// BeforeCreate stamps the send time when the caller did not.
func (m *Message) BeforeCreate(tx *gorm.DB) error {
	if m.SentAt.IsZero() {
		m.SentAt = time.Now().UTC()
	}
	return nil
}

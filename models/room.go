package models

import (
	"time"
)

type Room struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	Name        string    `gorm:"size:128;index;not null" json:"name"`
	Description string    `gorm:"type:text" json:"description"`
	CreatedAt   time.Time `gorm:"index" json:"created_at"`
	CreatorID   uint      `gorm:"index" json:"creator_id"`
	Creator     *User     `gorm:"foreignKey:CreatorID;constraint:OnDelete:CASCADE;" json:"creator,omitempty"`
	CategoryID  *uint     `gorm:"index" json:"category_id"`
	Category    *Category `gorm:"foreignKey:CategoryID" json:"category,omitempty"`
	Users       []User    `gorm:"many2many:participants;constraint:OnDelete:CASCADE;" json:"users,omitempty"`
	Messages    []Message `gorm:"constraint:OnDelete:CASCADE;" json:"messages,omitempty"`
}

// Participant is the join row between rooms and the users that joined them.
type Participant struct {
	RoomID    uint      `gorm:"primaryKey" json:"room_id"`
	UserID    uint      `gorm:"primaryKey" json:"user_id"`
	CreatedAt time.Time `json:"created_at"`
}

package models

// Category groups rooms by topic. Deleting a category deletes its rooms.
type Category struct {
	ID    uint   `gorm:"primaryKey" json:"id"`
	Name  string `gorm:"size:64;index" json:"name"`
	Rooms []Room `gorm:"constraint:OnDelete:CASCADE;" json:"rooms,omitempty"`
}

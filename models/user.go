package models

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"regexp"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// UsernamePattern is the accepted shape of a username.
var UsernamePattern = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9._]*$`)

// Authenticatable is the identity a request or a chat session acts as.
type Authenticatable interface {
	GetID() uint
	IsAuthenticated() bool
}

type User struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	Username     string    `gorm:"size:64;not null;uniqueIndex" json:"username"`
	Email        string    `gorm:"size:64;not null;uniqueIndex" json:"-"`
	Password     string    `gorm:"-" json:"-"`
	PasswordHash string    `gorm:"size:128;not null" json:"-"`
	Confirmed    bool      `gorm:"default:false" json:"confirmed"`
	Name         string    `gorm:"size:64" json:"name"`
	AboutMe      string    `gorm:"type:text" json:"about_me"`
	GravatarHash string    `gorm:"size:32" json:"-"`
	LastSeen     time.Time `json:"last_seen"`
	MemberSince  time.Time `json:"member_since"`
	Rooms        []Room    `gorm:"many2many:participants;constraint:OnDelete:CASCADE;" json:"-"`
	RoomsOwned   []Room    `gorm:"foreignKey:CreatorID" json:"-"`
	Messages     []Message `gorm:"foreignKey:SenderID" json:"-"`
}

func (u *User) GetID() uint {
	return u.ID
}

func (u *User) IsAuthenticated() bool {
	return u != nil && u.ID != 0
}

// BeforeSave hashes a newly set password and keeps the gravatar hash in
// sync with the email address.
func (u *User) BeforeSave(tx *gorm.DB) error {
	if u.Password != "" {
		hashedPassword, err := bcrypt.GenerateFromPassword([]byte(u.Password), bcrypt.DefaultCost)
		if err != nil {
			return err
		}
		u.PasswordHash = string(hashedPassword)
		u.Password = ""
	}
	if u.Email != "" {
		u.GravatarHash = emailHash(u.Email)
	}
	return nil
}

// BeforeCreate fills the join and activity timestamps.
func (u *User) BeforeCreate(tx *gorm.DB) error {
	now := time.Now().UTC()
	if u.MemberSince.IsZero() {
		u.MemberSince = now
	}
	if u.LastSeen.IsZero() {
		u.LastSeen = now
	}
	return nil
}

// ValidatePassword checks if the provided password matches the stored hash
func (u *User) ValidatePassword(password string) error {
	return bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password))
}

// GravatarURL builds the avatar URL served by gravatar for the user's email.
func (u *User) GravatarURL(size int) string {
	hash := u.GravatarHash
	if hash == "" {
		hash = emailHash(u.Email)
	}
	return fmt.Sprintf("https://www.gravatar.com/avatar/%s?s=%d&d=mp&r=g", hash, size)
}

func emailHash(email string) string {
	sum := md5.Sum([]byte(strings.ToLower(strings.TrimSpace(email))))
	return hex.EncodeToString(sum[:])
}

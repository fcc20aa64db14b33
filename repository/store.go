// Package repository is the persistence gateway: typed queries over the
// gorm models plus the cascade rules between them.
package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/CUknot/roomchat/models"
	"gorm.io/gorm"
)

var (
	// ErrNotFound is returned when a record does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrDuplicate is returned when a unique username or email is taken.
	ErrDuplicate = errors.New("record already exists")
)

// Store provides access to rooms, messages, users and categories.
type Store struct {
	db *gorm.DB
}

// NewStore creates a new store over db.
func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// Transaction runs fn inside a single database transaction. The Store
// passed to fn is bound to the transaction; returning an error rolls back.
func (s *Store) Transaction(ctx context.Context, fn func(tx *Store) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&Store{db: tx})
	})
}

func (s *Store) conn(ctx context.Context) *gorm.DB {
	return s.db.WithContext(ctx)
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}

// Users

// CreateUser inserts a user. ErrDuplicate is returned when the username or
// email is already taken.
func (s *Store) CreateUser(ctx context.Context, user *models.User) error {
	if user.Password == "" && user.PasswordHash == "" {
		return errors.New("failed to create user: password is required")
	}
	taken, err := s.usernameOrEmailTaken(ctx, user.Username, user.Email, 0)
	if err != nil {
		return err
	}
	if taken {
		return ErrDuplicate
	}
	if err := s.conn(ctx).Create(user).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return ErrDuplicate
		}
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

func (s *Store) usernameOrEmailTaken(ctx context.Context, username, email string, exceptID uint) (bool, error) {
	var count int64
	err := s.conn(ctx).Model(&models.User{}).
		Where("(username = ? OR email = ?) AND id <> ?", username, email, exceptID).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("failed to check user uniqueness: %w", err)
	}
	return count > 0, nil
}

// UsernameTaken reports whether username belongs to an existing account.
func (s *Store) UsernameTaken(ctx context.Context, username string) (bool, error) {
	var count int64
	err := s.conn(ctx).Model(&models.User{}).Where("username = ?", username).Count(&count).Error
	return count > 0, err
}

// EmailTaken reports whether email belongs to an existing account.
func (s *Store) EmailTaken(ctx context.Context, email string) (bool, error) {
	var count int64
	err := s.conn(ctx).Model(&models.User{}).Where("email = ?", email).Count(&count).Error
	return count > 0, err
}

// FindUserByID retrieves a user by primary key.
func (s *Store) FindUserByID(ctx context.Context, id uint) (*models.User, error) {
	var user models.User
	if err := s.conn(ctx).First(&user, id).Error; err != nil {
		return nil, notFound(err)
	}
	return &user, nil
}

// FindUserByUsername retrieves a user by unique username.
func (s *Store) FindUserByUsername(ctx context.Context, username string) (*models.User, error) {
	var user models.User
	if err := s.conn(ctx).Where("username = ?", username).First(&user).Error; err != nil {
		return nil, notFound(err)
	}
	return &user, nil
}

// FindUserByEmail retrieves a user by unique email.
func (s *Store) FindUserByEmail(ctx context.Context, email string) (*models.User, error) {
	var user models.User
	if err := s.conn(ctx).Where("email = ?", email).First(&user).Error; err != nil {
		return nil, notFound(err)
	}
	return &user, nil
}

// UpdateUser saves every column of user, rehashing Password if it is set.
func (s *Store) UpdateUser(ctx context.Context, user *models.User) error {
	if user.Email != "" {
		var count int64
		err := s.conn(ctx).Model(&models.User{}).
			Where("email = ? AND id <> ?", user.Email, user.ID).
			Count(&count).Error
		if err != nil {
			return fmt.Errorf("failed to check email uniqueness: %w", err)
		}
		if count > 0 {
			return ErrDuplicate
		}
	}
	if err := s.conn(ctx).Save(user).Error; err != nil {
		return fmt.Errorf("failed to update user: %w", err)
	}
	return nil
}

// TouchUser records that the user was just seen.
func (s *Store) TouchUser(ctx context.Context, id uint) error {
	return s.conn(ctx).Model(&models.User{}).
		Where("id = ?", id).
		UpdateColumn("last_seen", time.Now().UTC()).Error
}

// DeleteUser removes a user together with the rooms they own and the
// messages they authored.
func (s *Store) DeleteUser(ctx context.Context, id uint) error {
	return s.Transaction(ctx, func(tx *Store) error {
		if _, err := tx.FindUserByID(ctx, id); err != nil {
			return err
		}
		var owned []uint
		if err := tx.conn(ctx).Model(&models.Room{}).Where("creator_id = ?", id).Pluck("id", &owned).Error; err != nil {
			return fmt.Errorf("failed to list owned rooms: %w", err)
		}
		if err := tx.deleteRooms(ctx, owned); err != nil {
			return err
		}
		if err := tx.conn(ctx).Where("sender_id = ?", id).Delete(&models.Message{}).Error; err != nil {
			return fmt.Errorf("failed to delete user messages: %w", err)
		}
		if err := tx.conn(ctx).Where("user_id = ?", id).Delete(&models.Participant{}).Error; err != nil {
			return fmt.Errorf("failed to delete user memberships: %w", err)
		}
		if err := tx.conn(ctx).Delete(&models.User{}, id).Error; err != nil {
			return fmt.Errorf("failed to delete user: %w", err)
		}
		return nil
	})
}

// Categories

// CreateCategory inserts a category.
func (s *Store) CreateCategory(ctx context.Context, category *models.Category) error {
	if err := s.conn(ctx).Create(category).Error; err != nil {
		return fmt.Errorf("failed to create category: %w", err)
	}
	return nil
}

// FindCategory retrieves a category by id.
func (s *Store) FindCategory(ctx context.Context, id uint) (*models.Category, error) {
	var category models.Category
	if err := s.conn(ctx).First(&category, id).Error; err != nil {
		return nil, notFound(err)
	}
	return &category, nil
}

// ListCategories returns every category ordered by name.
func (s *Store) ListCategories(ctx context.Context) ([]models.Category, error) {
	var categories []models.Category
	if err := s.conn(ctx).Order("name ASC").Find(&categories).Error; err != nil {
		return nil, fmt.Errorf("failed to list categories: %w", err)
	}
	return categories, nil
}

// CategoryCount is a category with the number of rooms filed under it.
type CategoryCount struct {
	ID        uint   `json:"id"`
	Name      string `json:"name"`
	RoomCount int64  `json:"room_count"`
}

// TopCategories returns up to limit categories with the most rooms.
func (s *Store) TopCategories(ctx context.Context, limit int) ([]CategoryCount, error) {
	var result []CategoryCount
	if limit <= 0 {
		return result, nil
	}
	err := s.conn(ctx).Model(&models.Category{}).
		Select("categories.id, categories.name, COUNT(rooms.id) AS room_count").
		Joins("LEFT JOIN rooms ON rooms.category_id = categories.id").
		Group("categories.id, categories.name").
		Order("room_count DESC, categories.id ASC").
		Limit(limit).
		Scan(&result).Error
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate categories: %w", err)
	}
	return result, nil
}

// DeleteCategory removes a category, its rooms and their messages.
func (s *Store) DeleteCategory(ctx context.Context, id uint) error {
	return s.Transaction(ctx, func(tx *Store) error {
		if _, err := tx.FindCategory(ctx, id); err != nil {
			return err
		}
		var rooms []uint
		if err := tx.conn(ctx).Model(&models.Room{}).Where("category_id = ?", id).Pluck("id", &rooms).Error; err != nil {
			return fmt.Errorf("failed to list category rooms: %w", err)
		}
		if err := tx.deleteRooms(ctx, rooms); err != nil {
			return err
		}
		if err := tx.conn(ctx).Delete(&models.Category{}, id).Error; err != nil {
			return fmt.Errorf("failed to delete category: %w", err)
		}
		return nil
	})
}

// Rooms

// CreateRoom inserts a room and adds its creator as the first participant.
func (s *Store) CreateRoom(ctx context.Context, room *models.Room) error {
	return s.Transaction(ctx, func(tx *Store) error {
		if err := tx.conn(ctx).Omit("Users", "Messages", "Creator", "Category").Create(room).Error; err != nil {
			return fmt.Errorf("failed to create room: %w", err)
		}
		if room.CreatorID != 0 {
			return tx.AddParticipant(ctx, room.ID, room.CreatorID)
		}
		return nil
	})
}

// FindRoom retrieves a room with its creator and category.
func (s *Store) FindRoom(ctx context.Context, id uint) (*models.Room, error) {
	var room models.Room
	if err := s.conn(ctx).Preload("Creator").Preload("Category").First(&room, id).Error; err != nil {
		return nil, notFound(err)
	}
	return &room, nil
}

// RoomExists reports whether a room with id exists.
func (s *Store) RoomExists(ctx context.Context, id uint) (bool, error) {
	var count int64
	if err := s.conn(ctx).Model(&models.Room{}).Where("id = ?", id).Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// Page describes one page of a paginated listing.
type Page struct {
	Number  int   `json:"page"`
	PerPage int   `json:"per_page"`
	Total   int64 `json:"total"`
	Pages   int   `json:"pages"`
	HasNext bool  `json:"has_next"`
	HasPrev bool  `json:"has_prev"`
}

func newPage(number, perPage int, total int64) Page {
	pages := int((total + int64(perPage) - 1) / int64(perPage))
	return Page{
		Number:  number,
		PerPage: perPage,
		Total:   total,
		Pages:   pages,
		HasNext: number < pages,
		HasPrev: number > 1,
	}
}

func (s *Store) paginateRooms(query *gorm.DB, page, perPage int) ([]models.Room, Page, error) {
	if page < 1 {
		page = 1
	}
	if perPage < 1 {
		perPage = 1
	}
	var total int64
	if err := query.Session(&gorm.Session{}).Model(&models.Room{}).Count(&total).Error; err != nil {
		return nil, Page{}, fmt.Errorf("failed to count rooms: %w", err)
	}
	var rooms []models.Room
	err := query.Session(&gorm.Session{}).
		Preload("Creator").
		Preload("Category").
		Order("rooms.created_at DESC, rooms.id DESC").
		Offset((page - 1) * perPage).
		Limit(perPage).
		Find(&rooms).Error
	if err != nil {
		return nil, Page{}, fmt.Errorf("failed to list rooms: %w", err)
	}
	return rooms, newPage(page, perPage, total), nil
}

// ListRooms returns rooms newest first.
func (s *Store) ListRooms(ctx context.Context, page, perPage int) ([]models.Room, Page, error) {
	return s.paginateRooms(s.conn(ctx).Model(&models.Room{}), page, perPage)
}

// ListRoomsByCategory returns the rooms of one category newest first.
func (s *Store) ListRoomsByCategory(ctx context.Context, categoryID uint, page, perPage int) ([]models.Room, Page, error) {
	return s.paginateRooms(s.conn(ctx).Model(&models.Room{}).Where("category_id = ?", categoryID), page, perPage)
}

// SearchRooms matches q against room names and descriptions.
func (s *Store) SearchRooms(ctx context.Context, q string, page, perPage int) ([]models.Room, Page, error) {
	like := "%" + escapeLike(q) + "%"
	query := s.conn(ctx).Model(&models.Room{}).
		Where("name LIKE ? ESCAPE '\\' OR description LIKE ? ESCAPE '\\'", like, like)
	return s.paginateRooms(query, page, perPage)
}

func escapeLike(q string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(q)
}

// CountRooms returns the total number of rooms.
func (s *Store) CountRooms(ctx context.Context) (int64, error) {
	var total int64
	err := s.conn(ctx).Model(&models.Room{}).Count(&total).Error
	return total, err
}

// RecentRoomsOfUser returns up to limit rooms the user joined, newest first.
func (s *Store) RecentRoomsOfUser(ctx context.Context, userID uint, limit int) ([]models.Room, error) {
	var rooms []models.Room
	err := s.conn(ctx).
		Joins("JOIN participants ON participants.room_id = rooms.id").
		Where("participants.user_id = ?", userID).
		Order("rooms.created_at DESC, rooms.id DESC").
		Limit(limit).
		Find(&rooms).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list user rooms: %w", err)
	}
	return rooms, nil
}

// AddParticipant records that a user joined a room. Joining twice is a no-op.
func (s *Store) AddParticipant(ctx context.Context, roomID, userID uint) error {
	joined, err := s.IsParticipant(ctx, roomID, userID)
	if err != nil {
		return err
	}
	if joined {
		return nil
	}
	participant := models.Participant{RoomID: roomID, UserID: userID}
	if err := s.conn(ctx).Create(&participant).Error; err != nil {
		return fmt.Errorf("failed to add participant: %w", err)
	}
	return nil
}

// IsParticipant reports whether the user joined the room.
func (s *Store) IsParticipant(ctx context.Context, roomID, userID uint) (bool, error) {
	var count int64
	err := s.conn(ctx).Model(&models.Participant{}).
		Where("room_id = ? AND user_id = ?", roomID, userID).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("failed to check participant: %w", err)
	}
	return count > 0, nil
}

// CountParticipants returns how many users joined the room.
func (s *Store) CountParticipants(ctx context.Context, roomID uint) (int64, error) {
	var count int64
	err := s.conn(ctx).Model(&models.Participant{}).Where("room_id = ?", roomID).Count(&count).Error
	return count, err
}

// DeleteRoom removes a room with its messages and membership rows.
func (s *Store) DeleteRoom(ctx context.Context, id uint) error {
	return s.Transaction(ctx, func(tx *Store) error {
		exists, err := tx.RoomExists(ctx, id)
		if err != nil {
			return err
		}
		if !exists {
			return ErrNotFound
		}
		return tx.deleteRooms(ctx, []uint{id})
	})
}

func (s *Store) deleteRooms(ctx context.Context, ids []uint) error {
	if len(ids) == 0 {
		return nil
	}
	if err := s.conn(ctx).Where("room_id IN ?", ids).Delete(&models.Message{}).Error; err != nil {
		return fmt.Errorf("failed to delete room messages: %w", err)
	}
	if err := s.conn(ctx).Where("room_id IN ?", ids).Delete(&models.Participant{}).Error; err != nil {
		return fmt.Errorf("failed to delete room members: %w", err)
	}
	if err := s.conn(ctx).Where("id IN ?", ids).Delete(&models.Room{}).Error; err != nil {
		return fmt.Errorf("failed to delete room: %w", err)
	}
	return nil
}

// Messages

// CreateMessage inserts a message.
func (s *Store) CreateMessage(ctx context.Context, message *models.Message) error {
	if err := s.conn(ctx).Omit("Sender").Create(message).Error; err != nil {
		return fmt.Errorf("failed to create message: %w", err)
	}
	return nil
}

// DeleteMessage hard-deletes a single message.
func (s *Store) DeleteMessage(ctx context.Context, id uint) error {
	result := s.conn(ctx).Delete(&models.Message{}, id)
	if result.Error != nil {
		return fmt.Errorf("failed to delete message: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteMessages hard-deletes the messages with the given ids.
func (s *Store) DeleteMessages(ctx context.Context, ids []uint) error {
	if len(ids) == 0 {
		return nil
	}
	if err := s.conn(ctx).Where("id IN ?", ids).Delete(&models.Message{}).Error; err != nil {
		return fmt.Errorf("failed to delete messages: %w", err)
	}
	return nil
}

// CountMessages returns the number of stored messages in a room.
func (s *Store) CountMessages(ctx context.Context, roomID uint) (int64, error) {
	var count int64
	if err := s.conn(ctx).Model(&models.Message{}).Where("room_id = ?", roomID).Count(&count).Error; err != nil {
		return 0, fmt.Errorf("failed to count messages: %w", err)
	}
	return count, nil
}

// OldestMessages returns the n oldest messages of a room, oldest first.
// Messages sent at the same instant are ordered by id.
func (s *Store) OldestMessages(ctx context.Context, roomID uint, n int) ([]models.Message, error) {
	var messages []models.Message
	if n <= 0 {
		return messages, nil
	}
	err := s.conn(ctx).
		Where("room_id = ?", roomID).
		Order("sent_at ASC, id ASC").
		Limit(n).
		Find(&messages).Error
	if err != nil {
		return nil, fmt.Errorf("failed to find oldest messages: %w", err)
	}
	return messages, nil
}

// RecentMessages returns the retained history of a room in send order, with
// senders loaded.
func (s *Store) RecentMessages(ctx context.Context, roomID uint) ([]models.Message, error) {
	var messages []models.Message
	err := s.conn(ctx).
		Where("room_id = ?", roomID).
		Preload("Sender").
		Order("sent_at ASC, id ASC").
		Find(&messages).Error
	if err != nil {
		return nil, fmt.Errorf("failed to fetch messages: %w", err)
	}
	return messages, nil
}

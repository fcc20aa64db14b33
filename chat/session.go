package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/CUknot/roomchat/models"
	"github.com/CUknot/roomchat/repository"
)

// State is where a session is in its lifecycle.
type State int

const (
	StateDisconnected State = iota
	StateConnected
	StateInRoom
)

func (s State) String() string {
	switch s {
	case StateConnected:
		return "connected"
	case StateInRoom:
		return "in-room"
	default:
		return "disconnected"
	}
}

// Session is one live connection of a user. It is never persisted and is
// in at most one room.
type Session struct {
	ID   string
	User *models.User

	sink Sink

	mu     sync.Mutex
	state  State
	roomID uint
	closed bool
}

// NewSession creates a disconnected session that receives pushes via sink.
func NewSession(id string, user *models.User, sink Sink) *Session {
	return &Session{ID: id, User: user, sink: sink}
}

// State returns the session state and, when in a room, the room id.
func (s *Session) State() (State, uint) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state, s.roomID
}

// Limiter throttles message sends per key.
type Limiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

// Controller drives sessions through connect, join, send and disconnect.
type Controller struct {
	store       *repository.Store
	registry    *Registry
	broadcaster *Broadcaster
	retention   RetentionPolicy
	limiter     Limiter

	locksMu   sync.Mutex
	roomLocks map[uint]*sync.Mutex
}

// NewController wires a controller. limiter may be nil.
func NewController(store *repository.Store, registry *Registry, broadcaster *Broadcaster, retention RetentionPolicy, limiter Limiter) *Controller {
	return &Controller{
		store:       store,
		registry:    registry,
		broadcaster: broadcaster,
		retention:   retention,
		limiter:     limiter,
		roomLocks:   make(map[uint]*sync.Mutex),
	}
}

// Connect attaches the session. When ambientRoomID is set the session also
// joins that room; if the room is gone the session stays connected and
// ErrNotFound is returned.
func (c *Controller) Connect(ctx context.Context, s *Session, ambientRoomID uint) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrNotConnected
	}
	if s.state == StateDisconnected {
		c.broadcaster.Attach(s.ID, s.sink)
		s.state = StateConnected
	}
	s.mu.Unlock()

	if ambientRoomID == 0 {
		return nil
	}
	return c.Join(ctx, s, ambientRoomID)
}

// Join moves the session into roomID, leaving its previous room.
func (c *Controller) Join(ctx context.Context, s *Session, roomID uint) error {
	exists, err := c.store.RoomExists(ctx, roomID)
	if err != nil {
		return err
	}
	if !exists {
		return ErrNotFound
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateDisconnected {
		return ErrNotConnected
	}
	c.registry.Join(s.ID, roomID)
	s.state = StateInRoom
	s.roomID = roomID
	return nil
}

// SendMessage publishes text to roomID as the session's user. The session
// must be in roomID.
func (c *Controller) SendMessage(ctx context.Context, s *Session, roomID uint, text string) (*models.Message, error) {
	state, current := s.State()
	if state == StateDisconnected {
		return nil, ErrNotConnected
	}
	if state != StateInRoom || current != roomID {
		return nil, ErrNotInRoom
	}
	return c.Publish(ctx, s.User, roomID, text)
}

// Publish stores a message from sender in roomID, trims the room to the
// retention cap in the same transaction, and after commit pushes it to the
// sessions in the room. Inserts and pushes for one room are serialized, so
// every session sees a room's messages in commit order.
func (c *Controller) Publish(ctx context.Context, sender *models.User, roomID uint, text string) (*models.Message, error) {
	if strings.TrimSpace(text) == "" || utf8.RuneCountInString(text) > models.MaxMessageLength {
		return nil, ErrInvalidMessage
	}
	if c.limiter != nil {
		allowed, err := c.limiter.Allow(ctx, fmt.Sprintf("user:%d", sender.ID))
		if err != nil {
			log.Printf("[hub] rate limiter unavailable, allowing message: %v", err)
		} else if !allowed {
			return nil, ErrRateLimited
		}
	}

	lock := c.roomLock(roomID)
	lock.Lock()
	defer lock.Unlock()

	message := &models.Message{
		Text:     text,
		SenderID: sender.ID,
		RoomID:   roomID,
		SentAt:   time.Now().UTC(),
	}
	err := c.store.Transaction(ctx, func(tx *repository.Store) error {
		exists, err := tx.RoomExists(ctx, roomID)
		if err != nil {
			return err
		}
		if !exists {
			return ErrNotFound
		}
		if err := tx.CreateMessage(ctx, message); err != nil {
			return err
		}
		return c.retention.Enforce(ctx, tx, roomID)
	})
	if errors.Is(err, ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrWriteFailed, err)
	}

	payload, err := json.Marshal(Event{Type: EventNewMessage, Payload: NewMessageView(message, sender)})
	if err != nil {
		log.Printf("[hub] error marshaling message %d: %v", message.ID, err)
		return message, nil
	}
	// The message is committed; a sender going away must not cut the push.
	c.broadcaster.Broadcast(context.WithoutCancel(ctx), roomID, payload)

	return message, nil
}

// Disconnect detaches the session and takes it out of its room. Calling it
// again does nothing.
func (c *Controller) Disconnect(s *Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	if s.state == StateInRoom {
		c.registry.Leave(s.ID)
	}
	c.broadcaster.Detach(s.ID)
	s.state = StateDisconnected
	s.roomID = 0
}

// DeleteRoom removes a room with its history. The delete waits for sends in
// flight to the room, and the room's lock is released afterwards.
func (c *Controller) DeleteRoom(ctx context.Context, roomID uint) error {
	lock := c.roomLock(roomID)
	lock.Lock()
	defer lock.Unlock()

	if err := c.store.DeleteRoom(ctx, roomID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			c.dropRoomLock(roomID, lock)
		}
		return err
	}
	c.dropRoomLock(roomID, lock)
	return nil
}

// roomLock returns the lock serializing sends to roomID. Entries live until
// the room is deleted through DeleteRoom.
func (c *Controller) roomLock(roomID uint) *sync.Mutex {
	c.locksMu.Lock()
	defer c.locksMu.Unlock()
	lock, ok := c.roomLocks[roomID]
	if !ok {
		lock = &sync.Mutex{}
		c.roomLocks[roomID] = lock
	}
	return lock
}

func (c *Controller) dropRoomLock(roomID uint, lock *sync.Mutex) {
	c.locksMu.Lock()
	defer c.locksMu.Unlock()
	if c.roomLocks[roomID] == lock {
		delete(c.roomLocks, roomID)
	}
}

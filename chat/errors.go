package chat

import "errors"

var (
	// ErrNotFound is returned when the target room does not exist.
	ErrNotFound = errors.New("room not found")
	// ErrWriteFailed is returned when the message transaction was rolled back.
	ErrWriteFailed = errors.New("failed to store message")
	// ErrNotInRoom is returned when a session sends to a room it has not joined.
	ErrNotInRoom = errors.New("session is not in this room")
	// ErrNotConnected is returned when a disconnected session is used.
	ErrNotConnected = errors.New("session is not connected")
	// ErrInvalidMessage is returned for empty or oversized message text.
	ErrInvalidMessage = errors.New("message must be between 1 and 200 characters")
	// ErrRateLimited is returned when a sender exceeds the message rate.
	ErrRateLimited = errors.New("too many messages, slow down")
	// ErrDeliveryFailed marks a push to a single session that did not go
	// through. It is logged and never returned to the sender.
	ErrDeliveryFailed = errors.New("delivery failed")
)

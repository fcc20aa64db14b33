package websocket

import (
	"encoding/json"
	"errors"
	"log"

	"github.com/CUknot/roomchat/chat"
)

// incomingEvent is a frame sent by the browser.
type incomingEvent struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// MessagePayload is the payload of an inbound new-message event. RoomID
// defaults to the session's current room.
type MessagePayload struct {
	RoomID uint   `json:"room_id"`
	Text   string `json:"text"`
}

// JoinPayload is the payload of an inbound join event.
type JoinPayload struct {
	RoomID uint `json:"room_id"`
}

// HandleIncomingMessage processes an incoming WebSocket message
func HandleIncomingMessage(c *Client, messageBytes []byte) {
	var msg incomingEvent
	if err := json.Unmarshal(messageBytes, &msg); err != nil {
		log.Printf("Error unmarshaling message: %v", err)
		c.sendError("Malformed message")
		return
	}

	switch msg.Type {
	case chat.EventNewMessage:
		var payload MessagePayload
		if err := json.Unmarshal(msg.Payload, &payload); err != nil {
			c.sendError("Malformed message")
			return
		}
		if payload.RoomID == 0 {
			_, payload.RoomID = c.session.State()
		}
		if _, err := c.controller.SendMessage(c.ctx, c.session, payload.RoomID, payload.Text); err != nil {
			log.Printf("User %d failed to send to room %d: %v", c.session.User.ID, payload.RoomID, err)
			c.sendError(errorMessage(err))
		}
	case chat.EventJoin:
		var payload JoinPayload
		if err := json.Unmarshal(msg.Payload, &payload); err != nil {
			c.sendError("Malformed message")
			return
		}
		if err := c.controller.Join(c.ctx, c.session, payload.RoomID); err != nil {
			c.sendError(errorMessage(err))
		}
	default:
		c.sendError("Unknown event type")
	}
}

func errorMessage(err error) string {
	switch {
	case errors.Is(err, chat.ErrNotFound):
		return "Room not found"
	case errors.Is(err, chat.ErrNotInRoom):
		return "Join the room before sending messages"
	case errors.Is(err, chat.ErrInvalidMessage), errors.Is(err, chat.ErrRateLimited):
		return err.Error()
	case errors.Is(err, chat.ErrWriteFailed):
		return "Failed to send message"
	default:
		return "Something went wrong"
	}
}

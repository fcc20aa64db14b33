package controllers

import (
	"errors"
	"net/http"

	"github.com/CUknot/roomchat/chat"
	"github.com/CUknot/roomchat/middleware"
	"github.com/CUknot/roomchat/repository"
	"github.com/gin-gonic/gin"
)

type CreateMessageInput struct {
	Text string `json:"text" binding:"required" example:"Hello, everyone!"`
}

// MessageController serves room history and sending without a websocket.
type MessageController struct {
	store *repository.Store
	chat  *chat.Controller
}

func NewMessageController(store *repository.Store, controller *chat.Controller) *MessageController {
	return &MessageController{store: store, chat: controller}
}

// GetMessages godoc
// @Summary Get the messages of a room
// @Description Returns the retained history of a room, oldest first
// @Tags messages
// @Produce json
// @Param id path int true "Room ID"
// @Success 200 {object} map[string]interface{} "List of messages"
// @Failure 404 {object} map[string]string "Room not found"
// @Failure 500 {object} map[string]string "Server error"
// @Router /api/rooms/{id}/messages [get]
func (m *MessageController) GetMessages(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	ctx := c.Request.Context()
	exists, err := m.store.RoomExists(ctx, id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Server error"})
		return
	}
	if !exists {
		c.JSON(http.StatusNotFound, gin.H{"error": "Room not found"})
		return
	}

	messages, err := m.store.RecentMessages(ctx, id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch messages"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": messageViews(messages)})
}

// CreateMessage godoc
// @Summary Send a message
// @Description Stores a message and pushes it to every connection in the room
// @Tags messages
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path int true "Room ID"
// @Param message body CreateMessageInput true "Message"
// @Success 201 {object} chat.MessageView "Message sent"
// @Failure 400 {object} map[string]string "Invalid input"
// @Failure 404 {object} map[string]string "Room not found"
// @Failure 429 {object} map[string]string "Too many messages"
// @Failure 500 {object} map[string]string "Server error"
// @Router /api/rooms/{id}/messages [post]
func (m *MessageController) CreateMessage(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	var input CreateMessageInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	user := middleware.CurrentUser(c)
	message, err := m.chat.Publish(c.Request.Context(), user, id, input.Text)
	switch {
	case err == nil:
		c.JSON(http.StatusCreated, chat.NewMessageView(message, user))
	case errors.Is(err, chat.ErrInvalidMessage):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, chat.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Room not found"})
	case errors.Is(err, chat.ErrRateLimited):
		c.JSON(http.StatusTooManyRequests, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to send message"})
	}
}

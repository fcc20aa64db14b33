package websocket

import (
	"log"
	"net/http"
	"strconv"

	"github.com/CUknot/roomchat/chat"
	"github.com/CUknot/roomchat/middleware"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// RoomCookie remembers the last room page a browser opened.
const RoomCookie = "room"

// Handler upgrades HTTP requests to chat sessions.
type Handler struct {
	hub        *Hub
	controller *chat.Controller
	upgrader   websocket.Upgrader
}

// NewHandler creates a websocket handler.
func NewHandler(hub *Hub, controller *chat.Controller) *Handler {
	return &Handler{
		hub:        hub,
		controller: controller,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true // Allow all origins
			},
		},
	}
}

// HandleConnection godoc
// @Summary      Open a chat connection
// @Description  Upgrades to a websocket. The session joins room_id, or the room remembered by the room cookie.
// @Tags         chat
// @Param        token    query  string  true   "Access token"
// @Param        room_id  query  int     false  "Room to join on connect"
// @Success      101
// @Failure      401  {object}  map[string]string
// @Router       /ws [get]
func (h *Handler) HandleConnection(c *gin.Context) {
	user := middleware.CurrentUser(c)
	if !user.IsAuthenticated() {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthenticated", "redirect": middleware.LoginRedirect})
		return
	}

	roomID := ambientRoom(c)

	// Upgrade HTTP connection to WebSocket
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("error upgrading connection: %v", err)
		return
	}

	client := newClient(h.hub, h.controller, conn)
	client.session = chat.NewSession(uuid.NewString(), user, client)

	if err := h.controller.Connect(client.ctx, client.session, roomID); err != nil {
		log.Printf("Session %s could not join room %d: %v", client.session.ID, roomID, err)
		client.sendError(errorMessage(err))
	}
	h.hub.register(client)

	// Start goroutines for reading and writing
	go client.writePump()
	go client.readPump()
}

func ambientRoom(c *gin.Context) uint {
	raw := c.Query("room_id")
	if raw == "" {
		raw, _ = c.Cookie(RoomCookie)
	}
	if raw == "" {
		return 0
	}
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		log.Printf("error parsing room ID: %v", err)
		return 0
	}
	return uint(id)
}

package controllers

import (
	"net/http"
	"strconv"

	"github.com/CUknot/roomchat/chat"
	"github.com/CUknot/roomchat/middleware"
	"github.com/CUknot/roomchat/models"
	"github.com/CUknot/roomchat/repository"
	"github.com/CUknot/roomchat/websocket"
	"github.com/gin-gonic/gin"
)

type CreateRoomInput struct {
	Name        string `json:"name" binding:"required,max=128" example:"General Chat"`
	Description string `json:"description" example:"Anything goes"`
	CategoryID  uint   `json:"category_id" binding:"required" example:"1"`
}

// RoomController serves room listings and room pages.
type RoomController struct {
	store   *repository.Store
	chat    *chat.Controller
	perPage int
}

func NewRoomController(store *repository.Store, controller *chat.Controller, perPage int) *RoomController {
	return &RoomController{store: store, chat: controller, perPage: perPage}
}

func listing(c *gin.Context, rooms []models.Room, page repository.Page, extra gin.H) {
	body := gin.H{"rooms": rooms, "pagination": page}
	for k, v := range extra {
		body[k] = v
	}
	c.JSON(http.StatusOK, body)
}

// GetRooms godoc
// @Summary List rooms
// @Description Returns rooms newest first, one page at a time
// @Tags rooms
// @Produce json
// @Param page query int false "Page number"
// @Success 200 {object} map[string]interface{} "List of rooms"
// @Failure 500 {object} map[string]string "Server error"
// @Router /api/rooms [get]
func (r *RoomController) GetRooms(c *gin.Context) {
	rooms, page, err := r.store.ListRooms(c.Request.Context(), pageParam(c), r.perPage)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch rooms"})
		return
	}
	listing(c, rooms, page, nil)
}

// GetRoomsByCategory godoc
// @Summary List rooms of a category
// @Tags rooms
// @Produce json
// @Param id path int true "Category ID"
// @Param page query int false "Page number"
// @Success 200 {object} map[string]interface{} "List of rooms"
// @Failure 404 {object} map[string]string "Category not found"
// @Router /api/categories/{id}/rooms [get]
func (r *RoomController) GetRoomsByCategory(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	ctx := c.Request.Context()
	category, err := r.store.FindCategory(ctx, id)
	if err != nil {
		abortWithStoreError(c, err, "Category")
		return
	}
	rooms, page, err := r.store.ListRoomsByCategory(ctx, id, pageParam(c), r.perPage)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch rooms"})
		return
	}
	listing(c, rooms, page, gin.H{"category": category})
}

// SearchRooms godoc
// @Summary Search rooms
// @Description Matches the query against room names and descriptions
// @Tags rooms
// @Produce json
// @Param q query string true "Search query"
// @Param page query int false "Page number"
// @Success 200 {object} map[string]interface{} "Matching rooms"
// @Failure 400 {object} map[string]string "Missing query"
// @Router /api/search [get]
func (r *RoomController) SearchRooms(c *gin.Context) {
	q := c.Query("q")
	if q == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Search query is required"})
		return
	}
	rooms, page, err := r.store.SearchRooms(c.Request.Context(), q, pageParam(c), r.perPage)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to search rooms"})
		return
	}
	listing(c, rooms, page, gin.H{"q": q})
}

// CreateRoom godoc
// @Summary Create a new chat room
// @Description Creates a room; the creator joins it
// @Tags rooms
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param room body CreateRoomInput true "Room Creation"
// @Success 201 {object} map[string]interface{} "Room created successfully"
// @Failure 400 {object} map[string]string "Invalid input"
// @Failure 401 {object} map[string]string "Unauthorized"
// @Failure 500 {object} map[string]string "Server error"
// @Router /api/rooms [post]
func (r *RoomController) CreateRoom(c *gin.Context) {
	var input CreateRoomInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx := c.Request.Context()
	if _, err := r.store.FindCategory(ctx, input.CategoryID); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid category"})
		return
	}

	user := middleware.CurrentUser(c)
	room := models.Room{
		Name:        input.Name,
		Description: input.Description,
		CreatorID:   user.ID,
		CategoryID:  &input.CategoryID,
	}
	if err := r.store.CreateRoom(ctx, &room); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create room"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{"message": "Room successfully created.", "room": room})
}

// GetRoom godoc
// @Summary Get a room
// @Description Returns the room with its retained history and remembers it as the room to join on the next websocket connect
// @Tags rooms
// @Produce json
// @Param id path int true "Room ID"
// @Success 200 {object} map[string]interface{} "Room details"
// @Failure 404 {object} map[string]string "Room not found"
// @Router /api/rooms/{id} [get]
func (r *RoomController) GetRoom(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	ctx := c.Request.Context()
	room, err := r.store.FindRoom(ctx, id)
	if err != nil {
		abortWithStoreError(c, err, "Room")
		return
	}
	participants, err := r.store.CountParticipants(ctx, id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to count participants"})
		return
	}
	history, err := r.store.RecentMessages(ctx, id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch messages"})
		return
	}

	joined := false
	if user := middleware.CurrentUser(c); user.IsAuthenticated() {
		if joined, err = r.store.IsParticipant(ctx, id, user.ID); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to check membership"})
			return
		}
	}

	c.SetCookie(websocket.RoomCookie, strconv.FormatUint(uint64(id), 10), 0, "/", "", false, true)
	c.JSON(http.StatusOK, gin.H{
		"room":         room,
		"participants": participants,
		"joined":       joined,
		"messages":     messageViews(history),
	})
}

// JoinRoom godoc
// @Summary Join a room
// @Tags rooms
// @Produce json
// @Security BearerAuth
// @Param id path int true "Room ID"
// @Success 200 {object} map[string]string
// @Failure 404 {object} map[string]string "Room not found"
// @Router /api/rooms/{id}/join [post]
func (r *RoomController) JoinRoom(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	ctx := c.Request.Context()
	room, err := r.store.FindRoom(ctx, id)
	if err != nil {
		abortWithStoreError(c, err, "Room")
		return
	}

	user := middleware.CurrentUser(c)
	if err := r.store.AddParticipant(ctx, id, user.ID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to join room"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "You have joined " + room.Name + "."})
}

// DeleteRoom godoc
// @Summary Delete a room
// @Description Only the creator may delete a room; its messages go with it
// @Tags rooms
// @Produce json
// @Security BearerAuth
// @Param id path int true "Room ID"
// @Success 200 {object} map[string]string
// @Failure 403 {object} map[string]string "Forbidden"
// @Failure 404 {object} map[string]string "Room not found"
// @Router /api/rooms/{id} [delete]
func (r *RoomController) DeleteRoom(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	ctx := c.Request.Context()
	room, err := r.store.FindRoom(ctx, id)
	if err != nil {
		abortWithStoreError(c, err, "Room")
		return
	}
	if room.CreatorID != middleware.CurrentUser(c).ID {
		c.JSON(http.StatusForbidden, gin.H{"error": "Only the room creator can delete it"})
		return
	}
	if err := r.chat.DeleteRoom(ctx, id); err != nil {
		abortWithStoreError(c, err, "Room")
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Room deleted successfully"})
}

func messageViews(messages []models.Message) []chat.MessageView {
	views := make([]chat.MessageView, len(messages))
	for i := range messages {
		views[i] = chat.NewMessageView(&messages[i], nil)
	}
	return views
}

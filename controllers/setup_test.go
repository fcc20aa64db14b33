package controllers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/CUknot/roomchat/chat"
	"github.com/CUknot/roomchat/config"
	"github.com/CUknot/roomchat/database/dbtest"
	"github.com/CUknot/roomchat/middleware"
	"github.com/CUknot/roomchat/models"
	"github.com/CUknot/roomchat/notify"
	"github.com/CUknot/roomchat/repository"
	"github.com/CUknot/roomchat/utils"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type sentMail struct {
	subject  string
	to       string
	template string
	data     notify.Data
}

type fakeMailer struct {
	mu   sync.Mutex
	sent []sentMail
}

func (m *fakeMailer) SendNotification(subject, to, template string, data interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, _ := data.(notify.Data)
	m.sent = append(m.sent, sentMail{subject: subject, to: to, template: template, data: d})
}

func (m *fakeMailer) last(t *testing.T) sentMail {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	require.NotEmpty(t, m.sent, "no mail sent")
	return m.sent[len(m.sent)-1]
}

type testAPI struct {
	router *gin.Engine
	db     *gorm.DB
	store  *repository.Store
	signer *utils.TokenSigner
	mailer *fakeMailer
	cfg    *config.Config
}

func setupAPI(t *testing.T, limiter chat.Limiter) *testAPI {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := config.Default()
	db := dbtest.New(t)
	store := repository.NewStore(db)
	signer := utils.NewTokenSigner("secret", time.Hour, time.Hour)
	mailer := &fakeMailer{}
	registry := chat.NewRegistry()
	controller := chat.NewController(store, registry, chat.NewBroadcaster(registry, time.Second),
		chat.RetentionPolicy{Max: 3}, limiter)

	authController := NewAuthController(store, signer, mailer)
	roomController := NewRoomController(store, controller, cfg.RoomsPerPage)
	messageController := NewMessageController(store, controller)
	userController := NewUserController(store)
	mainController := NewMainController(store, cfg)
	requireAuth := middleware.RequireAuth()

	r := gin.New()
	api := r.Group("/api")
	api.Use(middleware.JWTAuth(signer, store), middleware.RequireConfirmed())
	{
		auth := api.Group("/auth")
		auth.POST("/register", authController.Register)
		auth.POST("/login", authController.Login)
		auth.GET("/unconfirmed", requireAuth, authController.Unconfirmed)
		auth.GET("/confirm/:token", requireAuth, authController.Confirm)
		auth.POST("/resend", requireAuth, authController.Resend)
		auth.POST("/change-password", requireAuth, authController.ChangePassword)
		auth.POST("/change-email", requireAuth, authController.ChangeEmail)
		auth.GET("/change-email/:token", requireAuth, authController.ConfirmChangeEmail)
		auth.POST("/reset-password", authController.RequestPasswordReset)
		auth.POST("/reset-password/:token", authController.ResetPassword)

		api.GET("/language", mainController.SetLanguage)
		api.GET("/sidebar", mainController.GetSidebar)
		api.GET("/categories", mainController.GetCategories)
		api.GET("/categories/:id/rooms", roomController.GetRoomsByCategory)
		api.GET("/search", roomController.SearchRooms)

		api.GET("/rooms", roomController.GetRooms)
		api.POST("/rooms", requireAuth, roomController.CreateRoom)
		api.GET("/rooms/:id", roomController.GetRoom)
		api.DELETE("/rooms/:id", requireAuth, roomController.DeleteRoom)
		api.POST("/rooms/:id/join", requireAuth, roomController.JoinRoom)
		api.GET("/rooms/:id/messages", messageController.GetMessages)
		api.POST("/rooms/:id/messages", requireAuth, messageController.CreateMessage)

		api.PUT("/users/me", requireAuth, userController.EditProfile)
		api.GET("/users/:username", userController.GetUser)
	}

	return &testAPI{router: r, db: db, store: store, signer: signer, mailer: mailer, cfg: cfg}
}

func (a *testAPI) do(method, path, token string, body interface{}) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	if body != nil {
		raw, _ := json.Marshal(body)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	a.router.ServeHTTP(w, req)
	return w
}

func (a *testAPI) createUser(t *testing.T, username string, confirmed bool) (*models.User, string) {
	t.Helper()
	user := &models.User{Username: username, Email: username + "@test.com", Password: "cat", Confirmed: confirmed}
	require.NoError(t, a.store.CreateUser(context.Background(), user))
	token, err := a.signer.GenerateToken(user.ID)
	require.NoError(t, err)
	return user, token
}

func (a *testAPI) createCategory(t *testing.T, name string) *models.Category {
	t.Helper()
	category := &models.Category{Name: name}
	require.NoError(t, a.store.CreateCategory(context.Background(), category))
	return category
}

func (a *testAPI) createRoom(t *testing.T, name string, creator *models.User, category *models.Category) *models.Room {
	t.Helper()
	room := &models.Room{Name: name, CreatorID: creator.ID, CategoryID: &category.ID}
	require.NoError(t, a.store.CreateRoom(context.Background(), room))
	return room
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body), w.Body.String())
	return body
}

// failCounts makes every count query fail from now on.
func (a *testAPI) failCounts(t *testing.T) {
	t.Helper()
	err := a.db.Callback().Query().Before("gorm:query").Register("test:fail_counts", func(tx *gorm.DB) {
		if _, ok := tx.Statement.Dest.(*int64); ok {
			_ = tx.AddError(errors.New("database unavailable"))
		}
	})
	require.NoError(t, err)
}

package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"

	"github.com/CUknot/roomchat/chat"
	"github.com/CUknot/roomchat/config"
	"github.com/CUknot/roomchat/controllers"
	"github.com/CUknot/roomchat/database"
	"github.com/CUknot/roomchat/docs"
	"github.com/CUknot/roomchat/middleware"
	"github.com/CUknot/roomchat/notify"
	"github.com/CUknot/roomchat/ratelimit"
	"github.com/CUknot/roomchat/repository"
	"github.com/CUknot/roomchat/utils"
	"github.com/CUknot/roomchat/websocket"
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"gorm.io/gorm"
)

// App owns every long lived component of the server.
type App struct {
	cfg      *config.Config
	db       *gorm.DB
	store    *repository.Store
	signer   *utils.TokenSigner
	hub      *websocket.Hub
	chat     *chat.Controller
	notifier *notify.Notifier
	server   *http.Server

	closeLimiter func() error
}

// NewApp wires the application on top of an open, migrated database.
func NewApp(ctx context.Context, cfg *config.Config, db *gorm.DB) (*App, error) {
	limiter, closeLimiter, err := ratelimit.New(ctx, cfg.RedisURL, cfg.RateLimitBurst, cfg.RateLimitWindow)
	if err != nil {
		return nil, err
	}

	store := repository.NewStore(db)
	registry := chat.NewRegistry()
	broadcaster := chat.NewBroadcaster(registry, cfg.BroadcastTimeout)

	app := &App{
		cfg:          cfg,
		db:           db,
		store:        store,
		signer:       utils.NewTokenSigner(cfg.JWTSecret, cfg.TokenTTL, cfg.AccessTokenTTL),
		hub:          websocket.NewHub(),
		chat:         chat.NewController(store, registry, broadcaster, chat.RetentionPolicy{Max: cfg.MaxMessagesAvailable}, limiter),
		notifier:     notify.New(notify.NewSender(cfg.Mail), cfg.Mail.Workers),
		closeLimiter: closeLimiter,
	}
	app.server = &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: app.Router(),
	}
	return app, nil
}

// Router builds the HTTP routes.
func (a *App) Router() *gin.Engine {
	router := gin.Default()
	router.Use(middleware.CORS())

	docs.SwaggerInfo.Host = "localhost:" + a.cfg.Port
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	authController := controllers.NewAuthController(a.store, a.signer, a.notifier)
	roomController := controllers.NewRoomController(a.store, a.chat, a.cfg.RoomsPerPage)
	messageController := controllers.NewMessageController(a.store, a.chat)
	userController := controllers.NewUserController(a.store)
	mainController := controllers.NewMainController(a.store, a.cfg)
	wsHandler := websocket.NewHandler(a.hub, a.chat)

	identify := []gin.HandlerFunc{middleware.JWTAuth(a.signer, a.store), middleware.RequireConfirmed()}
	requireAuth := middleware.RequireAuth()

	api := router.Group("/api")
	api.Use(identify...)
	{
		auth := api.Group("/auth")
		auth.POST("/register", authController.Register)
		auth.POST("/login", authController.Login)
		auth.POST("/logout", authController.Logout)
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

	router.GET("/ws", append(identify, wsHandler.HandleConnection)...)

	return router
}

// Start launches the mail workers and the HTTP server. It returns once the
// server is listening in the background.
func (a *App) Start(ctx context.Context) error {
	if err := a.notifier.Start(ctx); err != nil {
		return err
	}
	go func() {
		log.Printf("Server running on port %s", a.cfg.Port)
		log.Printf("Swagger documentation available at http://localhost:%s/swagger/index.html", a.cfg.Port)
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()
	return nil
}

// Stop shuts the components down in dependency order: no new requests,
// then live sockets, then queued mail, then the backing stores.
func (a *App) Stop(ctx context.Context) error {
	var errs []error
	if err := a.server.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("http server: %w", err))
	}
	if err := a.hub.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("websocket hub: %w", err))
	}
	if err := a.notifier.Stop(ctx); err != nil {
		errs = append(errs, fmt.Errorf("notifier: %w", err))
	}
	if err := a.closeLimiter(); err != nil {
		errs = append(errs, fmt.Errorf("rate limiter: %w", err))
	}
	if err := database.Close(a.db); err != nil {
		errs = append(errs, fmt.Errorf("database: %w", err))
	}
	return errors.Join(errs...)
}

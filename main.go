package main

import (
	"context"
	"log"
	"os"

	"github.com/CUknot/roomchat/config"
	"github.com/CUknot/roomchat/database"
	"github.com/CUknot/roomchat/repository"
	gfshutdown "github.com/gelmium/graceful-shutdown"
)

// @title           Room Chat API
// @version         1.0
// @description     API Server for the room chat application
// @host            localhost:8080
// @BasePath        /
// @schemes         http
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description Type "Bearer" followed by a space and JWT token.
func main() {
	ctx := context.Background()
	cfg := config.Load()

	db, err := database.Connect(cfg)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	if err := database.Migrate(db); err != nil {
		log.Fatalf("Failed to migrate database: %v", err)
	}

	handled, err := runCommand(ctx, repository.NewStore(db), os.Args[1:])
	if handled {
		_ = database.Close(db)
		if err != nil {
			log.Fatal(err)
		}
		return
	}

	app, err := NewApp(ctx, cfg, db)
	if err != nil {
		log.Fatalf("Failed to initialize application: %v", err)
	}
	if err := app.Start(ctx); err != nil {
		log.Fatalf("Failed to start application: %v", err)
	}

	wait := gfshutdown.GracefulShutdown(
		context.Background(),
		cfg.ShutdownTimeout,
		map[string]gfshutdown.Operation{
			"roomchat": func(ctx context.Context) error {
				log.Println("Graceful shutdown initiated...")
				return app.Stop(ctx)
			},
		},
	)

	exitCode := <-wait
	log.Printf("Application exited with code: %d", exitCode)
	os.Exit(exitCode)
}

package main

import (
	"log"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"

	"github.com/davudsafarov/testtrack/internal/config"
	"github.com/davudsafarov/testtrack/internal/database"
	"github.com/davudsafarov/testtrack/internal/handler"
	"github.com/davudsafarov/testtrack/internal/middleware"
	"github.com/davudsafarov/testtrack/internal/queue"
	"github.com/davudsafarov/testtrack/internal/repository"
	"github.com/davudsafarov/testtrack/internal/router"
	"github.com/davudsafarov/testtrack/internal/service"
)

func main() {
	// .env is optional; real deployments inject the environment directly.
	_ = godotenv.Load()

	cfg := config.Load()

	db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
	if err != nil {
		log.Fatalf("database: %v", err)
	}
	defer db.Close()

	users := repository.NewUserRepo(db)
	tokens := repository.NewTokenRepo(db)
	sessions := service.NewSession(cfg, users, tokens, queue.Publisher{})

	rdb := config.NewRedisClient()
	if rdb == nil {
		log.Printf("redis unavailable, credential rate limiting disabled")
	}
	limiter := middleware.NewCredentialLimiter(config.LoadRateLimitConfig(), rdb)

	// Audit trail consumer; reconnects forever in the background.
	go func() {
		if err := queue.StartAuditConsumer(); err != nil {
			log.Printf("audit consumer stopped: %v", err)
		}
	}()

	e := echo.New()
	e.HideBanner = true
	router.RegisterRoutes(e, handler.NewAuthHandler(sessions), cfg.JWTSecret, limiter)

	addr := ":" + cfg.Port
	log.Printf("listening on %s (env=%s)", addr, cfg.Env)
	if err := e.Start(addr); err != nil {
		log.Fatal(err)
	}
}

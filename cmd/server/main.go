package main

import (
	"log"

	"linklearn-realtime/internal/cache"
	"linklearn-realtime/internal/config"
	"linklearn-realtime/internal/database"
	"linklearn-realtime/internal/server"
)

func main() {
	cfg := config.Load()

	db, err := database.ConnectDB()
	if err != nil {
		log.Fatalf("Database connection failed: %v", err)
	}
	defer database.Close()

	if err := database.Ping(); err != nil {
		log.Fatalf("Database ping failed: %v", err)
	}

	cacheClient, err := cache.New(cfg.Redis, cfg.Session.ChatBacklogTTL)
	if err != nil {
		// Chat backlog falls back to database reads without redis.
		log.Printf("Redis unavailable, continuing without cache: %v", err)
		cacheClient = nil
	} else {
		defer cacheClient.Close()
	}

	srv := server.New(cfg, db, cacheClient)
	srv.SetupMiddleware()
	srv.SetupRoutes()

	if err := srv.Start(); err != nil {
		log.Fatalf("Server failed to start: %v", err)
	}
}

package main

import (
	"log"

	"github.com/google/uuid"

	"postit-backend/internal/cache"
	"postit-backend/internal/config"
	"postit-backend/internal/database"
	"postit-backend/internal/presence"
	"postit-backend/internal/server"
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
	log.Printf("Database connected successfully")

	// Redis is optional: without it message history comes straight from the
	// DB and presence is served only to this process
	var cacheClient *cache.RedisClient
	var presenceMgr *presence.Manager
	if cfg.Redis.Addr != "" {
		cacheClient, err = cache.NewRedisClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			log.Printf("Redis unavailable, running without caches: %v", err)
			cacheClient = nil
		} else {
			defer cacheClient.Close()

			serverID := uuid.NewString()
			presenceMgr = presence.NewManager(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, serverID)
			defer presenceMgr.Close()
		}
	}

	srv := server.New(cfg, db, cacheClient, presenceMgr)
	srv.SetupMiddleware()
	srv.SetupRoutes()

	if err := srv.Start(); err != nil {
		log.Fatalf("Server failed to start: %v", err)
	}
}

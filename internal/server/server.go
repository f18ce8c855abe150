package server

import (
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"gorm.io/gorm"

	"postit-backend/internal/auth"
	"postit-backend/internal/cache"
	"postit-backend/internal/config"
	"postit-backend/internal/handler"
	"postit-backend/internal/middleware"
	"postit-backend/internal/presence"
	"postit-backend/internal/realtime"
	"postit-backend/internal/service"
	"postit-backend/internal/storage"
)

// Server Fiber server wrapper
type Server struct {
	app            *fiber.App
	cfg            *config.Config
	db             *gorm.DB
	hub            *realtime.Hub
	authHandler    *handler.AuthHandler
	userHandler    *handler.UserHandler
	postHandler    *handler.PostHandler
	commentHandler *handler.CommentHandler
	messageHandler *handler.MessageHandler
	healthHandler  *handler.HealthHandler
	convMiddleware *middleware.ConversationMiddleware
	jwtManager     *auth.JWTManager
}

// New creates a server instance. cacheClient and presenceMgr may be nil.
func New(cfg *config.Config, db *gorm.DB, cacheClient *cache.RedisClient, presenceMgr *presence.Manager) *Server {
	app := fiber.New(fiber.Config{
		AppName:         "Post-It Backend",
		ServerHeader:    "Fiber",
		StrictRouting:   false,
		CaseSensitive:   true,
		ReadTimeout:     cfg.Server.ReadTimeout,
		WriteTimeout:    cfg.Server.WriteTimeout,
		IdleTimeout:     cfg.Server.IdleTimeout,
		Prefork:         false, // incompatible with WebSocket connections
		ReadBufferSize:  16384,
		WriteBufferSize: 16384,
		BodyLimit:       5 * 1024 * 1024,
	})

	jwtManager := auth.NewJWTManager(
		cfg.Auth.JWTSecret,
		cfg.Auth.AccessTokenExpiry,
		cfg.Auth.RefreshTokenExpiry,
	)
	googleAuth := auth.NewGoogleAuthenticator(cfg.Auth.GoogleClientID)

	// realtime core: registry -> router -> hub. The registry is the only
	// authority for delivery targeting; presence mirroring is advisory.
	registry := realtime.NewRegistry()
	store := storage.NewMessageStore(db, cacheClient)
	router := realtime.NewRouter(registry, store, store)

	var notifier realtime.PresenceNotifier
	if presenceMgr != nil {
		notifier = presenceMgr
	}
	hub := realtime.NewHub(
		registry,
		router,
		realtime.NewJWTAuthenticator(jwtManager),
		notifier,
		cfg.WebSocket.AuthTimeout,
		cfg.WebSocket.WriteTimeout,
		cfg.WebSocket.SendQueueSize,
	)

	convService := service.NewConversationService(db)

	return &Server{
		app:            app,
		cfg:            cfg,
		db:             db,
		hub:            hub,
		authHandler:    handler.NewAuthHandler(db, jwtManager, googleAuth, cfg.Auth.SecureCookie),
		userHandler:    handler.NewUserHandler(db, presenceMgr),
		postHandler:    handler.NewPostHandler(db, router),
		commentHandler: handler.NewCommentHandler(db, router),
		messageHandler: handler.NewMessageHandler(db, store, router, convService, cacheClient, presenceMgr),
		healthHandler:  handler.NewHealthHandler(db, cacheClient),
		convMiddleware: middleware.NewConversationMiddleware(convService),
		jwtManager:     jwtManager,
	}
}

// SetupMiddleware installs the global middleware chain
func (s *Server) SetupMiddleware() {
	s.app.Use(recover.New(recover.Config{
		EnableStackTrace: true,
	}))

	s.app.Use(logger.New(logger.Config{
		Format:     "${time} | ${status} | ${latency} | ${ip} | ${method} ${path}\n",
		TimeFormat: "2006-01-02 15:04:05",
		TimeZone:   "UTC",
	}))

	s.app.Use(cors.New(cors.Config{
		AllowOrigins:     s.cfg.CORS.AllowOrigins,
		AllowHeaders:     s.cfg.CORS.AllowHeaders,
		AllowMethods:     "GET, POST, PUT, DELETE, OPTIONS",
		AllowCredentials: true,
	}))
}

// SetupRoutes installs the route tree
func (s *Server) SetupRoutes() {
	s.app.Get("/health", s.healthHandler.Check)
	s.app.Get("/health/live", s.healthHandler.Liveness)
	s.app.Get("/health/ready", s.healthHandler.Readiness)

	// brute force protection on credential endpoints
	authLimiter := limiter.New(limiter.Config{
		Max:        10,
		Expiration: 1 * time.Minute,
		KeyGenerator: func(c *fiber.Ctx) string {
			return c.IP()
		},
		LimitReached: func(c *fiber.Ctx) error {
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error": "too many requests, please try again later",
			})
		},
	})

	requireAuth := auth.AuthMiddleware(s.jwtManager)

	authGroup := s.app.Group("/auth")
	authGroup.Post("/register", authLimiter, s.authHandler.Register)
	authGroup.Post("/login", authLimiter, s.authHandler.Login)
	authGroup.Post("/google", authLimiter, s.authHandler.GoogleLogin)
	authGroup.Post("/refresh", authLimiter, s.authHandler.RefreshToken)
	authGroup.Post("/logout", requireAuth, s.authHandler.Logout)
	authGroup.Get("/me", requireAuth, s.authHandler.GetMe)
	authGroup.Put("/me", requireAuth, s.userHandler.UpdateMe)

	userGroup := s.app.Group("/api/users", requireAuth)
	userGroup.Get("/search", s.userHandler.SearchUsers)
	userGroup.Get("/:id", s.userHandler.GetUser)

	postGroup := s.app.Group("/api/posts", requireAuth)
	postGroup.Post("/", s.postHandler.CreatePost)
	postGroup.Get("/", s.postHandler.GetPosts)
	postGroup.Get("/:id", s.postHandler.GetPost)
	postGroup.Delete("/:id", s.postHandler.DeletePost)
	postGroup.Post("/:id/like", s.postHandler.LikePost)
	postGroup.Delete("/:id/like", s.postHandler.UnlikePost)
	postGroup.Get("/:id/comments", s.commentHandler.GetPostComments)

	commentGroup := s.app.Group("/api/comments", requireAuth)
	commentGroup.Post("/", s.commentHandler.CreateComment)
	commentGroup.Delete("/:id", s.commentHandler.DeleteComment)

	convGroup := s.app.Group("/api/conversations", requireAuth)
	convGroup.Get("/", s.messageHandler.GetConversations)
	convGroup.Post("/dm", s.messageHandler.OpenDM)
	convGroup.Post("/group", s.messageHandler.CreateGroup)

	requireMember := s.convMiddleware.RequireMembership()
	convGroup.Get("/:id/messages", requireMember, s.messageHandler.GetMessages)
	convGroup.Post("/:id/messages", requireMember, s.messageHandler.SendMessage)
	convGroup.Post("/:id/read", requireMember, s.messageHandler.MarkRead)
	convGroup.Post("/:id/members", requireMember, s.messageHandler.AddMember)
	convGroup.Delete("/:id/leave", requireMember, s.messageHandler.LeaveConversation)

	// WebSocket endpoint. The upgrade guard only extracts the credential;
	// authentication itself runs inside the hub so a rejected token gets a
	// structured close frame instead of a bare HTTP status.
	s.app.Get("/ws", func(c *fiber.Ctx) error {
		if !websocket.IsWebSocketUpgrade(c) {
			return fiber.ErrUpgradeRequired
		}

		token := c.Query("token")
		if token == "" {
			token = c.Cookies("access_token")
		}
		c.Locals("token", token)

		return c.Next()
	}, websocket.New(func(wc *websocket.Conn) {
		token, _ := wc.Locals("token").(string)
		s.hub.Serve(wc, token)
	}, websocket.Config{
		ReadBufferSize:  s.cfg.WebSocket.ReadBufferSize,
		WriteBufferSize: s.cfg.WebSocket.WriteBufferSize,
	}))

	// client bundle
	if s.cfg.Server.StaticDir != "" {
		s.app.Static("/", s.cfg.Server.StaticDir)
	}
}

// Start runs the server with graceful shutdown on SIGINT/SIGTERM
func (s *Server) Start() error {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-quit
		log.Println("[Server] shutting down...")
		if err := s.app.ShutdownWithTimeout(30 * time.Second); err != nil {
			log.Fatalf("[Server] shutdown error: %v", err)
		}
	}()

	log.Printf("[Server] listening on %s", s.cfg.Server.Port)
	log.Printf("[Server] WebSocket endpoint: ws://localhost%s/ws", s.cfg.Server.Port)

	return s.app.Listen(s.cfg.Server.Port)
}

// Shutdown stops the server
func (s *Server) Shutdown() error {
	return s.app.ShutdownWithTimeout(30 * time.Second)
}

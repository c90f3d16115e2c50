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
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"gorm.io/gorm"

	"linklearn-realtime/internal/cache"
	"linklearn-realtime/internal/config"
	"linklearn-realtime/internal/handler"
	"linklearn-realtime/internal/presence"
)

// Server wraps the fiber app and the session handlers.
type Server struct {
	app            *fiber.App
	cfg            *config.Config
	db             *gorm.DB
	sessionHandler *handler.SessionHandler
	sessionWS      *handler.SessionWSHandler
	healthHandler  *handler.HealthHandler
}

// New creates a server instance. cacheClient may be nil; the chat
// backlog then reads straight from the database.
func New(cfg *config.Config, db *gorm.DB, cacheClient *cache.Client) *Server {
	app := fiber.New(fiber.Config{
		AppName:        "LinkLearn Realtime",
		ServerHeader:   "Fiber",
		StrictRouting:  false,
		CaseSensitive:  true,
		ReadTimeout:    cfg.Server.ReadTimeout,
		WriteTimeout:   cfg.Server.WriteTimeout,
		IdleTimeout:    cfg.Server.IdleTimeout,
		Prefork:        false, // incompatible with WebSocket rooms
		ReadBufferSize: 16384,
		BodyLimit:      10 * 1024 * 1024, // whiteboard snapshots can be large
	})

	var presenceManager *presence.Manager
	if cacheClient != nil {
		presenceManager = presence.NewManager(cacheClient.Redis())
	}

	sessionWS := handler.NewSessionWSHandler(db, cacheClient, presenceManager, cfg.WebSocket.WriteTimeout)
	sessionHandler := handler.NewSessionHandler(db, cacheClient, sessionWS, presenceManager, cfg.Session)
	healthHandler := handler.NewHealthHandler(db, cacheClient)

	return &Server{
		app:            app,
		cfg:            cfg,
		db:             db,
		sessionHandler: sessionHandler,
		sessionWS:      sessionWS,
		healthHandler:  healthHandler,
	}
}

// SetupMiddleware installs recover, logging and CORS.
func (s *Server) SetupMiddleware() {
	s.app.Use(recover.New(recover.Config{
		EnableStackTrace: true,
	}))

	s.app.Use(logger.New(logger.Config{
		Format:     "${time} | ${status} | ${latency} | ${ip} | ${method} ${path}\n",
		TimeFormat: "2006-01-02 15:04:05",
	}))

	s.app.Use(cors.New(cors.Config{
		AllowOrigins:     s.cfg.CORS.AllowOrigins,
		AllowHeaders:     s.cfg.CORS.AllowHeaders,
		AllowMethods:     "GET, POST, PUT, DELETE, OPTIONS",
		AllowCredentials: s.cfg.CORS.AllowOrigins != "*",
	}))
}

// SetupRoutes installs the HTTP and WebSocket routes.
func (s *Server) SetupRoutes() {
	s.app.Get("/health", s.healthHandler.Check)
	s.app.Get("/health/live", s.healthHandler.Liveness)
	s.app.Get("/health/ready", s.healthHandler.Readiness)

	// Session HTTP API
	sessionGroup := s.app.Group("/session")
	sessionGroup.Get("/:id/state/", s.sessionHandler.GetState)
	sessionGroup.Post("/:id/save-state/", s.sessionHandler.SaveState)
	sessionGroup.Post("/:id/start-timer/", s.sessionHandler.StartTimer)
	sessionGroup.Post("/:id/stop-timer/", s.sessionHandler.StopTimer)
	sessionGroup.Post("/:id/end/", s.sessionHandler.EndSession)

	// Chat backlog
	s.app.Get("/chat/session/:id/", s.sessionHandler.ChatBacklog)

	// WebSocket upgrade check
	s.app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			c.Locals("allowed", true)
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})

	// Session realtime channel
	s.app.Get("/ws/session/:id/", func(c *fiber.Ctx) error {
		if !websocket.IsWebSocketUpgrade(c) {
			return fiber.ErrUpgradeRequired
		}

		sessionID, err := c.ParamsInt("id")
		if err != nil {
			return c.SendStatus(fiber.StatusBadRequest)
		}

		userID := c.QueryInt("user_id", 0)
		if userID == 0 {
			return c.SendStatus(fiber.StatusBadRequest)
		}

		name := c.Query("name", "")
		if name == "" {
			name = "anonymous"
		}

		// Confirm the session exists and is still live
		var count int64
		s.db.Table("sessions").
			Where("id = ? AND is_active = ?", sessionID, true).
			Count(&count)
		if count == 0 {
			return c.SendStatus(fiber.StatusNotFound)
		}

		c.Locals("sessionId", int64(sessionID))
		c.Locals("userId", int64(userID))
		c.Locals("name", name)

		return c.Next()
	}, websocket.New(s.sessionWS.HandleWebSocket, websocket.Config{
		ReadBufferSize:  s.cfg.WebSocket.ReadBufferSize,
		WriteBufferSize: s.cfg.WebSocket.WriteBufferSize,
	}))
}

// Start runs the server with graceful shutdown on SIGINT/SIGTERM.
func (s *Server) Start() error {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-quit
		log.Println("Shutting down server...")
		if err := s.app.ShutdownWithTimeout(30 * time.Second); err != nil {
			log.Fatalf("Server shutdown error: %v", err)
		}
	}()

	log.Printf("[Server] LinkLearn Realtime starting on %s", s.cfg.Server.Port)
	log.Printf("[Server] WebSocket endpoint: ws://localhost%s/ws/session/:id/", s.cfg.Server.Port)

	return s.app.Listen(s.cfg.Server.Port)
}

// Shutdown stops the server.
func (s *Server) Shutdown() error {
	return s.app.ShutdownWithTimeout(30 * time.Second)
}

package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/eshaffer321/receipt-desk/internal/api/handlers"
	"github.com/eshaffer321/receipt-desk/internal/api/middleware"
	"github.com/eshaffer321/receipt-desk/internal/application/auth"
	"github.com/eshaffer321/receipt-desk/internal/application/customers"
	"github.com/eshaffer321/receipt-desk/internal/application/receipts"
	"github.com/eshaffer321/receipt-desk/internal/domain/session"
)

// Config holds API server configuration.
type Config struct {
	Port           int
	AllowedOrigins []string
	Cookie         middleware.CookieConfig
}

// DefaultConfig returns sensible defaults for the API server.
func DefaultConfig() Config {
	return Config{
		Port:           8080,
		AllowedOrigins: []string{"http://localhost:3000", "http://localhost:5173"},
		Cookie: middleware.CookieConfig{
			Name:   "receipt_desk_session",
			MaxAge: 7 * 24 * time.Hour,
		},
	}
}

// Services are the application services behind the routes.
type Services struct {
	Auth      *auth.Service
	Receipts  *receipts.Service
	Customers *customers.Service
}

// Server is the HTTP API server.
type Server struct {
	config     Config
	router     *gin.Engine
	httpServer *http.Server
	logger     *slog.Logger
	services   Services
}

// NewServer creates a new API server.
func NewServer(cfg Config, services Services, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	gin.SetMode(gin.ReleaseMode)
	s := &Server{
		config:   cfg,
		router:   gin.New(),
		logger:   logger,
		services: services,
	}

	s.setupMiddleware()
	s.setupRoutes()

	return s
}

// setupMiddleware configures global middleware.
func (s *Server) setupMiddleware() {
	s.router.Use(gin.Recovery())

	corsConfig := middleware.DefaultCORSConfig()
	if len(s.config.AllowedOrigins) > 0 {
		corsConfig.AllowedOrigins = s.config.AllowedOrigins
	}
	s.router.Use(middleware.CORS(corsConfig))

	s.router.Use(middleware.Logging(s.logger))
}

// setupRoutes configures all API routes.
func (s *Server) setupRoutes() {
	// Health check (no session - for load balancers)
	healthHandler := handlers.NewHealthHandler()
	s.router.GET("/health", healthHandler.Get)

	app := s.router.Group("/", middleware.Session(s.services.Auth, s.config.Cookie, s.logger))

	authHandler := handlers.NewAuthHandler(s.services.Auth, s.services.Customers, s.logger)
	app.GET(session.LoginPath, authHandler.Status)
	app.POST(session.LoginPath, authHandler.Login)
	app.POST("/register", authHandler.Register)
	app.POST("/logout", authHandler.Logout)

	gated := app.Group("/", middleware.Gate(s.services.Auth, s.logger))

	partnersHandler := handlers.NewPartnersHandler()
	gated.GET("/", partnersHandler.List)

	// Partner upload pages
	receiptsHandler := handlers.NewReceiptsHandler(s.services.Receipts, s.logger)
	upload := gated.Group("/upload/:partner")
	upload.GET("", receiptsHandler.Get)
	upload.POST("/receipt", receiptsHandler.Upload)
	upload.POST("/edit", receiptsHandler.Edit)
	upload.PATCH("/draft", receiptsHandler.UpdateDraft)
	upload.DELETE("/draft", receiptsHandler.Discard)
	upload.POST("/draft/items", receiptsHandler.AddItem)
	upload.PATCH("/draft/items/:index", receiptsHandler.UpdateItem)
	upload.DELETE("/draft/items/:index", receiptsHandler.RemoveItem)
	upload.POST("/save", receiptsHandler.Save)
	upload.POST("/approve", receiptsHandler.Approve)

	approvalsHandler := handlers.NewApprovalsHandler(s.services.Receipts, s.logger)
	gated.GET("/approvals", approvalsHandler.List)

	// Customer directory
	customersHandler := handlers.NewCustomersHandler(s.services.Customers, s.logger)
	gated.GET("/customers", customersHandler.List)
	gated.GET("/customers/search", customersHandler.Search)
	gated.GET("/customers/download-csv", customersHandler.Export)
	gated.POST("/customers/:id/toggle", customersHandler.Toggle)
	gated.DELETE("/customers/:id", customersHandler.Delete)
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	addr := fmt.Sprintf(":%d", s.config.Port)

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 2 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	s.logger.Info("starting API server", "addr", addr)

	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server error: %w", err)
	}

	return nil
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down API server")

	if s.httpServer == nil {
		return nil
	}

	return s.httpServer.Shutdown(ctx)
}

// Router returns the gin engine for testing.
func (s *Server) Router() *gin.Engine {
	return s.router
}

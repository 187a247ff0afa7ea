// Package api provides the HTTP API server implementation.
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/pinpincloud/internal/auth"
	"github.com/pinpincloud/internal/events"
	"github.com/pinpincloud/internal/logging"
	"github.com/pinpincloud/internal/metrics"
	"github.com/pinpincloud/internal/models"
	"github.com/pinpincloud/internal/service"
	"github.com/pinpincloud/internal/types"
)

// Service interfaces for dependency injection and testing

// AccountServiceInterface defines the interface for session and user administration
type AccountServiceInterface interface {
	Authenticate(ctx context.Context, identity *auth.Identity) (auth.Principal, error)
	Bootstrap(ctx context.Context, principal auth.Principal) (*service.Session, error)
	ListUsers(ctx context.Context, actor auth.Principal) ([]*models.AdminUserView, error)
	UpdateRole(ctx context.Context, actor auth.Principal, targetUserID string, newRole types.Role) error
	DeleteUser(ctx context.Context, actor auth.Principal, targetUserID string) error
}

// FileServiceInterface defines the interface for file operations
type FileServiceInterface interface {
	Upload(ctx context.Context, input *service.UploadInput) (*models.File, error)
	List(ctx context.Context, ownerID string) ([]*models.File, error)
	Download(ctx context.Context, ownerID, id string) (*models.File, *service.DownloadResult, error)
	Delete(ctx context.Context, ownerID, id string) error
}

// ShareServiceInterface defines the interface for share link operations
type ShareServiceInterface interface {
	CreateShare(ctx context.Context, ownerID, fileID string, mode types.ShareMode, password string) (string, error)
	RemoveShare(ctx context.Context, ownerID, fileID string) error
	ResolveShare(ctx context.Context, fileID string, password *string) (*models.File, error)
	DownloadShared(ctx context.Context, fileID string, password *string) (*models.File, *service.DownloadResult, error)
}

// PlanServiceInterface defines the interface for plan lookups
type PlanServiceInterface interface {
	GetPlan(ctx context.Context, userID string) (*models.Plan, error)
}

// KeyServiceInterface defines the interface for the premium key ledger
type KeyServiceInterface interface {
	Generate(ctx context.Context, actor auth.Principal, input *service.GenerateKeyInput) (*models.PremiumKey, error)
	Redeem(ctx context.Context, actor auth.Principal, code string) (*models.Plan, error)
	List(ctx context.Context, actor auth.Principal) ([]*models.PremiumKey, error)
	Delete(ctx context.Context, actor auth.Principal, code string) error
	Stats(ctx context.Context, actor auth.Principal) (models.KeyStats, error)
}

// StatsServiceInterface defines the interface for dashboard summaries
type StatsServiceInterface interface {
	UserStats(ctx context.Context, ownerID string) (*models.UserStats, error)
	AdminStats(ctx context.Context, actor auth.Principal) (*models.AdminStats, error)
}

// MaintenanceServiceInterface defines the interface for the maintenance record
type MaintenanceServiceInterface interface {
	Get(ctx context.Context) (models.Maintenance, error)
	Update(ctx context.Context, actor auth.Principal, input *service.UpdateMaintenanceInput) (models.Maintenance, error)
	Subscribe(ctx context.Context) (*service.MaintenanceSubscription, error)
}

// TokenVerifier verifies identity provider bearer tokens
type TokenVerifier interface {
	Verify(token string) (*auth.Identity, error)
}

// EventSubscriber opens subscriptions on the event broker
type EventSubscriber interface {
	Subscribe(ctx context.Context, topics ...events.Topic) (events.Subscription, error)
}

// ShareLimiter bounds anonymous requests against share links
type ShareLimiter interface {
	Allow(ctx context.Context, subject string) (bool, time.Duration, error)
}

// Dependencies are the collaborators of the server. ShareLimiter, Metrics
// and Gatherer are optional.
type Dependencies struct {
	Verifier     TokenVerifier
	Accounts     AccountServiceInterface
	Files        FileServiceInterface
	Shares       ShareServiceInterface
	Plans        PlanServiceInterface
	Keys         KeyServiceInterface
	Stats        StatsServiceInterface
	Maintenance  MaintenanceServiceInterface
	Events       EventSubscriber
	ShareLimiter ShareLimiter
	Metrics      *metrics.Metrics
	Gatherer     prometheus.Gatherer
}

// Server represents the HTTP API server.
type Server struct {
	router      *mux.Router
	handler     http.Handler
	httpServer  *http.Server
	deps        Dependencies
	rateLimiter *RateLimiter
	upgrader    websocket.Upgrader
	config      *ServerConfig
}

// ServerConfig holds server configuration.
type ServerConfig struct {
	Host            string
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
	AllowedOrigins  []string
	MaxUploadBytes  int64
	FreeTierRPS     int // Requests per second for the free plan
	PremiumTierRPS  int // Requests per second for premium and lifetime plans
}

// NewServer creates a new API server instance.
func NewServer(config *ServerConfig, deps Dependencies) *Server {
	if config.MaxUploadBytes <= 0 {
		config.MaxUploadBytes = service.DefaultMaxUploadBytes
	}
	s := &Server{
		router: mux.NewRouter(),
		deps:   deps,
		config: config,
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     func(r *http.Request) bool { return originAllowed(config.AllowedOrigins, r.Header.Get("Origin")) },
	}

	s.setupRouter()

	return s
}

// setupRouter configures the router with middleware and routes
func (s *Server) setupRouter() {
	s.rateLimiter = NewRateLimiter(s.config.FreeTierRPS, s.config.PremiumTierRPS)

	// Set up middleware (order matters!)
	s.router.Use(LoggingMiddleware)
	s.router.Use(RecoveryMiddleware)
	s.router.Use(MetricsMiddleware(s.deps.Metrics))

	s.setupRoutes()

	// Preflights match no route, so CORS wraps the router itself
	s.handler = CORSMiddleware(s.config.AllowedOrigins)(s.router)

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%s", s.config.Host, s.config.Port),
		Handler:      s.handler,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
		IdleTimeout:  s.config.IdleTimeout,
	}
}

// setupRoutes configures all API routes.
func (s *Server) setupRoutes() {
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")

	gatherer := s.deps.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	s.router.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})).Methods("GET")

	// Public share links
	share := s.router.PathPrefix("/share").Subrouter()
	share.Use(ShareLimitMiddleware(s.deps.ShareLimiter))
	share.HandleFunc("/{id}", s.handleResolveShare).Methods("GET")
	share.HandleFunc("/{id}/download", s.handleDownloadShare).Methods("POST")

	api := s.router.PathPrefix("/api").Subrouter()

	// Readable before sign-in so the client can render the maintenance screen
	api.HandleFunc("/maintenance", s.handleGetMaintenance).Methods("GET")
	api.HandleFunc("/live/maintenance", s.handleLiveMaintenance).Methods("GET")

	authed := api.NewRoute().Subrouter()
	authed.Use(s.AuthMiddleware)
	authed.Use(RateLimitMiddleware(s.rateLimiter, s.paidPlan))

	authed.HandleFunc("/session", s.handleSession).Methods("GET")
	authed.HandleFunc("/maintenance", s.handleUpdateMaintenance).Methods("PUT")

	gated := authed.NewRoute().Subrouter()
	gated.Use(s.MaintenanceMiddleware)

	// File endpoints
	gated.HandleFunc("/files", s.handleListFiles).Methods("GET")
	gated.HandleFunc("/files", s.handleUploadFile).Methods("POST")
	gated.HandleFunc("/files/{id}/download", s.handleDownloadFile).Methods("GET")
	gated.HandleFunc("/files/{id}", s.handleDeleteFile).Methods("DELETE")
	gated.HandleFunc("/files/{id}/share", s.handleCreateShare).Methods("POST")
	gated.HandleFunc("/files/{id}/share", s.handleRemoveShare).Methods("DELETE")
	gated.HandleFunc("/live/files", s.handleLiveFiles).Methods("GET")

	// Plan and stats endpoints
	gated.HandleFunc("/plan", s.handleGetPlan).Methods("GET")
	gated.HandleFunc("/plan/activate", s.handleActivatePlan).Methods("POST")
	gated.HandleFunc("/stats", s.handleUserStats).Methods("GET")

	// Administration endpoints
	gated.HandleFunc("/admin/stats", s.handleAdminStats).Methods("GET")
	gated.HandleFunc("/admin/users", s.handleListUsers).Methods("GET")
	gated.HandleFunc("/admin/users/{id}/role", s.handleUpdateRole).Methods("PUT")
	gated.HandleFunc("/admin/users/{id}", s.handleDeleteUser).Methods("DELETE")

	// Premium key ledger
	gated.HandleFunc("/keys", s.handleListKeys).Methods("GET")
	gated.HandleFunc("/keys/stats", s.handleKeyStats).Methods("GET")
	gated.HandleFunc("/keys/generate", s.handleGenerateKey).Methods("POST")
	gated.HandleFunc("/keys/{key}", s.handleDeleteKey).Methods("DELETE")
}

// paidPlan selects the rate limit tier of userID
func (s *Server) paidPlan(ctx context.Context, userID string) bool {
	plan, err := s.deps.Plans.GetPlan(ctx, userID)
	if err != nil {
		return false
	}
	return plan.Type != types.PlanFree
}

// handleHealth handles health check requests.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"service": "pinpincloud",
	})
}

// Handler returns the root handler, for tests and embedding
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	logging.Infof("Starting API server on %s", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	logging.Info("Shutting down API server...")
	return s.httpServer.Shutdown(ctx)
}

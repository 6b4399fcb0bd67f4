// Package server provides the HTTP surface of the game backend: routing,
// the auth envelope, rate limits and the response envelope.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"github.com/skourtis/boomtown/internal/config"
	"github.com/skourtis/boomtown/internal/database"
	"github.com/skourtis/boomtown/internal/metrics"
	"github.com/skourtis/boomtown/internal/modules/actions"
	"github.com/skourtis/boomtown/internal/modules/attacks"
	"github.com/skourtis/boomtown/internal/modules/audit"
	"github.com/skourtis/boomtown/internal/modules/auth"
	"github.com/skourtis/boomtown/internal/modules/authz"
	"github.com/skourtis/boomtown/internal/modules/buildings"
	"github.com/skourtis/boomtown/internal/modules/company"
	"github.com/skourtis/boomtown/internal/modules/ledger"
	"github.com/skourtis/boomtown/internal/modules/market"
	"github.com/skourtis/boomtown/internal/modules/social"
	"github.com/skourtis/boomtown/internal/modules/world"
	"github.com/skourtis/boomtown/internal/rules"
	"github.com/skourtis/boomtown/internal/scheduler"
	"github.com/skourtis/boomtown/internal/storage"
	"github.com/skourtis/boomtown/internal/tick"
)

// Config carries everything the server needs, wired in main.
type Config struct {
	Log     zerolog.Logger
	Config  *config.Config
	Metrics *metrics.Metrics

	AuthDB   *database.DB
	GameDB   *database.DB
	SocialDB *database.DB

	AuthService    *auth.Service
	AuthzService   *authz.Service
	CompanyService *company.Service
	WorldService   *world.Service
	ActionService  *actions.Service
	AttackService  *attacks.Service
	SocialService  *social.Service

	BuildingRepo *buildings.Repository
	MarketRepo   *market.Repository
	LedgerRepo   *ledger.Repository
	RulesRepo    *rules.Repository

	Audit     *audit.Recorder
	Hub       *social.Hub
	Assets    *storage.Store
	Scheduler *scheduler.Scheduler
	TickJob   *tick.Processor
}

// Server is the HTTP server.
type Server struct {
	router  *chi.Mux
	server  *http.Server
	log     zerolog.Logger
	cfg     *config.Config
	metrics *metrics.Metrics
	limiter *RateLimiter

	authDB   *database.DB
	gameDB   *database.DB
	socialDB *database.DB

	authService    *auth.Service
	authzService   *authz.Service
	companyService *company.Service
	worldService   *world.Service
	actionService  *actions.Service
	attackService  *attacks.Service
	socialService  *social.Service

	buildingRepo *buildings.Repository
	marketRepo   *market.Repository
	ledgerRepo   *ledger.Repository
	rulesRepo    *rules.Repository

	audit     *audit.Recorder
	hub       *social.Hub
	assets    *storage.Store
	scheduler *scheduler.Scheduler
	tickJob   *tick.Processor

	startedAt time.Time
}

// New creates a new HTTP server.
func New(cfg Config) *Server {
	s := &Server{
		router:         chi.NewRouter(),
		log:            cfg.Log.With().Str("component", "server").Logger(),
		cfg:            cfg.Config,
		metrics:        cfg.Metrics,
		authDB:         cfg.AuthDB,
		gameDB:         cfg.GameDB,
		socialDB:       cfg.SocialDB,
		authService:    cfg.AuthService,
		authzService:   cfg.AuthzService,
		companyService: cfg.CompanyService,
		worldService:   cfg.WorldService,
		actionService:  cfg.ActionService,
		attackService:  cfg.AttackService,
		socialService:  cfg.SocialService,
		buildingRepo:   cfg.BuildingRepo,
		marketRepo:     cfg.MarketRepo,
		ledgerRepo:     cfg.LedgerRepo,
		rulesRepo:      cfg.RulesRepo,
		audit:          cfg.Audit,
		hub:            cfg.Hub,
		assets:         cfg.Assets,
		scheduler:      cfg.Scheduler,
		tickJob:        cfg.TickJob,
		startedAt:      time.Now(),
	}
	s.limiter = NewRateLimiter(cfg.Config.RedisAddr, cfg.Metrics, cfg.Log)

	s.setupMiddleware()
	s.setupRoutes()

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Config.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(s.loggingMiddleware)
	if s.metrics != nil {
		s.router.Use(s.metrics.Middleware)
	}
	s.router.Use(middleware.Timeout(60 * time.Second))

	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Retry-After"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
}

func (s *Server) setupRoutes() {
	s.router.Get("/health", s.handleHealth)
	if s.metrics != nil {
		s.router.Handle("/metrics", s.metrics.Handler())
	}

	authLimit := s.limitMiddleware("auth", s.cfg.AuthRateLimit, s.cfg.AuthRateWindow, clientIP)
	anonLimit := s.limitMiddleware("anonymous", s.cfg.AnonymousRateLimit, time.Minute, clientIP)
	apiLimit := s.limitMiddleware("api", s.cfg.APIRateLimit, time.Minute, userKey)

	s.router.Route("/api", func(r chi.Router) {
		// Credential endpoints take the strict login limit.
		r.Route("/auth", func(r chi.Router) {
			r.Group(func(r chi.Router) {
				r.Use(authLimit)
				r.Post("/login", s.handleLogin)
				r.Post("/login/totp", s.handleLoginTOTP)
				r.Post("/register", s.handleRegister)
				r.Post("/magic-link", s.handleRequestMagicLink)
				r.Post("/magic-link/token", s.handleMagicToken)
				r.Post("/magic-link/code", s.handleMagicCode)
				r.Post("/invitations/accept", s.handleAcceptInvitation)
			})
			r.Group(func(r chi.Router) {
				r.Use(s.requireAuth, apiLimit)
				r.Get("/me", s.handleMe)
				r.Post("/logout", s.handleLogout)
				r.Post("/totp/setup", s.handleTOTPSetup)
				r.Post("/totp/verify", s.handleTOTPVerify)
				r.Post("/totp/disable", s.handleTOTPDisable)
			})
		})

		// Public art assets. Anonymous limit applies.
		r.Group(func(r chi.Router) {
			r.Use(anonLimit)
			r.Get("/assets/*", s.handlePublicAsset)
		})

		// Everything below requires a session.
		r.Group(func(r chi.Router) {
			r.Use(s.requireAuth, apiLimit)

			// Play surfaces sit behind the game page.
			r.Group(func(r chi.Router) {
				r.Use(s.requirePage("game"))

				r.Route("/maps", func(r chi.Router) {
					r.Get("/", s.handleListMaps)
					r.Get("/{mapID}", s.handleGetMap)
					r.Get("/{mapID}/chat", s.handleChatHistory)
					r.Get("/{mapID}/chat/ws", s.handleChatStream)
					r.Get("/{mapID}/hero-messages", s.handleHeroMessages)
					r.Get("/{mapID}/listings", s.handleListListings)
				})

				r.Route("/companies", func(r chi.Router) {
					r.Post("/", s.handleCreateCompany)
					r.Get("/", s.handleListCompanies)

					r.Route("/{companyID}", func(r chi.Router) {
						r.Get("/", s.handleGetCompany)
						r.Post("/join/{mapID}", s.handleJoinMap)
						r.Post("/leave", s.handleLeaveMap)
						r.Post("/hero-out", s.handleHeroOut)
						r.Post("/pay-fine", s.handlePayFine)
						r.Get("/statistics", s.handleCompanyStatistics)
						r.Get("/transactions", s.handleCompanyTransactions)

						r.Route("/actions", func(r chi.Router) {
							r.Post("/buy-land", s.handleBuyLand)
							r.Post("/build", s.handleBuild)
							r.Post("/sell-building", s.handleSellBuilding)
							r.Post("/sell-land", s.handleSellLand)
							r.Post("/list-for-sale", s.handleListForSale)
							r.Post("/cancel-listing", s.handleCancelListing)
							r.Post("/buy-listing", s.handleBuyListing)
							r.Post("/demolish", s.handleDemolish)
							r.Post("/takeover", s.handleTakeover)
							r.Post("/security", s.handlePurchaseSecurity)
							r.Post("/security/remove", s.handleRemoveSecurity)
						})

						r.Route("/attacks", func(r chi.Router) {
							r.Post("/", s.handleAttack)
							r.Post("/extinguish", s.handleExtinguish)
							r.Post("/cleanup", s.handleCleanup)
							r.Post("/repair", s.handleRepair)
						})
					})
				})

				r.Get("/buildings/types", s.handleBuildingTypes)
				r.Get("/buildings/{buildingID}/messages", s.handleBuildingMessages)

				r.Route("/social", func(r chi.Router) {
					r.Post("/chat", s.handlePostChat)
					r.Post("/donations", s.handleDonate)
					r.Get("/donations/leaderboard", s.handleLeaderboard)
					r.Route("/casino", func(r chi.Router) {
						r.Post("/roulette", s.handleRoulette)
						r.Post("/blackjack", s.handleBlackjackDeal)
						r.Get("/blackjack/{gameID}", s.handleBlackjackState)
						r.Post("/blackjack/{gameID}/hit", s.handleBlackjackHit)
						r.Post("/blackjack/{gameID}/stand", s.handleBlackjackStand)
						r.Post("/blackjack/{gameID}/double", s.handleBlackjackDouble)
					})
				})
			})

			// Administration. The role gate runs first, then the page each
			// surface belongs to.
			r.Route("/admin", func(r chi.Router) {
				r.Use(s.requireRole(auth.RoleAdmin))

				r.With(s.requirePage("settings")).Post("/maps", s.handleCreateMap)
				r.Group(func(r chi.Router) {
					r.Use(s.requirePage("users"))
					r.Post("/users/invite", s.handleInvite)
					r.Get("/users", s.handleListUsers)
					r.Post("/users/{userID}/archive", s.handleArchiveUser)
					r.Post("/users/{userID}/restore", s.handleRestoreUser)
					r.Post("/permissions", s.handleGrantPermission)
				})
				r.With(s.requirePage("reports")).Get("/audit", s.handleAuditLog)

				r.Route("/roles", func(r chi.Router) {
					r.Use(s.requirePage("roles"))
					r.Get("/", s.handleListRoles)
					r.Post("/", s.handleCreateRole)
					r.Delete("/{role}", s.handleDeleteRole)
					r.Put("/{role}/pages", s.handleSetRolePages)
				})
				r.Group(func(r chi.Router) {
					r.Use(s.requirePage("settings"))
					r.Post("/previews/{key}", s.handleUploadPreview)
					r.Get("/previews/{key}", s.handlePreviewAsset)
				})

				// Master-admin only.
				r.Group(func(r chi.Router) {
					r.Use(s.requireRole(auth.RoleMasterAdmin))

					r.With(s.requirePage("users")).Delete("/users/{userID}", s.handleDeleteUser)
					r.Route("/tenants", func(r chi.Router) {
						r.Use(s.requirePage("tenants"))
						r.Post("/", s.handleCreateTenant)
						r.Get("/{tenantID}", s.handleGetTenant)
						r.Delete("/{tenantID}", s.handleDeleteTenant)
						r.Put("/{tenantID}/pages", s.handleSetTenantPages)
					})
					r.Route("/moderation", func(r chi.Router) {
						r.Use(s.requirePage("moderation_queue"))
						r.Get("/attacks", s.handlePendingAttackMessages)
						r.Post("/attacks/{attackID}", s.handleReviewAttackMessage)
						r.Get("/chat", s.handlePendingChat)
						r.Post("/chat/{messageID}", s.handleReviewChat)
					})
					r.Group(func(r chi.Router) {
						r.Use(s.requirePage("rules_editor"))
						r.Get("/rules", s.handleGetRules)
						r.Put("/rules", s.handleSaveRules)
					})
				})
			})

			// System monitoring and manual triggers. Analysts reach it only
			// when their tenant assigns the reports page.
			r.Route("/system", func(r chi.Router) {
				r.Use(s.requireRole(auth.RoleAdmin, auth.RoleAnalyst), s.requirePage("reports"))
				r.Get("/status", s.handleSystemStatus)
				r.Get("/database/stats", s.handleDatabaseStats)
				r.Get("/disk", s.handleDiskUsage)
				r.Get("/jobs", s.handleJobsStatus)
				r.Post("/jobs/tick", s.handleTriggerTick)
			})
		})
	})
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	s.log.Info().Int("port", s.cfg.Port).Msg("Starting HTTP server")
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("Shutting down HTTP server")
	if err := s.limiter.Close(); err != nil {
		s.log.Warn().Err(err).Msg("Rate limiter close failed")
	}
	return s.server.Shutdown(ctx)
}

// loggingMiddleware logs HTTP requests.
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		s.log.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Int("bytes", ww.BytesWritten()).
			Dur("duration_ms", time.Since(start)).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("HTTP request")
	})
}

// handleHealth handles health check requests.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeData(w, http.StatusOK, map[string]interface{}{
		"status":  "healthy",
		"service": "boomtown",
		"uptime":  time.Since(s.startedAt).String(),
	})
}

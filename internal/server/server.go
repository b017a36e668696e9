// Package server is the composition root: it opens storage, builds the
// services and handlers, mounts the routes and runs the HTTP server with
// graceful shutdown.
//
// DEPENDENCY FLOW:
//
//	config.Config → sqlite.DB, redis.Client, notify.Dispatcher
//	             → Registry, CardService, MemberService, BusinessService, StaffService,
//	               InstituteService, GovernmentService
//	             → handlers → chi routes
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/redis/go-redis/v9"

	"github.com/sakif/cardauth/internal/auth"
	"github.com/sakif/cardauth/internal/config"
	"github.com/sakif/cardauth/internal/handler"
	"github.com/sakif/cardauth/internal/idgen"
	"github.com/sakif/cardauth/internal/middleware"
	"github.com/sakif/cardauth/internal/notify"
	"github.com/sakif/cardauth/internal/otp"
	sqliteRepo "github.com/sakif/cardauth/internal/repository/sqlite"
	"github.com/sakif/cardauth/internal/rewards"
	"github.com/sakif/cardauth/internal/service"
)

var _ service.AssociationChecker = (*rewards.Client)(nil)

// Server owns the database, the Redis client and the notification workers;
// Close releases all three.
type Server struct {
	router     *chi.Mux
	config     *config.Config
	logger     *slog.Logger
	db         *sqliteRepo.DB
	rdb        *redis.Client
	dispatcher *notify.Dispatcher
}

// New opens storage and wires every route. The notification workers are
// running when New returns.
func New(cfg *config.Config, logger *slog.Logger) (*Server, error) {
	if cfg.DBPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0o755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	db, err := sqliteRepo.New(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	dispatcher := notify.NewDispatcher(newNotifier(cfg, logger), notify.DispatcherConfig{
		Workers:   cfg.Notify.Workers,
		QueueSize: cfg.Notify.QueueSize,
	}, logger)

	s := &Server{
		router:     chi.NewRouter(),
		config:     cfg,
		logger:     logger,
		db:         db,
		rdb:        rdb,
		dispatcher: dispatcher,
	}

	if err := s.setupRoutes(); err != nil {
		s.Close()
		return nil, fmt.Errorf("setting up routes: %w", err)
	}

	s.dispatcher.Start()
	return s, nil
}

// newNotifier routes each channel to its real sender, or to the log when the
// sender is not configured.
func newNotifier(cfg *config.Config, logger *slog.Logger) notify.Notifier {
	fallback := notify.NewLogNotifier(logger)
	mux := notify.NewMux()

	if cfg.SMTP.Host != "" {
		mux.Handle(notify.ChannelEmail, notify.NewEmailSender(notify.SMTPConfig{
			Host:     cfg.SMTP.Host,
			Port:     cfg.SMTP.Port,
			Username: cfg.SMTP.Username,
			Password: cfg.SMTP.Password,
			From:     cfg.SMTP.From,
		}))
	} else {
		logger.Warn("SMTP not configured, emails will only be logged")
		mux.Handle(notify.ChannelEmail, fallback)
	}

	if cfg.SMS.URL != "" {
		mux.Handle(notify.ChannelSMS, notify.NewSMSSender(cfg.SMS.URL, cfg.SMS.PassKey))
	} else {
		logger.Warn("SMS gateway not configured, SMS will only be logged")
		mux.Handle(notify.ChannelSMS, fallback)
	}

	return mux
}

// setupRoutes builds the dependency graph and mounts the routes.
//
// ROUTES:
//
//	GET  /health
//	GET  /auth/github/login, /auth/github/callback   (when GitHub is configured)
//	POST /auth/logout
//	POST /api/members/{signup,signup/verify,login}   public
//	GET  /api/members/me                              member
//	POST /api/businesses/{signup,signup/verify,login} public
//	GET  /api/businesses/{code}/{cards,mappings}      business, staff
//	GET  /api/cards/resolve, POST /api/cards/assign   business, staff
//	POST /api/institutes/members                      business (institutes only)
//	POST /api/government/login                        public
//	GET, PUT /api/government/me, POST .../password    government
//	GET  /api/staff/me                                staff
//	POST, PUT /api/admin/...                          staff
func (s *Server) setupRoutes() error {
	cfg := s.config

	tokens, err := auth.NewTokenService(cfg.JWT.Secret, cfg.JWT.TTL)
	if err != nil {
		return err
	}

	gen := idgen.New()
	pins := auth.NewPINHasher()
	signups := service.NewSignupFlow(
		otp.NewRedisStore(s.rdb),
		auth.NewOTPIssuer(cfg.OTP.TTL),
		s.dispatcher,
		cfg.OTP.TTL,
		s.logger,
	)

	var assoc service.AssociationChecker = service.NewLedgerAssociation(s.db, s.db)
	if cfg.Reward.URL != "" {
		assoc = rewards.NewClient(cfg.Reward.URL, cfg.Reward.Timeout)
	} else {
		s.logger.Info("reward server not configured, association checked against the local ledger")
	}

	registry := service.NewRegistry(s.db, s.db, gen, pins, s.logger)
	cardService := service.NewCardService(s.db, s.db, registry, assoc, gen, s.logger)
	memberService := service.NewMemberService(registry, signups, pins, tokens, s.dispatcher, s.logger)
	businessService := service.NewBusinessService(s.db, gen, signups, pins, tokens, s.logger)
	staffService := service.NewStaffService(s.db, tokens, cfg.GitHub.AllowedLogins, s.logger)
	instituteService := service.NewInstituteService(s.db, memberService, s.logger)
	governmentService := service.NewGovernmentService(s.db, pins, tokens, s.logger)

	cards := handler.NewCardHandler(cardService, s.logger)
	members := handler.NewMemberHandler(memberService, s.logger)
	businesses := handler.NewBusinessHandler(businessService, s.logger)
	institutes := handler.NewInstituteHandler(instituteService, s.logger)
	government := handler.NewGovernmentHandler(governmentService, s.logger)
	pingRedis := handler.PingFunc(func(ctx context.Context) error {
		return s.rdb.Ping(ctx).Err()
	})
	health := handler.NewHealthHandler(map[string]handler.Pinger{
		"database": s.db,
		"redis":    pingRedis,
	}, s.logger)

	var github handler.GitHubProvider
	if cfg.GitHub.Enabled() {
		github = auth.NewGitHubProvider(cfg.GitHub.ClientID, cfg.GitHub.ClientSecret, cfg.GitHub.CallbackURL)
	}
	authHandler := handler.NewAuthHandler(github, staffService, cfg.JWT.TTL, s.logger)

	member := auth.RequireRole(tokens, auth.RoleMember)
	business := auth.RequireRole(tokens, auth.RoleBusiness)
	officer := auth.RequireRole(tokens, auth.RoleGovernment)
	businessOrStaff := auth.RequireRole(tokens, auth.RoleBusiness, auth.RoleStaff)
	staff := auth.RequireRole(tokens, auth.RoleStaff)

	r := s.router
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logger(s.logger))
	r.Use(chimiddleware.Recoverer)

	r.Get("/health", health.HandleHealth)

	if github != nil {
		r.Get("/auth/github/login", authHandler.HandleGitHubLogin)
		r.Get("/auth/github/callback", authHandler.HandleGitHubCallback)
	} else {
		s.logger.Warn("GitHub OAuth not configured, staff sign-in is disabled")
	}
	r.Post("/auth/logout", authHandler.HandleLogout)

	r.Route("/api", func(r chi.Router) {
		r.Route("/members", func(r chi.Router) {
			r.Post("/signup", members.HandleSignup)
			r.Post("/signup/verify", members.HandleVerify)
			r.Post("/login", members.HandleLogin)
			r.With(member).Get("/me", members.HandleMe)
		})

		r.Route("/businesses", func(r chi.Router) {
			r.Post("/signup", businesses.HandleSignup)
			r.Post("/signup/verify", businesses.HandleVerify)
			r.Post("/login", businesses.HandleLogin)
			r.With(businessOrStaff).Get("/{code}/cards", cards.HandleListCards)
			r.With(businessOrStaff).Get("/{code}/mappings", cards.HandleListMappings)
		})

		r.Route("/cards", func(r chi.Router) {
			r.Use(businessOrStaff)
			r.Get("/resolve", cards.HandleResolve)
			r.Post("/assign", cards.HandleAssign)
		})

		r.With(business).Post("/institutes/members", institutes.HandleAddMember)

		r.Route("/government", func(r chi.Router) {
			r.Post("/login", government.HandleLogin)
			r.With(officer).Get("/me", government.HandleMe)
			r.With(officer).Put("/me", government.HandleUpdateProfile)
			r.With(officer).Post("/password", government.HandleChangePassword)
		})

		r.With(staff).Get("/staff/me", authHandler.HandleMe)

		r.Route("/admin", func(r chi.Router) {
			r.Use(staff)
			r.Post("/businesses", businesses.HandleCreate)
			r.Post("/businesses/{code}/cards", cards.HandleMint)
			r.Post("/members", members.HandleAdd)
			r.Post("/mappings", cards.HandleMap)
			r.Post("/government-users", government.HandleCreate)
			r.Put("/government-users/{id}/active", government.HandleSetActive)
		})
	})

	return nil
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Close drains pending notifications, then closes Redis and the database.
func (s *Server) Close() error {
	s.dispatcher.Stop()
	return errors.Join(s.rdb.Close(), s.db.Close())
}

// Start serves until SIGINT/SIGTERM, then gives in-flight requests 30
// seconds to finish before closing everything the server owns.
func (s *Server) Start() error {
	defer s.Close()

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", s.config.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	serverErrors := make(chan error, 1)

	go func() {
		s.logger.Info("server starting",
			slog.Int("port", s.config.Port),
			slog.String("database", s.config.DBPath),
			slog.String("redis", s.config.Redis.Addr),
		)
		serverErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}

	case sig := <-quit:
		s.logger.Info("shutdown signal received", slog.String("signal", sig.String()))

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		s.logger.Info("server stopped gracefully")
	}

	return nil
}

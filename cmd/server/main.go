package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"regexp"
	"syscall"
	"time"

	"ovpnadmin/internal/auth"
	"ovpnadmin/internal/config"
	"ovpnadmin/internal/database"
	"ovpnadmin/internal/handlers"
	"ovpnadmin/internal/logging"
	"ovpnadmin/internal/middleware"
	"ovpnadmin/internal/services"
	"ovpnadmin/internal/vpncertd"

	"github.com/sirupsen/logrus"
)

const shutdownTimeout = 10 * time.Second

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logrus.Fatalf("Failed to load configuration: %v", err)
	}

	log := logging.New(cfg.Log.Level, cfg.Log.Format)

	// A missing or short pepper is fatal.
	pepper, err := auth.LoadPepper(cfg.Server.PepperFile)
	if err != nil {
		log.WithError(err).Fatal("Failed to load pepper")
	}
	hasher, err := auth.NewHasher(pepper)
	if err != nil {
		log.WithError(err).Fatal("Failed to initialize password hasher")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Initialize database
	db, err := database.New(ctx, cfg.DB.Path, cfg.DB.MaxConns)
	if err != nil {
		log.WithError(err).Fatal("Failed to initialize database")
	}
	defer db.Close()

	// Initialize services
	cnPattern := regexp.MustCompile(cfg.Ovpn.CNPattern)
	auditService := auth.NewAuditService(db, log)
	userService := auth.NewUserService(db, hasher)
	sessionManager := auth.NewSessionManager(db, cfg.Server.CookieName, cfg.SessionTTL())
	throttle := auth.NewThrottle(db, auth.ThrottlePolicy{
		Window:       cfg.ThrottleWindow(),
		MaxPerUserIP: cfg.Throttle.MaxPerUserIP,
		MaxPerIP:     cfg.Throttle.MaxPerIP,
	})
	daemon := vpncertd.New(cfg.Ovpn.SocketPath, vpncertd.Options{}, log)
	clientService := services.NewClientService(daemon, auditService, cnPattern, services.BundleTarget{
		Host:  cfg.Ovpn.BundleRemote,
		Port:  cfg.Ovpn.BundlePort,
		Proto: cfg.Ovpn.BundleProto,
	})
	ccdService := services.NewCCDService(cfg.Ovpn.CCDDir, cnPattern, auditService)

	// Ensure bootstrap admin user exists
	created, err := userService.EnsureBootstrapAdmin(ctx, cfg.Server.BootstrapAdmin, cfg.Server.BootstrapPassword)
	if err != nil {
		log.WithError(err).Fatal("Failed to create bootstrap admin")
	}
	if created {
		log.WithField("username", cfg.Server.BootstrapAdmin).Info("Created bootstrap admin user")
	}

	go sweepSessions(ctx, sessionManager, time.Duration(cfg.Server.SweepIntervalSecs)*time.Second, log)

	// Initialize middleware and handlers
	proxies, err := middleware.NewTrustedProxies(cfg.Server.TrustedProxies)
	if err != nil {
		log.WithError(err).Fatal("Invalid trusted proxy list")
	}
	csrf := middleware.NewCSRF(log)
	authMiddleware := middleware.NewAuthMiddleware(sessionManager, auth.NewAuthenticator(sessionManager, userService), log)

	router := &handlers.Router{
		Logger:  log,
		Proxies: proxies,
		CSRF:    csrf,
		AuthMW:  authMiddleware,
		Auth:    handlers.NewAuthHandler(sessionManager, userService, throttle, auditService, csrf, log),
		Admin:   handlers.NewAdminHandler(auditService, log),
		Users:   handlers.NewUsersHandler(userService, auditService, log),
		Clients: handlers.NewClientsHandler(clientService, log),
		CCD:     handlers.NewCCDHandler(ccdService, log),
		Health:  handlers.NewHealthHandler(db, daemon, log),
	}

	srv := &http.Server{
		Addr:              cfg.Server.Bind,
		Handler:           router.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Handle graceful shutdown
	go func() {
		<-ctx.Done()
		log.Info("Shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.WithError(err).Warn("Graceful shutdown failed")
		}
	}()

	log.WithField("addr", cfg.Server.Bind).Info("Starting ovpnadmin")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.WithError(err).Error("Failed to start server")
		os.Exit(1)
	}
}

// sweepSessions deletes expired session rows until ctx is cancelled.
func sweepSessions(ctx context.Context, sessions *auth.SessionManager, every time.Duration, log logrus.FieldLogger) {
	if every <= 0 {
		return
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := sessions.Sweep(ctx)
			if err != nil {
				log.WithError(err).Warn("Session sweep failed")
				continue
			}
			if n > 0 {
				log.WithField("deleted", n).Debug("Swept expired sessions")
			}
		}
	}
}

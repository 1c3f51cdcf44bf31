package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/MicahParks/keyfunc/v2"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/jmerrifield20/fellows/internal/api/handler"
	"github.com/jmerrifield20/fellows/internal/config"
	"github.com/jmerrifield20/fellows/internal/database"
	"github.com/jmerrifield20/fellows/internal/email"
	"github.com/jmerrifield20/fellows/internal/health"
	"github.com/jmerrifield20/fellows/internal/identity"
	"github.com/jmerrifield20/fellows/internal/login"
	"github.com/jmerrifield20/fellows/internal/media"
	"github.com/jmerrifield20/fellows/internal/posts"
	"github.com/jmerrifield20/fellows/internal/reporting"
	"github.com/jmerrifield20/fellows/internal/store"
	"github.com/jmerrifield20/fellows/internal/tokens"
	"github.com/jmerrifield20/fellows/internal/users"
	"go.uber.org/zap"
)

// Set with -ldflags "-X main.version=...".
var version = "1.0.0"

const (
	serviceName        = "Melton Foundation Server API"
	serviceDescription = "Membership, store and content API for Melton Foundation fellows."
)

func main() {
	cfg, err := config.Load(os.Getenv("FELLOWS_CONFIG"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "fellows: %v\n", err)
		os.Exit(1)
	}

	logger, _ := zap.NewProduction()
	if cfg.Log.Development {
		logger, _ = zap.NewDevelopment()
	}
	defer logger.Sync() //nolint:errcheck

	if err := run(cfg, logger); err != nil {
		logger.Fatal("api exited with error", zap.Error(err))
	}
}

func run(cfg *config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Error reporting ──────────────────────────────────────────────────────
	reporter, err := reporting.New(reporting.Config{
		DSN:         cfg.Sentry.DSN,
		Environment: cfg.Sentry.Environment,
		Release:     "fellows@" + version,
		SampleRate:  cfg.Sentry.SampleRate,
	})
	if err != nil {
		return err
	}
	defer reporter.Flush(2 * time.Second)
	if cfg.Sentry.DSN == "" {
		logger.Info("error reporting: disabled (set sentry.dsn to enable)")
	}

	// ── Database ─────────────────────────────────────────────────────────────
	db, err := database.Connect(ctx, cfg.Database.URL, cfg.Database.MaxConns)
	if err != nil {
		return fmt.Errorf("postgres: %w", err)
	}
	defer db.Close()
	logger.Info("connected to postgres")

	// ── Email Sender ──────────────────────────────────────────────────────────
	var mailer email.EmailSender
	if cfg.Email.SMTPHost != "" {
		mailer = email.NewSMTPSender(
			cfg.Email.SMTPHost,
			cfg.Email.SMTPPort,
			cfg.Email.SMTPUsername,
			cfg.Email.SMTPPassword,
			cfg.Email.FromAddress,
		)
		logger.Info("SMTP email sender configured", zap.String("host", cfg.Email.SMTPHost))
	} else {
		mailer = email.NewNoopSender(logger)
		logger.Info("email sender: noop (set email.smtp_host to enable SMTP)")
	}

	// ── Profile pictures ──────────────────────────────────────────────────────
	var pictures media.PictureSaver
	if cfg.Media.Bucket != "" {
		s3Client, err := media.NewS3Client(ctx, media.S3Config{
			Bucket:    cfg.Media.Bucket,
			Region:    cfg.Media.Region,
			Endpoint:  cfg.Media.Endpoint,
			AccessKey: cfg.Media.AccessKey,
			SecretKey: cfg.Media.SecretKey,
		})
		if err != nil {
			return err
		}
		pictures = media.NewS3Saver(s3Client, cfg.Media.Bucket, &http.Client{Timeout: cfg.Media.DownloadTimeout}, logger)
		logger.Info("profile pictures stored in S3", zap.String("bucket", cfg.Media.Bucket))
	} else {
		pictures = media.NewDiscardSaver(logger)
		logger.Info("profile pictures: discarded (set media.bucket to enable)")
	}

	// ── Identity providers ────────────────────────────────────────────────────
	providerClient := &http.Client{Timeout: cfg.Identity.HTTPTimeout}
	verifiers := identity.Registry{
		identity.ProviderGoogle: identity.Unimplemented{},
		identity.ProviderApple:  identity.Unimplemented{},
		identity.ProviderWeChat: identity.Unimplemented{},
		identity.ProviderMF:     identity.Unimplemented{},
	}

	if len(cfg.Identity.Google.ClientIDs) > 0 {
		googleKeys, err := identity.NewRemoteKeySet(cfg.Identity.Google.JWKSURL, providerClient, logger)
		if err != nil {
			return fmt.Errorf("google keys: %w", err)
		}
		defer googleKeys.EndBackground()
		verifiers[identity.ProviderGoogle] = identity.NewGoogleVerifier(googleKeys.Keyfunc, cfg.Identity.Google.ClientIDs)
		logger.Info("google sign-in enabled", zap.Int("client_ids", len(cfg.Identity.Google.ClientIDs)))
	} else {
		logger.Warn("google sign-in disabled (set identity.google.client_ids)")
	}

	appleResolver := identity.NewAppleResolver(identity.NewLinkRepository(db), logger)
	if cfg.Identity.Apple.Enabled() {
		apple, appleKeys, err := newAppleVerifier(cfg.Identity.Apple, cfg.Identity.HTTPTimeout, appleResolver, providerClient, logger)
		if err != nil {
			return err
		}
		defer appleKeys.EndBackground()
		verifiers[identity.ProviderApple] = apple
		logger.Info("apple sign-in enabled")
	} else {
		logger.Warn("apple sign-in disabled (set identity.apple.*)")
	}

	// ── Wire up layers ────────────────────────────────────────────────────────
	tokenStore := tokens.NewStore(tokens.NewRepository(db), tokens.Config{
		IdleLifespan:     cfg.Tokens.IdleLifespan,
		ExpiringLifespan: cfg.Tokens.ExpiringLifespan,
		EnforceIdle:      cfg.Tokens.EnforceIdle,
	}, logger)
	userSvc := users.NewService(users.NewRepository(db), mailer, cfg.Email.Managers, logger)
	loginSvc := login.NewService(userSvc, verifiers, appleResolver, tokenStore, pictures, logger)
	storeSvc := store.NewService(store.NewRepository(db), logger)
	postSvc := posts.NewService(posts.NewRepository(db), logger)

	auth := tokens.RequireToken(tokenStore, logger)
	accountHandler := handler.NewAccountHandler(userSvc, loginSvc, auth, reporter, logger)
	storeHandler := handler.NewStoreHandler(storeSvc, auth, reporter, logger)
	postHandler := handler.NewPostHandler(postSvc, reporter, logger)

	// ── Health ────────────────────────────────────────────────────────────────
	checker := health.New(health.Config{}, logger)
	checker.Add("database", db.Ping)
	checker.SetMetricsRecord(handler.RecordProbe)
	go checker.Start(ctx)

	// ── Background: purge expired tokens hourly ─────────────────────────────
	go func() {
		ticker := time.NewTicker(time.Hour)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				purgeCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
				n, err := tokenStore.PurgeExpired(purgeCtx)
				cancel()
				if err != nil {
					logger.Warn("token purge error", zap.Error(err))
				} else if n > 0 {
					logger.Info("expired tokens purged", zap.Int64("count", n))
				}
			case <-ctx.Done():
				return
			}
		}
	}()

	// ── HTTP Router ───────────────────────────────────────────────────────────
	if os.Getenv("GIN_MODE") == "" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(reporting.Recovery(reporter, logger))

	corsOrigins := cfg.Server.CORSOrigins
	router.Use(cors.New(cors.Config{
		AllowOrigins:     corsOrigins,
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", "Accept"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: !containsWildcard(corsOrigins),
		MaxAge:           12 * time.Hour,
	}))

	// Security headers
	router.Use(func(c *gin.Context) {
		c.Header("X-Frame-Options", "DENY")
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("Referrer-Policy", "strict-origin-when-cross-origin")
		c.Next()
	})

	bodyLimit := cfg.Server.BodyLimitBytes
	router.Use(func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, bodyLimit)
		c.Next()
	})

	if rps := cfg.Server.RateLimitRPS; rps > 0 {
		router.Use(handler.RateLimiter(ctx, rps, rps*2))
	}

	router.Use(handler.PrometheusMiddleware())
	router.Use(requestLogger(logger))

	router.GET("/healthz", checker.Handler())
	router.GET("/metrics", handler.MetricsHandler())

	api := router.Group("/api")
	api.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"name":        serviceName,
			"version":     version,
			"description": serviceDescription,
		})
	})
	accountHandler.Register(api)
	storeHandler.Register(api)
	postHandler.Register(api)

	httpSrv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("api listening", zap.Int("port", cfg.Server.Port), zap.String("version", version))
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	// ── Graceful shutdown ──────────────────────────────────────────────────────
	select {
	case <-ctx.Done():
	case err := <-errCh:
		return fmt.Errorf("http listen: %w", err)
	}
	logger.Info("shutting down api...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP shutdown error", zap.Error(err))
	}

	logger.Info("api stopped")
	return nil
}

func newAppleVerifier(cfg config.AppleConfig, timeout time.Duration, subjects identity.SubjectLookup, client *http.Client, logger *zap.Logger) (*identity.AppleVerifier, *keyfunc.JWKS, error) {
	keyPEM, err := os.ReadFile(cfg.PrivateKeyPath)
	if err != nil {
		return nil, nil, fmt.Errorf("read apple private key: %w", err)
	}
	keys, err := identity.NewRemoteKeySet(cfg.JWKSURL, client, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("apple keys: %w", err)
	}
	v, err := identity.NewAppleVerifier(identity.AppleConfig{
		TeamID:        cfg.TeamID,
		KeyID:         cfg.KeyID,
		ClientID:      cfg.ClientID,
		PrivateKeyPEM: keyPEM,
		TokenURL:      cfg.TokenURL,
		Timeout:       timeout,
	}, keys.Keyfunc, subjects, client)
	if err != nil {
		keys.EndBackground()
		return nil, nil, err
	}
	return v, keys, nil
}

// containsWildcard returns true if origins includes "*".
func containsWildcard(origins []string) bool {
	for _, o := range origins {
		if strings.TrimSpace(o) == "*" {
			return true
		}
	}
	return false
}

// requestLogger returns a Gin middleware that logs each request with zap.
func requestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Info("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
		)
	}
}

package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "time/tzdata"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/wolfman30/contractor-booking/cmd/mainconfig"
	"github.com/wolfman30/contractor-booking/internal/analytics"
	"github.com/wolfman30/contractor-booking/internal/api/router"
	"github.com/wolfman30/contractor-booking/internal/app/bootstrap"
	appconfig "github.com/wolfman30/contractor-booking/internal/config"
	"github.com/wolfman30/contractor-booking/internal/demo"
	"github.com/wolfman30/contractor-booking/internal/http/handlers"
	httpmiddleware "github.com/wolfman30/contractor-booking/internal/http/middleware"
	"github.com/wolfman30/contractor-booking/internal/http/sessiontoken"
	"github.com/wolfman30/contractor-booking/internal/notify"
	"github.com/wolfman30/contractor-booking/internal/observability/metrics"
	"github.com/wolfman30/contractor-booking/internal/session"
	"github.com/wolfman30/contractor-booking/internal/submission"
	"github.com/wolfman30/contractor-booking/pkg/logging"
)

func main() {
	// Local .env is optional.
	_ = godotenv.Load()

	// Load configuration
	cfg := appconfig.Load()

	// Initialize logger
	logger := logging.New(cfg.LogLevel)
	logger.Info("starting contractor-booking API server",
		"env", cfg.Env,
		"port", cfg.Port,
		"mock_api", cfg.UseMockAPI,
	)
	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	metricsHandler, wizardMetrics := setupMetrics()

	var awsCfg *aws.Config
	if mainconfig.NeedsAWS(cfg) {
		loaded, err := mainconfig.LoadAWSConfig(ctx, cfg)
		if err != nil {
			logger.Error("failed to load AWS config", "error", err)
		} else {
			awsCfg = &loaded
		}
	}

	redisClient := bootstrap.BuildRedisClient(ctx, cfg, logger, true)
	var draftStore session.DraftStore
	if store := bootstrap.BuildDraftStore(redisClient, cfg); store != nil {
		draftStore = store
	} else {
		logger.Warn("draft persistence disabled; sessions live in memory only")
	}

	pool := bootstrap.ConnectPostgresPool(ctx, postgresURL(cfg), logger)
	emitter := analytics.NewEmitter(bootstrap.BuildAnalyticsSink(cfg, awsCfg, pool, logger), analytics.Config{
		Buffer:  cfg.AnalyticsBuffer,
		Logger:  logger,
		Metrics: wizardMetrics,
	})

	notifier := notify.NewConfirmationNotifier(bootstrap.BuildEmailSender(cfg, awsCfg, logger), logger)
	uploads := bootstrap.BuildAttachmentStore(cfg, awsCfg, logger)

	var demoAPI http.Handler
	if cfg.UseMockAPI {
		demoAPI = demo.NewMockContractorAPI(logger).Routes()
	}
	bookingClient, err := bootstrap.BuildBookingClient(cfg, mockBaseURL(cfg), logger)
	if err != nil {
		logger.Error("failed to build booking API client", "error", err)
		os.Exit(1)
	}

	manager := session.NewManager(session.Config{
		Remote:      bookingClient,
		Drafts:      draftStore,
		Analytics:   emitter,
		Metrics:     wizardMetrics,
		Logger:      logger,
		IdleTimeout: cfg.SessionIdleTimeout,
		Hooks: session.Hooks{
			OnComplete: completionHook(notifier, logger),
			OnError: func(sessionID, msg string) {
				logger.Debug("wizard error shown", "session_id", sessionID, "message", msg)
			},
		},
	})
	go manager.Run(ctx, time.Minute)

	issuer, err := newSessionIssuer(cfg, logger)
	if err != nil {
		logger.Error("failed to create session token issuer", "error", err)
		os.Exit(1)
	}

	limiter := httpmiddleware.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst)
	go limiter.RunEviction(5*time.Minute, ctx.Done())

	// Setup router
	r := router.New(&router.Config{
		Logger:             logger,
		Wizard:             handlers.NewWizardHandler(manager, issuer, uploads, logger),
		SessionTokens:      issuer,
		RateLimiter:        limiter,
		MetricsHandler:     metricsHandler,
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
		Demo:               demoAPI,
	})

	// Create HTTP server
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")
	cancel()

	// Graceful shutdown with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
	}
	if err := emitter.Close(shutdownCtx); err != nil {
		logger.Warn("analytics drain incomplete", "error", err)
	}
	if redisClient != nil {
		_ = redisClient.Close()
	}
	if pool != nil {
		pool.Close()
	}

	logger.Info("server stopped")
	fmt.Println("Server exited gracefully")
}

// setupMetrics registers the wizard metrics on a dedicated registry.
func setupMetrics() (http.Handler, *metrics.WizardMetrics) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{}), metrics.NewWizardMetrics(reg)
}

// mockBaseURL points the booking client at the in-process demo API when no
// real API is configured.
func mockBaseURL(cfg *appconfig.Config) string {
	if !cfg.UseMockAPI || cfg.BookingAPIBaseURL != "" {
		return ""
	}
	return "http://127.0.0.1:" + cfg.Port + "/demo"
}

func postgresURL(cfg *appconfig.Config) string {
	if cfg.AnalyticsSink != "postgres" {
		return ""
	}
	return cfg.DatabaseURL
}

// newSessionIssuer uses the configured signing secret. Outside production a
// random per-process secret is generated, so tokens do not survive restarts.
func newSessionIssuer(cfg *appconfig.Config, logger *logging.Logger) (*sessiontoken.Issuer, error) {
	secret := cfg.SessionSigningSecret
	if secret == "" {
		buf := make([]byte, 32)
		if _, err := rand.Read(buf); err != nil {
			return nil, err
		}
		secret = hex.EncodeToString(buf)
		logger.Warn("SESSION_SIGNING_SECRET not set; using an ephemeral secret")
	}
	return sessiontoken.NewIssuer(secret, cfg.SessionTokenTTL)
}

// completionHook sends confirmation emails off the request path.
func completionHook(notifier *notify.ConfirmationNotifier, logger *logging.Logger) func(submission.Completion) {
	return func(c submission.Completion) {
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			if err := notifier.Notify(ctx, c); err != nil {
				logger.Error("booking confirmation email failed",
					"session_id", c.SessionID,
					"booking_id", c.Booking.ID,
					"error", err,
				)
			}
		}()
	}
}

package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/civicpulse/receipts/internal/anchor"
	"github.com/civicpulse/receipts/internal/auth"
	"github.com/civicpulse/receipts/internal/config"
	"github.com/civicpulse/receipts/internal/health"
	"github.com/civicpulse/receipts/internal/intake/handler"
	"github.com/civicpulse/receipts/internal/intake/repository"
	"github.com/civicpulse/receipts/internal/intake/service"
	"github.com/civicpulse/receipts/internal/notify"
	"github.com/civicpulse/receipts/internal/receiptchain"
	"github.com/civicpulse/receipts/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	log := logger.Must(cfg.App.Env)
	defer log.Sync() //nolint:errcheck

	if err := run(cfg, log); err != nil {
		log.Fatal("receiptd exited with error", zap.Error(err))
	}
}

func run(cfg *config.Config, log *zap.Logger) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// ── Ledger + submissions ─────────────────────────────────────────────────
	codes := receiptchain.NewShortCodeAllocator()
	codes.SetCollisionHook(handler.RecordShortCodeCollision)

	var (
		store  receiptchain.Store
		repo   service.SubmissionRepository
		checks []health.Check
	)
	switch cfg.Ledger.Backend {
	case "memory":
		log.Warn("ledger backend is in-memory; receipts are lost on restart")
		store = receiptchain.NewMemoryStore(codes)
		repo = repository.NewMemoryRepository()
	default:
		db, err := pgxpool.New(ctx, cfg.Database.URL)
		if err != nil {
			return fmt.Errorf("connect to postgres: %w", err)
		}
		defer db.Close()
		if err := db.Ping(ctx); err != nil {
			return fmt.Errorf("ping postgres: %w", err)
		}
		log.Info("connected to postgres")
		store = receiptchain.NewPostgresStore(db, codes, log)
		repo = repository.NewSubmissionRepository(db)
		checks = append(checks, health.Check{Name: "postgres", Probe: db.Ping})
	}

	if cfg.Ledger.VerifyOnStart {
		auditLedger(ctx, store, log)
	}

	// ── Notifications ────────────────────────────────────────────────────────
	publisher, notifyCheck, closeNotify, err := buildPublisher(cfg.Notify, log)
	if err != nil {
		return err
	}
	defer closeNotify()
	if notifyCheck != nil {
		checks = append(checks, *notifyCheck)
	}

	// ── Health ───────────────────────────────────────────────────────────────
	checks = append(checks,
		health.LedgerTail(store),
		health.LedgerIntegrity(receiptchain.NewVerifier(store)),
	)
	checker := health.New(checks, health.Config{CheckInterval: cfg.Ledger.CheckInterval}, log)
	checker.SetMetricsRecord(handler.RecordHealthCheck)
	checker.SetEventDispatch(func(ctx context.Context, eventType string, payload map[string]string) {
		if err := publisher.Publish(ctx, notify.NewEvent(eventType, payload)); err != nil {
			log.Warn("publish health event", zap.String("type", eventType), zap.Error(err))
		}
	})
	go checker.Run(ctx)

	svc := service.NewReceiptService(store, repo, publisher, log)

	// ── Anchoring ────────────────────────────────────────────────────────────
	if cfg.Anchor.URL != "" {
		anchors := anchor.NewService(store, anchor.NewHTTPAnchorer(cfg.Anchor.URL, cfg.Anchor.Secret), cfg.Anchor.Interval, log)
		anchors.SetMetricsRecorder(handler.RecordAnchor)
		svc.SetAnchorSource(anchors)
		go anchors.Run(ctx)
		log.Info("ledger anchoring enabled",
			zap.String("url", cfg.Anchor.URL),
			zap.Duration("interval", cfg.Anchor.Interval),
		)
	}

	// ── Operator auth ────────────────────────────────────────────────────────
	var tokens *auth.TokenIssuer
	if cfg.Auth.JWTSecret != "" {
		tokens, err = auth.NewTokenIssuer(cfg.Auth.JWTSecret, "civicpulse-receipts", cfg.Auth.TokenTTL)
		if err != nil {
			return fmt.Errorf("token issuer: %w", err)
		}
	} else {
		log.Warn("auth.jwt_secret not set; operator routes are unauthenticated")
	}

	// ── HTTP ─────────────────────────────────────────────────────────────────
	router := newRouter(ctx, cfg, log)
	handler.NewHealthHandler(checker, log).Register(router)
	router.GET("/metrics", handler.MetricsHandler())

	v1 := router.Group("/api/v1")
	handler.NewReceiptHandler(svc, tokens, log).Register(v1)
	if tokens != nil {
		handler.NewAuthHandler(auth.NewPasswordLogin(cfg.Auth.OperatorPasswordHash, tokens), tokens, log).Register(v1)
	}

	httpSrv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.App.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 2)
	go func() {
		log.Info("receiptd HTTP listening", zap.Int("port", cfg.App.Port))
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("HTTP listen: %w", err)
		}
	}()

	var grpcSrv *healthServer
	if cfg.App.GRPCPort > 0 {
		grpcSrv, err = startHealthServer(cfg.App.GRPCPort, checker, log, errCh)
		if err != nil {
			return err
		}
	}

	// ── Graceful shutdown ────────────────────────────────────────────────────
	select {
	case <-ctx.Done():
	case err := <-errCh:
		return err
	}
	log.Info("shutting down receiptd...")

	shutCtx, shutCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutCancel()
	if err := httpSrv.Shutdown(shutCtx); err != nil {
		log.Error("HTTP shutdown error", zap.Error(err))
	}
	if grpcSrv != nil {
		grpcSrv.Stop()
	}

	log.Info("receiptd stopped")
	return nil
}

// newRouter builds the gin engine with the shared middleware stack.
func newRouter(ctx context.Context, cfg *config.Config, log *zap.Logger) *gin.Engine {
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())

	router.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.App.CORSOrigins,
		AllowMethods:     []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", "Accept"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: !handler.ContainsWildcard(cfg.App.CORSOrigins),
		MaxAge:           12 * time.Hour,
	}))
	router.Use(handler.SecurityHeaders())
	router.Use(handler.BodyLimit(cfg.App.BodyLimitBytes))

	if rps := cfg.App.RateLimitRPS; rps > 0 {
		router.Use(handler.NewRateLimiter(ctx, rps, rps*2).Middleware())
	}
	router.Use(handler.PrometheusMiddleware())
	router.Use(handler.RequestLogger(log))
	return router
}

// auditLedger walks the whole chain once at startup. A broken chain is
// logged loudly but does not stop the server: receipts already issued must
// stay verifiable so citizens can see the failure.
func auditLedger(ctx context.Context, store receiptchain.Store, log *zap.Logger) {
	start := time.Now()
	report, err := receiptchain.NewVerifier(store).Audit(ctx, receiptchain.Tail{Hash: receiptchain.GenesisHash})
	if err != nil {
		log.Error("ledger audit could not run", zap.Error(err))
		return
	}
	if !report.Intact {
		log.Error("ledger integrity check FAILED",
			zap.Int64p("broken_at", report.BrokenAt),
			zap.String("failure", string(report.Failure)),
			zap.Int64("checked", report.Checked),
		)
		return
	}
	handler.SetLedgerLength(report.Length)
	log.Info("ledger verified",
		zap.Int64("length", report.Length),
		zap.String("head", report.HeadHash),
		zap.Duration("took", time.Since(start)),
	)
}

// buildPublisher selects the receipt notification backend. The returned
// check, when non-nil, probes the backend's connection; the returned func
// releases its resources.
func buildPublisher(cfg config.NotifyConfig, log *zap.Logger) (notify.Publisher, *health.Check, func(), error) {
	switch cfg.Backend {
	case "webhook":
		p := notify.NewWebhookPublisher(cfg.WebhookURLs, cfg.WebhookSecret, log)
		p.SetMetricsRecorder(handler.RecordNotification)
		log.Info("receipt notifications: webhook", zap.Int("targets", len(cfg.WebhookURLs)))
		return p, nil, p.Wait, nil
	case "nats":
		nc, err := notify.ConnectNATS(cfg.NATSURL, log)
		if err != nil {
			return nil, nil, nil, err
		}
		p := notify.NewNATSPublisher(nc, cfg.NATSSubject, log)
		p.SetMetricsRecorder(handler.RecordNotification)
		log.Info("receipt notifications: nats", zap.String("subject", cfg.NATSSubject))
		check := &health.Check{Name: "nats", Probe: func(context.Context) error {
			if !nc.IsConnected() {
				return fmt.Errorf("nats status %s", nc.Status())
			}
			return nil
		}}
		return p, check, func() {
			if err := nc.Drain(); err != nil {
				log.Warn("nats drain", zap.Error(err))
			}
		}, nil
	default:
		return notify.NewNoopPublisher(log), nil, func() {}, nil
	}
}

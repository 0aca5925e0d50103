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

	"github.com/gin-gonic/gin"

	"gatepass/internal/activity"
	"gatepass/internal/analytics"
	"gatepass/internal/attendance"
	"gatepass/internal/auth"
	"gatepass/internal/config"
	"gatepass/internal/faceclient"
	"gatepass/internal/handler"
	"gatepass/internal/httpmiddleware"
	"gatepass/internal/lock"
	"gatepass/internal/logging"
	"gatepass/internal/meals"
	"gatepass/internal/media"
	"gatepass/internal/notify"
	"gatepass/internal/operators"
	"gatepass/internal/queue"
	"gatepass/internal/store"
	"gatepass/internal/visitors"
	"gatepass/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	log := logging.New(os.Stdout, cfg.LogFormat, cfg.LogLevel)

	// Set Gin mode based on environment
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	if err := run(cfg, log); err != nil {
		log.Error(context.Background(), "api server failed", "err", err)
		os.Exit(1)
	}
}

func run(cfg config.App, log logging.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := store.NewDB(ctx, cfg.DatabaseURL, cfg.DBMaxConns)
	if err != nil {
		return fmt.Errorf("db connect: %w", err)
	}
	defer db.Close()
	if cfg.RunMigrations {
		if err := store.Migrate(ctx, db.Client); err != nil {
			return err
		}
	}

	redisClient := store.NewRedis(store.RedisOptions{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
	defer redisClient.Close()

	loc := cfg.Location()
	clock := attendance.NewClock(loc)

	var locker lock.Locker = lock.NewLocal()
	if cfg.LockBackend == "redis" {
		locker = lock.NewRedis(redisClient.Client, "gatepass:lock:", 30*time.Second)
	}

	var q queue.Queue
	if cfg.QueueBackend == "memory" {
		q = queue.NewInMemory(64)
	} else {
		q = queue.NewRedisQueue(redisClient.Client, cfg.QueueKey, log)
	}

	var feed activity.Sink = activity.NewLog(log)
	var feedReader handler.ActivityFeed
	if cfg.ActivityBackend == "redis" {
		stream := activity.NewRedisStream(redisClient.Client, cfg.ActivityStream, 10000, log)
		feed, feedReader = stream, stream
	}

	// A shared lock backend means several API instances; revocations must be
	// shared too.
	var revoked auth.Revocations = auth.NewMemoryRevocations()
	if cfg.LockBackend == "redis" {
		revoked = auth.NewRedisRevocations(redisClient.Client, "gatepass:revoked:")
	}

	var limiter httpmiddleware.Limiter = httpmiddleware.NewTokenBucket(cfg.RateLimitPerMin, cfg.RateLimitPerMin)
	if cfg.RateLimitBackend == "redis" {
		limiter = httpmiddleware.NewRedisWindow(redisClient.Client, "gatepass:ratelimit:", cfg.RateLimitPerMin)
	}

	blobs, err := media.Open(ctx, cfg.MediaConfig())
	if err != nil {
		return err
	}

	// Without a face service captures are stored but never auto-verified.
	var face handler.FaceVerifier
	if !cfg.FaceSkip {
		fc := faceclient.New(cfg.FaceServiceURL, false)
		if err := fc.Health(ctx); err != nil {
			log.Warn(ctx, "face service not available", "url", cfg.FaceServiceURL, "err", err)
		}
		face = fc
	}

	visitorRepo := visitors.NewRepository(db.Client)
	if mq, ok := q.(*queue.InMemory); ok {
		// No other process can read this queue, so drain it here.
		msgs, err := mq.Consume(ctx)
		if err != nil {
			return err
		}
		var mail notify.Sender = notify.NewLogOnly(log)
		if cfg.SMTPHost != "" {
			mail = notify.NewSMTP(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUsername, cfg.SMTPPassword, cfg.SMTPFrom)
		}
		jobs := worker.New(visitorRepo, blobs, mail, faceclient.New(cfg.FaceServiceURL, cfg.FaceSkip), log.With("component", "worker"))
		go jobs.Run(ctx, msgs)
	}

	visitorSvc := visitors.NewService(visitorRepo, blobs, q,
		visitors.WithLogger(log), visitors.WithActivity(feed))
	records := attendance.NewRepository(db.Client, loc)
	ledger := attendance.NewService(records, visitorSvc,
		attendance.WithClock(clock), attendance.WithLocker(locker), attendance.WithLogger(log))
	visitorSvc.UseLedger(ledger)

	signer := auth.NewSigner(cfg.JWTSigningKey, cfg.JWTIssuer, cfg.AccessTTL, cfg.RefreshTTL)
	operatorSvc := operators.NewService(operators.NewRepository(db.Client), signer, revoked, log)
	if err := operatorSvc.EnsureAdmin(ctx, cfg.AdminUsername, cfg.AdminPassword, cfg.AdminEmail); err != nil {
		return fmt.Errorf("bootstrap admin: %w", err)
	}

	h := handler.New(handler.Deps{
		Ledger:    ledger,
		Visitors:  visitorSvc,
		Operators: operatorSvc,
		Analytics: analytics.New(records,
			analytics.WithClock(clock), analytics.WithLogger(log), analytics.WithDirectory(visitorSvc)),
		Meals:    meals.NewService(meals.NewRepository(db.Client, loc), visitorSvc, locker, clock, log),
		Media:    blobs,
		Face:     face,
		Activity: feed,
		Feed:     feedReader,
		Signer:   signer,
		Revoked:  revoked,
		Location: loc,
		Log:      log,
		Checks: map[string]func(context.Context) error{
			"db":    healthCheck(db.Healthy),
			"redis": healthCheck(redisClient.Healthy),
		},
	})
	r := handler.NewEngine(handler.EngineConfig{
		CORSOrigins: cfg.CORSOrigins,
		Limiter:     limiter,
		AccessLog:   !cfg.IsProduction(),
	}, h)

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info(ctx, "starting server", "port", cfg.HTTPPort, "timezone", loc.String())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	log.Info(context.Background(), "shutting down server")

	// Give outstanding requests 10 seconds to complete
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("forced shutdown: %w", err)
	}
	log.Info(context.Background(), "server exited")
	return nil
}

func healthCheck(healthy func(context.Context) bool) func(context.Context) error {
	return func(ctx context.Context) error {
		if !healthy(ctx) {
			return errors.New("unhealthy")
		}
		return nil
	}
}

package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"gatepass/internal/config"
	"gatepass/internal/faceclient"
	"gatepass/internal/logging"
	"gatepass/internal/media"
	"gatepass/internal/notify"
	"gatepass/internal/queue"
	"gatepass/internal/store"
	"gatepass/internal/visitors"
	"gatepass/internal/worker"
)

// Worker consumes queue messages: renders visitor cards, enrolls faces and
// sends welcome emails.
func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	log := logging.New(os.Stdout, cfg.LogFormat, cfg.LogLevel).With("component", "worker")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error(ctx, "worker failed", "err", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.App, log logging.Logger) error {
	if cfg.QueueBackend == "memory" {
		return errors.New("the in-memory queue only works inside the API process; set QUEUE_BACKEND=redis")
	}

	db, err := store.NewDB(ctx, cfg.DatabaseURL, cfg.DBMaxConns)
	if err != nil {
		return fmt.Errorf("db connect: %w", err)
	}
	defer db.Close()

	redisClient := store.NewRedis(store.RedisOptions{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
	defer redisClient.Close()
	q := queue.NewRedisQueue(redisClient.Client, cfg.QueueKey, log)

	blobs, err := media.Open(ctx, cfg.MediaConfig())
	if err != nil {
		return err
	}

	var mail notify.Sender = notify.NewLogOnly(log)
	if cfg.SMTPHost != "" {
		mail = notify.NewSMTP(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUsername, cfg.SMTPPassword, cfg.SMTPFrom)
	}

	face := faceclient.New(cfg.FaceServiceURL, cfg.FaceSkip)
	// Check face service health on startup
	if err := face.Health(ctx); err != nil {
		log.Warn(ctx, "face service not available, enrollment is attempted per job", "err", err)
	}

	p := worker.New(visitors.NewRepository(db.Client), blobs, mail, face, log)

	messages, err := q.Consume(ctx)
	if err != nil {
		return fmt.Errorf("queue consume init: %w", err)
	}
	log.Info(ctx, "worker started, waiting for messages", "queue", cfg.QueueKey)
	p.Run(ctx, messages)
	log.Info(context.Background(), "worker stopped")
	return nil
}

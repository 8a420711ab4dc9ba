package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/ariefcatur/go-food-orders/internal/config"
	kafkax "github.com/ariefcatur/go-food-orders/internal/kafka"
	"github.com/ariefcatur/go-food-orders/internal/logging"
	"github.com/ariefcatur/go-food-orders/internal/notify"
	"github.com/ariefcatur/go-food-orders/internal/orders"
	"github.com/ariefcatur/go-food-orders/internal/postgres"
	"github.com/ariefcatur/go-food-orders/internal/redisx"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()
	service := cfg.ServiceName + "-notifier"

	log := logging.MustNewLogger(service, cfg.Env)
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// DB, for usernames
	db, err := postgres.Connect(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Fatal("db connect", zap.Error(err))
	}
	defer db.Close()

	// Redis, for dedup
	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()

	h := &notify.MailHandler{
		Users:   &orders.Repo{DB: db},
		Dedup:   redisx.Dedup{RDB: rdb, Service: service},
		Mailer:  notify.LogMailer{Log: log.Named("mail")},
		To:      cfg.AdminEmail,
		BaseURL: cfg.BaseURL,
		Log:     log,
	}

	cons := kafkax.NewConsumer(cfg.KafkaBrokers, cfg.NotifierGroup, orders.TopicOrderCreated, cfg.NotifierWorkers, log)
	log.Info("notifier consumer started",
		zap.String("group", cfg.NotifierGroup),
		zap.String("topic", orders.TopicOrderCreated),
		zap.Int("workers", cfg.NotifierWorkers),
	)
	if err := cons.Start(ctx, h.HandleOrderCreated); err != nil && ctx.Err() == nil {
		log.Error("consumer exit", zap.Error(err))
	}
	log.Info("notifier stopped")
}

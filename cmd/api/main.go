package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/ariefcatur/go-food-orders/internal/analytics"
	"github.com/ariefcatur/go-food-orders/internal/checkout"
	"github.com/ariefcatur/go-food-orders/internal/config"
	"github.com/ariefcatur/go-food-orders/internal/httpx"
	kafkax "github.com/ariefcatur/go-food-orders/internal/kafka"
	"github.com/ariefcatur/go-food-orders/internal/logging"
	"github.com/ariefcatur/go-food-orders/internal/metrics"
	"github.com/ariefcatur/go-food-orders/internal/notify"
	"github.com/ariefcatur/go-food-orders/internal/orders"
	"github.com/ariefcatur/go-food-orders/internal/payment"
	"github.com/ariefcatur/go-food-orders/internal/postgres"
	"github.com/ariefcatur/go-food-orders/internal/redisx"
	"github.com/ariefcatur/go-food-orders/internal/stock"
	validatorv10 "github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()

	log := logging.MustNewLogger(cfg.ServiceName, cfg.Env)
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// DB
	db, err := postgres.Connect(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Fatal("db connect", zap.Error(err))
	}
	defer db.Close()
	if err := postgres.Migrate(ctx, db); err != nil {
		log.Fatal("db migrate", zap.Error(err))
	}

	// Redis
	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()

	m := metrics.New(prometheus.DefaultRegisterer)

	// Kafka producer; runs on its own context so buffered messages
	// survive the signal and are flushed by Close.
	prod := kafkax.NewProducer(cfg.KafkaBrokers, orders.TopicOrderCreated, 1024, log)
	prod.Start(context.WithoutCancel(ctx))

	agg := &analytics.Aggregator{Store: redisx.Counters{RDB: rdb}, Log: log.Named("analytics")}
	dispatcher := notify.NewDispatcher(cfg.NotifyBuffer, log.Named("notify"), m,
		notify.CounterSink{Counter: agg},
		notify.KafkaSink{Producer: prod, Service: cfg.ServiceName},
	)

	repo := &orders.Repo{DB: db}
	oracle := payment.NewStripeOracle(cfg.PaymentBaseURL, cfg.PaymentAPIKey, cfg.PaymentTimeout, log.Named("payment"))
	svc := checkout.NewService(repo, oracle, dispatcher, checkout.RetryConfig{
		MaxAttempts:    cfg.CheckoutMaxAttempts,
		InitialBackoff: cfg.CheckoutInitialBackoff,
		Multiplier:     cfg.CheckoutBackoffFactor,
	}, log.Named("checkout"), m)

	router := httpx.NewRouter(log, m)
	(&httpx.OrdersHandler{Checkout: svc, Orders: repo, Validate: validatorv10.New(), Log: log}).Register(router)
	(&httpx.FoodsHandler{
		Foods:     stock.PGStore{Q: db},
		Views:     agg,
		Analytics: analytics.PGSink{DB: db},
		Log:       log,
	}).Register(router)

	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: router, ReadHeaderTimeout: 5 * time.Second}

	g, gctx := errgroup.WithContext(ctx)
	// Checkouts still draining in srv.Shutdown publish into the dispatcher,
	// so it is closed after Shutdown returns rather than on gctx.
	g.Go(func() error {
		return dispatcher.Run(context.WithoutCancel(gctx))
	})
	g.Go(func() error {
		log.Info("HTTP listening", zap.String("addr", cfg.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down...")
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		err := srv.Shutdown(sctx)
		dispatcher.Close()
		return err
	})

	if err := g.Wait(); err != nil {
		log.Error("api exited", zap.Error(err))
	}
	prod.Close()      // dispatcher has drained, nothing publishes any more
	prod.WaitClosed() // flush
}

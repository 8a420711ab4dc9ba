package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/ariefcatur/go-food-orders/internal/analytics"
	"github.com/ariefcatur/go-food-orders/internal/config"
	"github.com/ariefcatur/go-food-orders/internal/lock"
	"github.com/ariefcatur/go-food-orders/internal/logging"
	"github.com/ariefcatur/go-food-orders/internal/metrics"
	"github.com/ariefcatur/go-food-orders/internal/postgres"
	"github.com/ariefcatur/go-food-orders/internal/redisx"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()

	log := logging.MustNewLogger(cfg.ServiceName+"-reconciler", cfg.Env)
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
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	srv := &http.Server{Addr: cfg.MetricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	locker := &lock.PGLocker{DB: db, Holder: cfg.InstanceID + "-" + uuid.NewString()[:8]}
	if le, ok, err := locker.Get(ctx, cfg.LockName); err != nil {
		log.Warn("read reconciliation lease", zap.Error(err))
	} else if ok && !le.Expired(time.Now()) {
		log.Info("reconciliation lease currently held",
			zap.String("holder", le.LockedBy), zap.Time("until", le.LockedUntil))
	}

	r := &analytics.Reconciler{
		Store:  redisx.Counters{RDB: rdb},
		Sink:   analytics.PGSink{DB: db},
		Locker: locker,
		Cfg: analytics.ReconcilerConfig{
			Interval: cfg.ReconcileInterval,
			LockName: cfg.LockName,
			AtLeast:  cfg.LockAtLeast,
			AtMost:   cfg.LockAtMost,
		},
		Log:     log.Named("reconciler").With(zap.String("holder", locker.Holder)),
		Metrics: m,
	}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return r.Run(gctx) })
	g.Go(func() error {
		log.Info("metrics listening", zap.String("addr", cfg.MetricsAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(sctx)
	})
	if err := g.Wait(); err != nil {
		log.Error("reconciler exited", zap.Error(err))
	}
	log.Info("reconciler stopped")
}

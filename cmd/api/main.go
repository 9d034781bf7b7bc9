package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ariefcatur/go-store-orders/internal/config"
	"github.com/ariefcatur/go-store-orders/internal/httpx"
	kafkax "github.com/ariefcatur/go-store-orders/internal/kafka"
	"github.com/ariefcatur/go-store-orders/internal/logger"
	"github.com/ariefcatur/go-store-orders/internal/metrics"
	"github.com/ariefcatur/go-store-orders/internal/migrations"
	"github.com/ariefcatur/go-store-orders/internal/notify"
	"github.com/ariefcatur/go-store-orders/internal/orders"
	"github.com/ariefcatur/go-store-orders/internal/postgres"
	"github.com/ariefcatur/go-store-orders/internal/redisx"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		logger.New(logger.Options{ServiceName: "order-api"}).Error(context.Background(), "load config", err)
		os.Exit(1)
	}
	logg := logger.New(logger.Options{
		ServiceName: cfg.App.ServiceName,
		Level:       cfg.App.LogLevel,
		Format:      cfg.App.LogFormat,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithField(ctx, "env", cfg.App.Env)

	if err := run(ctx, cfg, logg); err != nil {
		logg.Error(ctx, "order api stopped with error", err)
		os.Exit(1)
	}
	logg.Info(ctx, "order api stopped")
}

func run(ctx context.Context, cfg *config.Config, logg *logger.Logger) error {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	db, err := postgres.Connect(ctx, cfg.Postgres)
	if err != nil {
		return err
	}
	defer db.Close()

	if cfg.App.AutoMigrate {
		logg.Info(ctx, "running migrations")
		if err := migrations.Run(ctx, db, "up"); err != nil {
			return err
		}
	}

	rdb, err := redisx.New(ctx, cfg.Redis)
	if err != nil {
		return err
	}
	defer rdb.Close()

	// the producer outlives ctx so events of in-flight requests still flush
	prodCtx, stopProducer := context.WithCancel(context.WithoutCancel(ctx))
	defer stopProducer()
	prod := kafkax.NewProducer(cfg.Kafka.BrokerList(), cfg.Kafka.InboxBuffer, logg, m)
	prod.Start(prodCtx)

	notifier := notify.NewRedisNotifier(rdb)
	queue := notify.NewQueue()
	worker := &notify.Worker{
		Source:     queue,
		Notifier:   notifier,
		Log:        logg,
		Metrics:    m,
		FaultPause: cfg.Notify.WorkerFaultPause,
	}

	svc, err := orders.NewService(orders.Deps{
		Store:      &orders.Repo{DB: db},
		Notifier:   notifier,
		Queue:      queue,
		Events:     kafkax.NewEventEmitter(prod, cfg.App.ServiceName, logg),
		Cache:      redisx.NewStatusCache(rdb),
		Log:        logg,
		Metrics:    m,
		AllowGuest: cfg.Checkout.AllowGuest,
	})
	if err != nil {
		return err
	}

	streamsDone := make(chan struct{})
	srv := &http.Server{
		Addr: cfg.App.HTTPAddr,
		Handler: httpx.NewRouter(httpx.RouterDeps{
			Log:           logg,
			Auth:          cfg.Auth,
			Orders:        svc,
			Notifications: svc,
			Stream:        notifier,
			StreamDone:    streamsDone,
			Gatherer:      reg,
		}),
		ReadHeaderTimeout: 5 * time.Second,
	}
	// Shutdown waits for idle connections; open SSE streams never go idle
	srv.RegisterOnShutdown(func() { close(streamsDone) })

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logg.Info(gctx, "HTTP listening at "+cfg.App.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		// drains queued retries after shutdown closes the queue
		return worker.Run(context.WithoutCancel(gctx))
	})
	g.Go(func() error {
		<-gctx.Done()
		logg.Info(ctx, "shutting down")
		sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		err := srv.Shutdown(sctx)
		// no request can enqueue or emit past this point
		queue.Close()
		prod.Close()
		prod.WaitClosed()
		return err
	})
	return g.Wait()
}

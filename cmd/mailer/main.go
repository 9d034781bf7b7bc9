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
	"github.com/ariefcatur/go-store-orders/internal/mailer"
	"github.com/ariefcatur/go-store-orders/internal/metrics"
	"github.com/ariefcatur/go-store-orders/internal/notify"
	"github.com/ariefcatur/go-store-orders/internal/orders"
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
		logger.New(logger.Options{ServiceName: "mailer"}).Error(context.Background(), "load config", err)
		os.Exit(1)
	}
	logg := logger.New(logger.Options{
		ServiceName: cfg.App.ServiceName + "-mailer",
		Level:       cfg.App.LogLevel,
		Format:      cfg.App.LogFormat,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithField(ctx, "env", cfg.App.Env)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	rdb, err := redisx.New(ctx, cfg.Redis)
	if err != nil {
		logg.Error(ctx, "resource not working: redis", err)
		os.Exit(1)
	}
	defer rdb.Close()

	var sender notify.EmailSender
	if cfg.SMTP.Enabled() {
		s, err := notify.NewSMTPSender(cfg.SMTP)
		if err != nil {
			logg.Error(ctx, "smtp sender", err)
			os.Exit(1)
		}
		sender = s
	} else {
		logg.Warn(ctx, "SMTP not configured, emails will be skipped", nil)
	}

	queue := notify.NewQueue()
	worker := &notify.Worker{
		Source:     queue,
		Email:      sender,
		Log:        logg,
		Metrics:    m,
		FaultPause: cfg.Notify.WorkerFaultPause,
	}
	svc := &mailer.Service{
		Dedup: redisx.NewDedup(rdb, "mailer"),
		Queue: queue,
		Log:   logg,
	}
	cons := kafkax.NewConsumer(cfg.Kafka.BrokerList(), cfg.Mailer.Group, orders.TopicOrderStatusChanged, cfg.Mailer.Workers, logg)

	srv := &http.Server{
		Addr:              cfg.App.HTTPAddr,
		Handler:           httpx.NewRouter(httpx.RouterDeps{Log: logg, Gatherer: reg}),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logg.Info(logg.WithFields(gctx, map[string]any{
			"group": cfg.Mailer.Group, "topic": orders.TopicOrderStatusChanged, "workers": cfg.Mailer.Workers,
		}), "mailer consumer started")
		err := cons.Start(gctx, svc.HandleStatusChanged)
		// no more producers; let the worker drain what is queued
		queue.Close()
		return err
	})
	g.Go(func() error {
		// the worker exits once the queue is closed and drained
		return worker.Run(context.WithoutCancel(gctx))
	})
	g.Go(func() error {
		logg.Info(gctx, "mailer http listening at "+cfg.App.HTTPAddr)
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
		logg.Error(ctx, "mailer stopped with error", err)
		os.Exit(1)
	}
	logg.Info(ctx, "mailer stopped")
}

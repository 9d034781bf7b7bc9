package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/ariefcatur/go-store-orders/internal/config"
	"github.com/ariefcatur/go-store-orders/internal/logger"
	"github.com/ariefcatur/go-store-orders/internal/migrations"
	"github.com/ariefcatur/go-store-orders/internal/postgres"
	"github.com/joho/godotenv"
)

func main() {
	_ = godotenv.Load()

	cmd := flag.String("cmd", "up", "migration command: up|down|status|version|redo")
	flag.Parse()

	logg := logger.New(logger.Options{ServiceName: "migrate"})
	ctx := context.Background()

	cfg, err := config.Load()
	requireResource(ctx, logg, "config", err)

	logg = logger.New(logger.Options{
		ServiceName: "migrate",
		Level:       cfg.App.LogLevel,
		Format:      cfg.App.LogFormat,
	})
	ctx = logg.WithFields(ctx, map[string]any{"env": cfg.App.Env, "cmd": *cmd})

	pool, err := postgres.Connect(ctx, cfg.Postgres)
	requireResource(ctx, logg, "database", err)
	defer pool.Close()

	if err := migrations.Run(ctx, pool, *cmd, flag.Args()...); err != nil {
		logg.Error(ctx, "migration failed", err)
		pool.Close()
		os.Exit(1)
	}
	logg.Info(ctx, "migration finished")
}

func requireResource(ctx context.Context, logg *logger.Logger, resource string, err error) {
	if err == nil {
		return
	}
	logg.Error(ctx, fmt.Sprintf("resource not working: %s", resource), err)
	os.Exit(1)
}

package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"tableside/internal/catalog"
	"tableside/internal/config"
	"tableside/internal/logger"
	"tableside/internal/notify"
	"tableside/internal/orders"
	"tableside/internal/rowstore"
)

func main() {
	cfgPath := flag.String("config", "", "path to YAML config (default: auto-discover)")
	mode := flag.String("mode", "feed", "migrate | feed")
	restaurantID := flag.String("restaurant", "", "feed: restaurant id to watch")
	flag.Parse()

	lg := logger.New("tableside")
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	path := *cfgPath
	if path == "" {
		var err error
		if path, err = config.Find(); err != nil {
			fmt.Fprintln(os.Stderr, "no config file found; pass --config")
			os.Exit(2)
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		lg.Error("config_load_failed", err, map[string]any{"path": path})
		os.Exit(1)
	}

	store, err := rowstore.ConnectPostgres(ctx, rowstore.PostgresConfig{
		Host:     cfg.Database.Host,
		Port:     cfg.Database.Port,
		User:     cfg.Database.User,
		Password: cfg.Database.Password,
		Database: cfg.Database.Database,
	})
	if err != nil {
		lg.Error("db_connect_failed", err, nil)
		os.Exit(1)
	}
	defer store.Close()
	lg.Info("db_connected", map[string]any{"host": cfg.Database.Host, "database": cfg.Database.Database})

	switch *mode {
	case "migrate":
		repo := catalog.NewRepository(store, lg, cfg.Catalog.HydrateConcurrency)
		if err := repo.Migrate(ctx); err != nil {
			lg.Error("migrate_failed", err, nil)
			os.Exit(1)
		}
		lg.Info("migrate_done", nil)

	case "feed":
		if *restaurantID == "" {
			fmt.Fprintln(os.Stderr, "--restaurant is required for feed mode")
			os.Exit(2)
		}
		bus, err := notify.DialAMQP(notify.AMQPConfig{
			Host:     cfg.RabbitMQ.Host,
			Port:     cfg.RabbitMQ.Port,
			User:     cfg.RabbitMQ.User,
			Password: cfg.RabbitMQ.Password,
			VHost:    cfg.RabbitMQ.VHost,
		})
		if err != nil {
			lg.Error("rabbitmq_connect_failed", err, nil)
			os.Exit(1)
		}
		defer bus.Close()
		lg.Info("rabbitmq_connected", map[string]any{"host": cfg.RabbitMQ.Host})

		mgr := orders.NewManager(store, bus, lg)
		sub, err := mgr.Subscribe(ctx, *restaurantID, func(ev notify.Event) {
			lg.Info("order_changed", map[string]any{
				"kind":   ev.Kind,
				"row_id": ev.RowID,
				"at":     ev.At,
			})
		})
		if err != nil {
			lg.Error("subscribe_failed", err, nil)
			os.Exit(1)
		}
		defer sub.Cancel()

		lg.Info("feed_started", map[string]any{"restaurant_id": *restaurantID})
		<-ctx.Done()
		lg.Info("shutdown", nil)

	default:
		fmt.Fprintln(os.Stderr, "--mode must be migrate or feed")
		os.Exit(2)
	}
}

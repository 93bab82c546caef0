// cmd/bridge/main.go
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/tamzrod/modbus-bridge/internal/bus"
	"github.com/tamzrod/modbus-bridge/internal/config"
	"github.com/tamzrod/modbus-bridge/internal/logging"
	"github.com/tamzrod/modbus-bridge/internal/poller"
	"github.com/tamzrod/modbus-bridge/internal/store"
	"github.com/tamzrod/modbus-bridge/internal/writer"
)

func main() {
	if len(os.Args) < 2 {
		log.Fatal("usage: bridge <config.yaml>")
	}

	cfgPath := os.Args[1]

	// --------------------
	// Load + validate config
	// --------------------

	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}
	if err := config.Validate(cfg); err != nil {
		log.Fatalf("config validation failed: %v", err)
	}
	config.Normalize(cfg)

	logger, err := logging.New(cfg.Bridge.Log.Level)
	if err != nil {
		log.Fatalf("logger init failed: %v", err)
	}
	defer logger.Sync()

	// --------------------
	// External collaborators
	// --------------------

	st, err := store.NewPostgres(cfg.Bridge.Database.DSN)
	if err != nil {
		logger.Fatal("store init failed", zap.Error(err))
	}
	defer st.Close()

	pub, err := bus.NewRedisPublisher(bus.RedisConfig{
		Addr:      cfg.Bridge.Bus.Addr,
		Password:  cfg.Bridge.Bus.Password,
		DB:        cfg.Bridge.Bus.DB,
		KeyPrefix: cfg.Bridge.Bus.KeyPrefix,
	})
	if err != nil {
		logger.Fatal("bus init failed", zap.Error(err))
	}
	defer pub.Close()

	// --------------------
	// Pipelines + scheduler
	// --------------------

	timeout := time.Duration(cfg.Bridge.Poll.TimeoutMs) * time.Millisecond
	maxAge := time.Duration(cfg.Bridge.Poll.CatalogMaxAgeSec) * time.Second

	catalog := store.NewItemCatalog(st)

	w := writer.New(st, catalog, nil, writer.Config{
		Timeout:       timeout,
		CatalogMaxAge: maxAge,
	}, logger)

	r := poller.NewReader(st, pub, nil, timeout, logger)

	sched := poller.NewScheduler(st, catalog, w, r, pub, poller.SchedulerConfig{
		PollInterval:  time.Duration(cfg.Bridge.Poll.IntervalMs) * time.Millisecond,
		RetryInterval: time.Duration(cfg.Bridge.Poll.RetryIntervalMs) * time.Millisecond,
		CatalogMaxAge: maxAge,
	}, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("bridge started",
		zap.Int("poll_interval_ms", cfg.Bridge.Poll.IntervalMs))

	sched.Run(ctx)
}

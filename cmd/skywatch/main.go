package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rewired-gh/skywatch/internal/alert"
	"github.com/rewired-gh/skywatch/internal/broadcast"
	"github.com/rewired-gh/skywatch/internal/config"
	"github.com/rewired-gh/skywatch/internal/fetch"
	"github.com/rewired-gh/skywatch/internal/lock"
	"github.com/rewired-gh/skywatch/internal/logger"
	"github.com/rewired-gh/skywatch/internal/monitor"
	"github.com/rewired-gh/skywatch/internal/opensky"
	"github.com/rewired-gh/skywatch/internal/snapshot"
	"github.com/rewired-gh/skywatch/internal/storage"
	"github.com/rewired-gh/skywatch/internal/telegram"
	"github.com/rewired-gh/skywatch/internal/watchlist"
)

var configPath = flag.String("config", "configs/config.yaml", "Path to configuration file")

func main() {
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	logger.Init(cfg.Logging.Level, cfg.Logging.Format)
	logger.Info("Configuration loaded from %s", *configPath)

	exitCode := 0
	defer func() { os.Exit(exitCode) }()

	store, err := storage.New(cfg.Storage.MaxRuns, cfg.Storage.DBPath)
	if err != nil {
		logger.Fatal("Failed to initialize storage: %v", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Error("Failed to close storage: %v", err)
		}
	}()

	policy, err := alert.NewPolicy(cfg.Alerts.Policy, store, cfg.Alerts.Cooldown)
	if err != nil {
		logger.Fatal("Failed to initialize alert policy: %v", err)
	}

	locker, closeLocker := newLocker(cfg)
	defer closeLocker()

	deps := monitor.Deps{
		Watchlist: newWatchlistClient(cfg),
		States:    newOpenSkyClient(cfg),
		Store:     snapshot.New(cfg.Snapshot.Path),
		Locker:    locker,
		Decider:   alert.NewDecider(cfg.Alerts.HighPriority, policy),
		Runs:      store,
	}

	if cfg.NATS.URL != "" {
		publisher := broadcast.NewPublisher(cfg.NATS.Subject)
		if err := publisher.Connect(cfg.NATS.URL, cfg.NATS.Timeout); err != nil {
			logger.Warn("Snapshot broadcast disabled: %v", err)
		} else {
			defer publisher.Close()
			deps.Publisher = publisher
		}
	}

	var telegramClient *telegram.Client
	if cfg.TelegramReady() {
		telegramClient, err = telegram.NewClient(cfg.Telegram.BotToken, cfg.Telegram.ChatID,
			cfg.Telegram.MaxRetries, cfg.Telegram.RetryDelayBase, cfg.Telegram.Timeout)
		if err != nil {
			logger.Warn("Telegram alerts disabled: %v", err)
			telegramClient = nil
		} else {
			logger.Info("Telegram client initialized successfully")
			deps.Notifier = telegramClient
		}
	} else {
		logger.Debug("Telegram notifications disabled")
	}

	mon := monitor.New(deps, monitor.Config{
		MaxTracePoints:      cfg.Scan.MaxTracePoints,
		PreserveOnEmptyFeed: cfg.Snapshot.PreserveOnEmptyFeed,
		CycleTimeout:        cfg.Scan.CycleTimeout,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		logger.Info("Shutdown signal received, cleaning up...")
		cancel()
	}()

	if cfg.Scan.PollInterval == 0 {
		if err := runOnce(ctx, mon, store, cfg); err != nil {
			logger.Error("Scan cycle failed: %v", err)
			exitCode = 1
		}
		return
	}

	if telegramClient != nil {
		telegramClient.SetStatusFunc(mon.Status)
		telegramClient.ListenForCommands(ctx)
	}

	if cfg.Metrics.Addr != "" {
		go serveMetrics(cfg.Metrics.Addr)
	}

	logger.Info("Starting scan service (interval: %v, trace points: %d, policy: %s)",
		cfg.Scan.PollInterval, cfg.Scan.MaxTracePoints, cfg.Alerts.Policy)

	ticker := time.NewTicker(cfg.Scan.PollInterval)
	defer ticker.Stop()

	consecutiveFailures := 0

	handleCycleResult := func(err error) {
		if err != nil {
			consecutiveFailures++
			logger.Error("Scan cycle failed: %v", err)
			if consecutiveFailures == 1 && telegramClient != nil {
				if sendErr := telegramClient.SendError(ctx, err); sendErr != nil {
					logger.Warn("Failed to send error notification to Telegram: %v", sendErr)
				}
			}
			return
		}
		if consecutiveFailures > 0 && telegramClient != nil {
			if sendErr := telegramClient.SendRecovery(ctx, consecutiveFailures); sendErr != nil {
				logger.Warn("Failed to send recovery notification to Telegram: %v", sendErr)
			}
		}
		consecutiveFailures = 0
	}

	logger.Debug("Running initial scan cycle")
	handleCycleResult(runOnce(ctx, mon, store, cfg))

	for {
		select {
		case <-ctx.Done():
			logger.Info("Service stopped")
			return

		case <-ticker.C:
			logger.Debug("Starting scheduled scan cycle")
			handleCycleResult(runOnce(ctx, mon, store, cfg))
		}
	}
}

// runOnce runs a cycle and prunes expired alert records. A cycle skipped
// because another one holds the lock is not a failure.
func runOnce(ctx context.Context, mon *monitor.Monitor, store *storage.Storage, cfg *config.Config) error {
	_, err := mon.RunCycle(ctx)
	if monitor.IsLocked(err) {
		logger.Warn("Skipping scan cycle: %v", err)
		return nil
	}
	if err != nil {
		return err
	}

	if cfg.Alerts.Cooldown > 0 {
		n, err := store.PruneAlertRecords(time.Now().Add(-cfg.Alerts.Cooldown))
		if err != nil {
			logger.Warn("Failed to prune alert records: %v", err)
		} else if n > 0 {
			logger.Debug("Pruned %d expired alert records", n)
		}
	}
	return nil
}

func serveMetrics(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	logger.Info("Metrics listening on %s", addr)
	if err := http.ListenAndServe(addr, mux); err != nil {
		logger.Error("Metrics endpoint stopped: %v", err)
	}
}

func newWatchlistClient(cfg *config.Config) *watchlist.Client {
	httpClient := fetch.NewClient(fetch.ClientConfig{
		Timeout:        cfg.Watchlist.Timeout,
		MaxRetries:     cfg.OpenSky.MaxRetries,
		RetryDelayBase: cfg.OpenSky.RetryDelayBase,
		UserAgent:      cfg.OpenSky.UserAgent,
	})
	schema := watchlist.Schema{
		IdentifierColumn: cfg.Watchlist.IdentifierColumn,
		OperatorColumn:   cfg.Watchlist.OperatorColumn,
		CategoryHint:     cfg.Watchlist.CategoryHint,
		CategoryDefault:  cfg.Watchlist.CategoryDefault,
	}
	return watchlist.NewClient(cfg.Watchlist.URL, schema, cfg.Watchlist.Categories, httpClient)
}

func newOpenSkyClient(cfg *config.Config) *opensky.Client {
	httpClient := fetch.NewClient(fetch.ClientConfig{
		Timeout:        cfg.OpenSky.Timeout,
		MaxRetries:     cfg.OpenSky.MaxRetries,
		RetryDelayBase: cfg.OpenSky.RetryDelayBase,
		UserAgent:      cfg.OpenSky.UserAgent,
	})
	client := opensky.NewClient(cfg.OpenSky.URL, opensky.Credentials{
		Username: cfg.OpenSky.Username,
		Password: cfg.OpenSky.Password,
	}, httpClient)
	if !client.Authenticated() {
		logger.Info("OpenSky credentials not set, using anonymous access")
	}
	return client
}

func newLocker(cfg *config.Config) (lock.Locker, func()) {
	switch cfg.Lock.Backend {
	case "redis":
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Lock.RedisAddr,
			Password: cfg.Lock.RedisPassword,
			DB:       cfg.Lock.RedisDB,
		})
		logger.Info("Using redis cycle lock %s at %s", cfg.Lock.RedisKey, cfg.Lock.RedisAddr)
		return lock.NewRedisLocker(rdb, cfg.Lock.RedisKey, cfg.Lock.TTL), func() {
			if err := rdb.Close(); err != nil {
				logger.Warn("Failed to close redis client: %v", err)
			}
		}
	case "none":
		return lock.Nop{}, func() {}
	default:
		logger.Debug("Using file cycle lock %s", cfg.Lock.Path)
		return lock.NewFileLocker(cfg.Lock.Path), func() {}
	}
}

func init() {
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "Usage: %s [-config path]\n\n", os.Args[0])
		fmt.Fprintln(flag.CommandLine.Output(), "Matches live aircraft against the watchlist and writes the snapshot.")
		flag.PrintDefaults()
	}
}

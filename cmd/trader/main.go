package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"auto_trader/internal/alert"
	"auto_trader/internal/bank"
	"auto_trader/internal/bootstrap"
	"auto_trader/internal/browser"
	"auto_trader/internal/cyclelog"
	"auto_trader/internal/infrastructure/health"
	"auto_trader/internal/infrastructure/metrics"
	"auto_trader/internal/inventory"
	"auto_trader/internal/market"
	"auto_trader/internal/pacer"
	"auto_trader/internal/probe"
	"auto_trader/internal/session"
	"auto_trader/internal/store"
	"auto_trader/internal/strategy"
	"auto_trader/internal/trading/orchestrator"
	"auto_trader/pkg/telemetry"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	dotenvPath := flag.String("dotenv", ".env", "path to an optional .env file")
	flag.Parse()

	if err := run(*configPath, *dotenvPath); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath, dotenvPath string) error {
	app, err := bootstrap.NewApp(configPath, dotenvPath)
	if err != nil {
		return err
	}
	cfg := app.Cfg
	logger := app.Logger

	tel, err := telemetry.Setup("auto_trader")
	if err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tel.Shutdown(shutdownCtx); err != nil {
			logger.Warn("telemetry shutdown", "error", err)
		}
	}()

	dataStore, err := store.NewSQLiteStore(cfg.App.DatabasePath, logger)
	if err != nil {
		return fmt.Errorf("store: %w", err)
	}
	defer dataStore.Close()

	connectCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	browserSession, err := browser.Connect(connectCtx, browser.Options{
		DevToolsURL: cfg.Browser.DevToolsURL,
		NavTimeout:  time.Duration(cfg.Browser.NavTimeoutSeconds) * time.Second,
		CallTimeout: time.Duration(cfg.Browser.CallTimeoutSeconds) * time.Second,
	}, logger)
	if err != nil {
		return fmt.Errorf("browser: %w", err)
	}
	defer browserSession.Close()

	pace := pacer.New(cfg.Pacing, browserSession, logger)
	nav := browser.NewNavigator(browserSession, pace, cfg.URLs, browser.DefaultSelectors(), logger)

	guard := session.NewGuard(nav, pace, dataStore, cfg.Credentials, cfg.Risk, logger)
	resourceProbe := probe.New(nav, logger)
	bankModule := bank.New(nav, pace, logger)
	inventoryModule := inventory.New(nav, pace, logger)
	marketModule := market.New(nav, pace, cfg.App.DryRun, logger)

	buying := strategy.NewBuying(cfg.Market, cfg.Buying, logger)
	selling := strategy.NewSelling(cfg.Selling, logger)
	cycles := cyclelog.New(dataStore, logger)

	notifier := alert.NewManager(logger)
	if cfg.Alert.Enabled {
		notifier.AddChannel(alert.NewSlackChannel(cfg.Alert.SlackWebhookURL))
		notifier.AddChannel(alert.NewTelegramChannel(cfg.Alert.TelegramBotToken, cfg.Alert.TelegramChatID))
	}

	healthMonitor := health.NewHealthManager(logger)
	healthMonitor.Register("browser", func() error {
		checkCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_, err := browserSession.CurrentURL(checkCtx)
		return err
	})
	healthMonitor.Register("store", func() error {
		checkCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_, err := dataStore.LoadSession(checkCtx)
		return err
	})

	if cfg.Telemetry.EnableMetrics {
		metricsServer := metrics.NewServer(cfg.Telemetry.MetricsPort, healthMonitor, logger)
		metricsServer.Start()
		defer func() {
			stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = metricsServer.Stop(stopCtx)
		}()
	}

	orch := orchestrator.New(orchestrator.Deps{
		Config:    cfg,
		Guard:     guard,
		Probe:     resourceProbe,
		Bank:      bankModule,
		Inventory: inventoryModule,
		Market:    marketModule,
		Buying:    buying,
		Selling:   selling,
		Cycles:    cycles,
		Store:     dataStore,
		Pacer:     pace,
		Notifier:  notifier,
		Logger:    logger,
	})

	err = app.Run(orch)

	stats := orch.Stats()
	logger.Info("session summary",
		"cycles_succeeded", stats.CyclesSucceeded,
		"cycles_failed", stats.CyclesFailed,
		"purchases", stats.Purchases,
		"sales", stats.Sales,
		"login_failures", stats.LoginFailures)
	return err
}

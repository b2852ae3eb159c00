package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cutline/cutline-agent/internal/api"
	"github.com/cutline/cutline-agent/internal/autosave"
	"github.com/cutline/cutline-agent/internal/cache"
	"github.com/cutline/cutline-agent/internal/config"
	"github.com/cutline/cutline-agent/internal/db"
	"github.com/cutline/cutline-agent/internal/logging"
	"github.com/cutline/cutline-agent/internal/netmon"
	"github.com/cutline/cutline-agent/internal/remote"
	"github.com/cutline/cutline-agent/internal/ui"
)

var Version = "0.1.0"

func main() {
	if err := run(); err != nil {
		log.Fatalf("fatal error: %v", err)
	}
}

func run() error {
	startTime := time.Now()

	cfg, err := config.New()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := os.MkdirAll(cfg.DataDir(), 0755); err != nil {
		return fmt.Errorf("failed to create data dir: %w", err)
	}

	logger := logging.NewLogger(cfg.LogLevel())
	logger.Info("starting cutline agent", "version", Version, "data_dir", cfg.DataDir())

	database, err := db.New(cfg.DBPath(), logger)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer database.Close()

	store := cache.NewStore(database.Conn())

	deviceID, err := ensureDeviceID(store)
	if err != nil {
		return fmt.Errorf("failed to ensure device ID: %w", err)
	}

	authToken, err := ensureAuthToken(store)
	if err != nil {
		return fmt.Errorf("failed to ensure auth token: %w", err)
	}

	fmt.Println()
	fmt.Println("╔═══════════════════════════════════════════════════════════╗")
	fmt.Println("║                    CUTLINE AGENT v0.1.0                   ║")
	fmt.Println("╠═══════════════════════════════════════════════════════════╣")
	fmt.Printf("║  API URL:    http://127.0.0.1:%-27d ║\n", cfg.Port())
	fmt.Printf("║  Auth Token: %-45s ║\n", authToken)
	fmt.Printf("║  Device ID:  %-45s ║\n", deviceID[:16]+"...")
	fmt.Println("╚═══════════════════════════════════════════════════════════╝")
	fmt.Println()

	var projectSvc remote.ProjectService
	var healthChecker remote.HealthChecker
	if cfg.RemoteEnabled() && cfg.RemoteBaseURL() != "" && cfg.RemoteToken() != "" {
		httpClient := remote.NewHTTPClient(cfg.RemoteBaseURL(), cfg.RemoteToken(), cfg.RemoteOrgSlug(), logger)
		httpClient.SetDeviceID(deviceID)
		projectSvc = httpClient
		healthChecker = httpClient
		logger.Info("remote store enabled", "base_url", cfg.RemoteBaseURL(), "org_slug", cfg.RemoteOrgSlug())
	} else {
		stub := remote.NewStubService(logger)
		projectSvc = stub
		healthChecker = stub
		logger.Info("remote store disabled, using in-memory stub")
	}

	engine := autosave.NewEngine(projectSvc, store, logger, autosave.Options{
		Debounce:         cfg.SaveDebounce(),
		FlushInterval:    cfg.SaveFlushInterval(),
		MaxRetries:       cfg.SaveMaxRetries(),
		RetryBaseDelay:   cfg.SaveRetryBaseDelay(),
		MaxPendingOps:    cfg.SaveMaxPendingOps(),
		VersionTolerance: cfg.SaveVersionTolerance(),
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	monitor := netmon.New(healthChecker, engine, logger, netmon.Options{})
	go monitor.Run(ctx)

	apiServer := api.NewServer(api.ServerConfig{
		Port:      cfg.Port(),
		Engine:    engine,
		Store:     store,
		Logger:    logger,
		StartTime: startTime,
		DeviceID:  deviceID,
	})

	go func() {
		if err := apiServer.Start(); err != nil {
			logger.Error("HTTP server error", "error", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	quitCh := make(chan struct{})

	go func() {
		select {
		case sig := <-sigCh:
			logger.Info("received shutdown signal", "signal", sig)
			close(quitCh)
		case <-quitCh:
		}
	}()

	if cfg.Headless() {
		logger.Info("running in headless mode (no system tray)")
	} else {
		tray := ui.NewTray(ui.TrayConfig{
			Engine: engine,
			Logger: logger,
			OnQuit: func() {
				close(quitCh)
			},
		})
		go tray.Run()
	}

	<-quitCh

	logger.Info("initiating graceful shutdown")
	cancel()

	// Flush pending edits before the process dies; losing queued saves on
	// quit defeats the point of an auto-save agent.
	flushCtx, flushCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer flushCancel()
	for _, st := range engine.Statuses() {
		if st.PendingOperations == 0 {
			continue
		}
		if err := engine.ForceSave(flushCtx, st.ProjectID); err != nil {
			logger.Error("final flush failed", "project_id", st.ProjectID, "error", err)
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("failed to shutdown HTTP server", "error", err)
	}

	logger.Info("shutdown complete")
	return nil
}

func ensureDeviceID(store *cache.Store) (string, error) {
	ctx := context.Background()

	existing, err := store.GetConfig(ctx, "device_id")
	if err == nil && existing != "" {
		return existing, nil
	}

	idBytes := make([]byte, 16)
	if _, err := rand.Read(idBytes); err != nil {
		return "", err
	}
	deviceID := hex.EncodeToString(idBytes)

	if err := store.SetConfig(ctx, "device_id", deviceID); err != nil {
		return "", err
	}

	return deviceID, nil
}

func ensureAuthToken(store *cache.Store) (string, error) {
	ctx := context.Background()

	existing, err := store.GetConfig(ctx, "auth_token")
	if err == nil && existing != "" {
		return existing, nil
	}

	tokenBytes := make([]byte, 32)
	if _, err := rand.Read(tokenBytes); err != nil {
		return "", err
	}
	token := hex.EncodeToString(tokenBytes)

	if err := store.SetConfig(ctx, "auth_token", token); err != nil {
		return "", err
	}

	return token, nil
}

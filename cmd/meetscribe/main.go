// Package main provides the meeting capture agent entry point
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/meetscribe/meetscribe/internal/api"
	"github.com/meetscribe/meetscribe/internal/archive"
	"github.com/meetscribe/meetscribe/internal/browser"
	"github.com/meetscribe/meetscribe/internal/capture"
	"github.com/meetscribe/meetscribe/internal/config"
	"github.com/meetscribe/meetscribe/internal/events"
	"github.com/meetscribe/meetscribe/internal/logging"
	"github.com/meetscribe/meetscribe/internal/platform"
)

const defaultConfigPath = "config.yaml"

func main() {
	configPath := os.Getenv("MEETSCRIBE_CONFIG")
	if configPath == "" {
		configPath = defaultConfigPath
	}

	cfg, err := loadOrSeedConfig(configPath)
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	// Initialize structured logging with the in-memory ring buffer that
	// backs the /api/logs endpoint
	logBuffer := logging.Setup(os.Stdout, cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Buffer)

	slog.Info("Starting MeetScribe capture agent",
		"version", cfg.Version,
		"listen_addr", cfg.Server.ListenAddr,
		"recordings_root", cfg.Capture.RecordingsRoot,
	)

	// Application context
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Watch for config edits; live sessions keep the settings they
	// started with, new joins pick up the reloaded values
	if err := cfg.Watch(); err != nil {
		slog.Warn("Config watch unavailable", "error", err)
	}
	cfg.OnChange(func(c *config.Config) {
		slog.Info("Configuration reloaded", "path", c.GetPath())
	})

	// Open the completed-captures archive
	store, err := archive.Open(cfg.Archive.DatabasePath)
	if err != nil {
		slog.Error("Failed to open archive database", "error", err)
		os.Exit(1)
	}
	defer store.Close()

	// Embedded NATS event bus
	var bus *events.Bus
	var busNotifier *events.Notifier
	if cfg.Events.Enabled {
		busOpts := events.DefaultOptions()
		busOpts.Port = cfg.Events.Port
		bus, err = events.NewBus(busOpts, slog.Default())
		if err != nil {
			slog.Error("Failed to start event bus", "error", err)
			os.Exit(1)
		}
		defer bus.Stop()
		busNotifier = events.NewNotifier(bus)
	}

	// WebSocket hub for live session state and captions
	hub := api.NewHub()
	go hub.Run()

	notifiers := []capture.Notifier{api.NewHubNotifier(hub)}
	if busNotifier != nil {
		notifiers = append(notifiers, busNotifier)
	}

	// Each capture session gets its own Chrome instance
	browserCfg := cfg.Browser
	newDriver := func(ctx context.Context) (browser.Driver, error) {
		return browser.NewChrome(ctx, browser.Options{
			ExecPath:  browserCfg.ChromePath,
			Headless:  browserCfg.Headless,
			Width:     browserCfg.Width,
			Height:    browserCfg.Height,
			UserAgent: browserCfg.UserAgent,
		})
	}

	engine, err := capture.New(capture.Config{
		RecordingsRoot: cfg.Capture.RecordingsRoot,
		BotName:        cfg.Capture.DefaultBotName,
		AudioDevice:    cfg.Capture.AudioDevice,
		FFmpegPath:     cfg.Capture.FFmpegPath,
		DebugJoin:      cfg.Capture.DebugJoin,
	}, newDriver, multiNotifier(notifiers))
	if err != nil {
		slog.Error("Failed to create capture engine", "error", err)
		os.Exit(1)
	}
	defer engine.Shutdown()

	svc := &captureService{engine: engine, store: store}

	deps := api.Deps{
		Captures:      api.NewCaptureHandler(svc),
		Archive:       api.NewArchiveHandler(store),
		Hub:           hub,
		LogBuffer:     logBuffer,
		ArchiveHealth: store.Health,
	}
	if bus != nil {
		deps.BusHealth = bus.HealthCheck
	}
	router := api.NewRouter(deps)

	// No WriteTimeout: a join response is only written once admission
	// polling and pipeline startup finish, and a leave once encoding
	// does. Slow routes are bounded per-route by the router instead.
	server := &http.Server{
		Addr:        cfg.Server.ListenAddr,
		Handler:     router,
		ReadTimeout: 15 * time.Second,
		IdleTimeout: 60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		slog.Info("Server starting", "address", cfg.Server.ListenAddr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("Server error", "error", err)
			cancel()
		}
	}()

	// Graceful shutdown. Persisted session records survive so orphaned
	// captures can be recovered on the next leave request.
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-sigChan:
	case <-ctx.Done():
	}

	slog.Info("Shutting down...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server shutdown error", "error", err)
	}

	slog.Info("Server stopped")
}

// loadOrSeedConfig loads the config file, seeding it with defaults on
// first run
func loadOrSeedConfig(path string) (*config.Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		cfg := config.Default()
		cfg.SetPath(path)
		if err := cfg.Save(); err != nil {
			return nil, err
		}
		return cfg, nil
	}
	return config.Load(path)
}

// multiNotifier fans capture events out to every configured sink
type multiNotifier []capture.Notifier

func (m multiNotifier) SessionState(meetingID, sessionID string, p platform.Platform, state capture.SessionState) {
	for _, n := range m {
		n.SessionState(meetingID, sessionID, p, state)
	}
}

func (m multiNotifier) Caption(meetingID, sessionID string, seg capture.CaptionSegment) {
	for _, n := range m {
		n.Caption(meetingID, sessionID, seg)
	}
}

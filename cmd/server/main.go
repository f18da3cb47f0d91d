// Package main provides the server entry point.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kingpin/v2"
	"github.com/cockroachdb/errors"
	"github.com/joho/godotenv"
	zlog "github.com/rs/zerolog/log"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/osa030/playdeck/internal/api/httpapi"
	"github.com/osa030/playdeck/internal/app/mediasession"
	"github.com/osa030/playdeck/internal/app/notification"
	"github.com/osa030/playdeck/internal/app/playback"
	"github.com/osa030/playdeck/internal/app/session"
	"github.com/osa030/playdeck/internal/infra/catalog"
	"github.com/osa030/playdeck/internal/infra/config"
	"github.com/osa030/playdeck/internal/infra/engine"
	"github.com/osa030/playdeck/internal/infra/logger"
	"github.com/osa030/playdeck/internal/infra/store"
)

var (
	app        = kingpin.New("playdeck-server", "playdeck playback server")
	configPath = app.Flag("config", "Path to config file").Default("config/server.yaml").String()
	verbose    = app.Flag("verbose", "Enable verbose (DEBUG) logging").Short('v').Bool()
	logfile    = app.Flag("logfile", "Path to log file (default: stdout)").String()

	checkConfigCmd = app.Command("check-config", "Validate the config file and exit")
)

func init() {
	app.Command("start", "Start the server (default)").Default()
}

func main() {
	// Load .env file if it exists (errors are ignored)
	_ = godotenv.Load()

	command := kingpin.MustParse(app.Parse(os.Args[1:]))

	loggerConfig := logger.Config{
		Output: "stdout",
		Level:  "info",
	}
	if *verbose {
		loggerConfig.Level = "debug"
	}
	if *logfile != "" {
		loggerConfig.Output = *logfile
	}
	closeLog, err := logger.Init(loggerConfig)
	if err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}
	defer closeLog()

	zlog.Info().Msgf("Loading config from %s", *configPath)
	cfg, err := config.Load(*configPath)
	if err != nil {
		zlog.Fatal().Msgf("Failed to load config: %v", err)
	}

	if command == checkConfigCmd.FullCommand() {
		fmt.Printf("Config OK: store=%s catalog=%q media_session=%t\n", cfg.Store.Type, cfg.Catalog.BaseURL, cfg.MediaSession.Enabled)
		return
	}

	if err := run(cfg); err != nil {
		zlog.Error().Msgf("Server error: %v", err)
		os.Exit(1)
	}
}

// run executes the main server logic. Using a separate function ensures
// defer statements are executed even when returning with an error.
func run(cfg *config.Config) error {
	ctx := context.Background()

	st, err := store.NewFromConfig(ctx, cfg.Store)
	if err != nil {
		return errors.Wrap(err, "failed to open store")
	}
	defer func() {
		if err := st.Close(); err != nil {
			zlog.Warn().Err(err).Msg("Failed to close store")
		}
	}()

	var (
		cat      *catalog.Client
		resolver playback.TrackResolver
		lookup   session.Catalog
	)
	if cfg.Catalog.BaseURL != "" {
		cat, err = catalog.New(catalog.Config{
			BaseURL:    cfg.Catalog.BaseURL,
			Timeout:    cfg.CatalogTimeout(),
			CacheSize:  cfg.Catalog.CacheSize,
			MaxRetries: cfg.Catalog.MaxRetries,
		})
		if err != nil {
			return errors.Wrap(err, "failed to create catalog client")
		}
		resolver = cat
		lookup = cat
	} else {
		zlog.Info().Msg("Catalog not configured, play requests must carry full tracks")
	}

	eng := engine.NewStream(engine.Config{
		TickInterval: cfg.TickInterval(),
		ProbeTimeout: cfg.ProbeTimeout(),
	})

	pb := playback.NewController(ctx, playback.Config{
		DefaultVolume:         cfg.Playback.DefaultVolume,
		RecentCapacity:        cfg.Playback.RecentCapacity,
		AutoAdvance:           cfg.Playback.AutoAdvance,
		PlaybackFailedMessage: cfg.Messages.PlaybackFailed,
	}, eng, st, resolver)

	var media mediasession.Session
	if cfg.MediaSession.Enabled {
		media = mediasession.NewRemote()
		zlog.Info().Msg("Media session enabled")
	}

	sessionMgr := session.NewManager(pb, notification.NewManager(), media, lookup)

	api := httpapi.NewServer(sessionMgr, httpapi.Config{
		Token:              cfg.Server.Token,
		NotPlayableMessage: cfg.Messages.NotPlayable,
	})

	serverAddr := cfg.Server.Addr
	// Create server with h2c (HTTP/2 cleartext) support
	server := &http.Server{
		Addr:    serverAddr,
		Handler: h2c.NewHandler(api.Handler(), &http2.Server{}),
	}

	serverErrCh := make(chan error, 1)
	serverStartedCh := make(chan struct{})

	if err := sessionMgr.Start(); err != nil {
		return errors.Wrap(err, "failed to start session")
	}

	go func() {
		zlog.Info().Msgf("Starting server: addr=%s", serverAddr)
		close(serverStartedCh)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrCh <- err
		}
	}()

	<-serverStartedCh
	// Give the server a moment to fully initialize
	time.Sleep(100 * time.Millisecond)

	executeHooks(cfg.Server.Hooks.OnStarted, "on_started")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-sigCh:
		zlog.Info().Msg("Received shutdown signal...")
	case <-sessionMgr.Done():
		zlog.Info().Msg("Session ended, shutting down...")
	case err := <-serverErrCh:
		sessionMgr.Close()
		return errors.Wrap(err, "server error")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Close session manager first to terminate event streams
	sessionMgr.Close()

	if err := server.Shutdown(shutdownCtx); err != nil {
		zlog.Error().Msgf("Failed to shutdown server: %v", err)
	}

	zlog.Info().Msg("Server stopped")

	executeHooks(cfg.Server.Hooks.OnStopped, "on_stopped")

	return nil
}

// executeHooks runs a list of shell commands.
func executeHooks(hooks []string, stage string) {
	if len(hooks) == 0 {
		return
	}

	zlog.Info().Msgf("Executing %s hooks (%d commands)", stage, len(hooks))

	for _, hook := range hooks {
		zlog.Info().Msgf("Executing hook: %s", hook)
		// Use sh -c to allow shell features like redirection or pipes
		cmd := exec.Command("sh", "-c", hook)
		cmd.Stdout = os.Stdout
		cmd.Stderr = os.Stderr

		if err := cmd.Run(); err != nil {
			zlog.Error().Err(err).Msgf("Failed to execute hook: %s", hook)
		}
	}
}

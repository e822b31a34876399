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

	"connectrpc.com/connect"
	"github.com/alecthomas/kingpin/v2"
	"github.com/cockroachdb/errors"
	"github.com/joho/godotenv"
	zlog "github.com/rs/zerolog/log"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	apiconnect "github.com/osa030/tubebox/internal/api/connect"
	"github.com/osa030/tubebox/internal/app/catalog"
	"github.com/osa030/tubebox/internal/app/notification"
	"github.com/osa030/tubebox/internal/app/playback"
	"github.com/osa030/tubebox/internal/app/player"
	"github.com/osa030/tubebox/internal/app/session"
	"github.com/osa030/tubebox/internal/infra/audio"
	"github.com/osa030/tubebox/internal/infra/config"
	"github.com/osa030/tubebox/internal/infra/logger"
	"github.com/osa030/tubebox/internal/infra/store"
)

var (
	app        = kingpin.New("tubebox-server", "tubebox music player server")
	configPath = app.Flag("config", "Path to config file").Default("config/server.yaml").String()
	verbose    = app.Flag("verbose", "Enable verbose (DEBUG) logging").Short('v').Bool()
	logfile    = app.Flag("logfile", "Path to log file (default: stdout)").String()

	checkCmd = app.Command("check", "Validate config and catalog credentials, then exit")
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
		loggerConfig.Output = "file"
		loggerConfig.File = *logfile
	}
	logCloser, err := logger.Init(loggerConfig)
	if err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}
	defer logCloser.Close()

	zlog.Info().Msgf("Loading config from %s", *configPath)
	cfg, err := config.Load(*configPath)
	if err != nil {
		zlog.Fatal().Msgf("Failed to load config: %v", err)
	}

	if command == checkCmd.FullCommand() {
		if err := check(cfg); err != nil {
			zlog.Error().Msgf("Check failed: %v", err)
			os.Exit(1)
		}
		zlog.Info().Msg("Config OK")
		return
	}

	// Run server (defer ensures shutdown hook is called)
	if err := run(cfg); err != nil {
		zlog.Error().Msgf("Server error: %v", err)
		os.Exit(1)
	}
}

// check builds the catalog provider and performs one lightweight search.
func check(cfg *config.Config) error {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	provider, err := catalog.NewProviderFromConfig(ctx, cfg.Catalog)
	if err != nil {
		return err
	}
	if _, err := provider.Search(ctx, "test"); err != nil {
		return errors.Wrapf(err, "%s catalog search failed", provider.Name())
	}
	return nil
}

// run executes the main server logic. Using a separate function ensures
// defer statements are executed even when returning with an error.
func run(cfg *config.Config) error {
	ctx := context.Background()

	st, err := store.Open(cfg.Store.Path, store.Options{
		RecentlyPlayedLimit: cfg.Library.RecentlyPlayedLimit,
		SearchHistoryLimit:  cfg.Library.SearchHistoryLimit,
	})
	if err != nil {
		return errors.Wrap(err, "failed to open store")
	}
	defer st.Close()

	provider, err := catalog.NewProviderFromConfig(ctx, cfg.Catalog)
	if err != nil {
		return errors.Wrap(err, "failed to create catalog provider")
	}
	zlog.Info().Msgf("Catalog: %s (%s)", cfg.Catalog.DisplayName, provider.Name())

	backend, err := audio.NewBackend(cfg.Audio, nil)
	if err != nil {
		return errors.Wrap(err, "failed to create audio backend")
	}
	adapter := player.NewAdapter(backend, player.Config{
		FallbackStartDelay: cfg.Playback.FallbackStart(),
	})
	defer adapter.Close()

	controller := playback.NewController(adapter, st, playback.Config{
		DefaultVolume: cfg.Playback.DefaultVolume,
		PollInterval:  cfg.Playback.PollInterval(),
		SeekDebounce:  cfg.Playback.SeekDebounce(),
	})

	sessionMgr := session.NewManager(session.Config{
		ShufflePool:    cfg.Playback.ShufflePool,
		PageFetchDelay: cfg.Playback.PageFetchDelay(),
	}, provider, controller, notification.NewManager(), st)
	if sim, ok := backend.(*audio.Simulated); ok {
		sim.SetDurationLookup(sessionMgr.KnownDuration)
	}

	path, handler := apiconnect.NewPlayerServiceHandler(
		apiconnect.NewPlayerService(sessionMgr),
		connect.WithInterceptors(apiconnect.NewControlAuthInterceptor(cfg.Control.Token)),
	)
	mux := http.NewServeMux()
	mux.Handle(path, handler)

	// Create server with h2c (HTTP/2 cleartext) support
	server := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           h2c.NewHandler(mux, &http2.Server{}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	if err := sessionMgr.Start(ctx); err != nil {
		return errors.Wrap(err, "failed to start session")
	}

	serverErrCh := make(chan error, 1)
	serverStartedCh := make(chan struct{})
	go func() {
		zlog.Info().Msgf("Starting server: addr=%s", cfg.Server.Addr)
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

	var runErr error
	select {
	case <-sigCh:
		zlog.Info().Msg("Received shutdown signal...")
	case <-sessionMgr.Done():
		zlog.Info().Msg("Session ended, shutting down...")
	case err := <-serverErrCh:
		runErr = errors.Wrap(err, "server error")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Close session manager first to terminate active streams
	sessionMgr.Close()

	if err := server.Shutdown(shutdownCtx); err != nil {
		zlog.Error().Msgf("Failed to shutdown server: %v", err)
	}

	zlog.Info().Msg("Server stopped")

	executeHooks(cfg.Server.Hooks.OnStopped, "on_stopped")

	return runErr
}

// executeHooks runs a list of shell commands.
func executeHooks(hooks []string, stage string) {
	if len(hooks) == 0 {
		return
	}

	log := logger.Component("hooks")
	log.Info().Msgf("Executing %s hooks (%d commands)", stage, len(hooks))

	for _, hook := range hooks {
		log.Info().Msgf("Executing hook: %s", hook)
		// Use sh -c to allow shell features like redirection or pipes
		cmd := exec.Command("sh", "-c", hook)
		cmd.Stdout = os.Stdout
		cmd.Stderr = os.Stderr

		if err := cmd.Run(); err != nil {
			log.Error().Err(err).Msgf("Failed to execute hook: %s", hook)
		}
	}
}

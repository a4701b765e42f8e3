// Package main provides the server entry point.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"connectrpc.com/connect"
	"github.com/alecthomas/kingpin/v2"
	"github.com/joho/godotenv"
	zlog "github.com/rs/zerolog/log"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	apiconnect "github.com/osa030/jukebot/internal/api/connect"
	"github.com/osa030/jukebot/internal/app/command"
	"github.com/osa030/jukebot/internal/app/filter"
	"github.com/osa030/jukebot/internal/app/notification"
	"github.com/osa030/jukebot/internal/app/playback"
	"github.com/osa030/jukebot/internal/infra/config"
	"github.com/osa030/jukebot/internal/infra/logger"
	"github.com/osa030/jukebot/internal/infra/spotify"
)

var (
	app        = kingpin.New("jukebot-server", "jukebot chat music bot server")
	configPath = app.Flag("config", "Path to config file").Default("config/server.yaml").String()
	verbose    = app.Flag("verbose", "Enable verbose (DEBUG) logging").Short('v').Bool()
	logfile    = app.Flag("logfile", "Path to log file (default: stdout)").String()

	// list-filters command
	listFiltersCmd = app.Command("list-filters", "List available filters and exit")
)

func init() {
	// start command (default) - no need to store the command
	app.Command("start", "Start the server (default)").Default()
}

func main() {
	// Load .env file if it exists (errors are ignored)
	_ = godotenv.Load()

	// Parse command
	cmd := kingpin.MustParse(app.Parse(os.Args[1:]))

	// Handle list-filters command
	if cmd == listFiltersCmd.FullCommand() {
		printFilters()
		return
	}

	// Bootstrap logger until the config is loaded
	loggerConfig := logger.Config{
		Output: "stdout",
		Level:  "info",
	}
	if *verbose {
		loggerConfig.Level = "debug"
	}
	if err := logger.Init(loggerConfig); err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}

	// Load config
	zlog.Info().Msgf("Loading config from %s", *configPath)
	cfg, err := config.Load(*configPath)
	if err != nil {
		zlog.Fatal().Msgf("Failed to load config: %v", err)
	}

	// Switch to the rotated log file once rotation settings are known
	if *logfile != "" {
		loggerConfig.Output = *logfile
		loggerConfig.File = *logfile
		loggerConfig.MaxSizeMB = cfg.Log.MaxSizeMB
		loggerConfig.MaxBackups = cfg.Log.MaxBackups
		loggerConfig.MaxAgeDays = cfg.Log.MaxAgeDays
		loggerConfig.Compress = cfg.Log.Compress
		if err := logger.Init(loggerConfig); err != nil {
			zlog.Fatal().Msgf("Failed to open log file: %v", err)
		}
	}
	defer func() { _ = logger.Close() }()

	// Run server (defer ensures shutdown hook is called)
	if err := run(cfg); err != nil {
		zlog.Error().Msgf("Server error: %v", err)
		_ = logger.Close()
		os.Exit(1)
	}
}

// run executes the main server logic. Using a separate function ensures
// defer statements are executed even when returning with an error.
func run(cfg *config.Config) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Create Spotify client
	spotifyClient, err := spotify.New(ctx, spotify.Config{
		ClientID:     cfg.Spotify.ClientID,
		ClientSecret: cfg.Spotify.ClientSecret,
		RefreshToken: cfg.Spotify.RefreshToken,
		Market:       cfg.Spotify.Market,
		DeviceID:     cfg.Spotify.DeviceID,
	})
	if err != nil {
		return fmt.Errorf("failed to create Spotify client: %w", err)
	}

	// Create playback controller
	controller := playback.NewController(spotifyClient, playback.Config{
		ProviderTimeout:     cfg.ProviderTimeout(),
		MirrorProviderQueue: cfg.Playback.MirrorProviderQueue,
		EventBuffer:         cfg.Playback.EventBuffer,
	})
	defer controller.Close()

	// Build filter chain
	chain, err := buildFilterChain(cfg, spotifyClient.Market(), controller)
	if err != nil {
		return fmt.Errorf("invalid filter config: %w", err)
	}

	// Create command dispatcher
	dispatcher := command.NewDispatcher(controller, spotifyClient, chain, cfg, command.Config{
		SearchLimit:   cfg.Spotify.SearchLimit,
		SearchTimeout: cfg.ProviderTimeout(),
		IsReference:   spotify.IsTrackReference,
	})

	// Forward controller events to subscribers
	notifications := notification.NewManager(cfg.NotificationTimeout())
	go notifications.Forward(ctx, controller.Events())

	// Create RPC service
	commandService := apiconnect.NewCommandService(dispatcher, controller, notifications)

	// Create HTTP mux
	mux := http.NewServeMux()

	// Register service behind the bot token interceptor
	if cfg.Server.Token == "" {
		zlog.Warn().Msg("server.token is empty, accepting commands from any client")
	}
	path, handler := apiconnect.NewCommandServiceHandler(
		commandService,
		connect.WithInterceptors(apiconnect.NewBotTokenInterceptor(cfg.Server.Token)),
	)
	mux.Handle(path, handler)

	// Create server with h2c (HTTP/2 cleartext) support
	serverAddr := cfg.Server.Addr
	server := &http.Server{
		Addr:    serverAddr,
		Handler: h2c.NewHandler(mux, &http2.Server{}),
	}

	// Channel to capture server startup errors
	serverErrCh := make(chan error, 1)
	serverStartedCh := make(chan struct{})

	// Start server
	go func() {
		zlog.Info().Msgf("Starting server: addr=%s market=%s", serverAddr, spotifyClient.Market())
		// Signal that we're about to start listening
		close(serverStartedCh)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrCh <- err
		}
	}()

	// Wait for server to start listening
	<-serverStartedCh
	// Give the server a moment to fully initialize
	time.Sleep(100 * time.Millisecond)

	// Execute startup hook if configured (after server is running)
	executeHooks(cfg.Server.Hooks.OnStarted, "on_started")

	// Wait for shutdown signal or server error
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-sigCh:
		zlog.Info().Msg("Received shutdown signal...")
	case err := <-serverErrCh:
		return fmt.Errorf("server error: %w", err)
	}

	// Silence the player before going away; state does not survive a restart
	stopCtx, stopCancel := context.WithTimeout(context.Background(), cfg.ProviderTimeout())
	if err := controller.Stop(stopCtx); err != nil {
		zlog.Error().Msgf("Failed to stop playback: %v", err)
	}
	stopCancel()

	// Graceful shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	// Close notifications first to terminate active streams
	notifications.Close()

	if err := server.Shutdown(shutdownCtx); err != nil {
		zlog.Error().Msgf("Failed to shutdown server: %v", err)
	}

	zlog.Info().Msg("Server stopped")

	// Execute shutdown hook if configured
	executeHooks(cfg.Server.Hooks.OnStopped, "on_stopped")

	return nil
}

// buildFilterChain creates the enabled filters in a stable order.
// The market filter is always on; the others follow the filters config.
func buildFilterChain(cfg *config.Config, market string, queue filter.QueueManager) (*filter.Chain, error) {
	chain := filter.NewChain(filter.NewMarketFilter(market))

	registry := filter.GetRegistered()
	names := make([]string, 0, len(cfg.Filters))
	for name := range cfg.Filters {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		if !cfg.IsFilterEnabled(name) {
			continue
		}

		var f filter.Filter
		switch name {
		case "market_filter":
			// Always part of the chain
			continue
		case "duplicate_track_filter":
			f = filter.NewDuplicateTrackFilter(queue)
		default:
			factory, exists := registry[name]
			if !exists {
				return nil, fmt.Errorf("unknown filter: %s", name)
			}
			f = factory()
		}

		if err := f.ValidateConfig(cfg.GetFilterSettings(name)); err != nil {
			return nil, fmt.Errorf("filter %s: %w", name, err)
		}
		chain.Add(f)
		zlog.Info().Msgf("Filter enabled: %s", name)
	}

	return chain, nil
}

// printFilters prints available filters.
func printFilters() {
	registry := filter.GetRegistered()
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)

	fmt.Println("Available Filters:")
	for _, name := range names {
		f := registry[name]()
		codes := strings.Join(f.ReturnCodes(), ", ")
		fmt.Printf("  %-30s - %s [codes: %s]\n", f.Name(), f.Description(), codes)
	}
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

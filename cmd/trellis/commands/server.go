package commands

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/teranos/trellis/am"
	"github.com/teranos/trellis/analytics"
	"github.com/teranos/trellis/errors"
	"github.com/teranos/trellis/logger"
	"github.com/teranos/trellis/server"
	"github.com/teranos/trellis/storage"
)

// ServerCmd starts the sync server
var ServerCmd = &cobra.Command{
	Use:     "server",
	Aliases: []string{"serve"},
	Short:   "Start the WebSocket sync server",
	Long:    `Serve the graph sync protocol on /ws, plus /health, /metrics and /api/graphs/{userId}/{graphId}. The project am.toml is watched; allowed origins, max clients and the operation rate limit reload without a restart.`,
	RunE:    runServer,
}

var serverPort int

func init() {
	ServerCmd.Flags().IntVar(&serverPort, "port", 0, "Listen port (overrides server.port)")
}

func runServer(cmd *cobra.Command, args []string) error {
	// Get verbosity flag - default to 1 (Info) for server
	verbosity, _ := cmd.Flags().GetCount("verbose")
	if verbosity == 0 {
		verbosity = 1
	}

	cfg, err := am.Load()
	if err != nil {
		return errors.Wrap(err, "failed to load config")
	}
	if serverPort != 0 {
		cfg.Server.Port = serverPort
	}
	if err := cfg.Validate(); err != nil {
		return errors.Wrap(err, "invalid configuration")
	}
	if err := logger.Initialize(cfg.Server.LogJSON, verbosity); err != nil {
		return errors.Wrap(err, "failed to initialize logger")
	}

	ctx := cmd.Context()
	database, err := openDatabase(cfg)
	if err != nil {
		return err
	}
	if database != nil {
		defer database.Close()
	}

	store, err := storage.Open(ctx, cfg.Storage, database)
	if err != nil {
		return errors.Wrap(err, "failed to open storage")
	}
	tracker, err := analytics.New(cfg.Analytics, database)
	if err != nil {
		return errors.Wrap(err, "failed to start analytics")
	}

	srv, err := server.New(cfg, store, tracker)
	if err != nil {
		tracker.Close(context.Background())
		return errors.Wrap(err, "failed to create server")
	}
	srv.SetVerbosity(verbosity)

	if watcher := watchConfig(srv); watcher != nil {
		defer watcher.Stop()
	}

	printStartupBanner(verbosity, cfg)

	errChan := make(chan error, 1)
	go func() {
		errChan <- srv.ListenAndServe()
	}()

	// GRACE: Wait for shutdown signal (Ctrl+C)
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errChan:
		tracker.Close(context.Background())
		return errors.Wrap(err, "server failed to start")
	case <-sigChan:
		pterm.Info.Println("\nShutting down gracefully (press Ctrl+C again to force)...")

		shutdownDone := make(chan error, 1)
		go func() {
			stopCtx, cancel := context.WithTimeout(context.Background(), server.ShutdownTimeout)
			defer cancel()
			err := srv.Stop(stopCtx)
			shutdownDone <- errors.CombineErrors(err, tracker.Close(stopCtx))
		}()

		select {
		case err := <-shutdownDone:
			if err != nil {
				return errors.Wrap(err, "shutdown error")
			}
			pterm.Success.Println("Server stopped cleanly")
			return nil
		case <-sigChan:
			pterm.Warning.Println("\nForce shutdown - exiting immediately")
			os.Exit(1)
			return nil // unreachable
		}
	}
}

// watchConfig hot-reloads the highest-precedence existing config file.
func watchConfig(srv *server.Server) *am.ConfigWatcher {
	var path string
	for _, p := range am.ConfigPaths() {
		if _, err := os.Stat(p); err == nil {
			path = p
		}
	}
	if path == "" {
		return nil
	}

	watcher, err := am.NewConfigWatcher(path)
	if err != nil {
		logger.Warnw("Config hot reload disabled", logger.FieldPath, path, logger.FieldError, err)
		return nil
	}
	watcher.OnReload(srv.ApplyConfig)
	watcher.Start()
	logger.Infow("Watching config for changes", logger.FieldPath, path)
	return watcher
}

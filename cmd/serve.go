package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/conneroisu/reactive/internal/config"
	"github.com/conneroisu/reactive/internal/server"
)

// persistInterval is how often changed repository-backed stores are saved.
const persistInterval = 2 * time.Second

var serveCmd = &cobra.Command{
	Use:     "serve",
	Aliases: []string{"s"},
	Short:   "Serve the configured stores over HTTP and WebSocket",
	Long: `Load the stores declared in the configuration and serve them.

File-backed stores with watch enabled are reloaded whenever their file
changes. Stores without a file are restored from and saved to the store
repository. Every change is streamed to WebSocket clients on /ws.

Examples:
  reactive serve                  # Serve on localhost:8080
  reactive serve --port 3000      # Serve on another port
  REACTIVE_SERVER_HOST=0.0.0.0 reactive serve`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().IntP("port", "p", config.DefaultPort, "Port to serve on")
	serveCmd.Flags().String("host", config.DefaultHost, "Host to bind to")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger, closeLog, err := newLogger(cfg, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer closeLog()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}

	fw, err := a.watchFiles(ctx)
	if err != nil {
		return err
	}
	if fw != nil {
		defer fw.Stop()
		logger.Info(ctx, "Watching store files", "paths", fw.WatchedPaths())
	}

	persisted := make(chan error, 1)
	go func() { persisted <- a.persister.Run(ctx, persistInterval) }()

	srv, err := server.New(cfg, server.Deps{
		Stores:     a.stores,
		Translator: a.translator,
		Router:     a.router,
		Logger:     logger,
	})
	if err != nil {
		stop()
		<-persisted
		return err
	}

	serveErr := srv.Start(ctx)
	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error(shutdownCtx, err, "Server shutdown failed")
	}
	if err := <-persisted; err != nil {
		logger.Error(shutdownCtx, err, "Saving stores failed")
	}
	return serveErr
}

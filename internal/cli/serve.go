package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"othello-relay/internal/server"
	"othello-relay/pkg/logger"
)

// NewServeCmd creates the serve command.
func NewServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the relay",
		Long: `Start the relay.

The relay launches the engine process, restarts it whenever it exits and
serves viewers on /ws. It also exposes:
- GET  /health
- GET  /api/v1/status
- POST /api/v1/engine/restart`,
		Example: `  # Start with the configured engine
  othello-relay serve

  # Use another engine binary and port
  othello-relay serve --engine ./bin/client_app.out --port 9000`,
		RunE: runServe,
	}

	cmd.Flags().IntP("port", "p", 0, "port to listen on (overrides config)")
	cmd.Flags().String("host", "", "host to bind to (overrides config)")
	cmd.Flags().String("engine", "", "engine executable (overrides config)")
	cmd.Flags().Bool("watch-binary", false, "restart the engine when its executable changes")

	return cmd
}

func runServe(cmd *cobra.Command, args []string) error {
	cliCtx := GetCLIContext(cmd)
	if cliCtx == nil {
		return fmt.Errorf("CLI context not initialized")
	}

	cfg := cliCtx.Config
	log := cliCtx.Log()

	if port, _ := cmd.Flags().GetInt("port"); port > 0 {
		cfg.Gateway.Port = port
	}
	if host, _ := cmd.Flags().GetString("host"); host != "" {
		cfg.Gateway.Host = host
	}
	if engine, _ := cmd.Flags().GetString("engine"); engine != "" {
		cfg.Engine.Path = engine
	}
	if watch, _ := cmd.Flags().GetBool("watch-binary"); watch {
		cfg.Engine.WatchBinary = true
	}

	srv, err := server.New(cfg,
		server.WithVersion(Version),
		server.WithLogger(logger.Component("server")),
	)
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	if err := srv.Start(); err != nil {
		return fmt.Errorf("failed to start server: %w", err)
	}

	log.Info().
		Str("address", fmt.Sprintf("ws://%s/ws", srv.Addr())).
		Msg("Relay ready")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	var serveErr error
	select {
	case <-sigCh:
		log.Info().Msg("Shutting down relay...")
	case serveErr = <-srv.ErrorChan():
		log.Error().Err(serveErr).Msg("Server error")
	}

	if err := srv.Stop(context.Background()); err != nil {
		log.Error().Err(err).Msg("Error during shutdown")
		if serveErr == nil {
			serveErr = err
		}
	}
	return serveErr
}

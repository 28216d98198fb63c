package cli

import (
	"context"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/eshaffer321/receipt-desk/internal/api"
	"github.com/eshaffer321/receipt-desk/internal/api/middleware"
	"github.com/eshaffer321/receipt-desk/internal/infrastructure/logging"
)

// purgeInterval is how often idle sessions are swept while serving.
const purgeInterval = time.Hour

// ServeFlags holds the CLI flags for the serve command.
type ServeFlags struct {
	Port int
}

func newServeCommand(opts *rootOptions) *cobra.Command {
	flags := &ServeFlags{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the receipt desk HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := opts.app()
			if err != nil {
				return err
			}
			defer func() { _ = app.Close() }()

			return RunServe(app, flags)
		},
	}

	cmd.Flags().IntVar(&flags.Port, "port", 0, "Port to listen on (default from config)")
	return cmd
}

// RunServe runs the API server until SIGINT or SIGTERM.
func RunServe(app *App, flags *ServeFlags) error {
	cfg := app.Config
	logger := app.Logger.With("system", logging.SystemAPI)

	apiCfg := api.Config{
		Port:           cfg.Server.Port,
		AllowedOrigins: cfg.Server.AllowedOrigins,
		Cookie: middleware.CookieConfig{
			Name:   cfg.Server.CookieName,
			Secure: cfg.Server.CookieSecure,
			MaxAge: cfg.Sessions.MaxIdle,
		},
	}
	if flags.Port > 0 {
		apiCfg.Port = flags.Port
	}

	server := api.NewServer(apiCfg, api.Services{
		Auth:      app.Auth,
		Receipts:  app.Receipts,
		Customers: app.Customers,
	}, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(server.Start)
	g.Go(func() error {
		purgeLoop(ctx, app, logger)
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		logger.Info("received shutdown signal")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info("server stopped")
	return nil
}

func purgeLoop(ctx context.Context, app *App, logger *slog.Logger) {
	ticker := time.NewTicker(purgeInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := app.PurgeSessions(ctx)
			if err != nil {
				logger.Warn("failed to purge idle sessions", "error", err)
				continue
			}
			if n > 0 {
				logger.Info("purged idle sessions", "count", n)
			}
		}
	}
}

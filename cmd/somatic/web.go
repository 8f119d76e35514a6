package main

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/MrWong99/somatic/internal/app"
	"github.com/MrWong99/somatic/internal/config"
	"github.com/MrWong99/somatic/internal/observe"
)

func newWebCmd(c *cli) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "web",
		Short: "Serve browser sessions over HTTP and websocket",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if addr != "" {
				c.cfg.Server.ListenAddr = addr
			}
			return serveWeb(cmd.Context(), c.cfg)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides server.listen_addr)")
	return cmd
}

func serveWeb(parent context.Context, cfg *config.Config) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := app.Preflight(ctx, cfg, nil, false); err != nil {
		return err
	}

	otelShutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{ServiceVersion: version})
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}

	reg := config.NewRegistry()
	app.RegisterBuiltinProviders(reg)
	providers, err := app.BuildProviders(cfg, reg, false)
	if err != nil {
		return err
	}

	a, err := app.New(ctx, cfg, providers)
	if err != nil {
		return err
	}

	fmt.Println(titleStyle.Render("Somatic meditation server"))
	fmt.Println(dimStyle.Render("Ready on " + cfg.Server.ListenAddr + ". Press Ctrl+C to stop."))

	serveErr := a.Serve(ctx)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := a.Shutdown(shutdownCtx); err != nil {
		slog.Warn("shutdown", "err", err)
	}
	if err := otelShutdown(shutdownCtx); err != nil {
		slog.Warn("telemetry shutdown", "err", err)
	}
	slog.Info("goodbye")
	return serveErr
}

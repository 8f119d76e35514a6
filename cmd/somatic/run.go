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
	"github.com/MrWong99/somatic/internal/transcript"
)

func newRunCmd(c *cli) *cobra.Command {
	var device string
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a facilitated session from the local microphone",
		Long: `Run a facilitated session from the local microphone.

Speak whenever you like; the facilitator answers after a pause. Press
Ctrl+C to end the session. The transcript is saved when session.auto_save
is set.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if device != "" {
				c.cfg.Audio.InputDevice = device
			}
			return runLocal(cmd.Context(), c.cfg)
		},
	}
	cmd.Flags().StringVar(&device, "device", "", "capture device name substring (overrides audio.input_device)")
	return cmd
}

func runLocal(parent context.Context, cfg *config.Config) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := app.Preflight(ctx, cfg, nil, true); err != nil {
		return err
	}

	reg := config.NewRegistry()
	app.RegisterBuiltinProviders(reg)
	providers, err := app.BuildProviders(cfg, reg, true)
	if err != nil {
		return err
	}

	a, err := app.New(ctx, cfg, providers)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := a.Shutdown(shutdownCtx); err != nil {
			slog.Warn("shutdown", "err", err)
		}
	}()

	fmt.Println(titleStyle.Render("Somatic meditation session"))
	fmt.Println(dimStyle.Render("Listening. Press Ctrl+C to end."))

	rec, err := a.Run(ctx)
	if rec != nil {
		fmt.Println()
		fmt.Printf("Session %s ended after %s with %d exchanges.\n",
			rec.SessionID, transcript.FormatDuration(rec.Duration), rec.ExchangeCount)
	}
	return err
}

package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/MrWong99/somatic/internal/app"
	"github.com/MrWong99/somatic/internal/config"
	"github.com/MrWong99/somatic/internal/transcript"
)

// withStore opens the configured transcript store for the duration of fn.
func withStore(ctx context.Context, cfg *config.Config, fn func(transcript.Store) error) error {
	store, closer, err := app.OpenStore(ctx, cfg.Session)
	if err != nil {
		return err
	}
	if closer != nil {
		defer closer()
	}
	return fn(store)
}

func newListCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List saved sessions, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withStore(cmd.Context(), c.cfg, func(s transcript.Store) error {
				sums, err := s.List(cmd.Context())
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if len(sums) == 0 {
					fmt.Fprintln(out, "No saved sessions found.")
					return nil
				}
				fmt.Fprintln(out, titleStyle.Render("Saved sessions"))
				fmt.Fprintln(out, strings.Repeat("-", 60))
				for _, sum := range sums {
					tags := strings.Join(sum.Tags, ", ")
					if tags == "" {
						tags = "none"
					}
					fmt.Fprintf(out, "  %s\n", sum.SessionID)
					fmt.Fprintf(out, "    Duration: %s, Exchanges: %d\n", transcript.FormatDuration(sum.Duration), sum.ExchangeCount)
					fmt.Fprintln(out, dimStyle.Render("    Tags: "+tags))
					fmt.Fprintln(out)
				}
				return nil
			})
		},
	}
}

func newViewCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "view <session-id>",
		Short: "Print a saved session transcript",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd.Context(), c.cfg, func(s transcript.Store) error {
				doc, err := s.Load(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if doc == nil {
					return fmt.Errorf("session not found: %s", args[0])
				}
				fmt.Fprintln(cmd.OutOrStdout(), transcript.RenderText(doc, c.cfg.Session.IncludeTimestamps))
				return nil
			})
		},
	}
}

func newDeleteCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <session-id>",
		Short: "Delete a saved session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd.Context(), c.cfg, func(s transcript.Store) error {
				deleted, err := s.Delete(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if !deleted {
					return fmt.Errorf("session not found: %s", args[0])
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Deleted session %s\n", args[0])
				return nil
			})
		},
	}
}

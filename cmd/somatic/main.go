// Command somatic is a voice-guided somatic meditation facilitator.
//
// It runs a session from the local microphone (somatic run), serves the
// browser client (somatic web), and manages saved transcripts (somatic
// list, view, delete).
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/MrWong99/somatic/internal/config"
)

// version is set at build time.
var version = "dev"

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#7C9A92"))
	dimStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#6B7280"))
	errorStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#EF4444"))
)

// cli holds state shared by all subcommands.
type cli struct {
	configPath string
	envFile    string
	logLevel   string
	cfg        *config.Config
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, errorStyle.Render("somatic: "+err.Error()))
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	c := &cli{}
	root := &cobra.Command{
		Use:           "somatic",
		Short:         "Voice-guided somatic meditation facilitator",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return c.load()
		},
	}
	root.PersistentFlags().StringVarP(&c.configPath, "config", "c", "", "path to the YAML configuration file")
	root.PersistentFlags().StringVar(&c.envFile, "env-file", ".env", "dotenv file loaded before the configuration")
	root.PersistentFlags().StringVar(&c.logLevel, "log-level", "", "override log_level (debug, info, warn, error)")

	root.AddCommand(
		newRunCmd(c),
		newWebCmd(c),
		newListCmd(c),
		newViewCmd(c),
		newDeleteCmd(c),
		newDevicesCmd(c),
	)
	return root
}

// load reads the dotenv file and the configuration and installs the
// logger.
func (c *cli) load() error {
	if err := config.LoadEnvFile(c.envFile); err != nil {
		return err
	}
	path, found := config.Resolve(c.configPath)
	if !found {
		path = ""
	}
	cfg, err := config.Load(path)
	if err != nil {
		return err
	}
	if c.logLevel != "" {
		cfg.LogLevel = config.LogLevel(c.logLevel)
		if !cfg.LogLevel.IsValid() {
			return fmt.Errorf("invalid --log-level %q", c.logLevel)
		}
	}
	c.cfg = cfg

	slog.SetDefault(newLogger(cfg.LogLevel))
	if path == "" {
		slog.Debug("no configuration file found, using defaults", "searched", config.SearchPaths())
	} else {
		slog.Debug("configuration loaded", "path", path)
	}
	return nil
}

func newLogger(level config.LogLevel) *slog.Logger {
	var lvl slog.Level
	switch level {
	case config.LogDebug:
		lvl = slog.LevelDebug
	case config.LogWarn:
		lvl = slog.LevelWarn
	case config.LogError:
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}

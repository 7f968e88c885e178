package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ahrav/go-consensus/internal/application"
)

// jsonLogsAnnotation marks commands that log JSON instead of text.
const jsonLogsAnnotation = "consensus/json-logs"

// cli carries state shared by every command.
type cli struct {
	configPath string
	logLevel   string

	config *application.Config
	logger *slog.Logger

	newRuntime runtimeFactory
}

func newRootCmd(newRuntime runtimeFactory) *cobra.Command {
	c := &cli{newRuntime: newRuntime}

	root := &cobra.Command{
		Use:           "consensus",
		Short:         "Ask many LLMs the same question and group the answers that agree",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return c.setup(cmd)
		},
	}

	root.PersistentFlags().StringVarP(&c.configPath, "config", "c", os.Getenv("CONSENSUS_CONFIG"), "path to a YAML config file")
	root.PersistentFlags().StringVar(&c.logLevel, "log-level", "", "override the configured log level (debug, info, warn, error)")

	root.AddCommand(
		newServeCmd(c),
		newAskCmd(c),
		newModelsCmd(c),
		newVersionCmd(),
	)
	return root
}

// setup loads configuration and installs the logger for cmd.
func (c *cli) setup(cmd *cobra.Command) error {
	loader, err := application.NewConfigLoader()
	if err != nil {
		return err
	}
	cfg, err := loader.LoadFile(c.configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if c.logLevel != "" {
		cfg.Log.Level = c.logLevel
		if err := loader.Validate(cfg); err != nil {
			return err
		}
	}
	c.config = cfg

	_, jsonLogs := cmd.Annotations[jsonLogsAnnotation]
	c.logger = newLogger(cmd.ErrOrStderr(), cfg.Log.Level, jsonLogs)
	slog.SetDefault(c.logger)
	return nil
}

func newLogger(w io.Writer, level string, jsonLogs bool) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLevel(level)}
	if jsonLogs {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		// Version needs no configuration.
		PersistentPreRun: func(*cobra.Command, []string) {},
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "consensus %s\n", version)
		},
	}
}

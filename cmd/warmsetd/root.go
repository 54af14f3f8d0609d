package main

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"warmsetd/internal/config"
)

// version is overridden at build time with -ldflags "-X main.version=...".
var version = "dev"

type rootOptions struct {
	configPath string
	envFiles   []string
}

// newRootCmd constructs the command tree: serve, score and version.
func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:           "warmsetd",
		Short:         "Warm-set chunk cache and deterministic generation daemon",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return config.LoadDotEnv(opts.envFiles...)
		},
	}
	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "Config file (.yaml, .yml, .json or .toml)")
	root.PersistentFlags().StringSliceVar(&opts.envFiles, "env-file", nil, ".env files loaded before reading WARMSETD_* variables (default .env)")

	root.AddCommand(newServeCmd(opts), newScoreCmd(), newVersionCmd())
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "warmsetd %s\n", version)
			return err
		},
	}
}

// newLogger builds the process logger for a config log level.
func newLogger(level string) zerolog.Logger {
	lvl := zerolog.InfoLevel
	switch level {
	case "off":
		lvl = zerolog.Disabled
	case "":
	default:
		if l, err := zerolog.ParseLevel(level); err == nil {
			lvl = l
		}
	}
	return zerolog.New(os.Stderr).Level(lvl).With().Timestamp().Str("service", "warmsetd").Logger()
}

// requestLogLevel maps the process log level onto the per-request default.
func requestLogLevel(level string) string {
	switch level {
	case "trace", "debug":
		return "debug"
	case "warn", "error":
		return "error"
	case "off":
		return "off"
	default:
		return "info"
	}
}

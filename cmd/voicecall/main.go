package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/chadiek/voicecall/internal/config"
	"github.com/chadiek/voicecall/internal/logging"
)

var (
	cfg       config.Config
	logLevel  string
	logFormat string
)

var rootCmd = &cobra.Command{
	Use:           "voicecall",
	Short:         "Real-time voice sessions against a remote voice pipeline",
	SilenceUsage:  true,
	SilenceErrors: false,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if cmd.Flags().Changed("log-level") {
			cfg.LogLevel = logLevel
		}
		if cmd.Flags().Changed("log-format") {
			cfg.LogFormat = logFormat
		}
		logging.Setup(cfg.LogLevel, cfg.LogFormat)
	},
}

func init() {
	cfg = config.Load()
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level: debug, info, warn, error")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "text", "Log format: text or json")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// Package cli holds the peer-share command line.
package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rudransh-shrivastava/peer-share/internal/config"
	"github.com/rudransh-shrivastava/peer-share/internal/logger"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	configPath string
	logLevel   string
	trackerURL string
)

var rootCmd = &cobra.Command{
	Use:           "peer-share",
	Short:         "peer to peer music sharing",
	Long:          `peer-share shares audio files between nodes that meet through a tracker and transfer over direct peer connections`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		logrus.Error(err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file (default "+config.DefaultPath+" when present)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level: debug, info, warn, error")
	rootCmd.PersistentFlags().StringVar(&trackerURL, "tracker", "", "tracker websocket URL, e.g. ws://localhost:8000/ws")

	rootCmd.AddCommand(trackerCmd)
	rootCmd.AddCommand(nodeCmd)
	rootCmd.AddCommand(searchCmd)
	rootCmd.AddCommand(downloadCmd)
}

// setup loads the configuration, applies flag overrides and builds the logger.
func setup(cmd *cobra.Command) (*config.Config, *logrus.Logger, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, err
	}
	if cmd.Flags().Changed("log-level") {
		cfg.Log.Level = logLevel
	}
	if cmd.Flags().Changed("tracker") {
		cfg.Node.TrackerURL = trackerURL
		if err := config.Validate(cfg); err != nil {
			return nil, nil, err
		}
	}
	return cfg, logger.NewLogger(cfg.Log.Level, cfg.Log.Format), nil
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

package cli

import (
	"context"

	"github.com/rudransh-shrivastava/peer-share/internal/metrics"
	"github.com/rudransh-shrivastava/peer-share/internal/tracker"
	"github.com/spf13/cobra"
)

var trackerAddr string

var trackerCmd = &cobra.Command{
	Use:   "tracker",
	Short: "runs the tracker server",
	Long:  `runs the rendezvous server nodes register with to announce files, search and exchange connection offers`,
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, log, err := setup(cmd)
		if err != nil {
			return err
		}
		if cmd.Flags().Changed("addr") {
			cfg.Tracker.Address = trackerAddr
		}

		serverCfg := tracker.ConfigFrom(cfg.Tracker)
		serverCfg.Logger = log
		serverCfg.Metrics = metrics.NewPrometheusCollector()

		ctx, cancel := signalContext(context.Background())
		defer cancel()

		return tracker.NewServer(serverCfg).Start(ctx)
	},
}

func init() {
	trackerCmd.Flags().StringVarP(&trackerAddr, "addr", "a", "", "listen address (default :8000)")
}

package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/rudransh-shrivastava/peer-share/internal/config"
	"github.com/rudransh-shrivastava/peer-share/internal/node"
	"github.com/rudransh-shrivastava/peer-share/internal/transport/webrtc"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	nodeID      string
	downloadDir string
)

var nodeCmd = &cobra.Command{
	Use:   "node [file...]",
	Short: "runs a node sharing the given files",
	Long:  `runs a long lived node that shares the given audio files and serves them to other nodes until interrupted`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, log, err := setup(cmd)
		if err != nil {
			return err
		}

		ctx, cancel := signalContext(context.Background())
		defer cancel()

		n, err := startNode(ctx, cmd, cfg, log, nil)
		if err != nil {
			return err
		}
		defer func() { _ = n.Shutdown() }()

		for _, path := range args {
			f, err := n.Share(ctx, path)
			if err != nil {
				log.Errorf("Failed to share %s: %v", path, err)
				continue
			}
			log.Infof("Sharing %s as %s", f.Name, f.Fingerprint)
		}

		log.Infof("Node %s running, press Ctrl+C to stop", n.ID())
		<-ctx.Done()
		return nil
	},
}

func init() {
	for _, cmd := range []*cobra.Command{nodeCmd, searchCmd, downloadCmd} {
		cmd.Flags().StringVar(&nodeID, "id", "", "node id (default: generated)")
	}
	nodeCmd.Flags().StringVarP(&downloadDir, "downloads", "d", "", "directory completed downloads are written to")
	downloadCmd.Flags().StringVarP(&downloadDir, "downloads", "d", "", "directory completed downloads are written to")
}

// startNode builds a node with the WebRTC transport and starts its session.
func startNode(ctx context.Context, cmd *cobra.Command, cfg *config.Config, log *logrus.Logger, observer node.Observer) (*node.Node, error) {
	if cmd.Flags().Changed("downloads") {
		cfg.Node.DownloadDir = downloadDir
	}
	if observer == nil {
		observer = node.LogObserver{Logger: log}
	}

	n, err := node.New(node.Options{
		NodeID:    nodeID,
		Config:    cfg.Node,
		Transport: webrtc.New(cfg.Node.STUNServers),
		Observer:  observer,
		Logger:    log,
	})
	if err != nil {
		return nil, err
	}
	if err := n.Start(ctx); err != nil {
		_ = n.Shutdown()
		return nil, err
	}
	return n, nil
}

// waitConnected gives the session a moment to reach the tracker. Commands
// still work offline, so running out of time is not an error.
func waitConnected(ctx context.Context, n *node.Node, within time.Duration) bool {
	deadline := time.NewTimer(within)
	defer deadline.Stop()
	tick := time.NewTicker(50 * time.Millisecond)
	defer tick.Stop()

	for {
		if ok, err := n.Connected(ctx); err == nil && ok {
			return true
		}
		select {
		case <-ctx.Done():
			return false
		case <-deadline.C:
			return false
		case <-tick.C:
		}
	}
}

func sources(count int) string {
	if count == 1 {
		return "1 source"
	}
	return fmt.Sprintf("%d sources", count)
}

package cli

import (
	"context"
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

var searchCmd = &cobra.Command{
	Use:   "search term",
	Short: "searches the network for files",
	Long:  `searches shared files by name or artist, or the built-in offline library when the tracker cannot be reached`,
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, log, err := setup(cmd)
		if err != nil {
			return err
		}

		ctx, cancel := signalContext(context.Background())
		defer cancel()

		n, err := startNode(ctx, cmd, cfg, log, quietObserver{})
		if err != nil {
			return err
		}
		defer func() { _ = n.Shutdown() }()

		if !waitConnected(ctx, n, 2*time.Second) {
			log.Warn("Tracker unreachable, searching the offline library")
		}

		results, err := n.Search(ctx, strings.Join(args, " "))
		if err != nil {
			return err
		}
		if len(results) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "no matches")
			return nil
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tNAME\tARTIST\tSIZE\tSOURCES")
		for _, f := range results {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", f.ID, f.Name, f.Artist, f.Size, sources(f.Sources))
		}
		return w.Flush()
	},
}

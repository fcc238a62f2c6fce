package cli

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rudransh-shrivastava/peer-share/internal/catalog"
	"github.com/rudransh-shrivastava/peer-share/internal/node"
	"github.com/rudransh-shrivastava/peer-share/internal/protocol"
	"github.com/rudransh-shrivastava/peer-share/internal/transfer"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
)

var errDownloadFailed = errors.New("download failed")

var downloadCmd = &cobra.Command{
	Use:   "download file-id",
	Short: "downloads a file",
	Long:  `downloads a file by id, as printed by search, directly from a node sharing it`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, log, err := setup(cmd)
		if err != nil {
			return err
		}

		ctx, cancel := signalContext(context.Background())
		defer cancel()

		progress := newProgressObserver(cmd)
		n, err := startNode(ctx, cmd, cfg, log, progress)
		if err != nil {
			return err
		}
		defer func() { _ = n.Shutdown() }()

		file, err := lookup(ctx, n, args[0])
		if err != nil {
			return err
		}

		task, err := n.Download(ctx, file)
		if err != nil {
			return err
		}
		progress.track(task.ID, file.Name)

		// the task may finish before the bar starts tracking it
		poll := time.NewTicker(time.Second)
		defer poll.Stop()

		var final transfer.Task
	wait:
		for {
			select {
			case final = <-progress.done:
				break wait
			case <-poll.C:
				t, err := n.Task(ctx, task.ID)
				if err == nil && t.Status != transfer.StatusDownloading {
					final = t
					break wait
				}
			case <-ctx.Done():
				_ = n.Cancel(context.Background(), task.ID)
				return ctx.Err()
			}
		}

		if final.Status != transfer.StatusCompleted {
			return fmt.Errorf("%w: %s", errDownloadFailed, final.Status)
		}
		if final.Path != "" {
			fmt.Fprintf(cmd.OutOrStdout(), "saved to %s\n", final.Path)
		}
		return nil
	},
}

// lookup resolves a file id through the tracker, or the offline library when
// the tracker is unreachable.
func lookup(ctx context.Context, n *node.Node, id string) (protocol.RemoteFile, error) {
	var files []protocol.RemoteFile
	if waitConnected(ctx, n, 2*time.Second) {
		var err error
		if files, err = n.ListAll(ctx); err != nil {
			return protocol.RemoteFile{}, err
		}
	} else {
		files = catalog.OfflineLibrary()
	}
	for _, f := range files {
		if f.ID == id {
			return f, nil
		}
	}
	return protocol.RemoteFile{}, fmt.Errorf("file %s not found", id)
}

// progressObserver renders one task on a progress bar and reports its final
// state on done.
type progressObserver struct {
	quietObserver
	cmd  *cobra.Command
	bar  *progressbar.ProgressBar
	id   chan string
	task string
	done chan transfer.Task
}

func newProgressObserver(cmd *cobra.Command) *progressObserver {
	return &progressObserver{
		cmd:  cmd,
		id:   make(chan string, 1),
		done: make(chan transfer.Task, 1),
	}
}

// track starts rendering id. Progress events for it that arrive earlier are
// picked up from the node's next update.
func (p *progressObserver) track(id, name string) {
	p.bar = progressbar.NewOptions(100,
		progressbar.OptionSetWriter(p.cmd.ErrOrStderr()),
		progressbar.OptionSetDescription(name),
		progressbar.OptionShowCount(),
		progressbar.OptionClearOnFinish(),
	)
	p.id <- id
}

func (p *progressObserver) Progress(t transfer.Task) {
	if p.task == "" {
		select {
		case id := <-p.id:
			p.task = id
		default:
			return
		}
	}
	if t.ID != p.task {
		return
	}

	_ = p.bar.Set(int(t.Progress))
	if t.Status == transfer.StatusDownloading {
		return
	}
	_ = p.bar.Finish()
	select {
	case p.done <- t:
	default:
	}
}

// quietObserver drops everything except errors a user should see.
type quietObserver struct{}

func (quietObserver) Notify(n node.Notification) {
	if n.Level == node.LevelError {
		fmt.Printf("%s: %s\n", n.Title, n.Message)
	}
}

func (quietObserver) Progress(transfer.Task) {}

func (quietObserver) CatalogUpdated([]protocol.RemoteFile) {}

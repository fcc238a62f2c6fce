package node

import (
	"context"
	"errors"
	"fmt"

	"github.com/rudransh-shrivastava/peer-share/internal/peer"
	"github.com/rudransh-shrivastava/peer-share/internal/protocol"
	"github.com/rudransh-shrivastava/peer-share/internal/transfer"
)

var ErrInvalidFile = errors.New("file has no id")

// TaskList is a snapshot of the download ledgers.
type TaskList struct {
	Active    []transfer.Task
	Completed []transfer.Task
}

// Download starts fetching file and returns the new task. The task always
// reaches a terminal state: when no direct connection can be made it is
// served by the fallback path under the same id.
func (n *Node) Download(ctx context.Context, file protocol.RemoteFile) (transfer.Task, error) {
	if file.ID == "" {
		return transfer.Task{}, ErrInvalidFile
	}

	var (
		snapshot transfer.Task
		err      error
	)
	callErr := n.loop.call(ctx, func() {
		if n.closing {
			err = ErrStopped
			return
		}
		task := transfer.NewTask(file)
		if err = n.ledger.Add(task); err != nil {
			return
		}
		n.log.Infof("Downloading %s", file.Name)
		n.notify(LevelInfo, "Download started", "Downloading "+file.Name)
		n.observer.Progress(task.Snapshot())

		n.begin(task)
		snapshot = task.Snapshot()
	})
	if callErr != nil {
		return transfer.Task{}, callErr
	}
	return snapshot, err
}

// begin chooses between a direct attempt and the fallback path.
func (n *Node) begin(task *transfer.Task) {
	remoteID, err := n.pickSource(task.File)
	switch {
	case err != nil:
		n.log.Infof("No source for %s, using fallback", task.File.Name)
	case !n.registry.HasTransport():
		n.log.Infof("No direct transport, using fallback for %s", task.File.Name)
	case !n.connected:
		n.log.Infof("Not connected to the tracker, using fallback for %s", task.File.Name)
	default:
		n.offer(task, remoteID)
		return
	}
	n.startFallback(task.ID)
}

// complete is the single success path for both direct and fallback
// downloads. Later calls for the same task are no-ops.
func (n *Node) complete(id string) {
	task, ok := n.ledger.Complete(id)
	if !ok {
		return
	}
	n.fallback.Stop(id)

	ctx, cancel := context.WithTimeout(n.ctx, n.cfg.RequestTimeout)
	defer cancel()
	path, err := n.deliverer.Deliver(ctx, task)
	if err != nil {
		n.log.Warnf("Failed to save %s: %v", task.File.Name, err)
	} else {
		task.Path = path
	}

	n.log.Infof("Download of %s complete", task.File.Name)
	n.observer.Progress(task.Snapshot())
	n.notify(LevelSuccess, "Download complete", fmt.Sprintf("%s downloaded successfully", task.File.Name))
}

// Cancel stops an active download and drops it from the ledger.
func (n *Node) Cancel(ctx context.Context, id string) error {
	var err error
	callErr := n.loop.call(ctx, func() {
		task, ok := n.ledger.Remove(id, transfer.StatusCancelled)
		if !ok {
			err = transfer.ErrTaskNotFound
			return
		}
		n.fallback.Stop(id)
		if e, ok := n.registry.FindTask(id); ok {
			_ = e.Advance(peer.StateFailed)
			n.registry.Sweep()
		}
		n.history[id] = task.Snapshot()
		n.observer.Progress(task.Snapshot())
		n.notify(LevelInfo, "Download cancelled", task.File.Name)
	})
	if callErr != nil {
		return callErr
	}
	return err
}

// Task returns a download by id, including cancelled and failed ones.
func (n *Node) Task(ctx context.Context, id string) (transfer.Task, error) {
	var (
		task transfer.Task
		ok   bool
	)
	err := n.loop.call(ctx, func() {
		if t, found := n.ledger.Active(id); found {
			task, ok = t.Snapshot(), true
			return
		}
		if t, found := n.ledger.Completed(id); found {
			task, ok = t.Snapshot(), true
			return
		}
		task, ok = n.history[id]
	})
	if err != nil {
		return transfer.Task{}, err
	}
	if !ok {
		return transfer.Task{}, transfer.ErrTaskNotFound
	}
	return task, nil
}

func (n *Node) Tasks(ctx context.Context) (TaskList, error) {
	var list TaskList
	err := n.loop.call(ctx, func() {
		list.Active = n.ledger.ActiveTasks()
		list.Completed = n.ledger.CompletedTasks()
	})
	return list, err
}

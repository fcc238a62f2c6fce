package node

import (
	"github.com/rudransh-shrivastava/peer-share/internal/protocol"
	"github.com/rudransh-shrivastava/peer-share/internal/transfer"
	"github.com/sirupsen/logrus"
)

type Level string

const (
	LevelInfo    Level = "info"
	LevelSuccess Level = "success"
	LevelWarning Level = "warning"
	LevelError   Level = "error"
)

// Notification is a user-facing event.
type Notification struct {
	Level   Level
	Title   string
	Message string
}

// Observer receives everything a user interface would render. Methods are
// called on the node's event loop and must return quickly.
type Observer interface {
	Notify(n Notification)
	Progress(t transfer.Task)
	CatalogUpdated(files []protocol.RemoteFile)
}

// LogObserver writes notifications and progress to a logger.
type LogObserver struct {
	Logger *logrus.Logger
}

func (o LogObserver) Notify(n Notification) {
	entry := o.Logger.WithField("title", n.Title)
	switch n.Level {
	case LevelError:
		entry.Error(n.Message)
	case LevelWarning:
		entry.Warn(n.Message)
	default:
		entry.Info(n.Message)
	}
}

func (o LogObserver) Progress(t transfer.Task) {
	o.Logger.WithFields(logrus.Fields{
		"task":     t.ID,
		"fallback": t.Fallback,
	}).Debugf("%s: %.0f%% (%s)", t.File.Name, t.Progress, t.Status)
}

func (o LogObserver) CatalogUpdated(files []protocol.RemoteFile) {
	o.Logger.Debugf("Remote catalog updated: %d files", len(files))
}

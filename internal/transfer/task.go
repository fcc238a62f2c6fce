// Package transfer tracks downloads from initiation to a terminal state.
package transfer

import (
	"time"

	"github.com/google/uuid"
	"github.com/rudransh-shrivastava/peer-share/internal/protocol"
)

type Status string

const (
	StatusDownloading Status = "downloading"
	StatusCompleted   Status = "completed"
	StatusCancelled   Status = "cancelled"
	StatusFailed      Status = "failed"
)

// Task is one download attempt.
type Task struct {
	ID         string
	File       protocol.RemoteFile
	Progress   float64
	Status     Status
	Fallback   bool
	Path       string
	StartedAt  time.Time
	FinishedAt time.Time
}

func NewTask(file protocol.RemoteFile) *Task {
	return &Task{
		ID:        "download_" + uuid.NewString(),
		File:      file,
		Status:    StatusDownloading,
		StartedAt: time.Now(),
	}
}

// Advance adds delta to the progress, clamped to [0,100]. Progress never
// decreases.
func (t *Task) Advance(delta float64) float64 {
	if delta > 0 {
		t.SetProgress(t.Progress + delta)
	}
	return t.Progress
}

// SetProgress raises the progress to p. Lower values are ignored.
func (t *Task) SetProgress(p float64) {
	if p > 100 {
		p = 100
	}
	if p > t.Progress {
		t.Progress = p
	}
}

func (t *Task) Done() bool {
	return t.Progress >= 100
}

// Snapshot returns a copy safe to hand outside the event loop.
func (t *Task) Snapshot() Task {
	s := *t
	s.File.NodeIDs = append([]string(nil), t.File.NodeIDs...)
	return s
}

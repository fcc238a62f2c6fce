package transfer

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rudransh-shrivastava/peer-share/internal/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// manualScheduler queues scheduled functions until the test runs them.
type manualScheduler struct {
	pending []*manualTimer
}

type manualTimer struct {
	f       func()
	stopped bool
}

func (m *manualTimer) Stop() bool {
	was := !m.stopped
	m.stopped = true
	return was
}

func (s *manualScheduler) AfterFunc(_ time.Duration, f func()) Stopper {
	t := &manualTimer{f: f}
	s.pending = append(s.pending, t)
	return t
}

// runNext fires the oldest live timer and reports whether one existed.
func (s *manualScheduler) runNext() bool {
	for len(s.pending) > 0 {
		t := s.pending[0]
		s.pending = s.pending[1:]
		if !t.stopped {
			t.f()
			return true
		}
	}
	return false
}

func testFile() protocol.RemoteFile {
	return protocol.RemoteFile{ID: strings.Repeat("a", 64), Name: "song.mp3", NodeIDs: []string{"node_x"}}
}

func TestTaskProgressMonotonic(t *testing.T) {
	task := NewTask(testFile())
	assert.True(t, strings.HasPrefix(task.ID, "download_"))
	assert.Equal(t, StatusDownloading, task.Status)

	task.SetProgress(40)
	task.SetProgress(20)
	assert.Equal(t, 40.0, task.Progress)

	task.Advance(-5)
	assert.Equal(t, 40.0, task.Progress)

	task.Advance(80)
	assert.Equal(t, 100.0, task.Progress)
	assert.True(t, task.Done())
}

func TestTaskSnapshotIsCopy(t *testing.T) {
	task := NewTask(testFile())
	snap := task.Snapshot()
	snap.File.NodeIDs[0] = "changed"
	snap.Progress = 50

	assert.Equal(t, "node_x", task.File.NodeIDs[0])
	assert.Equal(t, 0.0, task.Progress)
}

func TestLedgerExactlyOnce(t *testing.T) {
	l := NewLedger()
	task := NewTask(testFile())
	require.NoError(t, l.Add(task))
	assert.ErrorIs(t, l.Add(task), ErrDuplicateTask)

	done, ok := l.Complete(task.ID)
	require.True(t, ok)
	assert.Equal(t, StatusCompleted, done.Status)
	assert.Equal(t, 100.0, done.Progress)

	_, ok = l.Complete(task.ID)
	assert.False(t, ok, "a task completes once")

	_, ok = l.Active(task.ID)
	assert.False(t, ok)
	_, ok = l.Completed(task.ID)
	assert.True(t, ok)

	_, ok = l.Remove(task.ID, StatusCancelled)
	assert.False(t, ok, "completed tasks cannot be cancelled")
	assert.ErrorIs(t, l.Add(task), ErrDuplicateTask)
}

func TestLedgerRemove(t *testing.T) {
	l := NewLedger()
	task := NewTask(testFile())
	require.NoError(t, l.Add(task))

	removed, ok := l.Remove(task.ID, StatusCancelled)
	require.True(t, ok)
	assert.Equal(t, StatusCancelled, removed.Status)

	_, ok = l.Complete(task.ID)
	assert.False(t, ok, "completion after cancellation is a no-op")
	assert.Empty(t, l.ActiveTasks())
	assert.Empty(t, l.CompletedTasks())
}

func TestLedgerTasksOrdered(t *testing.T) {
	l := NewLedger()
	first := NewTask(testFile())
	second := NewTask(testFile())
	second.StartedAt = first.StartedAt.Add(time.Second)
	require.NoError(t, l.Add(second))
	require.NoError(t, l.Add(first))

	tasks := l.ActiveTasks()
	require.Len(t, tasks, 2)
	assert.Equal(t, first.ID, tasks[0].ID)
	assert.Equal(t, second.ID, tasks[1].ID)
}

func TestFallbackCompletesWithinBoundedTicks(t *testing.T) {
	l := NewLedger()
	sched := &manualScheduler{}
	completed := 0
	var progress []float64

	fb := NewFallback(l, FallbackOptions{
		Rand:       func() float64 { return 0 },
		Scheduler:  sched,
		OnProgress: func(t *Task) { progress = append(progress, t.Progress) },
		OnComplete: func(t *Task) {
			completed++
			l.Complete(t.ID)
		},
	})

	task := NewTask(protocol.RemoteFile{ID: "mock_1", Name: "Shape of You"})
	require.NoError(t, l.Add(task))
	require.True(t, fb.Start(task.ID))
	assert.False(t, fb.Start(task.ID), "already running")
	assert.True(t, task.Fallback)

	ticks := 0
	for sched.runNext() {
		ticks++
		require.LessOrEqual(t, ticks, 100)
	}

	assert.Equal(t, 100, ticks, "minimum step of 1 bounds the run at 100 ticks")
	assert.Equal(t, 1, completed)
	assert.False(t, fb.Running(task.ID))
	for i := 1; i < len(progress); i++ {
		assert.GreaterOrEqual(t, progress[i], progress[i-1])
	}
	_, ok := l.Completed(task.ID)
	assert.True(t, ok)
}

func TestFallbackStepBounds(t *testing.T) {
	fb := NewFallback(NewLedger(), FallbackOptions{Rand: func() float64 { return 0.99 }})
	assert.InDelta(t, 9.9, fb.Step(), 0.0001)

	fb = NewFallback(NewLedger(), FallbackOptions{Rand: func() float64 { return 0.05 }})
	assert.Equal(t, DefaultFallbackMinStep, fb.Step())
}

func TestFallbackStopsWhenTaskLeavesLedger(t *testing.T) {
	l := NewLedger()
	sched := &manualScheduler{}
	completed := 0
	fb := NewFallback(l, FallbackOptions{
		Rand:       func() float64 { return 0.5 },
		Scheduler:  sched,
		OnComplete: func(*Task) { completed++ },
	})

	task := NewTask(testFile())
	require.NoError(t, l.Add(task))
	require.True(t, fb.Start(task.ID))
	require.True(t, sched.runNext())

	l.Remove(task.ID, StatusCancelled)
	assert.True(t, sched.runNext(), "the pending tick still fires")
	assert.False(t, sched.runNext(), "but schedules nothing further")
	assert.Equal(t, 0, completed)
	assert.False(t, fb.Running(task.ID))
}

func TestFallbackStop(t *testing.T) {
	l := NewLedger()
	sched := &manualScheduler{}
	fb := NewFallback(l, FallbackOptions{Scheduler: sched})

	task := NewTask(testFile())
	require.NoError(t, l.Add(task))
	require.True(t, fb.Start(task.ID))
	fb.StopAll()

	assert.False(t, sched.runNext())
	assert.False(t, fb.Start("download_missing"))
}

func TestFileDeliverer(t *testing.T) {
	dir := t.TempDir()
	d := FileDeliverer{Dir: filepath.Join(dir, "downloads")}

	task := NewTask(protocol.RemoteFile{Name: "../song.wav"})
	path, err := d.Deliver(context.Background(), task)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "downloads", "song.wav"), path)

	stat, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, int64(wavSize), stat.Size())

	f, err := os.Open(path)
	require.NoError(t, err)
	defer func() { _ = f.Close() }()
	header := make([]byte, 12)
	_, err = f.Read(header)
	require.NoError(t, err)
	assert.Equal(t, "RIFF", string(header[:4]))
	assert.Equal(t, "WAVE", string(header[8:12]))
}

func TestPlaceholder(t *testing.T) {
	header, size := Placeholder("a.mp3")
	assert.Equal(t, "ID3", string(header[:3]))
	assert.Equal(t, int64(mp3Size), size)

	header, size = Placeholder("a.flac")
	assert.Equal(t, "fLaC", string(header))
	assert.Equal(t, int64(flacSize), size)

	header, size = Placeholder("Shape of You")
	assert.Nil(t, header)
	assert.Equal(t, int64(genericSize), size)
}

func TestDiscard(t *testing.T) {
	path, err := Discard{}.Deliver(context.Background(), NewTask(testFile()))
	assert.NoError(t, err)
	assert.Empty(t, path)
}

// failingFile buffers writes and fails on Close, like a flush that did not
// reach the disk.
type failingFile struct {
	data   []byte
	offset int64
}

func (f *failingFile) Write(p []byte) (int, error) {
	if end := f.offset + int64(len(p)); end > int64(len(f.data)) {
		f.data = append(f.data, make([]byte, end-int64(len(f.data)))...)
	}
	copy(f.data[f.offset:], p)
	f.offset += int64(len(p))
	return len(p), nil
}

func (f *failingFile) Seek(offset int64, _ int) (int64, error) {
	f.offset = offset
	return offset, nil
}

func (f *failingFile) Close() error {
	return errFlush
}

var errFlush = errors.New("flush failed")

func TestPreallocateReportsCloseError(t *testing.T) {
	f := &failingFile{}
	err := preallocate(f, 64, []byte("RIFF"))
	assert.ErrorIs(t, err, errFlush)
	assert.Len(t, f.data, 64)

	path := filepath.Join(t.TempDir(), "ok.wav")
	require.NoError(t, CreatePreallocatedFile(path, 64, []byte("RIFF")))
	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, int64(64), info.Size())
}

package node

import (
	"bytes"
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rudransh-shrivastava/peer-share/internal/config"
	"github.com/rudransh-shrivastava/peer-share/internal/logger"
	"github.com/rudransh-shrivastava/peer-share/internal/protocol"
	"github.com/rudransh-shrivastava/peer-share/internal/tracker"
	"github.com/rudransh-shrivastava/peer-share/internal/transfer"
	"github.com/rudransh-shrivastava/peer-share/internal/transport/transporttest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startTracker(t *testing.T) (*tracker.Server, string) {
	t.Helper()
	srv := tracker.NewServer(tracker.Config{
		HeartbeatInterval: time.Second,
		Logger:            logger.Discard(),
	})
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return srv, "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
}

func startNode(t *testing.T, url, id string, network *transporttest.Network, tune func(*config.NodeConfig)) (*Node, *recorder) {
	t.Helper()
	cfg := testConfig()
	cfg.TrackerURL = url
	cfg.NegotiationTimeout = 2 * time.Second
	cfg.ResponderDelay = 200 * time.Millisecond
	cfg.FallbackInterval = 20 * time.Millisecond
	if tune != nil {
		tune(&cfg)
	}

	rec := newRecorder()
	n, err := New(Options{
		NodeID:    id,
		Config:    cfg,
		Transport: network.Factory(),
		Observer:  rec,
		Logger:    logger.Discard(),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = n.Shutdown() })

	require.NoError(t, n.Start(context.Background()))
	require.Eventually(t, func() bool {
		ok, err := n.Connected(context.Background())
		return err == nil && ok
	}, 2*time.Second, 10*time.Millisecond, "%s never connected", id)
	return n, rec
}

// waitForFile polls the tracker through n until fingerprint is listed.
func waitForFile(t *testing.T, n *Node, fingerprint string) protocol.RemoteFile {
	t.Helper()
	var found protocol.RemoteFile
	require.Eventually(t, func() bool {
		files, err := n.ListAll(context.Background())
		if err != nil {
			return false
		}
		for _, f := range files {
			if f.ID == fingerprint {
				found = f
				return true
			}
		}
		return false
	}, 3*time.Second, 20*time.Millisecond)
	return found
}

func TestScenarioSearchFindsSharedFile(t *testing.T) {
	_, url := startTracker(t)
	network := transporttest.NewNetwork()
	x, _ := startNode(t, url, "node_x", network, nil)
	y, _ := startNode(t, url, "node_y", network, nil)
	ctx := context.Background()

	shared, err := x.Share(ctx, writeFile(t, "song.mp3", bytes.Repeat([]byte{1}, 4_000_000)))
	require.NoError(t, err)

	var results []protocol.RemoteFile
	require.Eventually(t, func() bool {
		results, err = y.Search(ctx, "song")
		return err == nil && len(results) == 1
	}, 3*time.Second, 20*time.Millisecond)

	assert.Equal(t, shared.Fingerprint, results[0].ID)
	assert.Equal(t, "song.mp3", results[0].Name)
	assert.Equal(t, int64(4_000_000), results[0].ActualSize)
	assert.Equal(t, []string{"node_x"}, results[0].NodeIDs)
	assert.Equal(t, 1, results[0].Sources)
}

func TestScenarioDirectDownload(t *testing.T) {
	_, url := startTracker(t)
	network := transporttest.NewNetwork()
	x, _ := startNode(t, url, "node_x", network, nil)
	y, yrec := startNode(t, url, "node_y", network, nil)
	ctx := context.Background()

	shared, err := x.Share(ctx, writeFile(t, "song.mp3", []byte("direct bytes")))
	require.NoError(t, err)
	file := waitForFile(t, y, shared.Fingerprint)

	start := time.Now()
	task, err := y.Download(ctx, file)
	require.NoError(t, err)

	done := waitForStatus(t, y, task.ID, transfer.StatusCompleted, 3*time.Second)
	assert.False(t, done.Fallback, "direct download never touches the fallback path")
	assert.Equal(t, 100.0, done.Progress)
	assert.Less(t, time.Since(start), 3*time.Second)
	requireMonotonic(t, yrec.progressOf(task.ID))

	require.Eventually(t, func() bool {
		var xs, ys int
		_ = x.loop.call(ctx, func() { xs = x.registry.Len() })
		_ = y.loop.call(ctx, func() { ys = y.registry.Len() })
		return xs == 0 && ys == 0
	}, 2*time.Second, 10*time.Millisecond, "connections are released after the transfer")
}

func TestScenarioMissingFileFails(t *testing.T) {
	_, url := startTracker(t)
	network := transporttest.NewNetwork()
	x, _ := startNode(t, url, "node_x", network, nil)
	y, yrec := startNode(t, url, "node_y", network, nil)
	ctx := context.Background()

	shared, err := x.Share(ctx, writeFile(t, "song.mp3", []byte("soon gone")))
	require.NoError(t, err)
	file := waitForFile(t, y, shared.Fingerprint)
	require.NoError(t, x.Unshare(ctx, shared.Fingerprint))

	task, err := y.Download(ctx, file)
	require.NoError(t, err)

	failed := waitForStatus(t, y, task.ID, transfer.StatusFailed, 3*time.Second)
	assert.False(t, failed.Fallback)

	tasks, err := y.Tasks(ctx)
	require.NoError(t, err)
	assert.Empty(t, tasks.Active)
	assert.Empty(t, tasks.Completed)
	assert.Equal(t, 1, yrec.titled("Download failed"))
}

func TestScenarioUnreachablePeerFallsBack(t *testing.T) {
	_, url := startTracker(t)
	network := transporttest.NewNetwork()
	network.SetUnreachable(true)
	tune := func(c *config.NodeConfig) { c.NegotiationTimeout = 500 * time.Millisecond }
	x, _ := startNode(t, url, "node_x", network, tune)
	y, yrec := startNode(t, url, "node_y", network, tune)
	ctx := context.Background()

	shared, err := x.Share(ctx, writeFile(t, "song.mp3", []byte("far away")))
	require.NoError(t, err)
	file := waitForFile(t, y, shared.Fingerprint)

	task, err := y.Download(ctx, file)
	require.NoError(t, err)

	done := waitForStatus(t, y, task.ID, transfer.StatusCompleted, 5*time.Second)
	assert.True(t, done.Fallback)
	requireMonotonic(t, yrec.progressOf(task.ID))
}

func TestScenarioAbsentSourceFallsBack(t *testing.T) {
	_, url := startTracker(t)
	network := transporttest.NewNetwork()
	y, yrec := startNode(t, url, "node_y", network, func(c *config.NodeConfig) {
		c.NegotiationTimeout = 300 * time.Millisecond
	})
	ctx := context.Background()

	file := song
	file.NodeIDs = []string{"node_gone"}
	task, err := y.Download(ctx, file)
	require.NoError(t, err)

	require.Eventually(t, func() bool { return yrec.titled("Peer error") == 1 }, 2*time.Second, 10*time.Millisecond)
	done := waitForStatus(t, y, task.ID, transfer.StatusCompleted, 3*time.Second)
	assert.True(t, done.Fallback)
}

func TestScenarioReconnectAfterTrackerDrop(t *testing.T) {
	srv, url := startTracker(t)
	network := transporttest.NewNetwork()
	y, yrec := startNode(t, url, "node_y", network, nil)
	require.Equal(t, 1, yrec.titled("Connected"))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, srv.Shutdown(ctx))

	require.Eventually(t, func() bool { return yrec.titled("Connected") == 2 }, 2*time.Second, 10*time.Millisecond)
	time.Sleep(5 * testConfig().ReconnectDelay)
	assert.Equal(t, 2, yrec.titled("Connected"), "one successful reconnect, one notification")
	assert.Equal(t, 1, yrec.titled("Disconnected"))

	connected, err := y.Connected(context.Background())
	require.NoError(t, err)
	assert.True(t, connected)
}

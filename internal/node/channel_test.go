package node

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rudransh-shrivastava/peer-share/internal/protocol"
	"github.com/rudransh-shrivastava/peer-share/internal/transfer"
	"github.com/rudransh-shrivastava/peer-share/internal/transport"
	"github.com/rudransh-shrivastava/peer-share/internal/transport/transporttest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// servingPeer plays node_x by hand: it answers the node's offer from a bare
// connection and calls serve when the node asks for a file.
type servingPeer struct {
	conn  transport.Connection
	serve func(ch transport.DataChannel, req protocol.RequestFile)

	mu       sync.Mutex
	requests []protocol.RequestFile
}

func answerOffer(t *testing.T, network *transporttest.Network, sig *fakeSignaler, serve func(transport.DataChannel, protocol.RequestFile)) *servingPeer {
	t.Helper()
	require.Eventually(t, func() bool { return sig.count(protocol.KindOffer) == 1 }, time.Second, 5*time.Millisecond)
	offer := sig.last(protocol.KindOffer).(protocol.Offer)

	conn, err := network.Factory().NewConnection()
	require.NoError(t, err)
	p := &servingPeer{conn: conn, serve: serve}

	codec := protocol.NewChannelCodec()
	conn.OnDataChannel(func(ch transport.DataChannel) {
		ch.OnMessage(func(msg transport.Message) {
			decoded, err := codec.DecodeFromBytes(msg.Data)
			if err != nil {
				return
			}
			req, ok := decoded.(*protocol.RequestFile)
			if !ok {
				return
			}
			p.mu.Lock()
			p.requests = append(p.requests, *req)
			p.mu.Unlock()
			if p.serve != nil {
				p.serve(ch, *req)
			}
		})
	})

	require.NoError(t, conn.SetRemoteDescription(offer.Offer))
	desc, err := conn.CreateAnswer()
	require.NoError(t, err)
	sig.deliver(t, protocol.Answer{SourceNodeID: "node_x", Answer: desc})
	return p
}

func (p *servingPeer) requested() []protocol.RequestFile {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]protocol.RequestFile(nil), p.requests...)
}

func directConfig() Options {
	cfg := testConfig()
	cfg.NegotiationTimeout = time.Minute
	cfg.FallbackInterval = time.Hour
	return Options{Config: cfg}
}

func TestChannelPayloadCompletesDownload(t *testing.T) {
	tests := []struct {
		name  string
		reply func(ch transport.DataChannel) error
	}{
		{
			name:  "binary frame",
			reply: func(ch transport.DataChannel) error { return ch.Send([]byte{0xff, 0xfb, 0x90, 0x00}) },
		},
		{
			name:  "text that is not json",
			reply: func(ch transport.DataChannel) error { return ch.SendText("not json") },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			network := transporttest.NewNetwork()
			opts := directConfig()
			opts.Transport = network.Factory()
			n, sig, rec := newTestNode(t, opts)
			sig.open()

			task, err := n.Download(context.Background(), song)
			require.NoError(t, err)
			remote := answerOffer(t, network, sig, func(ch transport.DataChannel, _ protocol.RequestFile) {
				assert.NoError(t, tt.reply(ch))
			})

			done := waitForStatus(t, n, task.ID, transfer.StatusCompleted, 2*time.Second)
			assert.False(t, done.Fallback)
			assert.Equal(t, 100.0, done.Progress)
			require.Len(t, remote.requested(), 1)
			assert.Equal(t, song.ID, remote.requested()[0].FileID)
			assert.Zero(t, rec.titled("Switching download method"))
		})
	}
}

func TestChannelProgressIsMonotonic(t *testing.T) {
	network := transporttest.NewNetwork()
	opts := directConfig()
	opts.Transport = network.Factory()
	n, sig, rec := newTestNode(t, opts)
	sig.open()

	task, err := n.Download(context.Background(), song)
	require.NoError(t, err)

	codec := protocol.NewChannelCodec()
	send := func(ch transport.DataChannel, msg protocol.ChannelMessage) {
		data, err := codec.EncodeToBytes(msg)
		if assert.NoError(t, err) {
			assert.NoError(t, ch.SendText(string(data)))
		}
	}
	var channel transport.DataChannel
	var mu sync.Mutex
	answerOffer(t, network, sig, func(ch transport.DataChannel, _ protocol.RequestFile) {
		mu.Lock()
		channel = ch
		mu.Unlock()
		for _, p := range []float64{30, 10, 150} {
			send(ch, protocol.DownloadProgress{Progress: p})
		}
	})

	require.Eventually(t, func() bool {
		p := rec.progressOf(task.ID)
		return len(p) > 0 && p[len(p)-1] == 100
	}, 2*time.Second, 5*time.Millisecond)

	got, err := n.Task(context.Background(), task.ID)
	require.NoError(t, err)
	assert.Equal(t, transfer.StatusDownloading, got.Status, "progress alone does not finish a download")
	assert.Equal(t, 100.0, got.Progress)

	mu.Lock()
	ch := channel
	mu.Unlock()
	send(ch, protocol.FileData{FileID: song.ID, FileName: song.Name, FileSize: song.ActualSize, Status: protocol.TransferCompleted})

	done := waitForStatus(t, n, task.ID, transfer.StatusCompleted, 2*time.Second)
	assert.False(t, done.Fallback)

	progress := rec.progressOf(task.ID)
	requireMonotonic(t, progress)
	assert.Contains(t, progress, 30.0)
	assert.NotContains(t, progress, 10.0)
}

func TestFileDataForAnotherFileIsIgnored(t *testing.T) {
	network := transporttest.NewNetwork()
	opts := directConfig()
	opts.Transport = network.Factory()
	n, sig, _ := newTestNode(t, opts)
	sig.open()

	task, err := n.Download(context.Background(), song)
	require.NoError(t, err)

	codec := protocol.NewChannelCodec()
	answerOffer(t, network, sig, func(ch transport.DataChannel, _ protocol.RequestFile) {
		data, err := codec.EncodeToBytes(protocol.FileData{FileID: "other", Status: protocol.TransferCompleted})
		if assert.NoError(t, err) {
			assert.NoError(t, ch.SendText(string(data)))
		}
	})

	time.Sleep(100 * time.Millisecond)
	got, err := n.Task(context.Background(), task.ID)
	require.NoError(t, err)
	assert.Equal(t, transfer.StatusDownloading, got.Status)
}

func TestLostPeerHandsDownloadToFallback(t *testing.T) {
	network := transporttest.NewNetwork()
	opts := directConfig()
	opts.Config.FallbackInterval = 10 * time.Millisecond
	opts.Transport = network.Factory()
	n, sig, rec := newTestNode(t, opts)
	sig.open()

	task, err := n.Download(context.Background(), song)
	require.NoError(t, err)

	requested := make(chan struct{}, 1)
	remote := answerOffer(t, network, sig, func(transport.DataChannel, protocol.RequestFile) {
		requested <- struct{}{}
	})

	select {
	case <-requested:
	case <-time.After(2 * time.Second):
		t.Fatal("file was never requested")
	}
	require.NoError(t, remote.conn.Close())

	done := waitForStatus(t, n, task.ID, transfer.StatusCompleted, 2*time.Second)
	assert.True(t, done.Fallback)
	assert.Equal(t, 1, rec.titled("Peer disconnected"))
	assert.Equal(t, 1, rec.titled("Switching download method"))
}

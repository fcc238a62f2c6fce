package node

import (
	"context"

	"github.com/rudransh-shrivastava/peer-share/internal/catalog"
	"github.com/rudransh-shrivastava/peer-share/internal/protocol"
)

// Share fingerprints the file at path, stores it in the local catalog and
// announces it to the tracker when connected. Sharing the same content again
// replaces the earlier record.
func (n *Node) Share(ctx context.Context, path string) (catalog.SharedFile, error) {
	f, err := catalog.NewSharedFile(path, n.id)
	if err != nil {
		return catalog.SharedFile{}, err
	}

	if err := n.catalog.Share(ctx, f); err != nil {
		return catalog.SharedFile{}, err
	}

	err = n.loop.call(ctx, func() {
		n.notify(LevelSuccess, "File shared", f.Name+" is now shared")
		if !n.connected {
			return
		}
		if err := n.signaler.Send(protocol.FileShared{File: f.Info()}); err != nil {
			n.log.Warnf("Failed to announce %s: %v", f.Name, err)
		}
	})
	return f, err
}

// Unshare removes a file from the local catalog. The tracker keeps listing it
// until this node disconnects.
func (n *Node) Unshare(ctx context.Context, fingerprint string) error {
	removed, err := n.catalog.Unshare(ctx, fingerprint)
	if err != nil {
		return err
	}
	if !removed {
		return catalog.ErrNotShared
	}
	return nil
}

// Shared lists the local catalog.
func (n *Node) Shared(ctx context.Context) ([]catalog.SharedFile, error) {
	return n.catalog.List(ctx)
}

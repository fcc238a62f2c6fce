// Package catalog keeps the set of files this node shares.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rudransh-shrivastava/peer-share/internal/protocol"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var ErrNotShared = errors.New("file is not shared")

// SharedFile is a local file accepted for sharing, keyed by its content
// fingerprint.
type SharedFile struct {
	Fingerprint  string `gorm:"primaryKey;size:64"`
	Name         string `gorm:"not null"`
	Path         string
	Size         int64
	MediaType    string
	LastModified time.Time
	Owner        string `gorm:"index"`
	SharedAt     time.Time
}

// Info is the copy of the record announced to the tracker.
func (f SharedFile) Info() protocol.FileInfo {
	return protocol.FileInfo{
		ID:           f.Fingerprint,
		Name:         f.Name,
		Size:         FormatSize(f.Size),
		ActualSize:   f.Size,
		Type:         f.MediaType,
		LastModified: f.LastModified.UnixMilli(),
		NodeID:       f.Owner,
	}
}

type Catalog struct {
	db *gorm.DB
}

// Open creates a catalog backed by dsn, in memory when dsn is empty.
func Open(dsn string) (*Catalog, error) {
	db, err := OpenDB(dsn)
	if err != nil {
		return nil, err
	}
	return New(db), nil
}

func New(db *gorm.DB) *Catalog {
	return &Catalog{db: db}
}

// Share inserts f, replacing any record with the same fingerprint.
func (c *Catalog) Share(ctx context.Context, f SharedFile) error {
	if len(f.Fingerprint) != protocol.FingerprintSize {
		return fmt.Errorf("invalid fingerprint %q", f.Fingerprint)
	}
	if f.SharedAt.IsZero() {
		f.SharedAt = time.Now()
	}

	err := c.db.WithContext(ctx).
		Clauses(clause.OnConflict{UpdateAll: true}).
		Create(&f).Error
	if err != nil {
		return fmt.Errorf("failed to share %s: %w", f.Name, err)
	}
	return nil
}

// Unshare removes the record locally. It reports whether anything was removed.
func (c *Catalog) Unshare(ctx context.Context, fingerprint string) (bool, error) {
	res := c.db.WithContext(ctx).Delete(&SharedFile{}, "fingerprint = ?", fingerprint)
	if res.Error != nil {
		return false, fmt.Errorf("failed to unshare %s: %w", fingerprint, res.Error)
	}
	return res.RowsAffected > 0, nil
}

func (c *Catalog) Get(ctx context.Context, fingerprint string) (SharedFile, error) {
	var f SharedFile
	err := c.db.WithContext(ctx).First(&f, "fingerprint = ?", fingerprint).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return SharedFile{}, ErrNotShared
	}
	if err != nil {
		return SharedFile{}, fmt.Errorf("failed to get %s: %w", fingerprint, err)
	}
	return f, nil
}

// List returns every shared file in the order it was first shared.
func (c *Catalog) List(ctx context.Context) ([]SharedFile, error) {
	var files []SharedFile
	if err := c.db.WithContext(ctx).Order("shared_at, name").Find(&files).Error; err != nil {
		return nil, fmt.Errorf("failed to list shared files: %w", err)
	}
	return files, nil
}

func (c *Catalog) Len(ctx context.Context) (int, error) {
	var n int64
	if err := c.db.WithContext(ctx).Model(&SharedFile{}).Count(&n).Error; err != nil {
		return 0, err
	}
	return int(n), nil
}

func (c *Catalog) Close() error {
	sqlDB, err := c.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

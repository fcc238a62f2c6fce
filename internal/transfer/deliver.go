package transfer

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rudransh-shrivastava/peer-share/internal/catalog"
)

// Deliverer produces the local result of a completed download.
type Deliverer interface {
	Deliver(ctx context.Context, t *Task) (string, error)
}

// Discard delivers nothing.
type Discard struct{}

func (Discard) Deliver(context.Context, *Task) (string, error) {
	return "", nil
}

// FileDeliverer writes a placeholder file for each completed download into
// Dir. Only the container header is real; the rest is preallocated.
type FileDeliverer struct {
	Dir string
}

const (
	mp3Size     = 3 * 1024 * 1024
	wavSize     = 5 * 1024 * 1024
	flacSize    = 4 * 1024 * 1024
	genericSize = 2 * 1024 * 1024
)

func (d FileDeliverer) Deliver(ctx context.Context, t *Task) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err := os.MkdirAll(d.Dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create download dir: %w", err)
	}

	name := catalog.SafeName(t.File.Name)
	header, size := Placeholder(name)
	path := filepath.Join(d.Dir, name)

	if err := CreatePreallocatedFile(path, size, header); err != nil {
		return "", fmt.Errorf("failed to write %s: %w", path, err)
	}
	return path, nil
}

// Placeholder returns the header and total size used for a synthesized file.
func Placeholder(name string) ([]byte, int64) {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".mp3":
		// ID3v2.3 tag header with an empty body
		return []byte{'I', 'D', '3', 0x03, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00}, mp3Size
	case ".wav":
		return wavHeader(wavSize), wavSize
	case ".flac":
		return []byte("fLaC"), flacSize
	default:
		return nil, genericSize
	}
}

func wavHeader(size int64) []byte {
	const headerLen = 44
	h := make([]byte, headerLen)
	copy(h[0:], "RIFF")
	binary.LittleEndian.PutUint32(h[4:], uint32(size-8))
	copy(h[8:], "WAVE")
	copy(h[12:], "fmt ")
	binary.LittleEndian.PutUint32(h[16:], 16)
	binary.LittleEndian.PutUint16(h[20:], 1)      // PCM
	binary.LittleEndian.PutUint16(h[22:], 2)      // channels
	binary.LittleEndian.PutUint32(h[24:], 44100)  // sample rate
	binary.LittleEndian.PutUint32(h[28:], 176400) // byte rate
	binary.LittleEndian.PutUint16(h[32:], 4)      // block align
	binary.LittleEndian.PutUint16(h[34:], 16)     // bits per sample
	copy(h[36:], "data")
	binary.LittleEndian.PutUint32(h[40:], uint32(size-headerLen))
	return h
}

// CreatePreallocatedFile writes header and extends the file to size bytes.
func CreatePreallocatedFile(path string, size int64, header []byte) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	return preallocate(file, size, header)
}

func preallocate(file io.WriteSeeker, size int64, header []byte) (err error) {
	if c, ok := file.(io.Closer); ok {
		defer func() { err = errors.Join(err, c.Close()) }()
	}

	if _, err := file.Write(header); err != nil {
		return err
	}
	if size > int64(len(header)) {
		if _, err := file.Seek(size-1, io.SeekStart); err != nil {
			return err
		}
		if _, err := file.Write([]byte{0}); err != nil {
			return err
		}
	}
	return nil
}

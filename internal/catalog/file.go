package catalog

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
)

var ErrUnsupportedMedia = errors.New("only audio files can be shared")

var supportedExtensions = map[string]bool{
	".aac":  true,
	".flac": true,
	".mp3":  true,
	".ogg":  true,
	".wav":  true,
}

// Fingerprint returns the hex encoded SHA-256 of everything read from r.
func Fingerprint(r io.Reader) (string, error) {
	hash := sha256.New()
	if _, err := io.Copy(hash, r); err != nil {
		return "", err
	}
	return fmt.Sprintf("%x", hash.Sum(nil)), nil
}

// NewSharedFile fingerprints the file at path and builds its record.
func NewSharedFile(path, owner string) (SharedFile, error) {
	file, err := os.Open(path)
	if err != nil {
		return SharedFile{}, err
	}
	defer func() { _ = file.Close() }()

	stat, err := file.Stat()
	if err != nil {
		return SharedFile{}, err
	}
	if stat.IsDir() {
		return SharedFile{}, fmt.Errorf("%s is a directory", path)
	}

	name := filepath.Base(path)
	mediaType := MediaType(name)
	if !IsSupported(name, mediaType) {
		return SharedFile{}, fmt.Errorf("%w: %s", ErrUnsupportedMedia, name)
	}

	fp, err := Fingerprint(file)
	if err != nil {
		return SharedFile{}, fmt.Errorf("failed to fingerprint %s: %w", name, err)
	}

	return SharedFile{
		Fingerprint:  fp,
		Name:         name,
		Path:         path,
		Size:         stat.Size(),
		MediaType:    mediaType,
		LastModified: stat.ModTime(),
		Owner:        owner,
	}, nil
}

// MediaType guesses a MIME type from the file extension.
func MediaType(name string) string {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".mp3":
		return "audio/mpeg"
	case ".wav":
		return "audio/wav"
	case ".flac":
		return "audio/flac"
	case ".ogg":
		return "audio/ogg"
	case ".m4a":
		return "audio/m4a"
	case ".aac":
		return "audio/aac"
	default:
		return "application/octet-stream"
	}
}

// IsSupported accepts audio by media type or by a known extension.
func IsSupported(name, mediaType string) bool {
	if strings.HasPrefix(mediaType, "audio/") {
		return true
	}
	return supportedExtensions[strings.ToLower(filepath.Ext(name))]
}

// ArtistName treats everything before the first '-' as the artist.
func ArtistName(name string) string {
	artist, _, found := strings.Cut(name, "-")
	if !found {
		return ""
	}
	return strings.TrimSpace(artist)
}

// Matches reports whether term occurs in name or artist, ignoring case.
func Matches(term, name, artist string) bool {
	term = strings.ToLower(term)
	if strings.Contains(strings.ToLower(name), term) {
		return true
	}
	return artist != "" && strings.Contains(strings.ToLower(artist), term)
}

// FormatSize renders a byte count for display, e.g. "4.0 MB".
func FormatSize(size int64) string {
	if size < 0 {
		size = 0
	}
	return humanize.Bytes(uint64(size))
}

// SafeName strips any directory part so a remote name cannot escape dir.
func SafeName(name string) string {
	base := filepath.Base(filepath.Clean("/" + name))
	if base == "/" || base == "." {
		return fmt.Sprintf("download-%d", time.Now().UnixNano())
	}
	return base
}

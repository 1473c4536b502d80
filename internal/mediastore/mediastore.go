// Package mediastore resolves sample identifiers to files under the shared
// media root and enumerates the library for sync imports. Sample ids are
// slash-separated paths relative to the root.
package mediastore

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"curator/internal/config"
	"curator/internal/services"
)

// Entry is one media file found under the root.
type Entry struct {
	SampleID    string
	AbsPath     string
	SidecarPath string
	Size        int64
	ModTime     time.Time
}

// Store locates media on the local filesystem.
type Store struct {
	root string
}

var mediaExtensions = map[string]struct{}{
	".jpg":  {},
	".jpeg": {},
	".png":  {},
	".bmp":  {},
	".webp": {},
	".mp4":  {},
	".mkv":  {},
}

// New constructs a store rooted at the configured media directory.
func New(cfg *config.Config) *Store {
	return &Store{root: cfg.Paths.MediaRoot}
}

// Root returns the media root directory.
func (s *Store) Root() string {
	return s.root
}

// Resolve maps a sample id to an absolute media path, verifying the file
// exists and stays inside the root.
func (s *Store) Resolve(sampleID string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(sampleID))
	if clean == "." || strings.HasPrefix(clean, "..") || filepath.IsAbs(clean) {
		return "", services.Wrap(services.ErrValidation, "mediastore", "resolve", fmt.Sprintf("invalid sample id %q", sampleID), nil)
	}
	abs := filepath.Join(s.root, clean)
	if _, err := os.Stat(abs); err != nil {
		if os.IsNotExist(err) {
			return "", services.Wrap(services.ErrNotFound, "mediastore", "resolve", fmt.Sprintf("media for sample %s", sampleID), nil)
		}
		return "", fmt.Errorf("stat %s: %w", abs, err)
	}
	return abs, nil
}

// ListAll walks the media root and returns every media file with its sidecar
// path when one sits next to it. Results are sorted by sample id.
func (s *Store) ListAll(ctx context.Context) ([]Entry, error) {
	if _, err := os.Stat(s.root); os.IsNotExist(err) {
		return nil, nil
	}

	var entries []Entry
	err := filepath.WalkDir(s.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if d.IsDir() {
			return nil
		}
		ext := strings.ToLower(filepath.Ext(path))
		if _, ok := mediaExtensions[ext]; !ok {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(s.root, path)
		if err != nil {
			return err
		}
		entry := Entry{
			SampleID: filepath.ToSlash(rel),
			AbsPath:  path,
			Size:     info.Size(),
			ModTime:  info.ModTime(),
		}
		sidecar := strings.TrimSuffix(path, ext) + ".anno"
		if _, err := os.Stat(sidecar); err == nil {
			entry.SidecarPath = sidecar
		}
		entries = append(entries, entry)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk media root: %w", err)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].SampleID < entries[j].SampleID })
	return entries, nil
}

// Checksum computes the SHA-256 digest of a file, hex encoded.
func Checksum(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("hash %s: %w", path, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

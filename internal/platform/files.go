// Package platform holds the thin shims to platform facilities the model
// treats as external collaborators: cache-file writes for export/share and
// picked-file reads for import, plus the lifecycle notifier feeding the
// sync manager.
package platform

import (
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// Picked describes a user-picked file. Pickers hand back either a
// filesystem path or the content inline as base64; both must work.
type Picked struct {
	Path         string
	InlineBase64 string
}

// Files writes export payloads to a shareable cache location and reads
// picked files back.
type Files interface {
	// WriteCache stores data under name in the cache area and returns a
	// reference usable by a share collaborator.
	WriteCache(name string, data []byte) (string, error)
	// ReadPicked returns the bytes of a picked file.
	ReadPicked(p Picked) ([]byte, error)
}

// LocalFiles implements Files on the local filesystem.
type LocalFiles struct {
	CacheDir string
}

// NewLocalFiles creates a Files backed by cacheDir.
func NewLocalFiles(cacheDir string) *LocalFiles {
	return &LocalFiles{CacheDir: cacheDir}
}

func (f *LocalFiles) WriteCache(name string, data []byte) (string, error) {
	if err := os.MkdirAll(f.CacheDir, 0755); err != nil {
		return "", fmt.Errorf("create cache directory: %w", err)
	}
	path := filepath.Join(f.CacheDir, name)

	// Write-then-rename so a crashed export never leaves a torn file.
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return "", fmt.Errorf("write cache file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return "", fmt.Errorf("finalize cache file: %w", err)
	}
	return path, nil
}

func (f *LocalFiles) ReadPicked(p Picked) ([]byte, error) {
	if p.Path != "" {
		data, err := os.ReadFile(p.Path)
		if err != nil {
			return nil, fmt.Errorf("read picked file: %w", err)
		}
		return data, nil
	}
	if p.InlineBase64 != "" {
		data, err := base64.StdEncoding.DecodeString(p.InlineBase64)
		if err != nil {
			return nil, fmt.Errorf("decode inline payload: %w", err)
		}
		return data, nil
	}
	return nil, errors.New("picked file has neither path nor inline data")
}

package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/noah-isme/tutor-materials-api/internal/models"
)

// LocalStorage persists blobs on disk under a base directory.
type LocalStorage struct {
	baseDir string
}

// NewLocalStorage ensures the base directory exists and returns a handle.
func NewLocalStorage(baseDir string) (*LocalStorage, error) {
	if baseDir == "" {
		baseDir = "./blobs"
	}
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("create blob directory: %w", err)
	}
	return &LocalStorage{baseDir: baseDir}, nil
}

// Put streams r into a new blob and returns its reference.
func (s *LocalStorage) Put(ctx context.Context, r io.Reader, mimeType, name string) (models.BlobRef, error) {
	if err := ctx.Err(); err != nil {
		return models.BlobRef{}, err
	}
	ref := models.BlobRef{
		ID:           uuid.NewString() + strings.ToLower(filepath.Ext(name)),
		MimeType:     mimeType,
		OriginalName: filepath.Base(name),
	}
	path := s.resolve(ref.ID)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return models.BlobRef{}, fmt.Errorf("prepare blob directory: %w", err)
	}
	file, err := os.Create(path)
	if err != nil {
		return models.BlobRef{}, fmt.Errorf("create blob file: %w", err)
	}
	n, copyErr := io.Copy(file, r)
	closeErr := file.Close()
	if copyErr != nil || closeErr != nil {
		_ = os.Remove(path)
		if copyErr == nil {
			copyErr = closeErr
		}
		return models.BlobRef{}, fmt.Errorf("write blob stream: %w", copyErr)
	}
	ref.Size = n
	return ref, nil
}

// Open returns a read-only handle for the stored blob.
func (s *LocalStorage) Open(ref models.BlobRef) (*os.File, error) {
	file, err := os.Open(s.resolve(ref.ID))
	if err != nil {
		return nil, fmt.Errorf("open blob %s: %w", ref.ID, err)
	}
	return file, nil
}

// Release removes a stored blob; releasing a missing blob is not an error.
func (s *LocalStorage) Release(ctx context.Context, ref models.BlobRef) error {
	if ref.IsZero() {
		return nil
	}
	if err := os.Remove(s.resolve(ref.ID)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("release blob %s: %w", ref.ID, err)
	}
	return nil
}

// Exists reports whether the blob is still stored.
func (s *LocalStorage) Exists(ref models.BlobRef) bool {
	_, err := os.Stat(s.resolve(ref.ID))
	return err == nil
}

// resolve shards blobs by the first two characters of their id.
func (s *LocalStorage) resolve(id string) string {
	id = filepath.Base(id)
	if len(id) < 2 {
		return filepath.Join(s.baseDir, id)
	}
	return filepath.Join(s.baseDir, id[:2], id)
}

package memory

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/tendant/simple-blocks/pkg/blocks"
)

// Store is an in-memory implementation of the blocks.MediaStore interface.
// It only tracks file metadata; bytes are counted and discarded.
type Store struct {
	mu      sync.RWMutex
	files   map[string]blocks.MediaInfo
	baseURL string
}

// New creates a new in-memory media store. baseURL prefixes the URLs it
// hands out; it defaults to "memory://".
func New(baseURL string) *Store {
	if baseURL == "" {
		baseURL = "memory://"
	}
	return &Store{
		files:   make(map[string]blocks.MediaInfo),
		baseURL: baseURL,
	}
}

// Put registers a file, recording the size of r.
func (s *Store) Put(ctx context.Context, fileID, contentType string, r io.Reader) error {
	if fileID == "" {
		return fmt.Errorf("file id is required")
	}
	n, err := io.Copy(io.Discard, r)
	if err != nil {
		return err
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.files[fileID] = blocks.MediaInfo{
		FileID:      fileID,
		Size:        n,
		ContentType: contentType,
		UpdatedAt:   time.Now().UTC(),
	}
	return nil
}

// Delete forgets a file.
func (s *Store) Delete(ctx context.Context, fileID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.files[fileID]; !ok {
		return blocks.ErrMediaNotFound
	}
	delete(s.files, fileID)
	return nil
}

func (s *Store) Stat(ctx context.Context, fileID string) (*blocks.MediaInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	info, ok := s.files[fileID]
	if !ok {
		return nil, blocks.ErrMediaNotFound
	}
	return &info, nil
}

func (s *Store) URL(ctx context.Context, fileID string) (string, error) {
	if _, err := s.Stat(ctx, fileID); err != nil {
		return "", err
	}
	return strings.TrimSuffix(s.baseURL, "/") + "/" + url.PathEscape(fileID), nil
}

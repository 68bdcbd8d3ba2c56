package storage

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"strings"

	"github.com/viant/afs"
	"github.com/viant/afs/file"
	"github.com/viant/afs/url"
)

// ResultStore persists normalized result masks and merge outputs. Refs
// are afs URLs, so the base can point at the local filesystem, mem:// in
// tests, or an object store without code changes.
type ResultStore struct {
	fs      afs.Service
	baseURL string
}

// NewResultStore creates a result store rooted at baseURL.
func NewResultStore(baseURL string) *ResultStore {
	return &ResultStore{fs: afs.New(), baseURL: baseURL}
}

// SaveResult stores a session's normalized mask under the owning
// assignment and returns its ref.
func (s *ResultStore) SaveResult(ctx context.Context, assignmentID, sessionID string, data []byte) (string, error) {
	ref := url.Join(s.baseURL, assignmentID, fmt.Sprintf("session_%s.png", sessionID))
	if err := s.fs.Upload(ctx, ref, file.DefaultFileOsMode, bytes.NewReader(data)); err != nil {
		return "", fmt.Errorf("failed to store result: %w", err)
	}
	return ref, nil
}

// SaveMerge stores the consensus merge for an assignment, named after its
// tile, and returns its ref.
func (s *ResultStore) SaveMerge(ctx context.Context, assignmentID, tileRef string, data []byte) (string, error) {
	tile := strings.TrimSuffix(path.Base(tileRef), path.Ext(tileRef))
	ref := url.Join(s.baseURL, assignmentID, tile+"_merge.png")
	if err := s.fs.Upload(ctx, ref, file.DefaultFileOsMode, bytes.NewReader(data)); err != nil {
		return "", fmt.Errorf("failed to store merge: %w", err)
	}
	return ref, nil
}

// Open reads back a stored ref.
func (s *ResultStore) Open(ctx context.Context, ref string) ([]byte, error) {
	data, err := s.fs.DownloadWithURL(ctx, ref)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", ref, err)
	}
	return data, nil
}

// Delete removes a stored ref. Best effort cleanup on failed closes.
func (s *ResultStore) Delete(ctx context.Context, ref string) error {
	return s.fs.Delete(ctx, ref)
}

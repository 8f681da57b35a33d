package storage

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// FSStore is an ObjectStore backed by a local directory. It serves local and
// single-node deployments; keys map to file paths relative to Root.
type FSStore struct {
	Root string
}

// NewFSStore creates (if needed) the root directory and returns a store over it.
func NewFSStore(root string) (*FSStore, error) {
	if strings.TrimSpace(root) == "" {
		return nil, errors.New("storage root must not be empty")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, err
	}
	return &FSStore{Root: root}, nil
}

// Put writes data to Root/key, creating parent directories as needed.
func (s *FSStore) Put(_ context.Context, key string, data []byte) (string, error) {
	p, err := s.path(key)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return "", err
	}
	if err := os.WriteFile(p, data, 0o644); err != nil {
		return "", err
	}
	return key, nil
}

// Get reads the blob at Root/key.
func (s *FSStore) Get(_ context.Context, key string) ([]byte, error) {
	p, err := s.path(key)
	if err != nil {
		return nil, err
	}
	return os.ReadFile(p)
}

// Delete removes Root/key; a missing file is not an error.
func (s *FSStore) Delete(_ context.Context, key string) error {
	p, err := s.path(key)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

// path resolves key under Root and rejects traversal outside of it.
func (s *FSStore) path(key string) (string, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return "", errors.New("object key must not be empty")
	}
	p := filepath.Join(s.Root, filepath.FromSlash(key))
	rootAbs, err := filepath.Abs(s.Root)
	if err != nil {
		return "", err
	}
	pAbs, err := filepath.Abs(p)
	if err != nil {
		return "", err
	}
	if pAbs != rootAbs && !strings.HasPrefix(pAbs, rootAbs+string(filepath.Separator)) {
		return "", errors.New("object key escapes storage root")
	}
	return p, nil
}

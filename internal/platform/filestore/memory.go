package filestore

import (
	"context"
	"sync"
)

// MemoryStore is a thread-safe, in-memory Store for testing and development.
// URLs are served under a /file_store/ prefix so that RelativePath round-trips
// the same way it does against the real service.
type MemoryStore struct {
	mu    sync.RWMutex
	blobs map[string][]byte
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{blobs: make(map[string][]byte)}
}

func (s *MemoryStore) Put(_ context.Context, data []byte, fileName, dir string) (*StoredFile, error) {
	path := fileName
	if dir != "" {
		path = dir + "/" + fileName
	}

	buf := make([]byte, len(data))
	copy(buf, data)

	s.mu.Lock()
	s.blobs[path] = buf
	s.mu.Unlock()

	return &StoredFile{URL: "/file_store/" + path, Path: path}, nil
}

func (s *MemoryStore) Get(_ context.Context, fileURL string) ([]byte, error) {
	path := RelativePath(fileURL)
	path = trimMount(path)

	s.mu.RLock()
	data, ok := s.blobs[path]
	s.mu.RUnlock()

	if !ok {
		return nil, ErrNotFound
	}

	buf := make([]byte, len(data))
	copy(buf, data)
	return buf, nil
}

func (s *MemoryStore) Remove(_ context.Context, filePath string) error {
	if filePath == "" {
		return ErrMissingPath
	}
	path := trimMount(RelativePath(filePath))

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.blobs[path]; !ok {
		return ErrNothingDeleted
	}
	delete(s.blobs, path)
	return nil
}

// Len reports the number of stored blobs.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.blobs)
}

// trimMount strips the /file_store/ prefix from relative URLs that still
// carry the mount point.
func trimMount(p string) string {
	const mount = "file_store/"
	if len(p) > len(mount) && p[:len(mount)] == mount {
		return p[len(mount):]
	}
	return p
}

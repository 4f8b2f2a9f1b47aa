package filestore

import (
	"context"
	"io"
	"path"
	"sync"

	"github.com/pkg/errors"

	"github.com/skoolpay/skoolpay/core/plan"
)

// MemoryStore keeps blobs in a map. For tests.
type MemoryStore struct {
	mu    sync.Mutex
	files map[string][]byte

	// Fail makes every Save return an error, to exercise dependency-failure paths.
	Fail error
}

var _ plan.FileStorage = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{files: make(map[string][]byte)}
}

func (s *MemoryStore) Save(ctx context.Context, applicationID, docType, filename string, content io.Reader) (string, error) {
	if s.Fail != nil {
		return "", s.Fail
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	data, err := io.ReadAll(content)
	if err != nil {
		return "", errors.Wrap(err, "reading file")
	}

	ref := path.Join(applicationID, docType, path.Base(filename))
	s.mu.Lock()
	s.files[ref] = data
	s.mu.Unlock()
	return ref, nil
}

// Get returns a stored blob by reference.
func (s *MemoryStore) Get(ref string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.files[ref]
	return data, ok
}

// Len reports the number of stored blobs.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.files)
}

package filestore

import (
	"context"
	"io"
	"os"
	"path/filepath"

	"github.com/pkg/errors"

	"github.com/skoolpay/skoolpay/core/plan"
)

// localStore writes document blobs to disk under
// <root>/<applicationID>/<docType>/<filename> and returns that relative path
// as the file reference. The write goes through a temp file and a rename so a
// reference is only ever handed out for a fully written file.
type localStore struct {
	root string
}

var _ plan.FileStorage = (*localStore)(nil)

func NewLocalStore(root string) (*localStore, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, errors.Wrap(err, "creating upload dir")
	}
	return &localStore{root: root}, nil
}

func (s *localStore) Save(ctx context.Context, applicationID, docType, filename string, content io.Reader) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	dir := filepath.Join(s.root, applicationID, docType)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", errors.Wrap(err, "creating document dir")
	}

	dst := filepath.Join(dir, filepath.Base(filename))
	tmp, err := os.CreateTemp(dir, ".upload-*")
	if err != nil {
		return "", errors.Wrap(err, "creating temp file")
	}
	defer os.Remove(tmp.Name())

	if _, err = io.Copy(tmp, content); err != nil {
		tmp.Close()
		return "", errors.Wrap(err, "writing file")
	}
	if err = tmp.Close(); err != nil {
		return "", errors.Wrap(err, "closing file")
	}
	if err = os.Rename(tmp.Name(), dst); err != nil {
		return "", errors.Wrap(err, "committing file")
	}

	ref, err := filepath.Rel(s.root, dst)
	if err != nil {
		return "", err
	}
	return filepath.ToSlash(ref), nil
}

// Open returns the stored file for a previously returned reference.
func (s *localStore) Open(ref string) (*os.File, error) {
	return os.Open(filepath.Join(s.root, filepath.FromSlash(ref)))
}

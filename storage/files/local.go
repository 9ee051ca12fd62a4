// Package files stores document contents on the local filesystem.
package files

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"

	"github.com/arishrdi/leads-aladdin-sub001/core"
	"github.com/arishrdi/leads-aladdin-sub001/core/document"
)

var ErrNotFound = core.NewNotFoundError("file")

type LocalStore struct {
	root string
}

var _ document.FileStore = (*LocalStore)(nil)

// NewLocalStore returns a store rooted at dir, relative to the project root unless absolute.
func NewLocalStore(conf *core.Config) (*LocalStore, error) {
	root := conf.Storage.DocumentsDir
	if !filepath.IsAbs(root) {
		root = filepath.Join(conf.WorkDir, root)
	}
	if err := os.MkdirAll(root, 0o750); err != nil {
		return nil, errors.Wrap(err, "creating documents directory")
	}
	return &LocalStore{root: root}, nil
}

// path shards keys by their first two characters to keep directories small.
func (s *LocalStore) path(key string) (string, error) {
	if key == "" || strings.ContainsAny(key, `/\`) || strings.HasPrefix(key, ".") {
		return "", errors.Errorf("invalid storage key %q", key)
	}
	shard := key
	if len(shard) > 2 {
		shard = shard[:2]
	}
	return filepath.Join(s.root, shard, key), nil
}

// Save writes r under key; partial files are removed on failure.
func (s *LocalStore) Save(ctx context.Context, key string, r io.Reader) (int64, error) {
	p, err := s.path(key)
	if err != nil {
		return 0, err
	}
	if err = os.MkdirAll(filepath.Dir(p), 0o750); err != nil {
		return 0, errors.Wrap(err, "creating shard directory")
	}

	tmp, err := os.CreateTemp(filepath.Dir(p), "."+key+".*")
	if err != nil {
		return 0, errors.Wrap(err, "creating file")
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	n, err := io.Copy(tmp, ctxReader{ctx: ctx, r: r})
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return 0, errors.Wrap(err, "writing file")
	}
	if err = os.Rename(tmp.Name(), p); err != nil {
		return 0, errors.Wrap(err, "renaming file")
	}
	return n, nil
}

func (s *LocalStore) Open(_ context.Context, key string) (io.ReadCloser, error) {
	p, err := s.path(key)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(p)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, errors.Wrap(err, "opening file")
	}
	return f, nil
}

func (s *LocalStore) Remove(_ context.Context, key string) error {
	p, err := s.path(key)
	if err != nil {
		return err
	}
	if err = os.Remove(p); err != nil {
		if os.IsNotExist(err) {
			return ErrNotFound
		}
		return errors.Wrap(err, "removing file")
	}
	return nil
}

// ctxReader stops reading once ctx is done.
type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (cr ctxReader) Read(p []byte) (int, error) {
	if err := cr.ctx.Err(); err != nil {
		return 0, err
	}
	return cr.r.Read(p)
}

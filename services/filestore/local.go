package filestoresvc

import (
	"context"
	"io"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"

	"github.com/trezcool/somesha/core"
)

var ErrInvalidKey = errors.New("invalid object key")

// LocalStorage keeps objects on disk. They are served back through signed URLs.
type LocalStorage struct {
	dir     string
	baseURL string
	signer  *signer
}

var _ core.FileStorage = (*LocalStorage)(nil)

func NewLocalStorage(dir, baseURL, secretKey string) (*LocalStorage, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrap(err, "creating storage directory")
	}
	return &LocalStorage{dir: dir, baseURL: strings.TrimRight(baseURL, "/"), signer: newSigner(secretKey)}, nil
}

// path maps an object key to its file, refusing keys escaping the storage directory.
func (s *LocalStorage) path(key string) (string, error) {
	clean := path.Clean("/" + key)[1:]
	if clean == "" || clean != key {
		return "", ErrInvalidKey
	}
	return filepath.Join(s.dir, filepath.FromSlash(clean)), nil
}

func (s *LocalStorage) Put(_ context.Context, key string, body io.ReadSeeker, _ int64, contentType string) (core.StoredObject, error) {
	fp, err := s.path(key)
	if err != nil {
		return core.StoredObject{}, err
	}
	if err = os.MkdirAll(filepath.Dir(fp), 0o755); err != nil {
		return core.StoredObject{}, errors.Wrap(err, "creating object directory")
	}

	f, err := os.OpenFile(fp, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return core.StoredObject{}, errors.Wrap(err, "creating object")
	}
	written, err := io.Copy(f, body)
	if cErr := f.Close(); err == nil {
		err = cErr
	}
	if err != nil {
		_ = os.Remove(fp)
		return core.StoredObject{}, errors.Wrap(err, "writing object")
	}
	return core.StoredObject{Key: key, URL: s.URL(key), ContentType: contentType, Size: written}, nil
}

func (s *LocalStorage) Delete(_ context.Context, key string) error {
	fp, err := s.path(key)
	if err != nil {
		return err
	}
	if err = os.Remove(fp); err != nil && !os.IsNotExist(err) {
		return errors.Wrap(err, "deleting object")
	}
	return nil
}

// URL returns the signed URL of the object.
func (s *LocalStorage) URL(key string) string {
	return s.baseURL + "/" + key + "?token=" + url.QueryEscape(s.signer.Token(key))
}

// Open returns the file of the object when `token` grants access to it.
func (s *LocalStorage) Open(key, token string) (*os.File, error) {
	if err := s.signer.Verify(key, token); err != nil {
		return nil, err
	}
	fp, err := s.path(key)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(fp)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, core.NewNotFoundError("file")
		}
		return nil, errors.Wrap(err, "opening object")
	}
	return f, nil
}

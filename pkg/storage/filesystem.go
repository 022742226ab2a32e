package storage

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
)

// FilesystemStore writes objects below a directory on local disk. The server
// serves that directory at the public URL prefix.
type FilesystemStore struct {
	dir       string
	publicURL string
}

func NewFilesystemStore(dir, publicURL string) (*FilesystemStore, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, errors.WithStack(err)
	}
	return &FilesystemStore{
		dir:       dir,
		publicURL: strings.TrimRight(publicURL, "/"),
	}, nil
}

// Dir is the directory objects are written to.
func (s *FilesystemStore) Dir() string {
	return s.dir
}

// Upload writes data to a temporary file next to its destination and renames
// it into place so readers never see a partial object.
func (s *FilesystemStore) Upload(ctx context.Context, path string, data []byte, _ string) error {
	if err := ctx.Err(); err != nil {
		return errors.WithStack(err)
	}

	dst, err := s.resolve(path)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return errors.WithStack(err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(dst), ".upload-*")
	if err != nil {
		return errors.WithStack(err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return errors.WithStack(err)
	}
	if err := tmp.Close(); err != nil {
		return errors.WithStack(err)
	}
	return errors.WithStack(os.Rename(tmp.Name(), dst))
}

func (s *FilesystemStore) PublicURL(path string) string {
	return s.publicURL + "/" + strings.TrimLeft(path, "/")
}

func (s *FilesystemStore) resolve(path string) (string, error) {
	clean := filepath.Clean("/" + path)
	if clean == "/" {
		return "", errors.Errorf("invalid object path %q", path)
	}
	return filepath.Join(s.dir, filepath.FromSlash(clean)), nil
}

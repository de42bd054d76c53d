package media

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"
)

// FilesystemStore keeps media under a local directory. It is meant for
// development; the HTTP server serves Dir under the public URL prefix.
type FilesystemStore struct {
	dir       string
	publicURL string
	now       func() time.Time
}

func NewFilesystemStore(dir, publicURL string) (*FilesystemStore, error) {
	if dir == "" {
		return nil, errors.New("media dir is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create media dir: %w", err)
	}

	return &FilesystemStore{dir: dir, publicURL: publicURL, now: time.Now}, nil
}

func (s *FilesystemStore) Dir() string {
	return s.dir
}

func (s *FilesystemStore) Upload(ctx context.Context, file File, folder string) (*Asset, error) {
	info, err := Inspect(file)
	if err != nil {
		return nil, err
	}

	key, err := newObjectKey(folder, info, s.now())
	if err != nil {
		return nil, fmt.Errorf("object key: %w", err)
	}

	target := filepath.Join(s.dir, filepath.FromSlash(key))
	if err = os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return nil, fmt.Errorf("create folder: %w", err)
	}

	if err = s.write(ctx, file, target); err != nil {
		_ = os.Remove(target)
		return nil, err
	}

	logrus.WithFields(logrus.Fields{
		"public_id": key,
		"size":      file.Size,
	}).Debug("Media stored on filesystem")

	return &Asset{
		URL:         s.publicURL + "/" + key,
		PublicID:    key,
		ContentType: info.ContentType,
	}, nil
}

func (s *FilesystemStore) write(ctx context.Context, file File, target string) error {
	src, err := file.Open()
	if err != nil {
		return fmt.Errorf("open upload: %w", err)
	}
	defer src.Close()

	dst, err := os.OpenFile(target, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("create file: %w", err)
	}

	if _, err = io.Copy(dst, &contextReader{ctx: ctx, r: src}); err != nil {
		_ = dst.Close()
		return fmt.Errorf("write file: %w", err)
	}
	return dst.Close()
}

func (s *FilesystemStore) Delete(_ context.Context, publicID string) error {
	if err := validatePublicID(publicID); err != nil {
		return err
	}

	err := os.Remove(filepath.Join(s.dir, filepath.FromSlash(publicID)))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove file: %w", err)
	}
	return nil
}

type contextReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *contextReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}

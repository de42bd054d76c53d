// Package media stores user-uploaded images (avatars, cover images) and
// returns the public URL under which each one is served.
package media

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"path"
	"strings"
	"time"

	"github.com/vibast-solutions/ms-go-accounts/config"

	"github.com/oklog/ulid/v2"
)

var ErrInvalidPublicID = errors.New("invalid media public id")

// File is an upload waiting to be stored.
type File struct {
	Filename string
	Size     int64
	Open     func() (io.ReadCloser, error)
}

func FromFileHeader(fh *multipart.FileHeader) File {
	return File{
		Filename: fh.Filename,
		Size:     fh.Size,
		Open: func() (io.ReadCloser, error) {
			return fh.Open()
		},
	}
}

// Asset is a stored upload. PublicID is the handle Delete expects.
type Asset struct {
	URL         string
	PublicID    string
	ContentType string
}

type Store interface {
	Upload(ctx context.Context, file File, folder string) (*Asset, error)
	Delete(ctx context.Context, publicID string) error
}

func NewStore(ctx context.Context, cfg config.MediaConfig) (Store, error) {
	switch cfg.Driver {
	case "s3":
		return NewS3Store(ctx, cfg)
	case "filesystem", "":
		return NewFilesystemStore(cfg.Dir, cfg.PublicURL)
	default:
		return nil, fmt.Errorf("unsupported media driver %q", cfg.Driver)
	}
}

// newObjectKey returns folder/<ulid><ext>; ULIDs keep keys time-sortable.
func newObjectKey(folder string, info ImageInfo, now time.Time) (string, error) {
	id, err := ulid.New(ulid.Timestamp(now), rand.Reader)
	if err != nil {
		return "", err
	}

	folder = strings.Trim(path.Clean("/"+folder), "/")
	name := strings.ToLower(id.String()) + info.Extension()
	if folder == "" {
		return name, nil
	}
	return folder + "/" + name, nil
}

func validatePublicID(publicID string) error {
	if publicID == "" || strings.HasPrefix(publicID, "/") || strings.Contains(publicID, "\\") {
		return ErrInvalidPublicID
	}
	if path.Clean(publicID) != publicID || strings.HasPrefix(publicID, "..") {
		return ErrInvalidPublicID
	}
	return nil
}

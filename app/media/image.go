package media

import (
	"bufio"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"net/http"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

var ErrUnsupportedImage = errors.New("unsupported image")

const sniffLength = 512

var formatContentTypes = map[string]string{
	"jpeg": "image/jpeg",
	"png":  "image/png",
	"gif":  "image/gif",
	"webp": "image/webp",
	"bmp":  "image/bmp",
	"tiff": "image/tiff",
}

var formatExtensions = map[string]string{
	"jpeg": ".jpg",
	"png":  ".png",
	"gif":  ".gif",
	"webp": ".webp",
	"bmp":  ".bmp",
	"tiff": ".tiff",
}

type ImageInfo struct {
	Format      string
	ContentType string
	Width       int
	Height      int
}

func (i ImageInfo) Extension() string {
	return formatExtensions[i.Format]
}

// Inspect decodes only the image header, so arbitrarily large uploads are
// classified without being fully read.
func Inspect(file File) (ImageInfo, error) {
	rc, err := file.Open()
	if err != nil {
		return ImageInfo{}, fmt.Errorf("open upload: %w", err)
	}
	defer rc.Close()

	br := bufio.NewReaderSize(rc, sniffLength)
	head, _ := br.Peek(sniffLength)
	if len(head) == 0 {
		return ImageInfo{}, ErrUnsupportedImage
	}

	cfg, format, err := image.DecodeConfig(br)
	if err != nil {
		return ImageInfo{}, fmt.Errorf("%w: %v", ErrUnsupportedImage, err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return ImageInfo{}, ErrUnsupportedImage
	}

	contentType, ok := formatContentTypes[format]
	if !ok {
		contentType = http.DetectContentType(head)
	}

	return ImageInfo{
		Format:      format,
		ContentType: contentType,
		Width:       cfg.Width,
		Height:      cfg.Height,
	}, nil
}

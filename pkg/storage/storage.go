// Package storage holds the object stores that entry images are uploaded to.
package storage

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// ObjectStore stores binary objects under a path and knows the public URL each
// object is served from.
type ObjectStore interface {
	Upload(ctx context.Context, path string, data []byte, contentType string) error
	PublicURL(path string) string
}

// ErrNotAnImage is returned by DetectImage when the data isn't a supported
// image format.
var ErrNotAnImage = errors.New("file is not a supported image")

// imageExtensions lists the raster formats accepted for upload. SVG is left
// out since it can carry script and uploads are served from the API origin.
var imageExtensions = map[string]string{
	"image/jpeg": "jpg",
	"image/png":  "png",
	"image/gif":  "gif",
	"image/webp": "webp",
	"image/avif": "avif",
	"image/bmp":  "bmp",
}

// DetectImage sniffs the content of data and returns its MIME type and the
// extension it should be stored with. The uploaded filename is never trusted.
func DetectImage(data []byte) (string, string, error) {
	for m := mimetype.Detect(data); m != nil; m = m.Parent() {
		if ext, ok := imageExtensions[m.String()]; ok {
			return m.String(), ext, nil
		}
	}
	return "", "", errors.WithStack(ErrNotAnImage)
}

// ObjectPath builds the path an image for the given user is stored under:
// "<userID>/<unix millis>-<random>.<ext>". The random part keeps two uploads
// in the same millisecond from colliding.
func ObjectPath(userID int, ext string, now time.Time) string {
	ext = strings.ToLower(strings.TrimPrefix(ext, "."))
	if ext == "" {
		ext = "bin"
	}
	return fmt.Sprintf("%d/%d-%s.%s", userID, now.UnixMilli(), uuid.NewString()[:8], ext)
}

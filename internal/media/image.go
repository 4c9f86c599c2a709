// Package media validates uploaded images and stores them as objects.
package media

import (
	"bytes"
	"context"
	"errors"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"path"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"
)

// InvalidImageMessage is shown on the image field for anything that does not decode as an image.
const InvalidImageMessage = "Upload a valid image. The file you uploaded was either not an image or a corrupted image."

var ErrInvalidImage = errors.New(InvalidImageMessage)

// Upload is a file received from a form.
type Upload struct {
	Filename string
	Data     []byte
}

// Checked is an upload that decoded as an image.
type Checked struct {
	Upload
	ContentType string
	Extension   string
	Width       int
	Height      int
}

// Validate sniffs the content and decodes the image header. The client-sent
// content type and file name are ignored.
func Validate(u Upload) (Checked, error) {
	if len(u.Data) == 0 {
		return Checked{}, ErrInvalidImage
	}

	mt := mimetype.Detect(u.Data)
	if !strings.HasPrefix(mt.String(), "image/") {
		return Checked{}, ErrInvalidImage
	}

	cfg, _, err := image.DecodeConfig(bytes.NewReader(u.Data))
	if err != nil {
		return Checked{}, ErrInvalidImage
	}

	return Checked{
		Upload:      u,
		ContentType: mt.String(),
		Extension:   mt.Extension(),
		Width:       cfg.Width,
		Height:      cfg.Height,
	}, nil
}

// ObjectKey names a stored post image: posts/<uuid><ext>.
func ObjectKey(c Checked) string {
	return path.Join("posts", uuid.NewString()+c.Extension)
}

// ImageStore persists validated images and resolves their public URLs.
type ImageStore interface {
	Save(ctx context.Context, key string, img Checked) error
	Delete(ctx context.Context, key string) error
	URL(key string) string
}

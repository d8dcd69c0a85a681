package document

import (
	"bytes"
	"errors"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/joseph-ayodele/warrantyvault-ai/internal/common"
)

var errEmptyImage = errors.New("image has no pixels")

func decodeRaw(data []byte) (image.Image, string, error) {
	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, "", err
	}
	b := img.Bounds()
	if b.Dx() <= 0 || b.Dy() <= 0 {
		return nil, format, errEmptyImage
	}
	return img, format, nil
}

// decodeImage decodes any registered raster format.
func decodeImage(data []byte) (image.Image, string, error) {
	img, format, err := decodeRaw(data)
	if err != nil {
		return nil, "", common.DecodeError("invalid image data", err)
	}
	return img, format, nil
}

package util

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	"io"

	// decoders for image.Decode
	_ "image/gif"
	_ "image/png"

	"github.com/nfnt/resize"
)

const (
	ThumbnailMaxDim  = 300
	thumbnailQuality = 85
)

// Thumbnail decodes an image and returns a JPEG scaled to fit within maxDim x maxDim.
// Images already smaller than the box are re-encoded without scaling.
func Thumbnail(r io.Reader, maxDim uint) ([]byte, error) {
	img, _, err := image.Decode(r)
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}

	thumb := resize.Thumbnail(maxDim, maxDim, img, resize.Lanczos3)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, thumb, &jpeg.Options{Quality: thumbnailQuality}); err != nil {
		return nil, fmt.Errorf("failed to encode thumbnail: %w", err)
	}
	return buf.Bytes(), nil
}

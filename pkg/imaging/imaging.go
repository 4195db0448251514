package imaging

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/webp"
)

// ErrInvalidImage marks frames that could not be decoded or failed validation.
// Callers report these to the client and continue; they never reach a session.
var ErrInvalidImage = errors.New("invalid image")

// Minimum frame dimensions accepted for analysis.
const (
	MinWidth  = 100
	MinHeight = 100
)

// Decode decodes a frame (JPEG, PNG, GIF or WebP), validates its dimensions
// and returns the pixel width and height.
func Decode(data []byte) (width, height int, err error) {
	if len(data) == 0 {
		return 0, 0, fmt.Errorf("%w: empty frame", ErrInvalidImage)
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return 0, 0, fmt.Errorf("%w: %v", ErrInvalidImage, err)
	}
	b := img.Bounds()
	width, height = b.Dx(), b.Dy()
	if width < MinWidth || height < MinHeight {
		return 0, 0, fmt.Errorf("%w: dimensions %dx%d below %dx%d minimum", ErrInvalidImage, width, height, MinWidth, MinHeight)
	}
	return width, height, nil
}

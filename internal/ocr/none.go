//go:build !tesseract

package ocr

import "context"

// New returns a reader that always reports ErrUnavailable. Build with the
// tesseract tag for real recognition.
func New() Reader {
	return unavailable{}
}

type unavailable struct{}

func (unavailable) Text(context.Context, []byte) (string, error) { return "", ErrUnavailable }

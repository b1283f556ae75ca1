//go:build tesseract

package ocr

import (
	"context"

	"github.com/otiai10/gosseract/v2"
)

// Tesseract runs text recognition through libtesseract.
type Tesseract struct {
	Languages []string
}

// New returns the tesseract-backed reader.
func New() Reader {
	return &Tesseract{Languages: []string{"eng"}}
}

// Text recognizes img. A client is created per call since gosseract clients
// are not safe for concurrent use.
func (t *Tesseract) Text(ctx context.Context, img []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	client := gosseract.NewClient()
	defer client.Close()

	if len(t.Languages) > 0 {
		if err := client.SetLanguage(t.Languages...); err != nil {
			return "", err
		}
	}
	if err := client.SetImageFromBytes(img); err != nil {
		return "", err
	}
	return client.Text()
}

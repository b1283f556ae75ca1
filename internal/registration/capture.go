package registration

import (
	"context"
	"fmt"

	"visitordesk/internal/camera"
)

// MaxIDImageBytes caps the size of an uploaded ID image.
const MaxIDImageBytes = 5 << 20

// NameReader suggests the holder's name from an ID image.
type NameReader interface {
	ReadName(ctx context.Context, img []byte) (string, error)
}

// idImage validates an uploaded ID image and returns it as a data URL.
func idImage(data []byte) (string, error) {
	if len(data) == 0 {
		return "", fieldError("idFile", "an ID image is required")
	}
	if len(data) > MaxIDImageBytes {
		return "", fieldError("idFile", fmt.Sprintf("ID image must be at most %d MB", MaxIDImageBytes>>20))
	}
	mime, err := camera.CheckImage(data)
	if err != nil {
		return "", fieldError("idFile", "ID image must be a JPEG or PNG")
	}
	return camera.DataURL(mime, data), nil
}

// suggestName runs OCR over the ID image. Failures only mean no suggestion.
func (w *Wizard) suggestName(ctx context.Context, data []byte) string {
	if w.Names == nil {
		return ""
	}
	name, err := w.Names.ReadName(ctx, data)
	if err != nil {
		w.log().WithField("module", "registration").Debug("name suggestion unavailable: " + err.Error())
		return ""
	}
	return name
}

package verify

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/disintegration/imaging"
	"github.com/sirupsen/logrus"

	"visitordesk/internal/camera"
	"visitordesk/internal/cloudinary"
	"visitordesk/internal/faceclient"
	"visitordesk/internal/logging"
	"visitordesk/internal/metrics"
	"visitordesk/internal/visitor"
)

// Defaults for a zero Gate.
const (
	DefaultThreshold = 0.6
	DefaultWindow    = 15 * time.Second
	DefaultInterval  = 500 * time.Millisecond
	DefaultMaxWidth  = 640
)

// Gate failures. Every one of them blocks the time-in.
var (
	ErrNoFaceOnID        = errors.New("no face found on the visitor's ID image")
	ErrCameraUnavailable = errors.New("camera is unavailable or access was denied")
	ErrNoMatch           = errors.New("live face did not match the ID within the time limit")
)

// IsGateError reports whether err is one of the gate failures.
func IsGateError(err error) bool {
	return errors.Is(err, ErrNoFaceOnID) || errors.Is(err, ErrCameraUnavailable) || errors.Is(err, ErrNoMatch)
}

// Describer computes facial descriptors.
type Describer interface {
	Describe(ctx context.Context, image string) (*faceclient.Descriptor, error)
}

// Uploader stores a capture and returns where it lives.
type Uploader interface {
	UploadBytes(ctx context.Context, data []byte, filename, tag string) (*cloudinary.UploadResult, error)
}

// Result describes a passed gate.
type Result struct {
	Skipped  bool    `json:"skipped"`
	Distance float64 `json:"distance"`
	Frames   int     `json:"frames"`
	Capture  string  `json:"capture,omitempty"`
}

// Gate compares live camera frames against a visitor's reference image.
type Gate struct {
	Faces     Describer
	Uploader  Uploader
	Threshold float64
	Window    time.Duration
	Interval  time.Duration
	MaxWidth  int

	Metrics *metrics.Metrics
	Log     *logrus.Logger
}

// Check runs the gate for rec using frames from cam. Records without a
// reference image skip the gate. The camera stream is closed on every path.
func (g *Gate) Check(ctx context.Context, rec visitor.Record, cam camera.Opener) (Result, error) {
	res, err := g.check(ctx, rec, cam)
	switch {
	case err == nil && res.Skipped:
		g.Metrics.Verification("skipped")
	case err == nil:
		g.Metrics.Verification("match")
	case errors.Is(err, ErrNoFaceOnID):
		g.Metrics.Verification("no-face-on-id")
	case errors.Is(err, ErrCameraUnavailable):
		g.Metrics.Verification("camera-unavailable")
	case errors.Is(err, ErrNoMatch):
		g.Metrics.Verification("no-match")
	default:
		g.Metrics.Verification("error")
	}
	return res, err
}

func (g *Gate) check(ctx context.Context, rec visitor.Record, cam camera.Opener) (Result, error) {
	ref := rec.ReferenceImage()
	if ref == "" {
		return Result{Skipped: true}, nil
	}

	idFace, err := g.Faces.Describe(ctx, ref)
	if errors.Is(err, faceclient.ErrNoFace) {
		return Result{}, ErrNoFaceOnID
	}
	if err != nil {
		return Result{}, fmt.Errorf("describe ID image: %w", err)
	}

	if cam == nil {
		return Result{}, ErrCameraUnavailable
	}
	stream, err := cam.Open(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrCameraUnavailable, err)
	}
	defer stream.Close()

	ctx, cancel := context.WithTimeout(ctx, g.window())
	defer cancel()

	best := math.Inf(1)
	frames := 0
	for {
		frame, err := stream.Frame(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, camera.ErrExhausted) {
				return Result{}, g.timeout(best, frames)
			}
			return Result{}, fmt.Errorf("%w: %v", ErrCameraUnavailable, err)
		}
		frames++

		image, err := g.prepare(ctx, rec, frame)
		if err != nil {
			logging.LogError(g.logger(), "verify", "Check", "prepare frame", logrus.Fields{"visitorId": rec.ID, "seq": frame.Seq}, err)
		} else {
			live, err := g.Faces.Describe(ctx, image)
			switch {
			case err == nil:
				d := Distance(idFace.Embedding, live.Embedding)
				best = math.Min(best, d)
				if d < g.threshold() {
					return Result{Distance: d, Frames: frames, Capture: captureRef(image)}, nil
				}
			case errors.Is(err, faceclient.ErrNoFace):
			case ctx.Err() != nil:
				return Result{}, g.timeout(best, frames)
			default:
				return Result{}, fmt.Errorf("describe live frame: %w", err)
			}
		}

		select {
		case <-ctx.Done():
			return Result{}, g.timeout(best, frames)
		case <-time.After(g.interval()):
		}
	}
}

func (g *Gate) timeout(best float64, frames int) error {
	if math.IsInf(best, 1) {
		return fmt.Errorf("%w (no face seen in %d frames)", ErrNoMatch, frames)
	}
	return fmt.Errorf("%w (best distance %.3f over %d frames)", ErrNoMatch, best, frames)
}

// prepare downscales a frame and returns an image reference the face
// service accepts: an uploaded URL when an Uploader is set, else a data URL.
func (g *Gate) prepare(ctx context.Context, rec visitor.Record, frame camera.Frame) (string, error) {
	data, err := Downscale(frame.Data, g.maxWidth())
	if err != nil {
		return "", err
	}
	if g.Uploader == nil {
		return camera.DataURL("image/jpeg", data), nil
	}
	up, err := g.Uploader.UploadBytes(ctx, data, fmt.Sprintf("%s-%d.jpg", rec.ID, frame.Seq), "visitor-"+rec.ID)
	if err != nil {
		return "", err
	}
	return up.SecureURL, nil
}

func captureRef(image string) string {
	if strings.HasPrefix(image, "data:") {
		return ""
	}
	return image
}

// Downscale re-encodes data as JPEG no wider than maxWidth.
func Downscale(data []byte, maxWidth int) ([]byte, error) {
	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("decode frame: %w", err)
	}
	if maxWidth > 0 && img.Bounds().Dx() > maxWidth {
		img = imaging.Resize(img, maxWidth, 0, imaging.Lanczos)
	}
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(85)); err != nil {
		return nil, fmt.Errorf("encode frame: %w", err)
	}
	return buf.Bytes(), nil
}

// Distance is the Euclidean distance between two descriptors. Descriptors of
// different length are infinitely far apart.
func Distance(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return math.Inf(1)
	}
	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return math.Sqrt(sum)
}

func (g *Gate) threshold() float64 {
	if g.Threshold > 0 {
		return g.Threshold
	}
	return DefaultThreshold
}

func (g *Gate) window() time.Duration {
	if g.Window > 0 {
		return g.Window
	}
	return DefaultWindow
}

func (g *Gate) interval() time.Duration {
	if g.Interval > 0 {
		return g.Interval
	}
	return DefaultInterval
}

func (g *Gate) maxWidth() int {
	if g.MaxWidth > 0 {
		return g.MaxWidth
	}
	return DefaultMaxWidth
}

func (g *Gate) logger() *logrus.Logger {
	if g.Log != nil {
		return g.Log
	}
	return logging.Logger()
}

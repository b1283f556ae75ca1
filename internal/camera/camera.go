package camera

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gabriel-vasile/mimetype"
)

// ErrUnavailable is returned when no camera can be opened or read.
var ErrUnavailable = errors.New("camera unavailable")

// ErrClosed is returned by Frame after Close.
var ErrClosed = errors.New("camera stream closed")

// ErrExhausted is returned by Frame once a finite source has yielded every frame.
var ErrExhausted = errors.New("camera stream exhausted")

// Frame is one captured image.
type Frame struct {
	Seq       int
	Timestamp time.Time
	MIME      string
	Data      []byte
}

// Opener opens a camera stream.
type Opener interface {
	Open(ctx context.Context) (Stream, error)
}

// Stream yields frames until closed. Close is safe to call more than once.
type Stream interface {
	Frame(ctx context.Context) (Frame, error)
	Close() error
}

// CheckImage sniffs data and returns its MIME type when it is a JPEG or PNG.
func CheckImage(data []byte) (string, error) {
	mt := mimetype.Detect(data)
	if !mt.Is("image/jpeg") && !mt.Is("image/png") {
		return "", fmt.Errorf("unsupported image type %s", mt.String())
	}
	return mt.String(), nil
}

// DecodeDataURL extracts the bytes of a base64 data URL. Bare base64 is
// accepted too.
func DecodeDataURL(s string) ([]byte, error) {
	if strings.HasPrefix(s, "data:") {
		i := strings.Index(s, ",")
		if i < 0 {
			return nil, errors.New("malformed data url")
		}
		s = s[i+1:]
	}
	b, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	return b, nil
}

// DataURL renders data as a base64 data URL.
func DataURL(mime string, data []byte) string {
	return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(data)
}

// Snapshot reads frames from an IP camera's JPEG snapshot endpoint.
type Snapshot struct {
	URL  string
	HTTP *http.Client
}

// NewSnapshot returns a snapshot camera. An empty url yields a camera that
// always fails to open.
func NewSnapshot(url string) *Snapshot {
	return &Snapshot{URL: url, HTTP: &http.Client{Timeout: 5 * time.Second}}
}

func (s *Snapshot) Open(ctx context.Context) (Stream, error) {
	if s == nil || s.URL == "" {
		return nil, fmt.Errorf("%w: no snapshot camera configured", ErrUnavailable)
	}
	return &snapshotStream{cam: s}, nil
}

type snapshotStream struct {
	cam    *Snapshot
	mu     sync.Mutex
	seq    int
	closed bool
}

func (s *snapshotStream) Frame(ctx context.Context) (Frame, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return Frame{}, ErrClosed
	}
	s.seq++
	seq := s.seq
	s.mu.Unlock()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.cam.URL, nil)
	if err != nil {
		return Frame{}, err
	}
	resp, err := s.cam.HTTP.Do(req)
	if err != nil {
		return Frame{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return Frame{}, fmt.Errorf("%w: snapshot returned %s", ErrUnavailable, resp.Status)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return Frame{}, err
	}
	mime, err := CheckImage(data)
	if err != nil {
		return Frame{}, err
	}
	return Frame{Seq: seq, Timestamp: time.Now(), MIME: mime, Data: data}, nil
}

func (s *snapshotStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// Frames replays frames captured elsewhere, such as by the guard's browser.
// After the last frame, Frame returns ErrExhausted.
type Frames struct {
	frames []Frame
}

// NewFrames decodes data URLs into a finite source.
func NewFrames(dataURLs []string) (*Frames, error) {
	f := &Frames{}
	for i, u := range dataURLs {
		data, err := DecodeDataURL(u)
		if err != nil {
			return nil, fmt.Errorf("frame %d: %w", i, err)
		}
		mime, err := CheckImage(data)
		if err != nil {
			return nil, fmt.Errorf("frame %d: %w", i, err)
		}
		f.frames = append(f.frames, Frame{Seq: i + 1, MIME: mime, Data: data})
	}
	return f, nil
}

func (f *Frames) Open(context.Context) (Stream, error) {
	if len(f.frames) == 0 {
		return nil, fmt.Errorf("%w: no frames supplied", ErrUnavailable)
	}
	return &framesStream{frames: f.frames}, nil
}

type framesStream struct {
	mu     sync.Mutex
	frames []Frame
	next   int
	closed bool
}

func (s *framesStream) Frame(context.Context) (Frame, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return Frame{}, ErrClosed
	}
	if s.next >= len(s.frames) {
		return Frame{}, ErrExhausted
	}
	fr := s.frames[s.next]
	s.next++
	fr.Timestamp = time.Now()
	return fr, nil
}

func (s *framesStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

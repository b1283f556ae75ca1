package faceclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// ErrNoFace is returned when the service finds no face in the image.
var ErrNoFace = errors.New("no face detected in image")

// Descriptor is the facial descriptor of the most prominent face in an image.
type Descriptor struct {
	Embedding     []float32
	Score         float64
	FacesDetected int
}

// Client calls the face recognition microservice.
type Client struct {
	BaseURL string
	HTTP    *http.Client
	Skip    bool
}

// New creates a client. With skip set every image yields the same mock
// descriptor, so every comparison matches.
func New(baseURL string, skip bool) *Client {
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Skip:    skip,
		HTTP: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// Describe computes the descriptor for an image given as an http(s) URL or a
// base64 data URL.
func (c *Client) Describe(ctx context.Context, image string) (*Descriptor, error) {
	if c.Skip {
		return &Descriptor{Embedding: []float32{0.1, 0.2, 0.3}, Score: 0.95, FacesDetected: 1}, nil
	}
	if image == "" {
		return nil, fmt.Errorf("image required")
	}

	payload := map[string]string{"image_url": image}
	if strings.HasPrefix(image, "data:") {
		payload = map[string]string{"image": image}
	}

	var out struct {
		Embedding     []float32 `json:"embedding"`
		Score         float64   `json:"score"`
		FacesDetected int       `json:"faces_detected"`
	}
	if err := c.post(ctx, "/embed", payload, &out); err != nil {
		return nil, err
	}
	if len(out.Embedding) == 0 {
		return nil, ErrNoFace
	}
	return &Descriptor{Embedding: out.Embedding, Score: out.Score, FacesDetected: out.FacesDetected}, nil
}

// Health checks if the face service is available.
func (c *Client) Health(ctx context.Context) error {
	if c.Skip {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"/health", nil)
	if err != nil {
		return err
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("face service unavailable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("face service unhealthy: %s", resp.Status)
	}
	return nil
}

func (c *Client) post(ctx context.Context, path string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("face service request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnprocessableEntity {
		return ErrNoFace
	}
	if resp.StatusCode >= 300 {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("face service error %s: %s", resp.Status, string(bodyBytes))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

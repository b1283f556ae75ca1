package cloudinary

import (
	"bytes"
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Client stores verification captures in a Cloudinary folder through the
// signed upload endpoint.
type Client struct {
	CloudName string
	APIKey    string
	APISecret string
	Folder    string
	BaseURL   string
	HTTP      *http.Client
	Now       func() time.Time
}

func New(cloudName, apiKey, apiSecret, folder string) *Client {
	return &Client{
		CloudName: cloudName,
		APIKey:    apiKey,
		APISecret: apiSecret,
		Folder:    folder,
		BaseURL:   "https://api.cloudinary.com",
		HTTP:      &http.Client{Timeout: 30 * time.Second},
	}
}

// UploadResult is the subset of the upload answer the desk keeps.
type UploadResult struct {
	PublicID  string `json:"public_id"`
	SecureURL string `json:"secure_url"`
	Width     int    `json:"width"`
	Height    int    `json:"height"`
	Bytes     int    `json:"bytes"`
}

// Error is a rejected upload. Message is Cloudinary's own explanation.
type Error struct {
	Status  int
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("cloudinary: upload rejected (%d): %s", e.Status, e.Message)
}

// UploadBytes stores one encoded frame. tag groups the captures of a visitor.
func (c *Client) UploadBytes(ctx context.Context, data []byte, filename, tag string) (*UploadResult, error) {
	form := c.signedForm(tag)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for key := range form {
		if err := mw.WriteField(key, form.Get(key)); err != nil {
			return nil, err
		}
	}
	part, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return nil, fmt.Errorf("cloudinary: file part: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return nil, err
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}

	endpoint := strings.TrimRight(c.BaseURL, "/") + "/v1_1/" + url.PathEscape(c.CloudName) + "/image/upload"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, &body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, fmt.Errorf("cloudinary: %w", err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("cloudinary: read answer: %w", err)
	}

	if resp.StatusCode >= http.StatusMultipleChoices {
		var failure struct {
			Error struct {
				Message string `json:"message"`
			} `json:"error"`
		}
		msg := strings.TrimSpace(string(raw))
		if json.Unmarshal(raw, &failure) == nil && failure.Error.Message != "" {
			msg = failure.Error.Message
		}
		return nil, &Error{Status: resp.StatusCode, Message: msg}
	}

	var out UploadResult
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("cloudinary: decode answer: %w", err)
	}
	if out.SecureURL == "" {
		return nil, fmt.Errorf("cloudinary: answer carried no secure_url")
	}
	return &out, nil
}

// signedForm builds the upload parameters plus their signature.
func (c *Client) signedForm(tag string) url.Values {
	now := time.Now
	if c.Now != nil {
		now = c.Now
	}
	form := url.Values{}
	form.Set("timestamp", strconv.FormatInt(now().Unix(), 10))
	if c.Folder != "" {
		form.Set("folder", c.Folder)
	}
	if tag != "" {
		form.Set("tags", tag)
	}
	form.Set("signature", c.sign(form))
	form.Set("api_key", c.APIKey)
	return form
}

// sign hashes the sorted key=value pairs followed by the secret. The key,
// the file and the signature itself are never signed.
func (c *Client) sign(form url.Values) string {
	keys := make([]string, 0, len(form))
	for k := range form {
		switch k {
		case "api_key", "file", "resource_type", "signature":
			continue
		}
		if form.Get(k) != "" {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	pairs := make([]string, len(keys))
	for i, k := range keys {
		pairs[i] = k + "=" + form.Get(k)
	}
	sum := sha1.Sum([]byte(strings.Join(pairs, "&") + c.APISecret))
	return hex.EncodeToString(sum[:])
}

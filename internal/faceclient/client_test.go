package faceclient

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestDescribeSendsDataURLAsImage(t *testing.T) {
	var got map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/embed" {
			t.Errorf("path = %s", r.URL.Path)
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
		_ = json.NewEncoder(w).Encode(map[string]any{"embedding": []float32{1, 2}, "score": 0.9, "faces_detected": 1})
	}))
	defer srv.Close()

	d, err := New(srv.URL, false).Describe(context.Background(), "data:image/jpeg;base64,AAAA")
	if err != nil {
		t.Fatal(err)
	}
	if got["image"] != "data:image/jpeg;base64,AAAA" || got["image_url"] != "" {
		t.Errorf("payload = %v", got)
	}
	if len(d.Embedding) != 2 || d.FacesDetected != 1 {
		t.Errorf("descriptor = %+v", d)
	}
}

func TestDescribeNoFace(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"embedding":[],"faces_detected":0}`))
	}))
	defer srv.Close()

	_, err := New(srv.URL, false).Describe(context.Background(), "https://cdn.example.com/id.jpg")
	if !errors.Is(err, ErrNoFace) {
		t.Fatalf("err = %v, want ErrNoFace", err)
	}
}

func TestSkipMode(t *testing.T) {
	c := New("http://unused", true)
	a, err := c.Describe(context.Background(), "x")
	if err != nil {
		t.Fatal(err)
	}
	if len(a.Embedding) == 0 || c.Health(context.Background()) != nil {
		t.Error("skip mode should answer without the service")
	}
}

package detector

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestClient_Detect(t *testing.T) {
	frame := []byte("frame-bytes")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/detect" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/octet-stream" {
			t.Errorf("content type = %q", ct)
		}
		body, _ := io.ReadAll(r.Body)
		if string(body) != string(frame) {
			t.Errorf("body = %q, want %q", body, frame)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"detected": true,
			"pose": "sitting",
			"landmarks": [{"index":0,"name":"NOSE","x":0.5,"y":0.1,"z":0,"visibility":0.99}],
			"annotated_image": "b64"
		}`))
	}))
	t.Cleanup(srv.Close)

	c := NewClient(srv.URL, 5*time.Second, nil)
	res, err := c.Detect(context.Background(), frame)
	if err != nil {
		t.Fatalf("detect: %v", err)
	}
	if !res.Detected || res.Pose != "sitting" || res.AnnotatedImage != "b64" {
		t.Fatalf("result = %+v", res)
	}
	if len(res.Landmarks) != 1 || res.Landmarks[0].Name != "NOSE" || res.Landmarks[0].X != 0.5 {
		t.Fatalf("landmarks = %+v", res.Landmarks)
	}
}

func TestClient_Detect_NoPerson(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"detected": false}`))
	}))
	t.Cleanup(srv.Close)

	res, err := NewClient(srv.URL, 5*time.Second, nil).Detect(context.Background(), []byte("x"))
	if err != nil {
		t.Fatalf("detect: %v", err)
	}
	if res.Detected {
		t.Fatal("expected detected=false")
	}
}

func TestClient_Detect_Non200(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not loaded", http.StatusInternalServerError)
	}))
	t.Cleanup(srv.Close)

	_, err := NewClient(srv.URL, 5*time.Second, nil).Detect(context.Background(), []byte("x"))
	if err == nil {
		t.Fatal("expected error for 500 response")
	}
	if !strings.Contains(err.Error(), "500") {
		t.Fatalf("error should carry the status code, got %v", err)
	}
}

func TestClient_Detect_BadJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"detected":`))
	}))
	t.Cleanup(srv.Close)

	if _, err := NewClient(srv.URL, 5*time.Second, nil).Detect(context.Background(), []byte("x")); err == nil {
		t.Fatal("expected decode error")
	}
}

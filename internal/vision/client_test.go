package vision

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
)

var jpegMagic = []byte{0xFF, 0xD8, 0xFF, 0xE0, 0, 0, 0, 0}

func TestDetectFaces(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}
		if r.URL.Path != "/embed/face" {
			t.Errorf("expected /embed/face, got %s", r.URL.Path)
		}
		if model := r.URL.Query().Get("model"); model != "hog" {
			t.Errorf("expected model=hog, got %q", model)
		}

		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Fatalf("failed to parse multipart form: %v", err)
		}
		file, header, err := r.FormFile("file")
		if err != nil {
			t.Fatalf("missing file part: %v", err)
		}
		defer file.Close()
		if ct := header.Header.Get("Content-Type"); ct != "image/jpeg" {
			t.Errorf("expected image/jpeg part, got %q", ct)
		}
		data, _ := io.ReadAll(file)
		if len(data) != len(jpegMagic) {
			t.Errorf("expected %d image bytes, got %d", len(jpegMagic), len(data))
		}

		json.NewEncoder(w).Encode(faceResponse{
			FacesCount: 1,
			Faces: []Detection{{
				FaceIndex: 0,
				BBox:      []float64{10, 10, 60, 60},
				Embedding: []float32{0.1, 0.2, 0.3},
				DetScore:  0.99,
				Age:       31,
			}},
			Model: "hog",
		})
	}))
	defer server.Close()

	client := NewClient(server.URL)
	detections, err := client.DetectFaces(context.Background(), jpegMagic, "hog")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(detections) != 1 {
		t.Fatalf("expected 1 detection, got %d", len(detections))
	}
	if len(detections[0].Embedding) != 3 {
		t.Errorf("expected 3 embedding values, got %d", len(detections[0].Embedding))
	}
	if detections[0].Age != 31 {
		t.Errorf("expected age 31, got %d", detections[0].Age)
	}
}

func TestDetectFaces_NoFaces(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(faceResponse{FacesCount: 0, Model: "hog"})
	}))
	defer server.Close()

	client := NewClient(server.URL)
	detections, err := client.DetectFaces(context.Background(), jpegMagic, "hog")
	if err != nil {
		t.Fatalf("zero faces must not be an error, got: %v", err)
	}
	if detections == nil || len(detections) != 0 {
		t.Errorf("expected an empty slice, got %v", detections)
	}
}

func TestDetectFaces_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not loaded", http.StatusInternalServerError)
	}))
	defer server.Close()

	client := NewClient(server.URL)
	if _, err := client.DetectFaces(context.Background(), jpegMagic, "hog"); err == nil {
		t.Fatal("expected an error for a 500 response")
	}
}

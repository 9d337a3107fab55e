package vision

import (
	"bytes"
	"errors"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"testing"
)

func encodePNG(t *testing.T, width, height int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("failed to encode test image: %v", err)
	}
	return buf.Bytes()
}

func TestIsImageFile(t *testing.T) {
	tests := []struct {
		name string
		want bool
	}{
		{"photo.jpg", true},
		{"photo.JPG", true},
		{"photo.jpeg", true},
		{"photo.png", true},
		{"photo.bmp", true},
		{"photo.gif", true},
		{"photo.txt", false},
		{"photo.raw", false},
		{"photo", false},
	}
	for _, tt := range tests {
		if got := IsImageFile(tt.name); got != tt.want {
			t.Errorf("IsImageFile(%s) = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestResize_SmallImageUnchanged(t *testing.T) {
	data := encodePNG(t, 100, 50)
	out, err := Resize(data, 200)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !bytes.Equal(out, data) {
		t.Error("expected an image under the limit to pass through unchanged")
	}
}

func TestResize_ScalesDownPreservingAspect(t *testing.T) {
	data := encodePNG(t, 400, 200)
	out, err := Resize(data, 100)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	img, format, err := image.Decode(bytes.NewReader(out))
	if err != nil {
		t.Fatalf("failed to decode resized image: %v", err)
	}
	if format != "jpeg" {
		t.Errorf("expected jpeg output, got %s", format)
	}
	bounds := img.Bounds()
	if bounds.Dx() != 100 || bounds.Dy() != 50 {
		t.Errorf("expected 100x50, got %dx%d", bounds.Dx(), bounds.Dy())
	}
}

func TestResize_InvalidData(t *testing.T) {
	if _, err := Resize([]byte("not an image"), 100); err == nil {
		t.Fatal("expected an error for undecodable data")
	}
}

func TestLoadForProcessing_ErrDecode(t *testing.T) {
	dir := t.TempDir()

	missing := filepath.Join(dir, "missing.jpg")
	if _, err := LoadForProcessing(missing, 100); !errors.Is(err, ErrDecode) {
		t.Errorf("expected ErrDecode for a missing file, got %v", err)
	}

	corrupt := filepath.Join(dir, "corrupt.jpg")
	if err := os.WriteFile(corrupt, []byte("garbage"), 0o644); err != nil {
		t.Fatalf("failed to write test file: %v", err)
	}
	if _, err := LoadForProcessing(corrupt, 100); !errors.Is(err, ErrDecode) {
		t.Errorf("expected ErrDecode for corrupt data, got %v", err)
	}
}

func TestLoadForProcessing_ValidImage(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "photo.png")
	if err := os.WriteFile(path, encodePNG(t, 50, 50), 0o644); err != nil {
		t.Fatalf("failed to write test file: %v", err)
	}

	data, err := LoadForProcessing(path, 100)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(data) == 0 {
		t.Error("expected image bytes")
	}
}

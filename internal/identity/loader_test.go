package identity

import (
	"bytes"
	"context"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/kozaktomas/face-sorter/internal/cache"
	"github.com/kozaktomas/face-sorter/internal/logging"
	"github.com/kozaktomas/face-sorter/internal/vision"
)

// scriptedAdapter returns one prepared response per call, in call order.
type scriptedAdapter struct {
	responses [][]vision.Detection
	calls     int
}

func (a *scriptedAdapter) DetectFaces(ctx context.Context, imageData []byte, model string) ([]vision.Detection, error) {
	if a.calls >= len(a.responses) {
		return []vision.Detection{}, nil
	}
	resp := a.responses[a.calls]
	a.calls++
	return resp, nil
}

func writeTestImage(t *testing.T, path string) {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 10, 10))
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("failed to encode test image: %v", err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatalf("failed to write test image: %v", err)
	}
}

func face(embedding ...float32) vision.Detection {
	return vision.Detection{BBox: []float64{0, 0, 50, 50}, Embedding: embedding}
}

func TestLoader_Load(t *testing.T) {
	knownFaces := t.TempDir()
	// Person directories enroll in name order: alice, then bob.
	if err := os.MkdirAll(filepath.Join(knownFaces, "alice"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.MkdirAll(filepath.Join(knownFaces, "bob"), 0o755); err != nil {
		t.Fatal(err)
	}
	writeTestImage(t, filepath.Join(knownFaces, "alice", "ref1.png"))
	writeTestImage(t, filepath.Join(knownFaces, "alice", "ref2.png"))
	writeTestImage(t, filepath.Join(knownFaces, "bob", "ref1.png"))

	adapter := &scriptedAdapter{responses: [][]vision.Detection{
		// alice/ref1: two faces, only the first one enrolls
		{face(0.1), face(0.9)},
		// alice/ref2: no face
		{},
		// bob/ref1
		{face(0.5)},
	}}
	fpCache := cache.New(t.TempDir(), "hog", logging.NewNop())

	loader := NewLoader(adapter, fpCache, logging.NewNop())
	set, err := loader.Load(context.Background(), LoadOptions{
		Dir:          knownFaces,
		Model:        "hog",
		MaxImageSize: 100,
		People: map[string]Person{
			"alice": {Birthdate: "2015-06-01", Priority: 1, OutputPath: "/custom/alice"},
		},
	})
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}

	if set.Len() != 2 {
		t.Fatalf("expected 2 people, got %d", set.Len())
	}

	alice, ok := set.Get("alice")
	if !ok {
		t.Fatal("expected alice to be enrolled")
	}
	if len(alice.Embeddings) != 1 {
		t.Errorf("expected 1 embedding for alice (one image had no face), got %d", len(alice.Embeddings))
	}
	if alice.Embeddings[0][0] != 0.1 {
		t.Errorf("expected the first detected face to be used, got %v", alice.Embeddings[0])
	}
	if alice.Priority != 1 || alice.Destination != "/custom/alice" {
		t.Errorf("expected person config to be applied: %+v", alice)
	}
	want := time.Date(2015, 6, 1, 0, 0, 0, 0, time.UTC)
	if !alice.Birthdate.Equal(want) {
		t.Errorf("expected birthdate %s, got %s", want, alice.Birthdate)
	}

	if _, ok := set.Get("bob"); !ok {
		t.Error("expected bob to be enrolled")
	}
}

func TestLoader_SkipsPersonWithoutUsableFaces(t *testing.T) {
	knownFaces := t.TempDir()
	if err := os.MkdirAll(filepath.Join(knownFaces, "ghost"), 0o755); err != nil {
		t.Fatal(err)
	}
	writeTestImage(t, filepath.Join(knownFaces, "ghost", "ref.png"))

	adapter := &scriptedAdapter{responses: [][]vision.Detection{{}}}
	fpCache := cache.New(t.TempDir(), "hog", logging.NewNop())

	loader := NewLoader(adapter, fpCache, logging.NewNop())
	set, err := loader.Load(context.Background(), LoadOptions{Dir: knownFaces, MaxImageSize: 100})
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if set.Len() != 0 {
		t.Errorf("expected nobody enrolled, got %d", set.Len())
	}
}

func TestLoader_UsesCachedEmbeddings(t *testing.T) {
	knownFaces := t.TempDir()
	if err := os.MkdirAll(filepath.Join(knownFaces, "alice"), 0o755); err != nil {
		t.Fatal(err)
	}
	refPath := filepath.Join(knownFaces, "alice", "ref.png")
	writeTestImage(t, refPath)

	fpCache := cache.New(t.TempDir(), "hog", logging.NewNop())
	fpCache.Store(cache.Key(refPath), cache.Entry{Kind: cache.KindEmbedding, Embedding: []float32{0.7}})

	// The adapter must never be called for a cached reference.
	adapter := &scriptedAdapter{}
	loader := NewLoader(adapter, fpCache, logging.NewNop())
	set, err := loader.Load(context.Background(), LoadOptions{Dir: knownFaces, MaxImageSize: 100})
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}

	alice, ok := set.Get("alice")
	if !ok {
		t.Fatal("expected alice to be enrolled from the cache")
	}
	if alice.Embeddings[0][0] != float32(0.7) {
		t.Errorf("expected the cached embedding, got %v", alice.Embeddings)
	}
	if adapter.calls != 0 {
		t.Errorf("expected no detector calls for cached references, got %d", adapter.calls)
	}
}

func TestLoader_FacesPathOverride(t *testing.T) {
	override := t.TempDir()
	writeTestImage(t, filepath.Join(override, "ref.png"))

	adapter := &scriptedAdapter{responses: [][]vision.Detection{{face(0.3)}}}
	fpCache := cache.New(t.TempDir(), "hog", logging.NewNop())

	loader := NewLoader(adapter, fpCache, logging.NewNop())
	set, err := loader.Load(context.Background(), LoadOptions{
		MaxImageSize: 100,
		People:       map[string]Person{"carol": {FacesPath: override}},
	})
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if _, ok := set.Get("carol"); !ok {
		t.Error("expected carol to be enrolled via faces_path")
	}
}

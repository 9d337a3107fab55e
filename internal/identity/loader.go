package identity

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/kozaktomas/face-sorter/internal/cache"
	"github.com/kozaktomas/face-sorter/internal/vision"
)

// Person carries the per-person enrollment metadata supplied by
// configuration.
type Person struct {
	Birthdate  string // YYYY-MM-DD, optional
	Priority   int    // lower wins, 0 = unranked
	OutputPath string // custom destination, optional
	FacesPath  string // reference images outside the known-faces directory, optional
}

// LoadOptions describes where and how reference faces are enrolled.
type LoadOptions struct {
	Dir          string // known-faces directory, one subdirectory per person
	Model        string // detection model hint
	MaxImageSize int
	People       map[string]Person
}

// Loader builds the identity set from reference images, caching embeddings
// by file fingerprint so repeated runs skip the detector.
type Loader struct {
	adapter vision.Adapter
	cache   *cache.Cache
	logger  *slog.Logger
}

// NewLoader creates an enrollment loader.
func NewLoader(adapter vision.Adapter, c *cache.Cache, logger *slog.Logger) *Loader {
	return &Loader{adapter: adapter, cache: c, logger: logger}
}

// Load enrolls every person with at least one usable reference image. Only
// the first detected face of each reference image is used: reference images
// are expected to show one person.
func (l *Loader) Load(ctx context.Context, opts LoadOptions) (*Set, error) {
	start := time.Now()
	set := NewSet()

	dirs, err := personDirs(opts)
	if err != nil {
		return nil, err
	}

	for _, pd := range dirs {
		embeddings := l.loadPerson(ctx, pd.path, opts)
		if len(embeddings) == 0 {
			l.logger.Warn("no usable reference faces for person, skipping", "person", pd.name, "dir", pd.path)
			continue
		}

		id := &Identity{Name: pd.name, Embeddings: embeddings}
		if p, ok := opts.People[pd.name]; ok {
			id.Priority = p.Priority
			id.Destination = p.OutputPath
			if p.Birthdate != "" {
				bd, err := time.Parse("2006-01-02", p.Birthdate)
				if err != nil {
					l.logger.Warn("invalid birthdate, ignoring", "person", pd.name, "birthdate", p.Birthdate)
				} else {
					id.Birthdate = bd
				}
			}
		}
		set.Add(id)
		l.logger.Info("enrolled person", "person", pd.name, "embeddings", len(embeddings))
	}

	l.logger.Info("enrollment finished",
		"people", set.Len(),
		"embeddings", set.EmbeddingCount(),
		"elapsed", time.Since(start).Round(time.Millisecond))
	return set, nil
}

type personDir struct {
	name string
	path string
}

// personDirs lists enrollment directories: subdirectories of the known-faces
// directory plus any configured faces_path overrides. Sorted by name so
// enrollment order is deterministic.
func personDirs(opts LoadOptions) ([]personDir, error) {
	seen := make(map[string]string)

	if opts.Dir != "" {
		entries, err := os.ReadDir(opts.Dir)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("failed to read known faces directory %s: %w", opts.Dir, err)
			}
		} else {
			for _, e := range entries {
				if e.IsDir() {
					seen[e.Name()] = filepath.Join(opts.Dir, e.Name())
				}
			}
		}
	}

	// faces_path overrides win over the directory convention.
	for name, p := range opts.People {
		if p.FacesPath != "" {
			seen[name] = p.FacesPath
		}
	}

	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)

	dirs := make([]personDir, len(names))
	for i, name := range names {
		dirs[i] = personDir{name: name, path: seen[name]}
	}
	return dirs, nil
}

// loadPerson collects reference embeddings for one person's directory.
func (l *Loader) loadPerson(ctx context.Context, dir string, opts LoadOptions) [][]float32 {
	entries, err := os.ReadDir(dir)
	if err != nil {
		l.logger.Error("failed to read person directory", "dir", dir, "error", err)
		return nil
	}

	var embeddings [][]float32
	for _, e := range entries {
		if e.IsDir() || !vision.IsImageFile(e.Name()) {
			continue
		}
		path := filepath.Join(dir, e.Name())
		key := cache.Key(path)

		if entry, ok := l.cache.Lookup(key); ok {
			switch entry.Kind {
			case cache.KindEmbedding:
				embeddings = append(embeddings, entry.Embedding)
				continue
			case cache.KindNegative:
				continue
			}
		}

		embedding, found, err := l.encodeReference(ctx, path, opts)
		if err != nil {
			l.logger.Error("failed to process reference image", "path", path, "error", err)
			continue
		}
		if !found {
			l.cache.Store(key, cache.Entry{Kind: cache.KindNegative})
			continue
		}
		l.cache.Store(key, cache.Entry{Kind: cache.KindEmbedding, Embedding: embedding})
		embeddings = append(embeddings, embedding)
	}
	return embeddings
}

func (l *Loader) encodeReference(ctx context.Context, path string, opts LoadOptions) ([]float32, bool, error) {
	data, err := vision.LoadForProcessing(path, opts.MaxImageSize)
	if err != nil {
		return nil, false, err
	}
	detections, err := l.adapter.DetectFaces(ctx, data, opts.Model)
	if err != nil {
		return nil, false, err
	}
	if len(detections) == 0 {
		return nil, false, nil
	}
	return detections[0].Embedding, true, nil
}

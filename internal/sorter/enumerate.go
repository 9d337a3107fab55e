package sorter

import (
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"github.com/kozaktomas/face-sorter/internal/vision"
)

// skippedDir describes a subdirectory whose images would be skipped in
// non-recursive mode.
type skippedDir struct {
	relPath string
	images  int
}

// listImages enumerates image files in dir. In non-recursive mode it also
// reports subdirectories containing images, so the caller can warn the user
// instead of silently coming up short.
func listImages(dir string, recursive bool) ([]string, []skippedDir, error) {
	if recursive {
		var files []string
		err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if !d.IsDir() && vision.IsImageFile(d.Name()) {
				files = append(files, path)
			}
			return nil
		})
		if err != nil {
			return nil, nil, err
		}
		sort.Strings(files)
		return files, nil, nil
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, nil, err
	}

	var files []string
	for _, e := range entries {
		if !e.IsDir() && vision.IsImageFile(e.Name()) {
			files = append(files, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(files)

	skipped := countSkipped(dir)
	return files, skipped, nil
}

// countSkipped walks the subdirectories below dir and counts the images a
// non-recursive run will not touch.
func countSkipped(dir string) []skippedDir {
	counts := make(map[string]int)
	_ = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil // unreadable subtrees are not worth failing a warning for
		}
		if d.IsDir() || !vision.IsImageFile(d.Name()) {
			return nil
		}
		parent := filepath.Dir(path)
		if parent == dir {
			return nil
		}
		rel, relErr := filepath.Rel(dir, parent)
		if relErr != nil {
			return nil
		}
		counts[rel]++
		return nil
	})

	if len(counts) == 0 {
		return nil
	}

	dirs := make([]skippedDir, 0, len(counts))
	for rel, n := range counts {
		dirs = append(dirs, skippedDir{relPath: rel, images: n})
	}
	sort.Slice(dirs, func(i, j int) bool { return dirs[i].relPath < dirs[j].relPath })
	return dirs
}

// batches partitions files into contiguous fixed-size batches.
func batches(files []string, size int) [][]string {
	if size <= 0 {
		size = 1
	}
	var out [][]string
	for start := 0; start < len(files); start += size {
		end := min(start+size, len(files))
		out = append(out, files[start:end])
	}
	return out
}

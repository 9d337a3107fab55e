package relocate

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var numericSuffix = regexp.MustCompile(`_([0-9]+)$`)

// maxSuffixAttempts bounds the numeric suffix search before falling back to
// a timestamp-based name.
const maxSuffixAttempts = 10000

// reserveDestination picks a destination path that neither exists on disk
// nor was handed out earlier in this run, and reserves it.
func (e *Engine) reserveDestination(path string) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	unique := uniqueName(path, func(p string) bool {
		if e.reserved[p] {
			return true
		}
		_, err := os.Stat(p)
		return err == nil
	})
	e.reserved[unique] = true
	return unique, nil
}

// releaseDestination frees a reservation whose placement failed, so a later
// file with the same basename does not skip a suffix for a name that was
// never written.
func (e *Engine) releaseDestination(path string) {
	e.mu.Lock()
	delete(e.reserved, path)
	e.mu.Unlock()
}

// uniqueName appends a numeric suffix until the name is free. An existing
// numeric suffix is recognized and continued instead of stacking a second
// one (photo_3.jpg becomes photo_4.jpg, not photo_3_1.jpg).
func uniqueName(path string, taken func(string) bool) string {
	if !taken(path) {
		return path
	}

	dir := filepath.Dir(path)
	ext := filepath.Ext(path)
	base := strings.TrimSuffix(filepath.Base(path), ext)

	counter := 1
	if m := numericSuffix.FindStringSubmatch(base); m != nil {
		if n, err := strconv.Atoi(m[1]); err == nil {
			counter = n + 1
			base = base[:len(base)-len(m[0])]
		}
	}

	for attempts := 0; attempts < maxSuffixAttempts; attempts++ {
		candidate := filepath.Join(dir, fmt.Sprintf("%s_%d%s", base, counter, ext))
		if !taken(candidate) {
			return candidate
		}
		counter++
	}

	// Pathological directory; a timestamped name ends the search.
	stamp := time.Now().Format("20060102_150405.000000000")
	return filepath.Join(dir, fmt.Sprintf("%s_%s%s", base, stamp, ext))
}

package vision

import (
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"time"
)

// Filename date patterns, tried in order: YYYY-MM-DD / YYYYMMDD first, then
// DD-MM-YYYY.
var datePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(\d{4})[_-]?(\d{2})[_-]?(\d{2})`),
	regexp.MustCompile(`(\d{2})[_-]?(\d{2})[_-]?(\d{4})`),
}

// TakenDate guesses when a photo was taken: a date embedded in the filename
// wins, otherwise the file modification time. Returns false when neither is
// available.
func TakenDate(path string) (time.Time, bool) {
	name := filepath.Base(path)

	for _, pattern := range datePatterns {
		m := pattern.FindStringSubmatch(name)
		if m == nil {
			continue
		}
		var year, month, day int
		if len(m[1]) == 4 {
			year, _ = strconv.Atoi(m[1])
			month, _ = strconv.Atoi(m[2])
			day, _ = strconv.Atoi(m[3])
		} else {
			day, _ = strconv.Atoi(m[1])
			month, _ = strconv.Atoi(m[2])
			year, _ = strconv.Atoi(m[3])
		}
		if year < 1900 || year > time.Now().Year() || month < 1 || month > 12 || day < 1 || day > 31 {
			continue
		}
		t := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.Local)
		// time.Date normalizes overflow (Feb 30 -> Mar 2); reject those.
		if t.Day() != day || t.Month() != time.Month(month) {
			continue
		}
		return t, true
	}

	if info, err := os.Stat(path); err == nil {
		return info.ModTime(), true
	}
	return time.Time{}, false
}

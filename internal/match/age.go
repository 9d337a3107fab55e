package match

import (
	"time"

	"github.com/kozaktomas/face-sorter/internal/identity"
)

// Children's faces change quickly, so the tolerance window widens for
// expected ages under ten.
const (
	childAgeLimit    = 10
	childWindowBonus = 2
)

// plausibleAge reports whether the face's estimated age is consistent with
// the candidate identity at the photo date. Missing data (no birthdate, no
// photo date, no age estimate) always passes: age is a soft signal and never
// filters on ignorance.
func plausibleAge(id *identity.Identity, age *AgeContext) bool {
	if id.Birthdate.IsZero() || age.PhotoDate.IsZero() || age.EstimatedAge <= 0 {
		return true
	}

	expected := AgeAt(id.Birthdate, age.PhotoDate)
	if expected < 0 {
		// Photo taken before the person was born.
		return false
	}

	window := age.Tolerance
	if expected < childAgeLimit {
		window += childWindowBonus
	}

	diff := age.EstimatedAge - expected
	if diff < 0 {
		diff = -diff
	}
	return diff <= window
}

// AgeAt returns the full years between birthdate and date. Negative when
// date precedes the birthdate.
func AgeAt(birthdate, date time.Time) int {
	years := date.Year() - birthdate.Year()
	if years < 0 {
		return years
	}
	anniversary := birthdate.AddDate(years, 0, 0)
	if anniversary.After(date) {
		years--
	}
	return years
}

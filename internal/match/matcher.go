// Package match resolves a face embedding to an enrolled identity, applying
// tolerance, priority ordering and optional age plausibility.
package match

import (
	"sort"
	"time"

	"github.com/kozaktomas/face-sorter/internal/identity"
)

// Result is the outcome of matching one face embedding. An empty Identity
// means no match.
type Result struct {
	Identity   string
	Confidence float64
}

// Matched reports whether an identity was resolved.
func (r Result) Matched() bool {
	return r.Identity != ""
}

// AgeContext enables the age plausibility adjustment: the face's apparent
// age (as estimated by the detector) is compared with the age each candidate
// would have been when the photo was taken.
type AgeContext struct {
	PhotoDate    time.Time // when the photo was taken
	EstimatedAge int       // apparent age of the face, 0 = unknown
	Tolerance    int       // acceptable deviation in years
}

// Options control one match call.
type Options struct {
	Tolerance float64    // maximum embedding distance accepted as a match
	Priority  []string   // optional hard filter plus ranking, lower index wins
	Age       *AgeContext // optional age plausibility adjustment
}

// Matcher matches embeddings against a fixed identity set.
type Matcher struct {
	set *identity.Set
}

// New creates a matcher for the given identity set.
func New(set *identity.Set) *Matcher {
	return &Matcher{set: set}
}

type candidate struct {
	name       string
	confidence float64
}

// Match resolves the best identity for one embedding.
//
// An identity is a candidate iff its minimum distance to any reference
// embedding is at or below the tolerance; its confidence is 1 minus that
// distance. Age implausibility halves confidence but never removes a
// candidate. With a priority order, candidates outside the order are
// dropped entirely and the surviving candidate with the lowest priority
// index wins regardless of confidence; without one, the highest confidence
// wins. Distance ties resolve to the first enrolled identity.
func (m *Matcher) Match(embedding []float32, opts Options) Result {
	var candidates []candidate

	for _, id := range m.set.All() {
		dist := MinDistance(embedding, id.Embeddings)
		if dist > opts.Tolerance {
			continue
		}
		confidence := 1.0 - dist
		if opts.Age != nil && !plausibleAge(id, opts.Age) {
			confidence /= 2
		}
		candidates = append(candidates, candidate{name: id.Name, confidence: confidence})
	}

	if len(candidates) == 0 {
		return Result{}
	}

	// Stable sort keeps enrollment order between equal confidences.
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].confidence > candidates[j].confidence
	})

	if len(opts.Priority) > 0 {
		return pickByPriority(candidates, opts.Priority)
	}

	return Result{Identity: candidates[0].name, Confidence: candidates[0].confidence}
}

// pickByPriority keeps only candidates named in the priority order and picks
// the one with the lowest index. The order is a hard filter: a confident
// match outside it is still "no match".
func pickByPriority(candidates []candidate, priority []string) Result {
	rank := make(map[string]int, len(priority))
	for i, name := range priority {
		rank[name] = i
	}

	best := -1
	for i, c := range candidates {
		r, ok := rank[c.name]
		if !ok {
			continue
		}
		if best == -1 || r < rank[candidates[best].name] {
			best = i
		}
	}
	if best == -1 {
		return Result{}
	}
	return Result{Identity: candidates[best].name, Confidence: candidates[best].confidence}
}

package sorter

import (
	"sort"
	"time"
)

// Stats aggregates per-file outcomes for one run. The invariant
// Total == Recognized + Unrecognized + Errors must hold at the end of a run;
// Reconcile repairs and flags any drift instead of hiding it.
type Stats struct {
	RunID        string
	Total        int
	Recognized   int
	Unrecognized int
	Errors       int
	PersonCounts map[string]int
	Reconciled   bool // accounting drift was detected and repaired
	Elapsed      time.Duration
	AuditLogPath string
}

func newStats(runID string, total int) *Stats {
	return &Stats{
		RunID:        runID,
		Total:        total,
		PersonCounts: make(map[string]int),
	}
}

func (s *Stats) record(o fileOutcome) {
	switch o.outcome {
	case outcomeRecognized:
		s.Recognized++
		s.PersonCounts[o.identity]++
	case outcomeUnrecognized:
		s.Unrecognized++
	default:
		s.Errors++
	}
}

// Processed returns the number of files that reached an outcome.
func (s *Stats) Processed() int {
	return s.Recognized + s.Unrecognized + s.Errors
}

// Reconcile enforces the accounting invariant. When the processed count and
// the enumerated total disagree, the processed count wins: it reflects what
// actually happened.
func (s *Stats) Reconcile() {
	if processed := s.Processed(); processed != s.Total {
		s.Total = processed
		s.Reconciled = true
	}
}

// PersonCount is one identity's share of the recognized files.
type PersonCount struct {
	Name  string
	Count int
}

// TopPeople returns per-identity counts sorted by count descending, name
// ascending on ties.
func (s *Stats) TopPeople() []PersonCount {
	out := make([]PersonCount, 0, len(s.PersonCounts))
	for name, count := range s.PersonCounts {
		out = append(out, PersonCount{Name: name, Count: count})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Name < out[j].Name
	})
	return out
}

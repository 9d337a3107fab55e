// Package identity models enrolled people and loads their reference
// embeddings before a sorting run.
package identity

import "time"

// Identity is one enrolled person. Immutable during a sorting run.
type Identity struct {
	Name        string
	Embeddings  [][]float32 // reference embeddings, one or more
	Priority    int         // lower wins, 0 = unranked
	Birthdate   time.Time   // zero when unknown
	Destination string      // custom output directory, empty for the default convention
}

// Set holds the enrolled identities in enrollment order. The order matters:
// distance ties during matching resolve to the first enrolled identity so
// results are reproducible across runs.
type Set struct {
	identities []*Identity
	byName     map[string]*Identity
}

// NewSet returns an empty identity set.
func NewSet() *Set {
	return &Set{byName: make(map[string]*Identity)}
}

// Add appends an identity. Re-adding a name merges its embeddings into the
// existing entry rather than changing enrollment order.
func (s *Set) Add(id *Identity) {
	if existing, ok := s.byName[id.Name]; ok {
		existing.Embeddings = append(existing.Embeddings, id.Embeddings...)
		return
	}
	s.identities = append(s.identities, id)
	s.byName[id.Name] = id
}

// Get returns the identity with the given name.
func (s *Set) Get(name string) (*Identity, bool) {
	id, ok := s.byName[name]
	return id, ok
}

// All returns the identities in enrollment order.
func (s *Set) All() []*Identity {
	return s.identities
}

// Names returns the identity names in enrollment order.
func (s *Set) Names() []string {
	names := make([]string, len(s.identities))
	for i, id := range s.identities {
		names[i] = id.Name
	}
	return names
}

// Len returns the number of enrolled identities.
func (s *Set) Len() int {
	return len(s.identities)
}

// EmbeddingCount returns the total number of reference embeddings.
func (s *Set) EmbeddingCount() int {
	var n int
	for _, id := range s.identities {
		n += len(id.Embeddings)
	}
	return n
}

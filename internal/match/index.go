package match

import (
	"errors"

	"github.com/coder/hnsw"

	"github.com/kozaktomas/face-sorter/internal/identity"
)

// HNSW graph parameters for face embeddings.
const indexMaxNeighbors = 16

// Neighbor is one nearest-neighbour hit from the enrollment index.
type Neighbor struct {
	Identity string
	Distance float64
}

// Index is an approximate nearest-neighbour index over every reference
// embedding in the identity set. It backs interactive inspection (which
// enrolled faces does this image resemble); sort-time matching always uses
// exact distances.
type Index struct {
	graph *hnsw.Graph[int]
	names []string // node key -> identity name
}

// NewIndex builds the index from the identity set.
func NewIndex(set *identity.Set) *Index {
	g := hnsw.NewGraph[int]()
	g.M = indexMaxNeighbors
	g.Ml = 1.0 / float64(indexMaxNeighbors)
	g.Distance = hnsw.EuclideanDistance

	idx := &Index{graph: g}
	key := 0
	for _, id := range set.All() {
		for _, emb := range id.Embeddings {
			if len(emb) == 0 {
				continue
			}
			g.Add(hnsw.MakeNode(key, emb))
			idx.names = append(idx.names, id.Name)
			key++
		}
	}
	return idx
}

// Len returns the number of indexed embeddings.
func (x *Index) Len() int {
	return len(x.names)
}

// Nearest returns up to k nearest enrolled faces for the query embedding,
// with exact distances recomputed from the node values.
func (x *Index) Nearest(query []float32, k int) ([]Neighbor, error) {
	if len(x.names) == 0 {
		return nil, errors.New("index is empty")
	}

	nodes := x.graph.Search(query, k)
	neighbors := make([]Neighbor, 0, len(nodes))
	for _, n := range nodes {
		neighbors = append(neighbors, Neighbor{
			Identity: x.names[n.Key],
			Distance: Euclidean(query, n.Value),
		})
	}
	return neighbors, nil
}

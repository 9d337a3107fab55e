package match

import "math"

// Euclidean computes the Euclidean (L2) distance between two embeddings.
// Face embeddings of the same person typically sit below 0.6 of each other.
// Returns +Inf for mismatched or empty vectors.
func Euclidean(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return math.Inf(1)
	}

	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return math.Sqrt(sum)
}

// MinDistance returns the smallest Euclidean distance from query to any of
// the reference embeddings. Returns +Inf when refs is empty.
func MinDistance(query []float32, refs [][]float32) float64 {
	best := math.Inf(1)
	for _, ref := range refs {
		if d := Euclidean(query, ref); d < best {
			best = d
		}
	}
	return best
}

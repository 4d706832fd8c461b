// Package vectorindex provides an exact in-memory nearest-neighbor index over
// L2-normalized embedding vectors.
package vectorindex

import (
	"fmt"
	"math"
	"sort"
)

// Match is one search hit: the chunk's position in the indexed corpus and its
// cosine similarity to the query.
type Match struct {
	ChunkIndex int     `json:"chunk_index"`
	Score      float32 `json:"score"`
}

// Index holds the embedding matrix of one processed snapshot. It is rebuilt
// from persisted vectors per query and never mutated afterwards.
type Index struct {
	dimension int
	vectors   [][]float32
}

// Build constructs an index over vectors. All vectors must share one non-zero
// dimension; an empty matrix yields an empty index.
func Build(vectors [][]float32) (*Index, error) {
	ix := &Index{}
	for i, v := range vectors {
		if ix.dimension == 0 {
			ix.dimension = len(v)
		}
		if len(v) == 0 || len(v) != ix.dimension {
			return nil, fmt.Errorf("vector %d: dimension mismatch", i)
		}
	}
	ix.vectors = vectors
	return ix, nil
}

// Size returns the number of indexed vectors.
func (ix *Index) Size() int {
	return len(ix.vectors)
}

// Dimension returns the shared vector dimension, or 0 for an empty index.
func (ix *Index) Dimension() int {
	return ix.dimension
}

// Search returns up to topK matches ranked by descending inner product.
// Vectors are assumed L2-normalized, so the inner product is the cosine score.
// Ties keep corpus order, making results deterministic for identical inputs.
func (ix *Index) Search(query []float32, topK int) ([]Match, error) {
	if len(ix.vectors) == 0 || topK <= 0 {
		return nil, nil
	}
	if len(query) != ix.dimension {
		return nil, fmt.Errorf("query dimension %d does not match index dimension %d", len(query), ix.dimension)
	}

	scores := make([]float32, len(ix.vectors))
	for i, v := range ix.vectors {
		scores[i] = dot(v, query)
	}

	order := make([]int, len(scores))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return scores[order[a]] > scores[order[b]]
	})

	if topK > len(order) {
		topK = len(order)
	}
	matches := make([]Match, 0, topK)
	for _, j := range order[:topK] {
		matches = append(matches, Match{ChunkIndex: j, Score: scores[j]})
	}
	return matches, nil
}

// Normalize scales v to unit L2 norm in place. Zero vectors are left unchanged.
func Normalize(v []float32) {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return
	}
	inv := 1 / math.Sqrt(sum)
	for i := range v {
		v[i] = float32(float64(v[i]) * inv)
	}
}

// NormalizeAll applies Normalize to every vector of m.
func NormalizeAll(m [][]float32) {
	for _, v := range m {
		Normalize(v)
	}
}

func dot(a, b []float32) float32 {
	var sum float32
	for i := range a {
		sum += a[i] * b[i]
	}
	return sum
}

// Package vector provides the embedding blob codec and the similarity
// primitives used by search and the clustering job. Embeddings are
// structural data: they are stored plaintext and never require a key.
package vector

import (
	"bytes"
	"errors"
	"math"

	"github.com/viterin/partial"
	"github.com/vmihailenco/msgpack/v5"
)

var ErrDimensionMismatch = errors.New("embedding dimension mismatch")

// Encode serializes an embedding for storage.
func Encode(v []float32) ([]byte, error) {
	if len(v) == 0 {
		return nil, nil
	}

	var buf bytes.Buffer
	if err := msgpack.NewEncoder(&buf).Encode(v); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

// Decode deserializes a stored embedding. A nil blob decodes to nil.
func Decode(b []byte) ([]float32, error) {
	if len(b) == 0 {
		return nil, nil
	}

	var v []float32
	if err := msgpack.NewDecoder(bytes.NewReader(b)).Decode(&v); err != nil {
		return nil, err
	}

	return v, nil
}

// Norm returns the L2 norm of v.
func Norm(v []float32) float64 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}

	return math.Sqrt(sum)
}

// Cosine returns the cosine similarity of a and b, or an error when the
// dimensions differ. Zero vectors score 0.
func Cosine(a, b []float32) (float64, error) {
	if len(a) != len(b) {
		return 0, ErrDimensionMismatch
	}

	var dot float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
	}

	na, nb := Norm(a), Norm(b)
	if na == 0 || nb == 0 {
		return 0, nil
	}

	return dot / (na * nb), nil
}

// CosineWithNorms is Cosine with precomputed norms, used by the
// clustering job which caches norms per topic.
func CosineWithNorms(a, b []float32, na, nb float64) (float64, error) {
	if len(a) != len(b) {
		return 0, ErrDimensionMismatch
	}

	if na == 0 || nb == 0 {
		return 0, nil
	}

	var dot float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
	}

	return dot / (na * nb), nil
}

// Hit pairs an entity id with a similarity score.
type Hit struct {
	ID    int
	Score float64
}

// TopK partially sorts hits so the k highest scores lead the slice, and
// returns that prefix. The remainder of the slice is left in undefined
// order.
func TopK(hits []Hit, k int) []Hit {
	if k > len(hits) {
		k = len(hits)
	}

	partial.SortFunc(hits, k, func(a, b Hit) int {
		switch {
		case a.Score > b.Score:
			return -1
		case a.Score < b.Score:
			return 1
		default:
			return 0
		}
	})

	return hits[:k]
}

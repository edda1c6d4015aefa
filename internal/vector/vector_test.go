package vector

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEncodeDecode(t *testing.T) {
	v := []float32{0.1, -0.5, 2.25}

	b, err := Encode(v)
	require.NoError(t, err)
	require.NotEmpty(t, b)

	got, err := Decode(b)
	require.NoError(t, err)
	require.Equal(t, v, got)
}

func TestEncodeDecodeNil(t *testing.T) {
	b, err := Encode(nil)
	require.NoError(t, err)
	require.Nil(t, b)

	got, err := Decode(nil)
	require.NoError(t, err)
	require.Nil(t, got)
}

func TestCosine(t *testing.T) {
	tests := []struct {
		name string
		a, b []float32
		want float64
	}{
		{name: "identical", a: []float32{1, 0}, b: []float32{1, 0}, want: 1},
		{name: "orthogonal", a: []float32{1, 0}, b: []float32{0, 1}, want: 0},
		{name: "opposite", a: []float32{1, 0}, b: []float32{-1, 0}, want: -1},
		{name: "zero vector", a: []float32{0, 0}, b: []float32{1, 0}, want: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Cosine(tt.a, tt.b)
			require.NoError(t, err)
			require.InDelta(t, tt.want, got, 1e-9)
		})
	}

	_, err := Cosine([]float32{1}, []float32{1, 2})
	require.ErrorIs(t, err, ErrDimensionMismatch)
}

func TestCosineWithNorms(t *testing.T) {
	a := []float32{3, 4}
	b := []float32{4, 3}

	want, err := Cosine(a, b)
	require.NoError(t, err)

	got, err := CosineWithNorms(a, b, Norm(a), Norm(b))
	require.NoError(t, err)
	require.InDelta(t, want, got, 1e-9)
}

func TestTopK(t *testing.T) {
	hits := []Hit{
		{ID: 1, Score: 0.2},
		{ID: 2, Score: 0.9},
		{ID: 3, Score: 0.5},
		{ID: 4, Score: 0.7},
	}

	top := TopK(hits, 2)
	require.Len(t, top, 2)
	require.Equal(t, 2, top[0].ID)
	require.Equal(t, 4, top[1].ID)

	all := TopK([]Hit{{ID: 1, Score: 0.1}}, 5)
	require.Len(t, all, 1)
}
